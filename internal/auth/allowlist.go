package auth

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// AllowList holds the purchaser IDs allowed to log in: a static set from
// configuration plus a set refreshed from a published spreadsheet CSV.
type AllowList struct {
	static    map[string]struct{}
	remoteURL string
	client    *resty.Client

	mu          sync.RWMutex
	remote      map[string]struct{}
	lastRefresh time.Time
}

// NewAllowList creates an allow-list; remoteURL may be empty
func NewAllowList(staticIDs []string, remoteURL string) *AllowList {
	static := make(map[string]struct{}, len(staticIDs))
	for _, id := range staticIDs {
		if id = strings.TrimSpace(id); id != "" {
			static[id] = struct{}{}
		}
	}

	return &AllowList{
		static:    static,
		remoteURL: remoteURL,
		remote:    make(map[string]struct{}),
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "Love-Oracle/1.0"),
	}
}

// Contains reports whether id is an allowed purchaser
func (a *AllowList) Contains(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	if _, ok := a.static[id]; ok {
		return true
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.remote[id]
	return ok
}

// Size returns the number of distinct allowed IDs
func (a *AllowList) Size() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	n := len(a.static)
	for id := range a.remote {
		if _, dup := a.static[id]; !dup {
			n++
		}
	}
	return n
}

// LastRefresh returns the time of the last successful remote refresh
func (a *AllowList) LastRefresh() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastRefresh
}

// Refresh reloads the remote CSV. On failure the previous remote set is kept.
func (a *AllowList) Refresh(ctx context.Context) error {
	if a.remoteURL == "" {
		return nil
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(a.remoteURL)
	if err != nil {
		return fmt.Errorf("failed to fetch allow-list: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != 200 {
		return fmt.Errorf("allow-list source returned status %d", resp.StatusCode())
	}

	ids, err := parseCSV(body)
	if err != nil {
		return fmt.Errorf("failed to parse allow-list: %w", err)
	}

	a.mu.Lock()
	a.remote = ids
	a.lastRefresh = time.Now()
	a.mu.Unlock()

	logrus.Infof("Allow-list refreshed: %d remote purchaser IDs", len(ids))
	return nil
}

// parseCSV takes the first column of every row. A first row whose first cell
// looks like a column title is skipped.
func parseCSV(r io.Reader) (map[string]struct{}, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	ids := make(map[string]struct{})
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row++
		if len(record) == 0 {
			continue
		}
		id := strings.TrimSpace(strings.TrimPrefix(record[0], "\ufeff"))
		if id == "" {
			continue
		}
		if row == 1 && isHeader(id) {
			continue
		}
		ids[id] = struct{}{}
	}
	return ids, nil
}

func isHeader(cell string) bool {
	switch strings.ToLower(cell) {
	case "id", "user_id", "userid", "purchaser_id", "buyer_id", "購入者id", "ユーザーid":
		return true
	}
	return false
}
