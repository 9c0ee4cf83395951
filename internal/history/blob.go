package history

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/stellar-oracle/love-oracle/internal/models"
	"github.com/stellar-oracle/love-oracle/internal/storage"
)

// BlobStore keeps one JSON Lines object per purchaser in a StorageInterface.
// Appends are read-modify-write; writers are serialised per purchaser inside
// this process only.
type BlobStore struct {
	storage storage.StorageInterface
	prefix  string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ Store = (*BlobStore)(nil)

// NewBlobStore creates a history store under prefix (e.g. "history/")
func NewBlobStore(s storage.StorageInterface, prefix string) *BlobStore {
	return &BlobStore{
		storage: s,
		prefix:  prefix,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (b *BlobStore) objectName(userID string) string {
	return b.prefix + url.PathEscape(userID) + ".jsonl"
}

func (b *BlobStore) userLock(userID string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, ok := b.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		b.locks[userID] = l
	}
	return l
}

func (b *BlobStore) Append(userID string, rec models.DiagnosisRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal diagnosis record: %w", err)
	}

	lock := b.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	name := b.objectName(userID)
	existing, err := b.storage.Retrieve(name)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to read history for append: %w", err)
	}

	buf := bytes.NewBuffer(existing)
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.Write(line)
	buf.WriteByte('\n')

	if err := b.storage.Store(name, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (b *BlobStore) Latest(userID, counterpart string) (*models.DiagnosisRecord, error) {
	records, err := b.List(userID)
	if err != nil {
		return nil, err
	}
	return latestFor(records, counterpart)
}

// List returns all records oldest first; corrupt lines are skipped
func (b *BlobStore) List(userID string) ([]models.DiagnosisRecord, error) {
	data, err := b.storage.Retrieve(b.objectName(userID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var records []models.DiagnosisRecord
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec models.DiagnosisRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			logrus.Warnf("Skipping corrupt history line for %s: %v", userID, err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan history: %w", err)
	}

	return records, nil
}
