package history

import (
	"errors"
	"strings"

	"github.com/stellar-oracle/love-oracle/internal/models"
)

// ErrNoRecord is returned by Latest when the purchaser has no reading for the counterpart
var ErrNoRecord = errors.New("no previous diagnosis for counterpart")

// Store is an append-only log of diagnosis records per purchaser
type Store interface {
	Append(userID string, rec models.DiagnosisRecord) error
	Latest(userID, counterpart string) (*models.DiagnosisRecord, error)
	List(userID string) ([]models.DiagnosisRecord, error)
}

// latestFor scans records newest-last from the end
func latestFor(records []models.DiagnosisRecord, counterpart string) (*models.DiagnosisRecord, error) {
	want := normalizeName(counterpart)
	for i := len(records) - 1; i >= 0; i-- {
		if normalizeName(records[i].Counterpart) == want {
			rec := records[i]
			return &rec, nil
		}
	}
	return nil, ErrNoRecord
}

func normalizeName(name string) string {
	return strings.TrimSpace(name)
}
