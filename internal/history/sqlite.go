package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/stellar-oracle/love-oracle/internal/models"
	_ "modernc.org/sqlite"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS diagnoses (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id     TEXT NOT NULL,
    counterpart TEXT NOT NULL,
    match_rate  INTEGER NOT NULL,
    summary     TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS diagnoses_user ON diagnoses(user_id, counterpart, id);
`

// SQLiteStore keeps diagnosis records in a single SQLite table
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (and creates) the history database at dbPath
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Append(userID string, rec models.DiagnosisRecord) error {
	_, err := s.db.Exec(
		"INSERT INTO diagnoses (user_id, counterpart, match_rate, summary, created_at) VALUES (?, ?, ?, ?, ?)",
		userID, normalizeName(rec.Counterpart), rec.MatchRate, rec.Summary, rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert diagnosis: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Latest(userID, counterpart string) (*models.DiagnosisRecord, error) {
	row := s.db.QueryRow(
		"SELECT counterpart, match_rate, summary, created_at FROM diagnoses WHERE user_id = ? AND counterpart = ? ORDER BY id DESC LIMIT 1",
		userID, normalizeName(counterpart),
	)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNoRecord
	}
	if err != nil {
		return nil, fmt.Errorf("query latest diagnosis: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) List(userID string) ([]models.DiagnosisRecord, error) {
	rows, err := s.db.Query(
		"SELECT counterpart, match_rate, summary, created_at FROM diagnoses WHERE user_id = ? ORDER BY id",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query diagnoses: %w", err)
	}
	defer rows.Close()

	var records []models.DiagnosisRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan diagnosis: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.DiagnosisRecord, error) {
	var (
		rec       models.DiagnosisRecord
		createdAt string
	)
	if err := row.Scan(&rec.Counterpart, &rec.MatchRate, &rec.Summary, &createdAt); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	rec.CreatedAt = t
	return &rec, nil
}
