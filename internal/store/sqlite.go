package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/compresr/context-pipeline/internal/monitoring"
)

const schema = `
CREATE TABLE IF NOT EXISTS run_reports (
	run_id     TEXT PRIMARY KEY,
	outcome    TEXT NOT NULL,
	stored_at  INTEGER NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0,
	report     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_reports_stored_at ON run_reports(stored_at);
`

// SQLiteStore persists run reports in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path, ensuring the parent
// directory exists.
func OpenSQLite(path string, ttl time.Duration) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db at %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return &SQLiteStore{db: db, ttl: ttl, now: time.Now}, nil
}

// Put stores a report and prunes expired rows.
func (s *SQLiteStore) Put(ctx context.Context, report *monitoring.RunReport) error {
	if report == nil || report.RunID == "" {
		return fmt.Errorf("store: report without run id")
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("store: marshal report: %w", err)
	}

	now := s.now()
	var expiresAt int64
	if s.ttl > 0 {
		expiresAt = now.Add(s.ttl).UnixNano()
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM run_reports WHERE expires_at > 0 AND expires_at <= ?`, now.UnixNano()); err != nil {
		return fmt.Errorf("store: prune: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO run_reports (run_id, outcome, stored_at, expires_at, report) VALUES (?, ?, ?, ?, ?)`,
		report.RunID, string(report.Outcome), now.UnixNano(), expiresAt, string(data))
	if err != nil {
		return fmt.Errorf("store: insert %s: %w", report.RunID, err)
	}
	return nil
}

// Get retrieves a live report by run id.
func (s *SQLiteStore) Get(ctx context.Context, runID string) (*monitoring.RunReport, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM run_reports WHERE run_id = ? AND (expires_at = 0 OR expires_at > ?)`,
		runID, s.now().UnixNano()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: get %s: %w", runID, err)
	}

	var report monitoring.RunReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, false, fmt.Errorf("store: decode %s: %w", runID, err)
	}
	return &report, true, nil
}

// Recent returns up to limit live reports, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]*monitoring.RunReport, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT report FROM run_reports WHERE expires_at = 0 OR expires_at > ? ORDER BY stored_at DESC LIMIT ?`,
		s.now().UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var out []*monitoring.RunReport
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		var report monitoring.RunReport
		if err := json.Unmarshal([]byte(data), &report); err != nil {
			return nil, fmt.Errorf("store: decode: %w", err)
		}
		out = append(out, &report)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
