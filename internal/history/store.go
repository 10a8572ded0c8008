// Package history persists finished transcription jobs in a local
// SQLite ledger, size-bounded so the file never grows without limit.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"auto-transcriber/internal/domain"
)

// DefaultMaxRows bounds the ledger when no explicit limit is given.
const DefaultMaxRows = 200

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id             TEXT PRIMARY KEY,
	source_file    TEXT NOT NULL,
	output_file    TEXT NOT NULL,
	status         TEXT NOT NULL,
	error          TEXT NOT NULL DEFAULT '',
	warnings       TEXT NOT NULL DEFAULT '',
	warnings_count INTEGER NOT NULL DEFAULT 0,
	started_at     INTEGER NOT NULL,
	finished_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_finished_at ON jobs (finished_at DESC);
`

// Store is a SQLite-backed ledger of terminal jobs.
type Store struct {
	db      *sql.DB
	maxRows int
}

// New opens the ledger database at path, creating it when missing.
func New(path string, maxRows int) (*Store, error) {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}

	return &Store{db: db, maxRows: maxRows}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append records one terminal job and enforces the row bound.
func (s *Store) Append(job domain.Job) error {
	if !job.Status.Terminal() {
		return fmt.Errorf("refusing to record non-terminal job %s (%s)", job.ID, job.Status)
	}

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO jobs
		 (id, source_file, output_file, status, error, warnings, warnings_count, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.SourceFile,
		job.OutputFile,
		string(job.Status),
		job.Error,
		strings.Join(job.Warnings, "\n"),
		job.WarningsCount,
		job.StartTime.UnixMilli(),
		job.EndTime.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}

	_, err = s.db.Exec(
		`DELETE FROM jobs WHERE id NOT IN
		 (SELECT id FROM jobs ORDER BY finished_at DESC, id LIMIT ?)`,
		s.maxRows,
	)
	if err != nil {
		return fmt.Errorf("trim history: %w", err)
	}
	return nil
}

// Recent returns up to n finished jobs, newest first.
func (s *Store) Recent(n int) ([]domain.Job, error) {
	rows, err := s.db.Query(
		`SELECT id, source_file, output_file, status, error, warnings, warnings_count, started_at, finished_at
		 FROM jobs ORDER BY finished_at DESC, id LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		var (
			job      domain.Job
			status   string
			warnings string
			started  int64
			finished int64
		)
		if err := rows.Scan(
			&job.ID, &job.SourceFile, &job.OutputFile, &status,
			&job.Error, &warnings, &job.WarningsCount, &started, &finished,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}

		job.Status = domain.JobStatus(status)
		if warnings != "" {
			job.Warnings = strings.Split(warnings, "\n")
		}
		job.StartTime = time.UnixMilli(started)
		job.EndTime = time.UnixMilli(finished)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Count returns the number of stored jobs.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count history rows: %w", err)
	}
	return n, nil
}
