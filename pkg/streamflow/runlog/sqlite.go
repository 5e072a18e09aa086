package runlog

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists run records to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite run history store.
// The path should be a file path (e.g., "./runs.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Create table and index
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT NOT NULL PRIMARY KEY,
			digest TEXT NOT NULL,
			status TEXT NOT NULL,
			fault TEXT NOT NULL,
			started TEXT NOT NULL,
			duration_ns INTEGER NOT NULL,
			tasks INTEGER NOT NULL,
			queues INTEGER NOT NULL,
			steps INTEGER NOT NULL,
			schedule BLOB
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_runs_digest
		ON runs(digest)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, digest, status, fault, started, duration_ns, tasks, queues, steps, schedule)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			digest = excluded.digest,
			status = excluded.status,
			fault = excluded.fault,
			started = excluded.started,
			duration_ns = excluded.duration_ns,
			tasks = excluded.tasks,
			queues = excluded.queues,
			steps = excluded.steps,
			schedule = excluded.schedule
	`, rec.RunID, rec.Digest, string(rec.Status), rec.Fault,
		rec.Started.UTC().Format(time.RFC3339Nano), rec.Duration.Nanoseconds(),
		rec.Tasks, rec.Queues, rec.Steps, rec.Schedule)

	if err != nil {
		return fmt.Errorf("append run record: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(runID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Record{}, ErrStoreClosed
	}

	row := s.db.QueryRow(`
		SELECT run_id, digest, status, fault, started, duration_ns, tasks, queues, steps, schedule
		FROM runs
		WHERE run_id = ?
	`, runID)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get run record: %w", err)
	}
	return rec, nil
}

// List implements Store.
func (s *SQLiteStore) List(limit int) ([]Record, error) {
	return s.list(`
		SELECT run_id, digest, status, fault, started, duration_ns, tasks, queues, steps, schedule
		FROM runs
		ORDER BY started DESC, run_id
		LIMIT ?
	`, effectiveLimit(limit))
}

// ListByDigest implements Store.
func (s *SQLiteStore) ListByDigest(digest string, limit int) ([]Record, error) {
	return s.list(`
		SELECT run_id, digest, status, fault, started, duration_ns, tasks, queues, steps, schedule
		FROM runs
		WHERE digest = ?
		ORDER BY started DESC, run_id
		LIMIT ?
	`, digest, effectiveLimit(limit))
}

// effectiveLimit maps the interface's "0 or less means unlimited" onto
// SQLite's LIMIT, where a negative value disables the clause.
func effectiveLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func (s *SQLiteStore) list(query string, args ...any) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list run records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run records: %w", err)
	}

	return records, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec        Record
		status     string
		started    string
		durationNs int64
	)
	if err := row.Scan(&rec.RunID, &rec.Digest, &status, &rec.Fault,
		&started, &durationNs, &rec.Tasks, &rec.Queues, &rec.Steps, &rec.Schedule); err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	rec.Started, _ = time.Parse(time.RFC3339Nano, started)
	rec.Duration = time.Duration(durationNs)
	return rec, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec(`
		DELETE FROM runs WHERE run_id = ?
	`, runID)
	if err != nil {
		return fmt.Errorf("delete run record: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
