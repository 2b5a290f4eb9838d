// Package runstore persists completed analysis runs to SQLite for history
// and debugging. Separate from the belief store to avoid bloating the memory
// database with transcripts.
//
// Each archived run keeps a summary row (status, counts, timings) plus the
// full RunState blackboard as JSON so a run can be replayed or inspected
// after the fact.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"datanerd/internal/config"
	"datanerd/internal/logging"
	"datanerd/internal/types"
)

const runSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id         TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	dataset_id     TEXT NOT NULL,
	status         TEXT NOT NULL,
	final_response TEXT NOT NULL DEFAULT '',
	questions      INTEGER NOT NULL DEFAULT 0,
	approved       INTEGER NOT NULL DEFAULT 0,
	rejected       INTEGER NOT NULL DEFAULT 0,
	boring         INTEGER NOT NULL DEFAULT 0,
	iterations     INTEGER NOT NULL DEFAULT 0,
	started_at     TEXT NOT NULL,
	finished_at    TEXT NOT NULL DEFAULT '',
	duration_ms    INTEGER NOT NULL DEFAULT 0,
	state          TEXT NOT NULL
)`

var runIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_runs_user ON runs(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset_id)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
}

// timeLayout is RFC 3339 with a fixed nine-digit fraction so the TEXT column
// orders chronologically (same layout as the belief store).
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is the summary view of an archived run. The full blackboard is
// loaded separately via Get.
type Record struct {
	RunID         string        `json:"run_id"`
	UserID        string        `json:"user_id"`
	DatasetID     string        `json:"dataset_id"`
	Status        string        `json:"status"`
	FinalResponse string        `json:"final_response,omitempty"`
	Questions     int           `json:"questions"`
	Approved      int           `json:"approved"`
	Rejected      int           `json:"rejected"`
	Boring        int           `json:"boring"`
	Iterations    int           `json:"iterations"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Store is the SQLite-backed run archive. Safe for concurrent use.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewStore opens (creating if needed) the run archive at the configured path
// and prepares the schema.
func NewStore(cfg config.RunsConfig) (*Store, error) {
	path := cfg.DatabasePath
	if path == "" {
		path = filepath.Join("data", "runs.db")
	}
	logging.Store("Initializing run archive at path: %s", path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating run archive directory: %w", err)
	}

	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("opening run archive: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.StoreDebug("pragma %q failed: %v", pragma, err)
		}
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing run archive schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	if _, err := s.db.Exec(runSchema); err != nil {
		return err
	}
	for _, idx := range runIndexes {
		if _, err := s.db.Exec(idx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Archive persists one finished run. It tolerates partial state: an aborted
// run may carry no questions and no report. Re-archiving a run id replaces
// the earlier row, so a retried run keeps one record.
func (s *Store) Archive(ctx context.Context, st *types.RunState, status string) error {
	if st == nil {
		return fmt.Errorf("archive: nil run state")
	}

	blob, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("archive: encoding run %s: %w", st.RunID, err)
	}

	finished := ""
	var durationMs int64
	if !st.FinishedAt.IsZero() {
		finished = st.FinishedAt.UTC().Format(timeLayout)
		durationMs = st.FinishedAt.Sub(st.StartedAt).Milliseconds()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
		(run_id, user_id, dataset_id, status, final_response,
		 questions, approved, rejected, boring, iterations,
		 started_at, finished_at, duration_ms, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.RunID, st.UserID, st.DatasetID, status, st.FinalResponse,
		len(st.Questions), len(st.Approved), len(st.Rejected), len(st.Boring),
		st.IterationCount, st.StartedAt.UTC().Format(timeLayout), finished,
		durationMs, string(blob))
	if err != nil {
		return fmt.Errorf("archive: storing run %s: %w", st.RunID, err)
	}
	logging.Store("archived run %s (%s): %d approved, %d boring, %d rejected",
		st.RunID, status, len(st.Approved), len(st.Boring), len(st.Rejected))
	return nil
}

const recordColumns = `run_id, user_id, dataset_id, status, final_response,
	questions, approved, rejected, boring, iterations,
	started_at, finished_at, duration_ms`

func scanRecord(scan func(...any) error) (Record, error) {
	var r Record
	var started, finished string
	var durationMs int64
	err := scan(&r.RunID, &r.UserID, &r.DatasetID, &r.Status, &r.FinalResponse,
		&r.Questions, &r.Approved, &r.Rejected, &r.Boring, &r.Iterations,
		&started, &finished, &durationMs)
	if err != nil {
		return Record{}, err
	}
	if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return Record{}, fmt.Errorf("parsing started_at %q: %w", started, err)
	}
	if finished != "" {
		if r.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return Record{}, fmt.Errorf("parsing finished_at %q: %w", finished, err)
		}
	}
	r.Duration = time.Duration(durationMs) * time.Millisecond
	return r, nil
}

// List returns run summaries, newest first. An empty userID lists every
// user's runs; limit <= 0 falls back to 50.
func (s *Store) List(ctx context.Context, userID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + recordColumns + ` FROM runs`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Get loads one archived run's summary and its full blackboard.
func (s *Store) Get(ctx context.Context, runID string) (Record, *types.RunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+`, state FROM runs WHERE run_id = ?`, runID)

	var r Record
	var started, finished, blob string
	var durationMs int64
	err := row.Scan(&r.RunID, &r.UserID, &r.DatasetID, &r.Status, &r.FinalResponse,
		&r.Questions, &r.Approved, &r.Rejected, &r.Boring, &r.Iterations,
		&started, &finished, &durationMs, &blob)
	if err == sql.ErrNoRows {
		return Record{}, nil, fmt.Errorf("unknown run %q", runID)
	}
	if err != nil {
		return Record{}, nil, fmt.Errorf("loading run %s: %w", runID, err)
	}
	if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return Record{}, nil, fmt.Errorf("parsing started_at %q: %w", started, err)
	}
	if finished != "" {
		if r.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return Record{}, nil, fmt.Errorf("parsing finished_at %q: %w", finished, err)
		}
	}
	r.Duration = time.Duration(durationMs) * time.Millisecond

	var st types.RunState
	if err := json.Unmarshal([]byte(blob), &st); err != nil {
		return Record{}, nil, fmt.Errorf("decoding run %s state: %w", runID, err)
	}
	return r, &st, nil
}

// Delete removes one archived run.
func (s *Store) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("deleting run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("unknown run %q", runID)
	}
	return nil
}

// Stats returns archive-wide counters.
func (s *Store) Stats(ctx context.Context) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{"db_path": s.dbPath}

	var total, completed, aborted int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting runs: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM runs WHERE status = 'completed'`).Scan(&completed); err != nil {
		return nil, fmt.Errorf("counting completed runs: %w", err)
	}
	aborted = total - completed

	stats["total_runs"] = total
	stats["completed_runs"] = completed
	stats["aborted_runs"] = aborted
	return stats, nil
}
