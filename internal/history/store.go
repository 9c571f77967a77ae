// Package history persists pipeline run records in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Run is one recorded pipeline run.
type Run struct {
	ID        string
	Pipeline  string
	EventType string
	Branch    string
	PRNumber  int
	Commit    string
	Outcome   string
	StartedAt time.Time
	EndedAt   time.Time
}

// StepResult is one recorded step execution.
type StepResult struct {
	RunID    string
	Job      string
	Step     string
	Outcome  string
	Duration time.Duration
}

// Store records runs and step results. Use ":memory:" for tests.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore opens (and initializes) the history database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		pipeline TEXT NOT NULL,
		event_type TEXT NOT NULL,
		branch TEXT,
		pr INTEGER,
		commit_sha TEXT,
		outcome TEXT NOT NULL DEFAULT 'running',
		started_at INTEGER NOT NULL,
		ended_at INTEGER
	);
	CREATE TABLE IF NOT EXISTS steps (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		job TEXT NOT NULL,
		step TEXT NOT NULL,
		outcome TEXT NOT NULL,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_steps_run ON steps(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordRun inserts a new run in the "running" state.
func (s *Store) RecordRun(ctx context.Context, r Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, pipeline, event_type, branch, pr, commit_sha, started_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		r.ID, r.Pipeline, r.EventType, r.Branch, r.PRNumber, r.Commit, r.StartedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun records the final outcome of a run.
func (s *Store) FinishRun(ctx context.Context, runID, outcome string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET outcome = ?, ended_at = ? WHERE id = ?",
		outcome, endedAt.Unix(), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: unknown run %s", runID)
	}
	return nil
}

// RecordStep appends a step result for a run.
func (s *Store) RecordStep(ctx context.Context, r StepResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO steps (run_id, job, step, outcome, duration_ms) VALUES (?, ?, ?, ?, ?)",
		r.RunID, r.Job, r.Step, r.Outcome, r.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, pipeline, event_type, branch, pr, commit_sha, outcome, started_at, COALESCE(ended_at, 0) FROM runs ORDER BY started_at DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// GetRun returns one run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, pipeline, event_type, branch, pr, commit_sha, outcome, started_at, COALESCE(ended_at, 0) FROM runs WHERE id = ?",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	defer rows.Close()
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	return &runs[0], nil
}

// StepsForRun returns the recorded step results of a run in execution order.
func (s *Store) StepsForRun(ctx context.Context, runID string) ([]StepResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT run_id, job, step, outcome, duration_ms FROM steps WHERE run_id = ? ORDER BY id",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var steps []StepResult
	for rows.Next() {
		var r StepResult
		var ms int64
		if err := rows.Scan(&r.RunID, &r.Job, &r.Step, &r.Outcome, &ms); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		steps = append(steps, r)
	}
	return steps, rows.Err()
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	var runs []Run
	for rows.Next() {
		var r Run
		var started, ended int64
		if err := rows.Scan(&r.ID, &r.Pipeline, &r.EventType, &r.Branch, &r.PRNumber, &r.Commit, &r.Outcome, &started, &ended); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.Unix(started, 0)
		if ended > 0 {
			r.EndedAt = time.Unix(ended, 0)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return runs, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
