package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Run statuses
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// RunCounters are the per-stage totals stored with a finished run
type RunCounters struct {
	Considered int
	Completed  int
	Failed     int
	Skipped    int
	Filtered   int
	Albums     int
}

// Run is one stage invocation
type Run struct {
	RunID      string
	Stage      string
	Status     string
	ConfigJSON string
	StartedAt  time.Time
	FinishedAt time.Time
	Counters   RunCounters
	Error      string
}

// Duration returns the wall time of a finished run
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StartRun records the start of stage and returns its ULID.
func (s *Store) StartRun(stage, configJSON string) (string, error) {
	id := ulid.Make().String()
	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, stage, status, config_json, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, stage, RunRunning, configJSON, time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// FinishRun stores the final status and counters of runID.
func (s *Store) FinishRun(runID, status string, c RunCounters, runErr error) error {
	var errMsg sql.NullString
	if runErr != nil {
		errMsg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := s.db.Exec(`
		UPDATE runs SET status = ?, finished_at = ?,
		  considered = ?, completed = ?, failed = ?, skipped = ?, filtered = ?, albums = ?,
		  error = ?
		WHERE run_id = ?
	`, status, time.Now().UnixMilli(),
		c.Considered, c.Completed, c.Failed, c.Skipped, c.Filtered, c.Albums,
		errMsg, runID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: no such run", runID)
	}
	return nil
}

// RecentRuns returns the latest runs, newest first
func (s *Store) RecentRuns(limit int) ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, stage, status, COALESCE(config_json, ''), started_at, finished_at,
		       considered, completed, failed, skipped, filtered, albums, COALESCE(error, '')
		FROM runs
		ORDER BY started_at DESC, run_id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r := &Run{}
		var started int64
		var finished sql.NullInt64
		c := &r.Counters
		if err := rows.Scan(&r.RunID, &r.Stage, &r.Status, &r.ConfigJSON, &started, &finished,
			&c.Considered, &c.Completed, &c.Failed, &c.Skipped, &c.Filtered, &c.Albums, &r.Error); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started)
		if finished.Valid {
			r.FinishedAt = time.UnixMilli(finished.Int64)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
