package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Status is the processing state of one artist
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ProgressEntry is one ledger row
type ProgressEntry struct {
	ArtistID  string
	Status    Status
	Reason    string
	Attempts  int
	RunID     string
	UpdatedAt time.Time
}

// LedgerSummary counts ledger rows by status
type LedgerSummary struct {
	Completed  int
	Failed     int
	LastUpdate time.Time
}

// FailureReason groups failures by reason
type FailureReason struct {
	Reason string
	Count  int
}

// maxReasonLen bounds stored failure messages.
const maxReasonLen = 1000

// IsCompleted reports whether artistID has been durably completed.
func (s *Store) IsCompleted(artistID string) (bool, error) {
	var status string
	err := s.db.QueryRow(`SELECT status FROM artist_progress WHERE artist_id = ?`, artistID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger lookup %s: %w", artistID, err)
	}
	return Status(status) == StatusCompleted, nil
}

// Status returns the state of artistID; artists never attempted are pending.
func (s *Store) Status(artistID string) (*ProgressEntry, error) {
	e := &ProgressEntry{ArtistID: artistID, Status: StatusPending}
	var reason, runID sql.NullString
	var updated int64
	err := s.db.QueryRow(`
		SELECT status, reason, attempts, run_id, updated_at
		FROM artist_progress WHERE artist_id = ?
	`, artistID).Scan(&e.Status, &reason, &e.Attempts, &runID, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return e, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger lookup %s: %w", artistID, err)
	}
	e.Reason = reason.String
	e.RunID = runID.String
	e.UpdatedAt = time.UnixMilli(updated)
	return e, nil
}

// MarkCompleted records artistID as done. It must only be called after the
// artist's documents and search rows are durable.
func (s *Store) MarkCompleted(artistID, runID string) error {
	_, err := s.db.Exec(`
		INSERT INTO artist_progress (artist_id, status, reason, attempts, run_id, updated_at)
		VALUES (?, 'completed', NULL, 1, ?, ?)
		ON CONFLICT(artist_id) DO UPDATE SET
		  status = 'completed',
		  reason = NULL,
		  attempts = attempts + 1,
		  run_id = excluded.run_id,
		  updated_at = excluded.updated_at
	`, artistID, runID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("mark %s completed: %w", artistID, err)
	}
	return nil
}

// truncateReason cuts reason to at most maxReasonLen bytes without
// splitting a UTF-8 sequence.
func truncateReason(reason string) string {
	if len(reason) <= maxReasonLen {
		return reason
	}
	n := maxReasonLen
	for n > 0 && !utf8.RuneStart(reason[n]) {
		n--
	}
	return reason[:n]
}

// MarkFailed records an entity-scoped failure for artistID.
func (s *Store) MarkFailed(artistID, runID, reason string) error {
	reason = truncateReason(reason)
	_, err := s.db.Exec(`
		INSERT INTO artist_progress (artist_id, status, reason, attempts, run_id, updated_at)
		VALUES (?, 'failed', ?, 1, ?, ?)
		ON CONFLICT(artist_id) DO UPDATE SET
		  status = 'failed',
		  reason = excluded.reason,
		  attempts = attempts + 1,
		  run_id = excluded.run_id,
		  updated_at = excluded.updated_at
	`, artistID, reason, runID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("mark %s failed: %w", artistID, err)
	}
	return nil
}

// Summary counts ledger rows by status
func (s *Store) Summary() (*LedgerSummary, error) {
	sum := &LedgerSummary{}
	rows, err := s.db.Query(`SELECT status, COUNT(*), MAX(updated_at) FROM artist_progress GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var last int64
	for rows.Next() {
		var status string
		var count int
		var updated int64
		if err := rows.Scan(&status, &count, &updated); err != nil {
			return nil, err
		}
		switch Status(status) {
		case StatusCompleted:
			sum.Completed = count
		case StatusFailed:
			sum.Failed = count
		}
		last = max(last, updated)
	}
	if last > 0 {
		sum.LastUpdate = time.UnixMilli(last)
	}
	return sum, rows.Err()
}

// FailedArtists returns the most recent failures, newest first
func (s *Store) FailedArtists(limit int) ([]*ProgressEntry, error) {
	rows, err := s.db.Query(`
		SELECT artist_id, reason, attempts, run_id, updated_at
		FROM artist_progress
		WHERE status = 'failed'
		ORDER BY updated_at DESC, artist_id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ProgressEntry
	for rows.Next() {
		e := &ProgressEntry{Status: StatusFailed}
		var reason, runID sql.NullString
		var updated int64
		if err := rows.Scan(&e.ArtistID, &reason, &e.Attempts, &runID, &updated); err != nil {
			return nil, err
		}
		e.Reason = reason.String
		e.RunID = runID.String
		e.UpdatedAt = time.UnixMilli(updated)
		out = append(out, e)
	}
	return out, rows.Err()
}

// FailedIDs returns every failed artist id in ascending order
func (s *Store) FailedIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT artist_id FROM artist_progress WHERE status = 'failed' ORDER BY artist_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TopFailureReasons groups failures by reason, most frequent first
func (s *Store) TopFailureReasons(limit int) ([]FailureReason, error) {
	rows, err := s.db.Query(`
		SELECT COALESCE(reason, ''), COUNT(*) AS n
		FROM artist_progress
		WHERE status = 'failed'
		GROUP BY reason
		ORDER BY n DESC, reason
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FailureReason
	for rows.Next() {
		var r FailureReason
		if err := rows.Scan(&r.Reason, &r.Count); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
