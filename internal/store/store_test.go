package store

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreOpenAndMigrate(t *testing.T) {
	store := openTestStore(t)

	version, err := store.getSchemaVersion()
	if err != nil {
		t.Fatalf("failed to get schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("expected schema version %d, got %d", currentSchemaVersion, version)
	}

	for _, table := range []string{"schema_version", "artist_progress", "runs"} {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}

	for _, index := range []string{"idx_artist_progress_status_updated", "idx_runs_started"} {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", index).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query index %s: %v", index, err)
		}
		if count != 1 {
			t.Errorf("expected index %s to exist (schema v2)", index)
		}
	}

	mode, err := store.JournalMode()
	if err != nil {
		t.Fatalf("journal mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("expected WAL journal mode, got %q", mode)
	}
}

func TestReopenKeepsLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.MarkCompleted("artist-1", "run-1"); err != nil {
		t.Fatal(err)
	}
	store.Close()

	store, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	done, err := store.IsCompleted("artist-1")
	if err != nil {
		t.Fatal(err)
	}
	if !done {
		t.Error("completed mark lost across reopen")
	}
}

func TestLedgerTransitions(t *testing.T) {
	store := openTestStore(t)

	entry, err := store.Status("a1")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != StatusPending {
		t.Errorf("unknown artist should be pending, got %s", entry.Status)
	}

	if err := store.MarkFailed("a1", "run-1", "missing entity: release-group x"); err != nil {
		t.Fatal(err)
	}
	entry, err = store.Status("a1")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != StatusFailed || entry.Attempts != 1 || entry.RunID != "run-1" {
		t.Errorf("unexpected entry after failure: %+v", entry)
	}
	if done, _ := store.IsCompleted("a1"); done {
		t.Error("failed artist must not count as completed")
	}

	if err := store.MarkCompleted("a1", "run-2"); err != nil {
		t.Fatal(err)
	}
	entry, err = store.Status("a1")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != StatusCompleted || entry.Reason != "" || entry.Attempts != 2 {
		t.Errorf("unexpected entry after completion: %+v", entry)
	}
}

func TestLedgerSummaryAndFailures(t *testing.T) {
	store := openTestStore(t)

	for _, id := range []string{"c1", "c2", "c3"} {
		if err := store.MarkCompleted(id, "run"); err != nil {
			t.Fatal(err)
		}
	}
	failures := map[string]string{
		"f1": "missing entity",
		"f2": "missing entity",
		"f3": "malformed record",
	}
	for id, reason := range failures {
		if err := store.MarkFailed(id, "run", reason); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.MarkFailed("f4", "run", strings.Repeat("x", 5000)); err != nil {
		t.Fatal(err)
	}

	sum, err := store.Summary()
	if err != nil {
		t.Fatal(err)
	}
	if sum.Completed != 3 || sum.Failed != 4 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.LastUpdate.IsZero() {
		t.Error("summary should carry the last update time")
	}

	ids, err := store.FailedIDs()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(ids, ",") != "f1,f2,f3,f4" {
		t.Errorf("FailedIDs = %v", ids)
	}

	reasons, err := store.TopFailureReasons(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(reasons) != 2 || reasons[0].Reason != "missing entity" || reasons[0].Count != 2 {
		t.Errorf("TopFailureReasons = %+v", reasons)
	}

	recent, err := store.FailedArtists(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 4 {
		t.Fatalf("FailedArtists returned %d entries", len(recent))
	}
	for _, e := range recent {
		if len(e.Reason) > maxReasonLen {
			t.Errorf("reason for %s not truncated (%d bytes)", e.ArtistID, len(e.Reason))
		}
	}
}

func TestMarkFailedTruncatesOnRuneBoundary(t *testing.T) {
	store := openTestStore(t)

	// "é" is two bytes; one leading byte puts a rune across the limit.
	reason := "x" + strings.Repeat("é", maxReasonLen)
	if err := store.MarkFailed("f1", "run", reason); err != nil {
		t.Fatal(err)
	}
	recent, err := store.FailedArtists(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Fatalf("FailedArtists returned %d entries", len(recent))
	}
	got := recent[0].Reason
	if !utf8.ValidString(got) {
		t.Errorf("stored reason is not valid UTF-8 (%d bytes)", len(got))
	}
	if len(got) != maxReasonLen-1 {
		t.Errorf("stored %d bytes, want %d", len(got), maxReasonLen-1)
	}

	for _, tc := range []struct {
		in   string
		want int
	}{
		{"short", 5},
		{strings.Repeat("a", maxReasonLen), maxReasonLen},
		{strings.Repeat("a", maxReasonLen-1) + "€", maxReasonLen - 1},
		{strings.Repeat("a", maxReasonLen-3) + "€", maxReasonLen},
	} {
		if got := truncateReason(tc.in); len(got) != tc.want || !utf8.ValidString(got) {
			t.Errorf("truncateReason(%d bytes) = %d bytes, want %d", len(tc.in), len(got), tc.want)
		}
	}
}

func TestLedgerConcurrentMarks(t *testing.T) {
	store := openTestStore(t)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := filepath.Join("artist", string(rune('a'+i%26)), string(rune('a'+i/26)))
			errs <- store.MarkCompleted(id, "run")
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent mark failed: %v", err)
		}
	}

	sum, err := store.Summary()
	if err != nil {
		t.Fatal(err)
	}
	if sum.Completed != 50 {
		t.Errorf("expected 50 completed, got %d", sum.Completed)
	}
}

func TestRuns(t *testing.T) {
	store := openTestStore(t)

	first, err := store.StartRun("extract", `{"workers":1}`)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.FinishRun(first, RunCompleted, RunCounters{Considered: 3, Completed: 3}, nil); err != nil {
		t.Fatal(err)
	}

	second, err := store.StartRun("process", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.FinishRun(second, RunFailed, RunCounters{Considered: 10, Completed: 4, Failed: 1}, errors.New("disk full")); err != nil {
		t.Fatal(err)
	}

	if err := store.FinishRun("nope", RunCompleted, RunCounters{}, nil); err == nil {
		t.Error("finishing an unknown run should fail")
	}

	runs, err := store.RecentRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != second {
		t.Errorf("newest run first: got %s, want %s", runs[0].RunID, second)
	}
	if runs[0].Error != "disk full" || runs[0].Counters.Completed != 4 {
		t.Errorf("unexpected run: %+v", runs[0])
	}
	if runs[1].ConfigJSON != `{"workers":1}` || runs[1].Duration() < 0 {
		t.Errorf("unexpected run: %+v", runs[1])
	}
}

func TestHelpers(t *testing.T) {
	if v := SQLiteVersion(); v == "" {
		t.Error("SQLiteVersion returned empty string")
	}
	if !HasFTS5() {
		t.Error("expected FTS5 support in the bundled SQLite")
	}
	if err := openTestStore(t).CheckIntegrity(); err != nil {
		t.Errorf("CheckIntegrity: %v", err)
	}
}
