package report

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/franz/mbflat/internal/store"
)

func setupLedger(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	runID, err := db.StartRun("process", `{"workers":2}`)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"a-1", "a-2", "a-3"} {
		if err := db.MarkCompleted(id, runID); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.MarkFailed("a-4", runID, "missing entity: release-group rg-9 not in index"); err != nil {
		t.Fatal(err)
	}
	if err := db.FinishRun(runID, store.RunCompleted, store.RunCounters{Considered: 4, Completed: 3, Failed: 1}, nil); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestGenerateSummaryReport(t *testing.T) {
	db := setupLedger(t)

	logger, err := NewEventLogger(t.TempDir(), LevelDebug)
	if err != nil {
		t.Fatal(err)
	}
	logger.LogArtist("a-1", "p", 1, 0)
	logger.LogArtist("a-2", "p", 1, 0)
	logger.LogFailure("artist", "a-4", errors.New("missing entity"))
	logger.Close()

	report, err := GenerateSummaryReport(db, logger.Path())
	if err != nil {
		t.Fatalf("GenerateSummaryReport failed: %v", err)
	}

	if report.ArtistsCompleted != 3 || report.ArtistsFailed != 1 {
		t.Errorf("unexpected ledger counts: %d completed, %d failed", report.ArtistsCompleted, report.ArtistsFailed)
	}
	if len(report.Runs) != 1 || report.Runs[0].Stage != "process" {
		t.Errorf("unexpected runs: %+v", report.Runs)
	}
	if len(report.TopFailures) != 1 || report.TopFailures[0].Count != 1 {
		t.Errorf("unexpected failures: %+v", report.TopFailures)
	}
	if report.EventCounts[EventArtist] != 2 || report.EventCounts[EventFailure] != 1 {
		t.Errorf("unexpected event counts: %v", report.EventCounts)
	}
	if report.GeneratedAt.IsZero() {
		t.Error("Expected GeneratedAt to be set")
	}
}

func TestGenerateSummaryReport_MissingEventLog(t *testing.T) {
	db := setupLedger(t)
	report, err := GenerateSummaryReport(db, filepath.Join(t.TempDir(), "nope.jsonl"))
	if err != nil {
		t.Fatalf("a missing event log must not fail the report: %v", err)
	}
	if report.EventCounts != nil {
		t.Errorf("expected no event counts, got %v", report.EventCounts)
	}
}

func TestWriteMarkdownReport(t *testing.T) {
	db := setupLedger(t)
	report, err := GenerateSummaryReport(db, "")
	if err != nil {
		t.Fatal(err)
	}
	report.SearchArtists = 3
	report.SearchAlbums = 7
	report.Indexes = []IndexSummary{{Entity: "artist", Records: 12345, Duplicates: 2, BuiltAt: time.Now()}}
	report.EventCounts = map[EventType]int{EventArtist: 3, EventFailure: 1}

	outputPath := filepath.Join(t.TempDir(), "reports", "summary.md")
	if err := WriteMarkdownReport(report, outputPath); err != nil {
		t.Fatalf("WriteMarkdownReport failed: %v", err)
	}

	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatal(err)
	}
	md := string(content)
	for _, want := range []string{
		"# mbflat - Summary Report",
		"| Artists Completed | 3 |",
		"| Artists Failed | 1 |",
		"| Search Rows (albums) | 7 |",
		"| artist | 12,345 |",
		"## Recent Runs",
		"## Top Failure Reasons",
		"`a-4`",
		"| failure | 1 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestLatestEventLog(t *testing.T) {
	dir := t.TempDir()
	if got := LatestEventLog(dir); got != "" {
		t.Errorf("expected no log, got %s", got)
	}
	for _, name := range []string{"events-20240101-000000.jsonl", "events-20250101-000000.jsonl", "other.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got := filepath.Base(LatestEventLog(dir)); got != "events-20250101-000000.jsonl" {
		t.Errorf("LatestEventLog = %s", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	long := strings.Repeat("x", 200)
	if got := truncate(long, 40); len(got) > 40 || !strings.Contains(got, "...") {
		t.Errorf("truncate long = %q", got)
	}
	if got := truncate("a|b", 10); got != "a/b" {
		t.Errorf("pipes must be escaped for tables, got %q", got)
	}
}
