package report

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open event log: %v", err)
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("invalid JSON line %q: %v", sc.Text(), err)
		}
		events = append(events, ev)
	}
	return events
}

func TestNewEventLogger(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "artifacts")

	logger, err := NewEventLogger(tmpDir, LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(logger.Path()); os.IsNotExist(err) {
		t.Errorf("Event log file was not created at %s", logger.Path())
	}
	filename := filepath.Base(logger.Path())
	if len(filename) < len("events-20060102-150405.jsonl") {
		t.Errorf("Event log filename format incorrect: %s", filename)
	}
}

func TestEventLogger_StageEvents(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelDebug)
	if err != nil {
		t.Fatal(err)
	}
	logger.SetRunID("01JRUN")

	logger.LogExtract("dumps/artist.tar.xz", "data/artist", 2048, false, 3*time.Second, nil)
	logger.LogIndex("release", "data/release", 10, 1, 2, false, time.Second, nil)
	logger.LogArtist("a-1", "out/artist/a-1.json", 3, 5*time.Millisecond)
	logger.LogSkip("a-2", "already completed")
	logger.LogFilter("release-group", "rg-1", "secondary type Live excluded")
	logger.LogFailure("artist", "a-3", errors.New("missing entity: release-group x"))
	logger.LogRun("process", "completed", map[string]int{"completed": 1, "failed": 1}, time.Minute)
	logger.Close()

	events := readEvents(t, logger.Path())
	if len(events) != 7 {
		t.Fatalf("expected 7 events, got %d", len(events))
	}

	for _, ev := range events {
		if ev.RunID != "01JRUN" {
			t.Errorf("event %s missing run id", ev.Event)
		}
		if ev.Timestamp.IsZero() {
			t.Errorf("event %s missing timestamp", ev.Event)
		}
	}

	if ev := events[0]; ev.Event != EventExtract || ev.BytesWritten != 2048 || ev.Action != "extracted" {
		t.Errorf("unexpected extract event: %+v", ev)
	}
	if ev := events[1]; ev.Extra["duplicates"] != "2" || ev.Extra["malformed"] != "1" || ev.Records != 10 {
		t.Errorf("unexpected index event: %+v", ev)
	}
	if ev := events[5]; ev.Level != LevelWarning || ev.EntityID != "a-3" || ev.Error == "" {
		t.Errorf("unexpected failure event: %+v", ev)
	}
	if ev := events[6]; ev.Event != EventRun || ev.Extra["completed"] != "1" || ev.Action != "process" {
		t.Errorf("unexpected run event: %+v", ev)
	}
}

func TestEventLogger_LevelFilter(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelInfo)
	if err != nil {
		t.Fatal(err)
	}

	logger.LogSkip("a-1", "already completed")          // debug
	logger.LogExtract("x.tar.xz", "x", 0, true, 0, nil) // info
	logger.LogError(EventIndex, "data/release", errors.New("boom"))
	logger.Close()

	events := readEvents(t, logger.Path())
	if len(events) != 2 {
		t.Fatalf("expected debug event to be filtered, got %d events", len(events))
	}
	if events[0].Action != "skipped" {
		t.Errorf("expected skipped extract, got %q", events[0].Action)
	}
	if events[1].Level != LevelError || events[1].Error != "boom" {
		t.Errorf("unexpected error event: %+v", events[1])
	}
}

func TestEventLogger_ConcurrentWrites(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelDebug)
	if err != nil {
		t.Fatal(err)
	}

	const goroutines, perGoroutine = 8, 50
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				logger.LogArtist("a", "p", j, 0)
			}
		}()
	}
	wg.Wait()
	logger.Close()

	if n := len(readEvents(t, logger.Path())); n != goroutines*perGoroutine {
		t.Errorf("expected %d events, got %d", goroutines*perGoroutine, n)
	}
}

func TestEventLogger_NullLogger(t *testing.T) {
	logger := NullLogger()
	logger.SetRunID("x")
	if err := logger.LogFailure("artist", "a", errors.New("x")); err != nil {
		t.Errorf("null logger returned error: %v", err)
	}
	if logger.Path() != "" {
		t.Error("null logger has a path")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close on null logger: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]EventLevel{
		"debug":   LevelDebug,
		"warning": LevelWarning,
		"error":   LevelError,
		"":        LevelInfo,
		"loud":    LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
