package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/franz/mbflat/internal/config"
	"github.com/franz/mbflat/internal/report"
	"github.com/franz/mbflat/internal/store"
	"github.com/franz/mbflat/internal/util"
)

func TestReadArtistsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artists.txt")
	content := "# favourites\n" +
		"\n" +
		"  f27ec8db-af05-4f36-916e-3d57f91ecf5e  \n" +
		"5b11f4ce-a62d-471e-81fc-a69a8278c7da\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	ids, err := readArtistsFile(path)
	if err != nil {
		t.Fatalf("readArtistsFile: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}
	if ids[0].String() != "f27ec8db-af05-4f36-916e-3d57f91ecf5e" {
		t.Errorf("unexpected first id %s", ids[0])
	}
}

func TestReadArtistsFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artists.txt")
	if err := os.WriteFile(path, []byte("not-an-mbid\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readArtistsFile(path); !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := readArtistsFile(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for a missing file, got %v", err)
	}
}

func TestReadArtistsFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artists.txt")
	if err := os.WriteFile(path, []byte("# nothing\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ids, err := readArtistsFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// An empty file still restricts the run: nil would mean every artist.
	if ids == nil || len(ids) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", ids)
	}
}

func TestRunOutcome(t *testing.T) {
	tests := map[string]struct {
		err  error
		want string
	}{
		"ok":        {nil, store.RunCompleted},
		"failed":    {util.ErrDiskFull, store.RunFailed},
		"cancelled": {fmt.Errorf("process: %w", context.Canceled), store.RunCancelled},
	}
	for name, tt := range tests {
		if got := runOutcome(tt.err); got != tt.want {
			t.Errorf("%s: runOutcome = %s, want %s", name, got, tt.want)
		}
	}
}

func TestFinishRunLogsStageFailure(t *testing.T) {
	logger, err := report.NewEventLogger(t.TempDir(), report.LevelInfo)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	s := &session{cfg: cfg, logger: logger}

	runErr := fmt.Errorf("index release: %w", util.ErrDiskFull)
	s.finishRun("", "index", store.RunCounters{Considered: 1, Failed: 1}, time.Now(), runErr)
	s.finishRun("", "process", store.RunCounters{}, time.Now(), context.Canceled)
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(logger.Path())
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var failures []report.Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev report.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("invalid event line %q: %v", sc.Text(), err)
		}
		if ev.Event == report.EventError {
			failures = append(failures, ev)
		}
	}
	// A cancelled run is not an error.
	if len(failures) != 1 {
		t.Fatalf("expected 1 error event, got %d", len(failures))
	}
	if failures[0].SrcPath != cfg.Paths.DataDir {
		t.Errorf("src_path = %q, want %q", failures[0].SrcPath, cfg.Paths.DataDir)
	}
	if failures[0].Error != runErr.Error() || failures[0].Level != report.LevelError {
		t.Errorf("unexpected event %+v", failures[0])
	}
}
