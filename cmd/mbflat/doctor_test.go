package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/franz/mbflat/internal/archive"
	"github.com/franz/mbflat/internal/config"
	"github.com/franz/mbflat/internal/store"
)

func TestCheckSQLite(t *testing.T) {
	result := checkSQLite()

	if result.error {
		t.Errorf("SQLite check failed: %s", result.message)
	}
	if result.message == "" {
		t.Error("expected version information in message")
	}
}

func TestCheckDatabase_NonExistent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nonexistent.db")

	result := checkDatabase(dbPath)

	// Created on first run
	if result.error {
		t.Errorf("non-existent database check should not error: %s", result.message)
	}
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Error("doctor must not create the database")
	}
}

func TestCheckDatabase_Existing(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := db.MarkCompleted("a-1", "run"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	result := checkDatabase(dbPath)
	if result.error {
		t.Errorf("database check failed: %s", result.message)
	}
	if result.message == "" {
		t.Error("expected message with database info")
	}
}

func TestCheckDatabase_Empty(t *testing.T) {
	if result := checkDatabase(""); !result.warning {
		t.Error("expected warning for empty database path")
	}
}

func TestCheckDatabase_Directory(t *testing.T) {
	if result := checkDatabase(t.TempDir()); !result.error {
		t.Error("expected error when the database path is a directory")
	}
}

func TestCheckWritableDirectory(t *testing.T) {
	dir := t.TempDir()
	if result := checkWritableDirectory("Output directory", dir); result.error {
		t.Errorf("writable directory check failed: %s", result.message)
	}

	newDir := filepath.Join(dir, "new", "nested")
	if result := checkWritableDirectory("Output directory", newDir); result.error {
		t.Errorf("creating directory failed: %s", result.message)
	}
	if _, err := os.Stat(newDir); err != nil {
		t.Error("expected directory to be created")
	}

	filePath := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(filePath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := checkWritableDirectory("Output directory", filePath); !result.error {
		t.Error("expected error when path is a file, not a directory")
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	root := t.TempDir()
	cfg.Paths.DumpDir = filepath.Join(root, "dumps")
	cfg.Paths.DataDir = filepath.Join(root, "data")
	for _, d := range []string{cfg.Paths.DumpDir, cfg.Paths.DataDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return cfg
}

func TestCheckDumpDirectory(t *testing.T) {
	cfg := testConfig(t)

	if result := checkDumpDirectory(cfg); !result.error {
		t.Fatal("expected error with no archives")
	}

	// Archives for two entities, an already extracted flat file for the third.
	for _, e := range []string{"artist", "release-group"} {
		if err := os.WriteFile(filepath.Join(cfg.Paths.DumpDir, e+".tar.xz"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(cfg.Paths.DataDir, "release"), []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(cfg.Paths.DataDir, "release"+archive.MarkerSuffix)
	if err := os.WriteFile(marker, []byte(`{"archive":"release.tar.xz","bytes":3}`), 0o644); err != nil {
		t.Fatal(err)
	}

	result := checkDumpDirectory(cfg)
	if result.error || !result.warning {
		t.Errorf("expected a checksum warning, got %+v", result)
	}

	cfg.Extract.RequireChecksum = true
	if result := checkDumpDirectory(cfg); !result.error {
		t.Error("expected error when checksums are required but missing")
	}

	if err := os.WriteFile(filepath.Join(cfg.Paths.DumpDir, "MD5SUMS"), []byte("d41d8cd98f00b204e9800998ecf8427e  artist.tar.xz\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := checkDumpDirectory(cfg); result.error || result.warning {
		t.Errorf("expected clean result, got %+v", result)
	}
}

func TestCheckDiskSpace(t *testing.T) {
	result := checkDiskSpace(t.TempDir(), "test")

	if result.error {
		t.Errorf("disk space check failed: %s", result.message)
	}
	if result.message == "" {
		t.Error("expected message with disk space info")
	}
}

func TestCheckDiskSpace_NonExistent(t *testing.T) {
	result := checkDiskSpace("/nonexistent/path", "test")

	if !result.warning {
		t.Error("expected warning for non-existent path")
	}
}

func TestPrintResults(t *testing.T) {
	hasErrors, hasWarnings := printResults([]checkResult{{name: "a"}, {name: "b", warning: true}})
	if hasErrors || !hasWarnings {
		t.Errorf("got errors=%v warnings=%v", hasErrors, hasWarnings)
	}
	hasErrors, _ = printResults([]checkResult{{name: "c", error: true}})
	if !hasErrors {
		t.Error("expected errors")
	}
}
