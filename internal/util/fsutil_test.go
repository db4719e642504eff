package util

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "doc.json")

	for _, content := range []string{`{"v":1}`, `{"v":2}`} {
		if err := AtomicWriteFile(path, []byte(content), WriteOptions{Fsync: true}); err != nil {
			t.Fatalf("AtomicWriteFile: %v", err)
		}
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != content {
			t.Errorf("content = %q, want %q", got, content)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}
}

func TestShardPath(t *testing.T) {
	id := "a74b1b7f-71a5-4011-9441-d0b5e4122711"
	tests := []struct {
		depth int
		want  string
	}{
		{0, filepath.Join("out", id+".json")},
		{1, filepath.Join("out", "a7", id+".json")},
		{2, filepath.Join("out", "a7", "4b", id+".json")},
	}
	for _, tt := range tests {
		if got := ShardPath("out", id, ".json", tt.depth); got != tt.want {
			t.Errorf("ShardPath(depth=%d) = %s, want %s", tt.depth, got, tt.want)
		}
	}
}

func TestFingerprintChangesWithContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artist")
	if err := os.WriteFile(path, []byte("one\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	a, err := Fingerprint(path)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Fingerprint(path)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("fingerprint not stable: %+v vs %+v", a, b)
	}

	if err := os.WriteFile(path, []byte("two\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Fingerprint(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Hash == a.Hash {
		t.Error("fingerprint did not change after rewrite")
	}
}

func TestIsEntityScoped(t *testing.T) {
	if !IsEntityScoped(errors.Join(errors.New("x"), ErrMissingEntity)) {
		t.Error("missing entity should be entity scoped")
	}
	if IsEntityScoped(ErrDiskFull) {
		t.Error("disk full must not be entity scoped")
	}
}

func TestFormatBytes(t *testing.T) {
	if got := FormatBytes(1500); got != "1.5 kB" {
		t.Errorf("FormatBytes(1500) = %q", got)
	}
}
