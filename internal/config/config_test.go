package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/franz/mbflat/internal/util"
	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Processing.Workers != 1 {
		t.Errorf("Workers = %d, want 1", cfg.Processing.Workers)
	}
	if cfg.Processing.SubdirectoryDepth != 2 {
		t.Errorf("SubdirectoryDepth = %d, want 2", cfg.Processing.SubdirectoryDepth)
	}
	if cfg.Index.Reader != ReaderAuto {
		t.Errorf("Reader = %q, want auto", cfg.Index.Reader)
	}
	if len(cfg.Extract.Entities) != 3 {
		t.Errorf("Entities = %v", cfg.Extract.Entities)
	}
	if cfg.Paths.StateDB != "mbflat-state.db" {
		t.Errorf("StateDB = %q", cfg.Paths.StateDB)
	}
	if got := cfg.Processing.IncludeReleaseTypes; len(got) != 1 || got[0] != "Album" {
		t.Errorf("IncludeReleaseTypes = %v, want [Album]", got)
	}
	if got := cfg.Processing.ExcludeSecondaryTypes; len(got) != 2 || got[0] != "Live" || got[1] != "Compilation" {
		t.Errorf("ExcludeSecondaryTypes = %v, want [Live Compilation]", got)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yaml := `
paths:
  output_dir: /srv/out
processing:
  workers: 4
  max_artists: 100
  include_release_types: [Album]
  exclude_secondary_types: [Live, Compilation]
`
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(yaml)); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.OutputDir != "/srv/out" {
		t.Errorf("OutputDir = %q", cfg.Paths.OutputDir)
	}
	if cfg.Processing.Workers != 4 || cfg.Processing.MaxArtists != 100 {
		t.Errorf("Processing = %+v", cfg.Processing)
	}
	if got := cfg.Processing.ExcludeSecondaryTypes; len(got) != 2 || got[0] != "Live" {
		t.Errorf("ExcludeSecondaryTypes = %v", got)
	}
	if cfg.SearchDBPath("artist") != filepath.Join("/srv/out", "artist.db") {
		t.Errorf("SearchDBPath = %s", cfg.SearchDBPath("artist"))
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Processing.Workers = 0 }},
		{"negative max artists", func(c *Config) { c.Processing.MaxArtists = -1 }},
		{"bad reader", func(c *Config) { c.Index.Reader = "splice" }},
		{"deep shards", func(c *Config) { c.Processing.SubdirectoryDepth = 9 }},
		{"unknown entity", func(c *Config) { c.Extract.Entities = []string{"label"} }},
		{"empty output", func(c *Config) { c.Paths.OutputDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, util.ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestManifestPath(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Paths.DumpDir = dir

	exists := func(p string) bool { _, err := os.Stat(p); return err == nil }
	if got := cfg.ManifestPath(exists); got != "" {
		t.Errorf("ManifestPath with no files = %q", got)
	}

	md5 := filepath.Join(dir, "MD5SUMS")
	if err := os.WriteFile(md5, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if got := cfg.ManifestPath(exists); got != md5 {
		t.Errorf("ManifestPath = %q, want %q", got, md5)
	}
}
