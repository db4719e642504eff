// Package config turns viper settings into an explicit Config value that is
// passed to every pipeline stage.
package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/franz/mbflat/internal/util"
	"github.com/spf13/viper"
)

// Entity names, in dependency order.
var Entities = []string{"artist", "release-group", "release"}

// Reader modes for random access into flat files.
const (
	ReaderAuto  = "auto"
	ReaderMmap  = "mmap"
	ReaderPread = "pread"
)

// Config is the fully resolved configuration of one invocation.
type Config struct {
	Paths      Paths
	Extract    Extract
	Index      Index
	Processing Processing
	Logging    Logging
}

type Paths struct {
	DumpDir      string
	DataDir      string
	IndexDir     string
	OutputDir    string
	StateDB      string
	ArtifactsDir string
}

type Extract struct {
	Entities        []string
	Manifest        string // checksum file; empty means look for MD5SUMS/SHA256SUMS in DumpDir
	VerifyChecksums bool
	RequireChecksum bool
	BufferSize      int
}

type Index struct {
	Force        bool
	Reader       string
	ShowProgress bool
}

type Processing struct {
	Workers               int
	MaxArtists            int
	IncludeReleaseTypes   []string
	ExcludeSecondaryTypes []string
	IncludeArtistTypes    []string
	SubdirectoryDepth     int
	OnlyFailed            bool
	ArtistsFile           string
}

type Logging struct {
	Verbose    bool
	Quiet      bool
	EventLevel string
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("paths.dump_dir", "dumps")
	v.SetDefault("paths.data_dir", "data")
	v.SetDefault("paths.index_dir", "indexes")
	v.SetDefault("paths.output_dir", "output")
	v.SetDefault("paths.artifacts_dir", "artifacts")
	v.SetDefault("db", "mbflat-state.db")

	v.SetDefault("extract.entities", Entities)
	v.SetDefault("extract.verify_checksums", true)
	v.SetDefault("extract.require_checksum", false)
	v.SetDefault("extract.buffer_size", 4<<20)

	v.SetDefault("index.reader", ReaderAuto)
	v.SetDefault("index.progress", true)

	v.SetDefault("processing.workers", 1)
	v.SetDefault("processing.include_release_types", []string{"Album"})
	v.SetDefault("processing.exclude_secondary_types", []string{"Live", "Compilation"})
	v.SetDefault("processing.include_artist_types", []string{})
	v.SetDefault("processing.subdirectory_depth", 2)

	v.SetDefault("logging.event_level", "info")
}

// Load reads v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Paths: Paths{
			DumpDir:      v.GetString("paths.dump_dir"),
			DataDir:      v.GetString("paths.data_dir"),
			IndexDir:     v.GetString("paths.index_dir"),
			OutputDir:    v.GetString("paths.output_dir"),
			StateDB:      v.GetString("db"),
			ArtifactsDir: v.GetString("paths.artifacts_dir"),
		},
		Extract: Extract{
			Entities:        v.GetStringSlice("extract.entities"),
			Manifest:        v.GetString("extract.manifest"),
			VerifyChecksums: v.GetBool("extract.verify_checksums"),
			RequireChecksum: v.GetBool("extract.require_checksum"),
			BufferSize:      v.GetInt("extract.buffer_size"),
		},
		Index: Index{
			Force:        v.GetBool("index.force"),
			Reader:       strings.ToLower(v.GetString("index.reader")),
			ShowProgress: v.GetBool("index.progress"),
		},
		Processing: Processing{
			Workers:               v.GetInt("processing.workers"),
			MaxArtists:            v.GetInt("processing.max_artists"),
			IncludeReleaseTypes:   v.GetStringSlice("processing.include_release_types"),
			ExcludeSecondaryTypes: v.GetStringSlice("processing.exclude_secondary_types"),
			IncludeArtistTypes:    v.GetStringSlice("processing.include_artist_types"),
			SubdirectoryDepth:     v.GetInt("processing.subdirectory_depth"),
			OnlyFailed:            v.GetBool("processing.only_failed"),
			ArtistsFile:           v.GetString("processing.artists_file"),
		},
		Logging: Logging{
			Verbose:    v.GetBool("verbose"),
			Quiet:      v.GetBool("quiet"),
			EventLevel: strings.ToLower(v.GetString("logging.event_level")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration produced by the registered defaults alone.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := Load(v)
	if err != nil {
		panic(fmt.Sprintf("default configuration invalid: %v", err))
	}
	return cfg
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Processing.Workers < 1 {
		return fmt.Errorf("%w: processing.workers must be >= 1, got %d", util.ErrInvalidConfig, c.Processing.Workers)
	}
	if c.Processing.Workers > 4*runtime.NumCPU() {
		util.WarnLog("processing.workers=%d is far above the CPU count (%d)", c.Processing.Workers, runtime.NumCPU())
	}
	if c.Processing.MaxArtists < 0 {
		return fmt.Errorf("%w: processing.max_artists must be >= 0", util.ErrInvalidConfig)
	}
	if c.Processing.SubdirectoryDepth < 0 || c.Processing.SubdirectoryDepth > 8 {
		return fmt.Errorf("%w: processing.subdirectory_depth must be in [0,8], got %d",
			util.ErrInvalidConfig, c.Processing.SubdirectoryDepth)
	}
	switch c.Index.Reader {
	case ReaderAuto, ReaderMmap, ReaderPread:
	default:
		return fmt.Errorf("%w: index.reader must be auto, mmap or pread, got %q", util.ErrInvalidConfig, c.Index.Reader)
	}
	for _, e := range c.Extract.Entities {
		if !slices.Contains(Entities, e) {
			return fmt.Errorf("%w: unknown entity %q", util.ErrInvalidConfig, e)
		}
	}
	switch c.Logging.EventLevel {
	case "debug", "info", "warning", "error":
	default:
		return fmt.Errorf("%w: logging.event_level must be debug, info, warning or error", util.ErrInvalidConfig)
	}
	for name, dir := range map[string]string{
		"paths.data_dir":   c.Paths.DataDir,
		"paths.index_dir":  c.Paths.IndexDir,
		"paths.output_dir": c.Paths.OutputDir,
	} {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("%w: %s must not be empty", util.ErrInvalidConfig, name)
		}
	}
	return nil
}

// ManifestPath returns the checksum manifest to use, or "" if none exists.
func (c *Config) ManifestPath(exists func(string) bool) string {
	if c.Extract.Manifest != "" {
		return c.Extract.Manifest
	}
	for _, name := range []string{"SHA256SUMS", "MD5SUMS"} {
		p := filepath.Join(c.Paths.DumpDir, name)
		if exists(p) {
			return p
		}
	}
	return ""
}

// SearchDBPath returns the path of the search database for entity.
func (c *Config) SearchDBPath(entity string) string {
	return filepath.Join(c.Paths.OutputDir, entity+".db")
}
