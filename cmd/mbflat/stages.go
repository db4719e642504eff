package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/franz/mbflat/internal/archive"
	"github.com/franz/mbflat/internal/engine"
	"github.com/franz/mbflat/internal/flatfile"
	"github.com/franz/mbflat/internal/index"
	"github.com/franz/mbflat/internal/search"
	"github.com/franz/mbflat/internal/store"
	"github.com/franz/mbflat/internal/util"
	"github.com/google/uuid"
)

func extractStage(ctx context.Context, s *session) error {
	cfg := s.cfg
	runID, start := s.startRun("extract")

	var manifest *archive.Manifest
	if path := cfg.ManifestPath(fileExists); path != "" {
		m, err := archive.LoadManifest(path)
		if err != nil {
			s.finishRun(runID, "extract", store.RunCounters{}, start, err)
			return err
		}
		util.InfoLog("Checksums: %s (%d entries)", path, m.Len())
		manifest = m
	} else if cfg.Extract.VerifyChecksums {
		util.WarnLog("No MD5SUMS or SHA256SUMS in %s", cfg.Paths.DumpDir)
	}

	ex := archive.New(&archive.Config{
		Manifest:        manifest,
		VerifyChecksums: cfg.Extract.VerifyChecksums,
		RequireChecksum: cfg.Extract.RequireChecksum,
		BufferSize:      cfg.Extract.BufferSize,
		Logger:          s.logger,
	})
	jobs := archive.JobsFor(cfg.Paths.DumpDir, cfg.Paths.DataDir, cfg.Extract.Entities)
	results, err := ex.ExtractAll(ctx, jobs)

	var c store.RunCounters
	var written int64
	for _, r := range results {
		c.Considered++
		switch {
		case r.Err != nil:
			c.Failed++
		case r.Skipped:
			c.Skipped++
		default:
			c.Completed++
			written += r.Bytes
		}
	}
	s.finishRun(runID, "extract", c, start, err)

	util.InfoLog("Extract: %d extracted (%s), %d skipped, %d failed in %v",
		c.Completed, util.FormatBytes(written), c.Skipped, c.Failed, time.Since(start).Round(time.Millisecond))
	return err
}

func indexStage(ctx context.Context, s *session) error {
	cfg := s.cfg
	runID, start := s.startRun("index")

	entities := make([]index.EntityType, 0, len(cfg.Extract.Entities))
	for _, name := range cfg.Extract.Entities {
		e, err := index.ParseEntity(name)
		if err != nil {
			s.finishRun(runID, "index", store.RunCounters{}, start, err)
			return err
		}
		entities = append(entities, e)
	}

	b := index.NewBuilder(&index.Config{
		IndexDir:     cfg.Paths.IndexDir,
		Force:        cfg.Index.Force,
		BufferSize:   cfg.Extract.BufferSize,
		ShowProgress: cfg.Index.ShowProgress,
		Logger:       s.logger,
	})
	results, err := b.BuildAll(ctx, cfg.Paths.DataDir, entities)

	c := store.RunCounters{Considered: len(entities)}
	for _, r := range results {
		if r.Skipped {
			c.Skipped++
		} else {
			c.Completed++
		}
	}
	if err != nil {
		c.Failed = len(entities) - c.Completed - c.Skipped
	}
	s.finishRun(runID, "index", c, start, err)
	if err != nil {
		return err
	}

	util.InfoLog("Index: %d built, %d up to date in %v", c.Completed, c.Skipped, time.Since(start).Round(time.Millisecond))
	return nil
}

func processStage(ctx context.Context, s *session) error {
	runID, start := s.startRun("process")
	res, err := processArtists(ctx, s, runID)

	var c store.RunCounters
	if res != nil {
		c = store.RunCounters{
			Considered: res.Considered,
			Completed:  res.Completed,
			Failed:     res.Failed,
			Skipped:    res.Skipped,
			Filtered:   res.Filtered,
			Albums:     res.Albums,
		}
	}
	s.finishRun(runID, "process", c, start, err)

	if res != nil {
		util.InfoLog("Process: %d completed, %d failed, %d skipped, %d filtered, %s albums (%s)",
			res.Completed, res.Failed, res.Skipped, res.Filtered, util.FormatCount(res.Albums),
			util.FormatRate(res.Completed, res.Duration))
		if res.Failed > 0 {
			util.WarnLog("%d artists failed; see 'mbflat status' and rerun with --only-failed", res.Failed)
		}
	}
	return err
}

func processArtists(ctx context.Context, s *session, runID string) (*engine.Result, error) {
	cfg := s.cfg

	set, err := index.LoadSet(cfg.Paths.IndexDir)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			return nil, fmt.Errorf("indexes missing, run 'mbflat index' first: %w", err)
		}
		return nil, err
	}
	if err := set.CheckFresh(cfg.Paths.DataDir); err != nil {
		return nil, fmt.Errorf("%w (run 'mbflat index' to rebuild)", err)
	}

	files := make(map[index.EntityType]flatfile.Reader, len(index.AllEntities))
	for _, e := range index.AllEntities {
		r, err := flatfile.Open(filepath.Join(cfg.Paths.DataDir, string(e)), cfg.Index.Reader)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		util.DebugLog("Reading %s via %s", r.Path(), r.Mode())
		files[e] = r
	}

	if err := util.RetryableMkdirAll(cfg.Paths.OutputDir, 0o755, util.DefaultRetryConfig()); err != nil {
		return nil, util.ClassifyFSError(err)
	}
	rows, err := search.Open(cfg.SearchDBPath("artist"), cfg.SearchDBPath("release-group"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var universe []uuid.UUID
	if cfg.Processing.ArtistsFile != "" {
		if universe, err = readArtistsFile(cfg.Processing.ArtistsFile); err != nil {
			return nil, err
		}
		util.InfoLog("Restricting run to %d artists from %s", len(universe), cfg.Processing.ArtistsFile)
	}

	eng, err := engine.New(&engine.Config{
		Indexes: set,
		Files:   files,
		Ledger:  s.db,
		Search:  rows,
		Writer:  engine.NewWriter(cfg.Paths.OutputDir, cfg.Processing.SubdirectoryDepth),
		Options: engine.Options{
			Workers:               cfg.Processing.Workers,
			MaxArtists:            cfg.Processing.MaxArtists,
			IncludeReleaseTypes:   cfg.Processing.IncludeReleaseTypes,
			ExcludeSecondaryTypes: cfg.Processing.ExcludeSecondaryTypes,
			IncludeArtistTypes:    cfg.Processing.IncludeArtistTypes,
			OnlyFailed:            cfg.Processing.OnlyFailed,
			ShowProgress:          cfg.Index.ShowProgress,
		},
		Logger: s.logger,
		RunID:  runID,
	})
	if err != nil {
		return nil, err
	}
	return eng.Process(ctx, universe)
}

// readArtistsFile reads one MBID per line. Blank lines and lines starting
// with # are ignored.
func readArtistsFile(path string) ([]uuid.UUID, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: artists file: %v", util.ErrInvalidConfig, err)
	}
	defer f.Close()

	ids := []uuid.UUID{}
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, err := index.ParseMBID(line)
		if err != nil {
			return nil, fmt.Errorf("%w: %s:%d: %v", util.ErrInvalidConfig, path, n, err)
		}
		ids = append(ids, id)
	}
	return ids, sc.Err()
}
