// Package engine joins artists with their release groups and releases via
// the byte-offset indexes and writes one document set per artist.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/franz/mbflat/internal/flatfile"
	"github.com/franz/mbflat/internal/index"
	"github.com/franz/mbflat/internal/normalize"
	"github.com/franz/mbflat/internal/report"
	"github.com/franz/mbflat/internal/util"
)

// Ledger records per-artist completion. *store.Store implements it.
type Ledger interface {
	IsCompleted(artistID string) (bool, error)
	MarkCompleted(artistID, runID string) error
	MarkFailed(artistID, runID, reason string) error
	FailedIDs() ([]string, error)
}

// SearchIndex receives the search rows of a completed artist. *search.DB
// implements it.
type SearchIndex interface {
	Upsert(artist *normalize.ArtistDocument, albums []*normalize.AlbumDocument) error
}

// DocumentWriter persists the documents of one artist and returns the
// artist document path. *Writer implements it.
type DocumentWriter interface {
	Write(artist *normalize.ArtistDocument, albums []*normalize.AlbumDocument) (string, error)
}

// Outcome is how one artist settled.
type Outcome int

const (
	Completed Outcome = iota
	Skipped
	Filtered
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Skipped:
		return "skipped"
	case Filtered:
		return "filtered"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Options are the processing settings of one run.
type Options struct {
	Workers               int
	MaxArtists            int // 0 = no limit
	IncludeReleaseTypes   []string
	ExcludeSecondaryTypes []string
	IncludeArtistTypes    []string
	OnlyFailed            bool
	ShowProgress          bool
}

// Config holds the engine's dependencies
type Config struct {
	Indexes *index.Set
	Files   map[index.EntityType]flatfile.Reader
	Ledger  Ledger
	Search  SearchIndex // optional
	Writer  DocumentWriter
	Options Options
	Logger  *report.EventLogger
	RunID   string

	// Observer, if set, is called from the worker after each artist settles.
	Observer func(artistID uuid.UUID, outcome Outcome)
}

// Engine processes artists one at a time (or Workers at a time).
type Engine struct {
	indexes  *index.Set
	files    map[index.EntityType]flatfile.Reader
	ledger   Ledger
	search   SearchIndex
	writer   DocumentWriter
	opts     Options
	filter   *Filter
	logger   *report.EventLogger
	runID    string
	observer func(uuid.UUID, Outcome)
}

// Result summarizes a Process call
type Result struct {
	Considered int
	Completed  int
	Failed     int
	Skipped    int
	Filtered   int
	Albums     int
	Duration   time.Duration
}

// Counters returns the result as a name -> count map for event logs.
func (r *Result) Counters() map[string]int {
	return map[string]int{
		"considered": r.Considered,
		"completed":  r.Completed,
		"failed":     r.Failed,
		"skipped":    r.Skipped,
		"filtered":   r.Filtered,
		"albums":     r.Albums,
	}
}

// New creates an engine. Missing required dependencies are configuration
// errors.
func New(cfg *Config) (*Engine, error) {
	if cfg.Indexes == nil || cfg.Indexes.Artists == nil || cfg.Indexes.ArtistReleaseGroups == nil ||
		cfg.Indexes.ReleaseGroupReleases == nil {
		return nil, fmt.Errorf("%w: engine needs a complete index set", util.ErrInvalidConfig)
	}
	for _, e := range index.AllEntities {
		if cfg.Files[e] == nil {
			return nil, fmt.Errorf("%w: no flat file reader for %s", util.ErrInvalidConfig, e)
		}
	}
	if cfg.Ledger == nil || cfg.Writer == nil {
		return nil, fmt.Errorf("%w: engine needs a ledger and a writer", util.ErrInvalidConfig)
	}
	opts := cfg.Options
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Engine{
		indexes:  cfg.Indexes,
		files:    cfg.Files,
		ledger:   cfg.Ledger,
		search:   cfg.Search,
		writer:   cfg.Writer,
		opts:     opts,
		filter:   NewFilter(&opts),
		logger:   cfg.Logger,
		runID:    cfg.RunID,
		observer: cfg.Observer,
	}, nil
}

// Universe returns the artists a run considers: universe (or every indexed
// artist, in MBID order, when nil), narrowed to failed artists with
// OnlyFailed and cut to MaxArtists.
func (e *Engine) Universe(universe []uuid.UUID) ([]uuid.UUID, error) {
	if universe == nil {
		universe = e.indexes.Artists.SortedIDs()
	}
	if e.opts.OnlyFailed {
		ids, err := e.ledger.FailedIDs()
		if err != nil {
			return nil, fmt.Errorf("load failed artists: %w", err)
		}
		failed := make(map[uuid.UUID]struct{}, len(ids))
		for _, s := range ids {
			if id, err := uuid.Parse(s); err == nil {
				failed[id] = struct{}{}
			}
		}
		kept := make([]uuid.UUID, 0, len(failed))
		for _, id := range universe {
			if _, ok := failed[id]; ok {
				kept = append(kept, id)
			}
		}
		universe = kept
	}
	if e.opts.MaxArtists > 0 && len(universe) > e.opts.MaxArtists {
		universe = universe[:e.opts.MaxArtists]
	}
	return universe, nil
}

type counters struct {
	considered atomic.Int64
	completed  atomic.Int64
	failed     atomic.Int64
	skipped    atomic.Int64
	filtered   atomic.Int64
	albums     atomic.Int64
}

// Process runs the join for every artist of universe. Entity-scoped
// failures are recorded and the run continues; any other error stops the
// run and is returned together with the partial result. Cancellation is
// honoured between artists and reported as ctx.Err().
func (e *Engine) Process(ctx context.Context, universe []uuid.UUID) (*Result, error) {
	start := time.Now()
	ids, err := e.Universe(universe)
	if err != nil {
		return nil, err
	}
	util.InfoLog("Processing %s artists with %d worker(s)", util.FormatCount(len(ids)), e.opts.Workers)

	var c counters
	progress := util.NewProgress("Processing artists", int64(len(ids)), false, e.opts.ShowProgress)

	arenas := make(chan *arena, e.opts.Workers)
	for i := 0; i < e.opts.Workers; i++ {
		arenas <- newArena()
	}

	run := func(ctx context.Context, id uuid.UUID) error {
		if ctx.Err() != nil {
			return nil
		}
		a := <-arenas
		defer func() { arenas <- a }()

		c.considered.Add(1)
		outcome, albums, err := e.processArtist(id, a)
		if err != nil {
			return err
		}
		switch outcome {
		case Completed:
			c.completed.Add(1)
			c.albums.Add(int64(albums))
		case Skipped:
			c.skipped.Add(1)
		case Filtered:
			c.filtered.Add(1)
		case Failed:
			c.failed.Add(1)
		}
		progress.Add(1)
		if e.observer != nil {
			e.observer(id, outcome)
		}
		return nil
	}

	var runErr error
	if e.opts.Workers == 1 {
		for _, id := range ids {
			if ctx.Err() != nil {
				break
			}
			if runErr = run(ctx, id); runErr != nil {
				break
			}
		}
	} else {
		p := pool.New().WithMaxGoroutines(e.opts.Workers).WithContext(ctx).WithCancelOnError().WithFirstError()
		for _, id := range ids {
			if ctx.Err() != nil {
				break
			}
			p.Go(func(ctx context.Context) error { return run(ctx, id) })
		}
		runErr = p.Wait()
	}
	progress.Finish()

	res := &Result{
		Considered: int(c.considered.Load()),
		Completed:  int(c.completed.Load()),
		Failed:     int(c.failed.Load()),
		Skipped:    int(c.skipped.Load()),
		Filtered:   int(c.filtered.Load()),
		Albums:     int(c.albums.Load()),
		Duration:   time.Since(start),
	}
	if runErr != nil {
		return res, runErr
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// processArtist settles one artist. Only infrastructure errors are
// returned; entity-scoped ones become a Failed outcome.
func (e *Engine) processArtist(id uuid.UUID, a *arena) (Outcome, int, error) {
	start := time.Now()
	key := id.String()

	done, err := e.ledger.IsCompleted(key)
	if err != nil {
		return 0, 0, fmt.Errorf("ledger: %w", err)
	}
	if done {
		e.logger.LogSkip(key, "already completed")
		return Skipped, 0, nil
	}

	j, err := e.join(id, a)
	if err != nil {
		if !util.IsEntityScoped(err) {
			return 0, 0, err
		}
		util.WarnLog("Artist %s failed: %v", key, err)
		e.logger.LogFailure(string(index.Artist), key, err)
		if err := e.ledger.MarkFailed(key, e.runID, err.Error()); err != nil {
			return 0, 0, fmt.Errorf("ledger: %w", err)
		}
		return Failed, 0, nil
	}
	if j.filtered != "" {
		e.logger.LogFilter(string(index.Artist), key, j.filtered)
		return Filtered, 0, nil
	}
	if j.drifted > 0 {
		util.DebugLog("Artist %s: ignored %d records reassigned by later duplicates", key, j.drifted)
	}

	doc := normalize.Artist(j.artist, j.albums)
	path, err := e.writer.Write(doc, j.albums)
	if err != nil {
		return 0, 0, fmt.Errorf("write artist %s: %w", key, err)
	}
	if e.search != nil {
		if err := e.search.Upsert(doc, j.albums); err != nil {
			return 0, 0, fmt.Errorf("search rows for %s: %w", key, err)
		}
	}
	if err := e.ledger.MarkCompleted(key, e.runID); err != nil {
		return 0, 0, fmt.Errorf("ledger: %w", err)
	}
	e.logger.LogArtist(key, path, len(j.albums), time.Since(start))
	return Completed, len(j.albums), nil
}

// IsCancellation reports whether err only signals that the run was stopped.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
