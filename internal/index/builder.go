package index

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/buger/jsonparser"
	"github.com/franz/mbflat/internal/flatfile"
	"github.com/franz/mbflat/internal/report"
	"github.com/franz/mbflat/internal/util"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Config holds index builder configuration
type Config struct {
	IndexDir     string
	Force        bool // rebuild even if the manifest matches the source
	BufferSize   int
	ShowProgress bool
	Logger       *report.EventLogger
}

// Builder creates offset and reverse indexes from flat files.
type Builder struct {
	config *Config
}

// NewBuilder creates a new index builder
func NewBuilder(cfg *Config) *Builder {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = flatfile.DefaultBufferSize
	}
	return &Builder{config: cfg}
}

// BuildAll builds the index of every entity found in dataDir in parallel.
func (b *Builder) BuildAll(ctx context.Context, dataDir string, entities []EntityType) ([]*BuildResult, error) {
	results := make([]*BuildResult, len(entities))
	g, gctx := errgroup.WithContext(ctx)
	for i, e := range entities {
		g.Go(func() error {
			res, err := b.Build(gctx, e, filepath.Join(dataDir, string(e)))
			if err != nil {
				return fmt.Errorf("index %s: %w", e, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Build indexes sourcePath for entity. If a completed index for the same
// source version exists the build is skipped.
func (b *Builder) Build(ctx context.Context, entity EntityType, sourcePath string) (*BuildResult, error) {
	start := time.Now()
	res := &BuildResult{Entity: entity, Source: sourcePath}

	fp, err := util.Fingerprint(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: flat file %s", util.ErrNotFound, sourcePath)
		}
		return nil, err
	}

	if !b.config.Force {
		if m, err := LoadManifest(b.config.IndexDir, entity); err == nil {
			if m.Matches(sourcePath, fp) {
				util.InfoLog("Index for %s is up to date (%s records), skipping", entity, util.FormatCount(m.Records))
				res.Records, res.Malformed, res.Duplicates, res.Orphans = m.Records, m.Malformed, m.Duplicates, m.Orphans
				res.Skipped = true
				res.Duration = time.Since(start)
				b.config.Logger.LogIndex(string(entity), sourcePath, m.Records, m.Malformed, m.Duplicates, true, res.Duration, nil)
				return res, nil
			}
			util.WarnLog("Index for %s is stale (source changed), rebuilding", entity)
		}
	}

	if err := util.RetryableMkdirAll(b.config.IndexDir, 0o755, nil); err != nil {
		return nil, util.ClassifyFSError(err)
	}
	// Remove the marker first: a crash mid-build must not leave the
	// previous manifest pointing at half-written files.
	if err := os.Remove(manifestPath(b.config.IndexDir, entity)); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	offsets, children, err := b.scan(ctx, entity, sourcePath, fp.Size, res)
	if err != nil {
		b.config.Logger.LogIndex(string(entity), sourcePath, res.Records, res.Malformed, res.Duplicates, false, time.Since(start), err)
		return nil, err
	}

	if err := saveOffsets(b.config.IndexDir, offsets); err != nil {
		return nil, err
	}
	if children != nil {
		if err := saveChildren(b.config.IndexDir, children); err != nil {
			return nil, err
		}
	}

	m := &Manifest{
		Version:     FormatVersion,
		Entity:      entity,
		Source:      sourcePath,
		Fingerprint: fp,
		Records:     res.Records,
		Malformed:   res.Malformed,
		Duplicates:  res.Duplicates,
		Orphans:     res.Orphans,
		Parents:     children.Len(),
		BuiltAt:     time.Now().UTC(),
	}
	if err := saveManifest(b.config.IndexDir, m); err != nil {
		return nil, err
	}

	res.Duration = time.Since(start)
	b.config.Logger.LogIndex(string(entity), sourcePath, res.Records, res.Malformed, res.Duplicates, false, res.Duration, nil)
	util.SuccessLog("Indexed %s: %s records, %d malformed, %d duplicates in %v",
		entity, util.FormatCount(res.Records), res.Malformed, res.Duplicates, res.Duration.Round(time.Millisecond))
	return res, nil
}

// scan makes the single sequential pass over the flat file.
func (b *Builder) scan(ctx context.Context, entity EntityType, sourcePath string, size int64, res *BuildResult) (*OffsetIndex, *ReverseIndex, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	// rough guess from typical record sizes, avoids most map growth
	offsets := newOffsetIndex(entity, int(min(size/2048, 1<<24)))
	var children *ReverseIndex
	parentPath := entity.parentPath()
	if parentPath != nil {
		children = newReverseIndex(entity)
	}

	progress := util.NewProgress("Indexing "+string(entity), size, true, b.config.ShowProgress)
	defer progress.Finish()

	sc := flatfile.NewScanner(f, b.config.BufferSize)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if lineNo%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			progress.Set(sc.Position())
		}

		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		id, err := extractID(line, "id")
		if err != nil {
			res.Malformed++
			util.DebugLog("%s line %d: %v", entity, lineNo, err)
			continue
		}

		_, dup := offsets.entries[id]
		if dup {
			res.Duplicates++
		} else {
			res.Records++
		}
		offsets.entries[id] = Location{Offset: sc.Offset(), Length: int64(len(line))}

		if children == nil {
			continue
		}
		parent, err := extractID(line, parentPath...)
		if err != nil {
			res.Orphans++
			continue
		}
		children.add(parent, id, dup)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", sourcePath, err)
	}
	progress.Set(sc.Position())
	res.Bytes = sc.Position()
	return offsets, children, nil
}

// extractID reads the string at path and parses it as an MBID.
func extractID(line []byte, path ...string) (uuid.UUID, error) {
	raw, typ, _, err := jsonparser.Get(line, path...)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", util.ErrMalformedRecord, err)
	}
	if typ != jsonparser.String {
		return uuid.Nil, fmt.Errorf("%w: %v is a %s, not a string", util.ErrMalformedRecord, path, typ)
	}
	id, err := uuid.ParseBytes(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", util.ErrMalformedRecord, err)
	}
	return id, nil
}

// ExtractID returns the MBID stored in the "id" field of a raw record.
func ExtractID(line []byte) (uuid.UUID, error) {
	return extractID(line, "id")
}
