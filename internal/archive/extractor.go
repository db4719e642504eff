// Package archive extracts flat dump files from compressed archives.
package archive

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/franz/mbflat/internal/report"
	"github.com/franz/mbflat/internal/util"
	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Config holds extractor configuration
type Config struct {
	Manifest        *Manifest
	VerifyChecksums bool
	RequireChecksum bool
	BufferSize      int
	Logger          *report.EventLogger
}

// Job describes one archive to extract.
type Job struct {
	Archive string // path to the archive
	Target  string // path of the flat file to produce
	Member  string // tar member to extract; default mbdump/<entity>
}

// Result describes the outcome of one job.
type Result struct {
	Job      Job
	Skipped  bool
	Verified bool
	Bytes    int64
	Duration time.Duration
	Err      error
}

// Extractor decompresses archives into flat files.
type Extractor struct {
	config *Config
}

// New creates a new extractor
func New(cfg *Config) *Extractor {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4 << 20
	}
	return &Extractor{config: cfg}
}

// JobsFor maps entity names to <dumpDir>/<entity>.tar.xz -> <dataDir>/<entity>.
func JobsFor(dumpDir, dataDir string, entities []string) []Job {
	jobs := make([]Job, 0, len(entities))
	for _, e := range entities {
		jobs = append(jobs, Job{
			Archive: filepath.Join(dumpDir, e+".tar.xz"),
			Target:  filepath.Join(dataDir, e),
			Member:  path.Join("mbdump", e),
		})
	}
	return jobs
}

// ExtractAll runs every job in order. Integrity and not-found failures only
// affect their own archive and are returned together once all jobs ran;
// any other error stops immediately.
func (e *Extractor) ExtractAll(ctx context.Context, jobs []Job) ([]*Result, error) {
	results := make([]*Result, 0, len(jobs))
	var archiveErrs *multierror.Error

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := e.Extract(ctx, job)
		if res == nil {
			res = &Result{Job: job}
		}
		res.Err = err
		results = append(results, res)

		if err == nil {
			continue
		}
		if errors.Is(err, util.ErrIntegrity) || errors.Is(err, util.ErrNotFound) {
			util.ErrorLog("Extract %s: %v", filepath.Base(job.Archive), err)
			archiveErrs = multierror.Append(archiveErrs, err)
			continue
		}
		return results, err
	}
	return results, archiveErrs.ErrorOrNil()
}

// Extract produces job.Target from job.Archive. A target with a matching
// completion marker is left alone.
func (e *Extractor) Extract(ctx context.Context, job Job) (*Result, error) {
	start := time.Now()
	res := &Result{Job: job}

	if _, err := os.Stat(job.Archive); err != nil {
		if os.IsNotExist(err) {
			err = fmt.Errorf("%w: archive %s", util.ErrNotFound, job.Archive)
		}
		e.config.Logger.LogExtract(job.Archive, job.Target, 0, false, time.Since(start), err)
		return res, err
	}

	done, err := IsExtracted(job.Target)
	if err != nil {
		return res, fmt.Errorf("check %s: %w", job.Target, err)
	}
	if done {
		util.InfoLog("Skipping %s: %s already extracted", filepath.Base(job.Archive), job.Target)
		res.Skipped = true
		res.Duration = time.Since(start)
		e.config.Logger.LogExtract(job.Archive, job.Target, 0, true, res.Duration, nil)
		return res, nil
	}

	if e.config.VerifyChecksums {
		verified, err := e.verify(job.Archive)
		if err != nil {
			e.config.Logger.LogExtract(job.Archive, job.Target, 0, false, time.Since(start), err)
			return res, err
		}
		res.Verified = verified
	}

	n, err := e.decompress(ctx, job)
	res.Bytes = n
	res.Duration = time.Since(start)
	e.config.Logger.LogExtract(job.Archive, job.Target, n, false, res.Duration, err)
	if err != nil {
		return res, err
	}

	util.SuccessLog("Extracted %s -> %s (%s in %v)", filepath.Base(job.Archive), job.Target,
		util.FormatBytes(n), res.Duration.Round(time.Millisecond))
	return res, nil
}

func (e *Extractor) verify(archive string) (bool, error) {
	sum, ok := e.config.Manifest.Lookup(archive)
	if !ok {
		if e.config.RequireChecksum {
			return false, fmt.Errorf("%w: no checksum recorded for %s", util.ErrIntegrity, filepath.Base(archive))
		}
		util.WarnLog("No checksum recorded for %s, skipping verification", filepath.Base(archive))
		return false, nil
	}
	util.InfoLog("Verifying %s checksum of %s", sum.Algorithm, filepath.Base(archive))
	if err := verifyChecksum(archive, sum, e.config.BufferSize); err != nil {
		return false, err
	}
	return true, nil
}

// decompress streams the archive member into <target>.partial and renames
// it into place once fully written.
func (e *Extractor) decompress(ctx context.Context, job Job) (int64, error) {
	f, err := os.Open(job.Archive)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	src, closeSrc, isTar, err := openStream(bufio.NewReaderSize(f, e.config.BufferSize), job.Archive)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", job.Archive, err)
	}
	defer closeSrc()

	if isTar {
		member := job.Member
		if member == "" {
			member = path.Join("mbdump", entityName(job.Archive))
		}
		src, err = findMember(tar.NewReader(src), member)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", job.Archive, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(job.Target), 0o755); err != nil {
		return 0, util.ClassifyFSError(err)
	}
	if err := removeMarker(job.Target); err != nil {
		return 0, util.ClassifyFSError(err)
	}
	partial := job.Target + util.PartialSuffix
	out, err := os.Create(partial)
	if err != nil {
		return 0, util.ClassifyFSError(err)
	}
	fail := func(err error) (int64, error) {
		out.Close()
		os.Remove(partial)
		return 0, util.ClassifyFSError(err)
	}

	n, err := io.CopyBuffer(out, &ctxReader{ctx: ctx, r: src}, make([]byte, e.config.BufferSize))
	if err != nil {
		return fail(fmt.Errorf("decompress %s: %w", job.Archive, err))
	}
	if err := out.Sync(); err != nil {
		return fail(fmt.Errorf("fsync %s: %w", partial, err))
	}
	if err := out.Close(); err != nil {
		os.Remove(partial)
		return 0, util.ClassifyFSError(err)
	}
	if err := util.RetryableRename(partial, job.Target, nil); err != nil {
		os.Remove(partial)
		return 0, err
	}
	if err := util.SyncDir(filepath.Dir(job.Target)); err != nil {
		return n, err
	}
	if err := writeMarker(job.Target, job.Archive, n); err != nil {
		return n, util.ClassifyFSError(err)
	}
	return n, nil
}

// openStream picks a decompressor from the archive's extension.
func openStream(r io.Reader, name string) (io.Reader, func(), bool, error) {
	lower := strings.ToLower(name)
	isTar := strings.Contains(filepath.Base(lower), ".tar") || strings.HasSuffix(lower, ".tgz")
	noop := func() {}

	switch {
	case strings.HasSuffix(lower, ".xz"):
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, noop, false, err
		}
		return xr, noop, isTar, nil
	case strings.HasSuffix(lower, ".gz"), strings.HasSuffix(lower, ".tgz"):
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, noop, false, err
		}
		return gr, func() { gr.Close() }, isTar, nil
	case strings.HasSuffix(lower, ".zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, noop, false, err
		}
		return zr, zr.Close, isTar, nil
	case strings.HasSuffix(lower, ".tar"):
		return r, noop, true, nil
	default:
		return nil, noop, false, fmt.Errorf("unsupported archive format: %s", filepath.Base(name))
	}
}

func findMember(tr *tar.Reader, member string) (io.Reader, error) {
	want := strings.TrimPrefix(path.Clean(member), "./")
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: member %s", util.ErrNotFound, member)
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if strings.TrimPrefix(path.Clean(hdr.Name), "./") == want {
			return tr, nil
		}
	}
}

// entityName turns ".../release-group.tar.xz" into "release-group".
func entityName(archive string) string {
	base := filepath.Base(archive)
	if i := strings.Index(base, "."); i > 0 {
		return base[:i]
	}
	return base
}

// ctxReader checks for cancellation between reads.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
