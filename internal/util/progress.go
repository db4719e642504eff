package util

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Progress reports advancement of a long stage. On a terminal it draws a
// progress bar; otherwise it prints a log line every interval.
type Progress struct {
	bar      *progressbar.ProgressBar
	label    string
	total    int64
	bytes    bool
	current  atomic.Int64
	interval time.Duration
	mu       sync.Mutex
	lastLog  time.Time
	start    time.Time
}

// NewProgress creates a progress reporter. total may be -1 when unknown.
// bytes switches the display to byte units.
func NewProgress(label string, total int64, bytes bool, enabled bool) *Progress {
	p := &Progress{
		label:    label,
		total:    total,
		bytes:    bytes,
		interval: 10 * time.Second,
		start:    time.Now(),
	}
	p.lastLog = p.start

	if enabled && IsTerminal(os.Stdout.Fd()) && !IsQuiet() {
		opts := []progressbar.Option{
			progressbar.OptionSetDescription(label),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(200 * time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionShowCount(),
		}
		if bytes {
			opts = append(opts, progressbar.OptionShowBytes(true))
		} else {
			opts = append(opts, progressbar.OptionShowIts(), progressbar.OptionSetItsString("artists"))
		}
		p.bar = progressbar.NewOptions64(total, opts...)
	}
	return p
}

// Set moves the progress to n.
func (p *Progress) Set(n int64) {
	if p == nil {
		return
	}
	p.current.Store(n)
	if p.bar != nil {
		_ = p.bar.Set64(n)
		return
	}
	p.maybeLog()
}

// Add advances the progress by n.
func (p *Progress) Add(n int64) {
	if p == nil {
		return
	}
	p.current.Add(n)
	if p.bar != nil {
		_ = p.bar.Add64(n)
		return
	}
	p.maybeLog()
}

func (p *Progress) maybeLog() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if time.Since(p.lastLog) < p.interval {
		return
	}
	p.lastLog = time.Now()
	InfoLog("%s: %s", p.label, p.describe())
}

func (p *Progress) describe() string {
	cur := p.current.Load()
	format := func(n int64) string {
		if p.bytes {
			return FormatBytes(n)
		}
		return FormatCount(int(n))
	}
	if p.total > 0 {
		pct := float64(cur) * 100 / float64(p.total)
		return format(cur) + " / " + format(p.total) + " (" + formatPct(pct) + ")"
	}
	return format(cur)
}

func formatPct(pct float64) string {
	return FormatFloat1(pct) + "%"
}

// Finish clears the bar.
func (p *Progress) Finish() {
	if p == nil || p.bar == nil {
		return
	}
	_ = p.bar.Finish()
}
