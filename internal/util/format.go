package util

import (
	"time"

	"github.com/dustin/go-humanize"
)

// FormatBytes renders a byte count like "1.2 GB".
func FormatBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.Bytes(uint64(-n))
	}
	return humanize.Bytes(uint64(n))
}

// FormatCount renders an integer with thousands separators.
func FormatCount(n int) string {
	return humanize.Comma(int64(n))
}

// FormatFloat1 renders f with one decimal and thousands separators.
func FormatFloat1(f float64) string {
	return humanize.FormatFloat("#,###.#", f)
}

// FormatRate renders items per second over d.
func FormatRate(n int, d time.Duration) string {
	if d <= 0 {
		return "n/a"
	}
	return FormatFloat1(float64(n)/d.Seconds()) + "/s"
}
