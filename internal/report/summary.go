package report

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/franz/mbflat/internal/store"
	"github.com/franz/mbflat/internal/util"
)

// SummaryReport represents a complete summary report
type SummaryReport struct {
	GeneratedAt time.Time

	// Ledger statistics
	ArtistsCompleted int
	ArtistsFailed    int
	LastUpdate       time.Time

	// Index statistics, filled by the caller when indexes are present
	Indexes []IndexSummary

	// Search rows, filled by the caller when the search databases exist
	SearchArtists int
	SearchAlbums  int

	// Details
	Runs           []*store.Run
	TopFailures    []store.FailureReason
	RecentFailures []*store.ProgressEntry
	EventCounts    map[EventType]int

	// Metadata
	DatabasePath string
	EventLogPath string
	OutputDir    string
}

// IndexSummary describes one built entity index
type IndexSummary struct {
	Entity     string
	Records    int
	Malformed  int
	Duplicates int
	Orphans    int
	BuiltAt    time.Time
}

// GenerateSummaryReport creates a summary report from the ledger, the run
// history and (if given) an event log.
func GenerateSummaryReport(db *store.Store, eventLogPath string) (*SummaryReport, error) {
	report := &SummaryReport{
		GeneratedAt:  time.Now(),
		DatabasePath: db.Path(),
		EventLogPath: eventLogPath,
	}

	sum, err := db.Summary()
	if err != nil {
		return nil, fmt.Errorf("ledger summary: %w", err)
	}
	report.ArtistsCompleted = sum.Completed
	report.ArtistsFailed = sum.Failed
	report.LastUpdate = sum.LastUpdate

	if report.Runs, err = db.RecentRuns(10); err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	if report.TopFailures, err = db.TopFailureReasons(10); err != nil {
		return nil, fmt.Errorf("failure reasons: %w", err)
	}
	if report.RecentFailures, err = db.FailedArtists(20); err != nil {
		return nil, fmt.Errorf("failed artists: %w", err)
	}

	if eventLogPath != "" {
		counts, err := CountEvents(eventLogPath)
		if err != nil {
			util.WarnLog("Could not read event log %s: %v", eventLogPath, err)
		} else {
			report.EventCounts = counts
		}
	}
	return report, nil
}

// CountEvents tallies the events of a JSONL event log by type. Lines that
// do not decode are skipped.
func CountEvents(path string) (map[EventType]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	counts := make(map[EventType]int)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64<<10), 4<<20)
	for sc.Scan() {
		var ev struct {
			Event EventType `json:"event"`
		}
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil || ev.Event == "" {
			continue
		}
		counts[ev.Event]++
	}
	return counts, sc.Err()
}

// LatestEventLog returns the newest events-*.jsonl in dir, or "".
func LatestEventLog(dir string) string {
	matches, err := filepath.Glob(filepath.Join(dir, "events-*.jsonl"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return matches[len(matches)-1]
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var md strings.Builder

	md.WriteString("# mbflat - Summary Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))
	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**State DB:** `%s`\n\n", report.DatabasePath))
	}
	if report.OutputDir != "" {
		md.WriteString(fmt.Sprintf("**Output:** `%s`\n\n", report.OutputDir))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}
	md.WriteString("---\n\n")

	md.WriteString("## Overview\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Artists Completed | %s |\n", util.FormatCount(report.ArtistsCompleted)))
	if report.ArtistsFailed > 0 {
		md.WriteString(fmt.Sprintf("| Artists Failed | %s |\n", util.FormatCount(report.ArtistsFailed)))
	}
	if report.SearchArtists > 0 || report.SearchAlbums > 0 {
		md.WriteString(fmt.Sprintf("| Search Rows (artists) | %s |\n", util.FormatCount(report.SearchArtists)))
		md.WriteString(fmt.Sprintf("| Search Rows (albums) | %s |\n", util.FormatCount(report.SearchAlbums)))
	}
	if !report.LastUpdate.IsZero() {
		md.WriteString(fmt.Sprintf("| Last Ledger Update | %s |\n", report.LastUpdate.Format(time.RFC3339)))
	}
	md.WriteString("\n")

	if len(report.Indexes) > 0 {
		md.WriteString("## Indexes\n\n")
		md.WriteString("| Entity | Records | Malformed | Duplicates | Orphans | Built |\n")
		md.WriteString("|--------|---------|-----------|------------|---------|-------|\n")
		for _, ix := range report.Indexes {
			md.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %d | %s |\n",
				ix.Entity, util.FormatCount(ix.Records), ix.Malformed, ix.Duplicates, ix.Orphans,
				ix.BuiltAt.Format("2006-01-02 15:04")))
		}
		md.WriteString("\n")
	}

	if len(report.Runs) > 0 {
		md.WriteString("## Recent Runs\n\n")
		md.WriteString("| Run | Stage | Status | Completed | Failed | Skipped | Duration |\n")
		md.WriteString("|-----|-------|--------|-----------|--------|---------|----------|\n")
		for _, r := range report.Runs {
			md.WriteString(fmt.Sprintf("| `%s` | %s | %s | %d | %d | %d | %s |\n",
				r.RunID, r.Stage, r.Status, r.Counters.Completed, r.Counters.Failed, r.Counters.Skipped,
				r.Duration().Round(time.Second)))
		}
		md.WriteString("\n")
	}

	if len(report.EventCounts) > 0 {
		md.WriteString("## Events\n\n")
		md.WriteString("| Event | Count |\n")
		md.WriteString("|-------|-------|\n")
		types := make([]string, 0, len(report.EventCounts))
		for t := range report.EventCounts {
			types = append(types, string(t))
		}
		sort.Strings(types)
		for _, t := range types {
			md.WriteString(fmt.Sprintf("| %s | %d |\n", t, report.EventCounts[EventType(t)]))
		}
		md.WriteString("\n")
	}

	if len(report.TopFailures) > 0 {
		md.WriteString("## Top Failure Reasons\n\n")
		md.WriteString("| Count | Reason |\n")
		md.WriteString("|-------|--------|\n")
		for _, f := range report.TopFailures {
			md.WriteString(fmt.Sprintf("| %d | %s |\n", f.Count, truncate(f.Reason, 120)))
		}
		md.WriteString("\n")
	}

	if len(report.RecentFailures) > 0 {
		md.WriteString("## Recently Failed Artists\n\n")
		md.WriteString("| Artist | Attempts | Reason |\n")
		md.WriteString("|--------|----------|--------|\n")
		for _, e := range report.RecentFailures {
			md.WriteString(fmt.Sprintf("| `%s` | %d | %s |\n", e.ArtistID, e.Attempts, truncate(e.Reason, 80)))
		}
		md.WriteString("\n")
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by mbflat*\n")

	if err := util.AtomicWriteFile(outputPath, []byte(md.String()), util.WriteOptions{}); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// truncate shortens s to maxLen bytes, keeping the start and the end
func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "|", "/")
	if len(s) <= maxLen {
		return s
	}
	start := maxLen/2 - 2
	end := len(s) - (maxLen/2 - 2)
	return s[:start] + "..." + s[end:]
}
