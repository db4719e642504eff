package main

import (
	"fmt"
	"time"

	"github.com/franz/mbflat/internal/config"
	"github.com/franz/mbflat/internal/index"
	"github.com/franz/mbflat/internal/report"
	"github.com/franz/mbflat/internal/search"
	"github.com/franz/mbflat/internal/store"
	"github.com/franz/mbflat/internal/util"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger progress, recent runs and index state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().Int("runs", 5, "number of recent runs to show")
	statusCmd.Flags().Int("failures", 10, "number of failed artists to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := store.Open(cfg.Paths.StateDB)
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}
	defer db.Close()

	sum, err := db.Summary()
	if err != nil {
		return err
	}
	util.InfoLog("=== Progress ===")
	util.InfoLog("  Completed artists: %s", util.FormatCount(sum.Completed))
	util.InfoLog("  Failed artists:    %s", util.FormatCount(sum.Failed))
	if !sum.LastUpdate.IsZero() {
		util.InfoLog("  Last update:       %s", sum.LastUpdate.Format(time.RFC3339))
	}

	util.InfoLog("")
	util.InfoLog("=== Indexes ===")
	for _, is := range indexSummaries(cfg) {
		if is.BuiltAt.IsZero() {
			util.WarnLog("  %-14s missing", is.Entity)
			continue
		}
		util.InfoLog("  %-14s %s records, %d malformed, %d duplicates (built %s)",
			is.Entity, util.FormatCount(is.Records), is.Malformed, is.Duplicates, is.BuiltAt.Format(time.RFC3339))
	}

	if artists, albums, ok := searchCounts(cfg); ok {
		util.InfoLog("")
		util.InfoLog("=== Search ===")
		util.InfoLog("  Artists: %s", util.FormatCount(artists))
		util.InfoLog("  Albums:  %s", util.FormatCount(albums))
	}

	n, _ := cmd.Flags().GetInt("runs")
	runs, err := db.RecentRuns(n)
	if err != nil {
		return err
	}
	if len(runs) > 0 {
		util.InfoLog("")
		util.InfoLog("=== Recent Runs ===")
		for _, r := range runs {
			util.InfoLog("  %s  %-8s %-10s %d completed, %d failed, %d skipped (%v)",
				r.StartedAt.Format("2006-01-02 15:04:05"), r.Stage, r.Status,
				r.Counters.Completed, r.Counters.Failed, r.Counters.Skipped, r.Duration().Round(time.Second))
			if r.Error != "" {
				util.WarnLog("      %s", r.Error)
			}
		}
	}

	limit, _ := cmd.Flags().GetInt("failures")
	if sum.Failed > 0 && limit > 0 {
		failed, err := db.FailedArtists(limit)
		if err != nil {
			return err
		}
		util.InfoLog("")
		util.InfoLog("=== Failed Artists ===")
		for _, f := range failed {
			util.WarnLog("  %s (%d attempts): %s", f.ArtistID, f.Attempts, f.Reason)
		}
		if sum.Failed > len(failed) {
			util.InfoLog("  ... and %d more", sum.Failed-len(failed))
		}
		util.InfoLog("Retry with: mbflat process --only-failed")
	}
	return nil
}

// indexSummaries returns one entry per entity. Entities without a readable
// manifest have a zero BuiltAt.
func indexSummaries(cfg *config.Config) []report.IndexSummary {
	out := make([]report.IndexSummary, 0, len(index.AllEntities))
	for _, e := range index.AllEntities {
		is := report.IndexSummary{Entity: string(e)}
		if m, err := index.LoadManifest(cfg.Paths.IndexDir, e); err == nil {
			is.Records, is.Malformed, is.Duplicates, is.Orphans = m.Records, m.Malformed, m.Duplicates, m.Orphans
			is.BuiltAt = m.BuiltAt
		}
		out = append(out, is)
	}
	return out
}

// searchCounts reports row counts of the search databases if both exist.
func searchCounts(cfg *config.Config) (artists, albums int, ok bool) {
	ap, rp := cfg.SearchDBPath("artist"), cfg.SearchDBPath("release-group")
	if !fileExists(ap) || !fileExists(rp) {
		return 0, 0, false
	}
	db, err := search.Open(ap, rp)
	if err != nil {
		util.WarnLog("Cannot open search databases: %v", err)
		return 0, 0, false
	}
	defer db.Close()
	artists, albums, err = db.Counts()
	if err != nil {
		util.WarnLog("Cannot count search rows: %v", err)
		return 0, 0, false
	}
	return artists, albums, true
}
