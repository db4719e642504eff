package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/franz/mbflat/internal/report"
	"github.com/franz/mbflat/internal/store"
	"github.com/franz/mbflat/internal/util"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a summary report from the state database and event log",
	Long: `Generate a Markdown summary report.

The report includes:
- Ledger progress
- Index statistics per entity
- Search database row counts
- Recent runs and event counts
- Top failure reasons and recently failed artists

The report is saved to <artifacts>/reports/<timestamp>/summary.md`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("out", "", "output directory for the report (default: <artifacts>/reports/<timestamp>)")
	reportCmd.Flags().String("event-log", "", "event log to summarize (default: the latest one)")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	util.InfoLog("=== Generating Summary Report ===")
	util.InfoLog("Database: %s", cfg.Paths.StateDB)

	db, err := store.Open(cfg.Paths.StateDB)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	eventLogPath, _ := cmd.Flags().GetString("event-log")
	if eventLogPath == "" {
		eventLogPath = report.LatestEventLog(cfg.Paths.ArtifactsDir)
	}

	summary, err := report.GenerateSummaryReport(db, eventLogPath)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}
	summary.DatabasePath = cfg.Paths.StateDB
	summary.OutputDir = cfg.Paths.OutputDir
	summary.Indexes = indexSummaries(cfg)
	if artists, albums, ok := searchCounts(cfg); ok {
		summary.SearchArtists, summary.SearchAlbums = artists, albums
	}

	outputDir, _ := cmd.Flags().GetString("out")
	if outputDir == "" {
		outputDir = filepath.Join(cfg.Paths.ArtifactsDir, "reports", time.Now().Format("20060102-150405"))
	}
	outputPath := filepath.Join(outputDir, "summary.md")

	util.InfoLog("Writing report to: %s", outputPath)
	if err := report.WriteMarkdownReport(summary, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	util.SuccessLog("Report generated: %s", outputPath)
	util.InfoLog("  Artists completed: %s", util.FormatCount(summary.ArtistsCompleted))
	if summary.ArtistsFailed > 0 {
		util.WarnLog("  Artists failed: %s", util.FormatCount(summary.ArtistsFailed))
	}
	return nil
}
