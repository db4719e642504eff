package main

import (
	"context"

	"github.com/franz/mbflat/internal/util"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run extract, index and process in order",
	Long: `Run the whole pipeline. Every stage reuses finished work, so running it
again after an interruption or a failure picks up where it stopped.`,
	PreRunE: bindFlags(map[string]string{
		"dump-dir":    "paths.dump_dir",
		"data-dir":    "paths.data_dir",
		"index-dir":   "paths.index_dir",
		"output-dir":  "paths.output_dir",
		"workers":     "processing.workers",
		"max-artists": "processing.max_artists",
		"only-failed": "processing.only_failed",
		"artists":     "processing.artists_file",
	}),
	RunE: runAll,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("dump-dir", "", "directory holding the dump archives")
	addProcessFlags(runCmd)
}

func runAll(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	stages := []struct {
		name string
		fn   func(context.Context, *session) error
	}{
		{"extract", extractStage},
		{"index", indexStage},
		{"process", processStage},
	}
	for _, st := range stages {
		util.InfoLog("=== %s ===", st.name)
		if err := st.fn(cmd.Context(), s); err != nil {
			return err
		}
	}
	util.SuccessLog("Pipeline complete. Documents in %s", s.cfg.Paths.OutputDir)
	return nil
}
