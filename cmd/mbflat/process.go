package main

import (
	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Write one document per artist and per album",
	Long: `Join every artist with its release groups and their releases, write
the artist and album JSON documents and fill the search databases.

Progress is tracked per artist in the state database: completed artists are
skipped on the next run, failed ones are retried. Interrupting with Ctrl-C
stops between artists; rerun the command to continue.`,
	PreRunE: bindFlags(map[string]string{
		"data-dir":    "paths.data_dir",
		"index-dir":   "paths.index_dir",
		"output-dir":  "paths.output_dir",
		"workers":     "processing.workers",
		"max-artists": "processing.max_artists",
		"only-failed": "processing.only_failed",
		"artists":     "processing.artists_file",
	}),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	addProcessFlags(processCmd)
}

func addProcessFlags(cmd *cobra.Command) {
	cmd.Flags().String("data-dir", "", "directory holding the flat files")
	cmd.Flags().String("index-dir", "", "directory holding the index files")
	cmd.Flags().String("output-dir", "", "directory for documents and search databases")
	cmd.Flags().IntP("workers", "w", 1, "number of artists processed in parallel")
	cmd.Flags().Int("max-artists", 0, "process at most N artists (0 = all)")
	cmd.Flags().Bool("only-failed", false, "only retry artists that failed before")
	cmd.Flags().String("artists", "", "file with one artist MBID per line to restrict the run")
}

func runProcess(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	return processStage(cmd.Context(), s)
}
