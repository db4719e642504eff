package main

import (
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Decompress dump archives into flat JSON-lines files",
	Long: `Extract the artist, release-group and release members of the
MusicBrainz JSON dump archives into plain JSON-lines files.

Archives are verified against MD5SUMS or SHA256SUMS when present. Each flat
file is written to a .partial file and renamed once complete, so a flat
file that exists is always whole; existing files are skipped.`,
	PreRunE: bindFlags(map[string]string{
		"dump-dir":         "paths.dump_dir",
		"data-dir":         "paths.data_dir",
		"require-checksum": "extract.require_checksum",
	}),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().String("dump-dir", "", "directory holding the dump archives")
	extractCmd.Flags().String("data-dir", "", "directory for the extracted flat files")
	extractCmd.Flags().Bool("require-checksum", false, "fail when an archive has no checksum entry")
}

func runExtract(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	return extractStage(cmd.Context(), s)
}
