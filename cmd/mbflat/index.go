package main

import (
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build byte-offset indexes over the flat files",
	Long: `Scan each flat file once and persist, per entity, the byte offset of
every record plus the parent-to-children lists (artist -> release groups,
release group -> releases).

An index whose manifest still matches the size and fingerprint of its flat
file is reused. Use --force to rebuild anyway.`,
	PreRunE: bindFlags(map[string]string{
		"data-dir":  "paths.data_dir",
		"index-dir": "paths.index_dir",
		"force":     "index.force",
	}),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)

	indexCmd.Flags().String("data-dir", "", "directory holding the flat files")
	indexCmd.Flags().String("index-dir", "", "directory for the index files")
	indexCmd.Flags().Bool("force", false, "rebuild indexes even if they are up to date")
}

func runIndex(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	return indexStage(cmd.Context(), s)
}
