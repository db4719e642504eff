package main

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/franz/mbflat/internal/flatfile"
	"github.com/franz/mbflat/internal/index"
	"github.com/franz/mbflat/internal/util"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <entity> <mbid>",
	Short: "Print one raw record from the flat files via the index",
	Long: `Look up a record by MBID through the byte-offset index and print it.

With --children the MBIDs of its release groups (for an artist) or releases
(for a release group) are listed instead.`,
	Args: cobra.ExactArgs(2),
	PreRunE: bindFlags(map[string]string{
		"data-dir":  "paths.data_dir",
		"index-dir": "paths.index_dir",
	}),
	RunE: runLookup,
}

func init() {
	rootCmd.AddCommand(lookupCmd)

	lookupCmd.Flags().String("data-dir", "", "directory holding the flat files")
	lookupCmd.Flags().String("index-dir", "", "directory holding the index files")
	lookupCmd.Flags().Bool("children", false, "list child MBIDs instead of the record")
}

func runLookup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	entity, err := index.ParseEntity(args[0])
	if err != nil {
		return err
	}
	id, err := index.ParseMBID(args[1])
	if err != nil {
		return err
	}

	if children, _ := cmd.Flags().GetBool("children"); children {
		child, ok := childEntity(entity)
		if !ok {
			return fmt.Errorf("%w: %s records have no children", util.ErrInvalidConfig, entity)
		}
		_, rev, _, err := index.Load(cfg.Paths.IndexDir, child)
		if err != nil {
			return err
		}
		for _, c := range rev.Children(id) {
			fmt.Fprintln(cmd.OutOrStdout(), c)
		}
		return nil
	}

	offsets, _, _, err := index.Load(cfg.Paths.IndexDir, entity)
	if err != nil {
		return err
	}
	loc, ok := offsets.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s %s", util.ErrNotFound, entity, id)
	}

	r, err := flatfile.Open(filepath.Join(cfg.Paths.DataDir, string(entity)), cfg.Index.Reader)
	if err != nil {
		return err
	}
	defer r.Close()

	line, err := readIndexedRecord(r, id, loc)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, bytes.TrimSpace(line), "", "  "); err != nil {
		// Show what is there even if it does not parse.
		util.WarnLog("Record at offset %d is not valid JSON: %v", loc.Offset, err)
		out.Reset()
		out.Write(line)
	}
	out.WriteByte('\n')
	_, err = out.WriteTo(cmd.OutOrStdout())
	return err
}

// readIndexedRecord reads the record at loc and checks that it is the one
// the index promised. A different id there means the flat file changed
// without the index being rebuilt.
func readIndexedRecord(r flatfile.Reader, id uuid.UUID, loc index.Location) ([]byte, error) {
	line, err := r.ReadRecord(loc.Offset, loc.Length, nil)
	if err != nil {
		return nil, err
	}
	got, err := index.ExtractID(line)
	if err != nil {
		util.WarnLog("Record at offset %d has no readable id: %v", loc.Offset, err)
		return line, nil
	}
	if got != id {
		return nil, fmt.Errorf("%w: offset %d in %s holds %s, not %s (run 'mbflat index --force')",
			util.ErrStaleIndex, loc.Offset, r.Path(), got, id)
	}
	return line, nil
}

// childEntity returns the entity whose index holds the children of e.
func childEntity(e index.EntityType) (index.EntityType, bool) {
	switch e {
	case index.Artist:
		return index.ReleaseGroup, true
	case index.ReleaseGroup:
		return index.Release, true
	}
	return "", false
}
