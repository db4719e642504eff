package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/franz/mbflat/internal/search"
	"github.com/franz/mbflat/internal/util"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Query the artist and album search databases",
	Long: `Run a full-text query against the search databases written by process.
Accents are folded, so "bjork" finds "Björk".

With --exact the query is matched against whole artist names, ignoring
case and punctuation, and the album MBIDs of each artist are listed.`,
	Args: cobra.MinimumNArgs(1),
	PreRunE: bindFlags(map[string]string{
		"output-dir": "paths.output_dir",
	}),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().String("output-dir", "", "directory holding the search databases")
	searchCmd.Flags().Bool("albums", false, "search albums instead of artists")
	searchCmd.Flags().Bool("exact", false, "match whole artist names and list their albums")
	searchCmd.Flags().IntP("limit", "n", 20, "maximum number of hits")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ap, rp := cfg.SearchDBPath("artist"), cfg.SearchDBPath("release-group")
	if !fileExists(ap) || !fileExists(rp) {
		return fmt.Errorf("%w: search databases in %s (run 'mbflat process' first)", util.ErrNotFound, cfg.Paths.OutputDir)
	}
	db, err := search.Open(ap, rp)
	if err != nil {
		return err
	}
	defer db.Close()

	query := strings.Join(args, " ")
	limit, _ := cmd.Flags().GetInt("limit")
	w := cmd.OutOrStdout()

	if exact, _ := cmd.Flags().GetBool("exact"); exact {
		return printExactArtists(w, db, query, limit)
	}

	if albums, _ := cmd.Flags().GetBool("albums"); albums {
		hits, err := db.SearchAlbums(query, limit)
		if err != nil {
			return err
		}
		for _, h := range hits {
			fmt.Fprintf(w, "%s  %s - %s [%s] %s\n", h.ID, h.ArtistName, h.Title, h.Type, h.ReleaseDate)
		}
		util.DebugLog("%d album hits", len(hits))
		return nil
	}

	hits, err := db.SearchArtists(query, limit)
	if err != nil {
		return err
	}
	for _, h := range hits {
		printArtistHit(w, h)
	}
	util.DebugLog("%d artist hits", len(hits))
	return nil
}

func printArtistHit(w io.Writer, h search.ArtistHit) {
	name := h.Name
	if h.Disambiguation != "" {
		name += " (" + h.Disambiguation + ")"
	}
	fmt.Fprintf(w, "%s  %s [%s %s] %d albums\n", h.ID, name, h.Type, h.Country, h.AlbumCount)
}

// printExactArtists lists the artists named name, each followed by its
// album MBIDs indented by four spaces.
func printExactArtists(w io.Writer, db *search.DB, name string, limit int) error {
	hits, err := db.ArtistsByName(name, limit)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		return fmt.Errorf("%w: no artist named %q", util.ErrNotFound, name)
	}
	for _, h := range hits {
		printArtistHit(w, h)
		ids, err := db.AlbumsOf(h.ID)
		if err != nil {
			return fmt.Errorf("albums of %s: %w", h.ID, err)
		}
		for _, id := range ids {
			fmt.Fprintf(w, "    %s\n", id)
		}
	}
	return nil
}
