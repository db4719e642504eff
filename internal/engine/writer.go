package engine

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-json"

	"github.com/franz/mbflat/internal/normalize"
	"github.com/franz/mbflat/internal/util"
)

// Writer persists artist and album documents under a sharded directory
// tree. Every file is written with temp-file-then-rename, so a reader or a
// crash never observes a partial document. Write returns only once the
// documents and their directory entries are on stable storage.
type Writer struct {
	root    string
	depth   int
	retry   *util.RetryConfig
	syncDir func(dir string) error
}

// NewWriter returns a writer rooted at outputDir. depth is the number of
// two-character shard levels; 0 writes flat directories.
func NewWriter(outputDir string, depth int) *Writer {
	retry := util.DefaultRetryConfig()
	if _, network := util.FilesystemType(outputDir); network {
		retry = util.NetworkRetryConfig()
	}
	return &Writer{root: outputDir, depth: depth, retry: retry, syncDir: util.SyncDir}
}

// ArtistPath returns where the document of artist id lives.
func (w *Writer) ArtistPath(id string) string {
	return util.ShardPath(filepath.Join(w.root, "artist"), id, ".json", w.depth)
}

// AlbumPath returns where the document of release group id lives.
func (w *Writer) AlbumPath(id string) string {
	return util.ShardPath(filepath.Join(w.root, "album"), id, ".json", w.depth)
}

// Write stores the albums first and the artist document last, and returns
// the artist document path.
func (w *Writer) Write(artist *normalize.ArtistDocument, albums []*normalize.AlbumDocument) (string, error) {
	dirs := make(map[string]struct{})
	for _, album := range albums {
		if err := w.writeJSON(w.AlbumPath(album.ID), album, dirs); err != nil {
			return "", err
		}
	}
	path := w.ArtistPath(artist.ID)
	if err := w.writeJSON(path, artist, dirs); err != nil {
		return "", err
	}

	// Each directory once per artist, deepest first.
	order := make([]string, 0, len(dirs))
	for dir := range dirs {
		order = append(order, dir)
	}
	slices.SortFunc(order, func(a, b string) int { return len(b) - len(a) })
	for _, dir := range order {
		if err := w.syncDir(dir); err != nil {
			return "", util.ClassifyFSError(err)
		}
	}
	return path, nil
}

func (w *Writer) writeJSON(path string, v any, dirs map[string]struct{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := util.AtomicWriteFile(path, append(data, '\n'), util.WriteOptions{
		Fsync:        true,
		DeferDirSync: true,
		Retry:        w.retry,
	}); err != nil {
		return err
	}
	w.touch(dirs, filepath.Dir(path))
	return nil
}

// touch records dir and its ancestors up to the output root, since
// MkdirAll may have created any of them.
func (w *Writer) touch(dirs map[string]struct{}, dir string) {
	root := filepath.Clean(w.root)
	for {
		if _, seen := dirs[dir]; seen {
			return
		}
		dirs[dir] = struct{}{}
		if dir == root || !strings.HasPrefix(dir, root) {
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
