package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franz/mbflat/internal/normalize"
	"github.com/franz/mbflat/internal/util"
)

// journal records the order of side effects across the writer and ledger.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

type journalLedger struct {
	*memLedger
	j *journal
}

func (l journalLedger) MarkCompleted(id, runID string) error {
	l.j.add("mark " + id)
	return l.memLedger.MarkCompleted(id, runID)
}

func TestDocumentsSyncedBeforeLedgerMark(t *testing.T) {
	f := buildFixture(t, simpleDump(3))
	j := &journal{}
	w := NewWriter(f.out, 2)
	w.syncDir = func(dir string) error {
		j.add("sync " + dir)
		return util.SyncDir(dir)
	}

	res, err := f.engine(t, journalLedger{newMemLedger(), j}, nil, w, Options{}, nil).Process(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 3, res.Completed)

	start := 0
	for i := 0; i < 3; i++ {
		a, g := mbid(kindArtist, i).String(), mbid(kindGroup, i).String()
		mark := -1
		for k := start; k < len(j.entries); k++ {
			if j.entries[k] == "mark "+a {
				mark = k
				break
			}
		}
		require.GreaterOrEqual(t, mark, 0, "artist %s never marked", a)

		synced := map[string]bool{}
		for _, e := range j.entries[start:mark] {
			synced[e] = true
		}
		for _, dir := range []string{
			filepath.Dir(w.ArtistPath(a)),
			filepath.Dir(w.AlbumPath(g)),
			filepath.Join(f.out, "album"),
			f.out,
		} {
			assert.True(t, synced["sync "+dir], "%s not synced before marking %s", dir, a)
		}
		start = mark + 1
	}
}

func TestWriterSyncFailureFailsWrite(t *testing.T) {
	w := NewWriter(t.TempDir(), 1)
	w.syncDir = func(string) error { return util.ErrDiskFull }

	doc := &normalize.ArtistDocument{ArtistInfo: normalize.ArtistInfo{ID: mbid(kindArtist, 1).String()}}
	_, err := w.Write(doc, nil)
	assert.ErrorIs(t, err, util.ErrDiskFull)
}

func TestWriterTouchStopsAtRoot(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, 2)
	dirs := map[string]struct{}{}
	w.touch(dirs, filepath.Join(root, "artist", "a0", "00"))

	assert.Len(t, dirs, 4)
	assert.Contains(t, dirs, root)
	assert.NotContains(t, dirs, filepath.Dir(root))
}

// Document paths are derived from the MBID alone, so readers of the output
// tree locate a document without any lookup file.
func TestDocumentPathLayout(t *testing.T) {
	root := t.TempDir()
	id := "5b11f4ce-a62d-471e-81fc-a69a8278c7da"

	w := NewWriter(root, 2)
	assert.Equal(t, filepath.Join(root, "artist", "5b", "11", id+".json"), w.ArtistPath(id))
	assert.Equal(t, filepath.Join(root, "album", "5b", "11", id+".json"), w.AlbumPath(id))

	deep := NewWriter(root, 3)
	assert.Equal(t, filepath.Join(root, "album", "5b", "11", "f4", id+".json"), deep.AlbumPath(id))
}
