package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/franz/mbflat/internal/flatfile"
	"github.com/franz/mbflat/internal/index"
)

const (
	kindArtist  = 0xa0
	kindGroup   = 0xb0
	kindRelease = 0xc0
)

func mbid(kind, n int) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("%02x%06x-0000-4000-8000-000000000000", kind, n))
}

func artistLine(id uuid.UUID, name, typ string) string {
	return fmt.Sprintf(`{"id":"%s","name":%q,"sort-name":%q,"type":%q,"country":"GB"}`, id, name, name, typ)
}

func typeList(types []string) string {
	quoted := make([]string, len(types))
	for i, t := range types {
		quoted[i] = fmt.Sprintf("%q", t)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func groupLine(id, owner uuid.UUID, title, primary string, secondary ...string) string {
	return fmt.Sprintf(`{"id":"%s","title":%q,"primary-type":%q,"secondary-types":%s,"first-release-date":"2001",`+
		`"artist-credit":[{"name":"Credit","joinphrase":"","artist":{"id":"%s","name":"Credit"}}]}`,
		id, title, primary, typeList(secondary), owner)
}

func releaseLine(id, group uuid.UUID, title string, secondary ...string) string {
	return fmt.Sprintf(`{"id":"%s","title":%q,"status":"Official","date":"2001-05","country":"GB",`+
		`"release-group":{"id":"%s","primary-type":"Album","secondary-types":%s},`+
		`"media":[{"position":1,"format":"CD","tracks":[`+
		`{"id":"%s-t1","number":"1","position":1,"title":"One","length":180000,"recording":{"id":"%s-r1","title":"One"}},`+
		`{"id":"%s-t2","number":"2","position":2,"title":"Two","recording":{"id":"%s-r2","title":"Two","length":200000}}]}]}`,
		id, title, group, typeList(secondary), id, id, id, id)
}

type dump struct {
	artists  []string
	groups   []string
	releases []string
}

type fixture struct {
	dir   string
	set   *index.Set
	files map[index.EntityType]flatfile.Reader
	out   string
}

func buildFixture(t *testing.T, d dump) *fixture {
	t.Helper()
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(data, 0o755))
	for name, lines := range map[string][]string{
		"artist":        d.artists,
		"release-group": d.groups,
		"release":       d.releases,
	} {
		content := strings.Join(lines, "\n") + "\n"
		require.NoError(t, os.WriteFile(filepath.Join(data, name), []byte(content), 0o644))
	}

	idx := filepath.Join(dir, "idx")
	_, err := index.NewBuilder(&index.Config{IndexDir: idx}).BuildAll(context.Background(), data, index.AllEntities)
	require.NoError(t, err)
	set, err := index.LoadSet(idx)
	require.NoError(t, err)

	files := make(map[index.EntityType]flatfile.Reader)
	for _, e := range index.AllEntities {
		r, err := flatfile.Open(filepath.Join(data, string(e)), flatfile.ModePread)
		require.NoError(t, err)
		t.Cleanup(func() { r.Close() })
		files[e] = r
	}
	return &fixture{dir: dir, set: set, files: files, out: filepath.Join(dir, "out")}
}

func (f *fixture) engine(t *testing.T, ledger Ledger, search SearchIndex, writer DocumentWriter, opts Options, observer func(uuid.UUID, Outcome)) *Engine {
	t.Helper()
	if writer == nil {
		writer = NewWriter(f.out, 2)
	}
	e, err := New(&Config{
		Indexes:  f.set,
		Files:    f.files,
		Ledger:   ledger,
		Search:   search,
		Writer:   writer,
		Options:  opts,
		RunID:    "test-run",
		Observer: observer,
	})
	require.NoError(t, err)
	return e
}

// memLedger is an in-memory Ledger.
type memLedger struct {
	mu      sync.Mutex
	status  map[string]string
	reasons map[string]string
}

func newMemLedger() *memLedger {
	return &memLedger{status: map[string]string{}, reasons: map[string]string{}}
}

func (l *memLedger) IsCompleted(id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status[id] == "completed", nil
}

func (l *memLedger) MarkCompleted(id, runID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status[id] = "completed"
	delete(l.reasons, id)
	return nil
}

func (l *memLedger) MarkFailed(id, runID, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status[id] = "failed"
	l.reasons[id] = reason
	return nil
}

func (l *memLedger) FailedIDs() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var ids []string
	for id, s := range l.status {
		if s == "failed" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (l *memLedger) count(status string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, s := range l.status {
		if s == status {
			n++
		}
	}
	return n
}

// simpleDump has n artists, each owning one album with one release.
func simpleDump(n int) dump {
	var d dump
	for i := 0; i < n; i++ {
		a, g, r := mbid(kindArtist, i), mbid(kindGroup, i), mbid(kindRelease, i)
		d.artists = append(d.artists, artistLine(a, fmt.Sprintf("Artist %d", i), "Group"))
		d.groups = append(d.groups, groupLine(g, a, fmt.Sprintf("Album %d", i), "Album"))
		d.releases = append(d.releases, releaseLine(r, g, fmt.Sprintf("Album %d", i)))
	}
	return d
}
