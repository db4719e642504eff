package engine

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/franz/mbflat/internal/index"
	"github.com/franz/mbflat/internal/mbdump"
	"github.com/franz/mbflat/internal/normalize"
	"github.com/franz/mbflat/internal/util"
)

// arena is the scratch space of one worker. Record bytes are read into buf
// and decoded before the next read reuses it.
type arena struct {
	buf []byte
}

func newArena() *arena {
	return &arena{buf: make([]byte, 0, 64<<10)}
}

// joined is the subgraph of one artist after filtering.
type joined struct {
	artist   *mbdump.Artist
	albums   []*normalize.AlbumDocument
	filtered string // reason the artist itself was dropped
	drifted  int    // records ignored because their parent changed
}

// read fetches the raw line of id. A missing offset is entity-scoped; a
// failing read is not.
func (e *Engine) read(entity index.EntityType, id uuid.UUID, a *arena) ([]byte, error) {
	loc, ok := e.indexes.Offsets(entity).Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s not in index", util.ErrMissingEntity, entity, id)
	}
	line, err := e.files[entity].ReadRecord(loc.Offset, loc.Length, a.buf)
	if err != nil {
		return nil, fmt.Errorf("read %s %s at %d: %w", entity, id, loc.Offset, err)
	}
	a.buf = line[:0]
	return line, nil
}

func sameID(id uuid.UUID, s string) bool {
	return strings.EqualFold(id.String(), s)
}

// join loads the artist, its release groups and their releases, applying
// the filters on the way down.
func (e *Engine) join(id uuid.UUID, a *arena) (*joined, error) {
	line, err := e.read(index.Artist, id, a)
	if err != nil {
		return nil, err
	}
	artist, err := mbdump.DecodeArtist(line)
	if err != nil {
		return nil, fmt.Errorf("artist %s: %w", id, err)
	}
	if !sameID(id, artist.ID) {
		return nil, fmt.Errorf("%w: artist line indexed as %s holds id %q", util.ErrMalformedRecord, id, artist.ID)
	}

	j := &joined{artist: artist}
	if ok, reason := e.filter.Artist(artist); !ok {
		j.filtered = reason
		return j, nil
	}

	for _, rgID := range e.indexes.ArtistReleaseGroups.Children(id) {
		line, err := e.read(index.ReleaseGroup, rgID, a)
		if err != nil {
			return nil, err
		}
		rg, err := mbdump.DecodeReleaseGroup(line)
		if err != nil {
			return nil, fmt.Errorf("release group %s: %w", rgID, err)
		}
		if !sameID(rgID, rg.ID) {
			return nil, fmt.Errorf("%w: release-group line indexed as %s holds id %q", util.ErrMalformedRecord, rgID, rg.ID)
		}
		if !strings.EqualFold(rg.OwnerID(), artist.ID) {
			// a later duplicate line moved the group to another artist
			j.drifted++
			continue
		}
		if ok, reason := e.filter.ReleaseGroup(rg); !ok {
			e.logger.LogFilter(string(index.ReleaseGroup), rg.ID, reason)
			continue
		}

		releases, drifted, err := e.releases(rg, rgID, a)
		if err != nil {
			return nil, err
		}
		j.drifted += drifted
		j.albums = append(j.albums, normalize.Album(rg, artist, releases))
	}
	return j, nil
}

func (e *Engine) releases(rg *mbdump.ReleaseGroup, rgID uuid.UUID, a *arena) ([]*mbdump.Release, int, error) {
	children := e.indexes.ReleaseGroupReleases.Children(rgID)
	out := make([]*mbdump.Release, 0, len(children))
	drifted := 0
	for _, relID := range children {
		line, err := e.read(index.Release, relID, a)
		if err != nil {
			return nil, 0, err
		}
		r, err := mbdump.DecodeRelease(line)
		if err != nil {
			return nil, 0, fmt.Errorf("release %s: %w", relID, err)
		}
		if !sameID(relID, r.ID) {
			return nil, 0, fmt.Errorf("%w: release line indexed as %s holds id %q", util.ErrMalformedRecord, relID, r.ID)
		}
		if !strings.EqualFold(r.ReleaseGroup.ID, rg.ID) {
			drifted++
			continue
		}
		if ok, reason := e.filter.Release(r); !ok {
			e.logger.LogFilter(string(index.Release), r.ID, reason)
			continue
		}
		out = append(out, r)
	}
	return out, drifted, nil
}
