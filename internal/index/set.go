package index

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/franz/mbflat/internal/util"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Load reads the completed index of one entity. The reverse index is nil
// for entities that do not have one.
func Load(indexDir string, e EntityType) (*OffsetIndex, *ReverseIndex, *Manifest, error) {
	m, err := LoadManifest(indexDir, e)
	if err != nil {
		return nil, nil, nil, err
	}
	if m.Version != FormatVersion {
		return nil, nil, nil, fmt.Errorf("%w: %s index has format %d, want %d", util.ErrStaleIndex, e, m.Version, FormatVersion)
	}

	offsets, err := loadOffsets(indexDir, e)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load %s offsets: %w", e, err)
	}
	if offsets.Len() != m.Records {
		return nil, nil, nil, fmt.Errorf("%w: %s offsets hold %d records, manifest says %d",
			util.ErrStaleIndex, e, offsets.Len(), m.Records)
	}

	var children *ReverseIndex
	if e.HasChildren() {
		if children, err = loadChildren(indexDir, e); err != nil {
			return nil, nil, nil, fmt.Errorf("load %s children: %w", e, err)
		}
	}
	return offsets, children, m, nil
}

// Set is everything the join engine needs: one offset index per entity
// and the two reverse indexes.
type Set struct {
	Artists       *OffsetIndex
	ReleaseGroups *OffsetIndex
	Releases      *OffsetIndex

	// artist MBID -> release-group MBIDs (owner = first credited artist)
	ArtistReleaseGroups *ReverseIndex
	// release-group MBID -> release MBIDs
	ReleaseGroupReleases *ReverseIndex

	Manifests map[EntityType]*Manifest
}

// LoadSet loads the three entity indexes concurrently.
func LoadSet(indexDir string) (*Set, error) {
	start := time.Now()
	type loaded struct {
		offsets  *OffsetIndex
		children *ReverseIndex
		manifest *Manifest
	}
	parts := make([]loaded, len(AllEntities))

	var g errgroup.Group
	for i, e := range AllEntities {
		g.Go(func() error {
			o, c, m, err := Load(indexDir, e)
			if err != nil {
				return err
			}
			parts[i] = loaded{o, c, m}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s := &Set{
		Artists:              parts[0].offsets,
		ReleaseGroups:        parts[1].offsets,
		Releases:             parts[2].offsets,
		ArtistReleaseGroups:  parts[1].children,
		ReleaseGroupReleases: parts[2].children,
		Manifests:            make(map[EntityType]*Manifest, len(AllEntities)),
	}
	for i, e := range AllEntities {
		s.Manifests[e] = parts[i].manifest
	}

	util.InfoLog("Loaded indexes: %s artists, %s release groups, %s releases in %v",
		util.FormatCount(s.Artists.Len()), util.FormatCount(s.ReleaseGroups.Len()),
		util.FormatCount(s.Releases.Len()), time.Since(start).Round(time.Millisecond))
	return s, nil
}

// Offsets returns the offset index of e.
func (s *Set) Offsets(e EntityType) *OffsetIndex {
	switch e {
	case Artist:
		return s.Artists
	case ReleaseGroup:
		return s.ReleaseGroups
	case Release:
		return s.Releases
	}
	return nil
}

// CheckFresh verifies that each manifest was built from the flat file in
// dataDir that will be read through it, and that the file is unchanged.
func (s *Set) CheckFresh(dataDir string) error {
	for e, m := range s.Manifests {
		src := filepath.Join(dataDir, string(e))
		if !samePath(m.Source, src) {
			return fmt.Errorf("%w: %s index was built from %s, not %s", util.ErrStaleIndex, e, m.Source, src)
		}
		fp, err := util.Fingerprint(src)
		if err != nil {
			return fmt.Errorf("%w: %s source %s: %v", util.ErrStaleIndex, e, src, err)
		}
		if !m.Matches(m.Source, fp) {
			return fmt.Errorf("%w: %s changed since its index was built", util.ErrStaleIndex, src)
		}
	}
	return nil
}

func samePath(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

// ParseMBID parses an MBID given on the command line or in a file.
func ParseMBID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid MBID %q: %w", s, err)
	}
	return id, nil
}
