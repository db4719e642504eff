// Package index builds and loads byte-offset indexes over flat dump files.
//
// For every entity type there is an offset index (MBID -> location of the
// record's line). Release groups and releases additionally produce a reverse
// join index from their parent (owning artist, owning release group) to the
// child MBIDs, in first-seen file order.
package index

import (
	"fmt"
	"slices"
	"time"

	"github.com/franz/mbflat/internal/util"
	"github.com/google/uuid"
)

// EntityType names a dump file.
type EntityType string

const (
	Artist       EntityType = "artist"
	ReleaseGroup EntityType = "release-group"
	Release      EntityType = "release"
)

// AllEntities lists the entity types in dependency order.
var AllEntities = []EntityType{Artist, ReleaseGroup, Release}

// ParseEntity validates an entity name.
func ParseEntity(s string) (EntityType, error) {
	for _, e := range AllEntities {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("%w: unknown entity type %q", util.ErrInvalidConfig, s)
}

// parentPath is the JSON path of the field that links a record to its
// parent, or nil for entities without a reverse index.
func (e EntityType) parentPath() []string {
	switch e {
	case ReleaseGroup:
		return []string{"artist-credit", "[0]", "artist", "id"}
	case Release:
		return []string{"release-group", "id"}
	}
	return nil
}

// HasChildren reports whether building e produces a reverse index.
func (e EntityType) HasChildren() bool { return e.parentPath() != nil }

// Location is the span of one record in its flat file. Length excludes
// the terminating newline.
type Location struct {
	Offset int64
	Length int64
}

// OffsetIndex maps MBIDs to record locations.
type OffsetIndex struct {
	entity  EntityType
	entries map[uuid.UUID]Location
}

func newOffsetIndex(entity EntityType, sizeHint int) *OffsetIndex {
	return &OffsetIndex{entity: entity, entries: make(map[uuid.UUID]Location, sizeHint)}
}

// Entity returns the entity type this index covers.
func (o *OffsetIndex) Entity() EntityType { return o.entity }

// Lookup returns the location of id.
func (o *OffsetIndex) Lookup(id uuid.UUID) (Location, bool) {
	loc, ok := o.entries[id]
	return loc, ok
}

// Len returns the number of indexed records.
func (o *OffsetIndex) Len() int { return len(o.entries) }

// SortedIDs returns every indexed MBID in ascending byte order.
func (o *OffsetIndex) SortedIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(o.entries))
	for id := range o.entries {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, compareUUID)
	return ids
}

// ReverseIndex maps a parent MBID to its children.
type ReverseIndex struct {
	entity  EntityType
	entries map[uuid.UUID][]uuid.UUID
}

func newReverseIndex(entity EntityType) *ReverseIndex {
	return &ReverseIndex{entity: entity, entries: make(map[uuid.UUID][]uuid.UUID)}
}

// Children returns the child MBIDs of parent in first-seen order. The
// returned slice must not be modified.
func (r *ReverseIndex) Children(parent uuid.UUID) []uuid.UUID {
	if r == nil {
		return nil
	}
	return r.entries[parent]
}

// Len returns the number of parents.
func (r *ReverseIndex) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// add appends child under parent unless it is already listed.
func (r *ReverseIndex) add(parent, child uuid.UUID, mayRepeat bool) {
	list := r.entries[parent]
	if mayRepeat && slices.Contains(list, child) {
		return
	}
	r.entries[parent] = append(list, child)
}

func compareUUID(a, b uuid.UUID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// BuildResult summarizes one index build.
type BuildResult struct {
	Entity     EntityType
	Source     string
	Records    int
	Malformed  int
	Duplicates int
	Orphans    int // records without a parent id
	Bytes      int64
	Skipped    bool
	Duration   time.Duration
}
