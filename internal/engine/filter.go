package engine

import (
	"strings"

	"github.com/franz/mbflat/internal/mbdump"
)

// TypeSet is a set of MusicBrainz type names. Matching is exact, the way
// the names appear in the dump ("Album", "Live", "Person").
type TypeSet map[string]struct{}

// NewTypeSet builds a set from names, ignoring blanks.
func NewTypeSet(names []string) TypeSet {
	s := make(TypeSet, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			s[n] = struct{}{}
		}
	}
	return s
}

// Has reports whether name is in the set.
func (s TypeSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// First returns the first of names present in the set, or "".
func (s TypeSet) First(names ...string) string {
	for _, n := range names {
		if s.Has(n) {
			return n
		}
	}
	return ""
}

// Filter decides which artists, release groups and releases reach the
// output. An empty include set admits everything.
type Filter struct {
	include     TypeSet
	exclude     TypeSet
	artistTypes TypeSet
}

// NewFilter builds a filter from the processing options.
func NewFilter(opts *Options) *Filter {
	return &Filter{
		include:     NewTypeSet(opts.IncludeReleaseTypes),
		exclude:     NewTypeSet(opts.ExcludeSecondaryTypes),
		artistTypes: NewTypeSet(opts.IncludeArtistTypes),
	}
}

// Artist reports whether a is kept, and why not.
func (f *Filter) Artist(a *mbdump.Artist) (bool, string) {
	if len(f.artistTypes) == 0 || f.artistTypes.Has(a.Type) {
		return true, ""
	}
	if a.Type == "" {
		return false, "artist has no type"
	}
	return false, "artist type " + a.Type + " not included"
}

// ReleaseGroup applies the include and exclude sets to rg. The type set of
// a group is its primary type plus its secondary types.
func (f *Filter) ReleaseGroup(rg *mbdump.ReleaseGroup) (bool, string) {
	return f.groupTypes(rg.PrimaryType, rg.SecondaryTypes)
}

// Release drops releases whose embedded release group carries an excluded
// secondary type.
func (f *Filter) Release(r *mbdump.Release) (bool, string) {
	if t := f.exclude.First(r.ReleaseGroup.SecondaryTypes...); t != "" {
		return false, "secondary type " + t + " excluded"
	}
	return true, ""
}

func (f *Filter) groupTypes(primary string, secondary []string) (bool, string) {
	if len(f.include) > 0 {
		types := secondary
		if primary != "" {
			types = append([]string{primary}, secondary...)
		}
		if f.include.First(types...) == "" {
			if primary == "" {
				return false, "no included type"
			}
			return false, "type " + primary + " not included"
		}
	}
	if t := f.exclude.First(secondary...); t != "" {
		return false, "secondary type " + t + " excluded"
	}
	return true, ""
}
