package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/franz/mbflat/internal/mbdump"
)

func TestReleaseGroupFilter(t *testing.T) {
	tests := []struct {
		name      string
		include   []string
		exclude   []string
		primary   string
		secondary []string
		want      bool
	}{
		{"no filters", nil, nil, "Album", nil, true},
		{"primary included", []string{"Album"}, nil, "Album", nil, true},
		{"primary not included", []string{"Album"}, nil, "EP", nil, false},
		{"secondary included", []string{"Compilation"}, nil, "Album", []string{"Compilation"}, true},
		{"untyped with include set", []string{"Album"}, nil, "", nil, false},
		{"untyped without include set", nil, nil, "", nil, true},
		{"secondary excluded", []string{"Album"}, []string{"Live"}, "Album", []string{"Live"}, false},
		{"other secondary kept", []string{"Album"}, []string{"Live"}, "Album", []string{"Soundtrack"}, true},
		{"exclude wins over include", []string{"Live"}, []string{"Live"}, "Album", []string{"Live"}, false},
		{"case sensitive", []string{"album"}, nil, "Album", nil, false},
		{"typed Album and EP", []string{"Album"}, nil, "Album", []string{"EP"}, true},
		{"typed EP and Album", []string{"Album"}, nil, "EP", []string{"Album"}, true},
		{"defaults drop compilations", []string{"Album"}, []string{"Live", "Compilation"}, "Album", []string{"Compilation"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFilter(&Options{IncludeReleaseTypes: tt.include, ExcludeSecondaryTypes: tt.exclude})
			ok, reason := f.ReleaseGroup(&mbdump.ReleaseGroup{PrimaryType: tt.primary, SecondaryTypes: tt.secondary})
			assert.Equal(t, tt.want, ok)
			if !ok {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestReleaseFilter(t *testing.T) {
	f := NewFilter(&Options{ExcludeSecondaryTypes: []string{"Live", " "}})

	ok, _ := f.Release(&mbdump.Release{ReleaseGroup: mbdump.ReleaseGroupRef{SecondaryTypes: []string{"Live"}}})
	assert.False(t, ok)
	ok, _ = f.Release(&mbdump.Release{ReleaseGroup: mbdump.ReleaseGroupRef{SecondaryTypes: []string{"Remix"}}})
	assert.True(t, ok)
	ok, _ = f.Release(&mbdump.Release{})
	assert.True(t, ok)
}

func TestArtistFilter(t *testing.T) {
	all := NewFilter(&Options{})
	ok, _ := all.Artist(&mbdump.Artist{})
	assert.True(t, ok)

	people := NewFilter(&Options{IncludeArtistTypes: []string{"Person"}})
	ok, _ = people.Artist(&mbdump.Artist{Type: "Person"})
	assert.True(t, ok)
	ok, reason := people.Artist(&mbdump.Artist{Type: "Orchestra"})
	assert.False(t, ok)
	assert.Contains(t, reason, "Orchestra")
	ok, _ = people.Artist(&mbdump.Artist{})
	assert.False(t, ok)
}

func TestTypeSet(t *testing.T) {
	s := NewTypeSet([]string{"Album", "", "  EP "})
	assert.Len(t, s, 2)
	assert.True(t, s.Has("EP"))
	assert.Equal(t, "EP", s.First("Single", "EP", "Album"))
	assert.Equal(t, "", s.First("Single"))
}
