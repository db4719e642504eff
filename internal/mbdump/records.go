// Package mbdump holds the typed shape of MusicBrainz JSON dump records.
// Only fields consumed downstream are declared; the decoder ignores the rest.
package mbdump

import (
	"fmt"

	"github.com/franz/mbflat/internal/util"
	"github.com/goccy/go-json"
)

type Artist struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	SortName       string     `json:"sort-name"`
	Disambiguation string     `json:"disambiguation"`
	Type           string     `json:"type"`
	Gender         string     `json:"gender"`
	Country        string     `json:"country"`
	Area           *Area      `json:"area"`
	LifeSpan       LifeSpan   `json:"life-span"`
	Aliases        []Alias    `json:"aliases"`
	Tags           []Tag      `json:"tags"`
	Genres         []Genre    `json:"genres"`
	Relations      []Relation `json:"relations"`
	Rating         *Rating    `json:"rating"`
	Annotation     string     `json:"annotation"`
}

type ReleaseGroup struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	PrimaryType      string         `json:"primary-type"`
	SecondaryTypes   []string       `json:"secondary-types"`
	Disambiguation   string         `json:"disambiguation"`
	FirstReleaseDate string         `json:"first-release-date"`
	ArtistCredit     []ArtistCredit `json:"artist-credit"`
	Aliases          []Alias        `json:"aliases"`
	Tags             []Tag          `json:"tags"`
	Genres           []Genre        `json:"genres"`
	Relations        []Relation     `json:"relations"`
	Rating           *Rating        `json:"rating"`
	Annotation       string         `json:"annotation"`
}

// OwnerID returns the first credited artist, which owns the group.
func (rg *ReleaseGroup) OwnerID() string {
	if len(rg.ArtistCredit) == 0 {
		return ""
	}
	return rg.ArtistCredit[0].Artist.ID
}

// CreditedName renders the artist credit as printed ("A feat. B").
func CreditedName(credits []ArtistCredit) string {
	var s string
	for _, c := range credits {
		name := c.Name
		if name == "" {
			name = c.Artist.Name
		}
		s += name + c.JoinPhrase
	}
	return s
}

type Release struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Status         string          `json:"status"`
	Date           string          `json:"date"`
	Country        string          `json:"country"`
	Disambiguation string          `json:"disambiguation"`
	ReleaseEvents  []ReleaseEvent  `json:"release-events"`
	LabelInfo      []LabelInfo     `json:"label-info"`
	Media          []Medium        `json:"media"`
	ReleaseGroup   ReleaseGroupRef `json:"release-group"`
	ArtistCredit   []ArtistCredit  `json:"artist-credit"`
}

// ReleaseGroupRef is the release group embedded in a release record.
type ReleaseGroupRef struct {
	ID             string   `json:"id"`
	PrimaryType    string   `json:"primary-type"`
	SecondaryTypes []string `json:"secondary-types"`
}

type ArtistCredit struct {
	Name       string    `json:"name"`
	JoinPhrase string    `json:"joinphrase"`
	Artist     ArtistRef `json:"artist"`
}

type ArtistRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	SortName string `json:"sort-name"`
}

type Alias struct {
	Name     string `json:"name"`
	SortName string `json:"sort-name"`
	Locale   string `json:"locale"`
	Type     string `json:"type"`
	Primary  bool   `json:"primary"`
}

type Tag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type Genre struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type Relation struct {
	Type string `json:"type"`
	URL  *URL   `json:"url"`
}

type URL struct {
	ID       string `json:"id"`
	Resource string `json:"resource"`
}

type Rating struct {
	Value     *float64 `json:"value"`
	VoteCount int      `json:"votes-count"`
}

type LifeSpan struct {
	Begin string `json:"begin"`
	End   string `json:"end"`
	Ended bool   `json:"ended"`
}

type Area struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	SortName string   `json:"sort-name"`
	ISOCodes []string `json:"iso-3166-1-codes"`
}

type ReleaseEvent struct {
	Date string `json:"date"`
	Area *Area  `json:"area"`
}

type LabelInfo struct {
	CatalogNumber string `json:"catalog-number"`
	Label         *Label `json:"label"`
}

type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Medium struct {
	Position   int     `json:"position"`
	Title      string  `json:"title"`
	Format     string  `json:"format"`
	TrackCount int     `json:"track-count"`
	Tracks     []Track `json:"tracks"`
}

type Track struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Number       string         `json:"number"`
	Position     int            `json:"position"`
	Length       *int64         `json:"length"`
	Recording    *Recording     `json:"recording"`
	ArtistCredit []ArtistCredit `json:"artist-credit"`
}

type Recording struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Length *int64 `json:"length"`
}

// DecodeArtist parses one artist line.
func DecodeArtist(line []byte) (*Artist, error) {
	var a Artist
	if err := decode(line, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// DecodeReleaseGroup parses one release-group line.
func DecodeReleaseGroup(line []byte) (*ReleaseGroup, error) {
	var rg ReleaseGroup
	if err := decode(line, &rg); err != nil {
		return nil, err
	}
	return &rg, nil
}

// DecodeRelease parses one release line.
func DecodeRelease(line []byte) (*Release, error) {
	var r Release
	if err := decode(line, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func decode(line []byte, v any) error {
	if err := json.Unmarshal(line, v); err != nil {
		return fmt.Errorf("%w: %v", util.ErrMalformedRecord, err)
	}
	return nil
}
