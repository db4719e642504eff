package normalize

import (
	"cmp"
	"slices"

	"github.com/franz/mbflat/internal/mbdump"
)

const (
	unknownType   = "Unknown"
	defaultAlbum  = "Album"
	unknownStatus = "Unknown"
	unknownFormat = "Unknown"
)

// FormatReleaseDate pads partial dates: "1997" -> "1997-01-01",
// "1997-05" -> "1997-05-01". Anything else is returned unchanged.
func FormatReleaseDate(s string) string {
	switch len(s) {
	case 4:
		return s + "-01-01"
	case 7:
		return s + "-01"
	}
	return s
}

// Artist builds the artist document. albums are the album documents that
// survived filtering; an empty list still produces a document.
func Artist(a *mbdump.Artist, albums []*AlbumDocument) *ArtistDocument {
	doc := &ArtistDocument{
		ArtistInfo: artistInfo(a),
		Albums:     make([]AlbumSummary, 0, len(albums)),
	}
	for _, album := range albums {
		doc.Albums = append(doc.Albums, summarize(album))
	}
	slices.SortFunc(doc.Albums, func(x, y AlbumSummary) int {
		return cmp.Or(cmp.Compare(x.Title, y.Title), cmp.Compare(x.ID, y.ID))
	})
	return doc
}

func summarize(album *AlbumDocument) AlbumSummary {
	statuses := make([]string, 0, 1)
	for _, r := range album.Releases {
		if !slices.Contains(statuses, r.Status) {
			statuses = append(statuses, r.Status)
		}
	}
	slices.Sort(statuses)
	return AlbumSummary{
		ID:              album.ID,
		Title:           album.Title,
		Type:            album.Type,
		SecondaryTypes:  album.SecondaryTypes,
		ReleaseStatuses: statuses,
		OldIDs:          []string{},
	}
}

func artistInfo(a *mbdump.Artist) ArtistInfo {
	status := "active"
	if a.LifeSpan.Ended {
		status = "ended"
	}
	area := ""
	if a.Area != nil {
		area = a.Area.Name
	}
	return ArtistInfo{
		ID:             a.ID,
		ArtistID:       a.ID,
		ArtistName:     CleanString(a.Name),
		SortName:       CleanString(a.SortName),
		Disambiguation: a.Disambiguation,
		Type:           cmp.Or(a.Type, unknownType),
		Gender:         a.Gender,
		Country:        a.Country,
		Area:           area,
		Status:         status,
		ArtistAliases:  aliasNames(a.Aliases),
		Tags:           tagNames(a.Tags),
		Rating:         rating(a.Rating),
		Genres:         genres(a.Genres, a.Tags),
		Links:          links(a.Relations),
		Images:         []Image{},
		Overview:       a.Annotation,
		OldIDs:         []string{},
	}
}

// Album builds the album document of rg owned by artist from the given
// releases. Releases repeated in the input are included once.
func Album(rg *mbdump.ReleaseGroup, artist *mbdump.Artist, releases []*mbdump.Release) *AlbumDocument {
	doc := &AlbumDocument{
		ID:             rg.ID,
		Title:          CleanString(rg.Title),
		ArtistID:       artist.ID,
		Type:           cmp.Or(rg.PrimaryType, defaultAlbum),
		Disambiguation: rg.Disambiguation,
		Overview:       rg.Annotation,
		ReleaseDate:    FormatReleaseDate(rg.FirstReleaseDate),
		Rating:         rating(rg.Rating),
		Genres:         genres(rg.Genres, rg.Tags),
		Releases:       make([]ReleaseEntry, 0, len(releases)),
		SecondaryTypes: nonNil(rg.SecondaryTypes),
		Artists:        []ArtistInfo{artistInfo(artist)},
		Images:         []Image{},
		Links:          links(rg.Relations),
		Aliases:        aliasNames(rg.Aliases),
		OldIDs:         []string{},
		ArtistCredit:   mbdump.CreditedName(rg.ArtistCredit),
	}

	seen := make(map[string]struct{}, len(releases))
	for _, r := range releases {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		doc.Releases = append(doc.Releases, release(r, artist.ID))
	}
	return doc
}

func release(r *mbdump.Release, albumArtistID string) ReleaseEntry {
	entry := ReleaseEntry{
		ID:             r.ID,
		Title:          CleanString(r.Title),
		Status:         cmp.Or(r.Status, unknownStatus),
		ReleaseDate:    FormatReleaseDate(r.Date),
		Country:        countries(r),
		Label:          labels(r.LabelInfo),
		Disambiguation: r.Disambiguation,
		OldIDs:         []string{},
		Media:          make([]Medium, 0, len(r.Media)),
		Tracks:         []Track{},
	}

	for _, m := range r.Media {
		entry.Media = append(entry.Media, Medium{
			Format:   cmp.Or(m.Format, unknownFormat),
			Name:     m.Title,
			Position: m.Position,
		})
		for _, t := range m.Tracks {
			entry.Tracks = append(entry.Tracks, track(t, m.Position, albumArtistID))
		}
		entry.TrackCount += len(m.Tracks)
	}
	return entry
}

func track(t mbdump.Track, medium int, albumArtistID string) Track {
	artistID := albumArtistID
	if len(t.ArtistCredit) > 0 && t.ArtistCredit[0].Artist.ID != "" {
		artistID = t.ArtistCredit[0].Artist.ID
	}

	var recordingID string
	var duration int64
	if t.Recording != nil {
		recordingID = t.Recording.ID
		if t.Recording.Length != nil {
			duration = *t.Recording.Length
		}
	}
	if t.Length != nil {
		duration = *t.Length
	}

	return Track{
		ID:              t.ID,
		TrackName:       CleanString(t.Title),
		TrackNumber:     t.Number,
		TrackPosition:   t.Position,
		DurationMS:      duration,
		ArtistID:        artistID,
		RecordingID:     recordingID,
		MediumNumber:    medium,
		OldIDs:          []string{},
		OldRecordingIDs: []string{},
	}
}

// countries merges the release country with the ISO codes of every
// release event, without repeats.
func countries(r *mbdump.Release) []string {
	out := make([]string, 0, 1)
	add := func(c string) {
		if c != "" && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	add(r.Country)
	for _, ev := range r.ReleaseEvents {
		if ev.Area == nil {
			continue
		}
		for _, code := range ev.Area.ISOCodes {
			add(code)
		}
	}
	return out
}

func labels(infos []mbdump.LabelInfo) []string {
	out := make([]string, 0, len(infos))
	for _, li := range infos {
		if li.Label == nil || li.Label.Name == "" || slices.Contains(out, li.Label.Name) {
			continue
		}
		out = append(out, li.Label.Name)
	}
	return out
}

func rating(r *mbdump.Rating) Rating {
	if r == nil {
		return Rating{}
	}
	out := Rating{Count: r.VoteCount}
	if r.Value != nil {
		out.Value = *r.Value
	}
	return out
}

func aliasNames(aliases []mbdump.Alias) []string {
	out := make([]string, 0, len(aliases))
	for _, a := range aliases {
		if a.Name != "" {
			out = append(out, a.Name)
		}
	}
	return out
}

func tagNames(tags []mbdump.Tag) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t.Name != "" {
			out = append(out, t.Name)
		}
	}
	return out
}

// genres prefers curated genres and falls back to folksonomy tags.
func genres(gs []mbdump.Genre, tags []mbdump.Tag) []string {
	if len(gs) == 0 {
		return tagNames(tags)
	}
	out := make([]string, 0, len(gs))
	for _, g := range gs {
		if g.Name != "" {
			out = append(out, g.Name)
		}
	}
	return out
}

func links(rels []mbdump.Relation) []Link {
	out := make([]Link, 0)
	for _, rel := range rels {
		if rel.Type == "" || rel.URL == nil || rel.URL.Resource == "" {
			continue
		}
		out = append(out, Link{Type: rel.Type, Target: rel.URL.Resource})
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
