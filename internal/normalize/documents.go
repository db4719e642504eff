// Package normalize maps raw dump records onto the artist and album
// documents served to clients. Everything here is pure: no I/O, no state.
package normalize

// Rating is a vote summary.
type Rating struct {
	Count int     `json:"count"`
	Value float64 `json:"value"`
}

// Link is an external URL relation.
type Link struct {
	Type   string `json:"type"`
	Target string `json:"target"`
}

// Image is a cover or artist image reference.
type Image struct {
	CoverType string `json:"CoverType"`
	URL       string `json:"Url"`
}

// ArtistInfo is the artist block shared by artist documents and the
// artists list of album documents.
type ArtistInfo struct {
	ID             string   `json:"id"`
	ArtistID       string   `json:"artistid"`
	ArtistName     string   `json:"artistname"`
	SortName       string   `json:"sortname"`
	Disambiguation string   `json:"disambiguation"`
	Type           string   `json:"type"`
	Gender         string   `json:"gender"`
	Country        string   `json:"country"`
	Area           string   `json:"area"`
	Status         string   `json:"status"`
	ArtistAliases  []string `json:"artistaliases"`
	Tags           []string `json:"tags"`
	Rating         Rating   `json:"rating"`
	Genres         []string `json:"genres"`
	Links          []Link   `json:"links"`
	Images         []Image  `json:"images"`
	Overview       string   `json:"overview"`
	OldIDs         []string `json:"oldids"`
}

// AlbumSummary is one entry of an artist's album list.
type AlbumSummary struct {
	ID              string   `json:"Id"`
	Title           string   `json:"Title"`
	Type            string   `json:"Type"`
	SecondaryTypes  []string `json:"SecondaryTypes"`
	ReleaseStatuses []string `json:"ReleaseStatuses"`
	OldIDs          []string `json:"OldIds"`
}

// ArtistDocument is written to artist/<mbid>.json.
type ArtistDocument struct {
	ArtistInfo
	Albums []AlbumSummary `json:"Albums"`
}

// AlbumDocument is written to album/<mbid>.json.
type AlbumDocument struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	ArtistID       string         `json:"artistid"`
	Type           string         `json:"type"`
	Disambiguation string         `json:"disambiguation"`
	Overview       string         `json:"overview"`
	ReleaseDate    string         `json:"releasedate"`
	Rating         Rating         `json:"rating"`
	Genres         []string       `json:"genres"`
	Releases       []ReleaseEntry `json:"releases"`
	SecondaryTypes []string       `json:"secondarytypes"`
	Artists        []ArtistInfo   `json:"artists"`
	Images         []Image        `json:"images"`
	Links          []Link         `json:"links"`
	Aliases        []string       `json:"aliases"`
	OldIDs         []string       `json:"oldids"`

	// ArtistCredit is the printed credit, used for search rows only.
	ArtistCredit string `json:"-"`
}

// ReleaseEntry is one release embedded in an album document.
type ReleaseEntry struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Status         string   `json:"status"`
	ReleaseDate    string   `json:"releasedate"`
	Country        []string `json:"country"`
	Label          []string `json:"label"`
	Disambiguation string   `json:"disambiguation"`
	OldIDs         []string `json:"oldids"`
	Media          []Medium `json:"media"`
	TrackCount     int      `json:"track_count"`
	Tracks         []Track  `json:"tracks"`
}

// Medium describes one disc or side.
type Medium struct {
	Format   string `json:"Format"`
	Name     string `json:"Name"`
	Position int    `json:"Position"`
}

// Track is one track of a release.
type Track struct {
	ID              string   `json:"id"`
	TrackName       string   `json:"trackname"`
	TrackNumber     string   `json:"tracknumber"`
	TrackPosition   int      `json:"trackposition"`
	DurationMS      int64    `json:"durationms"`
	ArtistID        string   `json:"artistid"`
	RecordingID     string   `json:"recordingid"`
	MediumNumber    int      `json:"mediumnumber"`
	OldIDs          []string `json:"oldids"`
	OldRecordingIDs []string `json:"oldrecordingids"`
}
