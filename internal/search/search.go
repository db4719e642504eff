// Package search maintains the artist and album search databases that sit
// next to the JSON documents. Each database is a plain table plus an FTS5
// index kept in sync by triggers.
package search

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/franz/mbflat/internal/normalize"
	"github.com/franz/mbflat/internal/store"
)

const schemaVersion = 2

const artistSchema = `
CREATE TABLE IF NOT EXISTS artists (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  sort_name TEXT NOT NULL,
  unaccented_name TEXT NOT NULL,
  name_key TEXT NOT NULL DEFAULT '',
  type TEXT NOT NULL DEFAULT '',
  country TEXT NOT NULL DEFAULT '',
  disambiguation TEXT NOT NULL DEFAULT '',
  album_count INTEGER NOT NULL DEFAULT 0,
  updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_artists_name_key ON artists(name_key);

CREATE VIRTUAL TABLE IF NOT EXISTS artists_fts USING fts5(
  name, sort_name, unaccented_name,
  content='artists', content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS artists_ai AFTER INSERT ON artists BEGIN
  INSERT INTO artists_fts(rowid, name, sort_name, unaccented_name)
  VALUES (new.rowid, new.name, new.sort_name, new.unaccented_name);
END;

CREATE TRIGGER IF NOT EXISTS artists_ad AFTER DELETE ON artists BEGIN
  INSERT INTO artists_fts(artists_fts, rowid, name, sort_name, unaccented_name)
  VALUES ('delete', old.rowid, old.name, old.sort_name, old.unaccented_name);
END;

CREATE TRIGGER IF NOT EXISTS artists_au AFTER UPDATE ON artists BEGIN
  INSERT INTO artists_fts(artists_fts, rowid, name, sort_name, unaccented_name)
  VALUES ('delete', old.rowid, old.name, old.sort_name, old.unaccented_name);
  INSERT INTO artists_fts(rowid, name, sort_name, unaccented_name)
  VALUES (new.rowid, new.name, new.sort_name, new.unaccented_name);
END;
`

const albumSchema = `
CREATE TABLE IF NOT EXISTS albums (
  id TEXT PRIMARY KEY,
  artist_id TEXT NOT NULL,
  title TEXT NOT NULL,
  artist_name TEXT NOT NULL,
  unaccented_title TEXT NOT NULL,
  type TEXT NOT NULL DEFAULT '',
  secondary_types TEXT NOT NULL DEFAULT '',
  release_date TEXT NOT NULL DEFAULT '',
  release_count INTEGER NOT NULL DEFAULT 0,
  updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_albums_artist ON albums(artist_id);

CREATE VIRTUAL TABLE IF NOT EXISTS albums_fts USING fts5(
  title, artist_name, unaccented_title,
  content='albums', content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS albums_ai AFTER INSERT ON albums BEGIN
  INSERT INTO albums_fts(rowid, title, artist_name, unaccented_title)
  VALUES (new.rowid, new.title, new.artist_name, new.unaccented_title);
END;

CREATE TRIGGER IF NOT EXISTS albums_ad AFTER DELETE ON albums BEGIN
  INSERT INTO albums_fts(albums_fts, rowid, title, artist_name, unaccented_title)
  VALUES ('delete', old.rowid, old.title, old.artist_name, old.unaccented_title);
END;

CREATE TRIGGER IF NOT EXISTS albums_au AFTER UPDATE ON albums BEGIN
  INSERT INTO albums_fts(albums_fts, rowid, title, artist_name, unaccented_title)
  VALUES ('delete', old.rowid, old.title, old.artist_name, old.unaccented_title);
  INSERT INTO albums_fts(rowid, title, artist_name, unaccented_title)
  VALUES (new.rowid, new.title, new.artist_name, new.unaccented_title);
END;
`

// artistUpgrades bring an artist database written by an older schema
// version up to date, keyed by the version they upgrade from.
var artistUpgrades = map[int]func(*sql.Tx) error{
	1: addNameKey,
}

// DB holds the artist and release-group search databases.
type DB struct {
	artists *sql.DB
	albums  *sql.DB
}

// ArtistHit is one artist search result.
type ArtistHit struct {
	ID             string
	Name           string
	SortName       string
	Type           string
	Country        string
	Disambiguation string
	AlbumCount     int
}

// AlbumHit is one album search result.
type AlbumHit struct {
	ID          string
	ArtistID    string
	Title       string
	ArtistName  string
	Type        string
	ReleaseDate string
}

// Open opens (creating if needed) the artist and release-group databases.
func Open(artistPath, releaseGroupPath string) (*DB, error) {
	artists, err := openDB(artistPath, artistSchema, artistUpgrades)
	if err != nil {
		return nil, err
	}
	albums, err := openDB(releaseGroupPath, albumSchema, nil)
	if err != nil {
		artists.Close()
		return nil, err
	}
	return &DB{artists: artists, albums: albums}, nil
}

func openDB(path, schema string, upgrades map[int]func(*sql.Tx) error) (*sql.DB, error) {
	db, err := sql.Open("sqlite", store.DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open search db %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		db.Close()
		return nil, fmt.Errorf("search db %s: %w", path, err)
	}
	if version >= schemaVersion {
		return db, nil
	}
	if version == 0 {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("create search schema in %s: %w", path, err)
		}
	} else {
		for v := version; v < schemaVersion; v++ {
			fn := upgrades[v]
			if fn == nil {
				continue
			}
			if err := inTx(db, fn); err != nil {
				db.Close()
				return nil, fmt.Errorf("upgrade search db %s from version %d: %w", path, v, err)
			}
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// addNameKey adds the folded name column and fills it for existing rows.
func addNameKey(tx *sql.Tx) error {
	if _, err := tx.Exec(`ALTER TABLE artists ADD COLUMN name_key TEXT NOT NULL DEFAULT ''`); err != nil {
		return err
	}
	if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_artists_name_key ON artists(name_key)`); err != nil {
		return err
	}
	rows, err := tx.Query(`SELECT id, name FROM artists`)
	if err != nil {
		return err
	}
	keys := map[string]string{}
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return err
		}
		keys[id] = nameKey(name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for id, key := range keys {
		if _, err := tx.Exec(`UPDATE artists SET name_key = ? WHERE id = ?`, key, id); err != nil {
			return err
		}
	}
	return nil
}

// nameKey is the exact-match key of an artist name. Names made only of
// punctuation ("!!!") fold to nothing, so they keep their lowercased form.
func nameKey(name string) string {
	if k := normalize.SearchKey(name); k != "" {
		return k
	}
	return strings.ToLower(strings.TrimSpace(name))
}

// Close closes both databases.
func (d *DB) Close() error {
	errA := d.artists.Close()
	errB := d.albums.Close()
	if errA != nil {
		return errA
	}
	return errB
}

// Upsert replaces the rows of one artist and all of its albums. Albums
// previously stored for the artist but absent from albums are removed, so
// a retried or re-filtered artist never leaves stale rows behind.
func (d *DB) Upsert(artist *normalize.ArtistDocument, albums []*normalize.AlbumDocument) error {
	now := time.Now().UnixMilli()

	if err := inTx(d.albums, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM albums WHERE artist_id = ?`, artist.ID); err != nil {
			return err
		}
		stmt, err := tx.Prepare(`
			INSERT INTO albums (id, artist_id, title, artist_name, unaccented_title, type,
			                    secondary_types, release_date, release_count, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
			  artist_id = excluded.artist_id,
			  title = excluded.title,
			  artist_name = excluded.artist_name,
			  unaccented_title = excluded.unaccented_title,
			  type = excluded.type,
			  secondary_types = excluded.secondary_types,
			  release_date = excluded.release_date,
			  release_count = excluded.release_count,
			  updated_at = excluded.updated_at
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, a := range albums {
			credit := a.ArtistCredit
			if credit == "" {
				credit = artist.ArtistName
			}
			if _, err := stmt.Exec(a.ID, artist.ID, a.Title, credit, normalize.Unaccent(a.Title), a.Type,
				strings.Join(a.SecondaryTypes, ","), a.ReleaseDate, len(a.Releases), now); err != nil {
				return fmt.Errorf("album %s: %w", a.ID, err)
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("upsert albums of %s: %w", artist.ID, err)
	}

	if err := inTx(d.artists, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO artists (id, name, sort_name, unaccented_name, name_key, type, country,
			                     disambiguation, album_count, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
			  name = excluded.name,
			  sort_name = excluded.sort_name,
			  unaccented_name = excluded.unaccented_name,
			  name_key = excluded.name_key,
			  type = excluded.type,
			  country = excluded.country,
			  disambiguation = excluded.disambiguation,
			  album_count = excluded.album_count,
			  updated_at = excluded.updated_at
		`, artist.ID, artist.ArtistName, artist.SortName, normalize.Unaccent(artist.ArtistName),
			nameKey(artist.ArtistName), artist.Type, artist.Country, artist.Disambiguation, len(artist.Albums), now)
		return err
	}); err != nil {
		return fmt.Errorf("upsert artist %s: %w", artist.ID, err)
	}
	return nil
}

func inTx(db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// matchQuery turns free text into an FTS5 query of quoted terms, so user
// input never reaches the FTS5 query parser as syntax.
func matchQuery(q string) string {
	var terms []string
	for _, f := range strings.Fields(normalize.Unaccent(q)) {
		terms = append(terms, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " ")
}

// SearchArtists returns artists matching every word of q, best match first.
func (d *DB) SearchArtists(q string, limit int) ([]ArtistHit, error) {
	match := matchQuery(q)
	if match == "" {
		return nil, nil
	}
	rows, err := d.artists.Query(`
		SELECT a.id, a.name, a.sort_name, a.type, a.country, a.disambiguation, a.album_count
		FROM artists_fts f
		JOIN artists a ON a.rowid = f.rowid
		WHERE artists_fts MATCH ?
		ORDER BY rank, a.id
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("search artists %q: %w", q, err)
	}
	defer rows.Close()

	var hits []ArtistHit
	for rows.Next() {
		var h ArtistHit
		if err := rows.Scan(&h.ID, &h.Name, &h.SortName, &h.Type, &h.Country, &h.Disambiguation, &h.AlbumCount); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// ArtistsByName returns the artists whose name folds to the same key as
// name, so "the beatles" finds "Beatles, The" and "AC/DC" finds "AC-DC".
// Artists with more albums come first.
func (d *DB) ArtistsByName(name string, limit int) ([]ArtistHit, error) {
	key := nameKey(name)
	if key == "" {
		return nil, nil
	}
	rows, err := d.artists.Query(`
		SELECT id, name, sort_name, type, country, disambiguation, album_count
		FROM artists
		WHERE name_key = ?
		ORDER BY album_count DESC, id
		LIMIT ?
	`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("artists named %q: %w", name, err)
	}
	defer rows.Close()

	var hits []ArtistHit
	for rows.Next() {
		var h ArtistHit
		if err := rows.Scan(&h.ID, &h.Name, &h.SortName, &h.Type, &h.Country, &h.Disambiguation, &h.AlbumCount); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// SearchAlbums returns albums whose title or artist matches every word of q.
func (d *DB) SearchAlbums(q string, limit int) ([]AlbumHit, error) {
	match := matchQuery(q)
	if match == "" {
		return nil, nil
	}
	rows, err := d.albums.Query(`
		SELECT a.id, a.artist_id, a.title, a.artist_name, a.type, a.release_date
		FROM albums_fts f
		JOIN albums a ON a.rowid = f.rowid
		WHERE albums_fts MATCH ?
		ORDER BY rank, a.id
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("search albums %q: %w", q, err)
	}
	defer rows.Close()

	var hits []AlbumHit
	for rows.Next() {
		var h AlbumHit
		if err := rows.Scan(&h.ID, &h.ArtistID, &h.Title, &h.ArtistName, &h.Type, &h.ReleaseDate); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Counts returns the number of artist and album rows.
func (d *DB) Counts() (artists, albums int, err error) {
	if err = d.artists.QueryRow(`SELECT COUNT(*) FROM artists`).Scan(&artists); err != nil {
		return 0, 0, err
	}
	if err = d.albums.QueryRow(`SELECT COUNT(*) FROM albums`).Scan(&albums); err != nil {
		return 0, 0, err
	}
	return artists, albums, nil
}

// AlbumsOf returns the album ids stored for artistID in ascending order.
func (d *DB) AlbumsOf(artistID string) ([]string, error) {
	rows, err := d.albums.Query(`SELECT id FROM albums WHERE artist_id = ? ORDER BY id`, artistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
