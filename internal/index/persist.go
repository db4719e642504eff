package index

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/franz/mbflat/internal/util"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// FormatVersion changes whenever the on-disk layout changes; older
// indexes are rebuilt.
const FormatVersion = 1

// Manifest is written after the index files and marks a build complete.
// Its fingerprint decides whether the index is still valid for the source.
type Manifest struct {
	Version     int                  `json:"version"`
	Entity      EntityType           `json:"entity"`
	Source      string               `json:"source"`
	Fingerprint util.FileFingerprint `json:"fingerprint"`
	Records     int                  `json:"records"`
	Malformed   int                  `json:"malformed"`
	Duplicates  int                  `json:"duplicates"`
	Orphans     int                  `json:"orphans"`
	Parents     int                  `json:"parents,omitempty"`
	BuiltAt     time.Time            `json:"built_at"`
}

// Matches reports whether m was built from the given source version.
func (m *Manifest) Matches(source string, fp util.FileFingerprint) bool {
	return m != nil && m.Version == FormatVersion && m.Source == source && m.Fingerprint == fp
}

func offsetsPath(dir string, e EntityType) string  { return filepath.Join(dir, string(e)+".offsets") }
func childrenPath(dir string, e EntityType) string { return filepath.Join(dir, string(e)+".children") }
func manifestPath(dir string, e EntityType) string {
	return filepath.Join(dir, string(e)+".manifest.json")
}

type fileHeader struct {
	Version int        `msgpack:"v"`
	Entity  EntityType `msgpack:"e"`
	Count   int        `msgpack:"n"`
}

// writeStream encodes header and entries to path via a temp file.
func writeStream(path string, body func(enc *msgpack.Encoder) error) error {
	tmp := path + util.PartialSuffix
	f, err := os.Create(tmp)
	if err != nil {
		return util.ClassifyFSError(err)
	}
	w := bufio.NewWriterSize(f, 1<<20)
	enc := msgpack.NewEncoder(w)

	err = body(enc)
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return util.ClassifyFSError(fmt.Errorf("write %s: %w", path, err))
	}
	return util.RetryableRename(tmp, path, nil)
}

func encodeUUID(enc *msgpack.Encoder, id uuid.UUID) error {
	return enc.EncodeBytes(id[:])
}

func decodeUUID(dec *msgpack.Decoder) (uuid.UUID, error) {
	b, err := dec.DecodeBytes()
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.FromBytes(b)
}

func saveOffsets(dir string, idx *OffsetIndex) error {
	return writeStream(offsetsPath(dir, idx.entity), func(enc *msgpack.Encoder) error {
		if err := enc.Encode(fileHeader{Version: FormatVersion, Entity: idx.entity, Count: idx.Len()}); err != nil {
			return err
		}
		for _, id := range idx.SortedIDs() {
			loc := idx.entries[id]
			if err := encodeUUID(enc, id); err != nil {
				return err
			}
			if err := enc.EncodeInt(loc.Offset); err != nil {
				return err
			}
			if err := enc.EncodeInt(loc.Length); err != nil {
				return err
			}
		}
		return nil
	})
}

func saveChildren(dir string, rev *ReverseIndex) error {
	parents := make([]uuid.UUID, 0, len(rev.entries))
	for p := range rev.entries {
		parents = append(parents, p)
	}
	slices.SortFunc(parents, compareUUID)

	return writeStream(childrenPath(dir, rev.entity), func(enc *msgpack.Encoder) error {
		if err := enc.Encode(fileHeader{Version: FormatVersion, Entity: rev.entity, Count: len(parents)}); err != nil {
			return err
		}
		for _, p := range parents {
			children := rev.entries[p]
			if err := encodeUUID(enc, p); err != nil {
				return err
			}
			if err := enc.EncodeArrayLen(len(children)); err != nil {
				return err
			}
			for _, c := range children {
				if err := encodeUUID(enc, c); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func saveManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(manifestPath(dir, m.Entity), append(data, '\n'), util.WriteOptions{Fsync: true})
}

// LoadManifest reads the completion marker of entity, or returns
// util.ErrNotFound if the index was never completed.
func LoadManifest(dir string, e EntityType) (*Manifest, error) {
	data, err := os.ReadFile(manifestPath(dir, e))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no completed %s index in %s", util.ErrNotFound, e, dir)
		}
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s manifest: %w", e, err)
	}
	return &m, nil
}

func openStream(path string, e EntityType) (*os.File, *msgpack.Decoder, fileHeader, error) {
	var hdr fileHeader
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, hdr, err
	}
	dec := msgpack.NewDecoder(bufio.NewReaderSize(f, 1<<20))
	if err := dec.Decode(&hdr); err != nil {
		f.Close()
		return nil, nil, hdr, fmt.Errorf("read header of %s: %w", path, err)
	}
	if hdr.Version != FormatVersion || hdr.Entity != e {
		f.Close()
		return nil, nil, hdr, fmt.Errorf("%w: %s has version %d entity %q", util.ErrStaleIndex, path, hdr.Version, hdr.Entity)
	}
	return f, dec, hdr, nil
}

func loadOffsets(dir string, e EntityType) (*OffsetIndex, error) {
	path := offsetsPath(dir, e)
	f, dec, hdr, err := openStream(path, e)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	idx := newOffsetIndex(e, hdr.Count)
	for i := 0; i < hdr.Count; i++ {
		id, err := decodeUUID(dec)
		if err != nil {
			return nil, truncated(path, i, err)
		}
		off, err := dec.DecodeInt64()
		if err != nil {
			return nil, truncated(path, i, err)
		}
		n, err := dec.DecodeInt64()
		if err != nil {
			return nil, truncated(path, i, err)
		}
		idx.entries[id] = Location{Offset: off, Length: n}
	}
	return idx, nil
}

func loadChildren(dir string, e EntityType) (*ReverseIndex, error) {
	path := childrenPath(dir, e)
	f, dec, hdr, err := openStream(path, e)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rev := newReverseIndex(e)
	for i := 0; i < hdr.Count; i++ {
		parent, err := decodeUUID(dec)
		if err != nil {
			return nil, truncated(path, i, err)
		}
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, truncated(path, i, err)
		}
		children := make([]uuid.UUID, n)
		for j := range children {
			if children[j], err = decodeUUID(dec); err != nil {
				return nil, truncated(path, i, err)
			}
		}
		rev.entries[parent] = children
	}
	return rev, nil
}

func truncated(path string, i int, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%s truncated at entry %d: %w", path, i, err)
	}
	return fmt.Errorf("%s entry %d: %w", path, i, err)
}
