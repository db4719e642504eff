package archive

import (
	"bufio"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/franz/mbflat/internal/util"
)

// Checksum is an expected digest for one archive.
type Checksum struct {
	Algorithm string // "md5" or "sha256"
	Hex       string
}

// NewHash returns a hash.Hash for the checksum's algorithm.
func (c Checksum) NewHash() hash.Hash {
	if c.Algorithm == "sha256" {
		return sha256.New()
	}
	return md5.New()
}

// Manifest maps archive base names to checksums.
type Manifest struct {
	entries map[string]Checksum
}

// Lookup returns the checksum recorded for the archive at path.
func (m *Manifest) Lookup(path string) (Checksum, bool) {
	if m == nil {
		return Checksum{}, false
	}
	c, ok := m.entries[filepath.Base(path)]
	return c, ok
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// ParseManifest reads md5sum/sha256sum output: "<hex>  <file>" or
// "<hex> *<file>". The digest length picks the algorithm.
func ParseManifest(r io.Reader) (*Manifest, error) {
	m := &Manifest{entries: make(map[string]Checksum)}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		sum, name, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("manifest line %d: expected '<digest> <file>'", lineNo)
		}
		name = strings.TrimPrefix(strings.TrimLeft(name, " "), "*")
		if name == "" {
			return nil, fmt.Errorf("manifest line %d: missing file name", lineNo)
		}
		if _, err := hex.DecodeString(sum); err != nil {
			return nil, fmt.Errorf("manifest line %d: digest is not hex", lineNo)
		}

		var algo string
		switch len(sum) {
		case 32:
			algo = "md5"
		case 64:
			algo = "sha256"
		default:
			return nil, fmt.Errorf("manifest line %d: unsupported digest length %d", lineNo, len(sum))
		}
		m.entries[filepath.Base(name)] = Checksum{Algorithm: algo, Hex: strings.ToLower(sum)}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadManifest parses the manifest file at path.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: checksum manifest %s", util.ErrNotFound, path)
		}
		return nil, err
	}
	defer f.Close()
	return ParseManifest(f)
}

// verifyChecksum streams path through the expected hash.
func verifyChecksum(path string, want Checksum, bufSize int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := want.NewHash()
	if _, err := io.CopyBuffer(h, f, make([]byte, bufSize)); err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	got := hex.EncodeToString(h.Sum(nil))
	if got != want.Hex {
		return fmt.Errorf("%w: %s %s mismatch (expected %s, got %s)",
			util.ErrIntegrity, filepath.Base(path), want.Algorithm, want.Hex, got)
	}
	return nil
}
