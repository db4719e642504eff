package util

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// fingerprintWindow is how much of the head and tail of a file is hashed.
const fingerprintWindow = 1 << 20

// FileFingerprint identifies a flat file version without reading all of it.
type FileFingerprint struct {
	Size    int64  `json:"size"`
	ModTime int64  `json:"mtime_ns"`
	Hash    string `json:"xxhash"`
}

// Fingerprint hashes size, mtime and the first and last MiB of path.
// Dump files are append-only and replaced wholesale, so a change anywhere
// moves at least one of these.
func Fingerprint(path string) (FileFingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileFingerprint{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FileFingerprint{}, err
	}

	h := xxhash.New()
	var meta [16]byte
	binary.LittleEndian.PutUint64(meta[0:8], uint64(info.Size()))
	binary.LittleEndian.PutUint64(meta[8:16], uint64(info.ModTime().UnixNano()))
	_, _ = h.Write(meta[:])

	head := io.NewSectionReader(f, 0, min(info.Size(), fingerprintWindow))
	if _, err := io.Copy(h, head); err != nil {
		return FileFingerprint{}, fmt.Errorf("hash head of %s: %w", path, err)
	}
	if info.Size() > fingerprintWindow {
		start := max(info.Size()-fingerprintWindow, fingerprintWindow)
		tail := io.NewSectionReader(f, start, info.Size()-start)
		if _, err := io.Copy(h, tail); err != nil {
			return FileFingerprint{}, fmt.Errorf("hash tail of %s: %w", path, err)
		}
	}

	return FileFingerprint{
		Size:    info.Size(),
		ModTime: info.ModTime().UnixNano(),
		Hash:    fmt.Sprintf("%016x", h.Sum64()),
	}, nil
}
