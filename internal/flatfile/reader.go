package flatfile

import (
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/franz/mbflat/internal/util"
)

// Reader modes.
const (
	ModeAuto  = "auto"
	ModeMmap  = "mmap"
	ModePread = "pread"
)

// Reader gives random access to records of one flat file. Implementations
// are safe for concurrent use; callers pass their own scratch buffer.
type Reader interface {
	// ReadRecord returns the length bytes at offset, appended to buf[:0].
	ReadRecord(offset, length int64, buf []byte) ([]byte, error)
	Size() int64
	Mode() string
	Path() string
	Close() error
}

// Open opens path for random access. ModeAuto uses pread on network
// filesystems, where mmap page faults turn into blocking network reads,
// and mmap everywhere else.
func Open(path, mode string) (Reader, error) {
	if mode == "" || mode == ModeAuto {
		mode = ModeMmap
		if fsType, network := util.FilesystemType(path); network {
			util.DebugLog("%s is on %s, using pread", path, fsType)
			mode = ModePread
		}
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", util.ErrNotFound, path)
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	switch mode {
	case ModePread:
		return &preadReader{f: f, size: info.Size(), path: path}, nil
	case ModeMmap:
		if info.Size() == 0 {
			// mmap of an empty file fails; nothing can be read from it anyway
			return &preadReader{f: f, size: 0, path: path}, nil
		}
		m, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("mmap %s: %w", path, err)
		}
		return &mmapReader{f: f, data: m, path: path}, nil
	default:
		f.Close()
		return nil, fmt.Errorf("%w: unknown reader mode %q", util.ErrInvalidConfig, mode)
	}
}

func checkSpan(offset, length, size int64) error {
	if offset < 0 || length < 0 || offset+length > size {
		return fmt.Errorf("span [%d,+%d) outside file of %d bytes: %w", offset, length, size, io.ErrUnexpectedEOF)
	}
	return nil
}

func grow(buf []byte, n int64) []byte {
	if int64(cap(buf)) < n {
		return make([]byte, n, n+n/4)
	}
	return buf[:n]
}

type mmapReader struct {
	f    *os.File
	data mmap.MMap
	path string
}

func (r *mmapReader) ReadRecord(offset, length int64, buf []byte) ([]byte, error) {
	if err := checkSpan(offset, length, int64(len(r.data))); err != nil {
		return buf[:0], err
	}
	// copy out so records stay valid after Close
	return append(buf[:0], r.data[offset:offset+length]...), nil
}

func (r *mmapReader) Size() int64  { return int64(len(r.data)) }
func (r *mmapReader) Mode() string { return ModeMmap }
func (r *mmapReader) Path() string { return r.path }

func (r *mmapReader) Close() error {
	err := r.data.Unmap()
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	return err
}

type preadReader struct {
	f    *os.File
	size int64
	path string
}

func (r *preadReader) ReadRecord(offset, length int64, buf []byte) ([]byte, error) {
	if err := checkSpan(offset, length, r.size); err != nil {
		return buf[:0], err
	}
	buf = grow(buf, length)
	if _, err := r.f.ReadAt(buf, offset); err != nil {
		return buf[:0], fmt.Errorf("read %s at %d: %w", r.path, offset, err)
	}
	return buf, nil
}

func (r *preadReader) Size() int64  { return r.size }
func (r *preadReader) Mode() string { return ModePread }
func (r *preadReader) Path() string { return r.path }
func (r *preadReader) Close() error { return r.f.Close() }
