// Package flatfile reads line-delimited dump files, either sequentially with
// byte offsets or by random access to a known (offset, length) span.
package flatfile

import (
	"bufio"
	"errors"
	"io"
)

// DefaultBufferSize is the read buffer of a Scanner. Lines longer than this
// are still returned whole.
const DefaultBufferSize = 1 << 20

// Scanner yields lines together with their byte offset in the file.
// The returned line excludes the terminating '\n' and is only valid until
// the next call to Scan.
type Scanner struct {
	r      *bufio.Reader
	long   []byte
	line   []byte
	offset int64 // offset of the current line
	next   int64 // offset of the byte after the current line
	err    error
}

// NewScanner returns a scanner starting at offset 0 of r.
func NewScanner(r io.Reader, bufSize int) *Scanner {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &Scanner{r: bufio.NewReaderSize(r, bufSize)}
}

// Scan advances to the next line. It returns false at EOF or on error.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	s.offset = s.next
	s.long = s.long[:0]

	for {
		chunk, err := s.r.ReadSlice('\n')
		switch {
		case err == nil:
			s.next += int64(len(chunk))
			chunk = chunk[:len(chunk)-1]
			if len(s.long) > 0 {
				s.long = append(s.long, chunk...)
				s.line = s.long
			} else {
				s.line = chunk
			}
			return true

		case errors.Is(err, bufio.ErrBufferFull):
			s.next += int64(len(chunk))
			s.long = append(s.long, chunk...)

		case errors.Is(err, io.EOF):
			s.next += int64(len(chunk))
			s.err = io.EOF
			if len(s.long) == 0 && len(chunk) == 0 {
				return false
			}
			s.long = append(s.long, chunk...)
			s.line = s.long
			return true

		default:
			s.err = err
			return false
		}
	}
}

// Bytes returns the current line without its '\n'.
func (s *Scanner) Bytes() []byte { return s.line }

// Offset returns the byte offset of the current line.
func (s *Scanner) Offset() int64 { return s.offset }

// Position returns the number of bytes consumed so far.
func (s *Scanner) Position() int64 { return s.next }

// Err returns the first non-EOF error encountered.
func (s *Scanner) Err() error {
	if errors.Is(s.err, io.EOF) {
		return nil
	}
	return s.err
}
