package xlrd

import (
	"io"
	"sort"
)

// Stream is a compound-file stream assembled from an ordered list of windows
// into the sector store. Runs of adjacent sectors are merged, so a fully
// contiguous stream is a single window and reading it never copies.
type Stream struct {
	Name    string
	windows [][]byte
	starts  []int // starts[i] is the stream offset of windows[i]
	size    int
}

func newStream(name string, windows [][]byte) *Stream {
	s := &Stream{Name: name}
	for _, w := range windows {
		if len(w) == 0 {
			continue
		}
		s.windows = append(s.windows, w)
		s.starts = append(s.starts, s.size)
		s.size += len(w)
	}
	return s
}

// NewMemoryStream wraps a byte slice as a single-window stream.
func NewMemoryStream(name string, data []byte) *Stream {
	return newStream(name, [][]byte{data})
}

// Len returns the stream size in bytes.
func (s *Stream) Len() int {
	return s.size
}

// Contiguous reports whether the stream is backed by one window.
func (s *Stream) Contiguous() bool {
	return len(s.windows) <= 1
}

// Windows returns the number of windows backing the stream.
func (s *Stream) Windows() int {
	return len(s.windows)
}

func (s *Stream) locate(off int) int {
	return sort.Search(len(s.starts), func(i int) bool { return s.starts[i] > off }) - 1
}

// ReadAt implements io.ReaderAt.
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, NewXLRDError("negative offset %d", off)
	}
	if off >= int64(s.size) {
		return 0, io.EOF
	}
	pos := int(off)
	n := 0
	for i := s.locate(pos); i < len(s.windows) && n < len(p); i++ {
		w := s.windows[i][pos-s.starts[i]:]
		c := copy(p[n:], w)
		n += c
		pos += c
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Slice returns n bytes starting at off. The result is a view into the
// backing store when the range lies inside one window, and a copy of exactly
// n bytes otherwise. A range past the end of the stream returns io.ErrUnexpectedEOF.
func (s *Stream) Slice(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > s.size {
		return nil, io.ErrUnexpectedEOF
	}
	if n == 0 {
		return []byte{}, nil
	}
	i := s.locate(off)
	rel := off - s.starts[i]
	if rel+n <= len(s.windows[i]) {
		return s.windows[i][rel : rel+n : rel+n], nil
	}
	buf := make([]byte, n)
	if _, err := s.ReadAt(buf, int64(off)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Bytes returns the whole stream, copying only when it is not contiguous.
func (s *Stream) Bytes() []byte {
	if len(s.windows) == 1 {
		return s.windows[0]
	}
	b, _ := s.Slice(0, s.size)
	return b
}
