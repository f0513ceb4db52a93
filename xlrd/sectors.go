package xlrd

import (
	"os"

	mmap "github.com/blevesearch/mmap-go"
)

// SectorStore owns the raw bytes of a compound file and hands out sector views.
//
// The bytes either come from a caller-supplied buffer or from a read-only
// memory map of the file. All slices returned by the store alias its backing
// memory and must not be used after Close.
type SectorStore struct {
	data       []byte
	sectorSize int

	mapped mmap.MMap
	file   *os.File
}

// NewSectorStore wraps data as a sector store with the given sector size.
// The sector size may be changed later by the compound file header.
func NewSectorStore(data []byte, sectorSize int) *SectorStore {
	if sectorSize <= 0 {
		sectorSize = 512
	}
	return &SectorStore{data: data, sectorSize: sectorSize}
}

// OpenMappedStore memory-maps the file at path read-only.
func OpenMappedStore(path string) (*SectorStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size() == 0 {
		// mmap refuses empty files; an empty buffer fails the signature check later.
		f.Close()
		return NewSectorStore(nil, 512), nil
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &SectorStore{data: m, sectorSize: 512, mapped: m, file: f}, nil
}

// Bytes returns the whole backing buffer.
func (s *SectorStore) Bytes() []byte {
	return s.data
}

// Len returns the size of the backing buffer in bytes.
func (s *SectorStore) Len() int {
	return len(s.data)
}

// SectorSize returns the current sector size.
func (s *SectorStore) SectorSize() int {
	return s.sectorSize
}

// Mapped reports whether the store is backed by a memory map.
func (s *SectorStore) Mapped() bool {
	return s.mapped != nil
}

func (s *SectorStore) setSectorSize(n int) {
	s.sectorSize = n
}

// HeaderSize returns the number of bytes before sector 0. The header record is
// 512 bytes but occupies a whole sector when sectors are larger.
func (s *SectorStore) HeaderSize() int {
	if s.sectorSize > 512 {
		return s.sectorSize
	}
	return 512
}

// Offset returns the file offset of sector n.
func (s *SectorStore) Offset(n int) int {
	return s.HeaderSize() + n*s.sectorSize
}

// Sector returns a view of exactly SectorSize bytes of sector n.
func (s *SectorStore) Sector(n int) ([]byte, error) {
	return s.span(n, s.sectorSize)
}

// span returns the first length bytes of sector n.
func (s *SectorStore) span(n, length int) ([]byte, error) {
	if n < 0 {
		return nil, NewXLRDError("negative sector index %d", n)
	}
	start := s.Offset(n)
	end := start + length
	if end > len(s.data) {
		return nil, &TruncatedFileError{Sector: n, Need: end, Have: len(s.data)}
	}
	return s.data[start:end:end], nil
}

// Close releases the memory map, if any. It is safe to call more than once.
func (s *SectorStore) Close() error {
	var err error
	if s.mapped != nil {
		err = s.mapped.Unmap()
		s.mapped = nil
	}
	if s.file != nil {
		if cerr := s.file.Close(); err == nil {
			err = cerr
		}
		s.file = nil
	}
	s.data = nil
	return err
}
