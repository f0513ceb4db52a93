// Package xlstest builds compound files and BIFF8 workbooks in memory for
// tests.
package xlstest

import (
	"encoding/binary"
	"unicode/utf16"
)

// Sector ids with special meaning in allocation tables.
const (
	FreeSect   = 0xFFFFFFFF
	EndOfChain = 0xFFFFFFFE
	FATSect    = 0xFFFFFFFD
	NoStream   = 0xFFFFFFFF

	sectorSize     = 512
	sectorSizeV4   = 4096
	miniSectorSize = 64
	miniCutoff     = 4096
	dirEntrySize   = 128
)

// Stream is one named stream stored directly under the root storage.
type Stream struct {
	Name string
	Data []byte
}

// Layout records where BuildCFB placed things, so tests can corrupt them.
type Layout struct {
	FATSectors []int
	DirStart   int
	// DirIndex maps a stream name to its directory entry.
	DirIndex map[string]int
	// StreamStart maps a stream name to its first sector, regular or mini.
	StreamStart map[string]int
	// Mini reports whether a stream lives in the mini stream.
	Mini map[string]bool
	// SectorSize is 512 for version 3 files and 4096 for version 4.
	SectorSize int
}

// Offset returns the file offset of a regular sector. The header fills the
// whole first sector.
func (l *Layout) Offset(sid int) int {
	return l.SectorSize + sid*l.SectorSize
}

// SetFAT rewrites the allocation table entry of sector sid.
func SetFAT(file []byte, l *Layout, sid int, next uint32) {
	per := l.SectorSize / 4
	fatSec := l.FATSectors[sid/per]
	binary.LittleEndian.PutUint32(file[l.Offset(fatSec)+4*(sid%per):], next)
}

// SetStreamSize rewrites the size recorded in the directory entry of a
// stream, without moving its data.
func SetStreamSize(file []byte, l *Layout, name string, size int) {
	binary.LittleEndian.PutUint32(file[l.Offset(l.DirStart)+l.DirIndex[name]*dirEntrySize+120:], uint32(size))
}

// BuildCFB writes a version 3 compound file with 512-byte sectors holding the
// given streams. Streams shorter than 4096 bytes go to the mini stream.
func BuildCFB(streams []Stream) ([]byte, *Layout) {
	return buildCFB(streams, sectorSize)
}

// BuildCFBv4 is BuildCFB for version 4 files with 4096-byte sectors.
func BuildCFBv4(streams []Stream) ([]byte, *Layout) {
	return buildCFB(streams, sectorSizeV4)
}

func buildCFB(streams []Stream, sectorSize int) ([]byte, *Layout) {
	layout := &Layout{
		StreamStart: make(map[string]int),
		Mini:        make(map[string]bool),
		DirIndex:    make(map[string]int),
		SectorSize:  sectorSize,
	}

	// Mini stream contents and mini FAT.
	var mini []byte
	var miniFAT []uint32
	miniStart := make(map[int]int)
	for i, st := range streams {
		if len(st.Data) >= miniCutoff || len(st.Data) == 0 {
			continue
		}
		first := len(mini) / miniSectorSize
		n := ceilDiv(len(st.Data), miniSectorSize)
		for k := 0; k < n; k++ {
			next := uint32(first + k + 1)
			if k == n-1 {
				next = EndOfChain
			}
			miniFAT = append(miniFAT, next)
		}
		mini = append(mini, st.Data...)
		mini = append(mini, make([]byte, n*miniSectorSize-len(st.Data))...)
		miniStart[i] = first
		layout.Mini[st.Name] = true
		layout.StreamStart[st.Name] = first
	}

	nDir := ceilDiv((len(streams)+1)*dirEntrySize, sectorSize)
	nMiniFAT := ceilDiv(len(miniFAT)*4, sectorSize)
	nMini := ceilDiv(len(mini), sectorSize)
	regular := make([]int, len(streams))
	nRegular := 0
	for i, st := range streams {
		if len(st.Data) >= miniCutoff {
			regular[i] = ceilDiv(len(st.Data), sectorSize)
			nRegular += regular[i]
		}
	}
	payload := nDir + nMiniFAT + nMini + nRegular
	nFAT := 1
	for nFAT*(sectorSize/4) < payload+nFAT {
		nFAT++
	}

	total := nFAT + payload
	fat := make([]uint32, nFAT*(sectorSize/4))
	for i := range fat {
		fat[i] = FreeSect
	}
	next := 0
	alloc := func(n int) int {
		if n == 0 {
			return -1
		}
		start := next
		for k := 0; k < n; k++ {
			fat[start+k] = uint32(start + k + 1)
		}
		fat[start+n-1] = EndOfChain
		next += n
		return start
	}
	for k := 0; k < nFAT; k++ {
		layout.FATSectors = append(layout.FATSectors, next)
		fat[next] = FATSect
		next++
	}
	layout.DirStart = alloc(nDir)
	miniFATStart := alloc(nMiniFAT)
	miniDataStart := alloc(nMini)
	streamStart := make([]int, len(streams))
	for i, st := range streams {
		if regular[i] > 0 {
			streamStart[i] = alloc(regular[i])
			layout.StreamStart[st.Name] = streamStart[i]
		} else if s, ok := miniStart[i]; ok {
			streamStart[i] = s
		} else {
			streamStart[i] = -2
		}
	}

	out := make([]byte, sectorSize+total*sectorSize)
	writeHeader(out, nFAT, nDir, layout, miniFATStart, nMiniFAT)

	for k, sid := range layout.FATSectors {
		sec := out[layout.Offset(sid):]
		for j := 0; j < sectorSize/4; j++ {
			binary.LittleEndian.PutUint32(sec[4*j:], fat[k*(sectorSize/4)+j])
		}
	}

	// Directory: root, then the streams chained as right siblings.
	dir := out[layout.Offset(layout.DirStart):]
	rootStart, rootSize := uint32(EndOfChain), 0
	if nMini > 0 {
		rootStart, rootSize = uint32(miniDataStart), len(mini)
	}
	child := uint32(NoStream)
	if len(streams) > 0 {
		child = 1
	}
	writeDirEntry(dir[0:], "Root Entry", 5, NoStream, NoStream, child, rootStart, rootSize)
	for i, st := range streams {
		right := uint32(NoStream)
		if i+1 < len(streams) {
			right = uint32(i + 2)
		}
		layout.DirIndex[st.Name] = i + 1
		writeDirEntry(dir[(i+1)*dirEntrySize:], st.Name, 2, NoStream, right, NoStream, uint32(int32(streamStart[i])), len(st.Data))
	}
	for i := len(streams) + 1; i < nDir*sectorSize/dirEntrySize; i++ {
		writeDirEntry(dir[i*dirEntrySize:], "", 0, NoStream, NoStream, NoStream, 0, 0)
	}

	if nMiniFAT > 0 {
		sec := out[layout.Offset(miniFATStart):]
		for j := 0; j < nMiniFAT*sectorSize/4; j++ {
			v := uint32(FreeSect)
			if j < len(miniFAT) {
				v = miniFAT[j]
			}
			binary.LittleEndian.PutUint32(sec[4*j:], v)
		}
	}
	if nMini > 0 {
		copy(out[layout.Offset(miniDataStart):], mini)
	}
	for i, st := range streams {
		if regular[i] > 0 {
			copy(out[layout.Offset(streamStart[i]):], st.Data)
		}
	}
	return out, layout
}

func writeHeader(out []byte, nFAT, nDir int, l *Layout, miniFATStart, nMiniFAT int) {
	copy(out, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1})
	le := binary.LittleEndian
	le.PutUint16(out[24:], 0x003E)
	le.PutUint16(out[28:], 0xFFFE)
	if l.SectorSize == sectorSizeV4 {
		le.PutUint16(out[26:], 4)
		le.PutUint16(out[30:], 12)
		le.PutUint32(out[40:], uint32(nDir))
	} else {
		le.PutUint16(out[26:], 3)
		le.PutUint16(out[30:], 9)
	}
	le.PutUint16(out[32:], 6)
	le.PutUint32(out[44:], uint32(nFAT))
	le.PutUint32(out[48:], uint32(l.DirStart))
	le.PutUint32(out[56:], miniCutoff)
	if nMiniFAT > 0 {
		le.PutUint32(out[60:], uint32(miniFATStart))
	} else {
		le.PutUint32(out[60:], EndOfChain)
	}
	le.PutUint32(out[64:], uint32(nMiniFAT))
	le.PutUint32(out[68:], EndOfChain)
	le.PutUint32(out[72:], 0)
	for i := 0; i < 109; i++ {
		v := uint32(FreeSect)
		if i < len(l.FATSectors) {
			v = uint32(l.FATSectors[i])
		}
		le.PutUint32(out[76+4*i:], v)
	}
}

func writeDirEntry(b []byte, name string, etype byte, left, right, child, start uint32, size int) {
	le := binary.LittleEndian
	if name != "" {
		u := utf16.Encode([]rune(name))
		for i, c := range u {
			le.PutUint16(b[2*i:], c)
		}
		le.PutUint16(b[64:], uint16(2*len(u)+2))
	}
	b[66] = etype
	b[67] = 1
	le.PutUint32(b[68:], left)
	le.PutUint32(b[72:], right)
	le.PutUint32(b[76:], child)
	le.PutUint32(b[116:], start)
	le.PutUint32(b[120:], uint32(size))
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
