package xlrd

import (
	"encoding/binary"
	"strings"
)

// RichTextRun is one formatting run of a rich text string: the character
// offset where the run starts and the font index applied from there on.
type RichTextRun struct {
	Offset    int
	FontIndex int
}

// sstCursor walks the segments of a fused SST record.
type sstCursor struct {
	segs [][]byte
	idx  int
	pos  int
}

func (c *sstCursor) data() []byte {
	return c.segs[c.idx]
}

// advance moves to the start of the next segment.
func (c *sstCursor) advance() bool {
	if c.idx+1 >= len(c.segs) {
		return false
	}
	c.idx++
	c.pos = 0
	return true
}

// take returns n bytes, crossing a segment boundary when needed.
func (c *sstCursor) take(n int) ([]byte, bool) {
	for c.pos >= len(c.data()) {
		if !c.advance() {
			return nil, false
		}
	}
	d := c.data()
	if c.pos+n <= len(d) {
		b := d[c.pos : c.pos+n]
		c.pos += n
		return b, true
	}
	out := make([]byte, 0, n)
	for len(out) < n {
		if c.pos >= len(c.data()) && !c.advance() {
			return nil, false
		}
		d = c.data()
		k := n - len(out)
		if k > len(d)-c.pos {
			k = len(d) - c.pos
		}
		out = append(out, d[c.pos:c.pos+k]...)
		c.pos += k
	}
	return out, true
}

// skip moves forward n bytes, possibly across segments.
func (c *sstCursor) skip(n int) bool {
	for n > 0 {
		avail := len(c.data()) - c.pos
		if n <= avail {
			c.pos += n
			return true
		}
		n -= avail
		if !c.advance() {
			return false
		}
	}
	return true
}

// unpackSST decodes the shared string table from the segments of an SST
// record. A string split across a CONTINUE boundary resumes with the option
// byte of the new segment, which may switch between compressed and UTF-16.
func unpackSST(rec *Record, keepRuns bool) ([]string, map[int][]RichTextRun, error) {
	bad := func(msg string) error {
		return &MalformedRecordError{Offset: rec.Offset, Code: XL_SST, Message: msg}
	}
	if len(rec.Segments) == 0 || len(rec.Segments[0]) < 8 {
		return nil, nil, bad("SST header too short")
	}
	nStrings := int(binary.LittleEndian.Uint32(rec.Segments[0][4:8]))
	cur := &sstCursor{segs: rec.Segments, pos: 8}
	// every string has at least a 3-byte header
	capacity := nStrings
	total := 0
	for _, seg := range rec.Segments {
		total += len(seg)
	}
	if limit := (total - 8) / 3; capacity > limit || capacity < 0 {
		capacity = limit
	}
	strs := make([]string, 0, capacity)
	var runs map[int][]RichTextRun
	if keepRuns {
		runs = make(map[int][]RichTextRun)
	}

	for i := 0; i < nStrings; i++ {
		hdr, ok := cur.take(3)
		if !ok {
			return nil, nil, bad("truncated string header")
		}
		nchars := int(binary.LittleEndian.Uint16(hdr))
		options := hdr[2]
		var rtcount, phosz int
		if options&0x08 != 0 {
			b, ok := cur.take(2)
			if !ok {
				return nil, nil, bad("truncated rich text count")
			}
			rtcount = int(binary.LittleEndian.Uint16(b))
		}
		if options&0x04 != 0 {
			b, ok := cur.take(4)
			if !ok {
				return nil, nil, bad("truncated phonetic size")
			}
			phosz = int(int32(binary.LittleEndian.Uint32(b)))
		}

		var acc strings.Builder
		got := 0
		for {
			need := nchars - got
			d := cur.data()
			var avail int
			if options&0x01 != 0 {
				avail = (len(d) - cur.pos) >> 1
				if avail > need {
					avail = need
				}
				acc.WriteString(decodeUTF16LE(d[cur.pos : cur.pos+2*avail]))
				cur.pos += 2 * avail
			} else {
				avail = len(d) - cur.pos
				if avail > need {
					avail = need
				}
				acc.WriteString(decodeLatin1(d[cur.pos : cur.pos+avail]))
				cur.pos += avail
			}
			got += avail
			if got == nchars {
				break
			}
			if !cur.advance() || len(cur.data()) == 0 {
				return nil, nil, bad("string runs past the last CONTINUE")
			}
			options = cur.data()[0]
			cur.pos = 1
		}

		if rtcount > 0 {
			var rl []RichTextRun
			for r := 0; r < rtcount; r++ {
				b, ok := cur.take(4)
				if !ok {
					return nil, nil, bad("truncated rich text runs")
				}
				rl = append(rl, RichTextRun{
					Offset:    int(binary.LittleEndian.Uint16(b)),
					FontIndex: int(binary.LittleEndian.Uint16(b[2:])),
				})
			}
			if keepRuns {
				runs[len(strs)] = rl
			}
		}
		if phosz > 0 && !cur.skip(phosz) && i+1 < nStrings {
			return nil, nil, bad("truncated phonetic data")
		}
		strs = append(strs, acc.String())
	}
	return strs, runs, nil
}
