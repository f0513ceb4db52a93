package xlrd

import (
	"encoding/binary"
	"io"
)

// Record is one logical BIFF record: a physical record plus any CONTINUE
// records that immediately follow it.
type Record struct {
	Code   int
	Offset int // stream offset of the first header

	// Data is the concatenated payload. It aliases the stream when the record
	// has no continuations.
	Data []byte

	// Segments holds one payload per physical record. String tables need the
	// boundaries because every continuation starts with a fresh option byte.
	Segments [][]byte
}

// RecordReader iterates over the BIFF records of a stream.
type RecordReader struct {
	stream *Stream
	pos    int
}

// NewRecordReader returns a reader positioned at offset.
func NewRecordReader(stream *Stream, offset int) *RecordReader {
	return &RecordReader{stream: stream, pos: offset}
}

// Pos returns the offset of the next record header.
func (r *RecordReader) Pos() int {
	return r.pos
}

// Seek positions the reader at offset.
func (r *RecordReader) Seek(offset int) {
	r.pos = offset
}

// Len returns the length of the underlying stream.
func (r *RecordReader) Len() int {
	return r.stream.Len()
}

// header reads the opcode and length at pos.
func (r *RecordReader) header(pos int) (code, length int, err error) {
	hdr, err := r.stream.Slice(pos, 4)
	if err != nil {
		return 0, 0, &MalformedRecordError{Offset: pos, Code: -1, Message: "partial record header"}
	}
	return int(binary.LittleEndian.Uint16(hdr)), int(binary.LittleEndian.Uint16(hdr[2:])), nil
}

// physical reads one physical record without following CONTINUE records.
func (r *RecordReader) physical() (code int, data []byte, err error) {
	pos := r.pos
	if pos >= r.stream.Len() {
		return 0, nil, io.EOF
	}
	code, length, err := r.header(pos)
	if err != nil {
		return 0, nil, err
	}
	data, err = r.stream.Slice(pos+4, length)
	if err != nil {
		return code, nil, &MalformedRecordError{
			Offset:  pos,
			Code:    code,
			Message: "declared length overruns the stream",
		}
	}
	r.pos = pos + 4 + length
	return code, data, nil
}

// Next returns the next logical record, splicing any CONTINUE records into it.
// It returns io.EOF once the stream is exhausted.
func (r *RecordReader) Next() (*Record, error) {
	offset := r.pos
	code, data, err := r.physical()
	if err != nil {
		return nil, err
	}
	rec := &Record{Code: code, Offset: offset, Data: data, Segments: [][]byte{data}}
	if code == XL_CONTINUE {
		return rec, nil
	}
	for r.pos+4 <= r.stream.Len() {
		next, _, err := r.header(r.pos)
		if err != nil || next != XL_CONTINUE {
			break
		}
		_, seg, err := r.physical()
		if err != nil {
			return nil, err
		}
		rec.Segments = append(rec.Segments, seg)
	}
	if len(rec.Segments) > 1 {
		n := 0
		for _, s := range rec.Segments {
			n += len(s)
		}
		buf := make([]byte, 0, n)
		for _, s := range rec.Segments {
			buf = append(buf, s...)
		}
		rec.Data = buf
	}
	return rec, nil
}

// NextPhysical returns the next physical record without splicing.
func (r *RecordReader) NextPhysical() (*Record, error) {
	offset := r.pos
	code, data, err := r.physical()
	if err != nil {
		return nil, err
	}
	return &Record{Code: code, Offset: offset, Data: data, Segments: [][]byte{data}}, nil
}
