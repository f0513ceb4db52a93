package xlrd

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x "github.com/yamitzky/xlsread/internal/xlstest"
)

func TestRecordReader_splicesContinue(t *testing.T) {
	raw := x.Cat(
		x.Record(XL_NUMBER, []byte("abcd")),
		x.Continue([]byte("ef")),
		x.Continue([]byte("g")),
		x.EOF(),
	)
	rr := NewRecordReader(NewMemoryStream("test", raw), 0)

	rec, err := rr.Next()
	require.NoError(t, err)
	assert.Equal(t, XL_NUMBER, rec.Code)
	assert.Equal(t, 0, rec.Offset)
	assert.Equal(t, []byte("abcdefg"), rec.Data)
	require.Len(t, rec.Segments, 3)
	assert.Equal(t, []byte("ef"), rec.Segments[1])

	rec, err = rr.Next()
	require.NoError(t, err)
	assert.Equal(t, XL_EOF, rec.Code)
	assert.Equal(t, len(raw)-4, rec.Offset)

	_, err = rr.Next()
	assert.Equal(t, io.EOF, err)
}

func TestRecordReader_physical(t *testing.T) {
	raw := x.Cat(
		x.Record(XL_NUMBER, []byte("abcd")),
		x.Continue([]byte("ef")),
		x.EOF(),
	)
	rr := NewRecordReader(NewMemoryStream("test", raw), 0)
	var codes []int
	for {
		rec, err := rr.NextPhysical()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{XL_NUMBER, XL_CONTINUE, XL_EOF}, codes)
}

func TestRecordReader_unsplitDataAliasesStream(t *testing.T) {
	raw := x.Record(XL_NUMBER, []byte("abcd"))
	rr := NewRecordReader(NewMemoryStream("test", raw), 0)
	rec, err := rr.Next()
	require.NoError(t, err)
	rec.Data[0] = 'z'
	assert.Equal(t, byte('z'), raw[4])
}

func TestRecordReader_malformed(t *testing.T) {
	tests := map[string][]byte{
		"partial header":  {0x03, 0x02, 0x10},
		"length overruns": x.Cat(x.U16(XL_NUMBER), x.U16(20), []byte("abc")),
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			rr := NewRecordReader(NewMemoryStream("test", raw), 0)
			_, err := rr.Next()
			var target *MalformedRecordError
			require.True(t, errors.As(err, &target), "got %v", err)
			assert.Equal(t, 0, target.Offset)
		})
	}
}

func nextRecord(t *testing.T, raw []byte) *Record {
	t.Helper()
	rec, err := NewRecordReader(NewMemoryStream("test", raw), 0).Next()
	require.NoError(t, err)
	return rec
}

func TestUnpackSST_stringSplitAcrossContinue(t *testing.T) {
	// "hello": "hel" compressed, then "lo" as UTF-16 after a fresh option byte.
	raw := x.Cat(
		x.Record(XL_SST, x.Cat(x.U32(2), x.U32(2), x.U16(5), []byte{0}, []byte("hel"))),
		x.Continue(x.Cat([]byte{1}, []byte{'l', 0, 'o', 0}, x.Str8("next"))),
	)
	strs, runs, err := unpackSST(nextRecord(t, raw), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "next"}, strs)
	assert.Nil(t, runs)
}

func TestUnpackSST_stringStartsInContinue(t *testing.T) {
	raw := x.Cat(
		x.Record(XL_SST, x.Cat(x.U32(2), x.U32(2), x.Str8("ab"))),
		x.Continue(x.Str8("cd")),
	)
	strs, _, err := unpackSST(nextRecord(t, raw), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"ab", "cd"}, strs)
}

func TestUnpackSST_richText(t *testing.T) {
	// rich text flag, 1 run, then the run itself (offset 1, font 5)
	str := x.Cat(x.U16(3), []byte{0x08}, x.U16(1), []byte("abc"), x.U16(1), x.U16(5))
	raw := x.Record(XL_SST, x.Cat(x.U32(1), x.U32(1), str))

	strs, runs, err := unpackSST(nextRecord(t, raw), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc"}, strs)
	assert.Equal(t, []RichTextRun{{Offset: 1, FontIndex: 5}}, runs[0])
}

func TestUnpackSST_hugeCount(t *testing.T) {
	raw := x.Record(XL_SST, x.Cat(x.U32(0xFFFFFFFF), x.U32(0xFFFFFFFF)))
	strs, _, err := unpackSST(nextRecord(t, raw), false)
	var target *MalformedRecordError
	assert.True(t, errors.As(err, &target), "got %v", err)
	assert.Nil(t, strs)
}

func TestUnpackSST_truncated(t *testing.T) {
	raw := x.Record(XL_SST, x.Cat(x.U32(2), x.U32(2), x.Str8("ab")))
	_, _, err := unpackSST(nextRecord(t, raw), false)
	var target *MalformedRecordError
	assert.True(t, errors.As(err, &target), "got %v", err)
}
