package xlrd

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/richardlehane/mscfb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamitzky/xlsread/internal/xlstest"
)

func patterned(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i/251)
	}
	return b
}

func openCompDoc(t *testing.T, file []byte, opts *CompDocOptions) *CompDoc {
	t.Helper()
	cd, err := NewCompDoc(NewSectorStore(file, 512), opts)
	require.NoError(t, err)
	return cd
}

func TestCompDoc_regularStreamIsContiguous(t *testing.T) {
	data := patterned(5000)
	file, layout := xlstest.BuildCFB([]xlstest.Stream{{Name: "Workbook", Data: data}})
	require.False(t, layout.Mini["Workbook"])

	cd := openCompDoc(t, file, nil)
	assert.Equal(t, 512, cd.SectorSize)
	assert.Equal(t, 64, cd.MiniSectorSize)
	assert.Equal(t, 4096, cd.MinSizeStdStream)

	st, err := cd.LocateNamedStream("workbook")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, len(data), st.Len())
	assert.True(t, st.Contiguous())
	assert.Equal(t, data, st.Bytes())
}

func TestCompDoc_miniStream(t *testing.T) {
	data := patterned(300)
	file, layout := xlstest.BuildCFB([]xlstest.Stream{
		{Name: "Book", Data: data},
		{Name: "Other", Data: patterned(100)},
	})
	require.True(t, layout.Mini["Book"])

	cd := openCompDoc(t, file, nil)
	st, err := cd.LocateNamedStream("Book")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, data, st.Bytes())

	// reads that cross mini sector boundaries
	got, err := st.Slice(60, 10)
	require.NoError(t, err)
	assert.Equal(t, data[60:70], got)

	buf := make([]byte, 200)
	n, err := st.ReadAt(buf, 250)
	assert.Equal(t, 50, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, data[250:], buf[:n])
}

func TestCompDoc_missingStream(t *testing.T) {
	file, _ := xlstest.BuildCFB([]xlstest.Stream{{Name: "Other", Data: patterned(10)}})
	cd := openCompDoc(t, file, nil)
	st, err := cd.LocateNamedStream("Workbook")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestCompDoc_directory(t *testing.T) {
	file, _ := xlstest.BuildCFB([]xlstest.Stream{
		{Name: "Workbook", Data: patterned(10)},
		{Name: "\x05SummaryInformation", Data: patterned(20)},
	})
	cd := openCompDoc(t, file, nil)
	require.GreaterOrEqual(t, len(cd.DirList), 3)
	root := cd.DirList[0]
	assert.Equal(t, "Root Entry", root.Name)
	assert.Equal(t, DirRoot, root.EType)
	assert.Equal(t, []int{1, 2}, root.Children)
	assert.Equal(t, "Workbook", cd.DirList[1].Name)
	assert.Equal(t, 0, cd.DirList[2].Parent)
}

func TestCompDoc_badSignature(t *testing.T) {
	file, _ := xlstest.BuildCFB([]xlstest.Stream{{Name: "Workbook", Data: patterned(10)}})
	file[0] = 'X'
	_, err := NewCompDoc(NewSectorStore(file, 512), nil)
	var target *UnsupportedContainerError
	assert.True(t, errors.As(err, &target), "got %v", err)

	_, err = NewCompDoc(NewSectorStore([]byte("short"), 512), nil)
	assert.True(t, errors.As(err, &target), "got %v", err)
}

func TestCompDoc_selfLoopIsCorrupt(t *testing.T) {
	file, layout := xlstest.BuildCFB([]xlstest.Stream{{Name: "Workbook", Data: patterned(5000)}})
	start := layout.StreamStart["Workbook"]
	xlstest.SetFAT(file, layout, start, uint32(start))

	for _, ignore := range []bool{false, true} {
		cd := openCompDoc(t, file, &CompDocOptions{IgnoreWorkbookCorruption: ignore})
		_, err := cd.LocateNamedStream("Workbook")
		var target *CorruptContainerError
		assert.True(t, errors.As(err, &target), "ignore=%v: got %v", ignore, err)
	}
}

func TestCompDoc_chainEndsEarly(t *testing.T) {
	file, layout := xlstest.BuildCFB([]xlstest.Stream{{Name: "Workbook", Data: patterned(5000)}})
	start := layout.StreamStart["Workbook"]
	xlstest.SetFAT(file, layout, start+2, xlstest.EndOfChain)

	cd := openCompDoc(t, file, nil)
	_, err := cd.LocateNamedStream("Workbook")
	var target *CorruptContainerError
	assert.True(t, errors.As(err, &target), "got %v", err)
}

func TestCompDoc_truncatedFile(t *testing.T) {
	file, _ := xlstest.BuildCFB([]xlstest.Stream{{Name: "Workbook", Data: patterned(5000)}})
	cd, err := NewCompDoc(NewSectorStore(file[:len(file)-700], 512), nil)
	if err == nil {
		_, err = cd.LocateNamedStream("Workbook")
	}
	assert.Error(t, err)
}

// The streams read here must match what an independent compound file reader
// sees in the same bytes.
func TestCompDoc_matchesMscfb(t *testing.T) {
	streams := []xlstest.Stream{
		{Name: "Workbook", Data: patterned(9000)},
		{Name: "Small", Data: patterned(700)},
	}
	file, _ := xlstest.BuildCFB(streams)

	doc, err := mscfb.New(bytes.NewReader(file))
	require.NoError(t, err)
	names := map[string]bool{"Workbook": true, "Small": true}
	want := make(map[string][]byte)
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if !names[entry.Name] {
			continue
		}
		b, err := io.ReadAll(entry)
		require.NoError(t, err)
		want[entry.Name] = b
	}

	cd := openCompDoc(t, file, nil)
	for _, s := range streams {
		st, err := cd.LocateNamedStream(s.Name)
		require.NoError(t, err)
		require.NotNil(t, st, s.Name)
		assert.Equal(t, want[s.Name], st.Bytes(), s.Name)
		assert.Equal(t, s.Data, st.Bytes(), s.Name)
	}
}

func TestCompDoc_version4Sectors(t *testing.T) {
	streams := []xlstest.Stream{
		{Name: "Workbook", Data: patterned(9000)},
		{Name: "Small", Data: patterned(700)},
	}
	file, layout := xlstest.BuildCFBv4(streams)
	require.Equal(t, 4096, layout.SectorSize)

	doc, err := mscfb.New(bytes.NewReader(file))
	require.NoError(t, err)
	want := make(map[string][]byte)
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if entry.Name != "Workbook" && entry.Name != "Small" {
			continue
		}
		b, err := io.ReadAll(entry)
		require.NoError(t, err)
		want[entry.Name] = b
	}

	cd := openCompDoc(t, file, nil)
	assert.Equal(t, 4096, cd.SectorSize)
	assert.Equal(t, 4096, cd.store.HeaderSize())
	assert.Equal(t, len(file)-4096, cd.memDataLen)
	for _, s := range streams {
		st, err := cd.LocateNamedStream(s.Name)
		require.NoError(t, err)
		require.NotNil(t, st, s.Name)
		assert.Equal(t, want[s.Name], st.Bytes(), s.Name)
		assert.Equal(t, s.Data, st.Bytes(), s.Name)
	}

	st, err := cd.LocateNamedStream("Workbook")
	require.NoError(t, err)
	assert.True(t, st.Contiguous())
	off := layout.Offset(layout.StreamStart["Workbook"])
	head, err := st.Slice(0, 16)
	require.NoError(t, err)
	assert.Same(t, &file[off], &head[0])
}

func TestCompDoc_shortMiniChainIsCorrupt(t *testing.T) {
	file, layout := xlstest.BuildCFB([]xlstest.Stream{
		{Name: "Book", Data: patterned(300)},
		{Name: "Other", Data: patterned(100)},
	})
	require.True(t, layout.Mini["Book"])
	xlstest.SetStreamSize(file, layout, "Book", 1000)

	for _, ignore := range []bool{false, true} {
		cd := openCompDoc(t, file, &CompDocOptions{IgnoreWorkbookCorruption: ignore})
		st, err := cd.LocateNamedStream("Book")
		var target *CorruptContainerError
		assert.True(t, errors.As(err, &target), "ignore=%v: got %v", ignore, err)
		assert.Nil(t, st)
	}
}

func TestCompDoc_locateTwice(t *testing.T) {
	big, small := patterned(5000), patterned(300)
	file, _ := xlstest.BuildCFB([]xlstest.Stream{
		{Name: "Workbook", Data: big},
		{Name: "Small", Data: small},
	})
	cd := openCompDoc(t, file, nil)
	for _, name := range []string{"Workbook", "Small"} {
		first, err := cd.LocateNamedStream(name)
		require.NoError(t, err, name)
		second, err := cd.LocateNamedStream(name)
		require.NoError(t, err, name)
		require.NotNil(t, second, name)
		assert.Equal(t, first.Bytes(), second.Bytes(), name)
	}
	st, err := cd.LocateNamedStream("WORKBOOK")
	require.NoError(t, err)
	assert.Equal(t, big, st.Bytes())
}

func TestSectorStore(t *testing.T) {
	data := make([]byte, 512+1024)
	data[512] = 1
	data[1024] = 2
	s := NewSectorStore(data, 512)

	sec, err := s.Sector(1)
	require.NoError(t, err)
	assert.Len(t, sec, 512)
	assert.Equal(t, byte(2), sec[0])

	_, err = s.Sector(2)
	var trunc *TruncatedFileError
	assert.True(t, errors.As(err, &trunc), "got %v", err)

	_, err = s.Sector(-1)
	assert.Error(t, err)
	assert.False(t, s.Mapped())
	assert.NoError(t, s.Close())
}

func TestStream_windows(t *testing.T) {
	st := newStream("test", [][]byte{[]byte("abc"), nil, []byte("defg")})
	assert.Equal(t, 7, st.Len())
	assert.Equal(t, 2, st.Windows())
	assert.False(t, st.Contiguous())

	got, err := st.Slice(1, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("bcde"), got)

	_, err = st.Slice(5, 3)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, []byte("abcdefg"), st.Bytes())
}
