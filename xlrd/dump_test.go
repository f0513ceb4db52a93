package xlrd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x "github.com/yamitzky/xlsread/internal/xlstest"
)

func tinyWorkbook() *x.Workbook {
	return &x.Workbook{
		Sheets: []x.Sheet{{Name: "S", Records: [][]byte{x.Number(0, 0, 0, 1)}}},
	}
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestDumpStream(t *testing.T) {
	st := NewMemoryStream("Workbook", tinyWorkbook().Stream())

	var buf bytes.Buffer
	require.NoError(t, DumpStream(st, &buf, true))
	out := buf.String()
	lines := strings.Split(out, "\n")
	assert.Equal(t, "0809 BOF len = 0010 (16)", lines[0])
	assert.Contains(t, out, "  0042 CODEPAGE len = 0002 (2)")
	assert.Contains(t, out, "  0203 NUMBER len = 000e (14)")
	assert.Contains(t, out, "\n  0085 BOUNDSHEET")
	assert.NotContains(t, out, "    0: ")

	buf.Reset()
	require.NoError(t, DumpStream(st, &buf, false))
	assert.True(t, strings.HasPrefix(buf.String(), "    0: 0809 BOF"), buf.String())
}

func TestDumpStream_malformed(t *testing.T) {
	raw := x.Cat(x.BOF(0x0005), x.U16(XL_NUMBER), x.U16(40), []byte("abc"))
	var buf bytes.Buffer
	err := DumpStream(NewMemoryStream("Workbook", raw), &buf, true)
	assert.Error(t, err)
	assert.Contains(t, buf.String(), "!!! ")
}

func TestRecordCounts(t *testing.T) {
	counts, err := RecordCounts(NewMemoryStream("Workbook", tinyWorkbook().Stream()))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"BOF":        2,
		"CODEPAGE":   1,
		"DATEMODE":   1,
		"BOUNDSHEET": 1,
		"NUMBER":     1,
		"EOF":        2,
	}, counts)
}

func TestDumpAndCountFiles(t *testing.T) {
	path := writeTemp(t, "tiny.xls", tinyWorkbook().Bytes())

	var buf bytes.Buffer
	require.NoError(t, Dump(path, &buf, true))
	assert.Contains(t, buf.String(), "NUMBER")

	buf.Reset()
	require.NoError(t, CountRecords(path, &buf))
	assert.Equal(t, ""+
		"       2 BOF\n"+
		"       1 BOUNDSHEET\n"+
		"       1 CODEPAGE\n"+
		"       1 DATEMODE\n"+
		"       2 EOF\n"+
		"       1 NUMBER\n", buf.String())
}

func TestDump_noWorkbookStream(t *testing.T) {
	file, _ := x.BuildCFB([]x.Stream{{Name: "Other", Data: []byte("data")}})
	path := writeTemp(t, "other.xls", file)
	err := Dump(path, &bytes.Buffer{}, false)
	assert.Error(t, err)
}
