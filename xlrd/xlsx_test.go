package xlrd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newXlsxFile(t *testing.T) *excelize.File {
	t.Helper()
	f := excelize.NewFile()
	t.Cleanup(func() { f.Close() })

	require.NoError(t, f.SetCellValue("Sheet1", "A1", 42))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "hello"))
	require.NoError(t, f.SetCellBool("Sheet1", "A2", true))
	require.NoError(t, f.SetCellFormula("Sheet1", "B2", "A1*2"))
	require.NoError(t, f.SetCellValue("Sheet1", "C2", 7))

	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Sheet1", "A3", 45000.0))
	require.NoError(t, f.SetCellStyle("Sheet1", "A3", "A3", dateStyle))
	require.NoError(t, f.MergeCell("Sheet1", "D1", "E2"))

	_, err = f.NewSheet("Other")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Other", "A1", "x"))
	require.NoError(t, f.SetSheetVisible("Other", false))

	require.NoError(t, f.SetDefinedName(&excelize.DefinedName{Name: "Total", RefersTo: "Sheet1!$A$1"}))
	return f
}

func TestOpenXlsx(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	require.NoError(t, newXlsxFile(t).SaveAs(path))

	format, err := InspectFormat(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "xlsx", format)

	bk, err := OpenWorkbook(path, nil)
	require.NoError(t, err)
	defer bk.Close()

	assert.Equal(t, 0, bk.BiffVersion)
	assert.Equal(t, "utf-8", bk.Encoding)
	assert.Equal(t, 0, bk.Datemode)
	assert.Equal(t, []string{"Sheet1", "Other"}, bk.SheetNames())

	sh, err := bk.SheetByName("Sheet1")
	require.NoError(t, err)
	require.NoError(t, sh.Err())
	assert.Equal(t, 0, sh.Visibility)

	assert.Equal(t, XL_CELL_NUMBER, sh.CellType(0, 0))
	assert.Equal(t, 42.0, sh.CellValue(0, 0))
	assert.Equal(t, "General", sh.Cell(0, 0).NumberFormat)
	assert.Equal(t, XL_CELL_TEXT, sh.CellType(0, 1))
	assert.Equal(t, "hello", sh.CellValue(0, 1))
	assert.Equal(t, XL_CELL_BOOLEAN, sh.CellType(1, 0))
	assert.Equal(t, true, sh.CellValue(1, 0))

	f := sh.Cell(1, 1).Formula
	require.NotNil(t, f)
	assert.Equal(t, "A1*2", f.Text())
	assert.Nil(t, sh.Cell(0, 0).Formula)

	assert.Equal(t, XL_CELL_DATE, sh.CellType(2, 0))
	assert.Equal(t, 45000.0, sh.CellValue(2, 0))

	// merged ranges are formatting information
	assert.Empty(t, sh.MergedCells)

	other, err := bk.SheetByName("Other")
	require.NoError(t, err)
	assert.Equal(t, 1, other.Visibility)
	assert.Equal(t, "x", other.CellValue(0, 0))

	names := bk.NameMap["total"]
	require.Len(t, names, 1)
	assert.Equal(t, -1, names[0].Scope)
	assert.Equal(t, "Sheet1!$A$1", names[0].FormulaText())
}

func TestOpenXlsxBytes_formattingInfo(t *testing.T) {
	buf, err := newXlsxFile(t).WriteToBuffer()
	require.NoError(t, err)

	bk, err := OpenWorkbookBytes(buf.Bytes(), &OpenWorkbookOptions{FormattingInfo: true, OnDemand: true})
	require.NoError(t, err)
	defer bk.Close()

	loaded, err := bk.SheetLoaded(0)
	require.NoError(t, err)
	assert.False(t, loaded)

	sh, err := bk.SheetByIndex(0)
	require.NoError(t, err)
	require.NoError(t, sh.Err())
	assert.Equal(t, [][4]int{{0, 2, 3, 5}}, sh.MergedCells)
	assert.Equal(t, XL_CELL_DATE, sh.CellType(2, 0))
}
