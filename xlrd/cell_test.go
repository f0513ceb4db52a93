package xlrd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeRK(t *testing.T) {
	tests := []struct {
		rk   uint32
		want float64
	}{
		{0x3FF00000, 1},
		{0x3FF00001, 0.01},
		{0x40590000, 100},
		{0x00000192, 100},
		{0x00000193, 1},
		{0xFFFFFFFE, -1},
		{0xC0590000, -100},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, DecodeRK(tt.rk), 1e-12, "rk=%#x", tt.rk)
	}
}

func TestCellString(t *testing.T) {
	tests := []struct {
		cell Cell
		want string
	}{
		{Cell{CType: XL_CELL_EMPTY}, ""},
		{Cell{CType: XL_CELL_BLANK, XFIndex: 3}, ""},
		{Cell{CType: XL_CELL_TEXT, Value: "hi"}, "hi"},
		{Cell{CType: XL_CELL_NUMBER, Value: 42.0}, "42"},
		{Cell{CType: XL_CELL_NUMBER, Value: 0.5}, "0.5"},
		{Cell{CType: XL_CELL_DATE, Value: 38406.0}, "38406"},
		{Cell{CType: XL_CELL_BOOLEAN, Value: true}, "true"},
		{Cell{CType: XL_CELL_ERROR, Value: byte(0x07)}, "#DIV/0!"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.cell.String())
	}
}

func TestEmptyCell(t *testing.T) {
	c := EmptyCell()
	assert.Equal(t, XL_CELL_EMPTY, c.CType)
	assert.Nil(t, c.Value)
	assert.Equal(t, -1, c.XFIndex)
}

func TestCellNames(t *testing.T) {
	assert.Equal(t, "A", Colname(0))
	assert.Equal(t, "Z", Colname(25))
	assert.Equal(t, "AA", Colname(26))
	assert.Equal(t, "IV", Colname(255))
	assert.Equal(t, "H6", CellName(5, 7))
	assert.Equal(t, "$H$6", CellNameAbs(5, 7, false))
	assert.Equal(t, "R6C8", CellNameAbs(5, 7, true))
	assert.Equal(t, "$H$6:$J$20", RangeName2D(5, 20, 7, 10, false))
	assert.Equal(t, "$A$1", RangeName2D(0, 1, 0, 1, false))
}

func TestQuotedSheetName(t *testing.T) {
	names := []string{"Sheet1", "My Sheet", "it's", "2024"}
	assert.Equal(t, "Sheet1", QuotedSheetName(names, 0))
	assert.Equal(t, "'My Sheet'", QuotedSheetName(names, 1))
	assert.Equal(t, "'it''s'", QuotedSheetName(names, 2))
	assert.Equal(t, "'2024'", QuotedSheetName(names, 3))
}
