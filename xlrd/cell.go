package xlrd

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// Cell represents a cell in a worksheet.
type Cell struct {
	// CType is the type of the cell.
	// One of: XL_CELL_EMPTY, XL_CELL_TEXT, XL_CELL_NUMBER, XL_CELL_DATE, XL_CELL_BOOLEAN, XL_CELL_ERROR, XL_CELL_BLANK
	CType int

	// Value is float64 for numbers and dates, string for text, bool for
	// booleans, a byte error code for errors and nil for empty and blank cells.
	Value interface{}

	// XFIndex is the index of the XF record for this cell, or -1 when unknown.
	XFIndex int

	// NumberFormat is the format string resolved through the XF record.
	NumberFormat string

	// Formula is set for formula cells. Value holds the cached result.
	Formula *Formula
}

// EmptyCell returns an empty cell.
func EmptyCell() *Cell {
	return &Cell{CType: XL_CELL_EMPTY, XFIndex: -1}
}

// String renders the value the way a text dump shows it.
func (c *Cell) String() string {
	switch c.CType {
	case XL_CELL_EMPTY, XL_CELL_BLANK:
		return ""
	case XL_CELL_ERROR:
		if code, ok := c.Value.(byte); ok {
			if s, ok := ErrorTextFromCode[code]; ok {
				return s
			}
		}
		return fmt.Sprintf("#ERR%v", c.Value)
	case XL_CELL_NUMBER, XL_CELL_DATE:
		if v, ok := c.Value.(float64); ok {
			return Num2Str(v)
		}
	}
	return fmt.Sprint(c.Value)
}

// DecodeRK expands an RK-packed number. Bit 0 scales the value by 1/100;
// bit 1 selects a signed 30-bit integer, otherwise the upper 30 bits are the
// high bits of an IEEE double.
func DecodeRK(rk uint32) float64 {
	var v float64
	if rk&2 != 0 {
		v = float64(int32(rk) >> 2)
	} else {
		v = math.Float64frombits(uint64(rk&^3) << 32)
	}
	if rk&1 != 0 {
		v /= 100
	}
	return v
}

type cellKey struct {
	row, col int
}

// formulaPattern is a shared (SHRFMLA) or array (ARRAY) formula definition.
// Cells in its range hold only the anchor key.
type formulaPattern struct {
	firstRow, lastRow int
	firstCol, lastCol int
	array             bool
	tokens            []byte
	extra             []byte
}

// Formula is the formula of a cell. The expression is decoded on first use.
type Formula struct {
	sheet *Sheet
	Row   int
	Col   int

	// Shared is set when the cell refers to a shared or array formula
	// anchored at (AnchorRow, AnchorCol).
	Shared    bool
	AnchorRow int
	AnchorCol int

	tokens []byte
	extra  []byte
	source string // formula text, for workbooks read from xlsx

	decoded bool
	expr    Expr
	err     error
}

// Expr decodes the formula into an expression tree. Shared formulas have
// their relative references moved to this cell. An UnsupportedTokenError
// leaves the cached value as the only result.
func (f *Formula) Expr() (Expr, error) {
	if f.decoded {
		return f.expr, f.err
	}
	f.expr, f.err = f.decode()
	f.decoded = true
	if f.err != nil && f.sheet != nil {
		f.sheet.Book.logger.Debug("formula not decoded",
			zap.String("sheet", f.sheet.Name), zap.String("cell", CellName(f.Row, f.Col)), zap.Error(f.err))
	}
	return f.expr, f.err
}

func (f *Formula) decode() (Expr, error) {
	s := f.sheet
	var book *Book
	if s != nil {
		book = s.Book
	}
	if f.source != "" {
		return ParseFormulaText(f.source)
	}
	if !f.Shared {
		return DecodeFormula(book, f.tokens, f.extra, FormulaContext{Row: f.Row, Col: f.Col})
	}
	if s == nil || s.arena == nil {
		return nil, NewXLRDError("formula at %s: sheet data has been released", CellName(f.Row, f.Col))
	}
	p, ok := s.arena[cellKey{f.AnchorRow, f.AnchorCol}]
	if !ok {
		return nil, &MalformedRecordError{Code: XL_FORMULA, Message: fmt.Sprintf(
			"no shared or array formula anchored at %s", CellName(f.AnchorRow, f.AnchorCol))}
	}
	ctx := FormulaContext{Row: f.Row, Col: f.Col}
	if p.array {
		ctx = FormulaContext{Row: p.firstRow, Col: p.firstCol}
	}
	return DecodeFormula(book, p.tokens, p.extra, ctx)
}

// Text renders the formula, or "" when it cannot be decoded.
func (f *Formula) Text() string {
	e, err := f.Expr()
	if err != nil || e == nil {
		return ""
	}
	return e.String()
}
