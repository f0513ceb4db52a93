package xlrd

import (
	"encoding/binary"
	"io"
	"math"

	"go.uber.org/zap"
)

// SheetState is the lifecycle state of a sheet's cell data.
type SheetState int

const (
	SheetUnloaded SheetState = iota
	SheetLoading
	SheetLoaded
	SheetReleased
)

func (s SheetState) String() string {
	switch s {
	case SheetUnloaded:
		return "unloaded"
	case SheetLoading:
		return "loading"
	case SheetLoaded:
		return "loaded"
	case SheetReleased:
		return "released"
	}
	return "unknown"
}

// Sheet contains the data for one sheet.
//
// In the cell access functions, rowx is a row index, counting from zero,
// and colx is a column index, counting from zero.
//
// You don't instantiate this type yourself. You access Sheet objects via
// the Book object that was returned when you called OpenWorkbook.
// Cell data is decoded on first access; Release drops it again.
type Sheet struct {
	// Name is the name of the sheet.
	Name string

	// Book is a reference to the Book object to which this sheet belongs.
	Book *Book

	// Number is the index of the sheet in the workbook.
	Number int

	// Visibility: 0 visible, 1 hidden, 2 "very hidden".
	Visibility int

	// SheetType is one of the XL_BOUNDSHEET_* values. Only worksheets have cells.
	SheetType int

	// NRows is the number of rows in sheet. A row index is in range(thesheet.NRows).
	NRows int

	// NCols is the nominal number of columns in sheet.
	// It is one more than the maximum column index found, ignoring trailing empty cells.
	NCols int

	// ColInfoMap is the map from a column index to a ColInfo object.
	// Populated only when FormattingInfo is set.
	ColInfoMap map[int]*ColInfo

	// RowInfoMap is the map from a row index to a RowInfo object.
	// Populated only when FormattingInfo is set.
	RowInfoMap map[int]*RowInfo

	// MergedCells is a list of address ranges of cells which have been merged.
	// Each entry is (rlo, rhi, clo, chi) with half-open bounds.
	MergedCells [][4]int

	offset int
	state  SheetState
	err    error

	rows     [][]Cell
	arena    map[cellKey]*formulaPattern
	dimNRows int
	dimNCols int
}

// ColInfo contains information about a column.
type ColInfo struct {
	Width        int // in 1/256 of the width of the zero character
	XFIndex      int
	Hidden       bool
	OutlineLevel int
	Collapsed    bool
}

// RowInfo contains information about a row.
type RowInfo struct {
	Height       int // in twips
	Hidden       bool
	XFIndex      int // -1 unless the row has a default format
	OutlineLevel int
}

func newSheet(book *Book, number int, name string, offset, visibility, sheetType int) *Sheet {
	return &Sheet{
		Name:       name,
		Book:       book,
		Number:     number,
		Visibility: visibility,
		SheetType:  sheetType,
		offset:     offset,
	}
}

// State returns the lifecycle state of the sheet's cells.
func (s *Sheet) State() SheetState {
	return s.state
}

// Err returns the error that stopped the last load of this sheet, if any.
// Cells decoded before the error remain available.
func (s *Sheet) Err() error {
	return s.err
}

func (s *Sheet) reset() {
	s.rows = nil
	s.arena = make(map[cellKey]*formulaPattern)
	s.NRows, s.NCols = 0, 0
	s.dimNRows, s.dimNCols = 0, 0
	s.ColInfoMap = make(map[int]*ColInfo)
	s.RowInfoMap = make(map[int]*RowInfo)
	s.MergedCells = nil
	s.err = nil
}

// ensureLoaded moves an unloaded or released sheet through loading to loaded.
func (s *Sheet) ensureLoaded() {
	if s.state == SheetLoaded || s.state == SheetLoading {
		return
	}
	s.state = SheetLoading
	s.reset()
	var err error
	if s.Book.xlsx != nil {
		err = s.Book.xlsx.loadSheet(s)
	} else {
		err = s.load()
	}
	s.finish()
	if err != nil {
		s.err = err
		s.Book.logger.Warn("sheet not fully decoded", zap.String("sheet", s.Name), zap.Error(err))
	}
	s.state = SheetLoaded
}

// Release drops the sheet's cells. The next access decodes them again.
func (s *Sheet) Release() {
	if s.state != SheetLoaded {
		return
	}
	s.rows = nil
	s.arena = nil
	s.ColInfoMap = nil
	s.RowInfoMap = nil
	s.MergedCells = nil
	s.NRows, s.NCols = 0, 0
	s.state = SheetReleased
}

func (s *Sheet) residentCells() int {
	n := 0
	for _, row := range s.rows {
		n += len(row)
	}
	return n
}

func (s *Sheet) put(rowx, colx int, c Cell) {
	for len(s.rows) <= rowx {
		s.rows = append(s.rows, nil)
	}
	row := s.rows[rowx]
	for len(row) <= colx {
		row = append(row, Cell{CType: XL_CELL_EMPTY, XFIndex: -1})
	}
	row[colx] = c
	s.rows[rowx] = row
}

// finish sets the extents and pads rows unless RaggedRows is set.
func (s *Sheet) finish() {
	s.NRows = len(s.rows)
	ncols := 0
	for _, row := range s.rows {
		if len(row) > ncols {
			ncols = len(row)
		}
	}
	s.NCols = ncols
	if s.dimNRows > 0 && (s.NRows > s.dimNRows || s.NCols > s.dimNCols) {
		s.Book.logger.Warn("cells outside the DIMENSION record",
			zap.String("sheet", s.Name),
			zap.Int("rows", s.NRows), zap.Int("dimRows", s.dimNRows),
			zap.Int("cols", s.NCols), zap.Int("dimCols", s.dimNCols))
	}
	if s.Book.opts.RaggedRows {
		return
	}
	for i, row := range s.rows {
		for len(row) < ncols {
			row = append(row, Cell{CType: XL_CELL_EMPTY, XFIndex: -1})
		}
		s.rows[i] = row
	}
}

func u16(b []byte, pos int) int {
	return int(binary.LittleEndian.Uint16(b[pos:]))
}

// load decodes the worksheet substream at the sheet's offset.
func (s *Sheet) load() error {
	b := s.Book
	if s.SheetType != XL_BOUNDSHEET_WORKSHEET {
		return nil
	}
	if b.stream == nil {
		return NewXLRDError("sheet %q cannot be loaded: workbook resources have been released", s.Name)
	}
	rr := NewRecordReader(b.stream, s.offset)
	if _, err := b.getBOF(rr, XL_WORKSHEET); err != nil {
		return err
	}
	bv := b.BiffVersion
	fmtInfo := b.opts.FormattingInfo
	var pendingString *cellKey

	for {
		rec, err := rr.Next()
		if err == io.EOF {
			b.logger.Warn("sheet ends without an EOF record", zap.String("sheet", s.Name))
			return nil
		}
		if err != nil {
			return err
		}
		data := rec.Data
		bad := func(msg string) error {
			return &MalformedRecordError{Offset: rec.Offset, Code: rec.Code, Message: msg}
		}
		if IsCellOpcode(rec.Code) && len(data) < 6 {
			return bad("cell record too short")
		}

		switch rec.Code {
		case XL_EOF:
			return nil

		case XL_NUMBER:
			if len(data) < 14 {
				return bad("NUMBER record too short")
			}
			v := math.Float64frombits(binary.LittleEndian.Uint64(data[6:]))
			s.put(u16(data, 0), u16(data, 2), Cell{CType: XL_CELL_NUMBER, Value: v, XFIndex: u16(data, 4)})

		case XL_RK:
			if len(data) < 10 {
				return bad("RK record too short")
			}
			v := DecodeRK(binary.LittleEndian.Uint32(data[6:]))
			s.put(u16(data, 0), u16(data, 2), Cell{CType: XL_CELL_NUMBER, Value: v, XFIndex: u16(data, 4)})

		case XL_MULRK:
			rowx, colx := u16(data, 0), u16(data, 2)
			n := (len(data) - 6) / 6
			if n <= 0 || 4+6*n+2 != len(data) {
				return bad("MULRK length does not match its column range")
			}
			for i := 0; i < n; i++ {
				p := 4 + 6*i
				v := DecodeRK(binary.LittleEndian.Uint32(data[p+2:]))
				s.put(rowx, colx+i, Cell{CType: XL_CELL_NUMBER, Value: v, XFIndex: u16(data, p)})
			}

		case XL_LABELSST:
			if len(data) < 10 {
				return bad("LABELSST record too short")
			}
			idx := int(binary.LittleEndian.Uint32(data[6:]))
			if idx >= len(b.sharedStrings) {
				return bad("shared string index out of range")
			}
			s.put(u16(data, 0), u16(data, 2), Cell{CType: XL_CELL_TEXT, Value: b.sharedStrings[idx], XFIndex: u16(data, 4)})

		case XL_LABEL, XL_RSTRING:
			text, _, err := b.unpackText(data, 6, 2)
			if err != nil {
				return bad(err.Error())
			}
			s.put(u16(data, 0), u16(data, 2), Cell{CType: XL_CELL_TEXT, Value: text, XFIndex: u16(data, 4)})

		case XL_BOOLERR:
			if len(data) < 8 {
				return bad("BOOLERR record too short")
			}
			c := Cell{CType: XL_CELL_BOOLEAN, Value: data[6] != 0, XFIndex: u16(data, 4)}
			if data[7] != 0 {
				c = Cell{CType: XL_CELL_ERROR, Value: data[6], XFIndex: u16(data, 4)}
			}
			s.put(u16(data, 0), u16(data, 2), c)

		case XL_FORMULA:
			c, str, err := s.formulaCell(data)
			if err != nil {
				return bad(err.Error())
			}
			s.put(u16(data, 0), u16(data, 2), c)
			pendingString = nil
			if str {
				pendingString = &cellKey{u16(data, 0), u16(data, 2)}
			}

		case XL_STRING:
			if pendingString == nil {
				b.logger.Debug("STRING record without a formula", zap.Int("offset", rec.Offset))
				break
			}
			text, _, err := b.unpackText(data, 0, 2)
			if err != nil {
				return bad(err.Error())
			}
			c := s.rows[pendingString.row][pendingString.col]
			c.Value = text
			s.rows[pendingString.row][pendingString.col] = c
			pendingString = nil

		case XL_SHRFMLA:
			if len(data) < 10 {
				return bad("SHRFMLA record too short")
			}
			p := &formulaPattern{
				firstRow: u16(data, 0), lastRow: u16(data, 2),
				firstCol: int(data[4]), lastCol: int(data[5]),
			}
			cce := u16(data, 8)
			if 10+cce > len(data) {
				return bad("SHRFMLA token length overruns the record")
			}
			p.tokens = append([]byte(nil), data[10:10+cce]...)
			p.extra = append([]byte(nil), data[10+cce:]...)
			s.arena[cellKey{p.firstRow, p.firstCol}] = p

		case XL_ARRAY:
			if len(data) < 14 {
				return bad("ARRAY record too short")
			}
			p := &formulaPattern{
				firstRow: u16(data, 0), lastRow: u16(data, 2),
				firstCol: int(data[4]), lastCol: int(data[5]),
				array: true,
			}
			cce := u16(data, 12)
			if 14+cce > len(data) {
				return bad("ARRAY token length overruns the record")
			}
			p.tokens = append([]byte(nil), data[14:14+cce]...)
			p.extra = append([]byte(nil), data[14+cce:]...)
			s.arena[cellKey{p.firstRow, p.firstCol}] = p

		case XL_BLANK:
			if fmtInfo && len(data) >= 6 {
				s.put(u16(data, 0), u16(data, 2), Cell{CType: XL_CELL_BLANK, XFIndex: u16(data, 4)})
			}

		case XL_MULBLANK:
			if !fmtInfo {
				break
			}
			if len(data) < 8 {
				return bad("MULBLANK record too short")
			}
			rowx, colx := u16(data, 0), u16(data, 2)
			n := (len(data) - 6) / 2
			for i := 0; i < n; i++ {
				s.put(rowx, colx+i, Cell{CType: XL_CELL_BLANK, XFIndex: u16(data, 4+2*i)})
			}

		case XL_DIMENSION:
			if bv >= 80 && len(data) >= 12 {
				s.dimNRows = int(binary.LittleEndian.Uint32(data[4:]))
				s.dimNCols = u16(data, 10)
			} else if len(data) >= 8 {
				s.dimNRows = u16(data, 2)
				s.dimNCols = u16(data, 6)
			}

		case XL_MERGEDCELLS:
			if !fmtInfo || len(data) < 2 {
				break
			}
			n := u16(data, 0)
			for i := 0; i < n && 2+8*i+8 <= len(data); i++ {
				p := 2 + 8*i
				s.MergedCells = append(s.MergedCells, [4]int{
					u16(data, p), u16(data, p+2) + 1, u16(data, p+4), u16(data, p+6) + 1,
				})
			}

		case XL_ROW:
			if fmtInfo && len(data) >= 16 {
				bits := u16(data, 6)
				flags := binary.LittleEndian.Uint32(data[12:])
				ri := &RowInfo{
					Height:       bits & 0x7fff,
					Hidden:       flags&0x20 != 0,
					OutlineLevel: int(flags & 0x07),
					XFIndex:      -1,
				}
				if flags&0x80 != 0 {
					ri.XFIndex = int(flags>>16) & 0x0fff
				}
				s.RowInfoMap[u16(data, 0)] = ri
			}

		case XL_COLINFO:
			if fmtInfo && len(data) >= 10 {
				first, last := u16(data, 0), u16(data, 2)
				flags := u16(data, 8)
				if last > 255 {
					last = 255
				}
				for colx := first; colx <= last; colx++ {
					s.ColInfoMap[colx] = &ColInfo{
						Width:        u16(data, 4),
						XFIndex:      u16(data, 6),
						Hidden:       flags&0x01 != 0,
						OutlineLevel: (flags >> 8) & 0x07,
						Collapsed:    flags&0x1000 != 0,
					}
				}
			}

		default:
			if _, isBOF := boflen[rec.Code]; isBOF {
				if err := skipSubstream(rr); err != nil {
					return err
				}
			}
		}
	}
}

// skipSubstream advances past an embedded substream (a chart inside a
// worksheet) up to and including its EOF record.
func skipSubstream(rr *RecordReader) error {
	depth := 1
	for depth > 0 {
		rec, err := rr.NextPhysical()
		if err == io.EOF {
			return NewXLRDError("embedded substream is not terminated")
		}
		if err != nil {
			return err
		}
		if _, isBOF := boflen[rec.Code]; isBOF {
			depth++
		} else if rec.Code == XL_EOF {
			depth--
		}
	}
	return nil
}

// formulaCell decodes a FORMULA record into a cell carrying the cached
// result. str reports that the result is a string held in the next STRING
// record.
func (s *Sheet) formulaCell(data []byte) (c Cell, str bool, err error) {
	if len(data) < 22 {
		return c, false, NewXLRDError("FORMULA record too short")
	}
	rowx, colx := u16(data, 0), u16(data, 2)
	c.XFIndex = u16(data, 4)
	if data[12] == 0xFF && data[13] == 0xFF {
		switch data[6] {
		case 0:
			c.CType, c.Value, str = XL_CELL_TEXT, "", true
		case 1:
			c.CType, c.Value = XL_CELL_BOOLEAN, data[8] != 0
		case 2:
			c.CType, c.Value = XL_CELL_ERROR, data[8]
		case 3:
			c.CType, c.Value = XL_CELL_TEXT, ""
		default:
			return c, false, NewXLRDError("unexpected formula result type %d", data[6])
		}
	} else {
		c.CType = XL_CELL_NUMBER
		c.Value = math.Float64frombits(binary.LittleEndian.Uint64(data[6:]))
	}

	cce := u16(data, 20)
	if 22+cce > len(data) {
		return c, false, NewXLRDError("formula token length %d overruns the record", cce)
	}
	tokens := data[22 : 22+cce]
	f := &Formula{sheet: s, Row: rowx, Col: colx}
	if cce == 5 && tokens[0] == tExp {
		f.Shared = true
		f.AnchorRow = u16(tokens, 1)
		f.AnchorCol = u16(tokens, 3)
	} else {
		f.tokens = append([]byte(nil), tokens...)
		f.extra = append([]byte(nil), data[22+cce:]...)
	}
	c.Formula = f
	return c, str, nil
}

// resolve fills in the number format of a cell and promotes numbers with a
// date format to XL_CELL_DATE.
func (s *Sheet) resolve(c *Cell) {
	if s.Book.BiffVersion == 0 || c.XFIndex < 0 {
		return
	}
	f := s.Book.XFFormat(c.XFIndex)
	if f == nil {
		return
	}
	c.NumberFormat = f.FormatString
	if c.CType == XL_CELL_NUMBER && f.Type == FDT {
		c.CType = XL_CELL_DATE
	}
}

// Cell returns the Cell object at the given row and column. Coordinates
// outside the sheet yield an empty cell.
func (s *Sheet) Cell(rowx, colx int) *Cell {
	s.ensureLoaded()
	if rowx < 0 || rowx >= len(s.rows) || colx < 0 || colx >= len(s.rows[rowx]) {
		return EmptyCell()
	}
	c := s.rows[rowx][colx]
	s.resolve(&c)
	return &c
}

// Row returns a slice of Cell objects for the given row.
func (s *Sheet) Row(rowx int) []*Cell {
	s.ensureLoaded()
	if rowx < 0 || rowx >= len(s.rows) {
		return nil
	}
	out := make([]*Cell, len(s.rows[rowx]))
	for i := range s.rows[rowx] {
		c := s.rows[rowx][i]
		s.resolve(&c)
		out[i] = &c
	}
	return out
}

// RowLen returns the number of cells in the row, including padding.
func (s *Sheet) RowLen(rowx int) int {
	s.ensureLoaded()
	if rowx < 0 || rowx >= len(s.rows) {
		return 0
	}
	return len(s.rows[rowx])
}

// CellValue returns the value of the cell at the given row and column.
func (s *Sheet) CellValue(rowx, colx int) interface{} {
	return s.Cell(rowx, colx).Value
}

// CellType returns the type of the cell at the given row and column.
func (s *Sheet) CellType(rowx, colx int) int {
	return s.Cell(rowx, colx).CType
}

// CellXFIndex returns the XF index of the cell at the given row and column.
func (s *Sheet) CellXFIndex(rowx, colx int) int {
	return s.Cell(rowx, colx).XFIndex
}
