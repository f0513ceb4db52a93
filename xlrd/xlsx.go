package xlrd

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// xlsxBook backs a Book read from the xlsx format.
type xlsxBook struct {
	file *excelize.File

	// number formats by style index
	formats map[int]*Format
}

func openXlsx(path string, content []byte, opts OpenWorkbookOptions) (*Book, error) {
	t0 := time.Now()
	var (
		f   *excelize.File
		err error
	)
	if content != nil {
		f, err = excelize.OpenReader(bytes.NewReader(content))
	} else {
		f, err = excelize.OpenFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}

	bk := newBook(opts)
	bk.xlsx = &xlsxBook{file: f, formats: make(map[int]*Format)}
	bk.Encoding = "utf-8"
	bk.FormatMap = make(map[int]*Format)
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil && *props.Date1904 {
		bk.Datemode = 1
	}
	for i, name := range f.GetSheetList() {
		visibility := 0
		if visible, err := f.GetSheetVisible(name); err == nil && !visible {
			visibility = 1
		}
		bk.sheetNames = append(bk.sheetNames, name)
		bk.sheetVisibility = append(bk.sheetVisibility, visibility)
		bk.sheetTypes = append(bk.sheetTypes, XL_BOUNDSHEET_WORKSHEET)
		bk.sheetList = append(bk.sheetList, newSheet(bk, i, name, -1, visibility, XL_BOUNDSHEET_WORKSHEET))
	}
	bk.NSheets = len(bk.sheetList)
	bk.xlsxNames()
	bk.LoadTimeStage1 = time.Since(t0)

	t1 := time.Now()
	if !opts.OnDemand {
		for _, sh := range bk.sheetList {
			sh.ensureLoaded()
		}
	}
	bk.LoadTimeStage2 = time.Since(t1)
	bk.logger.Debug("xlsx workbook opened", zap.Int("sheets", bk.NSheets))
	return bk, nil
}

// xlsxNames builds the defined-name tables from the workbook's defined names.
func (b *Book) xlsxNames() {
	for _, dn := range b.xlsx.file.GetDefinedName() {
		scope := -1
		if dn.Scope != "" && !strings.EqualFold(dn.Scope, "Workbook") {
			scope = -3
			for i, name := range b.sheetNames {
				if name == dn.Scope {
					scope = i
				}
			}
		}
		b.NameObjList = append(b.NameObjList, &Name{
			book:            b,
			NameIndex:       len(b.NameObjList),
			Name:            dn.Name,
			Scope:           scope,
			ExcelSheetIndex: scope + 1,
			source:          dn.RefersTo,
		})
	}
	b.NameMap = make(map[string][]*Name)
	b.NameAndScopeMap = make(map[NameScope]*Name)
	for _, n := range b.NameObjList {
		key := NameScope{Name: strings.ToLower(n.Name), Scope: n.Scope}
		b.NameAndScopeMap[key] = n
		b.NameMap[key.Name] = append(b.NameMap[key.Name], n)
	}
}

// format returns the number format of a style index.
func (x *xlsxBook) format(styleIdx int) *Format {
	if f, ok := x.formats[styleIdx]; ok {
		return f
	}
	f := &Format{FormatKey: 0, Type: FGE, FormatString: "General"}
	if style, err := x.file.GetStyle(styleIdx); err == nil && style != nil {
		switch {
		case style.CustomNumFmt != nil:
			f = &Format{FormatKey: style.NumFmt, Type: classifyFormat(*style.CustomNumFmt), FormatString: *style.CustomNumFmt}
		default:
			if std := BuiltinFormat(style.NumFmt); std != nil {
				f = std
			}
		}
	}
	x.formats[styleIdx] = f
	return f
}

// loadSheet fills a sheet from the xlsx part of the same name. Values are
// read raw and typed from the cell type and number format.
func (x *xlsxBook) loadSheet(s *Sheet) error {
	rows, err := x.file.GetRows(s.Name, excelize.Options{RawCellValue: true})
	if err != nil {
		return fmt.Errorf("read sheet %q: %w", s.Name, err)
	}
	fmtInfo := s.Book.opts.FormattingInfo
	for r, row := range rows {
		for c, raw := range row {
			axis, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			cell, err := x.cell(s, axis, r, c, raw)
			if err != nil {
				return err
			}
			if cell.CType == XL_CELL_EMPTY || cell.CType == XL_CELL_BLANK && !fmtInfo {
				continue
			}
			s.put(r, c, cell)
		}
	}
	if fmtInfo {
		merged, err := x.file.GetMergeCells(s.Name)
		if err != nil {
			return fmt.Errorf("merged cells of %q: %w", s.Name, err)
		}
		for _, mc := range merged {
			c1, r1, err1 := excelize.CellNameToCoordinates(mc.GetStartAxis())
			c2, r2, err2 := excelize.CellNameToCoordinates(mc.GetEndAxis())
			if err1 != nil || err2 != nil {
				continue
			}
			s.MergedCells = append(s.MergedCells, [4]int{r1 - 1, r2, c1 - 1, c2})
		}
	}
	return nil
}

func (x *xlsxBook) cell(s *Sheet, axis string, r, c int, raw string) (Cell, error) {
	out := Cell{CType: XL_CELL_EMPTY, XFIndex: -1}
	styleIdx, err := x.file.GetCellStyle(s.Name, axis)
	if err == nil {
		out.XFIndex = styleIdx
		out.NumberFormat = x.format(styleIdx).FormatString
	}
	formula, err := x.file.GetCellFormula(s.Name, axis)
	if err == nil && formula != "" {
		out.Formula = &Formula{sheet: s, Row: r, Col: c, source: formula}
	}
	if raw == "" {
		if out.Formula != nil {
			out.CType, out.Value = XL_CELL_TEXT, ""
		} else if out.XFIndex > 0 {
			out.CType = XL_CELL_BLANK
		}
		return out, nil
	}

	ctype, err := x.file.GetCellType(s.Name, axis)
	if err != nil {
		return out, err
	}
	switch ctype {
	case excelize.CellTypeBool:
		out.CType, out.Value = XL_CELL_BOOLEAN, raw == "1" || strings.EqualFold(raw, "TRUE")
	case excelize.CellTypeError:
		out.CType = XL_CELL_ERROR
		out.Value = errorCodeFromText[raw]
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula:
		out.CType, out.Value = XL_CELL_TEXT, raw
	case excelize.CellTypeDate:
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			out.CType, out.Value = XL_CELL_TEXT, raw
			break
		}
		v, err := XldateFromTime(t, s.Book.Datemode)
		if err != nil {
			out.CType, out.Value = XL_CELL_TEXT, raw
			break
		}
		out.CType, out.Value = XL_CELL_DATE, v
	default:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			out.CType, out.Value = XL_CELL_TEXT, raw
			break
		}
		out.CType, out.Value = XL_CELL_NUMBER, v
		if out.XFIndex >= 0 && x.format(out.XFIndex).Type == FDT {
			out.CType = XL_CELL_DATE
		}
	}
	return out, nil
}

func (x *xlsxBook) Close() error {
	return x.file.Close()
}
