package xlrd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Supporting-workbook kinds recorded from SUPBOOK records.
const (
	SUPBOOK_UNK = iota
	SUPBOOK_INTERNAL
	SUPBOOK_EXTERNAL
	SUPBOOK_ADDIN
	SUPBOOK_DDEOLE
)

var builtinNameFromCode = map[byte]string{
	0x00: "Consolidate_Area",
	0x01: "Auto_Open",
	0x02: "Auto_Close",
	0x03: "Extract",
	0x04: "Database",
	0x05: "Criteria",
	0x06: "Print_Area",
	0x07: "Print_Titles",
	0x08: "Recorder",
	0x09: "Data_Form",
	0x0A: "Auto_Activate",
	0x0B: "Auto_Deactivate",
	0x0C: "Sheet_Title",
	0x0D: "_FilterDatabase",
}

// Name represents information relating to a named reference, formula, macro, etc.
//
// Note: Name information is not extracted from files older than Excel 5.0 (Book.BiffVersion < 50)
type Name struct {
	book *Book

	// NameIndex is the position of the NAME record, as referenced by tName tokens.
	NameIndex int

	// Name is the name of the object. Built-in names use their English text,
	// e.g. "Print_Area".
	Name string

	Hidden    bool
	Func      bool // function macro rather than command macro; relevant only if Macro
	VBasic    bool // VisualBasic macro; relevant only if Macro
	Macro     bool
	Complex   bool
	Builtin   bool
	FuncGroup int
	Binary    bool

	// Scope is -1 for a global name, a sheet index for a sheet-level name,
	// -2 for a macro sheet and -3 for an index that does not resolve.
	Scope int

	// ExcelSheetIndex is the raw 1-based sheet index of the NAME record.
	ExcelSheetIndex int

	// RawFormula holds the formula tokens followed by their extra data.
	RawFormula      []byte
	BasicFormulaLen int

	source string // formula text, for workbooks read from xlsx

	parsed  bool
	expr    Expr
	exprErr error
}

// Expr decodes the name's formula. The result is cached.
func (n *Name) Expr() (Expr, error) {
	if !n.parsed {
		n.parsed = true
		if n.source != "" {
			n.expr, n.exprErr = ParseFormulaText(n.source)
		} else if n.BasicFormulaLen > len(n.RawFormula) {
			n.exprErr = &MalformedRecordError{Code: XL_NAME, Message: fmt.Sprintf("name %q: formula length %d exceeds record", n.Name, n.BasicFormulaLen)}
		} else {
			n.expr, n.exprErr = DecodeFormula(n.book, n.RawFormula[:n.BasicFormulaLen], n.RawFormula[n.BasicFormulaLen:], FormulaContext{})
		}
	}
	return n.expr, n.exprErr
}

// FormulaText renders the name's formula, or "" when it cannot be decoded.
func (n *Name) FormulaText() string {
	e, err := n.Expr()
	if err != nil || e == nil {
		return ""
	}
	return e.String()
}

// NameScope keys Book.NameAndScopeMap.
type NameScope struct {
	Name  string // lower-cased
	Scope int
}

type externSheet struct {
	supbook    int
	firstSheet int
	lastSheet  int
}

func (b *Book) handleName(rec *Record) error {
	if b.BiffVersion < 50 {
		return nil
	}
	data := rec.Data
	if len(data) < 14 {
		b.logger.Warn("NAME record too short", zap.Int("offset", rec.Offset), zap.Int("length", len(data)))
		return nil
	}
	flags := int(binary.LittleEndian.Uint16(data[0:]))
	nameLen := int(data[3])
	fmlaLen := int(binary.LittleEndian.Uint16(data[4:]))
	sheetIndex := int(binary.LittleEndian.Uint16(data[8:]))

	var (
		name string
		pos  int
		err  error
	)
	if b.BiffVersion < BIFF_FIRST_UNICODE {
		name, pos, err = UnpackStringUpdatePos(data, 14, b.encoding, 1, nameLen)
	} else {
		name, pos, err = UnpackUnicodeUpdatePos(data, 14, 2, nameLen)
	}
	if err != nil {
		return &MalformedRecordError{Offset: rec.Offset, Code: XL_NAME, Message: err.Error()}
	}

	nobj := &Name{
		book:            b,
		NameIndex:       len(b.NameObjList),
		Hidden:          flags&0x01 != 0,
		Func:            flags&0x02 != 0,
		VBasic:          flags&0x04 != 0,
		Macro:           flags&0x08 != 0,
		Complex:         flags&0x10 != 0,
		Builtin:         flags&0x20 != 0,
		FuncGroup:       (flags & 0xFC0) >> 6,
		Binary:          flags&0x1000 != 0,
		ExcelSheetIndex: sheetIndex,
		BasicFormulaLen: fmlaLen,
		RawFormula:      append([]byte(nil), data[pos:]...),
		Name:            name,
	}
	if nobj.Builtin && len(name) == 1 {
		if text, ok := builtinNameFromCode[name[0]]; ok {
			nobj.Name = text
		}
	}
	b.NameObjList = append(b.NameObjList, nobj)
	return nil
}

func (b *Book) handleSupbook(rec *Record) {
	data := rec.Data
	sbn := len(b.supbookTypes)
	b.supbookTypes = append(b.supbookTypes, SUPBOOK_UNK)
	if len(data) < 4 {
		b.logger.Warn("SUPBOOK record too short", zap.Int("offset", rec.Offset))
		return
	}
	numSheets := int(binary.LittleEndian.Uint16(data))
	if bytes.Equal(data[2:4], []byte{0x01, 0x04}) {
		b.supbookTypes[sbn] = SUPBOOK_INTERNAL
		b.supbookLocalsInx = sbn
		return
	}
	if bytes.Equal(data[0:4], []byte{0x01, 0x00, 0x01, 0x3A}) {
		b.supbookTypes[sbn] = SUPBOOK_ADDIN
		b.supbookAddinsInx = sbn
		return
	}
	url, _, err := UnpackUnicodeUpdatePos(data, 2, 2, -1)
	if err != nil {
		b.logger.Warn("bad SUPBOOK url", zap.Int("offset", rec.Offset), zap.Error(err))
	}
	if numSheets == 0 {
		b.supbookTypes[sbn] = SUPBOOK_DDEOLE
		return
	}
	b.supbookTypes[sbn] = SUPBOOK_EXTERNAL
	b.logger.Debug("external SUPBOOK", zap.Int("index", sbn), zap.String("url", url), zap.Int("sheets", numSheets))
}

// handleExternName records the names of an add-in or external workbook so
// that tNameX tokens can be rendered.
func (b *Book) handleExternName(rec *Record) {
	if b.BiffVersion < 80 || len(b.supbookTypes) == 0 {
		return
	}
	data := rec.Data
	if len(data) < 7 {
		return
	}
	sbn := len(b.supbookTypes) - 1
	name, _, err := UnpackUnicodeUpdatePos(data, 6, 1, -1)
	if err != nil {
		b.logger.Warn("bad EXTERNNAME", zap.Int("offset", rec.Offset), zap.Error(err))
		name = "?"
	}
	if b.externNames == nil {
		b.externNames = make(map[int][]string)
	}
	b.externNames[sbn] = append(b.externNames[sbn], name)
}

func (b *Book) handleExternsheet(rec *Record) {
	data := rec.Data
	// BIFF5/7 formulas are not decoded, so their EXTERNSHEET form is not needed
	if b.BiffVersion < 80 || len(data) < 2 {
		return
	}
	num := int(binary.LittleEndian.Uint16(data))
	for k := 0; k < num; k++ {
		pos := 2 + 6*k
		if pos+6 > len(data) {
			b.logger.Warn("EXTERNSHEET record shorter than its count",
				zap.Int("offset", rec.Offset), zap.Int("count", num), zap.Int("read", k))
			break
		}
		b.externsheetInfo = append(b.externsheetInfo, externSheet{
			supbook:    int(binary.LittleEndian.Uint16(data[pos:])),
			firstSheet: int(binary.LittleEndian.Uint16(data[pos+2:])),
			lastSheet:  int(binary.LittleEndian.Uint16(data[pos+4:])),
		})
	}
}

// namesEpilogue resolves name scopes and builds the name lookup maps once all
// global records have been read.
func (b *Book) namesEpilogue() {
	b.NameMap = make(map[string][]*Name)
	b.NameAndScopeMap = make(map[NameScope]*Name)
	for _, nobj := range b.NameObjList {
		switch {
		case nobj.ExcelSheetIndex == 0:
			nobj.Scope = -1
		case nobj.ExcelSheetIndex <= len(b.sheetNames):
			nobj.Scope = nobj.ExcelSheetIndex - 1
			if b.sheetTypes[nobj.Scope] == XL_BOUNDSHEET_MACRO {
				nobj.Scope = -2
			}
		default:
			nobj.Scope = -3
		}
		key := NameScope{Name: strings.ToLower(nobj.Name), Scope: nobj.Scope}
		if _, dup := b.NameAndScopeMap[key]; dup {
			b.logger.Debug("duplicate name", zap.String("name", nobj.Name), zap.Int("scope", nobj.Scope))
		}
		b.NameAndScopeMap[key] = nobj
		b.NameMap[key.Name] = append(b.NameMap[key.Name], nobj)
	}
	for _, list := range b.NameMap {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Scope < list[j].Scope })
	}
}

// externSheetRange maps an EXTERNSHEET index to a range of local sheet
// indexes. Negative results describe references that are not local:
// -1 any sheet, -2 deleted sheet, -4 external workbook, -5 add-in,
// -101..-103 malformed references.
func (b *Book) externSheetRange(refx int) (int, int) {
	if refx < 0 || refx >= len(b.externsheetInfo) {
		return -101, -101
	}
	info := b.externsheetInfo[refx]
	if info.supbook == b.supbookAddinsInx {
		if info.firstSheet == 0xFFFE && info.lastSheet == 0xFFFE {
			return -5, -5
		}
		return -103, -103
	}
	if info.supbook != b.supbookLocalsInx {
		return -4, -4
	}
	if info.firstSheet == 0xFFFE && info.lastSheet == 0xFFFE {
		return -1, -1
	}
	if info.firstSheet == 0xFFFF && info.lastSheet == 0xFFFF {
		return -2, -2
	}
	n := len(b.sheetNames)
	if info.firstSheet >= n || info.lastSheet >= n || info.firstSheet > info.lastSheet {
		return -102, -102
	}
	return info.firstSheet, info.lastSheet
}

// sheetRangeText renders the sheet prefix of a 3-D reference.
func (b *Book) sheetRangeText(refx int) string {
	if b == nil {
		return fmt.Sprintf("?ref%d?", refx)
	}
	lo, hi := b.externSheetRange(refx)
	first := QuotedSheetName(b.sheetNames, lo)
	if hi == lo {
		return first
	}
	return first + ":" + QuotedSheetName(b.sheetNames, hi)
}

// nameText renders a tName reference; index is 1-based.
func (b *Book) nameText(index int) string {
	if b == nil || index < 1 || index > len(b.NameObjList) {
		return fmt.Sprintf("?name%d?", index)
	}
	return b.NameObjList[index-1].Name
}

// externNameText renders a tNameX reference. Local names are looked up in the
// NAME table; add-in and external names come from EXTERNNAME records.
func (b *Book) externNameText(refx, index int) string {
	if b == nil || refx < 0 || refx >= len(b.externsheetInfo) {
		return fmt.Sprintf("?extname%d?", index)
	}
	sbn := b.externsheetInfo[refx].supbook
	if sbn == b.supbookLocalsInx {
		return b.nameText(index)
	}
	names := b.externNames[sbn]
	if index < 1 || index > len(names) {
		return fmt.Sprintf("?extname%d?", index)
	}
	return names[index-1]
}
