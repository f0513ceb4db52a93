package xlrd

import (
	"fmt"
	"io"
	"strings"
)

// Cell types
const (
	XL_CELL_EMPTY   = 0
	XL_CELL_TEXT    = 1
	XL_CELL_NUMBER  = 2
	XL_CELL_DATE    = 3
	XL_CELL_BOOLEAN = 4
	XL_CELL_ERROR   = 5
	XL_CELL_BLANK   = 6 // only produced when FormattingInfo is set
)

// Format types
const (
	FUN = 0 // unknown
	FDT = 1 // date
	FNU = 2 // number
	FGE = 3 // general
	FTX = 4 // text
)

// BIFF version constants
const (
	BIFF_FIRST_UNICODE = 80
)

var biffTextFromNum = map[int]string{
	0:  "(not BIFF)",
	20: "2.0",
	21: "2.1",
	30: "3",
	40: "4S",
	45: "4W",
	50: "5",
	70: "7",
	80: "8",
	85: "8X",
}

// BiffTextFromNum returns a text representation of a BIFF version number.
func BiffTextFromNum(num int) string {
	if text, ok := biffTextFromNum[num]; ok {
		return text
	}
	return fmt.Sprintf("Unknown(%d)", num)
}

// ErrorTextFromCode maps a cell error code to its display text.
var ErrorTextFromCode = map[byte]string{
	0x00: "#NULL!",  // Intersection of two cell ranges is empty
	0x07: "#DIV/0!", // Division by zero
	0x0F: "#VALUE!", // Wrong type of operand
	0x17: "#REF!",   // Illegal or deleted cell reference
	0x1D: "#NAME?",  // Wrong function or range name
	0x24: "#NUM!",   // Value range overflow
	0x2A: "#N/A",    // Argument or function not available
}

// Substream types found in BOF records.
const (
	XL_WORKBOOK_GLOBALS    = 0x5
	XL_WORKBOOK_GLOBALS_4W = 0x100
	XL_WORKSHEET           = 0x10
	XL_CHART_SUBSTREAM     = 0x20
	XL_MACRO_SUBSTREAM     = 0x40
)

// Sheet types found in BOUNDSHEET records.
const (
	XL_BOUNDSHEET_WORKSHEET = 0x00
	XL_BOUNDSHEET_MACRO     = 0x01
	XL_BOUNDSHEET_CHART     = 0x02
	XL_BOUNDSHEET_VB_MODULE = 0x06
)

// BIFF record opcodes.
const (
	XL_ARRAY             = 0x0221
	XL_BLANK             = 0x0201
	XL_BOF               = 0x809
	XL_BOOLERR           = 0x205
	XL_BOUNDSHEET        = 0x85
	XL_BUILTINFMTCOUNT   = 0x56
	XL_CODEPAGE          = 0x42
	XL_COLINFO           = 0x7D
	XL_CONTINUE          = 0x3c
	XL_COUNTRY           = 0x8C
	XL_DATEMODE          = 0x22
	XL_DEFAULTROWHEIGHT  = 0x0225
	XL_DEFCOLWIDTH       = 0x55
	XL_DIMENSION         = 0x200
	XL_EOF               = 0x0a
	XL_EXTERNNAME        = 0x23
	XL_EXTERNSHEET       = 0x17
	XL_EXTSST            = 0xff
	XL_FILEPASS          = 0x2f
	XL_FONT              = 0x31
	XL_FORMAT            = 0x41e
	XL_FORMULA           = 0x6
	XL_HLINK             = 0x01B8
	XL_INDEX             = 0x20b
	XL_LABEL             = 0x204
	XL_LABELRANGES       = 0x15f
	XL_LABELSST          = 0xfd
	XL_MERGEDCELLS       = 0xE5
	XL_MSO_DRAWING       = 0x00EC
	XL_MSO_DRAWING_GROUP = 0x00EB
	XL_MULRK             = 0xbd
	XL_MULBLANK          = 0xbe
	XL_NAME              = 0x18
	XL_NOTE              = 0x1c
	XL_NUMBER            = 0x203
	XL_OBJ               = 0x5D
	XL_PALETTE           = 0x92
	XL_RK                = 0x27e
	XL_ROW               = 0x208
	XL_RSTRING           = 0xd6
	XL_SHRFMLA           = 0x04bc
	XL_SST               = 0xfc
	XL_STANDARDWIDTH     = 0x99
	XL_STRING            = 0x207
	XL_STYLE             = 0x293
	XL_SUPBOOK           = 0x1AE
	XL_TABLEOP           = 0x236
	XL_TXO               = 0x1b6
	XL_WINDOW2           = 0x023E
	XL_WRITEACCESS       = 0x5C
	XL_XF                = 0xe0
)

var boflen = map[int]int{
	0x0809: 8,
	0x0409: 6,
	0x0209: 6,
	0x0009: 4,
}

var cellOpcodeSet = map[int]bool{
	XL_BOOLERR:  true,
	XL_FORMULA:  true,
	XL_LABEL:    true,
	XL_LABELSST: true,
	XL_MULRK:    true,
	XL_NUMBER:   true,
	XL_RK:       true,
	XL_RSTRING:  true,
}

// IsCellOpcode reports whether the record code carries a cell value.
func IsCellOpcode(c int) bool {
	return cellOpcodeSet[c]
}

// SupportedVersions lists the BIFF versions this package decodes.
var SupportedVersions = []int{80, 70, 50}

var recordNames = map[int]string{
	XL_ARRAY:             "ARRAY",
	XL_BLANK:             "BLANK",
	XL_BOF:               "BOF",
	XL_BOOLERR:           "BOOLERR",
	XL_BOUNDSHEET:        "BOUNDSHEET",
	XL_BUILTINFMTCOUNT:   "BUILTINFMTCOUNT",
	XL_CODEPAGE:          "CODEPAGE",
	XL_COLINFO:           "COLINFO",
	XL_CONTINUE:          "CONTINUE",
	XL_COUNTRY:           "COUNTRY",
	XL_DATEMODE:          "DATEMODE",
	XL_DEFAULTROWHEIGHT:  "DEFAULTROWHEIGHT",
	XL_DEFCOLWIDTH:       "DEFCOLWIDTH",
	XL_DIMENSION:         "DIMENSION",
	XL_EOF:               "EOF",
	XL_EXTERNNAME:        "EXTERNNAME",
	XL_EXTERNSHEET:       "EXTERNSHEET",
	XL_EXTSST:            "EXTSST",
	XL_FILEPASS:          "FILEPASS",
	XL_FONT:              "FONT",
	XL_FORMAT:            "FORMAT",
	XL_FORMULA:           "FORMULA",
	XL_HLINK:             "HLINK",
	XL_INDEX:             "INDEX",
	XL_LABEL:             "LABEL",
	XL_LABELRANGES:       "LABELRANGES",
	XL_LABELSST:          "LABELSST",
	XL_MERGEDCELLS:       "MERGEDCELLS",
	XL_MSO_DRAWING:       "MSODRAWING",
	XL_MSO_DRAWING_GROUP: "MSODRAWINGGROUP",
	XL_MULBLANK:          "MULBLANK",
	XL_MULRK:             "MULRK",
	XL_NAME:              "NAME",
	XL_NOTE:              "NOTE",
	XL_NUMBER:            "NUMBER",
	XL_OBJ:               "OBJ",
	XL_PALETTE:           "PALETTE",
	XL_RK:                "RK",
	XL_ROW:               "ROW",
	XL_RSTRING:           "RSTRING",
	XL_SHRFMLA:           "SHRFMLA",
	XL_SST:               "SST",
	XL_STANDARDWIDTH:     "STANDARDWIDTH",
	XL_STRING:            "STRING",
	XL_STYLE:             "STYLE",
	XL_SUPBOOK:           "SUPBOOK",
	XL_TABLEOP:           "TABLEOP",
	XL_TXO:               "TXO",
	XL_WINDOW2:           "WINDOW2",
	XL_WRITEACCESS:       "WRITEACCESS",
	XL_XF:                "XF",
}

// RecordName returns the mnemonic for a record opcode, or "<UNKNOWN>".
func RecordName(code int) string {
	if name, ok := recordNames[code]; ok {
		return name
	}
	return "<UNKNOWN>"
}

// HexCharDump writes a hex and character dump of data[ofs:ofs+dlen] to w.
// Non-printable bytes show as '?' and NUL as '~'. base is added to the printed
// offsets; unnumbered suppresses them.
func HexCharDump(data []byte, ofs, dlen, base int, w io.Writer, unnumbered bool) {
	endpos := ofs + dlen
	if endpos > len(data) {
		endpos = len(data)
	}
	for pos := ofs; pos < endpos; pos += 16 {
		endsub := pos + 16
		if endsub > endpos {
			endsub = endpos
		}
		substrg := data[pos:endsub]
		hexd := make([]string, len(substrg))
		var chard strings.Builder
		for i, c := range substrg {
			hexd[i] = fmt.Sprintf("%02x", c)
			switch {
			case c == 0:
				chard.WriteByte('~')
			case c >= 32 && c <= 126:
				chard.WriteByte(c)
			default:
				chard.WriteByte('?')
			}
		}
		if unnumbered {
			fmt.Fprintf(w, "     %-48s %s\n", strings.Join(hexd, " "), chard.String())
		} else {
			fmt.Fprintf(w, "%5d: %-48s %s\n", base+pos-ofs, strings.Join(hexd, " "), chard.String())
		}
	}
}
