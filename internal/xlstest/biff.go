package xlstest

import (
	"encoding/binary"
	"math"
)

// BIFF8 record opcodes used by the builders.
const (
	OpBOF         = 0x0809
	OpEOF         = 0x000A
	OpCodepage    = 0x0042
	OpDatemode    = 0x0022
	OpBoundsheet  = 0x0085
	OpSST         = 0x00FC
	OpContinue    = 0x003C
	OpFormat      = 0x041E
	OpXF          = 0x00E0
	OpFont        = 0x0031
	OpName        = 0x0018
	OpSupbook     = 0x01AE
	OpExternsheet = 0x0017
	OpFilepass    = 0x002F
	OpDimension   = 0x0200
	OpNumber      = 0x0203
	OpLabelSST    = 0x00FD
	OpRK          = 0x027E
	OpMulRK       = 0x00BD
	OpBoolErr     = 0x0205
	OpBlank       = 0x0201
	OpFormula     = 0x0006
	OpString      = 0x0207
	OpShrFmla     = 0x04BC
	OpArray       = 0x0221
	OpMergedCells = 0x00E5
)

// U16 encodes v little-endian.
func U16(v int) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(v))
	return b
}

// U32 encodes v little-endian.
func U32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// F64 encodes v as a little-endian IEEE double.
func F64(v float64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	return b
}

// Cat concatenates byte slices.
func Cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Record frames data as one physical record.
func Record(code int, data []byte) []byte {
	return Cat(U16(code), U16(len(data)), data)
}

// BOF returns a BIFF8 BOF record for the given substream type.
func BOF(streamType int) []byte {
	return Record(OpBOF, Cat(U16(0x0600), U16(streamType), U16(0x0DBB), U16(0x07CC), U32(0), U32(6)))
}

// EOF returns an EOF record.
func EOF() []byte {
	return Record(OpEOF, nil)
}

// Str8 encodes s as a compressed BIFF8 string with a 16-bit length.
func Str8(s string) []byte {
	return Cat(U16(len(s)), []byte{0}, []byte(s))
}

// ShortStr8 encodes s as a compressed BIFF8 string with an 8-bit length.
func ShortStr8(s string) []byte {
	return Cat([]byte{byte(len(s)), 0}, []byte(s))
}

// Number returns a NUMBER record.
func Number(row, col, xf int, v float64) []byte {
	return Record(OpNumber, Cat(U16(row), U16(col), U16(xf), F64(v)))
}

// LabelSST returns a LABELSST record.
func LabelSST(row, col, xf, sstIndex int) []byte {
	return Record(OpLabelSST, Cat(U16(row), U16(col), U16(xf), U32(uint32(sstIndex))))
}

// RK returns an RK record.
func RK(row, col, xf int, rk uint32) []byte {
	return Record(OpRK, Cat(U16(row), U16(col), U16(xf), U32(rk)))
}

// MulRK returns a MULRK record with one RK value per column from firstCol.
func MulRK(row, firstCol, xf int, rks ...uint32) []byte {
	data := Cat(U16(row), U16(firstCol))
	for _, rk := range rks {
		data = Cat(data, U16(xf), U32(rk))
	}
	return Record(OpMulRK, Cat(data, U16(firstCol+len(rks)-1)))
}

// BoolErr returns a BOOLERR record; isErr selects an error code.
func BoolErr(row, col, xf int, value byte, isErr bool) []byte {
	flag := byte(0)
	if isErr {
		flag = 1
	}
	return Record(OpBoolErr, Cat(U16(row), U16(col), U16(xf), []byte{value, flag}))
}

// Blank returns a BLANK record.
func Blank(row, col, xf int) []byte {
	return Record(OpBlank, Cat(U16(row), U16(col), U16(xf)))
}

// Dimension returns a BIFF8 DIMENSION record.
func Dimension(nrows, ncols int) []byte {
	return Record(OpDimension, Cat(U32(0), U32(uint32(nrows)), U16(0), U16(ncols), U16(0)))
}

// Formula returns a FORMULA record with a numeric cached result.
func Formula(row, col, xf int, result float64, tokens []byte) []byte {
	return Record(OpFormula, Cat(U16(row), U16(col), U16(xf), F64(result), U16(0), U32(0), U16(len(tokens)), tokens))
}

// FormulaString returns a FORMULA record whose string result follows in a
// STRING record.
func FormulaString(row, col, xf int, result string, tokens []byte) []byte {
	res := []byte{0, 0, 0, 0, 0, 0, 0xFF, 0xFF}
	return Cat(
		Record(OpFormula, Cat(U16(row), U16(col), U16(xf), res, U16(0), U32(0), U16(len(tokens)), tokens)),
		Record(OpString, Str8(result)),
	)
}

// ExpTokens is the tExp token pointing at a shared or array formula anchor.
func ExpTokens(anchorRow, anchorCol int) []byte {
	return Cat([]byte{0x01}, U16(anchorRow), U16(anchorCol))
}

// ShrFmla returns a SHRFMLA record covering the given range.
func ShrFmla(firstRow, lastRow, firstCol, lastCol int, tokens []byte) []byte {
	return Record(OpShrFmla, Cat(U16(firstRow), U16(lastRow), []byte{byte(firstCol), byte(lastCol)}, U16(0), U16(len(tokens)), tokens))
}

// Array returns an ARRAY record covering the given range.
func Array(firstRow, lastRow, firstCol, lastCol int, tokens []byte) []byte {
	return Record(OpArray, Cat(U16(firstRow), U16(lastRow), []byte{byte(firstCol), byte(lastCol)}, U16(0), U32(0), U16(len(tokens)), tokens))
}

// MergedCells returns a MERGEDCELLS record; each range is
// {firstRow, lastRow, firstCol, lastCol}, inclusive.
func MergedCells(ranges ...[4]int) []byte {
	data := U16(len(ranges))
	for _, r := range ranges {
		data = Cat(data, U16(r[0]), U16(r[1]), U16(r[2]), U16(r[3]))
	}
	return Record(OpMergedCells, data)
}

// SST returns an SST record holding compressed strings.
func SST(strs ...string) []byte {
	data := Cat(U32(uint32(len(strs))), U32(uint32(len(strs))))
	for _, s := range strs {
		data = Cat(data, Str8(s))
	}
	return Record(OpSST, data)
}

// Continue returns a CONTINUE record.
func Continue(data []byte) []byte {
	return Record(OpContinue, data)
}

// RefToken returns a tRef token (reference class) for a cell.
func RefToken(row, col int, rowRel, colRel bool) []byte {
	return Cat([]byte{0x24}, U16(row), U16(colField(col, rowRel, colRel)))
}

// RefNToken returns a tRefN token with relative offsets.
func RefNToken(rowOff, colOff int) []byte {
	return Cat([]byte{0x2C}, U16(rowOff&0xFFFF), U16(colField(colOff&0xFF, true, true)))
}

// IntToken returns a tInt token.
func IntToken(v int) []byte {
	return Cat([]byte{0x1E}, U16(v))
}

// NumToken returns a tNum token.
func NumToken(v float64) []byte {
	return Cat([]byte{0x1F}, F64(v))
}

// Binary operator tokens.
var (
	TokAdd = []byte{0x03}
	TokSub = []byte{0x04}
	TokMul = []byte{0x05}
)

func colField(col int, rowRel, colRel bool) int {
	v := col & 0xFF
	if rowRel {
		v |= 0x8000
	}
	if colRel {
		v |= 0x4000
	}
	return v
}
