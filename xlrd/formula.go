package xlrd

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Operator precedence used when rendering formula text. An operand whose
// rank is lower than its operator's rank is parenthesized.
const (
	rankCompare = 10
	rankConcat  = 20
	rankAdd     = 30
	rankMul     = 40
	rankPower   = 50
	rankPercent = 60
	rankUnary   = 70
	rankRefOp   = 80
	LEAF_RANK   = 90
	FUNC_RANK   = 90
)

// Expr is a node of a decoded formula expression tree.
type Expr interface {
	// String renders the expression in A1 notation, without a leading "=".
	String() string
	// Rank is the precedence of the node's outermost operator.
	Rank() int
}

// Literal is a number, string or boolean constant.
type Literal struct {
	Value interface{}
}

func (l *Literal) Rank() int { return LEAF_RANK }

func (l *Literal) String() string {
	switch v := l.Value.(type) {
	case string:
		return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		return Num2Str(v)
	default:
		return fmt.Sprint(v)
	}
}

// ErrorLiteral is an error constant such as #DIV/0!.
type ErrorLiteral struct {
	Code byte
}

func (e *ErrorLiteral) Rank() int { return LEAF_RANK }

func (e *ErrorLiteral) String() string {
	if s, ok := ErrorTextFromCode[e.Code]; ok {
		return s
	}
	return fmt.Sprintf("#ERR%d!", e.Code)
}

// Missing is an omitted function argument.
type Missing struct{}

func (m *Missing) Rank() int      { return LEAF_RANK }
func (m *Missing) String() string { return "" }

// CellRef is a reference to a single cell, optionally on other sheets.
type CellRef struct {
	Sheet  string // rendered sheet prefix, empty for the formula's own sheet
	Row    int
	Col    int
	RowAbs bool
	ColAbs bool
}

func (c *CellRef) Rank() int { return LEAF_RANK }

func (c *CellRef) String() string {
	return sheetPrefix(c.Sheet) + cellText(c.Row, c.Col, c.RowAbs, c.ColAbs)
}

// AreaRef is a reference to a rectangular block of cells. Bounds are inclusive.
type AreaRef struct {
	Sheet                   string
	FirstRow, LastRow       int
	FirstCol, LastCol       int
	FirstRowAbs, LastRowAbs bool
	FirstColAbs, LastColAbs bool
}

func (a *AreaRef) Rank() int { return LEAF_RANK }

func (a *AreaRef) String() string {
	return sheetPrefix(a.Sheet) +
		cellText(a.FirstRow, a.FirstCol, a.FirstRowAbs, a.FirstColAbs) + ":" +
		cellText(a.LastRow, a.LastCol, a.LastRowAbs, a.LastColAbs)
}

// RefError is a reference that has been invalidated (#REF!).
type RefError struct {
	Sheet string
}

func (r *RefError) Rank() int      { return LEAF_RANK }
func (r *RefError) String() string { return sheetPrefix(r.Sheet) + "#REF!" }

// NameRef is a reference to a defined name or an external name.
type NameRef struct {
	Name string
}

func (n *NameRef) Rank() int      { return LEAF_RANK }
func (n *NameRef) String() string { return n.Name }

// Unary is a prefix +/- or the postfix percent operator.
type Unary struct {
	Op      string
	Operand Expr
}

func (u *Unary) Rank() int {
	if u.Op == "%" {
		return rankPercent
	}
	return rankUnary
}

func (u *Unary) String() string {
	s := wrap(u.Operand, u.Rank())
	if u.Op == "%" {
		return s + "%"
	}
	return u.Op + s
}

// Binary is an infix operator, including the reference operators
// range (":"), union (",") and intersection (" ").
type Binary struct {
	Op          string
	Left, Right Expr
}

var binaryRanks = map[string]int{
	"=": rankCompare, "<>": rankCompare, "<": rankCompare, "<=": rankCompare, ">": rankCompare, ">=": rankCompare,
	"&": rankConcat,
	"+": rankAdd, "-": rankAdd,
	"*": rankMul, "/": rankMul,
	"^": rankPower,
	":": rankRefOp, ",": rankRefOp, " ": rankRefOp,
}

func (b *Binary) Rank() int { return binaryRanks[b.Op] }

func (b *Binary) String() string {
	r := b.Rank()
	right := r
	switch b.Op {
	case "+", "*", "&", ",", " ":
	default:
		// operators evaluate left to right, so an equal-rank right operand
		// of a non-associative operator needs its own parentheses
		right = r + 1
	}
	return wrap(b.Left, r) + b.Op + wrap(b.Right, right)
}

// Paren is an explicit pair of parentheses.
type Paren struct {
	Inner Expr
}

func (p *Paren) Rank() int      { return LEAF_RANK }
func (p *Paren) String() string { return "(" + p.Inner.String() + ")" }

// FuncCall is a call of a built-in or user-defined function.
type FuncCall struct {
	Name string
	Args []Expr
}

func (f *FuncCall) Rank() int { return FUNC_RANK }

func (f *FuncCall) String() string {
	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		args[i] = a.String()
	}
	return f.Name + "(" + strings.Join(args, ",") + ")"
}

// ArrayConst is an array constant such as {1,2;3,4}.
type ArrayConst struct {
	Rows [][]Expr
}

func (a *ArrayConst) Rank() int { return LEAF_RANK }

func (a *ArrayConst) String() string {
	rows := make([]string, len(a.Rows))
	for i, row := range a.Rows {
		items := make([]string, len(row))
		for j, it := range row {
			items[j] = it.String()
		}
		rows[i] = strings.Join(items, ",")
	}
	return "{" + strings.Join(rows, ";") + "}"
}

func wrap(e Expr, rank int) string {
	if e.Rank() < rank {
		return "(" + e.String() + ")"
	}
	return e.String()
}

func sheetPrefix(sheet string) string {
	if sheet == "" {
		return ""
	}
	return sheet + "!"
}

func cellText(row, col int, rowAbs, colAbs bool) string {
	var sb strings.Builder
	if colAbs {
		sb.WriteByte('$')
	}
	sb.WriteString(Colname(col))
	if rowAbs {
		sb.WriteByte('$')
	}
	sb.WriteString(strconv.Itoa(row + 1))
	return sb.String()
}

// Num2Str renders a number the way formula text shows it.
func Num2Str(num float64) string {
	if num == math.Trunc(num) && math.Abs(num) < 1e15 {
		return strconv.FormatFloat(num, 'f', -1, 64)
	}
	return strconv.FormatFloat(num, 'g', -1, 64)
}

// Colname returns the column name for a given column index (0-based).
// Example: Colname(0) returns "A", Colname(25) returns "Z", Colname(26) returns "AA"
func Colname(colx int) string {
	if colx < 0 {
		return ""
	}
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	name := ""
	for {
		name = string(alphabet[colx%26]) + name
		colx = colx/26 - 1
		if colx < 0 {
			break
		}
	}
	return name
}

// CellName returns the cell name for a given row and column (0-based).
// Example: CellName(0, 0) returns "A1", CellName(5, 7) returns "H6"
func CellName(rowx, colx int) string {
	return cellText(rowx, colx, false, false)
}

// CellNameAbs returns the absolute cell name.
// Example: CellNameAbs(5, 7, false) returns "$H$6"
// If r1c1 is true, returns R1C1 style: "R6C8"
func CellNameAbs(rowx, colx int, r1c1 bool) string {
	if r1c1 {
		return fmt.Sprintf("R%dC%d", rowx+1, colx+1)
	}
	return cellText(rowx, colx, true, true)
}

// RangeName2D returns a 2D range name from half-open bounds.
// Example: RangeName2D(5, 20, 7, 10, false) returns "$H$6:$J$20"
func RangeName2D(rlo, rhi, clo, chi int, r1c1 bool) string {
	if r1c1 {
		return fmt.Sprintf("R%dC%d:R%dC%d", rlo+1, clo+1, rhi, chi)
	}
	if rhi == rlo+1 && chi == clo+1 {
		return CellNameAbs(rlo, clo, r1c1)
	}
	return CellNameAbs(rlo, clo, r1c1) + ":" + CellNameAbs(rhi-1, chi-1, r1c1)
}

// QuotedSheetName returns a sheet name quoted for use in a reference when it
// contains anything other than letters, digits, underscores and dots.
// Negative indexes describe references that do not resolve to a local sheet.
func QuotedSheetName(shnames []string, shx int) string {
	var shname string
	switch {
	case shx >= 0 && shx < len(shnames):
		shname = shnames[shx]
	case shx == -1:
		shname = "?internal; any sheet?"
	case shx == -2:
		shname = "internal; deleted sheet"
	case shx == -3:
		shname = "internal; macro sheet"
	case shx == -4:
		shname = "<<external>>"
	default:
		shname = fmt.Sprintf("?error %d?", shx)
	}
	plain := shname != ""
	for i, r := range shname {
		isWord := r == '_' || r == '.' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r > 0x7f
		if !isWord || (i == 0 && r >= '0' && r <= '9') {
			plain = false
			break
		}
	}
	if plain {
		return shname
	}
	return "'" + strings.ReplaceAll(shname, "'", "''") + "'"
}

// Formula token opcodes (base values, class bits cleared).
const (
	tExp       = 0x01
	tTbl       = 0x02
	tAdd       = 0x03
	tSub       = 0x04
	tMul       = 0x05
	tDiv       = 0x06
	tPower     = 0x07
	tConcat    = 0x08
	tLT        = 0x09
	tLE        = 0x0A
	tEQ        = 0x0B
	tGE        = 0x0C
	tGT        = 0x0D
	tNE        = 0x0E
	tIsect     = 0x0F
	tList      = 0x10
	tRange     = 0x11
	tUplus     = 0x12
	tUminus    = 0x13
	tPercent   = 0x14
	tParen     = 0x15
	tMissArg   = 0x16
	tStr       = 0x17
	tExtended  = 0x18
	tAttr      = 0x19
	tErr       = 0x1C
	tBool      = 0x1D
	tInt       = 0x1E
	tNum       = 0x1F
	tArray     = 0x20
	tFunc      = 0x21
	tFuncVar   = 0x22
	tName      = 0x23
	tRef       = 0x24
	tArea      = 0x25
	tMemArea   = 0x26
	tMemErr    = 0x27
	tMemNoMem  = 0x28
	tMemFunc   = 0x29
	tRefErr    = 0x2A
	tAreaErr   = 0x2B
	tRefN      = 0x2C
	tAreaN     = 0x2D
	tMemAreaN  = 0x2E
	tMemNoMemN = 0x2F
	tNameX     = 0x39
	tRef3d     = 0x3A
	tArea3d    = 0x3B
	tRefErr3d  = 0x3C
	tAreaErr3d = 0x3D
)

var binopSymbols = map[int]string{
	tAdd: "+", tSub: "-", tMul: "*", tDiv: "/", tPower: "^", tConcat: "&",
	tLT: "<", tLE: "<=", tEQ: "=", tGE: ">=", tGT: ">", tNE: "<>",
	tIsect: " ", tList: ",", tRange: ":",
}

// Token sizes for BIFF8, indexed by opcode with the class folded in.
// -1 marks a variable size and -2 a token that cannot occur.
var sztab8 = []int{
	-2, 5, 5, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 1, 1, 1, -1, -1, -1, -2, -2, 2, 2, 3, 9,
	8, 3, 4, 5, 5, 9, 7, 7, 7, 3, 5, 9, 5, 9, 3, 3,
	-2, -2, -2, -2, -2, -2, -2, -2, -2, 7, 7, 11, 7, 11, -2, -2,
}

var tokenNames = []string{
	"Unk00", "Exp", "Tbl", "Add", "Sub", "Mul", "Div", "Power", "Concat", "LT", "LE", "EQ", "GE", "GT", "NE",
	"Isect", "List", "Range", "Uplus", "Uminus", "Percent", "Paren", "MissArg", "Str", "Extended", "Attr",
	"Sheet", "EndSheet", "Err", "Bool", "Int", "Num", "Array", "Func", "FuncVar", "Name", "Ref", "Area",
	"MemArea", "MemErr", "MemNoMem", "MemFunc", "RefErr", "AreaErr", "RefN", "AreaN", "MemAreaN", "MemNoMemN",
	"", "", "", "", "", "", "", "", "FuncCE", "NameX", "Ref3d", "Area3d", "RefErr3d", "AreaErr3d", "", "",
}

// FormulaContext carries the position of the cell a formula belongs to.
// Relative tokens (tRefN, tAreaN) are offsets from this position.
type FormulaContext struct {
	Row int
	Col int
}

type formulaDecoder struct {
	book   *Book
	tokens []byte
	extra  []byte
	xpos   int
	ctx    FormulaContext
	stack  []Expr
}

func (d *formulaDecoder) unsupported(op, pos int, format string, args ...interface{}) error {
	return &UnsupportedTokenError{Token: op, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

func (d *formulaDecoder) push(e Expr) {
	d.stack = append(d.stack, e)
}

func (d *formulaDecoder) pop(n int) ([]Expr, bool) {
	if len(d.stack) < n {
		return nil, false
	}
	out := make([]Expr, n)
	copy(out, d.stack[len(d.stack)-n:])
	d.stack = d.stack[:len(d.stack)-n]
	return out, true
}

func (d *formulaDecoder) need(pos, n int) bool {
	return pos+n <= len(d.tokens)
}

func (d *formulaDecoder) u16(pos int) int {
	return int(binary.LittleEndian.Uint16(d.tokens[pos:]))
}

// DecodeFormula runs the BIFF8 token stack machine over tokens and returns the
// expression tree. extra holds the data that follows the token bytes in the
// record (array constants, tMemArea rectangles). book may be nil, in which
// case names and 3-D references render as placeholders.
func DecodeFormula(book *Book, tokens, extra []byte, ctx FormulaContext) (Expr, error) {
	if book != nil && book.BiffVersion != 0 && book.BiffVersion < 80 {
		return nil, &UnsupportedTokenError{Token: -1, Message: fmt.Sprintf("formulas in BIFF %s are not decoded", BiffTextFromNum(book.BiffVersion))}
	}
	if len(tokens) == 0 {
		return nil, &UnsupportedTokenError{Token: -1, Message: "empty formula"}
	}
	d := &formulaDecoder{book: book, tokens: tokens, extra: extra, ctx: ctx}
	pos := 0
	for pos < len(tokens) {
		op := int(tokens[pos])
		opcode := op & 0x1f
		optype := (op & 0x60) >> 5
		opx := opcode
		if optype != 0 {
			opx = opcode + 32
		}
		sz := sztab8[opx]
		if sz == -2 {
			return nil, d.unsupported(op, pos, "token %s is not valid in BIFF8", tokenNames[opx])
		}
		if sz > 0 && !d.need(pos, sz) {
			return nil, d.unsupported(op, pos, "token %s is truncated", tokenNames[opx])
		}
		next, err := d.step(op, opx, pos, sz)
		if err != nil {
			return nil, err
		}
		pos = next
	}
	if len(d.stack) != 1 {
		return nil, &UnsupportedTokenError{Token: -1, Pos: pos, Message: fmt.Sprintf("formula leaves %d operands on the stack", len(d.stack))}
	}
	return d.stack[0], nil
}

func (d *formulaDecoder) step(op, opx, pos, sz int) (int, error) {
	data := d.tokens
	switch {
	case opx == tExp || opx == tTbl:
		return 0, d.unsupported(op, pos, "token %s must be resolved by the cell", tokenNames[opx])

	case opx >= tAdd && opx <= tRange:
		args, ok := d.pop(2)
		if !ok {
			return 0, d.unsupported(op, pos, "stack underflow")
		}
		d.push(&Binary{Op: binopSymbols[opx], Left: args[0], Right: args[1]})

	case opx == tUplus || opx == tUminus || opx == tPercent:
		args, ok := d.pop(1)
		if !ok {
			return 0, d.unsupported(op, pos, "stack underflow")
		}
		d.push(&Unary{Op: [...]string{"+", "-", "%"}[opx-tUplus], Operand: args[0]})

	case opx == tParen:
		args, ok := d.pop(1)
		if !ok {
			return 0, d.unsupported(op, pos, "stack underflow")
		}
		d.push(&Paren{Inner: args[0]})

	case opx == tMissArg:
		d.push(&Missing{})

	case opx == tStr:
		s, next, err := UnpackUnicodeUpdatePos(data, pos+1, 1, -1)
		if err != nil {
			return 0, d.unsupported(op, pos, "bad string constant: %v", err)
		}
		d.push(&Literal{Value: s})
		return next, nil

	case opx == tExtended:
		return 0, d.unsupported(op, pos, "extended tokens are not supported")

	case opx == tAttr:
		if !d.need(pos, 4) {
			return 0, d.unsupported(op, pos, "token Attr is truncated")
		}
		subop, nc := int(data[pos+1]), d.u16(pos+2)
		sz = 4
		switch {
		case subop&0x04 != 0: // choose: skip the jump table
			sz = 2*(nc+1) + 4
		case subop&0x10 != 0: // sum of the single operand on the stack
			args, ok := d.pop(1)
			if !ok {
				return 0, d.unsupported(op, pos, "stack underflow")
			}
			d.push(&FuncCall{Name: "SUM", Args: args})
		}
		// volatile, if, skip and space attributes have no stack effect
		return pos + sz, nil

	case opx == tErr:
		d.push(&ErrorLiteral{Code: data[pos+1]})

	case opx == tBool:
		d.push(&Literal{Value: data[pos+1] != 0})

	case opx == tInt:
		d.push(&Literal{Value: float64(d.u16(pos + 1))})

	case opx == tNum:
		d.push(&Literal{Value: math.Float64frombits(binary.LittleEndian.Uint64(data[pos+1:]))})

	case opx == tArray:
		arr, err := d.arrayConstant(op, pos)
		if err != nil {
			return 0, err
		}
		d.push(arr)

	case opx == tFunc:
		funcx := d.u16(pos + 1)
		def, ok := LookupFunc(funcx)
		if !ok {
			return 0, d.unsupported(op, pos, "unknown function index %d", funcx)
		}
		args, ok := d.pop(def.MinArgs)
		if !ok {
			return 0, d.unsupported(op, pos, "stack underflow calling %s", def.Name)
		}
		d.push(&FuncCall{Name: def.Name, Args: args})

	case opx == tFuncVar:
		nargs := int(data[pos+1]) & 0x7f
		funcx := d.u16(pos+2) & 0x7fff
		args, ok := d.pop(nargs)
		if !ok {
			return 0, d.unsupported(op, pos, "stack underflow in variable-argument call")
		}
		if funcx == funcUserDefined {
			if len(args) == 0 {
				return 0, d.unsupported(op, pos, "user-defined function call without a name")
			}
			d.push(&FuncCall{Name: args[0].String(), Args: args[1:]})
			break
		}
		name := fmt.Sprintf("FUNC_%d", funcx)
		if def, ok := LookupFunc(funcx); ok {
			name = def.Name
		}
		d.push(&FuncCall{Name: name, Args: args})

	case opx == tName:
		d.push(&NameRef{Name: d.book.nameText(d.u16(pos + 1))})

	case opx == tRef:
		d.push(d.cellRef("", d.u16(pos+1), d.u16(pos+3), false))

	case opx == tArea:
		d.push(d.areaRef("", d.u16(pos+1), d.u16(pos+3), d.u16(pos+5), d.u16(pos+7), false))

	case opx == tRefN:
		d.push(d.cellRef("", d.u16(pos+1), d.u16(pos+3), true))

	case opx == tAreaN:
		d.push(d.areaRef("", d.u16(pos+1), d.u16(pos+3), d.u16(pos+5), d.u16(pos+7), true))

	case opx == tMemArea:
		// the rectangles of a tMemArea live in the extra data
		if d.xpos+2 > len(d.extra) {
			return 0, d.unsupported(op, pos, "missing tMemArea data")
		}
		n := int(binary.LittleEndian.Uint16(d.extra[d.xpos:]))
		d.xpos += 2 + 8*n

	case opx == tMemErr || opx == tMemNoMem || opx == tMemFunc || opx == tMemAreaN || opx == tMemNoMemN:
		// the subexpression that follows is evaluated normally

	case opx == tRefErr || opx == tAreaErr:
		d.push(&RefError{})

	case opx == tNameX:
		d.push(&NameRef{Name: d.book.externNameText(d.u16(pos+1), d.u16(pos+3))})

	case opx == tRef3d:
		d.push(d.cellRef(d.book.sheetRangeText(d.u16(pos+1)), d.u16(pos+3), d.u16(pos+5), false))

	case opx == tArea3d:
		d.push(d.areaRef(d.book.sheetRangeText(d.u16(pos+1)), d.u16(pos+3), d.u16(pos+5), d.u16(pos+7), d.u16(pos+9), false))

	case opx == tRefErr3d || opx == tAreaErr3d:
		d.push(&RefError{Sheet: d.book.sheetRangeText(d.u16(pos + 1))})

	default:
		return 0, d.unsupported(op, pos, "unhandled token %s", tokenNames[opx])
	}
	return pos + sz, nil
}

// cellAddr decodes a BIFF8 row/column pair. Bit 15 of colval marks a relative
// row and bit 14 a relative column. When offsets is set, relative parts are
// signed offsets from the context cell.
func (d *formulaDecoder) cellAddr(rowval, colval int, offsets bool) (row, col int, rowAbs, colAbs bool) {
	rowRel := colval&0x8000 != 0
	colRel := colval&0x4000 != 0
	row, col = rowval, colval&0xff
	if offsets {
		if rowRel {
			if row >= 32768 {
				row -= 65536
			}
			row = (d.ctx.Row + row) & 0xffff
		}
		if colRel {
			if col >= 128 {
				col -= 256
			}
			col = (d.ctx.Col + col) & 0xff
		}
	}
	return row, col, !rowRel, !colRel
}

func (d *formulaDecoder) cellRef(sheet string, rowval, colval int, offsets bool) *CellRef {
	r, c, ra, ca := d.cellAddr(rowval, colval, offsets)
	return &CellRef{Sheet: sheet, Row: r, Col: c, RowAbs: ra, ColAbs: ca}
}

func (d *formulaDecoder) areaRef(sheet string, r1, r2, c1, c2 int, offsets bool) *AreaRef {
	fr, fc, fra, fca := d.cellAddr(r1, c1, offsets)
	lr, lc, lra, lca := d.cellAddr(r2, c2, offsets)
	return &AreaRef{
		Sheet:    sheet,
		FirstRow: fr, FirstCol: fc, FirstRowAbs: fra, FirstColAbs: fca,
		LastRow: lr, LastCol: lc, LastRowAbs: lra, LastColAbs: lca,
	}
}

// arrayConstant reads the values of a tArray token from the extra data.
func (d *formulaDecoder) arrayConstant(op, pos int) (*ArrayConst, error) {
	x := d.extra
	p := d.xpos
	if p+3 > len(x) {
		return nil, d.unsupported(op, pos, "missing array constant data")
	}
	ncols := int(x[p]) + 1
	nrows := int(binary.LittleEndian.Uint16(x[p+1:])) + 1
	p += 3
	arr := &ArrayConst{Rows: make([][]Expr, nrows)}
	for r := 0; r < nrows; r++ {
		row := make([]Expr, ncols)
		for c := 0; c < ncols; c++ {
			if p >= len(x) {
				return nil, d.unsupported(op, pos, "array constant is truncated")
			}
			kind := x[p]
			p++
			switch kind {
			case 0x00:
				row[c] = &Missing{}
				p += 8
			case 0x01:
				if p+8 > len(x) {
					return nil, d.unsupported(op, pos, "array constant is truncated")
				}
				row[c] = &Literal{Value: math.Float64frombits(binary.LittleEndian.Uint64(x[p:]))}
				p += 8
			case 0x02:
				s, next, err := UnpackUnicodeUpdatePos(x, p, 2, -1)
				if err != nil {
					return nil, d.unsupported(op, pos, "bad array string: %v", err)
				}
				row[c] = &Literal{Value: s}
				p = next
			case 0x04:
				if p+8 > len(x) {
					return nil, d.unsupported(op, pos, "array constant is truncated")
				}
				row[c] = &Literal{Value: x[p] != 0}
				p += 8
			case 0x10:
				if p+8 > len(x) {
					return nil, d.unsupported(op, pos, "array constant is truncated")
				}
				row[c] = &ErrorLiteral{Code: x[p]}
				p += 8
			default:
				return nil, d.unsupported(op, pos, "unknown array item type 0x%02x", kind)
			}
		}
		arr.Rows[r] = row
	}
	d.xpos = p
	return arr, nil
}
