package xlrd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/efp"
	"github.com/xuri/excelize/v2"
)

var errorCodeFromText = func() map[string]byte {
	m := make(map[string]byte, len(ErrorTextFromCode))
	for code, text := range ErrorTextFromCode {
		m[text] = code
	}
	return m
}()

var infixOps = map[string]string{
	"+": "+", "-": "-", "*": "*", "/": "/", "^": "^", "&": "&",
	"=": "=", "<>": "<>", "<": "<", "<=": "<=", ">": ">", ">=": ">=",
	":": ":", ",": ",",
}

type textParser struct {
	toks []efp.Token
	pos  int
	src  string
}

// ParseFormulaText parses formula text such as "SUM(A1:B2)*2" into the same
// expression tree the binary decoder produces. A leading "=" is optional.
func ParseFormulaText(text string) (Expr, error) {
	if !strings.HasPrefix(text, "=") {
		text = "=" + text
	}
	ps := efp.ExcelParser()
	var toks []efp.Token
	for _, t := range ps.Parse(text) {
		if t.TType == efp.TokenTypeWhitespace || t.TType == efp.TokenTypeNoop {
			continue
		}
		toks = append(toks, t)
	}
	if len(toks) == 0 {
		return nil, NewXLRDError("empty formula %q", text)
	}
	p := &textParser{toks: toks, src: text}
	e, err := p.expr(0)
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, p.errorf("unexpected %q", p.toks[p.pos].TValue)
	}
	return e, nil
}

func (p *textParser) errorf(format string, args ...interface{}) error {
	return NewXLRDError("formula %q: %s", p.src, fmt.Sprintf(format, args...))
}

func (p *textParser) peek() *efp.Token {
	if p.pos >= len(p.toks) {
		return nil
	}
	return &p.toks[p.pos]
}

func infixOp(t *efp.Token) (string, bool) {
	if t == nil || t.TType != efp.TokenTypeOperatorInfix {
		return "", false
	}
	if t.TSubType == efp.TokenSubTypeIntersection {
		return " ", true
	}
	op, ok := infixOps[t.TValue]
	return op, ok
}

// expr parses binary operators of at least minRank, left-associatively.
func (p *textParser) expr(minRank int) (Expr, error) {
	lhs, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := infixOp(p.peek())
		if !ok || binaryRanks[op] < minRank {
			return lhs, nil
		}
		p.pos++
		rhs, err := p.expr(binaryRanks[op] + 1)
		if err != nil {
			return nil, err
		}
		lhs = &Binary{Op: op, Left: lhs, Right: rhs}
	}
}

func (p *textParser) unary() (Expr, error) {
	t := p.peek()
	if t != nil && t.TType == efp.TokenTypeOperatorPrefix {
		p.pos++
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: t.TValue, Operand: operand}, nil
	}
	e, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t == nil || t.TType != efp.TokenTypeOperatorPostfix {
			return e, nil
		}
		p.pos++
		e = &Unary{Op: "%", Operand: e}
	}
}

func (p *textParser) primary() (Expr, error) {
	t := p.peek()
	if t == nil {
		return nil, p.errorf("unexpected end of formula")
	}
	p.pos++
	switch t.TType {
	case efp.TokenTypeOperand:
		return operandExpr(t)
	case efp.TokenTypeSubexpression:
		if t.TSubType != efp.TokenSubTypeStart {
			return nil, p.errorf("unbalanced parenthesis")
		}
		inner, err := p.expr(0)
		if err != nil {
			return nil, err
		}
		if end := p.peek(); end == nil || end.TType != efp.TokenTypeSubexpression || end.TSubType != efp.TokenSubTypeStop {
			return nil, p.errorf("missing closing parenthesis")
		}
		p.pos++
		return &Paren{Inner: inner}, nil
	case efp.TokenTypeFunction:
		if t.TSubType != efp.TokenSubTypeStart {
			return nil, p.errorf("unbalanced function call")
		}
		if t.TValue == "ARRAY" {
			return p.array()
		}
		args, err := p.arguments()
		if err != nil {
			return nil, err
		}
		return &FuncCall{Name: strings.ToUpper(t.TValue), Args: args}, nil
	case efp.TokenTypeArgument:
		// an argument separator where an operand was expected: omitted argument
		p.pos--
		return &Missing{}, nil
	}
	return nil, p.errorf("unexpected %q", t.TValue)
}

func (p *textParser) isStop() bool {
	t := p.peek()
	return t != nil && t.TType == efp.TokenTypeFunction && t.TSubType == efp.TokenSubTypeStop
}

// arguments parses a comma separated list up to the function's stop token.
func (p *textParser) arguments() ([]Expr, error) {
	var args []Expr
	if p.isStop() {
		p.pos++
		return args, nil
	}
	for {
		if p.isStop() {
			args = append(args, &Missing{})
		} else {
			a, err := p.expr(0)
			if err != nil {
				return nil, err
			}
			args = append(args, a)
		}
		t := p.peek()
		switch {
		case t == nil:
			return nil, p.errorf("unterminated argument list")
		case t.TType == efp.TokenTypeArgument:
			p.pos++
		case p.isStop():
			p.pos++
			return args, nil
		default:
			return nil, p.errorf("unexpected %q in argument list", t.TValue)
		}
	}
}

// array parses {a,b;c,d}, which arrives as ARRAY(ARRAYROW(a,b),ARRAYROW(c,d)).
func (p *textParser) array() (Expr, error) {
	arr := &ArrayConst{}
	for {
		t := p.peek()
		if t == nil {
			return nil, p.errorf("unterminated array constant")
		}
		p.pos++
		switch {
		case t.TType == efp.TokenTypeFunction && t.TSubType == efp.TokenSubTypeStart:
			row, err := p.arguments()
			if err != nil {
				return nil, err
			}
			arr.Rows = append(arr.Rows, row)
		case t.TType == efp.TokenTypeArgument:
		case t.TType == efp.TokenTypeFunction && t.TSubType == efp.TokenSubTypeStop:
			return arr, nil
		default:
			return nil, p.errorf("unexpected %q in array constant", t.TValue)
		}
	}
}

func operandExpr(t *efp.Token) (Expr, error) {
	switch t.TSubType {
	case efp.TokenSubTypeNumber:
		v, err := strconv.ParseFloat(t.TValue, 64)
		if err != nil {
			return nil, NewXLRDError("bad number %q", t.TValue)
		}
		return &Literal{Value: v}, nil
	case efp.TokenSubTypeText:
		return &Literal{Value: t.TValue}, nil
	case efp.TokenSubTypeLogical:
		return &Literal{Value: strings.EqualFold(t.TValue, "TRUE")}, nil
	case efp.TokenSubTypeError:
		if code, ok := errorCodeFromText[strings.ToUpper(t.TValue)]; ok {
			return &ErrorLiteral{Code: code}, nil
		}
		return nil, NewXLRDError("unknown error literal %q", t.TValue)
	}
	return referenceExpr(t.TValue), nil
}

// referenceExpr turns "Sheet1!$A$1:B2" style text into a reference node.
// Text that is not an A1 reference is a name.
func referenceExpr(text string) Expr {
	if strings.HasSuffix(strings.ToUpper(text), "#REF!") {
		return &RefError{Sheet: strings.TrimSuffix(text[:len(text)-len("#REF!")], "!")}
	}
	sheet, ref := "", text
	if i := strings.LastIndex(text, "!"); i >= 0 {
		sheet, ref = text[:i], text[i+1:]
	}
	parts := strings.Split(ref, ":")
	switch len(parts) {
	case 1:
		if r, c, ra, ca, ok := parseA1(parts[0]); ok {
			return &CellRef{Sheet: sheet, Row: r, Col: c, RowAbs: ra, ColAbs: ca}
		}
	case 2:
		r1, c1, ra1, ca1, ok1 := parseA1(parts[0])
		r2, c2, ra2, ca2, ok2 := parseA1(parts[1])
		if ok1 && ok2 {
			return &AreaRef{
				Sheet:    sheet,
				FirstRow: r1, FirstCol: c1, FirstRowAbs: ra1, FirstColAbs: ca1,
				LastRow: r2, LastCol: c2, LastRowAbs: ra2, LastColAbs: ca2,
			}
		}
	}
	return &NameRef{Name: text}
}

// parseA1 parses a cell address with optional "$" markers into 0-based
// coordinates.
func parseA1(s string) (row, col int, rowAbs, colAbs bool, ok bool) {
	colAbs = strings.HasPrefix(s, "$")
	plain := strings.TrimPrefix(s, "$")
	i := strings.IndexAny(plain, "$0123456789")
	if i <= 0 {
		return 0, 0, false, false, false
	}
	rowAbs = plain[i] == '$'
	plain = strings.Replace(plain, "$", "", 1)
	c, r, err := excelize.CellNameToCoordinates(plain)
	if err != nil {
		return 0, 0, false, false, false
	}
	return r - 1, c - 1, rowAbs, colAbs, true
}
