package xlrd

import (
	"encoding/binary"
	"strings"

	"github.com/xuri/nfp"
	"go.uber.org/zap"
)

// Font represents font information.
type Font struct {
	// FontIndex is the position of the FONT record. Index 4 is never used,
	// so the fifth FONT record has index 5.
	FontIndex int

	// Name is the font name.
	Name string

	// Bold indicates if the font is bold.
	Bold bool

	// Italic indicates if the font is italic.
	Italic bool

	// StruckOut indicates if the font is struck out.
	StruckOut bool

	// Underline indicates the underline style.
	Underline int

	// Escapement: 0 = none, 1 = superscript, 2 = subscript.
	Escapement int

	// ColourIndex is the colour index.
	ColourIndex int

	// Height is the font height in twips (1/20 of a point).
	Height int

	// Weight is the font weight (400 normal, 700 bold).
	Weight int

	// Family is the font family.
	Family int

	// CharacterSet is the character set.
	CharacterSet int
}

// Format represents number format information.
type Format struct {
	// FormatKey is the key into Book.FormatMap.
	FormatKey int

	// Type is the format type (FUN, FDT, FNU, FGE, FTX).
	Type int

	// FormatString is the format string.
	FormatString string
}

// XF represents extended format information.
type XF struct {
	// XFIndex is the position of the XF record in the globals substream.
	XFIndex int

	// IsStyle is true for style XFs, false for cell XFs.
	IsStyle bool

	// FontIndex is the index into the font list.
	FontIndex int

	// FormatKey is the key into Book.FormatMap.
	FormatKey int

	// ParentStyleIndex is the index of the parent style XF (cell XFs only).
	ParentStyleIndex int

	Alignment  XFAlignment
	Border     XFBorder
	Background XFBackground
	Protection XFProtection
}

// XFAlignment represents alignment information.
type XFAlignment struct {
	Horizontal  int
	Vertical    int
	Rotation    int
	IndentLevel int
	ShrinkToFit bool
	WrapText    bool
}

// XFBorder represents border information.
type XFBorder struct {
	Left   int
	Right  int
	Top    int
	Bottom int

	LeftColourIndex   int
	RightColourIndex  int
	TopColourIndex    int
	BottomColourIndex int
}

// XFBackground represents background information.
type XFBackground struct {
	FillPattern           int
	PatternColourIndex    int
	BackgroundColourIndex int
}

// XFProtection represents protection information.
type XFProtection struct {
	CellLocked    bool
	FormulaHidden bool
}

// StdFormatStrings holds the format strings of the well-known built-in
// number formats. Other built-in keys have a type but no fixed string.
var StdFormatStrings = map[int]string{
	0x00: "General",
	0x01: "0",
	0x02: "0.00",
	0x03: "#,##0",
	0x04: "#,##0.00",
	0x05: "$#,##0_);($#,##0)",
	0x06: "$#,##0_);[Red]($#,##0)",
	0x07: "$#,##0.00_);($#,##0.00)",
	0x08: "$#,##0.00_);[Red]($#,##0.00)",
	0x09: "0%",
	0x0a: "0.00%",
	0x0b: "0.00E+00",
	0x0c: "# ?/?",
	0x0d: "# ??/??",
	0x0e: "m/d/yy",
	0x0f: "d-mmm-yy",
	0x10: "d-mmm",
	0x11: "mmm-yy",
	0x12: "h:mm AM/PM",
	0x13: "h:mm:ss AM/PM",
	0x14: "h:mm",
	0x15: "h:mm:ss",
	0x16: "m/d/yy h:mm",
	0x25: "#,##0_);(#,##0)",
	0x26: "#,##0_);[Red](#,##0)",
	0x27: "#,##0.00_);(#,##0.00)",
	0x28: "#,##0.00_);[Red](#,##0.00)",
	0x29: `_(* #,##0_);_(* (#,##0);_(* "-"_);_(@_)`,
	0x2a: `_($* #,##0_);_($* (#,##0);_($* "-"_);_(@_)`,
	0x2b: `_(* #,##0.00_);_(* (#,##0.00);_(* "-"??_);_(@_)`,
	0x2c: `_($* #,##0.00_);_($* (#,##0.00);_($* "-"??_);_(@_)`,
	0x2d: "mm:ss",
	0x2e: "[h]:mm:ss",
	0x2f: "mm:ss.0",
	0x30: "##0.0E+0",
	0x31: "@",
}

var stdFormatCodeTypes = func() map[int]int {
	m := map[int]int{0: FGE, 49: FTX}
	ranges := []struct{ lo, hi, ty int }{
		{1, 13, FNU},
		{14, 22, FDT},
		{27, 36, FDT}, // CJK date formats
		{37, 44, FNU},
		{45, 47, FDT},
		{48, 48, FNU},
		{50, 58, FDT}, // CJK date formats
		{59, 62, FNU}, // Thai number (currency?) formats
		{67, 70, FNU}, // Thai number (currency?) formats
		{71, 81, FDT}, // Thai date formats
	}
	for _, r := range ranges {
		for k := r.lo; k <= r.hi; k++ {
			m[k] = r.ty
		}
	}
	return m
}()

// BuiltinFormat returns the default Format for a built-in key, or nil.
func BuiltinFormat(key int) *Format {
	ty, ok := stdFormatCodeTypes[key]
	if !ok {
		return nil
	}
	return &Format{FormatKey: key, Type: ty, FormatString: StdFormatStrings[key]}
}

// IsDateFormatString reports whether a number format renders dates or times.
// Only the first section counts; a section with both date parts and digit
// placeholders is treated as a number format.
func IsDateFormatString(format string) bool {
	switch strings.ToLower(format) {
	case "", "general", "@":
		return false
	}
	p := nfp.NumberFormatParser()
	sections := p.Parse(format)
	if len(sections) == 0 {
		return false
	}
	date, digits := false, false
	for _, tok := range sections[0].Items {
		switch tok.TType {
		case nfp.TokenTypeDateTimes, nfp.TokenTypeElapsedDateTimes:
			date = true
		case nfp.TokenTypeZeroPlaceHolder, nfp.TokenTypeHashPlaceHolder, nfp.TokenTypeDigitalPlaceHolder:
			digits = true
		}
	}
	return date && !digits
}

func classifyFormat(format string) int {
	switch strings.ToLower(format) {
	case "general":
		return FGE
	case "@":
		return FTX
	}
	if IsDateFormatString(format) {
		return FDT
	}
	return FNU
}

// initializeFormatInfo seeds the built-in formats and the default palette.
func (b *Book) initializeFormatInfo() {
	b.FormatMap = make(map[int]*Format, len(stdFormatCodeTypes))
	for key := range stdFormatCodeTypes {
		b.FormatMap[key] = BuiltinFormat(key)
	}
	b.FormatList = nil
	b.XFList = nil
	b.FontList = nil
	b.StyleNameMap = make(map[string][2]int)
	b.ColourMap = make(map[int][3]int, len(defaultPalette)+8)
	for i, rgb := range defaultPalette[:8] {
		b.ColourMap[i] = rgb
	}
	for i, rgb := range defaultPalette {
		b.ColourMap[i+8] = rgb
	}
}

func (b *Book) unpackText(data []byte, pos, lenlen int) (string, int, error) {
	if b.BiffVersion >= BIFF_FIRST_UNICODE {
		return UnpackUnicodeUpdatePos(data, pos, lenlen, -1)
	}
	return UnpackStringUpdatePos(data, pos, b.encoding, lenlen, -1)
}

func (b *Book) handleFont(rec *Record) error {
	data := rec.Data
	if len(data) < 14 {
		return &MalformedRecordError{Offset: rec.Offset, Code: rec.Code, Message: "FONT record too short"}
	}
	f := &Font{FontIndex: len(b.FontList)}
	if f.FontIndex >= 4 {
		f.FontIndex++
	}
	f.Height = int(binary.LittleEndian.Uint16(data[0:]))
	options := binary.LittleEndian.Uint16(data[2:])
	f.Italic = options&0x02 != 0
	f.StruckOut = options&0x08 != 0
	f.ColourIndex = int(binary.LittleEndian.Uint16(data[4:]))
	f.Weight = int(binary.LittleEndian.Uint16(data[6:]))
	f.Bold = f.Weight >= 700
	f.Escapement = int(binary.LittleEndian.Uint16(data[8:]))
	f.Underline = int(data[10])
	f.Family = int(data[11])
	f.CharacterSet = int(data[12])
	name, _, err := b.unpackText(data, 14, 1)
	if err != nil {
		b.logger.Warn("bad font name", zap.Int("font", f.FontIndex), zap.Error(err))
	}
	f.Name = name
	b.FontList = append(b.FontList, f)
	return nil
}

func (b *Book) handleFormat(rec *Record) error {
	data := rec.Data
	if len(data) < 3 {
		return &MalformedRecordError{Offset: rec.Offset, Code: rec.Code, Message: "FORMAT record too short"}
	}
	key := int(binary.LittleEndian.Uint16(data[0:2]))
	lenlen := 1
	if b.BiffVersion >= BIFF_FIRST_UNICODE {
		lenlen = 2
	}
	s, _, err := b.unpackText(data, 2, lenlen)
	if err != nil {
		return &MalformedRecordError{Offset: rec.Offset, Code: rec.Code, Message: err.Error()}
	}
	f := &Format{FormatKey: key, Type: classifyFormat(s), FormatString: s}
	if std, ok := stdFormatCodeTypes[key]; ok && std != f.Type && std != FGE {
		b.logger.Debug("format type differs from built-in",
			zap.Int("key", key), zap.String("format", s), zap.Int("builtin", std), zap.Int("derived", f.Type))
	}
	b.FormatMap[key] = f
	b.FormatList = append(b.FormatList, f)
	return nil
}

func (b *Book) handleXF(rec *Record) error {
	data := rec.Data
	if len(data) < 16 {
		return &MalformedRecordError{Offset: rec.Offset, Code: rec.Code, Message: "XF record too short"}
	}
	xf := &XF{XFIndex: len(b.XFList)}
	xf.FontIndex = int(binary.LittleEndian.Uint16(data[0:]))
	xf.FormatKey = int(binary.LittleEndian.Uint16(data[2:]))
	prot := binary.LittleEndian.Uint16(data[4:])
	xf.Protection.CellLocked = prot&0x01 != 0
	xf.Protection.FormulaHidden = prot&0x02 != 0
	xf.IsStyle = prot&0x04 != 0
	xf.ParentStyleIndex = int(prot >> 4)
	align := data[6]
	xf.Alignment.Horizontal = int(align & 0x07)
	xf.Alignment.WrapText = align&0x08 != 0
	xf.Alignment.Vertical = int(align>>4) & 0x07

	if b.BiffVersion >= 80 && len(data) >= 20 {
		xf.Alignment.Rotation = int(data[7])
		xf.Alignment.IndentLevel = int(data[8] & 0x0f)
		xf.Alignment.ShrinkToFit = data[8]&0x10 != 0
		b1 := binary.LittleEndian.Uint32(data[10:])
		b2 := binary.LittleEndian.Uint32(data[14:])
		bg := binary.LittleEndian.Uint16(data[18:])
		xf.Border.Left = int(b1 & 0x0f)
		xf.Border.Right = int(b1>>4) & 0x0f
		xf.Border.Top = int(b1>>8) & 0x0f
		xf.Border.Bottom = int(b1>>12) & 0x0f
		xf.Border.LeftColourIndex = int(b1>>16) & 0x7f
		xf.Border.RightColourIndex = int(b1>>23) & 0x7f
		xf.Border.TopColourIndex = int(b2 & 0x7f)
		xf.Border.BottomColourIndex = int(b2>>7) & 0x7f
		xf.Background.FillPattern = int(b2>>26) & 0x3f
		xf.Background.PatternColourIndex = int(bg & 0x7f)
		xf.Background.BackgroundColourIndex = int(bg>>7) & 0x7f
	} else {
		b1 := binary.LittleEndian.Uint32(data[8:])
		b2 := binary.LittleEndian.Uint32(data[12:])
		xf.Background.PatternColourIndex = int(b1 & 0x7f)
		xf.Background.BackgroundColourIndex = int(b1>>7) & 0x7f
		xf.Background.FillPattern = int(b1>>16) & 0x3f
		xf.Border.Bottom = int(b1>>22) & 0x07
		xf.Border.BottomColourIndex = int(b1>>25) & 0x7f
		xf.Border.Top = int(b2 & 0x07)
		xf.Border.Left = int(b2>>3) & 0x07
		xf.Border.Right = int(b2>>6) & 0x07
		xf.Border.TopColourIndex = int(b2>>9) & 0x7f
		xf.Border.LeftColourIndex = int(b2>>16) & 0x7f
		xf.Border.RightColourIndex = int(b2>>23) & 0x7f
	}
	b.XFList = append(b.XFList, xf)
	return nil
}

var builtInStyleNames = []string{
	"Normal",
	"RowLevel_",
	"ColLevel_",
	"Comma",
	"Currency",
	"Percent",
	"Comma [0]",
	"Currency [0]",
	"Hyperlink",
	"Followed Hyperlink",
}

func (b *Book) handleStyle(rec *Record) error {
	data := rec.Data
	if len(data) < 4 {
		return nil
	}
	flagAndXFX := binary.LittleEndian.Uint16(data[0:])
	xfx := int(flagAndXFX & 0x0fff)
	if flagAndXFX&0x8000 != 0 {
		id, level := int(data[2]), int(data[3])
		name := "Unknown"
		if id < len(builtInStyleNames) {
			name = builtInStyleNames[id]
		}
		if id == 1 || id == 2 {
			name += string(rune('1' + level))
		}
		b.StyleNameMap[name] = [2]int{1, xfx}
		return nil
	}
	lenlen := 1
	if b.BiffVersion >= BIFF_FIRST_UNICODE {
		lenlen = 2
	}
	name, _, err := b.unpackText(data, 2, lenlen)
	if err != nil {
		b.logger.Warn("bad user-defined style name", zap.Int("xf", xfx), zap.Error(err))
		return nil
	}
	b.StyleNameMap[name] = [2]int{0, xfx}
	return nil
}

func (b *Book) handlePalette(rec *Record) error {
	data := rec.Data
	if len(data) < 2 {
		return nil
	}
	n := int(binary.LittleEndian.Uint16(data))
	if 2+4*n > len(data) {
		return &MalformedRecordError{Offset: rec.Offset, Code: rec.Code, Message: "PALETTE record too short"}
	}
	b.PaletteRecord = make([][3]int, 0, n)
	for i := 0; i < n; i++ {
		p := 2 + 4*i
		rgb := [3]int{int(data[p]), int(data[p+1]), int(data[p+2])}
		b.PaletteRecord = append(b.PaletteRecord, rgb)
		b.ColourMap[8+i] = rgb
	}
	return nil
}

// XFFormat resolves the number format of an XF index. The lookup happens at
// access time, so FORMAT records that follow their XF are still found.
func (b *Book) XFFormat(xfIndex int) *Format {
	if xfIndex < 0 || xfIndex >= len(b.XFList) {
		return b.FormatMap[0]
	}
	key := b.XFList[xfIndex].FormatKey
	if f, ok := b.FormatMap[key]; ok {
		return f
	}
	return &Format{FormatKey: key, Type: FUN}
}

// defaultPalette is the BIFF8 colour table for indexes 8..63.
var defaultPalette = [][3]int{
	{0, 0, 0}, {255, 255, 255}, {255, 0, 0}, {0, 255, 0},
	{0, 0, 255}, {255, 255, 0}, {255, 0, 255}, {0, 255, 255},
	{128, 0, 0}, {0, 128, 0}, {0, 0, 128}, {128, 128, 0},
	{128, 0, 128}, {0, 128, 128}, {192, 192, 192}, {128, 128, 128},
	{153, 153, 255}, {153, 51, 102}, {255, 255, 204}, {204, 255, 255},
	{102, 0, 102}, {255, 128, 128}, {0, 102, 204}, {204, 204, 255},
	{0, 0, 128}, {255, 0, 255}, {255, 255, 0}, {0, 255, 255},
	{128, 0, 128}, {128, 0, 0}, {0, 128, 128}, {0, 0, 255},
	{0, 204, 255}, {204, 255, 255}, {204, 255, 204}, {255, 255, 153},
	{153, 204, 255}, {255, 153, 204}, {204, 153, 255}, {255, 204, 153},
	{51, 102, 255}, {51, 204, 204}, {153, 204, 0}, {255, 204, 0},
	{255, 153, 0}, {255, 102, 0}, {102, 102, 153}, {150, 150, 150},
	{0, 51, 102}, {51, 153, 102}, {0, 51, 0}, {51, 51, 0},
	{153, 51, 0}, {153, 51, 102}, {51, 51, 153}, {51, 51, 51},
}
