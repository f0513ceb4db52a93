package xlrd

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

// EncodingFromCodepage maps codepage numbers to encoding names.
// Codepages 300..1999 not listed here map to "cp<N>".
var EncodingFromCodepage = map[int]string{
	1200:  "utf_16_le",
	10000: "mac_roman",
	10006: "mac_greek",    // guess
	10007: "mac_cyrillic", // guess
	10029: "mac_latin2",   // guess
	10079: "mac_iceland",  // guess
	10081: "mac_turkish",  // guess
	32768: "mac_roman",
	32769: "cp1252",
}

var encodingsByName = map[string]encoding.Encoding{
	"utf_16_le":    unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
	"iso-8859-1":   charmap.ISO8859_1,
	"latin_1":      charmap.ISO8859_1,
	"mac_roman":    charmap.Macintosh,
	"mac_cyrillic": charmap.MacintoshCyrillic,
	"cp437":        charmap.CodePage437,
	"cp850":        charmap.CodePage850,
	"cp852":        charmap.CodePage852,
	"cp855":        charmap.CodePage855,
	"cp858":        charmap.CodePage858,
	"cp860":        charmap.CodePage860,
	"cp862":        charmap.CodePage862,
	"cp863":        charmap.CodePage863,
	"cp865":        charmap.CodePage865,
	"cp866":        charmap.CodePage866,
	"cp874":        charmap.Windows874,
	"cp932":        japanese.ShiftJIS,
	"cp936":        simplifiedchinese.GBK,
	"cp949":        korean.EUCKR,
	"cp950":        traditionalchinese.Big5,
	"cp1250":       charmap.Windows1250,
	"cp1251":       charmap.Windows1251,
	"cp1252":       charmap.Windows1252,
	"cp1253":       charmap.Windows1253,
	"cp1254":       charmap.Windows1254,
	"cp1255":       charmap.Windows1255,
	"cp1256":       charmap.Windows1256,
	"cp1257":       charmap.Windows1257,
	"cp1258":       charmap.Windows1258,
}

// LookupEncoding returns the text encoding for a codepage-derived name such
// as "cp1252", or a WHATWG label such as "shift_jis".
func LookupEncoding(name string) (encoding.Encoding, error) {
	key := strings.ToLower(name)
	if enc, ok := encodingsByName[key]; ok {
		return enc, nil
	}
	enc, err := htmlindex.Get(key)
	if err != nil {
		return nil, NewXLRDError("unknown encoding %q", name)
	}
	return enc, nil
}

func decodeUTF16LE(b []byte) string {
	words := make([]uint16, len(b)/2)
	for i := range words {
		words[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return string(utf16.Decode(words))
}

func decodeLatin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

func decodeBytes(b []byte, enc encoding.Encoding) (string, error) {
	if enc == nil {
		return decodeLatin1(b), nil
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decode text: %w", err)
	}
	return string(out), nil
}

var errShortData = NewXLRDError("insufficient data for string")

func readLen(data []byte, pos, lenlen int) (int, int, error) {
	if pos+lenlen > len(data) {
		return 0, pos, errShortData
	}
	if lenlen == 1 {
		return int(data[pos]), pos + 1, nil
	}
	return int(binary.LittleEndian.Uint16(data[pos:])), pos + 2, nil
}

// UnpackString decodes a byte string (BIFF5 and earlier) with a length prefix
// of lenlen bytes.
func UnpackString(data []byte, pos int, enc encoding.Encoding, lenlen int) (string, error) {
	s, _, err := UnpackStringUpdatePos(data, pos, enc, lenlen, -1)
	return s, err
}

// UnpackStringUpdatePos is UnpackString that also returns the position after
// the string. A knownLen >= 0 means there is no length prefix.
func UnpackStringUpdatePos(data []byte, pos int, enc encoding.Encoding, lenlen, knownLen int) (string, int, error) {
	nchars := knownLen
	if nchars < 0 {
		var err error
		nchars, pos, err = readLen(data, pos, lenlen)
		if err != nil {
			return "", pos, err
		}
	}
	if pos+nchars > len(data) {
		return "", pos, errShortData
	}
	s, err := decodeBytes(data[pos:pos+nchars], enc)
	return s, pos + nchars, err
}

// UnpackUnicode decodes a BIFF8 unicode string: length, option flags, then
// either 8-bit compressed or UTF-16LE characters.
func UnpackUnicode(data []byte, pos, lenlen int) (string, error) {
	s, _, err := UnpackUnicodeUpdatePos(data, pos, lenlen, -1)
	return s, err
}

// UnpackUnicodeUpdatePos is UnpackUnicode that also returns the position after
// the string, including any rich text runs and phonetic data.
func UnpackUnicodeUpdatePos(data []byte, pos, lenlen, knownLen int) (string, int, error) {
	nchars := knownLen
	if nchars < 0 {
		var err error
		nchars, pos, err = readLen(data, pos, lenlen)
		if err != nil {
			return "", pos, err
		}
	}
	if nchars == 0 && pos >= len(data) {
		return "", pos, nil
	}
	if pos >= len(data) {
		return "", pos, errShortData
	}
	options := data[pos]
	pos++
	phonetic := options&0x04 != 0
	richtext := options&0x08 != 0
	var rt, sz int
	if richtext {
		if pos+2 > len(data) {
			return "", pos, errShortData
		}
		rt = int(binary.LittleEndian.Uint16(data[pos:]))
		pos += 2
	}
	if phonetic {
		if pos+4 > len(data) {
			return "", pos, errShortData
		}
		sz = int(int32(binary.LittleEndian.Uint32(data[pos:])))
		pos += 4
	}

	var s string
	if options&0x01 != 0 {
		if pos+2*nchars > len(data) {
			return "", pos, errShortData
		}
		s = decodeUTF16LE(data[pos : pos+2*nchars])
		pos += 2 * nchars
	} else {
		if pos+nchars > len(data) {
			return "", pos, errShortData
		}
		s = decodeLatin1(data[pos : pos+nchars])
		pos += nchars
	}
	pos += 4*rt + sz
	return s, pos, nil
}
