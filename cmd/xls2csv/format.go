package main

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/yamitzky/xlsread/xlrd"
)

type csvWriter struct {
	w              io.Writer
	delimiter      rune
	lineTerminator string
	quoting        quotingMode
}

type field struct {
	text      string
	isNumeric bool
}

var escaper = strings.NewReplacer("\r", "\\r", "\n", "\\n", "\t", "\\t")

func formatCell(book *xlrd.Book, cell *xlrd.Cell, opts options) field {
	f := cellField(book, cell, opts)
	if opts.escape && f.text != "" {
		f.text = escaper.Replace(f.text)
	}
	return f
}

func cellField(book *xlrd.Book, cell *xlrd.Cell, opts options) field {
	if opts.formulas && cell.Formula != nil {
		if text := cell.Formula.Text(); text != "" {
			return field{text: "=" + text}
		}
	}
	switch cell.CType {
	case xlrd.XL_CELL_TEXT:
		s, _ := cell.Value.(string)
		return field{text: s}
	case xlrd.XL_CELL_DATE:
		if v, ok := cell.Value.(float64); ok {
			if formatted, ok := formatDate(v, book.Datemode, opts.dateFormat); ok {
				return field{text: formatted}
			}
		}
		return field{text: formatFloat(cell.Value, opts.floatFormat), isNumeric: true}
	case xlrd.XL_CELL_NUMBER:
		return field{text: formatFloat(cell.Value, opts.floatFormat), isNumeric: true}
	case xlrd.XL_CELL_BOOLEAN:
		if b, _ := cell.Value.(bool); b {
			return field{text: "TRUE"}
		}
		return field{text: "FALSE"}
	case xlrd.XL_CELL_ERROR:
		if code, ok := cell.Value.(byte); ok {
			if text, ok := xlrd.ErrorTextFromCode[code]; ok {
				return field{text: text}
			}
		}
		return field{text: "#ERROR"}
	default:
		return field{}
	}
}

func formatFloat(value interface{}, floatFormat string) string {
	val, ok := value.(float64)
	if !ok {
		return fmt.Sprint(value)
	}
	if floatFormat != "" {
		return fmt.Sprintf(floatFormat, val)
	}
	return strconv.FormatFloat(val, 'g', -1, 64)
}

func formatDate(value float64, datemode int, dateFormat string) (string, bool) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return "", false
	}
	t, err := xlrd.XldateAsDatetime(value, datemode)
	if err != nil {
		return "", false
	}
	if dateFormat != "" {
		return strftime(t, dateFormat), true
	}
	if value < 1 {
		return t.Format("15:04:05"), true
	}
	if value-math.Floor(value) != 0 {
		return t.Format("2006-01-02 15:04:05"), true
	}
	return t.Format("2006-01-02"), true
}

var strftimeLayouts = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'M': "04",
	'S': "05",
	'b': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
}

func strftime(t time.Time, format string) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i+1 >= len(format) {
			b.WriteByte(format[i])
			continue
		}
		i++
		if format[i] == '%' {
			b.WriteByte('%')
		} else if layout, ok := strftimeLayouts[format[i]]; ok {
			b.WriteString(t.Format(layout))
		} else {
			b.WriteByte('%')
			b.WriteByte(format[i])
		}
	}
	return b.String()
}

func (cw *csvWriter) writeRow(fields []field) error {
	var buf bytes.Buffer
	for i, f := range fields {
		if i > 0 {
			buf.WriteRune(cw.delimiter)
		}
		buf.WriteString(cw.formatField(f))
	}
	buf.WriteString(cw.lineTerminator)
	_, err := cw.w.Write(buf.Bytes())
	return err
}

func (cw *csvWriter) formatField(f field) string {
	if !cw.needsQuote(f) {
		return f.text
	}
	return `"` + strings.ReplaceAll(f.text, `"`, `""`) + `"`
}

func (cw *csvWriter) needsQuote(f field) bool {
	switch cw.quoting {
	case quotingAll:
		return true
	case quotingNonNumeric:
		return !f.isNumeric
	case quotingMinimal:
		return strings.ContainsRune(f.text, cw.delimiter) || strings.ContainsAny(f.text, "\"\r\n")
	default:
		return false
	}
}
