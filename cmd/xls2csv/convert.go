package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"github.com/yamitzky/xlsread/internal/config"
	"github.com/yamitzky/xlsread/xlrd"
)

type quotingMode int

const (
	quotingNone quotingMode = iota
	quotingMinimal
	quotingNonNumeric
	quotingAll
)

// convertFlags are the flags of the conversion commands. CSV settings fall
// back to the configuration when not set on the command line.
type convertFlags struct {
	allSheets      bool
	sheetID        int
	sheetName      string
	outputEncoding string
	hyperlinks     bool
	formulas       bool
	include        []string
	exclude        []string

	delimiter      string
	lineTerminator string
	sheetDelimiter string
	quoting        string
	dateFormat     string
	floatFormat    string
	ignoreEmpty    bool
	escape         bool
	mergeCells     bool
}

type options struct {
	allSheets           bool
	sheetID             int
	sheetName           string
	delimiter           rune
	lineTerminator      string
	dateFormat          string
	floatFormat         string
	output              encoding.Encoding // nil for UTF-8
	ignoreEmpty         bool
	escape              bool
	formulas            bool
	sheetDelimiter      string
	quoting             quotingMode
	includeSheetPattern []*regexp.Regexp
	excludeSheetPattern []*regexp.Regexp
	mergeCells          bool
}

func (f *convertFlags) register(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&f.allSheets, "all", "a", false, "export all sheets")
	pf.IntVarP(&f.sheetID, "sheet", "s", -1, "sheet number to convert, 0 for all")
	pf.StringVarP(&f.sheetName, "sheetname", "n", "", "sheet name to convert")
	pf.StringVarP(&f.outputEncoding, "outputencoding", "c", "utf-8", "encoding of output CSV")
	pf.BoolVar(&f.hyperlinks, "hyperlinks", false, "include hyperlinks")
	pf.BoolVarP(&f.formulas, "formulas", "F", false, "write formula text instead of cached results")
	pf.StringArrayVarP(&f.include, "include_sheet_pattern", "I", nil, "only include sheets with names matching the given pattern, only affects when -a option is enabled")
	pf.StringArrayVarP(&f.exclude, "exclude_sheet_pattern", "E", nil, "exclude sheets with names matching the given pattern, only affects when -a option is enabled")

	pf.StringVarP(&f.delimiter, "delimiter", "d", ",", "column delimiter in CSV, 'tab' or 'x09' for a tab")
	pf.StringVarP(&f.lineTerminator, "lineterminator", "l", "", `line terminator in CSV, '\n' '\r\n' or '\r' (default: os line separator)`)
	pf.StringVarP(&f.sheetDelimiter, "sheetdelimiter", "p", config.DefaultSheetDelimiter, `sheet delimiter used to separate sheets, pass '' if you do not need a delimiter, or 'x07' or '\f' for form feed`)
	pf.StringVarP(&f.quoting, "quoting", "q", "minimal", "field quoting, 'none' 'minimal' 'nonnumeric' or 'all'")
	pf.StringVarP(&f.dateFormat, "dateformat", "f", "", "override date/time format (ex. %Y/%m/%d)")
	pf.StringVar(&f.floatFormat, "floatformat", "", "override float format (ex. %.15f)")
	pf.BoolVarP(&f.ignoreEmpty, "ignoreempty", "i", false, "skip empty lines")
	pf.BoolVarP(&f.escape, "escape", "e", false, `escape \r\n\t characters`)
	pf.BoolVarP(&f.mergeCells, "merge-cells", "m", false, "merge cells")
}

// options merges the flags over cfg and validates the result.
func (f *convertFlags) options(cmd *cobra.Command, cfg *config.Config) (options, error) {
	flags := cmd.Flags()
	csv := cfg.CSV
	if flags.Changed("delimiter") {
		csv.Delimiter = f.delimiter
	}
	if flags.Changed("lineterminator") {
		csv.LineTerminator = f.lineTerminator
	}
	if flags.Changed("sheetdelimiter") {
		csv.SheetDelimiter = &f.sheetDelimiter
	}
	if flags.Changed("quoting") {
		csv.Quoting = f.quoting
	}
	if flags.Changed("dateformat") {
		csv.DateFormat = f.dateFormat
	}
	if flags.Changed("floatformat") {
		csv.FloatFormat = f.floatFormat
	}
	csv.IgnoreEmpty = csv.IgnoreEmpty || f.ignoreEmpty
	csv.Escape = csv.Escape || f.escape
	csv.MergeCells = csv.MergeCells || f.mergeCells

	if f.hyperlinks {
		return options{}, usagef("hyperlinks are not supported")
	}
	if f.sheetName != "" && (f.allSheets || f.sheetID >= 0) {
		return options{}, usagef("cannot combine --sheetname with --sheet or --all")
	}

	opts := options{
		allSheets:   f.allSheets || f.sheetID == 0,
		sheetID:     f.sheetID,
		sheetName:   f.sheetName,
		dateFormat:  csv.DateFormat,
		floatFormat: csv.FloatFormat,
		ignoreEmpty: csv.IgnoreEmpty,
		escape:      csv.Escape,
		formulas:    f.formulas,
		mergeCells:  csv.MergeCells,
	}
	var err error
	if opts.output, err = outputEncoding(f.outputEncoding); err != nil {
		return options{}, err
	}
	if opts.delimiter, err = parseDelimiter(csv.Delimiter); err != nil {
		return options{}, usagef("invalid delimiter: %v", err)
	}
	opts.lineTerminator = osLineSep()
	if csv.LineTerminator != "" {
		if opts.lineTerminator, err = parseEscapedString(csv.LineTerminator); err != nil {
			return options{}, usagef("invalid line terminator: %v", err)
		}
	}
	if opts.sheetDelimiter, err = parseSheetDelimiter(csv.SheetDelimiterOrDefault()); err != nil {
		return options{}, usagef("invalid sheet delimiter: %v", err)
	}
	if opts.quoting, err = parseQuoting(csv.Quoting); err != nil {
		return options{}, usagef("invalid quoting: %v", err)
	}
	if opts.includeSheetPattern, err = compilePatterns(f.include); err != nil {
		return options{}, usagef("invalid include pattern: %v", err)
	}
	if opts.excludeSheetPattern, err = compilePatterns(f.exclude); err != nil {
		return options{}, usagef("invalid exclude pattern: %v", err)
	}
	return opts, nil
}

func outputEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return nil, nil
	}
	enc, err := xlrd.LookupEncoding(name)
	if err != nil {
		return nil, usagef("unsupported output encoding: %s", name)
	}
	return enc, nil
}

func openOptions(env *environment) *xlrd.OpenWorkbookOptions {
	return &xlrd.OpenWorkbookOptions{
		Logger:                   env.logger,
		UseMmap:                  env.cfg.Reader.Mmap,
		OnDemand:                 env.cfg.Reader.OnDemand,
		EncodingOverride:         env.cfg.Reader.Encoding,
		IgnoreWorkbookCorruption: env.cfg.Reader.IgnoreCorruption,
		FormattingInfo:           true,
	}
}

func convertPath(cmd *cobra.Command, env *environment, inputPath, outputPath string, opts options) error {
	stdout := cmd.OutOrStdout()
	if inputPath == "-" {
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		return convertFile(env, "-", content, outputPath, opts, stdout)
	}
	info, err := os.Stat(inputPath)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return convertDir(env, inputPath, outputPath, opts, stdout)
	}
	return convertFile(env, inputPath, nil, outputPath, opts, stdout)
}

func convertDir(env *environment, inputDir, outputDir string, opts options, stdout io.Writer) error {
	if outputDir == "" {
		outputDir = inputDir
	}
	if err := ensureDir(outputDir); err != nil {
		return err
	}
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return err
	}
	found := false
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		inputPath := filepath.Join(inputDir, entry.Name())
		if !isWorkbook(inputPath) {
			continue
		}
		found = true
		outputPath := filepath.Join(outputDir, changeExt(entry.Name(), ".csv"))
		if err := convertFile(env, inputPath, nil, outputPath, opts, stdout); err != nil {
			return fmt.Errorf("%s: %w", inputPath, err)
		}
	}
	if !found {
		return fmt.Errorf("no xls files found in %s", inputDir)
	}
	return nil
}

func isWorkbook(path string) bool {
	format, err := xlrd.InspectFormat(path, nil)
	return err == nil && (format == "xls" || format == "xlsx")
}

func ensureDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return os.MkdirAll(path, 0o755)
	}
	if !info.IsDir() {
		return fmt.Errorf("output path is not a directory: %s", path)
	}
	return nil
}

func convertFile(env *environment, inputPath string, content []byte, outputPath string, opts options, stdout io.Writer) error {
	var (
		book *xlrd.Book
		err  error
	)
	if content != nil {
		book, err = xlrd.OpenWorkbookBytes(content, openOptions(env))
	} else {
		book, err = xlrd.OpenWorkbook(inputPath, openOptions(env))
	}
	if err != nil {
		return err
	}
	defer book.Close()
	env.logger.Debug("converting", zap.String("input", inputPath), zap.Int("sheets", book.NSheets))

	sheetIndexes, err := selectSheets(book, opts)
	if err != nil {
		return err
	}

	if opts.sheetID == 0 && outputPath != "" {
		if err := ensureDir(outputPath); err != nil {
			return fmt.Errorf("outfile must be a directory when -s 0 is specified: %w", err)
		}
	}

	if outputPath == "" {
		return writeOutput(stdout, book, sheetIndexes, opts)
	}

	info, err := os.Stat(outputPath)
	if err == nil && info.IsDir() {
		base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
		names := book.SheetNames()
		for _, sheetIndex := range sheetIndexes {
			filename := fmt.Sprintf("%s-%s.csv", base, sanitizeFilename(names[sheetIndex]))
			if err := writeSheetsToFile(filepath.Join(outputPath, filename), book, []int{sheetIndex}, opts); err != nil {
				return err
			}
		}
		return nil
	}
	return writeSheetsToFile(outputPath, book, sheetIndexes, opts)
}

func selectSheets(book *xlrd.Book, opts options) ([]int, error) {
	if opts.sheetName != "" {
		for i, name := range book.SheetNames() {
			if name == opts.sheetName {
				return []int{i}, nil
			}
		}
		return nil, fmt.Errorf("sheet %s not found", opts.sheetName)
	}

	if opts.allSheets {
		names := book.SheetNames()
		indexes := make([]int, 0, len(names))
		for i, name := range names {
			if !matchPatterns(name, opts.includeSheetPattern, opts.excludeSheetPattern) {
				continue
			}
			indexes = append(indexes, i)
		}
		if len(indexes) == 0 {
			return nil, fmt.Errorf("no sheets matched selection")
		}
		return indexes, nil
	}

	if opts.sheetID > 0 {
		index := opts.sheetID - 1
		if index >= book.NSheets {
			return nil, fmt.Errorf("sheet index %d out of range", opts.sheetID)
		}
		return []int{index}, nil
	}

	if book.NSheets == 0 {
		return nil, fmt.Errorf("no sheets found")
	}
	return []int{0}, nil
}

func matchPatterns(name string, include, exclude []*regexp.Regexp) bool {
	if len(include) > 0 {
		matched := false
		for _, re := range include {
			if re.MatchString(name) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, re := range exclude {
		if re.MatchString(name) {
			return false
		}
	}
	return true
}

func writeSheetsToFile(path string, book *xlrd.Book, sheetIndexes []int, opts options) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeOutput(file, book, sheetIndexes, opts); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// writeOutput buffers w and applies the output encoding.
func writeOutput(w io.Writer, book *xlrd.Book, sheetIndexes []int, opts options) error {
	buf := bufio.NewWriter(w)
	var out io.Writer = buf
	var tw *transform.Writer
	if opts.output != nil {
		tw = transform.NewWriter(buf, opts.output.NewEncoder())
		out = tw
	}
	if err := writeSheets(out, book, sheetIndexes, opts); err != nil {
		return err
	}
	if tw != nil {
		if err := tw.Close(); err != nil {
			return err
		}
	}
	return buf.Flush()
}

func writeSheets(w io.Writer, book *xlrd.Book, sheetIndexes []int, opts options) error {
	cw := &csvWriter{
		w:              w,
		delimiter:      opts.delimiter,
		lineTerminator: opts.lineTerminator,
		quoting:        opts.quoting,
	}

	for i, sheetIndex := range sheetIndexes {
		if i > 0 && opts.sheetDelimiter != "" {
			if _, err := fmt.Fprint(w, opts.sheetDelimiter, opts.lineTerminator); err != nil {
				return err
			}
		}
		sheet, err := book.SheetByIndex(sheetIndex)
		if err != nil {
			return err
		}
		if err := sheet.Err(); err != nil {
			return fmt.Errorf("sheet %q: %w", sheet.Name, err)
		}
		err = writeSheet(cw, book, sheet, opts)
		if book.OnDemand() {
			sheet.Release()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func writeSheet(cw *csvWriter, book *xlrd.Book, sheet *xlrd.Sheet, opts options) error {
	var origin map[[2]int][2]int
	if opts.mergeCells {
		origin = mergedOrigins(sheet)
	}
	for rowx := 0; rowx < sheet.NRows; rowx++ {
		fields := make([]field, sheet.NCols)
		allEmpty := true
		for colx := 0; colx < sheet.NCols; colx++ {
			r, c := rowx, colx
			if o, ok := origin[[2]int{rowx, colx}]; ok {
				r, c = o[0], o[1]
			}
			f := formatCell(book, sheet.Cell(r, c), opts)
			if f.text != "" {
				allEmpty = false
			}
			fields[colx] = f
		}
		if opts.ignoreEmpty && allEmpty {
			continue
		}
		if err := cw.writeRow(fields); err != nil {
			return err
		}
	}
	return nil
}

// mergedOrigins maps every covered cell of a merged range to its top-left cell.
func mergedOrigins(sheet *xlrd.Sheet) map[[2]int][2]int {
	out := make(map[[2]int][2]int)
	for _, m := range sheet.MergedCells {
		rlo, rhi, clo, chi := m[0], m[1], m[2], m[3]
		for r := rlo; r < rhi; r++ {
			for c := clo; c < chi; c++ {
				if r != rlo || c != clo {
					out[[2]int{r, c}] = [2]int{rlo, clo}
				}
			}
		}
	}
	return out
}

func osLineSep() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}

func compilePatterns(values []string) ([]*regexp.Regexp, error) {
	if len(values) == 0 {
		return nil, nil
	}
	patterns := make([]*regexp.Regexp, 0, len(values))
	for _, value := range values {
		re, err := regexp.Compile(value)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}

func parseQuoting(value string) (quotingMode, error) {
	switch strings.ToLower(value) {
	case "none":
		return quotingNone, nil
	case "minimal":
		return quotingMinimal, nil
	case "nonnumeric":
		return quotingNonNumeric, nil
	case "all":
		return quotingAll, nil
	default:
		return quotingMinimal, fmt.Errorf("unsupported quoting: %s", value)
	}
}

func parseDelimiter(value string) (rune, error) {
	switch strings.ToLower(value) {
	case "tab", "x09":
		return '\t', nil
	case "":
		return 0, fmt.Errorf("delimiter cannot be empty")
	}
	if strings.HasPrefix(value, "x") && len(value) == 3 {
		decoded, err := strconv.ParseUint(value[1:], 16, 8)
		if err != nil {
			return 0, err
		}
		return rune(decoded), nil
	}
	return []rune(value)[0], nil
}

func parseSheetDelimiter(value string) (string, error) {
	if value == `\f` {
		return "\f", nil
	}
	if strings.HasPrefix(value, "x") && len(value) == 3 {
		decoded, err := strconv.ParseUint(value[1:], 16, 8)
		if err != nil {
			return "", err
		}
		return string([]byte{byte(decoded)}), nil
	}
	return value, nil
}

func parseEscapedString(value string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		if value[i] != '\\' {
			b.WriteByte(value[i])
			continue
		}
		if i+1 >= len(value) {
			return "", fmt.Errorf("dangling escape")
		}
		i++
		switch value[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '\\':
			b.WriteByte('\\')
		default:
			return "", fmt.Errorf("unknown escape \\%c", value[i])
		}
	}
	return b.String(), nil
}

func changeExt(name, ext string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}

func sanitizeFilename(name string) string {
	invalid := strings.NewReplacer(string(os.PathSeparator), "_", "/", "_", "\\", "_")
	clean := strings.TrimSpace(invalid.Replace(name))
	if clean == "" {
		return "sheet"
	}
	return clean
}
