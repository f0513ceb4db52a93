package main

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	x "github.com/yamitzky/xlsread/internal/xlstest"
)

// sampleBook has two sheets:
//
//	First:  1 | "a,b" | 2005-02-23
//	        =A1+1 (cached 2)
//	Second: 3 | x
//	        (merged with the cell above)
func sampleBook() []byte {
	wb := &x.Workbook{
		Globals: [][]byte{x.XF(0), x.XF(14)},
		Tail:    [][]byte{x.SST("a,b", "x")},
		Sheets: []x.Sheet{
			{Name: "First", Records: [][]byte{
				x.Dimension(2, 3),
				x.Number(0, 0, 0, 1),
				x.LabelSST(0, 1, 0, 0),
				x.Number(0, 2, 1, 38406),
				x.Formula(1, 0, 0, 2, x.Cat(x.RefToken(0, 0, true, true), x.IntToken(1), x.TokAdd)),
			}},
			{Name: "Second", Records: [][]byte{
				x.Dimension(2, 2),
				x.Number(0, 0, 0, 3),
				x.LabelSST(0, 1, 0, 1),
				x.Blank(1, 0, 0),
				x.MergedCells([4]int{0, 1, 0, 0}),
			}},
		},
	}
	return wb.Bytes()
}

func writeSample(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, sampleBook(), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	return path
}

func TestRunDefault(t *testing.T) {
	sample := writeSample(t, t.TempDir(), "book.xls")
	out, errOut, code := runCLI([]string{sample})
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, errOut)
	}
	want := "1,\"a,b\",2005-02-23\n2,,\n"
	if out != want {
		t.Fatalf("output=%q, want %q", out, want)
	}
	record := firstRecord(t, out, ',')
	if len(record) != 3 || record[1] != "a,b" {
		t.Fatalf("unexpected first record: %v", record)
	}
}

func TestRunOptions(t *testing.T) {
	sample := writeSample(t, t.TempDir(), "book.xls")
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"float format", []string{"--floatformat", "%.2f"}, "1.00,\"a,b\",2005-02-23\n2.00,,\n"},
		{"tab delimiter", []string{"-d", "tab"}, "1\ta,b\t2005-02-23\n2\t\t\n"},
		{"date format", []string{"-f", "%Y/%m/%d"}, "1,\"a,b\",2005/02/23\n2,,\n"},
		{"quote all", []string{"-q", "all"}, "\"1\",\"a,b\",\"2005-02-23\"\n\"2\",\"\",\"\"\n"},
		{"quote nonnumeric", []string{"-q", "nonnumeric"}, "1,\"a,b\",\"2005-02-23\"\n2,\"\",\"\"\n"},
		{"formulas", []string{"--formulas"}, "1,\"a,b\",2005-02-23\n=A1+1,,\n"},
		{"line terminator", []string{"-l", `\r\n`}, "1,\"a,b\",2005-02-23\r\n2,,\r\n"},
		{"second sheet", []string{"-s", "2"}, "3,x\n,\n"},
		{"sheet by name", []string{"-n", "Second"}, "3,x\n,\n"},
		{"merge cells", []string{"-m", "-s", "2"}, "3,x\n3,\n"},
		{"ignore empty", []string{"-i", "-n", "Second"}, "3,x\n"},
		{"all sheets", []string{"-a"}, "1,\"a,b\",2005-02-23\n2,,\n--------\n3,x\n,\n"},
		{"no sheet delimiter", []string{"-a", "-p", ""}, "1,\"a,b\",2005-02-23\n2,,\n3,x\n,\n"},
		{"exclude pattern", []string{"-a", "-E", "^F"}, "3,x\n,\n"},
		{"include pattern", []string{"-a", "-I", "^F"}, "1,\"a,b\",2005-02-23\n2,,\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut, code := runCLI(append(tt.args, sample))
			if code != 0 {
				t.Fatalf("exit code %d, stderr: %s", code, errOut)
			}
			if out != tt.want {
				t.Fatalf("output=%q, want %q", out, tt.want)
			}
		})
	}
}

func TestRunStdin(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"-s", "2", "-"}, bytes.NewReader(sampleBook()), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	if got := stdout.String(); got != "3,x\n,\n" {
		t.Fatalf("output=%q", got)
	}
}

func TestRunOutputFile(t *testing.T) {
	dir := t.TempDir()
	sample := writeSample(t, dir, "book.xls")
	outPath := filepath.Join(dir, "out.csv")
	if _, errOut, code := runCLI([]string{sample, outPath}); code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, errOut)
	}
	if got := readFile(t, outPath); got != "1,\"a,b\",2005-02-23\n2,,\n" {
		t.Fatalf("out.csv=%q", got)
	}
}

func TestRunEverySheetToDirectory(t *testing.T) {
	dir := t.TempDir()
	sample := writeSample(t, dir, "book.xls")
	outDir := filepath.Join(dir, "out")
	if _, errOut, code := runCLI([]string{"-s", "0", sample, outDir}); code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, errOut)
	}
	if got := readFile(t, filepath.Join(outDir, "book-First.csv")); got != "1,\"a,b\",2005-02-23\n2,,\n" {
		t.Fatalf("book-First.csv=%q", got)
	}
	if got := readFile(t, filepath.Join(outDir, "book-Second.csv")); got != "3,x\n,\n" {
		t.Fatalf("book-Second.csv=%q", got)
	}
}

func TestRunDirectory(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, dir, "book.xls")
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a workbook"), 0o644); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(dir, "csv")
	if _, errOut, code := runCLI([]string{dir, outDir}); code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, errOut)
	}
	if got := readFile(t, filepath.Join(outDir, "book.csv")); got != "1,\"a,b\",2005-02-23\n2,,\n" {
		t.Fatalf("book.csv=%q", got)
	}
	if _, err := os.Stat(filepath.Join(outDir, "notes.csv")); !os.IsNotExist(err) {
		t.Fatalf("notes.txt should not be converted: %v", err)
	}

	empty := t.TempDir()
	if _, _, code := runCLI([]string{empty}); code != 1 {
		t.Fatalf("exit code %d for a directory without workbooks, want 1", code)
	}
}

func TestRunConfigAndEnv(t *testing.T) {
	dir := t.TempDir()
	sample := writeSample(t, dir, "book.xls")
	cfgPath := filepath.Join(dir, "xls2csv.yaml")
	if err := os.WriteFile(cfgPath, []byte("csv:\n  delimiter: \"|\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, errOut, code := runCLI([]string{"--config", cfgPath, "-s", "2", sample})
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, errOut)
	}
	if out != "3|x\n|\n" {
		t.Fatalf("config delimiter: output=%q", out)
	}

	t.Setenv("XLS2CSV_DELIMITER", ";")
	out, _, _ = runCLI([]string{"--config", cfgPath, "-s", "2", sample})
	if out != "3;x\n;\n" {
		t.Fatalf("env delimiter: output=%q", out)
	}

	out, _, _ = runCLI([]string{"--config", cfgPath, "-d", ":", "-s", "2", sample})
	if out != "3:x\n:\n" {
		t.Fatalf("flag delimiter: output=%q", out)
	}
}

func TestRunErrors(t *testing.T) {
	sample := writeSample(t, t.TempDir(), "book.xls")
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"no arguments", nil, 2},
		{"too many arguments", []string{"a", "b", "c"}, 2},
		{"unknown flag", []string{"--nope", sample}, 2},
		{"bad quoting", []string{"-q", "sometimes", sample}, 2},
		{"hyperlinks", []string{"--hyperlinks", sample}, 2},
		{"sheet name with all", []string{"-a", "-n", "First", sample}, 2},
		{"bad encoding", []string{"-c", "no-such-charset", sample}, 2},
		{"missing file", []string{sample + ".missing"}, 1},
		{"missing sheet", []string{"-n", "Nope", sample}, 1},
		{"sheet out of range", []string{"-s", "9", sample}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errOut, code := runCLI(tt.args)
			if code != tt.code {
				t.Fatalf("exit code %d, want %d (stderr: %s)", code, tt.code, errOut)
			}
			if errOut == "" {
				t.Fatalf("expected an error message")
			}
		})
	}
}

func TestRunVersion(t *testing.T) {
	out, _, code := runCLI([]string{"--version"})
	if code != 0 {
		t.Fatalf("exit code %d", code)
	}
	if out != version+"\n" {
		t.Fatalf("version output=%q", out)
	}
}

func TestRunDumpAndCount(t *testing.T) {
	sample := writeSample(t, t.TempDir(), "book.xls")

	out, errOut, code := runCLI([]string{"dump", "-u", sample})
	if code != 0 {
		t.Fatalf("dump: exit code %d, stderr: %s", code, errOut)
	}
	if !strings.HasPrefix(out, "0809 BOF") || !strings.Contains(out, "MERGEDCELLS") {
		t.Fatalf("unexpected dump output: %q", firstLine(out))
	}

	out, errOut, code = runCLI([]string{"count", sample})
	if code != 0 {
		t.Fatalf("count: exit code %d, stderr: %s", code, errOut)
	}
	if !strings.Contains(out, "       3 BOF\n") || !strings.Contains(out, "       1 SST\n") {
		t.Fatalf("unexpected count output: %q", out)
	}

	if _, _, code := runCLI([]string{"count"}); code != 2 {
		t.Fatalf("count without a file: exit code %d, want 2", code)
	}
}

func runCLI(args []string) (string, string, int) {
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(""), &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func firstRecord(t *testing.T, output string, delimiter rune) []string {
	t.Helper()
	reader := csv.NewReader(strings.NewReader(output))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	record, err := reader.Read()
	if err != nil && err != io.EOF {
		t.Fatalf("read csv: %v", err)
	}
	return record
}

func firstLine(output string) string {
	if idx := strings.IndexByte(output, '\n'); idx >= 0 {
		return output[:idx]
	}
	return output
}
