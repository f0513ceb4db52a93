package xlrd

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileFormatDescriptions provides descriptions of the file types that can be inspected.
var FileFormatDescriptions = map[string]string{
	"xls":  "Excel xls",
	"xlsb": "Excel 2007 xlsb file",
	"xlsx": "Excel xlsx file",
	"ods":  "Openoffice.org ODS file",
	"zip":  "Unknown ZIP file",
	"":     "Unknown file type",
}

// zipSignature is the local file header magic of a ZIP archive.
var zipSignature = []byte("PK\x03\x04")

// zipMarkers maps a part found in a ZIP container to the format it implies,
// in order of precedence.
var zipMarkers = []struct{ part, format string }{
	{"xl/workbook.xml", "xlsx"},
	{"xl/workbook.bin", "xlsb"},
	{"content.xml", "ods"},
}

// ExpandPath replaces a leading "~" with the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// InspectFormat inspects the content at the supplied path or the bytes content provided
// and returns the file's type as a string, or empty string if it cannot be determined.
//
// path: A string path containing the content to inspect. ~ will be expanded.
// content: The bytes content to inspect.
//
// The return value can always be looked up in FileFormatDescriptions
// to return a human-readable description of the format found.
func InspectFormat(path string, content []byte) (string, error) {
	if content != nil {
		return inspectReader(bytes.NewReader(content), int64(len(content)))
	}
	expanded, err := ExpandPath(path)
	if err != nil {
		return "", err
	}
	f, err := os.Open(expanded)
	if err != nil {
		return "", err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return "", err
	}
	return inspectReader(f, st.Size())
}

func inspectReader(r io.ReaderAt, size int64) (string, error) {
	peek := make([]byte, len(CompDocSignature))
	n, err := r.ReadAt(peek, 0)
	if err != nil && err != io.EOF {
		return "", err
	}
	if n < len(peek) {
		return "", nil
	}
	if bytes.Equal(peek, CompDocSignature) {
		return "xls", nil
	}
	if !bytes.HasPrefix(peek, zipSignature) {
		return "", nil
	}

	zf, err := zip.NewReader(r, size)
	if err != nil {
		return "", err
	}
	// Some third party writers use backslashes and odd case in part names.
	parts := make(map[string]bool, len(zf.File))
	for _, f := range zf.File {
		parts[strings.ToLower(strings.ReplaceAll(f.Name, "\\", "/"))] = true
	}
	for _, m := range zipMarkers {
		if parts[m.part] {
			return m.format, nil
		}
	}
	return "zip", nil
}
