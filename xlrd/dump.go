package xlrd

import (
	"fmt"
	"io"
	"os"
	"sort"
)

// openWorkbookStream opens the compound file at filename and locates its
// workbook stream. The caller closes the returned CompDoc.
func openWorkbookStream(filename string) (*CompDoc, *Stream, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, nil, err
	}
	cd, err := NewCompDoc(NewSectorStore(data, 512), nil)
	if err != nil {
		return nil, nil, err
	}
	for _, qname := range []string{"Workbook", "Book"} {
		st, err := cd.LocateNamedStream(qname)
		if err != nil {
			cd.Close()
			return nil, nil, err
		}
		if st != nil {
			return cd, st, nil
		}
	}
	cd.Close()
	return nil, nil, NewXLRDError("Can't find workbook in OLE2 compound document")
}

// Dump dumps an XLS file's BIFF records in char & hex format for debugging.
//
// filename: The path to the file to be dumped.
// outfile: An open file, to which the dump is written.
// unnumbered: If true, omit offsets (for meaningful diffs).
func Dump(filename string, outfile io.Writer, unnumbered bool) error {
	cd, st, err := openWorkbookStream(filename)
	if err != nil {
		return err
	}
	defer cd.Close()
	return DumpStream(st, outfile, unnumbered)
}

// DumpStream writes every physical record of st. Substreams are indented by
// their BOF nesting depth.
func DumpStream(st *Stream, w io.Writer, unnumbered bool) error {
	rr := NewRecordReader(st, 0)
	depth := 0
	for {
		rec, err := rr.NextPhysical()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			fmt.Fprintf(w, "!!! %v\n", err)
			return err
		}
		if rec.Code == XL_EOF && depth > 0 {
			depth--
		}
		prefix := ""
		if !unnumbered {
			prefix = fmt.Sprintf("%5d: ", rec.Offset)
		}
		fmt.Fprintf(w, "%s%*s%04x %s len = %04x (%d)\n", prefix, 2*depth, "", rec.Code, RecordName(rec.Code), len(rec.Data), len(rec.Data))
		HexCharDump(rec.Data, 0, len(rec.Data), rec.Offset+4, w, unnumbered)
		if _, isBOF := boflen[rec.Code]; isBOF {
			depth++
		}
	}
}

// CountRecords summarises the file's BIFF records.
// It produces a sorted file of (record_name, count).
//
// filename: The path to the file to be summarised.
// outfile: An open file, to which the summary is written.
func CountRecords(filename string, outfile io.Writer) error {
	cd, st, err := openWorkbookStream(filename)
	if err != nil {
		return err
	}
	defer cd.Close()
	counts, err := RecordCounts(st)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(outfile, "%8d %s\n", counts[name], name)
	}
	return nil
}

// RecordCounts tallies the physical records of st by record name.
func RecordCounts(st *Stream) (map[string]int, error) {
	counts := make(map[string]int)
	rr := NewRecordReader(st, 0)
	for {
		rec, err := rr.NextPhysical()
		if err == io.EOF {
			return counts, nil
		}
		if err != nil {
			return counts, err
		}
		counts[RecordName(rec.Code)]++
	}
}
