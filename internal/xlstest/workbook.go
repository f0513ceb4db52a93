package xlstest

// Sheet is one worksheet substream. Records are the cell and attribute
// records between its BOF and EOF.
type Sheet struct {
	Name       string
	Type       int // BOUNDSHEET sheet type; 0 is a worksheet
	Visibility int
	Records    [][]byte
}

// Workbook assembles a BIFF8 workbook stream.
type Workbook struct {
	Datemode int
	// Globals are emitted after CODEPAGE and DATEMODE, before the sheet list.
	Globals [][]byte
	// Tail records follow the sheet list (NAME, SUPBOOK, SST and the like).
	Tail   [][]byte
	Sheets []Sheet
}

// XF returns a minimal BIFF8 XF record using the given format key.
func XF(formatKey int) []byte {
	return Record(OpXF, Cat(U16(0), U16(formatKey), U16(0x0001), make([]byte, 14)))
}

// Format returns a BIFF8 FORMAT record.
func Format(key int, format string) []byte {
	return Record(OpFormat, Cat(U16(key), Str8(format)))
}

func boundsheet(offset int, sh Sheet) []byte {
	return Record(OpBoundsheet, Cat(U32(uint32(offset)), []byte{byte(sh.Visibility), byte(sh.Type)}, ShortStr8(sh.Name)))
}

// Stream returns the workbook stream bytes.
func (w *Workbook) Stream() []byte {
	head := Cat(BOF(0x0005), Record(OpCodepage, U16(1200)), Record(OpDatemode, U16(w.Datemode)))
	for _, r := range w.Globals {
		head = Cat(head, r)
	}
	// BOUNDSHEET sizes do not depend on the offsets, so lay out with zeros first.
	size := len(head)
	for _, sh := range w.Sheets {
		size += len(boundsheet(0, sh))
	}
	for _, r := range w.Tail {
		size += len(r)
	}
	size += len(EOF())

	bodies := make([][]byte, len(w.Sheets))
	offsets := make([]int, len(w.Sheets))
	pos := size
	for i, sh := range w.Sheets {
		body := BOF(0x0010)
		if sh.Type != 0 {
			body = BOF(0x0020)
		}
		for _, r := range sh.Records {
			body = Cat(body, r)
		}
		bodies[i] = Cat(body, EOF())
		offsets[i] = pos
		pos += len(bodies[i])
	}

	out := head
	for i, sh := range w.Sheets {
		out = Cat(out, boundsheet(offsets[i], sh))
	}
	for _, r := range w.Tail {
		out = Cat(out, r)
	}
	out = Cat(out, EOF())
	for _, b := range bodies {
		out = Cat(out, b)
	}
	return out
}

// Bytes returns the workbook wrapped in a compound file.
func (w *Workbook) Bytes() []byte {
	b, _ := BuildCFB([]Stream{{Name: "Workbook", Data: w.Stream()}})
	return b
}
