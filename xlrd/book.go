package xlrd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
)

// Book represents the contents of a "workbook".
//
// You should not instantiate this type yourself. You use the Book
// object that was returned when you called OpenWorkbook.
//
// A Book is not safe for concurrent use: on-demand loading mutates the
// per-sheet state. The shared tables are immutable once open returns.
type Book struct {
	// NSheets is the number of sheets present in the workbook file, of any type.
	// This information is available even when no sheets have yet been loaded.
	NSheets int

	// Datemode indicates which date system was in force when this file was last saved.
	// 0: 1900 system (the Excel for Windows default).
	// 1: 1904 system (the Excel for Macintosh default).
	// Defaults to 0 in case it's not specified in the file.
	Datemode int

	// BiffVersion is the version of BIFF (Binary Interchange File Format) used to create the file.
	// Latest is 8.0 (represented here as 80), introduced with Excel 97.
	// Zero for workbooks read from the xlsx format.
	BiffVersion int

	// NameObjList contains a Name object for each NAME record in the workbook.
	NameObjList []*Name

	// NameMap maps a lower-cased name to its Name objects, ordered by scope.
	NameMap map[string][]*Name

	// NameAndScopeMap maps a lower-cased name and scope to a Name object.
	NameAndScopeMap map[NameScope]*Name

	// Codepage is an integer denoting the character set used for strings in this file.
	// For BIFF 8 and later, this will be 1200, meaning Unicode;
	// more precisely, UTF_16_LE.
	// For earlier versions, this is used to derive the appropriate encoding.
	Codepage *int

	// Encoding is the name of the encoding that was derived from the codepage.
	Encoding string

	// Countries is a tuple containing the telephone country code for:
	// [0]: the user-interface setting when the file was created.
	// [1]: the regional settings.
	Countries [2]int

	// UserName is what (if anything) is recorded as the name of the last user to save the file.
	UserName string

	// FontList is a list of Font class instances, each corresponding to a FONT record.
	FontList []*Font

	// XFList is a list of XF class instances, each corresponding to an XF record.
	XFList []*XF

	// FormatList is a list of Format objects, each corresponding to a FORMAT record.
	FormatList []*Format

	// FormatMap is the mapping from XF.FormatKey to Format object.
	FormatMap map[int]*Format

	// StyleNameMap provides access via name to the extended format information.
	StyleNameMap map[string][2]int // maps name to (built_in, xf_index)

	// ColourMap provides definitions for colour indexes.
	ColourMap map[int][3]int // maps index to (red, green, blue)

	// PaletteRecord contains RGB values if the user has changed any colours.
	PaletteRecord [][3]int

	// RichTextRunListMap maps an SST index to its formatting runs.
	// Populated only when FormattingInfo is set.
	RichTextRunListMap map[int][]RichTextRun

	// LoadTimeStage1 is the time taken to open the container and locate the workbook stream.
	LoadTimeStage1 time.Duration

	// LoadTimeStage2 is the time taken to parse the workbook globals (and, in eager mode, the sheets).
	LoadTimeStage2 time.Duration

	opts     OpenWorkbookOptions
	logger   *zap.Logger
	encoding encoding.Encoding

	store   *SectorStore
	compdoc *CompDoc
	stream  *Stream
	xlsx    *xlsxBook

	sheetList       []*Sheet
	sheetNames      []string
	sheetAbsPosn    []int
	sheetVisibility []int
	sheetTypes      []int
	sharedStrings   []string

	supbookTypes     []int
	supbookLocalsInx int
	supbookAddinsInx int
	externsheetInfo  []externSheet
	externNames      map[int][]string

	closed bool
}

// OpenWorkbookOptions contains options for opening a workbook.
type OpenWorkbookOptions struct {
	// Logger receives warnings about recoverable corruption and debug
	// traces of the record parse. Defaults to a no-op logger.
	Logger *zap.Logger

	// UseMmap memory-maps the file instead of reading it into memory.
	// Ignored by OpenWorkbookBytes.
	UseMmap bool

	// EncodingOverride is used to overcome missing or bad codepage information in older-version files.
	EncodingOverride string

	// FormattingInfo: The default is false, which saves memory.
	// When true, blank cells, rich text runs, row/column info and merged
	// ranges are retained.
	FormattingInfo bool

	// OnDemand governs whether sheets are all loaded initially or when demanded by the caller.
	OnDemand bool

	// RaggedRows: The default of false means all rows are padded out with empty cells.
	// True means that there are no empty cells at the ends of rows.
	RaggedRows bool

	// IgnoreWorkbookCorruption allows to read corrupted workbooks.
	// When false you may face CorruptContainerError on reused sectors.
	// When true that check is skipped; chain walks stay bounded.
	IgnoreWorkbookCorruption bool
}

func (o *OpenWorkbookOptions) withDefaults() OpenWorkbookOptions {
	var out OpenWorkbookOptions
	if o != nil {
		out = *o
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	return out
}

// OpenWorkbook opens a spreadsheet file for data extraction.
// Legacy compound-file workbooks and xlsx workbooks are supported.
func OpenWorkbook(filename string, options *OpenWorkbookOptions) (*Book, error) {
	opts := options.withDefaults()

	fileFormat, err := InspectFormat(filename, nil)
	if err != nil {
		return nil, err
	}
	switch fileFormat {
	case "xlsx":
		return openXlsx(filename, nil, opts)
	case "xls", "":
		// unknown content falls through to the container check
	default:
		return nil, NewXLRDError("%s; not supported", FileFormatDescriptions[fileFormat])
	}

	var store *SectorStore
	if opts.UseMmap {
		store, err = OpenMappedStore(filename)
		if err != nil {
			return nil, fmt.Errorf("map %s: %w", filename, err)
		}
	} else {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
		store = NewSectorStore(data, 512)
	}
	return openXLS(store, opts)
}

// OpenWorkbookBytes opens a workbook held in memory.
func OpenWorkbookBytes(content []byte, options *OpenWorkbookOptions) (*Book, error) {
	opts := options.withDefaults()
	fileFormat, err := InspectFormat("", content)
	if err != nil {
		return nil, err
	}
	switch fileFormat {
	case "xlsx":
		return openXlsx("", content, opts)
	case "xls", "":
	default:
		return nil, NewXLRDError("%s; not supported", FileFormatDescriptions[fileFormat])
	}
	return openXLS(NewSectorStore(content, 512), opts)
}

func newBook(opts OpenWorkbookOptions) *Book {
	return &Book{
		opts:             opts,
		logger:           opts.Logger,
		supbookLocalsInx: -1,
		supbookAddinsInx: -1,
	}
}

// openXLS takes ownership of store: it is closed on every error path.
func openXLS(store *SectorStore, opts OpenWorkbookOptions) (*Book, error) {
	t0 := time.Now()
	bk := newBook(opts)
	bk.store = store

	cd, err := NewCompDoc(store, &CompDocOptions{
		Logger:                   opts.Logger,
		IgnoreWorkbookCorruption: opts.IgnoreWorkbookCorruption,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	bk.compdoc = cd

	for _, qname := range []string{"Workbook", "Book"} {
		bk.stream, err = cd.LocateNamedStream(qname)
		if err != nil {
			bk.Close()
			return nil, err
		}
		if bk.stream != nil {
			break
		}
	}
	if bk.stream == nil {
		bk.Close()
		return nil, NewXLRDError("Can't find workbook in OLE2 compound document")
	}
	bk.LoadTimeStage1 = time.Since(t0)

	t1 := time.Now()
	if err := bk.parseGlobals(); err != nil {
		bk.Close()
		return nil, err
	}
	if !opts.OnDemand {
		for _, sh := range bk.sheetList {
			sh.ensureLoaded()
		}
	}
	bk.LoadTimeStage2 = time.Since(t1)
	bk.logger.Debug("workbook opened",
		zap.String("biff", BiffTextFromNum(bk.BiffVersion)),
		zap.Int("sheets", bk.NSheets),
		zap.Bool("mapped", store.Mapped()),
		zap.Duration("stage1", bk.LoadTimeStage1),
		zap.Duration("stage2", bk.LoadTimeStage2))
	return bk, nil
}

// getBOF reads the BOF record at the reader's position and returns the BIFF
// version. rqdStream is the substream type expected.
func (b *Book) getBOF(rr *RecordReader, rqdStream int) (int, error) {
	rec, err := rr.NextPhysical()
	if err == io.EOF {
		return 0, NewXLRDError("Expected BOF record; met end of file")
	}
	if err != nil {
		return 0, err
	}
	expectedLen, ok := boflen[rec.Code]
	if !ok {
		return 0, NewXLRDError("Expected BOF record; found 0x%04x", rec.Code)
	}
	if len(rec.Data) < 4 || len(rec.Data) > 20 {
		return 0, NewXLRDError("Invalid length (%d) for BOF record type 0x%04x", len(rec.Data), rec.Code)
	}
	data := rec.Data
	if len(data) < expectedLen {
		data = append(append([]byte(nil), data...), make([]byte, expectedLen-len(data))...)
	}

	version1 := rec.Code >> 8
	version2 := binary.LittleEndian.Uint16(data[0:2])
	streamtype := int(binary.LittleEndian.Uint16(data[2:4]))

	var version int
	switch version1 {
	case 0x08:
		build := binary.LittleEndian.Uint16(data[4:6])
		year := binary.LittleEndian.Uint16(data[6:8])
		switch version2 {
		case 0x0600:
			version = 80
		case 0x0500:
			if year < 1994 || build == 2412 || build == 3218 || build == 3321 {
				version = 50
			} else {
				version = 70
			}
		default:
			version = 21
		}
	case 0x04:
		version = 40
	case 0x02:
		version = 30
	default:
		version = 20
	}

	if streamtype == rqdStream {
		return version, nil
	}
	if version >= 50 && streamtype == XL_WORKBOOK_GLOBALS_4W {
		return 0, NewXLRDError("Workspace file -- no spreadsheet data")
	}
	return 0, NewXLRDError("BOF not workbook/worksheet: op=0x%04x vers=0x%04x strm=0x%04x -> BIFF%s",
		rec.Code, version2, streamtype, BiffTextFromNum(version))
}

// parseGlobals reads the workbook globals substream up to its EOF record and
// leaves every shared table populated.
func (b *Book) parseGlobals() error {
	rr := NewRecordReader(b.stream, 0)
	version, err := b.getBOF(rr, XL_WORKBOOK_GLOBALS)
	if err != nil {
		return err
	}
	supported := false
	for _, v := range SupportedVersions {
		if v == version {
			supported = true
			break
		}
	}
	if !supported {
		return NewXLRDError("BIFF version %s is not supported", BiffTextFromNum(version))
	}
	b.BiffVersion = version
	b.initializeFormatInfo()
	if err := b.deriveEncoding(); err != nil {
		return err
	}

	for {
		rec, err := rr.Next()
		if err == io.EOF {
			b.logger.Warn("workbook globals end without an EOF record")
			break
		}
		if err != nil {
			return err
		}
		if rec.Code == XL_EOF {
			break
		}
		if err := b.handleGlobalsRecord(rec); err != nil {
			return err
		}
	}

	b.namesEpilogue()
	b.NSheets = len(b.sheetList)
	return nil
}

func (b *Book) handleGlobalsRecord(rec *Record) error {
	switch rec.Code {
	case XL_FILEPASS:
		return &EncryptedContainerError{Message: "Workbook is encrypted"}
	case XL_CODEPAGE:
		if len(rec.Data) >= 2 {
			cp := int(binary.LittleEndian.Uint16(rec.Data))
			b.Codepage = &cp
			return b.deriveEncoding()
		}
	case XL_DATEMODE:
		if len(rec.Data) >= 2 {
			b.Datemode = int(binary.LittleEndian.Uint16(rec.Data))
		}
	case XL_COUNTRY:
		if len(rec.Data) >= 4 {
			b.Countries[0] = int(binary.LittleEndian.Uint16(rec.Data[0:]))
			b.Countries[1] = int(binary.LittleEndian.Uint16(rec.Data[2:]))
		}
	case XL_WRITEACCESS:
		b.handleWriteAccess(rec.Data)
	case XL_BOUNDSHEET:
		return b.handleBoundsheet(rec)
	case XL_SST:
		strs, runs, err := unpackSST(rec, b.opts.FormattingInfo)
		if err != nil {
			return err
		}
		b.sharedStrings = strs
		b.RichTextRunListMap = runs
	case XL_FONT:
		return b.handleFont(rec)
	case XL_FORMAT:
		return b.handleFormat(rec)
	case XL_XF:
		return b.handleXF(rec)
	case XL_STYLE:
		return b.handleStyle(rec)
	case XL_PALETTE:
		return b.handlePalette(rec)
	case XL_NAME:
		return b.handleName(rec)
	case XL_SUPBOOK:
		b.handleSupbook(rec)
	case XL_EXTERNNAME:
		b.handleExternName(rec)
	case XL_EXTERNSHEET:
		b.handleExternsheet(rec)
	default:
		b.logger.Debug("skipping globals record",
			zap.String("record", RecordName(rec.Code)), zap.Int("offset", rec.Offset))
	}
	return nil
}

func (b *Book) handleBoundsheet(rec *Record) error {
	data := rec.Data
	if len(data) < 7 {
		return &MalformedRecordError{Offset: rec.Offset, Code: rec.Code, Message: "BOUNDSHEET record too short"}
	}
	offset := int(int32(binary.LittleEndian.Uint32(data[0:4])))
	visibility := int(data[4])
	sheetType := int(data[5])
	name, _, err := b.unpackText(data, 6, 1)
	if err != nil {
		return &MalformedRecordError{Offset: rec.Offset, Code: rec.Code, Message: err.Error()}
	}
	if offset < 0 || offset >= b.stream.Len() {
		b.logger.Warn("sheet offset outside the workbook stream",
			zap.String("sheet", name), zap.Int("offset", offset))
	}
	idx := len(b.sheetList)
	b.sheetNames = append(b.sheetNames, name)
	b.sheetAbsPosn = append(b.sheetAbsPosn, offset)
	b.sheetVisibility = append(b.sheetVisibility, visibility)
	b.sheetTypes = append(b.sheetTypes, sheetType)
	b.sheetList = append(b.sheetList, newSheet(b, idx, name, offset, visibility, sheetType))
	return nil
}

func (b *Book) handleWriteAccess(data []byte) {
	var (
		s   string
		err error
	)
	if b.BiffVersion < BIFF_FIRST_UNICODE {
		if len(data) == 0 {
			return
		}
		s, _, err = UnpackStringUpdatePos(data, 0, b.encoding, 1, -1)
	} else {
		s, _, err = UnpackUnicodeUpdatePos(data, 0, 2, -1)
	}
	if err != nil {
		b.logger.Debug("unreadable WRITEACCESS record", zap.Error(err))
		return
	}
	b.UserName = trimRight(s)
}

func trimRight(s string) string {
	end := len(s)
	for end > 0 && (s[end-1] == ' ' || s[end-1] == 0) {
		end--
	}
	return s[:end]
}

// deriveEncoding sets the text encoding from the override, the codepage, or
// the BIFF version default.
func (b *Book) deriveEncoding() error {
	name := b.opts.EncodingOverride
	switch {
	case name != "":
	case b.Codepage == nil:
		if b.BiffVersion < 80 {
			name = "iso-8859-1"
		} else {
			name = "utf_16_le"
		}
	default:
		cp := *b.Codepage
		if n, ok := EncodingFromCodepage[cp]; ok {
			name = n
		} else if cp >= 300 && cp <= 1999 {
			name = fmt.Sprintf("cp%d", cp)
		} else if b.BiffVersion >= 80 {
			name = "utf_16_le"
		} else {
			name = fmt.Sprintf("unknown_codepage_%d", cp)
		}
	}
	enc, err := LookupEncoding(name)
	if err != nil {
		if b.BiffVersion >= 80 {
			// BIFF8 strings are self-describing; the codepage only matters for odd records
			b.logger.Warn("unknown codepage encoding; strings are Unicode anyway", zap.String("encoding", name))
			b.Encoding = name
			return nil
		}
		return err
	}
	b.Encoding = name
	b.encoding = enc
	return nil
}

// Sheets returns all sheets in the book, loading any that are not resident.
func (b *Book) Sheets() []*Sheet {
	for _, sh := range b.sheetList {
		sh.ensureLoaded()
	}
	return b.sheetList
}

// SheetByIndex returns a sheet by its index, loading it if necessary.
// A sheet whose records could not be decoded is still returned; see Sheet.Err.
func (b *Book) SheetByIndex(sheetx int) (*Sheet, error) {
	if sheetx < 0 || sheetx >= len(b.sheetList) {
		return nil, NewXLRDError("sheet index %d out of range", sheetx)
	}
	if b.closed {
		return nil, NewXLRDError("workbook is closed")
	}
	sh := b.sheetList[sheetx]
	sh.ensureLoaded()
	return sh, nil
}

// SheetByName returns a sheet by its name.
func (b *Book) SheetByName(sheetName string) (*Sheet, error) {
	sheetx, err := b.sheetIndex(sheetName)
	if err != nil {
		return nil, err
	}
	return b.SheetByIndex(sheetx)
}

func (b *Book) sheetIndex(sheetName string) (int, error) {
	for i, name := range b.sheetNames {
		if name == sheetName {
			return i, nil
		}
	}
	return -1, fmt.Errorf("no sheet named <%s>: %w", sheetName, ErrSheetNotFound)
}

func (b *Book) resolveSheet(sheetNameOrIndex interface{}) (int, error) {
	switch k := sheetNameOrIndex.(type) {
	case int:
		if k < 0 || k >= len(b.sheetList) {
			return -1, NewXLRDError("sheet index %d out of range", k)
		}
		return k, nil
	case string:
		return b.sheetIndex(k)
	default:
		return -1, NewXLRDError("invalid key type %T for sheet access", sheetNameOrIndex)
	}
}

// OnDemand reports whether sheets are loaded only when first accessed.
func (b *Book) OnDemand() bool {
	return b.opts.OnDemand
}

// SheetNames returns a list of all sheet names.
func (b *Book) SheetNames() []string {
	return b.sheetNames
}

// SheetLoaded reports whether the sheet's cells are resident.
func (b *Book) SheetLoaded(sheetNameOrIndex interface{}) (bool, error) {
	sheetx, err := b.resolveSheet(sheetNameOrIndex)
	if err != nil {
		return false, err
	}
	return b.sheetList[sheetx].State() == SheetLoaded, nil
}

// UnloadSheet releases a sheet's cells. The next access re-parses them.
func (b *Book) UnloadSheet(sheetNameOrIndex interface{}) error {
	sheetx, err := b.resolveSheet(sheetNameOrIndex)
	if err != nil {
		return err
	}
	b.sheetList[sheetx].Release()
	return nil
}

// ResidentCells counts the cells currently held in memory across all sheets.
func (b *Book) ResidentCells() int {
	n := 0
	for _, sh := range b.sheetList {
		n += sh.residentCells()
	}
	return n
}

// ReleaseResources drops the container and the shared string table. Sheets
// that are loaded stay readable; other sheets can no longer be loaded.
func (b *Book) ReleaseResources() {
	b.sharedStrings = nil
	if err := b.closeContainer(); err != nil {
		b.logger.Warn("releasing container", zap.Error(err))
	}
}

// Close releases the container, unmapping the file if it was mapped. It is
// safe to call more than once.
func (b *Book) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	for _, sh := range b.sheetList {
		sh.Release()
	}
	return b.closeContainer()
}

func (b *Book) closeContainer() error {
	var errs []error
	if b.xlsx != nil {
		errs = append(errs, b.xlsx.Close())
	}
	if b.compdoc != nil {
		errs = append(errs, b.compdoc.Close())
	} else if b.store != nil {
		errs = append(errs, b.store.Close())
	}
	b.xlsx = nil
	b.compdoc = nil
	b.store = nil
	b.stream = nil
	return errors.Join(errs...)
}
