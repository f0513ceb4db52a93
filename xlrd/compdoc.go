package xlrd

import (
	"bytes"
	"encoding/binary"
	"strings"
	"unicode/utf16"

	"go.uber.org/zap"
)

// CompDocSignature is the magic cookie in the first 8 bytes of a compound file.
var CompDocSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// Special sector IDs.
const (
	EOCSID  = -2
	FREESID = -1
	SATSID  = -3
	MSATSID = -4
	EVILSID = -5
)

// Tags recorded in the seen table; stream chains use DID+seenStreamBase.
const (
	seenMSATX      = 1
	seenSAT        = 2
	seenDirectory  = 3
	seenSSCS       = 4
	seenSSAT       = 5
	seenStreamBase = 6
)

// Directory entry types.
const (
	DirEmpty   = 0
	DirStorage = 1
	DirStream  = 2
	DirRoot    = 5
)

// DirNode is one 128-byte entry of the compound file directory.
type DirNode struct {
	DID      int
	Name     string
	EType    int
	Colour   int
	LeftDID  int
	RightDID int
	ChildDID int
	FirstSID int
	TotSize  int
	Children []int
	Parent   int
}

func newDirNode(did int, dent []byte) *DirNode {
	cbufsize := int(binary.LittleEndian.Uint16(dent[64:66]))
	d := &DirNode{
		DID:      did,
		EType:    int(dent[66]),
		Colour:   int(dent[67]),
		LeftDID:  int(int32(binary.LittleEndian.Uint32(dent[68:72]))),
		RightDID: int(int32(binary.LittleEndian.Uint32(dent[72:76]))),
		ChildDID: int(int32(binary.LittleEndian.Uint32(dent[76:80]))),
		FirstSID: int(int32(binary.LittleEndian.Uint32(dent[116:120]))),
		TotSize:  int(int32(binary.LittleEndian.Uint32(dent[120:124]))),
		Parent:   -1,
	}
	if cbufsize >= 2 && cbufsize <= 64 {
		raw := dent[0 : cbufsize-2]
		u := make([]uint16, len(raw)/2)
		for i := range u {
			u[i] = binary.LittleEndian.Uint16(raw[2*i:])
		}
		d.Name = string(utf16.Decode(u))
	}
	return d
}

// CompDocOptions controls how a compound file is opened.
type CompDocOptions struct {
	Logger *zap.Logger

	// IgnoreWorkbookCorruption skips the sector reuse check on stream chains.
	// Chain walks remain bounded by the declared stream size.
	IgnoreWorkbookCorruption bool
}

// CompDoc is a parsed compound file: allocation tables, directory and the
// mini stream container. It reads from a SectorStore and never copies a
// regular stream whose sectors are adjacent.
type CompDoc struct {
	store  *SectorStore
	logger *zap.Logger
	ignore bool

	SectorSize       int
	MiniSectorSize   int
	MinSizeStdStream int

	SAT     []int
	SSAT    []int
	DirList []*DirNode

	sscs        *Stream
	streams     map[int]*Stream // by DID; a located chain stays marked in seen
	seen        []int
	memDataLen  int
	memDataSecs int
}

// NewCompDoc parses the header, allocation tables and directory held by store.
func NewCompDoc(store *SectorStore, opts *CompDocOptions) (*CompDoc, error) {
	if opts == nil {
		opts = &CompDocOptions{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mem := store.Bytes()
	if len(mem) < 512 || !bytes.Equal(mem[0:8], CompDocSignature) {
		return nil, &UnsupportedContainerError{Message: "not an OLE2 compound document"}
	}
	if mem[28] != 0xFE || mem[29] != 0xFF {
		return nil, &UnsupportedContainerError{Message: "expected little-endian byte order marker"}
	}

	cd := &CompDoc{store: store, logger: logger, ignore: opts.IgnoreWorkbookCorruption}

	ssz := int(binary.LittleEndian.Uint16(mem[30:32]))
	sssz := int(binary.LittleEndian.Uint16(mem[32:34]))
	if ssz > 20 {
		logger.Warn("sector size is preposterous; assuming 512", zap.Int("shift", ssz))
		ssz = 9
	}
	if sssz > ssz {
		logger.Warn("short stream sector size is preposterous; assuming 64", zap.Int("shift", sssz))
		sssz = 6
	}
	cd.SectorSize = 1 << ssz
	cd.MiniSectorSize = 1 << sssz
	store.setSectorSize(cd.SectorSize)

	hdr := make([]int, 8)
	for i := range hdr {
		hdr[i] = int(int32(binary.LittleEndian.Uint32(mem[44+4*i:])))
	}
	dirFirstSID := hdr[1]
	cd.MinSizeStdStream = hdr[3]
	ssatFirstSID, ssatTotSecs := hdr[4], hdr[5]
	msatxFirstSID, msatxTotSecs := hdr[6], hdr[7]

	secSize := cd.SectorSize
	cd.memDataLen = len(mem) - store.HeaderSize()
	if cd.memDataLen < 0 {
		cd.memDataLen = 0
	}
	cd.memDataSecs = (cd.memDataLen + secSize - 1) / secSize
	if cd.memDataLen%secSize != 0 {
		logger.Warn("file size is not the header plus a multiple of the sector size",
			zap.Int("size", len(mem)), zap.Int("sectorSize", secSize))
	}
	cd.seen = make([]int, cd.memDataSecs)

	if err := cd.buildSAT(mem, msatxFirstSID, msatxTotSecs); err != nil {
		return nil, err
	}
	if err := cd.buildDirectory(dirFirstSID); err != nil {
		return nil, err
	}
	if err := cd.buildMiniStream(ssatFirstSID, ssatTotSecs); err != nil {
		return nil, err
	}
	return cd, nil
}

// sidSector reads a whole sector as little-endian int32 SIDs.
func (cd *CompDoc) sidSector(sid int) ([]int, error) {
	sec, err := cd.store.Sector(sid)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(sec)/4)
	for i := range out {
		out[i] = int(int32(binary.LittleEndian.Uint32(sec[4*i:])))
	}
	return out, nil
}

func (cd *CompDoc) buildSAT(mem []byte, msatxFirstSID, msatxTotSecs int) error {
	msat := make([]int, 109)
	for i := range msat {
		msat[i] = int(int32(binary.LittleEndian.Uint32(mem[76+4*i:])))
	}

	if !(msatxTotSecs == 0 && (msatxFirstSID == EOCSID || msatxFirstSID == FREESID || msatxFirstSID == 0)) {
		sid := msatxFirstSID
		for sid != EOCSID && sid != FREESID && sid != MSATSID {
			if sid >= cd.memDataSecs {
				return newCorruptError("MSAT", "extension: accessing sector %d but only %d in file", sid, cd.memDataSecs)
			}
			if sid < 0 {
				return newCorruptError("MSAT", "extension: invalid sector id: %d", sid)
			}
			if cd.seen[sid] != 0 {
				return newCorruptError("", "MSAT corruption: seen[%d] == %d", sid, cd.seen[sid])
			}
			cd.seen[sid] = seenMSATX
			ext, err := cd.sidSector(sid)
			if err != nil {
				return err
			}
			msat = append(msat, ext[:len(ext)-1]...)
			sid = ext[len(ext)-1]
		}
	}

	truncWarned := false
	evil := false
	for i, msid := range msat {
		if msid == FREESID || msid == EOCSID {
			continue
		}
		if msid >= cd.memDataSecs {
			if !truncWarned {
				cd.logger.Warn("file is truncated, or OLE2 MSAT is corrupt",
					zap.Int("sector", msid), zap.Int("available", cd.memDataSecs))
				truncWarned = true
			}
			msat[i] = EVILSID
			evil = true
			continue
		}
		if msid < -2 {
			return newCorruptError("MSAT", "invalid sector id: %d", msid)
		}
		if cd.seen[msid] != 0 {
			return newCorruptError("", "MSAT extension corruption: seen[%d] == %d", msid, cd.seen[msid])
		}
		cd.seen[msid] = seenSAT
		entries, err := cd.sidSector(msid)
		if err != nil {
			return err
		}
		cd.SAT = append(cd.SAT, entries...)
	}
	if evil {
		for i := cd.memDataSecs; i < len(cd.SAT); i++ {
			cd.SAT[i] = EVILSID
		}
	}
	return nil
}

// chain walks a regular sector chain, marking each sector in the seen table.
func (cd *CompDoc) chain(name string, start, seenID int, checkSeen bool, limit int) ([]int, error) {
	var sids []int
	s := start
	for s >= 0 {
		if s >= cd.memDataSecs || s >= len(cd.SAT) {
			return nil, newCorruptError(name, "sector allocation table invalid entry (%d)", s)
		}
		if cd.seen[s] != 0 && checkSeen {
			return nil, newCorruptError("", "%s corruption: seen[%d] == %d", name, s, cd.seen[s])
		}
		cd.seen[s] = seenID
		sids = append(sids, s)
		if limit >= 0 && len(sids) > limit {
			return nil, newCorruptError("", "%s: size exceeds expected %d bytes; corrupt?", name, limit*cd.SectorSize)
		}
		s = cd.SAT[s]
	}
	if s != EOCSID {
		return nil, newCorruptError(name, "chain ends with sector id %d", s)
	}
	return sids, nil
}

// windows turns a sector chain into byte windows, merging adjacent sectors
// and truncating the last one to size.
func (cd *CompDoc) windows(sids []int, size int) ([][]byte, error) {
	mem := cd.store.Bytes()
	secSize := cd.SectorSize
	var out [][]byte
	start, end := -1, -1
	todo := size
	for i, s := range sids {
		grab := secSize
		if size >= 0 && grab > todo {
			grab = todo
		}
		if _, err := cd.store.span(s, grab); err != nil {
			return nil, err
		}
		pos := cd.store.Offset(s)
		if i > 0 && s == sids[i-1]+1 && end == pos {
			end += grab
		} else {
			if start >= 0 {
				out = append(out, mem[start:end:end])
			}
			start, end = pos, pos+grab
		}
		if size >= 0 {
			todo -= grab
		}
	}
	if start >= 0 {
		out = append(out, mem[start:end:end])
	}
	return out, nil
}

func (cd *CompDoc) buildDirectory(firstSID int) error {
	sids, err := cd.chain("directory", firstSID, seenDirectory, true, -1)
	if err != nil {
		return err
	}
	wins, err := cd.windows(sids, -1)
	if err != nil {
		return err
	}
	dbytes := newStream("directory", wins).Bytes()
	for pos := 0; pos+128 <= len(dbytes); pos += 128 {
		cd.DirList = append(cd.DirList, newDirNode(len(cd.DirList), dbytes[pos:pos+128]))
	}
	if len(cd.DirList) == 0 || cd.DirList[0].EType != DirRoot {
		return newCorruptError("directory", "missing root entry")
	}
	visited := make([]bool, len(cd.DirList))
	return cd.buildFamilyTree(0, cd.DirList[0].ChildDID, visited)
}

// buildFamilyTree attaches the sibling tree rooted at childDID to parentDID,
// in order, and recurses into storages.
func (cd *CompDoc) buildFamilyTree(parentDID, childDID int, visited []bool) error {
	if childDID < 0 {
		return nil
	}
	if childDID >= len(cd.DirList) {
		return newCorruptError("directory", "entry %d links to missing entry %d", parentDID, childDID)
	}
	if visited[childDID] {
		return newCorruptError("directory", "link cycle at entry %d", childDID)
	}
	visited[childDID] = true
	child := cd.DirList[childDID]
	if err := cd.buildFamilyTree(parentDID, child.LeftDID, visited); err != nil {
		return err
	}
	cd.DirList[parentDID].Children = append(cd.DirList[parentDID].Children, childDID)
	child.Parent = parentDID
	if err := cd.buildFamilyTree(parentDID, child.RightDID, visited); err != nil {
		return err
	}
	if child.EType == DirStorage {
		return cd.buildFamilyTree(childDID, child.ChildDID, visited)
	}
	return nil
}

func (cd *CompDoc) buildMiniStream(ssatFirstSID, ssatTotSecs int) error {
	root := cd.DirList[0]
	if root.FirstSID < 0 || root.TotSize == 0 {
		cd.sscs = newStream("SSCS", nil)
	} else {
		limit := (root.TotSize + cd.SectorSize - 1) / cd.SectorSize
		sids, err := cd.chain("SSCS", root.FirstSID, seenSSCS, true, limit)
		if err != nil {
			return err
		}
		wins, err := cd.windows(sids, root.TotSize)
		if err != nil {
			return err
		}
		cd.sscs = newStream("SSCS", wins)
	}

	if ssatTotSecs > 0 && root.TotSize == 0 {
		cd.logger.Warn("OLE2 inconsistency: SSCS size is 0 but SSAT size is non-zero")
	}
	if root.TotSize <= 0 {
		return nil
	}
	sid, nsecs := ssatFirstSID, ssatTotSecs
	for sid >= 0 && nsecs > 0 {
		if sid >= cd.memDataSecs || sid >= len(cd.SAT) {
			return newCorruptError("SSAT", "sector allocation table invalid entry (%d)", sid)
		}
		if cd.seen[sid] != 0 {
			return newCorruptError("", "SSAT corruption: seen[%d] == %d", sid, cd.seen[sid])
		}
		cd.seen[sid] = seenSSAT
		nsecs--
		entries, err := cd.sidSector(sid)
		if err != nil {
			return err
		}
		cd.SSAT = append(cd.SSAT, entries...)
		sid = cd.SAT[sid]
	}
	if nsecs != 0 || sid != EOCSID {
		return newCorruptError("SSAT", "last sid %d; remaining sectors %d", sid, nsecs)
	}
	return nil
}

func (cd *CompDoc) dirSearch(path []string, storageDID int) (*DirNode, error) {
	head, tail := path[0], path[1:]
	for _, child := range cd.DirList[storageDID].Children {
		d := cd.DirList[child]
		if !strings.EqualFold(d.Name, head) {
			continue
		}
		switch d.EType {
		case DirStream:
			return d, nil
		case DirStorage:
			if len(tail) == 0 {
				return nil, NewXLRDError("requested component is a 'storage'")
			}
			return cd.dirSearch(tail, child)
		default:
			return nil, NewXLRDError("requested stream is not a 'user stream'")
		}
	}
	return nil, nil
}

// LocateNamedStream finds the stream at the '/'-separated path (matched
// case-insensitively) and returns it, or nil when there is no such entry.
func (cd *CompDoc) LocateNamedStream(qname string) (*Stream, error) {
	d, err := cd.dirSearch(strings.Split(qname, "/"), 0)
	if err != nil || d == nil {
		return nil, err
	}
	if d.TotSize > cd.memDataLen {
		return nil, newCorruptError("", "%s stream length (%d bytes) > file data size (%d bytes)", qname, d.TotSize, cd.memDataLen)
	}
	if st, ok := cd.streams[d.DID]; ok {
		return st, nil
	}
	var st *Stream
	if d.TotSize >= cd.MinSizeStdStream {
		st, err = cd.locateStream(qname, d)
	} else {
		st, err = cd.locateMiniStream(qname, d)
	}
	if err != nil {
		return nil, err
	}
	if cd.streams == nil {
		cd.streams = make(map[int]*Stream)
	}
	cd.streams[d.DID] = st
	return st, nil
}

func (cd *CompDoc) locateStream(qname string, d *DirNode) (*Stream, error) {
	if d.FirstSID < 0 {
		return nil, newCorruptError(qname, "start sid (%d) is negative", d.FirstSID)
	}
	foundLimit := (d.TotSize + cd.SectorSize - 1) / cd.SectorSize
	sids, err := cd.chain(qname, d.FirstSID, d.DID+seenStreamBase, !cd.ignore, foundLimit)
	if err != nil {
		return nil, err
	}
	if len(sids) != foundLimit {
		return nil, newCorruptError(qname, "expected %d sectors, found %d", foundLimit, len(sids))
	}
	wins, err := cd.windows(sids, d.TotSize)
	if err != nil {
		return nil, err
	}
	return newStream(qname, wins), nil
}

func (cd *CompDoc) locateMiniStream(qname string, d *DirNode) (*Stream, error) {
	name := qname + " (from SSCS)"
	mss := cd.MiniSectorSize
	foundLimit := (d.TotSize + mss - 1) / mss
	var wins [][]byte
	todo := d.TotSize
	s := d.FirstSID
	found := 0
	for s >= 0 {
		if s >= len(cd.SSAT) {
			return nil, newCorruptError(name, "sector allocation table invalid entry (%d)", s)
		}
		found++
		if found > foundLimit {
			return nil, newCorruptError("", "%s: size exceeds expected %d bytes; corrupt?", name, foundLimit*mss)
		}
		grab := mss
		if grab > todo {
			grab = todo
		}
		w, err := cd.sscs.Slice(s*mss, grab)
		if err != nil {
			return nil, newCorruptError(name, "mini sector %d lies outside the mini stream", s)
		}
		wins = append(wins, w)
		todo -= grab
		s = cd.SSAT[s]
	}
	if s != EOCSID {
		return nil, newCorruptError(name, "chain ends with sector id %d", s)
	}
	if todo != 0 {
		return nil, newCorruptError(name, "expected %d bytes, found %d", d.TotSize, d.TotSize-todo)
	}
	return newStream(qname, wins), nil
}

// Close releases the underlying sector store.
func (cd *CompDoc) Close() error {
	return cd.store.Close()
}
