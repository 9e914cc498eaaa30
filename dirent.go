package fat32

import "encoding/binary"

// Directory slots are fixed 32-byte records. The first name byte doubles as
// a slot marker.
const (
	slotSize      = 32
	slotFree      = 0xE5 // deleted entry, reusable
	slotEnd       = 0x00 // end of directory, no live entries beyond
	slotKanjiE5   = 0x05 // stored in place of a literal 0xE5 first byte
	slotsPerSector = SectorSize / slotSize
)

// Short directory entry field offsets.
const (
	sfnNameOff      = 0
	sfnAttrOff      = 11
	sfnNTResOff     = 12
	sfnCrtTime10Off = 13
	sfnCrtTimeOff   = 14
	sfnCrtDateOff   = 16
	sfnAccDateOff   = 18
	sfnClusHIOff    = 20
	sfnModTimeOff   = 22
	sfnModDateOff   = 24
	sfnClusLOOff    = 26
	sfnSizeOff      = 28
)

// Long filename entry field offsets. An LFN slot shares the 32-byte shape of
// a short entry and is distinguished by attribute 0x0F.
const (
	lfnSeqOff    = 0
	lfnName1Off  = 1 // 5 UTF-16 units
	lfnAttrOff   = 11
	lfnTypeOff   = 12
	lfnChksumOff = 13
	lfnName2Off  = 14 // 6 UTF-16 units
	lfnClusLOOff = 26 // always zero
	lfnName3Off  = 28 // 2 UTF-16 units

	// lfnLastSeq flags the fragment holding the tail of the name, which is
	// stored first on disk. The low bits are the 1-based fragment ordinal.
	lfnLastSeq = 0x40
	lfnSeqMask = 0x3F

	// UTF-16 units carried per fragment and the protocol cap on fragments.
	lfnUnitsPerSlot = 13
	maxLFNFragments = 20
)

// maxLongName is the longest logical filename the driver accepts or decodes.
const maxLongName = 255

type attr uint8

const (
	attrReadOnly  attr = 1 << 0
	attrHidden    attr = 1 << 1
	attrSystem    attr = 1 << 2
	attrVolumeID  attr = 1 << 3
	attrDirectory attr = 1 << 4
	attrArchive   attr = 1 << 5
	attrLongName  attr = attrReadOnly | attrHidden | attrSystem | attrVolumeID
)

// IsLongName reports whether the slot carrying this attribute byte is a long
// filename fragment rather than an 8.3 entry.
func (a attr) IsLongName() bool { return a&attrLongName == attrLongName }

// IsDir reports whether the entry names a subdirectory.
func (a attr) IsDir() bool { return a&attrDirectory != 0 }

// IsVolumeLabel reports whether the entry is the volume label.
func (a attr) IsVolumeLabel() bool { return a&attrVolumeID != 0 }

// dirSlot is a short (8.3) directory entry view over 32 raw bytes.
type dirSlot struct {
	data []byte
}

func (ds *dirSlot) marker() byte { return ds.data[sfnNameOff] }

// ShortName returns the raw 11-byte space-padded 8.3 name.
func (ds *dirSlot) ShortName() (name [11]byte) {
	copy(name[:], ds.data[sfnNameOff:])
	if name[0] == slotKanjiE5 {
		name[0] = slotFree
	}
	return name
}

func (ds *dirSlot) SetShortName(name [11]byte) {
	if name[0] == slotFree {
		name[0] = slotKanjiE5
	}
	copy(ds.data[sfnNameOff:sfnNameOff+11], name[:])
}

func (ds *dirSlot) Attributes() attr     { return attr(ds.data[sfnAttrOff]) }
func (ds *dirSlot) SetAttributes(a attr) { ds.data[sfnAttrOff] = byte(a) }

// Cluster returns the entry's start cluster from its split high/low fields.
func (ds *dirSlot) Cluster() uint32 {
	return uint32(binary.LittleEndian.Uint16(ds.data[sfnClusHIOff:]))<<16 |
		uint32(binary.LittleEndian.Uint16(ds.data[sfnClusLOOff:]))
}

func (ds *dirSlot) SetCluster(cluster uint32) {
	binary.LittleEndian.PutUint16(ds.data[sfnClusHIOff:], uint16(cluster>>16))
	binary.LittleEndian.PutUint16(ds.data[sfnClusLOOff:], uint16(cluster))
}

func (ds *dirSlot) Size() uint32 {
	return binary.LittleEndian.Uint32(ds.data[sfnSizeOff:])
}

func (ds *dirSlot) SetSize(size uint32) {
	binary.LittleEndian.PutUint32(ds.data[sfnSizeOff:], size)
}

func (ds *dirSlot) ModifiedAt() datetime {
	return datetime{
		time: binary.LittleEndian.Uint16(ds.data[sfnModTimeOff:]),
		date: binary.LittleEndian.Uint16(ds.data[sfnModDateOff:]),
	}
}

func (ds *dirSlot) SetModifiedAt(dt datetime) {
	binary.LittleEndian.PutUint16(ds.data[sfnModTimeOff:], dt.time)
	binary.LittleEndian.PutUint16(ds.data[sfnModDateOff:], dt.date)
}

// clear zeroes the whole slot before building a fresh entry.
func (ds *dirSlot) clear() {
	for i := range ds.data[:slotSize] {
		ds.data[i] = 0
	}
}

// lfnSlot is a long filename fragment view over 32 raw bytes.
type lfnSlot struct {
	data []byte
}

func (ls *lfnSlot) Sequence() byte        { return ls.data[lfnSeqOff] }
func (ls *lfnSlot) SetSequence(seq byte)  { ls.data[lfnSeqOff] = seq }
func (ls *lfnSlot) Checksum() byte        { return ls.data[lfnChksumOff] }
func (ls *lfnSlot) SetChecksum(sum byte)  { ls.data[lfnChksumOff] = sum }

// Ordinal returns the 1-based fragment position within the name.
func (ls *lfnSlot) Ordinal() int { return int(ls.Sequence() & lfnSeqMask) }

// IsLast reports whether this fragment holds the tail of the name.
func (ls *lfnSlot) IsLast() bool { return ls.Sequence()&lfnLastSeq != 0 }

// Units copies the fragment's 13 UTF-16 code units out of the three
// name sub-fields.
func (ls *lfnSlot) Units() (units [lfnUnitsPerSlot]uint16) {
	for i := 0; i < 5; i++ {
		units[i] = binary.LittleEndian.Uint16(ls.data[lfnName1Off+2*i:])
	}
	for i := 0; i < 6; i++ {
		units[5+i] = binary.LittleEndian.Uint16(ls.data[lfnName2Off+2*i:])
	}
	for i := 0; i < 2; i++ {
		units[11+i] = binary.LittleEndian.Uint16(ls.data[lfnName3Off+2*i:])
	}
	return units
}

// SetUnits splits 13 UTF-16 code units across the three name sub-fields and
// fills in the fixed LFN attribute, type and cluster fields.
func (ls *lfnSlot) SetUnits(units [lfnUnitsPerSlot]uint16) {
	for i := 0; i < 5; i++ {
		binary.LittleEndian.PutUint16(ls.data[lfnName1Off+2*i:], units[i])
	}
	for i := 0; i < 6; i++ {
		binary.LittleEndian.PutUint16(ls.data[lfnName2Off+2*i:], units[5+i])
	}
	for i := 0; i < 2; i++ {
		binary.LittleEndian.PutUint16(ls.data[lfnName3Off+2*i:], units[11+i])
	}
	ls.data[lfnAttrOff] = byte(attrLongName)
	ls.data[lfnTypeOff] = 0
	binary.LittleEndian.PutUint16(ls.data[lfnClusLOOff:], 0)
}
