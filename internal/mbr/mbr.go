// Package mbr implements a Master Boot Record partition table parser and
// writer, limited to what a FAT32 volume mount needs: the boot signature,
// the four primary partition entries, and their boot indicator, type and
// start address.
package mbr

import (
	"encoding/binary"
	"errors"
)

const (
	tableOffset   = 446
	entryLen      = 16
	numEntries    = 4
	signatureOff  = 510
	BootSignature = 0xAA55
)

// ToBootSector views a raw sector as an MBR while keeping a reference to the
// original byte slice. The slice must be at least 512 bytes long.
func ToBootSector(sector []byte) (BootSector, error) {
	if len(sector) < 512 {
		return BootSector{}, errors.New("mbr: boot sector too short")
	}
	return BootSector{data: sector[:512:512]}, nil
}

// BootSector is a Master Boot Record.
type BootSector struct {
	data []byte
}

// Signature returns the two-byte signature at offset 510. A valid MBR
// carries 0xAA55.
func (mbr *BootSector) Signature() uint16 {
	return binary.LittleEndian.Uint16(mbr.data[signatureOff:])
}

// SetSignature writes the 0xAA55 boot signature.
func (mbr *BootSector) SetSignature() {
	binary.LittleEndian.PutUint16(mbr.data[signatureOff:], BootSignature)
}

// IsValid reports whether the sector carries the MBR signature and at least
// one partition entry with a non-zero type byte.
func (mbr *BootSector) IsValid() bool {
	if mbr.Signature() != BootSignature {
		return false
	}
	for i := 0; i < numEntries; i++ {
		pte := mbr.Partition(i)
		if pte.Type() != TypeUnused {
			return true
		}
	}
	return false
}

// Partition returns the idx'th partition table entry, idx in 0..3.
func (mbr *BootSector) Partition(idx int) PartitionEntry {
	if idx < 0 || idx >= numEntries {
		panic("mbr: invalid partition table index")
	}
	off := tableOffset + idx*entryLen
	var pte PartitionEntry
	copy(pte.data[:], mbr.data[off:off+entryLen])
	return pte
}

// SetPartition writes the idx'th partition table entry.
func (mbr *BootSector) SetPartition(idx int, pte PartitionEntry) {
	if idx < 0 || idx >= numEntries {
		panic("mbr: invalid partition table index")
	}
	off := tableOffset + idx*entryLen
	copy(mbr.data[off:off+entryLen], pte.data[:])
}

// PartitionEntry is one of the four 16-byte primary partition records.
type PartitionEntry struct {
	data [entryLen]byte
}

// MakePartition builds a partition entry from a boot indicator, type and LBA
// extent. CHS fields are left zero; modern readers ignore them.
func MakePartition(bootIndicator byte, t Type, startLBA, numLBA uint32) PartitionEntry {
	var pte PartitionEntry
	pte.data[0] = bootIndicator
	pte.data[4] = byte(t)
	binary.LittleEndian.PutUint32(pte.data[8:12], startLBA)
	binary.LittleEndian.PutUint32(pte.data[12:16], numLBA)
	return pte
}

// BootIndicator returns the first byte of the entry: 0x80 for the active
// partition, 0x00 for inactive. Any other value marks a malformed entry.
func (pte *PartitionEntry) BootIndicator() byte { return pte.data[0] }

// BootIndicatorValid reports whether the boot indicator is one of the two
// defined values.
func (pte *PartitionEntry) BootIndicatorValid() bool {
	return pte.data[0] == 0x00 || pte.data[0] == 0x80
}

// Type returns the partition type byte.
func (pte *PartitionEntry) Type() Type { return Type(pte.data[4]) }

// StartLBA returns the partition's first sector in logical block addressing.
func (pte *PartitionEntry) StartLBA() uint32 {
	return binary.LittleEndian.Uint32(pte.data[8:12])
}

// NumLBA returns the number of sectors in the partition.
func (pte *PartitionEntry) NumLBA() uint32 {
	return binary.LittleEndian.Uint32(pte.data[12:16])
}

// Type is the partition type byte of a partition table entry.
type Type byte

const (
	TypeUnused   Type = 0x00
	TypeFAT32CHS Type = 0x0B
	TypeFAT32LBA Type = 0x0C
	TypeGPT      Type = 0xEE
)

// IsFAT32 reports whether the type byte names a FAT32 partition under either
// addressing scheme.
func (t Type) IsFAT32() bool { return t == TypeFAT32CHS || t == TypeFAT32LBA }
