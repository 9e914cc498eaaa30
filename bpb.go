package fat32

import (
	"encoding/binary"
	"time"
)

// Byte offsets into the boot sector / BIOS Parameter Block, FAT32 layout.
const (
	bsJmpBoot      = 0
	bsOEMName      = 3
	bpbBytsPerSec  = 11
	bpbSecPerClus  = 13
	bpbRsvdSecCnt  = 14
	bpbNumFATs     = 16
	bpbRootEntCnt  = 17
	bpbTotSec16    = 19
	bpbMedia       = 21
	bpbFATSz16     = 22
	bpbHiddSec     = 28
	bpbTotSec32    = 32
	bpbFATSz32     = 36
	bpbFSVer32     = 42
	bpbRootClus32  = 44
	bpbFSInfo32    = 48
	bpbBkBootSec   = 50
	bsDrvNum32     = 64
	bsBootSig32    = 66
	bsVolID32      = 67
	bsVolLab32     = 71
	bsFilSysType32 = 82
	bs55AA         = 510
)

// FSInfo sector field offsets and signatures.
const (
	fsiLeadSig    = 0
	fsiStrucSig   = 0x1E4
	fsiFreeCount  = 0x1E8
	fsiNxtFree    = 0x1EC
	fsiTrailSig   = 0x1FC
	fsiLeadSigVal  = 0x41615252
	fsiStrucSigVal = 0x61417272
	fsiTrailSigVal = 0xAA550000
	// Free-cluster count value meaning "unknown".
	fsiUnknownFree = 0xFFFFFFFF
)

const bootSignature = 0xAA55

// bootSector is a FAT32 boot sector / BPB view over a raw sector buffer.
type bootSector struct {
	data []byte
}

// SectorSize returns the size of a sector in bytes.
func (bs *bootSector) SectorSize() uint16 {
	return binary.LittleEndian.Uint16(bs.data[bpbBytsPerSec:])
}

// SetSectorSize sets the size of a sector in bytes.
func (bs *bootSector) SetSectorSize(size uint16) {
	binary.LittleEndian.PutUint16(bs.data[bpbBytsPerSec:], size)
}

// SectorsPerFAT returns the number of sectors per File Allocation Table.
func (bs *bootSector) SectorsPerFAT() uint32 {
	return binary.LittleEndian.Uint32(bs.data[bpbFATSz32:])
}

// SetSectorsPerFAT sets the number of sectors per File Allocation Table.
// The 16-bit field is zeroed as required for FAT32.
func (bs *bootSector) SetSectorsPerFAT(fatsz uint32) {
	binary.LittleEndian.PutUint16(bs.data[bpbFATSz16:], 0)
	binary.LittleEndian.PutUint32(bs.data[bpbFATSz32:], fatsz)
}

// SectorsPerFAT16 returns the legacy 16-bit FAT size field, which must be
// zero on FAT32 volumes.
func (bs *bootSector) SectorsPerFAT16() uint16 {
	return binary.LittleEndian.Uint16(bs.data[bpbFATSz16:])
}

// NumberOfFATs returns the number of File Allocation Tables. Should be 1 or 2.
func (bs *bootSector) NumberOfFATs() uint8 {
	return bs.data[bpbNumFATs]
}

// SetNumberOfFATs sets the number of FATs.
func (bs *bootSector) SetNumberOfFATs(nfats uint8) {
	bs.data[bpbNumFATs] = nfats
}

// SectorsPerCluster returns the number of sectors per cluster.
// Should be a power of 2 and not larger than 128.
func (bs *bootSector) SectorsPerCluster() uint8 {
	return bs.data[bpbSecPerClus]
}

// SetSectorsPerCluster sets the number of sectors per cluster.
func (bs *bootSector) SetSectorsPerCluster(spclus uint8) {
	bs.data[bpbSecPerClus] = spclus
}

// ReservedSectors returns the number of reserved sectors at the beginning of
// the volume. Must be at least 1; usually 32 on FAT32.
func (bs *bootSector) ReservedSectors() uint16 {
	return binary.LittleEndian.Uint16(bs.data[bpbRsvdSecCnt:])
}

// SetReservedSectors sets the number of reserved sectors.
func (bs *bootSector) SetReservedSectors(rsvd uint16) {
	binary.LittleEndian.PutUint16(bs.data[bpbRsvdSecCnt:], rsvd)
}

// TotalSectors returns the 32-bit total sector count of the volume.
func (bs *bootSector) TotalSectors() uint32 {
	return binary.LittleEndian.Uint32(bs.data[bpbTotSec32:])
}

// SetTotalSectors sets the total sector count. The 16-bit field is zeroed as
// required for FAT32.
func (bs *bootSector) SetTotalSectors(totsec uint32) {
	binary.LittleEndian.PutUint16(bs.data[bpbTotSec16:], 0)
	binary.LittleEndian.PutUint32(bs.data[bpbTotSec32:], totsec)
}

// RootCluster returns the first cluster of the root directory.
func (bs *bootSector) RootCluster() uint32 {
	return binary.LittleEndian.Uint32(bs.data[bpbRootClus32:])
}

// SetRootCluster sets the first cluster of the root directory.
func (bs *bootSector) SetRootCluster(cluster uint32) {
	binary.LittleEndian.PutUint32(bs.data[bpbRootClus32:], cluster)
}

// FSInfoSector returns the sector number of the FS Information Sector,
// relative to the volume start. Expect 1 for FAT32.
func (bs *bootSector) FSInfoSector() uint16 {
	return binary.LittleEndian.Uint16(bs.data[bpbFSInfo32:])
}

// SetFSInfoSector sets the FS Information Sector number.
func (bs *bootSector) SetFSInfoSector(sector uint16) {
	binary.LittleEndian.PutUint16(bs.data[bpbFSInfo32:], sector)
}

// BootSignature returns the signature at offset 510, expected 0xAA55.
func (bs *bootSector) BootSignature() uint16 {
	return binary.LittleEndian.Uint16(bs.data[bs55AA:])
}

// SetBootSignature writes the 0xAA55 signature.
func (bs *bootSector) SetBootSignature() {
	binary.LittleEndian.PutUint16(bs.data[bs55AA:], bootSignature)
}

// JumpInstruction returns the x86 jump instruction at the start of the sector.
func (bs *bootSector) JumpInstruction() [3]byte {
	var jmpboot [3]byte
	copy(jmpboot[:], bs.data[bsJmpBoot:])
	return jmpboot
}

// SetOEMName sets the OEM name, space padded, clipped to 8 characters.
func (bs *bootSector) SetOEMName(name string) {
	n := copy(bs.data[bsOEMName:bsOEMName+8], name)
	for i := n; i < 8; i++ {
		bs.data[bsOEMName+i] = ' '
	}
}

// SetVolumeLabel sets the boot sector copy of the volume label, space padded.
func (bs *bootSector) SetVolumeLabel(label string) {
	n := copy(bs.data[bsVolLab32:bsVolLab32+11], label)
	for i := n; i < 11; i++ {
		bs.data[bsVolLab32+i] = ' '
	}
}

// fsinfoSector is the FS Information Sector for FAT32 volumes. It caches the
// free-cluster count so that reporting free space does not require a full
// FAT scan.
type fsinfoSector struct {
	data []byte
}

// Signatures returns the signatures at the beginning, middle and end of the
// sector. Expect 0x41615252, 0x61417272, 0xAA550000 respectively.
func (fsi *fsinfoSector) Signatures() (lead, struc, trail uint32) {
	return binary.LittleEndian.Uint32(fsi.data[fsiLeadSig:]),
		binary.LittleEndian.Uint32(fsi.data[fsiStrucSig:]),
		binary.LittleEndian.Uint32(fsi.data[fsiTrailSig:])
}

// SetSignatures writes the three FSInfo signatures.
func (fsi *fsinfoSector) SetSignatures(lead, struc, trail uint32) {
	binary.LittleEndian.PutUint32(fsi.data[fsiLeadSig:], lead)
	binary.LittleEndian.PutUint32(fsi.data[fsiStrucSig:], struc)
	binary.LittleEndian.PutUint32(fsi.data[fsiTrailSig:], trail)
}

// FreeClusterCount is the last known number of free data clusters, or
// 0xFFFFFFFF if unknown. Must be sanity checked against the volume's cluster
// count before use.
func (fsi *fsinfoSector) FreeClusterCount() uint32 {
	return binary.LittleEndian.Uint32(fsi.data[fsiFreeCount:])
}

// SetFreeClusterCount sets the last known number of free data clusters.
func (fsi *fsinfoSector) SetFreeClusterCount(count uint32) {
	binary.LittleEndian.PutUint32(fsi.data[fsiFreeCount:], count)
}

// SetLastAllocatedCluster sets the most recently allocated cluster hint.
func (fsi *fsinfoSector) SetLastAllocatedCluster(cluster uint32) {
	binary.LittleEndian.PutUint32(fsi.data[fsiNxtFree:], cluster)
}

// datetime is the packed FAT date/time pair stored in directory entries.
type datetime struct {
	time uint16
	date uint16
}

func newDatetime(t time.Time) datetime {
	hour, min, sec := t.Clock()
	return datetime{
		time: uint16(hour<<11 | min<<5 | sec/2),
		date: uint16(t.Year()-1980)<<9 | uint16(t.Month())<<5 | uint16(t.Day()),
	}
}

func (dt datetime) Time() time.Time {
	// https://www.win.tue.nl/~aeb/linux/fs/fat/fat-1.html
	hour := int(dt.time >> 11)
	min := int((dt.time >> 5) & 0x3f)
	sec := 2 * int(dt.time&0x1f)
	yearSince1980 := int(dt.date >> 9)
	month := time.Month((dt.date >> 5) & 0xf)
	day := int(dt.date & 0x1f)
	return time.Date(1980+yearSince1980, month, day, hour, min, sec, 0, time.UTC)
}
