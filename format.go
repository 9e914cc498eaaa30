package fat32

import (
	"encoding/binary"
	"time"
)

// FormatConfig parametrizes Formatter. The zero value formats with a 4096
// byte cluster size and no volume label.
type FormatConfig struct {
	// Label is the volume label, up to 11 characters from the 8.3
	// repertoire. Empty means no label.
	Label string
	// ClusterSize is the cluster size in bytes, a power-of-two multiple of
	// 512 up to 65536. Zero selects 4096.
	ClusterSize int
}

// Formatter writes a fresh FAT32 filesystem onto a block device as a
// superfloppy, without a partition table. The volume must end up with at
// least 65525 clusters or formatting is refused, since smaller volumes are
// FAT12/16 by definition.
type Formatter struct {
	win [SectorSize]byte
}

// Format lays out boot sector, FSInfo, backup boot region, both FATs and an
// empty root directory across the first numSectors sectors of the device.
func (f *Formatter) Format(bd BlockDevice, numSectors uint32, cfg FormatConfig) error {
	const reserved = 32
	const numFATs = 2
	clusterSize := cfg.ClusterSize
	if clusterSize == 0 {
		clusterSize = 4096
	}
	if clusterSize < SectorSize || clusterSize > 65536 || clusterSize%SectorSize != 0 {
		return ErrInvalidParameter
	}
	spc := uint32(clusterSize / SectorSize)
	if spc&(spc-1) != 0 {
		return ErrInvalidParameter
	}
	if len(cfg.Label) > 11 {
		return ErrInvalidParameter
	}
	label83, labelled := formatLabel(cfg.Label)
	if cfg.Label != "" && !labelled {
		return ErrInvalidParameter
	}

	// One FAT sector maps 128 clusters. Overestimating the FAT by a sector
	// or two only costs slack, never correctness.
	fatSize := (numSectors/spc + 2 + SectorSize/4 - 1) / (SectorSize / 4)
	dataSectors := numSectors - numFATs*fatSize
	clusterCount := dataSectors / spc
	if numSectors < reserved+numFATs*fatSize+spc || clusterCount < 65525 {
		return ErrInvalidParameter
	}

	// Boot sector at 0, backup at 6.
	f.clearWin()
	bs := bootSector{data: f.win[:]}
	f.win[0], f.win[1], f.win[2] = 0xEB, 0x58, 0x90
	bs.SetOEMName("MSWIN4.1")
	bs.SetSectorSize(SectorSize)
	bs.SetSectorsPerCluster(uint8(spc))
	bs.SetReservedSectors(reserved)
	bs.SetNumberOfFATs(numFATs)
	f.win[bpbMedia] = 0xF8
	bs.SetTotalSectors(numSectors)
	bs.SetSectorsPerFAT(fatSize)
	bs.SetRootCluster(2)
	bs.SetFSInfoSector(1)
	binary.LittleEndian.PutUint16(f.win[bpbBkBootSec:], 6)
	f.win[bsDrvNum32] = 0x80
	f.win[bsBootSig32] = 0x29
	binary.LittleEndian.PutUint32(f.win[bsVolID32:], uint32(time.Now().Unix()))
	bs.SetVolumeLabel(cfg.Label)
	copy(f.win[bsFilSysType32:], "FAT32   ")
	bs.SetBootSignature()
	if err := bd.WriteSector(f.win[:], 0); err != nil {
		return ErrWriteFailed
	}
	if err := bd.WriteSector(f.win[:], 6); err != nil {
		return ErrWriteFailed
	}

	// FSInfo at 1, backup at 7. The root directory consumes one cluster.
	f.clearWin()
	fsi := fsinfoSector{data: f.win[:]}
	fsi.SetSignatures(fsiLeadSigVal, fsiStrucSigVal, fsiTrailSigVal)
	fsi.SetFreeClusterCount(clusterCount - 1)
	fsi.SetLastAllocatedCluster(2)
	if err := bd.WriteSector(f.win[:], 1); err != nil {
		return ErrWriteFailed
	}
	if err := bd.WriteSector(f.win[:], 7); err != nil {
		return ErrWriteFailed
	}

	// Both FATs: reserved entries 0 and 1, end-of-chain for the root
	// cluster, everything else free.
	for fat := uint32(0); fat < numFATs; fat++ {
		first := reserved + fat*fatSize
		f.clearWin()
		binary.LittleEndian.PutUint32(f.win[0:], 0x0FFFFFF8)
		binary.LittleEndian.PutUint32(f.win[4:], 0x0FFFFFFF)
		binary.LittleEndian.PutUint32(f.win[8:], fatEOC)
		if err := bd.WriteSector(f.win[:], first); err != nil {
			return ErrWriteFailed
		}
		f.clearWin()
		for s := uint32(1); s < fatSize; s++ {
			if err := bd.WriteSector(f.win[:], first+s); err != nil {
				return ErrWriteFailed
			}
		}
	}

	// Empty root directory, with the volume label as its only entry when
	// one was requested.
	rootFirst := reserved + numFATs*fatSize
	f.clearWin()
	if labelled {
		ds := dirSlot{data: f.win[0:slotSize]}
		ds.SetShortName(label83)
		ds.SetAttributes(attrVolumeID)
		ds.SetModifiedAt(newDatetime(time.Now()))
	}
	if err := bd.WriteSector(f.win[:], rootFirst); err != nil {
		return ErrWriteFailed
	}
	f.clearWin()
	for s := uint32(1); s < spc; s++ {
		if err := bd.WriteSector(f.win[:], rootFirst+s); err != nil {
			return ErrWriteFailed
		}
	}
	return nil
}

func (f *Formatter) clearWin() {
	for i := range f.win {
		f.win[i] = 0
	}
}

// formatLabel packs a volume label into the space padded 11-byte directory
// form, uppercasing and verifying the character set.
func formatLabel(label string) (enc [11]byte, ok bool) {
	for i := range enc {
		enc[i] = ' '
	}
	if label == "" {
		return enc, false
	}
	for i := 0; i < len(label) && i < 11; i++ {
		c := upperASCII(label[i])
		if c != ' ' && !shortNameAllowed(c) {
			return enc, false
		}
		enc[i] = c
	}
	return enc, true
}
