package fat32

import (
	"encoding/binary"
	"log/slog"
)

// FAT32 entries are 32 bits on disk but only the low 28 bits address
// clusters. The top nibble is reserved and must survive rewrites.
const (
	fatMask   = 0x0FFFFFFF
	fatEOCMin = 0x0FFFFFF8 // values >= this mark the end of a chain
	fatEOC    = 0x0FFFFFFF // value written to terminate a chain
)

// fatValue extracts the 28-bit cluster value from a raw little-endian FAT
// entry.
func fatValue(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b) & fatMask
}

// isEOC reports whether a FAT entry value terminates a chain.
func isEOC(value uint32) bool { return value >= fatEOCMin }

// validCluster reports whether cluster is an addressable data cluster on the
// mounted volume. Clusters 0 and 1 hold FAT metadata, not data.
func (fsys *FS) validCluster(cluster uint32) bool {
	return cluster >= 2 && cluster < fsys.clusterCount+2
}

// clusterToSector returns the first volume-relative sector of a data cluster.
func (fsys *FS) clusterToSector(cluster uint32) uint32 {
	return (cluster-2)*uint32(fsys.secPerClus) + fsys.firstDataSector
}

// readFATEntry returns the FAT entry for a cluster: 0 for free, the next
// cluster of the chain, or an end-of-chain value.
func (fsys *FS) readFATEntry(cluster uint32) (uint32, Error) {
	if !fsys.validCluster(cluster) {
		return 0, ErrInvalidParameter
	}
	off := cluster * 4
	if fr := fsys.readSector(uint32(fsys.reservedSectors) + off/SectorSize); fr != errOK {
		return 0, fr
	}
	return fatValue(fsys.win[off%SectorSize:]), errOK
}

// writeFATEntry rewrites the FAT entry for a cluster, preserving the
// reserved top nibble of the 32-bit slot.
func (fsys *FS) writeFATEntry(cluster, value uint32) Error {
	if !fsys.validCluster(cluster) {
		return ErrInvalidParameter
	}
	off := cluster * 4
	sector := uint32(fsys.reservedSectors) + off/SectorSize
	if fr := fsys.readSector(sector); fr != errOK {
		return fr
	}
	raw := binary.LittleEndian.Uint32(fsys.win[off%SectorSize:])
	raw = raw&^uint32(fatMask) | value&fatMask
	binary.LittleEndian.PutUint32(fsys.win[off%SectorSize:], raw)
	return fsys.writeSector(sector)
}

// findFreeCluster scans the FAT from the first data cluster for a zero
// entry. Returns ErrDiskFull when the volume has no free cluster left.
func (fsys *FS) findFreeCluster() (uint32, Error) {
	for cluster := uint32(2); cluster < fsys.clusterCount+2; cluster++ {
		value, fr := fsys.readFATEntry(cluster)
		if fr != errOK {
			return 0, fr
		}
		if value == 0 {
			return cluster, errOK
		}
	}
	return 0, ErrDiskFull
}

// allocateCluster claims a free cluster and terminates it as a one-cluster
// chain.
func (fsys *FS) allocateCluster() (uint32, Error) {
	cluster, fr := fsys.findFreeCluster()
	if fr != errOK {
		return 0, fr
	}
	if fr = fsys.writeFATEntry(cluster, fatEOC); fr != errOK {
		return 0, fr
	}
	return cluster, errOK
}

// extendChain appends a freshly allocated cluster after last, which must be
// the current final cluster of its chain. The new cluster becomes the chain
// end.
func (fsys *FS) extendChain(last uint32) (uint32, Error) {
	cluster, fr := fsys.allocateCluster()
	if fr != errOK {
		return 0, fr
	}
	if fr = fsys.writeFATEntry(last, cluster); fr != errOK {
		return 0, fr
	}
	return cluster, errOK
}

// releaseChain frees every cluster of the chain starting at start. The walk
// stops at an end-of-chain entry or at anything that does not look like a
// chain link, so a corrupt FAT cannot loop forever.
func (fsys *FS) releaseChain(start uint32) Error {
	cluster := start
	for steps := uint32(0); steps <= fsys.clusterCount; steps++ {
		if !fsys.validCluster(cluster) {
			if !isEOC(cluster) {
				fsys.warn("releaseChain:corrupt link", slog.Uint64("cluster", uint64(cluster)))
			}
			return errOK
		}
		next, fr := fsys.readFATEntry(cluster)
		if fr != errOK {
			return fr
		}
		if fr = fsys.writeFATEntry(cluster, 0); fr != errOK {
			return fr
		}
		if isEOC(next) {
			return errOK
		}
		cluster = next
	}
	fsys.warn("releaseChain:cycle", slog.Uint64("start", uint64(start)))
	return errOK
}

// walkChain follows n links from start and returns the cluster reached.
// Reaching end-of-chain early is reported as ErrInvalidPosition.
func (fsys *FS) walkChain(start uint32, n uint32) (uint32, Error) {
	cluster := start
	for ; n > 0; n-- {
		next, fr := fsys.readFATEntry(cluster)
		if fr != errOK {
			return 0, fr
		}
		if isEOC(next) || !fsys.validCluster(next) {
			return 0, ErrInvalidPosition
		}
		cluster = next
	}
	return cluster, errOK
}

// chainEnd follows the chain from start to its final cluster and also
// returns the chain length in clusters.
func (fsys *FS) chainEnd(start uint32) (last uint32, n uint32, _ Error) {
	cluster := start
	for steps := uint32(0); steps <= fsys.clusterCount; steps++ {
		next, fr := fsys.readFATEntry(cluster)
		if fr != errOK {
			return 0, 0, fr
		}
		if isEOC(next) || !fsys.validCluster(next) {
			return cluster, steps + 1, errOK
		}
		cluster = next
	}
	return 0, 0, ErrInvalidFormat
}
