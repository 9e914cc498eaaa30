// Package fat32 implements a FAT32 filesystem driver on top of a sector
// addressed block device such as an SD card.
//
// The driver supports MBR partitioned media (partition types 0x0B and 0x0C)
// as well as superfloppy volumes formatted without a partition table. All
// disk access funnels through a single shared sector window; there is no
// caching beyond that one sector and no support for GPT, FAT12/16, exFAT or
// concurrent access from multiple goroutines.
package fat32

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/text/cases"

	"github.com/tinyfs/fat32/internal/mbr"
)

// FS is a mounted (or mountable) FAT32 volume on a block device. The zero
// value is ready for use; call Mount to attach a device.
//
// An FS is single threaded: operations run to completion and are not
// reentrant. The only caller expected to interleave with normal operations
// is a periodic PollMedia tick, and even that must run on the same
// goroutine or at defined safe points. A poll that unmounts the volume in
// the middle of an in-flight operation makes that operation fail with an
// error return; it does not corrupt the driver state, but it is not a
// recovery mechanism either.
type FS struct {
	dev  BlockDevice
	log  *slog.Logger
	now  func() time.Time
	fold cases.Caser

	mounted bool
	status  Error // outcome of the last readiness check

	// Volume geometry, derived at mount, zeroed at unmount.
	volStart        uint32 // device sector where the volume begins
	secPerClus      uint8
	numFATs         uint8
	reservedSectors uint16
	fatSize         uint32 // sectors per FAT
	totalSectors    uint32
	rootCluster     uint32
	fsinfoSector    uint16
	firstDataSector uint32
	dataSectors     uint32
	clusterCount    uint32
	bytesPerCluster uint32

	curDir uint32 // current directory start cluster

	// Shared sector window. winSector is the absolute device sector the
	// window holds, badSector when invalid.
	winSector uint32
	win       [SectorSize]byte
}

// SetLogger installs a logger for diagnostic output. The driver never logs
// through a nil logger, so leaving this unset silences it.
func (fsys *FS) SetLogger(log *slog.Logger) { fsys.log = log }

// SetClock overrides the time source used to stamp directory entries.
// Intended for tests; nil restores time.Now.
func (fsys *FS) SetClock(now func() time.Time) { fsys.now = now }

func (fsys *FS) timeNow() time.Time {
	if fsys.now != nil {
		return fsys.now()
	}
	return time.Now()
}

// Mount attaches the block device and mounts the FAT32 volume on it.
// Mounting an already mounted FS succeeds without touching the device
// again. The device is remembered across Unmount so a later IsReady can
// remount after media reinsertion.
func (fsys *FS) Mount(bd BlockDevice) error {
	fsys.dev = bd
	fsys.fold = cases.Fold()
	return fsys.mount().err()
}

func (fsys *FS) mount() Error {
	if fsys.dev == nil || !fsys.dev.MediaPresent() {
		fsys.unmount()
		return ErrNoMedia
	}
	if fsys.mounted {
		return errOK
	}
	if err := fsys.dev.Init(); err != nil {
		fsys.logerror("mount:init", slog.String("err", err.Error()))
		return ErrInitFailed
	}

	// Read device sector 0 and decide on the disk layout.
	fsys.volStart = 0
	fsys.invalidateWindow()
	if fr := fsys.readSector(0); fr != errOK {
		return fr
	}
	switch {
	case isFATBootSector(fsys.win[:]):
		// Superfloppy: the whole device is one volume.

	case fsys.findFAT32Partition():
		// volStart now points at the partition; load its boot sector.
		if fr := fsys.readSector(0); fr != errOK {
			return fr
		}

	default:
		return ErrInvalidFormat
	}

	bs := bootSector{data: fsys.win[:]}
	if fr := validateBootSector(&bs); fr != errOK {
		fsys.logerror("mount:bootsector", slog.Uint64("volstart", uint64(fsys.volStart)))
		return fr
	}

	fsys.secPerClus = bs.SectorsPerCluster()
	fsys.numFATs = bs.NumberOfFATs()
	fsys.reservedSectors = bs.ReservedSectors()
	fsys.fatSize = bs.SectorsPerFAT()
	fsys.totalSectors = bs.TotalSectors()
	fsys.rootCluster = bs.RootCluster()
	fsys.fsinfoSector = bs.FSInfoSector()

	fsys.bytesPerCluster = uint32(fsys.secPerClus) * SectorSize
	fsys.firstDataSector = uint32(fsys.reservedSectors) + uint32(fsys.numFATs)*fsys.fatSize
	fsys.dataSectors = fsys.totalSectors - uint32(fsys.numFATs)*fsys.fatSize
	fsys.clusterCount = fsys.dataSectors / uint32(fsys.secPerClus)
	if fsys.clusterCount < 65525 {
		// FAT12 or FAT16 cluster counts are out of scope.
		return ErrInvalidFormat
	}

	fsys.curDir = fsys.rootCluster
	fsys.mounted = true
	fsys.info("mount",
		slog.Uint64("volstart", uint64(fsys.volStart)),
		slog.Uint64("clusters", uint64(fsys.clusterCount)),
		slog.Uint64("bytes/cluster", uint64(fsys.bytesPerCluster)))
	return errOK
}

// findFAT32Partition checks whether the window holds a valid MBR and, if so,
// points volStart at the first FAT32 partition. Reports false when the
// sector is not an MBR or no usable partition exists.
func (fsys *FS) findFAT32Partition() bool {
	boot, err := mbr.ToBootSector(fsys.win[:])
	if err != nil || !boot.IsValid() {
		return false
	}
	for i := 0; i < 4; i++ {
		pte := boot.Partition(i)
		if !pte.BootIndicatorValid() {
			continue
		}
		if pte.Type().IsFAT32() && pte.StartLBA() != 0 {
			fsys.volStart = pte.StartLBA()
			return true
		}
	}
	return false
}

// isFATBootSector reports whether a raw sector plausibly is a FAT volume
// boot record: 0xAA55 signature, an x86 jump opcode, and one of the defined
// sector sizes.
func isFATBootSector(sector []byte) bool {
	bs := bootSector{data: sector}
	if bs.BootSignature() != bootSignature {
		return false
	}
	jmp := bs.JumpInstruction()
	if jmp[0] != 0xEB && jmp[0] != 0xE9 {
		return false
	}
	switch bs.SectorSize() {
	case 512, 1024, 2048, 4096:
		return true
	}
	return false
}

// validateBootSector applies the structural FAT32 mount checks:
// matching sector size, power-of-two cluster size, 1 or 2 FATs, non-zero
// reserved sectors, 32-bit FAT size only, non-zero total sectors.
func validateBootSector(bs *bootSector) Error {
	if bs.SectorSize() != SectorSize {
		return ErrInvalidFormat
	}
	spc := bs.SectorsPerCluster()
	if spc == 0 || spc&(spc-1) != 0 {
		return ErrInvalidFormat
	}
	if n := bs.NumberOfFATs(); n == 0 || n > 2 {
		return ErrInvalidFormat
	}
	if bs.ReservedSectors() == 0 {
		return ErrInvalidFormat
	}
	if bs.SectorsPerFAT16() != 0 || bs.SectorsPerFAT() == 0 {
		return ErrInvalidFormat
	}
	if bs.TotalSectors() == 0 {
		return ErrInvalidFormat
	}
	return errOK
}

// Unmount detaches the volume. It always succeeds and is idempotent; the
// block device stays attached so a later readiness check can remount.
func (fsys *FS) Unmount() {
	fsys.unmount()
}

func (fsys *FS) unmount() {
	fsys.mounted = false
	fsys.status = ErrNoMedia
	fsys.volStart = 0
	fsys.secPerClus = 0
	fsys.numFATs = 0
	fsys.reservedSectors = 0
	fsys.fatSize = 0
	fsys.totalSectors = 0
	fsys.rootCluster = 0
	fsys.fsinfoSector = 0
	fsys.firstDataSector = 0
	fsys.dataSectors = 0
	fsys.clusterCount = 0
	fsys.bytesPerCluster = 0
	fsys.curDir = 0
	fsys.invalidateWindow()
}

// IsMounted reports whether a volume is currently mounted, without touching
// the device.
func (fsys *FS) IsMounted() bool { return fsys.mounted }

// IsReady reports whether the volume is usable, lazily mounting when media
// is present and unmounting when it has gone away. Every driver operation
// begins with this check.
func (fsys *FS) IsReady() bool {
	if fsys.dev != nil && fsys.dev.MediaPresent() {
		if !fsys.mounted {
			fsys.status = fsys.mount()
		}
	} else {
		if fsys.mounted {
			fsys.unmount()
		}
		fsys.status = ErrNoMedia
	}
	return fsys.status == errOK
}

// Status runs the readiness check and returns the resulting status, nil when
// the volume is ready.
func (fsys *FS) Status() error {
	fsys.IsReady()
	return fsys.status.err()
}

// ready is the internal precondition helper: readiness status or errOK.
func (fsys *FS) ready() Error {
	if fsys.IsReady() {
		return errOK
	}
	return fsys.status
}

// PollMedia is meant to be invoked periodically (≈500ms) by an external
// timer. When media has been removed it forces an unmount so that stale
// geometry is never used; repeated invocations are idempotent. Media
// insertion is handled lazily by the next operation's readiness check.
//
// PollMedia mutates mount state, so it must not preempt an in-flight
// operation; call it from the same goroutine or at a safe point.
func (fsys *FS) PollMedia() {
	if fsys.dev != nil && !fsys.dev.MediaPresent() && fsys.mounted {
		fsys.unmount()
		fsys.debug("pollmedia:unmounted")
	}
}

//
// Shared sector window.
//

func (fsys *FS) invalidateWindow() { fsys.winSector = badSector }

// readSector loads a volume-relative sector into the window. A repeated read
// of the sector already held is free.
func (fsys *FS) readSector(sector uint32) Error {
	abs := fsys.volStart + sector
	if abs == fsys.winSector {
		return errOK
	}
	if err := fsys.dev.ReadSector(fsys.win[:], abs); err != nil {
		fsys.logerror("readSector", slog.Uint64("sector", uint64(abs)), slog.String("err", err.Error()))
		fsys.invalidateWindow()
		return ErrReadFailed
	}
	fsys.winSector = abs
	return errOK
}

// writeSector persists the window to a volume-relative sector. The window
// keeps holding that sector afterwards.
func (fsys *FS) writeSector(sector uint32) Error {
	abs := fsys.volStart + sector
	if err := fsys.dev.WriteSector(fsys.win[:], abs); err != nil {
		fsys.logerror("writeSector", slog.Uint64("sector", uint64(abs)), slog.String("err", err.Error()))
		fsys.invalidateWindow()
		return ErrWriteFailed
	}
	fsys.winSector = abs
	return errOK
}

//
// Volume level reporting.
//

// ClusterSize returns the cluster size in bytes of the mounted volume.
func (fsys *FS) ClusterSize() uint32 { return fsys.bytesPerCluster }

// TotalSpace returns the total size of the volume in bytes.
func (fsys *FS) TotalSpace() (uint64, error) {
	if fr := fsys.ready(); fr != errOK {
		return 0, fr
	}
	return uint64(fsys.totalSectors) * SectorSize, nil
}

// FreeSpace returns the free space of the volume in bytes. The FSInfo
// sector is consulted first; when its signatures are wrong or its count is
// the unknown sentinel or out of range, the whole FAT is scanned instead.
func (fsys *FS) FreeSpace() (uint64, error) {
	if fr := fsys.ready(); fr != errOK {
		return 0, fr
	}
	if fr := fsys.readSector(uint32(fsys.fsinfoSector)); fr != errOK {
		return 0, fr
	}
	fsi := fsinfoSector{data: fsys.win[:]}
	lead, struc, trail := fsi.Signatures()
	free := fsi.FreeClusterCount()
	if lead == fsiLeadSigVal && struc == fsiStrucSigVal && trail == fsiTrailSigVal &&
		free != fsiUnknownFree && free <= fsys.clusterCount {
		return uint64(free) * uint64(fsys.bytesPerCluster), nil
	}

	// FSInfo is absent or untrustworthy: count zero FAT entries directly.
	// The last FAT sector usually maps entries past the cluster count, so
	// the scan is bounded by the entry index.
	fsys.debug("freespace:fatscan", slog.Uint64("sectors", uint64(fsys.fatSize)))
	var freeClusters uint64
	entry := uint32(0)
	for sector := uint32(0); sector < fsys.fatSize; sector++ {
		if fr := fsys.readSector(uint32(fsys.reservedSectors) + sector); fr != errOK {
			return 0, fr
		}
		for off := 0; off < SectorSize; off += 4 {
			if fsys.validCluster(entry) && fatValue(fsys.win[off:]) == 0 {
				freeClusters++
			}
			entry++
		}
	}
	return freeClusters * uint64(fsys.bytesPerCluster), nil
}

// VolumeLabel returns the volume label stored in the root directory, or the
// empty string when the volume has none.
func (fsys *FS) VolumeLabel() (string, error) {
	if fr := fsys.ready(); fr != errOK {
		return "", fr
	}
	dir := fsys.openRawDir(fsys.rootCluster)
	for {
		entry, fr := fsys.dirNext(&dir)
		if fr != errOK {
			return "", fr
		}
		if entry == nil {
			return "", nil
		}
		if entry.attr.IsVolumeLabel() {
			return entry.Name, nil
		}
	}
}

func (fsys *FS) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if fsys.log == nil {
		return
	}
	fsys.log.LogAttrs(context.Background(), level, msg, attrs...)
}

func (fsys *FS) debug(msg string, attrs ...slog.Attr) {
	fsys.logattrs(slog.LevelDebug, msg, attrs...)
}
func (fsys *FS) info(msg string, attrs ...slog.Attr) {
	fsys.logattrs(slog.LevelInfo, msg, attrs...)
}
func (fsys *FS) warn(msg string, attrs ...slog.Attr) {
	fsys.logattrs(slog.LevelWarn, msg, attrs...)
}
func (fsys *FS) logerror(msg string, attrs ...slog.Attr) {
	fsys.logattrs(slog.LevelError, msg, attrs...)
}
