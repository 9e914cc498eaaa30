package fat32

// SectorSize is the only sector size this driver speaks. Boot sectors
// declaring any other bytes-per-sector value are rejected at mount.
const SectorSize = 512

// badSector marks the sector window as holding no valid sector.
const badSector = ^uint32(0)

// BlockDevice is the storage transport consumed by the driver, typically an
// SD card in SPI mode. Sectors are fixed at 512 bytes and addressed by
// absolute 32-bit index from the start of the medium.
//
// Read and write calls are synchronous and may block indefinitely on a stuck
// device; the driver adds no timeout of its own.
type BlockDevice interface {
	// Init prepares the device for I/O. Called once during Mount.
	Init() error
	// ReadSector fills dst (len SectorSize) with the contents of the sector.
	ReadSector(dst []byte, sector uint32) error
	// WriteSector persists buf (len SectorSize) to the sector.
	WriteSector(buf []byte, sector uint32) error
	// MediaPresent reports whether a medium is currently inserted.
	MediaPresent() bool
}
