package fat32

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// mapDevice is a sparse in-memory block device: only sectors that have been
// written occupy memory and unwritten sectors read as zeros. This lets tests
// format volumes large enough for FAT32's 65525 cluster minimum without
// backing every sector.
type mapDevice struct {
	blocks  map[uint32][SectorSize]byte
	present bool
	inits   int
}

func newMapDevice() *mapDevice {
	return &mapDevice{blocks: make(map[uint32][SectorSize]byte), present: true}
}

var errNoMedium = errors.New("no medium")

func (d *mapDevice) Init() error {
	if !d.present {
		return errNoMedium
	}
	d.inits++
	return nil
}

func (d *mapDevice) ReadSector(dst []byte, sector uint32) error {
	if !d.present {
		return errNoMedium
	}
	block := d.blocks[sector]
	copy(dst, block[:])
	return nil
}

func (d *mapDevice) WriteSector(buf []byte, sector uint32) error {
	if !d.present {
		return errNoMedium
	}
	var block [SectorSize]byte
	copy(block[:], buf)
	d.blocks[sector] = block
	return nil
}

func (d *mapDevice) MediaPresent() bool { return d.present }

// offsetDevice shifts all sector addresses by a fixed base, so a volume can
// be formatted as if it started at a partition offset.
type offsetDevice struct {
	inner BlockDevice
	base  uint32
}

func (d *offsetDevice) Init() error { return d.inner.Init() }
func (d *offsetDevice) ReadSector(dst []byte, sector uint32) error {
	return d.inner.ReadSector(dst, d.base+sector)
}
func (d *offsetDevice) WriteSector(buf []byte, sector uint32) error {
	return d.inner.WriteSector(buf, d.base+sector)
}
func (d *offsetDevice) MediaPresent() bool { return d.inner.MediaPresent() }

// testVolumeSectors is large enough for >65525 clusters at every cluster
// size the tests use.
const testVolumeSectors = 1 << 20

// newTestVolume formats a fresh volume on a sparse device and mounts it.
func newTestVolume(t *testing.T, cfg FormatConfig) (*FS, *mapDevice) {
	t.Helper()
	dev := newMapDevice()
	var fmtr Formatter
	require.NoError(t, fmtr.Format(dev, testVolumeSectors, cfg))
	fsys := &FS{}
	require.NoError(t, fsys.Mount(dev))
	return fsys, dev
}
