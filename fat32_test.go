package fat32

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyfs/fat32/internal/mbr"
)

func TestMountSuperfloppy(t *testing.T) {
	fsys, dev := newTestVolume(t, FormatConfig{Label: "TESTVOL"})
	require.True(t, fsys.IsMounted())
	assert.Equal(t, 1, dev.inits)
	assert.EqualValues(t, 4096, fsys.ClusterSize())
	assert.GreaterOrEqual(t, fsys.clusterCount, uint32(65525))

	total, err := fsys.TotalSpace()
	require.NoError(t, err)
	assert.EqualValues(t, testVolumeSectors*SectorSize, total)

	label, err := fsys.VolumeLabel()
	require.NoError(t, err)
	assert.Equal(t, "TESTVOL", label)
}

func TestMountPartitioned(t *testing.T) {
	const partStart = 2048
	dev := newMapDevice()

	var fmtr Formatter
	part := &offsetDevice{inner: dev, base: partStart}
	require.NoError(t, fmtr.Format(part, testVolumeSectors, FormatConfig{}))

	// Build the MBR by hand. The FAT volume boot sector has been written at
	// the partition offset, so sector 0 is free for the table.
	var sector [SectorSize]byte
	boot, err := mbr.ToBootSector(sector[:])
	require.NoError(t, err)
	boot.SetSignature()
	boot.SetPartition(0, mbr.MakePartition(0x80, mbr.TypeFAT32LBA, partStart, testVolumeSectors))
	require.NoError(t, dev.WriteSector(sector[:], 0))

	fsys := &FS{}
	require.NoError(t, fsys.Mount(dev))
	assert.EqualValues(t, partStart, fsys.volStart)

	// The volume is fully usable through the partition offset.
	f, err := fsys.CreateFile("/hello.txt")
	require.NoError(t, err)
	_, err = f.Write([]byte("hi"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestMountRejectsGarbage(t *testing.T) {
	dev := newMapDevice()
	fsys := &FS{}
	err := fsys.Mount(dev)
	require.ErrorIs(t, err, ErrInvalidFormat)
	assert.False(t, fsys.IsMounted())
}

func TestMountRejectsOddSectorSize(t *testing.T) {
	fsys, dev := newTestVolume(t, FormatConfig{})
	fsys.Unmount()

	block := dev.blocks[0]
	binary.LittleEndian.PutUint16(block[bpbBytsPerSec:], 1024)
	dev.blocks[0] = block

	err := (&FS{}).Mount(dev)
	require.ErrorIs(t, err, ErrInvalidFormat)
}

func TestFormatRejectsSmallMedium(t *testing.T) {
	// A medium this small cannot reach 65525 clusters, so formatting
	// refuses before mounting ever could.
	dev := newMapDevice()
	var fmtr Formatter
	err := fmtr.Format(dev, 4096, FormatConfig{})
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestMountRejectsSmallClusterCount(t *testing.T) {
	fsys, dev := newTestVolume(t, FormatConfig{})
	fsys.Unmount()

	// Shrink the declared volume so the cluster count lands in FAT16
	// territory while the boot sector stays structurally valid.
	block := dev.blocks[0]
	binary.LittleEndian.PutUint32(block[bpbTotSec32:], 1<<16)
	dev.blocks[0] = block

	err := (&FS{}).Mount(dev)
	require.ErrorIs(t, err, ErrInvalidFormat)
}

func TestMediaRemoval(t *testing.T) {
	fsys, dev := newTestVolume(t, FormatConfig{})
	require.True(t, fsys.IsReady())

	dev.present = false
	fsys.PollMedia()
	assert.False(t, fsys.IsMounted())
	assert.False(t, fsys.IsReady())
	assert.ErrorIs(t, fsys.Status(), ErrNoMedia)

	// Further polls stay quiet.
	fsys.PollMedia()
	fsys.PollMedia()
	assert.False(t, fsys.IsMounted())

	// Reinsertion remounts lazily on the next operation.
	dev.present = true
	require.True(t, fsys.IsReady())
	assert.True(t, fsys.IsMounted())
	require.NoError(t, fsys.Status())
}

func TestOperationsFailWhileRemoved(t *testing.T) {
	fsys, dev := newTestVolume(t, FormatConfig{})
	f, err := fsys.CreateFile("gone.txt")
	require.NoError(t, err)

	dev.present = false
	fsys.PollMedia()

	_, err = f.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrNoMedia)
	_, err = fsys.OpenFile("gone.txt")
	assert.ErrorIs(t, err, ErrNoMedia)
	_, err = fsys.FreeSpace()
	assert.ErrorIs(t, err, ErrNoMedia)
}

func TestFreeSpaceFSInfo(t *testing.T) {
	fsys, _ := newTestVolume(t, FormatConfig{})
	free, err := fsys.FreeSpace()
	require.NoError(t, err)
	// The formatter reports every cluster free except the root directory.
	want := uint64(fsys.clusterCount-1) * uint64(fsys.bytesPerCluster)
	assert.Equal(t, want, free)
}

func TestFreeSpaceFATScanFallback(t *testing.T) {
	fsys, dev := newTestVolume(t, FormatConfig{})

	// Corrupt the FSInfo free count so the driver distrusts it.
	block := dev.blocks[1]
	binary.LittleEndian.PutUint32(block[fsiFreeCount:], fsiUnknownFree)
	dev.blocks[1] = block
	fsys.invalidateWindow()

	free, err := fsys.FreeSpace()
	require.NoError(t, err)
	want := uint64(fsys.clusterCount-1) * uint64(fsys.bytesPerCluster)
	assert.Equal(t, want, free)
}

func TestUnmountIdempotent(t *testing.T) {
	fsys, _ := newTestVolume(t, FormatConfig{})
	fsys.Unmount()
	fsys.Unmount()
	assert.False(t, fsys.IsMounted())
	assert.Equal(t, ErrNoMedia, fsys.status)
}

func TestErrorStrings(t *testing.T) {
	assert.Equal(t, "fat32: file not found", ErrFileNotFound.Error())
	assert.Equal(t, "fat32: disk full", ErrDiskFull.Error())
	assert.NoError(t, errOK.err())
}
