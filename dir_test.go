package fat32

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readAll drains a directory iterator into a name-to-entry map, skipping
// nothing.
func readAll(t *testing.T, d *Dir) map[string]*Entry {
	t.Helper()
	entries := make(map[string]*Entry)
	for {
		entry, err := d.Read()
		require.NoError(t, err)
		if entry == nil {
			return entries
		}
		entries[entry.Name] = entry
	}
}

func TestCreateDirAndList(t *testing.T) {
	fsys, _ := newTestVolume(t, FormatConfig{})

	d, err := fsys.CreateDir("/docs")
	require.NoError(t, err)
	entries := readAll(t, d)
	require.NoError(t, d.Close())

	require.Contains(t, entries, ".")
	require.Contains(t, entries, "..")
	assert.True(t, entries["."].IsDir())
	assert.True(t, entries[".."].IsDir())
	assert.Len(t, entries, 2)

	f, err := fsys.CreateFile("/docs/readme.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	d, err = fsys.OpenDir("/docs")
	require.NoError(t, err)
	entries = readAll(t, d)
	require.NoError(t, d.Close())
	require.Contains(t, entries, "readme.txt")
	assert.False(t, entries["readme.txt"].IsDir())
}

func TestNestedDirectories(t *testing.T) {
	fsys, _ := newTestVolume(t, FormatConfig{})
	_, err := fsys.CreateDir("/a")
	require.NoError(t, err)
	_, err = fsys.CreateDir("/a/b")
	require.NoError(t, err)

	f, err := fsys.CreateFile("/a/b/deep.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entry, err := fsys.Stat("/a/b/deep.txt")
	require.NoError(t, err)
	assert.Equal(t, "deep.txt", entry.Name)

	// ".." entries resolve as real path components.
	entry, err = fsys.Stat("/a/b/../b/deep.txt")
	require.NoError(t, err)
	assert.Equal(t, "deep.txt", entry.Name)
}

func TestLongNameRoundTrip(t *testing.T) {
	fsys, _ := newTestVolume(t, FormatConfig{})
	const name = "Mixed Case Long Name.txt"

	f, err := fsys.CreateFile("/" + name)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	d, err := fsys.OpenDir("/")
	require.NoError(t, err)
	entries := readAll(t, d)
	require.NoError(t, d.Close())
	require.Contains(t, entries, name, "long name preserved with case")

	// Lookup is case-insensitive.
	_, err = fsys.OpenFile("/MIXED case long NAME.TXT")
	require.NoError(t, err)
}

func TestDeleteFileClearsLongNameSlots(t *testing.T) {
	fsys, dev := newTestVolume(t, FormatConfig{})
	const name = "Long File Name.txt" // two long name fragments

	f, err := fsys.CreateFile("/" + name)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, fsys.DeleteFile("/" + name))

	rootSector := fsys.volStart + fsys.clusterToSector(fsys.rootCluster)
	block := dev.blocks[rootSector]
	assert.EqualValues(t, slotFree, block[0], "first long name slot freed")
	assert.EqualValues(t, slotFree, block[slotSize], "second long name slot freed")
	assert.EqualValues(t, slotFree, block[2*slotSize], "8.3 slot freed")

	// The slots are reusable for the next entry.
	f, err = fsys.CreateFile("/Another Long Name.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	d, err := fsys.OpenDir("/")
	require.NoError(t, err)
	entries := readAll(t, d)
	require.NoError(t, d.Close())
	require.Contains(t, entries, "Another Long Name.txt")
	assert.NotContains(t, entries, name)
}

func TestDeleteDir(t *testing.T) {
	fsys, _ := newTestVolume(t, FormatConfig{})
	_, err := fsys.CreateDir("/tmp")
	require.NoError(t, err)
	f, err := fsys.CreateFile("/tmp/keep.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	err = fsys.DeleteDir("/tmp")
	require.ErrorIs(t, err, ErrDirectoryNotEmpty)

	require.NoError(t, fsys.DeleteFile("/tmp/keep.txt"))
	require.NoError(t, fsys.DeleteDir("/tmp"))

	err = fsys.DeleteDir("/tmp")
	assert.ErrorIs(t, err, ErrDirectoryNotFound)
}

func TestDeleteDirGuards(t *testing.T) {
	fsys, _ := newTestVolume(t, FormatConfig{})
	f, err := fsys.CreateFile("/plain.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.ErrorIs(t, fsys.DeleteDir("/plain.txt"), ErrNotADirectory)
	assert.ErrorIs(t, fsys.DeleteDir("/"), ErrInvalidParameter)

	// The current directory cannot be pulled out from under the resolver.
	_, err = fsys.CreateDir("/cwd")
	require.NoError(t, err)
	require.NoError(t, fsys.SetCurrentDir("/cwd"))
	assert.ErrorIs(t, fsys.DeleteDir("/cwd"), ErrInvalidParameter)
}

func TestCurrentDir(t *testing.T) {
	fsys, _ := newTestVolume(t, FormatConfig{})
	cwd, err := fsys.CurrentDir()
	require.NoError(t, err)
	assert.Equal(t, "/", cwd)

	_, err = fsys.CreateDir("/a")
	require.NoError(t, err)
	_, err = fsys.CreateDir("/a/b")
	require.NoError(t, err)

	require.NoError(t, fsys.SetCurrentDir("/a/b"))
	cwd, err = fsys.CurrentDir()
	require.NoError(t, err)
	assert.Equal(t, "/a/b", cwd)

	// Relative paths now resolve inside /a/b.
	f, err := fsys.CreateFile("rel.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	_, err = fsys.Stat("/a/b/rel.txt")
	require.NoError(t, err)

	// ".." climbs one level.
	require.NoError(t, fsys.SetCurrentDir(".."))
	cwd, err = fsys.CurrentDir()
	require.NoError(t, err)
	assert.Equal(t, "/a", cwd)

	require.NoError(t, fsys.SetCurrentDir("/"))
	cwd, err = fsys.CurrentDir()
	require.NoError(t, err)
	assert.Equal(t, "/", cwd)
}

func TestResolveErrors(t *testing.T) {
	fsys, _ := newTestVolume(t, FormatConfig{})
	f, err := fsys.CreateFile("/file.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = fsys.OpenFile("/missing.txt")
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = fsys.OpenFile("/missing/file.txt")
	assert.ErrorIs(t, err, ErrInvalidPath)

	// A file as intermediate component is just as invalid.
	_, err = fsys.OpenFile("/file.txt/sub.txt")
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = fsys.OpenDir("/file.txt")
	assert.ErrorIs(t, err, ErrNotADirectory)

	_, err = fsys.OpenFile("/")
	assert.ErrorIs(t, err, ErrNotAFile)
}

func TestDirectorySlotsExhaust(t *testing.T) {
	// With 512 byte clusters the root directory holds 16 slots and is never
	// grown, so the 17th entry must fail cleanly.
	fsys, _ := newTestVolume(t, FormatConfig{ClusterSize: 512})
	for i := 0; i < 16; i++ {
		name := "/f" + string(rune('a'+i)) + ".txt"
		f, err := fsys.CreateFile(name)
		require.NoError(t, err, "file %d", i)
		require.NoError(t, f.Close())
	}
	_, err := fsys.CreateFile("/one-too-many.txt")
	assert.ErrorIs(t, err, ErrDiskFull)
}
