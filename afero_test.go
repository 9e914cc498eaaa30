package fat32

import (
	"io"
	"os"
	"sort"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAfero(t *testing.T) afero.Fs {
	t.Helper()
	fsys, _ := newTestVolume(t, FormatConfig{})
	return NewAferoFs(fsys)
}

func TestAferoCreateWriteRead(t *testing.T) {
	afs := newTestAfero(t)

	f, err := afs.Create("/hello.txt")
	require.NoError(t, err)
	_, err = f.WriteString("hello, afero")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := afero.ReadFile(afs, "/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello, afero", string(data))

	info, err := afs.Stat("/hello.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 12, info.Size())
	assert.False(t, info.IsDir())
}

func TestAferoCreateTruncatesExisting(t *testing.T) {
	afs := newTestAfero(t)
	require.NoError(t, afero.WriteFile(afs, "/t.txt", []byte("old content"), 0o666))
	require.NoError(t, afero.WriteFile(afs, "/t.txt", []byte("new"), 0o666))

	data, err := afero.ReadFile(afs, "/t.txt")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestAferoAppend(t *testing.T) {
	afs := newTestAfero(t)
	require.NoError(t, afero.WriteFile(afs, "/log.txt", []byte("one"), 0o666))

	f, err := afs.OpenFile("/log.txt", os.O_WRONLY|os.O_APPEND, 0o666)
	require.NoError(t, err)
	_, err = f.WriteString("two")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := afero.ReadFile(afs, "/log.txt")
	require.NoError(t, err)
	assert.Equal(t, "onetwo", string(data))
}

func TestAferoSeekWhence(t *testing.T) {
	afs := newTestAfero(t)
	require.NoError(t, afero.WriteFile(afs, "/s.bin", pattern(1000), 0o666))

	f, err := afs.Open("/s.bin")
	require.NoError(t, err)
	defer f.Close()

	pos, err := f.Seek(100, io.SeekStart)
	require.NoError(t, err)
	assert.EqualValues(t, 100, pos)

	pos, err = f.Seek(50, io.SeekCurrent)
	require.NoError(t, err)
	assert.EqualValues(t, 150, pos)

	pos, err = f.Seek(-200, io.SeekEnd)
	require.NoError(t, err)
	assert.EqualValues(t, 800, pos)

	buf := make([]byte, 10)
	_, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, pattern(1000)[800:810], buf)
}

func TestAferoMkdirReaddir(t *testing.T) {
	afs := newTestAfero(t)
	require.NoError(t, afs.MkdirAll("/deep/nested/dir", 0o777))
	require.NoError(t, afero.WriteFile(afs, "/deep/nested/dir/a.txt", []byte("a"), 0o666))
	require.NoError(t, afero.WriteFile(afs, "/deep/nested/dir/b.txt", []byte("b"), 0o666))

	d, err := afs.Open("/deep/nested/dir")
	require.NoError(t, err)
	names, err := d.Readdirnames(0)
	require.NoError(t, err)
	require.NoError(t, d.Close())
	sort.Strings(names)
	assert.Equal(t, []string{"a.txt", "b.txt"}, names)

	info, err := afs.Stat("/deep/nested")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestAferoRemoveAll(t *testing.T) {
	afs := newTestAfero(t)
	require.NoError(t, afs.MkdirAll("/tree/sub", 0o777))
	require.NoError(t, afero.WriteFile(afs, "/tree/f1.txt", []byte("1"), 0o666))
	require.NoError(t, afero.WriteFile(afs, "/tree/sub/f2.txt", []byte("2"), 0o666))

	require.NoError(t, afs.RemoveAll("/tree"))
	_, err := afs.Stat("/tree")
	assert.ErrorIs(t, err, ErrFileNotFound)

	// Removing what is already gone is fine.
	require.NoError(t, afs.RemoveAll("/tree"))
}

func TestAferoUnsupported(t *testing.T) {
	afs := newTestAfero(t)
	require.NoError(t, afero.WriteFile(afs, "/f.txt", []byte("x"), 0o666))

	assert.ErrorIs(t, afs.Rename("/f.txt", "/g.txt"), errUnsupported)
	assert.ErrorIs(t, afs.Chmod("/f.txt", 0o600), errUnsupported)
	assert.ErrorIs(t, afs.Chown("/f.txt", 0, 0), errUnsupported)
}
