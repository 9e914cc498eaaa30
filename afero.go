package fat32

import (
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// errUnsupported is returned by afero operations FAT32 has no on-disk
// representation for, such as permissions and ownership.
var errUnsupported = errors.New("fat32: operation not supported")

// AferoFs adapts an FS to the afero.Fs interface so the volume can be used
// by code written against afero, including its test helpers. It inherits
// the driver's single-threaded model.
type AferoFs struct {
	fsys *FS
}

// NewAferoFs wraps a mounted FS in the afero.Fs interface.
func NewAferoFs(fsys *FS) afero.Fs { return &AferoFs{fsys: fsys} }

// Name returns the adapter's name.
func (a *AferoFs) Name() string { return "fat32" }

// Create creates or truncates the named file.
func (a *AferoFs) Create(name string) (afero.File, error) {
	return a.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0)
}

// Open opens the named file or directory for reading.
func (a *AferoFs) Open(name string) (afero.File, error) {
	return a.OpenFile(name, os.O_RDONLY, 0)
}

// OpenFile opens the named file. Supported flags are O_CREATE, O_TRUNC and
// O_APPEND; truncation is implemented as delete and recreate since the
// driver has no shrink operation.
func (a *AferoFs) OpenFile(name string, flag int, _ os.FileMode) (afero.File, error) {
	entry, err := a.fsys.Stat(name)
	switch {
	case err == nil && entry.IsDir():
		d, err := a.fsys.OpenDir(name)
		if err != nil {
			return nil, err
		}
		return &aferoFile{name: name, fsys: a.fsys, dir: d}, nil

	case err == nil:
		if flag&os.O_TRUNC != 0 && entry.Size > 0 {
			if err := a.fsys.DeleteFile(name); err != nil {
				return nil, err
			}
			return a.openFlat(name, true, flag)
		}
		return a.openFlat(name, false, flag)

	case errors.Is(err, ErrFileNotFound) && flag&os.O_CREATE != 0:
		return a.openFlat(name, true, flag)

	default:
		return nil, err
	}
}

func (a *AferoFs) openFlat(name string, create bool, flag int) (afero.File, error) {
	var f *File
	var err error
	if create {
		f, err = a.fsys.CreateFile(name)
	} else {
		f, err = a.fsys.OpenFile(name)
	}
	if err != nil {
		return nil, err
	}
	if flag&os.O_APPEND != 0 {
		if err := f.Seek(f.Size()); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &aferoFile{name: name, fsys: a.fsys, file: f}, nil
}

// Mkdir creates the named directory.
func (a *AferoFs) Mkdir(name string, _ os.FileMode) error {
	d, err := a.fsys.CreateDir(name)
	if err != nil {
		return err
	}
	return d.Close()
}

// MkdirAll creates the named directory along with any missing parents.
func (a *AferoFs) MkdirAll(path string, perm os.FileMode) error {
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	prefix := ""
	if strings.HasPrefix(path, "/") {
		prefix = "/"
	}
	for i := range parts {
		sub := prefix + strings.Join(parts[:i+1], "/")
		err := a.Mkdir(sub, perm)
		if err != nil && !errors.Is(err, ErrFileExists) {
			return err
		}
	}
	return nil
}

// Remove deletes the named file or empty directory.
func (a *AferoFs) Remove(name string) error {
	entry, err := a.fsys.Stat(name)
	if err != nil {
		return err
	}
	if entry.IsDir() {
		return a.fsys.DeleteDir(name)
	}
	return a.fsys.DeleteFile(name)
}

// RemoveAll deletes the named path and, for directories, everything below
// it. A missing path is not an error.
func (a *AferoFs) RemoveAll(path string) error {
	entry, err := a.fsys.Stat(path)
	if errors.Is(err, ErrFileNotFound) || errors.Is(err, ErrInvalidPath) {
		return nil
	}
	if err != nil {
		return err
	}
	if !entry.IsDir() {
		return a.fsys.DeleteFile(path)
	}

	d, err := a.fsys.OpenDir(path)
	if err != nil {
		return err
	}
	var names []string
	for {
		child, err := d.Read()
		if err != nil {
			d.Close()
			return err
		}
		if child == nil {
			break
		}
		if child.isDotEntry() || child.attr.IsVolumeLabel() {
			continue
		}
		names = append(names, child.Name)
	}
	d.Close()
	for _, name := range names {
		if err := a.RemoveAll(strings.TrimSuffix(path, "/") + "/" + name); err != nil {
			return err
		}
	}
	return a.fsys.DeleteDir(path)
}

// Rename is not supported.
func (a *AferoFs) Rename(oldname, newname string) error { return errUnsupported }

// Stat returns file info for the named path.
func (a *AferoFs) Stat(name string) (os.FileInfo, error) {
	entry, err := a.fsys.Stat(name)
	if err != nil {
		return nil, err
	}
	return entryInfo(entry), nil
}

// Chmod is not supported; FAT32 has no permission bits beyond read-only.
func (a *AferoFs) Chmod(name string, mode os.FileMode) error { return errUnsupported }

// Chown is not supported; FAT32 has no ownership.
func (a *AferoFs) Chown(name string, uid, gid int) error { return errUnsupported }

// Chtimes is not supported; timestamps are maintained by writes.
func (a *AferoFs) Chtimes(name string, atime, mtime time.Time) error { return errUnsupported }

// aferoFile bridges a File or Dir handle to afero.File. Exactly one of file
// and dir is set.
type aferoFile struct {
	name string
	fsys *FS
	file *File
	dir  *Dir
}

func (f *aferoFile) Name() string { return f.name }

func (f *aferoFile) Read(p []byte) (int, error) {
	if f.file == nil {
		return 0, errUnsupported
	}
	n, err := f.file.Read(p)
	if err == nil && n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, err
}

func (f *aferoFile) ReadAt(p []byte, off int64) (int, error) {
	if f.file == nil {
		return 0, errUnsupported
	}
	if err := f.seekTo(off); err != nil {
		return 0, err
	}
	return f.Read(p)
}

func (f *aferoFile) Write(p []byte) (int, error) {
	if f.file == nil {
		return 0, errUnsupported
	}
	return f.file.Write(p)
}

func (f *aferoFile) WriteAt(p []byte, off int64) (int, error) {
	if f.file == nil {
		return 0, errUnsupported
	}
	if err := f.seekTo(off); err != nil {
		return 0, err
	}
	return f.file.Write(p)
}

func (f *aferoFile) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

func (f *aferoFile) Seek(offset int64, whence int) (int64, error) {
	if f.file == nil {
		return 0, errUnsupported
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(f.file.Tell()) + offset
	case io.SeekEnd:
		abs = int64(f.file.Size()) + offset
	default:
		return 0, ErrInvalidParameter
	}
	if err := f.seekTo(abs); err != nil {
		return 0, err
	}
	return int64(f.file.Tell()), nil
}

func (f *aferoFile) seekTo(abs int64) error {
	if abs < 0 || abs > int64(^uint32(0)) {
		return ErrInvalidPosition
	}
	return f.file.Seek(uint32(abs))
}

func (f *aferoFile) Readdir(count int) ([]os.FileInfo, error) {
	if f.dir == nil {
		return nil, errUnsupported
	}
	var infos []os.FileInfo
	for count <= 0 || len(infos) < count {
		entry, err := f.dir.Read()
		if err != nil {
			return infos, err
		}
		if entry == nil {
			if count > 0 && len(infos) == 0 {
				return nil, io.EOF
			}
			break
		}
		if entry.isDotEntry() || entry.attr.IsVolumeLabel() {
			continue
		}
		infos = append(infos, entryInfo(entry))
	}
	return infos, nil
}

func (f *aferoFile) Readdirnames(n int) ([]string, error) {
	infos, err := f.Readdir(n)
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, err
}

func (f *aferoFile) Stat() (os.FileInfo, error) {
	return (&AferoFs{fsys: f.fsys}).Stat(f.name)
}

// Sync is a no-op: every write already went to the medium.
func (f *aferoFile) Sync() error { return nil }

// Truncate is not supported; the driver cannot shrink a cluster chain in
// place.
func (f *aferoFile) Truncate(size int64) error { return errUnsupported }

func (f *aferoFile) Close() error {
	if f.file != nil {
		return f.file.Close()
	}
	if f.dir != nil {
		return f.dir.Close()
	}
	return nil
}

// entryInfo converts a directory entry to os.FileInfo.
func entryInfo(e *Entry) os.FileInfo {
	mode := os.FileMode(0o666)
	if e.IsDir() {
		mode = os.ModeDir | 0o777
	}
	return &fileInfo{
		name: e.Name,
		size: int64(e.Size),
		mode: mode,
		mod:  e.ModTime,
		dir:  e.IsDir(),
	}
}

type fileInfo struct {
	name string
	size int64
	mode os.FileMode
	mod  time.Time
	dir  bool
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return fi.size }
func (fi *fileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *fileInfo) ModTime() time.Time { return fi.mod }
func (fi *fileInfo) IsDir() bool        { return fi.dir }
func (fi *fileInfo) Sys() any           { return nil }
