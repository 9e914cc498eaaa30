package fat32

import "log/slog"

// File is an open file handle. Handles hold no locks and are not tracked by
// the FS; the caller is responsible for not mixing writers on the same
// file.
type File struct {
	fsys  *FS
	open  bool
	start uint32 // first cluster of the file's chain
	pos   uint32
	size  uint32
	attr  attr
	loc   locator // the file's 8.3 directory slot, for size writeback
}

// OpenFile opens the existing file at path for reading and writing. The
// position starts at zero. Directories and the volume label are refused
// with ErrNotAFile.
func (fsys *FS) OpenFile(path string) (*File, error) {
	if fr := fsys.ready(); fr != errOK {
		return nil, fr
	}
	entry, fr := fsys.resolve(path)
	if fr != errOK {
		return nil, fr
	}
	if entry.IsDir() || entry.attr.IsVolumeLabel() {
		return nil, ErrNotAFile
	}
	return &File{
		fsys:  fsys,
		open:  true,
		start: entry.cluster,
		size:  entry.Size,
		attr:  entry.attr,
		loc:   entry.loc,
	}, nil
}

// CreateFile creates a new empty file at path and opens it. An existing
// entry of any kind at that path is ErrFileExists. The new file owns one
// allocated cluster even while its size is zero.
func (fsys *FS) CreateFile(path string) (*File, error) {
	if fr := fsys.ready(); fr != errOK {
		return nil, fr
	}
	if _, fr := fsys.createEntry(path, attrArchive); fr != errOK {
		return nil, fr
	}
	return fsys.OpenFile(path)
}

// Read copies up to len(p) bytes from the current position into p and
// advances the position. It returns the number of bytes copied, which is
// short only at end of file; reading at or past the end returns 0 with no
// error.
func (f *File) Read(p []byte) (int, error) {
	if f == nil || !f.open {
		return 0, ErrInvalidParameter
	}
	fsys := f.fsys
	if fr := fsys.ready(); fr != errOK {
		return 0, fr
	}
	if f.pos >= f.size {
		return 0, nil
	}
	if remaining := f.size - f.pos; uint32(len(p)) > remaining {
		p = p[:remaining]
	}

	cluster, fr := fsys.walkChain(f.start, f.pos/fsys.bytesPerCluster)
	if fr != errOK {
		return 0, fr
	}
	total := 0
	for total < len(p) {
		clusterOffset := f.pos % fsys.bytesPerCluster
		sector := fsys.clusterToSector(cluster) + clusterOffset/SectorSize
		off := clusterOffset % SectorSize
		if fr := fsys.readSector(sector); fr != errOK {
			return total, fr
		}
		n := copy(p[total:], fsys.win[off:])
		total += n
		f.pos += uint32(n)

		if f.pos%fsys.bytesPerCluster == 0 && total < len(p) {
			next, fr := fsys.readFATEntry(cluster)
			if fr != errOK || isEOC(next) || !fsys.validCluster(next) {
				break
			}
			cluster = next
		}
	}
	return total, nil
}

// Write copies p to the file at the current position, extending the cluster
// chain as needed, and advances the position. Growth past the current size
// updates the directory entry's size and timestamp. When the volume fills
// up mid-write the bytes already written stay in place and the count
// written is returned alongside ErrDiskFull.
func (f *File) Write(p []byte) (int, error) {
	if f == nil || !f.open {
		return 0, ErrInvalidParameter
	}
	fsys := f.fsys
	if fr := fsys.ready(); fr != errOK {
		return 0, fr
	}
	if len(p) == 0 {
		return 0, nil
	}
	if f.start == 0 {
		// Entry without a cluster chain yet, as other implementations
		// store empty files. Give it one and record it in the slot.
		cluster, fr := fsys.allocateCluster()
		if fr != errOK {
			return 0, fr
		}
		if fr = fsys.readSector(f.loc.sector); fr != errOK {
			return 0, fr
		}
		ds := dirSlot{data: fsys.win[f.loc.offset : int(f.loc.offset)+slotSize]}
		ds.SetCluster(cluster)
		if fr = fsys.writeSector(f.loc.sector); fr != errOK {
			return 0, fr
		}
		f.start = cluster
	}

	// Walk to the cluster holding the write position, extending the chain
	// when the position sits exactly at the end of the last cluster.
	cluster := f.start
	for i := f.pos / fsys.bytesPerCluster; i > 0; i-- {
		next, fr := fsys.readFATEntry(cluster)
		if fr != errOK {
			return 0, fr
		}
		if isEOC(next) {
			next, fr = fsys.extendChain(cluster)
			if fr != errOK {
				return 0, fr
			}
		}
		cluster = next
	}

	total := 0
	var werr Error = errOK
	for total < len(p) {
		clusterOffset := f.pos % fsys.bytesPerCluster
		sector := fsys.clusterToSector(cluster) + clusterOffset/SectorSize
		off := clusterOffset % SectorSize
		if fr := fsys.readSector(sector); fr != errOK {
			werr = fr
			break
		}
		n := copy(fsys.win[off:], p[total:])
		if fr := fsys.writeSector(sector); fr != errOK {
			werr = fr
			break
		}
		total += n
		f.pos += uint32(n)

		if f.pos%fsys.bytesPerCluster == 0 && total < len(p) {
			next, fr := fsys.readFATEntry(cluster)
			if fr != errOK {
				werr = fr
				break
			}
			if isEOC(next) {
				next, fr = fsys.extendChain(cluster)
				if fr != errOK {
					werr = fr // typically ErrDiskFull
					break
				}
			}
			cluster = next
		}
	}

	if f.pos > f.size {
		f.size = f.pos
	}
	if fr := f.syncEntry(); fr != errOK && werr == errOK {
		werr = fr
	}
	if werr != errOK {
		fsys.warn("file write incomplete",
			slog.Int("written", total),
			slog.String("err", werr.Error()))
	}
	return total, werr.err()
}

// syncEntry writes the file's size and modification time back to its
// directory slot.
func (f *File) syncEntry() Error {
	fsys := f.fsys
	if fr := fsys.readSector(f.loc.sector); fr != errOK {
		return fr
	}
	ds := dirSlot{data: fsys.win[f.loc.offset : int(f.loc.offset)+slotSize]}
	ds.SetSize(f.size)
	ds.SetModifiedAt(newDatetime(fsys.timeNow()))
	return fsys.writeSector(f.loc.sector)
}

// Seek sets the position for the next Read or Write, clamping past-end
// positions to the file size. The cluster chain is not touched until data
// is actually transferred.
func (f *File) Seek(position uint32) error {
	if f == nil || !f.open {
		return ErrInvalidParameter
	}
	if position > f.size {
		position = f.size
	}
	f.pos = position
	return nil
}

// Tell returns the current position.
func (f *File) Tell() uint32 {
	if f == nil {
		return 0
	}
	return f.pos
}

// Size returns the file size in bytes.
func (f *File) Size() uint32 {
	if f == nil {
		return 0
	}
	return f.size
}

// EOF reports whether the position has reached the end of the file.
func (f *File) EOF() bool {
	return f == nil || f.pos >= f.size
}

// Close invalidates the handle. Data and metadata are already on the medium
// by the time each Write returns, so Close has nothing to flush.
func (f *File) Close() error {
	if f != nil {
		*f = File{}
	}
	return nil
}

// DeleteFile removes the file at path: its directory entry, any long name
// fragments, and its cluster chain. Directories are refused with
// ErrNotAFile; use DeleteDir for those.
func (fsys *FS) DeleteFile(path string) error {
	if fr := fsys.ready(); fr != errOK {
		return fr
	}
	entry, fr := fsys.resolve(path)
	if fr != errOK {
		return fr
	}
	if entry.IsDir() || entry.attr.IsVolumeLabel() {
		return ErrNotAFile
	}

	parentPath, _ := splitPath(path)
	parent, fr := fsys.resolve(parentPath)
	if fr != errOK {
		return fr
	}
	if fr = fsys.removeEntrySlots(parent.startCluster(fsys), entry.loc); fr != errOK {
		return fr
	}
	if entry.cluster != 0 {
		return fsys.releaseChain(entry.cluster).err()
	}
	return nil
}
