package fat32

import (
	"log/slog"
	"time"
)

// locator pins a directory slot to its on-disk position: the volume-relative
// sector and the byte offset of the 32-byte slot within it.
type locator struct {
	sector uint32
	offset uint16
}

// Entry is one decoded directory entry. Long name fragments preceding an 8.3
// entry have already been folded into Name when their checksum matches.
type Entry struct {
	// Name is the entry's filename: the long name when one is attached,
	// otherwise the lowercased 8.3 name.
	Name string
	// Size is the file size in bytes, zero for directories.
	Size uint32
	// ModTime is the last modification timestamp.
	ModTime time.Time

	attr     attr
	cluster  uint32
	shortRaw [11]byte
	loc      locator
}

// IsDir reports whether the entry names a subdirectory.
func (e *Entry) IsDir() bool { return e.attr.IsDir() }

// startCluster resolves the entry's cluster field, mapping the zero used by
// ".." entries pointing at the root back to the real root cluster.
func (e *Entry) startCluster(fsys *FS) uint32 {
	if e.cluster == 0 {
		return fsys.rootCluster
	}
	return e.cluster
}

// isDotEntry reports whether the entry is "." or "..".
func (e *Entry) isDotEntry() bool { return e.Name == "." || e.Name == ".." }

// rawDir is the cursor state for iterating a directory cluster chain.
type rawDir struct {
	startCluster   uint32
	currentCluster uint32
	position       uint32 // byte offset within the current cluster
	ended          bool   // end marker or end of chain reached
	lfn            lfnAccum
}

// lfnAccum collects long name fragments until the 8.3 entry that owns them
// arrives. A fragment with the last flag restarts the accumulator and pins
// the expected checksum.
type lfnAccum struct {
	valid bool
	sum   byte
	max   int // units filled, upper bound
	buf   [maxLFNFragments * lfnUnitsPerSlot]uint16
}

func (a *lfnAccum) name() string {
	var buf [maxLongName]byte
	n := 0
	for i := 0; i < a.max && n < maxLongName; i++ {
		u := a.buf[i]
		if u == 0x0000 || u == 0xFFFF {
			break
		}
		buf[n] = decodeLFNUnit(u)
		n++
	}
	return string(buf[:n])
}

// labelString renders a volume label entry's raw name: the 11 bytes with
// trailing spaces trimmed, no dot inserted.
func labelString(raw [11]byte) string {
	end := len(raw)
	for end > 0 && raw[end-1] == ' ' {
		end--
	}
	return string(raw[:end])
}

func (fsys *FS) openRawDir(start uint32) rawDir {
	if start == 0 {
		start = fsys.rootCluster
	}
	return rawDir{startCluster: start, currentCluster: start}
}

// dirNext decodes the next live entry of the directory, assembling long
// names on the way. It returns nil with no error once the end marker or the
// end of the cluster chain is reached.
func (fsys *FS) dirNext(d *rawDir) (*Entry, Error) {
	if d.ended {
		return nil, errOK
	}
	for {
		clusterOffset := d.position % fsys.bytesPerCluster
		sector := fsys.clusterToSector(d.currentCluster) + clusterOffset/SectorSize
		if fr := fsys.readSector(sector); fr != errOK {
			return nil, fr
		}
		off := clusterOffset % SectorSize
		slot := fsys.win[off : off+slotSize]

		var out *Entry
		switch marker := slot[0]; {
		case marker == slotEnd:
			d.ended = true
			return nil, errOK

		case attr(slot[sfnAttrOff]) == attrLongName:
			ls := lfnSlot{data: slot}
			if ls.IsLast() {
				d.lfn = lfnAccum{valid: true, sum: ls.Checksum()}
			}
			if d.lfn.valid && ls.Checksum() == d.lfn.sum {
				if ord := ls.Ordinal(); ord >= 1 && ord <= maxLFNFragments {
					units := ls.Units()
					copy(d.lfn.buf[(ord-1)*lfnUnitsPerSlot:], units[:])
					if end := ord * lfnUnitsPerSlot; end > d.lfn.max {
						d.lfn.max = end
					}
				}
			}

		case marker != slotFree:
			ds := dirSlot{data: slot}
			raw := ds.ShortName()
			out = &Entry{
				Size:     ds.Size(),
				ModTime:  ds.ModifiedAt().Time(),
				attr:     ds.Attributes(),
				cluster:  ds.Cluster(),
				shortRaw: raw,
				loc:      locator{sector: sector, offset: uint16(off)},
			}
			if d.lfn.valid && d.lfn.max > 0 && shortNameChecksum(raw) == d.lfn.sum {
				out.Name = d.lfn.name()
			}
			if out.Name == "" {
				if out.attr.IsVolumeLabel() && !out.attr.IsDir() {
					out.Name = labelString(raw)
				} else {
					out.Name = decodeShortName(raw)
				}
			}
			d.lfn = lfnAccum{}
		}

		d.position += slotSize
		if d.position%fsys.bytesPerCluster == 0 {
			next, fr := fsys.readFATEntry(d.currentCluster)
			if fr != errOK {
				return nil, fr
			}
			if isEOC(next) || !fsys.validCluster(next) {
				d.ended = true
				return out, errOK
			}
			d.currentCluster = next
			d.position = 0
		}
		if out != nil {
			return out, errOK
		}
	}
}

// Dir is an open directory iterator.
type Dir struct {
	fsys *FS
	open bool
	raw  rawDir
}

// OpenDir opens the directory at path for reading. The empty path and "."
// open the current directory, "/" the root.
func (fsys *FS) OpenDir(path string) (*Dir, error) {
	if fr := fsys.ready(); fr != errOK {
		return nil, fr
	}
	entry, fr := fsys.resolve(path)
	if fr != errOK {
		return nil, fr
	}
	if !entry.IsDir() {
		return nil, ErrNotADirectory
	}
	return &Dir{
		fsys: fsys,
		open: true,
		raw:  fsys.openRawDir(entry.startCluster(fsys)),
	}, nil
}

// Read returns the next entry of the directory, including the "." and ".."
// entries and the volume label when present. At the end of the directory it
// returns nil with no error.
func (d *Dir) Read() (*Entry, error) {
	if d == nil || !d.open {
		return nil, ErrInvalidParameter
	}
	if fr := d.fsys.ready(); fr != errOK {
		return nil, fr
	}
	entry, fr := d.fsys.dirNext(&d.raw)
	if fr != errOK {
		return nil, fr
	}
	return entry, nil
}

// Close releases the iterator. Closing twice is harmless.
func (d *Dir) Close() error {
	if d != nil {
		*d = Dir{}
	}
	return nil
}

// CreateDir creates a new, empty directory at path and returns it opened.
// The new directory gets one zeroed cluster holding its "." and ".."
// entries.
func (fsys *FS) CreateDir(path string) (*Dir, error) {
	if fr := fsys.ready(); fr != errOK {
		return nil, fr
	}
	cluster, fr := fsys.createEntry(path, attrDirectory)
	if fr != errOK {
		return nil, fr
	}
	return &Dir{
		fsys: fsys,
		open: true,
		raw:  fsys.openRawDir(cluster),
	}, nil
}

// DeleteDir removes the empty directory at path. Directories still holding
// entries besides "." and ".." are refused with ErrDirectoryNotEmpty, and
// the root and current directories cannot be removed.
func (fsys *FS) DeleteDir(path string) error {
	if fr := fsys.ready(); fr != errOK {
		return fr
	}
	entry, fr := fsys.resolve(path)
	if fr == ErrFileNotFound {
		return ErrDirectoryNotFound
	}
	if fr != errOK {
		return fr
	}
	if !entry.IsDir() {
		return ErrNotADirectory
	}
	start := entry.startCluster(fsys)
	if start == fsys.rootCluster || start == fsys.curDir {
		return ErrInvalidParameter
	}
	empty, fr := fsys.dirIsEmpty(start)
	if fr != errOK {
		return fr
	}
	if !empty {
		return ErrDirectoryNotEmpty
	}

	parentPath, _ := splitPath(path)
	parent, fr := fsys.resolve(parentPath)
	if fr != errOK {
		return fr
	}
	if fr = fsys.removeEntrySlots(parent.startCluster(fsys), entry.loc); fr != errOK {
		return fr
	}
	return fsys.releaseChain(start).err()
}

// dirIsEmpty reports whether the directory holds nothing besides its dot
// entries.
func (fsys *FS) dirIsEmpty(start uint32) (bool, Error) {
	d := fsys.openRawDir(start)
	for {
		entry, fr := fsys.dirNext(&d)
		if fr != errOK {
			return false, fr
		}
		if entry == nil {
			return true, errOK
		}
		if !entry.isDotEntry() {
			return false, errOK
		}
	}
}

// createEntry builds a new directory entry at path with a freshly allocated
// start cluster and returns that cluster. Used for both files and
// directories; a directory additionally gets its first cluster initialized
// with dot entries.
func (fsys *FS) createEntry(path string, a attr) (uint32, Error) {
	_, fr := fsys.resolve(path)
	if fr != ErrFileNotFound {
		if fr == errOK {
			return 0, ErrFileExists
		}
		return 0, fr
	}

	parentPath, leaf := splitPath(path)
	parent, fr := fsys.resolve(parentPath)
	if fr != errOK {
		return 0, fr
	}
	if !parent.IsDir() {
		return 0, ErrNotADirectory
	}
	dirStart := parent.startCluster(fsys)

	var name83 [11]byte
	var frags [][lfnUnitsPerSlot]uint16
	if isValidShortName(leaf) {
		name83, fr = encodeShortName(leaf)
		if fr != errOK {
			return 0, fr
		}
	} else {
		if !isValidLongName(leaf) {
			return 0, ErrInvalidParameter
		}
		name83, fr = fsys.generateUniqueShortName(dirStart, leaf)
		if fr != errOK {
			return 0, fr
		}
		frags, fr = encodeLongName(leaf)
		if fr != errOK {
			return 0, fr
		}
	}

	locs, fr := fsys.allocateEntrySlots(dirStart, len(frags)+1)
	if fr != errOK {
		return 0, fr
	}
	cluster, fr := fsys.allocateCluster()
	if fr != errOK {
		return 0, fr
	}
	if a.IsDir() {
		// ".." points at the parent, with the root encoded as zero.
		parentRef := dirStart
		if parentRef == fsys.rootCluster {
			parentRef = 0
		}
		if fr = fsys.initDirCluster(cluster, parentRef); fr != errOK {
			return 0, fr
		}
	}
	if fr = fsys.writeEntrySlots(locs, name83, frags, a, cluster, 0); fr != errOK {
		return 0, fr
	}
	fsys.debug("createEntry",
		slog.String("name", leaf),
		slog.Uint64("cluster", uint64(cluster)))
	return cluster, errOK
}

// allocateEntrySlots finds a run of needed consecutive free or end slots in
// the directory starting at dirStart and returns their locators in order.
// Directories are never grown, so running out of slots is ErrDiskFull.
func (fsys *FS) allocateEntrySlots(dirStart uint32, needed int) ([]locator, Error) {
	cluster := dirStart
	position := uint32(0)
	locs := make([]locator, 0, needed)
	for {
		clusterOffset := position % fsys.bytesPerCluster
		sector := fsys.clusterToSector(cluster) + clusterOffset/SectorSize
		if fr := fsys.readSector(sector); fr != errOK {
			return nil, fr
		}
		off := clusterOffset % SectorSize
		if marker := fsys.win[off]; marker == slotFree || marker == slotEnd {
			locs = append(locs, locator{sector: sector, offset: uint16(off)})
			if len(locs) == needed {
				return locs, errOK
			}
		} else {
			locs = locs[:0]
		}

		position += slotSize
		if position%fsys.bytesPerCluster == 0 {
			next, fr := fsys.readFATEntry(cluster)
			if fr != errOK {
				return nil, fr
			}
			if isEOC(next) || !fsys.validCluster(next) {
				return nil, ErrDiskFull
			}
			cluster = next
			position = 0
		}
	}
}

// writeEntrySlots fills an allocated slot run: long name fragments first,
// highest ordinal leading with the last flag set, then the 8.3 entry. frags
// may be empty for a short-name-only entry.
func (fsys *FS) writeEntrySlots(locs []locator, name83 [11]byte, frags [][lfnUnitsPerSlot]uint16, a attr, cluster, size uint32) Error {
	sum := shortNameChecksum(name83)
	n := len(frags)
	for i := 0; i < n; i++ {
		ord := n - i
		loc := locs[i]
		if fr := fsys.readSector(loc.sector); fr != errOK {
			return fr
		}
		slot := fsys.win[loc.offset : int(loc.offset)+slotSize]
		for j := range slot {
			slot[j] = 0
		}
		ls := lfnSlot{data: slot}
		seq := byte(ord)
		if i == 0 {
			seq |= lfnLastSeq
		}
		ls.SetSequence(seq)
		ls.SetChecksum(sum)
		ls.SetUnits(frags[ord-1])
		if fr := fsys.writeSector(loc.sector); fr != errOK {
			return fr
		}
	}

	loc := locs[n]
	if fr := fsys.readSector(loc.sector); fr != errOK {
		return fr
	}
	ds := dirSlot{data: fsys.win[loc.offset : int(loc.offset)+slotSize]}
	ds.clear()
	ds.SetShortName(name83)
	ds.SetAttributes(a)
	ds.SetCluster(cluster)
	ds.SetSize(size)
	ds.SetModifiedAt(newDatetime(fsys.timeNow()))
	return fsys.writeSector(loc.sector)
}

// initDirCluster zeroes a fresh directory cluster and writes its "." and
// ".." entries. parentRef is the parent's start cluster, zero for the root.
func (fsys *FS) initDirCluster(cluster, parentRef uint32) Error {
	first := fsys.clusterToSector(cluster)
	for i := range fsys.win {
		fsys.win[i] = 0
	}
	fsys.invalidateWindow()
	for s := uint32(0); s < uint32(fsys.secPerClus); s++ {
		if fr := fsys.writeSector(first + s); fr != errOK {
			return fr
		}
		// writeSector records the window as holding this sector; keep the
		// memo honest while reusing the zero fill.
		fsys.invalidateWindow()
	}

	now := newDatetime(fsys.timeNow())
	dot := [11]byte{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	dotdot := [11]byte{'.', '.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}

	ds := dirSlot{data: fsys.win[0:slotSize]}
	ds.clear()
	ds.SetShortName(dot)
	ds.SetAttributes(attrDirectory)
	ds.SetCluster(cluster)
	ds.SetModifiedAt(now)

	ds = dirSlot{data: fsys.win[slotSize : 2*slotSize]}
	ds.clear()
	ds.SetShortName(dotdot)
	ds.SetAttributes(attrDirectory)
	ds.SetCluster(parentRef)
	ds.SetModifiedAt(now)

	return fsys.writeSector(first)
}

// removeEntrySlots marks the 8.3 entry at target and its preceding long
// name run as free. The directory chain only links forward, so the run is
// recovered by rescanning from the start and remembering the long name
// slots seen immediately before the target.
func (fsys *FS) removeEntrySlots(dirStart uint32, target locator) Error {
	cluster := dirStart
	position := uint32(0)
	var run [maxLFNFragments]locator
	nrun := 0
	for {
		clusterOffset := position % fsys.bytesPerCluster
		sector := fsys.clusterToSector(cluster) + clusterOffset/SectorSize
		if fr := fsys.readSector(sector); fr != errOK {
			return fr
		}
		off := clusterOffset % SectorSize
		marker := fsys.win[off]
		if marker == slotEnd {
			return ErrFileNotFound
		}
		loc := locator{sector: sector, offset: uint16(off)}
		if loc == target {
			for i := 0; i < nrun; i++ {
				if fr := fsys.freeSlot(run[i]); fr != errOK {
					return fr
				}
			}
			return fsys.freeSlot(loc)
		}

		if marker != slotFree && attr(fsys.win[off+sfnAttrOff]) == attrLongName {
			if fsys.win[off]&lfnLastSeq != 0 {
				nrun = 0
			}
			if nrun < maxLFNFragments {
				run[nrun] = loc
				nrun++
			}
		} else {
			nrun = 0
		}

		position += slotSize
		if position%fsys.bytesPerCluster == 0 {
			next, fr := fsys.readFATEntry(cluster)
			if fr != errOK {
				return fr
			}
			if isEOC(next) || !fsys.validCluster(next) {
				return ErrFileNotFound
			}
			cluster = next
			position = 0
		}
	}
}

// freeSlot rewrites a slot's marker byte as deleted.
func (fsys *FS) freeSlot(loc locator) Error {
	if fr := fsys.readSector(loc.sector); fr != errOK {
		return fr
	}
	fsys.win[loc.offset] = slotFree
	return fsys.writeSector(loc.sector)
}
