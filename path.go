package fat32

import "strings"

// maxPathLen caps the accepted path length, matching the driver's fixed
// buffers for current directory reconstruction.
const maxPathLen = 256

// maxDirDepth bounds the walk when rebuilding the current directory path.
const maxDirDepth = 16

// splitPath separates a path into its parent directory and final component.
// "/name" splits into "/" and "name"; a bare name gets the empty parent,
// which resolves to the current directory.
func splitPath(path string) (parent, leaf string) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", path
	}
	if i == 0 {
		return "/", path[1:]
	}
	return path[:i], path[i+1:]
}

// resolve walks path to its directory entry. Absolute paths start at the
// root, relative paths at the current directory. "/" resolves to a
// synthetic root entry and the empty path, as well as "." and ".." while
// the root is current, to a synthetic current directory entry.
//
// A missing intermediate component is ErrInvalidPath; a missing final
// component is ErrFileNotFound.
func (fsys *FS) resolve(path string) (*Entry, Error) {
	if len(path) > maxPathLen {
		return nil, ErrInvalidPath
	}
	if path == "/" {
		return &Entry{
			Name:    "/",
			attr:    attrDirectory,
			cluster: fsys.rootCluster,
		}, errOK
	}
	if path == "" || (path == "." || path == "..") && fsys.curDir == fsys.rootCluster {
		return &Entry{
			Name:    ".",
			attr:    attrDirectory,
			cluster: fsys.curDir,
		}, errOK
	}

	cluster := fsys.curDir
	if path[0] == '/' {
		cluster = fsys.rootCluster
	}
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })

	for i, part := range parts {
		last := i == len(parts)-1
		d := fsys.openRawDir(cluster)
		descended := false
		for {
			entry, fr := fsys.dirNext(&d)
			if fr != errOK {
				return nil, fr
			}
			if entry == nil {
				break
			}
			if !fsys.nameEqual(entry.Name, part) {
				continue
			}
			if last {
				return entry, errOK
			}
			if entry.IsDir() {
				cluster = entry.startCluster(fsys)
				descended = true
				break
			}
		}
		if !descended && !last {
			return nil, ErrInvalidPath
		}
	}
	return nil, ErrFileNotFound
}

// Stat looks up the directory entry at path.
func (fsys *FS) Stat(path string) (*Entry, error) {
	if fr := fsys.ready(); fr != errOK {
		return nil, fr
	}
	entry, fr := fsys.resolve(path)
	if fr != errOK {
		return nil, fr
	}
	return entry, nil
}

// SetCurrentDir changes the directory that relative paths resolve against.
func (fsys *FS) SetCurrentDir(path string) error {
	if path == "" {
		return ErrInvalidParameter
	}
	if fr := fsys.ready(); fr != errOK {
		return fr
	}
	entry, fr := fsys.resolve(path)
	if fr != errOK {
		return fr
	}
	if !entry.IsDir() {
		return ErrNotADirectory
	}
	fsys.curDir = entry.startCluster(fsys)
	return nil
}

// CurrentDir reconstructs the absolute path of the current directory by
// walking ".." links upward and looking up each directory's name in its
// parent.
func (fsys *FS) CurrentDir() (string, error) {
	if fr := fsys.ready(); fr != errOK {
		return "", fr
	}
	if fsys.curDir == fsys.rootCluster {
		return "/", nil
	}

	var components [maxDirDepth]string
	depth := 0
	cluster := fsys.curDir
	for cluster != fsys.rootCluster && depth < maxDirDepth {
		parent, fr := fsys.parentOf(cluster)
		if fr != errOK {
			return "", fr
		}
		name, fr := fsys.dirNameIn(parent, cluster)
		if fr != errOK {
			return "", fr
		}
		if name == "" {
			break
		}
		components[depth] = name
		depth++
		cluster = parent
	}

	var sb strings.Builder
	for i := depth - 1; i >= 0; i-- {
		sb.WriteByte('/')
		sb.WriteString(components[i])
	}
	if sb.Len() == 0 {
		return "/", nil
	}
	return sb.String(), nil
}

// parentOf reads a directory's ".." entry to find its parent's start
// cluster.
func (fsys *FS) parentOf(cluster uint32) (uint32, Error) {
	d := fsys.openRawDir(cluster)
	for {
		entry, fr := fsys.dirNext(&d)
		if fr != errOK {
			return 0, fr
		}
		if entry == nil {
			return fsys.rootCluster, errOK
		}
		if entry.IsDir() && entry.Name == ".." {
			return entry.startCluster(fsys), errOK
		}
	}
}

// dirNameIn finds the name under which a child directory cluster appears in
// its parent directory.
func (fsys *FS) dirNameIn(parent, child uint32) (string, Error) {
	d := fsys.openRawDir(parent)
	for {
		entry, fr := fsys.dirNext(&d)
		if fr != errOK {
			return "", fr
		}
		if entry == nil {
			return "", errOK
		}
		if entry.IsDir() && !entry.isDotEntry() && entry.startCluster(fsys) == child {
			return entry.Name, errOK
		}
	}
}
