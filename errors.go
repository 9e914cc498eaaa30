package fat32

// Error is a driver status code. The zero value means success and is never
// returned as a non-nil error; every fallible operation reports exactly one
// of the kinds below so callers can switch on the value or compare with
// errors.Is.
type Error uint8

const (
	errOK Error = iota
	// ErrNoMedia is returned when the block device reports no media present.
	ErrNoMedia
	// ErrInitFailed is returned when the block device fails to initialize.
	ErrInitFailed
	// ErrReadFailed wraps any sector read failure from the block device.
	ErrReadFailed
	// ErrWriteFailed wraps any sector write failure from the block device.
	ErrWriteFailed
	// ErrInvalidFormat is returned by Mount when the medium does not carry a
	// structurally valid FAT32 volume.
	ErrInvalidFormat
	// ErrNotMounted is returned when an operation requires a mounted volume.
	ErrNotMounted
	// ErrFileNotFound is returned when the final path component does not exist.
	ErrFileNotFound
	// ErrInvalidPath is returned when an intermediate path component is
	// missing or is not a directory.
	ErrInvalidPath
	// ErrNotADirectory is returned when a directory operation targets a file.
	ErrNotADirectory
	// ErrNotAFile is returned when a file operation targets a directory or
	// volume label.
	ErrNotAFile
	// ErrInvalidPosition is returned for an out-of-range seek target.
	ErrInvalidPosition
	// ErrDirectoryNotEmpty is returned when deleting a directory that still
	// holds entries other than "." and "..".
	ErrDirectoryNotEmpty
	// ErrDirectoryNotFound is returned when a directory path does not resolve.
	ErrDirectoryNotFound
	// ErrDiskFull is returned when no free cluster or directory slot run can
	// be found.
	ErrDiskFull
	// ErrFileExists is returned by create operations when the path resolves.
	ErrFileExists
	// ErrInvalidParameter is returned for malformed arguments such as a
	// cluster number below 2 or a closed handle.
	ErrInvalidParameter
)

var errStrings = [...]string{
	errOK:                "success",
	ErrNoMedia:           "no media present",
	ErrInitFailed:        "device initialization failed",
	ErrReadFailed:        "read operation failed",
	ErrWriteFailed:       "write operation failed",
	ErrInvalidFormat:     "invalid volume format",
	ErrNotMounted:        "file system not mounted",
	ErrFileNotFound:      "file not found",
	ErrInvalidPath:       "invalid path",
	ErrNotADirectory:     "not a directory",
	ErrNotAFile:          "not a file",
	ErrInvalidPosition:   "invalid file position",
	ErrDirectoryNotEmpty: "directory not empty",
	ErrDirectoryNotFound: "directory not found",
	ErrDiskFull:          "disk full",
	ErrFileExists:        "file already exists",
	ErrInvalidParameter:  "invalid parameter",
}

func (e Error) Error() string {
	if int(e) < len(errStrings) {
		return "fat32: " + errStrings[e]
	}
	return "fat32: unknown error"
}

// err converts a status code to an error value, mapping the OK code to nil.
func (e Error) err() error {
	if e == errOK {
		return nil
	}
	return e
}
