package fat32

// Filename handling: 8.3 short names stored as 11 space-padded bytes, long
// names stored as chains of UTF-16 fragments. The driver's name API is
// ASCII; UTF-16 units outside ASCII decode to '?' and cannot be created
// through this API.

// shortSpecials are the punctuation characters allowed in an 8.3 name in
// addition to letters and digits.
const shortSpecials = "$%'-_@~`!(){}^#&"

func upperASCII(c byte) byte {
	if 'a' <= c && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

func lowerASCII(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

// shortNameAllowed reports whether c may appear in a stored 8.3 name. Input
// is expected uppercased already.
func shortNameAllowed(c byte) bool {
	if 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' {
		return true
	}
	for i := 0; i < len(shortSpecials); i++ {
		if c == shortSpecials[i] {
			return true
		}
	}
	return false
}

// isValidShortName reports whether name can be stored as a plain 8.3 entry
// without a long name chain: 1-8 character base, optional dot and 1-3
// character extension, characters from the 8.3 repertoire (lowercase
// accepted, stored uppercase).
func isValidShortName(name string) bool {
	if len(name) == 0 || len(name) > 12 {
		return false
	}
	dot := -1
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '.' {
			if dot >= 0 || i == 0 {
				return false
			}
			dot = i
			continue
		}
		if !shortNameAllowed(upperASCII(c)) {
			return false
		}
	}
	base, ext := len(name), 0
	if dot >= 0 {
		base, ext = dot, len(name)-dot-1
	}
	return base >= 1 && base <= 8 && ext <= 3
}

// encodeShortName packs a valid 8.3 filename into the 11-byte uppercase
// space-padded on-disk form.
func encodeShortName(name string) (enc [11]byte, _ Error) {
	if !isValidShortName(name) {
		return enc, ErrInvalidParameter
	}
	for i := range enc {
		enc[i] = ' '
	}
	dst := 0
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			dst = 8
			continue
		}
		enc[dst] = upperASCII(name[i])
		dst++
	}
	return enc, errOK
}

// decodeShortName renders an on-disk 8.3 name as a lowercase filename with
// the dot reinserted.
func decodeShortName(enc [11]byte) string {
	var buf [12]byte
	n := 0
	for i := 0; i < 8 && enc[i] != ' '; i++ {
		buf[n] = lowerASCII(enc[i])
		n++
	}
	if enc[8] != ' ' {
		buf[n] = '.'
		n++
		for i := 8; i < 11 && enc[i] != ' '; i++ {
			buf[n] = lowerASCII(enc[i])
			n++
		}
	}
	return string(buf[:n])
}

// shortNameChecksum is the rotate-and-add checksum over the 11 name bytes
// that ties long name fragments to their 8.3 entry.
func shortNameChecksum(name [11]byte) byte {
	var sum byte
	for i := 0; i < 11; i++ {
		sum = sum>>1 | sum<<7 // rotate right
		sum += name[i]
	}
	return sum
}

// isValidLongName reports whether name is acceptable as a long filename:
// 1-255 printable ASCII characters excluding the path and wildcard
// metacharacters.
func isValidLongName(name string) bool {
	if len(name) == 0 || len(name) > maxLongName {
		return false
	}
	for i := 0; i < len(name); i++ {
		switch c := name[i]; {
		case c < 0x20 || c >= 0x80:
			return false
		case c == '"' || c == '*' || c == '/' || c == ':' || c == '<' ||
			c == '>' || c == '?' || c == '\\' || c == '|':
			return false
		}
	}
	// Names of only dots or trailing spaces are not storable.
	allDots := true
	for i := 0; i < len(name); i++ {
		if name[i] != '.' {
			allDots = false
			break
		}
	}
	if allDots || name[len(name)-1] == ' ' || name[len(name)-1] == '.' {
		return false
	}
	return true
}

// encodeLongName splits a long filename into on-disk UTF-16 fragments of 13
// units each: the name's bytes widened, a 0x0000 terminator when the last
// fragment has room, and 0xFFFF fill after that.
func encodeLongName(name string) (frags [][lfnUnitsPerSlot]uint16, _ Error) {
	if !isValidLongName(name) {
		return nil, ErrInvalidParameter
	}
	nfrag := (len(name) + lfnUnitsPerSlot - 1) / lfnUnitsPerSlot
	if nfrag > maxLFNFragments {
		return nil, ErrInvalidParameter
	}
	frags = make([][lfnUnitsPerSlot]uint16, nfrag)
	for i := range frags {
		for j := range frags[i] {
			pos := i*lfnUnitsPerSlot + j
			switch {
			case pos < len(name):
				frags[i][j] = uint16(name[pos])
			case pos == len(name):
				frags[i][j] = 0x0000
			default:
				frags[i][j] = 0xFFFF
			}
		}
	}
	return frags, errOK
}

// decodeLFNUnit maps one stored UTF-16 unit to the driver's ASCII name
// space. Anything outside ASCII becomes '?'.
func decodeLFNUnit(u uint16) byte {
	if u >= 0x80 {
		return '?'
	}
	return byte(u)
}

// nameEqual compares two filenames case-insensitively using Unicode case
// folding.
func (fsys *FS) nameEqual(a, b string) bool {
	if a == b {
		return true
	}
	return fsys.fold.String(a) == fsys.fold.String(b)
}

// generateBasisName derives the 8.3 basis from a long filename per the
// standard algorithm: uppercase, drop spaces and leading dots, substitute
// '_' for characters outside the 8.3 repertoire, split at the last dot and
// truncate to 8+3. lossy reports whether any substitution or truncation
// happened, which forces a numeric tail.
func generateBasisName(name string) (basis [11]byte, lossy bool) {
	for i := range basis {
		basis[i] = ' '
	}

	// Strip leading dots and find the extension dot.
	start := 0
	for start < len(name) && name[start] == '.' {
		start++
	}
	if start > 0 {
		lossy = true
	}
	lastDot := -1
	for i := len(name) - 1; i >= start; i-- {
		if name[i] == '.' {
			lastDot = i
			break
		}
	}

	baseEnd := len(name)
	if lastDot >= 0 {
		baseEnd = lastDot
	}
	dst := 0
	for i := start; i < baseEnd; i++ {
		c := name[i]
		if c == ' ' || c == '.' {
			lossy = true
			continue
		}
		c = upperASCII(c)
		if !shortNameAllowed(c) {
			c = '_'
			lossy = true
		}
		if dst >= 8 {
			lossy = true
			break
		}
		basis[dst] = c
		dst++
	}

	if lastDot >= 0 {
		dst = 8
		for i := lastDot + 1; i < len(name); i++ {
			c := name[i]
			if c == ' ' {
				lossy = true
				continue
			}
			c = upperASCII(c)
			if !shortNameAllowed(c) {
				c = '_'
				lossy = true
			}
			if dst >= 11 {
				lossy = true
				break
			}
			basis[dst] = c
			dst++
		}
	}
	return basis, lossy
}

// applyNumericTail rewrites basis in place with a "~n" tail so that base
// plus tail still fit in 8 bytes.
func applyNumericTail(basis *[11]byte, n uint32) {
	var tail [8]byte
	t := len(tail)
	for v := n; v > 0; v /= 10 {
		t--
		tail[t] = byte('0' + v%10)
	}
	t--
	tail[t] = '~'
	digits := len(tail) - t

	baseLen := 8
	for baseLen > 0 && basis[baseLen-1] == ' ' {
		baseLen--
	}
	if baseLen > 8-digits {
		baseLen = 8 - digits
	}
	copy(basis[baseLen:], tail[t:])
	for i := baseLen + digits; i < 8; i++ {
		basis[i] = ' '
	}
}

// generateUniqueShortName builds the 8.3 entry name backing a long filename
// in the directory starting at dirStart. A clean, collision-free basis is
// used as is; otherwise numeric tails ~1 through ~999999 are tried in order.
func (fsys *FS) generateUniqueShortName(dirStart uint32, longName string) ([11]byte, Error) {
	basis, lossy := generateBasisName(longName)
	if !lossy {
		taken, fr := fsys.shortNameTaken(dirStart, basis)
		if fr != errOK {
			return basis, fr
		}
		if !taken {
			return basis, errOK
		}
	}
	for n := uint32(1); n <= 999999; n++ {
		candidate := basis
		applyNumericTail(&candidate, n)
		taken, fr := fsys.shortNameTaken(dirStart, candidate)
		if fr != errOK {
			return candidate, fr
		}
		if !taken {
			return candidate, errOK
		}
	}
	return basis, ErrDiskFull
}

// shortNameTaken scans a directory for an entry already using the given 8.3
// name.
func (fsys *FS) shortNameTaken(dirStart uint32, name [11]byte) (bool, Error) {
	dir := fsys.openRawDir(dirStart)
	for {
		entry, fr := fsys.dirNext(&dir)
		if fr != errOK {
			return false, fr
		}
		if entry == nil {
			return false, errOK
		}
		if entry.shortRaw == name {
			return true, errOK
		}
	}
}
