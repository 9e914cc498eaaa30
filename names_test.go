package fat32

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortNameValidity(t *testing.T) {
	valid := []string{
		"a", "A", "readme.txt", "FILE1234.TXT", "name.x", "8chars_x",
		"x.y", "dollar$.1", "no_ext", "name.",
	}
	for _, name := range valid {
		assert.True(t, isValidShortName(name), "expected valid: %q", name)
	}
	invalid := []string{
		"", ".", ".hidden", "toolongname.txt", "a.long", "two.dots.txt",
		"bad name.txt", "file?.txt", "semi;co", "ninechars",
		"q.txtx", "a/b",
	}
	for _, name := range invalid {
		assert.False(t, isValidShortName(name), "expected invalid: %q", name)
	}
}

func TestShortNameCodec(t *testing.T) {
	enc, fr := encodeShortName("readme.txt")
	require.Equal(t, errOK, fr)
	assert.Equal(t, "README  TXT", string(enc[:]))
	assert.Equal(t, "readme.txt", decodeShortName(enc))

	enc, fr = encodeShortName("noext")
	require.Equal(t, errOK, fr)
	assert.Equal(t, "NOEXT      ", string(enc[:]))
	assert.Equal(t, "noext", decodeShortName(enc))

	_, fr = encodeShortName("not a valid name")
	assert.Equal(t, ErrInvalidParameter, fr)
}

func TestShortNameChecksum(t *testing.T) {
	var name [11]byte
	copy(name[:], "A          ")
	assert.EqualValues(t, 128, shortNameChecksum(name))

	// The checksum must distinguish names that differ only by extension.
	var other [11]byte
	copy(other[:], "A       TXT")
	assert.NotEqual(t, shortNameChecksum(name), shortNameChecksum(other))
}

func TestLongNameValidity(t *testing.T) {
	assert.True(t, isValidLongName("Long File Name.txt"))
	assert.True(t, isValidLongName("mixed.Case.Name"))
	assert.False(t, isValidLongName(""))
	assert.False(t, isValidLongName("has/slash"))
	assert.False(t, isValidLongName("trailing."))
	assert.False(t, isValidLongName("trailing "))
	assert.False(t, isValidLongName("..."))
	assert.False(t, isValidLongName("caf\xc3\xa9"))
	assert.False(t, isValidLongName(strings.Repeat("x", maxLongName+1)))
}

func TestEncodeLongName(t *testing.T) {
	frags, fr := encodeLongName("hello world.txt") // 15 characters
	require.Equal(t, errOK, fr)
	require.Len(t, frags, 2)
	assert.EqualValues(t, 'h', frags[0][0])
	assert.EqualValues(t, 't', frags[0][12])
	assert.EqualValues(t, 'x', frags[1][0])
	assert.EqualValues(t, 't', frags[1][1])
	assert.EqualValues(t, 0x0000, frags[1][2], "terminator after the name")
	assert.EqualValues(t, 0xFFFF, frags[1][3], "fill after the terminator")

	// A name of exactly 13 units fills one fragment with no terminator.
	frags, fr = encodeLongName("thirteen.char")
	require.Equal(t, errOK, fr)
	require.Len(t, frags, 1)
	assert.EqualValues(t, 'r', frags[0][12])
}

func TestDecodeLFNUnit(t *testing.T) {
	assert.EqualValues(t, 'A', decodeLFNUnit(0x41))
	assert.EqualValues(t, '?', decodeLFNUnit(0x20AC))
	assert.EqualValues(t, '?', decodeLFNUnit(0x00E9))
}

func TestGenerateBasisName(t *testing.T) {
	tests := []struct {
		name  string
		basis string
		lossy bool
	}{
		{"Long File Name.txt", "LONGFILETXT", true},
		{"readme.txt", "README  TXT", false},
		{"foo.tar.gz", "FOOTAR  GZ ", true},
		{".login", "LOGIN      ", true},
		{"über.txt", "__BER   TXT", true},
		{"short", "SHORT      ", false},
	}
	for _, tc := range tests {
		basis, lossy := generateBasisName(tc.name)
		assert.Equal(t, tc.basis, string(basis[:]), "basis for %q", tc.name)
		assert.Equal(t, tc.lossy, lossy, "lossy for %q", tc.name)
	}
}

func TestApplyNumericTail(t *testing.T) {
	var basis [11]byte
	copy(basis[:], "LONGFILETXT")
	applyNumericTail(&basis, 1)
	assert.Equal(t, "LONGFI~1TXT", string(basis[:]))

	copy(basis[:], "LONGFILETXT")
	applyNumericTail(&basis, 123456)
	assert.Equal(t, "L~123456TXT", string(basis[:]))

	copy(basis[:], "AB      TXT")
	applyNumericTail(&basis, 42)
	assert.Equal(t, "AB~42   TXT", string(basis[:]))
}

func TestUniqueShortNameCollisions(t *testing.T) {
	fsys, _ := newTestVolume(t, FormatConfig{})

	// Each create claims the next numeric tail in the root directory.
	f, err := fsys.CreateFile("/Long File Name.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	f, err = fsys.CreateFile("/Long File Nearby.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	name83, fr := fsys.generateUniqueShortName(fsys.rootCluster, "Long File Next.txt")
	require.Equal(t, errOK, fr)
	assert.Equal(t, "LONGFI~3TXT", string(name83[:]))
}
