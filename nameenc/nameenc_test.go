package nameenc_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "github.com/exfatvol/exfatvol/errors"
	"github.com/exfatvol/exfatvol/nameenc"
)

func TestEncodeUTF16__RoundTripsAscii(t *testing.T) {
	units, err := nameenc.EncodeUTF16("hello.txt")
	require.NoError(t, err)

	want := []uint16{'h', 'e', 'l', 'l', 'o', '.', 't', 'x', 't'}
	assert.Equal(t, want, units)
}

func TestValidate__RejectsEmptyName(t *testing.T) {
	err := nameenc.Validate(nil)
	assert.ErrorIs(t, err, xerrors.ErrEmptyName)
}

func TestValidate__RejectsTooLongName(t *testing.T) {
	units := make([]uint16, nameenc.MaxNameLength+1)
	for i := range units {
		units[i] = 'a'
	}
	err := nameenc.Validate(units)
	assert.ErrorIs(t, err, xerrors.ErrNameTooLong)
}

func TestValidate__RejectsIllegalCharacters(t *testing.T) {
	for _, c := range []uint16{'"', '*', '/', ':', '<', '>', '?', '\\', '|'} {
		err := nameenc.Validate([]uint16{'a', c})
		assert.ErrorIsf(t, err, xerrors.ErrIllegalCharacters, "code unit %q should be illegal", c)
	}
}

func TestValidate__RejectsControlCharacters(t *testing.T) {
	err := nameenc.Validate([]uint16{'a', 0x1F})
	assert.ErrorIs(t, err, xerrors.ErrIllegalCharacters)
}

func TestValidate__AcceptsOrdinaryName(t *testing.T) {
	units, err := nameenc.EncodeUTF16("My Document.docx")
	require.NoError(t, err)
	assert.NoError(t, nameenc.Validate(units))
}

func TestEntryCount(t *testing.T) {
	assert.Equal(t, 1, nameenc.EntryCount(1))
	assert.Equal(t, 1, nameenc.EntryCount(15))
	assert.Equal(t, 2, nameenc.EntryCount(16))
	assert.Equal(t, 17, nameenc.EntryCount(255))
}

func TestHash__CaseInsensitiveDeterminism(t *testing.T) {
	lower, err := nameenc.EncodeUTF16("report.txt")
	require.NoError(t, err)
	upper, err := nameenc.EncodeUTF16("REPORT.TXT")
	require.NoError(t, err)

	hashLower := nameenc.Hash(nameenc.UpCase(lower))
	hashUpper := nameenc.Hash(nameenc.UpCase(upper))

	assert.Equal(t, hashUpper, hashLower)
}

func TestHash__DifferentNamesUsuallyDiffer(t *testing.T) {
	a, _ := nameenc.EncodeUTF16("alpha")
	b, _ := nameenc.EncodeUTF16("beta")
	assert.NotEqual(t, nameenc.Hash(nameenc.UpCase(a)), nameenc.Hash(nameenc.UpCase(b)))
}

func TestSetChecksum__SkipsOwnChecksumField(t *testing.T) {
	var first [32]byte
	first[0] = 0x85 // tag byte participates
	first[2] = 0xAB // checksum field bytes must be skipped
	first[3] = 0xCD

	var second [32]byte
	second[0] = 0xC0

	withGarbageChecksum := nameenc.SetChecksum([][32]byte{first, second})

	first[2], first[3] = 0, 0
	withZeroedChecksum := nameenc.SetChecksum([][32]byte{first, second})

	assert.Equal(t, withZeroedChecksum, withGarbageChecksum)
}

func TestHash__GoldenValues(t *testing.T) {
	long := "L" + strings.Repeat("O", 252) + "NG"
	require.Len(t, long, 255)
	units, err := nameenc.EncodeUTF16(long)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x344B), nameenc.Hash(units))

	short := "LOOOOOOOOOOOOOOOOONG"
	units, err = nameenc.EncodeUTF16(short)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xA585), nameenc.Hash(units))
}

func TestUpCase__HelloWorldUpcasesToAscii(t *testing.T) {
	units, err := nameenc.EncodeUTF16("Hello World")
	require.NoError(t, err)

	want, err := nameenc.EncodeUTF16("HELLO WORLD")
	require.NoError(t, err)

	assert.Equal(t, want, nameenc.UpCase(units))
}

func TestValidate__MaxLengthNameIsAccepted(t *testing.T) {
	name := strings.Repeat("a", nameenc.MaxNameLength)
	units, err := nameenc.EncodeUTF16(name)
	require.NoError(t, err)
	assert.NoError(t, nameenc.Validate(units))
}
