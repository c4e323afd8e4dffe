// Package nameenc implements exFAT name validation, UTF-16 encoding,
// up-casing, name hashing, and entry-set checksumming (spec.md §4.3).
package nameenc

import (
	"golang.org/x/text/encoding/unicode"

	xerrors "github.com/exfatvol/exfatvol/errors"
	"github.com/exfatvol/exfatvol/upcase"
)

// MaxNameLength is the longest name, in UTF-16 code units, exFAT allows
// (spec.md §7).
const MaxNameLength = 255

// FileNameEntryCapacity is the number of UTF-16 code units a single File
// Name (0xC1) directory entry carries (spec.md §3).
const FileNameEntryCapacity = 15

var illegalCodeUnits = map[uint16]struct{}{
	0x22: {}, 0x2A: {}, 0x2F: {}, 0x3A: {}, 0x3C: {},
	0x3E: {}, 0x3F: {}, 0x5C: {}, 0x7C: {},
}

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// EncodeUTF16 converts a host-supplied UTF-8 name into UTF-16 code units.
func EncodeUTF16(name string) ([]uint16, error) {
	encoded, err := utf16LE.NewEncoder().String(name)
	if err != nil {
		return nil, xerrors.ErrIllegalCharacters.WrapError(err)
	}

	raw := []byte(encoded)
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
	}
	return units, nil
}

// Validate checks a name's length and rejects any illegal code unit, per
// spec.md §4.3 and the AddDirectory/MapFile preconditions in §4.6.
func Validate(units []uint16) error {
	if len(units) == 0 {
		return xerrors.ErrEmptyName
	}
	if len(units) > MaxNameLength {
		return xerrors.ErrNameTooLong
	}
	for _, c := range units {
		if c <= 0x1F {
			return xerrors.ErrIllegalCharacters.WithMessage("control character in name")
		}
		if _, bad := illegalCodeUnits[c]; bad {
			return xerrors.ErrIllegalCharacters
		}
	}
	return nil
}

// UpCase up-cases every code unit of a validated name.
func UpCase(units []uint16) []uint16 {
	return upcase.UpCaseString(units)
}

// EntryCount returns the number of File Name (0xC1) entries needed to hold
// a name of the given length: ceil(len/15), per spec.md §3.
func EntryCount(nameLength int) int {
	return (nameLength + FileNameEntryCapacity - 1) / FileNameEntryCapacity
}

// Hash computes the exFAT name hash over the little-endian byte sequence of
// an up-cased UTF-16 name (spec.md §4.3).
func Hash(upCasedName []uint16) uint16 {
	h := uint16(0)
	for _, c := range upCasedName {
		h = foldByte(h, byte(c))
		h = foldByte(h, byte(c>>8))
	}
	return h
}

func foldByte(h uint16, x byte) uint16 {
	var carry uint16
	if h&1 != 0 {
		carry = 0x8000
	}
	return carry + (h >> 1) + uint16(x)
}

// SetChecksum computes the exFAT entry-set checksum over a run of 32-byte
// serialized entries (File, Stream Extension, File Name...), skipping bytes
// 2-3 of the first (File) entry, which hold the checksum field itself
// (spec.md §4.3).
func SetChecksum(entries [][32]byte) uint16 {
	c := uint16(0)
	for entryIndex, entry := range entries {
		for i, x := range entry {
			if entryIndex == 0 && (i == 2 || i == 3) {
				continue
			}
			c = foldByte(c, x)
		}
	}
	return c
}
