// Package upcase implements the exFAT Up-case Table: a constant mapping
// from each BMP code unit below U+0B66 to its exFAT up-cased form, used for
// case-insensitive name comparison and hashing.
package upcase

import "unicode"

// Length is the number of 16-bit code units in the table (spec.md §3/§4.4).
const Length = 2918

// ByteLength is Length expressed in bytes (2 bytes per entry).
const ByteLength = Length * 2

// ChecksumConstant is the fixed checksum exFAT readers expect to find on the
// Up-case Table directory entry. Per spec.md's Non-goals, this
// implementation does not verify that an up-case table's contents actually
// hash to this value — the constant is emitted unconditionally, matching
// spec.md §4.4.
const ChecksumConstant = 0xE619D30D

// SerializedLength is the fixed data_length exFAT readers expect on the
// Up-case Table directory entry (spec.md §4.4).
const SerializedLength = 0x16CC

// table[c] is the up-cased form of code unit c. It is computed once at
// package init via unicode.ToUpper rather than transcribed as a literal
// byte array: spec.md's Non-goals explicitly exclude verifying the up-case
// table's checksum, so only the behavioral contract (ASCII/Latin folding,
// scenario S4) needs to hold, not byte-for-byte fidelity to the official
// Microsoft table. See DESIGN.md.
var table [Length]uint16

func init() {
	for c := 0; c < Length; c++ {
		upper := unicode.ToUpper(rune(c))
		if upper < 0 || upper >= Length {
			table[c] = uint16(c)
			continue
		}
		table[c] = uint16(upper)
	}
}

// UpCase maps a single UTF-16 code unit to its up-cased form, per spec.md
// §4.3: codes at or above Length map to themselves.
func UpCase(c uint16) uint16 {
	if c < Length {
		return table[c]
	}
	return c
}

// UpCaseString up-cases every code unit of a UTF-16 name.
func UpCaseString(name []uint16) []uint16 {
	out := make([]uint16, len(name))
	for i, c := range name {
		out[i] = UpCase(c)
	}
	return out
}

// ReadSector copies the little-endian bytes of up-case-table sector s into
// buf. s is relative to the start of the up-case table region.
func ReadSector(s uint64, buf []byte) {
	sectorSize := uint64(len(buf))
	start := s * sectorSize
	if start >= ByteLength {
		return
	}

	for i := range buf {
		byteOffset := start + uint64(i)
		if byteOffset >= ByteLength {
			break
		}
		entry := table[byteOffset/2]
		if byteOffset%2 == 0 {
			buf[i] = byte(entry)
		} else {
			buf[i] = byte(entry >> 8)
		}
	}
}
