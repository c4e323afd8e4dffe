// Package bootregion encodes the fixed, largely constant boot region of an
// exFAT volume: the main boot sector, extended boot sectors, and the main
// boot checksum (spec.md §4.7, §6). The OEM parameters sector is filled by
// package volume.
package bootregion

import (
	"encoding/binary"

	"github.com/noxer/bytewriter"
)

// Size is the fixed length, in bytes, of every boot-region sector's logical
// content. Volumes with a larger sector size zero-pad past this.
const Size = 512

var filesystemName = [8]byte{'E', 'X', 'F', 'A', 'T', ' ', ' ', ' '}

// BootSector is the main boot sector record (spec.md §6).
type BootSector struct {
	VolumeLength                uint64
	FatOffset                   uint32
	FatLength                   uint32
	ClusterHeapOffset           uint32
	ClusterCount                uint32
	FirstClusterOfRootDirectory uint32
	VolumeSerialNumber          uint32
	BytesPerSectorShift         uint8
	SectorsPerClusterShift      uint8
}

// Marshal serializes the boot sector to its bit-exact 512-byte layout.
func (b BootSector) Marshal() [Size]byte {
	var buf [Size]byte
	w := bytewriter.New(buf[:])

	binary.Write(w, binary.LittleEndian, [3]byte{0xEB, 0x76, 0x90}) // jump_boot
	binary.Write(w, binary.LittleEndian, filesystemName)
	w.Write(make([]byte, 53)) // must_be_zero
	binary.Write(w, binary.LittleEndian, uint64(0))                // partition_offset
	binary.Write(w, binary.LittleEndian, b.VolumeLength)
	binary.Write(w, binary.LittleEndian, b.FatOffset)
	binary.Write(w, binary.LittleEndian, b.FatLength)
	binary.Write(w, binary.LittleEndian, b.ClusterHeapOffset)
	binary.Write(w, binary.LittleEndian, b.ClusterCount)
	binary.Write(w, binary.LittleEndian, b.FirstClusterOfRootDirectory)
	binary.Write(w, binary.LittleEndian, b.VolumeSerialNumber)
	binary.Write(w, binary.LittleEndian, uint16(0x0100)) // filesystem_revision
	binary.Write(w, binary.LittleEndian, uint16(0))      // volume_flags
	binary.Write(w, binary.LittleEndian, b.BytesPerSectorShift)
	binary.Write(w, binary.LittleEndian, b.SectorsPerClusterShift)
	binary.Write(w, binary.LittleEndian, uint8(1))    // number_of_fats
	binary.Write(w, binary.LittleEndian, uint8(0x80)) // drive_select
	binary.Write(w, binary.LittleEndian, uint8(0xFF)) // percent_in_use
	w.Write(make([]byte, 7))                          // reserved
	w.Write(make([]byte, 390))                         // boot_code
	binary.Write(w, binary.LittleEndian, uint8(0x55))
	binary.Write(w, binary.LittleEndian, uint8(0xAA))

	return buf
}

// ExtendedBootSector returns one of sectors 1-8: all-zero with the 0x55 0xAA
// sector signature at the tail.
func ExtendedBootSector() [Size]byte {
	var buf [Size]byte
	buf[Size-2] = 0x55
	buf[Size-1] = 0xAA
	return buf
}

func foldByte(c uint32, x byte) uint32 {
	var carry uint32
	if c&1 != 0 {
		carry = 0x80000000
	}
	return carry + (c >> 1) + uint32(x)
}

// ComputeChecksum folds the 11 preceding sectors (0 through 10, whatever
// their actual sector size) into the main boot checksum, skipping the
// volume_flags and percent_in_use bytes of sector 0 (spec.md §4.7).
func ComputeChecksum(sectors [11][]byte) uint32 {
	var c uint32
	for s, sector := range sectors {
		for i, x := range sector {
			if s == 0 && (i == 106 || i == 107 || i == 112) {
				continue
			}
			c = foldByte(c, x)
		}
	}
	return c
}

// FillChecksumSector fills buf by repeating the little-endian checksum
// value across its whole length.
func FillChecksumSector(checksum uint32, buf []byte) {
	var word [4]byte
	binary.LittleEndian.PutUint32(word[:], checksum)
	for i := range buf {
		buf[i] = word[i%4]
	}
}
