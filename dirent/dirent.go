// Package dirent implements the six 32-byte exFAT directory-entry variants
// and their bit-exact serialization (spec.md §3, §4.5, §6).
package dirent

import (
	"encoding/binary"

	"github.com/noxer/bytewriter"
)

// Size is the fixed size, in bytes, of every directory entry.
const Size = 32

// Tag byte values (spec.md §3). The low 5 bits are a type code, bit 5 marks
// benign-vs-critical, bit 6 marks primary-vs-secondary, bit 7 marks
// in-use.
const (
	TagVolumeLabel      = 0x83
	TagAllocationBitmap = 0x81
	TagUpcaseTable      = 0x82
	TagFile             = 0x85
	TagStreamExtension  = 0xC0
	TagFileName         = 0xC1
)

// Stream Extension general secondary flags (spec.md §3, §4.6 step 8).
const (
	FlagAllocationPossible = 1 << 0
	FlagNoFatChain         = 1 << 1
)

// File attribute flags relevant to this synthesizer (spec.md §4.6).
const (
	AttrReadOnly  = 1 << 0
	AttrDirectory = 1 << 4
)

// Entry is anything that serializes to exactly 32 bytes.
type Entry interface {
	MarshalBinary() [Size]byte
}

// marshal runs a little-endian binary.Write field writer into a fixed
// 32-byte buffer via bytewriter, the same sink-construction idiom the
// teacher uses in file_systems/unixv1/format.go.
func marshal(write func(w *bytewriter.Writer)) [Size]byte {
	var buf [Size]byte
	w := bytewriter.New(buf[:])
	write(w)
	return buf
}

// VolumeLabel is the 0x83 primary entry. This synthesizer always emits an
// empty label (spec.md Non-goals: "volume-label text").
type VolumeLabel struct{}

func (VolumeLabel) MarshalBinary() [Size]byte {
	return marshal(func(w *bytewriter.Writer) {
		binary.Write(w, binary.LittleEndian, uint8(TagVolumeLabel))
		binary.Write(w, binary.LittleEndian, uint8(0)) // CharacterCount
		// 22 bytes of label + 8 reserved bytes are left zero.
	})
}

// AllocationBitmapEntry is the 0x81 primary entry.
type AllocationBitmapEntry struct {
	SecondFAT    bool
	FirstCluster uint32
	DataLength   uint64
}

func (e AllocationBitmapEntry) MarshalBinary() [Size]byte {
	return marshal(func(w *bytewriter.Writer) {
		var flags uint8
		if e.SecondFAT {
			flags = 1
		}
		binary.Write(w, binary.LittleEndian, uint8(TagAllocationBitmap))
		binary.Write(w, binary.LittleEndian, flags)
		w.Write(make([]byte, 18)) // reserved
		binary.Write(w, binary.LittleEndian, e.FirstCluster)
		binary.Write(w, binary.LittleEndian, e.DataLength)
	})
}

// UpcaseTableEntry is the 0x82 primary entry.
type UpcaseTableEntry struct {
	TableChecksum uint32
	FirstCluster  uint32
	DataLength    uint64
}

func (e UpcaseTableEntry) MarshalBinary() [Size]byte {
	return marshal(func(w *bytewriter.Writer) {
		binary.Write(w, binary.LittleEndian, uint8(TagUpcaseTable))
		w.Write(make([]byte, 3)) // reserved
		binary.Write(w, binary.LittleEndian, e.TableChecksum)
		w.Write(make([]byte, 12)) // reserved
		binary.Write(w, binary.LittleEndian, e.FirstCluster)
		binary.Write(w, binary.LittleEndian, e.DataLength)
	})
}

// File is the 0x85 primary entry that begins an entry set.
type File struct {
	SecondaryCount uint8
	SetChecksum    uint16
	Attributes     uint16
}

func (e File) MarshalBinary() [Size]byte {
	return marshal(func(w *bytewriter.Writer) {
		binary.Write(w, binary.LittleEndian, uint8(TagFile))
		binary.Write(w, binary.LittleEndian, e.SecondaryCount)
		binary.Write(w, binary.LittleEndian, e.SetChecksum)
		binary.Write(w, binary.LittleEndian, e.Attributes)
		w.Write(make([]byte, 24)) // reserved + timestamps this spec doesn't populate
	})
}

// StreamExtension is the 0xC0 secondary entry.
type StreamExtension struct {
	Flags           uint8
	NameLength      uint8
	NameHash        uint16
	ValidDataLength uint64
	FirstCluster    uint32
	DataLength      uint64
}

func (e StreamExtension) MarshalBinary() [Size]byte {
	return marshal(func(w *bytewriter.Writer) {
		binary.Write(w, binary.LittleEndian, uint8(TagStreamExtension))
		binary.Write(w, binary.LittleEndian, e.Flags)
		binary.Write(w, binary.LittleEndian, uint8(0)) // reserved
		binary.Write(w, binary.LittleEndian, e.NameLength)
		binary.Write(w, binary.LittleEndian, e.NameHash)
		binary.Write(w, binary.LittleEndian, uint16(0)) // reserved
		binary.Write(w, binary.LittleEndian, e.ValidDataLength)
		binary.Write(w, binary.LittleEndian, uint32(0)) // reserved
		binary.Write(w, binary.LittleEndian, e.FirstCluster)
		binary.Write(w, binary.LittleEndian, e.DataLength)
	})
}

// FileName is a 0xC1 secondary entry carrying up to 15 UTF-16 code units of
// a name. Chunks shorter than 15 units are padded with 0x0000 (spec.md §4.6
// step 3).
type FileName struct {
	Chars [15]uint16
}

func (e FileName) MarshalBinary() [Size]byte {
	return marshal(func(w *bytewriter.Writer) {
		binary.Write(w, binary.LittleEndian, uint8(TagFileName))
		binary.Write(w, binary.LittleEndian, uint8(0)) // reserved secondary flags
		for _, c := range e.Chars {
			binary.Write(w, binary.LittleEndian, c)
		}
	})
}

// SerializeSet concatenates a slice of entries into contiguous 32-byte
// records, in order, for appending into a directory cluster's byte content.
func SerializeSet(entries []Entry) []byte {
	out := make([]byte, 0, len(entries)*Size)
	for _, e := range entries {
		b := e.MarshalBinary()
		out = append(out, b[:]...)
	}
	return out
}

// BuildFileNameEntries splits an up-cased UTF-16 name into 15-unit chunks,
// padding the final chunk with 0x0000, per spec.md §4.6 step 3.
func BuildFileNameEntries(name []uint16) []FileName {
	count := (len(name) + 14) / 15
	out := make([]FileName, count)
	for i := 0; i < count; i++ {
		var chunk [15]uint16
		start := i * 15
		end := start + 15
		if end > len(name) {
			end = len(name)
		}
		copy(chunk[:], name[start:end])
		out[i] = FileName{Chars: chunk}
	}
	return out
}

// Raw field offsets into a single 32-byte entry, used by heap.ClusterHeap to
// read and patch an already-serialized entry set in place (spec.md §4.6
// increase_parent_directory_size) without round-tripping through the typed
// structs above.
const (
	OffsetFileSecondaryCount = 1
	OffsetFileSetChecksum    = 2

	OffsetStreamFlags           = 1
	OffsetStreamNameLength      = 3
	OffsetStreamNameHash        = 4
	OffsetStreamValidDataLength = 8
	OffsetStreamFirstCluster    = 20
	OffsetStreamDataLength      = 24
)

// ReadTag returns the tag byte of a single 32-byte serialized entry.
func ReadTag(entry []byte) byte { return entry[0] }

// ReadUint16 / ReadUint32 / ReadUint64 read a little-endian field at the
// given offset within a single 32-byte entry.
func ReadUint16(entry []byte, offset int) uint16 {
	return binary.LittleEndian.Uint16(entry[offset : offset+2])
}

func ReadUint32(entry []byte, offset int) uint32 {
	return binary.LittleEndian.Uint32(entry[offset : offset+4])
}

func ReadUint64(entry []byte, offset int) uint64 {
	return binary.LittleEndian.Uint64(entry[offset : offset+8])
}

// PutUint16 / PutUint32 / PutUint64 patch a little-endian field at the given
// offset within a single 32-byte entry, in place.
func PutUint16(entry []byte, offset int, v uint16) {
	binary.LittleEndian.PutUint16(entry[offset:offset+2], v)
}

func PutUint32(entry []byte, offset int, v uint32) {
	binary.LittleEndian.PutUint32(entry[offset:offset+4], v)
}

func PutUint64(entry []byte, offset int, v uint64) {
	binary.LittleEndian.PutUint64(entry[offset:offset+8], v)
}
