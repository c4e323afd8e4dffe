// Package fat implements the exFAT File Allocation Table: a flat array of
// 32-bit next-cluster links indexed by FAT index (heap index + 2).
package fat

import "encoding/binary"

// HeapIndex is a zero-based position within the Cluster Heap.
type HeapIndex uint32

// Index is a FAT index: the value stored in FAT entries and in directory
// entries' first_cluster fields. Index = HeapIndex + 2; 0 and 1 are
// reserved.
type Index uint32

// ToIndex converts a heap index to the FAT index used on disk.
func ToIndex(h HeapIndex) Index { return Index(h) + 2 }

// ToHeapIndex converts a FAT index back to a heap index. Callers must not
// call this on the reserved indices 0 or 1.
func ToHeapIndex(f Index) HeapIndex { return HeapIndex(f - 2) }

const (
	mediaDescriptor = 0xFFFFFFF8
	reservedOne     = 0xFFFFFFFF

	// EndOfChain is the internal sentinel SetNext accepts; it is written to
	// disk as 0xFFFFFFFF (see spec.md §4.2's "end-of-chain convention").
	EndOfChain = HeapIndex(0xFFFFFFFD)

	onDiskEndOfChain = 0xFFFFFFFF
	onDiskFree       = 0
)

// Table is the in-memory FAT: entries[0] and entries[1] are the fixed media
// descriptor/reserved values; entries[f] for f = ToIndex(h) describes heap
// cluster h's successor.
type Table struct {
	entries []uint32
}

// New creates a Table with the two reserved entries populated and no
// cluster entries allocated yet; SetNext grows the table as needed.
func New() *Table {
	return &Table{
		entries: []uint32{mediaDescriptor, reservedOne},
	}
}

func (t *Table) growTo(n int) {
	for len(t.entries) < n {
		t.entries = append(t.entries, onDiskFree)
	}
}

// SetNext records that heap cluster h's chain continues at next, or
// terminates there if next == EndOfChain.
func (t *Table) SetNext(h HeapIndex, next HeapIndex) {
	f := int(ToIndex(h))
	t.growTo(f + 1)

	if next == EndOfChain {
		t.entries[f] = onDiskEndOfChain
		return
	}
	t.entries[f] = uint32(ToIndex(next))
}

// Get returns the raw FAT index stored for heap cluster h, or 0 if the
// table has never been grown that far (equivalent to a free entry).
func (t *Table) Get(h HeapIndex) uint32 {
	f := int(ToIndex(h))
	if f >= len(t.entries) {
		return onDiskFree
	}
	return t.entries[f]
}

// IsAllocated reports whether heap cluster h's FAT entry is non-zero, one
// half of the bitmap/FAT agreement invariant in spec.md §8 property 1.
func (t *Table) IsAllocated(h HeapIndex) bool {
	return t.Get(h) != onDiskFree
}

// Chain walks the FAT starting at the entry for h, yielding each subsequent
// heap index in the chain. The starting cluster h itself is not yielded.
// Iteration stops at end-of-chain or a free (zero) entry.
func (t *Table) Chain(h HeapIndex) []HeapIndex {
	var out []HeapIndex
	current := t.Get(h)

	for current != onDiskEndOfChain && current != onDiskFree {
		next := HeapIndex(current - 2)
		out = append(out, next)
		current = t.Get(next)
	}
	return out
}

// Last returns the final heap index in the chain starting at h (h itself if
// the chain has no successors yet).
func (t *Table) Last(h HeapIndex) HeapIndex {
	chain := t.Chain(h)
	if len(chain) == 0 {
		return h
	}
	return chain[len(chain)-1]
}

// ByteLen is the number of bytes the serialized FAT occupies.
func (t *Table) ByteLen() int {
	return len(t.entries) * 4
}

// ReadSector copies the little-endian bytes of FAT sector s into buf,
// zero-padding past the end of the table (buf is assumed pre-zeroed).
func (t *Table) ReadSector(s uint64, buf []byte) {
	sectorSize := uint64(len(buf))
	start := s * sectorSize

	raw := make([]byte, t.ByteLen())
	for i, v := range t.entries {
		binary.LittleEndian.PutUint32(raw[i*4:i*4+4], v)
	}

	if start >= uint64(len(raw)) {
		return
	}
	end := start + sectorSize
	if end > uint64(len(raw)) {
		end = uint64(len(raw))
	}
	copy(buf, raw[start:end])
}
