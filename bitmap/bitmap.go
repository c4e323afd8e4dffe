// Package bitmap implements the exFAT Allocation Bitmap: a bit-per-cluster
// map of which heap clusters are in use.
package bitmap

import (
	bitmaplib "github.com/boljen/go-bitmap"

	xerrors "github.com/exfatvol/exfatvol/errors"
)

// AllocationBitmap tracks which heap clusters are allocated. Allocation in
// this package is always a monotonic first-fit scan: every bit this
// implementation ever sets stays set for the life of the instance, so the
// set bits always form a prefix of the bitmap and AllocateNext only ever has
// to remember where it left off.
type AllocationBitmap struct {
	bits         bitmaplib.Bitmap
	clusterCount uint
	allocated    uint
	nextHint     uint
}

// New creates an AllocationBitmap with room for clusterCount clusters, all
// initially free.
func New(clusterCount uint) *AllocationBitmap {
	return &AllocationBitmap{
		bits:         bitmaplib.NewSlice(int(clusterCount)),
		clusterCount: clusterCount,
	}
}

// ByteLen is the number of bytes the serialized bitmap occupies:
// ceil(clusterCount / 8).
func (a *AllocationBitmap) ByteLen() int {
	return (int(a.clusterCount) + 7) / 8
}

// IsAllocated reports whether heap cluster index is marked in-use.
func (a *AllocationBitmap) IsAllocated(index uint) bool {
	if index >= a.clusterCount {
		return false
	}
	return a.bits.Get(int(index))
}

// AllocateNext marks the smallest free heap index as allocated and returns
// it. ok is false, with index meaningless, once every cluster is in use.
func (a *AllocationBitmap) AllocateNext() (index uint, ok bool) {
	if a.allocated >= a.clusterCount {
		return 0, false
	}

	for i := a.nextHint; i < a.clusterCount; i++ {
		if !a.bits.Get(int(i)) {
			a.bits.Set(int(i), true)
			a.allocated++
			a.nextHint = i + 1
			return i, true
		}
	}
	return 0, false
}

// MustAllocateNext is AllocateNext but returns xerrors.ErrOutOfFreeSpace
// instead of a boolean, for callers that want to propagate the failure as an
// error value.
func (a *AllocationBitmap) MustAllocateNext() (uint, error) {
	index, ok := a.AllocateNext()
	if !ok {
		return 0, xerrors.ErrOutOfFreeSpace.WithMessage("allocation bitmap exhausted")
	}
	return index, nil
}

// ClusterCount returns the number of clusters this bitmap tracks.
func (a *AllocationBitmap) ClusterCount() uint {
	return a.clusterCount
}

// ReadSector copies the bytes of bitmap sector s (0-based, relative to the
// start of the bitmap region) into buf. Bytes past the bitmap's logical
// length are left zero, matching spec.md §4.1: buf is assumed pre-zeroed.
func (a *AllocationBitmap) ReadSector(s uint64, buf []byte) {
	sectorSize := uint64(len(buf))
	start := s * sectorSize
	end := start + sectorSize

	byteLen := uint64(a.ByteLen())
	if start >= byteLen {
		return
	}
	if end > byteLen {
		end = byteLen
	}

	raw := []byte(a.bits)
	for i := start; i < end; i++ {
		if i < uint64(len(raw)) {
			buf[i-start] = raw[i]
		}
	}
}
