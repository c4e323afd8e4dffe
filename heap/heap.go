// Package heap implements the exFAT Cluster Heap: the core engine that owns
// the allocation bitmap, the FAT, the up-case table, and a sparse map of
// heap clusters, and that performs directory insertion, file mapping, and
// sector demultiplexing (spec.md §4.6).
package heap

import (
	"io"
	"os"

	"github.com/exfatvol/exfatvol/bitmap"
	"github.com/exfatvol/exfatvol/dirent"
	xerrors "github.com/exfatvol/exfatvol/errors"
	"github.com/exfatvol/exfatvol/fat"
	"github.com/exfatvol/exfatvol/nameenc"
	"github.com/exfatvol/exfatvol/upcase"
)

// dirCluster is one cluster's worth of serialized directory entries. entries
// is always exactly bytesPerCluster long; used counts how many 32-byte
// slots at the front are occupied.
type dirCluster struct {
	entries []byte
	used    int
}

// fileCell is a heap cell backed by an open host file, bound at the first
// cluster of the file's (possibly multi-cluster) contiguous run.
type fileCell struct {
	path string
	file *os.File
	size int64
}

// ClusterHeap is the core of the synthesized volume: it owns the bitmap,
// FAT, up-case constants, and every directory/file cell, and answers
// sector-level reads for the whole cluster-heap region of the volume.
type ClusterHeap struct {
	bytesPerSector    uint32
	sectorsPerCluster uint32
	bytesPerCluster   uint32
	entriesPerCluster int

	fatTable *fat.Table
	bitmap   *bitmap.AllocationBitmap

	bitmapStart, bitmapEnd fat.HeapIndex
	upcaseStart, upcaseEnd fat.HeapIndex
	rootCluster            fat.HeapIndex

	dirClusters   map[fat.HeapIndex]*dirCluster
	fileCells     map[fat.HeapIndex]*fileCell
	clusterOwner  map[fat.HeapIndex]fat.HeapIndex
	childToParent map[fat.HeapIndex]fat.HeapIndex
}

func ceilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}

// New constructs a Cluster Heap of clusterCount clusters, seeding the
// allocation bitmap, up-case table, and root directory per spec.md §4.6
// "Construction".
func New(bytesPerSector, sectorsPerCluster, clusterCount uint32) (*ClusterHeap, error) {
	bytesPerCluster := bytesPerSector * sectorsPerCluster

	h := &ClusterHeap{
		bytesPerSector:    bytesPerSector,
		sectorsPerCluster: sectorsPerCluster,
		bytesPerCluster:   bytesPerCluster,
		entriesPerCluster: int(bytesPerCluster) / dirent.Size,
		fatTable:          fat.New(),
		bitmap:            bitmap.New(uint(clusterCount)),
		dirClusters:       map[fat.HeapIndex]*dirCluster{},
		fileCells:         map[fat.HeapIndex]*fileCell{},
		clusterOwner:      map[fat.HeapIndex]fat.HeapIndex{},
		childToParent:     map[fat.HeapIndex]fat.HeapIndex{},
	}

	bitmapByteSize := ceilDiv(clusterCount, 8)
	bitmapClusterCount := ceilDiv(bitmapByteSize, bytesPerCluster)
	h.bitmapStart = 0
	h.bitmapEnd = fat.HeapIndex(bitmapClusterCount)

	upcaseClusterCount := ceilDiv(upcase.ByteLength, bytesPerCluster)
	h.upcaseStart = h.bitmapEnd
	h.upcaseEnd = h.upcaseStart + fat.HeapIndex(upcaseClusterCount)

	h.rootCluster = h.upcaseEnd

	// Allocate and chain every cluster through the root, in order: the
	// bitmap's own bits form a prefix by construction since AllocateNext is
	// a monotonic first-fit scan over an initially-empty bitmap.
	for i := fat.HeapIndex(0); i <= h.rootCluster; i++ {
		if _, err := h.bitmap.MustAllocateNext(); err != nil {
			return nil, err
		}
	}

	for i := h.bitmapStart; i < h.bitmapEnd; i++ {
		h.clusterOwner[i] = h.bitmapStart
		if i+1 < h.bitmapEnd {
			h.fatTable.SetNext(i, i+1)
		} else {
			h.fatTable.SetNext(i, fat.EndOfChain)
		}
	}
	for i := h.upcaseStart; i < h.upcaseEnd; i++ {
		h.clusterOwner[i] = h.upcaseStart
		if i+1 < h.upcaseEnd {
			h.fatTable.SetNext(i, i+1)
		} else {
			h.fatTable.SetNext(i, fat.EndOfChain)
		}
	}
	h.clusterOwner[h.rootCluster] = h.rootCluster
	h.fatTable.SetNext(h.rootCluster, fat.EndOfChain)

	h.dirClusters[h.rootCluster] = &dirCluster{entries: make([]byte, bytesPerCluster)}

	seed := []dirent.Entry{
		dirent.VolumeLabel{},
		dirent.AllocationBitmapEntry{
			FirstCluster: uint32(fat.ToIndex(h.bitmapStart)),
			DataLength:   uint64(h.bitmap.ByteLen()),
		},
		dirent.UpcaseTableEntry{
			TableChecksum: upcase.ChecksumConstant,
			FirstCluster:  uint32(fat.ToIndex(h.upcaseStart)),
			DataLength:    upcase.SerializedLength,
		},
	}
	h.appendToCluster(h.rootCluster, dirent.SerializeSet(seed))

	return h, nil
}

// RootCluster returns the heap index of the root directory's first cluster.
func (h *ClusterHeap) RootCluster() fat.HeapIndex { return h.rootCluster }

// BytesPerCluster returns the cluster size in bytes.
func (h *ClusterHeap) BytesPerCluster() uint32 { return h.bytesPerCluster }

// ClusterCount returns the total number of clusters this heap manages.
func (h *ClusterHeap) ClusterCount() uint {
	return h.bitmap.ClusterCount()
}

// FATReadSector copies the bytes of FAT sector s (0-based, relative to the
// start of the FAT region) into buf, on behalf of the Volume Shell, which
// owns the FAT region's placement in the volume but not the table itself.
func (h *ClusterHeap) FATReadSector(s uint64, buf []byte) {
	h.fatTable.ReadSector(s, buf)
}

// appendToCluster writes data (a whole number of 32-byte entries) into the
// free tail of an already-registered directory cluster. It is the caller's
// responsibility to ensure data fits.
func (h *ClusterHeap) appendToCluster(cluster fat.HeapIndex, data []byte) {
	cell := h.dirClusters[cluster]
	offset := cell.used * dirent.Size
	copy(cell.entries[offset:], data)
	cell.used += len(data) / dirent.Size
}

func (h *ClusterHeap) freeEntrySlots(cluster fat.HeapIndex) int {
	return h.entriesPerCluster - h.dirClusters[cluster].used
}

// directoryChain returns every cluster in a directory's chain, first
// cluster included, in on-disk order.
func (h *ClusterHeap) directoryChain(first fat.HeapIndex) []fat.HeapIndex {
	return append([]fat.HeapIndex{first}, h.fatTable.Chain(first)...)
}

// hasNameHash reports whether any Stream Extension entry already present in
// directory's cluster chain carries the given name hash (spec.md §4.6 step
// 2: hash collisions are conservatively treated as duplicates).
func (h *ClusterHeap) hasNameHash(directory fat.HeapIndex, hash uint16) bool {
	for _, cluster := range h.directoryChain(directory) {
		cell := h.dirClusters[cluster]
		for i := 0; i < cell.used; i++ {
			entry := cell.entries[i*dirent.Size : (i+1)*dirent.Size]
			if dirent.ReadTag(entry) == dirent.TagStreamExtension &&
				dirent.ReadUint16(entry, dirent.OffsetStreamNameHash) == hash {
				return true
			}
		}
	}
	return false
}

// allocateDirCluster allocates a fresh heap cluster, registers it as a
// self-owned directory cell, and returns its index.
func (h *ClusterHeap) allocateDirCluster() (fat.HeapIndex, error) {
	idx, err := h.bitmap.MustAllocateNext()
	if err != nil {
		return 0, err
	}
	cluster := fat.HeapIndex(idx)
	h.dirClusters[cluster] = &dirCluster{entries: make([]byte, h.bytesPerCluster)}
	h.clusterOwner[cluster] = cluster
	return cluster, nil
}

// increaseParentDirectorySize implements spec.md §4.6's
// increase_parent_directory_size: grownDirectory just gained a new cluster
// in its own chain, so the Stream Extension describing grownDirectory in
// *its* parent's entry set must grow to match, and that entry set's
// checksum must be recomputed. A no-op if grownDirectory is the root (it
// has no parent).
func (h *ClusterHeap) increaseParentDirectorySize(grownDirectory fat.HeapIndex) error {
	if grownDirectory == h.rootCluster {
		return nil
	}
	parent, ok := h.childToParent[grownDirectory]
	if !ok {
		return nil
	}

	var fileClusterIdx, fileOffset int
	haveFile := false

	for _, cluster := range h.directoryChain(parent) {
		cell := h.dirClusters[cluster]
		for i := 0; i < cell.used; i++ {
			entry := cell.entries[i*dirent.Size : (i+1)*dirent.Size]
			switch dirent.ReadTag(entry) {
			case dirent.TagFile:
				fileClusterIdx, fileOffset = int(cluster), i
				haveFile = true
			case dirent.TagStreamExtension:
				firstCluster := dirent.ReadUint32(entry, dirent.OffsetStreamFirstCluster)
				if fat.Index(firstCluster) == fat.ToIndex(grownDirectory) {
					if !haveFile {
						return xerrors.ErrInvalidParameter.WithMessage(
							"stream extension encountered before any file entry")
					}
					rawFlags := entry[dirent.OffsetStreamFlags]
					rawFlags &^= dirent.FlagNoFatChain
					entry[dirent.OffsetStreamFlags] = rawFlags

					validLen := dirent.ReadUint64(entry, dirent.OffsetStreamValidDataLength) + uint64(h.bytesPerCluster)
					dirent.PutUint64(entry, dirent.OffsetStreamValidDataLength, validLen)
					dataLen := dirent.ReadUint64(entry, dirent.OffsetStreamDataLength) + uint64(h.bytesPerCluster)
					dirent.PutUint64(entry, dirent.OffsetStreamDataLength, dataLen)

					return h.recomputeSetChecksum(fileClusterIdx, fileOffset)
				}
			}
		}
	}
	return nil
}

// recomputeSetChecksum recomputes and rewrites the set_checksum of the File
// entry at (fileCluster, fileOffset), reading however many secondary
// entries secondary_count says follow it, which may straddle into the next
// cluster in the chain.
func (h *ClusterHeap) recomputeSetChecksum(fileCluster, fileOffset int) error {
	fc := fat.HeapIndex(fileCluster)
	fileEntry := h.entrySlice(fc, fileOffset)
	secondaryCount := int(fileEntry[dirent.OffsetFileSecondaryCount])

	entries := make([][32]byte, 0, secondaryCount+1)
	cluster, offset := fc, fileOffset
	for i := 0; i < secondaryCount+1; i++ {
		var e [32]byte
		copy(e[:], h.entrySlice(cluster, offset))
		entries = append(entries, e)

		offset++
		if offset >= h.entriesPerCluster {
			next, ok := h.nextChainCluster(cluster)
			if !ok {
				break
			}
			cluster, offset = next, 0
		}
	}

	checksum := nameenc.SetChecksum(entries)
	dirent.PutUint16(h.entrySlice(fc, fileOffset), dirent.OffsetFileSetChecksum, checksum)
	return nil
}

func (h *ClusterHeap) entrySlice(cluster fat.HeapIndex, index int) []byte {
	cell := h.dirClusters[cluster]
	return cell.entries[index*dirent.Size : (index+1)*dirent.Size]
}

func (h *ClusterHeap) nextChainCluster(cluster fat.HeapIndex) (fat.HeapIndex, bool) {
	next := h.fatTable.Get(cluster)
	if next == 0 || next == 0xFFFFFFFF {
		return 0, false
	}
	return fat.ToHeapIndex(fat.Index(next)), true
}

// AddDirectory creates a new, empty subdirectory named name inside the
// directory whose first cluster is parent, and returns the new directory's
// own first cluster (spec.md §4.6 add_directory). A failure after clusters
// have been allocated does not roll back: those clusters stay allocated, and
// a spillover cluster already linked into parent's chain stays linked.
func (h *ClusterHeap) AddDirectory(parent fat.HeapIndex, name string) (fat.HeapIndex, error) {
	return h.addEntrySetChild(parent, name, true, "")
}

// MapFile binds a host file into the directory whose first cluster is
// parent under name, streaming its contents lazily from hostPath whenever
// the corresponding sectors are read (spec.md §4.6 map_file). As with
// AddDirectory, a failure after clusters have been allocated does not roll
// back: those clusters stay allocated.
func (h *ClusterHeap) MapFile(parent fat.HeapIndex, hostPath, name string) (fat.HeapIndex, error) {
	return h.addEntrySetChild(parent, name, false, hostPath)
}

func (h *ClusterHeap) addEntrySetChild(parent fat.HeapIndex, name string, isDirectory bool, hostPath string) (fat.HeapIndex, error) {
	units, err := nameenc.EncodeUTF16(name)
	if err != nil {
		return 0, err
	}
	if err := nameenc.Validate(units); err != nil {
		return 0, err
	}

	upCased := nameenc.UpCase(units)
	hash := nameenc.Hash(upCased)
	if h.hasNameHash(parent, hash) {
		return 0, xerrors.ErrDuplicateName
	}

	k := nameenc.EntryCount(len(upCased))
	oldLast, newCluster, grew, err := h.ensureDirectorySpace(parent, 2+k)
	if err != nil {
		return 0, err
	}

	var childCluster fat.HeapIndex
	var dataLength uint64
	var attrs uint16

	if isDirectory {
		cluster, err := h.allocateDirCluster()
		if err != nil {
			return 0, err
		}
		childCluster = cluster
		dataLength = uint64(h.bytesPerCluster)
		attrs = dirent.AttrDirectory
		h.childToParent[childCluster] = parent
	} else {
		file, err := os.Open(hostPath)
		if err != nil {
			return 0, xerrors.ErrIOFailed.WrapError(err)
		}
		info, err := file.Stat()
		if err != nil {
			file.Close()
			return 0, xerrors.ErrIOFailed.WrapError(err)
		}
		size := info.Size()
		neededClusters := int(ceilDiv(uint32(size), h.bytesPerCluster))
		if neededClusters == 0 {
			neededClusters = 1
		}

		first, err := h.bitmap.MustAllocateNext()
		if err != nil {
			file.Close()
			return 0, err
		}
		childCluster = fat.HeapIndex(first)
		h.fileCells[childCluster] = &fileCell{path: hostPath, file: file, size: size}
		h.clusterOwner[childCluster] = childCluster

		for i := 1; i < neededClusters; i++ {
			idx, err := h.bitmap.MustAllocateNext()
			if err != nil {
				return 0, err
			}
			h.clusterOwner[fat.HeapIndex(idx)] = childCluster
		}

		dataLength = uint64(size)
		attrs = dirent.AttrReadOnly
	}

	fileNameEntries := dirent.BuildFileNameEntries(upCased)

	streamFlags := uint8(dirent.FlagAllocationPossible | dirent.FlagNoFatChain)
	entries := make([]dirent.Entry, 0, 2+k)
	entries = append(entries, dirent.File{
		SecondaryCount: uint8(1 + k),
		Attributes:     attrs,
	})
	entries = append(entries, dirent.StreamExtension{
		Flags:           streamFlags,
		NameLength:      uint8(len(upCased)),
		NameHash:        hash,
		ValidDataLength: dataLength,
		FirstCluster:    uint32(fat.ToIndex(childCluster)),
		DataLength:      dataLength,
	})
	for _, fn := range fileNameEntries {
		entries = append(entries, fn)
	}

	data := dirent.SerializeSet(entries)
	checksum := nameenc.SetChecksum(entriesAsArrays(data))
	dirent.PutUint16(data[0:dirent.Size], dirent.OffsetFileSetChecksum, checksum)

	h.writeEntrySet(oldLast, newCluster, grew, data)

	return childCluster, nil
}

func entriesAsArrays(data []byte) [][32]byte {
	count := len(data) / dirent.Size
	out := make([][32]byte, count)
	for i := 0; i < count; i++ {
		copy(out[i][:], data[i*dirent.Size:(i+1)*dirent.Size])
	}
	return out
}

// ensureDirectorySpace guarantees that directory's cluster chain has room
// for requiredEntries more 32-byte entries, growing the chain by one
// cluster first if the current last cluster doesn't have enough free slots
// (spec.md §4.6 steps 4-6). It runs before the child's own cluster is
// allocated, so a spillover cluster always lands at a lower heap index than
// the child it's making room for. oldLast is the chain's last cluster
// before this call; newCluster and grew describe whatever was linked.
func (h *ClusterHeap) ensureDirectorySpace(directory fat.HeapIndex, requiredEntries int) (oldLast, newCluster fat.HeapIndex, grew bool, err error) {
	oldLast = h.fatTable.Last(directory)
	if h.freeEntrySlots(oldLast) >= requiredEntries {
		return oldLast, 0, false, nil
	}

	newCluster, err = h.allocateDirCluster()
	if err != nil {
		return 0, 0, false, err
	}
	h.fatTable.SetNext(oldLast, newCluster)
	h.fatTable.SetNext(newCluster, fat.EndOfChain)

	if err := h.increaseParentDirectorySize(directory); err != nil {
		return 0, 0, false, err
	}
	return oldLast, newCluster, true, nil
}

// writeEntrySet writes an already-serialized (and checksummed) entry set
// into the cluster(s) ensureDirectorySpace prepared, splitting it across
// oldLast's remaining free slots and newCluster if ensureDirectorySpace
// grew the chain for this set (spec.md §4.6 step 10).
func (h *ClusterHeap) writeEntrySet(oldLast, newCluster fat.HeapIndex, grew bool, data []byte) {
	if !grew {
		h.appendToCluster(oldLast, data)
		return
	}

	remaining := data
	if free := h.freeEntrySlots(oldLast); free > 0 {
		n := free * dirent.Size
		if n > len(remaining) {
			n = len(remaining)
		}
		h.appendToCluster(oldLast, remaining[:n])
		remaining = remaining[n:]
	}
	h.appendToCluster(newCluster, remaining)
}

// ReadSector demultiplexes a cluster-heap-relative sector read to the
// bitmap, up-case table, a directory cell, or a file-backed cell, per
// spec.md §4.6 read_sector. buf is assumed pre-zeroed by the caller; an
// unoccupied cluster is left untouched.
func (h *ClusterHeap) ReadSector(sector uint64, buf []byte) error {
	clusterIndex := fat.HeapIndex(sector / uint64(h.sectorsPerCluster))
	sectorInCluster := sector % uint64(h.sectorsPerCluster)

	if clusterIndex >= h.bitmapStart && clusterIndex < h.bitmapEnd {
		bitmapSector := uint64(clusterIndex-h.bitmapStart)*uint64(h.sectorsPerCluster) + sectorInCluster
		h.bitmap.ReadSector(bitmapSector, buf)
		return nil
	}
	if clusterIndex >= h.upcaseStart && clusterIndex < h.upcaseEnd {
		upcaseSector := uint64(clusterIndex-h.upcaseStart)*uint64(h.sectorsPerCluster) + sectorInCluster
		upcase.ReadSector(upcaseSector, buf)
		return nil
	}

	owner, ok := h.clusterOwner[clusterIndex]
	if !ok {
		return nil // unoccupied cluster: leave buf zero
	}

	if cell, ok := h.dirClusters[clusterIndex]; ok {
		start := sectorInCluster * uint64(h.bytesPerSector)
		copy(buf, cell.entries[start:start+uint64(len(buf))])
		return nil
	}

	fc, ok := h.fileCells[owner]
	if !ok {
		return nil
	}

	offsetSectors := uint64(clusterIndex-owner)*uint64(h.sectorsPerCluster) + sectorInCluster
	byteOffset := int64(offsetSectors * uint64(h.bytesPerSector))

	n, err := fc.file.ReadAt(buf, byteOffset)
	if err != nil && err != io.EOF {
		return xerrors.ErrIOFailed.WrapError(err)
	}
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return nil
}
