// Package volume implements the exFAT Volume Shell: it composes the Cluster
// Heap with the fixed boot-region layout and answers read_sector for an
// entire synthesized volume (spec.md §4.7).
package volume

import (
	"github.com/exfatvol/exfatvol/bootregion"
	xerrors "github.com/exfatvol/exfatvol/errors"
	"github.com/exfatvol/exfatvol/fat"
	"github.com/exfatvol/exfatvol/heap"
)

const (
	minBytesPerSectorShift = 9
	maxBytesPerSectorShift = 12
	maxShiftSum            = 25
	fatOffsetSectors       = 24
	minVolumeBytes         = 1 << 20 // 1 MiB
)

// Shell is a complete synthesized exFAT volume: boot region, FAT, and
// cluster heap, addressable as a flat sequence of sectors.
type Shell struct {
	bytesPerSectorShift    uint8
	sectorsPerClusterShift uint8
	bytesPerSector         uint32
	sectorsPerCluster      uint32
	clusterCount           uint32
	volumeSerialNumber     uint32

	fatOffset         uint64
	fatLength         uint64
	clusterHeapOffset uint64
	volumeLength      uint64

	heap *heap.ClusterHeap
}

// New constructs an empty volume with a zero volume serial number.
func New(bytesPerSectorShift, sectorsPerClusterShift uint8, clusterCount uint32) (*Shell, error) {
	return NewWithSerialNumber(bytesPerSectorShift, sectorsPerClusterShift, clusterCount, 0)
}

// NewWithSerialNumber constructs an empty volume, per spec.md §4.7.
func NewWithSerialNumber(bytesPerSectorShift, sectorsPerClusterShift uint8, clusterCount, serial uint32) (*Shell, error) {
	if bytesPerSectorShift < minBytesPerSectorShift || bytesPerSectorShift > maxBytesPerSectorShift {
		return nil, xerrors.ErrInvalidParameter.WithMessage("bytes_per_sector_shift out of range")
	}
	if int(sectorsPerClusterShift) > maxShiftSum-int(bytesPerSectorShift) {
		return nil, xerrors.ErrInvalidParameter.WithMessage("sectors_per_cluster_shift out of range")
	}
	if clusterCount == 0 || clusterCount%2 != 0 {
		return nil, xerrors.ErrInvalidParameter.WithMessage("cluster_count must be even and nonzero")
	}

	bytesPerSector := uint32(1) << bytesPerSectorShift
	sectorsPerCluster := uint32(1) << sectorsPerClusterShift

	fatLength := fatLengthInSectors(clusterCount, bytesPerSector, sectorsPerCluster)
	clusterHeapOffset := uint64(fatOffsetSectors) + fatLength
	volumeLength := clusterHeapOffset + uint64(clusterCount)*uint64(sectorsPerCluster)

	if volumeLength*uint64(bytesPerSector) < minVolumeBytes {
		return nil, xerrors.ErrInvalidParameter.WithMessage("volume_length below 1 MiB")
	}

	h, err := heap.New(bytesPerSector, sectorsPerCluster, clusterCount)
	if err != nil {
		return nil, err
	}

	return &Shell{
		bytesPerSectorShift:    bytesPerSectorShift,
		sectorsPerClusterShift: sectorsPerClusterShift,
		bytesPerSector:         bytesPerSector,
		sectorsPerCluster:      sectorsPerCluster,
		clusterCount:           clusterCount,
		volumeSerialNumber:     serial,
		fatOffset:              fatOffsetSectors,
		fatLength:              fatLength,
		clusterHeapOffset:      clusterHeapOffset,
		volumeLength:           volumeLength,
		heap:                   h,
	}, nil
}

func fatLengthInSectors(clusterCount, bytesPerSector, sectorsPerCluster uint32) uint64 {
	minFatBytes := uint64(clusterCount+2) * 4
	minFatSectors := (minFatBytes + uint64(bytesPerSector) - 1) / uint64(bytesPerSector)
	spc := uint64(sectorsPerCluster)
	return ((minFatSectors + spc - 1) / spc) * spc
}

// AddDirectory creates a subdirectory named name under the directory whose
// first heap cluster is parent.
func (s *Shell) AddDirectory(parent fat.HeapIndex, name string) (fat.HeapIndex, error) {
	return s.heap.AddDirectory(parent, name)
}

// AddDirectoryInRoot creates a subdirectory named name directly under the
// volume's root directory.
func (s *Shell) AddDirectoryInRoot(name string) (fat.HeapIndex, error) {
	return s.heap.AddDirectory(s.heap.RootCluster(), name)
}

// MapFileWithName binds hostPath into the directory whose first heap
// cluster is parent under the given name.
func (s *Shell) MapFileWithName(parent fat.HeapIndex, hostPath, name string) (fat.HeapIndex, error) {
	return s.heap.MapFile(parent, hostPath, name)
}

// MapFile binds hostPath into parent using hostPath's base name.
func (s *Shell) MapFile(parent fat.HeapIndex, hostPath string) (fat.HeapIndex, error) {
	return s.heap.MapFile(parent, hostPath, baseName(hostPath))
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

// BytesPerSector returns the volume's sector size.
func (s *Shell) BytesPerSector() uint32 { return s.bytesPerSector }

// SectorsPerCluster returns the number of sectors in a cluster.
func (s *Shell) SectorsPerCluster() uint32 { return s.sectorsPerCluster }

// BytesPerCluster returns the cluster size in bytes.
func (s *Shell) BytesPerCluster() uint32 { return s.heap.BytesPerCluster() }

// VolumeLength returns the volume's length in sectors.
func (s *Shell) VolumeLength() uint64 { return s.volumeLength }

// VolumeSize returns the volume's length in bytes.
func (s *Shell) VolumeSize() uint64 { return s.volumeLength * uint64(s.bytesPerSector) }

// RootDirectoryCluster returns the root directory's first heap cluster.
func (s *Shell) RootDirectoryCluster() fat.HeapIndex { return s.heap.RootCluster() }

// FATOffset returns the sector index at which the first FAT begins.
func (s *Shell) FATOffset() uint64 { return s.fatOffset }

// ClusterHeapOffset returns the sector index at which the cluster heap
// begins.
func (s *Shell) ClusterHeapOffset() uint64 { return s.clusterHeapOffset }

// Stat is a flat, read-only summary of a synthesized volume's geometry.
type Stat struct {
	BytesPerSector     uint32
	BytesPerCluster    uint32
	ClusterCount       uint32
	VolumeLength       uint64
	VolumeSize         uint64
	RootDirCluster     fat.HeapIndex
	VolumeSerialNumber uint32
}

// Stat reports the volume's geometry, for callers that want a summary
// without calling each accessor individually.
func (s *Shell) Stat() Stat {
	return Stat{
		BytesPerSector:     s.bytesPerSector,
		BytesPerCluster:    s.heap.BytesPerCluster(),
		ClusterCount:       s.clusterCount,
		VolumeLength:       s.volumeLength,
		VolumeSize:         s.VolumeSize(),
		RootDirCluster:     s.heap.RootCluster(),
		VolumeSerialNumber: s.volumeSerialNumber,
	}
}

// ReadSector fills buf, which must be exactly BytesPerSector() long, with
// the contents of the given volume-relative sector (spec.md §4.7
// read_sector).
func (s *Shell) ReadSector(sector uint64, buf []byte) error {
	if uint32(len(buf)) != s.bytesPerSector {
		return xerrors.ErrInvalidParameter.WithMessage("buffer length must equal bytes_per_sector")
	}
	for i := range buf {
		buf[i] = 0
	}

	if sector >= s.volumeLength {
		return xerrors.ErrOutOfBounds
	}

	switch {
	case sector == 0:
		s.writeBootSector(buf)
	case sector >= 1 && sector <= 8:
		ext := bootregion.ExtendedBootSector()
		copy(buf, ext[:])
	case sector == 9:
		for i := range buf {
			buf[i] = 0xFF
		}
	case sector == 10:
		// reserved: zero
	case sector == 11:
		s.writeBootChecksum(buf)
	case sector >= 12 && sector <= 23:
		return s.ReadSector(sector-12, buf)
	case sector >= 24 && sector < s.fatOffset:
		// FAT alignment padding: zero
	case sector >= s.fatOffset && sector < s.fatOffset+s.fatLength:
		s.heap.FATReadSector(sector-s.fatOffset, buf)
	case sector >= s.clusterHeapOffset && sector < s.volumeLength:
		return s.heap.ReadSector(sector-s.clusterHeapOffset, buf)
	}
	return nil
}

// regionSector reconstructs one of the fixed sectors 0-10 at full sector
// width, for the checksum computation in writeBootChecksum.
func (s *Shell) regionSector(i int) []byte {
	buf := make([]byte, s.bytesPerSector)
	switch {
	case i == 0:
		s.writeBootSector(buf)
	case i >= 1 && i <= 8:
		ext := bootregion.ExtendedBootSector()
		copy(buf, ext[:])
	case i == 9:
		for j := range buf {
			buf[j] = 0xFF
		}
	}
	return buf
}

func (s *Shell) writeBootSector(buf []byte) {
	b := bootregion.BootSector{
		VolumeLength:                s.volumeLength,
		FatOffset:                   uint32(s.fatOffset),
		FatLength:                   uint32(s.fatLength),
		ClusterHeapOffset:           uint32(s.clusterHeapOffset),
		ClusterCount:                s.clusterCount,
		FirstClusterOfRootDirectory: uint32(fat.ToIndex(s.heap.RootCluster())),
		VolumeSerialNumber:          s.volumeSerialNumber,
		BytesPerSectorShift:         s.bytesPerSectorShift,
		SectorsPerClusterShift:      s.sectorsPerClusterShift,
	}
	raw := b.Marshal()
	copy(buf, raw[:])
}

func (s *Shell) writeBootChecksum(buf []byte) {
	var sectors [11][]byte
	for i := 0; i < 11; i++ {
		sectors[i] = s.regionSector(i)
	}
	checksum := bootregion.ComputeChecksum(sectors)
	bootregion.FillChecksumSector(checksum, buf)
}
