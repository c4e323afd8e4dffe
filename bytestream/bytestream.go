// Package bytestream provides a read-only seekable byte-stream view over a
// sector-addressed volume, trimmed from the teacher's block-cache-backed
// file abstraction down to the read-only surface this synthesizer needs
// (spec.md §4.7, §6).
package bytestream

import (
	"fmt"
	"io"
)

// sectorSource is the subset of volume.Shell's interface the stream needs.
// Declared locally so that bytestream does not import package volume.
type sectorSource interface {
	ReadSector(sector uint64, buf []byte) error
	BytesPerSector() uint32
	VolumeSize() uint64
}

// Stream is a read-only io.ReadSeeker/io.ReaderAt over a sectorSource.
// Reading past the end of the volume returns a short count, not an error,
// matching spec.md §4.7's stream-adapter contract.
type Stream struct {
	source   sectorSource
	size     int64
	position int64
}

// New wraps source in a byte-addressable stream.
func New(source sectorSource) *Stream {
	return &Stream{source: source, size: int64(source.VolumeSize())}
}

// Size returns the stream's total length in bytes.
func (s *Stream) Size() int64 { return s.size }

// Tell returns the current stream position.
func (s *Stream) Tell() int64 { return s.position }

// Seek repositions the stream per whence (io.SeekStart/Current/End).
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = s.position + offset
	case io.SeekEnd:
		abs = s.size + offset
	default:
		return s.position, fmt.Errorf("bytestream: invalid seek whence %d", whence)
	}
	if abs < 0 {
		return s.position, fmt.Errorf("bytestream: seek to negative offset %d", abs)
	}
	s.position = abs
	return abs, nil
}

// Read reads into buf starting at the current position, advancing it by the
// number of bytes read.
func (s *Stream) Read(buf []byte) (int, error) {
	n, err := s.ReadAt(buf, s.position)
	s.position += int64(n)
	return n, err
}

// ReadAt reads into buf starting at offset without touching the stream's
// position. A read that reaches the end of the volume returns fewer bytes
// than requested with a nil error; only a read starting at or past the end
// returns io.EOF.
func (s *Stream) ReadAt(buf []byte, offset int64) (int, error) {
	if offset >= s.size {
		return 0, io.EOF
	}

	want := int64(len(buf))
	if offset+want > s.size {
		want = s.size - offset
	}

	bytesPerSector := int64(s.source.BytesPerSector())
	sector := uint64(offset / bytesPerSector)
	sectorOffset := offset % bytesPerSector
	sectorBuf := make([]byte, bytesPerSector)

	var total int64
	for total < want {
		if err := s.source.ReadSector(sector, sectorBuf); err != nil {
			return int(total), err
		}
		total += int64(copy(buf[total:want], sectorBuf[sectorOffset:]))
		sector++
		sectorOffset = 0
	}

	return int(total), nil
}
