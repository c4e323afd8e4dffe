package dirent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exfatvol/exfatvol/dirent"
)

func TestVolumeLabel__EmptyLabel(t *testing.T) {
	b := dirent.VolumeLabel{}.MarshalBinary()
	assert.Equal(t, byte(dirent.TagVolumeLabel), b[0])
	assert.Equal(t, byte(0), b[1]) // CharacterCount
	for _, x := range b[2:] {
		assert.Equal(t, byte(0), x)
	}
}

func TestAllocationBitmapEntry__Fields(t *testing.T) {
	e := dirent.AllocationBitmapEntry{FirstCluster: 2, DataLength: 128}
	b := e.MarshalBinary()

	assert.Equal(t, byte(dirent.TagAllocationBitmap), b[0])
	assert.Equal(t, byte(0), b[1]) // SecondFAT unset
	assert.Equal(t, uint32(2), dirent.ReadUint32(b[:], 20))
	assert.Equal(t, uint64(128), dirent.ReadUint64(b[:], 24))
}

func TestFile__SecondaryCountAndChecksum(t *testing.T) {
	e := dirent.File{SecondaryCount: 3, SetChecksum: 0xBEEF, Attributes: dirent.AttrDirectory}
	b := e.MarshalBinary()

	assert.Equal(t, byte(dirent.TagFile), b[0])
	assert.Equal(t, byte(3), b[dirent.OffsetFileSecondaryCount])
	assert.Equal(t, uint16(0xBEEF), dirent.ReadUint16(b[:], dirent.OffsetFileSetChecksum))
}

func TestStreamExtension__Fields(t *testing.T) {
	e := dirent.StreamExtension{
		Flags:           dirent.FlagAllocationPossible | dirent.FlagNoFatChain,
		NameLength:      5,
		NameHash:        0x1234,
		ValidDataLength: 10,
		FirstCluster:    7,
		DataLength:      10,
	}
	b := e.MarshalBinary()

	assert.Equal(t, byte(dirent.TagStreamExtension), b[0])
	assert.Equal(t, byte(5), b[dirent.OffsetStreamNameLength])
	assert.Equal(t, uint16(0x1234), dirent.ReadUint16(b[:], dirent.OffsetStreamNameHash))
	assert.Equal(t, uint64(10), dirent.ReadUint64(b[:], dirent.OffsetStreamValidDataLength))
	assert.Equal(t, uint32(7), dirent.ReadUint32(b[:], dirent.OffsetStreamFirstCluster))
	assert.Equal(t, uint64(10), dirent.ReadUint64(b[:], dirent.OffsetStreamDataLength))
}

func TestBuildFileNameEntries__PadsFinalChunk(t *testing.T) {
	name := make([]uint16, 17)
	for i := range name {
		name[i] = uint16('a' + i%26)
	}

	entries := dirent.BuildFileNameEntries(name)
	require.Len(t, entries, 2)
	assert.Equal(t, name[:15], entries[0].Chars[:])
	assert.Equal(t, name[15:], entries[1].Chars[:2])
	for _, pad := range entries[1].Chars[2:] {
		assert.Equal(t, uint16(0), pad)
	}
}

func TestSerializeSet__ConcatenatesInOrder(t *testing.T) {
	entries := []dirent.Entry{dirent.VolumeLabel{}, dirent.UpcaseTableEntry{}}
	data := dirent.SerializeSet(entries)

	require.Len(t, data, 2*dirent.Size)
	assert.Equal(t, byte(dirent.TagVolumeLabel), data[0])
	assert.Equal(t, byte(dirent.TagUpcaseTable), data[dirent.Size])
}

func TestPatchHelpers__RoundTrip(t *testing.T) {
	var entry [dirent.Size]byte
	dirent.PutUint16(entry[:], 4, 0xABCD)
	dirent.PutUint32(entry[:], 8, 0xDEADBEEF)
	dirent.PutUint64(entry[:], 16, 0x0102030405060708)

	assert.Equal(t, uint16(0xABCD), dirent.ReadUint16(entry[:], 4))
	assert.Equal(t, uint32(0xDEADBEEF), dirent.ReadUint32(entry[:], 8))
	assert.Equal(t, uint64(0x0102030405060708), dirent.ReadUint64(entry[:], 16))
}
