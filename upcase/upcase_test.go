package upcase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/exfatvol/exfatvol/upcase"
)

func TestUpCase__AsciiLetters(t *testing.T) {
	assert.Equal(t, uint16('A'), upcase.UpCase('a'))
	assert.Equal(t, uint16('Z'), upcase.UpCase('z'))
	assert.Equal(t, uint16('A'), upcase.UpCase('A'))
}

func TestUpCase__NonLetterIsUnchanged(t *testing.T) {
	assert.Equal(t, uint16('0'), upcase.UpCase('0'))
	assert.Equal(t, uint16('.'), upcase.UpCase('.'))
}

func TestUpCase__AboveTableLengthIsIdentity(t *testing.T) {
	var c uint16 = upcase.Length + 5
	assert.Equal(t, c, upcase.UpCase(c))
}

func TestUpCaseString(t *testing.T) {
	in := []uint16{'h', 'E', 'l', 'L', 'o'}
	want := []uint16{'H', 'E', 'L', 'L', 'O'}
	assert.Equal(t, want, upcase.UpCaseString(in))
}

func TestReadSector__CoversWholeTable(t *testing.T) {
	buf := make([]byte, 512)
	sectors := (upcase.ByteLength + len(buf) - 1) / len(buf)

	assembled := make([]byte, 0, sectors*len(buf))
	for s := 0; s < sectors; s++ {
		sector := make([]byte, len(buf))
		upcase.ReadSector(uint64(s), sector)
		assembled = append(assembled, sector...)
	}

	// First entry (code unit 0) up-cases to itself: bytes 0x00 0x00.
	assert.Equal(t, byte(0), assembled[0])
	assert.Equal(t, byte(0), assembled[1])
	// Code unit 'a' (0x61) up-cases to 'A' (0x41).
	assert.Equal(t, byte('A'), assembled['a'*2])
}
