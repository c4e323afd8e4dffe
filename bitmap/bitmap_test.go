package bitmap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exfatvol/exfatvol/bitmap"
)

func TestNew__StartsEmpty(t *testing.T) {
	b := bitmap.New(64)
	assert.Equal(t, uint(64), b.ClusterCount())
	for i := uint(0); i < 64; i++ {
		assert.False(t, b.IsAllocated(i))
	}
}

func TestByteLen__RoundsUp(t *testing.T) {
	tests := []struct {
		clusterCount uint
		want         int
	}{
		{0, 0},
		{1, 1},
		{8, 1},
		{9, 2},
		{1024, 128},
	}
	for _, tt := range tests {
		b := bitmap.New(tt.clusterCount)
		assert.Equal(t, tt.want, b.ByteLen())
	}
}

func TestAllocateNext__MonotonicPrefix(t *testing.T) {
	b := bitmap.New(8)

	for want := uint(0); want < 8; want++ {
		got, ok := b.AllocateNext()
		require.True(t, ok)
		assert.Equal(t, want, got)
		assert.True(t, b.IsAllocated(want))
	}

	_, ok := b.AllocateNext()
	assert.False(t, ok, "bitmap should be exhausted")
}

func TestMustAllocateNext__ErrorsWhenExhausted(t *testing.T) {
	b := bitmap.New(1)

	_, err := b.MustAllocateNext()
	require.NoError(t, err)

	_, err = b.MustAllocateNext()
	assert.Error(t, err)
}

func TestReadSector__ZeroPadsPastLogicalLength(t *testing.T) {
	b := bitmap.New(4)
	_, _ = b.AllocateNext()
	_, _ = b.AllocateNext()

	buf := make([]byte, 8)
	b.ReadSector(0, buf)

	assert.Equal(t, byte(0b00000011), buf[0])
	for _, x := range buf[1:] {
		assert.Equal(t, byte(0), x)
	}
}
