package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLoad(t *testing.T) {
	f, err := New(Capacity16)
	require.NoError(t, err)

	require.NoError(t, Store(f, 1, uint8(0x10)))
	require.NoError(t, Store(f, 2, int16(-2)))
	require.NoError(t, Store(f, 4, float32(1.5)))
	require.NoError(t, Store(f, 8, uint32(0xDEADBEEF)))
	require.NoError(t, Store(f, 12, true))

	u8, err := Load[uint8](f, 1)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x10), u8)

	i16, err := Load[int16](f, 2)
	require.NoError(t, err)
	assert.Equal(t, int16(-2), i16)

	f32, err := Load[float32](f, 4)
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f32)

	u32, err := Load[uint32](f, 8)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), u32)

	b, err := Load[bool](f, 12)
	require.NoError(t, err)
	assert.True(t, b)

	assert.True(t, f.Valid(), "stores must not touch the markers")
}

func TestStore_LittleEndian(t *testing.T) {
	f, _ := New(8)
	require.NoError(t, Store(f, 1, uint16(0x0102)))
	assert.Equal(t, byte(0x02), f.Buffer()[1])
	assert.Equal(t, byte(0x01), f.Buffer()[2])
}

func TestStore_OutOfRange(t *testing.T) {
	f, _ := New(8)
	before := f.Bytes()

	tests := []struct {
		name  string
		store func() error
	}{
		{"start marker", func() error { return Store(f, 0, uint8(1)) }},
		{"end marker", func() error { return Store(f, 7, uint8(1)) }},
		{"spans end marker", func() error { return Store(f, 4, uint32(1)) }},
		{"negative", func() error { return Store(f, -1, uint8(1)) }},
		{"too wide", func() error { return Store(f, 1, uint64(1)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.store(), ErrOutOfRange)
		})
	}
	assert.Equal(t, before, f.Bytes())

	_, err := Load[uint64](f, 1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestChecksum(t *testing.T) {
	f, err := FromPayload(8, []byte{1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.False(t, XORChecksum(f.Buffer()), "unsealed frame has a zero checksum slot")

	f.SealChecksum()
	assert.Equal(t, byte(1^2^3^4^5), f.Buffer()[ChecksumIndex(8)])
	assert.True(t, XORChecksum(f.Buffer()))

	f.Buffer()[3] ^= 0xFF
	assert.False(t, XORChecksum(f.Buffer()))

	assert.False(t, XORChecksum([]byte{0xFF, 0x0D}))
	assert.False(t, XORChecksum([]byte{0x00, 0, 0, 0x0D}))
}
