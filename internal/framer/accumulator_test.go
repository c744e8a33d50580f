package framer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccumulator_Append(t *testing.T) {
	a := newAccumulator(6)
	assert.Equal(t, 6, a.Cap())
	assert.True(t, a.Append([]byte{1, 2, 3}))
	assert.True(t, a.Append([]byte{4, 5, 6}))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, a.Bytes())

	assert.False(t, a.Fits(1))
	assert.False(t, a.Append([]byte{7}))
	assert.Equal(t, 6, a.Len(), "failed append must not change occupancy")
}

func TestAccumulator_ShiftLeft(t *testing.T) {
	tests := []struct {
		name   string
		offset int
		want   []byte
	}{
		{"zero", 0, []byte{1, 2, 3, 4, 5}},
		{"negative", -2, []byte{1, 2, 3, 4, 5}},
		{"middle", 2, []byte{3, 4, 5}},
		{"all but one", 4, []byte{5}},
		{"exact", 5, []byte{}},
		{"past end", 9, []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAccumulator(8)
			a.Append([]byte{1, 2, 3, 4, 5})
			a.ShiftLeft(tt.offset)
			assert.Equal(t, tt.want, a.Bytes())
			assert.Equal(t, len(tt.want), a.Len())
		})
	}
}

func TestAccumulator_Reset(t *testing.T) {
	a := newAccumulator(4)
	a.Append([]byte{1, 2, 3})
	assert.Equal(t, 3, a.Reset())
	assert.Zero(t, a.Len())
	assert.Equal(t, 0, a.Reset())
}
