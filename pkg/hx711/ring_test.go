package hx711

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRing_Capacity(t *testing.T) {
	for _, n := range []int{4, 8, 16, 32, 64, 128} {
		r, err := NewRing(n)
		require.NoError(t, err, "capacity %d", n)
		assert.Equal(t, n, r.Cap())
	}
	for _, n := range []int{0, 1, 2, 3, 5, 12, 256, -4} {
		_, err := NewRing(n)
		assert.ErrorIs(t, err, ErrInvalidCapacity, "capacity %d", n)
	}
}

func TestRing_Shift(t *testing.T) {
	tests := []struct {
		capacity int
		want     uint
	}{
		{4, 2},
		{8, 3},
		{16, 4},
		{128, 7},
	}
	for _, tt := range tests {
		r, err := NewRing(tt.capacity)
		require.NoError(t, err)
		assert.Equal(t, tt.want, r.Shift())
	}
}

func TestRing_Wraparound(t *testing.T) {
	r, err := NewRing(4)
	require.NoError(t, err)

	r.Push(1)
	r.Push(2)
	r.Push(3)
	assert.False(t, r.Primed())
	assert.Equal(t, []int32{1, 2, 3}, r.Values(nil))

	r.Push(4)
	assert.True(t, r.Primed())
	assert.Equal(t, []int32{1, 2, 3, 4}, r.Values(nil))

	// One more write drops the oldest value.
	r.Push(5)
	assert.Equal(t, []int32{2, 3, 4, 5}, r.Values(nil))
	assert.Equal(t, 4, r.Len())

	for v := int32(6); v < 13; v++ {
		r.Push(v)
	}
	assert.Equal(t, []int32{9, 10, 11, 12}, r.Values(nil))
}

func TestRing_ValuesAppends(t *testing.T) {
	r, err := NewRing(4)
	require.NoError(t, err)
	r.Push(7)

	dst := make([]int32, 1, 8)
	dst[0] = -1
	assert.Equal(t, []int32{-1, 7}, r.Values(dst))
}

func TestRing_Sum(t *testing.T) {
	r, err := NewRing(4)
	require.NoError(t, err)
	for _, v := range []int32{30, 10, 40, 20} {
		r.Push(v)
	}

	tests := []struct {
		name              string
		ignoreLow, ignore bool
		want              int64
	}{
		{"no trimming", false, false, 100},
		{"ignore high", false, true, 60},
		{"ignore low", true, false, 90},
		{"ignore both", true, true, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Sum(tt.ignoreLow, tt.ignore))
		})
	}
}

func TestRing_SumRemovesOneExtreme(t *testing.T) {
	r, err := NewRing(4)
	require.NoError(t, err)
	for _, v := range []int32{5, 5, 5, 5} {
		r.Push(v)
	}
	assert.Equal(t, int64(10), r.Sum(true, true))
}

func TestRing_Reset(t *testing.T) {
	r, err := NewRing(8)
	require.NoError(t, err)
	for i := range 10 {
		r.Push(int32(i))
	}
	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Primed())
	assert.Equal(t, int64(0), r.Sum(false, false))
	assert.Empty(t, r.Values(nil))
}
