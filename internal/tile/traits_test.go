package tile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTraits(t *testing.T) {
	tr, err := NewTraits([]int64{2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 3, tr.NDim)
	assert.Equal(t, int64(24), tr.NElems)
	assert.Equal(t, []int64{12, 4, 1}, tr.Stride)
	assert.Equal(t, [][2]int64{{1, 24}, {2, 12}, {6, 4}, {24, 1}}, tr.MatrixShape)

	scalar, err := NewTraits(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), scalar.NElems)
	assert.Equal(t, [][2]int64{{1, 1}}, scalar.MatrixShape)

	_, err = NewTraits([]int64{2, 0})
	assert.ErrorIs(t, err, ErrShape)
	assert.Panics(t, func() { MustTraits(-1) })
}

func TestFold(t *testing.T) {
	tr := MustTraits(2, 3, 4)
	tests := []struct {
		axis    int
		m, k, n int64
	}{
		{0, 1, 2, 12},
		{1, 2, 3, 4},
		{2, 6, 4, 1},
	}
	for _, tt := range tests {
		m, k, n, err := tr.Fold(tt.axis)
		require.NoError(t, err)
		assert.Equal(t, []int64{tt.m, tt.k, tt.n}, []int64{m, k, n}, "axis %d", tt.axis)
	}
	for _, axis := range []int{-1, 3} {
		_, _, _, err := tr.Fold(axis)
		assert.ErrorIs(t, err, ErrAxis)
	}
}

func TestLinearIndex(t *testing.T) {
	tr := MustTraits(2, 3, 4)
	for linear := int64(0); linear < tr.NElems; linear++ {
		index, err := tr.LinearToIndex(linear)
		require.NoError(t, err)
		back, err := tr.IndexToLinear(index)
		require.NoError(t, err)
		assert.Equal(t, linear, back)
	}
	index, err := tr.LinearToIndex(23)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, index)

	_, err = tr.IndexToLinear([]int64{0, 3, 0})
	assert.ErrorIs(t, err, ErrShape)
	_, err = tr.IndexToLinear([]int64{0, 0})
	assert.ErrorIs(t, err, ErrShape)
	_, err = tr.LinearToIndex(24)
	assert.ErrorIs(t, err, ErrShape)
}
