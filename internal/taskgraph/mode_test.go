package taskgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccessModeValidate(t *testing.T) {
	tests := []struct {
		mode  AccessMode
		valid bool
		str   string
	}{
		{R, true, "R"},
		{W, true, "W"},
		{RW, true, "RW"},
		{RW | Commute, true, "RW|COMMUTE"},
		{Scratch, true, "SCRATCH"},
		{Redux, true, "REDUX"},
		{W | Commute, false, "mode(W|COMMUTE)"},
		{0, false, "mode()"},
	}
	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			assert.Equal(t, tt.str, tt.mode.String())
			if tt.valid {
				assert.NoError(t, tt.mode.Validate())
			} else {
				assert.Error(t, tt.mode.Validate())
			}
		})
	}
}

func TestFootprint(t *testing.T) {
	a := NewFootprint().Int64s([]int64{2, 3}).Bool(true).Sum32()
	b := NewFootprint().Int64s([]int64{2, 3}).Bool(true).Sum32()
	c := NewFootprint().Int64s([]int64{3, 2}).Bool(true).Sum32()
	d := NewFootprint().Int64s([]int64{2, 3}).Bool(false).Sum32()
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}

func TestBytesView(t *testing.T) {
	vals := []float32{1, 2, 3}
	b := Bytes(vals)
	assert.Len(t, b, 12)
	view := View[float32](Buffer{data: b})
	view[1] = 5
	assert.Equal(t, []float32{1, 5, 3}, vals)
	assert.Nil(t, Bytes[float32](nil))
	assert.Nil(t, View[float64](Buffer{data: b[:4]}))
}
