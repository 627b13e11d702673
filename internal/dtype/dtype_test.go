package dtype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOf(t *testing.T) {
	assert.Equal(t, FP16, Of[FP16Value]())
	assert.Equal(t, FP32, Of[float32]())
	assert.Equal(t, FP64, Of[float64]())
	assert.Equal(t, Int64, Of[int64]())
	assert.Equal(t, Bool, Of[bool]())
}

func TestDType(t *testing.T) {
	testCases := []struct {
		dt    DType
		name  string
		size  int
		float bool
	}{
		{FP16, "fp16", 2, false},
		{FP32, "fp32", 4, true},
		{FP64, "fp64", 8, true},
		{Int64, "int64", 8, false},
		{Bool, "bool", 1, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.name, tc.dt.String())
			assert.Equal(t, tc.size, tc.dt.Size())
			assert.Equal(t, tc.float, tc.dt.IsFloat())
		})
	}
	assert.Equal(t, 0, Invalid.Size())
	assert.Equal(t, "dtype(0)", Invalid.String())
}
