package tile

import (
	"math"
	"testing"

	"github.com/fxnlabs/tilegraph/internal/backend"
	"github.com/fxnlabs/tilegraph/internal/codelet"
	"github.com/fxnlabs/tilegraph/internal/dtype"
	"github.com/fxnlabs/tilegraph/internal/kernel"
	"github.com/fxnlabs/tilegraph/internal/taskgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLibrary(t *testing.T) *codelet.Library {
	t.Helper()
	rt, err := taskgraph.New(taskgraph.Options{Backends: backend.Options{CPUWorkers: 4}}, zap.NewNop())
	require.NoError(t, err)
	lib, err := codelet.NewLibrary(rt)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, lib.Close())
		assert.NoError(t, rt.Shutdown())
	})
	return lib
}

func fromSlice[T dtype.Element](t *testing.T, lib *codelet.Library, data []T, shape ...int64) *Tile[T] {
	t.Helper()
	tl, err := FromSlice(lib, MustTraits(shape...), data)
	require.NoError(t, err)
	return tl
}

func values[T dtype.Element](t *testing.T, tl *Tile[T]) []T {
	t.Helper()
	v, err := tl.Values()
	require.NoError(t, err)
	return v
}

func TestFillScenario(t *testing.T) {
	lib := newLibrary(t)
	tl, err := New[float64](lib, MustTraits(4))
	require.NoError(t, err)
	require.NoError(t, Fill(7.0, tl))

	data, err := tl.Acquire(taskgraph.R)
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 7, 7, 7}, data)
	require.NoError(t, tl.Release())
	require.NoError(t, tl.Unregister())
}

func TestPreconditionsInsertNothing(t *testing.T) {
	lib := newLibrary(t)
	rt := lib.Runtime()
	a := fromSlice(t, lib, make([]float32, 6), 2, 3)
	b := fromSlice(t, lib, make([]float32, 3), 3)
	c := fromSlice(t, lib, make([]float32, 4), 4)
	labels := fromSlice(t, lib, make([]int64, 3), 3)
	mask := fromSlice(t, lib, make([]bool, 2), 2)

	tests := []struct {
		name string
		err  error
		run  func() error
	}{
		{"broadcast add with swapped ranks", ErrShape, func() error { return AddSliceAsync(1, a, 1, b, 1) }},
		{"sum slice extent", ErrShape, func() error { return SumSliceAsync(1, a, 0, c, 1, false) }},
		{"sum slice axis", ErrAxis, func() error { return SumSliceAsync(1, a, 0, b, 2, false) }},
		{"copy", ErrShape, func() error { return CopyAsync(b, c) }},
		{"sqrt", ErrShape, func() error { return SqrtAsync(a, b) }},
		{"sumprod slice", ErrShape, func() error { return SumprodSliceAsync(1, a, b, 0, b, 0, false) }},
		{"sum fiber", ErrShape, func() error { return SumFiberAsync(1, a, 0, c, 1, false) }},
		{"add fiber axis", ErrAxis, func() error { return AddFiberAsync(1, b, 0, a, 5) }},
		{"gemm contraction", ErrShape, func() error {
			return GemmAsync(1, kernel.NoTrans, a, kernel.NoTrans, a, 0, a, 1, 0, false)
		}},
		{"gemm negative ndim", ErrAxis, func() error {
			return GemmAsync(1, kernel.NoTrans, a, kernel.NoTrans, a, 0, a, -1, 0, false)
		}},
		{"randn outside", ErrShape, func() error { return RandnAsync(1, 0, 1, []int64{1, 0}, []int64{2, 3}, a) }},
		{"subtract indexed outputs", ErrShape, func() error { return SubtractIndexedOutputsAsync(labels, 1, a) }},
		{"mask scalar", ErrShape, func() error { return MaskScalarAsync(mask, 0, a, 1) }},
		{"subcopy", ErrShape, func() error {
			return SubcopyAsync(a, []int64{1, 0}, a, []int64{0, 0}, []int64{2, 3})
		}},
		{"from slice", ErrShape, func() error {
			_, err := FromSlice(lib, MustTraits(2), []float32{1})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := rt.Stats().Submitted
			assert.ErrorIs(t, tt.run(), tt.err)
			assert.Equal(t, before, rt.Stats().Submitted, "no task is inserted")
		})
	}
}

func TestAxisOps(t *testing.T) {
	lib := newLibrary(t)
	src := fromSlice(t, lib, []float64{1, 2, 3, 4, 5, 6}, 2, 3)
	rows := fromSlice(t, lib, []float64{math.NaN(), math.NaN()}, 2)
	cols := fromSlice(t, lib, make([]float64, 3), 3)

	require.NoError(t, SumSlice(1, src, 0, rows, 1, false))
	assert.Equal(t, []float64{6, 15}, values(t, rows))
	require.NoError(t, SumSlice(1, src, 0, cols, 0, false))
	assert.Equal(t, []float64{5, 7, 9}, values(t, cols))

	require.NoError(t, SumprodSlice(1, src, src, 0, rows, 1, false))
	assert.Equal(t, []float64{14, 77}, values(t, rows))

	// Row sums of a column broadcast.
	dst := fromSlice(t, lib, make([]float64, 6), 2, 3)
	require.NoError(t, AddSlice(2, rows, 0, dst, 1))
	assert.Equal(t, []float64{28, 28, 28, 154, 154, 154}, values(t, dst))

	require.NoError(t, SumFiber(1, src, 0, cols, 1, false))
	assert.Equal(t, []float64{5, 7, 9}, values(t, cols))
	require.NoError(t, AddFiber(-1, cols, 1, dst, 1))
	assert.Equal(t, []float64{23, 21, 19, 149, 147, 145}, values(t, dst))
}

func TestSumSliceRedux(t *testing.T) {
	lib := newLibrary(t)
	dst := fromSlice(t, lib, []float32{0, 0}, 2)
	for i := 1; i <= 8; i++ {
		src := fromSlice(t, lib, []float32{float32(i), float32(i), 0, 0, 0, 0}, 2, 3)
		require.NoError(t, SumSliceAsync(1, src, 1, dst, 1, true))
	}
	require.NoError(t, lib.Runtime().WaitForAll())
	assert.Equal(t, []float32{72, 0}, values(t, dst))
}

func TestGemm(t *testing.T) {
	lib := newLibrary(t)
	// Batch of 2 products of 2x3 by 3x1.
	a := fromSlice(t, lib, []float64{1, 2, 3, 4, 5, 6, 1, 0, 0, 0, 1, 0}, 2, 2, 3)
	b := fromSlice(t, lib, []float64{1, 1, 1, 1, 2, 3}, 2, 3, 1)
	c := fromSlice(t, lib, []float64{math.NaN(), math.NaN(), math.NaN(), math.NaN()}, 2, 2, 1)
	require.NoError(t, Gemm(1, kernel.NoTrans, a, kernel.NoTrans, b, 0, c, 1, 1, false))
	assert.Equal(t, []float64{6, 15, 1, 2}, values(t, c))

	// A^T with A stored as [K, M].
	at := fromSlice(t, lib, []float64{1, 4, 2, 5, 3, 6}, 3, 2)
	b2 := fromSlice(t, lib, []float64{1, 1, 1}, 3)
	c2 := fromSlice(t, lib, []float64{1, 1}, 2)
	require.NoError(t, Gemm(2, kernel.Transpose, at, kernel.NoTrans, b2, 1, c2, 1, 0, false))
	assert.Equal(t, []float64{13, 31}, values(t, c2))

	s, err := CheckGemm(kernel.NoTrans, MustTraits(4, 5, 6), kernel.Transpose, MustTraits(7, 5, 6), MustTraits(4, 7), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, GemmShape{M: 4, N: 7, K: 30, Batch: 1}, s)
}

func TestElementwiseOps(t *testing.T) {
	lib := newLibrary(t)
	x := fromSlice(t, lib, []float32{-4, 9, 16, 25}, 2, 2)
	require.NoError(t, Relu(x))
	assert.Equal(t, []float32{0, 9, 16, 25}, values(t, x))

	y, err := New[float32](lib, x.Traits)
	require.NoError(t, err)
	require.NoError(t, Sqrt(x, y))
	assert.Equal(t, []float32{0, 3, 4, 5}, values(t, y))

	require.NoError(t, AddScalar(1, 1, y))
	require.NoError(t, Pow(1, 2, y))
	assert.Equal(t, []float32{1, 16, 25, 36}, values(t, y))

	require.NoError(t, HypotScalarInverse(0, 1, y))
	assert.InDeltaSlice(t, []float32{1, 1.0 / 16, 1.0 / 25, 1.0 / 36}, values(t, y), 1e-6)

	require.NoError(t, Copy(x, y))
	mask := fromSlice(t, lib, []bool{true, false}, 2)
	require.NoError(t, MaskScalar(mask, -1, y, 1))
	assert.Equal(t, []float32{0, -1, 16, -1}, values(t, y))

	labels := fromSlice(t, lib, []int64{1, 0}, 2)
	require.NoError(t, SubtractIndexedOutputs(labels, 1, y))
	assert.Equal(t, []float32{0, -2, 15, -1}, values(t, y))

	half, err := New[dtype.FP16Value](lib, x.Traits)
	require.NoError(t, err)
	require.NoError(t, FP32ToFP16(x, half))
	assert.Equal(t, float32(25), values(t, half)[3].Float32())

	require.NoError(t, GeluTanh(x))
	assert.InDelta(t, 9, values(t, x)[1], 1e-5)
}

func TestRandnAndSubcopy(t *testing.T) {
	lib := newLibrary(t)
	underlying := []int64{3, 4}
	whole, err := New[float64](lib, MustTraits(underlying...))
	require.NoError(t, err)
	require.NoError(t, Randn(5, 0.0, 1.0, []int64{0, 0}, underlying, whole))

	part, err := New[float64](lib, MustTraits(2, 2))
	require.NoError(t, err)
	require.NoError(t, Randn(5, 0.0, 1.0, []int64{1, 2}, underlying, part))

	copied, err := New[float64](lib, MustTraits(2, 2))
	require.NoError(t, err)
	require.NoError(t, Fill(0.0, copied))
	require.NoError(t, Subcopy(whole, []int64{1, 2}, copied, []int64{0, 0}, []int64{2, 2}))
	assert.Equal(t, values(t, part), values(t, copied))

	// Write-only destinations ignore previous content.
	before := values(t, part)
	require.NoError(t, Fill(math.NaN(), part))
	require.NoError(t, Randn(5, 0.0, 1.0, []int64{1, 2}, underlying, part))
	assert.Equal(t, before, values(t, part))
}
