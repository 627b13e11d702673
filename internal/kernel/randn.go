package kernel

import (
	"math"

	"github.com/fxnlabs/tilegraph/internal/dtype"
)

// 64-bit linear congruential generator with O(log n) jump ahead.
const (
	lcgMul = 6364136223846793005
	lcgAdd = 1
	// lcgScale maps a state to [0, 1).
	lcgScale = 5.4210108624275222e-20
)

// lcgJump advances state by n steps.
func lcgJump(n, state uint64) uint64 {
	accMul, accAdd := uint64(1), uint64(0)
	curMul, curAdd := uint64(lcgMul), uint64(lcgAdd)
	for ; n > 0; n >>= 1 {
		if n&1 == 1 {
			accMul *= curMul
			accAdd = accAdd*curMul + curAdd
		}
		curAdd *= curMul + 1
		curMul *= curMul
	}
	return accMul*state + accAdd
}

func uniform(state *uint64) float64 {
	u := float64(*state) * lcgScale
	*state = *state*lcgMul + lcgAdd
	return u
}

// normal draws one Box-Muller sample, consuming two states.
func normal(state *uint64) float64 {
	t1 := uniform(state)
	if t1 == 0 {
		t1 = lcgScale
	}
	t2 := uniform(state) * 2 * math.Pi
	return math.Sqrt(-2*math.Log(t1)) * math.Cos(t2)
}

// Randn fills dst, of the given shape, with normal samples as if an array of
// the underlying shape had been generated from seed element by element in
// row-major order and dst were its block starting at start. Any partition of
// the underlying array therefore reproduces the same values. index is caller
// provided scratch of len(shape) elements.
func Randn[T dtype.Float](seed uint64, mean, stddev T, start, shape, underlying []int64, dst []T, index []int64) {
	ndim := len(shape)
	if ndim == 0 {
		state := seed
		dst[0] = mean + stddev*T(normal(&state))
		return
	}
	for _, e := range shape {
		if e == 0 {
			return
		}
	}
	clear(index[:ndim])
	run := int(shape[ndim-1])
	pos := 0
	for {
		state := lcgJump(2*uint64(offset(underlying, start, index)), seed)
		for i := 0; i < run; i++ {
			dst[pos] = mean + stddev*T(normal(&state))
			pos++
		}
		if !nextRow(shape, index) {
			return
		}
	}
}
