package kernel

import (
	"math"

	"github.com/fxnlabs/tilegraph/internal/dtype"
	"github.com/x448/float16"
)

// Fill sets every element of dst to val.
func Fill[T dtype.Element](val T, dst []T) {
	for i := range dst {
		dst[i] = val
	}
}

// AddScalar computes dst = alpha + beta*dst. With beta == 0 dst is only written.
func AddScalar[T dtype.Float](alpha, beta T, dst []T) {
	if beta == 0 {
		Fill(alpha, dst)
		return
	}
	for i := range dst {
		dst[i] = alpha + beta*dst[i]
	}
}

// Copy copies src into dst, which must have the same length.
func Copy[T dtype.Element](src, dst []T) {
	copy(dst, src)
}

// Relu clamps negative elements to zero in place.
func Relu[T dtype.Float](dst []T) {
	for i, v := range dst {
		if v < 0 {
			dst[i] = 0
		}
	}
}

const sqrt2OverPi = 0.7978845608028654

// GeluTanh applies the tanh approximation of GeLU in place.
func GeluTanh[T dtype.Float](dst []T) {
	for i, v := range dst {
		x := float64(v)
		dst[i] = T(0.5 * x * (1 + math.Tanh(sqrt2OverPi*(x+0.044715*x*x*x))))
	}
}

// Sqrt computes dst = sqrt(src).
func Sqrt[T dtype.Float](src, dst []T) {
	for i, v := range src {
		dst[i] = T(math.Sqrt(float64(v)))
	}
}

// Pow computes dst = alpha * dst^exp in place.
func Pow[T dtype.Float](alpha, exp T, dst []T) {
	for i, v := range dst {
		dst[i] = alpha * T(math.Pow(float64(v), float64(exp)))
	}
}

// HypotScalarInverse computes dst = 1 / hypot(alpha*dst, eps) in place.
func HypotScalarInverse[T dtype.Float](eps, alpha T, dst []T) {
	for i, v := range dst {
		dst[i] = T(1 / math.Hypot(float64(alpha*v), float64(eps)))
	}
}

// MaskScalar views dst as (batch, len(mask)) and sets every element whose
// mask entry is false to val.
func MaskScalar[T dtype.Float](mask []bool, val T, dst []T) {
	nrows := len(mask)
	if nrows == 0 {
		return
	}
	for b := 0; b+nrows <= len(dst); b += nrows {
		for i, keep := range mask {
			if !keep {
				dst[b+i] = val
			}
		}
	}
}

// SubtractIndexedOutputs views dst as (len(labels), n) and subtracts val from
// the labelled entry of every row. Labels outside [0, n) are ignored so one
// value can serve as padding.
func SubtractIndexedOutputs[T dtype.Float](n int, labels []int64, val T, dst []T) {
	for i, l := range labels {
		if l < 0 || l >= int64(n) {
			continue
		}
		dst[i*n+int(l)] -= val
	}
}

// FP32ToFP16 narrows src into dst with round-to-nearest-even. Values out of
// half precision range saturate to infinity.
func FP32ToFP16(src []float32, dst []dtype.FP16Value) {
	for i, v := range src {
		dst[i] = float16.Fromfloat32(v)
	}
}
