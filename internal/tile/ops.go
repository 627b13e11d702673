package tile

import (
	"fmt"

	"github.com/fxnlabs/tilegraph/internal/codelet"
	"github.com/fxnlabs/tilegraph/internal/dtype"
)

// FillAsync sets every element of dst to val.
func FillAsync[T dtype.Element](val T, dst *Tile[T]) error {
	return codelet.SubmitFill(dst.lib, int(dst.NElems), val, dst.handle)
}

func Fill[T dtype.Element](val T, dst *Tile[T]) error {
	return wait(dst.lib, FillAsync(val, dst))
}

// AddScalarAsync computes dst = alpha + beta*dst.
func AddScalarAsync[T dtype.Float](alpha, beta T, dst *Tile[T]) error {
	return codelet.SubmitAddScalar(dst.lib, int(dst.NElems), alpha, beta, dst.handle)
}

func AddScalar[T dtype.Float](alpha, beta T, dst *Tile[T]) error {
	return wait(dst.lib, AddScalarAsync(alpha, beta, dst))
}

// CopyAsync copies src into dst of the same shape.
func CopyAsync[T dtype.Element](src, dst *Tile[T]) error {
	if err := sameShape("copy", src.Traits, dst.Traits); err != nil {
		return err
	}
	if err := sameLibrary(dst.lib, src.lib); err != nil {
		return err
	}
	return codelet.SubmitCopy[T](dst.lib, int(dst.NElems), src.handle, dst.handle)
}

func Copy[T dtype.Element](src, dst *Tile[T]) error {
	return wait(dst.lib, CopyAsync(src, dst))
}

// SubcopyAsync copies the block of the given shape at srcStart of src to
// dstStart of dst.
func SubcopyAsync[T dtype.Element](src *Tile[T], srcStart []int64, dst *Tile[T], dstStart []int64, shape []int64) error {
	if len(shape) != src.NDim || len(shape) != dst.NDim || len(srcStart) != src.NDim || len(dstStart) != dst.NDim {
		return fmt.Errorf("subcopy: %w: ranks of block %v, src %v, dst %v", ErrShape, shape, src.Shape, dst.Shape)
	}
	for i, e := range shape {
		if e < 1 || srcStart[i] < 0 || dstStart[i] < 0 || srcStart[i]+e > src.Shape[i] || dstStart[i]+e > dst.Shape[i] {
			return fmt.Errorf("subcopy: %w: block %v at %v of %v into %v of %v",
				ErrShape, shape, srcStart, src.Shape, dstStart, dst.Shape)
		}
	}
	if err := sameLibrary(dst.lib, src.lib); err != nil {
		return err
	}
	return codelet.SubmitSubcopy[T](dst.lib, shape, src.handle, src.Shape, srcStart, dst.handle, dst.Shape, dstStart)
}

func Subcopy[T dtype.Element](src *Tile[T], srcStart []int64, dst *Tile[T], dstStart []int64, shape []int64) error {
	return wait(dst.lib, SubcopyAsync(src, srcStart, dst, dstStart, shape))
}

func ReluAsync[T dtype.Float](dst *Tile[T]) error {
	return codelet.SubmitRelu[T](dst.lib, int(dst.NElems), dst.handle)
}

func Relu[T dtype.Float](dst *Tile[T]) error {
	return wait(dst.lib, ReluAsync(dst))
}

func GeluTanhAsync[T dtype.Float](dst *Tile[T]) error {
	return codelet.SubmitGeluTanh[T](dst.lib, int(dst.NElems), dst.handle)
}

func GeluTanh[T dtype.Float](dst *Tile[T]) error {
	return wait(dst.lib, GeluTanhAsync(dst))
}

// SqrtAsync computes dst = sqrt(src).
func SqrtAsync[T dtype.Float](src, dst *Tile[T]) error {
	if err := sameShape("sqrt", src.Traits, dst.Traits); err != nil {
		return err
	}
	if err := sameLibrary(dst.lib, src.lib); err != nil {
		return err
	}
	return codelet.SubmitSqrt[T](dst.lib, int(dst.NElems), src.handle, dst.handle)
}

func Sqrt[T dtype.Float](src, dst *Tile[T]) error {
	return wait(dst.lib, SqrtAsync(src, dst))
}

// PowAsync computes dst = alpha * dst^exp.
func PowAsync[T dtype.Float](alpha, exp T, dst *Tile[T]) error {
	return codelet.SubmitPow(dst.lib, int(dst.NElems), alpha, exp, dst.handle)
}

func Pow[T dtype.Float](alpha, exp T, dst *Tile[T]) error {
	return wait(dst.lib, PowAsync(alpha, exp, dst))
}

// HypotScalarInverseAsync computes dst = 1 / hypot(alpha*dst, eps).
func HypotScalarInverseAsync[T dtype.Float](eps, alpha T, dst *Tile[T]) error {
	return codelet.SubmitHypotScalarInverse(dst.lib, int(dst.NElems), eps, alpha, dst.handle)
}

func HypotScalarInverse[T dtype.Float](eps, alpha T, dst *Tile[T]) error {
	return wait(dst.lib, HypotScalarInverseAsync(eps, alpha, dst))
}

// MaskScalarAsync sets dst elements to val where mask is false. The mask
// covers the trailing axes of dst after the first batchNDim.
func MaskScalarAsync[T dtype.Float](mask *Tile[bool], val T, dst *Tile[T], batchNDim int) error {
	if batchNDim < 0 || batchNDim > dst.NDim {
		return fmt.Errorf("mask_scalar: %w: %d batch axes of a %d-d tile", ErrAxis, batchNDim, dst.NDim)
	}
	if mask.NDim != dst.NDim-batchNDim {
		return fmt.Errorf("mask_scalar: %w: mask rank %d, dst rank %d, %d batch axes", ErrShape, mask.NDim, dst.NDim, batchNDim)
	}
	for i, e := range mask.Shape {
		if e != dst.Shape[batchNDim+i] {
			return fmt.Errorf("mask_scalar: %w: mask %v, dst %v", ErrShape, mask.Shape, dst.Shape)
		}
	}
	if err := sameLibrary(dst.lib, mask.lib); err != nil {
		return err
	}
	batch := prod(dst.Shape[:batchNDim])
	return codelet.SubmitMaskScalar(dst.lib, int(mask.NElems), int(batch), mask.handle, val, dst.handle)
}

func MaskScalar[T dtype.Float](mask *Tile[bool], val T, dst *Tile[T], batchNDim int) error {
	return wait(dst.lib, MaskScalarAsync(mask, val, dst, batchNDim))
}

// SubtractIndexedOutputsAsync subtracts val from dst[..., labels[...]]. dst
// has one more axis than labels, its last one indexed by the labels.
func SubtractIndexedOutputsAsync[T dtype.Float](labels *Tile[int64], val T, dst *Tile[T]) error {
	if dst.NDim != labels.NDim+1 {
		return fmt.Errorf("subtract_indexed_outputs: %w: labels %v, dst %v", ErrShape, labels.Shape, dst.Shape)
	}
	for i, e := range labels.Shape {
		if e != dst.Shape[i] {
			return fmt.Errorf("subtract_indexed_outputs: %w: labels %v, dst %v", ErrShape, labels.Shape, dst.Shape)
		}
	}
	if err := sameLibrary(dst.lib, labels.lib); err != nil {
		return err
	}
	return codelet.SubmitSubtractIndexedOutputs(dst.lib, int(dst.Shape[dst.NDim-1]), int(labels.NElems),
		labels.handle, val, dst.handle)
}

func SubtractIndexedOutputs[T dtype.Float](labels *Tile[int64], val T, dst *Tile[T]) error {
	return wait(dst.lib, SubtractIndexedOutputsAsync(labels, val, dst))
}

// FP32ToFP16Async narrows src into dst of the same shape.
func FP32ToFP16Async(src *Tile[float32], dst *Tile[dtype.FP16Value]) error {
	if err := sameShape("fp32_to_fp16", src.Traits, dst.Traits); err != nil {
		return err
	}
	if err := sameLibrary(dst.lib, src.lib); err != nil {
		return err
	}
	return codelet.SubmitFP32ToFP16(dst.lib, int(dst.NElems), src.handle, dst.handle)
}

func FP32ToFP16(src *Tile[float32], dst *Tile[dtype.FP16Value]) error {
	return wait(dst.lib, FP32ToFP16Async(src, dst))
}

// RandnAsync fills dst as the block at start of a normal array of the
// underlying shape generated from seed.
func RandnAsync[T dtype.Float](seed uint64, mean, stddev T, start, underlying []int64, dst *Tile[T]) error {
	if len(start) != dst.NDim || len(underlying) != dst.NDim {
		return fmt.Errorf("randn: %w: start %v and underlying %v for a %d-d tile", ErrShape, start, underlying, dst.NDim)
	}
	for i := range start {
		if start[i] < 0 || start[i]+dst.Shape[i] > underlying[i] {
			return fmt.Errorf("randn: %w: block %v at %v outside of %v", ErrShape, dst.Shape, start, underlying)
		}
	}
	return codelet.SubmitRandn(dst.lib, seed, mean, stddev, start, dst.Shape, underlying, dst.handle)
}

func Randn[T dtype.Float](seed uint64, mean, stddev T, start, underlying []int64, dst *Tile[T]) error {
	return wait(dst.lib, RandnAsync(seed, mean, stddev, start, underlying, dst))
}
