package tensor

import (
	"context"
	"fmt"
	"slices"

	"github.com/fxnlabs/tilegraph/internal/cluster"
	"github.com/fxnlabs/tilegraph/internal/dtype"
	"github.com/fxnlabs/tilegraph/internal/tile"
)

// Every operation below is collective and follows one pattern per
// destination tile: transfer the source tiles to the destination's owner,
// submit the tile operation there, and flush the destination everywhere.
// All checks run before the first submission. The blocking variants wait for
// the whole cluster.

func wait(ctx context.Context, node *cluster.Node, err error) error {
	if err != nil {
		return err
	}
	return node.Wait(ctx)
}

func sameLayout(op string, a, b Traits) error {
	if !a.SameLayout(b) {
		return fmt.Errorf("%s: %w: %v/%v and %v/%v", op, tile.ErrShape, a.Shape, a.Basetile, b.Shape, b.Basetile)
	}
	return nil
}

// inPlace runs fn on every owned tile of dst and flushes every tile.
func inPlace[T dtype.Element](dst *Tensor[T], fn func(tl *tile.Tile[T], i int64) error) error {
	for i := int64(0); i < dst.NTiles(); i++ {
		if dst.isLocal(i) {
			if err := fn(dst.tiles[i], i); err != nil {
				return err
			}
		}
		if err := dst.flush(i); err != nil {
			return err
		}
	}
	return nil
}

// FillAsync sets every element of dst to val.
func FillAsync[T dtype.Element](val T, dst *Tensor[T]) error {
	return inPlace(dst, func(tl *tile.Tile[T], _ int64) error {
		return tile.FillAsync(val, tl)
	})
}

func Fill[T dtype.Element](ctx context.Context, val T, dst *Tensor[T]) error {
	return wait(ctx, dst.node, FillAsync(val, dst))
}

// AddScalarAsync computes dst = alpha + beta*dst.
func AddScalarAsync[T dtype.Float](alpha, beta T, dst *Tensor[T]) error {
	return inPlace(dst, func(tl *tile.Tile[T], _ int64) error {
		return tile.AddScalarAsync(alpha, beta, tl)
	})
}

func AddScalar[T dtype.Float](ctx context.Context, alpha, beta T, dst *Tensor[T]) error {
	return wait(ctx, dst.node, AddScalarAsync(alpha, beta, dst))
}

func ReluAsync[T dtype.Float](dst *Tensor[T]) error {
	return inPlace(dst, func(tl *tile.Tile[T], _ int64) error {
		return tile.ReluAsync(tl)
	})
}

func Relu[T dtype.Float](ctx context.Context, dst *Tensor[T]) error {
	return wait(ctx, dst.node, ReluAsync(dst))
}

func GeluTanhAsync[T dtype.Float](dst *Tensor[T]) error {
	return inPlace(dst, func(tl *tile.Tile[T], _ int64) error {
		return tile.GeluTanhAsync(tl)
	})
}

func GeluTanh[T dtype.Float](ctx context.Context, dst *Tensor[T]) error {
	return wait(ctx, dst.node, GeluTanhAsync(dst))
}

// PowAsync computes dst = alpha * dst^exp.
func PowAsync[T dtype.Float](alpha, exp T, dst *Tensor[T]) error {
	return inPlace(dst, func(tl *tile.Tile[T], _ int64) error {
		return tile.PowAsync(alpha, exp, tl)
	})
}

func Pow[T dtype.Float](ctx context.Context, alpha, exp T, dst *Tensor[T]) error {
	return wait(ctx, dst.node, PowAsync(alpha, exp, dst))
}

// HypotScalarInverseAsync computes dst = 1 / hypot(alpha*dst, eps).
func HypotScalarInverseAsync[T dtype.Float](eps, alpha T, dst *Tensor[T]) error {
	return inPlace(dst, func(tl *tile.Tile[T], _ int64) error {
		return tile.HypotScalarInverseAsync(eps, alpha, tl)
	})
}

func HypotScalarInverse[T dtype.Float](ctx context.Context, eps, alpha T, dst *Tensor[T]) error {
	return wait(ctx, dst.node, HypotScalarInverseAsync(eps, alpha, dst))
}

// RandnAsync fills dst as the block at start of a normal array of the
// underlying shape generated from seed. The values do not depend on the
// tiling or on the distribution.
func RandnAsync[T dtype.Float](seed uint64, mean, stddev T, start, underlying []int64, dst *Tensor[T]) error {
	if len(start) != dst.NDim || len(underlying) != dst.NDim {
		return fmt.Errorf("randn: %w: start %v and underlying %v for shape %v", tile.ErrShape, start, underlying, dst.Shape)
	}
	for i := range start {
		if start[i] < 0 || start[i]+dst.Shape[i] > underlying[i] {
			return fmt.Errorf("randn: %w: %v at %v outside of %v", tile.ErrShape, dst.Shape, start, underlying)
		}
	}
	return inPlace(dst, func(tl *tile.Tile[T], i int64) error {
		tileStart := dst.TileStart(dst.TileIndex(i))
		for d := range tileStart {
			tileStart[d] += start[d]
		}
		return tile.RandnAsync(seed, mean, stddev, tileStart, underlying, tl)
	})
}

func Randn[T dtype.Float](ctx context.Context, seed uint64, mean, stddev T, start, underlying []int64, dst *Tensor[T]) error {
	return wait(ctx, dst.node, RandnAsync(seed, mean, stddev, start, underlying, dst))
}

// elementwise runs fn on every destination tile owner after moving the
// matching tile of src there.
func elementwise[S, T dtype.Element](src *Tensor[S], dst *Tensor[T], fn func(s *tile.Tile[S], d *tile.Tile[T]) error) error {
	for i := int64(0); i < dst.NTiles(); i++ {
		if err := src.handles[i].Transfer(dst.Owner(i)); err != nil {
			return err
		}
		if dst.isLocal(i) {
			if err := fn(src.tiles[i], dst.tiles[i]); err != nil {
				return err
			}
		}
		if err := dst.flush(i); err != nil {
			return err
		}
	}
	return nil
}

// CopyAsync copies src into dst of the same layout.
func CopyAsync[T dtype.Element](src, dst *Tensor[T]) error {
	if err := sameLayout("copy", src.Traits, dst.Traits); err != nil {
		return err
	}
	return elementwise(src, dst, tile.CopyAsync[T])
}

func Copy[T dtype.Element](ctx context.Context, src, dst *Tensor[T]) error {
	return wait(ctx, dst.node, CopyAsync(src, dst))
}

// SqrtAsync computes dst = sqrt(src).
func SqrtAsync[T dtype.Float](src, dst *Tensor[T]) error {
	if err := sameLayout("sqrt", src.Traits, dst.Traits); err != nil {
		return err
	}
	return elementwise(src, dst, tile.SqrtAsync[T])
}

func Sqrt[T dtype.Float](ctx context.Context, src, dst *Tensor[T]) error {
	return wait(ctx, dst.node, SqrtAsync(src, dst))
}

// FP32ToFP16Async narrows src into dst of the same layout.
func FP32ToFP16Async(src *Tensor[float32], dst *Tensor[dtype.FP16Value]) error {
	if err := sameLayout("fp32_to_fp16", src.Traits, dst.Traits); err != nil {
		return err
	}
	return elementwise(src, dst, tile.FP32ToFP16Async)
}

func FP32ToFP16(ctx context.Context, src *Tensor[float32], dst *Tensor[dtype.FP16Value]) error {
	return wait(ctx, dst.node, FP32ToFP16Async(src, dst))
}

// MaskScalarAsync sets dst to val where mask is false. mask has the layout
// of dst without its first batchNDim axes.
func MaskScalarAsync[T dtype.Float](mask *Tensor[bool], val T, dst *Tensor[T], batchNDim int) error {
	if batchNDim < 0 || batchNDim > dst.NDim {
		return fmt.Errorf("mask_scalar: %w: %d batch axes of shape %v", tile.ErrAxis, batchNDim, dst.Shape)
	}
	if !slices.Equal(mask.Shape, dst.Shape[batchNDim:]) || !slices.Equal(mask.Basetile, dst.Basetile[batchNDim:]) {
		return fmt.Errorf("mask_scalar: %w: mask %v/%v, dst %v/%v", tile.ErrShape, mask.Shape, mask.Basetile, dst.Shape, dst.Basetile)
	}
	for i := int64(0); i < dst.NTiles(); i++ {
		mi := mask.TileLinear(dst.TileIndex(i)[batchNDim:])
		if err := mask.handles[mi].Transfer(dst.Owner(i)); err != nil {
			return err
		}
		if dst.isLocal(i) {
			if err := tile.MaskScalarAsync(mask.tiles[mi], val, dst.tiles[i], batchNDim); err != nil {
				return err
			}
		}
		if err := dst.flush(i); err != nil {
			return err
		}
	}
	return nil
}

func MaskScalar[T dtype.Float](ctx context.Context, mask *Tensor[bool], val T, dst *Tensor[T], batchNDim int) error {
	return wait(ctx, dst.node, MaskScalarAsync(mask, val, dst, batchNDim))
}

// SubtractIndexedOutputsAsync subtracts val from dst[..., labels[...]]. The
// last axis of dst must fit in one tile.
func SubtractIndexedOutputsAsync[T dtype.Float](labels *Tensor[int64], val T, dst *Tensor[T]) error {
	last := dst.NDim - 1
	if last < 0 || !slices.Equal(labels.Shape, dst.Shape[:last]) || !slices.Equal(labels.Basetile, dst.Basetile[:last]) {
		return fmt.Errorf("subtract_indexed_outputs: %w: labels %v/%v, dst %v/%v",
			tile.ErrShape, labels.Shape, labels.Basetile, dst.Shape, dst.Basetile)
	}
	if dst.Grid.Shape[last] != 1 {
		return fmt.Errorf("subtract_indexed_outputs: %w: last axis of %v split by %v", tile.ErrShape, dst.Shape, dst.Basetile)
	}
	for i := int64(0); i < dst.NTiles(); i++ {
		li := labels.TileLinear(dst.TileIndex(i)[:last])
		if err := labels.handles[li].Transfer(dst.Owner(i)); err != nil {
			return err
		}
		if dst.isLocal(i) {
			if err := tile.SubtractIndexedOutputsAsync(labels.tiles[li], val, dst.tiles[i]); err != nil {
				return err
			}
		}
		if err := dst.flush(i); err != nil {
			return err
		}
	}
	return nil
}

func SubtractIndexedOutputs[T dtype.Float](ctx context.Context, labels *Tensor[int64], val T, dst *Tensor[T]) error {
	return wait(ctx, dst.node, SubtractIndexedOutputsAsync(labels, val, dst))
}

// ScatterAsync distributes the single tile tensor src over the tiles of dst.
func ScatterAsync[T dtype.Element](src, dst *Tensor[T]) error {
	if src.NTiles() != 1 || !slices.Equal(src.Shape, dst.Shape) {
		return fmt.Errorf("scatter: %w: source %v/%v must be one tile of %v", tile.ErrShape, src.Shape, src.Basetile, dst.Shape)
	}
	zero := make([]int64, dst.NDim)
	for i := int64(0); i < dst.NTiles(); i++ {
		if err := src.handles[0].Transfer(dst.Owner(i)); err != nil {
			return err
		}
		if dst.isLocal(i) {
			index := dst.TileIndex(i)
			err := tile.SubcopyAsync(src.tiles[0], dst.TileStart(index), dst.tiles[i], zero, dst.TileShape(index))
			if err != nil {
				return err
			}
		}
		if err := dst.flush(i); err != nil {
			return err
		}
	}
	return nil
}

func Scatter[T dtype.Element](ctx context.Context, src, dst *Tensor[T]) error {
	return wait(ctx, dst.node, ScatterAsync(src, dst))
}

// GatherAsync collects the tiles of src into the single tile tensor dst.
func GatherAsync[T dtype.Element](src, dst *Tensor[T]) error {
	if dst.NTiles() != 1 || !slices.Equal(src.Shape, dst.Shape) {
		return fmt.Errorf("gather: %w: destination %v/%v must be one tile of %v", tile.ErrShape, dst.Shape, dst.Basetile, src.Shape)
	}
	owner := dst.Owner(0)
	zero := make([]int64, src.NDim)
	for i := int64(0); i < src.NTiles(); i++ {
		if err := src.handles[i].Transfer(owner); err != nil {
			return err
		}
		if dst.isLocal(0) {
			index := src.TileIndex(i)
			err := tile.SubcopyAsync(src.tiles[i], zero, dst.tiles[0], src.TileStart(index), src.TileShape(index))
			if err != nil {
				return err
			}
		}
	}
	return dst.flush(0)
}

func Gather[T dtype.Element](ctx context.Context, src, dst *Tensor[T]) error {
	return wait(ctx, dst.node, GatherAsync(src, dst))
}
