package tensor

import (
	"context"
	"fmt"
	"slices"

	"github.com/fxnlabs/tilegraph/internal/dtype"
	"github.com/fxnlabs/tilegraph/internal/tile"
)

// checkSlice validates that slice is the layout of full without axis.
func checkSlice(op string, full, slice Traits, axis int) error {
	if axis < 0 || axis >= full.NDim {
		return fmt.Errorf("%s: %w: axis %d of rank %d", op, tile.ErrAxis, axis, full.NDim)
	}
	if slice.NDim != full.NDim-1 ||
		!slices.Equal(slice.Shape, removeAxis(full.Shape, axis)) ||
		!slices.Equal(slice.Basetile, removeAxis(full.Basetile, axis)) {
		return fmt.Errorf("%s: %w: %v/%v along axis %d against %v/%v",
			op, tile.ErrShape, full.Shape, full.Basetile, axis, slice.Shape, slice.Basetile)
	}
	return nil
}

// checkFiber validates that fiber is the layout of full along axis.
func checkFiber(op string, full, fiber Traits, axis int) error {
	if axis < 0 || axis >= full.NDim {
		return fmt.Errorf("%s: %w: axis %d of rank %d", op, tile.ErrAxis, axis, full.NDim)
	}
	if fiber.NDim != 1 || fiber.Shape[0] != full.Shape[axis] || fiber.Basetile[0] != full.Basetile[axis] {
		return fmt.Errorf("%s: %w: fiber %v/%v against %v/%v along axis %d",
			op, tile.ErrShape, fiber.Shape, fiber.Basetile, full.Shape, full.Basetile, axis)
	}
	return nil
}

func removeAxis(index []int64, axis int) []int64 {
	return slices.Delete(slices.Clone(index), axis, axis+1)
}

func insertAxis(index []int64, axis int, v int64) []int64 {
	return slices.Insert(slices.Clone(index), axis, v)
}

// SumSliceAsync computes dst = beta*dst + alpha*sum(src, axis). The first
// tile along axis applies beta, the others accumulate.
func SumSliceAsync[T dtype.Float](alpha T, src *Tensor[T], beta T, dst *Tensor[T], axis int, redux bool) error {
	if err := checkSlice("sum_slice", src.Traits, dst.Traits, axis); err != nil {
		return err
	}
	for i := int64(0); i < dst.NTiles(); i++ {
		index := dst.TileIndex(i)
		for l := int64(0); l < src.Grid.Shape[axis]; l++ {
			s := src.TileLinear(insertAxis(index, axis, l))
			if err := src.handles[s].Transfer(dst.Owner(i)); err != nil {
				return err
			}
			if !dst.isLocal(i) {
				continue
			}
			b := T(1)
			if l == 0 {
				b = beta
			}
			if err := tile.SumSliceAsync(alpha, src.tiles[s], b, dst.tiles[i], axis, redux); err != nil {
				return err
			}
		}
		if err := dst.flush(i); err != nil {
			return err
		}
	}
	return nil
}

func SumSlice[T dtype.Float](ctx context.Context, alpha T, src *Tensor[T], beta T, dst *Tensor[T], axis int, redux bool) error {
	return wait(ctx, dst.node, SumSliceAsync(alpha, src, beta, dst, axis, redux))
}

// SumprodSliceAsync computes dst = beta*dst + alpha*sum(src1*src2, axis).
func SumprodSliceAsync[T dtype.Float](alpha T, src1, src2 *Tensor[T], beta T, dst *Tensor[T], axis int, redux bool) error {
	if err := sameLayout("sumprod_slice", src1.Traits, src2.Traits); err != nil {
		return err
	}
	if err := checkSlice("sumprod_slice", src1.Traits, dst.Traits, axis); err != nil {
		return err
	}
	for i := int64(0); i < dst.NTiles(); i++ {
		index := dst.TileIndex(i)
		owner := dst.Owner(i)
		for l := int64(0); l < src1.Grid.Shape[axis]; l++ {
			s := src1.TileLinear(insertAxis(index, axis, l))
			if err := src1.handles[s].Transfer(owner); err != nil {
				return err
			}
			if err := src2.handles[s].Transfer(owner); err != nil {
				return err
			}
			if !dst.isLocal(i) {
				continue
			}
			b := T(1)
			if l == 0 {
				b = beta
			}
			if err := tile.SumprodSliceAsync(alpha, src1.tiles[s], src2.tiles[s], b, dst.tiles[i], axis, redux); err != nil {
				return err
			}
		}
		if err := dst.flush(i); err != nil {
			return err
		}
	}
	return nil
}

func SumprodSlice[T dtype.Float](ctx context.Context, alpha T, src1, src2 *Tensor[T], beta T, dst *Tensor[T], axis int, redux bool) error {
	return wait(ctx, dst.node, SumprodSliceAsync(alpha, src1, src2, beta, dst, axis, redux))
}

// AddSliceAsync computes dst = beta*dst + alpha*src broadcast along axis.
func AddSliceAsync[T dtype.Float](alpha T, src *Tensor[T], beta T, dst *Tensor[T], axis int) error {
	if err := checkSlice("add_slice", dst.Traits, src.Traits, axis); err != nil {
		return err
	}
	for i := int64(0); i < dst.NTiles(); i++ {
		s := src.TileLinear(removeAxis(dst.TileIndex(i), axis))
		if err := src.handles[s].Transfer(dst.Owner(i)); err != nil {
			return err
		}
		if dst.isLocal(i) {
			if err := tile.AddSliceAsync(alpha, src.tiles[s], beta, dst.tiles[i], axis); err != nil {
				return err
			}
		}
		if err := dst.flush(i); err != nil {
			return err
		}
	}
	return nil
}

func AddSlice[T dtype.Float](ctx context.Context, alpha T, src *Tensor[T], beta T, dst *Tensor[T], axis int) error {
	return wait(ctx, dst.node, AddSliceAsync(alpha, src, beta, dst, axis))
}

// SumFiberAsync computes dst = beta*dst + alpha*sum(src) over every axis
// but axis.
func SumFiberAsync[T dtype.Float](alpha T, src *Tensor[T], beta T, dst *Tensor[T], axis int, redux bool) error {
	if err := checkFiber("sum_fiber", src.Traits, dst.Traits, axis); err != nil {
		return err
	}
	for i := int64(0); i < dst.NTiles(); i++ {
		first := true
		for s := int64(0); s < src.NTiles(); s++ {
			if src.TileIndex(s)[axis] != i {
				continue
			}
			if err := src.handles[s].Transfer(dst.Owner(i)); err != nil {
				return err
			}
			if !dst.isLocal(i) {
				continue
			}
			b := T(1)
			if first {
				b, first = beta, false
			}
			if err := tile.SumFiberAsync(alpha, src.tiles[s], b, dst.tiles[i], axis, redux); err != nil {
				return err
			}
		}
		if err := dst.flush(i); err != nil {
			return err
		}
	}
	return nil
}

func SumFiber[T dtype.Float](ctx context.Context, alpha T, src *Tensor[T], beta T, dst *Tensor[T], axis int, redux bool) error {
	return wait(ctx, dst.node, SumFiberAsync(alpha, src, beta, dst, axis, redux))
}

// AddFiberAsync computes dst = beta*dst + alpha*src broadcast over every
// axis but axis.
func AddFiberAsync[T dtype.Float](alpha T, src *Tensor[T], beta T, dst *Tensor[T], axis int) error {
	if err := checkFiber("add_fiber", dst.Traits, src.Traits, axis); err != nil {
		return err
	}
	for i := int64(0); i < dst.NTiles(); i++ {
		s := dst.TileIndex(i)[axis]
		if err := src.handles[s].Transfer(dst.Owner(i)); err != nil {
			return err
		}
		if dst.isLocal(i) {
			if err := tile.AddFiberAsync(alpha, src.tiles[s], beta, dst.tiles[i], axis); err != nil {
				return err
			}
		}
		if err := dst.flush(i); err != nil {
			return err
		}
	}
	return nil
}

func AddFiber[T dtype.Float](ctx context.Context, alpha T, src *Tensor[T], beta T, dst *Tensor[T], axis int) error {
	return wait(ctx, dst.node, AddFiberAsync(alpha, src, beta, dst, axis))
}
