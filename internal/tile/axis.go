package tile

import (
	"fmt"

	"github.com/fxnlabs/tilegraph/internal/codelet"
	"github.com/fxnlabs/tilegraph/internal/dtype"
)

// checkSlice validates that slice is full with axis removed and returns the
// fold of full around axis.
func checkSlice(op string, full, slice Traits, axis int) (m, k, n int64, err error) {
	if full.NDim != slice.NDim+1 {
		return 0, 0, 0, fmt.Errorf("%s: %w: rank %d does not slice rank %d", op, ErrShape, slice.NDim, full.NDim)
	}
	if full.NDim == 0 {
		return 0, 0, 0, fmt.Errorf("%s: %w: scalar operand", op, ErrShape)
	}
	m, k, n, err = full.Fold(axis)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	for i := 0; i < full.NDim; i++ {
		switch {
		case i < axis && full.Shape[i] != slice.Shape[i],
			i > axis && full.Shape[i] != slice.Shape[i-1]:
			return 0, 0, 0, fmt.Errorf("%s: %w: %v along axis %d against %v", op, ErrShape, full.Shape, axis, slice.Shape)
		}
	}
	return m, k, n, nil
}

// checkFiber validates that fiber is 1-d with the extent of full along axis.
func checkFiber(op string, full, fiber Traits, axis int) (m, k, n int64, err error) {
	m, k, n, err = full.Fold(axis)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	if fiber.NDim != 1 || fiber.Shape[0] != k {
		return 0, 0, 0, fmt.Errorf("%s: %w: fiber %v against %v along axis %d", op, ErrShape, fiber.Shape, full.Shape, axis)
	}
	return m, k, n, nil
}

// SumSliceAsync computes dst = beta*dst + alpha*sum(src, axis).
func SumSliceAsync[T dtype.Float](alpha T, src *Tile[T], beta T, dst *Tile[T], axis int, redux bool) error {
	m, k, n, err := checkSlice("sum_slice", src.Traits, dst.Traits, axis)
	if err != nil {
		return err
	}
	if err := sameLibrary(dst.lib, src.lib); err != nil {
		return err
	}
	return codelet.SubmitSumSlice(dst.lib, int(m), int(n), int(k), alpha, src.handle, beta, dst.handle, redux)
}

func SumSlice[T dtype.Float](alpha T, src *Tile[T], beta T, dst *Tile[T], axis int, redux bool) error {
	return wait(dst.lib, SumSliceAsync(alpha, src, beta, dst, axis, redux))
}

// AddSliceAsync broadcasts src along axis of dst: dst = beta*dst + alpha*src.
func AddSliceAsync[T dtype.Float](alpha T, src *Tile[T], beta T, dst *Tile[T], axis int) error {
	m, k, n, err := checkSlice("add_slice", dst.Traits, src.Traits, axis)
	if err != nil {
		return err
	}
	if err := sameLibrary(dst.lib, src.lib); err != nil {
		return err
	}
	return codelet.SubmitAddSlice(dst.lib, int(m), int(n), int(k), alpha, src.handle, beta, dst.handle)
}

func AddSlice[T dtype.Float](alpha T, src *Tile[T], beta T, dst *Tile[T], axis int) error {
	return wait(dst.lib, AddSliceAsync(alpha, src, beta, dst, axis))
}

// SumprodSliceAsync computes dst = beta*dst + alpha*sum(src1*src2, axis).
func SumprodSliceAsync[T dtype.Float](alpha T, src1, src2 *Tile[T], beta T, dst *Tile[T], axis int, redux bool) error {
	if err := sameShape("sumprod_slice", src1.Traits, src2.Traits); err != nil {
		return err
	}
	m, k, n, err := checkSlice("sumprod_slice", src1.Traits, dst.Traits, axis)
	if err != nil {
		return err
	}
	if err := sameLibrary(dst.lib, src1.lib, src2.lib); err != nil {
		return err
	}
	return codelet.SubmitSumprodSlice(dst.lib, int(m), int(n), int(k), alpha, src1.handle, src2.handle, beta, dst.handle, redux)
}

func SumprodSlice[T dtype.Float](alpha T, src1, src2 *Tile[T], beta T, dst *Tile[T], axis int, redux bool) error {
	return wait(dst.lib, SumprodSliceAsync(alpha, src1, src2, beta, dst, axis, redux))
}

// SumFiberAsync sums src over every axis but axis into the fiber dst.
func SumFiberAsync[T dtype.Float](alpha T, src *Tile[T], beta T, dst *Tile[T], axis int, redux bool) error {
	m, k, n, err := checkFiber("sum_fiber", src.Traits, dst.Traits, axis)
	if err != nil {
		return err
	}
	if err := sameLibrary(dst.lib, src.lib); err != nil {
		return err
	}
	return codelet.SubmitSumFiber(dst.lib, int(m), int(n), int(k), alpha, src.handle, beta, dst.handle, redux)
}

func SumFiber[T dtype.Float](alpha T, src *Tile[T], beta T, dst *Tile[T], axis int, redux bool) error {
	return wait(dst.lib, SumFiberAsync(alpha, src, beta, dst, axis, redux))
}

// AddFiberAsync broadcasts the fiber src along axis of dst.
func AddFiberAsync[T dtype.Float](alpha T, src *Tile[T], beta T, dst *Tile[T], axis int) error {
	m, k, n, err := checkFiber("add_fiber", dst.Traits, src.Traits, axis)
	if err != nil {
		return err
	}
	if err := sameLibrary(dst.lib, src.lib); err != nil {
		return err
	}
	return codelet.SubmitAddFiber(dst.lib, int(m), int(n), int(k), alpha, src.handle, beta, dst.handle)
}

func AddFiber[T dtype.Float](alpha T, src *Tile[T], beta T, dst *Tile[T], axis int) error {
	return wait(dst.lib, AddFiberAsync(alpha, src, beta, dst, axis))
}
