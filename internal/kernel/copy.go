package kernel

import "github.com/fxnlabs/tilegraph/internal/dtype"

// Subcopy copies a block of the given shape from src to dst. Both are dense
// row-major arrays: the block starts at srcStart in an array of srcShape and
// lands at dstStart in an array of dstShape. index is caller provided scratch
// of len(shape) elements.
func Subcopy[T dtype.Element](shape []int64, src []T, srcShape, srcStart []int64, dst []T, dstShape, dstStart []int64, index []int64) {
	ndim := len(shape)
	if ndim == 0 {
		dst[0] = src[0]
		return
	}
	for _, e := range shape {
		if e == 0 {
			return
		}
	}
	clear(index[:ndim])
	run := shape[ndim-1]
	for {
		so := offset(srcShape, srcStart, index)
		do := offset(dstShape, dstStart, index)
		copy(dst[do:do+run], src[so:so+run])
		if !nextRow(shape, index) {
			return
		}
	}
}

// offset returns the row-major linear position of start+index in an array of
// the given shape.
func offset(shape, start, index []int64) int64 {
	var off int64
	for d := range shape {
		off = off*shape[d] + start[d] + index[d]
	}
	return off
}

// nextRow advances index over every axis but the last, row-major. It returns
// false after the last row.
func nextRow(shape, index []int64) bool {
	for d := len(shape) - 2; d >= 0; d-- {
		index[d]++
		if index[d] < shape[d] {
			return true
		}
		index[d] = 0
	}
	return false
}
