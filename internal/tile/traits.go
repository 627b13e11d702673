// Package tile describes dense row-major blocks and submits operations on
// them. Every operation checks its operands before any task is inserted.
package tile

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrShape is returned when operand ranks or extents disagree.
	ErrShape = errors.New("shape mismatch")
	// ErrAxis is returned for an axis outside of [0, ndim).
	ErrAxis = errors.New("axis out of range")
)

// Traits is the static shape description of one tile.
type Traits struct {
	NDim   int
	Shape  []int64
	Stride []int64
	NElems int64
	// MatrixShape[i] is the 2-d view folding axes [0, i) into rows and
	// [i, NDim) into columns.
	MatrixShape [][2]int64
}

// NewTraits validates shape and derives row-major strides. An empty shape is
// a scalar.
func NewTraits(shape []int64) (Traits, error) {
	t := Traits{
		NDim:        len(shape),
		Shape:       slices.Clone(shape),
		Stride:      make([]int64, len(shape)),
		NElems:      1,
		MatrixShape: make([][2]int64, len(shape)+1),
	}
	for i := len(shape) - 1; i >= 0; i-- {
		if shape[i] < 1 {
			return Traits{}, fmt.Errorf("%w: extent %d of axis %d must be positive", ErrShape, shape[i], i)
		}
		t.Stride[i] = t.NElems
		t.NElems *= shape[i]
	}
	rows := int64(1)
	for i := 0; i <= len(shape); i++ {
		t.MatrixShape[i] = [2]int64{rows, t.NElems / rows}
		if i < len(shape) {
			rows *= shape[i]
		}
	}
	return t, nil
}

// MustTraits is NewTraits for shapes known to be valid.
func MustTraits(shape ...int64) Traits {
	t, err := NewTraits(shape)
	if err != nil {
		panic(err)
	}
	return t
}

// Fold views the tile as (m, k, n) around axis: m is the product of the
// extents before it, k its extent and n the product of the extents after it.
func (t Traits) Fold(axis int) (m, k, n int64, err error) {
	if err := t.checkAxis(axis); err != nil {
		return 0, 0, 0, err
	}
	return t.MatrixShape[axis][0], t.Shape[axis], t.MatrixShape[axis+1][1], nil
}

func (t Traits) checkAxis(axis int) error {
	if axis < 0 || axis >= t.NDim {
		return fmt.Errorf("%w: axis %d of a %d-d tile", ErrAxis, axis, t.NDim)
	}
	return nil
}

// IndexToLinear returns the row-major position of index.
func (t Traits) IndexToLinear(index []int64) (int64, error) {
	if len(index) != t.NDim {
		return 0, fmt.Errorf("%w: %d-d index into a %d-d tile", ErrShape, len(index), t.NDim)
	}
	var linear int64
	for i, v := range index {
		if v < 0 || v >= t.Shape[i] {
			return 0, fmt.Errorf("%w: index %v outside of %v", ErrShape, index, t.Shape)
		}
		linear += v * t.Stride[i]
	}
	return linear, nil
}

// LinearToIndex inverts IndexToLinear.
func (t Traits) LinearToIndex(linear int64) ([]int64, error) {
	if linear < 0 || linear >= t.NElems {
		return nil, fmt.Errorf("%w: linear index %d outside of %d elements", ErrShape, linear, t.NElems)
	}
	index := make([]int64, t.NDim)
	for i := range index {
		index[i] = linear / t.Stride[i]
		linear %= t.Stride[i]
	}
	return index, nil
}

// Equal reports whether both describe the same shape.
func (t Traits) Equal(o Traits) bool {
	return slices.Equal(t.Shape, o.Shape)
}

func (t Traits) String() string {
	return fmt.Sprint(t.Shape)
}

func prod(shape []int64) int64 {
	p := int64(1)
	for _, v := range shape {
		p *= v
	}
	return p
}
