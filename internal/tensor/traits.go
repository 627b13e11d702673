// Package tensor splits logical arrays into grids of tiles spread over the
// nodes of a cluster and runs operations tile by tile on the owner of each
// destination tile.
package tensor

import (
	"fmt"
	"slices"

	"github.com/fxnlabs/tilegraph/internal/tile"
)

// Traits describe a tensor of Shape cut into tiles of Basetile. Tiles on the
// upper boundary of an axis are Leftover wide along it.
type Traits struct {
	tile.Traits
	Basetile []int64
	Leftover []int64
	// Grid is the row-major grid of tiles.
	Grid tile.Traits
}

// NewTraits checks that basetile has the rank of shape and positive extents.
func NewTraits(shape, basetile []int64) (Traits, error) {
	if len(shape) != len(basetile) {
		return Traits{}, fmt.Errorf("%w: shape %v and basetile %v", tile.ErrShape, shape, basetile)
	}
	whole, err := tile.NewTraits(shape)
	if err != nil {
		return Traits{}, err
	}
	grid := make([]int64, len(shape))
	leftover := make([]int64, len(shape))
	for i := range shape {
		if basetile[i] < 1 {
			return Traits{}, fmt.Errorf("%w: basetile %v", tile.ErrShape, basetile)
		}
		grid[i] = (shape[i]-1)/basetile[i] + 1
		leftover[i] = shape[i] - (grid[i]-1)*basetile[i]
	}
	gridTraits, err := tile.NewTraits(grid)
	if err != nil {
		return Traits{}, err
	}
	return Traits{Traits: whole, Basetile: slices.Clone(basetile), Leftover: leftover, Grid: gridTraits}, nil
}

// MustTraits is NewTraits for arguments known to be valid.
func MustTraits(shape, basetile []int64) Traits {
	t, err := NewTraits(shape, basetile)
	if err != nil {
		panic(err)
	}
	return t
}

// NTiles returns the number of tiles.
func (t Traits) NTiles() int64 {
	return t.Grid.NElems
}

// TileIndex returns the grid index of tile i.
func (t Traits) TileIndex(i int64) []int64 {
	index, err := t.Grid.LinearToIndex(i)
	if err != nil {
		panic(err)
	}
	return index
}

// TileLinear returns the linear number of the tile at grid index.
func (t Traits) TileLinear(index []int64) int64 {
	i, err := t.Grid.IndexToLinear(index)
	if err != nil {
		panic(err)
	}
	return i
}

// TileShape returns the shape of the tile at grid index.
func (t Traits) TileShape(index []int64) []int64 {
	shape := make([]int64, t.NDim)
	for i, g := range index {
		shape[i] = t.Basetile[i]
		if g == t.Grid.Shape[i]-1 {
			shape[i] = t.Leftover[i]
		}
	}
	return shape
}

// TileStart returns the position of the first element of the tile at index.
func (t Traits) TileStart(index []int64) []int64 {
	start := make([]int64, t.NDim)
	for i, g := range index {
		start[i] = g * t.Basetile[i]
	}
	return start
}

// TileTraits returns the traits of tile i.
func (t Traits) TileTraits(i int64) tile.Traits {
	return tile.MustTraits(t.TileShape(t.TileIndex(i))...)
}

// SameLayout reports whether both tensors have the same shape and tiling.
func (t Traits) SameLayout(o Traits) bool {
	return slices.Equal(t.Shape, o.Shape) && slices.Equal(t.Basetile, o.Basetile)
}
