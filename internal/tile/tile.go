package tile

import (
	"errors"
	"fmt"

	"github.com/fxnlabs/tilegraph/internal/codelet"
	"github.com/fxnlabs/tilegraph/internal/dtype"
	"github.com/fxnlabs/tilegraph/internal/taskgraph"
)

// Tile is a Traits plus the handle of its buffer.
type Tile[T dtype.Element] struct {
	Traits
	lib    *codelet.Library
	handle *taskgraph.Handle
}

func elemSize[T dtype.Element]() int64 {
	return int64(dtype.Of[T]().Size())
}

// New allocates a runtime-owned tile.
func New[T dtype.Element](lib *codelet.Library, traits Traits) (*Tile[T], error) {
	h, err := lib.Runtime().Allocate(int(traits.NElems * elemSize[T]()))
	if err != nil {
		return nil, err
	}
	return &Tile[T]{Traits: traits, lib: lib, handle: h}, nil
}

// FromSlice registers caller memory as a tile. data must stay alive and must
// not be touched outside Acquire until the tile is unregistered.
func FromSlice[T dtype.Element](lib *codelet.Library, traits Traits, data []T) (*Tile[T], error) {
	if int64(len(data)) != traits.NElems {
		return nil, fmt.Errorf("%w: %d elements for a %v tile", ErrShape, len(data), traits.Shape)
	}
	h, err := lib.Runtime().Register(taskgraph.Bytes(data))
	if err != nil {
		return nil, err
	}
	return &Tile[T]{Traits: traits, lib: lib, handle: h}, nil
}

// Wrap builds a tile around an existing handle.
func Wrap[T dtype.Element](lib *codelet.Library, traits Traits, h *taskgraph.Handle) (*Tile[T], error) {
	if int64(h.Size()) != traits.NElems*elemSize[T]() {
		return nil, fmt.Errorf("%w: %d bytes for a %v %s tile", ErrShape, h.Size(), traits.Shape, dtype.Of[T]())
	}
	return &Tile[T]{Traits: traits, lib: lib, handle: h}, nil
}

func (t *Tile[T]) Handle() *taskgraph.Handle {
	return t.handle
}

func (t *Tile[T]) Library() *codelet.Library {
	return t.lib
}

// Acquire blocks until the content is coherent and returns it.
func (t *Tile[T]) Acquire(mode taskgraph.AccessMode) ([]T, error) {
	data, err := t.handle.Acquire(mode)
	if err != nil {
		return nil, err
	}
	return taskgraph.View[T](taskgraph.BufferOf(data))[:t.NElems], nil
}

func (t *Tile[T]) Release() error {
	return t.handle.Release()
}

// Unregister drops this tile's reference to its handle.
func (t *Tile[T]) Unregister() error {
	return t.handle.Unregister()
}

// Values copies the content out.
func (t *Tile[T]) Values() ([]T, error) {
	data, err := t.Acquire(taskgraph.R)
	if err != nil {
		return nil, err
	}
	out := append([]T(nil), data...)
	return out, t.Release()
}

var errRuntime = errors.New("tiles belong to different runtimes")

// sameLibrary checks that every operand submits to one runtime.
func sameLibrary(lib *codelet.Library, others ...*codelet.Library) error {
	for _, o := range others {
		if o.Runtime() != lib.Runtime() {
			return errRuntime
		}
	}
	return nil
}

func sameShape(op string, a, b Traits) error {
	if !a.Equal(b) {
		return fmt.Errorf("%s: %w: %v and %v", op, ErrShape, a.Shape, b.Shape)
	}
	return nil
}

func wait(lib *codelet.Library, err error) error {
	if err != nil {
		return err
	}
	return lib.Runtime().WaitForAll()
}
