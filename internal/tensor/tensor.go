package tensor

import (
	"context"
	"fmt"

	"github.com/fxnlabs/tilegraph/internal/cluster"
	"github.com/fxnlabs/tilegraph/internal/dtype"
	"github.com/fxnlabs/tilegraph/internal/taskgraph"
	"github.com/fxnlabs/tilegraph/internal/tile"
	"go.uber.org/multierr"
)

// Tensor is one node's view of a distributed tensor: every node holds a
// handle per tile, owned tiles hold the data and the others serve as
// receive buffers.
type Tensor[T dtype.Element] struct {
	Traits
	node    *cluster.Node
	distr   Distribution
	tiles   []*tile.Tile[T]
	handles []*cluster.Handle
}

// New registers the tiles of a tensor on node. Tile i gets tag nextTag+i on
// every node; the returned value is the next free tag. Every node must call
// New with the same arguments.
func New[T dtype.Element](node *cluster.Node, traits Traits, distr Distribution, nextTag int64) (*Tensor[T], int64, error) {
	if int64(len(distr)) != traits.NTiles() {
		return nil, nextTag, fmt.Errorf("%w: %d owners for %d tiles", tile.ErrShape, len(distr), traits.NTiles())
	}
	t := &Tensor[T]{
		Traits:  traits,
		node:    node,
		distr:   distr,
		tiles:   make([]*tile.Tile[T], traits.NTiles()),
		handles: make([]*cluster.Handle, traits.NTiles()),
	}
	for i := range t.tiles {
		tl, err := tile.New[T](node.Library(), traits.TileTraits(int64(i)))
		if err == nil {
			t.tiles[i] = tl
			t.handles[i], err = node.Wrap(tl.Handle(), nextTag+int64(i), distr[i])
		}
		if err != nil {
			return nil, nextTag, multierr.Append(err, t.Unregister())
		}
	}
	return t, nextTag + traits.NTiles(), nil
}

func (t *Tensor[T]) Node() *cluster.Node {
	return t.node
}

// Tile returns the local copy of tile i.
func (t *Tensor[T]) Tile(i int64) *tile.Tile[T] {
	return t.tiles[i]
}

// Handle returns the ownership handle of tile i.
func (t *Tensor[T]) Handle(i int64) *cluster.Handle {
	return t.handles[i]
}

// Owner returns the rank owning tile i.
func (t *Tensor[T]) Owner(i int64) int {
	return t.handles[i].Owner()
}

func (t *Tensor[T]) isLocal(i int64) bool {
	return t.handles[i].IsOwner()
}

// Unregister drops every tile handle.
func (t *Tensor[T]) Unregister() error {
	var err error
	for i, tl := range t.tiles {
		if tl != nil {
			err = multierr.Append(err, tl.Unregister())
			t.tiles[i] = nil
		}
	}
	return err
}

// flush must follow every write of tile i, on every node.
func (t *Tensor[T]) flush(i int64) error {
	return t.handles[i].Flush()
}

// ToSlice gathers the tensor in row-major order on root. It is collective;
// other ranks get nil.
func ToSlice[T dtype.Element](ctx context.Context, t *Tensor[T], root int) ([]T, error) {
	for i := range t.handles {
		if err := t.handles[i].Transfer(root); err != nil {
			return nil, err
		}
	}
	var out []T
	if t.node.Rank() == root {
		out = make([]T, t.NElems)
		for i, tl := range t.tiles {
			data, err := tl.Acquire(taskgraph.R)
			if err != nil {
				return nil, err
			}
			scatterBlock(t.Traits, int64(i), data, out)
			if err := tl.Release(); err != nil {
				return nil, err
			}
		}
	}
	return out, t.node.Wait(ctx)
}

// scatterBlock places the row-major content of tile i into the whole array.
func scatterBlock[T dtype.Element](traits Traits, i int64, block, whole []T) {
	index := traits.TileIndex(i)
	start := traits.TileStart(index)
	shape := traits.TileShape(index)
	ndim := len(shape)
	if ndim == 0 {
		whole[0] = block[0]
		return
	}
	run := shape[ndim-1]
	pos := make([]int64, ndim)
	for src := int64(0); src < int64(len(block)); src += run {
		var off int64
		for d := range pos {
			off += (start[d] + pos[d]) * traits.Stride[d]
		}
		copy(whole[off:off+run], block[src:src+run])
		for d := ndim - 2; d >= 0; d-- {
			pos[d]++
			if pos[d] < shape[d] {
				break
			}
			pos[d] = 0
		}
	}
}

// FromSlice builds a tensor from data held by root. It is collective; data
// is ignored on other ranks. The tags of a staging tile are used, so the
// returned next tag is one past the tensor's tags.
func FromSlice[T dtype.Element](ctx context.Context, node *cluster.Node, traits Traits, distr Distribution,
	nextTag int64, root int, data []T) (*Tensor[T], int64, error) {
	if node.Rank() == root && int64(len(data)) != traits.NElems {
		return nil, nextTag, fmt.Errorf("%w: %d elements for shape %v", tile.ErrShape, len(data), traits.Shape)
	}
	dst, nextTag, err := New[T](node, traits, distr, nextTag)
	if err != nil {
		return nil, nextTag, err
	}
	staging, nextTag, err := newStaging(node, traits, root, nextTag, data)
	if err != nil {
		return nil, nextTag, multierr.Append(err, dst.Unregister())
	}
	err = Scatter(ctx, staging, dst)
	err = multierr.Append(err, staging.Unregister())
	if err != nil {
		return nil, nextTag, multierr.Append(err, dst.Unregister())
	}
	return dst, nextTag, nil
}

// newStaging is a single tile tensor owned by root wrapping data there.
func newStaging[T dtype.Element](node *cluster.Node, traits Traits, root int, nextTag int64, data []T) (*Tensor[T], int64, error) {
	single, err := NewTraits(traits.Shape, traits.Shape)
	if err != nil {
		return nil, nextTag, err
	}
	if node.Rank() != root {
		return New[T](node, single, SingleNode(1, root), nextTag)
	}
	tl, err := tile.FromSlice(node.Library(), single.TileTraits(0), data)
	if err != nil {
		return nil, nextTag, err
	}
	h, err := node.Wrap(tl.Handle(), nextTag, root)
	if err != nil {
		return nil, nextTag, multierr.Append(err, tl.Unregister())
	}
	t := &Tensor[T]{
		Traits:  single,
		node:    node,
		distr:   SingleNode(1, root),
		tiles:   []*tile.Tile[T]{tl},
		handles: []*cluster.Handle{h},
	}
	return t, nextTag + 1, nil
}
