package tensor

import (
	"context"
	"slices"

	"github.com/fxnlabs/tilegraph/internal/dtype"
	"github.com/fxnlabs/tilegraph/internal/kernel"
	"github.com/fxnlabs/tilegraph/internal/tile"
)

// GemmAsync computes C = alpha*op(A)*op(B) + beta*C with the layout of
// tile.CheckGemm, which must hold for both the shapes and the basetiles.
// Every tile of C accumulates the products over the tiles of the contracted
// axes on its owner: the first applies beta and the rest add to it.
func GemmAsync[T dtype.Float](alpha T, transA kernel.Trans, a *Tensor[T], transB kernel.Trans, b *Tensor[T],
	beta T, c *Tensor[T], ndim, batchNDim int, redux bool) error {
	if _, err := tile.CheckGemm(transA, a.Traits.Traits, transB, b.Traits.Traits, c.Traits.Traits, ndim, batchNDim); err != nil {
		return err
	}
	basetile := func(t Traits) tile.Traits {
		return tile.MustTraits(t.Basetile...)
	}
	if _, err := tile.CheckGemm(transA, basetile(a.Traits), transB, basetile(b.Traits), basetile(c.Traits), ndim, batchNDim); err != nil {
		return err
	}
	mLen := a.NDim - batchNDim - ndim
	kGrid := a.Grid.Shape[a.NDim-ndim:]
	if transA {
		kGrid = a.Grid.Shape[batchNDim : batchNDim+ndim]
	}
	kTraits := tile.MustTraits(kGrid...)
	for i := int64(0); i < c.NTiles(); i++ {
		index := c.TileIndex(i)
		batch, m, n := index[:batchNDim], index[batchNDim:batchNDim+mLen], index[batchNDim+mLen:]
		owner := c.Owner(i)
		for l := int64(0); l < kTraits.NElems; l++ {
			k, err := kTraits.LinearToIndex(l)
			if err != nil {
				return err
			}
			aIndex := slices.Concat(batch, m, k)
			if transA {
				aIndex = slices.Concat(batch, k, m)
			}
			bIndex := slices.Concat(batch, k, n)
			if transB {
				bIndex = slices.Concat(batch, n, k)
			}
			ai, bi := a.TileLinear(aIndex), b.TileLinear(bIndex)
			if err := a.handles[ai].Transfer(owner); err != nil {
				return err
			}
			if err := b.handles[bi].Transfer(owner); err != nil {
				return err
			}
			if !c.isLocal(i) {
				continue
			}
			bt := T(1)
			if l == 0 {
				bt = beta
			}
			if err := tile.GemmAsync(alpha, transA, a.tiles[ai], transB, b.tiles[bi], bt, c.tiles[i], ndim, batchNDim, redux); err != nil {
				return err
			}
		}
		if err := c.flush(i); err != nil {
			return err
		}
	}
	return nil
}

func Gemm[T dtype.Float](ctx context.Context, alpha T, transA kernel.Trans, a *Tensor[T], transB kernel.Trans, b *Tensor[T],
	beta T, c *Tensor[T], ndim, batchNDim int, redux bool) error {
	return wait(ctx, c.node, GemmAsync(alpha, transA, a, transB, b, beta, c, ndim, batchNDim, redux))
}
