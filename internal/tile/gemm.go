package tile

import (
	"fmt"
	"slices"

	"github.com/fxnlabs/tilegraph/internal/codelet"
	"github.com/fxnlabs/tilegraph/internal/dtype"
	"github.com/fxnlabs/tilegraph/internal/kernel"
)

// GemmShape is the BLAS view of a tile product.
type GemmShape struct {
	M, N, K, Batch int64
}

// CheckGemm validates C = op(A) op(B) and returns the BLAS view. All three
// tiles start with batchNDim shared batch axes. Without transposition A is
// [batch, M..., K...] and B is [batch, K..., N...], where the K part has ndim
// axes; a transposed operand swaps its two non-batch groups. C is
// [batch, M..., N...].
func CheckGemm(transA kernel.Trans, a Traits, transB kernel.Trans, b Traits, c Traits, ndim, batchNDim int) (GemmShape, error) {
	if ndim < 0 || batchNDim < 0 {
		return GemmShape{}, fmt.Errorf("gemm: %w: ndim %d, batch ndim %d", ErrAxis, ndim, batchNDim)
	}
	if a.NDim < batchNDim+ndim || b.NDim < batchNDim+ndim {
		return GemmShape{}, fmt.Errorf("gemm: %w: A %v and B %v cannot contract %d axes after %d batch axes",
			ErrShape, a.Shape, b.Shape, ndim, batchNDim)
	}
	if c.NDim != a.NDim+b.NDim-2*ndim-batchNDim {
		return GemmShape{}, fmt.Errorf("gemm: %w: C rank %d, want %d", ErrShape, c.NDim, a.NDim+b.NDim-2*ndim-batchNDim)
	}
	batch := a.Shape[:batchNDim]
	if !slices.Equal(batch, b.Shape[:batchNDim]) || !slices.Equal(batch, c.Shape[:batchNDim]) {
		return GemmShape{}, fmt.Errorf("gemm: %w: batch axes of A %v, B %v, C %v", ErrShape, a.Shape, b.Shape, c.Shape)
	}
	aRest, bRest := a.Shape[batchNDim:], b.Shape[batchNDim:]
	mDims, aK := aRest[:len(aRest)-ndim], aRest[len(aRest)-ndim:]
	if transA {
		aK, mDims = aRest[:ndim], aRest[ndim:]
	}
	bK, nDims := bRest[:ndim], bRest[ndim:]
	if transB {
		nDims, bK = bRest[:len(bRest)-ndim], bRest[len(bRest)-ndim:]
	}
	if !slices.Equal(aK, bK) {
		return GemmShape{}, fmt.Errorf("gemm: %w: contracted axes %v of A and %v of B", ErrShape, aK, bK)
	}
	cRest := c.Shape[batchNDim:]
	if !slices.Equal(cRest[:len(mDims)], mDims) || !slices.Equal(cRest[len(mDims):], nDims) {
		return GemmShape{}, fmt.Errorf("gemm: %w: C %v against A %v and B %v", ErrShape, c.Shape, a.Shape, b.Shape)
	}
	return GemmShape{M: prod(mDims), N: prod(nDims), K: prod(aK), Batch: prod(batch)}, nil
}

// GemmAsync computes C = alpha*op(A)*op(B) + beta*C, see CheckGemm for the
// layout. With redux and beta == 1 concurrent products into C are summed in
// any order.
func GemmAsync[T dtype.Float](alpha T, transA kernel.Trans, a *Tile[T], transB kernel.Trans, b *Tile[T],
	beta T, c *Tile[T], ndim, batchNDim int, redux bool) error {
	s, err := CheckGemm(transA, a.Traits, transB, b.Traits, c.Traits, ndim, batchNDim)
	if err != nil {
		return err
	}
	if err := sameLibrary(c.lib, a.lib, b.lib); err != nil {
		return err
	}
	return codelet.SubmitGemm(c.lib, transA, transB, int(s.M), int(s.N), int(s.K), int(s.Batch),
		alpha, a.handle, b.handle, beta, c.handle, redux)
}

func Gemm[T dtype.Float](alpha T, transA kernel.Trans, a *Tile[T], transB kernel.Trans, b *Tile[T],
	beta T, c *Tile[T], ndim, batchNDim int, redux bool) error {
	return wait(c.lib, GemmAsync(alpha, transA, a, transB, b, beta, c, ndim, batchNDim, redux))
}
