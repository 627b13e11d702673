package kernel

import (
	"github.com/fxnlabs/tilegraph/internal/dtype"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/gonum"
)

// Trans selects whether a GEMM operand is used as stored or transposed.
type Trans bool

const (
	NoTrans   Trans = false
	Transpose Trans = true
)

func (t Trans) blas() blas.Transpose {
	if t {
		return blas.Trans
	}
	return blas.NoTrans
}

var impl gonum.Implementation

// Gemm computes batch independent row-major products
// C[b] = alpha*op(A[b])*op(B[b]) + beta*C[b], where op(A) is m×k, op(B) is
// k×n and C is m×n. Batches are the leading, slowest varying dimension of
// every operand. With beta == 0 C is not read.
func Gemm[T dtype.Float](transA, transB Trans, m, n, k, batch int, alpha T, a, b []T, beta T, c []T) {
	if m == 0 || n == 0 {
		return
	}
	lda, ldb := k, n
	if transA {
		lda = m
	}
	if transB {
		ldb = k
	}
	sa, sb, sc := m*k, k*n, m*n
	for i := 0; i < batch; i++ {
		ab, bb, cb := a[i*sa:(i+1)*sa], b[i*sb:(i+1)*sb], c[i*sc:(i+1)*sc]
		if k == 0 {
			// Empty inner dimension: the product is zero and BLAS rejects lda == 0.
			AddScalar(0, beta, cb)
			continue
		}
		switch av := any(ab).(type) {
		case []float32:
			impl.Sgemm(transA.blas(), transB.blas(), m, n, k, float32(alpha), av, lda,
				any(bb).([]float32), ldb, float32(beta), any(cb).([]float32), n)
		case []float64:
			impl.Dgemm(transA.blas(), transB.blas(), m, n, k, float64(alpha), av, lda,
				any(bb).([]float64), ldb, float64(beta), any(cb).([]float64), n)
		}
	}
}
