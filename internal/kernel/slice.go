package kernel

import "github.com/fxnlabs/tilegraph/internal/dtype"

// SumSlice reduces src of shape (m, k, n) along its middle axis:
// dst[i,j] = beta*dst[i,j] + alpha*sum_l src[i,l,j].
func SumSlice[T dtype.Float](m, n, k int, alpha T, src []T, beta T, dst []T) {
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var sum T
			for l := 0; l < k; l++ {
				sum += src[(i*k+l)*n+j]
			}
			d := i*n + j
			if beta == 0 {
				dst[d] = alpha * sum
			} else {
				dst[d] = beta*dst[d] + alpha*sum
			}
		}
	}
}

// AddSlice broadcasts src of shape (m, n) along the middle axis of dst of
// shape (m, k, n): dst[i,l,j] = beta*dst[i,l,j] + alpha*src[i,j].
func AddSlice[T dtype.Float](m, n, k int, alpha T, src []T, beta T, dst []T) {
	for i := 0; i < m; i++ {
		for l := 0; l < k; l++ {
			row := dst[(i*k+l)*n : (i*k+l+1)*n]
			s := src[i*n : (i+1)*n]
			if beta == 0 {
				for j := range row {
					row[j] = alpha * s[j]
				}
				continue
			}
			for j := range row {
				row[j] = beta*row[j] + alpha*s[j]
			}
		}
	}
}

// SumprodSlice reduces the elementwise product of src1 and src2, both of
// shape (m, k, n), along the middle axis:
// dst[i,j] = beta*dst[i,j] + alpha*sum_l src1[i,l,j]*src2[i,l,j].
func SumprodSlice[T dtype.Float](m, n, k int, alpha T, src1, src2 []T, beta T, dst []T) {
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var sum T
			for l := 0; l < k; l++ {
				idx := (i*k+l)*n + j
				sum += src1[idx] * src2[idx]
			}
			d := i*n + j
			if beta == 0 {
				dst[d] = alpha * sum
			} else {
				dst[d] = beta*dst[d] + alpha*sum
			}
		}
	}
}

// SumFiber reduces src of shape (m, k, n) to the fiber along its middle axis:
// dst[l] = beta*dst[l] + alpha*sum_{i,j} src[i,l,j].
func SumFiber[T dtype.Float](m, n, k int, alpha T, src []T, beta T, dst []T) {
	for l := 0; l < k; l++ {
		var sum T
		for i := 0; i < m; i++ {
			for _, v := range src[(i*k+l)*n : (i*k+l+1)*n] {
				sum += v
			}
		}
		if beta == 0 {
			dst[l] = alpha * sum
		} else {
			dst[l] = beta*dst[l] + alpha*sum
		}
	}
}

// AddFiber broadcasts the fiber src of length k over dst of shape (m, k, n):
// dst[i,l,j] = beta*dst[i,l,j] + alpha*src[l].
func AddFiber[T dtype.Float](m, n, k int, alpha T, src []T, beta T, dst []T) {
	for i := 0; i < m; i++ {
		for l := 0; l < k; l++ {
			row := dst[(i*k+l)*n : (i*k+l+1)*n]
			v := alpha * src[l]
			if beta == 0 {
				for j := range row {
					row[j] = v
				}
				continue
			}
			for j := range row {
				row[j] = beta*row[j] + v
			}
		}
	}
}
