package codelet

import (
	"fmt"
	"slices"

	"github.com/fxnlabs/tilegraph/internal/dtype"
	"github.com/fxnlabs/tilegraph/internal/kernel"
	"github.com/fxnlabs/tilegraph/internal/taskgraph"
)

// The Submit functions pack arguments, derive access modes and insert one
// task. They do not validate shapes; callers (tile, tensor) do that before
// anything is inserted. Sizes are in elements.

func insert[T dtype.Element](l *Library, op Op, args any, targs ...taskgraph.Arg) error {
	cl, err := l.Codelet(op, dtype.Of[T]())
	if err == nil {
		err = l.rt.Insert(cl, args, targs...)
	}
	if err != nil {
		return fmt.Errorf("error in %s task submission: %w", op, err)
	}
	return nil
}

// dstAccess builds the destination access for beta and enables the sum
// reduction when the derived mode needs it.
func dstAccess[T dtype.Float](dst *taskgraph.Handle, beta T, redux bool) taskgraph.Access {
	mode := DstMode(beta, redux)
	if mode == taskgraph.Redux {
		EnableRedux[T](dst)
	}
	return taskgraph.Access{Handle: dst, Mode: mode}
}

// SubmitFill sets the first n elements of dst to val.
func SubmitFill[T dtype.Element](l *Library, n int, val T, dst *taskgraph.Handle) error {
	return insert[T](l, OpFill, fillArgs[T]{n: n, val: val}, taskgraph.Write(dst))
}

// SubmitAddScalar computes dst = alpha + beta*dst.
func SubmitAddScalar[T dtype.Float](l *Library, n int, alpha, beta T, dst *taskgraph.Handle) error {
	return insert[T](l, OpAddScalar, scalarArgs[T]{n: n, alpha: alpha, beta: beta},
		dstAccess(dst, beta, false), taskgraph.Flops(2*n))
}

// SubmitCopy copies n elements from src to dst.
func SubmitCopy[T dtype.Element](l *Library, n int, src, dst *taskgraph.Handle) error {
	return insert[T](l, OpCopy, sizeArgs{n: n}, taskgraph.Read(src), taskgraph.Write(dst))
}

// SubmitSubcopy copies a block of the given shape from src, an array of
// srcShape, starting at srcStart, into dst, an array of dstShape, at dstStart.
func SubmitSubcopy[T dtype.Element](l *Library, shape []int64, src *taskgraph.Handle, srcShape, srcStart []int64,
	dst *taskgraph.Handle, dstShape, dstStart []int64) error {
	scratch, err := l.indexScratch(len(shape))
	if err != nil {
		return fmt.Errorf("error in %s task submission: %w", OpSubcopy, err)
	}
	dstMode := taskgraph.RW
	if slices.Equal(shape, dstShape) {
		dstMode = taskgraph.W
	}
	args := subcopyArgs{
		shape:    slices.Clone(shape),
		srcShape: slices.Clone(srcShape),
		srcStart: slices.Clone(srcStart),
		dstShape: slices.Clone(dstShape),
		dstStart: slices.Clone(dstStart),
	}
	return insert[T](l, OpSubcopy, args,
		taskgraph.Read(src), taskgraph.Access{Handle: dst, Mode: dstMode}, taskgraph.Temp(scratch))
}

// SubmitGemm computes batch products c = alpha*op(a)*op(b) + beta*c. With
// redux and beta == 1 concurrent products into c are merged by summation.
func SubmitGemm[T dtype.Float](l *Library, transA, transB kernel.Trans, m, n, k, batch int, alpha T,
	a, b *taskgraph.Handle, beta T, c *taskgraph.Handle, redux bool) error {
	args := gemmArgs[T]{transA: transA, transB: transB, m: m, n: n, k: k, batch: batch, alpha: alpha, beta: beta}
	return insert[T](l, OpGemm, args,
		taskgraph.Read(a), taskgraph.Read(b), dstAccess(c, beta, redux),
		taskgraph.Flops(2*float64(m)*float64(n)*float64(k)*float64(batch)))
}

// SubmitSumSlice reduces src, viewed as (m, k, n), along its middle axis into dst.
func SubmitSumSlice[T dtype.Float](l *Library, m, n, k int, alpha T, src *taskgraph.Handle, beta T,
	dst *taskgraph.Handle, redux bool) error {
	return insert[T](l, OpSumSlice, axisArgs[T]{m: m, n: n, k: k, alpha: alpha, beta: beta},
		taskgraph.Read(src), dstAccess(dst, beta, redux))
}

// SubmitAddSlice broadcasts src, viewed as (m, n), over the middle axis of dst.
func SubmitAddSlice[T dtype.Float](l *Library, m, n, k int, alpha T, src *taskgraph.Handle, beta T,
	dst *taskgraph.Handle) error {
	return insert[T](l, OpAddSlice, axisArgs[T]{m: m, n: n, k: k, alpha: alpha, beta: beta},
		taskgraph.Read(src), dstAccess(dst, beta, false))
}

// SubmitSumprodSlice reduces src1*src2 along the middle axis into dst.
func SubmitSumprodSlice[T dtype.Float](l *Library, m, n, k int, alpha T, src1, src2 *taskgraph.Handle, beta T,
	dst *taskgraph.Handle, redux bool) error {
	return insert[T](l, OpSumprodSlice, axisArgs[T]{m: m, n: n, k: k, alpha: alpha, beta: beta},
		taskgraph.Read(src1), taskgraph.Read(src2), dstAccess(dst, beta, redux))
}

// SubmitSumFiber reduces src, viewed as (m, k, n), to a fiber of length k.
func SubmitSumFiber[T dtype.Float](l *Library, m, n, k int, alpha T, src *taskgraph.Handle, beta T,
	dst *taskgraph.Handle, redux bool) error {
	return insert[T](l, OpSumFiber, axisArgs[T]{m: m, n: n, k: k, alpha: alpha, beta: beta},
		taskgraph.Read(src), dstAccess(dst, beta, redux))
}

// SubmitAddFiber broadcasts the fiber src over the middle axis of dst.
func SubmitAddFiber[T dtype.Float](l *Library, m, n, k int, alpha T, src *taskgraph.Handle, beta T,
	dst *taskgraph.Handle) error {
	return insert[T](l, OpAddFiber, axisArgs[T]{m: m, n: n, k: k, alpha: alpha, beta: beta},
		taskgraph.Read(src), dstAccess(dst, beta, false))
}

func SubmitRelu[T dtype.Float](l *Library, n int, dst *taskgraph.Handle) error {
	return insert[T](l, OpRelu, sizeArgs{n: n}, taskgraph.ReadWrite(dst))
}

func SubmitGeluTanh[T dtype.Float](l *Library, n int, dst *taskgraph.Handle) error {
	return insert[T](l, OpGeluTanh, sizeArgs{n: n}, taskgraph.ReadWrite(dst))
}

func SubmitSqrt[T dtype.Float](l *Library, n int, src, dst *taskgraph.Handle) error {
	return insert[T](l, OpSqrt, sizeArgs{n: n}, taskgraph.Read(src), taskgraph.Write(dst))
}

func SubmitPow[T dtype.Float](l *Library, n int, alpha, exp T, dst *taskgraph.Handle) error {
	return insert[T](l, OpPow, powArgs[T]{n: n, alpha: alpha, exp: exp}, taskgraph.ReadWrite(dst))
}

func SubmitHypotScalarInverse[T dtype.Float](l *Library, n int, eps, alpha T, dst *taskgraph.Handle) error {
	return insert[T](l, OpHypotScalarInverse, hypotArgs[T]{n: n, eps: eps, alpha: alpha}, taskgraph.ReadWrite(dst))
}

// SubmitMaskScalar sets the entries of dst, viewed as (batch, nrows), whose
// boolean mask entry is false to val.
func SubmitMaskScalar[T dtype.Float](l *Library, nrows, batch int, mask *taskgraph.Handle, val T, dst *taskgraph.Handle) error {
	return insert[T](l, OpMaskScalar, maskArgs[T]{nrows: nrows, batch: batch, val: val},
		taskgraph.Read(mask), taskgraph.ReadWrite(dst))
}

// SubmitSubtractIndexedOutputs subtracts val from dst[i, labels[i]], dst
// being viewed as (rows, n) and labels holding rows int64 values.
func SubmitSubtractIndexedOutputs[T dtype.Float](l *Library, n, rows int, labels *taskgraph.Handle, val T, dst *taskgraph.Handle) error {
	return insert[T](l, OpSubtractIndexedOutputs, indexedArgs[T]{n: n, rows: rows, val: val},
		taskgraph.Read(labels), taskgraph.ReadWrite(dst))
}

// SubmitFP32ToFP16 narrows n fp32 elements of src into the fp16 handle dst.
func SubmitFP32ToFP16(l *Library, n int, src, dst *taskgraph.Handle) error {
	return insert[float32](l, OpFP32ToFP16, sizeArgs{n: n}, taskgraph.Read(src), taskgraph.Write(dst))
}

// SubmitRandn fills dst, of the given shape, with the block at start of a
// normal array of the underlying shape generated from seed.
func SubmitRandn[T dtype.Float](l *Library, seed uint64, mean, stddev T, start, shape, underlying []int64,
	dst *taskgraph.Handle) error {
	scratch, err := l.indexScratch(len(shape))
	if err != nil {
		return fmt.Errorf("error in %s task submission: %w", OpRandn, err)
	}
	args := randnArgs[T]{
		seed:       seed,
		mean:       mean,
		stddev:     stddev,
		start:      slices.Clone(start),
		shape:      slices.Clone(shape),
		underlying: slices.Clone(underlying),
	}
	return insert[T](l, OpRandn, args, taskgraph.Write(dst), taskgraph.Temp(scratch))
}
