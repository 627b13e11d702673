package codelet

import (
	"github.com/fxnlabs/tilegraph/internal/dtype"
	"github.com/fxnlabs/tilegraph/internal/kernel"
	"github.com/fxnlabs/tilegraph/internal/taskgraph"
)

// CPU entry points. Buffers arrive in the order the submit functions declare
// them.

func fillEntry[T dtype.Element](bufs []taskgraph.Buffer, args any) {
	a := args.(fillArgs[T])
	kernel.Fill(a.val, taskgraph.View[T](bufs[0])[:a.n])
}

func copyEntry[T dtype.Element](bufs []taskgraph.Buffer, args any) {
	a := args.(sizeArgs)
	kernel.Copy(taskgraph.View[T](bufs[0])[:a.n], taskgraph.View[T](bufs[1])[:a.n])
}

func subcopyEntry[T dtype.Element](bufs []taskgraph.Buffer, args any) {
	a := args.(subcopyArgs)
	kernel.Subcopy(a.shape,
		taskgraph.View[T](bufs[0]), a.srcShape, a.srcStart,
		taskgraph.View[T](bufs[1]), a.dstShape, a.dstStart,
		taskgraph.View[int64](bufs[2]))
}

func addScalarCPU[T dtype.Float](bufs []taskgraph.Buffer, args any) {
	a := args.(scalarArgs[T])
	kernel.AddScalar(a.alpha, a.beta, taskgraph.View[T](bufs[0])[:a.n])
}

func gemmCPU[T dtype.Float](bufs []taskgraph.Buffer, args any) {
	a := args.(gemmArgs[T])
	kernel.Gemm(a.transA, a.transB, a.m, a.n, a.k, a.batch, a.alpha,
		taskgraph.View[T](bufs[0]), taskgraph.View[T](bufs[1]), a.beta, taskgraph.View[T](bufs[2]))
}

func sumSliceCPU[T dtype.Float](bufs []taskgraph.Buffer, args any) {
	a := args.(axisArgs[T])
	kernel.SumSlice(a.m, a.n, a.k, a.alpha, taskgraph.View[T](bufs[0]), a.beta, taskgraph.View[T](bufs[1]))
}

func addSliceCPU[T dtype.Float](bufs []taskgraph.Buffer, args any) {
	a := args.(axisArgs[T])
	kernel.AddSlice(a.m, a.n, a.k, a.alpha, taskgraph.View[T](bufs[0]), a.beta, taskgraph.View[T](bufs[1]))
}

func sumprodSliceCPU[T dtype.Float](bufs []taskgraph.Buffer, args any) {
	a := args.(axisArgs[T])
	kernel.SumprodSlice(a.m, a.n, a.k, a.alpha,
		taskgraph.View[T](bufs[0]), taskgraph.View[T](bufs[1]), a.beta, taskgraph.View[T](bufs[2]))
}

func sumFiberCPU[T dtype.Float](bufs []taskgraph.Buffer, args any) {
	a := args.(axisArgs[T])
	kernel.SumFiber(a.m, a.n, a.k, a.alpha, taskgraph.View[T](bufs[0]), a.beta, taskgraph.View[T](bufs[1]))
}

func addFiberCPU[T dtype.Float](bufs []taskgraph.Buffer, args any) {
	a := args.(axisArgs[T])
	kernel.AddFiber(a.m, a.n, a.k, a.alpha, taskgraph.View[T](bufs[0]), a.beta, taskgraph.View[T](bufs[1]))
}

func reluCPU[T dtype.Float](bufs []taskgraph.Buffer, args any) {
	kernel.Relu(taskgraph.View[T](bufs[0])[:args.(sizeArgs).n])
}

func geluTanhCPU[T dtype.Float](bufs []taskgraph.Buffer, args any) {
	kernel.GeluTanh(taskgraph.View[T](bufs[0])[:args.(sizeArgs).n])
}

func sqrtCPU[T dtype.Float](bufs []taskgraph.Buffer, args any) {
	n := args.(sizeArgs).n
	kernel.Sqrt(taskgraph.View[T](bufs[0])[:n], taskgraph.View[T](bufs[1])[:n])
}

func powCPU[T dtype.Float](bufs []taskgraph.Buffer, args any) {
	a := args.(powArgs[T])
	kernel.Pow(a.alpha, a.exp, taskgraph.View[T](bufs[0])[:a.n])
}

func hypotScalarInverseCPU[T dtype.Float](bufs []taskgraph.Buffer, args any) {
	a := args.(hypotArgs[T])
	kernel.HypotScalarInverse(a.eps, a.alpha, taskgraph.View[T](bufs[0])[:a.n])
}

func maskScalarCPU[T dtype.Float](bufs []taskgraph.Buffer, args any) {
	a := args.(maskArgs[T])
	kernel.MaskScalar(taskgraph.View[bool](bufs[0])[:a.nrows], a.val, taskgraph.View[T](bufs[1])[:a.nrows*a.batch])
}

func subtractIndexedOutputsCPU[T dtype.Float](bufs []taskgraph.Buffer, args any) {
	a := args.(indexedArgs[T])
	kernel.SubtractIndexedOutputs(a.n, taskgraph.View[int64](bufs[0])[:a.rows], a.val, taskgraph.View[T](bufs[1]))
}

func fp32ToFP16CPU(bufs []taskgraph.Buffer, args any) {
	n := args.(sizeArgs).n
	kernel.FP32ToFP16(taskgraph.View[float32](bufs[0])[:n], taskgraph.View[dtype.FP16Value](bufs[1])[:n])
}

func randnCPU[T dtype.Float](bufs []taskgraph.Buffer, args any) {
	a := args.(randnArgs[T])
	kernel.Randn(a.seed, a.mean, a.stddev, a.start, a.shape, a.underlying,
		taskgraph.View[T](bufs[0]), taskgraph.View[int64](bufs[1]))
}
