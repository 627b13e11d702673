package codelet

import (
	"github.com/fxnlabs/tilegraph/internal/dtype"
	"github.com/fxnlabs/tilegraph/internal/kernel"
	"github.com/fxnlabs/tilegraph/internal/taskgraph"
)

// Argument blobs. Each is built once per task and only read by the entry
// point. footprint covers shape fields and the beta == 0 class only.

type fillArgs[T dtype.Element] struct {
	n   int
	val T
}

func (a fillArgs[T]) footprint() uint32 {
	return taskgraph.NewFootprint().Int64(int64(a.n)).Sum32()
}

type scalarArgs[T dtype.Float] struct {
	n           int
	alpha, beta T
}

func (a scalarArgs[T]) footprint() uint32 {
	return taskgraph.NewFootprint().Int64(int64(a.n)).Bool(a.beta == 0).Sum32()
}

type sizeArgs struct {
	n int
}

func (a sizeArgs) footprint() uint32 {
	return taskgraph.NewFootprint().Int64(int64(a.n)).Sum32()
}

type subcopyArgs struct {
	shape              []int64
	srcShape, srcStart []int64
	dstShape, dstStart []int64
}

func (a subcopyArgs) footprint() uint32 {
	return taskgraph.NewFootprint().Int64s(a.shape).Int64s(a.srcShape).Int64s(a.dstShape).Sum32()
}

type gemmArgs[T dtype.Float] struct {
	transA, transB kernel.Trans
	m, n, k, batch int
	alpha, beta    T
}

func (a gemmArgs[T]) footprint() uint32 {
	return taskgraph.NewFootprint().
		Bool(bool(a.transA)).Bool(bool(a.transB)).
		Int64s([]int64{int64(a.m), int64(a.n), int64(a.k), int64(a.batch)}).
		Bool(a.beta == 0).Sum32()
}

// axisArgs serve every slice and fiber operation.
type axisArgs[T dtype.Float] struct {
	m, n, k     int
	alpha, beta T
}

func (a axisArgs[T]) footprint() uint32 {
	return taskgraph.NewFootprint().Int64(int64(a.m)).Int64(int64(a.n)).Int64(int64(a.k)).Bool(a.beta == 0).Sum32()
}

type powArgs[T dtype.Float] struct {
	n          int
	alpha, exp T
}

func (a powArgs[T]) footprint() uint32 {
	return taskgraph.NewFootprint().Int64(int64(a.n)).Sum32()
}

type hypotArgs[T dtype.Float] struct {
	n          int
	eps, alpha T
}

func (a hypotArgs[T]) footprint() uint32 {
	return taskgraph.NewFootprint().Int64(int64(a.n)).Sum32()
}

type maskArgs[T dtype.Float] struct {
	nrows, batch int
	val          T
}

func (a maskArgs[T]) footprint() uint32 {
	return taskgraph.NewFootprint().Int64(int64(a.nrows)).Int64(int64(a.batch)).Sum32()
}

type indexedArgs[T dtype.Float] struct {
	n, rows int
	val     T
}

func (a indexedArgs[T]) footprint() uint32 {
	return taskgraph.NewFootprint().Int64(int64(a.n)).Int64(int64(a.rows)).Sum32()
}

type randnArgs[T dtype.Float] struct {
	seed         uint64
	mean, stddev T
	start        []int64
	shape        []int64
	underlying   []int64
}

func (a randnArgs[T]) footprint() uint32 {
	return taskgraph.NewFootprint().Int64s(a.shape).Sum32()
}
