// Package codelet registers one codelet per operation and element type with a
// runtime and turns typed operation calls into task insertions.
package codelet

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fxnlabs/tilegraph/internal/backend"
	"github.com/fxnlabs/tilegraph/internal/dtype"
	"github.com/fxnlabs/tilegraph/internal/taskgraph"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Prefix is the library part of every codelet name.
const Prefix = "tilegraph"

var (
	// ErrDuplicate is returned when the library is registered twice with one runtime.
	ErrDuplicate = errors.New("codelet already registered")
	// ErrUnknown is returned for an operation or element type without a codelet.
	ErrUnknown = errors.New("unknown codelet")
)

// Op names an operation.
type Op string

const (
	OpFill                   Op = "fill"
	OpAddScalar              Op = "add_scalar"
	OpCopy                   Op = "copy"
	OpSubcopy                Op = "subcopy"
	OpGemm                   Op = "gemm"
	OpSumSlice               Op = "sum_slice"
	OpAddSlice               Op = "add_slice"
	OpSumprodSlice           Op = "sumprod_slice"
	OpSumFiber               Op = "sum_fiber"
	OpAddFiber               Op = "add_fiber"
	OpRelu                   Op = "relu"
	OpGeluTanh               Op = "gelutanh"
	OpSqrt                   Op = "sqrt"
	OpPow                    Op = "pow"
	OpHypotScalarInverse     Op = "hypot_scalar_inverse"
	OpMaskScalar             Op = "mask_scalar"
	OpSubtractIndexedOutputs Op = "subtract_indexed_outputs"
	OpFP32ToFP16             Op = "fp32_to_fp16"
	OpRandn                  Op = "randn"
)

// Name returns the codelet identifier of op for dt.
func Name(op Op, dt dtype.DType) string {
	return fmt.Sprintf("%s_%s_%s", Prefix, op, dt)
}

// Library holds the codelets of one runtime.
type Library struct {
	rt       *taskgraph.Runtime
	logger   *zap.Logger
	codelets map[Op]map[dtype.DType]*taskgraph.Codelet

	mu      sync.Mutex
	scratch map[int]*taskgraph.Handle
}

// NewLibrary builds every codelet and registers it with rt.
func NewLibrary(rt *taskgraph.Runtime) (*Library, error) {
	l := &Library{
		rt:       rt,
		logger:   rt.Logger().Named("codelet"),
		codelets: make(map[Op]map[dtype.DType]*taskgraph.Codelet),
		scratch:  make(map[int]*taskgraph.Handle),
	}
	for _, dt := range dtype.All {
		if err := multierr.Combine(
			l.addElement(dt, OpFill, fillCPU),
			l.addElement(dt, OpCopy, copyCPU),
			l.addElement(dt, OpSubcopy, subcopyCPU),
		); err != nil {
			return nil, err
		}
	}
	err := multierr.Combine(
		l.addFloat(OpAddScalar, addScalarCPU[float32], addScalarCPU[float64]),
		l.addFloat(OpGemm, gemmCPU[float32], gemmCPU[float64]),
		l.addFloat(OpSumSlice, sumSliceCPU[float32], sumSliceCPU[float64]),
		l.addFloat(OpAddSlice, addSliceCPU[float32], addSliceCPU[float64]),
		l.addFloat(OpSumprodSlice, sumprodSliceCPU[float32], sumprodSliceCPU[float64]),
		l.addFloat(OpSumFiber, sumFiberCPU[float32], sumFiberCPU[float64]),
		l.addFloat(OpAddFiber, addFiberCPU[float32], addFiberCPU[float64]),
		l.addFloat(OpRelu, reluCPU[float32], reluCPU[float64]),
		l.addFloat(OpGeluTanh, geluTanhCPU[float32], geluTanhCPU[float64]),
		l.addFloat(OpSqrt, sqrtCPU[float32], sqrtCPU[float64]),
		l.addFloat(OpPow, powCPU[float32], powCPU[float64]),
		l.addFloat(OpHypotScalarInverse, hypotScalarInverseCPU[float32], hypotScalarInverseCPU[float64]),
		l.addFloat(OpMaskScalar, maskScalarCPU[float32], maskScalarCPU[float64]),
		l.addFloat(OpSubtractIndexedOutputs, subtractIndexedOutputsCPU[float32], subtractIndexedOutputsCPU[float64]),
		l.addFloat(OpRandn, randnCPU[float32], randnCPU[float64]),
		l.add(OpFP32ToFP16, dtype.FP32, fp32ToFP16CPU),
	)
	if err != nil {
		return nil, err
	}
	l.logger.Info("Codelet library registered", zap.Int("codelets", len(l.Names())))
	return l, nil
}

// elementFuncs holds one entry point per element type.
type elementFuncs struct {
	fp16, fp32, fp64, int64, bool taskgraph.Func
}

var (
	fillCPU = elementFuncs{
		fillEntry[dtype.FP16Value], fillEntry[float32], fillEntry[float64], fillEntry[int64], fillEntry[bool],
	}
	copyCPU = elementFuncs{
		copyEntry[dtype.FP16Value], copyEntry[float32], copyEntry[float64], copyEntry[int64], copyEntry[bool],
	}
	subcopyCPU = elementFuncs{
		subcopyEntry[dtype.FP16Value], subcopyEntry[float32], subcopyEntry[float64], subcopyEntry[int64], subcopyEntry[bool],
	}
)

func (f elementFuncs) get(dt dtype.DType) taskgraph.Func {
	switch dt {
	case dtype.FP16:
		return f.fp16
	case dtype.FP32:
		return f.fp32
	case dtype.FP64:
		return f.fp64
	case dtype.Int64:
		return f.int64
	case dtype.Bool:
		return f.bool
	}
	return nil
}

func (l *Library) addElement(dt dtype.DType, op Op, funcs elementFuncs) error {
	return l.add(op, dt, funcs.get(dt))
}

func (l *Library) addFloat(op Op, fn32, fn64 taskgraph.Func) error {
	return multierr.Append(l.add(op, dtype.FP32, fn32), l.add(op, dtype.FP64, fn64))
}

func (l *Library) add(op Op, dt dtype.DType, fn taskgraph.Func) error {
	cl, err := taskgraph.NewCodelet(Name(op, dt), footprint, []taskgraph.Func{fn}, nil)
	if err != nil {
		return err
	}
	if err := l.rt.RegisterCodelet(cl); err != nil {
		if errors.Is(err, taskgraph.ErrDuplicateCodelet) {
			return fmt.Errorf("%w: %w", ErrDuplicate, err)
		}
		return err
	}
	if l.codelets[op] == nil {
		l.codelets[op] = make(map[dtype.DType]*taskgraph.Codelet)
	}
	l.codelets[op][dt] = cl
	return nil
}

// footprint hashes the shape fields of an argument blob.
func footprint(args any) uint32 {
	if f, ok := args.(interface{ footprint() uint32 }); ok {
		return f.footprint()
	}
	return 0
}

// Runtime returns the runtime the codelets are registered with.
func (l *Library) Runtime() *taskgraph.Runtime {
	return l.rt
}

// Codelet returns the codelet of op for dt.
func (l *Library) Codelet(op Op, dt dtype.DType) (*taskgraph.Codelet, error) {
	cl, ok := l.codelets[op][dt]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknown, Name(op, dt))
	}
	return cl, nil
}

// Names lists every codelet identifier of the library, sorted.
func (l *Library) Names() []string {
	var names []string
	for _, byType := range l.codelets {
		for _, cl := range byType {
			names = append(names, cl.Name())
		}
	}
	sort.Strings(names)
	return names
}

// RestrictWhere narrows the backends of every element type of op. It must be
// paired with RestoreWhere.
func (l *Library) RestrictWhere(op Op, where backend.Where) error {
	byType, ok := l.codelets[op]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknown, op)
	}
	for _, cl := range byType {
		if where&cl.DefaultWhere() != where {
			return fmt.Errorf("%w: %s has no entry point for %s", backend.ErrInvalidWhere, cl.Name(), where)
		}
	}
	for _, cl := range byType {
		if err := cl.RestrictWhere(where); err != nil {
			return err
		}
	}
	return nil
}

// RestoreWhere undoes RestrictWhere for op.
func (l *Library) RestoreWhere(op Op) {
	for _, cl := range l.codelets[op] {
		cl.RestoreWhere()
	}
}

// indexScratch returns a handle large enough for an ndim index. Tasks use it
// in Scratch mode, so one handle serves every concurrent task.
func (l *Library) indexScratch(ndim int) (*taskgraph.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.scratch[ndim]; ok {
		return h, nil
	}
	h, err := l.rt.Allocate(8 * ndim)
	if err != nil {
		return nil, err
	}
	l.scratch[ndim] = h
	return h, nil
}

// Close unregisters the scratch handles. The runtime must still be running.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var err error
	for ndim, h := range l.scratch {
		err = multierr.Append(err, h.Unregister())
		delete(l.scratch, ndim)
	}
	return err
}

// DstMode derives the access mode of an accumulated destination from its
// scaling factor. The comparisons are exact: only a literal 0 discards the
// previous content and only a literal 1 is treated as a pure accumulation.
func DstMode[T dtype.Float](beta T, redux bool) taskgraph.AccessMode {
	switch {
	case beta == 0:
		return taskgraph.W
	case beta == 1 && redux:
		return taskgraph.Redux
	case beta == 1:
		return taskgraph.RW | taskgraph.Commute
	default:
		return taskgraph.RW
	}
}

// EnableRedux declares elementwise addition as the reduction operator of h.
func EnableRedux[T dtype.Float](h *taskgraph.Handle) {
	h.SetReduction(taskgraph.ReductionFuncs{
		Init: func(dst []byte) {
			clear(dst)
		},
		Merge: func(dst, src []byte) {
			d, s := taskgraph.View[T](taskgraph.BufferOf(dst)), taskgraph.View[T](taskgraph.BufferOf(src))
			for i := range d {
				d[i] += s[i]
			}
		},
	})
}
