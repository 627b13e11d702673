package taskgraph

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/fxnlabs/tilegraph/internal/backend"
)

// ErrNoEntryPoint is returned by NewCodelet when no entry point can run in this build.
var ErrNoEntryPoint = errors.New("codelet has no entry point for a compiled backend")

// Buffer is the resolved memory of one task argument, already local to the
// worker that runs the entry point.
type Buffer struct {
	data []byte
}

// BufferOf wraps raw memory, for reduction operators and tests.
func BufferOf(data []byte) Buffer {
	return Buffer{data: data}
}

// Bytes returns the raw memory.
func (b Buffer) Bytes() []byte {
	return b.data
}

// Len returns the size in bytes.
func (b Buffer) Len() int {
	return len(b.data)
}

// View reinterprets a buffer as a slice of T. The length is rounded down to
// a whole number of elements.
func View[T any](b Buffer) []T {
	return viewBytes[T](b.data)
}

func viewBytes[T any](data []byte) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if len(data) < size {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(data))), len(data)/size)
}

// Bytes reinterprets a typed slice as its backing bytes, without copying.
func Bytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*int(unsafe.Sizeof(zero)))
}

// Func is a backend entry point. It receives buffers in declaration order and
// the task's argument blob. It must not block and must not touch memory other
// than its buffers.
type Func func(buffers []Buffer, args any)

// FootprintFunc hashes the shape-determining fields of an argument blob.
type FootprintFunc func(args any) uint32

// Codelet is a named computation with one entry point list per backend kind.
// Everything except the where mask is immutable after NewCodelet.
type Codelet struct {
	name         string
	footprint    FootprintFunc
	funcs        [][]Func
	whereDefault backend.Where

	mu    sync.RWMutex
	where backend.Where
}

// NewCodelet builds the dispatch table. At least one entry point must belong
// to a backend compiled into this binary.
func NewCodelet(name string, footprint FootprintFunc, cpu, cuda []Func) (*Codelet, error) {
	cl := &Codelet{
		name:      name,
		footprint: footprint,
		funcs:     make([][]Func, len(backend.Kinds)),
	}
	cl.funcs[backend.CPU] = append([]Func(nil), cpu...)
	cl.funcs[backend.CUDA] = append([]Func(nil), cuda...)
	compiled := false
	for _, k := range backend.Kinds {
		if len(cl.funcs[k]) == 0 {
			continue
		}
		cl.whereDefault |= k.Bit()
		if backend.Compiled(k) {
			compiled = true
		}
	}
	if !compiled {
		return nil, fmt.Errorf("%w: %s", ErrNoEntryPoint, name)
	}
	cl.where = cl.whereDefault
	return cl, nil
}

// Name returns the identifier used in traces and metrics.
func (cl *Codelet) Name() string {
	return cl.name
}

// Footprint returns the scheduling footprint of an argument blob, 0 when the
// codelet has no footprint function.
func (cl *Codelet) Footprint(args any) uint32 {
	if cl.footprint == nil {
		return 0
	}
	return cl.footprint(args)
}

// Where returns the currently eligible backends.
func (cl *Codelet) Where() backend.Where {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.where
}

// DefaultWhere returns the backends the codelet has entry points for.
func (cl *Codelet) DefaultWhere() backend.Where {
	return cl.whereDefault
}

// RestrictWhere narrows the eligible backends until RestoreWhere. The mask
// must be a non-empty subset of the backends the codelet has entry points for.
// Tasks already inserted keep the mask they were inserted with.
func (cl *Codelet) RestrictWhere(where backend.Where) error {
	if err := where.Validate(); err != nil {
		return err
	}
	if where&cl.whereDefault != where {
		return fmt.Errorf("%w: %s has no entry point for %s", backend.ErrInvalidWhere, cl.name, where&^cl.whereDefault)
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.where = where
	return nil
}

// RestoreWhere undoes RestrictWhere.
func (cl *Codelet) RestoreWhere() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.where = cl.whereDefault
}

func (cl *Codelet) entry(kind backend.Kind) Func {
	fs := cl.funcs[kind]
	if len(fs) == 0 {
		return nil
	}
	return fs[0]
}
