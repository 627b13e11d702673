package taskgraph

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fxnlabs/tilegraph/internal/metrics"
	"go.uber.org/zap"
)

// ReductionFuncs are the commutative, associative operator used by Redux
// accesses: Init sets a private buffer to the identity, Merge folds src into dst.
type ReductionFuncs struct {
	Init  func(dst []byte)
	Merge func(dst, src []byte)
}

// Handle tracks the dependencies of one registered memory region. It is
// shared by reference: Retain adds an owner and Unregister drops one; the
// region is deregistered once, when the last owner drops it.
type Handle struct {
	rt    *Runtime
	id    uint64
	data  []byte
	owned bool
	valid atomic.Bool

	// execMu serializes commute tasks and reduction merges.
	execMu sync.Mutex

	// Everything below is guarded by rt.mu.
	refs         int
	pending      int
	unregistered bool
	acquired     []*Task
	reduction    *ReductionFuncs

	writers   []*Task
	readers   []*Task
	groupMode AccessMode
	groupDeps []*Task
}

// Register wraps caller-owned memory. The caller must keep data alive until
// the handle is unregistered.
func (rt *Runtime) Register(data []byte) (*Handle, error) {
	return rt.register(data, false)
}

// Allocate registers a zeroed runtime-owned region of size bytes.
func (rt *Runtime) Allocate(size int) (*Handle, error) {
	if size < 0 {
		return nil, fmt.Errorf("negative buffer size %d", size)
	}
	// Backed by uint64 words so every element type is aligned.
	words := make([]uint64, (size+7)/8)
	return rt.register(Bytes(words)[:size:size], true)
}

func (rt *Runtime) register(data []byte, owned bool) (*Handle, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.shutdown {
		return nil, ErrShutdown
	}
	rt.nextHandle++
	h := &Handle{
		rt:    rt,
		id:    rt.nextHandle,
		data:  data,
		owned: owned,
		refs:  1,
	}
	h.valid.Store(true)
	rt.handles[h.id] = h
	metrics.HandlesRegistered.Inc()
	metrics.RegisteredBytes.Add(float64(len(data)))
	rt.logger.Debug("handle registered", zap.Uint64("handle", h.id), zap.Int("bytes", len(data)), zap.Bool("owned", owned))
	return h, nil
}

// ID is unique among the handles of one runtime.
func (h *Handle) ID() uint64 {
	return h.id
}

// Size returns the size of the region in bytes.
func (h *Handle) Size() int {
	return len(h.data)
}

// Valid reports whether the content is defined. Invalidate clears it and the
// next completed write sets it again.
func (h *Handle) Valid() bool {
	return h.valid.Load()
}

// SetReduction declares the operator Redux accesses merge with.
func (h *Handle) SetReduction(funcs ReductionFuncs) {
	h.rt.mu.Lock()
	defer h.rt.mu.Unlock()
	h.reduction = &funcs
}

// dropped reports whether the last owner is gone, including while the final
// Unregister still waits for pending tasks. Runs under rt.mu.
func (h *Handle) dropped() bool {
	return h.unregistered || h.refs == 0
}

// Retain adds an owner.
func (h *Handle) Retain() (*Handle, error) {
	h.rt.mu.Lock()
	defer h.rt.mu.Unlock()
	if h.dropped() {
		return nil, ErrUnregistered
	}
	h.refs++
	return h, nil
}

// Unregister drops one owner. Dropping the last one waits for every task
// referencing the handle and then deregisters it.
func (h *Handle) Unregister() error {
	rt := h.rt
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if h.dropped() {
		return ErrUnregistered
	}
	h.refs--
	if h.refs > 0 {
		return nil
	}
	for h.pending > 0 {
		rt.cond.Wait()
	}
	h.unregistered = true
	delete(rt.handles, h.id)
	metrics.HandlesRegistered.Dec()
	metrics.RegisteredBytes.Sub(float64(len(h.data)))
	if h.owned {
		h.data = nil
	}
	h.writers, h.readers, h.groupDeps = nil, nil, nil
	rt.logger.Debug("handle unregistered", zap.Uint64("handle", h.id))
	return nil
}

// Acquire blocks until every conflicting task inserted before it completed
// and returns the region. Tasks inserted afterwards that conflict with mode
// wait until Release.
func (h *Handle) Acquire(mode AccessMode) ([]byte, error) {
	if mode != R && mode != W && mode != RW {
		return nil, fmt.Errorf("cannot acquire in mode %s", mode)
	}
	t, err := h.rt.insertAcquire(h, mode)
	if err != nil {
		return nil, err
	}
	<-t.ready
	return h.data, nil
}

// Release ends the most recent Acquire.
func (h *Handle) Release() error {
	rt := h.rt
	rt.mu.Lock()
	n := len(h.acquired)
	if n == 0 {
		rt.mu.Unlock()
		return fmt.Errorf("%w: handle %d", ErrNotAcquired, h.id)
	}
	t := h.acquired[n-1]
	h.acquired = h.acquired[:n-1]
	rt.mu.Unlock()
	rt.finish(t)
	return nil
}

// WontUse hints that the handle is not accessed again soon. The runtime drops
// its references to completed tasks of the handle so they can be collected.
// Ordering is unaffected and the call is a no-op after the last Unregister.
func (h *Handle) WontUse() {
	h.rt.mu.Lock()
	defer h.rt.mu.Unlock()
	if h.dropped() {
		return
	}
	h.writers = pruneDone(h.writers)
	h.readers = pruneDone(h.readers)
	h.groupDeps = pruneDone(h.groupDeps)
}

// Invalidate marks the content undefined once every task inserted before it
// completed. Storage is kept.
func (h *Handle) Invalidate() error {
	if _, err := h.Acquire(W); err != nil {
		return err
	}
	h.valid.Store(false)
	return h.Release()
}

// InvalidateSubmit is the asynchronous Invalidate: it is ordered in the graph
// like a write.
func (h *Handle) InvalidateSubmit() error {
	return h.rt.InsertFunc("invalidate", func(context.Context, []Buffer) error {
		return nil
	}, Access{Handle: h, Mode: W}, invalidating{})
}
