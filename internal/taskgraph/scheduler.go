package taskgraph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fxnlabs/tilegraph/internal/backend"
	"github.com/fxnlabs/tilegraph/internal/metrics"
	"go.uber.org/zap"
)

// queue holds the ready tasks of one backend kind. Guarded by rt.mu.
type queue struct {
	kind    backend.Kind
	workers int
	cond    *sync.Cond
	tasks   []*Task
	// load is the expected time, in seconds, of the tasks queued or running.
	load   float64
	closed bool
}

type perfKey struct {
	codelet   string
	footprint uint32
	kind      backend.Kind
}

type perfEntry struct {
	n    int
	mean float64
}

// perfModel keeps the mean duration per codelet, footprint and backend.
type perfModel struct {
	mu      sync.Mutex
	entries map[perfKey]*perfEntry
}

func newPerfModel() *perfModel {
	return &perfModel{entries: make(map[perfKey]*perfEntry)}
}

func (p *perfModel) estimate(k perfKey) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[k]
	if !ok {
		return 0, false
	}
	return e.mean, true
}

func (p *perfModel) record(k perfKey, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[k]
	if !ok {
		e = &perfEntry{}
		p.entries[k] = e
	}
	e.n++
	e.mean += (d.Seconds() - e.mean) / float64(e.n)
}

// schedule hands a task whose dependencies are satisfied to its executor.
// Runs under rt.mu.
func (rt *Runtime) schedule(t *Task) {
	switch t.kind {
	case acquireTask:
		if t.access[0].Mode.writes() {
			t.access[0].Handle.valid.Store(true)
		}
		close(t.ready)
	case internalTask:
		rt.stats.Internal++
		go rt.runInternal(t)
	default:
		q, est := rt.pickQueue(t)
		q.tasks = append(q.tasks, t)
		q.load += est
		q.cond.Signal()
	}
}

// pickQueue chooses the backend for a ready codelet task. Runs under rt.mu.
func (rt *Runtime) pickQueue(t *Task) (*queue, float64) {
	var (
		best     *queue
		bestCost float64
		bestEst  float64
	)
	eligible := t.where & rt.available
	for _, kind := range backend.Kinds {
		q, ok := rt.queues[kind]
		if !ok || !eligible.Has(kind) {
			continue
		}
		var cost, est float64
		switch rt.opts.Scheduler {
		case SchedulerEager:
			cost = float64(len(q.tasks)) / float64(q.workers)
		default:
			var calibrated bool
			est, calibrated = rt.perf.estimate(perfKey{t.name, t.footprint, kind})
			if !calibrated {
				// Run uncalibrated combinations first so every backend gets measured.
				return q, 0
			}
			cost = q.load/float64(q.workers) + est
		}
		if best == nil || cost < bestCost {
			best, bestCost, bestEst = q, cost, est
		}
	}
	return best, bestEst
}

func (rt *Runtime) worker(q *queue) {
	defer rt.workers.Done()
	for {
		rt.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 {
			rt.mu.Unlock()
			return
		}
		t := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		rt.mu.Unlock()

		d := rt.execute(t, q.kind)

		rt.mu.Lock()
		est, _ := rt.perf.estimate(perfKey{t.name, t.footprint, q.kind})
		q.load -= est
		if q.load < 0 || len(q.tasks) == 0 {
			q.load = 0
		}
		rt.stats.Executed[q.kind]++
		rt.mu.Unlock()

		metrics.TasksExecuted.WithLabelValues(t.name, q.kind.String()).Inc()
		metrics.TaskDuration.WithLabelValues(q.kind.String()).Observe(float64(d.Microseconds()) / 1000)
		if rt.opts.Trace != nil {
			rt.opts.Trace(Event{Codelet: t.name, Footprint: t.footprint, Backend: q.kind, Duration: d})
		}
		rt.finish(t)
	}
}

// execute runs a codelet task body on kind and returns its duration.
func (rt *Runtime) execute(t *Task, kind backend.Kind) time.Duration {
	buffers := make([]Buffer, len(t.access))
	var commute []*Handle
	for i, a := range t.access {
		switch {
		case a.Mode == Scratch:
			buffers[i] = Buffer{data: privateBuffer(len(a.Handle.data))}
		case a.Mode == Redux:
			priv := privateBuffer(len(a.Handle.data))
			a.Handle.reduction.Init(priv)
			buffers[i] = Buffer{data: priv}
		default:
			if a.Mode&Commute != 0 {
				commute = append(commute, a.Handle)
			}
			buffers[i] = Buffer{data: a.Handle.data}
		}
	}
	// Ascending id order so two commute tasks never lock in opposite order.
	sort.Slice(commute, func(i, j int) bool { return commute[i].id < commute[j].id })
	for _, h := range commute {
		h.execMu.Lock()
	}

	start := time.Now()
	rt.call(t, kind, buffers)
	d := time.Since(start)

	for i := len(commute) - 1; i >= 0; i-- {
		commute[i].execMu.Unlock()
	}
	for i, a := range t.access {
		if a.Mode == Redux {
			h := a.Handle
			h.execMu.Lock()
			h.reduction.Merge(h.data, buffers[i].data)
			h.execMu.Unlock()
		}
		if a.Mode.writes() {
			a.Handle.valid.Store(true)
		}
	}
	rt.perf.record(perfKey{t.name, t.footprint, kind}, d)
	return d
}

func (rt *Runtime) call(t *Task, kind backend.Kind, buffers []Buffer) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("task %s (%d) panicked on %s: %v", t.name, t.id, kind, r)
			rt.logger.Error("Task failed", zap.Error(err))
			rt.fail(err)
		}
	}()
	fn := t.cl.entry(kind)
	if fn == nil {
		panic("no entry point")
	}
	fn(buffers, t.args)
}

func (rt *Runtime) runInternal(t *Task) {
	buffers := make([]Buffer, len(t.access))
	for i, a := range t.access {
		buffers[i] = Buffer{data: a.Handle.data}
	}
	if err := rt.callInternal(rt.ctx, t, buffers); err != nil {
		rt.logger.Error("Internal task failed", zap.String("task", t.name), zap.Error(err))
		rt.fail(fmt.Errorf("%s: %w", t.name, err))
	} else {
		for _, a := range t.access {
			if a.Mode.writes() {
				a.Handle.valid.Store(!t.invalidate)
			}
		}
	}
	rt.finish(t)
}

func (rt *Runtime) callInternal(ctx context.Context, t *Task, buffers []Buffer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.fn(ctx, buffers)
}

func privateBuffer(size int) []byte {
	words := make([]uint64, (size+7)/8)
	return Bytes(words)[:size:size]
}
