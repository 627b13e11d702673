package taskgraph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fxnlabs/tilegraph/internal/backend"
	"github.com/fxnlabs/tilegraph/internal/logger"
	"github.com/fxnlabs/tilegraph/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	// ErrShutdown is returned by every insertion after Shutdown started.
	ErrShutdown = errors.New("runtime is shut down")
	// ErrUnregistered is returned when a handle is used after its last Unregister.
	ErrUnregistered = errors.New("handle is unregistered")
	// ErrNotAcquired is returned by Release without a matching Acquire.
	ErrNotAcquired = errors.New("handle is not acquired")
	// ErrNoBackend is returned when no worker pool can run any entry point of a codelet.
	ErrNoBackend = errors.New("no eligible backend")
	// ErrNoReduction is returned for a Redux access on a handle without reduction funcs.
	ErrNoReduction = errors.New("handle has no reduction operator")
	// ErrDuplicateCodelet is returned when two codelets share a name.
	ErrDuplicateCodelet = errors.New("duplicate codelet name")
)

// Scheduling policies.
const (
	SchedulerEager = "eager"
	SchedulerDMDA  = "dmda"
)

// Options configures a Runtime.
type Options struct {
	Backends  backend.Options
	Scheduler string
	// Trace, when set, is called after every codelet task body returns.
	Trace func(Event)
}

// Event describes one executed codelet task.
type Event struct {
	Codelet   string
	Footprint uint32
	Backend   backend.Kind
	Duration  time.Duration
}

// Stats counts tasks over the lifetime of a runtime.
type Stats struct {
	Submitted uint64
	Executed  map[backend.Kind]uint64
	Internal  uint64
}

// Runtime owns a task graph, the worker pools that execute it and the
// handles registered with it. It is an explicit context object: create one
// with New and drain and destroy it with Shutdown.
type Runtime struct {
	session uuid.UUID
	logger  *zap.Logger
	manager *backend.Manager
	opts    Options
	ctx     context.Context
	cancel  context.CancelFunc

	mu         sync.Mutex
	cond       *sync.Cond
	inflight   int
	shutdown   bool
	fatal      error
	nextTask   uint64
	nextHandle uint64
	handles    map[uint64]*Handle
	codelets   map[string]*Codelet
	queues     map[backend.Kind]*queue
	available  backend.Where
	stats      Stats
	perf       *perfModel

	workers   sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// New detects backends, starts one worker pool per available backend and
// returns a runtime ready for insertion.
func New(opts Options, log *zap.Logger) (*Runtime, error) {
	switch opts.Scheduler {
	case "":
		opts.Scheduler = SchedulerDMDA
	case SchedulerEager, SchedulerDMDA:
	default:
		return nil, fmt.Errorf("unknown scheduler %q", opts.Scheduler)
	}
	session := uuid.New()
	rtLogger := logger.Named(log, "taskgraph").With(zap.String("session", session.String()))
	manager, err := backend.NewManager(opts.Backends, rtLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backends: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		session:  session,
		logger:   rtLogger,
		manager:  manager,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		handles:  make(map[uint64]*Handle),
		codelets: make(map[string]*Codelet),
		queues:   make(map[backend.Kind]*queue),
		perf:     newPerfModel(),
		stats:    Stats{Executed: make(map[backend.Kind]uint64)},
	}
	rt.cond = sync.NewCond(&rt.mu)
	for _, pool := range manager.Pools() {
		kind := pool.Backend.Kind()
		q := &queue{kind: kind, workers: pool.Workers, cond: sync.NewCond(&rt.mu)}
		rt.queues[kind] = q
		rt.available |= kind.Bit()
		for i := 0; i < pool.Workers; i++ {
			rt.workers.Add(1)
			go rt.worker(q)
		}
	}
	rtLogger.Info("Runtime initialized",
		zap.String("scheduler", opts.Scheduler),
		zap.Stringer("backends", rt.available))
	return rt, nil
}

// Session identifies the runtime in logs.
func (rt *Runtime) Session() uuid.UUID {
	return rt.session
}

// Available returns the backends that have workers.
func (rt *Runtime) Available() backend.Where {
	return rt.available
}

// DeviceInfo lists the devices behind the worker pools.
func (rt *Runtime) DeviceInfo() []backend.DeviceInfo {
	var infos []backend.DeviceInfo
	for _, p := range rt.manager.Pools() {
		infos = append(infos, p.Backend.DeviceInfo())
	}
	return infos
}

// Logger returns the runtime's logger.
func (rt *Runtime) Logger() *zap.Logger {
	return rt.logger
}

// RegisterCodelet makes a codelet known under its name. Names are unique per
// runtime.
func (rt *Runtime) RegisterCodelet(cl *Codelet) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, ok := rt.codelets[cl.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCodelet, cl.Name())
	}
	rt.codelets[cl.Name()] = cl
	return nil
}

// Codelets returns the registered codelet names, sorted.
func (rt *Runtime) Codelets() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	names := make([]string, 0, len(rt.codelets))
	for name := range rt.codelets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Insert adds a codelet task to the graph. It returns once the task is
// queued; ordering against earlier tasks follows from the declared accesses.
// No task is inserted when an error is returned.
func (rt *Runtime) Insert(cl *Codelet, args any, targs ...Arg) error {
	if cl == nil {
		return errors.New("nil codelet")
	}
	t := &Task{kind: codeletTask, name: cl.Name(), cl: cl, args: args, where: cl.Where()}
	for _, a := range targs {
		a.apply(t)
	}
	t.footprint = cl.Footprint(args)
	if t.where&rt.available == 0 {
		return fmt.Errorf("%w: %s can run on %s, workers exist for %s", ErrNoBackend, cl.Name(), t.where, rt.available)
	}
	if err := rt.insert(t); err != nil {
		return err
	}
	metrics.TasksSubmitted.WithLabelValues(cl.Name()).Inc()
	return nil
}

// InsertFunc adds a runtime-internal task. It is ordered like a codelet task
// but its body runs on a dedicated goroutine and may block.
func (rt *Runtime) InsertFunc(name string, fn InternalFunc, targs ...Arg) error {
	t := &Task{kind: internalTask, name: name, fn: fn}
	for _, a := range targs {
		a.apply(t)
	}
	return rt.insert(t)
}

func (rt *Runtime) insertAcquire(h *Handle, mode AccessMode) (*Task, error) {
	t := &Task{kind: acquireTask, name: "acquire", ready: make(chan struct{})}
	t.access = []Access{{Handle: h, Mode: mode}}
	if err := rt.insert(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (rt *Runtime) insert(t *Task) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.shutdown {
		return ErrShutdown
	}
	if err := validateAccess(t.access); err != nil {
		return fmt.Errorf("%s: %w", t.name, err)
	}
	rt.nextTask++
	t.id = rt.nextTask
	t.inserted = time.Now()
	for _, a := range t.access {
		rt.addDependencies(t, a.Handle, a.Mode)
		a.Handle.pending++
	}
	if t.kind == acquireTask {
		h := t.access[0].Handle
		h.acquired = append(h.acquired, t)
	}
	rt.inflight++
	rt.stats.Submitted++
	if t.remaining == 0 {
		rt.schedule(t)
	}
	return nil
}

// validateAccess runs under rt.mu.
func validateAccess(access []Access) error {
	seen := make(map[*Handle]AccessMode, len(access))
	for i, a := range access {
		if a.Handle == nil {
			return fmt.Errorf("buffer %d: nil handle", i)
		}
		if a.Handle.dropped() {
			return fmt.Errorf("buffer %d: %w", i, ErrUnregistered)
		}
		if err := a.Mode.Validate(); err != nil {
			return fmt.Errorf("buffer %d: %w", i, err)
		}
		if a.Mode == Redux && a.Handle.reduction == nil {
			return fmt.Errorf("buffer %d: %w", i, ErrNoReduction)
		}
		if prev, ok := seen[a.Handle]; ok && (prev != R || a.Mode != R) {
			return fmt.Errorf("buffer %d: handle %d passed twice with modes %s and %s", i, a.Handle.id, prev, a.Mode)
		}
		seen[a.Handle] = a.Mode
	}
	return nil
}

// finish marks t complete and releases its successors.
func (rt *Runtime) finish(t *Task) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	t.done = true
	for _, a := range t.access {
		a.Handle.pending--
	}
	for _, s := range t.successors {
		s.remaining--
		if s.remaining == 0 {
			rt.schedule(s)
		}
	}
	t.successors = nil
	rt.inflight--
	rt.cond.Broadcast()
}

// fail records a fatal error. The first one is kept and reported by WaitForAll.
func (rt *Runtime) fail(err error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.fatal == nil {
		rt.fatal = err
	}
}

// WaitForAll blocks until every inserted task completed, including tasks
// inserted while waiting. It returns the first fatal task error, if any.
func (rt *Runtime) WaitForAll() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for rt.inflight > 0 {
		rt.cond.Wait()
	}
	return rt.fatal
}

// Stats returns a snapshot of the task counters.
func (rt *Runtime) Stats() Stats {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	s := Stats{Submitted: rt.stats.Submitted, Internal: rt.stats.Internal, Executed: make(map[backend.Kind]uint64)}
	for k, v := range rt.stats.Executed {
		s.Executed[k] = v
	}
	return s
}

// Shutdown drains every task, stops the workers and releases the backends.
// Handles still registered are reported and dropped. It is safe to call more
// than once.
func (rt *Runtime) Shutdown() error {
	rt.closeOnce.Do(func() {
		waitErr := rt.WaitForAll()
		rt.mu.Lock()
		rt.shutdown = true
		for _, q := range rt.queues {
			q.closed = true
			q.cond.Broadcast()
		}
		leaked := len(rt.handles)
		for id, h := range rt.handles {
			metrics.HandlesRegistered.Dec()
			metrics.RegisteredBytes.Sub(float64(len(h.data)))
			h.unregistered = true
			delete(rt.handles, id)
		}
		rt.mu.Unlock()
		rt.workers.Wait()
		rt.cancel()
		if leaked > 0 {
			rt.logger.Warn("Handles still registered at shutdown", zap.Int("count", leaked))
		}
		rt.closeErr = multierr.Combine(waitErr, rt.manager.Cleanup())
		rt.logger.Info("Runtime shut down", zap.Uint64("tasks", rt.stats.Submitted))
	})
	return rt.closeErr
}
