package taskgraph

import (
	"context"
	"time"

	"github.com/fxnlabs/tilegraph/internal/backend"
)

type taskKind uint8

const (
	codeletTask taskKind = iota
	internalTask
	acquireTask
)

// InternalFunc is the body of a runtime-internal task such as a transfer. It
// runs on its own goroutine, so it may block. A returned error is fatal.
type InternalFunc func(ctx context.Context, buffers []Buffer) error

// Arg is one trailing argument of Insert: a buffer Access or a task option.
type Arg interface {
	apply(t *Task)
}

// Access pairs a handle with the mode a task uses it in.
type Access struct {
	Handle *Handle
	Mode   AccessMode
}

func (a Access) apply(t *Task) {
	t.access = append(t.access, a)
}

// Read, Write, ReadWrite, Commuting, Reduce and Temp build Access values.
func Read(h *Handle) Access      { return Access{Handle: h, Mode: R} }
func Write(h *Handle) Access     { return Access{Handle: h, Mode: W} }
func ReadWrite(h *Handle) Access { return Access{Handle: h, Mode: RW} }
func Commuting(h *Handle) Access { return Access{Handle: h, Mode: RW | Commute} }
func Reduce(h *Handle) Access    { return Access{Handle: h, Mode: Redux} }
func Temp(h *Handle) Access      { return Access{Handle: h, Mode: Scratch} }

// Flops annotates a task with its floating point operation count.
type Flops float64

func (f Flops) apply(t *Task) {
	t.flops = float64(f)
}

// invalidating marks an internal task that leaves its written buffers
// undefined instead of valid.
type invalidating struct{}

func (invalidating) apply(t *Task) {
	t.invalidate = true
}

// Task is one node of the graph.
type Task struct {
	id        uint64
	kind      taskKind
	name      string
	cl        *Codelet
	fn        InternalFunc
	args      any
	access    []Access
	flops     float64
	footprint uint32
	where     backend.Where
	// invalidate is set on internal tasks that drop the content they write.
	invalidate bool

	remaining  int
	successors []*Task
	done       bool
	ready      chan struct{}
	inserted   time.Time
}

// Name returns the codelet name, or the internal task name.
func (t *Task) Name() string {
	return t.name
}

// Footprint returns the footprint computed at insertion.
func (t *Task) Footprint() uint32 {
	return t.footprint
}
