package cluster

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fxnlabs/tilegraph/internal/codelet"
	"github.com/fxnlabs/tilegraph/internal/logger"
	"github.com/fxnlabs/tilegraph/internal/taskgraph"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Options configures the nodes of a world.
type Options struct {
	Runtime taskgraph.Options
	// TransferBuffer is the mailbox depth of the in-process transport.
	TransferBuffer int
	// BarrierTimeout bounds Wait, zero waits forever.
	BarrierTimeout time.Duration
	Logger         *zap.Logger
}

// Stats counts the transfer traffic a node issued.
type Stats struct {
	Sent     uint64
	Received uint64
	Flushed  uint64
}

// Node is the per-rank context: a runtime, its codelet library and the
// transport to the other ranks. Every rank runs the same program and calls
// the same Handle methods in the same order.
type Node struct {
	ctx       context.Context
	transport Transport
	rt        *taskgraph.Runtime
	lib       *codelet.Library
	logger    *zap.Logger
	timeout   time.Duration

	sent     atomic.Uint64
	received atomic.Uint64
	flushed  atomic.Uint64
}

// NewNode starts a runtime for the rank behind transport. ctx bounds every
// transfer the node performs.
func NewNode(ctx context.Context, transport Transport, opts Options) (*Node, error) {
	nodeLogger := logger.Named(opts.Logger, "node").With(zap.Int("rank", transport.Rank()))
	rt, err := taskgraph.New(opts.Runtime, nodeLogger)
	if err != nil {
		return nil, fmt.Errorf("rank %d: %w", transport.Rank(), err)
	}
	lib, err := codelet.NewLibrary(rt)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("rank %d: %w", transport.Rank(), err), rt.Shutdown())
	}
	return &Node{
		ctx:       ctx,
		transport: transport,
		rt:        rt,
		lib:       lib,
		logger:    nodeLogger,
		timeout:   opts.BarrierTimeout,
	}, nil
}

func (n *Node) Rank() int {
	return n.transport.Rank()
}

func (n *Node) Size() int {
	return n.transport.Size()
}

func (n *Node) Runtime() *taskgraph.Runtime {
	return n.rt
}

func (n *Node) Library() *codelet.Library {
	return n.lib
}

func (n *Node) Logger() *zap.Logger {
	return n.logger
}

func (n *Node) Transport() Transport {
	return n.transport
}

func (n *Node) Context() context.Context {
	return n.ctx
}

// Wait drains the local graph, including transfers, and then waits for
// every other rank to do the same.
func (n *Node) Wait(ctx context.Context) error {
	if err := n.rt.WaitForAll(); err != nil {
		return fmt.Errorf("rank %d: %w", n.Rank(), err)
	}
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	return n.transport.Barrier(ctx)
}

// Stats returns the transfer counters.
func (n *Node) Stats() Stats {
	return Stats{
		Sent:     n.sent.Load(),
		Received: n.received.Load(),
		Flushed:  n.flushed.Load(),
	}
}

// Close releases the codelet library and shuts the runtime down.
func (n *Node) Close() error {
	return multierr.Combine(n.lib.Close(), n.rt.Shutdown())
}
