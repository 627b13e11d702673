// Package cluster runs one task graph per node and keeps tiles coherent
// between nodes: every tile has one owner, readers on other nodes receive a
// copy before use, and writers flush so stale copies are fetched again.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrTransport wraps every point-to-point failure.
var ErrTransport = errors.New("transport failure")

// Transport moves tile content between nodes. Messages between one pair of
// ranks with one tag are delivered in order.
type Transport interface {
	Rank() int
	Size() int
	// Send blocks until data is handed over. data may be reused afterwards.
	Send(ctx context.Context, dst int, tag int64, data []byte) error
	// Recv blocks until a message from src with tag arrives and copies it
	// into data, whose length must match.
	Recv(ctx context.Context, src int, tag int64, data []byte) error
	// Barrier blocks until every rank entered it.
	Barrier(ctx context.Context) error
}

type mailboxKey struct {
	src, dst int
	tag      int64
}

// localWorld connects in-process ranks through buffered channels.
type localWorld struct {
	size  int
	depth int

	mu        sync.Mutex
	mailboxes map[mailboxKey]chan []byte
	arrived   int
	release   chan struct{}
}

// NewLocalWorld returns size connected transports. depth is the number of
// messages a mailbox holds before Send blocks.
func NewLocalWorld(size, depth int) ([]Transport, error) {
	if size < 1 {
		return nil, fmt.Errorf("world size %d must be positive", size)
	}
	if depth < 1 {
		depth = 1
	}
	w := &localWorld{
		size:      size,
		depth:     depth,
		mailboxes: make(map[mailboxKey]chan []byte),
		release:   make(chan struct{}),
	}
	ts := make([]Transport, size)
	for rank := range ts {
		ts[rank] = &localTransport{world: w, rank: rank}
	}
	return ts, nil
}

func (w *localWorld) mailbox(k mailboxKey) chan []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch, ok := w.mailboxes[k]
	if !ok {
		ch = make(chan []byte, w.depth)
		w.mailboxes[k] = ch
	}
	return ch
}

type localTransport struct {
	world *localWorld
	rank  int
}

func (t *localTransport) Rank() int {
	return t.rank
}

func (t *localTransport) Size() int {
	return t.world.size
}

func (t *localTransport) checkPeer(peer int) error {
	if peer < 0 || peer >= t.world.size || peer == t.rank {
		return fmt.Errorf("%w: rank %d cannot talk to rank %d of %d", ErrTransport, t.rank, peer, t.world.size)
	}
	return nil
}

func (t *localTransport) Send(ctx context.Context, dst int, tag int64, data []byte) error {
	if err := t.checkPeer(dst); err != nil {
		return err
	}
	msg := append([]byte(nil), data...)
	select {
	case t.world.mailbox(mailboxKey{t.rank, dst, tag}) <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: send %d->%d tag %d: %w", ErrTransport, t.rank, dst, tag, ctx.Err())
	}
}

func (t *localTransport) Recv(ctx context.Context, src int, tag int64, data []byte) error {
	if err := t.checkPeer(src); err != nil {
		return err
	}
	select {
	case msg := <-t.world.mailbox(mailboxKey{src, t.rank, tag}):
		if len(msg) != len(data) {
			return fmt.Errorf("%w: recv %d->%d tag %d: got %d bytes, want %d", ErrTransport, src, t.rank, tag, len(msg), len(data))
		}
		copy(data, msg)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: recv %d->%d tag %d: %w", ErrTransport, src, t.rank, tag, ctx.Err())
	}
}

// Barrier is generation based: the last rank to arrive releases everyone
// and arms the next generation. A rank whose ctx ends still counts as arrived.
func (t *localTransport) Barrier(ctx context.Context) error {
	w := t.world
	w.mu.Lock()
	release := w.release
	w.arrived++
	if w.arrived == w.size {
		w.arrived = 0
		w.release = make(chan struct{})
		close(release)
	}
	w.mu.Unlock()
	select {
	case <-release:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: barrier on rank %d: %w", ErrTransport, t.rank, ctx.Err())
	}
}
