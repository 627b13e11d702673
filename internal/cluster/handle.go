package cluster

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/fxnlabs/tilegraph/internal/metrics"
	"github.com/fxnlabs/tilegraph/internal/taskgraph"
	"go.uber.org/zap"
)

// Handle adds ownership to a local handle. Every rank holds one Handle per
// tile, all with the same tag and owner. Only the owner's copy is written;
// other ranks keep a cached copy that Transfer fills and Flush drops.
type Handle struct {
	node  *Node
	local *taskgraph.Handle
	tag   int64

	mu    sync.Mutex
	owner int
	// holders lists the non-owner ranks with a current copy. Every rank
	// applies the same collective calls, so the set is identical on all of
	// them and each send has exactly one matching receive.
	holders map[int]bool
}

// Wrap makes local the rank's copy of the tile identified by tag.
func (n *Node) Wrap(local *taskgraph.Handle, tag int64, owner int) (*Handle, error) {
	if owner < 0 || owner >= n.Size() {
		return nil, fmt.Errorf("owner %d outside of a %d node world", owner, n.Size())
	}
	return &Handle{node: n, local: local, tag: tag, owner: owner, holders: make(map[int]bool)}, nil
}

func (h *Handle) Tag() int64 {
	return h.tag
}

func (h *Handle) Local() *taskgraph.Handle {
	return h.local
}

func (h *Handle) Node() *Node {
	return h.node
}

func (h *Handle) Owner() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.owner
}

func (h *Handle) IsOwner() bool {
	return h.Owner() == h.node.Rank()
}

// Readable reports whether the local copy may be read by a task submitted
// now: the rank owns the tile or holds a received copy.
func (h *Handle) Readable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.owner == h.node.Rank() || h.holders[h.node.Rank()]
}

// Transfer makes the content current on rank dst. It is collective: the
// owner inserts a send, dst inserts a receive and every other rank only
// records that dst holds a copy. Copies already sent since the last flush
// are not sent again.
func (h *Handle) Transfer(dst int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.transfer(dst)
}

func (h *Handle) transfer(dst int) error {
	n := h.node
	if dst == h.owner || h.holders[dst] {
		return nil
	}
	if dst < 0 || dst >= n.Size() {
		return fmt.Errorf("transfer of tag %d: rank %d outside of a %d node world", h.tag, dst, n.Size())
	}
	switch n.Rank() {
	case h.owner:
		if err := n.rt.InsertFunc("send", h.send(dst), taskgraph.Read(h.local)); err != nil {
			return fmt.Errorf("error in send task submission: %w", err)
		}
		n.sent.Add(1)
		metrics.Transfers.WithLabelValues(strconv.Itoa(h.owner), strconv.Itoa(dst)).Inc()
	case dst:
		if err := n.rt.InsertFunc("recv", h.recv(h.owner), taskgraph.Write(h.local)); err != nil {
			return fmt.Errorf("error in recv task submission: %w", err)
		}
		n.received.Add(1)
	}
	h.holders[dst] = true
	return nil
}

func (h *Handle) send(dst int) taskgraph.InternalFunc {
	n := h.node
	return func(ctx context.Context, bufs []taskgraph.Buffer) error {
		ctx, cancel := mergeContext(ctx, n.ctx)
		defer cancel()
		if err := n.transport.Send(ctx, dst, h.tag, bufs[0].Bytes()); err != nil {
			n.logger.Error("Tile send failed", zap.Int64("tag", h.tag), zap.Int("dst", dst), zap.Error(err))
			return err
		}
		return nil
	}
}

func (h *Handle) recv(src int) taskgraph.InternalFunc {
	n := h.node
	return func(ctx context.Context, bufs []taskgraph.Buffer) error {
		ctx, cancel := mergeContext(ctx, n.ctx)
		defer cancel()
		if err := n.transport.Recv(ctx, src, h.tag, bufs[0].Bytes()); err != nil {
			n.logger.Error("Tile receive failed", zap.Int64("tag", h.tag), zap.Int("src", src), zap.Error(err))
			return err
		}
		metrics.TransferBytes.Add(float64(bufs[0].Len()))
		return nil
	}
}

// Flush follows a write of the tile. Every rank forgets who holds a copy
// and holders invalidate theirs in graph order, so the next Transfer fetches
// the new content.
func (h *Handle) Flush() error {
	n := h.node
	h.mu.Lock()
	defer h.mu.Unlock()
	if n.Rank() != h.owner && h.holders[n.Rank()] {
		if err := h.local.InvalidateSubmit(); err != nil {
			return fmt.Errorf("error in invalidate task submission: %w", err)
		}
	}
	clear(h.holders)
	n.flushed.Add(1)
	metrics.Flushes.Inc()
	return nil
}

// Migrate moves ownership to newOwner, transferring the content first. The
// previous owner and every earlier holder keep a current cached copy.
func (h *Handle) Migrate(newOwner int) error {
	n := h.node
	h.mu.Lock()
	defer h.mu.Unlock()
	if newOwner == h.owner {
		return nil
	}
	if err := h.transfer(newOwner); err != nil {
		return err
	}
	old := h.owner
	h.owner = newOwner
	delete(h.holders, newOwner)
	h.holders[old] = true
	n.logger.Debug("Tile migrated", zap.Int64("tag", h.tag), zap.Int("from", old), zap.Int("to", newOwner))
	return nil
}

// mergeContext returns a context that ends when either parent ends.
func mergeContext(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
