package cluster

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fxnlabs/tilegraph/internal/backend"
	"github.com/fxnlabs/tilegraph/internal/codelet"
	"github.com/fxnlabs/tilegraph/internal/taskgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{
		Runtime:        taskgraph.Options{Backends: backend.Options{CPUWorkers: 2}},
		TransferBuffer: 4,
		BarrierTimeout: 10 * time.Second,
	}
}

func TestLocalTransport(t *testing.T) {
	ts, err := NewLocalWorld(2, 1)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("send and receive", func(t *testing.T) {
		data := []byte{1, 2, 3}
		require.NoError(t, ts[0].Send(ctx, 1, 7, data))
		data[0] = 9
		got := make([]byte, 3)
		require.NoError(t, ts[1].Recv(ctx, 0, 7, got))
		assert.Equal(t, []byte{1, 2, 3}, got)
	})

	t.Run("length mismatch", func(t *testing.T) {
		require.NoError(t, ts[1].Send(ctx, 0, 8, []byte{1}))
		assert.ErrorIs(t, ts[0].Recv(ctx, 1, 8, make([]byte, 2)), ErrTransport)
	})

	t.Run("invalid peer", func(t *testing.T) {
		assert.ErrorIs(t, ts[0].Send(ctx, 0, 1, nil), ErrTransport)
		assert.ErrorIs(t, ts[0].Recv(ctx, 2, 1, nil), ErrTransport)
	})

	t.Run("cancelled receive", func(t *testing.T) {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		err := ts[0].Recv(cctx, 1, 99, make([]byte, 1))
		assert.ErrorIs(t, err, ErrTransport)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("barrier", func(t *testing.T) {
		var wg sync.WaitGroup
		for round := 0; round < 3; round++ {
			for _, tr := range ts {
				wg.Add(1)
				go func() {
					defer wg.Done()
					assert.NoError(t, tr.Barrier(ctx))
				}()
			}
			wg.Wait()
		}
	})

	_, err = NewLocalWorld(0, 1)
	assert.Error(t, err)
}

// readOnto copies the tile behind h into a fresh local buffer with a task
// ordered after any transfer, and returns that buffer once drained.
func readOnto(n *Node, h *Handle, size int) ([]float64, error) {
	out := make([]float64, size)
	local, err := n.Runtime().Register(taskgraph.Bytes(out))
	if err != nil {
		return nil, err
	}
	if err := codelet.SubmitCopy[float64](n.Library(), size, h.Local(), local); err != nil {
		return nil, err
	}
	if err := n.Runtime().WaitForAll(); err != nil {
		return nil, err
	}
	return out, local.Unregister()
}

func newTile(n *Node, tag int64, owner int) (*Handle, error) {
	local, err := n.Runtime().Allocate(4 * 8)
	if err != nil {
		return nil, err
	}
	return n.Wrap(local, tag, owner)
}

func TestTransferScenario(t *testing.T) {
	var mu sync.Mutex
	stats := map[int]Stats{}
	results := map[int][][]float64{}

	err := Run(context.Background(), 3, testOptions(), func(ctx context.Context, n *Node) error {
		h, err := newTile(n, 1, 0)
		if err != nil {
			return err
		}
		write := func(val float64) error {
			if h.IsOwner() {
				if err := codelet.SubmitFill(n.Library(), 4, val, h.Local()); err != nil {
					return err
				}
			}
			return h.Flush()
		}
		read := func() error {
			if err := h.Transfer(1); err != nil {
				return err
			}
			if n.Rank() != 1 {
				return nil
			}
			v, err := readOnto(n, h, 4)
			mu.Lock()
			results[1] = append(results[1], v)
			mu.Unlock()
			return err
		}

		if err := write(3); err != nil {
			return err
		}
		// Two reads without an intervening write: one transfer.
		if err := read(); err != nil {
			return err
		}
		if err := read(); err != nil {
			return err
		}
		if err := n.Wait(ctx); err != nil {
			return err
		}
		mu.Lock()
		stats[n.Rank()] = n.Stats()
		mu.Unlock()
		if err := n.Wait(ctx); err != nil {
			return err
		}

		// A write and flush make the next read fetch again.
		if err := write(5); err != nil {
			return err
		}
		return read()
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), stats[0].Sent)
	assert.Equal(t, uint64(1), stats[1].Received)
	assert.Zero(t, stats[2].Sent+stats[2].Received)
	require.Len(t, results[1], 3)
	assert.Equal(t, []float64{3, 3, 3, 3}, results[1][0])
	assert.Equal(t, []float64{3, 3, 3, 3}, results[1][1])
	assert.Equal(t, []float64{5, 5, 5, 5}, results[1][2])
}

func TestSingleOwnerAtBarrier(t *testing.T) {
	const tiles = 6
	var owners [tiles]atomic.Int32
	err := Run(context.Background(), 3, testOptions(), func(ctx context.Context, n *Node) error {
		hs := make([]*Handle, tiles)
		for i := range hs {
			h, err := newTile(n, int64(i), i%n.Size())
			if err != nil {
				return err
			}
			hs[i] = h
		}
		// Rotate ownership of every other tile.
		for i := 0; i < tiles; i += 2 {
			if err := hs[i].Migrate((hs[i].Owner() + 1) % n.Size()); err != nil {
				return err
			}
		}
		if err := n.Wait(ctx); err != nil {
			return err
		}
		for i, h := range hs {
			if h.IsOwner() {
				owners[i].Add(1)
			}
		}
		return nil
	})
	require.NoError(t, err)
	for i := range owners {
		assert.EqualValues(t, 1, owners[i].Load(), "tile %d", i)
	}
}

func TestMigrate(t *testing.T) {
	var got []float64
	err := Run(context.Background(), 2, testOptions(), func(ctx context.Context, n *Node) error {
		h, err := newTile(n, 3, 0)
		if err != nil {
			return err
		}
		if h.IsOwner() {
			if err := codelet.SubmitFill(n.Library(), 4, 2.0, h.Local()); err != nil {
				return err
			}
		}
		if err := h.Migrate(1); err != nil {
			return err
		}
		if n.Rank() == 1 && !h.IsOwner() {
			return errors.New("rank 1 does not own the migrated tile")
		}
		// The new owner accumulates on the migrated content.
		if h.IsOwner() {
			if err := codelet.SubmitAddScalar(n.Library(), 4, 1.0, 1, h.Local()); err != nil {
				return err
			}
		}
		if err := h.Flush(); err != nil {
			return err
		}
		if err := h.Transfer(0); err != nil {
			return err
		}
		if n.Rank() == 0 {
			if !h.Readable() {
				return errors.New("rank 0 cannot read after transfer")
			}
			got, err = readOnto(n, h, 4)
			return err
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3, 3, 3}, got)
}

func TestMigrateKeepsCopiesCurrent(t *testing.T) {
	var mu sync.Mutex
	stats := map[int]Stats{}
	reads := map[int][][]float64{}

	err := Run(context.Background(), 3, testOptions(), func(ctx context.Context, n *Node) error {
		h, err := newTile(n, 5, 0)
		if err != nil {
			return err
		}
		read := func() error {
			for _, dst := range []int{0, 2} {
				if err := h.Transfer(dst); err != nil {
					return err
				}
			}
			if n.Rank() == 1 {
				return nil
			}
			if !h.Readable() {
				return errors.New("copy is not readable after transfer")
			}
			got, err := readOnto(n, h, 4)
			if err != nil {
				return err
			}
			mu.Lock()
			reads[n.Rank()] = append(reads[n.Rank()], got)
			mu.Unlock()
			return nil
		}

		if h.IsOwner() {
			if err := codelet.SubmitFill(n.Library(), 4, 1.0, h.Local()); err != nil {
				return err
			}
		}
		if err := h.Transfer(2); err != nil {
			return err
		}
		if err := h.Migrate(1); err != nil {
			return err
		}
		// Rank 0 and rank 2 still hold the migrated content.
		if err := read(); err != nil {
			return err
		}
		if h.IsOwner() {
			if err := codelet.SubmitFill(n.Library(), 4, 2.0, h.Local()); err != nil {
				return err
			}
		}
		if err := h.Flush(); err != nil {
			return err
		}
		if err := read(); err != nil {
			return err
		}
		if err := n.Wait(ctx); err != nil {
			return err
		}
		mu.Lock()
		stats[n.Rank()] = n.Stats()
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	first, second := []float64{1, 1, 1, 1}, []float64{2, 2, 2, 2}
	assert.Equal(t, [][]float64{first, second}, reads[0])
	assert.Equal(t, [][]float64{first, second}, reads[2])

	var sent, received uint64
	for _, s := range stats {
		sent += s.Sent
		received += s.Received
	}
	assert.Equal(t, sent, received, "every send has a matching receive")
	assert.EqualValues(t, 2, stats[1].Sent)
	assert.EqualValues(t, 1, stats[1].Received)
	assert.EqualValues(t, 2, stats[2].Received)
}

type failingTransport struct{}

func (failingTransport) Rank() int { return 0 }
func (failingTransport) Size() int { return 2 }
func (failingTransport) Send(context.Context, int, int64, []byte) error {
	return ErrTransport
}
func (failingTransport) Recv(context.Context, int, int64, []byte) error {
	return ErrTransport
}
func (failingTransport) Barrier(context.Context) error { return nil }

func TestTransferFailureIsFatal(t *testing.T) {
	n, err := NewNode(context.Background(), failingTransport{}, testOptions())
	require.NoError(t, err)
	defer func() { _ = n.Close() }()

	h, err := newTile(n, 1, 0)
	require.NoError(t, err)
	require.NoError(t, h.Transfer(1))
	err = n.Wait(context.Background())
	assert.ErrorIs(t, err, ErrTransport)

	_, err = n.Wrap(h.Local(), 2, 5)
	assert.Error(t, err)
}
