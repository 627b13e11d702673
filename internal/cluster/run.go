package cluster

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Run starts size in-process nodes and calls fn on each, concurrently, as an
// SPMD program. After fn returns every node waits for the whole world and is
// closed. The first error cancels the context of every other node.
func Run(ctx context.Context, size int, opts Options, fn func(ctx context.Context, n *Node) error) error {
	transports, err := NewLocalWorld(size, opts.TransferBuffer)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	for _, tr := range transports {
		g.Go(func() (err error) {
			n, err := NewNode(ctx, tr, opts)
			if err != nil {
				return err
			}
			defer func() {
				err = multierr.Append(err, n.Close())
			}()
			// A failed rank cancels the others before closing, since closing
			// drains transfers that may wait on them.
			if err := fn(ctx, n); err != nil {
				cancel()
				return fmt.Errorf("rank %d: %w", n.Rank(), err)
			}
			if err := n.Wait(ctx); err != nil {
				cancel()
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
