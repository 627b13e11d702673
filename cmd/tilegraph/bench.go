package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fxnlabs/tilegraph/internal/cluster"
	"github.com/fxnlabs/tilegraph/internal/config"
	"github.com/fxnlabs/tilegraph/internal/kernel"
	"github.com/fxnlabs/tilegraph/internal/tensor"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func benchCommand(configPath *string) *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "Run a distributed randn, gemm and sum_slice pipeline",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "nodes", Usage: "Override cluster.nodes"},
			&cli.Uint64Flag{Name: "seed", Usage: "Override bench.seed"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			if c.IsSet("nodes") {
				cfg.Cluster.Nodes = c.Int("nodes")
			}
			if c.IsSet("seed") {
				cfg.Bench.Seed = c.Uint64("seed")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			var log *zap.Logger
			var metrics *metricsServer
			return runApp(c.Context, cfg, func() error {
				res, err := runBench(c.Context, cfg, log)
				if err != nil {
					log.Error("bench failed", zap.Error(err))
					return err
				}
				res.print(c.App.Writer)
				return nil
			}, fx.Populate(&log, &metrics))
		},
	}
}

type benchResult struct {
	nodes    int
	m, n, k  int64
	elapsed  time.Duration
	checksum float64
	stats    cluster.Stats
}

func (r benchResult) flops() float64 {
	return 2 * float64(r.m) * float64(r.n) * float64(r.k)
}

func (r benchResult) print(w io.Writer) {
	rate := r.flops() / r.elapsed.Seconds()
	fmt.Fprintf(w, "gemm %dx%dx%d on %d nodes: %s in %s (%s)\n",
		r.m, r.n, r.k, r.nodes, humanize.SIWithDigits(r.flops(), 2, "FLOP"), r.elapsed, humanize.SIWithDigits(rate, 2, "FLOP/s"))
	fmt.Fprintf(w, "transfers: %s sent, %s received, %s flushes\n",
		humanize.Comma(int64(r.stats.Sent)), humanize.Comma(int64(r.stats.Received)), humanize.Comma(int64(r.stats.Flushed)))
	fmt.Fprintf(w, "checksum: %.6g\n", r.checksum)
}

// runBench computes C = A*B for A of the bench shape and B of its transpose
// shape, both drawn from the seed, and sums the rows of C. Tiles are spread
// block-cyclically over the rows of the grid.
func runBench(ctx context.Context, cfg *config.Config, log *zap.Logger) (benchResult, error) {
	m, k := cfg.Bench.Shape[0], cfg.Bench.Shape[1]
	bm, bk := cfg.Bench.Basetile[0], cfg.Bench.Basetile[1]
	res := benchResult{nodes: cfg.Cluster.Nodes, m: m, n: m, k: k}

	opts := cfg.NodeOptions()
	opts.Logger = log
	var mu sync.Mutex
	err := cluster.Run(ctx, cfg.Cluster.Nodes, opts, func(ctx context.Context, node *cluster.Node) error {
		at, err := tensor.NewTraits([]int64{m, k}, []int64{bm, bk})
		if err != nil {
			return err
		}
		bt := tensor.MustTraits([]int64{k, m}, []int64{bk, bm})
		ct := tensor.MustTraits([]int64{m, m}, []int64{bm, bm})
		vt := tensor.MustTraits([]int64{m}, []int64{bm})

		distr := func(t tensor.Traits) (tensor.Distribution, error) {
			mesh := make([]int64, t.NDim)
			for i := range mesh {
				mesh[i] = 1
			}
			mesh[0] = int64(node.Size())
			return tensor.BlockCyclic(t.Grid.Shape, mesh, 0, node.Size())
		}
		var tag int64
		newTensor := func(t tensor.Traits) (*tensor.Tensor[float64], error) {
			d, err := distr(t)
			if err != nil {
				return nil, err
			}
			x, next, err := tensor.New[float64](node, t, d, tag)
			tag = next
			return x, err
		}
		a, err := newTensor(at)
		if err != nil {
			return err
		}
		b, err := newTensor(bt)
		if err != nil {
			return err
		}
		c, err := newTensor(ct)
		if err != nil {
			return err
		}
		v, err := newTensor(vt)
		if err != nil {
			return err
		}

		if err := tensor.Randn(ctx, cfg.Bench.Seed, 0.0, 1.0, []int64{0, 0}, at.Shape, a); err != nil {
			return err
		}
		if err := tensor.Randn(ctx, cfg.Bench.Seed+1, 0.0, 1.0, []int64{0, 0}, bt.Shape, b); err != nil {
			return err
		}
		start := time.Now()
		if err := tensor.Gemm(ctx, 1.0, kernel.NoTrans, a, kernel.NoTrans, b, 0, c, 1, 0, false); err != nil {
			return err
		}
		elapsed := time.Since(start)
		if err := tensor.SumSlice(ctx, 1.0, c, 0, v, 0, false); err != nil {
			return err
		}
		sums, err := tensor.ToSlice(ctx, v, 0)
		if err != nil {
			return err
		}
		if err := node.Wait(ctx); err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		st := node.Stats()
		res.stats.Sent += st.Sent
		res.stats.Received += st.Received
		res.stats.Flushed += st.Flushed
		if node.Rank() == 0 {
			res.elapsed = elapsed
			for _, s := range sums {
				res.checksum += s
			}
		}
		for _, x := range []interface{ Unregister() error }{a, b, c, v} {
			if err := x.Unregister(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return benchResult{}, err
	}
	log.Info("Bench finished",
		zap.Int("nodes", res.nodes),
		zap.Duration("gemm", res.elapsed),
		zap.Uint64("transfers", res.stats.Sent))
	return res, nil
}
