//go:build integration

package integration

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/fxnlabs/tilegraph/internal/cluster"
	"github.com/fxnlabs/tilegraph/internal/config"
	"github.com/fxnlabs/tilegraph/internal/kernel"
	"github.com/fxnlabs/tilegraph/internal/logger"
	"github.com/fxnlabs/tilegraph/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func gelu(x float64) float64 {
	return 0.5 * x * (1 + math.Tanh(math.Sqrt(2/math.Pi)*(x+0.044715*x*x*x)))
}

// TestMLPLayer_EndToEnd runs y = gelu(x*W + b) over a block-cyclic cluster
// and compares it with a direct computation.
func TestMLPLayer_EndToEnd(t *testing.T) {
	var cfg *config.Config
	var log *zap.Logger

	app := fxtest.New(t,
		fx.Provide(
			func() *config.Config {
				c := &config.Config{}
				c.Logger.Verbosity = "warn"
				c.Cluster.Nodes = 4
				c.ApplyDefaults()
				return c
			},
			func(c *config.Config) (*zap.Logger, error) {
				return logger.New(c.Logger.Verbosity)
			},
		),
		fx.Populate(&cfg, &log),
	)
	app.RequireStart()
	defer app.RequireStop()

	const batch, in, out = 37, 29, 23
	x := make([]float64, batch*in)
	w := make([]float64, in*out)
	bias := make([]float64, out)
	kernel.Randn(1, 0.0, 1.0, []int64{0, 0}, []int64{batch, in}, []int64{batch, in}, x, make([]int64, 2))
	kernel.Randn(2, 0.0, 0.2, []int64{0, 0}, []int64{in, out}, []int64{in, out}, w, make([]int64, 2))
	kernel.Randn(3, 0.0, 1.0, []int64{0}, []int64{out}, []int64{out}, bias, make([]int64, 1))

	want := make([]float64, batch*out)
	for i := 0; i < batch; i++ {
		for j := 0; j < out; j++ {
			v := bias[j]
			for l := 0; l < in; l++ {
				v += x[i*in+l] * w[l*out+j]
			}
			want[i*out+j] = gelu(v)
		}
	}

	xt := tensor.MustTraits([]int64{batch, in}, []int64{8, 7})
	wt := tensor.MustTraits([]int64{in, out}, []int64{7, 6})
	bt := tensor.MustTraits([]int64{out}, []int64{6})
	yt := tensor.MustTraits([]int64{batch, out}, []int64{8, 6})
	mesh := func(tr tensor.Traits) tensor.Distribution {
		d, err := tensor.BlockCyclic(tr.Grid.Shape, []int64{2, 2}[:tr.NDim], 1, cfg.Cluster.Nodes)
		require.NoError(t, err)
		return d
	}
	xd, wd, bd, yd := mesh(xt), mesh(wt), mesh(bt), mesh(yt)

	opts := cfg.NodeOptions()
	opts.Logger = log
	var mu sync.Mutex
	var got []float64
	err := cluster.Run(context.Background(), cfg.Cluster.Nodes, opts, func(ctx context.Context, n *cluster.Node) error {
		tx, tag, err := tensor.FromSlice(ctx, n, xt, xd, 0, 0, x)
		if err != nil {
			return err
		}
		tw, tag, err := tensor.FromSlice(ctx, n, wt, wd, tag, 1, w)
		if err != nil {
			return err
		}
		tb, tag, err := tensor.FromSlice(ctx, n, bt, bd, tag, 2, bias)
		if err != nil {
			return err
		}
		ty, _, err := tensor.New[float64](n, yt, yd, tag)
		if err != nil {
			return err
		}
		if err := tensor.Gemm(ctx, 1.0, kernel.NoTrans, tx, kernel.NoTrans, tw, 0, ty, 1, 0, true); err != nil {
			return err
		}
		if err := tensor.AddSlice(ctx, 1.0, tb, 1.0, ty, 0); err != nil {
			return err
		}
		if err := tensor.GeluTanh(ctx, ty); err != nil {
			return err
		}
		res, err := tensor.ToSlice(ctx, ty, 3)
		if err != nil {
			return err
		}
		if n.Rank() == 3 {
			mu.Lock()
			got = res
			mu.Unlock()
		}
		return nil
	})
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, got, 1e-9)
}
