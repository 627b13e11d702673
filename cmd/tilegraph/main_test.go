package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxnlabs/tilegraph/fixtures"
	"github.com/fxnlabs/tilegraph/internal/codelet"
	"github.com/fxnlabs/tilegraph/internal/config"
	"github.com/fxnlabs/tilegraph/internal/dtype"
	"github.com/fxnlabs/tilegraph/internal/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Logger.Verbosity = "error"
	cfg.Runtime.CPUWorkers = 2
	cfg.Cluster.Nodes = 2
	cfg.Bench.Shape = []int64{8, 6}
	cfg.Bench.Basetile = []int64{4, 4}
	cfg.Bench.Seed = 3
	cfg.ApplyDefaults()
	return cfg
}

func TestWriteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, writeConfig(path, false))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fixtures.ConfigTemplate, data)

	t.Run("existing file", func(t *testing.T) {
		assert.Error(t, writeConfig(path, false))
		assert.NoError(t, writeConfig(path, true))
	})

	t.Run("loads back", func(t *testing.T) {
		_, err := config.LoadConfig(path)
		assert.NoError(t, err)
	})
}

func TestInfo(t *testing.T) {
	var lib *codelet.Library
	app := fxtest.New(t, appOptions(testConfig()), libraryOption, fx.Populate(&lib))
	app.RequireStart()
	defer app.RequireStop()

	var out bytes.Buffer
	require.NoError(t, printInfo(&out, lib))
	assert.Contains(t, out.String(), "Backends: cpu")
	assert.Contains(t, out.String(), codelet.Name(codelet.OpGemm, dtype.FP64))
	assert.Contains(t, out.String(), codelet.Name(codelet.OpFP32ToFP16, dtype.FP32))
}

func TestSharedOptionsHaveNoRuntime(t *testing.T) {
	var lib *codelet.Library
	app := fx.New(appOptions(testConfig()), fx.Populate(&lib))
	assert.Error(t, app.Err())
}

func TestMetricsServer(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.ListenAddress = "127.0.0.1:0"
	var ms *metricsServer
	app := fxtest.New(t, appOptions(cfg), fx.Populate(&ms))
	app.RequireStart()
	defer app.RequireStop()

	require.NotEmpty(t, ms.Addr())
	resp, err := http.Get("http://" + ms.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestBench(t *testing.T) {
	cfg := testConfig()
	res, err := runBench(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	m, k := cfg.Bench.Shape[0], cfg.Bench.Shape[1]
	a := make([]float64, m*k)
	b := make([]float64, k*m)
	kernel.Randn(cfg.Bench.Seed, 0.0, 1.0, []int64{0, 0}, []int64{m, k}, []int64{m, k}, a, make([]int64, 2))
	kernel.Randn(cfg.Bench.Seed+1, 0.0, 1.0, []int64{0, 0}, []int64{k, m}, []int64{k, m}, b, make([]int64, 2))
	var want float64
	for i := int64(0); i < m; i++ {
		for j := int64(0); j < m; j++ {
			for l := int64(0); l < k; l++ {
				want += a[i*k+l] * b[l*m+j]
			}
		}
	}
	assert.InDelta(t, want, res.checksum, 1e-9)
	assert.Equal(t, 2, res.nodes)
	assert.Positive(t, res.stats.Sent)
	assert.Equal(t, res.stats.Sent, res.stats.Received)

	var out bytes.Buffer
	res.print(&out)
	assert.Contains(t, out.String(), "gemm 8x8x6 on 2 nodes")
}
