package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fxnlabs/tilegraph/fixtures"
	"github.com/fxnlabs/tilegraph/internal/taskgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		config, err := LoadConfig("../../fixtures/tests/config/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, config)

		assert.Equal(t, "debug", config.Logger.Verbosity)
		assert.Equal(t, 4, config.Runtime.CPUWorkers)
		assert.Equal(t, taskgraph.SchedulerEager, config.Runtime.Scheduler)
		assert.Equal(t, 3, config.Cluster.Nodes)
		assert.Equal(t, 16, config.Cluster.TransferBuffer)
		assert.Equal(t, time.Minute, config.Cluster.BarrierTimeout)
		assert.Equal(t, "127.0.0.1:9191", config.Metrics.ListenAddress)
		assert.Equal(t, []int64{64, 32}, config.Bench.Shape)
		assert.Equal(t, []int64{16, 16}, config.Bench.Basetile)
		assert.Equal(t, uint64(7), config.Bench.Seed)

		opts := config.NodeOptions()
		assert.Equal(t, 4, opts.Runtime.Backends.CPUWorkers)
		assert.Equal(t, taskgraph.SchedulerEager, opts.Runtime.Scheduler)
		assert.Equal(t, time.Minute, opts.BarrierTimeout)
	})

	t.Run("template", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, fixtures.ConfigTemplate, 0644))
		config, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 2, config.Cluster.Nodes)
		assert.Equal(t, taskgraph.SchedulerDMDA, config.Runtime.Scheduler)
		assert.Equal(t, ":9090", config.Metrics.ListenAddress)
	})

	t.Run("non-existent file", func(t *testing.T) {
		_, err := LoadConfig("non-existent-file.yaml")
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		dir, err := os.Getwd()
		require.NoError(t, err)

		configPath := filepath.Join(dir, "..", "..", "fixtures", "tests", "invalid_config", "config.yaml")
		_, err = LoadConfig(configPath)
		assert.Error(t, err)
	})
}

func TestApplyDefaults(t *testing.T) {
	var config Config
	config.ApplyDefaults()
	assert.Equal(t, "info", config.Logger.Verbosity)
	assert.Equal(t, taskgraph.SchedulerDMDA, config.Runtime.Scheduler)
	assert.Equal(t, 1, config.Cluster.Nodes)
	assert.Equal(t, 30*time.Second, config.Cluster.BarrierTimeout)
	assert.Equal(t, []int64{512, 512}, config.Bench.Shape)
	assert.NoError(t, config.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown scheduler", func(c *Config) { c.Runtime.Scheduler = "random" }},
		{"negative workers", func(c *Config) { c.Runtime.CPUWorkers = -1 }},
		{"no nodes", func(c *Config) { c.Cluster.Nodes = -2 }},
		{"rank mismatch", func(c *Config) { c.Bench.Basetile = []int64{8} }},
		{"empty basetile", func(c *Config) { c.Bench.Basetile = []int64{8, 0} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var config Config
			config.ApplyDefaults()
			tt.mutate(&config)
			assert.ErrorIs(t, config.Validate(), ErrInvalid)
		})
	}
}
