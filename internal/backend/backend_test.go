package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWhere(t *testing.T) {
	assert.True(t, WhereAny.Has(CPU))
	assert.True(t, WhereAny.Has(CUDA))
	assert.False(t, WhereCPU.Has(CUDA))
	assert.Equal(t, "cpu|cuda", WhereAny.String())
	assert.Equal(t, "none", Where(0).String())

	t.Run("validate", func(t *testing.T) {
		assert.NoError(t, WhereCPU.Validate())
		assert.NoError(t, WhereAny.Validate())
		assert.ErrorIs(t, Where(0).Validate(), ErrInvalidWhere)
		assert.ErrorIs(t, Where(1<<7).Validate(), ErrInvalidWhere)
	})
}

func TestCPUBackend(t *testing.T) {
	backend := NewCPUBackend(zap.NewNop())

	assert.True(t, backend.IsAvailable())
	assert.Equal(t, CPU, backend.Kind())
	require.NoError(t, backend.Initialize())
	assert.True(t, backend.initialized)

	// Test double initialization (should be idempotent)
	require.NoError(t, backend.Initialize())

	info := backend.DeviceInfo()
	assert.Contains(t, info.Name, "CPU")
	assert.Equal(t, "N/A", info.ComputeCapability)

	require.NoError(t, backend.Cleanup())
	assert.False(t, backend.initialized)
}

func TestCompiled(t *testing.T) {
	assert.True(t, Compiled(CPU))
}

func TestManager(t *testing.T) {
	t.Run("cpu only", func(t *testing.T) {
		m, err := NewManager(Options{CPUWorkers: 3}, zap.NewNop())
		require.NoError(t, err)
		defer m.Cleanup()

		pools := m.Pools()
		require.NotEmpty(t, pools)
		assert.Equal(t, CPU, pools[0].Backend.Kind())
		assert.Equal(t, 3, pools[0].Workers)
		assert.True(t, m.Available().Has(CPU))
	})

	t.Run("default cpu workers", func(t *testing.T) {
		m, err := NewManager(Options{}, nil)
		require.NoError(t, err)
		defer m.Cleanup()
		assert.Greater(t, m.Pools()[0].Workers, 0)
	})

	t.Run("emulated accelerator", func(t *testing.T) {
		m, err := NewManager(Options{CPUWorkers: 1, CUDAWorkers: 2, EmulateCUDA: true}, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, WhereAny, m.Available())
		pools := m.Pools()
		require.Len(t, pools, 2)
		assert.Equal(t, 2, pools[1].Workers)
		assert.NotEmpty(t, pools[1].Backend.DeviceInfo().Name)
		require.NoError(t, m.Cleanup())
		assert.Empty(t, m.Pools())
	})
}
