package backend

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/fxnlabs/tilegraph/internal/logger"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Options selects how many workers each backend kind gets.
type Options struct {
	// CPUWorkers is the size of the CPU pool, 0 means one per logical CPU.
	CPUWorkers int
	// CUDAWorkers is the number of accelerator streams, used only when a
	// device is available (or emulated).
	CUDAWorkers int
	// EmulateCUDA runs the accelerator pool on host goroutines when no device
	// is present, so device entry points can be exercised without hardware.
	EmulateCUDA bool
}

// Pool is an initialized backend together with its worker count.
type Pool struct {
	Backend Backend
	Workers int
}

// Manager handles backend detection and lifecycle
type Manager struct {
	pools  []Pool
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewManager detects and initializes every usable backend. The CPU backend is
// always part of the result.
func NewManager(opts Options, log *zap.Logger) (*Manager, error) {
	m := &Manager{
		logger: logger.Named(log, "backend"),
	}
	if err := m.detectAndInitialize(opts); err != nil {
		return nil, err
	}
	return m, nil
}

// detectAndInitialize detects available backends and initializes them
func (m *Manager) detectAndInitialize(opts Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cpuWorkers := opts.CPUWorkers
	if cpuWorkers <= 0 {
		cpuWorkers = runtime.NumCPU()
	}
	cpuBackend := NewCPUBackend(m.logger)
	if err := cpuBackend.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize CPU backend: %w", err)
	}
	m.pools = append(m.pools, Pool{Backend: cpuBackend, Workers: cpuWorkers})

	if opts.CUDAWorkers <= 0 {
		return nil
	}
	cudaBackend := NewCUDABackend(m.logger)
	if cudaBackend.IsAvailable() {
		if err := cudaBackend.Initialize(); err == nil {
			m.pools = append(m.pools, Pool{Backend: cudaBackend, Workers: opts.CUDAWorkers})
			return nil
		} else {
			m.logger.Warn("CUDA backend initialization failed", zap.Error(err))
		}
		// If initialization failed, try cleanup
		_ = cudaBackend.Cleanup()
	}
	if opts.EmulateCUDA {
		m.logger.Info("Using host-emulated accelerator pool", zap.Int("workers", opts.CUDAWorkers))
		m.pools = append(m.pools, Pool{Backend: newEmulatedBackend(CUDA), Workers: opts.CUDAWorkers})
	}
	return nil
}

// Pools returns the initialized backends in dispatch order.
func (m *Manager) Pools() []Pool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Pool(nil), m.pools...)
}

// Available returns the mask of kinds that have a worker pool.
func (m *Manager) Available() Where {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var w Where
	for _, p := range m.pools {
		w |= p.Backend.Kind().Bit()
	}
	return w
}

// Cleanup releases resources held by every backend
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	for _, p := range m.pools {
		err = multierr.Append(err, p.Backend.Cleanup())
	}
	m.pools = nil
	return err
}

// emulatedBackend stands in for an accelerator on machines without one.
type emulatedBackend struct {
	kind Kind
}

func newEmulatedBackend(kind Kind) *emulatedBackend {
	return &emulatedBackend{kind: kind}
}

func (e *emulatedBackend) Kind() Kind        { return e.kind }
func (e *emulatedBackend) IsAvailable() bool { return true }
func (e *emulatedBackend) Initialize() error { return nil }
func (e *emulatedBackend) Cleanup() error    { return nil }

func (e *emulatedBackend) DeviceInfo() DeviceInfo {
	return DeviceInfo{
		Name:              fmt.Sprintf("%s (host emulated)", e.kind),
		ComputeCapability: "N/A",
		DriverVersion:     runtime.Version(),
	}
}
