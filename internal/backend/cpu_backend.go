package backend

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"
)

// CPUBackend runs codelet CPU entry points on goroutines. It is always available.
type CPUBackend struct {
	logger      *zap.Logger
	initialized bool
}

// NewCPUBackend creates a new CPU backend instance
func NewCPUBackend(logger *zap.Logger) *CPUBackend {
	return &CPUBackend{
		logger: logger,
	}
}

func (c *CPUBackend) Kind() Kind {
	return CPU
}

// Initialize prepares the CPU backend for use
func (c *CPUBackend) Initialize() error {
	if c.initialized {
		return nil
	}
	c.initialized = true
	c.logger.Info("CPU backend initialized", zap.Int("cpus", runtime.NumCPU()))
	return nil
}

// Cleanup releases any resources (none for CPU backend)
func (c *CPUBackend) Cleanup() error {
	c.initialized = false
	return nil
}

// IsAvailable checks if the backend is available (always true for CPU)
func (c *CPUBackend) IsAvailable() bool {
	return true
}

// DeviceInfo returns device information for CPU
func (c *CPUBackend) DeviceInfo() DeviceInfo {
	return DeviceInfo{
		Name:              fmt.Sprintf("CPU (%s, %d cores)", runtime.GOARCH, runtime.NumCPU()),
		ComputeCapability: "N/A",
		DriverVersion:     runtime.Version(),
	}
}
