//go:build !cuda
// +build !cuda

package backend

import "go.uber.org/zap"

// CUDABackend is a stub type when CUDA is not available
type CUDABackend struct {
	logger *zap.Logger
}

// NewCUDABackend returns a backend that never reports itself available.
func NewCUDABackend(logger *zap.Logger) *CUDABackend {
	return &CUDABackend{logger: logger}
}

func (c *CUDABackend) Kind() Kind {
	return CUDA
}

func (c *CUDABackend) DeviceInfo() DeviceInfo {
	return DeviceInfo{Name: "CUDA not available"}
}

func (c *CUDABackend) IsAvailable() bool {
	return false
}

func (c *CUDABackend) Initialize() error {
	return ErrNotCompiled
}

func (c *CUDABackend) Cleanup() error {
	return nil
}
