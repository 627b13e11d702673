//go:build cuda
// +build cuda

package backend

/*
#cgo LDFLAGS: -lcudart
#include <cuda_runtime.h>
*/
import "C"
import (
	"fmt"

	"go.uber.org/zap"
)

// CUDABackend hosts worker streams on the first visible NVIDIA device.
type CUDABackend struct {
	logger      *zap.Logger
	initialized bool
	available   bool
	deviceInfo  DeviceInfo
}

// NewCUDABackend creates a new CUDA backend instance
func NewCUDABackend(logger *zap.Logger) *CUDABackend {
	backend := &CUDABackend{
		logger: logger,
	}
	var count C.int
	if res := C.cudaGetDeviceCount(&count); res != C.cudaSuccess || count == 0 {
		logger.Warn("CUDA device not available", zap.Int("result", int(res)))
		return backend
	}
	backend.available = true
	return backend
}

func (c *CUDABackend) Kind() Kind {
	return CUDA
}

// Initialize selects device 0 and reads its properties
func (c *CUDABackend) Initialize() error {
	if !c.available {
		return fmt.Errorf("CUDA device not available")
	}
	if c.initialized {
		return nil
	}
	if res := C.cudaSetDevice(0); res != C.cudaSuccess {
		return fmt.Errorf("failed to select CUDA device: %s", C.GoString(C.cudaGetErrorString(res)))
	}
	var prop C.struct_cudaDeviceProp
	if res := C.cudaGetDeviceProperties(&prop, 0); res != C.cudaSuccess {
		return fmt.Errorf("failed to get device info: %s", C.GoString(C.cudaGetErrorString(res)))
	}
	var driver, rt C.int
	C.cudaDriverGetVersion(&driver)
	C.cudaRuntimeGetVersion(&rt)
	c.deviceInfo = DeviceInfo{
		Name:              C.GoString(&prop.name[0]),
		TotalMemory:       int64(prop.totalGlobalMem),
		ComputeCapability: fmt.Sprintf("%d.%d", int(prop.major), int(prop.minor)),
		DriverVersion:     fmt.Sprintf("%d.%d", int(driver)/1000, (int(driver)%1000)/10),
		CUDAVersion:       fmt.Sprintf("%d.%d", int(rt)/1000, (int(rt)%1000)/10),
	}
	c.initialized = true
	c.logger.Info("CUDA backend initialized",
		zap.String("device", c.deviceInfo.Name),
		zap.String("compute_capability", c.deviceInfo.ComputeCapability),
		zap.Float64("total_memory_gb", float64(c.deviceInfo.TotalMemory)/(1<<30)))
	return nil
}

func (c *CUDABackend) Cleanup() error {
	if !c.initialized {
		return nil
	}
	c.initialized = false
	if res := C.cudaDeviceReset(); res != C.cudaSuccess {
		return fmt.Errorf("failed to reset CUDA device: %s", C.GoString(C.cudaGetErrorString(res)))
	}
	return nil
}

func (c *CUDABackend) IsAvailable() bool {
	return c.available
}

func (c *CUDABackend) DeviceInfo() DeviceInfo {
	return c.deviceInfo
}
