package backend

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidWhere is returned when a backend selection mask names no backend,
// or names backends outside of what is allowed.
var ErrInvalidWhere = errors.New("invalid backend selection")

// Kind identifies a family of workers a codelet entry point can run on.
type Kind int

const (
	CPU Kind = iota
	CUDA
	numKinds
)

// Kinds lists every backend kind in dispatch table order.
var Kinds = []Kind{CPU, CUDA}

func (k Kind) String() string {
	switch k {
	case CPU:
		return "cpu"
	case CUDA:
		return "cuda"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Where is a bitmask of backend kinds.
type Where uint32

const (
	WhereCPU  Where = 1 << CPU
	WhereCUDA Where = 1 << CUDA
	WhereAny        = WhereCPU | WhereCUDA
)

// Bit returns the mask with only k set.
func (k Kind) Bit() Where {
	return 1 << k
}

// Has reports whether k is part of the mask.
func (w Where) Has(k Kind) bool {
	return w&k.Bit() != 0
}

// Validate checks that w is non-empty and only names known kinds.
func (w Where) Validate() error {
	if w == 0 || w&^WhereAny != 0 {
		return fmt.Errorf("%w: %#x", ErrInvalidWhere, uint32(w))
	}
	return nil
}

func (w Where) String() string {
	var names []string
	for _, k := range Kinds {
		if w.Has(k) {
			names = append(names, k.String())
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// DeviceInfo contains information about the device behind a backend
type DeviceInfo struct {
	Name              string `json:"name"`
	TotalMemory       int64  `json:"totalMemory"` // in bytes
	ComputeCapability string `json:"computeCapability"`
	DriverVersion     string `json:"driverVersion"`
	CUDAVersion       string `json:"cudaVersion,omitempty"`
}

// Backend is a kind of worker the runtime can start a pool for.
//
// Implementation notes:
// - IsAvailable must be cheap and must not initialize the device
// - Initialize is called once before any worker of this kind starts
// - Cleanup is called once after every worker of this kind stopped
type Backend interface {
	Kind() Kind

	// IsAvailable checks if the backend can be used in this process
	IsAvailable() bool

	// Initialize prepares the backend for use
	Initialize() error

	// Cleanup releases any resources held by the backend
	Cleanup() error

	// DeviceInfo returns information about the device
	DeviceInfo() DeviceInfo
}
