// Package dtype enumerates the element types a tile can hold.
//
// Every codelet is compiled once per element type, and the runtime picks the
// right one by looking the tag up in a per-operation table.
package dtype

import (
	"fmt"

	"github.com/x448/float16"
)

// DType is the tag of a supported element type.
type DType uint8

const (
	Invalid DType = iota
	FP16
	FP32
	FP64
	Int64
	Bool
)

// FP16Value is the Go representation of a half precision element.
type FP16Value = float16.Float16

// Float covers the element types arithmetic kernels are instantiated for.
type Float interface {
	float32 | float64
}

// Element covers every element type a tile may hold.
type Element interface {
	FP16Value | float32 | float64 | int64 | bool
}

// All lists the valid tags in declaration order.
var All = []DType{FP16, FP32, FP64, Int64, Bool}

// Size returns the number of bytes of one element.
func (d DType) Size() int {
	switch d {
	case FP16:
		return 2
	case FP32:
		return 4
	case FP64, Int64:
		return 8
	case Bool:
		return 1
	default:
		return 0
	}
}

// String returns the short name used in codelet identifiers.
func (d DType) String() string {
	switch d {
	case FP16:
		return "fp16"
	case FP32:
		return "fp32"
	case FP64:
		return "fp64"
	case Int64:
		return "int64"
	case Bool:
		return "bool"
	default:
		return fmt.Sprintf("dtype(%d)", uint8(d))
	}
}

// IsFloat reports whether arithmetic codelets exist for d.
func (d DType) IsFloat() bool {
	return d == FP32 || d == FP64
}

// Of returns the tag of the Go type T.
func Of[T Element]() DType {
	var zero T
	switch any(zero).(type) {
	case FP16Value:
		return FP16
	case float32:
		return FP32
	case float64:
		return FP64
	case int64:
		return Int64
	case bool:
		return Bool
	}
	return Invalid
}
