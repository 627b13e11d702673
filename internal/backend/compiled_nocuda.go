//go:build !cuda
// +build !cuda

package backend

import "errors"

// ErrNotCompiled is returned when initializing a backend this binary was built without.
var ErrNotCompiled = errors.New("backend not compiled in")

// Compiled reports whether entry points for kind can ever run in this build.
// Without the cuda tag only CPU entry points count.
func Compiled(kind Kind) bool {
	return kind == CPU
}
