//go:build cuda
// +build cuda

package backend

// Compiled reports whether entry points for kind can ever run in this build.
func Compiled(kind Kind) bool {
	return kind == CPU || kind == CUDA
}
