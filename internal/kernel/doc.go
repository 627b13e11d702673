// Package kernel holds the CPU numeric kernels behind every codelet.
//
// Kernels are pure functions over raw row-major slices: they never allocate,
// never block and never look at memory other than their arguments. Axis
// operations view an array as a 3-d block (m, k, n) where m is the product of
// the extents before the axis, k the extent of the axis and n the product of
// the extents after it.
package kernel
