package taskgraph

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// FootprintBuilder hashes the shape-determining arguments of a task. Two tasks
// with the same footprint are expected to take the same time on a backend.
type FootprintBuilder struct {
	d   *xxhash.Digest
	buf [8]byte
}

// NewFootprint starts an empty footprint.
func NewFootprint() *FootprintBuilder {
	return &FootprintBuilder{d: xxhash.New()}
}

// Int64 mixes one integer in.
func (f *FootprintBuilder) Int64(v int64) *FootprintBuilder {
	binary.LittleEndian.PutUint64(f.buf[:], uint64(v))
	_, _ = f.d.Write(f.buf[:])
	return f
}

// Int64s mixes every value of vs in, in order.
func (f *FootprintBuilder) Int64s(vs []int64) *FootprintBuilder {
	for _, v := range vs {
		f.Int64(v)
	}
	return f
}

// Bool mixes a flag in. Used to separate algebraic classes such as beta==0.
func (f *FootprintBuilder) Bool(v bool) *FootprintBuilder {
	b := byte(0)
	if v {
		b = 1
	}
	_, _ = f.d.Write([]byte{b})
	return f
}

// Sum32 folds the 64-bit digest into the 32-bit footprint the scheduler keys on.
func (f *FootprintBuilder) Sum32() uint32 {
	s := f.d.Sum64()
	return uint32(s) ^ uint32(s>>32)
}
