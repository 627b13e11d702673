package taskgraph

import (
	"fmt"
	"strings"
)

// AccessMode declares how a task uses one of its buffers. The runtime orders
// tasks only from these declarations.
type AccessMode uint8

const (
	// R reads the buffer.
	R AccessMode = 1 << iota
	// W overwrites the buffer without looking at its previous content.
	W
	// Scratch is a task-private temporary of the handle's size, with no
	// dependency on any other task.
	Scratch
	// Redux accumulates into the buffer with the handle's commutative merge.
	// Tasks of one reduction group may run in any order, even concurrently.
	Redux
	// Commute is a flag on RW: tasks of one commute group run one at a time
	// but in any order.
	Commute

	RW = R | W
)

// Validate accepts only the combinations the runtime knows how to order.
func (m AccessMode) Validate() error {
	switch m {
	case R, W, RW, RW | Commute, Scratch, Redux:
		return nil
	}
	return fmt.Errorf("invalid access mode %s", m)
}

func (m AccessMode) writes() bool {
	return m&(W|Redux) != 0
}

func (m AccessMode) String() string {
	switch m {
	case R:
		return "R"
	case W:
		return "W"
	case RW:
		return "RW"
	case RW | Commute:
		return "RW|COMMUTE"
	case Scratch:
		return "SCRATCH"
	case Redux:
		return "REDUX"
	}
	var parts []string
	for i, name := range []string{"R", "W", "SCRATCH", "REDUX", "COMMUTE"} {
		if m&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return fmt.Sprintf("mode(%s)", strings.Join(parts, "|"))
}
