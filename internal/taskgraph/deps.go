package taskgraph

// addDependencies links t behind the tasks of h it conflicts with and records
// t as the newest access of h. Runs under rt.mu.
//
// A handle keeps the tasks of its last write phase (writers) and the readers
// inserted since. A write phase is either one W/RW task or a group of
// consecutive commute (or redux) tasks, which share the dependencies the
// group started with (groupDeps) instead of depending on each other.
func (rt *Runtime) addDependencies(t *Task, h *Handle, mode AccessMode) {
	switch {
	case mode == Scratch:
		return
	case mode == R:
		rt.dependOnAll(t, h.writers)
		h.readers = append(pruneDone(h.readers), t)
		h.groupMode = 0
	case mode == Redux || mode&Commute != 0:
		if h.groupMode != mode {
			h.groupDeps = append(pruneDone(h.writers), pruneDone(h.readers)...)
			h.writers = nil
			h.readers = nil
			h.groupMode = mode
		}
		rt.dependOnAll(t, h.groupDeps)
		h.writers = append(pruneDone(h.writers), t)
	default:
		rt.dependOnAll(t, h.writers)
		rt.dependOnAll(t, h.readers)
		h.writers = []*Task{t}
		h.readers = nil
		h.groupMode = 0
		h.groupDeps = nil
	}
}

func (rt *Runtime) dependOnAll(t *Task, preds []*Task) {
	for _, p := range preds {
		dependOn(t, p)
	}
}

// dependOn adds the edge p -> t once.
func dependOn(t, p *Task) {
	if p == t || p.done {
		return
	}
	// Edges of one insertion are added back to back, so a duplicate is
	// always the last successor of p.
	if n := len(p.successors); n > 0 && p.successors[n-1] == t {
		return
	}
	p.successors = append(p.successors, t)
	t.remaining++
}

// pruneDone drops completed tasks in place.
func pruneDone(ts []*Task) []*Task {
	out := ts[:0]
	for _, t := range ts {
		if !t.done {
			out = append(out, t)
		}
	}
	for i := len(out); i < len(ts); i++ {
		ts[i] = nil
	}
	return out
}
