package tensor

import "fmt"

// Distribution maps every tile, by linear grid number, to its owner rank.
type Distribution []int

// BlockCyclic tiles the grid with a mesh of ranks: the tile at grid index g
// belongs to rank start + row-major(g mod mesh), modulo size.
func BlockCyclic(grid, mesh []int64, start, size int) (Distribution, error) {
	if len(grid) != len(mesh) {
		return nil, fmt.Errorf("grid %v and mesh %v differ in rank", grid, mesh)
	}
	if size < 1 {
		return nil, fmt.Errorf("world size %d must be positive", size)
	}
	n := int64(1)
	for i, m := range mesh {
		if m < 1 {
			return nil, fmt.Errorf("mesh %v must be positive", mesh)
		}
		if grid[i] < 1 {
			return nil, fmt.Errorf("grid %v must be positive", grid)
		}
		n *= grid[i]
	}
	d := make(Distribution, n)
	index := make([]int64, len(grid))
	for i := range d {
		var rank int64
		for a := range index {
			rank = rank*mesh[a] + index[a]%mesh[a]
		}
		d[i] = int((int64(start) + rank) % int64(size))
		for a := len(index) - 1; a >= 0; a-- {
			index[a]++
			if index[a] < grid[a] {
				break
			}
			index[a] = 0
		}
	}
	return d, nil
}

// SingleNode puts all n tiles on rank.
func SingleNode(n int64, rank int) Distribution {
	d := make(Distribution, n)
	for i := range d {
		d[i] = rank
	}
	return d
}
