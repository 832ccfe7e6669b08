package pointcloud

import (
	"fmt"
	"sort"
)

// NeighborGraph maps a point index to its neighbour indices. A point never
// lists itself, and a missing key means the point has no known neighbours.
// Spatial graphs keep nearest-first order and need not be symmetric; face
// graphs are symmetric and sorted ascending.
type NeighborGraph map[int][]int

// Neighbors returns the neighbour list of id, or nil when id has no entry.
func (g NeighborGraph) Neighbors(id int) []int {
	return g[id]
}

// Has reports whether id has an entry in the graph.
func (g NeighborGraph) Has(id int) bool {
	_, ok := g[id]
	return ok
}

// Len returns the number of points with an entry.
func (g NeighborGraph) Len() int {
	return len(g)
}

// Edges returns the number of directed edges.
func (g NeighborGraph) Edges() int {
	total := 0
	for _, ns := range g {
		total += len(ns)
	}
	return total
}

// Keys returns the indices with an entry, ascending.
func (g NeighborGraph) Keys() []int {
	keys := make([]int, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// IsSymmetric reports whether every edge i→j has a matching j→i.
func (g NeighborGraph) IsSymmetric() bool {
	for i, ns := range g {
		for _, j := range ns {
			if !containsInt(g[j], i) {
				return false
			}
		}
	}
	return true
}

// Validate checks the graph against a cloud of n points: every key and
// neighbour must be in range and no point may list itself.
func (g NeighborGraph) Validate(n int) error {
	for _, i := range g.Keys() {
		if i < 0 || i >= n {
			return fmt.Errorf("%w: graph key %d outside [0,%d)", ErrInvalidTopology, i, n)
		}
		for _, j := range g[i] {
			if j < 0 || j >= n {
				return fmt.Errorf("%w: neighbour %d of point %d outside [0,%d)", ErrInvalidTopology, j, i, n)
			}
			if j == i {
				return fmt.Errorf("%w: point %d lists itself", ErrInvalidTopology, i)
			}
		}
	}
	return nil
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
