package l1neighbors

import (
	"fmt"
	"sort"

	"github.com/banshee-data/normals.report/internal/pointcloud"
)

// BuildFaceAdjacency derives the 1-ring edge adjacency of a mesh: every
// vertex of every face loop gains its predecessor and successor in that
// loop. Sets are unioned across faces, deduplicated and sorted ascending,
// so the result is symmetric.
//
// A vertex index outside [0, numPoints) fails with ErrInvalidTopology.
// Pass numPoints < 0 when the cloud size is unknown; negative indices are
// still rejected. Faces with fewer than two vertices contribute nothing.
func BuildFaceAdjacency(faces pointcloud.Faces, numPoints int) (pointcloud.NeighborGraph, error) {
	sets := make(map[int]map[int]struct{})
	link := func(v, n int) {
		if v == n {
			return
		}
		s, ok := sets[v]
		if !ok {
			s = make(map[int]struct{}, 4)
			sets[v] = s
		}
		s[n] = struct{}{}
	}

	for f, loop := range faces {
		for c, v := range loop {
			if v < 0 || (numPoints >= 0 && v >= numPoints) {
				return nil, fmt.Errorf("%w: face %d vertex %d references point %d (cloud has %d points)",
					pointcloud.ErrInvalidTopology, f, c, v, numPoints)
			}
		}
		m := len(loop)
		if m < 2 {
			pointcloud.Diagf("skipping face %d with %d vertices", f, m)
			continue
		}
		for c, v := range loop {
			prev := loop[(c-1+m)%m]
			next := loop[(c+1)%m]
			link(v, prev)
			link(v, next)
		}
	}

	graph := make(pointcloud.NeighborGraph, len(sets))
	for v, s := range sets {
		ns := make([]int, 0, len(s))
		for n := range s {
			ns = append(ns, n)
		}
		sort.Ints(ns)
		graph[v] = ns
	}
	pointcloud.Tracef("face adjacency: %d faces, %d vertices, %d edges", len(faces), graph.Len(), graph.Edges())
	return graph, nil
}
