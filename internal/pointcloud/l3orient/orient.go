package l3orient

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/normals.report/internal/pointcloud"
	"github.com/banshee-data/normals.report/internal/pointcloud/l1neighbors"
)

// Component summarises one traversal from one seed.
type Component struct {
	Seed    int `json:"seed"`
	Flips   int `json:"flips"`
	Visited int `json:"visited"`
}

// Result describes an orientation pass.
type Result struct {
	// Flips is the total number of sign negations.
	Flips int
	// Visited counts points reached from any seed, seeds included.
	Visited int
	// Components has one entry per seed, in traversal order.
	Components []Component
	// Order lists points in the order they were visited.
	Order []int
	// Parent[i] is the point i was discovered from, or -1 for seeds and
	// unreached points.
	Parent      []int
	Diagnostics pointcloud.Diagnostics
}

// Reached reports whether point i was visited.
func (r *Result) Reached(i int) bool {
	if i < 0 || i >= len(r.Parent) {
		return false
	}
	if r.Parent[i] >= 0 {
		return true
	}
	for _, c := range r.Components {
		if c.Seed == i {
			return true
		}
	}
	return false
}

// propagator holds the per-call traversal state. Nothing survives the call.
type propagator struct {
	graph   pointcloud.NeighborGraph
	normals pointcloud.NormalField
	visited []bool
	// anchor[i] is the nearest point on i's discovery path (i included)
	// with a usable normal, or -1. Degenerate points relay their
	// ancestor's orientation instead of blocking it.
	anchor []int
	result Result
}

func newPropagator(graph pointcloud.NeighborGraph, normals pointcloud.NormalField) *propagator {
	n := len(normals)
	p := &propagator{
		graph:   graph,
		normals: normals,
		visited: make([]bool, n),
		anchor:  make([]int, n),
	}
	p.result.Parent = make([]int, n)
	for i := range p.result.Parent {
		p.result.Parent[i] = -1
		p.anchor[i] = -1
	}
	return p
}

// run propagates from seed until its queue drains.
func (p *propagator) run(seed int) {
	comp := Component{Seed: seed}
	p.visited[seed] = true
	if !p.normals.IsSentinel(seed) {
		p.anchor[seed] = seed
	}
	queue := []int{seed}
	p.result.Order = append(p.result.Order, seed)
	comp.Visited++

	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]

		neighbors, ok := p.graph[c]
		if !ok {
			p.result.Diagnostics.Add(pointcloud.MissingNeighborEntry, c, "no neighbour entry, traversal does not continue through it")
			continue
		}
		for _, n := range neighbors {
			if n < 0 || n >= len(p.normals) {
				p.result.Diagnostics.Add(pointcloud.OutOfRangeNeighbor, c, "neighbour %d outside field of %d", n, len(p.normals))
				continue
			}
			if p.visited[n] {
				continue
			}
			p.visited[n] = true
			p.result.Parent[n] = c
			p.result.Order = append(p.result.Order, n)
			comp.Visited++
			queue = append(queue, n)

			ref := p.anchor[c]
			if p.normals.IsSentinel(n) {
				p.anchor[n] = ref
				continue
			}
			p.anchor[n] = n
			if ref >= 0 && r3.Dot(p.normals[ref], p.normals[n]) < 0 {
				p.normals.Flip(n)
				comp.Flips++
			}
		}
	}

	p.result.Flips += comp.Flips
	p.result.Visited += comp.Visited
	p.result.Components = append(p.result.Components, comp)
	pointcloud.Tracef("orient: seed=%d visited=%d flips=%d", seed, comp.Visited, comp.Flips)
}

// Orient makes the normals of seed's connected component agree in sign by
// breadth-first propagation over graph, negating normals in place. A point
// is compared once, when it is first discovered, against the point it was
// discovered from; already visited points are never flipped again, so the
// flip count equals the number of points whose estimate disagreed. Points
// outside seed's component keep their sign.
//
// An empty field is a no-op. A seed outside the field fails with
// ErrInvalidSeed.
func Orient(graph pointcloud.NeighborGraph, normals pointcloud.NormalField, seed int) (Result, error) {
	if len(normals) == 0 {
		return Result{}, nil
	}
	if seed < 0 || seed >= len(normals) {
		return Result{}, fmt.Errorf("%w: seed %d outside field of %d", pointcloud.ErrInvalidSeed, seed, len(normals))
	}
	p := newPropagator(graph, normals)
	p.run(seed)
	return p.result, nil
}

// OrientWith is Orient with the seed chosen by strategy. A nil strategy
// uses FixedSeed(0).
func OrientWith(graph pointcloud.NeighborGraph, normals pointcloud.NormalField, strategy SeedStrategy) (Result, error) {
	if len(normals) == 0 {
		return Result{}, nil
	}
	return Orient(graph, normals, seedFor(strategy, graph, normals))
}

// OrientComponents orients the component of the strategy's seed, then
// re-seeds every component not yet reached, lowest index first. Points
// without a neighbour entry are not used as seeds.
func OrientComponents(graph pointcloud.NeighborGraph, normals pointcloud.NormalField, strategy SeedStrategy) (Result, error) {
	if len(normals) == 0 {
		return Result{}, nil
	}
	seed := seedFor(strategy, graph, normals)
	if seed < 0 || seed >= len(normals) {
		return Result{}, fmt.Errorf("%w: seed %d outside field of %d", pointcloud.ErrInvalidSeed, seed, len(normals))
	}

	p := newPropagator(graph, normals)
	p.run(seed)
	for i := range normals {
		if p.visited[i] || len(graph[i]) == 0 {
			continue
		}
		p.run(i)
	}
	if len(p.result.Components) > 1 {
		pointcloud.Opsf("orient: %d components, signs agree within each component only", len(p.result.Components))
	}
	return p.result, nil
}

// OrientFromFaces orients normals over the 1-ring adjacency of a mesh.
func OrientFromFaces(faces pointcloud.Faces, normals pointcloud.NormalField, seed int) (Result, error) {
	graph, err := l1neighbors.BuildFaceAdjacency(faces, len(normals))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build face adjacency: %w", err)
	}
	return Orient(graph, normals, seed)
}

// DisagreeingEdges counts graph edges whose endpoint normals point in
// opposite directions. Edges touching a sentinel or an out-of-range index
// are ignored.
func DisagreeingEdges(graph pointcloud.NeighborGraph, normals pointcloud.NormalField) int {
	count := 0
	for i, ns := range graph {
		if i < 0 || i >= len(normals) {
			continue
		}
		for _, j := range ns {
			if j < 0 || j >= len(normals) {
				continue
			}
			if r3.Dot(normals[i], normals[j]) < 0 {
				count++
			}
		}
	}
	return count
}
