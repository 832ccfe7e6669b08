package l1neighbors

import (
	"container/heap"
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// indexedPoint is a k-d tree element that remembers its cloud index, so a
// search result can be mapped back to a point id after the tree has
// reordered its backing slice.
type indexedPoint struct {
	id  int
	pos r3.Vec
}

func coord(v r3.Vec, d kdtree.Dim) float64 {
	switch d {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// Compare returns the signed distance of p from the plane through c
// perpendicular to dimension d.
func (p indexedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(indexedPoint)
	return coord(p.pos, d) - coord(q.pos, d)
}

func (p indexedPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance.
func (p indexedPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(indexedPoint)
	return r3.Norm2(r3.Sub(p.pos, q.pos))
}

type indexedPoints []indexedPoint

func (p indexedPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p indexedPoints) Len() int                      { return len(p) }
func (p indexedPoints) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}

// Pivot partitions p along d around a median-of-medians pivot. The choice
// is deterministic, so the same cloud always yields the same tree.
func (p indexedPoints) Pivot(d kdtree.Dim) int {
	a := axis{points: p, dim: d}
	return kdtree.Partition(a, kdtree.MedianOfMedians(a))
}

// axis orders points along one dimension, breaking ties by index.
type axis struct {
	points indexedPoints
	dim    kdtree.Dim
}

func (a axis) Len() int { return len(a.points) }

func (a axis) Less(i, j int) bool {
	ci, cj := coord(a.points[i].pos, a.dim), coord(a.points[j].pos, a.dim)
	if ci != cj {
		return ci < cj
	}
	return a.points[i].id < a.points[j].id
}

func (a axis) Swap(i, j int) { a.points[i], a.points[j] = a.points[j], a.points[i] }

func (a axis) Slice(start, end int) kdtree.SortSlicer {
	a.points = a.points[start:end]
	return a
}

// tieKeeper retains the n best hits ordered by (distance, id), so the
// set kept at the k boundary does not depend on tree traversal order.
// The tree prunes with c*c <= Max().Dist, so every tied candidate is
// offered to Keep.
type tieKeeper struct {
	heap []kdtree.ComparableDist // max-heap on (Dist, id)
}

func newTieKeeper(n int) *tieKeeper {
	k := &tieKeeper{heap: make([]kdtree.ComparableDist, 1, n)}
	k.heap[0].Dist = math.Inf(1)
	return k
}

func hitID(c kdtree.ComparableDist) int {
	if c.Comparable == nil {
		return math.MaxInt // the sentinel ranks after every real point
	}
	return c.Comparable.(indexedPoint).id
}

// worse reports whether a ranks after b.
func worse(a, b kdtree.ComparableDist) bool {
	if a.Dist != b.Dist {
		return a.Dist > b.Dist
	}
	return hitID(a) > hitID(b)
}

func (k *tieKeeper) Keep(c kdtree.ComparableDist) {
	if !worse(k.heap[0], c) {
		return
	}
	if len(k.heap) == cap(k.heap) {
		k.heap[0] = c
		heap.Fix(k, 0)
		return
	}
	heap.Push(k, c)
}

func (k *tieKeeper) Max() kdtree.ComparableDist { return k.heap[0] }
func (k *tieKeeper) Len() int                   { return len(k.heap) }
func (k *tieKeeper) Less(i, j int) bool         { return worse(k.heap[i], k.heap[j]) }
func (k *tieKeeper) Swap(i, j int)              { k.heap[i], k.heap[j] = k.heap[j], k.heap[i] }
func (k *tieKeeper) Push(x any)                 { k.heap = append(k.heap, x.(kdtree.ComparableDist)) }
func (k *tieKeeper) Pop() any {
	last := k.heap[len(k.heap)-1]
	k.heap = k.heap[:len(k.heap)-1]
	return last
}
