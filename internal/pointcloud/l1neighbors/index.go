package l1neighbors

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/normals.report/internal/pointcloud"
)

// DefaultMaxLeafSize is the leaf bucket size used when the caller passes
// zero. Clouds no larger than one leaf are searched exhaustively.
const DefaultMaxLeafSize = 10

// Index answers nearest-neighbour queries over a static snapshot of point
// positions. It is safe for concurrent queries.
type Index struct {
	points      pointcloud.Cloud
	tree        *kdtree.Tree // nil when the whole cloud fits in one leaf
	maxLeafSize int
}

// Build validates points (N×3) and indexes them.
func Build(points [][]float64, maxLeafSize int) (*Index, error) {
	cloud, err := pointcloud.FromRows(points)
	if err != nil {
		return nil, err
	}
	return BuildFromCloud(cloud, maxLeafSize), nil
}

// BuildFromCloud indexes a validated cloud. The positions are copied, so
// later edits to cloud do not affect the index.
func BuildFromCloud(cloud pointcloud.Cloud, maxLeafSize int) *Index {
	if maxLeafSize <= 0 {
		maxLeafSize = DefaultMaxLeafSize
	}
	ix := &Index{
		points:      append(pointcloud.Cloud(nil), cloud...),
		maxLeafSize: maxLeafSize,
	}
	if len(cloud) > maxLeafSize {
		elems := make(indexedPoints, len(cloud))
		for i, p := range cloud {
			elems[i] = indexedPoint{id: i, pos: p}
		}
		ix.tree = kdtree.New(elems, false)
	}
	pointcloud.Tracef("built index over %d points (leaf=%d, tree=%t)", len(cloud), maxLeafSize, ix.tree != nil)
	return ix
}

// Len returns the number of indexed points.
func (ix *Index) Len() int { return len(ix.points) }

// MaxLeafSize returns the effective leaf size.
func (ix *Index) MaxLeafSize() int { return ix.maxLeafSize }

// Point returns the indexed position of id.
func (ix *Index) Point(id int) r3.Vec { return ix.points[id] }

// candidate is one search hit with its squared distance.
type candidate struct {
	id    int
	dist2 float64
}

// QueryKNearest returns up to k neighbour indices of pointID, nearest first.
// pointID itself is never part of the result, and neither is any other
// point at exactly the same position (see QueryKNearestDiag).
// maxDistance <= 0 or +Inf means unbounded; when fewer than k points lie
// within maxDistance the shorter list is returned. Equidistant points are
// ordered by index. An out-of-range pointID or k <= 0 yields nil.
func (ix *Index) QueryKNearest(pointID, k int, maxDistance float64) []int {
	ids, _ := ix.QueryKNearestDiag(pointID, k, maxDistance)
	return ids
}

// QueryKNearestDiag is QueryKNearest that also returns a CoincidentPoint
// diagnostic for every skipped point sharing the query position. The
// search widens past skipped points so up to k distinct neighbours are
// still returned.
func (ix *Index) QueryKNearestDiag(pointID, k int, maxDistance float64) ([]int, pointcloud.Diagnostics) {
	if k <= 0 || !ix.points.Contains(pointID) {
		return nil, nil
	}

	limit := math.Inf(1)
	if maxDistance > 0 && !math.IsInf(maxDistance, 1) {
		limit = maxDistance * maxDistance
	}

	var (
		out   []int
		diags pointcloud.Diagnostics
	)
	// One extra slot absorbs the query point itself.
	for n := k + 1; ; n *= 2 {
		hits := ix.search(ix.points[pointID], n)
		out = make([]int, 0, k)
		diags = nil
		skipped := 0
		for _, h := range hits {
			if h.id == pointID {
				continue
			}
			if h.dist2 > limit || len(out) == k {
				break
			}
			if h.dist2 == 0 {
				skipped++
				continue
			}
			out = append(out, h.id)
		}
		// Done when k neighbours were found, the cloud is exhausted, or
		// the radius cut the list short.
		if len(out) == k || len(hits) < n || n >= len(ix.points) || (len(hits) > 0 && hits[len(hits)-1].dist2 > limit) {
			for _, h := range hits {
				if h.id != pointID && h.dist2 == 0 {
					diags.Add(pointcloud.CoincidentPoint, pointID, "coincides with %d", h.id)
				}
			}
			break
		}
		pointcloud.Tracef("knn point=%d skipped %d coincident, widening to %d", pointID, skipped, 2*n)
	}
	pointcloud.Tracef("knn point=%d k=%d found=%d", pointID, k, len(out))
	return out, diags
}

// search returns the n nearest candidates to q ordered by (distance, id).
// Both paths select the same set, so the leaf size never changes results.
func (ix *Index) search(q r3.Vec, n int) []candidate {
	var hits []candidate
	if ix.tree == nil {
		hits = make([]candidate, len(ix.points))
		for i, p := range ix.points {
			hits[i] = candidate{id: i, dist2: r3.Norm2(r3.Sub(p, q))}
		}
	} else {
		keep := newTieKeeper(n)
		ix.tree.NearestSet(keep, indexedPoint{id: -1, pos: q})
		hits = make([]candidate, 0, len(keep.heap))
		for _, c := range keep.heap {
			if c.Comparable == nil {
				continue
			}
			hits = append(hits, candidate{id: hitID(c), dist2: c.Dist})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist2 != hits[j].dist2 {
			return hits[i].dist2 < hits[j].dist2
		}
		return hits[i].id < hits[j].id
	})
	if len(hits) > n {
		hits = hits[:n]
	}
	return hits
}

// KNearestGraph queries every point and returns the resulting neighbour
// graph. Points with no qualifying neighbour get no entry. The per-point
// queries run on up to workers goroutines; the graph does not depend on
// the worker count.
func (ix *Index) KNearestGraph(k int, maxDistance float64, workers int) pointcloud.NeighborGraph {
	graph, _ := ix.KNearestGraphDiag(k, maxDistance, workers)
	return graph
}

// KNearestGraphDiag is KNearestGraph plus the coincident point
// diagnostics of every query, in point order.
func (ix *Index) KNearestGraphDiag(k int, maxDistance float64, workers int) (pointcloud.NeighborGraph, pointcloud.Diagnostics) {
	lists := make([][]int, len(ix.points))
	perPoint := make([]pointcloud.Diagnostics, len(ix.points))
	pointcloud.ForEachChunk(len(ix.points), workers, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			lists[i], perPoint[i] = ix.QueryKNearestDiag(i, k, maxDistance)
		}
	})

	graph := make(pointcloud.NeighborGraph, len(lists))
	var diags pointcloud.Diagnostics
	for i, ns := range lists {
		if len(ns) > 0 {
			graph[i] = ns
		}
		diags = append(diags, perPoint[i]...)
	}
	if n := len(diags); n > 0 {
		pointcloud.Opsf("knn graph: skipped %d coincident neighbours", n)
	}
	return graph, diags
}

// CloudNeighbors builds an index over points and returns the k nearest
// neighbour graph with an unbounded search radius.
func CloudNeighbors(points [][]float64, k, maxLeafSize int) (pointcloud.NeighborGraph, error) {
	ix, err := Build(points, maxLeafSize)
	if err != nil {
		return nil, err
	}
	return ix.KNearestGraph(k, 0, 0), nil
}
