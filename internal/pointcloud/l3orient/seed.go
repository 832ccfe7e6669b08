package l3orient

import (
	"github.com/banshee-data/normals.report/internal/pointcloud"
	"github.com/banshee-data/normals.report/internal/pointcloud/l2normals"
)

// SeedStrategy picks the starting point of a propagation. Implementations
// must be deterministic.
type SeedStrategy interface {
	SelectSeed(graph pointcloud.NeighborGraph, normals pointcloud.NormalField) int
}

// FixedSeed always starts from the same index.
type FixedSeed int

// SelectSeed implements SeedStrategy.
func (s FixedSeed) SelectSeed(pointcloud.NeighborGraph, pointcloud.NormalField) int {
	return int(s)
}

// LowestVariationSeed starts from the flattest usable point: the
// non-degenerate estimate with the smallest surface variation that has at
// least one neighbour, lowest index on ties. It falls back to 0.
type LowestVariationSeed struct {
	Estimates []l2normals.PointEstimate
}

// SelectSeed implements SeedStrategy.
func (s LowestVariationSeed) SelectSeed(graph pointcloud.NeighborGraph, normals pointcloud.NormalField) int {
	best := -1
	for i, est := range s.Estimates {
		if i >= len(normals) {
			break
		}
		if est.Degenerate || normals.IsSentinel(i) || len(graph[i]) == 0 {
			continue
		}
		if best < 0 || est.SurfaceVariation < s.Estimates[best].SurfaceVariation {
			best = i
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

func seedFor(strategy SeedStrategy, graph pointcloud.NeighborGraph, normals pointcloud.NormalField) int {
	if strategy == nil {
		return 0
	}
	return strategy.SelectSeed(graph, normals)
}
