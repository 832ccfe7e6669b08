package pipeline

import (
	"fmt"

	"github.com/banshee-data/normals.report/internal/pointcloud/l1neighbors"
	"github.com/banshee-data/normals.report/internal/pointcloud/l2normals"
)

// Source selects how the neighbour graph is built.
type Source string

const (
	// SourceKNN uses the k nearest neighbours of every point.
	SourceKNN Source = "knn"
	// SourceFaces uses the 1-ring adjacency of the mesh faces.
	SourceFaces Source = "faces"
)

// Seed strategy names accepted by Params.SeedStrategy.
const (
	SeedFixed           = "fixed"
	SeedLowestVariation = "lowest_variation"
)

// Params are the knobs a viewer or CLI can change between recalculations.
type Params struct {
	K            int     `json:"k_neighbors"`
	MaxDistance  float64 `json:"max_distance"` // <= 0 means unbounded
	MaxLeafSize  int     `json:"max_leaf_size"`
	Source       Source  `json:"neighbor_source"`
	Seed         int     `json:"seed"`
	SeedStrategy string  `json:"seed_strategy"`
	// OrientAllComponents re-seeds every component the first seed does
	// not reach.
	OrientAllComponents bool    `json:"orient_all_components"`
	Workers             int     `json:"workers"`
	LowConfidenceRatio  float64 `json:"low_confidence_ratio"`
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{
		K:                  5,
		MaxLeafSize:        l1neighbors.DefaultMaxLeafSize,
		Source:             SourceKNN,
		SeedStrategy:       SeedFixed,
		LowConfidenceRatio: l2normals.DefaultLowConfidenceRatio,
	}
}

// Validate checks that the parameters describe a runnable configuration.
func (p Params) Validate() error {
	switch p.Source {
	case SourceKNN:
		if p.K <= 0 {
			return fmt.Errorf("k_neighbors must be positive, got %d", p.K)
		}
	case SourceFaces:
	default:
		return fmt.Errorf("unknown neighbor_source %q (want %q or %q)", p.Source, SourceKNN, SourceFaces)
	}
	switch p.SeedStrategy {
	case "", SeedFixed, SeedLowestVariation:
	default:
		return fmt.Errorf("unknown seed_strategy %q (want %q or %q)", p.SeedStrategy, SeedFixed, SeedLowestVariation)
	}
	if p.Seed < 0 {
		return fmt.Errorf("seed must be non-negative, got %d", p.Seed)
	}
	if p.MaxDistance < 0 {
		return fmt.Errorf("max_distance must be non-negative, got %g", p.MaxDistance)
	}
	if p.LowConfidenceRatio < 0 {
		return fmt.Errorf("low_confidence_ratio must be non-negative, got %g", p.LowConfidenceRatio)
	}
	return nil
}
