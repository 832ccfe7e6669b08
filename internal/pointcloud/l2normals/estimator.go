package l2normals

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/normals.report/internal/pointcloud"
)

// DefaultLowConfidenceRatio is the relative eigenvalue gap below which the
// smallest eigenvalue is considered not separated from the next one.
const DefaultLowConfidenceRatio = 1e-6

// zeroScatter is the largest eigenvalue at which the scatter matrix is
// treated as numerically zero.
const zeroScatter = 1e-18

// PointEstimate is the plane fit for one point.
type PointEstimate struct {
	Normal r3.Vec // unit length, or the zero sentinel when Degenerate
	// Eigenvalues of the scatter matrix, ascending.
	Eigenvalues [3]float64
	// SurfaceVariation is λ0/(λ0+λ1+λ2): 0 on a perfect plane, up to 1/3
	// for isotropic scatter.
	SurfaceVariation float64
	// Used counts neighbours that contributed to the scatter matrix.
	Used          int
	Degenerate    bool
	LowConfidence bool
	Diagnostics   pointcloud.Diagnostics
}

// Estimator fits per-point normals.
type Estimator struct {
	// Workers bounds the goroutines used by EstimateCloud; <= 0 uses
	// GOMAXPROCS. The result never depends on it.
	Workers int
	// LowConfidenceRatio overrides DefaultLowConfidenceRatio when > 0.
	LowConfidenceRatio float64
}

// NewEstimator returns an Estimator with default settings.
func NewEstimator() *Estimator {
	return &Estimator{LowConfidenceRatio: DefaultLowConfidenceRatio}
}

func (e *Estimator) ratio() float64 {
	if e == nil || e.LowConfidenceRatio <= 0 {
		return DefaultLowConfidenceRatio
	}
	return e.LowConfidenceRatio
}

// EstimatePoint fits a plane to pointID and its neighbours.
//
// The scatter matrix is C = Σ (p_j − p_i)(p_j − p_i)ᵗ over the neighbours
// j, taken about the query point p_i rather than the neighbourhood
// centroid. The normal is the unit eigenvector of the smallest eigenvalue
// of C (first minimal index on ties).
//
// Entries equal to pointID, or outside the cloud, are skipped with a
// diagnostic. With no usable neighbour the zero sentinel is returned and
// the estimate is marked Degenerate. A rank-deficient C (collinear or
// coincident neighbours) still yields a unit normal, marked LowConfidence.
func (e *Estimator) EstimatePoint(cloud pointcloud.Cloud, pointID int, neighborIDs []int) PointEstimate {
	var est PointEstimate
	if !cloud.Contains(pointID) {
		est.Degenerate = true
		est.Diagnostics.Add(pointcloud.DegenerateNeighborhood, pointID, "point outside cloud of %d", len(cloud))
		return est
	}

	origin := cloud[pointID]
	var c00, c01, c02, c11, c12, c22 float64
	for _, j := range neighborIDs {
		if j == pointID {
			est.Diagnostics.Add(pointcloud.SelfReference, pointID, "listed as its own neighbour")
			continue
		}
		if !cloud.Contains(j) {
			est.Diagnostics.Add(pointcloud.OutOfRangeNeighbor, pointID, "neighbour %d outside cloud of %d", j, len(cloud))
			continue
		}
		d := r3.Sub(cloud[j], origin)
		c00 += d.X * d.X
		c01 += d.X * d.Y
		c02 += d.X * d.Z
		c11 += d.Y * d.Y
		c12 += d.Y * d.Z
		c22 += d.Z * d.Z
		est.Used++
	}

	if est.Used == 0 {
		est.Degenerate = true
		est.Diagnostics.Add(pointcloud.DegenerateNeighborhood, pointID, "no usable neighbours (%d listed)", len(neighborIDs))
		return est
	}

	cov := mat.NewSymDense(3, []float64{
		c00, c01, c02,
		c01, c11, c12,
		c02, c12, c22,
	})

	var es mat.EigenSym
	if !es.Factorize(cov, true) {
		est.Degenerate = true
		est.Diagnostics.Add(pointcloud.DegenerateNeighborhood, pointID, "eigen decomposition did not converge")
		return est
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	smallest := 0
	for i := 1; i < len(vals); i++ {
		if vals[i] < vals[smallest] {
			smallest = i
		}
	}
	normal := r3.Vec{X: vecs.At(0, smallest), Y: vecs.At(1, smallest), Z: vecs.At(2, smallest)}
	if !isFinite(normal) || r3.Norm(normal) == 0 {
		est.Degenerate = true
		est.Diagnostics.Add(pointcloud.DegenerateNeighborhood, pointID, "no finite eigenvector")
		return est
	}
	est.Normal = r3.Unit(normal)
	copy(est.Eigenvalues[:], vals)

	// EigenSym returns ascending values; clamp round-off below zero.
	for i, v := range est.Eigenvalues {
		if v < 0 {
			est.Eigenvalues[i] = 0
		}
	}
	sum := est.Eigenvalues[0] + est.Eigenvalues[1] + est.Eigenvalues[2]
	if sum > 0 {
		est.SurfaceVariation = est.Eigenvalues[0] / sum
	}

	largest := est.Eigenvalues[2]
	gap := est.Eigenvalues[1] - est.Eigenvalues[0]
	if largest <= zeroScatter || gap <= e.ratio()*largest {
		est.LowConfidence = true
		est.Diagnostics.Add(pointcloud.LowConfidence, pointID,
			"eigenvalues %.3g %.3g %.3g not separated", est.Eigenvalues[0], est.Eigenvalues[1], est.Eigenvalues[2])
	}
	return est
}

// EstimatePointNormal fits one point with the default estimator.
func EstimatePointNormal(cloud pointcloud.Cloud, pointID int, neighborIDs []int) PointEstimate {
	return NewEstimator().EstimatePoint(cloud, pointID, neighborIDs)
}

// isFinite reports whether every component of v is a finite number.
func isFinite(v r3.Vec) bool {
	return !math.IsNaN(v.X+v.Y+v.Z) && !math.IsInf(v.X+v.Y+v.Z, 0)
}
