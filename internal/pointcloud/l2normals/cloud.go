package l2normals

import (
	"github.com/banshee-data/normals.report/internal/pointcloud"
)

// Report summarises a cloud-wide estimation.
type Report struct {
	// Estimates is index-aligned with the cloud.
	Estimates     []PointEstimate
	Degenerate    []int
	LowConfidence []int
	Diagnostics   pointcloud.Diagnostics
}

// SurfaceVariation returns the per-point surface variation. Degenerate
// points report -1 so callers can tell them apart from flat ones.
func (r *Report) SurfaceVariation() []float64 {
	out := make([]float64, len(r.Estimates))
	for i, est := range r.Estimates {
		if est.Degenerate {
			out[i] = -1
			continue
		}
		out[i] = est.SurfaceVariation
	}
	return out
}

// EstimateCloud fits a normal for every point of the cloud using its
// entry in graph; points without an entry get the zero sentinel. Points
// are independent, so the work is spread over e.Workers goroutines with
// one output slot per index.
func (e *Estimator) EstimateCloud(cloud pointcloud.Cloud, graph pointcloud.NeighborGraph) (pointcloud.NormalField, *Report) {
	normals := pointcloud.NewNormalField(len(cloud))
	report := &Report{Estimates: make([]PointEstimate, len(cloud))}

	workers := 0
	if e != nil {
		workers = e.Workers
	}
	pointcloud.ForEachChunk(len(cloud), workers, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			est := e.EstimatePoint(cloud, i, graph[i])
			normals[i] = est.Normal
			report.Estimates[i] = est
		}
	})

	for i, est := range report.Estimates {
		if est.Degenerate {
			report.Degenerate = append(report.Degenerate, i)
		}
		if est.LowConfidence {
			report.LowConfidence = append(report.LowConfidence, i)
		}
		report.Diagnostics = append(report.Diagnostics, est.Diagnostics...)
	}

	if n := len(report.Degenerate); n > 0 {
		pointcloud.Opsf("normal estimation: %d of %d points degenerate, %d low confidence",
			n, len(cloud), len(report.LowConfidence))
	}
	return normals, report
}

// EstimateCloudNormals fits every point with the default estimator.
func EstimateCloudNormals(cloud pointcloud.Cloud, graph pointcloud.NeighborGraph) (pointcloud.NormalField, *Report) {
	return NewEstimator().EstimateCloud(cloud, graph)
}
