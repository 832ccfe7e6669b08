package pipeline

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/normals.report/internal/pointcloud"
	"github.com/banshee-data/normals.report/internal/pointcloud/l3orient"
)

// SweepPoint is the outcome of one recalculation in a parameter sweep.
type SweepPoint struct {
	K                int           `json:"k"`
	MaxDistance      float64       `json:"max_distance"`
	Summary          Summary       `json:"summary"`
	MeanVariation    float64       `json:"mean_variation"`
	StdDevVariation  float64       `json:"stddev_variation"`
	DisagreeingEdges int           `json:"disagreeing_edges"`
	Duration         time.Duration `json:"duration_ns"`
}

// SweepK recalculates the cloud once per k, keeping every other parameter
// from base. Runs are sequential so timings are comparable.
func SweepK(cloud pointcloud.Cloud, faces pointcloud.Faces, base Params, ks []int) ([]SweepPoint, error) {
	points := make([]SweepPoint, 0, len(ks))
	for _, k := range ks {
		p := base
		p.K = k
		out, err := Recalc(cloud, faces, p)
		if err != nil {
			return nil, fmt.Errorf("k=%d: %w", k, err)
		}
		points = append(points, sweepPoint(out))
	}
	return points, nil
}

func sweepPoint(out *Output) SweepPoint {
	sp := SweepPoint{
		K:                out.Params.K,
		MaxDistance:      out.Params.MaxDistance,
		Summary:          out.Summary(),
		DisagreeingEdges: l3orient.DisagreeingEdges(out.Graph, out.Normals),
		Duration:         out.Timings.Total,
	}
	var values []float64
	for _, v := range out.Report.SurfaceVariation() {
		if v >= 0 {
			values = append(values, v)
		}
	}
	switch {
	case len(values) == 1:
		sp.MeanVariation = values[0]
	case len(values) > 1:
		sp.MeanVariation, sp.StdDevVariation = stat.MeanStdDev(values, nil)
	}
	return sp
}
