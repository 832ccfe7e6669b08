package monitor

import (
	"net/http"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/normals.report/internal/pointcloud/pipeline"
)

// VariationStats summarises the surface variation of the non-degenerate
// points of one recalculation.
type VariationStats struct {
	Count      int              `json:"count"`
	Degenerate int              `json:"degenerate"`
	Mean       float64          `json:"mean"`
	StdDev     float64          `json:"stddev"`
	Min        float64          `json:"min"`
	Max        float64          `json:"max"`
	P50        float64          `json:"p50"`
	P90        float64          `json:"p90"`
	P99        float64          `json:"p99"`
	Summary    pipeline.Summary `json:"summary"`
}

// variationValues returns the sorted surface variation of the
// non-degenerate points.
func variationValues(out *pipeline.Output) []float64 {
	var values []float64
	for _, est := range out.Report.Estimates {
		if est.Degenerate {
			continue
		}
		// Rounding can push the smallest eigenvalue just below zero.
		values = append(values, max(est.SurfaceVariation, 0))
	}
	sort.Float64s(values)
	return values
}

// ComputeVariationStats builds VariationStats for out.
func ComputeVariationStats(out *pipeline.Output) VariationStats {
	values := variationValues(out)
	vs := VariationStats{
		Count:      len(values),
		Degenerate: len(out.Report.Degenerate),
		Summary:    out.Summary(),
	}
	if len(values) == 0 {
		return vs
	}
	vs.Min = values[0]
	vs.Max = values[len(values)-1]
	if len(values) == 1 {
		vs.Mean = values[0]
	} else {
		vs.Mean, vs.StdDev = stat.MeanStdDev(values, nil)
	}
	vs.P50 = stat.Quantile(0.5, stat.Empirical, values, nil)
	vs.P90 = stat.Quantile(0.9, stat.Empirical, values, nil)
	vs.P99 = stat.Quantile(0.99, stat.Empirical, values, nil)
	return vs
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	out, err := s.latest()
	if err != nil {
		s.writeJSONError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, ComputeVariationStats(out))
}
