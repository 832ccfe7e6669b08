package pipeline

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/normals.report/internal/pointcloud"
	"github.com/banshee-data/normals.report/internal/pointcloud/l1neighbors"
	"github.com/banshee-data/normals.report/internal/pointcloud/l2normals"
	"github.com/banshee-data/normals.report/internal/pointcloud/l3orient"
)

// Timings records how long each stage of a recalculation took.
type Timings struct {
	Neighbors time.Duration `json:"neighbors_ns"`
	Estimate  time.Duration `json:"estimate_ns"`
	Orient    time.Duration `json:"orient_ns"`
	Total     time.Duration `json:"total_ns"`
}

// Output is the result of one recalculation.
type Output struct {
	Params      Params
	Graph       pointcloud.NeighborGraph
	Normals     pointcloud.NormalField
	Report      *l2normals.Report
	Orientation l3orient.Result
	// NeighborDiagnostics holds conditions found while building the graph.
	NeighborDiagnostics pointcloud.Diagnostics
	Timings             Timings
}

// Summary is the flat view of an Output used by storage and the API.
type Summary struct {
	Points         int `json:"points"`
	Edges          int `json:"edges"`
	Flips          int `json:"flips"`
	Visited        int `json:"visited"`
	Components     int `json:"components"`
	Degenerate     int `json:"degenerate"`
	LowConfidence  int `json:"low_confidence"`
	MissingEntries int `json:"missing_entries"`
	Coincident     int `json:"coincident"`
}

// Summary counts the outcome of the recalculation.
func (o *Output) Summary() Summary {
	s := Summary{
		Points:     len(o.Normals),
		Edges:      o.Graph.Edges(),
		Flips:      o.Orientation.Flips,
		Visited:    o.Orientation.Visited,
		Components: len(o.Orientation.Components),
	}
	if o.Report != nil {
		s.Degenerate = len(o.Report.Degenerate)
		s.LowConfidence = len(o.Report.LowConfidence)
	}
	s.MissingEntries = o.Orientation.Diagnostics.Count(pointcloud.MissingNeighborEntry)
	s.Coincident = o.NeighborDiagnostics.Count(pointcloud.CoincidentPoint)
	return s
}

// Diagnostics returns neighbour, estimation and orientation diagnostics
// together.
func (o *Output) Diagnostics() pointcloud.Diagnostics {
	out := append(pointcloud.Diagnostics(nil), o.NeighborDiagnostics...)
	if o.Report != nil {
		out = append(out, o.Report.Diagnostics...)
	}
	return append(out, o.Orientation.Diagnostics...)
}

// Recalc builds the neighbour graph, estimates a normal per point and
// orients the field. faces is only read when p.Source is SourceFaces.
func Recalc(cloud pointcloud.Cloud, faces pointcloud.Faces, p Params) (*Output, error) {
	if len(cloud) == 0 {
		return nil, pointcloud.ErrEmptyCloud
	}
	if p.Source == "" {
		p.Source = SourceKNN
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	start := time.Now()
	out := &Output{Params: p}

	graph, diags, err := buildGraph(cloud, faces, p)
	if err != nil {
		return nil, err
	}
	out.Graph = graph
	out.NeighborDiagnostics = diags
	out.Timings.Neighbors = time.Since(start)

	t := time.Now()
	est := &l2normals.Estimator{Workers: p.Workers, LowConfidenceRatio: p.LowConfidenceRatio}
	out.Normals, out.Report = est.EstimateCloud(cloud, graph)
	out.Timings.Estimate = time.Since(t)

	t = time.Now()
	var strategy l3orient.SeedStrategy = l3orient.FixedSeed(p.Seed)
	if p.SeedStrategy == SeedLowestVariation {
		strategy = l3orient.LowestVariationSeed{Estimates: out.Report.Estimates}
	}
	if p.OrientAllComponents {
		out.Orientation, err = l3orient.OrientComponents(graph, out.Normals, strategy)
	} else {
		out.Orientation, err = l3orient.OrientWith(graph, out.Normals, strategy)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to orient normals: %w", err)
	}
	out.Timings.Orient = time.Since(t)
	out.Timings.Total = time.Since(start)

	s := out.Summary()
	pointcloud.Opsf("recalc: source=%s k=%d points=%d edges=%d flips=%d visited=%d degenerate=%d in %v",
		p.Source, p.K, s.Points, s.Edges, s.Flips, s.Visited, s.Degenerate, out.Timings.Total)
	return out, nil
}

func buildGraph(cloud pointcloud.Cloud, faces pointcloud.Faces, p Params) (pointcloud.NeighborGraph, pointcloud.Diagnostics, error) {
	if p.Source == SourceFaces {
		if len(faces) == 0 {
			return nil, nil, fmt.Errorf("%w: neighbor_source %q needs faces", pointcloud.ErrInvalidTopology, SourceFaces)
		}
		graph, err := l1neighbors.BuildFaceAdjacency(faces, len(cloud))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build face adjacency: %w", err)
		}
		return graph, nil, nil
	}
	idx := l1neighbors.BuildFromCloud(cloud, p.MaxLeafSize)
	graph, diags := idx.KNearestGraphDiag(p.K, p.MaxDistance, p.Workers)
	return graph, diags, nil
}

// Segment is one normal drawn as a line from its point.
type Segment struct {
	Start r3.Vec `json:"start"`
	End   r3.Vec `json:"end"`
}

// DefaultSegmentScale is the display length of a unit normal.
const DefaultSegmentScale = 0.01

// Segments returns, for every point, the segment from the point to the
// point plus scale times its normal. Sentinel normals give zero-length
// segments. The result is index-aligned with cloud.
func Segments(cloud pointcloud.Cloud, normals pointcloud.NormalField, scale float64) []Segment {
	if scale == 0 {
		scale = DefaultSegmentScale
	}
	n := min(len(cloud), len(normals))
	out := make([]Segment, n)
	for i := 0; i < n; i++ {
		out[i] = Segment{Start: cloud[i], End: r3.Add(cloud[i], r3.Scale(scale, normals[i]))}
	}
	return out
}
