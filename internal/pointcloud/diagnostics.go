package pointcloud

import "fmt"

// DiagnosticKind classifies a recoverable per-point condition.
type DiagnosticKind string

const (
	// DegenerateNeighborhood: no usable neighbours; the zero sentinel was
	// returned.
	DegenerateNeighborhood DiagnosticKind = "degenerate_neighborhood"
	// LowConfidence: the plane fit is rank deficient (collinear or
	// coincident neighbours) and the smallest eigenvalue is not separated.
	LowConfidence DiagnosticKind = "low_confidence"
	// SelfReference: a point appeared in its own neighbour list.
	SelfReference DiagnosticKind = "self_reference"
	// OutOfRangeNeighbor: a neighbour index outside the cloud was ignored.
	OutOfRangeNeighbor DiagnosticKind = "out_of_range_neighbor"
	// CoincidentPoint: a different point shares the query position.
	CoincidentPoint DiagnosticKind = "coincident_point"
	// MissingNeighborEntry: orientation reached a point with no graph entry.
	MissingNeighborEntry DiagnosticKind = "missing_neighbor_entry"
)

// Diagnostic records one recoverable condition for one point. Diagnostics
// never abort a cloud-wide operation.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	PointID int            `json:"point_id"`
	Detail  string         `json:"detail,omitempty"`
}

func (d Diagnostic) String() string {
	if d.Detail == "" {
		return fmt.Sprintf("%s point=%d", d.Kind, d.PointID)
	}
	return fmt.Sprintf("%s point=%d: %s", d.Kind, d.PointID, d.Detail)
}

// Diagnostics is an append-only list with per-kind counts.
type Diagnostics []Diagnostic

// Add records a diagnostic and mirrors it to the diag log stream.
func (ds *Diagnostics) Add(kind DiagnosticKind, pointID int, format string, args ...interface{}) {
	d := Diagnostic{Kind: kind, PointID: pointID}
	if format != "" {
		d.Detail = fmt.Sprintf(format, args...)
	}
	*ds = append(*ds, d)
	Diagf("%s", d)
}

// Count returns how many diagnostics of the given kind were recorded.
func (ds Diagnostics) Count(kind DiagnosticKind) int {
	n := 0
	for _, d := range ds {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// Counts returns the number of diagnostics per kind.
func (ds Diagnostics) Counts() map[DiagnosticKind]int {
	counts := make(map[DiagnosticKind]int)
	for _, d := range ds {
		counts[d.Kind]++
	}
	return counts
}
