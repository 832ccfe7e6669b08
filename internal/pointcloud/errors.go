package pointcloud

import "errors"

// Structural errors abort the call that detected them.
var (
	// ErrDimensionMismatch is returned when a point does not have exactly
	// three coordinates.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidTopology is returned when a face references a vertex
	// outside the point cloud.
	ErrInvalidTopology = errors.New("invalid topology")

	// ErrInvalidSeed is returned when an orientation seed is not a valid
	// point index.
	ErrInvalidSeed = errors.New("invalid seed")

	// ErrEmptyCloud is returned by operations that need at least one point.
	ErrEmptyCloud = errors.New("empty point cloud")
)
