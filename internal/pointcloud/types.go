package pointcloud

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Dims is the only dimensionality supported by the normal estimators.
const Dims = 3

// Cloud is an ordered set of 3D positions. The slice index is the stable
// identity of a point throughout neighbour search, estimation and
// orientation.
type Cloud []r3.Vec

// FromRows validates an N×3 row list and converts it to a Cloud.
// Rows with any width other than 3 fail with ErrDimensionMismatch.
func FromRows(rows [][]float64) (Cloud, error) {
	cloud := make(Cloud, len(rows))
	for i, row := range rows {
		if len(row) != Dims {
			return nil, fmt.Errorf("%w: point %d has %d coordinates, want %d",
				ErrDimensionMismatch, i, len(row), Dims)
		}
		cloud[i] = r3.Vec{X: row[0], Y: row[1], Z: row[2]}
	}
	return cloud, nil
}

// FromMatrix converts an N×3 matrix (points in rows) to a Cloud.
func FromMatrix(m mat.Matrix) (Cloud, error) {
	r, c := m.Dims()
	if c != Dims {
		return nil, fmt.Errorf("%w: matrix has %d columns, want %d", ErrDimensionMismatch, c, Dims)
	}
	cloud := make(Cloud, r)
	for i := 0; i < r; i++ {
		cloud[i] = r3.Vec{X: m.At(i, 0), Y: m.At(i, 1), Z: m.At(i, 2)}
	}
	return cloud, nil
}

// Rows returns the cloud as an N×3 row list.
func (c Cloud) Rows() [][]float64 {
	rows := make([][]float64, len(c))
	for i, p := range c {
		rows[i] = []float64{p.X, p.Y, p.Z}
	}
	return rows
}

// Contains reports whether id is a valid point index.
func (c Cloud) Contains(id int) bool {
	return id >= 0 && id < len(c)
}

// Bounds returns the axis-aligned bounding box of the cloud.
// An empty cloud returns two zero vectors.
func (c Cloud) Bounds() (min, max r3.Vec) {
	if len(c) == 0 {
		return r3.Vec{}, r3.Vec{}
	}
	min, max = c[0], c[0]
	for _, p := range c[1:] {
		min.X, max.X = math.Min(min.X, p.X), math.Max(max.X, p.X)
		min.Y, max.Y = math.Min(min.Y, p.Y), math.Max(max.Y, p.Y)
		min.Z, max.Z = math.Min(min.Z, p.Z), math.Max(max.Z, p.Z)
	}
	return min, max
}

// Faces is an ordered list of polygons. Each face is a cyclic loop of
// point indices.
type Faces [][]int

// NormalField holds one normal per point, index-aligned with a Cloud.
// The zero vector marks a point whose neighbourhood could not define a
// plane.
type NormalField []r3.Vec

// NewNormalField returns a field of n sentinel normals.
func NewNormalField(n int) NormalField {
	return make(NormalField, n)
}

// Clone returns a copy that shares no storage with f.
func (f NormalField) Clone() NormalField {
	out := make(NormalField, len(f))
	copy(out, f)
	return out
}

// IsSentinel reports whether the normal at id is the zero vector.
func (f NormalField) IsSentinel(id int) bool {
	return f[id] == (r3.Vec{})
}

// Flip negates the normal at id in place.
func (f NormalField) Flip(id int) {
	f[id] = r3.Scale(-1, f[id])
}

// Rows returns the field as an N×3 row list.
func (f NormalField) Rows() [][]float64 {
	return Cloud(f).Rows()
}
