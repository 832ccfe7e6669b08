// Package testutil provides shared test fixtures and assertions for the
// normals packages.
//
// This package centralises common point-cloud fixtures (planar grids, the
// unit cube mesh, disjoint clusters) so layer tests agree on their inputs.
package testutil

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/normals.report/internal/pointcloud"
)

// UnitTolerance is the allowed deviation of a normal's length from 1.
const UnitTolerance = 1e-6

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertUnitNormals checks that every normal not listed in skip has unit
// length within UnitTolerance and contains no NaN.
func AssertUnitNormals(t testing.TB, normals pointcloud.NormalField, skip ...int) {
	t.Helper()
	skipped := make(map[int]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}
	for i, n := range normals {
		if skipped[i] {
			continue
		}
		l := r3.Norm(n)
		if math.IsNaN(l) || math.Abs(l-1) > UnitTolerance {
			t.Errorf("normal %d = %v has length %v, want 1±%g", i, n, l, UnitTolerance)
		}
	}
}

// Grid returns an nx×ny planar grid in the z=0 plane with the given
// spacing. Point (i, j) has index j*nx+i.
func Grid(nx, ny int, spacing float64) pointcloud.Cloud {
	cloud := make(pointcloud.Cloud, 0, nx*ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			cloud = append(cloud, r3.Vec{X: float64(i) * spacing, Y: float64(j) * spacing})
		}
	}
	return cloud
}

// GridRows is Grid as an N×3 row list.
func GridRows(nx, ny int, spacing float64) [][]float64 {
	return Grid(nx, ny, spacing).Rows()
}

// Cube returns the 8 corners of the unit cube and its 6 quad faces,
// wound counter-clockwise seen from outside.
func Cube() (pointcloud.Cloud, pointcloud.Faces) {
	cloud := pointcloud.Cloud{
		{X: 0, Y: 0, Z: 0}, // 0
		{X: 1, Y: 0, Z: 0}, // 1
		{X: 1, Y: 1, Z: 0}, // 2
		{X: 0, Y: 1, Z: 0}, // 3
		{X: 0, Y: 0, Z: 1}, // 4
		{X: 1, Y: 0, Z: 1}, // 5
		{X: 1, Y: 1, Z: 1}, // 6
		{X: 0, Y: 1, Z: 1}, // 7
	}
	faces := pointcloud.Faces{
		{0, 3, 2, 1}, // bottom
		{4, 5, 6, 7}, // top
		{0, 1, 5, 4}, // front
		{2, 3, 7, 6}, // back
		{1, 2, 6, 5}, // right
		{0, 4, 7, 3}, // left
	}
	return cloud, faces
}

// CubeNeighbors is the expected 1-ring adjacency of the Cube mesh.
func CubeNeighbors() pointcloud.NeighborGraph {
	return pointcloud.NeighborGraph{
		0: {1, 3, 4},
		1: {0, 2, 5},
		2: {1, 3, 6},
		3: {0, 2, 7},
		4: {0, 5, 7},
		5: {1, 4, 6},
		6: {2, 5, 7},
		7: {3, 4, 6},
	}
}

// TwoClusters returns two 3×3 planar patches far apart: the first in z=0
// around the origin (indices 0-8), the second in z=0 offset by 100 along
// x (indices 9-17), with a neighbour graph that links points only within
// their own patch.
func TwoClusters() (pointcloud.Cloud, pointcloud.NeighborGraph) {
	a := Grid(3, 3, 1)
	b := Grid(3, 3, 1)
	cloud := make(pointcloud.Cloud, 0, len(a)+len(b))
	cloud = append(cloud, a...)
	for _, p := range b {
		cloud = append(cloud, r3.Add(p, r3.Vec{X: 100}))
	}

	graph := make(pointcloud.NeighborGraph)
	for offset := 0; offset < len(cloud); offset += len(a) {
		for j := 0; j < 3; j++ {
			for i := 0; i < 3; i++ {
				id := offset + j*3 + i
				var ns []int
				if i > 0 {
					ns = append(ns, id-1)
				}
				if i < 2 {
					ns = append(ns, id+1)
				}
				if j > 0 {
					ns = append(ns, id-3)
				}
				if j < 2 {
					ns = append(ns, id+3)
				}
				graph[id] = ns
			}
		}
	}
	return cloud, graph
}

// AlternatingNormals returns n normals that alternate between +Z and -Z,
// starting with +Z at index 0.
func AlternatingNormals(n int) pointcloud.NormalField {
	f := pointcloud.NewNormalField(n)
	for i := range f {
		if i%2 == 0 {
			f[i] = r3.Vec{Z: 1}
		} else {
			f[i] = r3.Vec{Z: -1}
		}
	}
	return f
}
