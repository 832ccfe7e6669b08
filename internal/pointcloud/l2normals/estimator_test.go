package l2normals

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/normals.report/internal/pointcloud"
	"github.com/banshee-data/normals.report/internal/pointcloud/l1neighbors"
	"github.com/banshee-data/normals.report/internal/testutil"
)

// fibonacciSphere samples n points evenly on a sphere of radius r.
func fibonacciSphere(n int, r float64) pointcloud.Cloud {
	cloud := make(pointcloud.Cloud, n)
	golden := math.Pi * (3 - math.Sqrt(5))
	for i := range cloud {
		y := 1 - 2*(float64(i)+0.5)/float64(n)
		rad := math.Sqrt(1 - y*y)
		theta := golden * float64(i)
		cloud[i] = r3.Scale(r, r3.Vec{X: math.Cos(theta) * rad, Y: y, Z: math.Sin(theta) * rad})
	}
	return cloud
}

func TestEstimatePointNormalPlanarGrid(t *testing.T) {
	t.Parallel()

	cloud := testutil.Grid(5, 5, 1)
	graph := l1neighbors.BuildFromCloud(cloud, 10).KNearestGraph(4, 0, 1)

	normals, report := EstimateCloudNormals(cloud, graph)
	require.Len(t, normals, 25)
	assert.Empty(t, report.Degenerate)
	assert.Empty(t, report.LowConfidence)
	testutil.AssertUnitNormals(t, normals)

	for i, n := range normals {
		assert.InDelta(t, 0, n.X, 1e-9, "point %d", i)
		assert.InDelta(t, 0, n.Y, 1e-9, "point %d", i)
		assert.InDelta(t, 1, math.Abs(n.Z), 1e-9, "point %d", i)
		assert.InDelta(t, 0, report.Estimates[i].SurfaceVariation, 1e-12)
	}
}

func TestEstimatePointNormalIsolatedPoint(t *testing.T) {
	t.Parallel()

	cloud := pointcloud.Cloud{{X: 3, Y: 4, Z: 5}}
	normals, report := EstimateCloudNormals(cloud, pointcloud.NeighborGraph{})

	require.Len(t, normals, 1)
	assert.Equal(t, r3.Vec{}, normals[0])
	assert.True(t, normals.IsSentinel(0))
	assert.False(t, math.IsNaN(normals[0].X))
	assert.Equal(t, []int{0}, report.Degenerate)
	assert.Equal(t, 1, report.Diagnostics.Count(pointcloud.DegenerateNeighborhood))
	assert.Equal(t, []float64{-1}, report.SurfaceVariation())
}

func TestEstimatePointNormalSelfReference(t *testing.T) {
	t.Parallel()

	cloud := testutil.Grid(3, 3, 1)
	clean := EstimatePointNormal(cloud, 4, []int{1, 3, 5, 7})
	withSelf := EstimatePointNormal(cloud, 4, []int{1, 4, 3, 5, 7})

	assert.Equal(t, clean.Normal, withSelf.Normal)
	assert.Equal(t, 4, withSelf.Used)
	assert.False(t, withSelf.Degenerate)
	assert.Equal(t, 1, withSelf.Diagnostics.Count(pointcloud.SelfReference))

	onlySelf := EstimatePointNormal(cloud, 4, []int{4})
	assert.True(t, onlySelf.Degenerate)
	assert.Equal(t, r3.Vec{}, onlySelf.Normal)
}

func TestEstimatePointNormalOutOfRange(t *testing.T) {
	t.Parallel()

	cloud := testutil.Grid(3, 3, 1)
	est := EstimatePointNormal(cloud, 0, []int{1, 3, 99, -2})
	assert.Equal(t, 2, est.Used)
	assert.Equal(t, 2, est.Diagnostics.Count(pointcloud.OutOfRangeNeighbor))
	assert.InDelta(t, 1, math.Abs(est.Normal.Z), 1e-9)

	bad := EstimatePointNormal(cloud, 42, []int{0})
	assert.True(t, bad.Degenerate)
}

func TestEstimatePointNormalUsesQueryPointAsReference(t *testing.T) {
	t.Parallel()

	// About the centroid (0,0,1) these neighbours are flat in z, which a
	// centroid fit would report as a ±Z normal. About the query point the
	// scatter is smallest along Y.
	cloud := pointcloud.Cloud{
		{X: 0, Y: 0, Z: 0},
		{X: 2, Y: 0, Z: 1},
		{X: -2, Y: 0, Z: 1},
		{X: 0, Y: 1, Z: 1},
		{X: 0, Y: -1, Z: 1},
	}
	est := EstimatePointNormal(cloud, 0, []int{1, 2, 3, 4})
	require.False(t, est.Degenerate)
	assert.InDelta(t, 1, math.Abs(est.Normal.Y), 1e-9)
	assert.InDelta(t, 2, est.Eigenvalues[0], 1e-9)
	assert.InDelta(t, 4, est.Eigenvalues[1], 1e-9)
	assert.InDelta(t, 8, est.Eigenvalues[2], 1e-9)
}

func TestEstimatePointNormalCollinearIsLowConfidence(t *testing.T) {
	t.Parallel()

	cloud := pointcloud.Cloud{{X: 0}, {X: 1}, {X: 2}, {X: -1}}
	est := EstimatePointNormal(cloud, 0, []int{1, 2, 3})

	assert.False(t, est.Degenerate)
	assert.True(t, est.LowConfidence)
	assert.Equal(t, 1, est.Diagnostics.Count(pointcloud.LowConfidence))
	assert.InDelta(t, 1, r3.Norm(est.Normal), 1e-9)
	assert.InDelta(t, 0, est.Normal.X, 1e-9, "normal is perpendicular to the line")

	// Repeated calls pick the same vector.
	again := EstimatePointNormal(cloud, 0, []int{1, 2, 3})
	assert.Equal(t, est.Normal, again.Normal)
}

func TestEstimatePointNormalCoincidentNeighbours(t *testing.T) {
	t.Parallel()

	cloud := pointcloud.Cloud{{X: 1, Y: 1, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: 1, Y: 1, Z: 1}}
	est := EstimatePointNormal(cloud, 0, []int{1, 2})

	assert.False(t, est.Degenerate)
	assert.True(t, est.LowConfidence)
	assert.InDelta(t, 1, r3.Norm(est.Normal), 1e-9)
}

func TestEstimateCloudSphere(t *testing.T) {
	t.Parallel()

	cloud := fibonacciSphere(600, 2)
	graph := l1neighbors.BuildFromCloud(cloud, 10).KNearestGraph(8, 0, 1)
	normals, report := EstimateCloudNormals(cloud, graph)

	assert.Empty(t, report.Degenerate)
	testutil.AssertUnitNormals(t, normals)
	for i, n := range normals {
		radial := r3.Unit(cloud[i])
		assert.Greater(t, math.Abs(r3.Dot(n, radial)), 0.95, "point %d", i)
	}
}

func TestEstimateCloudParallelMatchesSequential(t *testing.T) {
	t.Parallel()

	cloud := fibonacciSphere(2000, 1)
	graph := l1neighbors.BuildFromCloud(cloud, 10).KNearestGraph(10, 0, 0)

	seqNormals, seqReport := (&Estimator{Workers: 1}).EstimateCloud(cloud, graph)
	parNormals, parReport := (&Estimator{Workers: 8}).EstimateCloud(cloud, graph)

	if diff := cmp.Diff(seqNormals, parNormals); diff != "" {
		t.Fatalf("normals depend on worker count:\n%s", diff)
	}
	if diff := cmp.Diff(seqReport, parReport, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("report depends on worker count:\n%s", diff)
	}
}

func TestEstimateCloudMissingEntries(t *testing.T) {
	t.Parallel()

	cloud := testutil.Grid(3, 3, 1)
	graph := pointcloud.NeighborGraph{4: {1, 3, 5, 7}}
	normals, report := EstimateCloudNormals(cloud, graph)

	assert.Equal(t, []int{0, 1, 2, 3, 5, 6, 7, 8}, report.Degenerate)
	assert.False(t, normals.IsSentinel(4))
	testutil.AssertUnitNormals(t, normals, report.Degenerate...)
}

func TestEstimatorLowConfidenceRatio(t *testing.T) {
	t.Parallel()

	// A thin strip: the second eigenvalue is tiny relative to the first.
	cloud := pointcloud.Cloud{{X: 0}, {X: 1, Y: 1e-4}, {X: -1, Y: 1e-4}, {X: 2}}
	neighbours := []int{1, 2, 3}

	strict := (&Estimator{LowConfidenceRatio: 1e-3}).EstimatePoint(cloud, 0, neighbours)
	lax := (&Estimator{LowConfidenceRatio: 1e-12}).EstimatePoint(cloud, 0, neighbours)
	assert.True(t, strict.LowConfidence)
	assert.False(t, lax.LowConfidence)
}
