package l1neighbors

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/normals.report/internal/pointcloud"
	"github.com/banshee-data/normals.report/internal/testutil"
)

func TestBuildFaceAdjacencyCube(t *testing.T) {
	t.Parallel()

	cloud, faces := testutil.Cube()
	graph, err := BuildFaceAdjacency(faces, len(cloud))
	require.NoError(t, err)

	if diff := cmp.Diff(testutil.CubeNeighbors(), graph); diff != "" {
		t.Fatalf("cube adjacency mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, graph.IsSymmetric())
	for v := 0; v < 8; v++ {
		assert.Len(t, graph[v], 3, "vertex %d", v)
	}
}

func TestBuildFaceAdjacencyPerFaceContribution(t *testing.T) {
	t.Parallel()

	// Each face adds exactly predecessor and successor.
	_, faces := testutil.Cube()
	for _, face := range faces {
		graph, err := BuildFaceAdjacency(pointcloud.Faces{face}, 8)
		require.NoError(t, err)
		for _, v := range face {
			assert.Len(t, graph[v], 2)
		}
	}
}

func TestBuildFaceAdjacencyTriangles(t *testing.T) {
	t.Parallel()

	// Two triangles sharing the edge 1-2.
	graph, err := BuildFaceAdjacency(pointcloud.Faces{{0, 1, 2}, {2, 1, 3}}, 4)
	require.NoError(t, err)
	assert.Equal(t, pointcloud.NeighborGraph{
		0: {1, 2},
		1: {0, 2, 3},
		2: {0, 1, 3},
		3: {1, 2},
	}, graph)
}

func TestBuildFaceAdjacencyInvalidTopology(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		faces     pointcloud.Faces
		numPoints int
	}{
		{"index past end", pointcloud.Faces{{0, 1, 4}}, 4},
		{"negative index", pointcloud.Faces{{0, -1, 2}}, 4},
		{"negative index without bound", pointcloud.Faces{{-3, 1, 2}}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildFaceAdjacency(tt.faces, tt.numPoints)
			assert.ErrorIs(t, err, pointcloud.ErrInvalidTopology)
		})
	}
}

func TestBuildFaceAdjacencyDegenerateFaces(t *testing.T) {
	t.Parallel()

	graph, err := BuildFaceAdjacency(pointcloud.Faces{{5}, {}, {0, 0, 1}}, -1)
	require.NoError(t, err)
	assert.Equal(t, pointcloud.NeighborGraph{0: {1}, 1: {0}}, graph)
	assert.False(t, graph.Has(5), "single-vertex faces add no neighbours")
}
