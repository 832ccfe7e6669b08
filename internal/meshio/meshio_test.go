package meshio

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/normals.report/internal/fsutil"
	"github.com/banshee-data/normals.report/internal/pointcloud"
	"github.com/banshee-data/normals.report/internal/pointcloud/l1neighbors"
	"github.com/banshee-data/normals.report/internal/testutil"
)

const cubeOFF = `OFF
# unit cube
8 6 12
0 0 0
1 0 0
1 1 0
0 1 0
0 0 1
1 0 1
1 1 1
0 1 1
4 0 3 2 1
4 4 5 6 7
4 0 1 5 4
4 2 3 7 6
4 1 2 6 5
4 0 4 7 3
`

func TestReadOFFCube(t *testing.T) {
	t.Parallel()

	m, err := ReadOFF(strings.NewReader(cubeOFF))
	require.NoError(t, err)

	wantCloud, wantFaces := testutil.Cube()
	if diff := cmp.Diff(wantCloud, m.Cloud); diff != "" {
		t.Errorf("cloud mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantFaces, m.Faces); diff != "" {
		t.Errorf("faces mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, m.Normals)

	graph, err := l1neighbors.BuildFaceAdjacency(m.Faces, len(m.Cloud))
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(testutil.CubeNeighbors(), graph))
}

func TestReadOFFVariants(t *testing.T) {
	t.Parallel()

	t.Run("counts on header line", func(t *testing.T) {
		m, err := ReadOFF(strings.NewReader("OFF 3 1 0\n0 0 0\n1 0 0\n0 1 0\n3 0 1 2\n"))
		require.NoError(t, err)
		assert.Len(t, m.Cloud, 3)
		assert.Equal(t, pointcloud.Faces{{0, 1, 2}}, m.Faces)
	})

	t.Run("no header keyword", func(t *testing.T) {
		m, err := ReadOFF(strings.NewReader("2 0 0\n0 0 0\n1 1 1\n"))
		require.NoError(t, err)
		assert.Equal(t, r3.Vec{X: 1, Y: 1, Z: 1}, m.Cloud[1])
	})

	t.Run("NOFF normals", func(t *testing.T) {
		m, err := ReadOFF(strings.NewReader("NOFF\n1 0 0\n0 0 0 0 0 1\n"))
		require.NoError(t, err)
		assert.Equal(t, pointcloud.NormalField{{Z: 1}}, m.Normals)
	})

	t.Run("COFF colours ignored", func(t *testing.T) {
		m, err := ReadOFF(strings.NewReader("COFF\n1 1 0\n1 2 3 255 0 0 255\n1 0 200 10 10\n"))
		require.NoError(t, err)
		assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 3}, m.Cloud[0])
		assert.Equal(t, pointcloud.Faces{{0}}, m.Faces)
	})
}

func TestReadOFFErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"bad counts", "OFF\nx y z\n"},
		{"short vertex list", "OFF\n3 0 0\n0 0 0\n"},
		{"two coordinates", "OFF\n1 0 0\n0 0\n"},
		{"bad float", "OFF\n1 0 0\n0 zero 0\n"},
		{"face too short", "OFF\n3 1 0\n0 0 0\n1 0 0\n0 1 0\n3 0 1\n"},
		{"missing face", "OFF\n1 1 0\n0 0 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadOFF(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFormat), "got %v", err)
		})
	}
}

func TestReadOBJ(t *testing.T) {
	t.Parallel()

	input := `# tetra
v 0 0 0
v 1 0 0
v 0 1 0
vn 0 0 1
v 0 0 1
f 1 2 3
f 1/1/1 2//1 4
f -4 -2 -1
usemtl ignored
`
	m, err := ReadOBJ(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, m.Cloud, 4)
	assert.Equal(t, pointcloud.Faces{{0, 1, 2}, {0, 1, 3}, {0, 2, 3}}, m.Faces)

	_, err = ReadOBJ(strings.NewReader("v 0 0 0\nf 0 1 2\n"))
	assert.ErrorIs(t, err, ErrFormat)
	_, err = ReadOBJ(strings.NewReader("v 0 0\n"))
	assert.ErrorIs(t, err, ErrFormat)
}

func TestReadXYZ(t *testing.T) {
	t.Parallel()

	m, err := ReadXYZ(strings.NewReader("0 0 0\n# comment\n\n1 2 3 extra\n"))
	require.NoError(t, err)
	assert.Equal(t, pointcloud.Cloud{{}, {X: 1, Y: 2, Z: 3}}, m.Cloud)
	assert.Nil(t, m.Normals)

	withNormals, err := ReadXYZ(strings.NewReader("0 0 0 0 0 1\n1 0 0 0 0 -1\n"))
	require.NoError(t, err)
	assert.Equal(t, pointcloud.NormalField{{Z: 1}, {Z: -1}}, withNormals.Normals)

	_, err = ReadXYZ(strings.NewReader("1 2\n"))
	assert.ErrorIs(t, err, pointcloud.ErrDimensionMismatch)
}

func TestWriters(t *testing.T) {
	t.Parallel()

	cloud := pointcloud.Cloud{{X: 0.5, Y: 1, Z: -2}, {X: 3}}
	normals := pointcloud.NormalField{{Z: 1}, {}}

	var xyzn bytes.Buffer
	require.NoError(t, WriteXYZN(&xyzn, cloud, normals))
	assert.Equal(t, "0.5 1 -2 0 0 1\n3 0 0 0 0 0\n", xyzn.String())

	var csvBuf bytes.Buffer
	require.NoError(t, WriteCSV(&csvBuf, cloud, normals))
	assert.Equal(t, "id,x,y,z,nx,ny,nz,degenerate\n0,0.5,1,-2,0,0,1,false\n1,3,0,0,0,0,0,true\n", csvBuf.String())

	var noff bytes.Buffer
	require.NoError(t, WriteNOFF(&noff, cloud, pointcloud.Faces{{0, 1}}, normals))
	back, err := ReadOFF(&noff)
	require.NoError(t, err)
	assert.Equal(t, cloud, back.Cloud)
	assert.Equal(t, normals, back.Normals)
	assert.Equal(t, pointcloud.Faces{{0, 1}}, back.Faces)
}

func TestLoadAndSave(t *testing.T) {
	t.Parallel()

	mfs := fsutil.NewMemoryFileSystem()
	mfs.AddFile("/data/cube.off", []byte(cubeOFF))

	m, err := Load(mfs, "/data/cube.off")
	require.NoError(t, err)
	require.Len(t, m.Cloud, 8)

	normals := pointcloud.NewNormalField(8)
	for i := range normals {
		normals[i] = r3.Vec{Z: 1}
	}
	require.NoError(t, Save(mfs, "/out/cube.xyzn", m, normals))
	require.NoError(t, Save(mfs, "/out/cube.noff", m, normals))
	require.NoError(t, Save(mfs, "/out/cube.csv", m, normals))
	assert.Equal(t, []string{"/data/cube.off", "/out/cube.csv", "/out/cube.noff", "/out/cube.xyzn"}, mfs.Files())

	back, err := Load(mfs, "/out/cube.xyzn")
	require.NoError(t, err)
	assert.Equal(t, m.Cloud, back.Cloud)
	assert.Equal(t, normals, back.Normals)

	_, err = Load(mfs, "/data/cube.ply")
	assert.Error(t, err)
	_, err = Load(mfs, "/data/missing.off")
	assert.Error(t, err)
	assert.Error(t, Save(mfs, "/out/short.xyzn", m, normals[:3]))
}

func TestFormatOf(t *testing.T) {
	t.Parallel()

	tests := map[string]Format{
		"bunny.off":  FormatOFF,
		"BUNNY.OFF":  FormatOFF,
		"a.noff":     FormatOFF,
		"scan.obj":   FormatOBJ,
		"scan.xyz":   FormatXYZ,
		"scan.pts":   FormatXYZ,
		"out.xyzn":   FormatXYZN,
		"report.csv": FormatCSV,
	}
	for path, want := range tests {
		got, err := FormatOf(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
	_, err := FormatOf("mesh.ply")
	assert.Error(t, err)
}
