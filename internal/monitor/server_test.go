package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/normals.report/internal/config"
	"github.com/banshee-data/normals.report/internal/fsutil"
	"github.com/banshee-data/normals.report/internal/meshio"
	"github.com/banshee-data/normals.report/internal/normalsdb"
	"github.com/banshee-data/normals.report/internal/pointcloud"
	"github.com/banshee-data/normals.report/internal/pointcloud/l2normals"
	"github.com/banshee-data/normals.report/internal/pointcloud/pipeline"
	"github.com/banshee-data/normals.report/internal/testutil"
)

// l2Report has four fitted points and one degenerate one.
var l2Report = l2normals.Report{
	Estimates: []l2normals.PointEstimate{
		{SurfaceVariation: 0},
		{SurfaceVariation: 0.1},
		{SurfaceVariation: 0.2},
		{SurfaceVariation: 0.1},
		{SurfaceVariation: 0.3, Degenerate: true},
	},
	Degenerate: []int{4},
}

func gridConfig(k int) *config.NormalsConfig {
	cfg := config.DefaultNormalsConfig()
	cfg.KNeighbors = &k
	return cfg
}

func newTestServer(t *testing.T, c Config) *Server {
	t.Helper()
	if c.Mesh == nil {
		c.Mesh = &meshio.Mesh{Cloud: testutil.Grid(5, 5, 1)}
	}
	if c.Normals == nil {
		c.Normals = gridConfig(4)
	}
	if c.SourcePath == "" {
		c.SourcePath = "grid.xyz"
	}
	return NewServer(c)
}

func do(t *testing.T, s *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleNormals(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := do(t, s, http.MethodGet, "/api/normals?k=4&segments=true", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp NormalsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.RunID)
	assert.Equal(t, 4, resp.Params.K)
	assert.Equal(t, 25, resp.Summary.Points)
	assert.Equal(t, 25, resp.Summary.Visited)
	assert.Len(t, resp.Normals, 25)
	assert.Len(t, resp.SurfaceVariation, 25)
	assert.Len(t, resp.Segments, 25)
	assert.Equal(t, []int{0}, resp.Seeds)
	assert.Empty(t, resp.Degenerate)

	// Every normal of a planar grid lies on the Z axis with one sign.
	first := resp.Normals[0][2]
	for i, n := range resp.Normals {
		assert.InDelta(t, first, n[2], 1e-9, "normal %d", i)
	}
	assert.InDelta(t, 1, first*first, 1e-9)
}

func TestHandleNormalsErrors(t *testing.T) {
	s := newTestServer(t, Config{})

	tests := []struct {
		name  string
		query string
	}{
		{"non-numeric k", "k=abc"},
		{"zero k", "k=0"},
		{"bad max distance", "max_distance=far"},
		{"seed out of range", "seed=99"},
		{"faces without faces", "source=faces"},
		{"unknown source", "source=voxel"},
		{"unknown strategy", "strategy=random"},
		{"bad all_components", "all_components=maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, "/api/normals?"+tt.query, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestHandleNormalsComponents(t *testing.T) {
	cloud, _ := testutil.TwoClusters()
	s := newTestServer(t, Config{Mesh: &meshio.Mesh{Cloud: cloud}})

	rec := do(t, s, http.MethodGet, "/api/normals?k=4&max_distance=1.5&all_components=true", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp NormalsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Summary.Components)
	assert.Equal(t, len(cloud), resp.Summary.Visited)
	assert.Len(t, resp.Seeds, 2)
}

func TestHandleMesh(t *testing.T) {
	cloud, faces := testutil.Cube()
	s := newTestServer(t, Config{Mesh: &meshio.Mesh{Cloud: cloud, Faces: faces}, SourcePath: "cube.off"})

	rec := do(t, s, http.MethodGet, "/api/mesh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp MeshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cube.off", resp.SourcePath)
	assert.Len(t, resp.Points, 8)
	assert.Len(t, resp.Faces, 6)
	assert.Equal(t, [3]float64{0, 0, 0}, resp.Min)
	assert.Equal(t, [3]float64{1, 1, 1}, resp.Max)
}

func TestHandleParams(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := do(t, s, http.MethodGet, "/api/normals/params", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg config.NormalsConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 4, cfg.GetKNeighbors())

	rec = do(t, s, http.MethodPost, "/api/normals/params", []byte(`{"k_neighbors": 6, "seed_strategy": "lowest_variation"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/normals/params", nil)
	cfg = config.NormalsConfig{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 6, cfg.GetKNeighbors())
	assert.Equal(t, pipeline.SeedLowestVariation, cfg.GetSeedStrategy())
	assert.Equal(t, "knn", cfg.GetNeighborSource())

	// The next recalculation picks the new defaults up.
	rec = do(t, s, http.MethodGet, "/api/normals", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp NormalsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 6, resp.Params.K)
	assert.Equal(t, 25*6, resp.Summary.Edges)
}

func TestHandleParamsRejected(t *testing.T) {
	s := newTestServer(t, Config{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"k_neighbors":`},
		{"unknown field", `{"k": 3}`},
		{"negative k", `{"k_neighbors": -1}`},
		{"unknown source", `{"neighbor_source": "voxel"}`},
		{"zero segment scale", `{"segment_scale": 0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/normals/params", []byte(tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	// Rejected updates leave the config untouched.
	rec := do(t, s, http.MethodGet, "/api/normals/params", nil)
	var cfg config.NormalsConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 4, cfg.GetKNeighbors())
	assert.Equal(t, "knn", cfg.GetNeighborSource())
	assert.InDelta(t, pipeline.DefaultSegmentScale, cfg.GetSegmentScale(), 1e-12)
}

func TestHandleSegments(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := do(t, s, http.MethodGet, "/api/segments?scale=2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var segs []pipeline.Segment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &segs))
	require.Len(t, segs, 25)
	for _, seg := range segs {
		assert.InDelta(t, 2, r3.Norm(r3.Sub(seg.End, seg.Start)), 1e-9)
	}

	rec = do(t, s, http.MethodGet, "/api/segments?scale=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStats(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := do(t, s, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var vs VariationStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vs))
	assert.Equal(t, 25, vs.Count)
	assert.Equal(t, 0, vs.Degenerate)
	assert.InDelta(t, 0, vs.Mean, 1e-9)
	assert.InDelta(t, 0, vs.P99, 1e-9)
	assert.Equal(t, 25, vs.Summary.Points)
}

func TestComputeVariationStats(t *testing.T) {
	out := &pipeline.Output{Report: &l2Report}
	vs := ComputeVariationStats(out)
	assert.Equal(t, 4, vs.Count)
	assert.Equal(t, 1, vs.Degenerate)
	assert.InDelta(t, 0.1, vs.Mean, 1e-12)
	assert.InDelta(t, 0, vs.Min, 1e-12)
	assert.InDelta(t, 0.2, vs.Max, 1e-12)
	assert.Greater(t, vs.StdDev, 0.0)
	assert.InDelta(t, 0.1, vs.P50, 1e-12)
}

func TestHandleRuns(t *testing.T) {
	s := newTestServer(t, Config{})
	rec := do(t, s, http.MethodGet, "/api/runs", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	db, err := normalsdb.OpenDB(filepath.Join(t.TempDir(), "normals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s = newTestServer(t, Config{Runs: normalsdb.NewRunStore(db.DB)})
	rec = do(t, s, http.MethodGet, "/api/normals?k=4", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp NormalsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RunID)

	rec = do(t, s, http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []normalsdb.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, resp.RunID, runs[0].RunID)
	assert.Equal(t, "grid.xyz", runs[0].SourcePath)
	assert.Equal(t, 25, runs[0].PointCount)

	field, err := normalsdb.NewRunStore(db.DB).NormalField(resp.RunID)
	require.NoError(t, err)
	assert.Len(t, field, 25)
}

func TestAdminRoutesMounted(t *testing.T) {
	db, err := normalsdb.OpenDB(filepath.Join(t.TempDir(), "normals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := newTestServer(t, Config{DB: db})
	rec := do(t, s, http.MethodGet, "/debug/runs", nil)
	assert.NotEqual(t, http.StatusNotFound, rec.Code)
}

func TestVariationChart(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := do(t, s, http.MethodGet, "/charts/variation?bins=10", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Surface variation")

	rec = do(t, s, http.MethodGet, "/charts/variation?bins=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVariationHistogram(t *testing.T) {
	out := &pipeline.Output{Report: &l2Report}
	labels, counts := VariationHistogram(out, 10)
	require.Len(t, labels, 10)
	require.Len(t, counts, 10)
	assert.Equal(t, "0.0000", labels[0])

	total := 0
	for _, c := range counts {
		total += c
	}
	assert.Equal(t, 4, total)
	assert.Equal(t, 1, counts[0])
}

func TestVariationPNG(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := do(t, s, http.MethodGet, "/charts/variation.png", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestVariationPNGAllDegenerate(t *testing.T) {
	cloud := pointcloud.Cloud{{X: 0}, {X: 10}, {X: 20}}
	cfg := gridConfig(2)
	d := 1.0
	cfg.MaxDistance = &d
	s := newTestServer(t, Config{Mesh: &meshio.Mesh{Cloud: cloud}, Normals: cfg})

	rec := do(t, s, http.MethodGet, "/charts/variation.png", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
}

func TestSaveVariationPNG(t *testing.T) {
	p := pipeline.DefaultParams()
	p.K = 4
	out, err := pipeline.Recalc(testutil.Grid(4, 4, 1), nil, p)
	require.NoError(t, err)

	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, SaveVariationPNG(fsys, "plots/variation.png", out, 0))
	assert.True(t, bytes.HasPrefix(fsys.Contents("plots/variation.png"), []byte("\x89PNG")))
}

func TestRenderSweepChart(t *testing.T) {
	base := pipeline.DefaultParams()
	points, err := pipeline.SweepK(testutil.Grid(5, 5, 1), nil, base, []int{3, 4, 6})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderSweepChart(&buf, points))
	html := buf.String()
	assert.Contains(t, html, "Orientation")
	assert.Contains(t, html, "Surface variation")
	assert.True(t, strings.Contains(html, echartsAssetsPrefix))
}

func TestStartStopsOnCancel(t *testing.T) {
	s := newTestServer(t, Config{Address: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}
