package monitor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/banshee-data/normals.report/internal/config"
	"github.com/banshee-data/normals.report/internal/normalsdb"
	"github.com/banshee-data/normals.report/internal/pointcloud"
	"github.com/banshee-data/normals.report/internal/pointcloud/pipeline"
)

// maxParamsBody bounds the body of a params update.
const maxParamsBody = 1 << 20

// NormalsResponse is the body of GET /api/normals.
type NormalsResponse struct {
	RunID            string                            `json:"run_id,omitempty"`
	Params           pipeline.Params                   `json:"params"`
	Summary          pipeline.Summary                  `json:"summary"`
	Timings          pipeline.Timings                  `json:"timings"`
	Normals          [][]float64                       `json:"normals"`
	SurfaceVariation []float64                         `json:"surface_variation"`
	Degenerate       []int                             `json:"degenerate"`
	LowConfidence    []int                             `json:"low_confidence"`
	Seeds            []int                             `json:"seeds"`
	Segments         []pipeline.Segment                `json:"segments,omitempty"`
	DiagnosticCounts map[pointcloud.DiagnosticKind]int `json:"diagnostic_counts,omitempty"`
}

// MeshResponse is the body of GET /api/mesh.
type MeshResponse struct {
	SourcePath string      `json:"source_path"`
	Points     [][]float64 `json:"points"`
	Faces      [][]int     `json:"faces,omitempty"`
	Min        [3]float64  `json:"min"`
	Max        [3]float64  `json:"max"`
}

// Recalculate runs the pipeline on the loaded mesh with p and, when a run
// store is configured, records the result. Calls are serialised.
func (s *Server) Recalculate(p pipeline.Params) (*pipeline.Output, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := pipeline.Recalc(s.mesh.Cloud, s.mesh.Faces, p)
	if err != nil {
		return nil, "", err
	}
	runID := ""
	if s.runs != nil {
		runID, err = s.recordRun(out)
		if err != nil {
			// The normals are still valid; only persistence failed.
			log.Printf("failed to record run: %v", err)
		}
	}
	s.last = out
	s.lastID = runID
	return out, runID, nil
}

func (s *Server) recordRun(out *pipeline.Output) (string, error) {
	run, err := normalsdb.NewRun(s.sourcePath, len(s.mesh.Faces), out)
	if err != nil {
		return "", err
	}
	if err := s.runs.Insert(run); err != nil {
		return "", err
	}
	if err := s.runs.InsertPoints(run.RunID, out.Normals, out.Report); err != nil {
		return run.RunID, err
	}
	return run.RunID, nil
}

// latest returns the last output, recalculating with the configured
// parameters when nothing has run yet.
func (s *Server) latest() (*pipeline.Output, error) {
	s.mu.Lock()
	out := s.last
	p := s.cfg.ToParams()
	s.mu.Unlock()
	if out != nil {
		return out, nil
	}
	out, _, err := s.Recalculate(p)
	return out, err
}

// paramsFromQuery overlays query parameters on the configured params.
func (s *Server) paramsFromQuery(r *http.Request) (pipeline.Params, error) {
	s.mu.Lock()
	p := s.cfg.ToParams()
	s.mu.Unlock()

	q := r.URL.Query()
	var err error
	intParam := func(name string, dst *int) {
		if v := q.Get(name); v != "" && err == nil {
			n, perr := strconv.Atoi(v)
			if perr != nil {
				err = fmt.Errorf("invalid %s: %q", name, v)
				return
			}
			*dst = n
		}
	}
	floatParam := func(name string, dst *float64) {
		if v := q.Get(name); v != "" && err == nil {
			f, perr := strconv.ParseFloat(v, 64)
			if perr != nil {
				err = fmt.Errorf("invalid %s: %q", name, v)
				return
			}
			*dst = f
		}
	}
	intParam("k", &p.K)
	intParam("seed", &p.Seed)
	intParam("workers", &p.Workers)
	floatParam("max_distance", &p.MaxDistance)
	floatParam("low_confidence_ratio", &p.LowConfidenceRatio)
	if v := q.Get("source"); v != "" {
		p.Source = pipeline.Source(v)
	}
	if v := q.Get("strategy"); v != "" {
		p.SeedStrategy = v
	}
	if v := q.Get("all_components"); v != "" && err == nil {
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			err = fmt.Errorf("invalid all_components: %q", v)
		}
		p.OrientAllComponents = b
	}
	if err != nil {
		return pipeline.Params{}, err
	}
	return p, nil
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pointcloud.ErrInvalidSeed),
		errors.Is(err, pointcloud.ErrInvalidTopology),
		errors.Is(err, pointcloud.ErrEmptyCloud):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleNormals(w http.ResponseWriter, r *http.Request) {
	p, err := s.paramsFromQuery(r)
	if err == nil {
		err = p.Validate()
	}
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, runID, err := s.Recalculate(p)
	if err != nil {
		s.writeJSONError(w, statusFor(err), err.Error())
		return
	}

	resp := NormalsResponse{
		RunID:            runID,
		Params:           out.Params,
		Summary:          out.Summary(),
		Timings:          out.Timings,
		Normals:          out.Normals.Rows(),
		SurfaceVariation: out.Report.SurfaceVariation(),
		Degenerate:       nonNil(out.Report.Degenerate),
		LowConfidence:    nonNil(out.Report.LowConfidence),
	}
	for _, c := range out.Orientation.Components {
		resp.Seeds = append(resp.Seeds, c.Seed)
	}
	resp.Seeds = nonNil(resp.Seeds)
	if counts := out.Diagnostics().Counts(); len(counts) > 0 {
		resp.DiagnosticCounts = counts
	}
	if q := r.URL.Query().Get("segments"); q == "1" || q == "true" {
		resp.Segments = pipeline.Segments(s.mesh.Cloud, out.Normals, s.segmentScale())
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) segmentScale() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.GetSegmentScale()
}

// handleSegments serves display segments for the latest normals.
func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	scale := s.segmentScale()
	if v := r.URL.Query().Get("scale"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid scale: %q", v))
			return
		}
		scale = f
	}
	out, err := s.latest()
	if err != nil {
		s.writeJSONError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, pipeline.Segments(s.mesh.Cloud, out.Normals, scale))
}

func (s *Server) handleMesh(w http.ResponseWriter, r *http.Request) {
	lo, hi := s.mesh.Cloud.Bounds()
	resp := MeshResponse{
		SourcePath: s.sourcePath,
		Points:     s.mesh.Cloud.Rows(),
		Min:        [3]float64{lo.X, lo.Y, lo.Z},
		Max:        [3]float64{hi.X, hi.Y, hi.Z},
	}
	resp.Faces = s.mesh.Faces
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetParams(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, s.cfg)
}

// handleSetParams merges a partial NormalsConfig into the current one.
// The update is applied only if the merged config validates.
func (s *Server) handleSetParams(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxParamsBody+1))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("failed to read body: %v", err))
		return
	}
	if len(body) > maxParamsBody {
		s.writeJSONError(w, http.StatusRequestEntityTooLarge, "params body too large")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := cloneConfig(s.cfg)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(next); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid params: %v", err))
		return
	}
	if err := next.Validate(); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.cfg = next
	s.last = nil
	s.writeJSON(w, http.StatusOK, s.cfg)
}

// cloneConfig deep-copies c so a decode cannot write through its pointers.
func cloneConfig(c *config.NormalsConfig) (*config.NormalsConfig, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	out := config.EmptyNormalsConfig()
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return out, nil
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeJSONError(w, http.StatusNotFound, "run storage is not configured")
		return
	}
	s.runs.ListHandler().ServeHTTP(w, r)
}

func nonNil(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}
