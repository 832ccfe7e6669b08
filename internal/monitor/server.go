// Package monitor serves the normals viewer API: recalculation on
// parameter change, summary statistics, and debug charts of the result.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/normals.report/internal/config"
	"github.com/banshee-data/normals.report/internal/meshio"
	"github.com/banshee-data/normals.report/internal/normalsdb"
	"github.com/banshee-data/normals.report/internal/pointcloud/pipeline"
)

// Config configures a Server.
type Config struct {
	Address    string
	Mesh       *meshio.Mesh
	SourcePath string
	Normals    *config.NormalsConfig
	// Runs, when set, records every recalculation.
	Runs *normalsdb.RunStore
	// DB, when set, mounts the admin routes.
	DB *normalsdb.DB
}

// Server owns a loaded mesh and recalculates its normals on request.
// Recalculations are serialised; the pipeline keeps no state between them.
type Server struct {
	address    string
	mesh       *meshio.Mesh
	sourcePath string
	runs       *normalsdb.RunStore
	db         *normalsdb.DB

	mu     sync.Mutex
	cfg    *config.NormalsConfig
	last   *pipeline.Output
	lastID string

	server *http.Server
}

// NewServer creates a Server for the given mesh.
func NewServer(c Config) *Server {
	cfg := c.Normals
	if cfg == nil {
		cfg = config.DefaultNormalsConfig()
	}
	s := &Server{
		address:    c.Address,
		mesh:       c.Mesh,
		sourcePath: c.SourcePath,
		runs:       c.Runs,
		db:         c.DB,
		cfg:        cfg,
	}
	s.server = &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/normals", s.handleNormals)
	mux.HandleFunc("GET /api/segments", s.handleSegments)
	mux.HandleFunc("GET /api/mesh", s.handleMesh)
	mux.HandleFunc("GET /api/normals/params", s.handleGetParams)
	mux.HandleFunc("POST /api/normals/params", s.handleSetParams)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/runs", s.handleRuns)
	mux.HandleFunc("GET /charts/variation", s.handleVariationChart)
	mux.HandleFunc("GET /charts/variation.png", s.handleVariationPNG)
	if s.db != nil {
		if err := s.db.AttachAdminRoutes(mux); err != nil {
			log.Printf("admin routes disabled: %v", err)
		}
	}
	return mux
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on %s", s.address)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	log.Printf("HTTP server on %s stopped", s.address)
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("JSON encoding error: %v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
