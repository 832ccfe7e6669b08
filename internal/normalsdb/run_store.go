package normalsdb

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/normals.report/internal/pointcloud"
	"github.com/banshee-data/normals.report/internal/pointcloud/l2normals"
	"github.com/banshee-data/normals.report/internal/pointcloud/pipeline"
)

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("run not found")

// Run is one persisted recalculation.
type Run struct {
	RunID              string          `json:"run_id"`
	SourcePath         string          `json:"source_path"`
	PointCount         int             `json:"point_count"`
	FaceCount          int             `json:"face_count"`
	KNeighbors         int             `json:"k_neighbors"`
	MaxDistance        float64         `json:"max_distance"`
	NeighborSource     string          `json:"neighbor_source"`
	Seed               int             `json:"seed"`
	Flips              int             `json:"flips"`
	Visited            int             `json:"visited"`
	DegenerateCount    int             `json:"degenerate_count"`
	LowConfidenceCount int             `json:"low_confidence_count"`
	MissingEntryCount  int             `json:"missing_entry_count"`
	DurationNs         int64           `json:"duration_ns"`
	ParamsJSON         json.RawMessage `json:"params_json,omitempty"`
	CreatedAt          int64           `json:"created_at"`
}

// NewRun builds a Run from a pipeline output. The actual seed is taken
// from the first traversed component, which differs from the configured
// seed when a seed strategy picked it.
func NewRun(sourcePath string, faceCount int, out *pipeline.Output) (*Run, error) {
	params, err := json.Marshal(out.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}
	s := out.Summary()
	run := &Run{
		SourcePath:         sourcePath,
		PointCount:         s.Points,
		FaceCount:          faceCount,
		KNeighbors:         out.Params.K,
		MaxDistance:        out.Params.MaxDistance,
		NeighborSource:     string(out.Params.Source),
		Seed:               out.Params.Seed,
		Flips:              s.Flips,
		Visited:            s.Visited,
		DegenerateCount:    s.Degenerate,
		LowConfidenceCount: s.LowConfidence,
		MissingEntryCount:  s.MissingEntries,
		DurationNs:         out.Timings.Total.Nanoseconds(),
		ParamsJSON:         params,
	}
	if len(out.Orientation.Components) > 0 {
		run.Seed = out.Orientation.Components[0].Seed
	}
	return run, nil
}

// PointNormal is one stored normal.
type PointNormal struct {
	PointID       int    `json:"point_id"`
	Normal        r3.Vec `json:"normal"`
	Degenerate    bool   `json:"degenerate"`
	LowConfidence bool   `json:"low_confidence"`
}

// RunStore provides persistence for runs and their normals.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

const runColumns = `run_id, source_path, point_count, face_count, k_neighbors, max_distance,
	neighbor_source, seed, flips, visited, degenerate_count, low_confidence_count,
	missing_entry_count, duration_ns, params_json, created_at`

// Insert persists a new run. If RunID is empty, a UUID is generated.
func (s *RunStore) Insert(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}

	var paramsStr interface{}
	if len(run.ParamsJSON) > 0 {
		paramsStr = string(run.ParamsJSON)
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`INSERT INTO normal_runs (`+runColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.SourcePath, run.PointCount, run.FaceCount, run.KNeighbors, run.MaxDistance,
			run.NeighborSource, run.Seed, run.Flips, run.Visited, run.DegenerateCount, run.LowConfidenceCount,
			run.MissingEntryCount, run.DurationNs, paramsStr, run.CreatedAt,
		)
		return err
	})
}

// InsertPoints stores the normal field of a run in one transaction.
// report may be nil, in which case only sentinel normals are marked
// degenerate.
func (s *RunStore) InsertPoints(runID string, normals pointcloud.NormalField, report *l2normals.Report) error {
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(`INSERT INTO normal_run_points
			(run_id, point_id, nx, ny, nz, degenerate, low_confidence)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, n := range normals {
			degenerate := normals.IsSentinel(i)
			lowConfidence := false
			if report != nil && i < len(report.Estimates) {
				degenerate = report.Estimates[i].Degenerate
				lowConfidence = report.Estimates[i].LowConfidence
			}
			if _, err := stmt.Exec(runID, i, n.X, n.Y, n.Z, degenerate, lowConfidence); err != nil {
				return fmt.Errorf("insert point %d: %w", i, err)
			}
		}
		return tx.Commit()
	})
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var paramsStr sql.NullString
	err := row.Scan(
		&r.RunID, &r.SourcePath, &r.PointCount, &r.FaceCount, &r.KNeighbors, &r.MaxDistance,
		&r.NeighborSource, &r.Seed, &r.Flips, &r.Visited, &r.DegenerateCount, &r.LowConfidenceCount,
		&r.MissingEntryCount, &r.DurationNs, &paramsStr, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if paramsStr.Valid {
		r.ParamsJSON = json.RawMessage(paramsStr.String)
	}
	return &r, nil
}

// Get returns a single run by ID.
func (s *RunStore) Get(runID string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM normal_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// List returns the most recent runs, newest first. limit <= 0 returns all.
func (s *RunStore) List(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM normal_runs
		ORDER BY created_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Points returns the stored normals of a run ordered by point ID.
func (s *RunStore) Points(runID string) ([]PointNormal, error) {
	rows, err := s.db.Query(`SELECT point_id, nx, ny, nz, degenerate, low_confidence
		FROM normal_run_points WHERE run_id = ? ORDER BY point_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	var points []PointNormal
	for rows.Next() {
		var p PointNormal
		if err := rows.Scan(&p.PointID, &p.Normal.X, &p.Normal.Y, &p.Normal.Z, &p.Degenerate, &p.LowConfidence); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// NormalField rebuilds the stored field of a run as a dense slice.
func (s *RunStore) NormalField(runID string) (pointcloud.NormalField, error) {
	run, err := s.Get(runID)
	if err != nil {
		return nil, err
	}
	points, err := s.Points(runID)
	if err != nil {
		return nil, err
	}
	field := pointcloud.NewNormalField(run.PointCount)
	for _, p := range points {
		if p.PointID >= 0 && p.PointID < len(field) {
			field[p.PointID] = p.Normal
		}
	}
	return field, nil
}

// Delete removes a run and its normals.
func (s *RunStore) Delete(runID string) error {
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`DELETE FROM normal_run_points WHERE run_id = ?`, runID); err != nil {
			return err
		}
		res, err := tx.Exec(`DELETE FROM normal_runs WHERE run_id = ?`, runID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return tx.Commit()
	})
}
