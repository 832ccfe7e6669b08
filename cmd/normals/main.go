// Command normals estimates and orients per-point normals for a mesh or
// point cloud file and writes the oriented normals back out.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/normals.report/internal/config"
	"github.com/banshee-data/normals.report/internal/fsutil"
	"github.com/banshee-data/normals.report/internal/meshio"
	"github.com/banshee-data/normals.report/internal/monitor"
	"github.com/banshee-data/normals.report/internal/normalsdb"
	"github.com/banshee-data/normals.report/internal/pointcloud"
	"github.com/banshee-data/normals.report/internal/pointcloud/pipeline"
	"github.com/banshee-data/normals.report/internal/version"
)

var (
	configPath    = flag.String("config", "", "Path to a normals JSON config (defaults to "+config.DefaultConfigPath+" when present)")
	input         = flag.String("in", "", "Input mesh or point cloud (.off, .obj, .xyz)")
	output        = flag.String("out", "", "Output file (.xyzn, .csv, .off); empty prints a summary only")
	kNeighbors    = flag.Int("k", 0, "Number of nearest neighbours (overrides config)")
	maxDistance   = flag.Float64("max-distance", 0, "Neighbour distance cutoff, 0 for unbounded (overrides config)")
	source        = flag.String("source", "", "Neighbour source: knn or faces (overrides config)")
	seed          = flag.Int("seed", 0, "Orientation seed point (overrides config)")
	strategy      = flag.String("strategy", "", "Seed strategy: fixed or lowest_variation (overrides config)")
	allComponents = flag.Bool("all-components", false, "Orient every connected component, not just the seed's")
	workers       = flag.Int("workers", 0, "Estimation goroutines, 0 for GOMAXPROCS (overrides config)")
	dbPath        = flag.String("db", "", "Record the run in this SQLite database")
	plotPath      = flag.String("plot", "", "Write a surface variation histogram PNG to this path")
	logDiag       = flag.Bool("log-diag", false, "Log per-point diagnostics to stderr")
	logTrace      = flag.Bool("log-trace", false, "Log per-query telemetry to stderr")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if err := realMain(); err != nil {
		log.Fatal(err)
	}
}

// realMain does the work of main and returns instead of exiting, so the
// deferred database close always runs.
func realMain() error {
	if *showVersion {
		fmt.Println(version.String())
		return nil
	}
	if *input == "" {
		return errors.New("-in is required")
	}

	configureLogging(os.Stderr, *logDiag, *logTrace)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	applyFlags(cfg, set)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var runs *normalsdb.RunStore
	if *dbPath != "" {
		db, err := normalsdb.OpenDB(*dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		runs = normalsdb.NewRunStore(db.DB)
	}

	res, err := run(fsutil.OSFileSystem{}, job{
		Input:  *input,
		Output: *output,
		Plot:   *plotPath,
		Params: cfg.ToParams(),
		Runs:   runs,
	})
	if err != nil {
		return err
	}
	s := res.Output.Summary()
	fmt.Printf("points=%d edges=%d flips=%d visited=%d components=%d degenerate=%d low_confidence=%d missing=%d coincident=%d total=%s\n",
		s.Points, s.Edges, s.Flips, s.Visited, s.Components, s.Degenerate, s.LowConfidence, s.MissingEntries, s.Coincident, res.Output.Timings.Total)
	if res.RunID != "" {
		fmt.Printf("run_id=%s\n", res.RunID)
	}
	return nil
}

// configureLogging routes the ops stream to w and enables the diag and
// trace streams on request.
func configureLogging(w io.Writer, diag, trace bool) {
	lw := pointcloud.LogWriters{Ops: w}
	if diag {
		lw.Diag = w
	}
	if trace {
		lw.Trace = w
	}
	pointcloud.SetLogWriters(lw)
}

// loadConfig reads path, or the default config file when path is empty
// and the file exists, or falls back to the built-in defaults.
func loadConfig(path string) (*config.NormalsConfig, error) {
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err != nil {
			return config.DefaultNormalsConfig(), nil
		}
		path = config.DefaultConfigPath
	}
	return config.LoadNormalsConfig(path)
}

// applyFlags copies explicitly set flags over the loaded config.
func applyFlags(cfg *config.NormalsConfig, set map[string]bool) {
	if set["k"] {
		cfg.KNeighbors = kNeighbors
	}
	if set["max-distance"] {
		cfg.MaxDistance = maxDistance
	}
	if set["source"] {
		cfg.NeighborSource = source
	}
	if set["seed"] {
		cfg.Seed = seed
	}
	if set["strategy"] {
		cfg.SeedStrategy = strategy
	}
	if set["all-components"] {
		cfg.OrientAllComponents = allComponents
	}
	if set["workers"] {
		cfg.Workers = workers
	}
}

// job is one file-to-file normals computation.
type job struct {
	Input  string
	Output string
	Plot   string
	Params pipeline.Params
	Runs   *normalsdb.RunStore
}

type result struct {
	Output *pipeline.Output
	RunID  string
}

func run(fsys fsutil.FileSystem, j job) (*result, error) {
	mesh, err := meshio.Load(fsys, j.Input)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", j.Input, err)
	}
	out, err := pipeline.Recalc(mesh.Cloud, mesh.Faces, j.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to compute normals: %w", err)
	}
	res := &result{Output: out}

	if j.Output != "" {
		if err := meshio.Save(fsys, j.Output, mesh, out.Normals); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", j.Output, err)
		}
		log.Printf("wrote %d normals to %s", len(out.Normals), j.Output)
	}
	if j.Plot != "" {
		if err := monitor.SaveVariationPNG(fsys, j.Plot, out, 0); err != nil {
			// A cloud of degenerate points has nothing to plot; the
			// normals themselves are still written.
			log.Printf("failed to write plot %s: %v", j.Plot, err)
		}
	}
	if j.Runs != nil {
		rec, err := normalsdb.NewRun(j.Input, len(mesh.Faces), out)
		if err != nil {
			return nil, err
		}
		if err := j.Runs.Insert(rec); err != nil {
			return nil, fmt.Errorf("failed to record run: %w", err)
		}
		if err := j.Runs.InsertPoints(rec.RunID, out.Normals, out.Report); err != nil {
			return nil, fmt.Errorf("failed to record run points: %w", err)
		}
		res.RunID = rec.RunID
	}
	return res, nil
}
