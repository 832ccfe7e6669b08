// Command normals-sweep recomputes normals over a range of k values and
// reports how orientation and surface variation respond.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/banshee-data/normals.report/internal/config"
	"github.com/banshee-data/normals.report/internal/fsutil"
	"github.com/banshee-data/normals.report/internal/meshio"
	"github.com/banshee-data/normals.report/internal/monitor"
	"github.com/banshee-data/normals.report/internal/pointcloud"
	"github.com/banshee-data/normals.report/internal/pointcloud/pipeline"
)

var (
	configPath  = flag.String("config", "", "Path to a normals JSON config for the non-swept parameters")
	input       = flag.String("in", "", "Input mesh or point cloud (.off, .obj, .xyz)")
	kList       = flag.String("k", "3,4,5,6,8,10,12,16", "Comma-separated k values to sweep")
	maxDistance = flag.Float64("max-distance", 0, "Neighbour distance cutoff, 0 for unbounded (overrides config)")
	output      = flag.String("out", "", "CSV output path (stdout when empty)")
	chartPath   = flag.String("chart", "", "Write an HTML chart of the sweep to this path")
	quiet       = flag.Bool("quiet", false, "Suppress ops logging")
)

func main() {
	flag.Parse()
	if *input == "" {
		log.Fatal("-in is required")
	}
	if !*quiet {
		pointcloud.SetLogWriters(pointcloud.LogWriters{Ops: os.Stderr})
	}

	ks, err := parseCSVIntSlice(*kList)
	if err != nil {
		log.Fatalf("invalid -k: %v", err)
	}
	if len(ks) == 0 {
		log.Fatal("-k must list at least one value")
	}

	cfg := config.DefaultNormalsConfig()
	if *configPath != "" {
		if cfg, err = config.LoadNormalsConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	base := cfg.ToParams()
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "max-distance" {
			base.MaxDistance = *maxDistance
		}
	})

	fsys := fsutil.OSFileSystem{}
	mesh, err := meshio.Load(fsys, *input)
	if err != nil {
		log.Fatalf("failed to load %s: %v", *input, err)
	}
	points, err := pipeline.SweepK(mesh.Cloud, mesh.Faces, base, ks)
	if err != nil {
		log.Fatalf("sweep failed: %v", err)
	}

	var w io.Writer = os.Stdout
	if *output != "" {
		err = fsutil.WriteFileAtomic(fsys, *output, func(w io.Writer) error {
			return writeSweepCSV(w, points)
		})
	} else {
		err = writeSweepCSV(w, points)
	}
	if err != nil {
		log.Fatalf("failed to write CSV: %v", err)
	}

	if *chartPath != "" {
		if err := fsutil.WriteFileAtomic(fsys, *chartPath, func(w io.Writer) error {
			return monitor.RenderSweepChart(w, points)
		}); err != nil {
			log.Fatalf("failed to write chart: %v", err)
		}
		log.Printf("wrote sweep chart to %s", *chartPath)
	}
}

// parseCSVIntSlice parses a comma-separated list of ints
func parseCSVIntSlice(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid int '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

var sweepHeader = []string{
	"k", "max_distance", "points", "edges", "flips", "visited", "components",
	"degenerate", "low_confidence", "missing_entries", "disagreeing_edges",
	"mean_variation", "stddev_variation", "duration_ms",
}

func writeSweepCSV(w io.Writer, points []pipeline.SweepPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(sweepHeader); err != nil {
		return err
	}
	for _, p := range points {
		s := p.Summary
		row := []string{
			strconv.Itoa(p.K),
			strconv.FormatFloat(p.MaxDistance, 'g', -1, 64),
			strconv.Itoa(s.Points),
			strconv.Itoa(s.Edges),
			strconv.Itoa(s.Flips),
			strconv.Itoa(s.Visited),
			strconv.Itoa(s.Components),
			strconv.Itoa(s.Degenerate),
			strconv.Itoa(s.LowConfidence),
			strconv.Itoa(s.MissingEntries),
			strconv.Itoa(p.DisagreeingEdges),
			strconv.FormatFloat(p.MeanVariation, 'g', 6, 64),
			strconv.FormatFloat(p.StdDevVariation, 'g', 6, 64),
			strconv.FormatFloat(float64(p.Duration.Microseconds())/1000, 'f', 3, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
