// Command normals-server loads a mesh and serves the normals viewer API,
// recomputing normals whenever a client changes the parameters.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/normals.report/internal/config"
	"github.com/banshee-data/normals.report/internal/fsutil"
	"github.com/banshee-data/normals.report/internal/meshio"
	"github.com/banshee-data/normals.report/internal/monitor"
	"github.com/banshee-data/normals.report/internal/normalsdb"
	"github.com/banshee-data/normals.report/internal/pointcloud"
	"github.com/banshee-data/normals.report/internal/version"
)

var (
	listen     = flag.String("listen", ":8090", "Listen address")
	input      = flag.String("in", "", "Input mesh or point cloud (.off, .obj, .xyz)")
	configPath = flag.String("config", "", "Path to a normals JSON config")
	dbPath     = flag.String("db", "", "SQLite database for run history and /debug/ admin routes")
	logDiag    = flag.Bool("log-diag", false, "Log per-point diagnostics to stderr")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if *input == "" {
		log.Fatal("-in is required")
	}
	log.Printf("normals-server %s", version.String())

	lw := pointcloud.LogWriters{Ops: os.Stderr}
	if *logDiag {
		lw.Diag = os.Stderr
	}
	pointcloud.SetLogWriters(lw)

	cfg := config.DefaultNormalsConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadNormalsConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	mesh, err := meshio.Load(fsutil.OSFileSystem{}, *input)
	if err != nil {
		log.Fatalf("failed to load %s: %v", *input, err)
	}

	serverCfg := monitor.Config{
		Address:    *listen,
		Mesh:       mesh,
		SourcePath: *input,
		Normals:    cfg,
	}
	if *dbPath != "" {
		db, err := normalsdb.OpenDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		serverCfg.DB = db
		serverCfg.Runs = normalsdb.NewRunStore(db.DB)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := monitor.NewServer(serverCfg)
	if _, _, err := server.Recalculate(cfg.ToParams()); err != nil {
		log.Printf("initial recalculation failed: %v", err)
	}
	if err := server.Start(ctx); err != nil {
		log.Printf("server error: %v", err)
	}
	log.Print("graceful shutdown complete")
}
