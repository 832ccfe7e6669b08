package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/normals.report/internal/pointcloud/l1neighbors"
	"github.com/banshee-data/normals.report/internal/pointcloud/l2normals"
	"github.com/banshee-data/normals.report/internal/pointcloud/pipeline"
)

// DefaultConfigPath is the path to the canonical normals defaults file.
const DefaultConfigPath = "config/normals.defaults.json"

// NormalsConfig holds the estimation and orientation parameters.
// The schema matches the /api/normals/params endpoint so the same JSON
// can be used for both startup configuration and runtime updates.
type NormalsConfig struct {
	// Neighbourhood params
	KNeighbors     *int     `json:"k_neighbors,omitempty"`
	MaxDistance    *float64 `json:"max_distance,omitempty"` // 0 means unbounded
	MaxLeafSize    *int     `json:"max_leaf_size,omitempty"`
	NeighborSource *string  `json:"neighbor_source,omitempty"` // "knn" or "faces"

	// Orientation params
	Seed                *int    `json:"seed,omitempty"`
	SeedStrategy        *string `json:"seed_strategy,omitempty"` // "fixed" or "lowest_variation"
	OrientAllComponents *bool   `json:"orient_all_components,omitempty"`

	// Estimation params
	Workers            *int     `json:"workers,omitempty"`
	LowConfidenceRatio *float64 `json:"low_confidence_ratio,omitempty"`

	// Display
	SegmentScale *float64 `json:"segment_scale,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyNormalsConfig returns a NormalsConfig with all fields set to nil.
func EmptyNormalsConfig() *NormalsConfig {
	return &NormalsConfig{}
}

// DefaultNormalsConfig returns a NormalsConfig with every field set to its
// built-in default.
func DefaultNormalsConfig() *NormalsConfig {
	return &NormalsConfig{
		KNeighbors:          ptrInt(5),
		MaxDistance:         ptrFloat64(0),
		MaxLeafSize:         ptrInt(l1neighbors.DefaultMaxLeafSize),
		NeighborSource:      ptrString(string(pipeline.SourceKNN)),
		Seed:                ptrInt(0),
		SeedStrategy:        ptrString(pipeline.SeedFixed),
		OrientAllComponents: ptrBool(false),
		Workers:             ptrInt(0),
		LowConfidenceRatio:  ptrFloat64(l2normals.DefaultLowConfidenceRatio),
		SegmentScale:        ptrFloat64(pipeline.DefaultSegmentScale),
	}
}

// LoadNormalsConfig loads a NormalsConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file fall back to the Get* defaults, so
// partial configs are safe.
func LoadNormalsConfig(path string) (*NormalsConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyNormalsConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *NormalsConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/pointcloud/pipeline/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadNormalsConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *NormalsConfig) Validate() error {
	if c.KNeighbors != nil && *c.KNeighbors < 0 {
		return fmt.Errorf("k_neighbors must be non-negative, got %d", *c.KNeighbors)
	}
	if c.MaxDistance != nil && *c.MaxDistance < 0 {
		return fmt.Errorf("max_distance must be non-negative, got %f", *c.MaxDistance)
	}
	if c.MaxLeafSize != nil && *c.MaxLeafSize < 0 {
		return fmt.Errorf("max_leaf_size must be non-negative, got %d", *c.MaxLeafSize)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.SegmentScale != nil && *c.SegmentScale <= 0 {
		return fmt.Errorf("segment_scale must be positive, got %f", *c.SegmentScale)
	}
	// The remaining fields share their rules with the pipeline.
	if err := c.ToParams().Validate(); err != nil {
		return err
	}
	return nil
}

// GetKNeighbors returns the k_neighbors value or the default.
func (c *NormalsConfig) GetKNeighbors() int {
	if c.KNeighbors == nil {
		return 5
	}
	return *c.KNeighbors
}

// GetMaxDistance returns the max_distance value or the default (unbounded).
func (c *NormalsConfig) GetMaxDistance() float64 {
	if c.MaxDistance == nil {
		return 0
	}
	return *c.MaxDistance
}

// GetMaxLeafSize returns the max_leaf_size value or the default.
func (c *NormalsConfig) GetMaxLeafSize() int {
	if c.MaxLeafSize == nil || *c.MaxLeafSize == 0 {
		return l1neighbors.DefaultMaxLeafSize
	}
	return *c.MaxLeafSize
}

// GetNeighborSource returns the neighbor_source value or the default.
func (c *NormalsConfig) GetNeighborSource() string {
	if c.NeighborSource == nil || *c.NeighborSource == "" {
		return string(pipeline.SourceKNN)
	}
	return *c.NeighborSource
}

// GetSeed returns the seed value or the default.
func (c *NormalsConfig) GetSeed() int {
	if c.Seed == nil {
		return 0
	}
	return *c.Seed
}

// GetSeedStrategy returns the seed_strategy value or the default.
func (c *NormalsConfig) GetSeedStrategy() string {
	if c.SeedStrategy == nil || *c.SeedStrategy == "" {
		return pipeline.SeedFixed
	}
	return *c.SeedStrategy
}

// GetOrientAllComponents returns the orient_all_components value or the default.
func (c *NormalsConfig) GetOrientAllComponents() bool {
	if c.OrientAllComponents == nil {
		return false
	}
	return *c.OrientAllComponents
}

// GetWorkers returns the workers value or the default (GOMAXPROCS).
func (c *NormalsConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetLowConfidenceRatio returns the low_confidence_ratio value or the default.
func (c *NormalsConfig) GetLowConfidenceRatio() float64 {
	if c.LowConfidenceRatio == nil {
		return l2normals.DefaultLowConfidenceRatio
	}
	return *c.LowConfidenceRatio
}

// GetSegmentScale returns the segment_scale value or the default.
func (c *NormalsConfig) GetSegmentScale() float64 {
	if c.SegmentScale == nil {
		return pipeline.DefaultSegmentScale
	}
	return *c.SegmentScale
}

// ToParams converts the configuration to pipeline parameters.
func (c *NormalsConfig) ToParams() pipeline.Params {
	return pipeline.Params{
		K:                   c.GetKNeighbors(),
		MaxDistance:         c.GetMaxDistance(),
		MaxLeafSize:         c.GetMaxLeafSize(),
		Source:              pipeline.Source(c.GetNeighborSource()),
		Seed:                c.GetSeed(),
		SeedStrategy:        c.GetSeedStrategy(),
		OrientAllComponents: c.GetOrientAllComponents(),
		Workers:             c.GetWorkers(),
		LowConfidenceRatio:  c.GetLowConfidenceRatio(),
	}
}

// ApplyParams overwrites the config with the given pipeline parameters.
// It is the inverse of ToParams, used when a runtime update is persisted.
func (c *NormalsConfig) ApplyParams(p pipeline.Params) {
	c.KNeighbors = ptrInt(p.K)
	c.MaxDistance = ptrFloat64(p.MaxDistance)
	c.MaxLeafSize = ptrInt(p.MaxLeafSize)
	c.NeighborSource = ptrString(string(p.Source))
	c.Seed = ptrInt(p.Seed)
	c.SeedStrategy = ptrString(p.SeedStrategy)
	c.OrientAllComponents = ptrBool(p.OrientAllComponents)
	c.Workers = ptrInt(p.Workers)
	c.LowConfidenceRatio = ptrFloat64(p.LowConfidenceRatio)
}
