// Package config handles run configuration for the nerve hotspot pipeline.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MismatchPolicy controls how a sample present in only one of the two
// input datasets is handled.
type MismatchPolicy string

const (
	// MismatchSkip logs the sample and continues the batch.
	MismatchSkip MismatchPolicy = "skip"
	// MismatchFail aborts the run on the first mismatched sample.
	MismatchFail MismatchPolicy = "fail"
)

// Config represents a full pipeline run configuration.
type Config struct {
	Segmentation SegmentationConfig `yaml:"segmentation"`
	Grid         GridConfig         `yaml:"grid"`
	Neighbors    NeighborConfig     `yaml:"neighbors"`
	Categories   CategoryConfig     `yaml:"categories"`
	Run          RunConfig          `yaml:"run"`
}

// SegmentationConfig parameterizes hotspot extraction and filtering.
type SegmentationConfig struct {
	// WatershedTolerance sets the seed height of the distance-transform
	// watershed. Low values merge adjacent mask fragments into one object.
	WatershedTolerance float64 `yaml:"watershed_tolerance"`
	// AreaPercentile is the per-sample quantile of candidate areas below
	// which candidates are discarded as noise.
	AreaPercentile float64 `yaml:"area_percentile"`
}

// GridConfig parameterizes spatial binning.
type GridConfig struct {
	Step    float64 `yaml:"step"`
	ExtentX float64 `yaml:"extent_x"`
	ExtentY float64 `yaml:"extent_y"`
}

// NeighborConfig carries parameters for the downstream neighborhood /
// interaction analysis. The pipeline does not run that analysis; it emits
// these values alongside the corpus export so the consumer uses the same
// settings across cohorts.
type NeighborConfig struct {
	ExpansionThreshold float64 `yaml:"expansion_threshold"`
	KNN                int     `yaml:"knn"`
	DelaunayMaxDist    float64 `yaml:"delaunay_max_dist"`
}

// CategoryConfig defines the closed category vocabulary and the per-dataset
// collapse mapping from fine-grained phenotype labels to coarse ones.
type CategoryConfig struct {
	// Vocabulary is the ordered closed set of cell-type labels expected in
	// the single-cell dataset after collapsing. The hotspot label is
	// appended automatically and must not be listed here.
	Vocabulary []string `yaml:"vocabulary"`
	// Collapse maps a fine-grained phenotype label to its coarse label,
	// e.g. several epithelial subtypes onto "Cancer".
	Collapse map[string]string `yaml:"collapse"`
}

// RunConfig holds batch-level behavior.
type RunConfig struct {
	OnMismatch MismatchPolicy `yaml:"on_mismatch"`
	Workers    int            `yaml:"workers"`
	OutputDir  string         `yaml:"output_dir"`
	// ResultsDB is the SQLite file run results are persisted to.
	// Empty disables persistence.
	ResultsDB string `yaml:"results_db"`
	// RenderPlots enables per-sample heatmap / scatter PNG output.
	RenderPlots bool `yaml:"render_plots"`
}

// Load reads configuration from a YAML file. A missing file yields the
// default configuration; a malformed file is an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Segmentation: SegmentationConfig{
			WatershedTolerance: 0.0002,
			AreaPercentile:     0.05,
		},
		Grid: GridConfig{
			Step:    25,
			ExtentX: 850,
			ExtentY: 850,
		},
		Neighbors: NeighborConfig{
			ExpansionThreshold: 20,
			KNN:                20,
			DelaunayMaxDist:    20,
		},
		Categories: CategoryConfig{},
		Run: RunConfig{
			OnMismatch: MismatchSkip,
			Workers:    1,
			OutputDir:  "out",
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Segmentation.WatershedTolerance == 0 {
		cfg.Segmentation.WatershedTolerance = defaults.Segmentation.WatershedTolerance
	}
	if cfg.Segmentation.AreaPercentile == 0 {
		cfg.Segmentation.AreaPercentile = defaults.Segmentation.AreaPercentile
	}
	if cfg.Grid.Step == 0 {
		cfg.Grid.Step = defaults.Grid.Step
	}
	if cfg.Grid.ExtentX == 0 {
		cfg.Grid.ExtentX = defaults.Grid.ExtentX
	}
	if cfg.Grid.ExtentY == 0 {
		cfg.Grid.ExtentY = defaults.Grid.ExtentY
	}
	if cfg.Neighbors.ExpansionThreshold == 0 {
		cfg.Neighbors.ExpansionThreshold = defaults.Neighbors.ExpansionThreshold
	}
	if cfg.Neighbors.KNN == 0 {
		cfg.Neighbors.KNN = defaults.Neighbors.KNN
	}
	if cfg.Neighbors.DelaunayMaxDist == 0 {
		cfg.Neighbors.DelaunayMaxDist = defaults.Neighbors.DelaunayMaxDist
	}
	if cfg.Run.OnMismatch == "" {
		cfg.Run.OnMismatch = defaults.Run.OnMismatch
	}
	if cfg.Run.Workers == 0 {
		cfg.Run.Workers = defaults.Run.Workers
	}
	if cfg.Run.OutputDir == "" {
		cfg.Run.OutputDir = defaults.Run.OutputDir
	}
}

// Validate rejects configurations that would misbehave mid-run. Grid
// misconfiguration in particular must fail before any sample is processed.
func (c *Config) Validate() error {
	if c.Segmentation.WatershedTolerance <= 0 || c.Segmentation.WatershedTolerance >= 1 {
		return fmt.Errorf("watershed_tolerance %g out of range (0, 1)", c.Segmentation.WatershedTolerance)
	}
	if c.Segmentation.AreaPercentile < 0 || c.Segmentation.AreaPercentile >= 1 {
		return fmt.Errorf("area_percentile %g out of range [0, 1)", c.Segmentation.AreaPercentile)
	}
	if c.Grid.Step <= 0 {
		return fmt.Errorf("grid step %g must be positive", c.Grid.Step)
	}
	if c.Grid.Step > c.Grid.ExtentX || c.Grid.Step > c.Grid.ExtentY {
		return fmt.Errorf("grid step %g exceeds extent (%g, %g)", c.Grid.Step, c.Grid.ExtentX, c.Grid.ExtentY)
	}
	switch c.Run.OnMismatch {
	case MismatchSkip, MismatchFail:
	default:
		return fmt.Errorf("on_mismatch %q: want %q or %q", c.Run.OnMismatch, MismatchSkip, MismatchFail)
	}
	if c.Run.Workers < 1 {
		return fmt.Errorf("workers %d must be at least 1", c.Run.Workers)
	}
	for from, to := range c.Categories.Collapse {
		if _, again := c.Categories.Collapse[to]; again {
			return fmt.Errorf("collapse mapping is not idempotent: %q -> %q -> %q", from, to, c.Categories.Collapse[to])
		}
	}
	return nil
}
