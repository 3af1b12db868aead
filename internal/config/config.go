// Package config loads the engine tuning parameters from YAML. Fields
// omitted from a config file keep their defaults, so partial configs are
// safe.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sheetscan/omr-engine/internal/omr"
)

// Worker pool bounds.
const (
	MinWorkers = 1
	MaxWorkers = 16
)

// maxFileSize caps how large a config file may be (1MB).
const maxFileSize = 1 * 1024 * 1024

// Config is the root tuning configuration.
type Config struct {
	Thresholding Thresholding `yaml:"thresholding"`
	Processing   Processing   `yaml:"processing"`
	Outputs      Outputs      `yaml:"outputs"`
}

// Thresholding tunes the bubble threshold strategies.
type Thresholding struct {
	// MinJump is the smallest intensity gap treated as a real
	// separation between marked and unmarked bubbles.
	MinJump float64 `yaml:"min_jump"`

	// MinGapTwoBubbles is the minimum spread required before a
	// two-sample field may split at its own midpoint.
	MinGapTwoBubbles float64 `yaml:"min_gap_two_bubbles"`

	// MinJumpSurplus is added to MinJump to form the bar a local
	// separation must clear to stand on its own.
	MinJumpSurplus float64 `yaml:"min_jump_surplus"`

	// OutlierDeviationThreshold is the field standard deviation above
	// which a weak local jump is kept instead of discarded.
	OutlierDeviationThreshold float64 `yaml:"outlier_deviation_threshold"`

	// GlobalPageThreshold is the file-wide default used when a whole
	// sheet yields too few samples to derive a threshold.
	GlobalPageThreshold float64 `yaml:"global_page_threshold"`

	// GammaLow is the gamma correction applied by the Levels
	// preprocessor for underexposed scans.
	GammaLow float64 `yaml:"gamma_low"`
}

// Processing tunes the batch scheduler.
type Processing struct {
	// WorkerCount is the parallel worker pool size, 1 to 16.
	WorkerCount int `yaml:"worker_count"`
}

// Outputs tunes result export behavior.
type Outputs struct {
	// ShowConfidenceMetrics enables the per-bubble local-versus-global
	// disparity accounting.
	ShowConfidenceMetrics bool `yaml:"show_confidence_metrics"`

	// SaveAnnotated writes an annotated copy of each processed sheet.
	SaveAnnotated bool `yaml:"save_annotated"`

	// FilterMultiMarked diverts multi-marked sheets from the main
	// results file into the multi-marked one instead of duplicating.
	FilterMultiMarked bool `yaml:"filter_out_multimarked"`
}

// Default returns the canonical tuning values.
func Default() Config {
	return Config{
		Thresholding: Thresholding{
			MinJump:                   25,
			MinGapTwoBubbles:          30,
			MinJumpSurplus:            5,
			OutlierDeviationThreshold: 5,
			GlobalPageThreshold:       200,
			GammaLow:                  0.7,
		},
		Processing: Processing{
			WorkerCount: 4,
		},
	}
}

// Load reads a YAML config file over the defaults and validates the
// result.
func Load(path string) (Config, error) {
	cfg := Default()

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return cfg, fmt.Errorf("config file must have .yaml extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return cfg, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the tuning values for usable ranges.
func (c *Config) Validate() error {
	t := c.Thresholding
	if t.MinJump <= 0 {
		return fmt.Errorf("min_jump must be positive, got %v", t.MinJump)
	}
	if t.MinGapTwoBubbles <= 0 {
		return fmt.Errorf("min_gap_two_bubbles must be positive, got %v", t.MinGapTwoBubbles)
	}
	if t.MinJumpSurplus < 0 {
		return fmt.Errorf("min_jump_surplus must be non-negative, got %v", t.MinJumpSurplus)
	}
	if t.OutlierDeviationThreshold < 0 {
		return fmt.Errorf("outlier_deviation_threshold must be non-negative, got %v", t.OutlierDeviationThreshold)
	}
	if t.GlobalPageThreshold <= 0 || t.GlobalPageThreshold > 255 {
		return fmt.Errorf("global_page_threshold must be within (0, 255], got %v", t.GlobalPageThreshold)
	}
	if t.GammaLow < 0.1 || t.GammaLow > 3 {
		return fmt.Errorf("gamma_low must be between 0.1 and 3, got %v", t.GammaLow)
	}
	if w := c.Processing.WorkerCount; w < MinWorkers || w > MaxWorkers {
		return fmt.Errorf("worker_count must be between %d and %d, got %d", MinWorkers, MaxWorkers, w)
	}
	return nil
}

// ThresholdConfig maps the tuning values onto the field-level threshold
// tunables. The default threshold stays at mid-scale; only the file-wide
// derivation uses GlobalPageThreshold.
func (c *Config) ThresholdConfig() omr.ThresholdConfig {
	tc := omr.DefaultThresholdConfig()
	tc.MinJump = c.Thresholding.MinJump
	tc.MinGapTwoBubbles = c.Thresholding.MinGapTwoBubbles
	tc.MinJumpSurplus = c.Thresholding.MinJumpSurplus
	tc.OutlierDeviationThreshold = c.Thresholding.OutlierDeviationThreshold
	return tc
}

// PageThresholdConfig is ThresholdConfig with the default threshold
// raised to GlobalPageThreshold, for deriving a sheet's fallback from
// all of its samples.
func (c *Config) PageThresholdConfig() omr.ThresholdConfig {
	tc := c.ThresholdConfig()
	tc.DefaultThreshold = c.Thresholding.GlobalPageThreshold
	return tc
}
