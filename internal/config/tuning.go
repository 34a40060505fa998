package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/usage.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// All fields are pointers so a partial JSON file only overrides what it
// names; the Get* accessors supply defaults for everything else.
type TuningConfig struct {
	// Session lifecycle params
	GapTolerance   *string `json:"gap_tolerance,omitempty"`   // duration string like "100ms"
	AlertThreshold *string `json:"alert_threshold,omitempty"` // duration string like "15m"

	// Association gates
	IoUGate              *float64 `json:"iou_gate,omitempty"`
	AreaChangeGate       *float64 `json:"area_change_gate,omitempty"`
	CentroidDistanceGate *float64 `json:"centroid_distance_gate,omitempty"` // pixels at full frame resolution

	// Material classifier params
	EntropyThreshold     *float64 `json:"entropy_threshold,omitempty"`
	GlareRatioThreshold  *float64 `json:"glare_ratio_threshold,omitempty"`
	BrightPixelThreshold *int     `json:"bright_pixel_threshold,omitempty"` // grayscale intensity 0-255
	MemoryEvictionFrames *int     `json:"memory_eviction_frames,omitempty"` // classifier ticks before unseen ids are dropped

	// Detector params
	MinConfidence *float64 `json:"min_confidence,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON file retain their
// default values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

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

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching the current directory and common parent
// directories so it works from the repository root and from package test
// directories alike.
func LoadDefaultConfig() (*TuningConfig, error) {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/vision/sessions/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg, nil
		}
	}
	return nil, fmt.Errorf("cannot find %s relative to the working directory", DefaultConfigPath)
}

// MustLoadDefaultConfig is LoadDefaultConfig for test setup; it panics
// when the defaults file cannot be found.
func MustLoadDefaultConfig() *TuningConfig {
	cfg, err := LoadDefaultConfig()
	if err != nil {
		panic(err.Error() + " - run tests from repository root")
	}
	return cfg
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.GapTolerance != nil && *c.GapTolerance != "" {
		if _, err := time.ParseDuration(*c.GapTolerance); err != nil {
			return fmt.Errorf("invalid gap_tolerance '%s': %w", *c.GapTolerance, err)
		}
	}

	if c.AlertThreshold != nil && *c.AlertThreshold != "" {
		if _, err := time.ParseDuration(*c.AlertThreshold); err != nil {
			return fmt.Errorf("invalid alert_threshold '%s': %w", *c.AlertThreshold, err)
		}
	}

	if c.IoUGate != nil {
		if *c.IoUGate < 0 || *c.IoUGate > 1 {
			return fmt.Errorf("iou_gate must be between 0 and 1, got %f", *c.IoUGate)
		}
	}

	if c.AreaChangeGate != nil && *c.AreaChangeGate < 0 {
		return fmt.Errorf("area_change_gate must be non-negative, got %f", *c.AreaChangeGate)
	}

	if c.CentroidDistanceGate != nil && *c.CentroidDistanceGate <= 0 {
		return fmt.Errorf("centroid_distance_gate must be positive, got %f", *c.CentroidDistanceGate)
	}

	if c.GlareRatioThreshold != nil {
		if *c.GlareRatioThreshold < 0 || *c.GlareRatioThreshold > 1 {
			return fmt.Errorf("glare_ratio_threshold must be between 0 and 1, got %f", *c.GlareRatioThreshold)
		}
	}

	if c.BrightPixelThreshold != nil {
		if *c.BrightPixelThreshold < 0 || *c.BrightPixelThreshold > 255 {
			return fmt.Errorf("bright_pixel_threshold must be between 0 and 255, got %d", *c.BrightPixelThreshold)
		}
	}

	if c.MemoryEvictionFrames != nil && *c.MemoryEvictionFrames < 0 {
		return fmt.Errorf("memory_eviction_frames must be non-negative, got %d", *c.MemoryEvictionFrames)
	}

	if c.MinConfidence != nil {
		if *c.MinConfidence < 0 || *c.MinConfidence > 1 {
			return fmt.Errorf("min_confidence must be between 0 and 1, got %f", *c.MinConfidence)
		}
	}

	return nil
}

// GetGapTolerance parses and returns the GapTolerance as a time.Duration.
func (c *TuningConfig) GetGapTolerance() time.Duration {
	if c.GapTolerance == nil || *c.GapTolerance == "" {
		return 100 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.GapTolerance)
	if err != nil {
		return 100 * time.Millisecond // default on parse error
	}
	return d
}

// GetAlertThreshold parses and returns the AlertThreshold as a time.Duration.
func (c *TuningConfig) GetAlertThreshold() time.Duration {
	if c.AlertThreshold == nil || *c.AlertThreshold == "" {
		return 15 * time.Minute // default
	}
	d, err := time.ParseDuration(*c.AlertThreshold)
	if err != nil {
		return 15 * time.Minute // default on parse error
	}
	return d
}

// GetIoUGate returns the iou_gate value or the default.
func (c *TuningConfig) GetIoUGate() float64 {
	if c.IoUGate == nil {
		return 0.30
	}
	return *c.IoUGate
}

// GetAreaChangeGate returns the area_change_gate value or the default.
func (c *TuningConfig) GetAreaChangeGate() float64 {
	if c.AreaChangeGate == nil {
		return 0.40
	}
	return *c.AreaChangeGate
}

// GetCentroidDistanceGate returns the centroid_distance_gate value or the default.
func (c *TuningConfig) GetCentroidDistanceGate() float64 {
	if c.CentroidDistanceGate == nil {
		return 80.0
	}
	return *c.CentroidDistanceGate
}

// GetEntropyThreshold returns the entropy_threshold value or the default.
func (c *TuningConfig) GetEntropyThreshold() float64 {
	if c.EntropyThreshold == nil {
		return 5.5
	}
	return *c.EntropyThreshold
}

// GetGlareRatioThreshold returns the glare_ratio_threshold value or the default.
func (c *TuningConfig) GetGlareRatioThreshold() float64 {
	if c.GlareRatioThreshold == nil {
		return 0.005
	}
	return *c.GlareRatioThreshold
}

// GetBrightPixelThreshold returns the bright_pixel_threshold value or the default.
func (c *TuningConfig) GetBrightPixelThreshold() int {
	if c.BrightPixelThreshold == nil {
		return 200
	}
	return *c.BrightPixelThreshold
}

// GetMemoryEvictionFrames returns the memory_eviction_frames value or the default.
func (c *TuningConfig) GetMemoryEvictionFrames() int {
	if c.MemoryEvictionFrames == nil {
		return 1800 // roughly one minute at 30 fps
	}
	return *c.MemoryEvictionFrames
}

// GetMinConfidence returns the min_confidence value or the default.
func (c *TuningConfig) GetMinConfidence() float64 {
	if c.MinConfidence == nil {
		return 0.4
	}
	return *c.MinConfidence
}
