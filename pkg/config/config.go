// Package config provides configuration loading and management for dcequant.
// It handles loading configuration from YAML files and provides default
// values matching the reference tool's slider defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"dcequant/pkg/analysis"
	"dcequant/pkg/volume"
)

// Box is a YAML-friendly voxel bounding box. Non-positive upper extents mean
// "to the volume edge", so the zero value selects the full volume.
type Box struct {
	X0 int `yaml:"x0"`
	X1 int `yaml:"x1"`
	Y0 int `yaml:"y0"`
	Y1 int `yaml:"y1"`
	Z0 int `yaml:"z0"`
	Z1 int `yaml:"z1"`
}

// Resolve converts the box to a clamped volume.BoundingBox on the given grid.
func (b Box) Resolve(g volume.Geometry) volume.BoundingBox {
	out := volume.BoundingBox{
		X0: b.X0, X1: b.X1,
		Y0: b.Y0, Y1: b.Y1,
		Z0: b.Z0, Z1: b.Z1,
	}
	if out.X1 <= 0 {
		out.X1 = g.NX
	}
	if out.Y1 <= 0 {
		out.Y1 = g.NY
	}
	if out.Z1 <= 0 {
		out.Z1 = g.NZ
	}
	return out.Clamp(g)
}

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Analysis parameters
	Analysis struct {
		// PreIndex, EarlyIndex and LateIndex are ordinals into the input
		// sequence. LateIndex -1 selects the last frame.
		PreIndex   int `yaml:"preIndex"`
		EarlyIndex int `yaml:"earlyIndex"`
		LateIndex  int `yaml:"lateIndex"`

		// BackgroundPercentile is the percentile of the pre-contrast
		// intensities inside the markup box (0..100).
		BackgroundPercentile float64 `yaml:"backgroundPercentile"`

		// BackgroundThresholdPercent is the slider-style percent multiplier
		// applied to the percentile value (60 means 0.6x).
		BackgroundThresholdPercent float64 `yaml:"backgroundThresholdPercent"`

		// PEThreshold is the minimum peak enhancement in percent.
		PEThreshold float64 `yaml:"peThreshold"`

		// SERMode is "range" or "single".
		SERMode string `yaml:"serMode"`

		// SERRangeLow and SERRangeHigh are the range-mode cut points.
		SERRangeLow  float64 `yaml:"serRangeLow"`
		SERRangeHigh float64 `yaml:"serRangeHigh"`

		// SERThreshold is the single-mode cut point.
		SERThreshold float64 `yaml:"serThreshold"`

		// SERClamp zeroes SER above this value; 0 disables.
		SERClamp float64 `yaml:"serClamp"`
	} `yaml:"analysis"`

	// ROI parameters. The interactive segment editor is the host
	// application's concern; the CLI supports a box ROI or the full volume.
	ROI struct {
		// Mode is "full" or "box".
		Mode string `yaml:"mode"`

		// Box is the ROI box when Mode is "box".
		Box Box `yaml:"box"`
	} `yaml:"roi"`

	// MarkupBox scopes the background-percentile estimate.
	MarkupBox Box `yaml:"markupBox"`

	// Projection parameters
	Projection struct {
		// Axis is the MIP ray direction: "x", "y" or "z".
		Axis string `yaml:"axis"`
	} `yaml:"projection"`

	// Output parameters
	Output struct {
		// SaveRawMaps writes the PE/SER maps as raw float64 volumes.
		SaveRawMaps bool `yaml:"saveRawMaps"`

		// Verbose controls the level of logging output.
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values. The numeric
// defaults mirror the reference tool's sliders: 95th percentile background at
// 60%, PE threshold 70%, range-mode SER classification clamped at 3.0.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Analysis.PreIndex = 0
	cfg.Analysis.EarlyIndex = 1
	cfg.Analysis.LateIndex = -1
	cfg.Analysis.BackgroundPercentile = 95.0
	cfg.Analysis.BackgroundThresholdPercent = 60.0
	cfg.Analysis.PEThreshold = 70.0
	cfg.Analysis.SERMode = "range"
	cfg.Analysis.SERRangeLow = 0.9
	cfg.Analysis.SERRangeHigh = 1.1
	cfg.Analysis.SERThreshold = 1.4
	cfg.Analysis.SERClamp = 3.0

	cfg.ROI.Mode = "full"
	cfg.Projection.Axis = "z"
	cfg.Output.SaveRawMaps = true
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the
// specified path.
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// ThresholdConfig converts the analysis section into the engine's threshold
// configuration, resolving the late index against the sequence length and the
// percent-style background slider into a fraction.
func (c *Config) ThresholdConfig(sequenceLen int) (analysis.ThresholdConfig, error) {
	late := c.Analysis.LateIndex
	if late < 0 {
		late = sequenceLen - 1
	}

	var mode analysis.SERMode
	switch c.Analysis.SERMode {
	case "range", "":
		mode = analysis.SERRange(c.Analysis.SERRangeLow, c.Analysis.SERRangeHigh)
	case "single":
		mode = analysis.SERSingle(c.Analysis.SERThreshold)
	default:
		return analysis.ThresholdConfig{}, fmt.Errorf("unknown serMode %q (must be range or single)", c.Analysis.SERMode)
	}

	return analysis.ThresholdConfig{
		PreIndex:             c.Analysis.PreIndex,
		EarlyIndex:           c.Analysis.EarlyIndex,
		LateIndex:            late,
		BackgroundPercentile: c.Analysis.BackgroundPercentile,
		BackgroundFraction:   c.Analysis.BackgroundThresholdPercent / 100.0,
		PEThreshold:          c.Analysis.PEThreshold,
		SERMode:              mode,
		SERClamp:             c.Analysis.SERClamp,
	}, nil
}
