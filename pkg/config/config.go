// Package config provides configuration loading and management for slimaps.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"slimaps/pkg/features"
	"slimaps/pkg/generation"
	"slimaps/pkg/imageio"
	"slimaps/pkg/peaks"
	"slimaps/pkg/preparation"
)

// Progress display modes
const (
	ProgressTerminal = "terminal"
	ProgressLog      = "log"
	ProgressNone     = "none"
)

// ErrInvalid is wrapped by every validation error
var ErrInvalid = errors.New("invalid configuration")

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumWorkers specifies how many goroutines generate features
		NumWorkers int `yaml:"numWorkers"`

		// ROISize is the edge length of the averaged pixel blocks
		ROISize int `yaml:"roiSize"`

		// Smoothing selects the line profile filter: none, savgol or fourier
		Smoothing string `yaml:"smoothing"`

		SavGolWindow     int     `yaml:"savgolWindow"`
		SavGolOrder      int     `yaml:"savgolOrder"`
		FourierThreshold float64 `yaml:"fourierThreshold"`
		FourierSmoothing float64 `yaml:"fourierSmoothing"`

		// MaskBackground zeroes profiles that never reach MaskThreshold
		MaskBackground bool    `yaml:"maskBackground"`
		MaskThreshold  float64 `yaml:"maskThreshold"`
	} `yaml:"processing"`

	// Peak detection parameters
	Peaks struct {
		// Prominence is the normalized prominence threshold of high
		// prominence peaks
		Prominence float64 `yaml:"prominence"`

		// TargetPeakHeight is the relative height used by the centroid
		// correction
		TargetPeakHeight float64 `yaml:"targetPeakHeight"`

		// MinHeight drops peaks below this normalized height
		MinHeight float64 `yaml:"minHeight"`
	} `yaml:"peaks"`

	// Features lists the generated parameter maps; "all" selects every map
	Features []string `yaml:"features"`

	// Output parameters
	Output struct {
		// Dir is the directory the maps are written to
		Dir string `yaml:"dir"`

		// Format is npy, tiff or both
		Format string `yaml:"format"`

		// Upsample writes maps at the native image resolution
		Upsample bool `yaml:"upsample"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`

		// LogLevel is one of debug, info, warn or error
		LogLevel string `yaml:"logLevel"`

		// Progress is terminal, log or none
		Progress string `yaml:"progress"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Use half of the logical cores by default
	cfg.Processing.NumWorkers = max(1, runtime.NumCPU()/2)
	cfg.Processing.ROISize = 1
	cfg.Processing.Smoothing = string(preparation.SmoothingNone)
	cfg.Processing.SavGolWindow = preparation.DefaultSavGolWindow
	cfg.Processing.SavGolOrder = preparation.DefaultSavGolOrder
	cfg.Processing.FourierThreshold = preparation.DefaultFourierThreshold
	cfg.Processing.FourierSmoothing = preparation.DefaultFourierSmoothing
	cfg.Processing.MaskBackground = false
	cfg.Processing.MaskThreshold = preparation.DefaultMaskThreshold

	cfg.Peaks.Prominence = peaks.DefaultProminence
	cfg.Peaks.TargetPeakHeight = peaks.DefaultTargetPeakHeight
	cfg.Peaks.MinHeight = 0

	cfg.Features = features.AllNames()

	cfg.Output.Dir = "output"
	cfg.Output.Format = imageio.FormatTIFF
	cfg.Output.Upsample = true
	cfg.Output.Verbose = false
	cfg.Output.LogLevel = "info"
	cfg.Output.Progress = ProgressTerminal

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
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

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate checks value ranges and names
func (c *Config) Validate() error {
	p := c.Processing
	if p.NumWorkers < 1 {
		return fmt.Errorf("%w: numWorkers must be at least 1, got %d", ErrInvalid, p.NumWorkers)
	}
	if p.ROISize < 1 {
		return fmt.Errorf("%w: roiSize must be at least 1, got %d", ErrInvalid, p.ROISize)
	}
	if _, err := preparation.ParseSmoothing(p.Smoothing); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if p.MaskThreshold < 0 {
		return fmt.Errorf("%w: maskThreshold must not be negative", ErrInvalid)
	}

	if c.Peaks.Prominence < 0 || c.Peaks.Prominence > 1 {
		return fmt.Errorf("%w: prominence %v outside [0, 1]", ErrInvalid, c.Peaks.Prominence)
	}
	if c.Peaks.TargetPeakHeight <= 0 || c.Peaks.TargetPeakHeight > 1 {
		return fmt.Errorf("%w: targetPeakHeight %v outside (0, 1]", ErrInvalid, c.Peaks.TargetPeakHeight)
	}
	if c.Peaks.MinHeight < 0 || c.Peaks.MinHeight > 1 {
		return fmt.Errorf("%w: minHeight %v outside [0, 1]", ErrInvalid, c.Peaks.MinHeight)
	}

	sel, err := c.Selection()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if sel.Empty() {
		return fmt.Errorf("%w: no features selected", ErrInvalid)
	}

	switch c.Output.Format {
	case imageio.FormatNPY, imageio.FormatTIFF, imageio.FormatBoth:
	default:
		return fmt.Errorf("%w: unknown output format %q", ErrInvalid, c.Output.Format)
	}
	switch c.Output.Progress {
	case ProgressTerminal, ProgressLog, ProgressNone:
	default:
		return fmt.Errorf("%w: unknown progress mode %q", ErrInvalid, c.Output.Progress)
	}
	return nil
}

// Selection parses the configured feature names
func (c *Config) Selection() (features.Selection, error) {
	return features.ParseSelection(c.Features)
}

// PreparationOptions returns the ROI preparation options of the configuration
func (c *Config) PreparationOptions() preparation.Options {
	smoothing, _ := preparation.ParseSmoothing(c.Processing.Smoothing)

	opts := preparation.DefaultOptions()
	opts.ROISize = c.Processing.ROISize
	opts.Smoothing = smoothing
	opts.SavGolWindow = c.Processing.SavGolWindow
	opts.SavGolOrder = c.Processing.SavGolOrder
	opts.FourierThreshold = c.Processing.FourierThreshold
	opts.FourierSmoothing = c.Processing.FourierSmoothing
	opts.MaskBackground = c.Processing.MaskBackground
	opts.MaskThreshold = c.Processing.MaskThreshold
	opts.NumWorkers = c.Processing.NumWorkers
	return opts
}

// GenerationParams returns the feature generation parameters of the
// configuration. Provider, display and logger are left for the caller.
func (c *Config) GenerationParams() generation.Params {
	params := generation.DefaultParams()
	params.NumWorkers = c.Processing.NumWorkers
	params.Prominence = c.Peaks.Prominence
	params.TargetPeakHeight = c.Peaks.TargetPeakHeight
	params.MinPeakHeight = c.Peaks.MinHeight
	return params
}
