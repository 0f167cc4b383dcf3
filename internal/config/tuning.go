package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/beyondlink/internal/laser"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the JSON configuration file. Every field is optional;
// omitted fields fall back to the Get* defaults.
type TuningConfig struct {
	// Scanner simulation
	ScannerSimulation   *bool    `json:"scanner_simulation,omitempty"`
	SampleCount         *int     `json:"sample_count,omitempty"`
	EdgeFade            *float64 `json:"edge_fade,omitempty"`
	VelocitySmoothing   *float64 `json:"velocity_smoothing,omitempty"`
	Quality             *string  `json:"quality,omitempty"` // low, medium, high, ultra
	BeamRepeatThreshold *int     `json:"beam_repeat_threshold,omitempty"`
	BeamIntensityCount  *int     `json:"beam_intensity_count,omitempty"`
	EnableBeamBrush     *bool    `json:"enable_beam_brush,omitempty"`

	// Network
	MaxDevices     *int `json:"max_devices,omitempty"`
	NetworkPort    *int `json:"network_port,omitempty"`
	ReceiveBuffer  *int `json:"receive_buffer,omitempty"`
	FallbackDevice *int `json:"fallback_device,omitempty"`

	// Loop timing
	TickInterval   *string `json:"tick_interval,omitempty"`   // duration string like "16ms"
	StatusInterval *string `json:"status_interval,omitempty"` // duration string like "5s"
}

const (
	defaultMaxDevices     = 9
	defaultNetworkPort    = 5568
	defaultReceiveBuffer  = 256 * 1024
	defaultTickInterval   = 16 * time.Millisecond
	defaultStatusInterval = 5 * time.Second
	defaultEdgeFade       = 0.1
	defaultVelocitySmooth = 0.83
	maxDeviceIndex        = 255
)

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field set to its default.
func DefaultTuningConfig() *TuningConfig {
	d := laser.DefaultScannerConfig()
	return &TuningConfig{
		ScannerSimulation:   ptrBool(d.ScannerSimulation),
		SampleCount:         ptrInt(d.SampleCount),
		EdgeFade:            ptrFloat64(defaultEdgeFade),
		VelocitySmoothing:   ptrFloat64(defaultVelocitySmooth),
		Quality:             ptrString(d.Quality.String()),
		BeamRepeatThreshold: ptrInt(d.BeamRepeatThreshold),
		BeamIntensityCount:  ptrInt(d.BeamIntensityCount),
		EnableBeamBrush:     ptrBool(d.EnableBeamBrush),
		MaxDevices:          ptrInt(defaultMaxDevices),
		NetworkPort:         ptrInt(defaultNetworkPort),
		ReceiveBuffer:       ptrInt(defaultReceiveBuffer),
		FallbackDevice:      ptrInt(-1),
		TickInterval:        ptrString(defaultTickInterval.String()),
		StatusInterval:      ptrString(defaultStatusInterval.String()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be at most 1MB. Fields omitted
// from the file keep their defaults, so partial configs are safe.
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

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/laser/*
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.SampleCount != nil && *c.SampleCount < 1 {
		return fmt.Errorf("sample_count must be at least 1, got %d", *c.SampleCount)
	}
	if c.EdgeFade != nil && (*c.EdgeFade < 0 || *c.EdgeFade > 1) {
		return fmt.Errorf("edge_fade must be between 0 and 1, got %f", *c.EdgeFade)
	}
	if c.VelocitySmoothing != nil && (*c.VelocitySmoothing < 0 || *c.VelocitySmoothing > 1) {
		return fmt.Errorf("velocity_smoothing must be between 0 and 1, got %f", *c.VelocitySmoothing)
	}
	if c.Quality != nil {
		if _, err := laser.ParseQuality(*c.Quality); err != nil {
			return err
		}
	}
	if c.BeamRepeatThreshold != nil && *c.BeamRepeatThreshold < 0 {
		return fmt.Errorf("beam_repeat_threshold must be non-negative, got %d", *c.BeamRepeatThreshold)
	}
	if c.BeamIntensityCount != nil && *c.BeamIntensityCount < 1 {
		return fmt.Errorf("beam_intensity_count must be at least 1, got %d", *c.BeamIntensityCount)
	}
	if c.MaxDevices != nil && (*c.MaxDevices < 1 || *c.MaxDevices > maxDeviceIndex) {
		return fmt.Errorf("max_devices must be between 1 and %d, got %d", maxDeviceIndex, *c.MaxDevices)
	}
	if c.NetworkPort != nil && (*c.NetworkPort < 1 || *c.NetworkPort > 65535) {
		return fmt.Errorf("network_port must be between 1 and 65535, got %d", *c.NetworkPort)
	}
	if c.ReceiveBuffer != nil && *c.ReceiveBuffer < 0 {
		return fmt.Errorf("receive_buffer must be non-negative, got %d", *c.ReceiveBuffer)
	}
	if c.FallbackDevice != nil && *c.FallbackDevice >= c.GetMaxDevices() {
		return fmt.Errorf("fallback_device %d is outside [0, %d)", *c.FallbackDevice, c.GetMaxDevices())
	}
	for name, v := range map[string]*string{"tick_interval": c.TickInterval, "status_interval": c.StatusInterval} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}
	return nil
}

// ScannerConfig converts the file values into a laser.ScannerConfig.
func (c *TuningConfig) ScannerConfig() laser.ScannerConfig {
	return laser.ScannerConfig{
		ScannerSimulation:   c.GetScannerSimulation(),
		SampleCount:         c.GetSampleCount(),
		EdgeFade:            float32(c.GetEdgeFade()),
		VelocitySmoothing:   float32(c.GetVelocitySmoothing()),
		Quality:             c.GetQuality(),
		BeamRepeatThreshold: c.GetBeamRepeatThreshold(),
		BeamIntensityCount:  c.GetBeamIntensityCount(),
		EnableBeamBrush:     c.GetEnableBeamBrush(),
	}
}

// GetScannerSimulation returns the scanner_simulation value or the default.
func (c *TuningConfig) GetScannerSimulation() bool {
	if c.ScannerSimulation == nil {
		return laser.DefaultScannerConfig().ScannerSimulation
	}
	return *c.ScannerSimulation
}

// GetSampleCount returns the sample_count value or the default.
func (c *TuningConfig) GetSampleCount() int {
	if c.SampleCount == nil {
		return laser.DefaultScannerConfig().SampleCount
	}
	return *c.SampleCount
}

// GetEdgeFade returns the edge_fade value or the default.
func (c *TuningConfig) GetEdgeFade() float64 {
	if c.EdgeFade == nil {
		return defaultEdgeFade
	}
	return *c.EdgeFade
}

// GetVelocitySmoothing returns the velocity_smoothing value or the default.
func (c *TuningConfig) GetVelocitySmoothing() float64 {
	if c.VelocitySmoothing == nil {
		return defaultVelocitySmooth
	}
	return *c.VelocitySmoothing
}

// GetQuality parses the quality value, falling back to the default.
func (c *TuningConfig) GetQuality() laser.Quality {
	if c.Quality == nil {
		return laser.DefaultScannerConfig().Quality
	}
	q, err := laser.ParseQuality(*c.Quality)
	if err != nil {
		return laser.DefaultScannerConfig().Quality
	}
	return q
}

// GetBeamRepeatThreshold returns the beam_repeat_threshold value or the default.
func (c *TuningConfig) GetBeamRepeatThreshold() int {
	if c.BeamRepeatThreshold == nil {
		return laser.DefaultScannerConfig().BeamRepeatThreshold
	}
	return *c.BeamRepeatThreshold
}

// GetBeamIntensityCount returns the beam_intensity_count value or the default.
func (c *TuningConfig) GetBeamIntensityCount() int {
	if c.BeamIntensityCount == nil {
		return laser.DefaultScannerConfig().BeamIntensityCount
	}
	return *c.BeamIntensityCount
}

// GetEnableBeamBrush returns the enable_beam_brush value or the default.
func (c *TuningConfig) GetEnableBeamBrush() bool {
	if c.EnableBeamBrush == nil {
		return laser.DefaultScannerConfig().EnableBeamBrush
	}
	return *c.EnableBeamBrush
}

// GetMaxDevices returns the max_devices value or the default.
func (c *TuningConfig) GetMaxDevices() int {
	if c.MaxDevices == nil {
		return defaultMaxDevices
	}
	return *c.MaxDevices
}

// GetNetworkPort returns the network_port value or the default.
func (c *TuningConfig) GetNetworkPort() int {
	if c.NetworkPort == nil {
		return defaultNetworkPort
	}
	return *c.NetworkPort
}

// GetReceiveBuffer returns the receive_buffer value or the default.
func (c *TuningConfig) GetReceiveBuffer() int {
	if c.ReceiveBuffer == nil {
		return defaultReceiveBuffer
	}
	return *c.ReceiveBuffer
}

// GetFallbackDevice returns the fallback_device value or -1 (drop).
func (c *TuningConfig) GetFallbackDevice() int {
	if c.FallbackDevice == nil {
		return -1
	}
	return *c.FallbackDevice
}

// GetTickInterval parses and returns the tick_interval.
func (c *TuningConfig) GetTickInterval() time.Duration {
	return parseDurationOr(c.TickInterval, defaultTickInterval)
}

// GetStatusInterval parses and returns the status_interval.
func (c *TuningConfig) GetStatusInterval() time.Duration {
	return parseDurationOr(c.StatusInterval, defaultStatusInterval)
}

func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
