package laser

import (
	"fmt"
	"strings"
)

// Quality selects the downsampling applied after scanner simulation.
type Quality int

const (
	QualityLow Quality = iota
	QualityMedium
	QualityHigh
	QualityUltra
)

// String returns the lower-case name of the quality level.
func (q Quality) String() string {
	switch q {
	case QualityLow:
		return "low"
	case QualityMedium:
		return "medium"
	case QualityHigh:
		return "high"
	case QualityUltra:
		return "ultra"
	default:
		return fmt.Sprintf("quality(%d)", int(q))
	}
}

// DownsampleFactors returns the main and beam view downsample factors.
// Unknown levels do not downsample.
func (q Quality) DownsampleFactors() (main, beam int) {
	switch q {
	case QualityLow:
		return 8, 8
	case QualityMedium:
		return 4, 8
	case QualityHigh:
		return 2, 2
	default:
		return 1, 1
	}
}

// ParseQuality parses a quality name (case-insensitive).
func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return QualityLow, nil
	case "medium":
		return QualityMedium, nil
	case "high":
		return QualityHigh, nil
	case "ultra":
		return QualityUltra, nil
	}
	return QualityHigh, fmt.Errorf("unknown quality level %q (want low, medium, high or ultra)", s)
}

// ScannerConfig holds the per-device simulation parameters.
type ScannerConfig struct {
	// ScannerSimulation enables interpolation, smoothing and downsampling.
	// When false the raw points pass through unchanged.
	ScannerSimulation bool
	// SampleCount is the number of interpolated samples per raw segment.
	SampleCount int
	// EdgeFade controls how strongly fast moves are dimmed (floored at 0.1).
	EdgeFade float32
	// VelocitySmoothing is the inertia factor in [0, 1]; higher lags more.
	VelocitySmoothing float32
	Quality           Quality
	// BeamRepeatThreshold is the number of repeated positions that must be
	// exceeded before a run is treated as a static beam.
	BeamRepeatThreshold int
	// BeamIntensityCount is the number of hot-beam points emitted per beam.
	BeamIntensityCount int
	// EnableBeamBrush collapses consecutive duplicate positions in the main view.
	EnableBeamBrush bool
}

// DefaultScannerConfig returns the parameters used by the desktop viewer.
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		ScannerSimulation:   true,
		SampleCount:         8,
		EdgeFade:            0.1,
		VelocitySmoothing:   0.83,
		Quality:             QualityHigh,
		BeamRepeatThreshold: 4,
		BeamIntensityCount:  10,
		EnableBeamBrush:     true,
	}
}
