package laser

import "math"

// SimState is the per-device simulation state.
type SimState int

const (
	// StateIdle means the device has no raw points.
	StateIdle SimState = iota
	// StateSimulating means raw points are run through the scanner model.
	StateSimulating
	// StatePassThrough means simulation is disabled and raw points are
	// republished as-is.
	StatePassThrough
)

func (s SimState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSimulating:
		return "simulating"
	case StatePassThrough:
		return "passthrough"
	default:
		return "unknown"
	}
}

// Simulate runs the full scanner pipeline over one raw buffer.
//
// Hot beams are always detected on the raw points. With simulation enabled
// the raw points are interpolated, smoothed and downsampled into the main and
// beam views; otherwise both views are the raw buffer. Beam-brush dedupe is
// applied to the main view in both modes. The returned slices may alias raw
// and must be treated as read-only.
func Simulate(raw []Point, cfg ScannerConfig) (ProcessedPointSet, SimState) {
	if len(raw) == 0 {
		return ProcessedPointSet{}, StateIdle
	}

	set := ProcessedPointSet{
		HotBeamPoints: DetectHotBeams(raw, cfg.BeamRepeatThreshold, cfg.BeamIntensityCount),
	}

	state := StatePassThrough
	if cfg.ScannerSimulation {
		state = StateSimulating
	}

	if cfg.ScannerSimulation && len(raw) > 1 {
		smoothed := ApplyScannerSimulation(raw, cfg)
		mainFactor, beamFactor := cfg.Quality.DownsampleFactors()
		set.Points = DownsamplePoints(smoothed, mainFactor)
		set.BeamPoints = DownsamplePoints(smoothed, beamFactor)
	} else {
		set.Points = raw
		set.BeamPoints = raw
	}

	if cfg.EnableBeamBrush {
		set.Points = RemoveDuplicatePoints(set.Points)
	}

	return set, state
}

// DetectHotBeams finds runs of repeated, lit positions in the raw buffer and
// emits intensityCount synthetic points for each, with Z rising from 0.0001
// to 1.
//
// A run is the number of consecutive lit points sharing one position and
// emits once it is at least repeatThreshold points long. The final pair of
// the buffer never extends a run, so a run reaching the end of the buffer
// is closed one point early.
func DetectHotBeams(points []Point, repeatThreshold, intensityCount int) []Point {
	if len(points) < 2 {
		return nil
	}

	var hot []Point
	run := 0
	last := 0
	for i := 1; i < len(points); i++ {
		curr, prev := points[i], points[i-1]
		if curr.IsSamePosition(prev) && !curr.IsBlank() && !prev.IsBlank() && i < len(points)-1 {
			run++
			last = i - 1
			continue
		}

		// run counts repeated pairs; the run is one point longer
		if run > 0 && run+1 >= repeatThreshold {
			hot = appendHotBeam(hot, points[last], intensityCount)
		}
		run = 0
	}
	return hot
}

func appendHotBeam(dst []Point, beam Point, count int) []Point {
	for j := 0; j < count; j++ {
		p := beam
		if count == 1 {
			p.Z = 1
		} else {
			p.Z = max(0.0001, float32(j)/float32(count-1))
		}
		dst = append(dst, p)
	}
	return dst
}

// InterpolatePoints inserts sampleCount linear samples per consecutive pair,
// producing (len(points)-1)*sampleCount points. Z is only interpolated when
// the first point of the pair is already a beam point. With fewer than two
// points or sampleCount <= 1 the input is returned unchanged.
func InterpolatePoints(points []Point, sampleCount int) []Point {
	if len(points) < 2 || sampleCount <= 1 {
		return points
	}

	out := make([]Point, 0, (len(points)-1)*sampleCount)
	denom := float32(sampleCount - 1)
	for i := 0; i < len(points)-1; i++ {
		p0, p1 := points[i], points[i+1]
		for s := 0; s < sampleCount; s++ {
			t := float32(s) / denom

			var z float32
			if p0.Z > 0 {
				z = p0.Z + (p1.Z-p0.Z)*t
			}

			out = append(out, Point{
				X:     p0.X + (p1.X-p0.X)*t,
				Y:     p0.Y + (p1.Y-p0.Y)*t,
				R:     p0.R + (p1.R-p0.R)*t,
				G:     p0.G + (p1.G-p0.G)*t,
				B:     p0.B + (p1.B-p0.B)*t,
				Z:     z,
				Focus: p0.Focus + (p1.Focus-p0.Focus)*t,
			})
		}
	}
	return out
}

// ApplyScannerSimulation interpolates points and runs them through the
// inertial galvo model: the simulated mirror position chases each sample
// with exponentially smoothed velocity, and lit non-beam samples are dimmed
// in proportion to mirror speed (edge fade).
func ApplyScannerSimulation(points []Point, cfg ScannerConfig) []Point {
	if len(points) < 2 {
		return points
	}

	interpolated := InterpolatePoints(points, cfg.SampleCount)

	smoothing := cfg.VelocitySmoothing
	edgeFade := max(float32(0.1), cfg.EdgeFade)

	sampleCount := cfg.SampleCount
	if sampleCount < 1 {
		sampleCount = 1
	}
	stepSize := float32(100.0) / float32(sampleCount) * 0.01

	// Both scale factors only depend on edgeFade.
	fadeDivisor := math.Max(1.0, float64(edgeFade)*2.0*4.0)
	fadePercent := math.Max(0.0, float64(edgeFade)-0.5) * 2.0

	smoothed := make([]Point, 0, len(interpolated))

	var velX, velY float32
	posX := interpolated[0].X
	posY := interpolated[0].Y

	for _, p := range interpolated {
		targetX := p.X - posX
		targetY := p.Y - posY
		distance := float32(math.Sqrt(float64(targetX*targetX + targetY*targetY)))

		intensity := float32(1.0)
		if distance > 0 {
			velX, velY = smoothVector(velX, velY, targetX, targetY, smoothing)

			posX += velX * stepSize
			posY += velY * stepSize

			velLength := float32(math.Sqrt(float64(velX*velX + velY*velY)))
			intensity = min(4.0, 1.0/velLength*0.2*edgeFade*2.0)
			intensity = float32(float64(min(4.0, intensity)) / fadeDivisor)
			intensity = float32(float64(intensity)*(1.0-fadePercent) + fadePercent)
		}

		if p.Z > 0 {
			intensity = 1.0
		}

		out := p
		out.X = posX
		out.Y = posY
		if p.Z == 0 {
			out.R *= intensity
			out.G *= intensity
			out.B *= intensity
		}
		smoothed = append(smoothed, out)
	}
	return smoothed
}

// smoothVector moves the current velocity toward the target by (1-smoothing).
func smoothVector(curX, curY, targetX, targetY, smoothing float32) (float32, float32) {
	curX += (targetX - curX) * (1.0 - smoothing)
	curY += (targetY - curY) * (1.0 - smoothing)
	return curX, curY
}

// DownsamplePoints keeps every factor-th point starting at the first,
// yielding ceil(len/factor) points. factor <= 1 returns the input.
func DownsamplePoints(points []Point, factor int) []Point {
	if factor <= 1 || len(points) == 0 {
		return points
	}

	out := make([]Point, 0, (len(points)+factor-1)/factor)
	for i := 0; i < len(points); i += factor {
		out = append(out, points[i])
	}
	return out
}

// RemoveDuplicatePoints drops points whose position equals the last kept
// point.
func RemoveDuplicatePoints(points []Point) []Point {
	if len(points) == 0 {
		return points
	}

	out := make([]Point, 0, len(points))
	out = append(out, points[0])
	for _, p := range points[1:] {
		if !p.IsSamePosition(out[len(out)-1]) {
			out = append(out, p)
		}
	}
	return out
}
