package laser

import "sync"

// Source is the record for one laser device: its latest raw buffer, the
// processed output of the last tick and the scanner configuration.
//
// Raw and processed buffers are guarded separately so the receive loop,
// the frame driver and renderers never wait on each other for longer than a
// slice swap.
type Source struct {
	deviceIndex int

	rawMu    sync.Mutex
	raw      []Point
	rawGen   uint64
	cfg      ScannerConfig
	cfgGen   uint64
	lastRaw  uint64
	lastCfg  uint64
	computed bool

	outMu     sync.RWMutex
	processed ProcessedPointSet
	state     SimState
}

// NewSource creates an idle source for a device.
func NewSource(deviceIndex int, cfg ScannerConfig) *Source {
	return &Source{
		deviceIndex: deviceIndex,
		cfg:         cfg,
	}
}

// DeviceIndex returns the device this source belongs to.
func (s *Source) DeviceIndex() int { return s.deviceIndex }

// SetPointList replaces the raw buffer. The caller must not modify points
// afterwards.
func (s *Source) SetPointList(points []Point) {
	s.rawMu.Lock()
	s.raw = points
	s.rawGen++
	s.rawMu.Unlock()
}

// RawPoints returns the current raw buffer (read-only).
func (s *Source) RawPoints() []Point {
	s.rawMu.Lock()
	defer s.rawMu.Unlock()
	return s.raw
}

// Config returns the current scanner configuration.
func (s *Source) Config() ScannerConfig {
	s.rawMu.Lock()
	defer s.rawMu.Unlock()
	return s.cfg
}

// SetConfig replaces the scanner configuration; it takes effect on the next
// Update.
func (s *Source) SetConfig(cfg ScannerConfig) {
	s.rawMu.Lock()
	s.cfg = cfg
	s.cfgGen++
	s.rawMu.Unlock()
}

// Update runs one simulation tick and publishes the result. It returns
// false when nothing changed since the previous tick and the published set
// was left as is.
func (s *Source) Update() bool {
	s.rawMu.Lock()
	if s.computed && s.rawGen == s.lastRaw && s.cfgGen == s.lastCfg {
		s.rawMu.Unlock()
		return false
	}
	raw, cfg := s.raw, s.cfg
	s.lastRaw, s.lastCfg, s.computed = s.rawGen, s.cfgGen, true
	s.rawMu.Unlock()

	set, state := Simulate(raw, cfg)

	s.outMu.Lock()
	s.processed = set
	s.state = state
	s.outMu.Unlock()
	return true
}

// Processed returns the last published point set (read-only).
func (s *Source) Processed() ProcessedPointSet {
	s.outMu.RLock()
	defer s.outMu.RUnlock()
	return s.processed
}

// State returns the simulation state of the last tick.
func (s *Source) State() SimState {
	s.outMu.RLock()
	defer s.outMu.RUnlock()
	return s.state
}

// PointCount returns the number of main processed points.
func (s *Source) PointCount() int {
	s.outMu.RLock()
	defer s.outMu.RUnlock()
	return len(s.processed.Points)
}

// BeamPointCount returns the number of beam view points.
func (s *Source) BeamPointCount() int {
	s.outMu.RLock()
	defer s.outMu.RUnlock()
	return len(s.processed.BeamPoints)
}

// HotBeamPointCount returns the number of synthetic hot-beam points.
func (s *Source) HotBeamPointCount() int {
	s.outMu.RLock()
	defer s.outMu.RUnlock()
	return len(s.processed.HotBeamPoints)
}

// Status is a point-in-time summary of a source for status reporting.
type Status struct {
	DeviceIndex   int    `json:"device_index"`
	State         string `json:"state"`
	RawPoints     int    `json:"raw_points"`
	Points        int    `json:"points"`
	BeamPoints    int    `json:"beam_points"`
	HotBeamPoints int    `json:"hot_beam_points"`
}

// Status returns the current summary of the source.
func (s *Source) Status() Status {
	raw := len(s.RawPoints())

	s.outMu.RLock()
	defer s.outMu.RUnlock()
	return Status{
		DeviceIndex:   s.deviceIndex,
		State:         s.state.String(),
		RawPoints:     raw,
		Points:        len(s.processed.Points),
		BeamPoints:    len(s.processed.BeamPoints),
		HotBeamPoints: len(s.processed.HotBeamPoints),
	}
}
