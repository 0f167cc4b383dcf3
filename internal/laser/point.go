package laser

// Point is a single scanner sample in normalised scan space.
//
// R, G and B are in [0, 1] once ingested. Z > 0 marks a point that belongs
// to a static (hot) beam rather than ordinary scan geometry.
type Point struct {
	X     float32 `json:"x"`
	Y     float32 `json:"y"`
	R     float32 `json:"r"`
	G     float32 `json:"g"`
	B     float32 `json:"b"`
	Z     float32 `json:"z"`
	Focus float32 `json:"focus"`
}

// IsSamePosition reports whether p and o share exactly the same X/Y.
func (p Point) IsSamePosition(o Point) bool {
	return p.X == o.X && p.Y == o.Y
}

// IsBlank reports whether the point is a blanked (laser off) move.
func (p Point) IsBlank() bool {
	return p.R == 0 && p.G == 0 && p.B == 0
}

// RawPoint is one record as produced by a packet decoder, in the decoder's
// native scale: colour may be 0-1 or 0-255 and focus 0-255.
type RawPoint struct {
	X     float32
	Y     float32
	Focus float32
	R     float32
	G     float32
	B     float32
}

// ProcessedPointSet is the per-device output of one simulation tick.
type ProcessedPointSet struct {
	// Points is the main processed view.
	Points []Point `json:"points"`
	// BeamPoints is the coarser view used for beam rendering.
	BeamPoints []Point `json:"beam_points"`
	// HotBeamPoints is the synthetic static-beam overlay.
	HotBeamPoints []Point `json:"hot_beam_points"`
}

// Len returns the main point count.
func (s ProcessedPointSet) Len() int { return len(s.Points) }
