package laser

// ConvertRawPoints normalises decoder output into Points.
//
// Colour is normalised (any channel above 1.0 means the sample is in 0-255
// scale and all three channels are divided by 255) and clamped to [0, 1].
// Focus is clamped to [0, 255] and scaled to [0, 1]. Y is inverted.
//
// A decoder sample's colour describes the segment that ends at that sample,
// so colour and focus are shifted back one point: point i takes the colour of
// sample i+1, sample 0's colour is discarded and the last point keeps zero
// colour.
func ConvertRawPoints(raw []RawPoint) []Point {
	if len(raw) == 0 {
		return nil
	}

	points := make([]Point, 0, len(raw))
	for i, s := range raw {
		r, g, b := NormalizeColor(s.R, s.G, s.B)
		focus := clamp(s.Focus, 0, 255) / 255.0

		points = append(points, Point{X: s.X, Y: -s.Y})

		if i > 0 {
			prev := &points[len(points)-2]
			prev.R = r
			prev.G = g
			prev.B = b
			prev.Focus = focus
		}
	}
	return points
}

// NormalizeColor applies the ingestion colour rule: if any channel exceeds
// 1.0 all three are divided by 255, then each is clamped to [0, 1].
func NormalizeColor(r, g, b float32) (float32, float32, float32) {
	if r > 1.0 || g > 1.0 || b > 1.0 {
		r /= 255.0
		g /= 255.0
		b /= 255.0
	}
	return clamp(r, 0, 1), clamp(g, 0, 1), clamp(b, 0, 1)
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
