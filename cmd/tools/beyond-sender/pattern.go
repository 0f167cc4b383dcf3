package main

import (
	"fmt"
	"math"

	"github.com/banshee-data/beyondlink/internal/laser"
)

// pattern returns one frame of the named test pattern in decoder scale
// (0-255 colour, full focus). frame animates the pattern and device picks
// a per-device hue so devices are distinguishable.
func pattern(name string, n, frame, device int) ([]laser.RawPoint, error) {
	r, g, b := hue(device)
	switch name {
	case "circle":
		return circle(n, frame, r, g, b), nil
	case "square":
		return square(n, r, g, b), nil
	case "beam":
		return beam(n, r, g, b), nil
	}
	return nil, fmt.Errorf("unknown pattern %q (want circle, square or beam)", name)
}

// circle traces a circle whose radius breathes with frame. The first point
// is a blanked move to the start.
func circle(n, frame int, r, g, b float32) []laser.RawPoint {
	radius := float32(0.5 + 0.3*math.Sin(float64(frame)*0.05))
	out := make([]laser.RawPoint, n)
	for i := range out {
		a := 2 * math.Pi * float64(i) / float64(max(n-1, 1))
		out[i] = laser.RawPoint{X: radius * float32(math.Cos(a)), Y: radius * float32(math.Sin(a)), Focus: 255}
		if i > 0 {
			out[i].R, out[i].G, out[i].B = r, g, b
		}
	}
	return out
}

// square walks the edges of a square, spreading n points over the four
// sides.
func square(n int, r, g, b float32) []laser.RawPoint {
	corners := [5][2]float32{{-0.6, -0.6}, {0.6, -0.6}, {0.6, 0.6}, {-0.6, 0.6}, {-0.6, -0.6}}
	out := make([]laser.RawPoint, n)
	for i := range out {
		t := float32(i) / float32(max(n-1, 1)) * 4
		side := min(int(t), 3)
		f := t - float32(side)
		p0, p1 := corners[side], corners[side+1]
		out[i] = laser.RawPoint{
			X:     p0[0] + (p1[0]-p0[0])*f,
			Y:     p0[1] + (p1[1]-p0[1])*f,
			Focus: 255,
			R:     r, G: g, B: b,
		}
	}
	return out
}

// beam parks the galvos on one lit position, which the receiver turns into
// a hot beam.
func beam(n int, r, g, b float32) []laser.RawPoint {
	out := make([]laser.RawPoint, n)
	for i := range out {
		out[i] = laser.RawPoint{Focus: 255, R: r, G: g, B: b}
	}
	return out
}

// hue returns a saturated 0-255 colour for a device index.
func hue(device int) (r, g, b float32) {
	palette := [][3]float32{
		{255, 0, 0}, {0, 255, 0}, {0, 0, 255},
		{255, 255, 0}, {0, 255, 255}, {255, 0, 255},
	}
	c := palette[device%len(palette)]
	return c[0], c[1], c[2]
}
