// Package testutil provides shared test fixtures.
package testutil

import (
	"math"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/banshee-data/beyondlink/internal/laser"
)

// AssertStatusCode checks a recorded response status.
func AssertStatusCode(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Errorf("status code = %d, want %d (body %q)", rec.Code, want, rec.Body.String())
	}
}

// TempDBPath returns a database path inside a per-test directory.
func TempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "beyondlink.db")
}

// SquarePoints returns the four corners of a square of half-width size,
// each corner lit with a different colour.
func SquarePoints(size float32) []laser.Point {
	return []laser.Point{
		{X: -size, Y: -size, R: 1},
		{X: size, Y: -size, G: 1},
		{X: size, Y: size, B: 1},
		{X: -size, Y: size, R: 1, G: 1},
	}
}

// CircleFrame returns n decoder records tracing a circle of the given
// radius, in 0-255 colour scale with full focus. The first record is a
// blanked move to the start position.
func CircleFrame(n int, radius float32) []laser.RawPoint {
	if n < 2 {
		n = 2
	}
	out := make([]laser.RawPoint, 0, n)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n-1)
		p := laser.RawPoint{
			X:     radius * float32(math.Cos(a)),
			Y:     radius * float32(math.Sin(a)),
			Focus: 255,
		}
		if i > 0 {
			p.G = 255
		}
		out = append(out, p)
	}
	return out
}
