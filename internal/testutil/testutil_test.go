package testutil

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/banshee-data/beyondlink/internal/laser"
)

func TestAssertStatusCode(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.WriteHeader(http.StatusAccepted)
	AssertStatusCode(t, rec, http.StatusAccepted)
}

func TestTempDBPath(t *testing.T) {
	p := TempDBPath(t)
	if filepath.Base(p) != "beyondlink.db" {
		t.Errorf("TempDBPath() = %q", p)
	}
}

func TestSquarePoints(t *testing.T) {
	pts := SquarePoints(0.5)
	if len(pts) != 4 {
		t.Fatalf("len = %d, want 4", len(pts))
	}
	for i, p := range pts {
		if p.IsBlank() {
			t.Errorf("corner %d is blank", i)
		}
	}
}

func TestCircleFrame(t *testing.T) {
	raw := CircleFrame(33, 0.8)
	if len(raw) != 33 {
		t.Fatalf("len = %d, want 33", len(raw))
	}

	pts := laser.ConvertRawPoints(raw)
	// the blanked first record's colour is dropped, so every segment but
	// the final one is lit
	for i, p := range pts[:len(pts)-1] {
		if p.G != 1 {
			t.Errorf("point %d G = %v, want 1", i, p.G)
		}
	}
	if first, last := raw[0], raw[len(raw)-1]; abs(first.X-last.X) > 1e-5 || abs(first.Y-last.Y) > 1e-5 {
		t.Errorf("circle not closed: first %+v last %+v", first, last)
	}

	if got := len(CircleFrame(0, 1)); got != 2 {
		t.Errorf("CircleFrame(0) len = %d, want 2", got)
	}
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
