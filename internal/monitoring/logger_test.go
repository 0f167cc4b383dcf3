package monitoring

import (
	"fmt"
	"testing"
	"time"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}
}

func TestThrottle(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	now := time.Unix(1000, 0)
	th := NewThrottle(time.Second)
	th.now = func() time.Time { return now }

	th.Logf("read error: %v", "boom")
	th.Logf("read error: %v", "boom")
	th.Logf("read error: %v", "boom")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line within interval, got %d: %v", len(lines), lines)
	}

	now = now.Add(2 * time.Second)
	th.Logf("read error: %v", "boom")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines after interval, got %d", len(lines))
	}
	if want := "read error: boom (2 similar suppressed)"; lines[1] != want {
		t.Errorf("line = %q, want %q", lines[1], want)
	}
}
