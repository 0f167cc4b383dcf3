package monitor

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/beyondlink/internal/laser"
	"github.com/banshee-data/beyondlink/internal/monitoring"
	"github.com/banshee-data/beyondlink/internal/testutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

type fixedStats laser.NetworkStats

func (f fixedStats) Snapshot() laser.NetworkStats { return laser.NetworkStats(f) }

// newTestRegistry returns devices 0 and 1, with device 0 carrying a square
// in passthrough mode.
func newTestRegistry(t *testing.T) *laser.Registry {
	t.Helper()
	cfg := laser.DefaultScannerConfig()
	cfg.ScannerSimulation = false
	reg := laser.NewRegistry(cfg)
	src, _ := reg.Ensure(0)
	reg.Ensure(1)
	src.SetPointList(testutil.SquarePoints(0.5))
	reg.Update()
	return reg
}

func TestReport_String(t *testing.T) {
	rep := Report{
		Network: laser.NetworkStats{PacketsReceived: 12, BytesReceived: 3400},
		FPS:     59.9,
		Devices: []laser.Status{
			{DeviceIndex: 0, Points: 4},
			{DeviceIndex: 1},
		},
		Viewing: 0,
	}
	out := rep.String()

	assert.Contains(t, out, "=== Status Report ===")
	assert.Contains(t, out, "Network: 12 packets | 3400 bytes | FPS: 60")
	assert.Contains(t, out, ">>> Device 1 (239.255.0.x): [OK] 4 points <- VIEWING")
	assert.Contains(t, out, "    Device 2 (239.255.1.x): [--] 0 points\n")
	assert.NotContains(t, out, "WARNING")
	assert.NotContains(t, out, "Tick:")
}

func TestReport_Warnings(t *testing.T) {
	devices := []laser.Status{{DeviceIndex: 0, Points: 4}, {DeviceIndex: 1}}

	silent := Report{Devices: devices}
	assert.Contains(t, silent.String(), "No network data received")

	viewingIdle := Report{Network: laser.NetworkStats{PacketsReceived: 1}, Devices: devices, Viewing: 1}
	out := viewingIdle.String()
	assert.Contains(t, out, "Device 2 has no data!")
	assert.Contains(t, out, "Beyond may not be sending to 239.255.1.x")
	assert.Contains(t, out, "(Fixture 2)")
}

func TestReport_DropAndTickLines(t *testing.T) {
	rep := Report{
		Network: laser.NetworkStats{PacketsReceived: 5, Unroutable: 2, DecodeMisses: 1},
		Ticks:   TickSummary{Count: 3, MeanMs: 1.5, StdDevMs: 0.25, MaxMs: 2},
		Devices: []laser.Status{{DeviceIndex: 0, Points: 1}},
	}
	out := rep.String()
	assert.Contains(t, out, "Dropped: 2 unroutable | 1 undecoded")
	assert.Contains(t, out, "Tick: mean 1.50 ms | std 0.25 ms | max 2.00 ms")
}

func TestReporter_Build(t *testing.T) {
	reg := newTestRegistry(t)
	ticks := NewTickTimer(8)
	ticks.Observe(2 * time.Millisecond)
	r := NewReporter(reg, fixedStats{PacketsReceived: 7}, ticks, 0)

	require.Nil(t, r.Latest())

	start := time.Now()
	r.last = start
	for i := 0; i < 120; i++ {
		r.Frame()
	}
	rep := r.Build(start.Add(2 * time.Second))

	assert.InDelta(t, 60.0, rep.FPS, 1e-9)
	assert.Equal(t, uint64(7), rep.Network.PacketsReceived)
	assert.Equal(t, 1, rep.Ticks.Count)
	require.Len(t, rep.Devices, 2)
	assert.Equal(t, 4, rep.Devices[0].Points)

	latest := r.Latest()
	require.NotNil(t, latest)
	assert.Equal(t, rep.FPS, latest.FPS)

	// frame counter resets on every Build
	rep = r.Build(start.Add(3 * time.Second))
	assert.Equal(t, 0.0, rep.FPS)
}

func TestReporter_Viewing(t *testing.T) {
	r := NewReporter(newTestRegistry(t), nil, nil, 0)
	r.SetViewing(1)
	assert.Equal(t, 1, r.Viewing())

	rep := r.Build(time.Now().Add(time.Second))
	assert.Equal(t, 1, rep.Viewing)
	assert.True(t, strings.Contains(rep.String(), ">>> Device 2"))
}
