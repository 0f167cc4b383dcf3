package monitor

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/beyondlink/internal/laser"
)

// StatsSource provides receive counters.
type StatsSource interface {
	Snapshot() laser.NetworkStats
}

// Report is one periodic status report.
type Report struct {
	Taken   time.Time          `json:"taken"`
	Network laser.NetworkStats `json:"network"`
	FPS     float64            `json:"fps"`
	Devices []laser.Status     `json:"devices"`
	Viewing int                `json:"viewing"`
	Ticks   TickSummary        `json:"ticks"`
}

// String renders the report for the console.
func (r Report) String() string {
	var b strings.Builder
	b.WriteString("\n=== Status Report ===\n")
	fmt.Fprintf(&b, "Network: %d packets | %d bytes | FPS: %.0f\n",
		r.Network.PacketsReceived, r.Network.BytesReceived, r.FPS)
	if r.Network.Unroutable > 0 || r.Network.DecodeMisses > 0 {
		fmt.Fprintf(&b, "Dropped: %d unroutable | %d undecoded\n", r.Network.Unroutable, r.Network.DecodeMisses)
	}
	if r.Ticks.Count > 0 {
		fmt.Fprintf(&b, "Tick: mean %.2f ms | std %.2f ms | max %.2f ms\n", r.Ticks.MeanMs, r.Ticks.StdDevMs, r.Ticks.MaxMs)
	}

	b.WriteString("\nAll Devices Status:\n")
	var viewed *laser.Status
	for i := range r.Devices {
		d := &r.Devices[i]
		indicator, status := "    ", "[--]"
		if d.DeviceIndex == r.Viewing {
			indicator = ">>> "
			viewed = d
		}
		if d.Points > 0 {
			status = "[OK]"
		}
		fmt.Fprintf(&b, "%sDevice %d (%s): %s %d points", indicator, d.DeviceIndex+1, devicePrefix(d.DeviceIndex), status, d.Points)
		if d.DeviceIndex == r.Viewing {
			b.WriteString(" <- VIEWING")
		}
		b.WriteString("\n")
	}

	if r.Network.PacketsReceived == 0 {
		b.WriteString("\n[!] WARNING: No network data received!\n")
		b.WriteString("  Check Beyond network output settings.\n")
	} else if viewed == nil || viewed.Points == 0 {
		fmt.Fprintf(&b, "\n[!] WARNING: Device %d has no data!\n", r.Viewing+1)
		fmt.Fprintf(&b, "  Beyond may not be sending to %s\n", devicePrefix(r.Viewing))
		fmt.Fprintf(&b, "  Check Beyond Zone/Device configuration (Fixture %d).\n", r.Viewing+1)
	}
	b.WriteString("===================\n")
	return b.String()
}

func devicePrefix(device int) string {
	return fmt.Sprintf("239.255.%d.x", device)
}

// Reporter builds periodic reports. Frame is called once per simulation
// tick; Build computes the frame rate since the previous Build.
type Reporter struct {
	registry *laser.Registry
	stats    StatsSource
	ticks    *TickTimer

	mu      sync.Mutex
	viewing int
	frames  int
	last    time.Time
	latest  *Report
}

// NewReporter creates a reporter. ticks may be nil.
func NewReporter(registry *laser.Registry, stats StatsSource, ticks *TickTimer, viewing int) *Reporter {
	return &Reporter{
		registry: registry,
		stats:    stats,
		ticks:    ticks,
		viewing:  viewing,
		last:     time.Now(),
	}
}

// Frame counts one rendered frame.
func (r *Reporter) Frame() {
	r.mu.Lock()
	r.frames++
	r.mu.Unlock()
}

// SetViewing selects the device highlighted in reports.
func (r *Reporter) SetViewing(device int) {
	r.mu.Lock()
	r.viewing = device
	r.mu.Unlock()
}

// Viewing returns the highlighted device.
func (r *Reporter) Viewing() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewing
}

// Build produces a report and resets the frame counter.
func (r *Reporter) Build(now time.Time) Report {
	r.mu.Lock()
	elapsed := now.Sub(r.last).Seconds()
	frames := r.frames
	r.frames = 0
	r.last = now
	viewing := r.viewing
	r.mu.Unlock()

	rep := Report{
		Taken:   now,
		Devices: r.registry.Statuses(),
		Viewing: viewing,
	}
	if r.stats != nil {
		rep.Network = r.stats.Snapshot()
	}
	if elapsed > 0 {
		rep.FPS = float64(frames) / elapsed
	}
	if r.ticks != nil {
		rep.Ticks = r.ticks.Summary()
	}

	r.mu.Lock()
	r.latest = &rep
	r.mu.Unlock()
	return rep
}

// Latest returns the most recent report, or nil before the first Build.
func (r *Reporter) Latest() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil {
		return nil
	}
	rep := *r.latest
	return &rep
}
