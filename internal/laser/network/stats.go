package network

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/beyondlink/internal/laser"
	"github.com/banshee-data/beyondlink/internal/monitoring"
)

// Stats holds the receive counters. Writers are the receive path only;
// Snapshot may be called from any goroutine without blocking it.
type Stats struct {
	packetsReceived atomic.Uint64
	bytesReceived   atomic.Uint64
	packetsDropped  atomic.Uint64
	lastPacketSize  atomic.Int64
	unroutable      atomic.Uint64
	decodeMisses    atomic.Uint64
	pointsDecoded   atomic.Uint64

	mu        sync.Mutex
	lastLog   laser.NetworkStats
	lastReset time.Time
	startTime time.Time
}

// NewStats creates a zeroed Stats.
func NewStats() *Stats {
	now := time.Now()
	return &Stats{lastReset: now, startTime: now}
}

// AddPacket records a received datagram of the given size.
func (s *Stats) AddPacket(bytes int) {
	s.packetsReceived.Add(1)
	s.bytesReceived.Add(uint64(bytes))
	s.lastPacketSize.Store(int64(bytes))
}

// AddDropped records a datagram lost to a read or forward failure.
func (s *Stats) AddDropped() { s.packetsDropped.Add(1) }

// AddUnroutable records a datagram that could not be attributed to a device.
func (s *Stats) AddUnroutable() { s.unroutable.Add(1) }

// AddDecodeMiss records a datagram the decoder produced no points for.
func (s *Stats) AddDecodeMiss() { s.decodeMisses.Add(1) }

// AddPoints records decoded points.
func (s *Stats) AddPoints(count int) { s.pointsDecoded.Add(uint64(count)) }

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() laser.NetworkStats {
	return laser.NetworkStats{
		PacketsReceived: s.packetsReceived.Load(),
		BytesReceived:   s.bytesReceived.Load(),
		PacketsDropped:  s.packetsDropped.Load(),
		LastPacketSize:  int(s.lastPacketSize.Load()),
		Unroutable:      s.unroutable.Load(),
		DecodeMisses:    s.decodeMisses.Load(),
		PointsDecoded:   s.pointsDecoded.Load(),
	}
}

// Uptime returns the time since the stats were created.
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// LogStats logs per-second rates since the previous call.
func (s *Stats) LogStats() {
	cur := s.Snapshot()

	s.mu.Lock()
	prev := s.lastLog
	now := time.Now()
	elapsed := now.Sub(s.lastReset).Seconds()
	s.lastLog = cur
	s.lastReset = now
	s.mu.Unlock()

	packets := cur.PacketsReceived - prev.PacketsReceived
	dropped := cur.PacketsDropped - prev.PacketsDropped
	if (packets == 0 && dropped == 0) || elapsed <= 0 {
		return
	}

	mbPerSec := float64(cur.BytesReceived-prev.BytesReceived) / elapsed / (1024 * 1024)
	packetsPerSec := float64(packets) / elapsed
	pointsPerSec := float64(cur.PointsDecoded-prev.PointsDecoded) / elapsed

	msg := fmt.Sprintf("Beyond stats (/sec): %.2f MB, %.1f packets, %s points",
		mbPerSec, packetsPerSec, monitoring.FormatWithCommas(int64(pointsPerSec)))
	if n := cur.Unroutable - prev.Unroutable; n > 0 {
		msg += fmt.Sprintf(", %d unroutable", n)
	}
	if n := cur.DecodeMisses - prev.DecodeMisses; n > 0 {
		msg += fmt.Sprintf(", %d undecoded", n)
	}
	if dropped > 0 {
		msg += fmt.Sprintf(", %d dropped", dropped)
	}
	monitoring.Logf("%s", msg)
}
