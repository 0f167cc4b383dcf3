package network

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/beyondlink/internal/laser"
	"github.com/banshee-data/beyondlink/internal/monitoring"
)

func TestStats_Snapshot(t *testing.T) {
	s := NewStats()
	s.AddPacket(100)
	s.AddPacket(250)
	s.AddDropped()
	s.AddUnroutable()
	s.AddDecodeMiss()
	s.AddPoints(42)

	assert.Equal(t, laser.NetworkStats{
		PacketsReceived: 2,
		BytesReceived:   350,
		PacketsDropped:  1,
		LastPacketSize:  250,
		Unroutable:      1,
		DecodeMisses:    1,
		PointsDecoded:   42,
	}, s.Snapshot())
}

func TestStats_ConcurrentSnapshot(t *testing.T) {
	s := NewStats()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 1000 {
			s.AddPacket(10)
		}
	}()
	for range 100 {
		_ = s.Snapshot()
	}
	wg.Wait()
	assert.Equal(t, uint64(1000), s.Snapshot().PacketsReceived)
	assert.Equal(t, uint64(10000), s.Snapshot().BytesReceived)
}

func TestStats_LogStats(t *testing.T) {
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	defer monitoring.SetLogger(nil)

	s := NewStats()
	s.LogStats()
	assert.Empty(t, lines, "nothing received, nothing logged")

	s.AddPacket(1024)
	s.AddUnroutable()
	s.AddDropped()
	s.LogStats()
	if assert.Len(t, lines, 1) {
		assert.True(t, strings.HasPrefix(lines[0], "Beyond stats (/sec):"), lines[0])
		assert.Contains(t, lines[0], "1 unroutable")
		assert.Contains(t, lines[0], "1 dropped")
	}

	// Counters are cumulative; rates are computed from the delta.
	s.LogStats()
	assert.Len(t, lines, 1)
}
