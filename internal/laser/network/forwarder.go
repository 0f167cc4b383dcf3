package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/beyondlink/internal/monitoring"
)

// DropCounter records datagrams the forwarder had to discard.
type DropCounter interface {
	AddDropped()
}

// PacketForwarder mirrors raw Beyond datagrams to another host without
// blocking the receive loop. When the queue is full the datagram is dropped
// and counted.
type PacketForwarder struct {
	conn        net.Conn
	channel     chan []byte
	stats       DropCounter
	logInterval time.Duration
	address     string

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewPacketForwarder dials addr:port over UDP.
func NewPacketForwarder(addr string, port int, stats DropCounter, logInterval time.Duration) (*PacketForwarder, error) {
	forwardAddress := net.JoinHostPort(addr, fmt.Sprint(port))
	conn, err := net.Dial("udp", forwardAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward connection: %w", err)
	}
	return newPacketForwarder(conn, forwardAddress, stats, logInterval), nil
}

func newPacketForwarder(conn net.Conn, address string, stats DropCounter, logInterval time.Duration) *PacketForwarder {
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	return &PacketForwarder{
		conn:        conn,
		channel:     make(chan []byte, 1000),
		stats:       stats,
		logInterval: logInterval,
		address:     address,
	}
}

// Start runs the send goroutine until ctx is done or Close is called.
// Write failures are summarised once per log interval.
func (f *PacketForwarder) Start(ctx context.Context) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		droppedCount := 0
		var lastError error
		ticker := time.NewTicker(f.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case packet, ok := <-f.channel:
				if !ok {
					return
				}
				if _, err := f.conn.Write(packet); err != nil {
					droppedCount++
					lastError = err
				}
			case <-ticker.C:
				if droppedCount > 0 && lastError != nil {
					monitoring.Logf("Dropped %d forwarded packets due to errors (latest: %v)", droppedCount, lastError)
					droppedCount = 0
					lastError = nil
				}
			}
		}
	}()

	monitoring.Logf("Forwarding packets to %s", f.address)
}

// ForwardAsync queues a copy of packet.
func (f *PacketForwarder) ForwardAsync(packet []byte) {
	packetCopy := make([]byte, len(packet))
	copy(packetCopy, packet)

	select {
	case f.channel <- packetCopy:
	default:
		if f.stats != nil {
			f.stats.AddDropped()
		}
	}
}

// Close stops the send goroutine and closes the connection. ForwardAsync
// must not be called after Close.
func (f *PacketForwarder) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.channel)
		f.wg.Wait()
		err = f.conn.Close()
	})
	return err
}
