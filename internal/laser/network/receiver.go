package network

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/beyondlink/internal/laser"
	"github.com/banshee-data/beyondlink/internal/laser/decoder"
	"github.com/banshee-data/beyondlink/internal/monitoring"
)

// maxDatagramSize covers the largest UDP payload.
const maxDatagramSize = 65536

// Transport is the datagram source a Receiver reads from.
// *MulticastGroupManager is the production implementation.
type Transport interface {
	Start(localIP net.IP) error
	Stop() error
	ReceiveNext(ctx context.Context, buf []byte) (ReceivedDatagram, error)
	SupportsDestinationMetadata() bool
}

// ReceiverConfig contains configuration options for a Receiver.
type ReceiverConfig struct {
	// Transport may be nil for offline use (pcap replay); Start then only
	// acquires the decoder.
	Transport  Transport
	LocalIP    net.IP
	Identifier DeviceIdentifier
	Decoder    decoder.Decoder
	Registry   *laser.Registry
	Stats      *Stats
	Forwarder  *PacketForwarder
}

// Receiver runs the receive loop: it reads datagrams, attributes them to a
// device, decodes and converts them and replaces that device's raw buffer.
type Receiver struct {
	cfg        ReceiverConfig
	stats      *Stats
	unroutable *monitoring.Throttle
	readErrors *monitoring.Throttle

	mu      sync.Mutex
	running bool
	handle  *decoder.Handle
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewReceiver creates a stopped receiver.
func NewReceiver(cfg ReceiverConfig) *Receiver {
	stats := cfg.Stats
	if stats == nil {
		stats = NewStats()
	}
	return &Receiver{
		cfg:        cfg,
		stats:      stats,
		unroutable: monitoring.NewThrottle(5 * time.Second),
		readErrors: monitoring.NewThrottle(5 * time.Second),
	}
}

// Stats returns the receiver's counters.
func (r *Receiver) Stats() *Stats { return r.stats }

// Start acquires the decoder, starts the transport and launches the
// receive goroutine. On failure nothing is left running.
func (r *Receiver) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return ErrAlreadyStarted
	}

	handle, err := decoder.Acquire(r.cfg.Decoder, r.cfg.Identifier.MaxDevices)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	if t := r.cfg.Transport; t != nil {
		if err := t.Start(r.cfg.LocalIP); err != nil {
			cancel()
			handle.Release()
			return err
		}
		if !t.SupportsDestinationMetadata() {
			if fb := r.cfg.Identifier.FallbackDevice; fb >= 0 {
				monitoring.Logf("Warning: no destination metadata; attributing all packets to device %d", fb)
			} else {
				monitoring.Logf("Warning: no destination metadata; packets cannot be attributed to devices and will be dropped")
			}
		}
		go r.loop(ctx, done)
	} else {
		close(done)
	}
	if r.cfg.Forwarder != nil {
		r.cfg.Forwarder.Start(ctx)
	}

	r.handle = handle
	r.cancel = cancel
	r.done = done
	r.running = true
	return nil
}

// Stop cancels the receive loop, waits for it to exit, stops the transport
// and releases the decoder, in that order. It is idempotent.
func (r *Receiver) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	cancel, done, handle := r.cancel, r.done, r.handle
	r.mu.Unlock()

	cancel()
	<-done

	var errs []error
	if r.cfg.Transport != nil {
		if err := r.cfg.Transport.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := handle.Release(); err != nil {
		errs = append(errs, err)
	}

	r.mu.Lock()
	r.handle = nil
	r.mu.Unlock()
	return errors.Join(errs...)
}

func (r *Receiver) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	buf := make([]byte, maxDatagramSize)
	for {
		d, err := r.cfg.Transport.ReceiveNext(ctx, buf)
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return
			}
			r.stats.AddDropped()
			r.readErrors.Logf("Beyond receive error: %v", err)
			// Back off so a persistent socket error does not spin.
			backoff := time.NewTimer(readPollInterval)
			select {
			case <-ctx.Done():
				backoff.Stop()
				return
			case <-backoff.C:
			}
			continue
		}
		r.HandleDatagram(buf[:d.N], d.Destination)
	}
}

// HandleDatagram runs one datagram through identification, decoding and
// conversion. Unroutable datagrams are counted and returned as
// *UnroutableError; a decode miss is counted and is not an error.
func (r *Receiver) HandleDatagram(payload []byte, dst net.IP) error {
	r.mu.Lock()
	handle := r.handle
	r.mu.Unlock()
	if handle == nil {
		return ErrNotRunning
	}

	r.stats.AddPacket(len(payload))
	if r.cfg.Forwarder != nil {
		r.cfg.Forwarder.ForwardAsync(payload)
	}

	device, err := r.cfg.Identifier.Identify(dst)
	if err != nil {
		r.stats.AddUnroutable()
		r.unroutable.Logf("Dropping packet: %v", err)
		return err
	}

	raw, ok := handle.Decode(payload, device)
	if !ok {
		r.stats.AddDecodeMiss()
		return nil
	}

	points := laser.ConvertRawPoints(raw)
	r.stats.AddPoints(len(points))
	src, _ := r.cfg.Registry.Ensure(device)
	src.SetPointList(points)
	return nil
}
