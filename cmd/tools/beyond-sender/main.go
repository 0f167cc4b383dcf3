// Package main provides a test sender that emits Beyond-style multicast
// frames so the receiver can be exercised without Beyond running.
//
// Frames use the loopback framing understood by decoder.Float32Decoder and
// are sent to 239.255.<device>.<subnet>. With -capture the same datagrams
// are also written to a pcap file for later replay with beyondlink -pcap.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/banshee-data/beyondlink/internal/laser/decoder"
	"github.com/banshee-data/beyondlink/internal/laser/network"
)

// Config holds the sender configuration.
type Config struct {
	Devices  int
	Subnet   int
	Port     int
	Pattern  string
	Points   int
	Rate     float64
	Count    int
	TTL      int
	Capture  string
	Loopback bool
}

func main() {
	var cfg Config
	flag.IntVar(&cfg.Devices, "devices", 1, "Number of devices to send to (0..devices-1)")
	flag.IntVar(&cfg.Subnet, "subnet", 0, "Subnet (0-30) used in the destination group")
	flag.IntVar(&cfg.Port, "port", network.DefaultPort, "Destination UDP port")
	flag.StringVar(&cfg.Pattern, "pattern", "circle", "Test pattern: circle, square or beam")
	flag.IntVar(&cfg.Points, "points", 200, "Points per frame")
	flag.Float64Var(&cfg.Rate, "rate", 30, "Frames per second per device")
	flag.IntVar(&cfg.Count, "count", 0, "Frames to send per device (0 runs until interrupted)")
	flag.IntVar(&cfg.TTL, "ttl", 1, "Multicast TTL")
	flag.StringVar(&cfg.Capture, "capture", "", "Also write sent datagrams to this pcap file")
	flag.BoolVar(&cfg.Loopback, "loopback", true, "Deliver multicast to listeners on this host")
	flag.Parse()

	if err := validate(cfg); err != nil {
		log.Fatalf("invalid flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("sender failed: %v", err)
	}
}

func validate(cfg Config) error {
	if cfg.Devices < 1 || cfg.Devices > 255 {
		return fmt.Errorf("devices must be between 1 and 255, got %d", cfg.Devices)
	}
	if cfg.Subnet < 0 || cfg.Subnet >= network.SubnetsPerDevice {
		return fmt.Errorf("subnet must be between 0 and %d, got %d", network.SubnetsPerDevice-1, cfg.Subnet)
	}
	if cfg.Points < 1 || cfg.Points > decoder.MaxFloat32Points {
		return fmt.Errorf("points must be between 1 and %d, got %d", decoder.MaxFloat32Points, cfg.Points)
	}
	if cfg.Rate <= 0 {
		return fmt.Errorf("rate must be positive, got %v", cfg.Rate)
	}
	if _, err := pattern(cfg.Pattern, cfg.Points, 0, 0); err != nil {
		return err
	}
	return nil
}

// sender owns one connected UDP socket per device.
type sender struct {
	conns   []*net.UDPConn
	dsts    []*net.UDPAddr
	capture *network.CaptureWriter
}

func newSender(cfg Config) (*sender, error) {
	s := &sender{}
	for d := 0; d < cfg.Devices; d++ {
		dst, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(network.MulticastAddress(d, cfg.Subnet), fmt.Sprint(cfg.Port)))
		if err != nil {
			s.close()
			return nil, err
		}
		conn, err := net.DialUDP("udp4", nil, dst)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("dial %s: %w", dst, err)
		}
		pc := ipv4.NewPacketConn(conn)
		if err := pc.SetMulticastTTL(cfg.TTL); err != nil {
			log.Printf("Warning: failed to set multicast TTL: %v", err)
		}
		if err := pc.SetMulticastLoopback(cfg.Loopback); err != nil {
			log.Printf("Warning: failed to set multicast loopback: %v", err)
		}
		s.conns = append(s.conns, conn)
		s.dsts = append(s.dsts, dst)
	}
	return s, nil
}

func (s *sender) close() {
	for _, c := range s.conns {
		c.Close()
	}
}

func (s *sender) send(device int, payload []byte) error {
	conn := s.conns[device]
	if _, err := conn.Write(payload); err != nil {
		return err
	}
	if s.capture != nil {
		src, _ := conn.LocalAddr().(*net.UDPAddr)
		return s.capture.WriteDatagram(time.Now(), src, s.dsts[device], payload)
	}
	return nil
}

func run(ctx context.Context, cfg Config) error {
	s, err := newSender(cfg)
	if err != nil {
		return err
	}
	defer s.close()

	if cfg.Capture != "" {
		f, err := os.Create(cfg.Capture)
		if err != nil {
			return fmt.Errorf("create capture: %w", err)
		}
		defer f.Close()
		if s.capture, err = network.NewCaptureWriter(f); err != nil {
			return err
		}
		log.Printf("Writing capture to %s", cfg.Capture)
	}

	log.Printf("Sending %q (%d points) to %d device(s) on port %d at %.1f fps",
		cfg.Pattern, cfg.Points, cfg.Devices, cfg.Port, cfg.Rate)

	ticker := time.NewTicker(time.Duration(float64(time.Second) / cfg.Rate))
	defer ticker.Stop()

	sent := 0
	for frame := 0; cfg.Count == 0 || frame < cfg.Count; frame++ {
		for d := 0; d < cfg.Devices; d++ {
			pts, err := pattern(cfg.Pattern, cfg.Points, frame, d)
			if err != nil {
				return err
			}
			if err := s.send(d, decoder.MarshalFloat32Frame(d, pts)); err != nil {
				return fmt.Errorf("send to device %d: %w", d, err)
			}
			sent++
		}
		select {
		case <-ctx.Done():
			log.Printf("Stopped after %d datagrams", sent)
			return nil
		case <-ticker.C:
		}
	}
	log.Printf("Sent %d datagrams", sent)
	return nil
}
