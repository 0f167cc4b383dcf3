package network

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/beyondlink/internal/monitoring"
)

// DatagramHandler consumes one Beyond datagram addressed to dst.
type DatagramHandler interface {
	HandleDatagram(payload []byte, dst net.IP) error
}

// ReplayConfig configures ReplayPCAP.
type ReplayConfig struct {
	// Port filters UDP datagrams by destination port (0 accepts any).
	Port int
	// SpeedMultiplier paces replay by capture timestamps (1.0 = real-time).
	// Zero replays as fast as possible.
	SpeedMultiplier float64
}

// ReplayResult summarises a replay.
type ReplayResult struct {
	Packets int
	Skipped int
	Elapsed time.Duration
}

// ReplayPCAP feeds the UDP datagrams of a pcap capture to h. The destination
// group is taken from each packet's IPv4 header, so captured multicast
// traffic is attributed exactly as it would be live.
func ReplayPCAP(ctx context.Context, pcapFile string, cfg ReplayConfig, h DatagramHandler) (ReplayResult, error) {
	f, err := os.Open(pcapFile)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer f.Close()

	res, err := replay(ctx, f, cfg, h)
	if err != nil {
		return res, fmt.Errorf("replay %s: %w", pcapFile, err)
	}
	monitoring.Logf("PCAP replay complete: %d packets (%d skipped) in %v", res.Packets, res.Skipped, res.Elapsed)
	return res, nil
}

func replay(ctx context.Context, r io.Reader, cfg ReplayConfig, h DatagramHandler) (ReplayResult, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return ReplayResult{}, err
	}

	var res ReplayResult
	start := time.Now()
	var firstCapture time.Time
	packetSource := gopacket.NewPacketSource(reader, reader.LinkType())
	packetSource.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}

	for {
		select {
		case <-ctx.Done():
			res.Elapsed = time.Since(start)
			return res, ctx.Err()
		case packet, ok := <-packetSource.Packets():
			if !ok || packet == nil {
				res.Elapsed = time.Since(start)
				return res, nil
			}

			ipLayer, _ := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
			udp, _ := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
			if ipLayer == nil || udp == nil || len(udp.Payload) == 0 {
				res.Skipped++
				continue
			}
			if cfg.Port != 0 && int(udp.DstPort) != cfg.Port {
				res.Skipped++
				continue
			}

			if cfg.SpeedMultiplier > 0 {
				ts := packet.Metadata().Timestamp
				if firstCapture.IsZero() {
					firstCapture = ts
				}
				target := time.Duration(float64(ts.Sub(firstCapture)) / cfg.SpeedMultiplier)
				if wait := target - time.Since(start); wait > 0 {
					select {
					case <-ctx.Done():
						res.Elapsed = time.Since(start)
						return res, ctx.Err()
					case <-time.After(wait):
					}
				}
			}

			res.Packets++
			h.HandleDatagram(udp.Payload, ipLayer.DstIP)

			if res.Packets%10000 == 0 {
				elapsed := time.Since(start)
				monitoring.Logf("PCAP progress: %d packets processed in %v (%.0f pkt/s)",
					res.Packets, elapsed, float64(res.Packets)/elapsed.Seconds())
			}
		}
	}
}

// CaptureWriter writes Beyond datagrams as an Ethernet pcap capture that
// ReplayPCAP can read back.
type CaptureWriter struct {
	w *pcapgo.Writer
}

// NewCaptureWriter writes the pcap file header to w.
func NewCaptureWriter(w io.Writer) (*CaptureWriter, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(maxDatagramSize, layers.LinkTypeEthernet); err != nil {
		return nil, err
	}
	return &CaptureWriter{w: pw}, nil
}

// WriteDatagram appends one UDP datagram from src to dst.
func (c *CaptureWriter) WriteDatagram(ts time.Time, src, dst *net.UDPAddr, payload []byte) error {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       multicastMAC(dst.IP),
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      1,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    src.IP.To4(),
		DstIP:    dst.IP.To4(),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port),
		DstPort: layers.UDPPort(dst.Port),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return err
	}

	data := buf.Bytes()
	return c.w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(data),
		Length:        len(data),
	}, data)
}

// multicastMAC maps an IPv4 group to its 01:00:5e Ethernet address.
func multicastMAC(ip net.IP) net.HardwareAddr {
	ip4 := ip.To4()
	if ip4 == nil || !ip4.IsMulticast() {
		return net.HardwareAddr{0x02, 0, 0, 0, 0, 2}
	}
	return net.HardwareAddr{0x01, 0x00, 0x5e, ip4[1] & 0x7f, ip4[2], ip4[3]}
}
