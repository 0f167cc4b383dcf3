package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/banshee-data/beyondlink/internal/monitoring"
)

const (
	readPollInterval  = 100 * time.Millisecond
	defaultJoinPacing = time.Millisecond
)

// ManagerConfig configures a MulticastGroupManager.
type ManagerConfig struct {
	Port       int
	MaxDevices int
	RcvBuf     int
	Factory    SocketFactory
	// JoinPacing is slept after every join on an even subnet so the
	// kernel's IGMP report queue is not flooded. Negative disables it.
	JoinPacing time.Duration
}

// ReceivedDatagram describes one datagram read into the caller's buffer.
type ReceivedDatagram struct {
	N      int
	Source net.Addr
	// Destination is the group the datagram was sent to, or nil when the
	// platform does not report it.
	Destination net.IP
}

// MulticastGroupManager owns the shared Beyond receive socket and its
// group memberships (239.255.{0..MaxDevices}.{0..30}).
type MulticastGroupManager struct {
	port       int
	maxDevices int
	rcvBuf     int
	factory    SocketFactory
	joinPacing time.Duration
	sleep      func(time.Duration)

	mu      sync.Mutex
	conn    PacketConn
	ifi     *net.Interface
	joined  []net.IP
	dstMeta bool
	done    chan struct{}
}

// NewMulticastGroupManager applies defaults to cfg and returns a stopped manager.
func NewMulticastGroupManager(cfg ManagerConfig) *MulticastGroupManager {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.RcvBuf == 0 {
		cfg.RcvBuf = DefaultReceiveBuffer
	}
	if cfg.Factory == nil {
		cfg.Factory = RealSocketFactory{}
	}
	if cfg.JoinPacing == 0 {
		cfg.JoinPacing = defaultJoinPacing
	}
	return &MulticastGroupManager{
		port:       cfg.Port,
		maxDevices: cfg.MaxDevices,
		rcvBuf:     cfg.RcvBuf,
		factory:    cfg.Factory,
		joinPacing: cfg.JoinPacing,
		sleep:      time.Sleep,
	}
}

// Start opens the socket and joins every Beyond group on the interface that
// owns localIP (nil or unspecified lets the OS choose). Individual join
// failures are logged and skipped; Start fails only if nothing was joined.
func (m *MulticastGroupManager) Start(localIP net.IP) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		return ErrAlreadyStarted
	}

	conn, err := m.factory.Listen(m.port, m.rcvBuf)
	if err != nil {
		return &NetworkError{Op: "listen", Err: err}
	}

	var ifi *net.Interface
	if localIP != nil && !localIP.IsUnspecified() {
		ifi, err = interfaceByIP(localIP)
		if err != nil {
			monitoring.Logf("Warning: %v; joining on the default interface", err)
		}
	}

	m.dstMeta = true
	if err := conn.SetControlMessage(ipv4.FlagDst, true); err != nil {
		m.dstMeta = false
		monitoring.Logf("Warning: destination address metadata unavailable: %v", err)
	}

	var joined []net.IP
	var failures int
	var firstErr error
	for device := 0; device <= m.maxDevices; device++ {
		for subnet := 0; subnet < SubnetsPerDevice; subnet++ {
			group := groupIP(device, subnet)
			if err := conn.JoinGroup(ifi, &net.UDPAddr{IP: group}); err != nil {
				failures++
				if firstErr == nil {
					firstErr = err
					monitoring.Logf("Failed to join multicast group %s: %v", group, err)
				}
				continue
			}
			joined = append(joined, group)
			if subnet%2 == 0 && m.joinPacing > 0 {
				m.sleep(m.joinPacing)
			}
		}
	}

	if len(joined) == 0 {
		conn.Close()
		if firstErr != nil {
			return &NetworkError{Op: "join", Err: fmt.Errorf("%w: %v", ErrNoGroupsJoined, firstErr)}
		}
		return &NetworkError{Op: "join", Err: ErrNoGroupsJoined}
	}
	if failures > 0 {
		monitoring.Logf("Failed to join %d of %d multicast groups", failures, failures+len(joined))
	}

	m.conn = conn
	m.ifi = ifi
	m.joined = joined
	m.done = make(chan struct{})
	monitoring.Logf("Joined %d multicast groups (239.255.0-%d.0-%d) on port %d",
		len(joined), m.maxDevices, SubnetsPerDevice-1, m.port)
	return nil
}

// Stop leaves every joined group and closes the socket. It is safe to call
// before Start and more than once.
func (m *MulticastGroupManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	close(m.done)

	var leaveErrs int
	for _, group := range m.joined {
		if err := m.conn.LeaveGroup(m.ifi, &net.UDPAddr{IP: group}); err != nil {
			leaveErrs++
		}
	}
	if leaveErrs > 0 {
		monitoring.Logf("Failed to leave %d multicast groups", leaveErrs)
	}

	err := m.conn.Close()
	m.conn = nil
	m.joined = nil
	if err != nil {
		return &NetworkError{Op: "close", Err: err}
	}
	return nil
}

// JoinedGroups returns a copy of the joined group table.
func (m *MulticastGroupManager) JoinedGroups() []net.IP {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]net.IP(nil), m.joined...)
}

// SupportsDestinationMetadata reports whether received datagrams carry the
// group address they were sent to.
func (m *MulticastGroupManager) SupportsDestinationMetadata() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil && m.dstMeta
}

// ReceiveNext blocks until a datagram is read into buf. It returns ErrClosed
// once the manager is stopped and ctx.Err() when ctx is cancelled; read
// timeouts and interrupted reads are retried.
func (m *MulticastGroupManager) ReceiveNext(ctx context.Context, buf []byte) (ReceivedDatagram, error) {
	m.mu.Lock()
	conn, done := m.conn, m.done
	m.mu.Unlock()
	if conn == nil {
		return ReceivedDatagram{}, ErrClosed
	}

	for {
		select {
		case <-done:
			return ReceivedDatagram{}, ErrClosed
		case <-ctx.Done():
			return ReceivedDatagram{}, ctx.Err()
		default:
		}

		// Set read deadline to allow checking for shutdown
		conn.SetReadDeadline(time.Now().Add(readPollInterval))

		n, cm, src, err := conn.ReadFrom(buf)
		if err != nil {
			if isRetryable(err) {
				continue
			}
			select {
			case <-done:
				return ReceivedDatagram{}, ErrClosed
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return ReceivedDatagram{}, ErrClosed
			}
			return ReceivedDatagram{}, &NetworkError{Op: "read", Err: err}
		}
		if n == 0 {
			continue
		}

		d := ReceivedDatagram{N: n, Source: src}
		if cm != nil && cm.Dst != nil {
			d.Destination = cm.Dst
		}
		return d, nil
	}
}

func isRetryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN)
}

func interfaceByIP(ip net.IP) (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if n, ok := a.(*net.IPNet); ok && n.IP.Equal(ip) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, fmt.Errorf("no interface with address %s", ip)
}
