package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/banshee-data/beyondlink/internal/monitoring"
)

// PacketConn is the subset of *ipv4.PacketConn used by the multicast
// manager. The abstraction lets tests run without real sockets.
type PacketConn interface {
	JoinGroup(ifi *net.Interface, group net.Addr) error
	LeaveGroup(ifi *net.Interface, group net.Addr) error
	SetControlMessage(cf ipv4.ControlFlags, on bool) error
	ReadFrom(b []byte) (n int, cm *ipv4.ControlMessage, src net.Addr, err error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// SocketFactory opens the shared receive socket.
type SocketFactory interface {
	Listen(port, rcvBuf int) (PacketConn, error)
}

// RealSocketFactory binds a UDPv4 socket on all interfaces with address
// reuse enabled, so several receivers can share the Beyond port.
type RealSocketFactory struct{}

func (RealSocketFactory) Listen(port, rcvBuf int) (PacketConn, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}
	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, err
	}

	udp, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("unexpected packet conn type %T", pc)
	}
	if rcvBuf > 0 {
		if err := udp.SetReadBuffer(rcvBuf); err != nil {
			monitoring.Logf("Warning: Failed to set UDP receive buffer size to %d: %v", rcvBuf, err)
		}
	}
	return ipv4.NewPacketConn(udp), nil
}

// MockDatagram is a datagram queued on a MockPacketConn.
type MockDatagram struct {
	Data []byte
	Src  net.Addr
	// Dst is reported through the control message when FlagDst is enabled.
	Dst net.IP
}

// MockPacketConn implements PacketConn for tests. It is safe for concurrent use.
type MockPacketConn struct {
	mu sync.Mutex
	// JoinErr, if set, decides the outcome of each JoinGroup call.
	JoinErr func(group net.IP) error
	// LeaveErr is returned by every LeaveGroup call if set.
	LeaveErr error
	// ControlErr is returned by SetControlMessage if set.
	ControlErr error
	// ReadErrs are returned, in order, before any queued datagram.
	ReadErrs []error

	joined     []net.IP
	joinCalls  int
	leaveCalls int
	dstEnabled bool
	closed     bool
	deadline   time.Time

	queue  chan MockDatagram
	closeC chan struct{}
}

// NewMockPacketConn returns an open mock with an empty queue.
func NewMockPacketConn() *MockPacketConn {
	return &MockPacketConn{
		queue:  make(chan MockDatagram, 1024),
		closeC: make(chan struct{}),
	}
}

// Push queues a datagram for ReadFrom.
func (m *MockPacketConn) Push(d MockDatagram) {
	m.queue <- d
}

func (m *MockPacketConn) JoinGroup(ifi *net.Interface, group net.Addr) error {
	ip := addrIP(group)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joinCalls++
	if m.JoinErr != nil {
		if err := m.JoinErr(ip); err != nil {
			return err
		}
	}
	m.joined = append(m.joined, ip)
	return nil
}

func (m *MockPacketConn) LeaveGroup(ifi *net.Interface, group net.Addr) error {
	ip := addrIP(group)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveCalls++
	if m.LeaveErr != nil {
		return m.LeaveErr
	}
	for i, g := range m.joined {
		if g.Equal(ip) {
			m.joined = append(m.joined[:i], m.joined[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MockPacketConn) SetControlMessage(cf ipv4.ControlFlags, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ControlErr != nil {
		return m.ControlErr
	}
	if cf&ipv4.FlagDst != 0 {
		m.dstEnabled = on
	}
	return nil
}

func (m *MockPacketConn) ReadFrom(b []byte) (int, *ipv4.ControlMessage, net.Addr, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, nil, nil, net.ErrClosed
	}
	if len(m.ReadErrs) > 0 {
		err := m.ReadErrs[0]
		m.ReadErrs = m.ReadErrs[1:]
		m.mu.Unlock()
		return 0, nil, nil, err
	}
	wait := time.Until(m.deadline)
	dstEnabled := m.dstEnabled
	m.mu.Unlock()

	if wait <= 0 {
		wait = time.Millisecond
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case d := <-m.queue:
		n := copy(b, d.Data)
		var cm *ipv4.ControlMessage
		if dstEnabled && d.Dst != nil {
			cm = &ipv4.ControlMessage{Dst: d.Dst}
		}
		return n, cm, d.Src, nil
	case <-m.closeC:
		return 0, nil, nil, net.ErrClosed
	case <-timer.C:
		return 0, nil, nil, &net.OpError{Op: "read", Net: "udp", Err: &timeoutError{}}
	}
}

func (m *MockPacketConn) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadline = t
	return nil
}

func (m *MockPacketConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closeC)
	}
	return nil
}

// Joined returns the groups currently joined.
func (m *MockPacketConn) Joined() []net.IP {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]net.IP(nil), m.joined...)
}

// Calls returns the number of JoinGroup and LeaveGroup calls.
func (m *MockPacketConn) Calls() (joins, leaves int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joinCalls, m.leaveCalls
}

// IsClosed reports whether Close was called.
func (m *MockPacketConn) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockSocketFactory implements SocketFactory for testing.
type MockSocketFactory struct {
	Conn *MockPacketConn
	// Err is returned by Listen if set.
	Err error

	Port   int
	RcvBuf int
	Calls  int
}

func (f *MockSocketFactory) Listen(port, rcvBuf int) (PacketConn, error) {
	f.Calls++
	f.Port, f.RcvBuf = port, rcvBuf
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Conn, nil
}

func addrIP(a net.Addr) net.IP {
	switch v := a.(type) {
	case *net.UDPAddr:
		return v.IP
	case *net.IPAddr:
		return v.IP
	}
	return nil
}

// timeoutError implements net.Error for timeout simulation.
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }
