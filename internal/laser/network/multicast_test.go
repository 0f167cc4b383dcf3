package network

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/beyondlink/internal/monitoring"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func newTestManager(t *testing.T, maxDevices int) (*MulticastGroupManager, *MockPacketConn, *MockSocketFactory, *int) {
	t.Helper()
	conn := NewMockPacketConn()
	factory := &MockSocketFactory{Conn: conn}
	m := NewMulticastGroupManager(ManagerConfig{MaxDevices: maxDevices, Factory: factory})
	sleeps := 0
	m.sleep = func(time.Duration) { sleeps++ }
	return m, conn, factory, &sleeps
}

func TestMulticastGroupManager_StartJoinsAllGroups(t *testing.T) {
	m, conn, factory, sleeps := newTestManager(t, 9)

	require.NoError(t, m.Start(nil))
	defer m.Stop()

	assert.Equal(t, DefaultPort, factory.Port)
	assert.Equal(t, DefaultReceiveBuffer, factory.RcvBuf)

	groups := m.JoinedGroups()
	require.Len(t, groups, 10*SubnetsPerDevice)
	assert.Equal(t, "239.255.0.0", groups[0].String())
	assert.Equal(t, "239.255.9.30", groups[len(groups)-1].String())
	assert.Len(t, conn.Joined(), 310)

	// 16 even subnets (0, 2, ..., 30) per device.
	assert.Equal(t, 160, *sleeps)
	assert.True(t, m.SupportsDestinationMetadata())
}

func TestMulticastGroupManager_PartialJoinFailure(t *testing.T) {
	m, conn, _, _ := newTestManager(t, 4)
	conn.JoinErr = func(group net.IP) error {
		if group.To4()[2] == 3 {
			return errors.New("no buffer space")
		}
		return nil
	}

	require.NoError(t, m.Start(nil))
	defer m.Stop()
	assert.Len(t, m.JoinedGroups(), 4*SubnetsPerDevice)
	for _, g := range m.JoinedGroups() {
		assert.NotEqual(t, byte(3), g.To4()[2])
	}
}

func TestMulticastGroupManager_AllJoinsFail(t *testing.T) {
	m, conn, _, _ := newTestManager(t, 2)
	conn.JoinErr = func(net.IP) error { return errors.New("denied") }

	err := m.Start(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoGroupsJoined)
	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
	assert.True(t, conn.IsClosed(), "socket is closed when nothing joined")
	assert.Empty(t, m.JoinedGroups())
	assert.NoError(t, m.Stop())
}

func TestMulticastGroupManager_ListenFailure(t *testing.T) {
	m, _, factory, _ := newTestManager(t, 1)
	factory.Err = errors.New("address in use")

	err := m.Start(nil)
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "listen", netErr.Op)
}

func TestMulticastGroupManager_NoDestinationMetadata(t *testing.T) {
	m, conn, _, _ := newTestManager(t, 1)
	conn.ControlErr = errors.New("not supported")

	require.NoError(t, m.Start(nil))
	defer m.Stop()
	assert.False(t, m.SupportsDestinationMetadata())

	conn.Push(MockDatagram{Data: []byte{1}, Dst: net.ParseIP("239.255.0.1")})
	d, err := m.ReceiveNext(context.Background(), make([]byte, 16))
	require.NoError(t, err)
	assert.Nil(t, d.Destination)
}

func TestMulticastGroupManager_StartTwice(t *testing.T) {
	m, _, _, _ := newTestManager(t, 1)
	require.NoError(t, m.Start(nil))
	defer m.Stop()
	assert.ErrorIs(t, m.Start(nil), ErrAlreadyStarted)
}

func TestMulticastGroupManager_Stop(t *testing.T) {
	m, conn, _, _ := newTestManager(t, 2)
	assert.NoError(t, m.Stop(), "Stop before Start")

	require.NoError(t, m.Start(nil))
	require.NoError(t, m.Stop())

	joins, leaves := conn.Calls()
	assert.Equal(t, 3*SubnetsPerDevice, joins)
	assert.Equal(t, joins, leaves)
	assert.Empty(t, conn.Joined())
	assert.Empty(t, m.JoinedGroups())
	assert.True(t, conn.IsClosed())
	assert.False(t, m.SupportsDestinationMetadata())

	assert.NoError(t, m.Stop(), "second Stop")
	_, leaves = conn.Calls()
	assert.Equal(t, joins, leaves)
}

func TestMulticastGroupManager_ReceiveNext(t *testing.T) {
	m, conn, _, _ := newTestManager(t, 1)
	buf := make([]byte, 64)

	_, err := m.ReceiveNext(context.Background(), buf)
	assert.ErrorIs(t, err, ErrClosed, "before Start")

	require.NoError(t, m.Start(nil))
	conn.ReadErrs = []error{
		&net.OpError{Op: "read", Net: "udp", Err: &timeoutError{}},
		syscall.EINTR,
		syscall.EAGAIN,
	}
	src := &net.UDPAddr{IP: net.ParseIP("10.0.0.2"), Port: 40000}
	conn.Push(MockDatagram{Data: nil, Src: src, Dst: net.ParseIP("239.255.0.1")})
	conn.Push(MockDatagram{Data: []byte("abc"), Src: src, Dst: net.ParseIP("239.255.0.7")})

	d, err := m.ReceiveNext(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, 3, d.N)
	assert.Equal(t, "abc", string(buf[:d.N]))
	assert.Equal(t, src, d.Source)
	assert.Equal(t, "239.255.0.7", d.Destination.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.ReceiveNext(ctx, buf)
	assert.ErrorIs(t, err, context.Canceled)

	conn.ReadErrs = []error{errors.New("boom")}
	_, err = m.ReceiveNext(context.Background(), buf)
	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)

	require.NoError(t, m.Stop())
	_, err = m.ReceiveNext(context.Background(), buf)
	assert.ErrorIs(t, err, ErrClosed, "after Stop")
}

func TestMulticastGroupManager_StopUnblocksReceive(t *testing.T) {
	m, _, _, _ := newTestManager(t, 1)
	require.NoError(t, m.Start(nil))

	errc := make(chan error, 1)
	go func() {
		_, err := m.ReceiveNext(context.Background(), make([]byte, 16))
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.Stop())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("ReceiveNext did not return after Stop")
	}
}
