package network

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/banshee-data/beyondlink/internal/laser"
	"github.com/banshee-data/beyondlink/internal/laser/decoder"
)

const testMaxDevices = 9

// stubDecoder returns four points for any packet that starts with 1 and
// records its lifecycle.
type stubDecoder struct {
	released int
}

func (s *stubDecoder) Init(int) error { return nil }

func (s *stubDecoder) Decode(packet []byte, device int) ([]laser.RawPoint, bool) {
	if len(packet) == 0 || packet[0] != 1 {
		return nil, false
	}
	return []laser.RawPoint{
		{X: 0, Y: 0, R: 1, G: 1, B: 1},
		{X: 0.5, Y: 0.5, R: 1},
		{X: -0.5, Y: 0.5, G: 1},
		{X: 0, Y: -0.5, B: 1},
	}, true
}

func (s *stubDecoder) Release() error {
	s.released++
	return nil
}

type receiverFixture struct {
	conn     *MockPacketConn
	manager  *MulticastGroupManager
	registry *laser.Registry
	decoder  *stubDecoder
	receiver *Receiver
}

func newReceiverFixture(t *testing.T, fallback int) *receiverFixture {
	t.Helper()
	conn := NewMockPacketConn()
	mgr := NewMulticastGroupManager(ManagerConfig{
		MaxDevices: testMaxDevices,
		Factory:    &MockSocketFactory{Conn: conn},
		JoinPacing: -1,
	})
	reg := laser.NewRegistry(laser.DefaultScannerConfig())
	for i := range testMaxDevices {
		reg.Ensure(i)
	}
	dec := &stubDecoder{}
	r := NewReceiver(ReceiverConfig{
		Transport:  mgr,
		Identifier: DeviceIdentifier{MaxDevices: testMaxDevices, FallbackDevice: fallback},
		Decoder:    dec,
		Registry:   reg,
	})
	return &receiverFixture{conn: conn, manager: mgr, registry: reg, decoder: dec, receiver: r}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestReceiver_RoutesDatagramToDevice(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newReceiverFixture(t, -1)

	require.NoError(t, f.receiver.Start(context.Background()))
	f.conn.Push(MockDatagram{Data: []byte{1, 2, 3}, Dst: net.ParseIP("239.255.0.5")})

	waitFor(t, func() bool { return len(f.registry.Get(0).RawPoints()) == 4 })
	require.NoError(t, f.receiver.Stop())

	for i := 1; i < testMaxDevices; i++ {
		assert.Empty(t, f.registry.Get(i).RawPoints(), "device %d", i)
	}

	// Converted: y flipped and colours shifted back one point.
	pts := f.registry.Get(0).RawPoints()
	assert.Equal(t, float32(-0.5), pts[1].Y)
	assert.Equal(t, float32(1), pts[0].R)
	assert.Equal(t, float32(0), pts[0].G)

	stats := f.receiver.Stats().Snapshot()
	assert.Equal(t, uint64(1), stats.PacketsReceived)
	assert.Equal(t, uint64(3), stats.BytesReceived)
	assert.Equal(t, 3, stats.LastPacketSize)
	assert.Equal(t, uint64(4), stats.PointsDecoded)

	assert.True(t, f.conn.IsClosed())
	assert.Empty(t, f.conn.Joined())
	assert.Equal(t, 1, f.decoder.released)
}

func TestReceiver_Unroutable(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newReceiverFixture(t, -1)

	require.NoError(t, f.receiver.Start(context.Background()))
	f.conn.Push(MockDatagram{Data: []byte{1}, Dst: net.ParseIP("10.0.0.1")})
	f.conn.Push(MockDatagram{Data: []byte{1}, Dst: net.ParseIP("239.255.20.1")})
	f.conn.Push(MockDatagram{Data: []byte{9}, Dst: net.ParseIP("239.255.4.1")})

	waitFor(t, func() bool { return f.receiver.Stats().Snapshot().PacketsReceived == 3 })
	require.NoError(t, f.receiver.Stop())

	stats := f.receiver.Stats().Snapshot()
	assert.Equal(t, uint64(2), stats.Unroutable)
	assert.Equal(t, uint64(1), stats.DecodeMisses)
	assert.Zero(t, stats.PointsDecoded)
	for _, s := range f.registry.Sources() {
		assert.Empty(t, s.RawPoints())
	}
	assert.Equal(t, testMaxDevices, f.registry.Len(), "unroutable packets create no devices")
}

func TestReceiver_FallbackDevice(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newReceiverFixture(t, 2)
	f.conn.ControlErr = errors.New("no pktinfo")

	require.NoError(t, f.receiver.Start(context.Background()))
	f.conn.Push(MockDatagram{Data: []byte{1}, Dst: net.ParseIP("239.255.7.1")})

	waitFor(t, func() bool { return len(f.registry.Get(2).RawPoints()) == 4 })
	require.NoError(t, f.receiver.Stop())
	assert.Empty(t, f.registry.Get(7).RawPoints())
}

func TestReceiver_StartFailureReleasesDecoder(t *testing.T) {
	f := newReceiverFixture(t, -1)
	f.conn.JoinErr = func(net.IP) error { return errors.New("denied") }

	err := f.receiver.Start(context.Background())
	assert.ErrorIs(t, err, ErrNoGroupsJoined)
	assert.Equal(t, 1, f.decoder.released)
	assert.NoError(t, f.receiver.Stop())
	assert.ErrorIs(t, f.receiver.HandleDatagram([]byte{1}, nil), ErrNotRunning)
}

func TestReceiver_StopIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newReceiverFixture(t, -1)

	assert.NoError(t, f.receiver.Stop(), "Stop before Start")
	require.NoError(t, f.receiver.Start(context.Background()))
	assert.ErrorIs(t, f.receiver.Start(context.Background()), ErrAlreadyStarted)
	require.NoError(t, f.receiver.Stop())
	require.NoError(t, f.receiver.Stop())
	assert.Equal(t, 1, f.decoder.released)
}

func TestReceiver_ParentContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newReceiverFixture(t, -1)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.receiver.Start(ctx))
	cancel()
	require.NoError(t, f.receiver.Stop())
	assert.True(t, f.conn.IsClosed())
}

func TestReceiver_Offline(t *testing.T) {
	reg := laser.NewRegistry(laser.DefaultScannerConfig())
	r := NewReceiver(ReceiverConfig{
		Identifier: DeviceIdentifier{MaxDevices: 4, FallbackDevice: -1},
		Decoder:    &stubDecoder{},
		Registry:   reg,
	})
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	require.NoError(t, r.HandleDatagram([]byte{1}, net.ParseIP("239.255.3.0")))
	src := reg.Get(3)
	require.NotNil(t, src, "device created on first datagram")
	assert.Len(t, src.RawPoints(), 4)

	var ue *UnroutableError
	assert.ErrorAs(t, r.HandleDatagram([]byte{1}, net.ParseIP("239.255.4.0")), &ue)
}

var _ decoder.Decoder = (*stubDecoder)(nil)

// failingTransport returns the same read error on every call.
type failingTransport struct {
	calls atomic.Int64
}

func (f *failingTransport) Start(net.IP) error { return nil }
func (f *failingTransport) Stop() error         { return nil }
func (f *failingTransport) SupportsDestinationMetadata() bool {
	return true
}

func (f *failingTransport) ReceiveNext(ctx context.Context, buf []byte) (ReceivedDatagram, error) {
	f.calls.Add(1)
	return ReceivedDatagram{}, errors.New("socket broken")
}

func TestReceiver_ReadErrorBacksOff(t *testing.T) {
	defer goleak.VerifyNone(t)
	tr := &failingTransport{}
	r := NewReceiver(ReceiverConfig{
		Transport:  tr,
		Identifier: DeviceIdentifier{MaxDevices: testMaxDevices, FallbackDevice: -1},
		Decoder:    &stubDecoder{},
		Registry:   laser.NewRegistry(laser.DefaultScannerConfig()),
	})

	require.NoError(t, r.Start(context.Background()))
	time.Sleep(3 * readPollInterval / 2)
	require.NoError(t, r.Stop())

	// One read up front, then at most one per poll interval.
	calls := tr.calls.Load()
	assert.GreaterOrEqual(t, calls, int64(1))
	assert.LessOrEqual(t, calls, int64(3))
	dropped := r.Stats().Snapshot().PacketsDropped
	assert.GreaterOrEqual(t, dropped, uint64(1))
	assert.LessOrEqual(t, dropped, uint64(calls))
}
