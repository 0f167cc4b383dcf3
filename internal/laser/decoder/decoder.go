// Package decoder defines the boundary to the packet decoder that turns
// Beyond network payloads into point records.
//
// The proprietary payload format is handled by an external component; this
// package only fixes its lifecycle (Init, Decode, Release) and provides a
// Handle that owns one decoder for the lifetime of a receiver.
package decoder

import (
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/beyondlink/internal/laser"
)

// Decoder converts one raw datagram into the point records for a device.
//
// Implementations are not assumed to be safe for concurrent use; Handle
// serialises calls. Decode returns false when the packet carries no points
// for the device.
type Decoder interface {
	Init(maxDevices int) error
	Decode(packet []byte, deviceIndex int) ([]laser.RawPoint, bool)
	Release() error
}

// ErrReleased is returned by Handle methods after Release.
var ErrReleased = errors.New("decoder handle released")

// Handle owns an initialised Decoder between Acquire and Release.
type Handle struct {
	mu       sync.Mutex
	dec      Decoder
	released bool
}

// Acquire initialises dec for maxDevices devices and returns a Handle owning it.
func Acquire(dec Decoder, maxDevices int) (*Handle, error) {
	if dec == nil {
		return nil, errors.New("nil decoder")
	}
	if err := dec.Init(maxDevices); err != nil {
		return nil, fmt.Errorf("failed to initialise decoder: %w", err)
	}
	return &Handle{dec: dec}, nil
}

// Decode forwards to the owned decoder. A released handle decodes nothing.
func (h *Handle) Decode(packet []byte, deviceIndex int) ([]laser.RawPoint, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil, false
	}
	return h.dec.Decode(packet, deviceIndex)
}

// Release tears the decoder down. It is safe to call more than once.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true
	return h.dec.Release()
}

// Func adapts a plain decode function to the Decoder interface. Init and
// Release are no-ops.
type Func func(packet []byte, deviceIndex int) ([]laser.RawPoint, bool)

func (f Func) Init(int) error { return nil }

func (f Func) Decode(packet []byte, deviceIndex int) ([]laser.RawPoint, bool) {
	return f(packet, deviceIndex)
}

func (f Func) Release() error { return nil }
