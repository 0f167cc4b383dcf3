package network

import (
	"errors"
	"fmt"
)

var (
	// ErrNoGroupsJoined is returned by Start when every multicast join failed.
	ErrNoGroupsJoined = errors.New("no multicast groups joined")
	// ErrClosed is returned by ReceiveNext once the manager is stopped.
	ErrClosed = errors.New("multicast receiver closed")
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("already started")
	// ErrNotRunning is returned when a datagram is handled outside Start/Stop.
	ErrNotRunning = errors.New("receiver not running")

	// ErrNoDestination means the datagram arrived without destination metadata.
	ErrNoDestination = errors.New("no destination address")
	// ErrNotBeyondGroup means the destination is outside 239.255.0.0/16.
	ErrNotBeyondGroup = errors.New("not a Beyond multicast group")
	// ErrUnrecognizedDevice means the device octet is outside [0, MaxDevices).
	ErrUnrecognizedDevice = errors.New("unrecognized device index")
)

// NetworkError is a socket level failure.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UnroutableError reports a datagram that could not be attributed to a device.
type UnroutableError struct {
	Destination string
	Err         error
}

func (e *UnroutableError) Error() string {
	if e.Destination == "" {
		return fmt.Sprintf("unroutable packet: %v", e.Err)
	}
	return fmt.Sprintf("unroutable packet to %s: %v", e.Destination, e.Err)
}

func (e *UnroutableError) Unwrap() error { return e.Err }
