package network

import (
	"fmt"
	"net"
)

const (
	// DefaultPort is the Beyond multicast UDP port.
	DefaultPort = 5568
	// SubnetsPerDevice is the number of group addresses joined per device (x.y with y in 0..30).
	SubnetsPerDevice = 31
	// DefaultReceiveBuffer is the requested socket receive buffer.
	DefaultReceiveBuffer = 256 * 1024
)

// MulticastAddress returns the dotted group address used by device on subnet.
func MulticastAddress(device, subnet int) string {
	return fmt.Sprintf("239.255.%d.%d", device, subnet)
}

func groupIP(device, subnet int) net.IP {
	return net.IPv4(239, 255, byte(device), byte(subnet)).To4()
}

// DeviceIdentifier maps a datagram's destination group to a device index.
//
// FallbackDevice is used when the platform delivers no destination address;
// a negative value drops such datagrams.
type DeviceIdentifier struct {
	MaxDevices     int
	FallbackDevice int
}

// Identify returns the device index addressed by dst (239.255.D.S).
func (d DeviceIdentifier) Identify(dst net.IP) (int, error) {
	if dst == nil {
		if d.FallbackDevice >= 0 && d.FallbackDevice < d.MaxDevices {
			return d.FallbackDevice, nil
		}
		return -1, &UnroutableError{Err: ErrNoDestination}
	}

	ip4 := dst.To4()
	if ip4 == nil || ip4[0] != 239 || ip4[1] != 255 {
		return -1, &UnroutableError{Destination: dst.String(), Err: ErrNotBeyondGroup}
	}

	device := int(ip4[2])
	if device >= d.MaxDevices {
		return -1, &UnroutableError{Destination: dst.String(), Err: ErrUnrecognizedDevice}
	}
	return device, nil
}
