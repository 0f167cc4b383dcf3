package network

import (
	"errors"
	"net"
	"testing"
)

func TestMulticastAddress(t *testing.T) {
	if got := MulticastAddress(3, 17); got != "239.255.3.17" {
		t.Errorf("MulticastAddress(3, 17) = %q", got)
	}
	if got := groupIP(9, 30).String(); got != "239.255.9.30" {
		t.Errorf("groupIP(9, 30) = %q", got)
	}
}

func TestDeviceIdentifier_Identify(t *testing.T) {
	id := DeviceIdentifier{MaxDevices: 9, FallbackDevice: -1}

	tests := []struct {
		name    string
		dst     net.IP
		want    int
		wantErr error
	}{
		{"device 0", net.ParseIP("239.255.0.5"), 0, nil},
		{"device 8 last subnet", net.ParseIP("239.255.8.30"), 8, nil},
		{"device equal to max", net.ParseIP("239.255.9.0"), -1, ErrUnrecognizedDevice},
		{"device beyond max", net.ParseIP("239.255.200.1"), -1, ErrUnrecognizedDevice},
		{"unicast", net.ParseIP("192.168.1.10"), -1, ErrNotBeyondGroup},
		{"other multicast", net.ParseIP("239.1.0.1"), -1, ErrNotBeyondGroup},
		{"ipv6", net.ParseIP("ff02::1"), -1, ErrNotBeyondGroup},
		{"no destination", nil, -1, ErrNoDestination},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := id.Identify(tt.dst)
			if got != tt.want {
				t.Errorf("Identify(%v) = %d, want %d", tt.dst, got, tt.want)
			}
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			var ue *UnroutableError
			if !errors.As(err, &ue) {
				t.Errorf("error %T is not *UnroutableError", err)
			}
		})
	}
}

func TestDeviceIdentifier_Fallback(t *testing.T) {
	id := DeviceIdentifier{MaxDevices: 4, FallbackDevice: 2}
	if got, err := id.Identify(nil); err != nil || got != 2 {
		t.Errorf("Identify(nil) = %d, %v; want 2, nil", got, err)
	}

	// An out of range fallback is treated as unset.
	id.FallbackDevice = 4
	if _, err := id.Identify(nil); !errors.Is(err, ErrNoDestination) {
		t.Errorf("error = %v, want ErrNoDestination", err)
	}
}
