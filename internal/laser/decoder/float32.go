package decoder

import (
	"encoding/binary"
	"math"

	"github.com/banshee-data/beyondlink/internal/laser"
)

// Float32 frame layout, little endian:
//
//	offset 0  magic "BLNK"
//	offset 4  version (1)
//	offset 5  device index
//	offset 6  point count (uint16)
//	offset 8  count × {x, y, focus, r, g, b} float32
//
// This is a loopback format for tools and tests. It mirrors the record
// layout the Beyond decoder hands back, not the Beyond wire format.
const (
	Float32Magic      = "BLNK"
	Float32Version    = 1
	float32HeaderSize = 8
	float32RecordSize = 6 * 4
)

// MaxFloat32Points is the largest point count that fits one UDP datagram.
const MaxFloat32Points = (65507 - float32HeaderSize) / float32RecordSize

// Float32Decoder decodes Float32 frames.
type Float32Decoder struct {
	maxDevices int
}

// NewFloat32Decoder returns an uninitialised Float32Decoder.
func NewFloat32Decoder() *Float32Decoder {
	return &Float32Decoder{}
}

func (d *Float32Decoder) Init(maxDevices int) error {
	d.maxDevices = maxDevices
	return nil
}

// Decode parses a frame. Frames addressed to another device, truncated
// frames and frames with an unknown magic or version decode to nothing.
func (d *Float32Decoder) Decode(packet []byte, deviceIndex int) ([]laser.RawPoint, bool) {
	if len(packet) < float32HeaderSize || string(packet[:4]) != Float32Magic {
		return nil, false
	}
	if packet[4] != Float32Version || int(packet[5]) != deviceIndex {
		return nil, false
	}
	if d.maxDevices > 0 && deviceIndex >= d.maxDevices {
		return nil, false
	}

	count := int(binary.LittleEndian.Uint16(packet[6:8]))
	if count == 0 || len(packet) < float32HeaderSize+count*float32RecordSize {
		return nil, false
	}

	points := make([]laser.RawPoint, count)
	off := float32HeaderSize
	for i := range points {
		var f [6]float32
		for j := range f {
			f[j] = math.Float32frombits(binary.LittleEndian.Uint32(packet[off:]))
			off += 4
		}
		points[i] = laser.RawPoint{X: f[0], Y: f[1], Focus: f[2], R: f[3], G: f[4], B: f[5]}
	}
	return points, true
}

func (d *Float32Decoder) Release() error { return nil }

// MarshalFloat32Frame encodes points for a device. Points beyond
// MaxFloat32Points are dropped.
func MarshalFloat32Frame(deviceIndex int, points []laser.RawPoint) []byte {
	if len(points) > MaxFloat32Points {
		points = points[:MaxFloat32Points]
	}

	buf := make([]byte, float32HeaderSize+len(points)*float32RecordSize)
	copy(buf, Float32Magic)
	buf[4] = Float32Version
	buf[5] = byte(deviceIndex)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(len(points)))

	off := float32HeaderSize
	for _, p := range points {
		for _, f := range [6]float32{p.X, p.Y, p.Focus, p.R, p.G, p.B} {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f))
			off += 4
		}
	}
	return buf
}
