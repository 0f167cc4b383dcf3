package laser

// NetworkStats is a point-in-time copy of the receive counters.
type NetworkStats struct {
	PacketsReceived uint64 `json:"packets_received"`
	BytesReceived   uint64 `json:"bytes_received"`
	PacketsDropped  uint64 `json:"packets_dropped"`
	LastPacketSize  int    `json:"last_packet_size"`
	Unroutable      uint64 `json:"unroutable"`
	DecodeMisses    uint64 `json:"decode_misses"`
	PointsDecoded   uint64 `json:"points_decoded"`
}
