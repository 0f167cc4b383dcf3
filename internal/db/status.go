package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/beyondlink/internal/laser"
)

// Session identifies one run of the receiver.
type Session struct {
	ID         string    `json:"session_id"`
	Started    time.Time `json:"started"`
	Version    string    `json:"version"`
	MaxDevices int       `json:"max_devices"`
	Port       int       `json:"port"`
}

// StatusSnapshot is one periodic status report.
type StatusSnapshot struct {
	SnapshotID int64              `json:"snapshot_id"`
	SessionID  string             `json:"session_id"`
	Taken      time.Time          `json:"taken"`
	Network    laser.NetworkStats `json:"network"`
	FPS        float64            `json:"fps"`
	Devices    []laser.Status     `json:"devices"`
}

// StartSession records a new session and returns it.
func (db *DB) StartSession(version string, maxDevices, port int) (*Session, error) {
	s := &Session{
		ID:         uuid.New().String(),
		Started:    time.Now(),
		Version:    version,
		MaxDevices: maxDevices,
		Port:       port,
	}
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, started_unix_nanos, version, max_devices, port)
		 VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.Started.UnixNano(), s.Version, s.MaxDevices, s.Port,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return s, nil
}

// RecordSnapshot stores a status snapshot and its per-device rows in one
// transaction. The assigned id is written back to snap.
func (db *DB) RecordSnapshot(snap *StatusSnapshot) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	n := snap.Network
	res, err := tx.Exec(
		`INSERT INTO status_snapshots (
			session_id, taken_unix_nanos, packets_received, bytes_received,
			packets_dropped, unroutable, decode_misses, points_decoded, fps
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.SessionID, snap.Taken.UnixNano(), int64(n.PacketsReceived), int64(n.BytesReceived),
		int64(n.PacketsDropped), int64(n.Unroutable), int64(n.DecodeMisses), int64(n.PointsDecoded), snap.FPS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert status snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, d := range snap.Devices {
		if _, err := tx.Exec(
			`INSERT INTO device_snapshots (
				snapshot_id, device_index, state, raw_points, points, beam_points, hot_beam_points
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, d.DeviceIndex, d.State, d.RawPoints, d.Points, d.BeamPoints, d.HotBeamPoints,
		); err != nil {
			return fmt.Errorf("failed to insert device %d snapshot: %w", d.DeviceIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	snap.SnapshotID = id
	return nil
}

// RecentSnapshots returns up to limit snapshots, newest first.
func (db *DB) RecentSnapshots(limit int) ([]StatusSnapshot, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.Query(
		`SELECT snapshot_id, session_id, taken_unix_nanos, packets_received, bytes_received,
		        packets_dropped, unroutable, decode_misses, points_decoded, fps
		 FROM status_snapshots
		 ORDER BY taken_unix_nanos DESC, snapshot_id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}

	var snaps []StatusSnapshot
	for rows.Next() {
		var s StatusSnapshot
		var taken, packets, bytes, dropped, unroutable, misses, points int64
		if err := rows.Scan(&s.SnapshotID, &s.SessionID, &taken, &packets, &bytes,
			&dropped, &unroutable, &misses, &points, &s.FPS); err != nil {
			rows.Close()
			return nil, err
		}
		s.Taken = time.Unix(0, taken)
		s.Network = laser.NetworkStats{
			PacketsReceived: uint64(packets),
			BytesReceived:   uint64(bytes),
			PacketsDropped:  uint64(dropped),
			Unroutable:      uint64(unroutable),
			DecodeMisses:    uint64(misses),
			PointsDecoded:   uint64(points),
		}
		snaps = append(snaps, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range snaps {
		devices, err := db.deviceSnapshots(snaps[i].SnapshotID)
		if err != nil {
			return nil, err
		}
		snaps[i].Devices = devices
	}
	return snaps, nil
}

func (db *DB) deviceSnapshots(snapshotID int64) ([]laser.Status, error) {
	rows, err := db.Query(
		`SELECT device_index, state, raw_points, points, beam_points, hot_beam_points
		 FROM device_snapshots WHERE snapshot_id = ? ORDER BY device_index`, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []laser.Status
	for rows.Next() {
		var d laser.Status
		if err := rows.Scan(&d.DeviceIndex, &d.State, &d.RawPoints, &d.Points, &d.BeamPoints, &d.HotBeamPoints); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// PruneSnapshots deletes snapshots older than cutoff and returns how many
// were removed.
func (db *DB) PruneSnapshots(cutoff time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM status_snapshots WHERE taken_unix_nanos < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
