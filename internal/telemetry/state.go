package telemetry

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// Snapshot is an immutable view of TelemetryState at one instant.
type Snapshot struct {
	values      [NumFields]float64
	PacketCount uint64
	LastPacket  time.Time
	DataRate    float64
}

// Value returns the last known value of f, or its seed default if no packet
// ever carried it.
func (s Snapshot) Value(f Field) float64 {
	if !f.Valid() {
		return 0
	}
	return s.values[f]
}

// Fields returns every field value keyed by canonical name.
func (s Snapshot) Fields() map[string]float64 {
	m := make(map[string]float64, NumFields)
	for i, v := range s.values {
		m[fieldNames[i]] = v
	}
	return m
}

type snapshotJSON struct {
	Fields      map[string]float64 `json:"fields"`
	PacketCount uint64             `json:"packet_count"`
	LastPacket  *time.Time         `json:"last_packet,omitempty"`
	DataRate    float64            `json:"data_rate_hz"`
}

// MarshalJSON encodes the snapshot for the HTTP API.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := snapshotJSON{
		Fields:      s.Fields(),
		PacketCount: s.PacketCount,
		DataRate:    s.DataRate,
	}
	if !s.LastPacket.IsZero() {
		lp := s.LastPacket
		out.LastPacket = &lp
	}
	return json.Marshal(out)
}

// State is the process-wide TelemetryState. Only the Aggregator writes to it;
// any number of readers may call Snapshot concurrently without locking and see
// a state at most one packet stale.
type State struct {
	cur atomic.Pointer[Snapshot]
}

// NewState returns a state seeded with the documented defaults.
func NewState() *State {
	s := &State{}
	snap := &Snapshot{values: defaults}
	s.cur.Store(snap)
	return s
}

// Snapshot returns the current state.
func (s *State) Snapshot() Snapshot {
	return *s.cur.Load()
}

// store publishes a new snapshot. Callers must hold the Aggregator lock.
func (s *State) store(snap Snapshot) {
	s.cur.Store(&snap)
}
