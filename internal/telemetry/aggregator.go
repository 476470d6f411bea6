package telemetry

import (
	"sync"
	"time"

	"github.com/banshee-data/groundstation/internal/timeutil"
)

// Delta describes the effect of applying one packet.
type Delta struct {
	// Changed lists the fields overwritten by the packet, in declaration order.
	Changed     []Field
	PacketCount uint64
	// Rate is the instantaneous data rate in Hz after the update.
	Rate float64
	// RateUpdated is false for the first packet after startup or a Reset.
	RateUpdated bool
	// Orientation is true when the packet carried roll, pitch and yaw together
	// and an orientation update was fanned out.
	Orientation bool
}

// Aggregator merges canonical packets into a State and triggers fan-out.
// Apply calls are serialized, so the synthetic generator and a transport read
// loop may feed the same aggregator concurrently.
type Aggregator struct {
	mu         sync.Mutex
	state      *State
	hub        *Hub
	clock      timeutil.Clock
	lastPacket time.Time
}

// NewAggregator returns an aggregator writing to state and publishing to hub.
// A nil hub disables fan-out; a nil clock uses the wall clock.
func NewAggregator(state *State, hub *Hub, clock timeutil.Clock) *Aggregator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Aggregator{state: state, hub: hub, clock: clock}
}

// State returns the read-only state the aggregator writes to.
func (a *Aggregator) State() *State {
	return a.state
}

// Apply merges p into the state. It never fails: a packet with no fields still
// counts as a packet and still advances the inter-arrival clock.
func (a *Aggregator) Apply(p Packet) Delta {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	snap := a.state.Snapshot()
	snap.PacketCount++

	d := Delta{PacketCount: snap.PacketCount}
	if !a.lastPacket.IsZero() {
		if elapsed := now.Sub(a.lastPacket).Seconds(); elapsed > 0 {
			snap.DataRate = 1 / elapsed
			d.RateUpdated = true
		}
	}
	a.lastPacket = now
	snap.LastPacket = now
	d.Rate = snap.DataRate

	d.Changed = p.Fields()
	for _, f := range d.Changed {
		snap.values[f] = p.values[f]
	}
	a.state.store(snap)

	if a.hub != nil {
		a.hub.publishPacket(p, d.Changed)
	}
	d.Orientation = p.HasOrientation()
	return d
}

// Reset clears the packet counter and data rate. Field values and the last
// arrival time are kept, so the next packet still measures a rate.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := a.state.Snapshot()
	snap.PacketCount = 0
	snap.DataRate = 0
	a.state.store(snap)
}
