package telemetry

import (
	"sync"

	"github.com/google/uuid"
)

// Sink is a downstream consumer of telemetry. Numeric displays, charts, the 3D
// orientation view and record tails all implement it; a sink that does not care
// about one kind of event simply ignores it.
type Sink interface {
	OnFieldUpdate(field Field, value float64)
	OnOrientationUpdate(roll, pitch, yaw float64)
	OnRawRecord(text string)
}

// Interest declares which events a subscribed sink receives.
type Interest struct {
	// Fields limits field updates to the listed fields. Ignored when AllFields
	// is set.
	Fields    []Field
	AllFields bool
	// Orientation requests OnOrientationUpdate, delivered only when a single
	// packet carries roll, pitch and yaw together.
	Orientation bool
	// RawRecords requests OnRawRecord for every framed record.
	RawRecords bool
}

type subscription struct {
	id       string
	sink     Sink
	fields   uint32
	orient   bool
	rawLines bool
}

// Hub fans telemetry events out to subscribed sinks in subscription order.
type Hub struct {
	mu   sync.RWMutex
	subs []*subscription
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// Subscribe registers s and returns an ID for Unsubscribe.
func (h *Hub) Subscribe(s Sink, in Interest) string {
	sub := &subscription{
		id:       uuid.NewString(),
		sink:     s,
		orient:   in.Orientation,
		rawLines: in.RawRecords,
	}
	if in.AllFields {
		sub.fields = 1<<uint(NumFields) - 1
	}
	for _, f := range in.Fields {
		if f.Valid() {
			sub.fields |= 1 << uint(f)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = append(h.subs, sub)
	return sub.id
}

// Unsubscribe removes the subscription with the given ID, if present.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, sub := range h.subs {
		if sub.id == id {
			h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) snapshot() []*subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*subscription, len(h.subs))
	copy(out, h.subs)
	return out
}

// publishPacket pushes each changed field to interested sinks and, when the
// packet carries a full orientation, the orientation to orientation sinks.
func (h *Hub) publishPacket(p Packet, changed []Field) {
	subs := h.snapshot()
	for _, sub := range subs {
		for _, f := range changed {
			if sub.fields&(1<<uint(f)) != 0 {
				sub.sink.OnFieldUpdate(f, p.values[f])
			}
		}
	}
	if !p.HasOrientation() {
		return
	}
	roll, pitch, yaw := p.values[Roll], p.values[Pitch], p.values[Yaw]
	for _, sub := range subs {
		if sub.orient {
			sub.sink.OnOrientationUpdate(roll, pitch, yaw)
		}
	}
}

// PublishRecord delivers a raw record to every sink that asked for them.
func (h *Hub) PublishRecord(text string) {
	for _, sub := range h.snapshot() {
		if sub.rawLines {
			sub.sink.OnRawRecord(text)
		}
	}
}

// SinkFuncs adapts plain functions to Sink. Nil functions are skipped.
type SinkFuncs struct {
	FieldUpdate       func(field Field, value float64)
	OrientationUpdate func(roll, pitch, yaw float64)
	RawRecord         func(text string)
}

func (s SinkFuncs) OnFieldUpdate(field Field, value float64) {
	if s.FieldUpdate != nil {
		s.FieldUpdate(field, value)
	}
}

func (s SinkFuncs) OnOrientationUpdate(roll, pitch, yaw float64) {
	if s.OrientationUpdate != nil {
		s.OrientationUpdate(roll, pitch, yaw)
	}
}

func (s SinkFuncs) OnRawRecord(text string) {
	if s.RawRecord != nil {
		s.RawRecord(text)
	}
}
