package telemetry

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Packet is a CanonicalPacket: a sparse, immutable mapping from canonical fields
// to values. The zero value is an empty packet. Packets are passed by value;
// With returns a modified copy and never mutates the receiver.
type Packet struct {
	values  [NumFields]float64
	present uint32
}

// NewPacket builds a packet from the given values. Invalid fields are ignored.
func NewPacket(values map[Field]float64) Packet {
	var p Packet
	for f, v := range values {
		p = p.With(f, v)
	}
	return p
}

// With returns a copy of p with f set to v.
func (p Packet) With(f Field, v float64) Packet {
	if !f.Valid() {
		return p
	}
	p.values[f] = v
	p.present |= 1 << uint(f)
	return p
}

// Get returns the value of f and whether it is present.
func (p Packet) Get(f Field) (float64, bool) {
	if !p.Has(f) {
		return 0, false
	}
	return p.values[f], true
}

// Has reports whether f is present in p.
func (p Packet) Has(f Field) bool {
	return f.Valid() && p.present&(1<<uint(f)) != 0
}

// Len returns the number of present fields.
func (p Packet) Len() int {
	n := 0
	for m := p.present; m != 0; m &= m - 1 {
		n++
	}
	return n
}

// Fields returns the present fields in declaration order.
func (p Packet) Fields() []Field {
	out := make([]Field, 0, p.Len())
	for i := 0; i < NumFields; i++ {
		if p.present&(1<<uint(i)) != 0 {
			out = append(out, Field(i))
		}
	}
	return out
}

// HasOrientation reports whether roll, pitch and yaw are all present.
func (p Packet) HasOrientation() bool {
	return p.Has(Roll) && p.Has(Pitch) && p.Has(Yaw)
}

// Map returns the present fields keyed by canonical name.
func (p Packet) Map() map[string]float64 {
	m := make(map[string]float64, p.Len())
	for _, f := range p.Fields() {
		m[f.String()] = p.values[f]
	}
	return m
}

func (p Packet) String() string {
	parts := make([]string, 0, p.Len())
	for _, f := range p.Fields() {
		parts = append(parts, fmt.Sprintf("%s=%g", f, p.values[f]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// MarshalJSON encodes the present fields as a flat object.
func (p Packet) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Map())
}
