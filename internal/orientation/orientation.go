// Package orientation is the attitude sink. It converts complete roll, pitch
// and yaw updates into the target rotation of the 3D model.
package orientation

import (
	"math"
	"sync"
	"time"

	"github.com/banshee-data/groundstation/internal/telemetry"
	"github.com/banshee-data/groundstation/internal/timeutil"
)

// Target is the model rotation in radians about each axis.
type Target struct {
	X       float64   `json:"x"`
	Y       float64   `json:"y"`
	Z       float64   `json:"z"`
	Roll    float64   `json:"roll_deg"`
	Pitch   float64   `json:"pitch_deg"`
	Yaw     float64   `json:"yaw_deg"`
	Updated time.Time `json:"updated,omitempty"`
	Updates uint64    `json:"updates"`
}

// Sink tracks the latest target rotation.
type Sink struct {
	clock timeutil.Clock

	mu     sync.RWMutex
	target Target
}

func New(clock timeutil.Clock) *Sink {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Sink{clock: clock}
}

// Interest subscribes to whole-attitude updates only.
func (s *Sink) Interest() telemetry.Interest {
	return telemetry.Interest{Orientation: true}
}

func (s *Sink) OnFieldUpdate(telemetry.Field, float64) {}
func (s *Sink) OnRawRecord(string)                     {}

// OnOrientationUpdate maps pitch to X, yaw to Y and negated roll to Z.
func (s *Sink) OnOrientationUpdate(roll, pitch, yaw float64) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = Target{
		X:       radians(pitch),
		Y:       radians(yaw),
		Z:       -radians(roll),
		Roll:    roll,
		Pitch:   pitch,
		Yaw:     yaw,
		Updated: now,
		Updates: s.target.Updates + 1,
	}
}

// Target returns the latest rotation.
func (s *Sink) Target() Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.target
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
