package telemetry

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/groundstation/internal/timeutil"
)

type recordingSink struct {
	mu           sync.Mutex
	fields       []Field
	values       []float64
	orientations [][3]float64
	records      []string
}

func (r *recordingSink) OnFieldUpdate(f Field, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields = append(r.fields, f)
	r.values = append(r.values, v)
}

func (r *recordingSink) OnOrientationUpdate(roll, pitch, yaw float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orientations = append(r.orientations, [3]float64{roll, pitch, yaw})
}

func (r *recordingSink) OnRawRecord(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, text)
}

func newTestAggregator() (*Aggregator, *Hub, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	hub := NewHub()
	return NewAggregator(NewState(), hub, clock), hub, clock
}

func TestNewStateIsSeededWithDefaults(t *testing.T) {
	snap := NewState().Snapshot()
	for _, f := range AllFields() {
		if got := snap.Value(f); got != Default(f) {
			t.Errorf("%s = %v, want default %v", f, got, Default(f))
		}
	}
	if snap.PacketCount != 0 || snap.DataRate != 0 || !snap.LastPacket.IsZero() {
		t.Errorf("fresh state has counters set: %+v", snap)
	}
}

func TestApplyMergesPresentFieldsOnly(t *testing.T) {
	agg, _, _ := newTestAggregator()

	d := agg.Apply(NewPacket(map[Field]float64{Temperature: 30.5, CO2: 800}))
	if diff := cmp.Diff([]Field{Temperature, CO2}, d.Changed); diff != "" {
		t.Errorf("changed fields mismatch (-want +got):\n%s", diff)
	}

	snap := agg.State().Snapshot()
	if snap.Value(Temperature) != 30.5 || snap.Value(CO2) != 800 {
		t.Errorf("fields not merged: temperature=%v co2=%v", snap.Value(Temperature), snap.Value(CO2))
	}
	if snap.Value(Humidity) != Default(Humidity) {
		t.Errorf("humidity = %v, want untouched default", snap.Value(Humidity))
	}

	agg.Apply(NewPacket(map[Field]float64{Humidity: 40}))
	snap = agg.State().Snapshot()
	if snap.Value(Temperature) != 30.5 {
		t.Errorf("temperature lost on later packet: %v", snap.Value(Temperature))
	}
	if snap.PacketCount != 2 {
		t.Errorf("PacketCount = %d, want 2", snap.PacketCount)
	}
}

func TestApplyDataRate(t *testing.T) {
	agg, _, clock := newTestAggregator()

	d := agg.Apply(Packet{})
	if d.RateUpdated {
		t.Error("first packet must not update the rate")
	}

	clock.Advance(500 * time.Millisecond)
	d = agg.Apply(Packet{})
	if !d.RateUpdated || math.Abs(d.Rate-2.0) > 1e-9 {
		t.Fatalf("rate = %v (updated=%v), want 2.0", d.Rate, d.RateUpdated)
	}
	if got := agg.State().Snapshot().DataRate; math.Abs(got-2.0) > 1e-9 {
		t.Errorf("state DataRate = %v, want 2.0", got)
	}

	agg.Reset()
	snap := agg.State().Snapshot()
	if snap.DataRate != 0 || snap.PacketCount != 0 {
		t.Errorf("after Reset rate = %v, count = %d; want 0, 0", snap.DataRate, snap.PacketCount)
	}
	if snap.LastPacket.IsZero() {
		t.Error("Reset must keep the last arrival time")
	}

	// the arrival clock survives a clear, so the next packet measures a rate
	clock.Advance(250 * time.Millisecond)
	d = agg.Apply(Packet{})
	if !d.RateUpdated || math.Abs(d.Rate-4.0) > 1e-9 {
		t.Errorf("rate after Reset = %v (updated=%v), want 4.0", d.Rate, d.RateUpdated)
	}
	if got := agg.State().Snapshot().PacketCount; got != 1 {
		t.Errorf("PacketCount after Reset = %d, want 1", got)
	}
}

func TestApplySameInstantKeepsRate(t *testing.T) {
	agg, _, clock := newTestAggregator()
	agg.Apply(Packet{})
	clock.Advance(time.Second)
	agg.Apply(Packet{})

	d := agg.Apply(Packet{})
	if d.RateUpdated {
		t.Error("zero elapsed time must not update the rate")
	}
	if d.Rate != 1 {
		t.Errorf("rate = %v, want previous 1", d.Rate)
	}
}

func TestApplyEmptyPacketCountsAndAdvancesClock(t *testing.T) {
	agg, hub, clock := newTestAggregator()
	sink := &recordingSink{}
	hub.Subscribe(sink, Interest{AllFields: true, Orientation: true})

	before := agg.State().Snapshot()
	d := agg.Apply(Packet{})
	after := agg.State().Snapshot()

	if len(d.Changed) != 0 {
		t.Errorf("changed = %v, want none", d.Changed)
	}
	if after.PacketCount != before.PacketCount+1 {
		t.Errorf("PacketCount = %d, want %d", after.PacketCount, before.PacketCount+1)
	}
	if !after.LastPacket.Equal(clock.Now()) {
		t.Errorf("LastPacket = %v, want %v", after.LastPacket, clock.Now())
	}
	if diff := cmp.Diff(before.Fields(), after.Fields()); diff != "" {
		t.Errorf("fields changed (-before +after):\n%s", diff)
	}
	if len(sink.fields) != 0 || len(sink.orientations) != 0 {
		t.Errorf("empty packet fanned out: %+v", sink)
	}
}

func TestFanOutRespectsInterest(t *testing.T) {
	agg, hub, _ := newTestAggregator()
	display := &recordingSink{}
	chart := &recordingSink{}
	cube := &recordingSink{}
	hub.Subscribe(display, Interest{AllFields: true})
	hub.Subscribe(chart, Interest{Fields: []Field{Temperature, WifiRSSI}})
	hub.Subscribe(cube, Interest{Orientation: true})

	agg.Apply(NewPacket(map[Field]float64{Temperature: 21, Humidity: 44, WifiRSSI: -50}))

	if diff := cmp.Diff([]Field{Temperature, Humidity, WifiRSSI}, display.fields); diff != "" {
		t.Errorf("display fields (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Field{Temperature, WifiRSSI}, chart.fields); diff != "" {
		t.Errorf("chart fields (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{21, -50}, chart.values); diff != "" {
		t.Errorf("chart values (-want +got):\n%s", diff)
	}
	if len(cube.fields) != 0 {
		t.Errorf("orientation sink received field updates: %v", cube.fields)
	}
}

func TestOrientationFanOutRequiresAllAxes(t *testing.T) {
	agg, hub, _ := newTestAggregator()
	cube := &recordingSink{}
	hub.Subscribe(cube, Interest{Orientation: true})

	d := agg.Apply(NewPacket(map[Field]float64{Roll: 5, Pitch: 10}))
	if d.Orientation || len(cube.orientations) != 0 {
		t.Fatalf("partial orientation fanned out: %v", cube.orientations)
	}

	d = agg.Apply(NewPacket(map[Field]float64{Roll: 5, Pitch: 10, Yaw: -3}))
	if !d.Orientation {
		t.Error("Delta.Orientation = false for full orientation packet")
	}
	if diff := cmp.Diff([][3]float64{{5, 10, -3}}, cube.orientations); diff != "" {
		t.Errorf("orientations (-want +got):\n%s", diff)
	}
}

func TestHubUnsubscribeAndRecords(t *testing.T) {
	hub := NewHub()
	tail := &recordingSink{}
	other := &recordingSink{}
	id := hub.Subscribe(tail, Interest{RawRecords: true})
	hub.Subscribe(other, Interest{AllFields: true})

	hub.PublishRecord("T=1")
	hub.Unsubscribe(id)
	hub.PublishRecord("T=2")

	if diff := cmp.Diff([]string{"T=1"}, tail.records); diff != "" {
		t.Errorf("records (-want +got):\n%s", diff)
	}
	if len(other.records) != 0 {
		t.Errorf("sink without RawRecords interest got %v", other.records)
	}
	if hub.Len() != 1 {
		t.Errorf("Len() = %d, want 1", hub.Len())
	}
}

func TestConcurrentApplyIsSerialized(t *testing.T) {
	agg, _, _ := newTestAggregator()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				agg.Apply(NewPacket(map[Field]float64{Temperature: float64(i)}))
				_ = agg.State().Snapshot().Value(Temperature)
			}
		}(i)
	}
	wg.Wait()

	if got := agg.State().Snapshot().PacketCount; got != 800 {
		t.Errorf("PacketCount = %d, want 800", got)
	}
}
