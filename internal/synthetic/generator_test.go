package synthetic

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/groundstation/internal/parser"
	"github.com/banshee-data/groundstation/internal/telemetry"
	"github.com/banshee-data/groundstation/internal/timeutil"
)

type emission struct {
	packet telemetry.Packet
	record string
}

func newTestGenerator() (*Generator, *timeutil.MockClock, chan emission) {
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	out := make(chan emission, 8)
	g := New(clock, time.Second, func(p telemetry.Packet, record string) {
		out <- emission{p, record}
	})
	g.Seed(1)
	return g, clock, out
}

func TestNextStaysWithinJitter(t *testing.T) {
	g := New(nil, 0, nil)
	g.Seed(42)
	for i := 0; i < 500; i++ {
		p := g.Next()
		if p.Len() != telemetry.NumFields {
			t.Fatalf("packet has %d fields, want all %d", p.Len(), telemetry.NumFields)
		}
		for _, f := range telemetry.AllFields() {
			v, _ := p.Get(f)
			if d := math.Abs(v - telemetry.Default(f)); d > Span(f)/2+1e-9 {
				t.Fatalf("%s = %v drifts %v from seed, span %v", f, v, d, Span(f))
			}
		}
	}
	if v, _ := g.Next().Get(telemetry.BER); v != telemetry.Default(telemetry.BER) {
		t.Errorf("ber = %v, want unjittered seed", v)
	}
}

func TestRecordReparsesToSameFields(t *testing.T) {
	g, clock, out := newTestGenerator()
	g.Start()
	defer g.Stop()

	clock.Advance(time.Second)
	var e emission
	select {
	case e = <-out:
	case <-time.After(2 * time.Second):
		t.Fatal("no packet emitted after one interval")
	}

	parsed, err := parser.Parse(e.record)
	if err != nil {
		t.Fatalf("Parse(%q): %v", e.record, err)
	}
	if diff := cmp.Diff(e.packet.Fields(), parsed.Fields()); diff != "" {
		t.Errorf("rendered fields (-emitted +parsed):\n%s", diff)
	}
	got, _ := parsed.Get(telemetry.Temperature)
	want, _ := e.packet.Get(telemetry.Temperature)
	if math.Abs(got-want) > 0.05 {
		t.Errorf("temperature round trip %v -> %v", want, got)
	}
}

func TestStartStopStateMachine(t *testing.T) {
	g, clock, out := newTestGenerator()

	if g.Running() {
		t.Fatal("new generator is running")
	}
	if !g.Start() {
		t.Fatal("Start() from idle = false")
	}
	if g.Start() {
		t.Error("second Start() = true")
	}
	if clock.Tickers() != 1 {
		t.Errorf("tickers = %d, want 1", clock.Tickers())
	}

	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		select {
		case <-out:
		case <-time.After(2 * time.Second):
			t.Fatalf("tick %d not emitted", i)
		}
	}

	if !g.Stop() {
		t.Fatal("Stop() from running = false")
	}
	if g.Stop() {
		t.Error("second Stop() = true")
	}

	clock.Advance(5 * time.Second)
	select {
	case e := <-out:
		t.Fatalf("packet emitted after Stop: %q", e.record)
	case <-time.After(50 * time.Millisecond):
	}
	if g.Emitted() != 3 {
		t.Errorf("Emitted() = %d, want 3", g.Emitted())
	}

	// restart arms a fresh ticker
	g.Start()
	defer g.Stop()
	if clock.Tickers() != 2 {
		t.Errorf("tickers after restart = %d, want 2", clock.Tickers())
	}
}
