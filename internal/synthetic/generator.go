// Package synthetic produces simulated telemetry packets at a fixed cadence so
// the pipeline and its sinks can run with no device attached.
package synthetic

import (
	"math/rand"
	"sync"
	"time"

	"github.com/banshee-data/groundstation/internal/monitoring"
	"github.com/banshee-data/groundstation/internal/parser"
	"github.com/banshee-data/groundstation/internal/telemetry"
	"github.com/banshee-data/groundstation/internal/timeutil"
)

// DefaultInterval is the tick cadence of a generator.
const DefaultInterval = time.Second

// spans is the full width of the uniform jitter applied around each seed.
var spans = [telemetry.NumFields]float64{
	telemetry.Temperature: 2,
	telemetry.Humidity:    5,
	telemetry.Pressure:    5,
	telemetry.AccelX:      2,
	telemetry.AccelY:      2,
	telemetry.AccelZ:      2,
	telemetry.GyroX:       5,
	telemetry.GyroY:       3,
	telemetry.GyroZ:       4,
	telemetry.Roll:        20,
	telemetry.Pitch:       20,
	telemetry.Yaw:         20,
	telemetry.CO2:         30,
	telemetry.Altitude:    10,
	telemetry.RSSI:        10,
	telemetry.SNR:         2,
	telemetry.BER:         0,
	telemetry.WifiRSSI:    10,
	telemetry.BLERSSI:     10,
	telemetry.CPUUsage:    5,
	telemetry.CPUTemp:     4,
	telemetry.FreeHeap:    5,
	telemetry.Power:       0.1,
	telemetry.LightLevel:  10,
}

// Span returns the jitter width used for f.
func Span(f telemetry.Field) float64 {
	if !f.Valid() {
		return 0
	}
	return spans[f]
}

// EmitFunc receives each synthesized packet together with its key=value
// rendering for the audit log.
type EmitFunc func(p telemetry.Packet, record string)

// Generator is Idle until Start and Running until Stop.
type Generator struct {
	clock    timeutil.Clock
	interval time.Duration
	emit     EmitFunc

	rngMu sync.Mutex
	rng   *rand.Rand

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	emitted uint64
}

// New returns an idle generator. A nil clock uses the wall clock and a
// non-positive interval uses DefaultInterval.
func New(clock timeutil.Clock, interval time.Duration, emit EmitFunc) *Generator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Generator{
		clock:    clock,
		interval: interval,
		emit:     emit,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Seed makes the jitter sequence deterministic.
func (g *Generator) Seed(seed int64) {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	g.rng = rand.New(rand.NewSource(seed))
}

// Running reports whether the generator is ticking.
func (g *Generator) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stop != nil
}

// Emitted returns the number of packets produced since construction.
func (g *Generator) Emitted() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.emitted
}

// Start moves the generator to Running. It reports false if it was already
// running. The ticker is armed before Start returns.
func (g *Generator) Start() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stop != nil {
		return false
	}

	ticker := g.clock.NewTicker(g.interval)
	stop := make(chan struct{})
	done := make(chan struct{})
	g.stop, g.done = stop, done

	go g.run(ticker, stop, done)
	monitoring.Logf("synthetic: generator started (interval %s)", g.interval)
	return true
}

// Stop moves the generator to Idle and waits for the tick loop to exit.
// Nothing is emitted after Stop returns. It reports false if the generator
// was already idle.
func (g *Generator) Stop() bool {
	g.mu.Lock()
	stop, done := g.stop, g.done
	g.stop, g.done = nil, nil
	g.mu.Unlock()

	if stop == nil {
		return false
	}
	close(stop)
	<-done
	monitoring.Logf("synthetic: generator stopped")
	return true
}

func (g *Generator) run(ticker timeutil.Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			// a stop racing the tick wins
			select {
			case <-stop:
				return
			default:
			}
			p := g.Next()
			g.mu.Lock()
			g.emitted++
			g.mu.Unlock()
			if g.emit != nil {
				g.emit(p, parser.Render(p))
			}
		}
	}
}

// Next synthesizes one packet with every field set to its seed plus jitter.
func (g *Generator) Next() telemetry.Packet {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()

	var p telemetry.Packet
	for _, f := range telemetry.AllFields() {
		v := telemetry.Default(f)
		if span := spans[f]; span > 0 {
			v += (g.rng.Float64() - 0.5) * span
		}
		p = p.With(f, v)
	}
	return p
}
