// Package pipeline owns the single active transport session and drives every
// record it produces through the framer, the parser and the aggregator. It also
// runs the synthetic generator when the operator streams without a link.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/groundstation/internal/auditlog"
	"github.com/banshee-data/groundstation/internal/framer"
	"github.com/banshee-data/groundstation/internal/metrics"
	"github.com/banshee-data/groundstation/internal/monitoring"
	"github.com/banshee-data/groundstation/internal/parser"
	"github.com/banshee-data/groundstation/internal/synthetic"
	"github.com/banshee-data/groundstation/internal/telemetry"
	"github.com/banshee-data/groundstation/internal/timeutil"
	"github.com/banshee-data/groundstation/internal/transport"
)

var (
	// ErrNoSession is returned when an operation needs a live session.
	ErrNoSession = errors.New("no active session")
	// ErrClosed is returned after the pipeline has been closed.
	ErrClosed = errors.New("pipeline closed")
)

// SourceSynthetic labels packets produced by the generator.
const SourceSynthetic = "synthetic"

// Config tunes a Pipeline. Zero values use the package defaults.
type Config struct {
	Clock             timeutil.Clock
	AuditCapacity     int
	AuditMaxText      int
	SyntheticInterval time.Duration
	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// Status describes the link and stream as the operator sees them.
type Status struct {
	Connected        bool            `json:"connected"`
	Kind             transport.Kind  `json:"kind,omitempty"`
	State            transport.State `json:"state"`
	SessionID        string          `json:"session_id,omitempty"`
	StreamActive     bool            `json:"stream_active"`
	GeneratorRunning bool            `json:"generator_running"`
	LastError        string          `json:"last_error,omitempty"`
}

type activeSession struct {
	sess   transport.Session
	cancel context.CancelFunc
	done   chan struct{}
}

// Pipeline wires transport sessions and the generator into one aggregator.
type Pipeline struct {
	state   *telemetry.State
	hub     *telemetry.Hub
	agg     *telemetry.Aggregator
	audit   *auditlog.Log
	gen     *synthetic.Generator
	metrics *metrics.Metrics

	// connectMu serializes Connect, Disconnect and Close so that at most one
	// read loop exists.
	connectMu sync.Mutex

	mu       sync.Mutex
	active   *activeSession
	streamOn bool
	lastErr  string
	closed   bool
	onClear  []func()
}

// New builds the state, hub, aggregator, audit log and generator.
func New(cfg Config) *Pipeline {
	state := telemetry.NewState()
	hub := telemetry.NewHub()
	p := &Pipeline{
		state:   state,
		hub:     hub,
		agg:     telemetry.NewAggregator(state, hub, cfg.Clock),
		audit:   auditlog.New(cfg.AuditCapacity, cfg.AuditMaxText, cfg.Clock),
		metrics: cfg.Metrics,
	}
	p.gen = synthetic.New(cfg.Clock, cfg.SyntheticInterval, p.emitSynthetic)
	return p
}

func (p *Pipeline) State() *telemetry.State         { return p.state }
func (p *Pipeline) Hub() *telemetry.Hub             { return p.hub }
func (p *Pipeline) Audit() *auditlog.Log            { return p.audit }
func (p *Pipeline) Generator() *synthetic.Generator { return p.gen }

// OnClear registers fn to run on every Clear, after the counters and the audit
// log have been reset.
func (p *Pipeline) OnClear(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClear = append(p.onClear, fn)
}

// Connect closes any active session and then opens a new one with c. The read
// loop outlives ctx; ctx only bounds establishment.
func (p *Pipeline) Connect(ctx context.Context, c transport.Connector) (Status, error) {
	p.connectMu.Lock()
	defer p.connectMu.Unlock()

	if p.isClosed() {
		return p.Status(), ErrClosed
	}
	p.closeActive("replaced")

	kind := string(c.Kind())
	sess, err := c.Connect(ctx)
	if err != nil {
		outcome := "error"
		var ce *transport.ConnectError
		if errors.As(err, &ce) {
			outcome = ce.Stage
		}
		p.metrics.Connect(kind, outcome)
		p.setLastErr(err)
		return p.Status(), err
	}
	p.metrics.Connect(kind, "ok")
	p.metrics.Session(kind, true)

	loopCtx, cancel := context.WithCancel(context.Background())
	a := &activeSession{sess: sess, cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	p.active = a
	p.lastErr = ""
	p.mu.Unlock()

	go p.readLoop(loopCtx, a)
	return p.Status(), nil
}

// Disconnect closes the active session and marks the data stream inactive.
// It returns ErrNoSession when there was nothing to close.
func (p *Pipeline) Disconnect() error {
	p.connectMu.Lock()
	defer p.connectMu.Unlock()

	p.stopStream()
	if !p.closeActive("disconnect") {
		return ErrNoSession
	}
	return nil
}

// closeActive tears down the active session and waits for its read loop.
func (p *Pipeline) closeActive(reason string) bool {
	p.mu.Lock()
	a := p.active
	p.active = nil
	p.mu.Unlock()
	if a == nil {
		return false
	}

	a.cancel()
	if err := a.sess.Close(); err != nil {
		monitoring.Logf("pipeline: closing %s session %s: %v", a.sess.Kind(), a.sess.ID(), err)
	}
	<-a.done
	p.metrics.Session(string(a.sess.Kind()), false)
	monitoring.Logf("pipeline: %s session %s released (%s)", a.sess.Kind(), a.sess.ID(), reason)
	return true
}

func (p *Pipeline) readLoop(ctx context.Context, a *activeSession) {
	defer close(a.done)

	kind := string(a.sess.Kind())
	fr := framer.New()
	for {
		chunk, err := a.sess.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.sessionEnded(a, err)
			return
		}
		p.metrics.Chunk(kind, len(chunk))
		for _, record := range fr.Feed(chunk) {
			p.Ingest(kind, record)
		}
	}
}

// sessionEnded handles a remote end of stream. The session is released but
// not reconnected.
func (p *Pipeline) sessionEnded(a *activeSession, err error) {
	p.mu.Lock()
	current := p.active == a
	if current {
		p.active = nil
		if !errors.Is(err, transport.ErrClosed) {
			err = fmt.Errorf("%w: %w", transport.ErrClosed, err)
		}
		p.lastErr = err.Error()
	}
	p.mu.Unlock()
	if !current {
		return
	}

	a.cancel()
	a.sess.Close()
	p.metrics.Session(string(a.sess.Kind()), false)
	monitoring.Logf("pipeline: %s session %s ended: %v", a.sess.Kind(), a.sess.ID(), err)
}

// Ingest runs one framed record through the parser and, when it yields a
// packet, the aggregator. The record always reaches the audit log and raw
// record sinks. Parse failures are returned but never stop the pipeline.
func (p *Pipeline) Ingest(source, record string) (telemetry.Delta, error) {
	format := parser.Classify(record)
	pkt, err := parser.Parse(record)

	var delta telemetry.Delta
	switch {
	case err == nil:
		delta = p.agg.Apply(pkt)
		p.metrics.Record(format.String(), metrics.ResultParsed)
		p.metrics.Packet(source, delta.Rate)
	case errors.Is(err, parser.ErrDecode):
		p.metrics.Record(format.String(), metrics.ResultDecodeError)
		monitoring.Logf("pipeline: dropped %s record %q: %v", source, record, err)
	default:
		p.metrics.Record(format.String(), metrics.ResultUnrecognized)
	}

	p.appendRecord(record)
	return delta, err
}

func (p *Pipeline) emitSynthetic(pkt telemetry.Packet, record string) {
	delta := p.agg.Apply(pkt)
	p.metrics.Record(parser.FormatKeyValue.String(), metrics.ResultParsed)
	p.metrics.Packet(SourceSynthetic, delta.Rate)
	p.appendRecord(record)
}

func (p *Pipeline) appendRecord(record string) {
	p.audit.Append(record)
	p.metrics.AuditEntries(p.audit.Len())
	p.hub.PublishRecord(record)
}

// StartStream marks the data stream active. Without a live session it starts
// the synthetic generator.
func (p *Pipeline) StartStream() (Status, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return p.Status(), ErrClosed
	}
	p.streamOn = true
	linked := p.active != nil
	p.mu.Unlock()

	if !linked && p.gen.Start() {
		p.metrics.GeneratorRunning(true)
	}
	return p.Status(), nil
}

// StopStream marks the data stream inactive and halts the generator.
func (p *Pipeline) StopStream() Status {
	p.stopStream()
	return p.Status()
}

func (p *Pipeline) stopStream() {
	p.mu.Lock()
	p.streamOn = false
	p.mu.Unlock()
	if p.gen.Stop() {
		p.metrics.GeneratorRunning(false)
	}
}

// Clear resets the packet counter, data rate, timing and audit log, then runs
// the OnClear hooks.
func (p *Pipeline) Clear() {
	p.agg.Reset()
	p.audit.Clear()
	p.metrics.ResetRate()
	p.metrics.AuditEntries(0)

	p.mu.Lock()
	hooks := append([]func(){}, p.onClear...)
	p.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	monitoring.Logf("pipeline: cleared")
}

// Status reports the active link and stream.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		State:            transport.StateDisconnected,
		StreamActive:     p.streamOn,
		GeneratorRunning: p.gen.Running(),
		LastError:        p.lastErr,
	}
	if p.active != nil {
		s := p.active.sess
		st.Connected = true
		st.Kind = s.Kind()
		st.State = s.State()
		st.SessionID = s.ID()
	}
	return st
}

// Close stops the generator and the active session. Later Connect and
// StartStream calls fail with ErrClosed.
func (p *Pipeline) Close() error {
	p.connectMu.Lock()
	defer p.connectMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.stopStream()
	p.closeActive("shutdown")
	return nil
}

func (p *Pipeline) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pipeline) setLastErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = err.Error()
}
