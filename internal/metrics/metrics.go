// Package metrics holds the prometheus collectors exported by the ground
// station. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "groundstation"

// Record results.
const (
	ResultParsed       = "parsed"
	ResultDecodeError  = "decode_error"
	ResultUnrecognized = "unrecognized"
)

// Metrics is the set of pipeline collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Chunks      *prometheus.CounterVec
	Bytes       *prometheus.CounterVec
	Records     *prometheus.CounterVec
	Packets     *prometheus.CounterVec
	Connects    *prometheus.CounterVec
	SessionUp   *prometheus.GaugeVec
	DataRate    prometheus.Gauge
	Generator   prometheus.Gauge
	AuditLength prometheus.Gauge
}

// New creates and registers every collector, plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "chunks_total",
			Help:      "Chunks read from transport sessions",
		}, []string{"transport"}),
		Bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "bytes_total",
			Help:      "Bytes read from transport sessions",
		}, []string{"transport"}),
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "records_total",
			Help:      "Framed records by wire format and parse result",
		}, []string{"format", "result"}),
		Packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "packets_total",
			Help:      "Packets merged into telemetry state by source",
		}, []string{"source"}),
		Connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "connects_total",
			Help:      "Connection attempts by transport and outcome (ok or the failing stage)",
		}, []string{"transport", "outcome"}),
		SessionUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "session_up",
			Help:      "1 while a session of the transport is active",
		}, []string{"transport"}),
		DataRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "data_rate_hz",
			Help:      "Instantaneous packet rate derived from inter-arrival time",
		}),
		Generator: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "synthetic",
			Name:      "running",
			Help:      "1 while the synthetic generator is running",
		}),
		AuditLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "auditlog",
			Name:      "entries",
			Help:      "Entries retained in the audit log",
		}),
	}

	m.registry.MustRegister(
		m.Chunks, m.Bytes, m.Records, m.Packets, m.Connects,
		m.SessionUp, m.DataRate, m.Generator, m.AuditLength,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Chunk(transport string, n int) {
	if m == nil {
		return
	}
	m.Chunks.WithLabelValues(transport).Inc()
	m.Bytes.WithLabelValues(transport).Add(float64(n))
}

func (m *Metrics) Record(format, result string) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(format, result).Inc()
}

func (m *Metrics) Packet(source string, rate float64) {
	if m == nil {
		return
	}
	m.Packets.WithLabelValues(source).Inc()
	m.DataRate.Set(rate)
}

func (m *Metrics) Connect(transport, outcome string) {
	if m == nil {
		return
	}
	m.Connects.WithLabelValues(transport, outcome).Inc()
}

func (m *Metrics) Session(transport string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.SessionUp.WithLabelValues(transport).Set(v)
}

func (m *Metrics) GeneratorRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.Generator.Set(1)
		return
	}
	m.Generator.Set(0)
}

func (m *Metrics) AuditEntries(n int) {
	if m == nil {
		return
	}
	m.AuditLength.Set(float64(n))
}

// ResetRate zeroes the data rate gauge after a clear.
func (m *Metrics) ResetRate() {
	if m == nil {
		return
	}
	m.DataRate.Set(0)
}
