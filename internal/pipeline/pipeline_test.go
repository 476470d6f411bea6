package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/groundstation/internal/metrics"
	"github.com/banshee-data/groundstation/internal/monitoring"
	"github.com/banshee-data/groundstation/internal/parser"
	"github.com/banshee-data/groundstation/internal/telemetry"
	"github.com/banshee-data/groundstation/internal/testutil"
	"github.com/banshee-data/groundstation/internal/timeutil"
	"github.com/banshee-data/groundstation/internal/transport"
)

const waitFor = 2 * time.Second

func init() {
	monitoring.SetLogger(nil)
}

func newSerial(path string) (*transport.TestableSerialPort, *transport.MockSerialPortFactory, transport.Connector) {
	f := testutil.NewSerialFixture(path)
	return f.Port, f.Factory, f.Connector
}

func packets(p *Pipeline) uint64 {
	return p.State().Snapshot().PacketCount
}

func TestSerialRecordsReachState(t *testing.T) {
	p := New(Config{Metrics: metrics.New()})
	defer p.Close()

	port, _, conn := newSerial("/dev/ttyUSB0")
	st, err := p.Connect(context.Background(), conn)
	require.NoError(t, err)
	assert.True(t, st.Connected)
	assert.Equal(t, transport.KindSerial, st.Kind)
	assert.NotEmpty(t, st.SessionID)

	port.Feed("T=23.5,H=5")
	port.Feed("0.0,RSSI=-48\r\n")

	require.Eventually(t, func() bool { return packets(p) == 1 }, waitFor, time.Millisecond)

	snap := p.State().Snapshot()
	assert.Equal(t, 23.5, snap.Value(telemetry.Temperature))
	assert.Equal(t, 50.0, snap.Value(telemetry.Humidity))
	assert.Equal(t, -48.0, snap.Value(telemetry.RSSI))

	port.Feed("{\"roll\":1,\"pitch\":2,\"yaw\":3}\n")
	require.Eventually(t, func() bool { return packets(p) == 2 }, waitFor, time.Millisecond)

	snap = p.State().Snapshot()
	assert.Equal(t, 3.0, snap.Value(telemetry.Yaw))
	// the JSON record refilled the fields it omitted from the seed defaults
	for _, f := range []telemetry.Field{telemetry.Temperature, telemetry.Humidity, telemetry.RSSI} {
		assert.Equal(t, telemetry.Default(f), snap.Value(f), f.String())
	}

	entries := p.Audit().Snapshot()
	require.Len(t, entries, 2)
	assert.Equal(t, `{"roll":1,"pitch":2,"yaw":3}`, entries[0].Text)
	assert.Equal(t, "T=23.5,H=50.0,RSSI=-48", entries[1].Text)
	assert.Equal(t, transport.StateStreaming, p.Status().State)
}

func TestIngestFailuresAreLoggedNotFatal(t *testing.T) {
	m := metrics.New()
	p := New(Config{Metrics: m})

	d, err := p.Ingest("test", "FOO=1,BAR=2")
	require.NoError(t, err)
	assert.Empty(t, d.Changed)
	assert.Equal(t, uint64(1), packets(p))

	_, err = p.Ingest("test", "hello ground")
	assert.ErrorIs(t, err, parser.ErrUnrecognized)

	_, err = p.Ingest("test", `{"temp":}`)
	assert.ErrorIs(t, err, parser.ErrDecode)

	assert.Equal(t, uint64(1), packets(p), "failed records do not count as packets")
	assert.Equal(t, 3, p.Audit().Len(), "every record is logged")
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Records.WithLabelValues("json", metrics.ResultDecodeError)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Records.WithLabelValues("unknown", metrics.ResultUnrecognized)))
}

func TestConnectReplacesSession(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	first, _, c1 := newSerial("/dev/ttyUSB0")
	_, err := p.Connect(context.Background(), c1)
	require.NoError(t, err)

	second, _, c2 := newSerial("/dev/ttyUSB1")
	_, err = p.Connect(context.Background(), c2)
	require.NoError(t, err)
	assert.True(t, first.IsClosed(), "prior session must be closed first")
	assert.False(t, second.IsClosed())

	second.Feed("T=30\n")
	require.Eventually(t, func() bool { return packets(p) == 1 }, waitFor, time.Millisecond)
}

func TestRemoteHangupReleasesSession(t *testing.T) {
	m := metrics.New()
	p := New(Config{Metrics: m})
	defer p.Close()

	port, _, conn := newSerial("/dev/ttyACM0")
	_, err := p.Connect(context.Background(), conn)
	require.NoError(t, err)

	port.Feed("T=21\n")
	port.Hangup()

	require.Eventually(t, func() bool { return !p.Status().Connected }, waitFor, time.Millisecond)
	st := p.Status()
	assert.Contains(t, st.LastError, "end of stream")
	assert.Equal(t, transport.StateDisconnected, st.State)
	assert.True(t, port.IsClosed())
	assert.Equal(t, uint64(1), packets(p), "buffered record before hangup is kept")
	assert.Equal(t, 0.0, promtest.ToFloat64(m.SessionUp.WithLabelValues("serial")))

	assert.ErrorIs(t, p.Disconnect(), ErrNoSession)
}

func TestConnectErrorSurfaced(t *testing.T) {
	m := metrics.New()
	p := New(Config{Metrics: m})
	defer p.Close()

	_, factory, conn := newSerial("/dev/ttyUSB9")
	factory.Error = errors.New("device busy")

	st, err := p.Connect(context.Background(), conn)
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrConnect)
	assert.False(t, st.Connected)
	assert.Contains(t, st.LastError, "device busy")
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Connects.WithLabelValues("serial", transport.StageOpen)))
}

func TestStreamDrivesGeneratorOnlyWithoutSession(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	p := New(Config{Clock: clock})
	defer p.Close()
	p.Generator().Seed(7)

	st, err := p.StartStream()
	require.NoError(t, err)
	assert.True(t, st.StreamActive)
	assert.True(t, st.GeneratorRunning)

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return packets(p) == 1 }, waitFor, time.Millisecond)
	entries := p.Audit().Snapshot()
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Text, "T="))

	st = p.StopStream()
	assert.False(t, st.StreamActive)
	assert.False(t, st.GeneratorRunning)

	_, _, conn := newSerial("/dev/ttyUSB0")
	_, err = p.Connect(context.Background(), conn)
	require.NoError(t, err)
	st, err = p.StartStream()
	require.NoError(t, err)
	assert.True(t, st.StreamActive)
	assert.False(t, st.GeneratorRunning, "a live link replaces synthetic data")
}

func TestDisconnectStopsStream(t *testing.T) {
	p := New(Config{Clock: timeutil.NewMockClock(time.Now())})
	defer p.Close()

	assert.ErrorIs(t, p.Disconnect(), ErrNoSession)

	_, err := p.StartStream()
	require.NoError(t, err)
	require.True(t, p.Status().GeneratorRunning)

	port, _, conn := newSerial("/dev/ttyUSB0")
	_, err = p.Connect(context.Background(), conn)
	require.NoError(t, err)

	require.NoError(t, p.Disconnect())
	st := p.Status()
	assert.False(t, st.Connected)
	assert.False(t, st.StreamActive)
	assert.False(t, st.GeneratorRunning)
	assert.True(t, port.IsClosed())
	assert.Empty(t, st.LastError, "a local disconnect is not an error")
}

func TestClear(t *testing.T) {
	p := New(Config{})
	cleared := 0
	p.OnClear(func() { cleared++ })

	p.Ingest("test", "T=25")
	p.Ingest("test", "T=26")
	p.Clear()

	snap := p.State().Snapshot()
	assert.Equal(t, uint64(0), snap.PacketCount)
	assert.Equal(t, 0.0, snap.DataRate)
	assert.Equal(t, 26.0, snap.Value(telemetry.Temperature), "field values survive a clear")
	assert.Equal(t, 0, p.Audit().Len())
	assert.Equal(t, 1, cleared)
}

func TestClosedPipelineRejectsWork(t *testing.T) {
	p := New(Config{})
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, _, conn := newSerial("/dev/ttyUSB0")
	_, err := p.Connect(context.Background(), conn)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = p.StartStream()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTail(t *testing.T) {
	p := New(Config{})
	records, stop := p.Tail()

	p.Ingest("test", "T=25")
	select {
	case got := <-records:
		assert.Equal(t, "T=25", got)
	case <-time.After(waitFor):
		t.Fatal("record not delivered to tail")
	}

	stop()
	p.Ingest("test", "T=26")
	select {
	case got := <-records:
		t.Fatalf("unexpected record %q after unsubscribe", got)
	default:
	}
}

func TestAdminRoutes(t *testing.T) {
	p := New(Config{})
	mux := http.NewServeMux()
	p.AttachAdminRoutes(mux)

	tests := []struct {
		name       string
		method     string
		path       string
		form       url.Values
		wantStatus int
		wantBody   string
	}{
		{"inject", http.MethodPost, "/debug/records-inject", url.Values{"record": {"T=23.5,H=50"}}, http.StatusOK, "2 fields changed"},
		{"inject unrecognized", http.MethodPost, "/debug/records-inject", url.Values{"record": {"noise"}}, http.StatusOK, "unrecognized"},
		{"inject empty", http.MethodPost, "/debug/records-inject", url.Values{"record": {"  "}}, http.StatusBadRequest, "Missing record"},
		{"inject get", http.MethodGet, "/debug/records-inject", nil, http.StatusMethodNotAllowed, ""},
		{"audit", http.MethodGet, "/debug/audit", nil, http.StatusOK, "2 of 10 entries"},
		{"records page", http.MethodGet, "/debug/records", nil, http.StatusOK, "records-tail.js"},
		{"tail js", http.MethodGet, "/debug/records-tail.js", nil, http.StatusOK, "EventSource"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.NewAdminRequest(tt.method, tt.path, strings.NewReader(tt.form.Encode()))
			if tt.form != nil {
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			testutil.AssertStatusCode(t, rec.Code, tt.wantStatus)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}
