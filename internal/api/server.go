package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/groundstation/internal/charts"
	"github.com/banshee-data/groundstation/internal/db"
	"github.com/banshee-data/groundstation/internal/display"
	"github.com/banshee-data/groundstation/internal/httputil"
	"github.com/banshee-data/groundstation/internal/metrics"
	"github.com/banshee-data/groundstation/internal/orientation"
	"github.com/banshee-data/groundstation/internal/pipeline"
	"github.com/banshee-data/groundstation/internal/timeutil"
	"github.com/banshee-data/groundstation/internal/transport"
)

const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Sinks are the display consumers served by the API.
type Sinks struct {
	Display     *display.Sink
	Charts      *charts.Sink
	Orientation *orientation.Sink
}

// AttachSinks creates the display, chart and orientation sinks, subscribes
// them to the pipeline and clears the charts whenever the pipeline is cleared.
func AttachSinks(p *pipeline.Pipeline, chartPoints int, clock timeutil.Clock) Sinks {
	s := Sinks{
		Display:     display.New(p.State()),
		Charts:      charts.New(chartPoints, clock),
		Orientation: orientation.New(clock),
	}
	p.Hub().Subscribe(s.Display, s.Display.Interest())
	p.Hub().Subscribe(s.Charts, s.Charts.Interest())
	p.Hub().Subscribe(s.Orientation, s.Orientation.Interest())
	p.OnClear(s.Charts.Reset)
	return s
}

// Options supplies the optional collaborators of a Server.
type Options struct {
	// DB stores profiles. Without it the profile routes answer 503.
	DB *db.DB
	// Metrics, when set, is served at /metrics.
	Metrics *metrics.Metrics
	// SerialPorts opens serial ports. Defaults to transport.HardwarePorts.
	SerialPorts transport.SerialPortFactory
	// ListPorts enumerates serial ports. Defaults to transport.ListSerialPorts.
	ListPorts func() ([]string, error)
	// Central drives wireless discovery and links. Without it the wireless
	// routes answer 503.
	Central transport.Central
	// Wireless and Socket hold the configured defaults merged into requests.
	Wireless transport.WirelessConfig
	Socket   transport.SocketConfig
	Clock    timeutil.Clock
}

type Server struct {
	pipe  *pipeline.Pipeline
	sinks Sinks
	opts  Options
}

func NewServer(p *pipeline.Pipeline, sinks Sinks, opts Options) *Server {
	if opts.SerialPorts == nil {
		opts.SerialPorts = transport.HardwarePorts
	}
	if opts.ListPorts == nil {
		opts.ListPorts = transport.ListSerialPorts
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Server{pipe: p, sinks: sinks, opts: opts}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes. Debug routes are attached separately.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/state", s.get(s.showState))
	mux.HandleFunc("/api/status", s.get(s.showStatus))
	mux.HandleFunc("/api/display", s.get(s.showDisplay))
	mux.HandleFunc("/api/orientation", s.get(s.showOrientation))
	mux.HandleFunc("/api/log", s.get(s.showLog))
	mux.HandleFunc("/api/log.csv", s.get(s.exportLog))

	mux.HandleFunc("/api/connect/serial", s.post(s.connectSerial))
	mux.HandleFunc("/api/connect/wireless", s.post(s.connectWireless))
	mux.HandleFunc("/api/connect/socket", s.post(s.connectSocket))
	mux.HandleFunc("/api/disconnect", s.post(s.disconnect))
	mux.HandleFunc("/api/stream/start", s.post(s.startStream))
	mux.HandleFunc("/api/stream/stop", s.post(s.stopStream))
	mux.HandleFunc("/api/clear", s.post(s.clear))

	mux.HandleFunc("/api/serial/ports", s.get(s.listSerialPorts))
	mux.HandleFunc("/api/wireless/scan", s.get(s.scanWireless))

	mux.HandleFunc("/api/profiles", s.handleProfiles)
	mux.HandleFunc("/api/profiles/connect", s.post(s.connectProfile))

	mux.HandleFunc("/charts/{series}", s.get(s.showChart))

	if s.opts.Metrics != nil {
		mux.Handle("/metrics", s.opts.Metrics.Handler())
	}
	return mux
}

func (s *Server) get(h http.HandlerFunc) http.HandlerFunc {
	return s.method(http.MethodGet, h)
}

func (s *Server) post(h http.HandlerFunc) http.HandlerFunc {
	return s.method(http.MethodPost, h)
}

func (s *Server) method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			httputil.MethodNotAllowed(w)
			return
		}
		h(w, r)
	}
}

// writeConnectError maps a connect failure onto an HTTP status. Device
// failures are 502; a bad request or a closed pipeline are not the device's
// fault.
func writeConnectError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, transport.ErrConnect):
		httputil.BadGateway(w, err.Error())
	case errors.Is(err, pipeline.ErrClosed):
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}
