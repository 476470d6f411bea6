// Package charts is the time-series sink. It keeps a short rolling window of
// temperature and Wi-Fi signal readings and renders them as HTML line charts.
package charts

import (
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/groundstation/internal/telemetry"
	"github.com/banshee-data/groundstation/internal/timeutil"
)

// DefaultMaxPoints is the rolling window length of each series.
const DefaultMaxPoints = 20

// Point is one sample on a series.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Series is a bounded rolling window for one field.
type Series struct {
	Name     string
	Field    telemetry.Field
	Unit     string
	Min, Max float64 // default axis range
	Inverted bool

	mu     sync.RWMutex
	limit  int
	points []Point
}

func newSeries(name string, f telemetry.Field, unit string, min, max float64, inverted bool, limit int) *Series {
	return &Series{
		Name:     name,
		Field:    f,
		Unit:     unit,
		Min:      min,
		Max:      max,
		Inverted: inverted,
		limit:    limit,
		points:   make([]Point, 0, limit),
	}
}

func (s *Series) add(p Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.points) == s.limit {
		copy(s.points, s.points[1:])
		s.points = s.points[:len(s.points)-1]
	}
	s.points = append(s.points, p)
}

func (s *Series) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = s.points[:0]
}

// Points returns a copy of the window, oldest first.
func (s *Series) Points() []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Point(nil), s.points...)
}

// Bounds returns the axis range: the default range widened to whole units
// around any out-of-range sample.
func (s *Series) Bounds() (lo, hi float64) {
	pts := s.Points()
	lo, hi = s.Min, s.Max
	if len(pts) == 0 {
		return lo, hi
	}
	vals := make([]float64, len(pts))
	for i, p := range pts {
		vals[i] = p.Value
	}
	lo = math.Min(lo, math.Floor(floats.Min(vals)))
	hi = math.Max(hi, math.Ceil(floats.Max(vals)))
	return lo, hi
}

// Sink feeds the temperature and signal series.
type Sink struct {
	clock       timeutil.Clock
	Temperature *Series
	Signal      *Series
}

// New returns a sink keeping maxPoints samples per series.
func New(maxPoints int, clock timeutil.Clock) *Sink {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Sink{
		clock:       clock,
		Temperature: newSeries("Temperature", telemetry.Temperature, "°C", 20, 30, false, maxPoints),
		Signal:      newSeries("Wi-Fi Signal", telemetry.WifiRSSI, "dBm", -80, -50, true, maxPoints),
	}
}

// Interest subscribes to the charted fields only.
func (s *Sink) Interest() telemetry.Interest {
	return telemetry.Interest{Fields: []telemetry.Field{telemetry.Temperature, telemetry.WifiRSSI}}
}

func (s *Sink) OnFieldUpdate(f telemetry.Field, v float64) {
	p := Point{Time: s.clock.Now(), Value: v}
	switch f {
	case telemetry.Temperature:
		s.Temperature.add(p)
	case telemetry.WifiRSSI:
		s.Signal.add(p)
	}
}

func (s *Sink) OnOrientationUpdate(roll, pitch, yaw float64) {}
func (s *Sink) OnRawRecord(text string)                      {}

// Reset empties both series.
func (s *Sink) Reset() {
	s.Temperature.reset()
	s.Signal.reset()
}

// Lookup returns a series by its route name: "temperature" or "signal".
func (s *Sink) Lookup(name string) (*Series, bool) {
	switch name {
	case "temperature":
		return s.Temperature, true
	case "signal":
		return s.Signal, true
	}
	return nil, false
}

// Render writes series as a standalone HTML line chart.
func Render(w io.Writer, series *Series) error {
	pts := series.Points()
	lo, hi := series.Bounds()

	xs := make([]string, len(pts))
	data := make([]opts.LineData, len(pts))
	for i, p := range pts {
		xs[i] = p.Time.Local().Format(time.TimeOnly)
		data[i] = opts.LineData{Value: p.Value}
	}

	subtitle := "waiting for data"
	if n := len(pts); n > 0 {
		subtitle = fmt.Sprintf("latest %.1f %s, %d points", pts[n-1].Value, series.Unit, n)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: series.Name, Theme: "dark", Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: series.Name, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithAnimation(false),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: series.Unit, Min: lo, Max: hi, Inverse: opts.Bool(series.Inverted)}),
	)
	line.SetXAxis(xs).AddSeries(series.Name, data, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	return line.Render(w)
}
