// Package display is the numeric readout sink. It keeps the latest value of
// every field and renders the formatted readings and derived indicators the
// operator console shows.
package display

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/banshee-data/groundstation/internal/telemetry"
)

// Sink receives every field update.
type Sink struct {
	state *telemetry.State

	mu     sync.RWMutex
	values [telemetry.NumFields]float64
}

// New returns a display seeded with the current state. state is also read for
// the packet counter and data rate.
func New(state *telemetry.State) *Sink {
	s := &Sink{state: state}
	snap := state.Snapshot()
	for _, f := range telemetry.AllFields() {
		s.values[f] = snap.Value(f)
	}
	return s
}

// Interest subscribes to all fields.
func (s *Sink) Interest() telemetry.Interest {
	return telemetry.Interest{AllFields: true}
}

func (s *Sink) OnFieldUpdate(f telemetry.Field, v float64) {
	if !f.Valid() {
		return
	}
	s.mu.Lock()
	s.values[f] = v
	s.mu.Unlock()
}

func (s *Sink) OnOrientationUpdate(roll, pitch, yaw float64) {}
func (s *Sink) OnRawRecord(text string)                      {}

// View is the rendered console.
type View struct {
	Readings       map[string]string `json:"readings"`
	TemperatureBar float64           `json:"temperature_bar_pct"`
	PressureBar    float64           `json:"pressure_bar_pct"`
	BatteryPercent int               `json:"battery_pct"`
	SignalQuality  string            `json:"signal_quality"`
	AirQuality     string            `json:"air_quality"`
	PacketCount    uint64            `json:"packet_count"`
	DataRate       string            `json:"data_rate"`
}

// View renders the current readings.
func (s *Sink) View() View {
	s.mu.RLock()
	values := s.values
	s.mu.RUnlock()
	snap := s.state.Snapshot()

	v := View{
		Readings:       make(map[string]string, telemetry.NumFields),
		TemperatureBar: TemperatureBar(values[telemetry.Temperature]),
		PressureBar:    PressureBar(values[telemetry.Pressure]),
		BatteryPercent: BatteryPercent(values[telemetry.Power]),
		SignalQuality:  SignalQuality(values[telemetry.RSSI]),
		AirQuality:     AirQuality(values[telemetry.CO2]),
		PacketCount:    snap.PacketCount,
		DataRate:       fmt.Sprintf("%.1f Hz", snap.DataRate),
	}
	for _, f := range telemetry.AllFields() {
		v.Readings[f.String()] = Format(f, values[f])
	}
	return v
}

// Format renders one reading with its unit.
func Format(f telemetry.Field, v float64) string {
	switch f {
	case telemetry.Temperature:
		return fmt.Sprintf("%.1f °C", v)
	case telemetry.Humidity:
		return fmt.Sprintf("%.1f %%", v)
	case telemetry.Pressure:
		return fmt.Sprintf("%.2f hPa", v)
	case telemetry.AccelX, telemetry.AccelY, telemetry.AccelZ:
		return fmt.Sprintf("%.2f", v)
	case telemetry.GyroX, telemetry.GyroY, telemetry.GyroZ:
		return fmt.Sprintf("%.1f °/s", v)
	case telemetry.Roll, telemetry.Pitch, telemetry.Yaw:
		return fmt.Sprintf("%.1f°", v)
	case telemetry.CO2:
		return fmt.Sprintf("%d ppm", round(v))
	case telemetry.Altitude:
		return fmt.Sprintf("%d m", round(v))
	case telemetry.RSSI, telemetry.WifiRSSI, telemetry.BLERSSI:
		return fmt.Sprintf("%d dBm", round(v))
	case telemetry.SNR:
		return fmt.Sprintf("%.1f", v)
	case telemetry.BER:
		return exponential(v)
	case telemetry.CPUUsage, telemetry.LightLevel:
		return fmt.Sprintf("%d%%", round(v))
	case telemetry.CPUTemp:
		return fmt.Sprintf("%d°C", round(v))
	case telemetry.FreeHeap:
		return fmt.Sprintf("%d KB", round(v))
	case telemetry.Power:
		return fmt.Sprintf("%.2fV", v)
	default:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
}

// round rounds half up, matching the console's integer readouts.
func round(v float64) int {
	return int(math.Floor(v + 0.5))
}

// exponential renders one decimal of mantissa and an unpadded exponent,
// e.g. 1.2e-6.
func exponential(v float64) string {
	s := strconv.FormatFloat(v, 'e', 1, 64)
	mant, exp, ok := strings.Cut(s, "e")
	if !ok {
		return s
	}
	sign := exp[:1]
	digits := strings.TrimLeft(exp[1:], "0")
	if digits == "" {
		digits = "0"
	}
	if sign == "+" {
		return mant + "e+" + digits
	}
	return mant + "e-" + digits
}

func clampPct(v float64) float64 {
	return math.Max(0, math.Min(v, 100))
}

// TemperatureBar maps 0..50 °C onto a 0..100 % gauge.
func TemperatureBar(t float64) float64 {
	return clampPct(t / 50 * 100)
}

// PressureBar maps 980..1040 hPa onto a 0..100 % gauge.
func PressureBar(p float64) float64 {
	return clampPct((p - 980) / 60 * 100)
}

// BatteryPercent maps a 3.0..4.2 V cell onto 0..100 %.
func BatteryPercent(v float64) int {
	return round(clampPct((v - 3.0) / (4.2 - 3.0) * 100))
}

// SignalQuality grades a link RSSI in dBm.
func SignalQuality(rssi float64) string {
	switch {
	case rssi > -60:
		return "Excellent"
	case rssi > -70:
		return "Good"
	default:
		return "Fair"
	}
}

// AirQuality grades a CO2 concentration in ppm.
func AirQuality(ppm float64) string {
	switch {
	case ppm < 500:
		return "Good"
	case ppm < 1000:
		return "Moderate"
	default:
		return "Poor"
	}
}
