// Package parser decodes framed telemetry records. Two wire formats are
// accepted: a single-line JSON object of field -> number, and comma separated
// key=value tokens. Both resolve keys through the canonical alias table in
// package telemetry.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/groundstation/internal/telemetry"
)

// Format is the wire shape a record was classified as.
type Format int

const (
	FormatUnknown Format = iota
	FormatJSON
	FormatKeyValue
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatKeyValue:
		return "key_value"
	default:
		return "unknown"
	}
}

var (
	// ErrDecode is matched by errors returned for malformed JSON records.
	ErrDecode = errors.New("malformed structured record")
	// ErrUnrecognized is returned for records matching neither format.
	ErrUnrecognized = errors.New("unrecognized record")
)

// DecodeError carries the record that failed structured decoding.
type DecodeError struct {
	Record string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %v", e.Record, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}

// Classify reports which format a trimmed record is in.
func Classify(record string) Format {
	switch {
	case strings.HasPrefix(record, "{") && strings.HasSuffix(record, "}"):
		return FormatJSON
	case strings.Contains(record, "="):
		return FormatKeyValue
	default:
		return FormatUnknown
	}
}

// Parse decodes record into a canonical packet.
//
// A JSON record missing a field gets that field's seed default, so a decoded
// JSON packet always carries every field. A key=value record carries only the
// fields it names; unknown keys and non-numeric values are skipped. The whole
// value must be numeric, so "T=23.5C" is skipped rather than read as 23.5.
// NaN and infinities count as non-numeric in both formats. Records of neither
// shape return ErrUnrecognized and malformed JSON returns a *DecodeError.
func Parse(record string) (telemetry.Packet, error) {
	switch Classify(record) {
	case FormatJSON:
		return parseJSON(record)
	case FormatKeyValue:
		return parseKeyValue(record), nil
	default:
		return telemetry.Packet{}, ErrUnrecognized
	}
}

func parseJSON(record string) (telemetry.Packet, error) {
	dec := json.NewDecoder(strings.NewReader(record))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return telemetry.Packet{}, &DecodeError{Record: record, Err: err}
	}
	if dec.More() {
		return telemetry.Packet{}, &DecodeError{Record: record, Err: errors.New("trailing data after object")}
	}

	var p telemetry.Packet
	for _, f := range telemetry.AllFields() {
		v, ok := lookupJSON(obj, f)
		if !ok {
			v = telemetry.Default(f)
		}
		p = p.With(f, v)
	}
	return p, nil
}

// lookupJSON returns the first numeric alias value present for f.
func lookupJSON(obj map[string]any, f telemetry.Field) (float64, bool) {
	for _, key := range f.Aliases() {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		if v, ok := numeric(raw); ok {
			return v, true
		}
	}
	return 0, false
}

func numeric(raw any) (float64, bool) {
	switch v := raw.(type) {
	case json.Number:
		return parseFinite(string(v))
	case string:
		return parseFinite(strings.TrimSpace(v))
	default:
		return 0, false
	}
}

// parseFinite parses s as a float, rejecting NaN and infinities.
func parseFinite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func parseKeyValue(record string) telemetry.Packet {
	var p telemetry.Packet
	for _, part := range strings.Split(record, ",") {
		key, rest, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		value, _, _ := strings.Cut(rest, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		f, ok := telemetry.LookupAlias(key)
		if !ok {
			continue
		}
		v, ok := parseFinite(value)
		if !ok {
			continue
		}
		p = p.With(f, v)
	}
	return p
}

// Render formats a packet as a key=value record using the short aliases, in
// field order. Rendered records parse back to the same field set.
func Render(p telemetry.Packet) string {
	var b bytes.Buffer
	for i, f := range p.Fields() {
		if i > 0 {
			b.WriteByte(',')
		}
		v, _ := p.Get(f)
		b.WriteString(renderKeys[f])
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(v, 'f', renderPrecision[f], 64))
	}
	return b.String()
}

var renderKeys = map[telemetry.Field]string{
	telemetry.Temperature: "T",
	telemetry.Humidity:    "H",
	telemetry.Pressure:    "P",
	telemetry.AccelX:      "AX",
	telemetry.AccelY:      "AY",
	telemetry.AccelZ:      "AZ",
	telemetry.GyroX:       "GX",
	telemetry.GyroY:       "GY",
	telemetry.GyroZ:       "GZ",
	telemetry.Roll:        "ROLL",
	telemetry.Pitch:       "PITCH",
	telemetry.Yaw:         "YAW",
	telemetry.CO2:         "CO2",
	telemetry.Altitude:    "ALT",
	telemetry.RSSI:        "RSSI",
	telemetry.SNR:         "SNR",
	telemetry.BER:         "BER",
	telemetry.WifiRSSI:    "WIFI_RSSI",
	telemetry.BLERSSI:     "BLE_RSSI",
	telemetry.CPUUsage:    "CPU",
	telemetry.CPUTemp:     "CPU_TEMP",
	telemetry.FreeHeap:    "HEAP",
	telemetry.Power:       "POWER",
	telemetry.LightLevel:  "LIGHT",
}

// renderPrecision follows the dashboard's log rendering; -1 keeps the
// shortest exact representation.
var renderPrecision = map[telemetry.Field]int{
	telemetry.Temperature: 1,
	telemetry.Humidity:    1,
	telemetry.Pressure:    2,
	telemetry.AccelX:      2,
	telemetry.AccelY:      2,
	telemetry.AccelZ:      2,
	telemetry.GyroX:       1,
	telemetry.GyroY:       1,
	telemetry.GyroZ:       1,
	telemetry.Roll:        1,
	telemetry.Pitch:       1,
	telemetry.Yaw:         1,
	telemetry.CO2:         0,
	telemetry.Altitude:    0,
	telemetry.RSSI:        0,
	telemetry.SNR:         1,
	telemetry.BER:         -1,
	telemetry.WifiRSSI:    0,
	telemetry.BLERSSI:     0,
	telemetry.CPUUsage:    0,
	telemetry.CPUTemp:     0,
	telemetry.FreeHeap:    0,
	telemetry.Power:       2,
	telemetry.LightLevel:  0,
}
