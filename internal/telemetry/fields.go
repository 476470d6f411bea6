// Package telemetry holds the canonical telemetry model shared by every stage of
// the ingestion pipeline: the enumerated field set, the alias table used by both
// wire formats, the seed defaults, the immutable CanonicalPacket, the
// process-wide TelemetryState and the Aggregator that merges packets into it and
// fans changes out to subscribed sinks.
package telemetry

import (
	"fmt"
	"strings"
)

// Field identifies one canonical telemetry value.
type Field int

const (
	Temperature Field = iota
	Humidity
	Pressure
	AccelX
	AccelY
	AccelZ
	GyroX
	GyroY
	GyroZ
	Roll
	Pitch
	Yaw
	CO2
	Altitude
	RSSI
	SNR
	BER
	WifiRSSI
	BLERSSI
	CPUUsage
	CPUTemp
	FreeHeap
	Power
	LightLevel

	// NumFields is the size of the canonical field set.
	NumFields int = iota
)

var fieldNames = [NumFields]string{
	Temperature: "temperature",
	Humidity:    "humidity",
	Pressure:    "pressure",
	AccelX:      "accelX",
	AccelY:      "accelY",
	AccelZ:      "accelZ",
	GyroX:       "gyroX",
	GyroY:       "gyroY",
	GyroZ:       "gyroZ",
	Roll:        "roll",
	Pitch:       "pitch",
	Yaw:         "yaw",
	CO2:         "co2",
	Altitude:    "altitude",
	RSSI:        "rssi",
	SNR:         "snr",
	BER:         "ber",
	WifiRSSI:    "wifiRSSI",
	BLERSSI:     "bleRSSI",
	CPUUsage:    "cpuUsage",
	CPUTemp:     "cpuTemp",
	FreeHeap:    "freeHeap",
	Power:       "power",
	LightLevel:  "lightLevel",
}

// aliases lists the accepted wire keys for each field. Order matters for the
// structured-object format: the first alias present in a record wins.
var aliases = [NumFields][]string{
	Temperature: {"temp", "temperature", "T", "t"},
	Humidity:    {"hum", "humidity", "H", "h"},
	Pressure:    {"press", "pressure", "P", "p"},
	AccelX:      {"ax", "accelX", "AX"},
	AccelY:      {"ay", "accelY", "AY"},
	AccelZ:      {"az", "accelZ", "AZ"},
	GyroX:       {"gx", "gyroX", "GX"},
	GyroY:       {"gy", "gyroY", "GY"},
	GyroZ:       {"gz", "gyroZ", "GZ"},
	Roll:        {"roll", "R"},
	Pitch:       {"pitch"},
	Yaw:         {"yaw", "Y"},
	CO2:         {"co2", "CO2"},
	Altitude:    {"alt", "altitude"},
	RSSI:        {"rssi", "RSSI"},
	SNR:         {"snr", "SNR"},
	BER:         {"ber", "BER"},
	WifiRSSI:    {"wifi_rssi", "wifiRSSI"},
	BLERSSI:     {"ble_rssi", "bleRSSI"},
	CPUUsage:    {"cpu", "cpuUsage"},
	CPUTemp:     {"cpu_temp", "cpuTemp"},
	FreeHeap:    {"heap", "freeHeap"},
	Power:       {"power", "voltage"},
	LightLevel:  {"light", "lightLevel"},
}

// foldedAliases maps lower-cased aliases to fields for case-insensitive keys.
var foldedAliases = func() map[string]Field {
	m := make(map[string]Field)
	for f, keys := range aliases {
		for _, k := range keys {
			m[strings.ToLower(k)] = Field(f)
		}
	}
	return m
}()

// AllFields returns every canonical field in declaration order.
func AllFields() []Field {
	out := make([]Field, NumFields)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

// Valid reports whether f is a member of the canonical field set.
func (f Field) Valid() bool {
	return f >= 0 && int(f) < NumFields
}

func (f Field) String() string {
	if !f.Valid() {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldNames[f]
}

// MarshalText lets fields be used as JSON object keys.
func (f Field) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid telemetry field %d", int(f))
	}
	return []byte(fieldNames[f]), nil
}

// UnmarshalText accepts a canonical field name.
func (f *Field) UnmarshalText(b []byte) error {
	parsed, err := ParseField(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseField resolves a canonical field name (not an alias).
func ParseField(name string) (Field, error) {
	for i, n := range fieldNames {
		if n == name {
			return Field(i), nil
		}
	}
	return 0, fmt.Errorf("unknown telemetry field %q", name)
}

// Aliases returns the wire keys accepted for f, in precedence order.
func (f Field) Aliases() []string {
	if !f.Valid() {
		return nil
	}
	out := make([]string, len(aliases[f]))
	copy(out, aliases[f])
	return out
}

// LookupAlias resolves a wire key case-insensitively, as the key=value format
// requires.
func LookupAlias(key string) (Field, bool) {
	f, ok := foldedAliases[strings.ToLower(key)]
	return f, ok
}
