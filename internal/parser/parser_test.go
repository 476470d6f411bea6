package parser

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/groundstation/internal/telemetry"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		record string
		want   Format
	}{
		{`{"temp":1}`, FormatJSON},
		{`{}`, FormatJSON},
		{`{"temp":1`, FormatUnknown},
		{`{"temp":1,"x=y":2`, FormatKeyValue},
		{"T=1", FormatKeyValue},
		{"a=b=c", FormatKeyValue},
		{"hello world", FormatUnknown},
		{"", FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.record, func(t *testing.T) {
			if got := Classify(tt.record); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.record, got, tt.want)
			}
		})
	}
}

func TestParseKeyValueCarriesOnlyNamedFields(t *testing.T) {
	p, err := Parse("T=23.5,H=50.0,RSSI=-65")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := map[string]float64{"temperature": 23.5, "humidity": 50, "rssi": -65}
	if diff := cmp.Diff(want, p.Map()); diff != "" {
		t.Errorf("packet mismatch (-want +got):\n%s", diff)
	}
}

func TestParseKeyValueEdgeCases(t *testing.T) {
	tests := []struct {
		name   string
		record string
		want   map[string]float64
	}{
		{"unknown keys only", "FOO=1,BAR=2", map[string]float64{}},
		{"case folded and spaced", " temp = 21.5 , Pressure=1000", map[string]float64{"temperature": 21.5, "pressure": 1000}},
		{"bad value skipped", "T=abc,H=40", map[string]float64{"humidity": 40}},
		{"empty key and value", "=5,T=,H=1", map[string]float64{"humidity": 1}},
		{"extra equals ignored", "T=1=2", map[string]float64{"temperature": 1}},
		{"token without equals", "T=3,junk,H=4", map[string]float64{"temperature": 3, "humidity": 4}},
		{"P is pressure", "P=990", map[string]float64{"pressure": 990}},
		{"later key wins", "T=1,temp=2", map[string]float64{"temperature": 2}},
		{"underscore aliases", "WIFI_RSSI=-40,CPU_TEMP=55", map[string]float64{"wifiRSSI": -40, "cpuTemp": 55}},
		{"non-finite skipped", "T=NaN,WIFI_RSSI=inf,H=-Infinity,P=1001", map[string]float64{"pressure": 1001}},
		{"unit suffix skipped", "T=23.5C,H=40", map[string]float64{"humidity": 40}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.record)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.record, err)
			}
			if diff := cmp.Diff(tt.want, p.Map()); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.record, diff)
			}
		})
	}
}

func TestParseJSONFillsDefaults(t *testing.T) {
	p, err := Parse(`{"temp":24.1}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Len() != telemetry.NumFields {
		t.Fatalf("Len() = %d, want every field", p.Len())
	}
	for _, f := range telemetry.AllFields() {
		got, _ := p.Get(f)
		want := telemetry.Default(f)
		if f == telemetry.Temperature {
			want = 24.1
		}
		if got != want {
			t.Errorf("%s = %v, want %v", f, got, want)
		}
	}
}

func TestParseJSONAliasPrecedence(t *testing.T) {
	p, err := Parse(`{"temperature":10,"temp":20,"P":900,"voltage":"3.7","hum":"wet"}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	check := func(f telemetry.Field, want float64) {
		t.Helper()
		if got, _ := p.Get(f); got != want {
			t.Errorf("%s = %v, want %v", f, got, want)
		}
	}
	check(telemetry.Temperature, 20)
	check(telemetry.Pressure, 900)
	check(telemetry.Power, 3.7)
	check(telemetry.Humidity, telemetry.Default(telemetry.Humidity))
	check(telemetry.Pitch, telemetry.Default(telemetry.Pitch))
}

func TestParseJSONNonFiniteFallsBack(t *testing.T) {
	p, err := Parse(`{"temp":"NaN","hum":"+Inf","pressure":"1001.5"}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	for f, want := range map[telemetry.Field]float64{
		telemetry.Temperature: telemetry.Default(telemetry.Temperature),
		telemetry.Humidity:    telemetry.Default(telemetry.Humidity),
		telemetry.Pressure:    1001.5,
	} {
		if got, _ := p.Get(f); got != want {
			t.Errorf("%s = %v, want %v", f, got, want)
		}
	}
}

func TestParseJSONZeroIsPresent(t *testing.T) {
	p, err := Parse(`{"rssi":0}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got, _ := p.Get(telemetry.RSSI); got != 0 {
		t.Errorf("rssi = %v, want explicit 0", got)
	}
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("hello world")
	if !errors.Is(err, ErrUnrecognized) {
		t.Errorf("Parse(free text) err = %v, want ErrUnrecognized", err)
	}

	for _, record := range []string{`{"temp":}`, `{"temp":1}{"temp":2}`, `{not json}`} {
		_, err := Parse(record)
		if !errors.Is(err, ErrDecode) {
			t.Errorf("Parse(%q) err = %v, want ErrDecode", record, err)
			continue
		}
		var de *DecodeError
		if !errors.As(err, &de) || de.Record != record {
			t.Errorf("Parse(%q) err = %#v, want *DecodeError carrying the record", record, err)
		}
	}
}

func TestRenderRoundTrip(t *testing.T) {
	src := telemetry.NewPacket(map[telemetry.Field]float64{
		telemetry.Temperature: 23.5,
		telemetry.Pressure:    1013.25,
		telemetry.Roll:        -4.5,
		telemetry.BER:         1.2e-6,
		telemetry.WifiRSSI:    -61,
		telemetry.LightLevel:  455,
	})
	line := Render(src)
	if want := "T=23.5,P=1013.25,ROLL=-4.5,BER=0.0000012,WIFI_RSSI=-61,LIGHT=455"; line != want {
		t.Fatalf("Render = %q, want %q", line, want)
	}
	got, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse(Render): %v", err)
	}
	if diff := cmp.Diff(src.Map(), got.Map()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderCoversEveryField(t *testing.T) {
	for _, f := range telemetry.AllFields() {
		key, ok := renderKeys[f]
		if !ok {
			t.Errorf("%s has no render key", f)
			continue
		}
		if back, ok := telemetry.LookupAlias(key); !ok || back != f {
			t.Errorf("render key %q for %s resolves to %v", key, f, back)
		}
		if _, ok := renderPrecision[f]; !ok {
			t.Errorf("%s has no render precision", f)
		}
	}
}
