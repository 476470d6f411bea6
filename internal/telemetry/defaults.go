package telemetry

// defaults are the seed values every TelemetryState starts from. Fields that no
// packet ever carries keep these values for the lifetime of the process.
var defaults = [NumFields]float64{
	Temperature: 23.0,
	Humidity:    52.7,
	Pressure:    1016.01,
	AccelX:      10.10,
	AccelY:      11.23,
	AccelZ:      9.32,
	GyroX:       18.2,
	GyroY:       7.4,
	GyroZ:       -16.5,
	Roll:        0,
	Pitch:       0,
	Yaw:         0,
	CO2:         464,
	Altitude:    920,
	RSSI:        -65,
	SNR:         15.2,
	BER:         1.2e-6,
	WifiRSSI:    -65,
	BLERSSI:     -72,
	CPUUsage:    23,
	CPUTemp:     42,
	FreeHeap:    181,
	Power:       3.62,
	LightLevel:  51,
}

// Default returns the seed value for f.
func Default(f Field) float64 {
	if !f.Valid() {
		return 0
	}
	return defaults[f]
}

// Defaults returns a packet with every field set to its seed value.
func Defaults() Packet {
	var p Packet
	for i, v := range defaults {
		p = p.With(Field(i), v)
	}
	return p
}
