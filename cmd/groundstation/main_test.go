package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/groundstation/internal/config"
	"github.com/banshee-data/groundstation/internal/transport"
)

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, "", *configPath)
	assert.Equal(t, "", *listen, "empty listen keeps the config value")
	assert.Equal(t, "", *dbPath)
	assert.False(t, *devMode)
	assert.False(t, *listPorts)
	assert.False(t, *showVersion)
}

func TestApplyFlags(t *testing.T) {
	defer func(l, d string, dev bool) { *listen, *dbPath, *devMode = l, d, dev }(*listen, *dbPath, *devMode)

	cfg := config.Default()
	applyFlags(cfg)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "groundstation.db", cfg.DBPath)
	assert.False(t, cfg.Synthetic.Autostart)

	*listen, *dbPath, *devMode = "127.0.0.1:9000", "/tmp/gs.db", true
	applyFlags(cfg)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, "/tmp/gs.db", cfg.DBPath)
	assert.True(t, cfg.Synthetic.Autostart, "-dev starts the synthetic stream")
}

func TestStartupConnector(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*config.Config)
		wantKind transport.Kind
		wantNil  bool
		wantErr  bool
	}{
		{name: "no transport", mutate: func(*config.Config) {}, wantNil: true},
		{
			name: "serial",
			mutate: func(c *config.Config) {
				c.Transport.Kind = "serial"
				c.Transport.Serial.Port = "/dev/ttyUSB0"
			},
			wantKind: transport.KindSerial,
		},
		{
			name:     "wireless",
			mutate:   func(c *config.Config) { c.Transport.Kind = "wireless" },
			wantKind: transport.KindWireless,
		},
		{
			name: "socket",
			mutate: func(c *config.Config) {
				c.Transport.Kind = "socket"
				c.Transport.Socket.Host = "192.168.4.1"
			},
			wantKind: transport.KindSocket,
		},
		{
			name: "bad baud",
			mutate: func(c *config.Config) {
				c.Transport.Kind = "serial"
				c.Transport.Serial.Port = "/dev/ttyUSB0"
				c.Transport.Serial.BaudRate = 1234
			},
			wantErr: true,
		},
		{name: "unknown kind", mutate: func(c *config.Config) { c.Transport.Kind = "lora" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)

			c, err := startupConnector(cfg, &transport.FakeCentral{})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, c)
				return
			}
			require.NotNil(t, c)
			assert.Equal(t, tt.wantKind, c.Kind())
		})
	}
}
