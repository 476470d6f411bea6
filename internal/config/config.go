// Package config loads the ground station's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/groundstation/internal/fsutil"
	"github.com/banshee-data/groundstation/internal/transport"
)

const maxFileSize = 1 << 20

// Config is the root of the YAML file.
type Config struct {
	Listen    string          `yaml:"listen"`
	DBPath    string          `yaml:"db_path"`
	Transport TransportConfig `yaml:"transport"`
	Synthetic SyntheticConfig `yaml:"synthetic"`
	Audit     AuditConfig     `yaml:"audit"`
	Charts    ChartsConfig    `yaml:"charts"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// TransportConfig selects the link opened at startup. An empty Kind leaves
// the station disconnected until an operator connects over the API.
type TransportConfig struct {
	Kind     string         `yaml:"kind"`
	Serial   SerialConfig   `yaml:"serial"`
	Wireless WirelessConfig `yaml:"wireless"`
	Socket   SocketConfig   `yaml:"socket"`
}

type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"`
}

type WirelessConfig struct {
	Address              string        `yaml:"address"`
	NamePrefixes         []string      `yaml:"name_prefixes"`
	ServiceUUIDs         []string      `yaml:"service_uuids"`
	UARTService          string        `yaml:"uart_service"`
	NotifyCharacteristic string        `yaml:"notify_characteristic"`
	ScanTimeout          time.Duration `yaml:"scan_timeout"`
}

type SocketConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Path           string        `yaml:"path"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type SyntheticConfig struct {
	Autostart bool          `yaml:"autostart"`
	Interval  time.Duration `yaml:"interval"`
}

type AuditConfig struct {
	Capacity int `yaml:"capacity"`
	MaxText  int `yaml:"max_text"`
}

type ChartsConfig struct {
	MaxPoints int `yaml:"max_points"`
}

type MetricsConfig struct {
	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the YAML file at path. An empty path, or a path that does not
// exist, yields the defaults.
func Load(path string) (*Config, error) {
	return LoadFS(fsutil.OSFileSystem{}, path)
}

// LoadFS is Load reading through fsys.
func LoadFS(fsys fsutil.FileSystem, path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}
	info, err := fsys.Stat(cleanPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	raw, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.DBPath == "" {
		c.DBPath = "groundstation.db"
	}

	s := &c.Transport.Serial
	if s.BaudRate == 0 {
		s.BaudRate = transport.DefaultBaudRate
	}

	w := &c.Transport.Wireless
	if len(w.NamePrefixes) == 0 && len(w.ServiceUUIDs) == 0 {
		w.NamePrefixes = append([]string(nil), transport.DefaultNamePrefixes...)
	}
	if w.UARTService == "" {
		w.UARTService = transport.DefaultUARTService
	}
	if w.NotifyCharacteristic == "" {
		w.NotifyCharacteristic = transport.DefaultNotifyCharacteristic
	}
	if w.ScanTimeout == 0 {
		w.ScanTimeout = transport.DefaultScanTimeout
	}

	k := &c.Transport.Socket
	if k.Port == 0 {
		k.Port = transport.DefaultSocketPort
	}
	if k.Path == "" {
		k.Path = transport.DefaultSocketPath
	}
	if k.ConnectTimeout == 0 {
		k.ConnectTimeout = transport.DefaultSocketConnectTimeout
	}

	if c.Synthetic.Interval == 0 {
		c.Synthetic.Interval = time.Second
	}
	if c.Audit.Capacity == 0 {
		c.Audit.Capacity = 10
	}
	if c.Audit.MaxText == 0 {
		c.Audit.MaxText = 60
	}
	if c.Charts.MaxPoints == 0 {
		c.Charts.MaxPoints = 20
	}
	if c.Metrics.Enabled == nil {
		enabled := true
		c.Metrics.Enabled = &enabled
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.Transport.Kind != "" {
		kind, err := transport.ParseKind(c.Transport.Kind)
		if err != nil {
			return fmt.Errorf("transport.kind: %w", err)
		}
		if kind == transport.KindSerial && c.Transport.Serial.Port == "" {
			return fmt.Errorf("transport.serial.port is required for a serial transport")
		}
		if kind == transport.KindSocket && c.Transport.Socket.Host == "" {
			return fmt.Errorf("transport.socket.host is required for a socket transport")
		}
	}
	if _, err := c.Transport.Serial.PortOptions().Normalize(); err != nil {
		return fmt.Errorf("transport.serial: %w", err)
	}
	if p := c.Transport.Socket.Port; p < 1 || p > 65535 {
		return fmt.Errorf("transport.socket.port must be between 1 and 65535, got %d", p)
	}
	if c.Transport.Wireless.ScanTimeout < 0 {
		return fmt.Errorf("transport.wireless.scan_timeout must be positive, got %s", c.Transport.Wireless.ScanTimeout)
	}
	if c.Transport.Socket.ConnectTimeout < 0 {
		return fmt.Errorf("transport.socket.connect_timeout must be positive, got %s", c.Transport.Socket.ConnectTimeout)
	}
	if c.Synthetic.Interval < 0 {
		return fmt.Errorf("synthetic.interval must be positive, got %s", c.Synthetic.Interval)
	}
	if c.Audit.Capacity < 0 || c.Audit.MaxText < 0 {
		return fmt.Errorf("audit.capacity and audit.max_text must be non-negative")
	}
	if c.Charts.MaxPoints < 0 {
		return fmt.Errorf("charts.max_points must be non-negative, got %d", c.Charts.MaxPoints)
	}
	return nil
}

// MetricsEnabled reports whether /metrics is served.
func (c *Config) MetricsEnabled() bool {
	return c.Metrics.Enabled == nil || *c.Metrics.Enabled
}

func (s SerialConfig) PortOptions() transport.PortOptions {
	return transport.PortOptions{
		BaudRate: s.BaudRate,
		DataBits: s.DataBits,
		StopBits: s.StopBits,
		Parity:   s.Parity,
	}
}

func (s SerialConfig) Transport() transport.SerialConfig {
	return transport.SerialConfig{Port: s.Port, Options: s.PortOptions()}
}

func (w WirelessConfig) Transport() transport.WirelessConfig {
	return transport.WirelessConfig{
		Address: w.Address,
		Filter: transport.WirelessFilter{
			NamePrefixes: w.NamePrefixes,
			ServiceUUIDs: w.ServiceUUIDs,
		},
		Service:        w.UARTService,
		Characteristic: w.NotifyCharacteristic,
		ScanTimeout:    w.ScanTimeout,
	}
}

func (s SocketConfig) Transport() transport.SocketConfig {
	return transport.SocketConfig{
		Host:           s.Host,
		Port:           s.Port,
		Path:           s.Path,
		ConnectTimeout: s.ConnectTimeout,
	}
}
