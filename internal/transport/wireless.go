package transport

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Default wireless UART profile used by the flight boards.
const (
	DefaultUARTService          = "0000ffe0-0000-1000-8000-00805f9b34fb"
	DefaultNotifyCharacteristic = "0000ffe2-0000-1000-8000-00805f9b34fb"
	DefaultScanTimeout          = 10 * time.Second
)

// DefaultNamePrefixes are the advertised name prefixes accepted when no filter
// is configured.
var DefaultNamePrefixes = []string{"ESP32", "CUBESAT", "BLE"}

// Advertisement is one device seen during discovery.
type Advertisement struct {
	Address  string   `json:"address"`
	Name     string   `json:"name"`
	RSSI     int16    `json:"rssi"`
	Services []string `json:"services,omitempty"`
}

// WirelessFilter selects devices by advertised name prefix or service UUID.
// A device matching any entry is accepted.
type WirelessFilter struct {
	NamePrefixes []string `json:"name_prefixes,omitempty" yaml:"name_prefixes"`
	ServiceUUIDs []string `json:"service_uuids,omitempty" yaml:"service_uuids"`
}

// Match reports whether adv passes the filter. An empty filter matches all.
func (f WirelessFilter) Match(adv Advertisement) bool {
	if len(f.NamePrefixes) == 0 && len(f.ServiceUUIDs) == 0 {
		return true
	}
	for _, p := range f.NamePrefixes {
		if p != "" && strings.HasPrefix(adv.Name, p) {
			return true
		}
	}
	for _, want := range f.ServiceUUIDs {
		for _, got := range adv.Services {
			if strings.EqualFold(want, got) {
				return true
			}
		}
	}
	return false
}

// Central is the host side of a wireless link. Scan reports advertisements
// until ctx is done, noting which of services each device advertises.
// Connect links to a device previously reported by Scan.
type Central interface {
	Scan(ctx context.Context, services []string, found func(Advertisement)) error
	Connect(ctx context.Context, address string) (Peripheral, error)
}

// Peripheral is a linked remote device.
type Peripheral interface {
	// Characteristic resolves a characteristic within a service.
	Characteristic(service, characteristic string) (NotifyCharacteristic, error)
	// Disconnected is closed when the link drops for any reason.
	Disconnected() <-chan struct{}
	Disconnect() error
}

// NotifyCharacteristic delivers notification payloads to a callback.
type NotifyCharacteristic interface {
	EnableNotifications(fn func(payload []byte)) error
}

// Discover scans for timeout and returns the matching devices, strongest
// signal first. Each address appears once with its latest advertisement.
func Discover(ctx context.Context, central Central, filter WirelessFilter, timeout time.Duration) ([]Advertisement, error) {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var mu sync.Mutex
	byAddr := make(map[string]Advertisement)
	err := central.Scan(scanCtx, filter.ServiceUUIDs, func(adv Advertisement) {
		if !filter.Match(adv) {
			return
		}
		mu.Lock()
		byAddr[adv.Address] = adv
		mu.Unlock()
	})
	if err != nil {
		return nil, connectError(KindWireless, StageDiscover, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, connectError(KindWireless, StageDiscover, err)
	}

	mu.Lock()
	defer mu.Unlock()
	found := make([]Advertisement, 0, len(byAddr))
	for _, adv := range byAddr {
		found = append(found, adv)
	}
	slices.SortFunc(found, func(a, b Advertisement) int {
		if a.RSSI != b.RSSI {
			return int(b.RSSI) - int(a.RSSI)
		}
		return strings.Compare(a.Address, b.Address)
	})
	return found, nil
}

// WirelessConfig selects a device and the characteristic carrying telemetry.
// With no Address, Connect discovers devices and links to the strongest match.
type WirelessConfig struct {
	Address        string         `json:"address,omitempty"`
	Filter         WirelessFilter `json:"filter"`
	Service        string         `json:"service,omitempty"`
	Characteristic string         `json:"characteristic,omitempty"`
	ScanTimeout    time.Duration  `json:"-"`
}

// WirelessConnector opens notification-backed sessions.
type WirelessConnector struct {
	cfg     WirelessConfig
	central Central
}

func NewWirelessConnector(cfg WirelessConfig, central Central) *WirelessConnector {
	if len(cfg.Filter.NamePrefixes) == 0 && len(cfg.Filter.ServiceUUIDs) == 0 {
		cfg.Filter.NamePrefixes = DefaultNamePrefixes
	}
	if cfg.Service == "" {
		cfg.Service = DefaultUARTService
	}
	if cfg.Characteristic == "" {
		cfg.Characteristic = DefaultNotifyCharacteristic
	}
	return &WirelessConnector{cfg: cfg, central: central}
}

func (c *WirelessConnector) Kind() Kind { return KindWireless }

func (c *WirelessConnector) Connect(ctx context.Context) (Session, error) {
	if c.central == nil {
		return nil, connectError(KindWireless, StageDiscover, errors.New("no wireless adapter available"))
	}

	addr := c.cfg.Address
	if addr == "" {
		found, err := Discover(ctx, c.central, c.cfg.Filter, c.cfg.ScanTimeout)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, connectError(KindWireless, StageDiscover, errors.New("no matching device found"))
		}
		addr = found[0].Address
	}

	per, err := c.central.Connect(ctx, addr)
	if err != nil {
		return nil, connectError(KindWireless, StageLink, fmt.Errorf("link %s: %w", addr, err))
	}

	char, err := per.Characteristic(c.cfg.Service, c.cfg.Characteristic)
	if err != nil {
		per.Disconnect()
		return nil, connectError(KindWireless, StageResolve, fmt.Errorf("characteristic %s/%s: %w", c.cfg.Service, c.cfg.Characteristic, err))
	}

	s := &wirelessSession{
		lifecycle: newLifecycle(KindWireless),
		addr:      addr,
		per:       per,
	}
	s.queue = newChunkQueue(defaultQueueDepth, s.done)

	if err := char.EnableNotifications(func(payload []byte) {
		s.queue.offer(string(payload))
	}); err != nil {
		per.Disconnect()
		return nil, connectError(KindWireless, StageSubscribe, err)
	}

	s.connected()
	go s.watch()
	return s, nil
}

type wirelessSession struct {
	*lifecycle
	addr  string
	per   Peripheral
	queue *chunkQueue
}

// watch turns a remote disconnection into end of stream.
func (s *wirelessSession) watch() {
	select {
	case <-s.per.Disconnected():
		s.lost("remote disconnected")
		s.queue.end(fmt.Errorf("wireless %s: remote disconnected: %w", s.addr, ErrClosed))
	case <-s.done:
	}
}

func (s *wirelessSession) Read(ctx context.Context) (string, error) {
	chunk, err := s.queue.take(ctx)
	if err != nil {
		return "", err
	}
	s.streaming()
	return chunk, nil
}

func (s *wirelessSession) Close() error {
	return s.shutdown("closed", s.per.Disconnect)
}
