package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"
)

// BluetoothCentral implements Central on a host Bluetooth LE adapter.
type BluetoothCentral struct {
	adapter *bluetooth.Adapter

	enableOnce sync.Once
	enableErr  error

	mu    sync.Mutex
	seen  map[string]bluetooth.Address
	links map[string]*bluetoothPeripheral
}

// NewBluetoothCentral wraps adapter, or the system default adapter if nil.
// The adapter is enabled on first use.
func NewBluetoothCentral(adapter *bluetooth.Adapter) *BluetoothCentral {
	if adapter == nil {
		adapter = bluetooth.DefaultAdapter
	}
	return &BluetoothCentral{
		adapter: adapter,
		seen:    make(map[string]bluetooth.Address),
		links:   make(map[string]*bluetoothPeripheral),
	}
}

func (c *BluetoothCentral) enable() error {
	c.enableOnce.Do(func() {
		c.adapter.SetConnectHandler(c.onConnectionChange)
		if err := c.adapter.Enable(); err != nil {
			c.enableErr = fmt.Errorf("enable bluetooth adapter: %w", err)
		}
	})
	return c.enableErr
}

func (c *BluetoothCentral) onConnectionChange(device bluetooth.Device, connected bool) {
	if connected {
		return
	}
	addr := device.Address.String()
	c.mu.Lock()
	p := c.links[addr]
	delete(c.links, addr)
	c.mu.Unlock()
	if p != nil {
		p.markGone()
	}
}

func (c *BluetoothCentral) Scan(ctx context.Context, services []string, found func(Advertisement)) error {
	if err := c.enable(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	uuids := make([]bluetooth.UUID, 0, len(services))
	for _, s := range services {
		u, err := bluetooth.ParseUUID(s)
		if err != nil {
			return fmt.Errorf("service uuid %q: %w", s, err)
		}
		uuids = append(uuids, u)
	}

	stop := context.AfterFunc(ctx, func() {
		c.adapter.StopScan()
	})
	defer stop()

	err := c.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		adv := Advertisement{
			Address: r.Address.String(),
			Name:    r.LocalName(),
			RSSI:    r.RSSI,
		}
		for i, u := range uuids {
			if r.HasServiceUUID(u) {
				adv.Services = append(adv.Services, services[i])
			}
		}
		c.mu.Lock()
		c.seen[adv.Address] = r.Address
		c.mu.Unlock()
		found(adv)
	})
	if ctx.Err() != nil {
		// StopScan ends the scan; the deadline is the normal exit.
		return nil
	}
	return err
}

func (c *BluetoothCentral) Connect(ctx context.Context, address string) (Peripheral, error) {
	if err := c.enable(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	addr, ok := c.seen[address]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("device %s has not been discovered", address)
	}

	type result struct {
		dev bluetooth.Device
		err error
	}
	ch := make(chan result, 1)
	go func() {
		dev, err := c.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- result{dev, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil {
				r.dev.Disconnect()
			}
		}()
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		p := &bluetoothPeripheral{dev: r.dev, gone: make(chan struct{})}
		c.mu.Lock()
		c.links[address] = p
		c.mu.Unlock()
		return p, nil
	}
}

type bluetoothPeripheral struct {
	dev      bluetooth.Device
	goneOnce sync.Once
	gone     chan struct{}
}

func (p *bluetoothPeripheral) markGone() {
	p.goneOnce.Do(func() { close(p.gone) })
}

func (p *bluetoothPeripheral) Disconnected() <-chan struct{} {
	return p.gone
}

func (p *bluetoothPeripheral) Characteristic(service, characteristic string) (NotifyCharacteristic, error) {
	svcUUID, err := bluetooth.ParseUUID(service)
	if err != nil {
		return nil, fmt.Errorf("service uuid %q: %w", service, err)
	}
	charUUID, err := bluetooth.ParseUUID(characteristic)
	if err != nil {
		return nil, fmt.Errorf("characteristic uuid %q: %w", characteristic, err)
	}

	svcs, err := p.dev.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil {
		return nil, err
	}
	if len(svcs) == 0 {
		return nil, errors.New("service not found")
	}
	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil {
		return nil, err
	}
	if len(chars) == 0 {
		return nil, errors.New("characteristic not found")
	}
	return &chars[0], nil
}

func (p *bluetoothPeripheral) Disconnect() error {
	defer p.markGone()
	return p.dev.Disconnect()
}
