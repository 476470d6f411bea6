package transport

import (
	"context"
	"fmt"
	"sync"
)

// FakeCentral is an in-memory Central for tests. Scan reports Advertisements
// and returns; Connect hands out FakePeripherals for advertised addresses.
type FakeCentral struct {
	mu sync.Mutex

	Advertisements []Advertisement
	ScanErr        error
	ConnectErr     error
	ResolveErr     error
	SubscribeErr   error

	// ScanServices records the service filter of each Scan call.
	ScanServices [][]string

	peripherals []*FakePeripheral
}

func (c *FakeCentral) Scan(ctx context.Context, services []string, found func(Advertisement)) error {
	c.mu.Lock()
	c.ScanServices = append(c.ScanServices, services)
	advs := append([]Advertisement(nil), c.Advertisements...)
	err := c.ScanErr
	c.mu.Unlock()

	if err != nil {
		return err
	}
	for _, adv := range advs {
		if ctx.Err() != nil {
			return nil
		}
		found(adv)
	}
	return nil
}

func (c *FakeCentral) Connect(ctx context.Context, address string) (Peripheral, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ConnectErr != nil {
		return nil, c.ConnectErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	known := false
	for _, adv := range c.Advertisements {
		if adv.Address == address {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("device %s has not been discovered", address)
	}
	p := &FakePeripheral{
		Address:      address,
		resolveErr:   c.ResolveErr,
		subscribeErr: c.SubscribeErr,
		gone:         make(chan struct{}),
	}
	c.peripherals = append(c.peripherals, p)
	return p, nil
}

// Last returns the most recently linked peripheral, or nil.
func (c *FakeCentral) Last() *FakePeripheral {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.peripherals) == 0 {
		return nil
	}
	return c.peripherals[len(c.peripherals)-1]
}

// FakePeripheral is a linked fake device. Notify delivers a payload to the
// subscribed callback and Drop simulates the device going out of range.
type FakePeripheral struct {
	Address string

	mu                 sync.Mutex
	resolveErr         error
	subscribeErr       error
	notify             func([]byte)
	Service            string
	CharacteristicUUID string
	disconnected       bool

	goneOnce sync.Once
	gone     chan struct{}
}

func (p *FakePeripheral) Characteristic(service, characteristic string) (NotifyCharacteristic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.resolveErr != nil {
		return nil, p.resolveErr
	}
	p.Service = service
	p.CharacteristicUUID = characteristic
	return p, nil
}

func (p *FakePeripheral) EnableNotifications(fn func([]byte)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.subscribeErr != nil {
		return p.subscribeErr
	}
	p.notify = fn
	return nil
}

func (p *FakePeripheral) Disconnected() <-chan struct{} {
	return p.gone
}

func (p *FakePeripheral) Disconnect() error {
	p.mu.Lock()
	p.disconnected = true
	p.mu.Unlock()
	p.goneOnce.Do(func() { close(p.gone) })
	return nil
}

// Notify delivers payload as a characteristic notification.
func (p *FakePeripheral) Notify(payload string) {
	p.mu.Lock()
	fn := p.notify
	p.mu.Unlock()
	if fn != nil {
		fn([]byte(payload))
	}
}

// Drop simulates an unexpected remote disconnection.
func (p *FakePeripheral) Drop() {
	p.goneOnce.Do(func() { close(p.gone) })
}

// IsDisconnected reports whether Disconnect was called locally.
func (p *FakePeripheral) IsDisconnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.disconnected
}
