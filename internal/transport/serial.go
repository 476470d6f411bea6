package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// SerialPorter is the minimal serial port surface a session needs. It is
// satisfied by serial.Port and by TestableSerialPort.
type SerialPorter interface {
	io.Reader
	io.Closer
}

// TimeoutSerialPorter is implemented by ports whose reads can time out, which
// lets a session notice cancellation while the line is idle.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(timeout time.Duration) error
}

// SerialPortFactory opens serial ports. It exists so tests can run without
// hardware.
type SerialPortFactory interface {
	Open(path string, opts PortOptions) (SerialPorter, error)
}

// SerialPortOpener adapts a function to SerialPortFactory.
type SerialPortOpener func(path string, opts PortOptions) (SerialPorter, error)

func (f SerialPortOpener) Open(path string, opts PortOptions) (SerialPorter, error) {
	return f(path, opts)
}

// HardwarePorts opens real serial ports with go.bug.st/serial.
var HardwarePorts SerialPortFactory = SerialPortOpener(func(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	return serial.Open(path, mode)
})

// ListSerialPorts returns the serial ports present on this host.
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

// DefaultSerialReadTimeout bounds how long an idle Read waits before it
// rechecks for cancellation.
const DefaultSerialReadTimeout = 200 * time.Millisecond

// SerialConfig selects a port and its line settings.
type SerialConfig struct {
	Port        string        `json:"port"`
	Options     PortOptions   `json:"options"`
	ReadTimeout time.Duration `json:"-"`
}

// SerialConnector opens exclusive serial sessions.
type SerialConnector struct {
	cfg     SerialConfig
	factory SerialPortFactory
}

// NewSerialConnector returns a connector for cfg. A nil factory opens real
// hardware.
func NewSerialConnector(cfg SerialConfig, factory SerialPortFactory) *SerialConnector {
	if factory == nil {
		factory = HardwarePorts
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultSerialReadTimeout
	}
	return &SerialConnector{cfg: cfg, factory: factory}
}

func (c *SerialConnector) Kind() Kind { return KindSerial }

func (c *SerialConnector) Connect(ctx context.Context) (Session, error) {
	if c.cfg.Port == "" {
		return nil, connectError(KindSerial, StageOpen, errors.New("no serial port selected"))
	}
	opts, err := c.cfg.Options.Normalize()
	if err != nil {
		return nil, connectError(KindSerial, StageOpen, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, connectError(KindSerial, StageOpen, err)
	}

	port, err := c.factory.Open(c.cfg.Port, opts)
	if err != nil {
		return nil, connectError(KindSerial, StageOpen, fmt.Errorf("open %s: %w", c.cfg.Port, err))
	}
	if tp, ok := port.(TimeoutSerialPorter); ok {
		if err := tp.SetReadTimeout(c.cfg.ReadTimeout); err != nil {
			port.Close()
			return nil, connectError(KindSerial, StageOpen, fmt.Errorf("set read timeout on %s: %w", c.cfg.Port, err))
		}
	}

	s := &serialSession{
		lifecycle: newLifecycle(KindSerial),
		path:      c.cfg.Port,
		port:      port,
		buf:       make([]byte, 512),
	}
	s.connected()
	return s, nil
}

type serialSession struct {
	*lifecycle
	path string
	port SerialPorter
	buf  []byte
}

// Read returns the next bytes received on the port as text. A read that
// times out with no data loops so that ctx and Close are observed.
func (s *serialSession) Read(ctx context.Context) (string, error) {
	for {
		if s.ended() {
			return "", ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := s.port.Read(s.buf)
		if n > 0 {
			s.streaming()
			return string(s.buf[:n]), nil
		}
		if err == nil {
			continue
		}
		if s.ended() {
			return "", ErrClosed
		}
		s.shutdown("read error", s.port.Close)
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("serial %s: end of stream: %w", s.path, ErrClosed)
		}
		return "", fmt.Errorf("serial %s: %w: %w", s.path, ErrClosed, err)
	}
}

func (s *serialSession) Close() error {
	return s.shutdown("closed", s.port.Close)
}
