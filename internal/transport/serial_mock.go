package transport

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
)

var errMockPortClosed = errors.New("serial port closed")

// TestableSerialPort is an in-memory SerialPorter for tests. Reads block until
// data is fed, an error is injected, end of stream is signalled or the port is
// closed, which matches a real port with no read timeout.
type TestableSerialPort struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf     bytes.Buffer
	readErr error
	eof     bool

	// Closed reports whether Close was called.
	Closed bool
	// CloseError is returned by Close if set.
	CloseError error
	// ReadCalls counts Read invocations.
	ReadCalls int
	// ReadTimeout is the timeout last applied with SetReadTimeout.
	ReadTimeout time.Duration
}

// NewTestableSerialPort returns an empty open port.
func NewTestableSerialPort() *TestableSerialPort {
	p := &TestableSerialPort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *TestableSerialPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadCalls++
	for !p.Closed && p.readErr == nil && p.buf.Len() == 0 && !p.eof {
		p.cond.Wait()
	}

	switch {
	case p.Closed:
		return 0, errMockPortClosed
	case p.readErr != nil:
		err := p.readErr
		p.readErr = nil
		return 0, err
	case p.buf.Len() > 0:
		return p.buf.Read(b)
	default:
		return 0, io.EOF
	}
}

func (p *TestableSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Closed = true
	p.cond.Broadcast()
	return p.CloseError
}

// SetReadTimeout implements TimeoutSerialPorter.
func (p *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadTimeout = timeout
	return nil
}

// Feed appends data for subsequent reads.
func (p *TestableSerialPort) Feed(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.WriteString(data)
	p.cond.Broadcast()
}

// FailRead makes the next Read return err.
func (p *TestableSerialPort) FailRead(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.readErr = err
	p.cond.Broadcast()
}

// Hangup makes reads return io.EOF once buffered data is drained, like an
// unplugged USB adapter.
func (p *TestableSerialPort) Hangup() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.eof = true
	p.cond.Broadcast()
}

// IsClosed reports whether Close was called.
func (p *TestableSerialPort) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.Closed
}

// MockSerialPortFactory implements SerialPortFactory for tests.
type MockSerialPortFactory struct {
	mu sync.Mutex

	// Port is returned from Open.
	Port SerialPorter
	// Error is returned by Open if set.
	Error error
	// OpenCalls records every Open call.
	OpenCalls []MockOpenCall
}

// MockOpenCall records the arguments of one Open call.
type MockOpenCall struct {
	Path    string
	Options PortOptions
}

// NewMockSerialPortFactory returns a factory that hands out port.
func NewMockSerialPortFactory(port SerialPorter) *MockSerialPortFactory {
	return &MockSerialPortFactory{Port: port}
}

func (f *MockSerialPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = append(f.OpenCalls, MockOpenCall{Path: path, Options: opts})
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Port, nil
}

// LastCall returns the most recent Open call, or nil if none.
func (f *MockSerialPortFactory) LastCall() *MockOpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.OpenCalls) == 0 {
		return nil
	}
	c := f.OpenCalls[len(f.OpenCalls)-1]
	return &c
}
