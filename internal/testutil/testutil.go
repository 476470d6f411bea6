// Package testutil provides shared test utilities and fixtures.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/groundstation/internal/transport"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// LoopbackAddr is a RemoteAddr that passes the tsweb debug access check.
const LoopbackAddr = "127.0.0.1:12345"

// NewAdminRequest creates a request for a /debug/ route as if sent from the
// local host.
func NewAdminRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.RemoteAddr = LoopbackAddr
	return req
}

// SerialFixture is a serial connector wired to an in-memory port.
type SerialFixture struct {
	Port      *transport.TestableSerialPort
	Factory   *transport.MockSerialPortFactory
	Connector transport.Connector
}

// NewSerialFixture returns a connector for path whose port is Port.
func NewSerialFixture(path string) *SerialFixture {
	port := transport.NewTestableSerialPort()
	factory := transport.NewMockSerialPortFactory(port)
	return &SerialFixture{
		Port:      port,
		Factory:   factory,
		Connector: transport.NewSerialConnector(transport.SerialConfig{Port: path}, factory),
	}
}
