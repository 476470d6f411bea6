// Package transport provides a uniform connect/read/close contract over the
// three link types a ground station can receive telemetry on: a serial port,
// a notifying wireless characteristic and a message-oriented socket.
//
// Push-based backends (wireless notifications, socket messages) are adapted
// into the same blocking Read as the serial port, so callers drive every
// session with one sequential read loop.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/banshee-data/groundstation/internal/monitoring"
)

// Kind names a transport backend.
type Kind string

const (
	KindSerial   Kind = "serial"
	KindWireless Kind = "wireless"
	KindSocket   Kind = "socket"
)

// ParseKind validates a backend name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindSerial, KindWireless, KindSocket:
		return k, nil
	}
	return "", fmt.Errorf("unknown transport kind %q", s)
}

// State is a session's position in its connection lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateStreaming
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateDisconnected; st <= StateClosing; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown transport state %q", b)
}

var (
	// ErrConnect is matched by every connection establishment failure.
	ErrConnect = errors.New("transport connect failed")
	// ErrClosed is returned by Read once a session has ended, whether it was
	// closed locally or the remote end went away.
	ErrClosed = errors.New("transport closed")
)

// Connect stages reported in ConnectError.
const (
	StageDiscover  = "discover"
	StageOpen      = "open"
	StageLink      = "link"
	StageResolve   = "resolve"
	StageSubscribe = "subscribe"
	StageHandshake = "handshake"
	StageTimeout   = "timeout"
)

// ConnectError describes which step of session establishment failed.
type ConnectError struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *ConnectError) Unwrap() []error {
	return []error{ErrConnect, e.Err}
}

func connectError(kind Kind, stage string, err error) error {
	return &ConnectError{Kind: kind, Stage: stage, Err: err}
}

// Session is one live link. Read blocks until a chunk of text arrives, the
// context is cancelled or the session ends; after the session ends every Read
// returns an error matching ErrClosed. Close is idempotent and unblocks a
// pending Read.
type Session interface {
	ID() string
	Kind() Kind
	State() State
	Read(ctx context.Context) (string, error)
	Close() error
}

// Connector establishes sessions for one backend and configuration.
type Connector interface {
	Kind() Kind
	Connect(ctx context.Context) (Session, error)
}

// lifecycle carries the state shared by every session implementation.
type lifecycle struct {
	id    string
	kind  Kind
	state atomic.Int32

	once sync.Once
	done chan struct{}
	err  error
}

func newLifecycle(kind Kind) *lifecycle {
	l := &lifecycle{
		id:   uuid.NewString(),
		kind: kind,
		done: make(chan struct{}),
	}
	l.state.Store(int32(StateConnecting))
	return l
}

func (l *lifecycle) ID() string   { return l.id }
func (l *lifecycle) Kind() Kind   { return l.kind }
func (l *lifecycle) State() State { return State(l.state.Load()) }

func (l *lifecycle) connected() {
	l.state.CompareAndSwap(int32(StateConnecting), int32(StateConnected))
	monitoring.Logf("transport: %s session %s connected", l.kind, l.id)
}

// streaming records that the first chunk was delivered.
func (l *lifecycle) streaming() {
	l.state.CompareAndSwap(int32(StateConnected), int32(StateStreaming))
}

// ended reports whether shutdown has started.
func (l *lifecycle) ended() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// lost records a remote end of stream. Reads drain what was already queued;
// Close must still be called to release the handle.
func (l *lifecycle) lost(reason string) {
	if l.ended() {
		return
	}
	l.state.Store(int32(StateDisconnected))
	monitoring.Logf("transport: %s session %s lost (%s)", l.kind, l.id, reason)
}

// shutdown runs release exactly once and leaves the session Disconnected.
// Later calls return the first call's error.
func (l *lifecycle) shutdown(reason string, release func() error) error {
	l.once.Do(func() {
		l.state.Store(int32(StateClosing))
		close(l.done)
		if release != nil {
			l.err = release()
		}
		l.state.Store(int32(StateDisconnected))
		monitoring.Logf("transport: %s session %s disconnected (%s)", l.kind, l.id, reason)
	})
	return l.err
}
