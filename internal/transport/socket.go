package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultSocketPort           = 81
	DefaultSocketPath           = "/ws"
	DefaultSocketConnectTimeout = 5 * time.Second
)

// SocketConfig addresses a device's websocket endpoint.
type SocketConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port,omitempty"`
	Path           string        `json:"path,omitempty"`
	ConnectTimeout time.Duration `json:"-"`
}

// URL returns the websocket URL for the configuration. A host that already
// carries a ws:// or wss:// scheme is used as given.
func (c SocketConfig) URL() string {
	if strings.HasPrefix(c.Host, "ws://") || strings.HasPrefix(c.Host, "wss://") {
		return c.Host
	}
	port := c.Port
	if port == 0 {
		port = DefaultSocketPort
	}
	path := c.Path
	if path == "" {
		path = DefaultSocketPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(port)),
		Path:   path,
	}
	return u.String()
}

// SocketConnector opens message-oriented websocket sessions.
type SocketConnector struct {
	cfg    SocketConfig
	dialer *websocket.Dialer
}

func NewSocketConnector(cfg SocketConfig) *SocketConnector {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultSocketConnectTimeout
	}
	return &SocketConnector{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: cfg.ConnectTimeout,
		},
	}
}

func (c *SocketConnector) Kind() Kind { return KindSocket }

func (c *SocketConnector) Connect(ctx context.Context) (Session, error) {
	if c.cfg.Host == "" {
		return nil, connectError(KindSocket, StageOpen, errors.New("no socket host given"))
	}
	target := c.cfg.URL()

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, resp, err := c.dialer.DialContext(dialCtx, target, nil)
	if err != nil {
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) || isTimeout(err) {
			return nil, connectError(KindSocket, StageTimeout,
				fmt.Errorf("%s not established within %s: %w", target, c.cfg.ConnectTimeout, err))
		}
		if resp != nil {
			err = fmt.Errorf("%w (status %s)", err, resp.Status)
		}
		return nil, connectError(KindSocket, StageHandshake, fmt.Errorf("dial %s: %w", target, err))
	}

	s := &socketSession{
		lifecycle: newLifecycle(KindSocket),
		url:       target,
		conn:      conn,
	}
	s.queue = newChunkQueue(defaultQueueDepth, s.done)
	s.connected()
	go s.readLoop()
	return s, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

type socketSession struct {
	*lifecycle
	url   string
	conn  *websocket.Conn
	queue *chunkQueue
}

// readLoop pumps received messages into the queue until the connection
// fails or the session is closed.
func (s *socketSession) readLoop() {
	for {
		typ, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ended() {
				return
			}
			reason := "receive failed"
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = "remote closed"
			}
			s.lost(reason)
			s.queue.end(fmt.Errorf("socket %s: %s: %w: %w", s.url, reason, ErrClosed, err))
			s.conn.Close()
			return
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		if !s.queue.put(string(data)) {
			return
		}
	}
}

func (s *socketSession) Read(ctx context.Context) (string, error) {
	chunk, err := s.queue.take(ctx)
	if err != nil {
		return "", err
	}
	s.streaming()
	return chunk, nil
}

func (s *socketSession) Close() error {
	return s.shutdown("closed", func() error {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	})
}
