// Package transport owns the bidirectional realtime channel to the assistant
// endpoint: connection lifecycle, the auth handshake, and message framing.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"todovoice/internal/protocol"
)

// State is the transport lifecycle position.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateAuthPending  State = "auth_pending"
	StateActive       State = "active"
	StateClosing      State = "closing"
	StateError        State = "error"
)

// ErrConnectionFailed covers a socket that failed to open or closed before
// the server acknowledged the auth frame.
var ErrConnectionFailed = errors.New("realtime connection failed")

var (
	errAlreadyOpen = errors.New("transport already open")
	errReused      = errors.New("transport is single use; build a new one per session")
)

// Handler receives inbound frames and the disconnect event. HandleDisconnect
// fires at most once per connection and only for unexpected closure, never
// for an explicit Close.
type Handler interface {
	HandleMessage(msg any)
	HandleDisconnect(err error)
}

// EndpointFromBase derives the realtime socket URL from the REST base URL,
// switching scheme to match (http -> ws, https -> wss).
func EndpointFromBase(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/voice/ws"
	return u.String(), nil
}

// Transport manages one realtime connection. A Transport is single-use:
// the controller builds a fresh one per session.
type Transport struct {
	endpoint         string
	handshakeTimeout time.Duration
	handler          Handler

	mu    sync.Mutex
	state State
	used  bool
	conn  *websocket.Conn

	writeMu        sync.Mutex
	disconnectOnce sync.Once
	closeOnce      sync.Once
}

func New(endpoint string, handshakeTimeout time.Duration, handler Handler) *Transport {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	return &Transport{
		endpoint:         endpoint,
		handshakeTimeout: handshakeTimeout,
		handler:          handler,
		state:            StateDisconnected,
	}
}

// State reports the current lifecycle position.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Open dials the endpoint, sends the auth frame, and waits for the server
// connected acknowledgment before going Active. Any failure before the ack
// leaves the transport in the Error state and returns ErrConnectionFailed.
func (t *Transport) Open(ctx context.Context, token, sessionID string) error {
	t.mu.Lock()
	if t.state != StateDisconnected {
		t.mu.Unlock()
		return errAlreadyOpen
	}
	// closeOnce and disconnectOnce are consumed by Close, so a second life
	// could neither close its socket nor report its disconnect.
	if t.used {
		t.mu.Unlock()
		return errReused
	}
	t.used = true
	t.state = StateConnecting
	t.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: t.handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, t.endpoint, nil)
	if err != nil {
		t.setState(StateError)
		return fmt.Errorf("%w: dial %s: %v", ErrConnectionFailed, t.endpoint, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.state = StateAuthPending
	t.mu.Unlock()

	auth := protocol.Auth{Type: protocol.TypeAuth, Token: token, SessionID: sessionID}
	if err := t.writeJSON(auth); err != nil {
		t.abandon(conn)
		return fmt.Errorf("%w: send auth frame: %v", ErrConnectionFailed, err)
	}

	if err := t.awaitConnected(conn); err != nil {
		t.abandon(conn)
		return err
	}

	t.setState(StateActive)
	go t.readLoop(conn)
	return nil
}

func (t *Transport) abandon(conn *websocket.Conn) {
	t.setState(StateError)
	_ = conn.Close()
}

func (t *Transport) awaitConnected(conn *websocket.Conn) error {
	deadline := time.Now().Add(t.handshakeTimeout)
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: socket closed before acknowledgment: %v", ErrConnectionFailed, err)
		}
		msg, err := protocol.ParseServerMessage(raw)
		if err != nil {
			// Unknown or malformed pre-ack frames are skipped.
			continue
		}
		switch m := msg.(type) {
		case protocol.Connected:
			return nil
		case protocol.ErrorEvent:
			return fmt.Errorf("%w: server rejected session: %s", ErrConnectionFailed, m.Detail)
		default:
			continue
		}
	}
}

// Send marshals and writes one frame. Valid only while Active; otherwise it
// drops the frame silently. Audio arrives on a tight capture cadence, and a
// dropped frame is preferable to blocking the capture pipeline.
func (t *Transport) Send(frame any) {
	t.mu.Lock()
	active := t.state == StateActive
	conn := t.conn
	t.mu.Unlock()
	if !active || conn == nil {
		return
	}
	_ = t.writeJSON(frame)
}

func (t *Transport) writeJSON(frame any) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errors.New("no connection")
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteJSON(frame)
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			expected := t.state == StateClosing || t.state == StateDisconnected
			if !expected {
				t.state = StateError
			}
			t.mu.Unlock()
			if !expected {
				t.dispatchDisconnect(err)
			}
			return
		}

		msg, perr := protocol.ParseServerMessage(raw)
		if perr != nil {
			// Forward compatible: unrecognized tags are ignored.
			continue
		}
		if t.handler != nil {
			t.handler.HandleMessage(msg)
		}
	}
}

func (t *Transport) dispatchDisconnect(err error) {
	t.disconnectOnce.Do(func() {
		if t.handler != nil {
			t.handler.HandleDisconnect(err)
		}
	})
}

// Close tears the connection down and forces Disconnected regardless of the
// current state. Idempotent and safe from error callbacks.
func (t *Transport) Close() {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.state = StateClosing
	t.mu.Unlock()

	t.closeOnce.Do(func() {
		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		}
	})

	// Suppress any late disconnect callback from the read loop.
	t.disconnectOnce.Do(func() {})

	t.setState(StateDisconnected)
}
