// Package devtools implements the small slice of the browser DevTools
// protocol CapScribe needs: target discovery, session attachment,
// frame-tree walks, isolated worlds, and expression evaluation inside
// a specific frame. Transport is a single WebSocket connection to the
// browser endpoint; commands are matched to responses by id.
package devtools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultCallTimeout bounds a single command round-trip. Long-running
// work (the capture loop) is many short calls, so nothing legitimate
// needs longer than this.
const DefaultCallTimeout = 30 * time.Second

// Client manages the WebSocket connection to the browser.
type Client struct {
	url    string
	conn   *websocket.Conn
	connMu sync.Mutex
	msgID  atomic.Int64

	// Response channels keyed by command id.
	pending   map[int64]chan response
	pendingMu sync.Mutex

	// Protocol events (Target.*, Page.*) for anyone listening.
	events chan Event

	callTimeout time.Duration
	logger      *slog.Logger
}

// Event is a protocol notification pushed by the browser.
type Event struct {
	Method    string
	SessionID string
	Params    json.RawMessage
}

// CommandError is a protocol-level failure returned by the browser.
type CommandError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *CommandError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("devtools: %s (%s)", e.Message, e.Data)
	}
	return "devtools: " + e.Message
}

// wireMessage is the generic protocol frame, both directions.
type wireMessage struct {
	ID        int64           `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *CommandError   `json:"error,omitempty"`
}

type command struct {
	ID        int64  `json:"id"`
	Method    string `json:"method"`
	Params    any    `json:"params,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

type response struct {
	Result json.RawMessage
	Err    *CommandError
}

// NewClient creates a client for the given browser WebSocket URL
// (from [DiscoverBrowserURL]). A non-positive callTimeout falls back
// to [DefaultCallTimeout]. Call Connect before use.
func NewClient(wsURL string, callTimeout time.Duration, logger *slog.Logger) *Client {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:         wsURL,
		pending:     make(map[int64]chan response),
		events:      make(chan Event, 100),
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// Connect establishes the WebSocket connection and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	c.logger.Info("connecting to browser DevTools endpoint", "url", c.url)

	// Full-page HTML snapshots come back on this connection, so the
	// read side needs generous buffers.
	dialer := websocket.Dialer{
		ReadBufferSize:  1024 * 1024,
		WriteBufferSize: 64 * 1024,
	}

	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial devtools: %w", err)
	}
	conn.SetReadLimit(64 * 1024 * 1024)

	c.conn = conn
	go c.readLoop(conn)

	return nil
}

// Close closes the WebSocket connection. In-flight calls fail with a
// read error.
func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// Reconnect closes any existing connection and dials again. Intended
// for a connwatch OnReady callback after the browser comes back.
func (c *Client) Reconnect(ctx context.Context) error {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	return c.Connect(ctx)
}

// Events returns the channel of protocol notifications. Events are
// dropped when nobody drains the channel.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Call sends one command and waits for its response. sessionID may be
// empty for browser-level commands. When result is non-nil the
// response payload is unmarshalled into it.
func (c *Client) Call(ctx context.Context, sessionID, method string, params, result any) error {
	id := c.msgID.Add(1)

	respCh := make(chan response, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	c.logger.Log(ctx, slog.Level(-8), "devtools call", // config.LevelTrace
		"id", id, "method", method, "session", sessionID)

	c.connMu.Lock()
	conn := c.conn
	var err error
	if conn == nil {
		err = fmt.Errorf("not connected")
	} else {
		err = conn.WriteJSON(command{ID: id, Method: method, Params: params, SessionID: sessionID})
	}
	c.connMu.Unlock()
	if err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case resp := <-respCh:
		if resp.Err != nil {
			return fmt.Errorf("%s: %w", method, resp.Err)
		}
		if result != nil {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("unmarshal %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.callTimeout):
		return fmt.Errorf("%s: timeout waiting for response", method)
	}
}

// readLoop continuously reads protocol frames until the connection dies.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("devtools connection closed")
				return
			}
			c.logger.Error("devtools read error, connection lost", "error", err)
			// Reconnection is the connwatch OnReady callback's job.
			return
		}

		if msg.ID != 0 {
			c.pendingMu.Lock()
			if ch, ok := c.pending[msg.ID]; ok {
				ch <- response{Result: msg.Result, Err: msg.Error}
			}
			c.pendingMu.Unlock()
			continue
		}

		if msg.Method != "" {
			select {
			case c.events <- Event{Method: msg.Method, SessionID: msg.SessionID, Params: msg.Params}:
			default:
				c.logger.Debug("event channel full, dropping event", "method", msg.Method)
			}
		}
	}
}
