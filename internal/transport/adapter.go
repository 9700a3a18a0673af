// Package transport owns the persistent push-channel connection to the
// backend: one websocket, a bounded-backoff reconnection state machine, and a
// multi-subscriber hook for inbound frames. It carries no business logic;
// frames are handed to handlers as-is.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atendo/inboxsync/internal/backoff"
)

const (
	defaultMaxReconnectAttempts = 5
	handshakeTimeout            = 10 * time.Second
	closeWriteWait              = 5 * time.Second
)

// Frame is one parsed inbound push payload. ConversationID and Text are
// required; the adapter drops frames without them. Timestamp, when present,
// is the backend's ISO 8601 string, left raw for the caller to format.
type Frame struct {
	ConversationID string `json:"conversationId"`
	ID             string `json:"id"`
	Text           string `json:"text"`
	Timestamp      string `json:"timestamp"`
	Sender         string `json:"sender"`
	AttendantName  string `json:"attendantName"`
}

// Handler consumes one well-formed inbound frame.
type Handler func(Frame)

// conn is the subset of *websocket.Conn the adapter uses, extracted so the
// state machine is testable without a network.
type conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Config configures an Adapter.
type Config struct {
	URL string
	// Backoff is the reconnect delay schedule. Zero value uses
	// backoff.DefaultPolicy (1s base, 5s ceiling).
	Backoff backoff.Policy
	// MaxReconnectAttempts bounds consecutive failed reconnects before the
	// adapter parks in StateError. Zero means the default of 5.
	MaxReconnectAttempts int
	Logger               *slog.Logger
}

// Adapter maintains the push-channel connection. All exported methods are
// safe for concurrent use. Registered handlers survive disconnects and
// reconnects; subscriptions outlive transient network failures.
type Adapter struct {
	cfg    Config
	logger *slog.Logger

	// dial and afterFunc are replaceable in tests.
	dial      func(ctx context.Context, url string) (conn, error)
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu             sync.Mutex
	state          State
	conn           conn
	gen            uint64
	attempt        int
	shouldRecon    bool
	reconnectTimer *time.Timer

	writeMu sync.Mutex

	handlerMu sync.RWMutex
	handlers  map[int]Handler
	nextID    int

	// OnStateChange and OnFrameDropped are optional observability hooks.
	OnStateChange  func(State)
	OnFrameDropped func()
	// OnReconnectAttempt fires when a reconnect timer is armed.
	OnReconnectAttempt func()
}

// NewAdapter builds an Adapter in StateDisconnected. Connect must be called
// to open the channel.
func NewAdapter(cfg Config) *Adapter {
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if cfg.Backoff == (backoff.Policy{}) {
		cfg.Backoff = backoff.DefaultPolicy()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		cfg:       cfg,
		logger:    logger,
		dial:      gorillaDial,
		afterFunc: time.AfterFunc,
		handlers:  make(map[int]Handler),
	}
}

func gorillaDial(ctx context.Context, url string) (conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	c, _, err := dialer.DialContext(ctx, url, nil) //nolint:bodyclose // gorilla owns the response body
	if err != nil {
		return nil, err
	}
	return c, nil
}

// State returns the current connection state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// AddHandler registers a callback invoked once per well-formed inbound frame
// and returns an idempotent unsubscribe function. Handlers are never cleared
// by Disconnect.
func (a *Adapter) AddHandler(h Handler) func() {
	a.handlerMu.Lock()
	id := a.nextID
	a.nextID++
	a.handlers[id] = h
	a.handlerMu.Unlock()

	return func() {
		a.handlerMu.Lock()
		delete(a.handlers, id)
		a.handlerMu.Unlock()
	}
}

// Connect opens the push channel. It is idempotent: a no-op while already
// connecting or connected. From StateError or StateReconnecting it starts a
// fresh cycle with a reset attempt budget.
func (a *Adapter) Connect() {
	a.mu.Lock()
	if a.state == StateConnecting || a.state == StateConnected {
		a.mu.Unlock()
		return
	}
	a.gen++
	gen := a.gen
	a.shouldRecon = true
	a.attempt = 0
	a.cancelTimerLocked()
	a.setStateLocked(StateConnecting)
	a.mu.Unlock()

	go a.dialAndRun(gen)
}

// Disconnect closes the channel with a normal close code, cancels any pending
// reconnect, and suppresses automatic reconnection until the next Connect.
// Registered handlers stay in place.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	a.gen++
	a.shouldRecon = false
	a.cancelTimerLocked()
	c := a.conn
	a.conn = nil
	a.setStateLocked(StateDisconnected)
	a.mu.Unlock()

	if c != nil {
		deadline := time.Now().Add(closeWriteWait)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
		if err := c.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			a.logger.Debug("close handshake failed", "error", err)
		}
		_ = c.Close()
	}
}

// Send serializes payload as JSON and writes it to the channel. Delivery is
// fire-and-forget: sends while not connected are silently dropped, matching
// the push channel's no-queue contract.
func (a *Adapter) Send(payload any) {
	a.mu.Lock()
	c := a.conn
	connected := a.state == StateConnected
	a.mu.Unlock()

	if !connected || c == nil {
		a.logger.Debug("send dropped, channel not connected")
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		a.logger.Warn("send dropped, payload not serializable", "error", err)
		return
	}

	a.writeMu.Lock()
	err = c.WriteMessage(websocket.TextMessage, data)
	a.writeMu.Unlock()
	if err != nil {
		a.logger.Debug("send failed", "error", err)
	}
}

// dialAndRun performs one connection attempt for the given generation and, on
// success, runs the read loop until the connection drops.
func (a *Adapter) dialAndRun(gen uint64) {
	c, err := a.dial(context.Background(), a.cfg.URL)

	a.mu.Lock()
	if a.gen != gen {
		// Superseded by a later Connect or Disconnect.
		a.mu.Unlock()
		if c != nil {
			_ = c.Close()
		}
		return
	}
	if err != nil {
		a.logger.Warn("push channel dial failed", "url", a.cfg.URL, "error", err)
		a.connectionLostLocked()
		a.mu.Unlock()
		return
	}
	a.conn = c
	a.attempt = 0
	a.setStateLocked(StateConnected)
	a.mu.Unlock()

	a.logger.Info("push channel connected", "url", a.cfg.URL)
	a.readLoop(gen, c)
}

func (a *Adapter) readLoop(gen uint64, c conn) {
	for {
		messageType, data, err := c.ReadMessage()
		if err != nil {
			a.mu.Lock()
			if a.gen != gen {
				// Intentional close; Disconnect already settled the state.
				a.mu.Unlock()
				return
			}
			a.conn = nil
			a.logger.Warn("push channel closed", "error", err)
			a.connectionLostLocked()
			a.mu.Unlock()
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		a.dispatch(data)
	}
}

// connectionLostLocked handles an abnormal loss of connection: schedule the
// next attempt, or park in StateError once the budget is spent. Callers hold
// a.mu.
func (a *Adapter) connectionLostLocked() {
	if !a.shouldRecon {
		a.setStateLocked(StateDisconnected)
		return
	}
	if a.attempt >= a.cfg.MaxReconnectAttempts {
		a.logger.Error("push channel gave up reconnecting", "attempts", a.attempt)
		a.setStateLocked(StateError)
		return
	}

	delay := a.cfg.Backoff.Delay(a.attempt)
	a.attempt++
	a.setStateLocked(StateReconnecting)
	if a.OnReconnectAttempt != nil {
		a.OnReconnectAttempt()
	}
	a.logger.Info("push channel reconnect scheduled", "attempt", a.attempt, "delay", delay)

	gen := a.gen
	a.cancelTimerLocked()
	a.reconnectTimer = a.afterFunc(delay, func() {
		a.mu.Lock()
		if a.gen != gen || a.state != StateReconnecting {
			a.mu.Unlock()
			return
		}
		a.setStateLocked(StateConnecting)
		a.mu.Unlock()
		go a.dialAndRun(gen)
	})
}

func (a *Adapter) cancelTimerLocked() {
	if a.reconnectTimer != nil {
		a.reconnectTimer.Stop()
		a.reconnectTimer = nil
	}
}

func (a *Adapter) setStateLocked(s State) {
	if a.state == s {
		return
	}
	a.state = s
	if a.OnStateChange != nil {
		a.OnStateChange(s)
	}
}

// dispatch parses one inbound frame and fans it out to every registered
// handler. Malformed frames are dropped with a warning; a panicking handler
// is isolated from its siblings.
func (a *Adapter) dispatch(data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		a.logger.Warn("dropping unparseable frame", "error", err)
		a.frameDropped()
		return
	}
	if frame.Text == "" || frame.ConversationID == "" {
		a.logger.Warn("dropping frame with missing fields",
			"conversationId", frame.ConversationID, "hasText", frame.Text != "")
		a.frameDropped()
		return
	}

	a.handlerMu.RLock()
	snapshot := make([]Handler, 0, len(a.handlers))
	for _, h := range a.handlers {
		snapshot = append(snapshot, h)
	}
	a.handlerMu.RUnlock()

	for _, h := range snapshot {
		func() {
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error("frame handler panicked", "panic", fmt.Sprint(r))
				}
			}()
			h(frame)
		}()
	}
}

func (a *Adapter) frameDropped() {
	if a.OnFrameDropped != nil {
		a.OnFrameDropped()
	}
}
