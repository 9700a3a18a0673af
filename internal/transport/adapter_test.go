package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atendo/inboxsync/internal/backoff"
)

type readResult struct {
	messageType int
	data        []byte
	err         error
}

// fakeConn feeds scripted reads to the adapter and records writes.
type fakeConn struct {
	reads chan readResult

	mu       sync.Mutex
	writes   [][]byte
	controls []int
	closed   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{reads: make(chan readResult, 16)}
}

func (c *fakeConn) deliver(data string) {
	c.reads <- readResult{messageType: websocket.TextMessage, data: []byte(data)}
}

func (c *fakeConn) fail(err error) {
	c.reads <- readResult{err: err}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	r := <-c.reads
	return r.messageType, r.data, r.err
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) WriteControl(messageType int, _ []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controls = append(c.controls, messageType)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		select {
		case c.reads <- readResult{err: errors.New("connection closed")}:
		default:
		}
	}
	return nil
}

func (c *fakeConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func (c *fakeConn) sentClose() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, mt := range c.controls {
		if mt == websocket.CloseMessage {
			return true
		}
	}
	return false
}

// dialScript controls the outcome of each dial attempt in order. Attempts
// past the end of errs succeed.
type dialScript struct {
	mu    sync.Mutex
	errs  []error
	conns []*fakeConn
	calls int
	gate  chan struct{}
}

func (d *dialScript) dial(context.Context, string) (conn, error) {
	d.mu.Lock()
	i := d.calls
	d.calls++
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if i < len(d.errs) && d.errs[i] != nil {
		return nil, d.errs[i]
	}

	c := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *dialScript) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *dialScript) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

// timerRecorder captures scheduled reconnects instead of waiting them out.
type timerRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	fns    []func()
}

func (r *timerRecorder) afterFunc(d time.Duration, f func()) *time.Timer {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	r.fns = append(r.fns, f)
	return time.NewTimer(time.Hour)
}

func (r *timerRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fns)
}

func (r *timerRecorder) fire(i int) {
	r.mu.Lock()
	f := r.fns[i]
	r.mu.Unlock()
	f()
}

func (r *timerRecorder) delaySnapshot() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAdapter(script *dialScript, rec *timerRecorder) *Adapter {
	a := NewAdapter(Config{URL: "ws://backend/push", Logger: discardLogger()})
	a.dial = script.dial
	if rec != nil {
		a.afterFunc = rec.afterFunc
	}
	return a
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func waitState(t *testing.T, a *Adapter, want State) {
	t.Helper()
	waitFor(t, func() bool { return a.State() == want }, "state never reached "+want.String())
}

func TestConnectIsIdempotent(t *testing.T) {
	script := &dialScript{gate: make(chan struct{})}
	a := newTestAdapter(script, &timerRecorder{})

	a.Connect()
	waitState(t, a, StateConnecting)
	a.Connect()
	a.Connect()
	close(script.gate)
	waitState(t, a, StateConnected)

	if got := script.dialCount(); got != 1 {
		t.Errorf("dial attempts = %d, want 1", got)
	}

	a.Connect()
	time.Sleep(20 * time.Millisecond)
	if got := script.dialCount(); got != 1 {
		t.Errorf("dial attempts after connected no-op = %d, want 1", got)
	}
}

func TestReconnectBackoffThenError(t *testing.T) {
	script := &dialScript{errs: []error{
		errors.New("refused"), errors.New("refused"), errors.New("refused"),
		errors.New("refused"), errors.New("refused"), errors.New("refused"),
	}}
	rec := &timerRecorder{}
	a := newTestAdapter(script, rec)
	a.cfg.Backoff = backoff.Policy{Base: time.Second, Max: 5 * time.Second}

	var reconnects int
	var reconnectMu sync.Mutex
	a.OnReconnectAttempt = func() {
		reconnectMu.Lock()
		reconnects++
		reconnectMu.Unlock()
	}

	a.Connect()
	for i := 0; i < defaultMaxReconnectAttempts; i++ {
		idx := i
		waitFor(t, func() bool { return rec.count() > idx }, "reconnect timer never armed")
		rec.fire(idx)
	}
	waitState(t, a, StateError)

	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second,
	}
	got := rec.delaySnapshot()
	if len(got) != len(want) {
		t.Fatalf("scheduled delays = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	reconnectMu.Lock()
	defer reconnectMu.Unlock()
	if reconnects != defaultMaxReconnectAttempts {
		t.Errorf("reconnect attempts observed = %d, want %d", reconnects, defaultMaxReconnectAttempts)
	}
}

func TestConnectFromErrorStartsFreshCycle(t *testing.T) {
	script := &dialScript{errs: []error{
		errors.New("refused"), errors.New("refused"), errors.New("refused"),
		errors.New("refused"), errors.New("refused"), errors.New("refused"),
	}}
	rec := &timerRecorder{}
	a := newTestAdapter(script, rec)

	a.Connect()
	for i := 0; i < defaultMaxReconnectAttempts; i++ {
		idx := i
		waitFor(t, func() bool { return rec.count() > idx }, "reconnect timer never armed")
		rec.fire(idx)
	}
	waitState(t, a, StateError)

	a.Connect()
	waitState(t, a, StateConnected)
}

func TestDisconnectSuppressesReconnect(t *testing.T) {
	script := &dialScript{errs: []error{errors.New("refused")}}
	rec := &timerRecorder{}
	a := newTestAdapter(script, rec)

	a.Connect()
	waitFor(t, func() bool { return rec.count() == 1 }, "reconnect timer never armed")
	waitState(t, a, StateReconnecting)

	a.Disconnect()
	if got := a.State(); got != StateDisconnected {
		t.Fatalf("state after Disconnect = %v", got)
	}

	// A stale timer firing after Disconnect must not dial.
	before := script.dialCount()
	rec.fire(0)
	time.Sleep(20 * time.Millisecond)
	if got := script.dialCount(); got != before {
		t.Errorf("stale timer dialed: attempts %d -> %d", before, got)
	}
	if got := a.State(); got != StateDisconnected {
		t.Errorf("state after stale timer = %v", got)
	}
}

func TestDisconnectSendsNormalClose(t *testing.T) {
	script := &dialScript{}
	a := newTestAdapter(script, &timerRecorder{})

	a.Connect()
	waitState(t, a, StateConnected)
	c := script.conn(0)

	a.Disconnect()
	if !c.sentClose() {
		t.Error("no close frame written on Disconnect")
	}
	waitFor(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.closed
	}, "connection never closed")

	// The dropped connection must not trigger a reconnect.
	time.Sleep(20 * time.Millisecond)
	if got := a.State(); got != StateDisconnected {
		t.Errorf("state = %v, want DISCONNECTED", got)
	}
	if got := script.dialCount(); got != 1 {
		t.Errorf("dial attempts = %d, want 1", got)
	}
}

func TestHandlersSurviveReconnect(t *testing.T) {
	script := &dialScript{}
	rec := &timerRecorder{}
	a := newTestAdapter(script, rec)

	frames := make(chan Frame, 4)
	a.AddHandler(func(f Frame) { frames <- f })

	a.Connect()
	waitState(t, a, StateConnected)
	script.conn(0).deliver(`{"conversationId":"c1","text":"first"}`)

	select {
	case f := <-frames:
		if f.ConversationID != "c1" || f.Text != "first" {
			t.Fatalf("frame = %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame never dispatched")
	}

	// Abnormal drop, then reconnect through the scheduled timer.
	script.conn(0).fail(&websocket.CloseError{Code: websocket.CloseAbnormalClosure})
	waitFor(t, func() bool { return rec.count() == 1 }, "reconnect timer never armed")
	rec.fire(0)
	waitState(t, a, StateConnected)

	script.conn(1).deliver(`{"conversationId":"c1","text":"second"}`)
	select {
	case f := <-frames:
		if f.Text != "second" {
			t.Fatalf("frame after reconnect = %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler lost across reconnect")
	}
}

func TestDispatchDropsMalformedFrames(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: `{{{`},
		{name: "missing text", payload: `{"conversationId":"c1"}`},
		{name: "missing conversation", payload: `{"text":"hello"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := &dialScript{}
			a := newTestAdapter(script, &timerRecorder{})

			var handled, dropped int
			var mu sync.Mutex
			a.AddHandler(func(Frame) {
				mu.Lock()
				handled++
				mu.Unlock()
			})
			a.OnFrameDropped = func() {
				mu.Lock()
				dropped++
				mu.Unlock()
			}

			a.Connect()
			waitState(t, a, StateConnected)
			script.conn(0).deliver(tt.payload)

			waitFor(t, func() bool {
				mu.Lock()
				defer mu.Unlock()
				return dropped == 1
			}, "drop never observed")
			mu.Lock()
			defer mu.Unlock()
			if handled != 0 {
				t.Errorf("handler ran %d times on a dropped frame", handled)
			}
		})
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	script := &dialScript{}
	a := newTestAdapter(script, &timerRecorder{})

	frames := make(chan Frame, 4)
	unsubscribe := a.AddHandler(func(f Frame) { frames <- f })

	a.Connect()
	waitState(t, a, StateConnected)

	unsubscribe()
	unsubscribe()
	script.conn(0).deliver(`{"conversationId":"c1","text":"hi"}`)
	time.Sleep(20 * time.Millisecond)

	select {
	case f := <-frames:
		t.Fatalf("unsubscribed handler received %+v", f)
	default:
	}
}

func TestSendDropsWhenNotConnected(t *testing.T) {
	script := &dialScript{}
	a := newTestAdapter(script, &timerRecorder{})

	a.Send(map[string]string{"text": "early"})

	a.Connect()
	waitState(t, a, StateConnected)
	a.Send(map[string]string{"text": "hello"})

	c := script.conn(0)
	waitFor(t, func() bool { return c.writeCount() == 1 }, "send never reached the connection")

	a.Disconnect()
	a.Send(map[string]string{"text": "late"})
	time.Sleep(20 * time.Millisecond)
	if got := c.writeCount(); got != 1 {
		t.Errorf("writes = %d, want 1", got)
	}
}

func TestAdapterAgainstLiveServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	closeCodes := make(chan int, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_ = c.WriteJSON(map[string]string{"conversationId": "c1", "text": "hello"})
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				var ce *websocket.CloseError
				if errors.As(err, &ce) {
					closeCodes <- ce.Code
				}
				return
			}
		}
	}))
	defer srv.Close()

	a := NewAdapter(Config{
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		Logger: discardLogger(),
	})
	frames := make(chan Frame, 1)
	a.AddHandler(func(f Frame) { frames <- f })

	a.Connect()
	select {
	case f := <-frames:
		if f.ConversationID != "c1" || f.Text != "hello" {
			t.Fatalf("frame = %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame from live server")
	}

	a.Disconnect()
	select {
	case code := <-closeCodes:
		if code != websocket.CloseNormalClosure {
			t.Errorf("close code = %d, want %d", code, websocket.CloseNormalClosure)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the close handshake")
	}
}
