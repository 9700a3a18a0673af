// Package observability exports the process's Prometheus metrics: push-channel
// connection health, event-bus throughput, and HTTP gateway retry pressure.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the centralized metric set, registered once at startup.
//
// Usage:
//
//	metrics := observability.NewMetrics(nil)
//	adapter.OnStateChange = func(s transport.State) { metrics.ConnectionStateChanged(s.String()) }
//	bus.Observe = func(t events.Type) { metrics.EventPublished(string(t)) }
type Metrics struct {
	// ConnectionState holds exactly one series at 1, the current push-channel
	// state. Labels: state (DISCONNECTED|CONNECTING|CONNECTED|RECONNECTING|ERROR)
	ConnectionState *prometheus.GaugeVec

	// ReconnectCounter counts scheduled push-channel reconnect attempts.
	ReconnectCounter prometheus.Counter

	// FramesDropped counts inbound push frames discarded as malformed.
	FramesDropped prometheus.Counter

	// EventCounter counts domain events published on the bus.
	// Labels: event (MessageSent|MessageReceived|ConversationAssigned|ConversationRead)
	EventCounter *prometheus.CounterVec

	// HTTPRetryCounter counts retried outbound gateway requests.
	HTTPRetryCounter prometheus.Counter

	mu        sync.Mutex
	lastState string
}

// NewMetrics creates and registers all metrics. A nil registerer means the
// Prometheus default registry; tests pass their own.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "inboxsync_connection_state",
				Help: "Current push-channel connection state (1 on the active state's series)",
			},
			[]string{"state"},
		),

		ReconnectCounter: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "inboxsync_reconnect_attempts_total",
				Help: "Total number of scheduled push-channel reconnect attempts",
			},
		),

		FramesDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "inboxsync_frames_dropped_total",
				Help: "Total number of malformed push frames dropped",
			},
		),

		EventCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inboxsync_events_published_total",
				Help: "Total number of domain events published, by event name",
			},
			[]string{"event"},
		),

		HTTPRetryCounter: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "inboxsync_http_retries_total",
				Help: "Total number of retried outbound HTTP requests",
			},
		),
	}
}

// ConnectionStateChanged moves the connection-state gauge: the previous
// state's series drops to 0 and the new one rises to 1.
func (m *Metrics) ConnectionStateChanged(state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastState != "" {
		m.ConnectionState.WithLabelValues(m.lastState).Set(0)
	}
	m.ConnectionState.WithLabelValues(state).Set(1)
	m.lastState = state
}

// ReconnectScheduled increments the reconnect attempt counter.
func (m *Metrics) ReconnectScheduled() {
	m.ReconnectCounter.Inc()
}

// FrameDropped increments the dropped-frame counter.
func (m *Metrics) FrameDropped() {
	m.FramesDropped.Inc()
}

// EventPublished increments the event counter for one event name.
func (m *Metrics) EventPublished(event string) {
	m.EventCounter.WithLabelValues(event).Inc()
}

// HTTPRetry increments the retried-request counter.
func (m *Metrics) HTTPRetry() {
	m.HTTPRetryCounter.Inc()
}
