package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Handler consumes one event. A returned error is logged by the bus and never
// reaches the publisher or sibling handlers.
type Handler func(ctx context.Context, event Event) error

// Bus is an in-process publish/subscribe dispatcher. Handlers for one event
// type run concurrently; Publish waits for all of them to finish.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type]map[int]Handler
	nextID   int

	logger *slog.Logger
	// Observe, when set, is called once per published event.
	Observe func(Type)
}

// NewBus creates an empty bus. A nil logger falls back to slog.Default().
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[Type]map[int]Handler),
		logger:   logger,
	}
}

// Subscribe registers handler for events of the given type and returns an
// idempotent unsubscribe function. Multiple handlers per type are supported;
// dispatch order between them is unspecified.
func (b *Bus) Subscribe(name Type, handler Handler) func() {
	b.mu.Lock()
	set, ok := b.handlers[name]
	if !ok {
		set = make(map[int]Handler)
		b.handlers[name] = set
	}
	id := b.nextID
	b.nextID++
	set[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.handlers[name]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(b.handlers, name)
			}
		}
	}
}

// Publish delivers event to every handler registered for its type and blocks
// until all have completed. Handler errors and panics are logged and isolated;
// Publish itself only fails when ctx is already done.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.Observe != nil {
		b.Observe(event.Name())
	}

	b.mu.RLock()
	set := b.handlers[event.Name()]
	snapshot := make([]Handler, 0, len(set))
	for _, h := range set {
		snapshot = append(snapshot, h)
	}
	b.mu.RUnlock()

	if len(snapshot) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for _, handler := range snapshot {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked",
						"event", event.Name(), "panic", fmt.Sprint(r))
				}
			}()
			if err := h(ctx, event); err != nil {
				b.logger.Error("event handler failed",
					"event", event.Name(), "error", err)
			}
		}(handler)
	}
	wg.Wait()
	return nil
}
