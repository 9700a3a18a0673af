package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/atendo/inboxsync/pkg/models"
)

func TestPublishNoSubscribers(t *testing.T) {
	bus := NewBus(nil)
	err := bus.Publish(context.Background(), NewConversationRead("c1"))
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
}

func TestPublishFansOutToAllHandlers(t *testing.T) {
	bus := NewBus(nil)
	var a, b atomic.Int32

	bus.Subscribe(TypeMessageSent, func(ctx context.Context, ev Event) error {
		a.Add(1)
		return nil
	})
	bus.Subscribe(TypeMessageSent, func(ctx context.Context, ev Event) error {
		b.Add(1)
		return nil
	})

	ev := NewMessageSent("c1", models.Message{ID: "m1", Text: "hi"})
	if err := bus.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if a.Load() != 1 || b.Load() != 1 {
		t.Errorf("handler calls = (%d, %d), want (1, 1)", a.Load(), b.Load())
	}
}

func TestPublishIsolatesFailingHandler(t *testing.T) {
	bus := NewBus(nil)
	var succeeded atomic.Bool

	bus.Subscribe(TypeMessageReceived, func(ctx context.Context, ev Event) error {
		return errors.New("handler A broke")
	})
	bus.Subscribe(TypeMessageReceived, func(ctx context.Context, ev Event) error {
		succeeded.Store(true)
		return nil
	})

	ev := NewMessageReceived("c1", models.Message{ID: "m1"})
	if err := bus.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish() error = %v, failing handler must not surface", err)
	}
	if !succeeded.Load() {
		t.Error("sibling handler did not run after failure")
	}
}

func TestPublishIsolatesPanickingHandler(t *testing.T) {
	bus := NewBus(nil)
	var succeeded atomic.Bool

	bus.Subscribe(TypeConversationRead, func(ctx context.Context, ev Event) error {
		panic("boom")
	})
	bus.Subscribe(TypeConversationRead, func(ctx context.Context, ev Event) error {
		succeeded.Store(true)
		return nil
	})

	if err := bus.Publish(context.Background(), NewConversationRead("c1")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if !succeeded.Load() {
		t.Error("sibling handler did not run after panic")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	bus := NewBus(nil)
	var calls atomic.Int32

	unsubscribe := bus.Subscribe(TypeConversationRead, func(ctx context.Context, ev Event) error {
		calls.Add(1)
		return nil
	})

	unsubscribe()
	unsubscribe() // second call is a no-op

	if err := bus.Publish(context.Background(), NewConversationRead("c1")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("handler ran %d times after unsubscribe", calls.Load())
	}
}

func TestSubscribeDuringPublishDoesNotRace(t *testing.T) {
	bus := NewBus(nil)
	done := make(chan struct{})

	bus.Subscribe(TypeMessageSent, func(ctx context.Context, ev Event) error {
		// Mutating subscriptions while a publish is in flight must be safe.
		unsub := bus.Subscribe(TypeMessageSent, func(ctx context.Context, ev Event) error {
			return nil
		})
		unsub()
		close(done)
		return nil
	})

	ev := NewMessageSent("c1", models.Message{ID: "m1"})
	if err := bus.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	<-done
}

func TestObserveHookFires(t *testing.T) {
	bus := NewBus(nil)
	var seen []Type
	bus.Observe = func(name Type) { seen = append(seen, name) }

	_ = bus.Publish(context.Background(), NewConversationRead("c1"))
	if len(seen) != 1 || seen[0] != TypeConversationRead {
		t.Errorf("observed = %v, want [ConversationRead]", seen)
	}
}

func TestPublishWithCanceledContext(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := bus.Publish(ctx, NewConversationRead("c1")); !errors.Is(err, context.Canceled) {
		t.Errorf("Publish() error = %v, want context.Canceled", err)
	}
}
