package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/atendo/inboxsync/internal/events"
	"github.com/atendo/inboxsync/internal/inbox"
	"github.com/atendo/inboxsync/pkg/models"
)

// ErrNoConversation rejects thread operations before a conversation is open.
var ErrNoConversation = errors.New("sync: no conversation selected")

// ErrSendInFlight rejects a send while a previous one has not settled.
var ErrSendInFlight = errors.New("sync: a send is already in flight")

// Thread is the message-thread synchronization core for the currently open
// conversation. A late-arriving load for a previously selected conversation
// never clobbers the current one: each load carries a generation token checked
// before its result is committed.
//
// Appends are not de-duplicated by message id; each push event is assumed to
// fire once per message.
type Thread struct {
	svc    *inbox.Service
	logger *slog.Logger

	mu           sync.Mutex
	conversation *models.Conversation
	messages     []models.Message
	gen          uint64
	loading      bool
	sending      bool
	err          error

	unsubscribe []func()
}

// NewThread builds the store and attaches its event reactions to bus. Call
// Close to detach them.
func NewThread(svc *inbox.Service, bus *events.Bus, logger *slog.Logger) *Thread {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Thread{svc: svc, logger: logger}

	t.unsubscribe = append(t.unsubscribe,
		bus.Subscribe(events.TypeMessageSent, t.onMessage),
		bus.Subscribe(events.TypeMessageReceived, t.onMessage),
	)
	return t
}

// Close detaches the store from the event bus.
func (t *Thread) Close() {
	for _, u := range t.unsubscribe {
		u()
	}
}

// Open selects conv as the current conversation and loads its history. Any
// in-flight load for a previous selection becomes stale immediately.
func (t *Thread) Open(ctx context.Context, conv models.Conversation) error {
	t.mu.Lock()
	t.gen++
	gen := t.gen
	c := conv
	t.conversation = &c
	t.messages = nil
	t.loading = true
	t.mu.Unlock()

	messages, err := t.svc.Messages(ctx, conv.ID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen {
		// A newer selection won; drop this result.
		return nil
	}
	t.loading = false
	t.err = err
	if err != nil {
		return err
	}
	t.messages = messages
	return nil
}

// Reload re-fetches the current conversation's history.
func (t *Thread) Reload(ctx context.Context) error {
	t.mu.Lock()
	if t.conversation == nil {
		t.mu.Unlock()
		return ErrNoConversation
	}
	conv := *t.conversation
	t.mu.Unlock()
	return t.Open(ctx, conv)
}

// Send posts text to the current conversation. The in-flight flag is cleared
// on every path out. Authorization (current user must be the assignee) is
// enforced by the service before any network call.
func (t *Thread) Send(ctx context.Context, text string) (models.Message, error) {
	t.mu.Lock()
	if t.conversation == nil {
		t.mu.Unlock()
		return models.Message{}, ErrNoConversation
	}
	if t.sending {
		t.mu.Unlock()
		return models.Message{}, ErrSendInFlight
	}
	t.sending = true
	conv := *t.conversation
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.sending = false
		t.mu.Unlock()
	}()

	return t.svc.SendMessage(ctx, conv, text)
}

// SetAssignment updates the local copy of the open conversation's assignee,
// keeping the send guard in line with list-side assignment changes.
func (t *Thread) SetAssignment(conversationID string, userID, userName *string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conversation == nil || t.conversation.ID != conversationID {
		return
	}
	t.conversation.AssignedToUserID = userID
	t.conversation.AssignedToUserName = userName
}

// Messages returns a copy of the current thread, oldest first.
func (t *Thread) Messages() []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.Message(nil), t.messages...)
}

// Conversation returns a copy of the current selection, or nil.
func (t *Thread) Conversation() *models.Conversation {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conversation == nil {
		return nil
	}
	c := *t.conversation
	return &c
}

// Loading reports whether a history load is in flight.
func (t *Thread) Loading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loading
}

// Sending reports whether a send is in flight.
func (t *Thread) Sending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sending
}

// Err returns the outcome of the most recent completed load.
func (t *Thread) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// onMessage appends the event's message when it belongs to the open
// conversation. Other conversations' traffic is ignored here; the list core
// reacts to it instead.
func (t *Thread) onMessage(_ context.Context, ev events.Event) error {
	var conversationID string
	var msg models.Message
	switch e := ev.(type) {
	case events.MessageSent:
		conversationID, msg = e.ConversationID, e.Message
	case events.MessageReceived:
		conversationID, msg = e.ConversationID, e.Message
	default:
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conversation == nil || t.conversation.ID != conversationID {
		return nil
	}
	t.messages = append(t.messages, msg)
	return nil
}
