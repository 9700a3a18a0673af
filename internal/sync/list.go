// Package sync holds the client-side synchronization cores: long-lived stores
// that keep the conversation list and the open message thread consistent with
// the backend by combining explicit loads with push-driven event reactions.
package sync

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/atendo/inboxsync/internal/events"
	"github.com/atendo/inboxsync/internal/inbox"
	"github.com/atendo/inboxsync/pkg/models"
)

// Tab selects which slice of the inbox a list load targets.
type Tab string

const (
	TabAll        Tab = "all"
	TabUnassigned Tab = "unassigned"
	TabPending    Tab = "pending"
	TabResolved   Tab = "resolved"
)

// ErrUnknownTab rejects a load for a tab the store does not know.
var ErrUnknownTab = errors.New("sync: unknown list tab")

// List is the conversation-list synchronization core. Loads replace the whole
// list; push events patch or re-fetch individual rows. All methods are safe
// for concurrent use.
//
// Reconciliation per event type: message events re-fetch the row (lastMessage,
// unread and updatedAt are server-derived), assignment and read events patch
// the row locally (their payloads already carry the whole change).
type List struct {
	svc    *inbox.Service
	logger *slog.Logger

	mu            sync.Mutex
	conversations []models.Conversation
	tab           Tab
	loading       bool
	err           error

	unsubscribe []func()
}

// NewList builds the store and attaches its event reactions to bus. Call
// Close to detach them.
func NewList(svc *inbox.Service, bus *events.Bus, logger *slog.Logger) *List {
	if logger == nil {
		logger = slog.Default()
	}
	l := &List{svc: svc, logger: logger, tab: TabAll}

	l.unsubscribe = append(l.unsubscribe,
		bus.Subscribe(events.TypeMessageSent, l.onMessage),
		bus.Subscribe(events.TypeMessageReceived, l.onMessage),
		bus.Subscribe(events.TypeConversationAssigned, l.onAssigned),
		bus.Subscribe(events.TypeConversationRead, l.onRead),
	)
	return l
}

// Close detaches the store from the event bus.
func (l *List) Close() {
	for _, u := range l.unsubscribe {
		u()
	}
}

// Load replaces the list with the given tab's view. The pending and resolved
// tabs filter the policy-scoped "all" load by domain status client-side; the
// unassigned tab is its own backend query.
func (l *List) Load(ctx context.Context, tab Tab) error {
	l.mu.Lock()
	l.tab = tab
	l.loading = true
	l.mu.Unlock()

	conversations, err := l.fetch(ctx, tab)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.loading = false
	l.err = err
	if err != nil {
		return err
	}
	l.conversations = conversations
	return nil
}

func (l *List) fetch(ctx context.Context, tab Tab) ([]models.Conversation, error) {
	switch tab {
	case TabAll:
		return l.svc.Conversations(ctx)
	case TabUnassigned:
		return l.svc.Unassigned(ctx)
	case TabPending:
		return l.fetchByStatus(ctx, models.StatusPending)
	case TabResolved:
		return l.fetchByStatus(ctx, models.StatusResolved)
	default:
		return nil, ErrUnknownTab
	}
}

func (l *List) fetchByStatus(ctx context.Context, status models.ConversationStatus) ([]models.Conversation, error) {
	all, err := l.svc.Conversations(ctx)
	if err != nil {
		return nil, err
	}
	filtered := make([]models.Conversation, 0, len(all))
	for _, c := range all {
		if c.Status == status {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

// Search replaces the list with company-scoped search results. An empty query
// falls back to reloading the active tab.
func (l *List) Search(ctx context.Context, query string) error {
	if query == "" {
		l.mu.Lock()
		tab := l.tab
		l.mu.Unlock()
		return l.Load(ctx, tab)
	}

	l.mu.Lock()
	l.loading = true
	l.mu.Unlock()

	conversations, err := l.svc.Search(ctx, query)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.loading = false
	l.err = err
	if err != nil {
		return err
	}
	l.conversations = conversations
	return nil
}

// Snapshot returns a copy of the list sorted by UpdatedAt descending. The
// sort happens here, at read time; the stored order is whatever the backend
// returned.
func (l *List) Snapshot() []models.Conversation {
	l.mu.Lock()
	out := append([]models.Conversation(nil), l.conversations...)
	l.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Loading reports whether a load or search is in flight.
func (l *List) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// Err returns the outcome of the most recent load or search.
func (l *List) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// onMessage re-fetches the affected conversation and replaces its row. The
// message changes server-derived fields (preview, unread tally, updatedAt),
// so the local copy cannot be patched from the payload.
func (l *List) onMessage(ctx context.Context, ev events.Event) error {
	var conversationID string
	switch e := ev.(type) {
	case events.MessageSent:
		conversationID = e.ConversationID
	case events.MessageReceived:
		conversationID = e.ConversationID
	default:
		return nil
	}

	conv, err := l.svc.Conversation(ctx, conversationID)
	if err != nil {
		l.logger.Warn("list refresh failed", "conversation", conversationID, "error", err)
		return err
	}
	if conv == nil {
		l.logger.Debug("list refresh skipped, conversation not visible", "conversation", conversationID)
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.conversations {
		if l.conversations[i].ID == conv.ID {
			l.conversations[i] = *conv
			break
		}
	}
	return nil
}

// onAssigned patches the matching row from the event payload, then marks the
// conversation read when the new assignee is the session user. The mark-read
// call is fire-and-forget; its failure is logged, never surfaced.
func (l *List) onAssigned(ctx context.Context, ev events.Event) error {
	e, ok := ev.(events.ConversationAssigned)
	if !ok {
		return nil
	}

	l.mu.Lock()
	for i := range l.conversations {
		if l.conversations[i].ID == e.ConversationID {
			l.conversations[i].AssignedToUserID = e.UserID
			l.conversations[i].AssignedToUserName = e.UserName
			break
		}
	}
	l.mu.Unlock()

	session := l.svc.Session()
	if session != nil && e.UserID != nil && *e.UserID == session.User.ID {
		go func() {
			if err := l.svc.MarkRead(context.WithoutCancel(ctx), e.ConversationID); err != nil {
				l.logger.Warn("mark-read after self-assignment failed",
					"conversation", e.ConversationID, "error", err)
			}
		}()
	}
	return nil
}

// onRead zeroes the unread counter on the matching row.
func (l *List) onRead(_ context.Context, ev events.Event) error {
	e, ok := ev.(events.ConversationRead)
	if !ok {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.conversations {
		if l.conversations[i].ID == e.ConversationID {
			l.conversations[i].Unread = 0
			break
		}
	}
	return nil
}
