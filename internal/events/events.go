// Package events defines the domain events that propagate inbox state changes
// between independent subscribers, and the in-process bus that delivers them.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/atendo/inboxsync/pkg/models"
)

// Type tags each event variant. The bus dispatches on this tag.
type Type string

const (
	TypeMessageSent          Type = "MessageSent"
	TypeMessageReceived      Type = "MessageReceived"
	TypeConversationAssigned Type = "ConversationAssigned"
	TypeConversationRead     Type = "ConversationRead"
)

// Event is an immutable record of something that happened to a conversation.
// Events are fire-and-forget and never persisted.
type Event interface {
	Name() Type
	EventID() string
	OccurredAt() time.Time
}

type base struct {
	id       string
	occurred time.Time
}

func newBase() base {
	return base{id: uuid.NewString(), occurred: time.Now()}
}

func (b base) EventID() string       { return b.id }
func (b base) OccurredAt() time.Time { return b.occurred }

// MessageSent fires after the current user's message was accepted by the
// backend. Message is the server-confirmed copy.
type MessageSent struct {
	base
	ConversationID string
	Message        models.Message
}

func NewMessageSent(conversationID string, msg models.Message) MessageSent {
	return MessageSent{base: newBase(), ConversationID: conversationID, Message: msg}
}

func (MessageSent) Name() Type { return TypeMessageSent }

// MessageReceived fires when the push channel delivers a customer message.
type MessageReceived struct {
	base
	ConversationID string
	Message        models.Message
}

func NewMessageReceived(conversationID string, msg models.Message) MessageReceived {
	return MessageReceived{base: newBase(), ConversationID: conversationID, Message: msg}
}

func (MessageReceived) Name() Type { return TypeMessageReceived }

// ConversationAssigned fires after an assignment change was confirmed.
// UserID and UserName are nil together when the conversation was released.
// The payload is authoritative; subscribers patch local rows without
// re-fetching.
type ConversationAssigned struct {
	base
	ConversationID string
	UserID         *string
	UserName       *string
}

func NewConversationAssigned(conversationID string, userID, userName *string) ConversationAssigned {
	return ConversationAssigned{base: newBase(), ConversationID: conversationID, UserID: userID, UserName: userName}
}

func (ConversationAssigned) Name() Type { return TypeConversationAssigned }

// ConversationRead fires after a conversation's unread counter was cleared.
type ConversationRead struct {
	base
	ConversationID string
}

func NewConversationRead(conversationID string) ConversationRead {
	return ConversationRead{base: newBase(), ConversationID: conversationID}
}

func (ConversationRead) Name() Type { return TypeConversationRead }
