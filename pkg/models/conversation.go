package models

import "time"

// ConversationStatus is the lifecycle state of a conversation as shown to agents.
type ConversationStatus string

const (
	StatusActive   ConversationStatus = "ACTIVE"
	StatusPending  ConversationStatus = "PENDING"
	StatusResolved ConversationStatus = "RESOLVED"
)

// Conversation is the agent-facing view of a chat with one customer.
// Display fields (CustomerName, LastMessage, Time, Unread) are denormalized
// from several backend resources by the gateway.
type Conversation struct {
	ID         string
	CompanyID  string
	CustomerID string

	CustomerName  string
	CustomerPhone string
	LastMessage   string
	// Time is a precomputed relative-time label ("15:04", "Yesterday", ...).
	Time   string
	Unread int

	// AssignedToUserID and AssignedToUserName are either both set or both nil.
	AssignedToUserID   *string
	AssignedToUserName *string

	Status    ConversationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Assigned reports whether the conversation has an attendant attached.
func (c *Conversation) Assigned() bool {
	return c.AssignedToUserID != nil
}

// AssignedTo reports whether the conversation is attached to the given user.
func (c *Conversation) AssignedTo(userID string) bool {
	return c.AssignedToUserID != nil && *c.AssignedToUserID == userID
}
