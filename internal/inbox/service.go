// Package inbox holds the use-case layer: every conversation operation the
// UI surfaces trigger, with company visibility policy and assignment
// authorization enforced here rather than in the rendering layer.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/atendo/inboxsync/internal/auth"
	"github.com/atendo/inboxsync/internal/events"
	"github.com/atendo/inboxsync/pkg/models"
)

// ErrNotAssigned rejects a send attempt on a conversation the current user is
// not attached to. The rejection happens before any network call.
var ErrNotAssigned = errors.New("inbox: conversation not assigned to current user")

// ConversationGateway is the data gateway surface the use cases consume.
type ConversationGateway interface {
	List(ctx context.Context, companyID string) ([]models.Conversation, error)
	ListByAttendant(ctx context.Context, companyID, attendantID string) ([]models.Conversation, error)
	ListUnassigned(ctx context.Context, companyID string) ([]models.Conversation, error)
	Search(ctx context.Context, companyID, query string) ([]models.Conversation, error)
	Get(ctx context.Context, companyID, id string) (*models.Conversation, error)
	Messages(ctx context.Context, conversationID string) ([]models.Message, error)
	SendMessage(ctx context.Context, conversationID, text, userID, attendantName string) (models.Message, error)
	Assign(ctx context.Context, conversationID string, userID, userName *string) error
	MarkRead(ctx context.Context, conversationID string) error
}

// CompanyGateway resolves tenant settings for the visibility policy.
type CompanyGateway interface {
	Get(ctx context.Context, companyID string) (*models.Company, error)
}

// Service executes inbox operations for one authenticated session and
// publishes the resulting domain events.
type Service struct {
	conversations ConversationGateway
	companies     CompanyGateway
	bus           *events.Bus
	session       *auth.Session
	logger        *slog.Logger
}

// NewService wires the use-case layer.
func NewService(conversations ConversationGateway, companies CompanyGateway, bus *events.Bus, session *auth.Session, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		conversations: conversations,
		companies:     companies,
		bus:           bus,
		session:       session,
		logger:        logger,
	}
}

// Session exposes the acting identity to subscribers that need it (e.g. the
// list store's assigned-to-me reaction).
func (s *Service) Session() *auth.Session { return s.session }

// Bus exposes the event bus the service publishes on, so consumers can attach
// their own subscriptions.
func (s *Service) Bus() *events.Bus { return s.bus }

// Conversations loads the "all" view under the company visibility policy:
// when the company restricts attendants and the session user is one, the
// query is scoped server-side to their own plus unassigned conversations.
func (s *Service) Conversations(ctx context.Context) ([]models.Conversation, error) {
	if s.session == nil {
		return nil, auth.ErrNoSession
	}
	user := s.session.User

	company, err := s.companies.Get(ctx, user.CompanyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, fmt.Errorf("inbox: company %s not found", user.CompanyID)
	}

	if !company.AttendantSeesAllConversations && user.Role == models.RoleAttendant {
		return s.conversations.ListByAttendant(ctx, user.CompanyID, user.ID)
	}
	return s.conversations.List(ctx, user.CompanyID)
}

// Conversation fetches one conversation, applying the same visibility policy
// as Conversations. A conversation hidden from the session user reads as
// absent.
func (s *Service) Conversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	if s.session == nil {
		return nil, auth.ErrNoSession
	}
	user := s.session.User

	conv, err := s.conversations.Get(ctx, user.CompanyID, conversationID)
	if err != nil || conv == nil {
		return nil, err
	}

	company, err := s.companies.Get(ctx, user.CompanyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, fmt.Errorf("inbox: company %s not found", user.CompanyID)
	}

	if !company.AttendantSeesAllConversations &&
		user.Role == models.RoleAttendant &&
		conv.Assigned() && !conv.AssignedTo(user.ID) {
		return nil, nil
	}
	return conv, nil
}

// Unassigned loads conversations waiting for an attendant.
func (s *Service) Unassigned(ctx context.Context) ([]models.Conversation, error) {
	if s.session == nil {
		return nil, auth.ErrNoSession
	}
	return s.conversations.ListUnassigned(ctx, s.session.CompanyID())
}

// Search returns conversations matching query within the session company.
func (s *Service) Search(ctx context.Context, query string) ([]models.Conversation, error) {
	if s.session == nil {
		return nil, auth.ErrNoSession
	}
	return s.conversations.Search(ctx, s.session.CompanyID(), query)
}

// Messages loads a conversation's message history.
func (s *Service) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	return s.conversations.Messages(ctx, conversationID)
}

// SendMessage posts a message authored by the session user and publishes
// MessageSent with the server-confirmed copy. It refuses without a network
// call unless the user is the conversation's current assignee.
func (s *Service) SendMessage(ctx context.Context, conv models.Conversation, text string) (models.Message, error) {
	if s.session == nil {
		return models.Message{}, auth.ErrNoSession
	}
	user := s.session.User
	if !conv.AssignedTo(user.ID) {
		return models.Message{}, ErrNotAssigned
	}

	msg, err := s.conversations.SendMessage(ctx, conv.ID, text, user.ID, user.Name)
	if err != nil {
		return models.Message{}, err
	}
	if err := s.bus.Publish(ctx, events.NewMessageSent(conv.ID, msg)); err != nil {
		s.logger.Warn("publish MessageSent", "conversation", conv.ID, "error", err)
	}
	return msg, nil
}

// ReceiveMessage records a push-delivered customer message by publishing
// MessageReceived. No backend call is involved; the message already exists
// server-side.
func (s *Service) ReceiveMessage(ctx context.Context, conversationID string, msg models.Message) error {
	return s.bus.Publish(ctx, events.NewMessageReceived(conversationID, msg))
}

// Assign attaches the conversation to a user (or releases it when both
// pointers are nil) and publishes ConversationAssigned. ID and name must be
// set or unset together.
func (s *Service) Assign(ctx context.Context, conversationID string, userID, userName *string) error {
	if (userID == nil) != (userName == nil) {
		return errors.New("inbox: assignee id and name must be set together")
	}
	if err := s.conversations.Assign(ctx, conversationID, userID, userName); err != nil {
		return err
	}
	if err := s.bus.Publish(ctx, events.NewConversationAssigned(conversationID, userID, userName)); err != nil {
		s.logger.Warn("publish ConversationAssigned", "conversation", conversationID, "error", err)
	}
	return nil
}

// MarkRead clears the unread counter and publishes ConversationRead.
func (s *Service) MarkRead(ctx context.Context, conversationID string) error {
	if err := s.conversations.MarkRead(ctx, conversationID); err != nil {
		return err
	}
	if err := s.bus.Publish(ctx, events.NewConversationRead(conversationID)); err != nil {
		s.logger.Warn("publish ConversationRead", "conversation", conversationID, "error", err)
	}
	return nil
}
