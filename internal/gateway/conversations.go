// Package gateway normalizes the backend's REST resources into domain
// entities. Building one Conversation view fans out to three resources (chat,
// contact, optionally the attached user) plus the chat's recent messages for
// the preview and unread tally.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/atendo/inboxsync/internal/api"
	"github.com/atendo/inboxsync/internal/datetime"
	"github.com/atendo/inboxsync/pkg/models"
)

// fanOutWorkers bounds concurrent per-chat lookups during list builds.
const fanOutWorkers = 8

// Conversations reads and mutates chats through the backend API and
// assembles the denormalized Conversation view.
//
// Contact and user lookups are cached for the lifetime of the gateway so a
// batch of chats sharing one contact costs a single request. The caches are
// never invalidated; a server-side rename can serve stale until restart.
type Conversations struct {
	client *api.Client
	logger *slog.Logger
	now    func() time.Time

	mu           sync.Mutex
	contactCache map[string]api.ContactDTO
	userCache    map[string]api.UserDTO
}

// NewConversations builds a Conversations gateway. A nil logger falls back to
// slog.Default().
func NewConversations(client *api.Client, logger *slog.Logger) *Conversations {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conversations{
		client:       client,
		logger:       logger,
		now:          time.Now,
		contactCache: make(map[string]api.ContactDTO),
		userCache:    make(map[string]api.UserDTO),
	}
}

// List returns every conversation visible to the company.
func (g *Conversations) List(ctx context.Context, companyID string) ([]models.Conversation, error) {
	return g.listChats(ctx, "chats", url.Values{"company_id": {companyID}})
}

// ListByAttendant returns the attendant-scoped view: conversations assigned
// to the attendant plus unassigned ones. The scoping happens server-side.
func (g *Conversations) ListByAttendant(ctx context.Context, companyID, attendantID string) ([]models.Conversation, error) {
	return g.listChats(ctx, "chats/by-attendant", url.Values{
		"company_id":   {companyID},
		"attendant_id": {attendantID},
	})
}

// ListUnassigned returns conversations with no attendant attached.
func (g *Conversations) ListUnassigned(ctx context.Context, companyID string) ([]models.Conversation, error) {
	return g.listChats(ctx, "chats/unassigned", url.Values{"company_id": {companyID}})
}

// Search returns conversations matching query within the company.
func (g *Conversations) Search(ctx context.Context, companyID, query string) ([]models.Conversation, error) {
	return g.listChats(ctx, "chats/search", url.Values{
		"company_id": {companyID},
		"query":      {query},
	})
}

func (g *Conversations) listChats(ctx context.Context, path string, query url.Values) ([]models.Conversation, error) {
	var page api.ChatPage
	if err := g.client.Get(ctx, path, query, &page); err != nil {
		return nil, fmt.Errorf("gateway: list chats: %w", err)
	}
	return g.buildConversations(ctx, page.Results), nil
}

// Get fetches one conversation. Absence (404 or a company mismatch) returns
// (nil, nil). A chat whose contact cannot be resolved is also absent: a
// conversation with no identifiable customer is not shown.
func (g *Conversations) Get(ctx context.Context, companyID, id string) (*models.Conversation, error) {
	var chat api.ChatDTO
	err := g.client.Get(ctx, "chats/"+id, nil, &chat)
	if errors.Is(err, api.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("gateway: get chat %s: %w", id, err)
	}
	if chat.CompanyID != companyID {
		return nil, nil
	}

	preview := g.fetchPreview(ctx, chat.ID)
	conv, err := g.assemble(ctx, chat, preview)
	if err != nil {
		g.logger.Warn("conversation excluded, contact unresolved", "chat", chat.ID, "error", err)
		return nil, nil
	}
	return conv, nil
}

// Messages returns a conversation's full message history in arrival order.
func (g *Conversations) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var page api.MessagePage
	if err := g.client.Get(ctx, "chats/"+conversationID+"/messages", nil, &page); err != nil {
		return nil, fmt.Errorf("gateway: get messages: %w", err)
	}

	names := make(map[string]string)
	for _, dto := range page.Results {
		if dto.SentByUserID == nil {
			continue
		}
		id := *dto.SentByUserID
		if _, seen := names[id]; seen {
			continue
		}
		if user, err := g.getUser(ctx, id); err == nil {
			names[id] = user.Name
		}
	}

	messages := make([]models.Message, 0, len(page.Results))
	for _, dto := range page.Results {
		messages = append(messages, api.MapMessage(dto, names))
	}
	return messages, nil
}

// SendMessage posts a new attendant message and returns the server-confirmed
// copy.
func (g *Conversations) SendMessage(ctx context.Context, conversationID, text, userID, attendantName string) (models.Message, error) {
	var dto api.MessageDTO
	body := map[string]any{
		"text":            text,
		"sent_by_user_id": userID,
	}
	if err := g.client.Post(ctx, "chats/"+conversationID+"/messages", body, &dto); err != nil {
		return models.Message{}, fmt.Errorf("gateway: send message: %w", err)
	}

	names := map[string]string{}
	if dto.SentByUserID != nil {
		names[*dto.SentByUserID] = attendantName
	}
	return api.MapMessage(dto, names), nil
}

// Assign attaches the conversation to a user, or releases it when userID is
// nil. The provided name seeds the user cache so later enrichment does not
// re-fetch the assignee.
func (g *Conversations) Assign(ctx context.Context, conversationID string, userID, userName *string) error {
	body := map[string]any{"attendant_id": userID}
	if err := g.client.Patch(ctx, "chats/"+conversationID+"/assign", body, nil); err != nil {
		return fmt.Errorf("gateway: assign chat: %w", err)
	}
	if userID != nil && userName != nil {
		g.mu.Lock()
		g.userCache[*userID] = api.UserDTO{ID: *userID, Name: *userName}
		g.mu.Unlock()
	}
	return nil
}

// MarkRead clears the conversation's unread counter on the backend.
func (g *Conversations) MarkRead(ctx context.Context, conversationID string) error {
	if err := g.client.Patch(ctx, "chats/"+conversationID+"/read", map[string]any{}, nil); err != nil {
		return fmt.Errorf("gateway: mark read: %w", err)
	}
	return nil
}

// preview carries the derived display fields computed from a chat's messages.
type preview struct {
	lastMessage string
	unread      int
}

// fetchPreview derives the list-row preview for one chat. Failure degrades to
// an empty preview; it never fails the row.
func (g *Conversations) fetchPreview(ctx context.Context, chatID string) preview {
	var page api.MessagePage
	if err := g.client.Get(ctx, "chats/"+chatID+"/messages", nil, &page); err != nil {
		g.logger.Warn("preview unavailable", "chat", chatID, "error", err)
		return preview{}
	}

	var p preview
	if n := len(page.Results); n > 0 {
		p.lastMessage = page.Results[n-1].Text
	}
	for _, m := range page.Results {
		// Unread counts customer messages only.
		if !m.Read && m.SentByUserID == nil {
			p.unread++
		}
	}
	return p
}

// buildConversations assembles the conversation views for a page of chats.
// Lookups run concurrently with repeated contact/user fetches deduplicated
// through the gateway caches. A chat with an unresolvable contact is dropped;
// any other partial failure degrades that row only.
func (g *Conversations) buildConversations(ctx context.Context, chats []api.ChatDTO) []models.Conversation {
	if len(chats) == 0 {
		return []models.Conversation{}
	}

	g.warmCaches(ctx, chats)

	previews := make([]preview, len(chats))
	var wg sync.WaitGroup
	sem := make(chan struct{}, fanOutWorkers)
	for i, chat := range chats {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, chatID string) {
			defer wg.Done()
			defer func() { <-sem }()
			previews[i] = g.fetchPreview(ctx, chatID)
		}(i, chat.ID)
	}
	wg.Wait()

	conversations := make([]models.Conversation, 0, len(chats))
	for i, chat := range chats {
		conv, err := g.assemble(ctx, chat, previews[i])
		if err != nil {
			g.logger.Warn("conversation excluded, contact unresolved", "chat", chat.ID, "error", err)
			continue
		}
		conversations = append(conversations, *conv)
	}
	return conversations
}

// warmCaches resolves the distinct contacts and users referenced by a page of
// chats in parallel, so assembly hits only warm caches.
func (g *Conversations) warmCaches(ctx context.Context, chats []api.ChatDTO) {
	contactIDs := make(map[string]struct{})
	userIDs := make(map[string]struct{})
	for _, chat := range chats {
		contactIDs[chat.ContactID] = struct{}{}
		if chat.AttachedUserID != nil {
			userIDs[*chat.AttachedUserID] = struct{}{}
		}
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, fanOutWorkers)
	for id := range contactIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			_, _ = g.getContact(ctx, id)
		}(id)
	}
	for id := range userIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			_, _ = g.getUser(ctx, id)
		}(id)
	}
	wg.Wait()
}

// assemble builds the final Conversation. The contact is required; the
// attached user's name is best-effort.
func (g *Conversations) assemble(ctx context.Context, chat api.ChatDTO, p preview) (*models.Conversation, error) {
	contact, err := g.getContact(ctx, chat.ContactID)
	if err != nil {
		return nil, err
	}

	var assignedName *string
	if chat.AttachedUserID != nil {
		if user, err := g.getUser(ctx, *chat.AttachedUserID); err == nil {
			name := user.Name
			assignedName = &name
		} else {
			empty := ""
			assignedName = &empty
		}
	}

	createdAt := api.ParseTime(chat.CreatedAt)
	updatedAt := createdAt
	if chat.UpdatedAt != nil {
		updatedAt = api.ParseTime(*chat.UpdatedAt)
	}

	return &models.Conversation{
		ID:                 chat.ID,
		CompanyID:          chat.CompanyID,
		CustomerID:         chat.ContactID,
		CustomerName:       contact.Name,
		CustomerPhone:      contact.PhoneNumber,
		LastMessage:        p.lastMessage,
		Time:               datetime.ConversationLabel(createdAt, g.now()),
		Unread:             p.unread,
		AssignedToUserID:   chat.AttachedUserID,
		AssignedToUserName: assignedName,
		Status:             api.MapStatus(chat.Status),
		CreatedAt:          createdAt,
		UpdatedAt:          updatedAt,
	}, nil
}

func (g *Conversations) getContact(ctx context.Context, contactID string) (api.ContactDTO, error) {
	g.mu.Lock()
	if cached, ok := g.contactCache[contactID]; ok {
		g.mu.Unlock()
		return cached, nil
	}
	g.mu.Unlock()

	var contact api.ContactDTO
	if err := g.client.Get(ctx, "contacts/"+contactID, nil, &contact); err != nil {
		return api.ContactDTO{}, err
	}

	g.mu.Lock()
	g.contactCache[contactID] = contact
	g.mu.Unlock()
	return contact, nil
}

func (g *Conversations) getUser(ctx context.Context, userID string) (api.UserDTO, error) {
	g.mu.Lock()
	if cached, ok := g.userCache[userID]; ok {
		g.mu.Unlock()
		return cached, nil
	}
	g.mu.Unlock()

	var user api.UserDTO
	if err := g.client.Get(ctx, "users/"+userID, nil, &user); err != nil {
		return api.UserDTO{}, err
	}

	g.mu.Lock()
	g.userCache[userID] = user
	g.mu.Unlock()
	return user, nil
}
