package api

// Wire shapes as the backend serves them. Field names follow the backend's
// snake_case contract; translation to domain entities happens in mappers.go
// and internal/gateway.

// ChatDTO is the backend's conversation record.
type ChatDTO struct {
	ID             string  `json:"id"`
	CompanyID      string  `json:"company_id"`
	ContactID      string  `json:"contact_id"`
	AttachedUserID *string `json:"attached_user_id"`
	Status         string  `json:"status"`
	CreatedAt      string  `json:"created_at"`
	// UpdatedAt is nullable; absent means the chat was never touched after
	// creation and callers fall back to CreatedAt.
	UpdatedAt *string `json:"updated_at"`
}

// ContactDTO is the backend's customer record.
type ContactDTO struct {
	ID          string `json:"id"`
	CompanyID   string `json:"company_id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

// UserDTO is the backend's support-user record.
type UserDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CompanyID string `json:"company_id"`
	Type      string `json:"type"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

// MessageDTO is the backend's message record. SentByUserID null means the
// customer authored the message.
type MessageDTO struct {
	ID                string  `json:"id"`
	Text              string  `json:"text"`
	SentByUserID      *string `json:"sent_by_user_id"`
	ExternalTimestamp string  `json:"external_timestamp"`
	Read              bool    `json:"read"`
}

// CompanyDTO is the backend's tenant record.
type CompanyDTO struct {
	ID                            string  `json:"id"`
	Name                          string  `json:"name"`
	Email                         string  `json:"email"`
	Phone                         string  `json:"phone"`
	WhatsappAPIKey                *string `json:"whatsapp_api_key"`
	IsActive                      bool    `json:"is_active"`
	AttendantSeesAllConversations bool    `json:"attendant_sees_all_conversations"`
	CreatedAt                     string  `json:"created_at"`
	UpdatedAt                     *string `json:"updated_at"`
}

// ChatPage wraps list endpoints that return {"results": [...]}.
type ChatPage struct {
	Results []ChatDTO `json:"results"`
}

// MessagePage wraps message list responses.
type MessagePage struct {
	Results []MessageDTO `json:"results"`
}
