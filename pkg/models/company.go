package models

import "time"

// Company holds the tenant settings the sync engine cares about.
type Company struct {
	ID    string
	Name  string
	Email string
	Phone string
	// AttendantSeesAllConversations disables the attendant visibility
	// restriction when true.
	AttendantSeesAllConversations bool
	IsActive                      bool
	CreatedAt                     time.Time
}

// Contact is the customer on the far side of a conversation.
type Contact struct {
	ID          string
	CompanyID   string
	Name        string
	PhoneNumber string
}
