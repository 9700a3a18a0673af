package api

import (
	"time"

	"github.com/atendo/inboxsync/internal/datetime"
	"github.com/atendo/inboxsync/pkg/models"
)

// timeLayouts covers the timestamp shapes the backend emits: RFC 3339 with
// and without sub-second precision, and naive ISO 8601 without a zone.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseTime parses a backend timestamp. Unparseable input yields the zero
// time rather than an error; lifecycle timestamps are display data here, not
// business keys.
func ParseTime(value string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

// MapStatus translates a backend chat status to the domain status. Unknown
// statuses map to PENDING so new backend states degrade to "needs attention"
// instead of disappearing.
func MapStatus(backendStatus string) models.ConversationStatus {
	switch backendStatus {
	case "open", "pending":
		return models.StatusPending
	case "replied":
		return models.StatusActive
	case "closed":
		return models.StatusResolved
	default:
		return models.StatusPending
	}
}

// MapRole translates the backend user type to a domain role. Unknown types
// map to the lowest permission tier.
func MapRole(backendType string) models.UserRole {
	switch backendType {
	case "administrator":
		return models.RoleAdministrator
	case "manager":
		return models.RoleManager
	case "staff":
		return models.RoleAttendant
	default:
		return models.RoleAttendant
	}
}

// MapMessage builds a domain message. attendantNames resolves sender user ids
// to display names; misses leave the name empty.
func MapMessage(dto MessageDTO, attendantNames map[string]string) models.Message {
	msg := models.Message{
		ID:        dto.ID,
		Text:      dto.Text,
		Timestamp: datetime.MessageLabel(ParseTime(dto.ExternalTimestamp)),
		Sender:    models.SenderCustomer,
	}
	if dto.SentByUserID != nil {
		msg.Sender = models.SenderAttendant
		msg.AttendantName = attendantNames[*dto.SentByUserID]
	}
	return msg
}

// MapCompany builds a domain company from its wire shape.
func MapCompany(dto CompanyDTO) models.Company {
	return models.Company{
		ID:                            dto.ID,
		Name:                          dto.Name,
		Email:                         dto.Email,
		Phone:                         dto.Phone,
		AttendantSeesAllConversations: dto.AttendantSeesAllConversations,
		IsActive:                      dto.IsActive,
		CreatedAt:                     ParseTime(dto.CreatedAt),
	}
}

// MapContact builds a domain contact from its wire shape.
func MapContact(dto ContactDTO) models.Contact {
	return models.Contact{
		ID:          dto.ID,
		CompanyID:   dto.CompanyID,
		Name:        dto.Name,
		PhoneNumber: dto.PhoneNumber,
	}
}

// MapUser builds the engine's view of a support user.
func MapUser(dto UserDTO) models.AuthUser {
	return models.AuthUser{
		ID:        dto.ID,
		CompanyID: dto.CompanyID,
		Name:      dto.Name,
		Email:     dto.Email,
		Role:      MapRole(dto.Type),
	}
}
