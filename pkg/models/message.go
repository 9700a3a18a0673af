package models

// Sender identifies which side of the conversation authored a message.
type Sender string

const (
	SenderCustomer  Sender = "customer"
	SenderAttendant Sender = "attendant"
)

// Message is a single chat bubble. Messages are append-only within a
// conversation; ordering follows arrival, not Timestamp, which is a
// pre-formatted display string.
type Message struct {
	ID        string
	Text      string
	Timestamp string
	Sender    Sender
	// AttendantName is set iff Sender == SenderAttendant.
	AttendantName string
}
