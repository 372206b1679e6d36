package domain

import "time"

// MessageSender identifies who authored a conversation message.
type MessageSender string

const (
	SenderContact MessageSender = "CONTACT"
	SenderAgent   MessageSender = "AGENT"
	SenderSystem  MessageSender = "SYSTEM"
)

// Message is one entry in a ticket conversation. Delivery is owned by the
// channel collaborator; this core reads messages for derived ticket fields.
type Message struct {
	ID        string
	TicketID  string
	Sender    MessageSender
	SenderID  *string
	Body      string
	Read      bool
	CreatedAt time.Time
}
