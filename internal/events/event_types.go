package events

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated  EventType = "ticket_created"
	EventTicketAssigned EventType = "ticket_assigned"
	EventChatOpened     EventType = "chat_opened"
	EventTicketResolved EventType = "ticket_resolved"
	EventTicketClosed   EventType = "ticket_closed"
	EventMessageSent    EventType = "message_sent"
	EventMessagesSeen   EventType = "messages_seen"
)

// AllEventTypes lists every type services publish.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketAssigned,
	EventChatOpened,
	EventTicketResolved,
	EventTicketClosed,
	EventMessageSent,
	EventMessagesSeen,
}

// Event represents a domain event emitted by services. Recipients lists the
// users whose personal channel should receive it.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	TicketID   int64     `json:"ticket_id,omitempty"`
	ChatID     string    `json:"chat_id,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	Recipients []string  `json:"-"`
	Timestamp  time.Time `json:"timestamp"`
	Payload    any       `json:"payload,omitempty"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Subject  string                `json:"subject"`
	Priority domain.TicketPriority `json:"priority"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssigneeID string `json:"assignee_id"`
}

// ChatOpenedPayload payload.
type ChatOpenedPayload struct {
	Title   string   `json:"title"`
	Members []string `json:"members"`
}

// TicketStatusPayload is shared by resolve and close events.
type TicketStatusPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// MessageSentPayload payload.
type MessageSentPayload struct {
	MessageID      string             `json:"message_id"`
	SenderKind     domain.SenderKind  `json:"sender_kind"`
	MessageType    domain.MessageType `json:"message_type"`
	ContentPreview string             `json:"content_preview"`
	CreatedAt      time.Time          `json:"created_at"`
}

// MessagesSeenPayload payload.
type MessagesSeenPayload struct {
	ReaderID string `json:"reader_id"`
	Count    int64  `json:"count"`
}
