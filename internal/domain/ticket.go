package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusOnHold     TicketStatus = "on_hold"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// TicketPriority enumerates ticket urgency. It does not influence queue order.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityCritical TicketPriority = "critical"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityCritical:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests.
// AssigneeID == nil implies Status == TicketStatusOpen.
type Ticket struct {
	ID          int64
	Subject     string
	Description string
	Category    *string
	Status      TicketStatus
	Priority    TicketPriority
	RequesterID string
	AssigneeID  *string
	Chat        *Chat
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ResolvedAt  *time.Time
}

// IsAssignedTo reports whether userID is the current assignee.
func (t *Ticket) IsAssignedTo(userID string) bool {
	return t.AssigneeID != nil && *t.AssigneeID == userID
}

// Attachment stores file metadata linked to a ticket. File bytes live elsewhere.
type Attachment struct {
	ID         string
	TicketID   int64
	UploaderID string
	Name       string
	Path       string
	Bucket     string
	Size       int64
	MimeType   string
	CreatedAt  time.Time
}
