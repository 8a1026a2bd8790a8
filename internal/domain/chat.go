package domain

import "time"

// ChatStatus enumerates chat lifecycle states.
type ChatStatus string

const (
	ChatStatusWaiting ChatStatus = "waiting"
	ChatStatusActive  ChatStatus = "active"
	ChatStatusEnded   ChatStatus = "ended"
)

// Chat is a conversation between a ticket requester and its assignee.
type Chat struct {
	ID          string
	Title       string
	Description string
	Status      ChatStatus
	TicketID    *int64
	Members     []string
	StartedAt   time.Time
	UpdatedAt   time.Time
}

// HasMember reports whether userID belongs to the chat.
func (c *Chat) HasMember(userID string) bool {
	if c == nil {
		return false
	}
	for _, member := range c.Members {
		if member == userID {
			return true
		}
	}
	return false
}
