package domain

import "time"

// SenderKind discriminates message senders.
type SenderKind string

const (
	SenderKindClient SenderKind = "client"
	SenderKindStaff  SenderKind = "staff"
)

// Sender identifies who wrote a message. Both kinds resolve through the user
// directory by ID.
type Sender struct {
	Kind SenderKind
	ID   string
}

// MessageType differentiates message payloads.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeDocument MessageType = "document"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeAudio, MessageTypeDocument:
		return true
	}
	return false
}

// MessageStatus tracks delivery state.
type MessageStatus string

const (
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusSeen      MessageStatus = "seen"
)

// MaxMessageLength bounds message content.
const MaxMessageLength = 400

// Message is a single chat entry. CreatedAt is the pagination key.
type Message struct {
	ID        string
	ChatID    string
	Content   string
	Sender    Sender
	Type      MessageType
	Status    MessageStatus
	File      *MessageFile
	CreatedAt time.Time
}

// MessageFile is the metadata of a file sent as a chat message. Every
// non-text message carries exactly one.
type MessageFile struct {
	ID         string
	MessageID  string
	Name       string
	Path       string
	Bucket     string
	Kind       MessageType
	Size       int64
	MimeType   string
	Meta       *FileMeta
	UploadedAt time.Time
}

// FileMeta holds optional media details.
type FileMeta struct {
	DurationSeconds *float64 `json:"duration,omitempty"`
	Width           *int     `json:"width,omitempty"`
	Height          *int     `json:"height,omitempty"`
}
