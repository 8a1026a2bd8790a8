package dto

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/service"
)

// SendMessageRequest payload. Length is checked after trimming by the service.
// Content may be empty only when a file is sent.
type SendMessageRequest struct {
	Content string              `json:"content" validate:"required_without=File"`
	Type    domain.MessageType  `json:"type" validate:"omitempty,oneof=text image audio document"`
	File    *MessageFileRequest `json:"file"`
}

// MessageFileRequest is the metadata of a file already uploaded to storage.
type MessageFileRequest struct {
	Name     string             `json:"name" validate:"required,max=255"`
	Path     string             `json:"path" validate:"required"`
	Bucket   string             `json:"bucket" validate:"omitempty,max=100"`
	Type     domain.MessageType `json:"type" validate:"omitempty,oneof=image audio document"`
	Size     int64              `json:"size" validate:"gte=0"`
	MimeType string             `json:"mimeType" validate:"omitempty,max=100"`
	Meta     *domain.FileMeta   `json:"meta"`
}

// Input converts the request for the chat service.
func (r *SendMessageRequest) Input() service.SendMessageInput {
	input := service.SendMessageInput{Content: r.Content, Type: r.Type}
	if r.File != nil {
		input.File = &service.MessageFileInput{
			Name:     r.File.Name,
			Path:     r.File.Path,
			Bucket:   r.File.Bucket,
			Type:     r.File.Type,
			Size:     r.File.Size,
			MimeType: r.File.MimeType,
			Meta:     r.File.Meta,
		}
	}
	return input
}

// ChatResponse is the public view of a chat.
type ChatResponse struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Status      domain.ChatStatus `json:"status"`
	TicketID    *int64            `json:"ticketId"`
	Members     []string          `json:"members"`
	StartedAt   time.Time         `json:"startedAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// SenderResponse identifies a message author.
type SenderResponse struct {
	Kind domain.SenderKind `json:"kind"`
	ID   string            `json:"id"`
}

// MessageResponse is a single chat message.
type MessageResponse struct {
	ID        string               `json:"id"`
	ChatID    string               `json:"chatId"`
	Content   string               `json:"content"`
	Sender    SenderResponse       `json:"sender"`
	Type      domain.MessageType   `json:"type"`
	Status    domain.MessageStatus `json:"status"`
	File      *MessageFileResponse `json:"file,omitempty"`
	CreatedAt time.Time            `json:"createdAt"`
}

// MessageFileResponse is the file carried by a non-text message.
type MessageFileResponse struct {
	ID         string             `json:"id"`
	MessageID  string             `json:"messageId"`
	Name       string             `json:"name"`
	Path       string             `json:"path"`
	Bucket     string             `json:"bucket"`
	Type       domain.MessageType `json:"type"`
	Size       int64              `json:"size"`
	MimeType   string             `json:"mimeType"`
	Meta       *domain.FileMeta   `json:"meta,omitempty"`
	UploadedAt time.Time          `json:"uploadedAt"`
}

// ParticipantResponse is the public profile of a chat participant.
type ParticipantResponse struct {
	ID        string      `json:"id"`
	Username  string      `json:"username"`
	Firstname string      `json:"firstname"`
	Lastname  string      `json:"lastname"`
	AvatarURL *string     `json:"avatarUrl"`
	Role      domain.Role `json:"role"`
}

// MessagePageResponse is one page of messages, oldest first. NextCursor is
// passed back as the cursor query parameter to fetch older messages.
type MessagePageResponse struct {
	Messages     []MessageResponse     `json:"messages"`
	NextCursor   *string               `json:"nextCursor"`
	Participants []ParticipantResponse `json:"participants,omitempty"`
}

// ChatSummaryResponse is one row of the caller's chat list.
type ChatSummaryResponse struct {
	Chat           ChatResponse          `json:"chat"`
	LastMessage    *MessageResponse      `json:"lastMessage"`
	UnreadMessages int                   `json:"unreadMessages"`
	Participants   []ParticipantResponse `json:"participants"`
}

// CursorLayout formats and parses message cursors.
const CursorLayout = time.RFC3339Nano

// NewChatResponse maps a chat.
func NewChatResponse(c *domain.Chat) ChatResponse {
	members := c.Members
	if members == nil {
		members = []string{}
	}
	return ChatResponse{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Status:      c.Status,
		TicketID:    c.TicketID,
		Members:     members,
		StartedAt:   c.StartedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// NewMessageResponse maps a message.
func NewMessageResponse(m *domain.Message) MessageResponse {
	resp := MessageResponse{
		ID:        m.ID,
		ChatID:    m.ChatID,
		Content:   m.Content,
		Sender:    SenderResponse{Kind: m.Sender.Kind, ID: m.Sender.ID},
		Type:      m.Type,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
	}
	if m.File != nil {
		file := NewMessageFileResponse(m.File)
		resp.File = &file
	}
	return resp
}

// NewMessageFileResponse maps file metadata.
func NewMessageFileResponse(f *domain.MessageFile) MessageFileResponse {
	return MessageFileResponse{
		ID:         f.ID,
		MessageID:  f.MessageID,
		Name:       f.Name,
		Path:       f.Path,
		Bucket:     f.Bucket,
		Type:       f.Kind,
		Size:       f.Size,
		MimeType:   f.MimeType,
		Meta:       f.Meta,
		UploadedAt: f.UploadedAt,
	}
}

// NewMessagePageResponse maps a message page.
func NewMessagePageResponse(page *service.MessagePage) MessagePageResponse {
	resp := MessagePageResponse{
		Messages:     make([]MessageResponse, 0, len(page.Messages)),
		Participants: newParticipants(page.Participants),
	}
	for i := range page.Messages {
		resp.Messages = append(resp.Messages, NewMessageResponse(&page.Messages[i]))
	}
	if page.NextCursor != nil {
		cursor := page.NextCursor.UTC().Format(CursorLayout)
		resp.NextCursor = &cursor
	}
	return resp
}

// NewChatSummaries maps the caller's chat list.
func NewChatSummaries(summaries []service.ChatSummary) []ChatSummaryResponse {
	items := make([]ChatSummaryResponse, 0, len(summaries))
	for i := range summaries {
		s := &summaries[i]
		item := ChatSummaryResponse{
			Chat:           NewChatResponse(&s.Chat),
			UnreadMessages: s.UnreadMessages,
			Participants:   newParticipants(s.Participants),
		}
		if s.LastMessage != nil {
			last := NewMessageResponse(s.LastMessage)
			item.LastMessage = &last
		}
		items = append(items, item)
	}
	return items
}

func newParticipants(participants []service.Participant) []ParticipantResponse {
	if participants == nil {
		return nil
	}
	items := make([]ParticipantResponse, 0, len(participants))
	for _, p := range participants {
		items = append(items, ParticipantResponse{
			ID:        p.ID,
			Username:  p.Username,
			Firstname: p.Firstname,
			Lastname:  p.Lastname,
			AvatarURL: p.AvatarURL,
			Role:      p.Role,
		})
	}
	return items
}
