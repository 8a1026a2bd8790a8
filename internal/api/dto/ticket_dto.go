package dto

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Subject     string                `json:"subject" validate:"required,max=255"`
	Description string                `json:"description" validate:"required"`
	Category    *string               `json:"category" validate:"omitempty,max=100"`
	Priority    domain.TicketPriority `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	Attachments []AttachmentRequest   `json:"attachments" validate:"omitempty,dive"`
}

// AttachFilesRequest payload for adding files to an existing ticket.
type AttachFilesRequest struct {
	Attachments []AttachmentRequest `json:"attachments" validate:"required,min=1,dive"`
}

// AttachmentRequest describes already uploaded file metadata.
type AttachmentRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Path     string `json:"path" validate:"required"`
	Bucket   string `json:"bucket"`
	Size     int64  `json:"size" validate:"min=0"`
	MimeType string `json:"mimeType"`
}

// TicketResponse is the public view of a ticket.
type TicketResponse struct {
	ID          int64                 `json:"id"`
	Subject     string                `json:"subject"`
	Description string                `json:"description"`
	Category    *string               `json:"category"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	RequesterID string                `json:"requesterId"`
	AssigneeID  *string               `json:"assigneeId"`
	Chat        *ChatResponse         `json:"chat,omitempty"`
	CreatedAt   time.Time             `json:"createdAt"`
	UpdatedAt   time.Time             `json:"updatedAt"`
	ResolvedAt  *time.Time            `json:"resolvedAt,omitempty"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID         string    `json:"id"`
	TicketID   int64     `json:"ticketId"`
	UploaderID string    `json:"uploaderId"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Bucket     string    `json:"bucket,omitempty"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mimeType,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewTicketResponse maps a ticket with its chat, if any.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	resp := TicketResponse{
		ID:          t.ID,
		Subject:     t.Subject,
		Description: t.Description,
		Category:    t.Category,
		Status:      t.Status,
		Priority:    t.Priority,
		RequesterID: t.RequesterID,
		AssigneeID:  t.AssigneeID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		ResolvedAt:  t.ResolvedAt,
	}
	if t.Chat != nil {
		chat := NewChatResponse(t.Chat)
		resp.Chat = &chat
	}
	return resp
}

// NewTicketList maps a slice of tickets.
func NewTicketList(tickets []domain.Ticket) []TicketResponse {
	items := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, NewTicketResponse(&tickets[i]))
	}
	return items
}

// NewAttachmentList maps attachment metadata.
func NewAttachmentList(attachments []domain.Attachment) []AttachmentResponse {
	items := make([]AttachmentResponse, 0, len(attachments))
	for _, a := range attachments {
		items = append(items, AttachmentResponse{
			ID:         a.ID,
			TicketID:   a.TicketID,
			UploaderID: a.UploaderID,
			Name:       a.Name,
			Path:       a.Path,
			Bucket:     a.Bucket,
			Size:       a.Size,
			MimeType:   a.MimeType,
			CreatedAt:  a.CreatedAt,
		})
	}
	return items
}
