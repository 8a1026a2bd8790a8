package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	tx          repository.TxManager
	users       repository.UserRepository
	tickets     repository.TicketRepository
	chats       repository.ChatRepository
	attachments repository.AttachmentRepository
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	now         func() time.Time
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TxManager      repository.TxManager
	UserRepo       repository.UserRepository
	TicketRepo     repository.TicketRepository
	ChatRepo       repository.ChatRepository
	AttachmentRepo repository.AttachmentRepository
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Clock          func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Subject     string
	Description string
	Category    *string
	Priority    domain.TicketPriority
	Attachments []AttachmentInput
}

// AttachmentInput is metadata of a file already stored elsewhere.
type AttachmentInput struct {
	Name     string
	Path     string
	Bucket   string
	Size     int64
	MimeType string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tx:          deps.TxManager,
		users:       deps.UserRepo,
		tickets:     deps.TicketRepo,
		chats:       deps.ChatRepo,
		attachments: deps.AttachmentRepo,
		dispatcher:  deps.Dispatcher,
		logger:      nonNilLogger(deps.Logger),
		now:         nonNilClock(deps.Clock),
	}
}

// Create opens a ticket for a client together with its attachment metadata.
func (s *TicketService) Create(ctx context.Context, actor domain.Principal, input TicketCreateInput) (*domain.Ticket, []domain.Attachment, error) {
	subject := strings.TrimSpace(input.Subject)
	description := strings.TrimSpace(input.Description)
	if subject == "" || description == "" {
		return nil, nil, apperrors.NewValidationError("subject and description are required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}

	requester, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, apperrors.MapError(err)
	}
	if requester == nil || requester.ClientProfile == nil {
		return nil, nil, apperrors.NewForbidden("user is not a client")
	}

	ticket := &domain.Ticket{
		Subject:     subject,
		Description: description,
		Category:    input.Category,
		Status:      domain.TicketStatusOpen,
		Priority:    priority,
		RequesterID: requester.ID,
	}
	attachments := make([]domain.Attachment, 0, len(input.Attachments))

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.tickets.Create(ctx, ticket); err != nil {
			return err
		}
		created, err := s.storeAttachments(ctx, ticket.ID, requester.ID, input.Attachments)
		if err != nil {
			return err
		}
		attachments = append(attachments, created...)
		return nil
	})
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}

	s.logger.Info("ticket created", zap.Int64("ticket_id", ticket.ID), zap.String("requester_id", ticket.RequesterID))
	publishEvent(ctx, s.dispatcher, s.logger, events.Event{
		Type:       events.EventTicketCreated,
		TicketID:   ticket.ID,
		ActorID:    requester.ID,
		Recipients: []string{requester.ID},
		Payload: events.TicketCreatedPayload{
			Subject:  ticket.Subject,
			Priority: ticket.Priority,
		},
	})
	return ticket, attachments, nil
}

// ListByRequester returns the caller's own tickets, newest first.
func (s *TicketService) ListByRequester(ctx context.Context, actor domain.Principal, limit, offset int) ([]domain.Ticket, error) {
	requesterID := actor.UserID
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		RequesterID: &requesterID,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListByAssignee returns the unresolved tickets assigned to the calling agent.
func (s *TicketService) ListByAssignee(ctx context.Context, actor domain.Principal, limit, offset int) ([]domain.Ticket, error) {
	if actor.IsClient() {
		return nil, apperrors.NewForbidden("staff only")
	}
	assigneeID := actor.UserID
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		AssigneeID:      &assigneeID,
		ExcludeStatuses: []domain.TicketStatus{domain.TicketStatusResolved, domain.TicketStatusClosed},
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// Get returns a ticket the caller may see.
func (s *TicketService) Get(ctx context.Context, actor domain.Principal, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, lookupError(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	if !CanAccessTicket(ticket, actor) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return ticket, nil
}

// Close resolves the ticket and ends its chat. Only the assignee or a super
// admin may do so.
func (s *TicketService) Close(ctx context.Context, ticketID int64, actor domain.Principal) (*domain.Ticket, error) {
	var (
		ticket    *domain.Ticket
		oldStatus domain.TicketStatus
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		ticket, err = s.tickets.GetForUpdate(ctx, ticketID)
		if err != nil {
			return lookupError(err, "ticket", map[string]any{"ticket_id": ticketID})
		}
		if !ticket.IsAssignedTo(actor.UserID) {
			allowed, err := s.isSuperAdmin(ctx, actor.UserID)
			if err != nil {
				return err
			}
			if !allowed {
				return apperrors.NewForbidden("unauthorized action")
			}
		}
		switch {
		case ticket.AssigneeID == nil:
			return apperrors.NewPrecondition("ticket must be assigned before it is closed",
				map[string]any{"ticket_id": ticketID})
		case ticket.Status == domain.TicketStatusResolved || ticket.Status == domain.TicketStatusClosed:
			return apperrors.NewPrecondition("ticket is already resolved",
				map[string]any{"ticket_id": ticketID, "status": ticket.Status})
		}

		now := s.now().UTC()
		oldStatus = ticket.Status
		ticket.Status = domain.TicketStatusResolved
		ticket.ResolvedAt = &now
		if err := s.tickets.Update(ctx, ticket); err != nil {
			return err
		}
		if ticket.Chat != nil {
			if err := s.chats.UpdateStatus(ctx, ticket.Chat.ID, domain.ChatStatusEnded); err != nil {
				return err
			}
			ticket.Chat.Status = domain.ChatStatusEnded
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishStatusChange(ctx, events.EventTicketResolved, ticket, actor.UserID, oldStatus)
	return ticket, nil
}

// ConfirmResolution lets the requester accept a resolved ticket, closing it.
// Closing releases the assignee for the next queued ticket.
func (s *TicketService) ConfirmResolution(ctx context.Context, ticketID int64, actor domain.Principal) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		ticket, err = s.tickets.GetForUpdate(ctx, ticketID)
		if err != nil {
			return lookupError(err, "ticket", map[string]any{"ticket_id": ticketID})
		}
		if ticket.RequesterID != actor.UserID {
			return apperrors.NewForbidden("access denied")
		}
		if ticket.Status != domain.TicketStatusResolved {
			return apperrors.NewPrecondition("ticket is not resolved",
				map[string]any{"ticket_id": ticketID, "status": ticket.Status})
		}
		ticket.Status = domain.TicketStatusClosed
		return s.tickets.Update(ctx, ticket)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishStatusChange(ctx, events.EventTicketClosed, ticket, actor.UserID, domain.TicketStatusResolved)
	return ticket, nil
}

// AttachFiles records attachment metadata on a ticket. Only the requester and
// the assignee may attach.
func (s *TicketService) AttachFiles(ctx context.Context, ticketID int64, actor domain.Principal, files []AttachmentInput) ([]domain.Attachment, error) {
	if len(files) == 0 {
		return nil, apperrors.NewValidationError("no attachments provided", nil)
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, lookupError(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	if ticket.RequesterID != actor.UserID && !ticket.IsAssignedTo(actor.UserID) {
		return nil, apperrors.NewForbidden("access denied")
	}

	var created []domain.Attachment
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.storeAttachments(ctx, ticketID, actor.UserID, files)
		return err
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return created, nil
}

// ListAttachments returns attachment metadata to the requester or staff.
func (s *TicketService) ListAttachments(ctx context.Context, ticketID int64, actor domain.Principal) ([]domain.Attachment, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, lookupError(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	if ticket.RequesterID != actor.UserID && !actor.Role.IsAdministrative() {
		return nil, apperrors.NewForbidden("access denied")
	}
	attachments, err := s.attachments.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return attachments, nil
}

func (s *TicketService) storeAttachments(ctx context.Context, ticketID int64, uploaderID string, files []AttachmentInput) ([]domain.Attachment, error) {
	created := make([]domain.Attachment, 0, len(files))
	for i, file := range files {
		name := strings.TrimSpace(file.Name)
		path := strings.TrimSpace(file.Path)
		if name == "" || path == "" {
			return nil, apperrors.NewValidationError("attachment name and path are required",
				map[string]any{"index": i})
		}
		if file.Size < 0 {
			return nil, apperrors.NewValidationError("attachment size must not be negative",
				map[string]any{"index": i})
		}
		attachment := domain.Attachment{
			TicketID:   ticketID,
			UploaderID: uploaderID,
			Name:       name,
			Path:       path,
			Bucket:     file.Bucket,
			Size:       file.Size,
			MimeType:   file.MimeType,
		}
		if err := s.attachments.Create(ctx, &attachment); err != nil {
			return nil, err
		}
		created = append(created, attachment)
	}
	return created, nil
}

func (s *TicketService) isSuperAdmin(ctx context.Context, userID string) (bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.AdminProfile != nil && user.AdminProfile.Role == domain.RoleSuperAdmin, nil
}

func (s *TicketService) publishStatusChange(ctx context.Context, eventType events.EventType, ticket *domain.Ticket, actorID string, oldStatus domain.TicketStatus) {
	recipients := []string{ticket.RequesterID}
	if ticket.AssigneeID != nil {
		recipients = append(recipients, *ticket.AssigneeID)
	}
	event := events.Event{
		Type:       eventType,
		TicketID:   ticket.ID,
		ActorID:    actorID,
		Recipients: recipients,
		Payload: events.TicketStatusPayload{
			OldStatus: oldStatus,
			NewStatus: ticket.Status,
		},
	}
	if ticket.Chat != nil {
		event.ChatID = ticket.Chat.ID
	}
	publishEvent(ctx, s.dispatcher, s.logger, event)
}
