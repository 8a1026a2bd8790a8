package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

const defaultMaxClaimAttempts = 3

// AssignmentService hands queued tickets to support agents and opens the
// ticket chat.
type AssignmentService struct {
	tx          repository.TxManager
	users       repository.UserRepository
	tickets     repository.TicketRepository
	chats       repository.ChatRepository
	evaluator   *Evaluator
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	metrics     *observability.Metrics
	maxAttempts int
	now         func() time.Time
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	TxManager        repository.TxManager
	UserRepo         repository.UserRepository
	TicketRepo       repository.TicketRepository
	ChatRepo         repository.ChatRepository
	Evaluator        *Evaluator
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
	Metrics          *observability.Metrics
	MaxClaimAttempts int
	Clock            func() time.Time
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	attempts := deps.MaxClaimAttempts
	if attempts <= 0 {
		attempts = defaultMaxClaimAttempts
	}
	evaluator := deps.Evaluator
	if evaluator == nil {
		evaluator = NewEvaluator(time.UTC, 15*time.Minute)
	}
	return &AssignmentService{
		tx:          deps.TxManager,
		users:       deps.UserRepo,
		tickets:     deps.TicketRepo,
		chats:       deps.ChatRepo,
		evaluator:   evaluator,
		dispatcher:  deps.Dispatcher,
		logger:      nonNilLogger(deps.Logger),
		metrics:     deps.Metrics,
		maxAttempts: attempts,
		now:         nonNilClock(deps.Clock),
	}
}

// TryAssign gives the oldest open ticket to agentID when the agent has a
// staff profile, holds no unclosed ticket and is inside their shift. The
// ticket chat is opened in the same transaction. A nil ticket with a nil
// error means nothing was assigned.
func (s *AssignmentService) TryAssign(ctx context.Context, agentID string) (*domain.Ticket, error) {
	var (
		assigned *domain.Ticket
		chat     *domain.Chat
		outcome  = observability.OutcomeEmptyQueue
	)

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		agent, err := s.users.GetForUpdate(ctx, agentID)
		if errors.Is(err, repository.ErrNotFound) {
			outcome = observability.OutcomeNoProfile
			return nil
		}
		if err != nil {
			return fmt.Errorf("load agent: %w", err)
		}
		if !agent.IsStaff() {
			outcome = observability.OutcomeNoProfile
			return nil
		}

		active, err := s.tickets.CountUnclosedByAssignee(ctx, agentID)
		if err != nil {
			return fmt.Errorf("count agent tickets: %w", err)
		}
		if active > 0 {
			outcome = observability.OutcomeBusy
			return nil
		}
		if !s.evaluator.IsEligible(agent.AdminProfile, s.now()) {
			outcome = observability.OutcomeIneligible
			return nil
		}

		for attempt := 1; attempt <= s.maxAttempts; attempt++ {
			candidate, err := s.tickets.OldestOpen(ctx)
			if errors.Is(err, repository.ErrNotFound) {
				if outcome != observability.OutcomeRaceLost {
					outcome = observability.OutcomeEmptyQueue
				}
				return nil
			}
			if err != nil {
				return fmt.Errorf("select queued ticket: %w", err)
			}

			err = s.tickets.ClaimOpen(ctx, candidate.ID, agentID)
			if errors.Is(err, repository.ErrConflict) {
				outcome = observability.OutcomeRaceLost
				s.logger.Debug("ticket claimed by another agent",
					zap.Int64("ticket_id", candidate.ID),
					zap.String("agent_id", agentID),
					zap.Int("attempt", attempt))
				continue
			}
			if err != nil {
				return fmt.Errorf("claim ticket %d: %w", candidate.ID, err)
			}

			opened, _, err := s.openChat(ctx, candidate.ID)
			if err != nil {
				return err
			}
			ticket, err := s.tickets.GetByID(ctx, candidate.ID)
			if err != nil {
				return fmt.Errorf("reload ticket %d: %w", candidate.ID, err)
			}
			assigned, chat = ticket, opened
			outcome = observability.OutcomeAssigned
			return nil
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordAssignment(observability.OutcomeFailed)
		return nil, err
	}
	s.metrics.RecordAssignment(outcome)

	if assigned == nil {
		s.logger.Debug("no ticket assigned", zap.String("agent_id", agentID), zap.String("outcome", string(outcome)))
		return nil, nil
	}

	s.logger.Info("ticket assigned",
		zap.Int64("ticket_id", assigned.ID),
		zap.String("agent_id", agentID),
		zap.String("chat_id", chat.ID))
	publishEvent(ctx, s.dispatcher, s.logger, events.Event{
		Type:       events.EventTicketAssigned,
		TicketID:   assigned.ID,
		ActorID:    agentID,
		Recipients: []string{assigned.RequesterID, agentID},
		Payload:    events.TicketAssignedPayload{AssigneeID: agentID},
	})
	s.publishChatOpened(ctx, chat)
	return assigned, nil
}

// OpenChatForTicket opens the chat between the requester and the assignee.
// A ticket that already has a chat returns it unchanged.
func (s *AssignmentService) OpenChatForTicket(ctx context.Context, ticketID int64) (*domain.Chat, error) {
	var (
		chat    *domain.Chat
		created bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		chat, created, err = s.openChat(ctx, ticketID)
		return err
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if created {
		s.publishChatOpened(ctx, chat)
	}
	return chat, nil
}

func (s *AssignmentService) openChat(ctx context.Context, ticketID int64) (*domain.Chat, bool, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, false, lookupError(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	if ticket.Chat != nil {
		return ticket.Chat, false, nil
	}
	if ticket.AssigneeID == nil {
		return nil, false, apperrors.NewPrecondition("ticket must be assigned before a chat starts",
			map[string]any{"ticket_id": ticketID})
	}

	id := ticket.ID
	chat := &domain.Chat{
		Title:       ticket.Subject,
		Description: fmt.Sprintf("Chat for ticket: %d", ticket.ID),
		Status:      domain.ChatStatusWaiting,
		TicketID:    &id,
		Members:     []string{ticket.RequesterID, *ticket.AssigneeID},
	}
	if err := s.chats.Create(ctx, chat); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			existing, err := s.chats.GetByTicketID(ctx, ticketID)
			if err != nil {
				return nil, false, fmt.Errorf("load chat of ticket %d: %w", ticketID, err)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("create chat for ticket %d: %w", ticketID, err)
	}
	return chat, true, nil
}

func (s *AssignmentService) publishChatOpened(ctx context.Context, chat *domain.Chat) {
	if chat == nil {
		return
	}
	var ticketID int64
	if chat.TicketID != nil {
		ticketID = *chat.TicketID
	}
	publishEvent(ctx, s.dispatcher, s.logger, events.Event{
		Type:       events.EventChatOpened,
		TicketID:   ticketID,
		ChatID:     chat.ID,
		Recipients: chat.Members,
		Payload:    events.ChatOpenedPayload{Title: chat.Title, Members: chat.Members},
	})
}
