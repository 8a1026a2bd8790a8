package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/repository/memory"
)

var noon = time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store      *memory.Store
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	assign     *AssignmentService
	tickets    *TicketService
	chats      *ChatService
}

type fixtureOption func(*AssignmentDependencies)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	store := memory.NewStore()
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	clock := func() time.Time { return noon }

	deps := AssignmentDependencies{
		TxManager:        store,
		UserRepo:         store.Users(),
		TicketRepo:       store.Tickets(),
		ChatRepo:         store.Chats(),
		Evaluator:        NewEvaluator(time.UTC, 15*time.Minute),
		Dispatcher:       dispatcher,
		Metrics:          metrics,
		MaxClaimAttempts: 3,
		Clock:            clock,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return &fixture{
		store:      store,
		dispatcher: dispatcher,
		metrics:    metrics,
		assign:     NewAssignmentService(deps),
		tickets: NewTicketService(TicketDependencies{
			TxManager:      store,
			UserRepo:       store.Users(),
			TicketRepo:     store.Tickets(),
			ChatRepo:       store.Chats(),
			AttachmentRepo: store.Attachments(),
			Dispatcher:     dispatcher,
			Clock:          clock,
		}),
		chats: NewChatService(ChatDependencies{
			TxManager:   store,
			UserRepo:    store.Users(),
			ChatRepo:    store.Chats(),
			MessageRepo: store.Messages(),
			Dispatcher:  dispatcher,
			Config:      config.ChatConfig{DefaultPageSize: 20, MaxPageSize: 100},
		}),
	}
}

func (f *fixture) addClient(t *testing.T) domain.Principal {
	t.Helper()
	id := uuid.NewString()
	f.store.PutUser(domain.User{
		ID:            id,
		Username:      "client-" + id[:8],
		Email:         id + "@example.com",
		Role:          domain.RoleClient,
		ClientProfile: &domain.ClientProfile{Company: "Acme", ClientType: "individual"},
	})
	return domain.Principal{UserID: id, Role: domain.RoleClient}
}

func (f *fixture) addStaff(t *testing.T, role domain.Role, hours *domain.WorkingHours) domain.Principal {
	t.Helper()
	id := uuid.NewString()
	f.store.PutUser(domain.User{
		ID:       id,
		Username: string(role) + "-" + id[:8],
		Email:    id + "@example.com",
		Role:     role,
		AdminProfile: &domain.AdminProfile{
			Role:         role,
			Status:       domain.AdminStatusActive,
			WorkingHours: hours,
		},
	})
	return domain.Principal{UserID: id, Role: role}
}

func (f *fixture) openTicket(t *testing.T, requester domain.Principal, subject string) *domain.Ticket {
	t.Helper()
	ticket, _, err := f.tickets.Create(context.Background(), requester, TicketCreateInput{
		Subject:     subject,
		Description: "details for " + subject,
	})
	if err != nil {
		t.Fatalf("create ticket %q: %v", subject, err)
	}
	return ticket
}

// assigned creates a ticket and hands it to a fresh support agent.
func (f *fixture) assigned(t *testing.T) (client, agent domain.Principal, ticket *domain.Ticket) {
	t.Helper()
	client = f.addClient(t)
	agent = f.addStaff(t, domain.RoleSupport, nil)
	f.openTicket(t, client, "printer on fire")
	ticket, err := f.assign.TryAssign(context.Background(), agent.UserID)
	if err != nil {
		t.Fatalf("TryAssign: %v", err)
	}
	if ticket == nil {
		t.Fatal("TryAssign assigned nothing")
	}
	return client, agent, ticket
}
