package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

func TestCreateTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.addClient(t)

	var published []events.Event
	f.dispatcher.Subscribe(events.EventTicketCreated, func(_ context.Context, e events.Event) error {
		published = append(published, e)
		return nil
	})

	ticket, attachments, err := f.tickets.Create(ctx, client, TicketCreateInput{
		Subject:     "  Cannot log in ",
		Description: "password reset mail never arrives",
		Attachments: []AttachmentInput{
			{Name: "screen.png", Path: "tickets/screen.png", Bucket: "uploads", Size: 2048, MimeType: "image/png"},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ticket.Subject != "Cannot log in" {
		t.Errorf("subject = %q, want trimmed", ticket.Subject)
	}
	if ticket.Status != domain.TicketStatusOpen || ticket.AssigneeID != nil {
		t.Errorf("new ticket = %s/%v, want open and unassigned", ticket.Status, ticket.AssigneeID)
	}
	if ticket.Priority != domain.TicketPriorityMedium {
		t.Errorf("priority = %s, want medium default", ticket.Priority)
	}
	if len(attachments) != 1 || attachments[0].TicketID != ticket.ID || attachments[0].UploaderID != client.UserID {
		t.Errorf("attachments = %+v", attachments)
	}
	if len(published) != 1 || published[0].TicketID != ticket.ID {
		t.Errorf("published = %+v, want one ticket_created", published)
	}
}

func TestCreateTicketRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := f.addClient(t)
	agent := f.addStaff(t, domain.RoleSupport, nil)

	cases := []struct {
		name  string
		actor domain.Principal
		input TicketCreateInput
		code  string
	}{
		{"staff requester", agent, TicketCreateInput{Subject: "s", Description: "d"}, apperrors.CodeForbidden},
		{"missing subject", client, TicketCreateInput{Subject: "  ", Description: "d"}, apperrors.CodeValidation},
		{"bad priority", client, TicketCreateInput{Subject: "s", Description: "d", Priority: "urgent"}, apperrors.CodeValidation},
		{"attachment without path", client, TicketCreateInput{
			Subject: "s", Description: "d",
			Attachments: []AttachmentInput{{Name: "a.txt"}},
		}, apperrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := f.tickets.Create(ctx, tc.actor, tc.input)
			if !apperrors.HasCode(err, tc.code) {
				t.Fatalf("err = %v, want %s", err, tc.code)
			}
		})
	}

	mine, err := f.tickets.ListByRequester(ctx, client, 20, 0)
	if err != nil {
		t.Fatalf("ListByRequester: %v", err)
	}
	if len(mine) != 0 {
		t.Errorf("rejected creations left %d tickets behind", len(mine))
	}
}

func TestCloseAuthorization(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name  string
		actor func(t *testing.T, f *fixture, client, agent domain.Principal) domain.Principal
		code  string
	}{
		{"assignee", func(_ *testing.T, _ *fixture, _, agent domain.Principal) domain.Principal { return agent }, ""},
		{"super admin", func(t *testing.T, f *fixture, _, _ domain.Principal) domain.Principal {
			return f.addStaff(t, domain.RoleSuperAdmin, nil)
		}, ""},
		{"admin who is not assignee", func(t *testing.T, f *fixture, _, _ domain.Principal) domain.Principal {
			return f.addStaff(t, domain.RoleAdmin, nil)
		}, apperrors.CodeForbidden},
		{"other support agent", func(t *testing.T, f *fixture, _, _ domain.Principal) domain.Principal {
			return f.addStaff(t, domain.RoleSupport, nil)
		}, apperrors.CodeForbidden},
		{"requester", func(_ *testing.T, _ *fixture, client, _ domain.Principal) domain.Principal { return client }, apperrors.CodeForbidden},
		{"super admin claim without profile", func(_ *testing.T, _ *fixture, _, _ domain.Principal) domain.Principal {
			return domain.Principal{UserID: "0b6d3c1e-93c5-4c1c-bf39-7b1d1f9a5e20", Role: domain.RoleSuperAdmin}
		}, apperrors.CodeForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			client, agent, ticket := f.assigned(t)
			actor := tc.actor(t, f, client, agent)

			got, err := f.tickets.Close(ctx, ticket.ID, actor)
			if tc.code != "" {
				if !apperrors.HasCode(err, tc.code) {
					t.Fatalf("err = %v, want %s", err, tc.code)
				}
				stored, _ := f.store.Tickets().GetByID(ctx, ticket.ID)
				if stored.Status != domain.TicketStatusInProgress {
					t.Errorf("denied close changed status to %s", stored.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("Close: %v", err)
			}
			if got.Status != domain.TicketStatusResolved || got.ResolvedAt == nil {
				t.Errorf("ticket = %s resolved_at=%v, want resolved", got.Status, got.ResolvedAt)
			}
			chat, err := f.store.Chats().GetByID(ctx, ticket.Chat.ID)
			if err != nil {
				t.Fatalf("load chat: %v", err)
			}
			if chat.Status != domain.ChatStatusEnded {
				t.Errorf("chat status = %s, want ended", chat.Status)
			}
		})
	}
}

func TestCloseStateChecks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, agent, ticket := f.assigned(t)

	if _, err := f.tickets.Close(ctx, ticket.ID, agent); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := f.tickets.Close(ctx, ticket.ID, agent); !apperrors.HasCode(err, apperrors.CodePrecondition) {
		t.Errorf("second close err = %v, want PRECONDITION_FAILED", err)
	}
	if _, err := f.tickets.Close(ctx, 4242, agent); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Errorf("missing ticket err = %v, want NOT_FOUND", err)
	}

	queued := f.openTicket(t, f.addClient(t), "queued")
	root := f.addStaff(t, domain.RoleSuperAdmin, nil)
	if _, err := f.tickets.Close(ctx, queued.ID, root); !apperrors.HasCode(err, apperrors.CodePrecondition) {
		t.Errorf("unassigned close err = %v, want PRECONDITION_FAILED", err)
	}
}

func TestConfirmResolution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client, agent, ticket := f.assigned(t)

	if _, err := f.tickets.ConfirmResolution(ctx, ticket.ID, client); !apperrors.HasCode(err, apperrors.CodePrecondition) {
		t.Fatalf("confirm before resolve err = %v, want PRECONDITION_FAILED", err)
	}
	if _, err := f.tickets.Close(ctx, ticket.ID, agent); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := f.tickets.ConfirmResolution(ctx, ticket.ID, agent); !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Fatalf("confirm by agent err = %v, want FORBIDDEN", err)
	}
	got, err := f.tickets.ConfirmResolution(ctx, ticket.ID, client)
	if err != nil {
		t.Fatalf("ConfirmResolution: %v", err)
	}
	if got.Status != domain.TicketStatusClosed {
		t.Errorf("status = %s, want closed", got.Status)
	}
}

func TestGetTicketAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client, agent, ticket := f.assigned(t)

	allowed := []domain.Principal{
		client,
		agent,
		f.addStaff(t, domain.RoleModerator, nil),
		{UserID: "9c3f0f5e-1d2b-4a44-8d3e-59a1f1b2c3d4", Role: domain.RoleSupport},
	}
	for _, actor := range allowed {
		if _, err := f.tickets.Get(ctx, actor, ticket.ID); err != nil {
			t.Errorf("Get as %s: %v", actor.Role, err)
		}
	}

	stranger := f.addClient(t)
	if _, err := f.tickets.Get(ctx, stranger, ticket.ID); !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Errorf("stranger err = %v, want FORBIDDEN", err)
	}
}

func TestListByAssigneeSkipsResolvedTickets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client, agent, ticket := f.assigned(t)

	active, err := f.tickets.ListByAssignee(ctx, agent, 20, 0)
	if err != nil {
		t.Fatalf("ListByAssignee: %v", err)
	}
	if len(active) != 1 || active[0].ID != ticket.ID {
		t.Fatalf("active = %+v, want ticket %d", active, ticket.ID)
	}

	if _, err := f.tickets.Close(ctx, ticket.ID, agent); err != nil {
		t.Fatalf("Close: %v", err)
	}
	active, err = f.tickets.ListByAssignee(ctx, agent, 20, 0)
	if err != nil {
		t.Fatalf("ListByAssignee: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("resolved ticket still listed: %+v", active)
	}

	if _, err := f.tickets.ListByAssignee(ctx, client, 20, 0); !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Errorf("client err = %v, want FORBIDDEN", err)
	}
}

func TestAttachments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client, agent, ticket := f.assigned(t)
	file := []AttachmentInput{{Name: "log.txt", Path: "tickets/log.txt", Size: 10, MimeType: "text/plain"}}

	if _, err := f.tickets.AttachFiles(ctx, ticket.ID, agent, file); err != nil {
		t.Fatalf("AttachFiles as assignee: %v", err)
	}
	if _, err := f.tickets.AttachFiles(ctx, ticket.ID, client, file); err != nil {
		t.Fatalf("AttachFiles as requester: %v", err)
	}
	outsider := f.addStaff(t, domain.RoleAdmin, nil)
	if _, err := f.tickets.AttachFiles(ctx, ticket.ID, outsider, file); !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Errorf("outsider attach err = %v, want FORBIDDEN", err)
	}

	listed, err := f.tickets.ListAttachments(ctx, ticket.ID, outsider)
	if err != nil {
		t.Fatalf("ListAttachments as admin: %v", err)
	}
	if len(listed) != 2 {
		t.Errorf("listed %d attachments, want 2", len(listed))
	}
	if _, err := f.tickets.ListAttachments(ctx, ticket.ID, f.addClient(t)); !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Errorf("stranger list err = %v, want FORBIDDEN", err)
	}
}

func TestConcurrentCloseResolvesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, agent, ticket := f.assigned(t)
	superAdmin := f.addStaff(t, domain.RoleSuperAdmin, nil)

	var resolved atomic.Int32
	f.dispatcher.Subscribe(events.EventTicketResolved, func(context.Context, events.Event) error {
		resolved.Add(1)
		return nil
	})

	actors := []domain.Principal{agent, superAdmin, agent, superAdmin}
	errs := make([]error, len(actors))
	var wg sync.WaitGroup
	for i, actor := range actors {
		wg.Add(1)
		go func(i int, actor domain.Principal) {
			defer wg.Done()
			_, errs[i] = f.tickets.Close(ctx, ticket.ID, actor)
		}(i, actor)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !apperrors.HasCode(err, apperrors.CodePrecondition):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d closes succeeded, want 1", succeeded)
	}
	if got := resolved.Load(); got != 1 {
		t.Errorf("%d resolved events, want 1", got)
	}
}
