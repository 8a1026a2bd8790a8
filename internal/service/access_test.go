package service

import (
	"testing"

	"github.com/spec-kit/support-desk/internal/domain"
)

func TestCanAccessChat(t *testing.T) {
	chat := &domain.Chat{ID: "chat", Members: []string{"requester", "agent"}}

	cases := []struct {
		name  string
		actor domain.Principal
		want  bool
	}{
		{"requester", domain.Principal{UserID: "requester", Role: domain.RoleClient}, true},
		{"assignee", domain.Principal{UserID: "agent", Role: domain.RoleSupport}, true},
		{"admin outsider", domain.Principal{UserID: "boss", Role: domain.RoleAdmin}, true},
		{"super admin outsider", domain.Principal{UserID: "root", Role: domain.RoleSuperAdmin}, false},
		{"support outsider", domain.Principal{UserID: "other", Role: domain.RoleSupport}, false},
		{"client outsider", domain.Principal{UserID: "stranger", Role: domain.RoleClient}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanAccessChat(chat, tc.actor); got != tc.want {
				t.Errorf("CanAccessChat = %v, want %v", got, tc.want)
			}
		})
	}

	if CanAccessChat(nil, domain.Principal{UserID: "boss", Role: domain.RoleAdmin}) {
		t.Error("nil chat must not be accessible")
	}
}

func TestCanAccessTicket(t *testing.T) {
	ticket := &domain.Ticket{
		ID:          7,
		RequesterID: "requester",
		Chat:        &domain.Chat{Members: []string{"requester", "agent"}},
	}

	cases := []struct {
		name  string
		actor domain.Principal
		want  bool
	}{
		{"requester", domain.Principal{UserID: "requester", Role: domain.RoleClient}, true},
		{"chat member", domain.Principal{UserID: "agent", Role: domain.RoleClient}, true},
		{"support outsider", domain.Principal{UserID: "other", Role: domain.RoleSupport}, true},
		{"content manager outsider", domain.Principal{UserID: "cm", Role: domain.RoleContentManager}, true},
		{"super admin outsider", domain.Principal{UserID: "root", Role: domain.RoleSuperAdmin}, true},
		{"client outsider", domain.Principal{UserID: "stranger", Role: domain.RoleClient}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanAccessTicket(ticket, tc.actor); got != tc.want {
				t.Errorf("CanAccessTicket = %v, want %v", got, tc.want)
			}
		})
	}

	noChat := &domain.Ticket{RequesterID: "requester"}
	if CanAccessTicket(noChat, domain.Principal{UserID: "agent", Role: domain.RoleClient}) {
		t.Error("ticket without chat must not admit non-requester clients")
	}
}
