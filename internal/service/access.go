package service

import "github.com/spec-kit/support-desk/internal/domain"

// CanAccessChat allows chat members and callers whose role is exactly admin.
func CanAccessChat(chat *domain.Chat, actor domain.Principal) bool {
	if chat == nil {
		return false
	}
	return chat.HasMember(actor.UserID) || actor.Role == domain.RoleAdmin
}

// CanAccessTicket allows the requester, members of the ticket chat and any
// administrative role.
func CanAccessTicket(ticket *domain.Ticket, actor domain.Principal) bool {
	if ticket == nil {
		return false
	}
	if ticket.RequesterID == actor.UserID || ticket.Chat.HasMember(actor.UserID) {
		return true
	}
	return actor.Role.IsAdministrative()
}
