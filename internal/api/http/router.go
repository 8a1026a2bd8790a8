package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/api/http/handlers"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Chats          *handlers.ChatsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"success": true, "data": cfg.Metrics.Snapshot()})
		})
	}

	api := app.Group("/api", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())

	tickets := api.Group("/tickets")
	tickets.Post("/", auth.RequireClient(), cfg.Tickets.CreateTicket)
	tickets.Get("/client", cfg.Tickets.ListClientTickets)
	tickets.Get("/support", auth.RequireStaffRole(), cfg.Tickets.ListSupportTickets)
	tickets.Get("/:ticketId", cfg.Tickets.GetTicket)
	tickets.Get("/:ticketId/attachments", cfg.Tickets.ListAttachments)
	tickets.Post("/:ticketId/attachments", cfg.Tickets.AttachFiles)
	tickets.Post("/:ticketId/chat", auth.RequireStaffRole(), cfg.Tickets.OpenChat)
	tickets.Put("/:ticketId/close", cfg.Tickets.CloseTicket)
	tickets.Put("/:ticketId/confirm", cfg.Tickets.ConfirmResolution)

	chats := api.Group("/chats")
	chats.Get("/me", cfg.Chats.MyChats)
	chats.Get("/files/:messageId", cfg.Chats.GetMessageFile)
	chats.Get("/:chatId", cfg.Chats.GetChat)
	chats.Get("/:chatId/messages", cfg.Chats.GetMessages)
	chats.Post("/:chatId/messages", cfg.Chats.SendMessage)
	chats.Put("/:chatId/messages/seen", cfg.Chats.MarkSeen)
}
