package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/service"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// ChatsHandler serves chat and message endpoints.
type ChatsHandler struct {
	chats *service.ChatService
}

// NewChatsHandler constructs handler.
func NewChatsHandler(chats *service.ChatService) *ChatsHandler {
	return &ChatsHandler{chats: chats}
}

// MyChats GET /api/chats/me.
func (h *ChatsHandler) MyChats(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	summaries, err := h.chats.MyChats(c.UserContext(), principal)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": dto.NewChatSummaries(summaries)})
}

// GetChat GET /api/chats/:chatId.
func (h *ChatsHandler) GetChat(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	chat, err := h.chats.GetChat(c.UserContext(), principal, c.Params("chatId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": dto.NewChatResponse(chat)})
}

// GetMessages GET /api/chats/:chatId/messages?cursor&limit&initial.
func (h *ChatsHandler) GetMessages(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	query, err := parseMessageQuery(c)
	if err != nil {
		return err
	}
	page, err := h.chats.GetMessages(c.UserContext(), principal, c.Params("chatId"), query)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": dto.NewMessagePageResponse(page)})
}

// SendMessage POST /api/chats/:chatId/messages.
func (h *ChatsHandler) SendMessage(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.SendMessageRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		return err
	}
	msg, err := h.chats.SendMessage(c.UserContext(), principal, c.Params("chatId"), req.Input())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": dto.NewMessageResponse(msg)})
}

// GetMessageFile GET /api/chats/files/:messageId.
func (h *ChatsHandler) GetMessageFile(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	file, err := h.chats.GetMessageFile(c.UserContext(), principal, c.Params("messageId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": dto.NewMessageFileResponse(file)})
}

// MarkSeen PUT /api/chats/:chatId/messages/seen.
func (h *ChatsHandler) MarkSeen(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	updated, err := h.chats.MarkSeen(c.UserContext(), principal, c.Params("chatId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"updated": updated}})
}

func parseMessageQuery(c *fiber.Ctx) (service.MessageQuery, error) {
	query := service.MessageQuery{}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return query, apperrors.NewValidationError("invalid limit", map[string]any{"limit": raw})
		}
		query.Limit = limit
	}
	if raw := c.Query("cursor"); raw != "" {
		cursor, err := time.Parse(dto.CursorLayout, raw)
		if err != nil {
			return query, apperrors.NewValidationError("invalid cursor", map[string]any{"cursor": raw})
		}
		query.Cursor = &cursor
	}
	if raw := c.Query("initial"); raw != "" {
		initial, err := strconv.ParseBool(raw)
		if err != nil {
			return query, apperrors.NewValidationError("invalid initial flag", map[string]any{"initial": raw})
		}
		query.Initial = initial
	}
	return query, nil
}
