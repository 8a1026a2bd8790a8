package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// ChatService serves chat reads and writes behind the access guard.
type ChatService struct {
	tx         repository.TxManager
	users      repository.UserRepository
	chats      repository.ChatRepository
	messages   repository.MessageRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.ChatConfig
}

// ChatDependencies bundles repositories for the chat service.
type ChatDependencies struct {
	TxManager   repository.TxManager
	UserRepo    repository.UserRepository
	ChatRepo    repository.ChatRepository
	MessageRepo repository.MessageRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Config      config.ChatConfig
}

// MessageQuery selects a page of messages. Cursor is exclusive.
type MessageQuery struct {
	Limit   int
	Cursor  *time.Time
	Initial bool
}

// Participant is the public view of a chat member or sender.
type Participant struct {
	ID        string
	Username  string
	Firstname string
	Lastname  string
	AvatarURL *string
	Role      domain.Role
}

// MessagePage is one page of messages in ascending order. NextCursor is set
// when older messages remain.
type MessagePage struct {
	Messages     []domain.Message
	NextCursor   *time.Time
	Participants []Participant
}

// ChatSummary is a chat listing row.
type ChatSummary struct {
	Chat           domain.Chat
	LastMessage    *domain.Message
	UnreadMessages int
	Participants   []Participant
}

// SendMessageInput describes a new message. File is required for every type
// but text, and forbidden for text.
type SendMessageInput struct {
	Content string
	Type    domain.MessageType
	File    *MessageFileInput
}

// MessageFileInput is the metadata of an already uploaded file. An empty Type
// takes the message type.
type MessageFileInput struct {
	Name     string
	Path     string
	Bucket   string
	Type     domain.MessageType
	Size     int64
	MimeType string
	Meta     *domain.FileMeta
}

// NewChatService constructs the service.
func NewChatService(deps ChatDependencies) *ChatService {
	cfg := deps.Config
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		cfg.MaxPageSize = cfg.DefaultPageSize
	}
	return &ChatService{
		tx:         deps.TxManager,
		users:      deps.UserRepo,
		chats:      deps.ChatRepo,
		messages:   deps.MessageRepo,
		dispatcher: deps.Dispatcher,
		logger:     nonNilLogger(deps.Logger),
		cfg:        cfg,
	}
}

// GetChat returns a chat the caller may see.
func (s *ChatService) GetChat(ctx context.Context, actor domain.Principal, chatID string) (*domain.Chat, error) {
	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !CanAccessChat(chat, actor) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return chat, nil
}

// GetMessages pages backwards through a chat, newest page first.
func (s *ChatService) GetMessages(ctx context.Context, actor domain.Principal, chatID string, query MessageQuery) (*MessagePage, error) {
	chat, err := s.GetChat(ctx, actor, chatID)
	if err != nil {
		return nil, err
	}

	limit := query.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultPageSize
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}

	rows, err := s.messages.ListBefore(ctx, chat.ID, query.Cursor, limit+1)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	page := &MessagePage{}
	if len(rows) > limit {
		rows = rows[:limit]
		next := rows[limit-1].CreatedAt
		page.NextCursor = &next
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	page.Messages = rows

	if query.Initial {
		page.Participants, err = s.chatParticipants(ctx, chat, rows)
		if err != nil {
			return nil, err
		}
	}
	return page, nil
}

// chatParticipants resolves the members of the chat plus any sender of rows
// who has since left it.
func (s *ChatService) chatParticipants(ctx context.Context, chat *domain.Chat, rows []domain.Message) ([]Participant, error) {
	members, err := s.users.ListByChat(ctx, chat.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	seen := make(map[string]struct{}, len(members))
	result := make([]Participant, 0, len(members))
	for i := range members {
		seen[members[i].ID] = struct{}{}
		result = append(result, newParticipant(&members[i]))
	}

	var missing []string
	for _, msg := range rows {
		if _, ok := seen[msg.Sender.ID]; ok {
			continue
		}
		seen[msg.Sender.ID] = struct{}{}
		missing = append(missing, msg.Sender.ID)
	}
	if len(missing) == 0 {
		return result, nil
	}
	others, err := s.participants(ctx, missing)
	if err != nil {
		return nil, err
	}
	return append(result, others...), nil
}

// SendMessage appends a message to a chat the caller belongs to. The first
// message activates a waiting chat; ended chats accept no messages.
func (s *ChatService) SendMessage(ctx context.Context, actor domain.Principal, chatID string, input SendMessageInput) (*domain.Message, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" && input.File == nil {
		return nil, apperrors.NewValidationError("message content is required", nil)
	}
	if utf8.RuneCountInString(content) > domain.MaxMessageLength {
		return nil, apperrors.NewValidationError("message content too long",
			map[string]any{"max_length": domain.MaxMessageLength})
	}
	msgType := input.Type
	if msgType == "" {
		msgType = domain.MessageTypeText
		if input.File != nil && input.File.Type != "" {
			msgType = input.File.Type
		}
	}
	if !msgType.Valid() {
		return nil, apperrors.NewValidationError("invalid message type", map[string]any{"type": msgType})
	}
	file, err := messageFile(msgType, input.File)
	if err != nil {
		return nil, err
	}

	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasMember(actor.UserID) {
		return nil, apperrors.NewForbidden("access denied")
	}
	if chat.Status == domain.ChatStatusEnded {
		return nil, apperrors.NewPrecondition("chat has ended", map[string]any{"chat_id": chat.ID})
	}

	kind := domain.SenderKindStaff
	if actor.IsClient() {
		kind = domain.SenderKindClient
	}
	if sender, err := s.users.GetByID(ctx, actor.UserID); err == nil {
		kind = sender.SenderKind()
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.MapError(err)
	}

	msg := &domain.Message{
		ChatID:  chat.ID,
		Content: content,
		Sender:  domain.Sender{Kind: kind, ID: actor.UserID},
		Type:    msgType,
		Status:  domain.MessageStatusDelivered,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.messages.Create(ctx, msg); err != nil {
			return err
		}
		if file != nil {
			file.MessageID = msg.ID
			if err := s.messages.CreateFile(ctx, file); err != nil {
				if errors.Is(err, repository.ErrConflict) {
					return apperrors.NewConflict("file is already attached to a message",
						map[string]any{"path": file.Path})
				}
				return err
			}
			msg.File = file
		}
		return s.chats.UpdateStatus(ctx, chat.ID, domain.ChatStatusActive)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	publishEvent(ctx, s.dispatcher, s.logger, events.Event{
		Type:       events.EventMessageSent,
		TicketID:   ticketIDOf(chat),
		ChatID:     chat.ID,
		ActorID:    actor.UserID,
		Recipients: otherMembers(chat, actor.UserID),
		Payload: events.MessageSentPayload{
			MessageID:      msg.ID,
			SenderKind:     msg.Sender.Kind,
			MessageType:    msg.Type,
			ContentPreview: stringPreview(msg.Content, 120),
			CreatedAt:      msg.CreatedAt,
		},
	})
	return msg, nil
}

// GetMessageFile returns the file of a message in a chat the caller may see.
func (s *ChatService) GetMessageFile(ctx context.Context, actor domain.Principal, messageID string) (*domain.MessageFile, error) {
	if err := validateUUID(messageID, "message_id"); err != nil {
		return nil, err
	}
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, lookupError(err, "message", map[string]any{"message_id": messageID})
	}
	if _, err := s.GetChat(ctx, actor, msg.ChatID); err != nil {
		return nil, err
	}
	if msg.File == nil {
		return nil, apperrors.NewNotFound("file", map[string]any{"message_id": messageID})
	}
	return msg.File, nil
}

// MarkSeen marks every message the caller did not write as seen.
func (s *ChatService) MarkSeen(ctx context.Context, actor domain.Principal, chatID string) (int64, error) {
	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return 0, err
	}
	if !chat.HasMember(actor.UserID) {
		return 0, apperrors.NewForbidden("access denied")
	}
	updated, err := s.messages.MarkSeen(ctx, chat.ID, actor.UserID)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	if updated > 0 {
		publishEvent(ctx, s.dispatcher, s.logger, events.Event{
			Type:       events.EventMessagesSeen,
			TicketID:   ticketIDOf(chat),
			ChatID:     chat.ID,
			ActorID:    actor.UserID,
			Recipients: otherMembers(chat, actor.UserID),
			Payload:    events.MessagesSeenPayload{ReaderID: actor.UserID, Count: updated},
		})
	}
	return updated, nil
}

// MyChats lists the caller's chats, most recently active first.
func (s *ChatService) MyChats(ctx context.Context, actor domain.Principal) ([]ChatSummary, error) {
	chats, err := s.chats.ListByMember(ctx, actor.UserID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	summaries := make([]ChatSummary, 0, len(chats))
	for _, chat := range chats {
		summary := ChatSummary{Chat: chat}

		last, err := s.messages.Latest(ctx, chat.ID)
		switch {
		case err == nil:
			summary.LastMessage = last
		case !errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.MapError(err)
		}

		summary.UnreadMessages, err = s.messages.CountUnread(ctx, chat.ID, actor.UserID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		summary.Participants, err = s.participants(ctx, chat.Members)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *ChatService) loadChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	if err := validateUUID(chatID, "chat_id"); err != nil {
		return nil, err
	}
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, lookupError(err, "chat", map[string]any{"chat_id": chatID})
	}
	return chat, nil
}

func (s *ChatService) participants(ctx context.Context, ids []string) ([]Participant, error) {
	users, err := s.users.ListByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	result := make([]Participant, 0, len(users))
	for i := range users {
		result = append(result, newParticipant(&users[i]))
	}
	return result, nil
}

func newParticipant(user *domain.User) Participant {
	return Participant{
		ID:        user.ID,
		Username:  user.Username,
		Firstname: user.Firstname,
		Lastname:  user.Lastname,
		AvatarURL: user.AvatarURL,
		Role:      user.DisplayRole(),
	}
}

func messageFile(msgType domain.MessageType, input *MessageFileInput) (*domain.MessageFile, error) {
	if msgType == domain.MessageTypeText {
		if input != nil {
			return nil, apperrors.NewValidationError("text messages cannot carry a file", nil)
		}
		return nil, nil
	}
	if input == nil {
		return nil, apperrors.NewValidationError("file is required for this message type",
			map[string]any{"type": msgType})
	}
	kind := input.Type
	if kind == "" {
		kind = msgType
	}
	if kind != msgType {
		return nil, apperrors.NewValidationError("file type does not match message type",
			map[string]any{"type": msgType, "file_type": kind})
	}
	name := strings.TrimSpace(input.Name)
	path := strings.TrimSpace(input.Path)
	if name == "" || path == "" {
		return nil, apperrors.NewValidationError("file name and path are required", nil)
	}
	if input.Size < 0 {
		return nil, apperrors.NewValidationError("file size cannot be negative",
			map[string]any{"size": input.Size})
	}
	return &domain.MessageFile{
		Name:     name,
		Path:     path,
		Bucket:   input.Bucket,
		Kind:     kind,
		Size:     input.Size,
		MimeType: input.MimeType,
		Meta:     input.Meta,
	}, nil
}

func ticketIDOf(chat *domain.Chat) int64 {
	if chat.TicketID == nil {
		return 0
	}
	return *chat.TicketID
}

func otherMembers(chat *domain.Chat, userID string) []string {
	others := make([]string, 0, len(chat.Members))
	for _, member := range chat.Members {
		if member != userID {
			others = append(others, member)
		}
	}
	return others
}
