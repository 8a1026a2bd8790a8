package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-desk/internal/domain"
)

// ChatRepository persists chats and their membership.
type ChatRepository interface {
	// Create inserts the chat and one membership row per member. It returns
	// ErrConflict when the ticket already has a chat.
	Create(ctx context.Context, chat *domain.Chat) error
	GetByID(ctx context.Context, id string) (*domain.Chat, error)
	GetByTicketID(ctx context.Context, ticketID int64) (*domain.Chat, error)
	UpdateStatus(ctx context.Context, id string, status domain.ChatStatus) error
	ListByMember(ctx context.Context, userID string) ([]domain.Chat, error)
}

type chatRepository struct {
	pool *pgxpool.Pool
}

// NewChatRepository builds repository.
func NewChatRepository(pool *pgxpool.Pool) ChatRepository {
	return &chatRepository{pool: pool}
}

const chatSelect = `
        SELECT c.id, c.title, c.description, c.status, c.ticket_id, c.started_at, c.updated_at,
               COALESCE((SELECT array_agg(cu.user_id::text ORDER BY cu.joined_at) FROM chat_users cu WHERE cu.chat_id = c.id), '{}')
        FROM chats c`

func (r *chatRepository) Create(ctx context.Context, chat *domain.Chat) error {
	const query = `
        INSERT INTO chats (title, description, status, ticket_id)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (ticket_id) DO NOTHING
        RETURNING id, started_at, updated_at`
	q := conn(ctx, r.pool)
	if err := q.QueryRow(ctx, query,
		chat.Title,
		chat.Description,
		chat.Status,
		chat.TicketID,
	).Scan(&chat.ID, &chat.StartedAt, &chat.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConflict
		}
		return err
	}

	const member = `INSERT INTO chat_users (chat_id, user_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`
	for _, userID := range chat.Members {
		if _, err := q.Exec(ctx, member, chat.ID, userID); err != nil {
			return err
		}
	}
	return nil
}

func (r *chatRepository) GetByID(ctx context.Context, id string) (*domain.Chat, error) {
	chat, err := scanChat(conn(ctx, r.pool).QueryRow(ctx, chatSelect+` WHERE c.id=$1`, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return chat, nil
}

func (r *chatRepository) GetByTicketID(ctx context.Context, ticketID int64) (*domain.Chat, error) {
	chat, err := scanChat(conn(ctx, r.pool).QueryRow(ctx, chatSelect+` WHERE c.ticket_id=$1`, ticketID))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return chat, nil
}

func (r *chatRepository) UpdateStatus(ctx context.Context, id string, status domain.ChatStatus) error {
	const query = `UPDATE chats SET status=$1, updated_at=NOW() WHERE id=$2`
	cmd, err := conn(ctx, r.pool).Exec(ctx, query, status, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *chatRepository) ListByMember(ctx context.Context, userID string) ([]domain.Chat, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, chatSelect+`
        WHERE EXISTS (SELECT 1 FROM chat_users m WHERE m.chat_id = c.id AND m.user_id=$1)
        ORDER BY c.updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Chat{}
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *chat)
	}
	return result, rows.Err()
}

func scanChat(row pgx.Row) (*domain.Chat, error) {
	var chat domain.Chat
	if err := row.Scan(
		&chat.ID,
		&chat.Title,
		&chat.Description,
		&chat.Status,
		&chat.TicketID,
		&chat.StartedAt,
		&chat.UpdatedAt,
		&chat.Members,
	); err != nil {
		return nil, err
	}
	return &chat, nil
}
