package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-desk/internal/domain"
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	RequesterID     *string
	AssigneeID      *string
	Statuses        []domain.TicketStatus
	ExcludeStatuses []domain.TicketStatus
	Limit           int
	Offset          int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	// GetForUpdate loads the ticket and locks its row until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// CountUnclosedByAssignee counts tickets assigned to userID whose status
	// is anything but closed.
	CountUnclosedByAssignee(ctx context.Context, userID string) (int, error)
	// OldestOpen returns the earliest created ticket that is open and
	// unassigned, or ErrNotFound.
	OldestOpen(ctx context.Context) (*domain.Ticket, error)
	// ClaimOpen assigns the ticket only if it is still open and unassigned.
	// It returns ErrConflict when another writer got there first.
	ClaimOpen(ctx context.Context, ticketID int64, assigneeID string) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketSelect = `
        SELECT t.id, t.subject, t.description, t.category, t.status, t.priority, t.requester_id, t.assignee_id,
               t.created_at, t.updated_at, t.resolved_at,
               c.id, c.title, c.description, c.status, c.started_at, c.updated_at,
               COALESCE((SELECT array_agg(cu.user_id::text) FROM chat_users cu WHERE cu.chat_id = c.id), '{}')
        FROM tickets t
        LEFT JOIN chats c ON c.ticket_id = t.id`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (subject, description, category, status, priority, requester_id, assignee_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	return conn(ctx, r.pool).QueryRow(ctx, query,
		ticket.Subject,
		ticket.Description,
		ticket.Category,
		ticket.Status,
		ticket.Priority,
		ticket.RequesterID,
		ticket.AssigneeID,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET subject=$1, description=$2, category=$3, status=$4, priority=$5,
            assignee_id=$6, resolved_at=$7, updated_at=NOW()
        WHERE id=$8
        RETURNING updated_at`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		ticket.Subject,
		ticket.Description,
		ticket.Category,
		ticket.Status,
		ticket.Priority,
		ticket.AssigneeID,
		ticket.ResolvedAt,
		ticket.ID,
	).Scan(&ticket.UpdatedAt)
	return mapNoRows(err)
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	ticket, err := scanTicket(conn(ctx, r.pool).QueryRow(ctx, ticketSelect+` WHERE t.id=$1`, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return ticket, nil
}

func (r *ticketRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Ticket, error) {
	ticket, err := scanTicket(conn(ctx, r.pool).QueryRow(ctx, ticketSelect+` WHERE t.id=$1 FOR UPDATE OF t`, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return ticket, nil
}

func (r *ticketRepository) CountUnclosedByAssignee(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM tickets WHERE assignee_id=$1 AND status <> 'closed'`
	var count int
	if err := conn(ctx, r.pool).QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ticketRepository) OldestOpen(ctx context.Context) (*domain.Ticket, error) {
	ticket, err := scanTicket(conn(ctx, r.pool).QueryRow(ctx, ticketSelect+`
        WHERE t.status='open' AND t.assignee_id IS NULL
        ORDER BY t.created_at ASC, t.id ASC
        LIMIT 1`))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return ticket, nil
}

func (r *ticketRepository) ClaimOpen(ctx context.Context, ticketID int64, assigneeID string) error {
	const query = `
        UPDATE tickets SET assignee_id=$1, status='in_progress', updated_at=NOW()
        WHERE id=$2 AND status='open' AND assignee_id IS NULL`
	cmd, err := conn(ctx, r.pool).Exec(ctx, query, assigneeID, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("t.requester_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("t.assignee_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.ExcludeStatuses) > 0 {
		placeholders := make([]string, len(filter.ExcludeStatuses))
		for i, status := range filter.ExcludeStatuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.status NOT IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY t.created_at DESC, t.id DESC LIMIT %d OFFSET %d`,
		ticketSelect, strings.Join(clauses, " AND "), limit, offset)

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket      domain.Ticket
		chatID      *string
		chatTitle   *string
		chatDesc    *string
		chatStatus  *string
		chatStarted *time.Time
		chatUpdated *time.Time
		members     []string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Subject,
		&ticket.Description,
		&ticket.Category,
		&ticket.Status,
		&ticket.Priority,
		&ticket.RequesterID,
		&ticket.AssigneeID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
		&chatID,
		&chatTitle,
		&chatDesc,
		&chatStatus,
		&chatStarted,
		&chatUpdated,
		&members,
	); err != nil {
		return nil, err
	}
	if chatID != nil {
		ticketID := ticket.ID
		ticket.Chat = &domain.Chat{
			ID:          *chatID,
			Title:       deref(chatTitle),
			Description: deref(chatDesc),
			Status:      domain.ChatStatus(deref(chatStatus)),
			TicketID:    &ticketID,
			Members:     members,
			StartedAt:   timeOrZero(chatStarted),
			UpdatedAt:   timeOrZero(chatUpdated),
		}
	}
	return &ticket, nil
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
