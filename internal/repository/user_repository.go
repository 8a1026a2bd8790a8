package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-desk/internal/domain"
)

// UserRepository reads identity records together with their profiles. User
// creation belongs to the directory service and is not exposed here.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetForUpdate loads the user and locks its row until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.User, error)
	ListByIDs(ctx context.Context, ids []string) ([]domain.User, error)
	ListByChat(ctx context.Context, chatID string) ([]domain.User, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userSelect = `
        SELECT u.id, u.username, u.firstname, u.lastname, u.email, u.avatar_url, u.role, u.created_at, u.updated_at,
               ap.id, ap.role, ap.title, ap.status, ap.working_hours, ap.created_at,
               cp.id, cp.company, cp.client_type
        FROM users u
        LEFT JOIN admin_profiles ap ON ap.user_id = u.id
        LEFT JOIN client_profiles cp ON cp.user_id = u.id`

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := scanUser(conn(ctx, r.pool).QueryRow(ctx, userSelect+` WHERE u.id=$1`, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return user, nil
}

func (r *userRepository) GetForUpdate(ctx context.Context, id string) (*domain.User, error) {
	user, err := scanUser(conn(ctx, r.pool).QueryRow(ctx, userSelect+` WHERE u.id=$1 FOR UPDATE OF u`, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return user, nil
}

func (r *userRepository) ListByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	if len(ids) == 0 {
		return []domain.User{}, nil
	}
	rows, err := conn(ctx, r.pool).Query(ctx, userSelect+` WHERE u.id::text = ANY($1) ORDER BY u.created_at`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (r *userRepository) ListByChat(ctx context.Context, chatID string) ([]domain.User, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, userSelect+`
        JOIN chat_users cu ON cu.user_id = u.id
        WHERE cu.chat_id=$1 ORDER BY u.created_at`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func scanUsers(rows pgx.Rows) ([]domain.User, error) {
	result := []domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *user)
	}
	return result, rows.Err()
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user      domain.User
		apID      *string
		apRole    *string
		apTitle   *string
		apStatus  *string
		apHours   []byte
		apCreated *time.Time
		cpID      *string
		cpCompany *string
		cpType    *string
	)
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Firstname,
		&user.Lastname,
		&user.Email,
		&user.AvatarURL,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
		&apID,
		&apRole,
		&apTitle,
		&apStatus,
		&apHours,
		&apCreated,
		&cpID,
		&cpCompany,
		&cpType,
	); err != nil {
		return nil, err
	}

	if apID != nil {
		profile := &domain.AdminProfile{
			ID:     *apID,
			UserID: user.ID,
			Role:   domain.Role(deref(apRole)),
			Title:  deref(apTitle),
			Status: domain.AdminStatus(deref(apStatus)),
		}
		if apCreated != nil {
			profile.CreatedAt = *apCreated
		}
		if len(apHours) > 0 && string(apHours) != "null" {
			var hours domain.WorkingHours
			if err := json.Unmarshal(apHours, &hours); err != nil {
				return nil, fmt.Errorf("decode working hours for user %s: %w", user.ID, err)
			}
			profile.WorkingHours = &hours
		}
		user.AdminProfile = profile
	}
	if cpID != nil {
		user.ClientProfile = &domain.ClientProfile{
			ID:         *cpID,
			UserID:     user.ID,
			Company:    deref(cpCompany),
			ClientType: deref(cpType),
		}
	}
	return &user, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
