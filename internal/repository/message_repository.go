package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-desk/internal/domain"
)

// MessageRepository manages chat messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	// CreateFile stores the file metadata of an existing message. A reused
	// path or a second file for the same message yields ErrConflict.
	CreateFile(ctx context.Context, file *domain.MessageFile) error
	// GetByID returns the message with its file, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	// ListBefore returns up to limit messages of the chat created strictly
	// before the cursor, newest first. A nil cursor starts at the newest.
	ListBefore(ctx context.Context, chatID string, before *time.Time, limit int) ([]domain.Message, error)
	// Latest returns the newest message of the chat, or ErrNotFound.
	Latest(ctx context.Context, chatID string) (*domain.Message, error)
	// CountUnread counts delivered messages not written by readerID.
	CountUnread(ctx context.Context, chatID, readerID string) (int, error)
	// MarkSeen flips every delivered message not written by readerID to seen.
	MarkSeen(ctx context.Context, chatID, readerID string) (int64, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

const messageSelect = `
        SELECT m.id, m.chat_id, m.content, m.sender_kind, m.sender_id, m.type, m.status, m.created_at,
               f.id, f.name, f.path, f.bucket, f.kind, f.size_bytes, f.mime_type, f.meta, f.uploaded_at
        FROM chat_messages m
        LEFT JOIN chat_message_files f ON f.message_id = m.id`

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO chat_messages (chat_id, content, sender_kind, sender_id, type, status)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return conn(ctx, r.pool).QueryRow(ctx, query,
		msg.ChatID,
		msg.Content,
		msg.Sender.Kind,
		msg.Sender.ID,
		msg.Type,
		msg.Status,
	).Scan(&msg.ID, &msg.CreatedAt)
}

func (r *messageRepository) CreateFile(ctx context.Context, file *domain.MessageFile) error {
	var meta []byte
	if file.Meta != nil {
		encoded, err := json.Marshal(file.Meta)
		if err != nil {
			return err
		}
		meta = encoded
	}
	const query = `
        INSERT INTO chat_message_files (message_id, name, path, bucket, kind, size_bytes, mime_type, meta)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, uploaded_at`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		file.MessageID,
		file.Name,
		file.Path,
		file.Bucket,
		file.Kind,
		file.Size,
		file.MimeType,
		meta,
	).Scan(&file.ID, &file.UploadedAt)
	return mapUniqueViolation(err)
}

func (r *messageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	msg, err := scanMessage(conn(ctx, r.pool).QueryRow(ctx, messageSelect+`
        WHERE m.id=$1`, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return msg, nil
}

func (r *messageRepository) ListBefore(ctx context.Context, chatID string, before *time.Time, limit int) ([]domain.Message, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if before != nil {
		rows, err = conn(ctx, r.pool).Query(ctx, messageSelect+`
        WHERE m.chat_id=$1 AND m.created_at < $2
        ORDER BY m.created_at DESC, m.id DESC LIMIT $3`, chatID, *before, limit)
	} else {
		rows, err = conn(ctx, r.pool).Query(ctx, messageSelect+`
        WHERE m.chat_id=$1
        ORDER BY m.created_at DESC, m.id DESC LIMIT $2`, chatID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *msg)
	}
	return result, rows.Err()
}

func (r *messageRepository) Latest(ctx context.Context, chatID string) (*domain.Message, error) {
	msg, err := scanMessage(conn(ctx, r.pool).QueryRow(ctx, messageSelect+`
        WHERE m.chat_id=$1 ORDER BY m.created_at DESC, m.id DESC LIMIT 1`, chatID))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return msg, nil
}

func (r *messageRepository) CountUnread(ctx context.Context, chatID, readerID string) (int, error) {
	const query = `
        SELECT COUNT(*) FROM chat_messages
        WHERE chat_id=$1 AND sender_id<>$2 AND status='delivered'`
	var count int
	if err := conn(ctx, r.pool).QueryRow(ctx, query, chatID, readerID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *messageRepository) MarkSeen(ctx context.Context, chatID, readerID string) (int64, error) {
	const query = `
        UPDATE chat_messages SET status='seen'
        WHERE chat_id=$1 AND sender_id<>$2 AND status='delivered'`
	cmd, err := conn(ctx, r.pool).Exec(ctx, query, chatID, readerID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var (
		msg  domain.Message
		file struct {
			id, name, path, bucket, kind, mimeType *string
			size                                   *int64
			meta                                   []byte
			uploadedAt                             *time.Time
		}
	)
	if err := row.Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.Content,
		&msg.Sender.Kind,
		&msg.Sender.ID,
		&msg.Type,
		&msg.Status,
		&msg.CreatedAt,
		&file.id,
		&file.name,
		&file.path,
		&file.bucket,
		&file.kind,
		&file.size,
		&file.mimeType,
		&file.meta,
		&file.uploadedAt,
	); err != nil {
		return nil, err
	}
	if file.id == nil {
		return &msg, nil
	}
	msg.File = &domain.MessageFile{
		ID:        *file.id,
		MessageID: msg.ID,
		Name:      deref(file.name),
		Path:      deref(file.path),
		Bucket:    deref(file.bucket),
		Kind:      domain.MessageType(deref(file.kind)),
		MimeType:  deref(file.mimeType),
	}
	if file.size != nil {
		msg.File.Size = *file.size
	}
	if file.uploadedAt != nil {
		msg.File.UploadedAt = *file.uploadedAt
	}
	if len(file.meta) > 0 {
		var meta domain.FileMeta
		if err := json.Unmarshal(file.meta, &meta); err != nil {
			return nil, err
		}
		msg.File.Meta = &meta
	}
	return &msg, nil
}

