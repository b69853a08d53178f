package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vartalap/internal/domain"
)

// ErrChatNotOwned indica que el chat no existe o pertenece a otro usuario.
var ErrChatNotOwned = errors.New("chat not found for owner")

type MessageRepository interface {
	// Create inserta el mensaje solo si el chat pertenece a ownerID.
	Create(ctx context.Context, ownerID string, message domain.Message) (domain.Message, error)
	ListByChat(ctx context.Context, ownerID, chatID string) ([]domain.Message, error)
	ListRecent(ctx context.Context, ownerID, chatID string, limit int) ([]domain.Message, error)
}

type PgMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPgMessageRepository(pool *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{pool: pool}
}

func (r *PgMessageRepository) Create(ctx context.Context, ownerID string, message domain.Message) (domain.Message, error) {
	const query = `
		INSERT INTO messages (id, chat_id, role, content)
		SELECT $1, c.id, $3, $4
		FROM chats c
		WHERE c.id = $2 AND c.owner_id = $5
		RETURNING created_at
	`

	err := r.pool.QueryRow(ctx, query,
		message.ID,
		message.ChatID,
		string(message.Role),
		message.Content,
		ownerID,
	).Scan(&message.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Message{}, ErrChatNotOwned
	}
	if err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

func (r *PgMessageRepository) ListByChat(ctx context.Context, ownerID, chatID string) ([]domain.Message, error) {
	const query = `
		SELECT m.id, m.chat_id, m.role, m.content, m.created_at
		FROM messages m
		JOIN chats c ON c.id = m.chat_id
		WHERE m.chat_id = $1 AND c.owner_id = $2
		ORDER BY m.created_at ASC, m.id ASC
	`
	return r.list(ctx, query, chatID, ownerID)
}

// ListRecent devuelve los últimos limit mensajes, en orden ascendente.
func (r *PgMessageRepository) ListRecent(ctx context.Context, ownerID, chatID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
		SELECT id, chat_id, role, content, created_at FROM (
			SELECT m.id, m.chat_id, m.role, m.content, m.created_at
			FROM messages m
			JOIN chats c ON c.id = m.chat_id
			WHERE m.chat_id = $1 AND c.owner_id = $2
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT $3
		) recent
		ORDER BY created_at ASC, id ASC
	`
	return r.list(ctx, query, chatID, ownerID, limit)
}

func (r *PgMessageRepository) list(ctx context.Context, query string, args ...any) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var role string
		err = rows.Scan(
			&msg.ID,
			&msg.ChatID,
			&role,
			&msg.Content,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		msg.Role = domain.Role(role)
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}
