package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"vartalap/internal/domain"
)

// ChatRepository persiste chats; toda lectura queda acotada al dueño.
type ChatRepository interface {
	Create(ctx context.Context, chat domain.Chat) (domain.Chat, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Chat, error)
	Exists(ctx context.Context, ownerID, chatID string) (bool, error)
}

type PgChatRepository struct {
	pool *pgxpool.Pool
}

func NewPgChatRepository(pool *pgxpool.Pool) *PgChatRepository {
	return &PgChatRepository{pool: pool}
}

// Create inserta el chat; created_at lo asigna la base.
func (r *PgChatRepository) Create(ctx context.Context, chat domain.Chat) (domain.Chat, error) {
	const query = `
		INSERT INTO chats (id, owner_id, title)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query, chat.ID, chat.OwnerID, chat.Title).Scan(&chat.CreatedAt)
	if err != nil {
		return domain.Chat{}, err
	}
	return chat, nil
}

func (r *PgChatRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Chat, error) {
	const query = `
		SELECT id, owner_id, title, created_at
		FROM chats
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := []domain.Chat{}
	for rows.Next() {
		var c domain.Chat
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Title, &c.CreatedAt); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return chats, nil
}

func (r *PgChatRepository) Exists(ctx context.Context, ownerID, chatID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM chats WHERE id = $1 AND owner_id = $2)`
	var ok bool
	if err := r.pool.QueryRow(ctx, query, chatID, ownerID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}
