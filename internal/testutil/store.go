// Package testutil reune dobles en memoria compartidos por los tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"vartalap/internal/domain"
	"vartalap/internal/repository"
)

// Store guarda usuarios, chats y mensajes en memoria con las mismas reglas de
// dueño y orden que los repositorios de Postgres. El reloj avanza un
// milisegundo por inserción para que created_at sea estrictamente creciente.
type Store struct {
	mu       sync.Mutex
	clock    time.Time
	users    map[string]domain.User
	chats    map[string]domain.Chat
	messages []domain.Message

	// FailMessages, si no es nil, se devuelve en cada alta de mensaje.
	FailMessages error
}

func NewStore() *Store {
	return &Store{
		clock: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
		users: make(map[string]domain.User),
		chats: make(map[string]domain.Chat),
	}
}

func (s *Store) tick() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

func (s *Store) Users() repository.UserRepository       { return userRepo{s} }
func (s *Store) Chats() repository.ChatRepository       { return chatRepo{s} }
func (s *Store) Messages() repository.MessageRepository { return messageRepo{s} }

// MessageCount cuenta los mensajes de un chat.
func (s *Store) MessageCount(chatID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.ChatID == chatID {
			n++
		}
	}
	return n
}

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	r.s.users[user.ID] = user
	return nil
}

func (r userRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, pgx.ErrNoRows
}

func (r userRepo) UpdateOTP(_ context.Context, id, otpHash string, otpExpiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.OtpCodeHash = otpHash
	u.OtpExpiresAt = &otpExpiresAt
	r.s.users[id] = u
	return nil
}

func (r userRepo) VerifyEmail(_ context.Context, id string, verifiedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.EmailVerifiedAt = &verifiedAt
	u.OtpCodeHash = ""
	u.OtpExpiresAt = nil
	r.s.users[id] = u
	return nil
}

type chatRepo struct{ s *Store }

func (r chatRepo) Create(_ context.Context, chat domain.Chat) (domain.Chat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	chat.CreatedAt = r.s.tick()
	r.s.chats[chat.ID] = chat
	return chat, nil
}

func (r chatRepo) ListByOwner(_ context.Context, ownerID string) ([]domain.Chat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.Chat{}
	for _, c := range r.s.chats {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r chatRepo) Exists(_ context.Context, ownerID, chatID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.chats[chatID]
	return ok && c.OwnerID == ownerID, nil
}

type messageRepo struct{ s *Store }

func (r messageRepo) Create(_ context.Context, ownerID string, msg domain.Message) (domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailMessages != nil {
		return domain.Message{}, r.s.FailMessages
	}
	c, ok := r.s.chats[msg.ChatID]
	if !ok || c.OwnerID != ownerID {
		return domain.Message{}, repository.ErrChatNotOwned
	}
	msg.CreatedAt = r.s.tick()
	r.s.messages = append(r.s.messages, msg)
	return msg, nil
}

func (r messageRepo) ListByChat(_ context.Context, ownerID, chatID string) ([]domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.chats[chatID]
	out := []domain.Message{}
	if !ok || c.OwnerID != ownerID {
		return out, nil
	}
	for _, m := range r.s.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return domain.SortMessages(out), nil
}

func (r messageRepo) ListRecent(ctx context.Context, ownerID, chatID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 10
	}
	all, err := r.ListByChat(ctx, ownerID, chatID)
	if err != nil {
		return nil, err
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}
