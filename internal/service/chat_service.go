package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vartalap/internal/domain"
	"vartalap/internal/realtime"
	"vartalap/internal/repository"
)

var ErrChatServiceNotConfigured = errors.New("chat service not configured")

// ChatService es el store de chats y mensajes visto por un usuario: toda
// operación recibe el ownerID y nunca expone filas de otro dueño.
type ChatService struct {
	logger   *zap.Logger
	chats    repository.ChatRepository
	messages repository.MessageRepository
	notifier realtime.Notifier
	maxLen   int
}

func NewChatService(logger *zap.Logger, chats repository.ChatRepository, messages repository.MessageRepository, notifier realtime.Notifier, maxLen int) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = realtime.NewMemoryNotifier()
	}
	if maxLen <= 0 {
		maxLen = domain.DefaultMaxMessageLength
	}
	return &ChatService{
		logger:   logger,
		chats:    chats,
		messages: messages,
		notifier: notifier,
		maxLen:   maxLen,
	}
}

// ListChats devuelve los chats del dueño, del más nuevo al más viejo.
func (s *ChatService) ListChats(ctx context.Context, ownerID string) ([]domain.Chat, error) {
	if s == nil || s.chats == nil {
		return nil, ErrChatServiceNotConfigured
	}
	return s.chats.ListByOwner(ctx, ownerID)
}

// CreateChat crea un chat. Un título vacío queda nulo y se muestra con el id.
func (s *ChatService) CreateChat(ctx context.Context, ownerID string, title *string) (domain.Chat, error) {
	if s == nil || s.chats == nil {
		return domain.Chat{}, ErrChatServiceNotConfigured
	}
	chat := domain.Chat{ID: uuid.NewString(), OwnerID: ownerID}
	if title != nil {
		if trimmed := strings.TrimSpace(*title); trimmed != "" {
			chat.Title = &trimmed
		}
	}

	created, err := s.chats.Create(ctx, chat)
	if err != nil {
		return domain.Chat{}, fmt.Errorf("create chat: %w", err)
	}
	s.publish(ctx, realtime.UserChatsTopic(ownerID))
	return created, nil
}

func (s *ChatService) ListMessages(ctx context.Context, ownerID, chatID string) ([]domain.Message, error) {
	if err := s.EnsureOwned(ctx, ownerID, chatID); err != nil {
		return nil, err
	}
	return s.messages.ListByChat(ctx, ownerID, chatID)
}

// InsertUserMessage valida y persiste un mensaje con rol user.
func (s *ChatService) InsertUserMessage(ctx context.Context, ownerID, chatID, content string) (domain.Message, error) {
	return s.insert(ctx, ownerID, chatID, domain.RoleUser, content)
}

// InsertAssistantMessage persiste la respuesta del asistente.
func (s *ChatService) InsertAssistantMessage(ctx context.Context, ownerID, chatID, content string) (domain.Message, error) {
	return s.insert(ctx, ownerID, chatID, domain.RoleAssistant, content)
}

// RecentMessages devuelve los últimos limit mensajes en orden ascendente.
func (s *ChatService) RecentMessages(ctx context.Context, ownerID, chatID string, limit int) ([]domain.Message, error) {
	if err := s.EnsureOwned(ctx, ownerID, chatID); err != nil {
		return nil, err
	}
	return s.messages.ListRecent(ctx, ownerID, chatID, limit)
}

// WatchChats escucha altas de chats del dueño.
func (s *ChatService) WatchChats(ctx context.Context, ownerID string) (realtime.Subscription, error) {
	return s.notifier.Subscribe(ctx, realtime.UserChatsTopic(ownerID))
}

// WatchMessages escucha altas de mensajes de un chat propio.
func (s *ChatService) WatchMessages(ctx context.Context, ownerID, chatID string) (realtime.Subscription, error) {
	if err := s.EnsureOwned(ctx, ownerID, chatID); err != nil {
		return nil, err
	}
	return s.notifier.Subscribe(ctx, realtime.ChatMessagesTopic(chatID))
}

func (s *ChatService) insert(ctx context.Context, ownerID, chatID string, role domain.Role, content string) (domain.Message, error) {
	if s == nil || s.messages == nil {
		return domain.Message{}, ErrChatServiceNotConfigured
	}
	text, err := domain.ValidateContent(content, s.maxLen)
	if err != nil {
		return domain.Message{}, err
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return domain.Message{}, domain.ValidationFailure(domain.ErrNoActiveChat)
	}

	msg, err := s.messages.Create(ctx, ownerID, domain.Message{
		ID:      uuid.NewString(),
		ChatID:  chatID,
		Role:    role,
		Content: text,
	})
	if err != nil {
		if errors.Is(err, repository.ErrChatNotOwned) || repository.IsInvalidID(err) {
			return domain.Message{}, domain.ErrChatNotFound
		}
		if repository.IsConstraintViolation(err) {
			return domain.Message{}, domain.ErrStoreRejected
		}
		return domain.Message{}, fmt.Errorf("insert %s message: %w", role, err)
	}
	s.publish(ctx, realtime.ChatMessagesTopic(chatID))
	return msg, nil
}

// EnsureOwned falla con domain.ErrChatNotFound si el chat no es de ownerID.
func (s *ChatService) EnsureOwned(ctx context.Context, ownerID, chatID string) error {
	if s == nil || s.chats == nil || s.messages == nil {
		return ErrChatServiceNotConfigured
	}
	if strings.TrimSpace(chatID) == "" {
		return domain.ErrChatNotFound
	}
	ok, err := s.chats.Exists(ctx, ownerID, chatID)
	if err != nil {
		if repository.IsInvalidID(err) {
			return domain.ErrChatNotFound
		}
		return err
	}
	if !ok {
		return domain.ErrChatNotFound
	}
	return nil
}

// publish avisa a los suscriptores. La escritura ya quedó confirmada, así que
// un fallo aquí solo se registra.
func (s *ChatService) publish(ctx context.Context, topic realtime.Topic) {
	if err := s.notifier.Publish(ctx, topic); err != nil {
		s.logger.Warn("realtime publish failed", zap.String("topic", string(topic)), zap.Error(err))
	}
}
