package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"vartalap/internal/domain"
	"vartalap/internal/llm"
)

// Responder produce y persiste la respuesta del asistente para un chat.
type Responder interface {
	Respond(ctx context.Context, ownerID, chatID, message string) (domain.Message, error)
}

// ResponderService responde con el LLM configurado: lee el historial reciente,
// pide la respuesta y la guarda como mensaje del asistente.
type ResponderService struct {
	logger  *zap.Logger
	chats   *ChatService
	llm     llm.Client
	builder *ContextBuilder
	timeout time.Duration
}

func NewResponderService(logger *zap.Logger, chats *ChatService, client llm.Client, builder *ContextBuilder) *ResponderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if builder == nil {
		builder = NewContextBuilder("", 0)
	}
	return &ResponderService{
		logger:  logger,
		chats:   chats,
		llm:     client,
		builder: builder,
		timeout: 90 * time.Second,
	}
}

func (s *ResponderService) Respond(ctx context.Context, ownerID, chatID, message string) (domain.Message, error) {
	if s.chats == nil || s.llm == nil {
		return domain.Message{}, errors.New("responder not configured")
	}
	if _, err := domain.ValidateContent(message, s.chats.maxLen); err != nil {
		return domain.Message{}, err
	}

	history, err := s.chats.RecentMessages(ctx, ownerID, chatID, s.builder.window)
	if err != nil {
		return domain.Message{}, err
	}

	llmCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	reply, err := s.llm.Complete(llmCtx, s.builder.Build(history, message))
	if err != nil {
		s.logger.Warn("llm completion failed", zap.String("chat_id", chatID), zap.Error(err))
		return domain.Message{}, fmt.Errorf("%w: %v", domain.ErrResponderFailed, err)
	}

	saved, err := s.chats.InsertAssistantMessage(ctx, ownerID, chatID, reply)
	if err != nil {
		return domain.Message{}, fmt.Errorf("persist assistant message: %w", err)
	}
	s.logger.Info("assistant replied",
		zap.String("chat_id", chatID),
		zap.String("message_id", saved.ID),
		zap.Duration("elapsed", time.Since(start)),
	)
	return saved, nil
}
