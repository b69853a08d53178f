package chat

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"vartalap/internal/domain"
	"vartalap/internal/realtime"
	"vartalap/internal/session"
)

type StreamStatus int

const (
	StreamInactive StreamStatus = iota
	StreamLoading
	StreamReady
	StreamError
)

func (s StreamStatus) String() string {
	switch s {
	case StreamInactive:
		return "inactive"
	case StreamLoading:
		return "loading"
	case StreamReady:
		return "ready"
	case StreamError:
		return "error"
	default:
		return "unknown"
	}
}

// StreamState es la vista de los mensajes de un chat. Seq aumenta con cada
// snapshot entregado.
type StreamState struct {
	ChatID   string
	Status   StreamStatus
	Messages []domain.Message
	Err      error
	Seq      uint64
}

// Stream mantiene a lo sumo una suscripción viva, la del chat activo. Cada
// Watch abre una generación nueva y las entregas de generaciones anteriores se
// descartan.
type Stream struct {
	logger   *zap.Logger
	sess     *session.Client
	onChange func(StreamState)

	mu     sync.Mutex
	gen    uint64
	handle *session.Handle
	state  StreamState

	emitMu sync.Mutex
}

func NewStream(logger *zap.Logger, sess *session.Client, onChange func(StreamState)) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{logger: logger, sess: sess, onChange: onChange}
}

// State devuelve una copia del estado actual.
func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Messages = append([]domain.Message(nil), s.state.Messages...)
	return st
}

// Watch cambia el chat observado. Libera la suscripción anterior antes de
// abrir la nueva; con chatID vacío el stream queda inactivo. ctx acota la
// vida de la suscripción.
func (s *Stream) Watch(ctx context.Context, chatID string) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	prev := s.handle
	s.handle = nil
	if chatID == "" {
		s.state = StreamState{Status: StreamInactive}
	} else {
		s.state = StreamState{ChatID: chatID, Status: StreamLoading}
	}
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	s.emit()
	if chatID == "" {
		return nil
	}

	h, err := session.Subscribe(ctx, s.sess, realtime.ChatMessagesTopic(chatID), listMessagesOp(chatID),
		func(msgs []domain.Message, err error) {
			s.deliver(gen, chatID, msgs, err)
		})

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		if h != nil {
			h.Close()
		}
		return nil
	}
	if err != nil {
		s.state = StreamState{ChatID: chatID, Status: StreamError, Err: err}
	} else {
		s.handle = h
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("watch messages failed", zap.String("chat_id", chatID), zap.Error(err))
		s.emit()
	}
	return err
}

// Close libera la suscripción y deja el stream inactivo.
func (s *Stream) Close() {
	s.mu.Lock()
	s.gen++
	prev := s.handle
	s.handle = nil
	s.state = StreamState{Status: StreamInactive}
	s.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

func (s *Stream) deliver(gen uint64, chatID string, msgs []domain.Message, err error) {
	s.mu.Lock()
	if s.gen != gen || s.state.ChatID != chatID {
		s.mu.Unlock()
		s.logger.Debug("stale delivery dropped", zap.String("chat_id", chatID))
		return
	}
	if err != nil {
		s.state.Status = StreamError
		s.state.Err = err
	} else {
		s.state.Status = StreamReady
		s.state.Err = nil
		s.state.Messages = domain.SortMessages(msgs)
		s.state.Seq++
	}
	s.mu.Unlock()
	s.emit()
}

// emit publica el estado vigente al momento de emitir, de modo que la última
// notificación siempre refleja el último estado.
func (s *Stream) emit() {
	if s.onChange == nil {
		return
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.onChange(s.State())
}
