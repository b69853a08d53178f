// Package realtime entrega señales de cambio por tema. Una señal solo indica
// que las filas cambiaron; el suscriptor vuelve a consultar el snapshot completo.
package realtime

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Topic identifica un conjunto de filas observables.
type Topic string

const (
	KindMessages = "messages"
	KindChats    = "chats"
)

func ChatMessagesTopic(chatID string) Topic {
	return Topic(KindMessages + ":" + chatID)
}

func UserChatsTopic(userID string) Topic {
	return Topic(KindChats + ":" + userID)
}

var ErrClosed = errors.New("realtime: subscription closed")

// Subscription recibe señales coalescidas. C se cierra cuando la suscripción
// termina; Err explica la causa si no fue un Close explícito.
type Subscription interface {
	C() <-chan struct{}
	Err() error
	Close() error
}

// Notifier publica y escucha cambios por tema.
type Notifier interface {
	Publish(ctx context.Context, topic Topic) error
	Subscribe(ctx context.Context, topic Topic) (Subscription, error)
}

// Signal es la base común de las suscripciones: canal de capacidad 1 para
// coalescer señales y cierre idempotente. Los drivers y los clientes remotos
// la usan para implementar Subscription.
type Signal struct {
	ch      chan struct{}
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	closed  bool
	err     error
	onClose func()
}

func NewSignal(onClose func()) *Signal {
	return &Signal{
		ch:      make(chan struct{}, 1),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

func (s *Signal) C() <-chan struct{} {
	return s.ch
}

func (s *Signal) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Notify entrega una señal sin bloquear; si ya hay una pendiente se descarta.
func (s *Signal) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Finish cierra la suscripción registrando la causa.
func (s *Signal) Finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.err = err
		close(s.ch)
		close(s.done)
		s.mu.Unlock()
		if s.onClose != nil {
			s.onClose()
		}
	})
}

func (s *Signal) Close() error {
	s.Finish(nil)
	return nil
}

// Split separa el tema en tipo ("chats" o "messages") e identificador.
func (t Topic) Split() (kind, id string) {
	kind, id, _ = strings.Cut(string(t), ":")
	return kind, id
}
