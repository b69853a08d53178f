// Package backend define el almacén remoto que consume el cliente de sesión:
// autenticación, datos de chats y mensajes, y señales de cambio. Local lo
// implementa en proceso sobre los servicios; Remote habla con cmd/api.
//
// Todas las implementaciones devuelven errores como *domain.Failure.
package backend

import (
	"context"
	"time"

	"vartalap/internal/domain"
	"vartalap/internal/realtime"
)

// Session son las credenciales de una sesión abierta.
type Session struct {
	User         domain.Identity
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// SignUpResult trae la sesión, o nil si la cuenta debe verificar su email.
type SignUpResult struct {
	Session              *Session
	VerificationRequired bool
}

// Reply es la respuesta del responder; el mensaje ya quedó guardado.
type Reply struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type AuthAPI interface {
	Ping(ctx context.Context) error
	SignUp(ctx context.Context, email, password, displayName string) (SignUpResult, error)
	VerifyEmail(ctx context.Context, email, code string) (Session, error)
	ResendVerification(ctx context.Context, email string) error
	SignIn(ctx context.Context, email, password string) (Session, error)
	Refresh(ctx context.Context, refreshToken string) (Session, error)
	SignOut(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, accessToken string) (domain.Identity, error)
}

// DataAPI opera siempre en nombre del dueño del access token.
type DataAPI interface {
	ListChats(ctx context.Context, accessToken string) ([]domain.Chat, error)
	CreateChat(ctx context.Context, accessToken string, title *string) (domain.Chat, error)
	ListMessages(ctx context.Context, accessToken, chatID string) ([]domain.Message, error)
	InsertUserMessage(ctx context.Context, accessToken, chatID, content string) (domain.Message, error)
	DispatchToResponder(ctx context.Context, accessToken, chatID, message string) (Reply, error)
}

// Realtime abre suscripciones a un tema. Watch vuelve recién cuando la
// suscripción escucha, así una consulta posterior no pierde cambios.
type Realtime interface {
	Watch(ctx context.Context, accessToken string, topic realtime.Topic) (realtime.Subscription, error)
}

type Backend interface {
	AuthAPI
	DataAPI
	Realtime
}
