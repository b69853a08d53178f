package backend

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"vartalap/internal/domain"
	"vartalap/internal/realtime"
	"vartalap/internal/service"
)

var ErrUnknownTopic = errors.New("unknown realtime topic")

// Local atiende el cliente en el mismo proceso que los servicios. La identidad
// se obtiene del access token igual que en la API HTTP.
type Local struct {
	logger    *zap.Logger
	auth      *service.AuthService
	chats     *service.ChatService
	responder service.Responder
	health    func(ctx context.Context) error
}

func NewLocal(logger *zap.Logger, auth *service.AuthService, chats *service.ChatService, responder service.Responder, health func(ctx context.Context) error) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{logger: logger, auth: auth, chats: chats, responder: responder, health: health}
}

var _ Backend = (*Local)(nil)

func (l *Local) Ping(ctx context.Context) error {
	if l.health == nil {
		return nil
	}
	if err := l.health(ctx); err != nil {
		return domain.ConnectivityFailure(err)
	}
	return nil
}

func (l *Local) SignUp(ctx context.Context, email, password, displayName string) (SignUpResult, error) {
	res, err := l.auth.SignUp(ctx, service.SignUpInput{Email: email, Password: password, DisplayName: displayName})
	if err != nil {
		return SignUpResult{}, translate(err)
	}
	out := SignUpResult{VerificationRequired: res.VerificationRequired}
	if res.Tokens != nil {
		s := sessionFrom(res.User.Identity(), *res.Tokens)
		out.Session = &s
	}
	return out, nil
}

func (l *Local) VerifyEmail(ctx context.Context, email, code string) (Session, error) {
	res, err := l.auth.VerifyEmail(ctx, email, code)
	if err != nil {
		return Session{}, translate(err)
	}
	return l.fromResult(res)
}

func (l *Local) ResendVerification(ctx context.Context, email string) error {
	return translate(l.auth.ResendVerification(ctx, email))
}

func (l *Local) SignIn(ctx context.Context, email, password string) (Session, error) {
	res, err := l.auth.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, translate(err)
	}
	return l.fromResult(res)
}

func (l *Local) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	pair, err := l.auth.Refresh(ctx, refreshToken)
	if err != nil {
		return Session{}, translate(err)
	}
	claims, err := l.auth.Tokens().ParseAccessToken(pair.AccessToken)
	if err != nil {
		return Session{}, translate(fmt.Errorf("parse refreshed token: %w", err))
	}
	return sessionFrom(claims.Identity(), pair), nil
}

func (l *Local) SignOut(ctx context.Context, refreshToken string) error {
	return translate(l.auth.SignOut(ctx, refreshToken))
}

func (l *Local) Me(ctx context.Context, accessToken string) (domain.Identity, error) {
	owner, err := l.owner(accessToken)
	if err != nil {
		return domain.Identity{}, err
	}
	user, err := l.auth.CurrentUser(ctx, owner)
	if err != nil {
		return domain.Identity{}, translate(err)
	}
	return user.Identity(), nil
}

func (l *Local) ListChats(ctx context.Context, accessToken string) ([]domain.Chat, error) {
	owner, err := l.owner(accessToken)
	if err != nil {
		return nil, err
	}
	chats, err := l.chats.ListChats(ctx, owner)
	return chats, translate(err)
}

func (l *Local) CreateChat(ctx context.Context, accessToken string, title *string) (domain.Chat, error) {
	owner, err := l.owner(accessToken)
	if err != nil {
		return domain.Chat{}, err
	}
	chat, err := l.chats.CreateChat(ctx, owner, title)
	return chat, translate(err)
}

func (l *Local) ListMessages(ctx context.Context, accessToken, chatID string) ([]domain.Message, error) {
	owner, err := l.owner(accessToken)
	if err != nil {
		return nil, err
	}
	msgs, err := l.chats.ListMessages(ctx, owner, chatID)
	return msgs, translate(err)
}

func (l *Local) InsertUserMessage(ctx context.Context, accessToken, chatID, content string) (domain.Message, error) {
	owner, err := l.owner(accessToken)
	if err != nil {
		return domain.Message{}, err
	}
	msg, err := l.chats.InsertUserMessage(ctx, owner, chatID, content)
	return msg, translate(err)
}

func (l *Local) DispatchToResponder(ctx context.Context, accessToken, chatID, message string) (Reply, error) {
	owner, err := l.owner(accessToken)
	if err != nil {
		return Reply{}, err
	}
	if err := l.chats.EnsureOwned(ctx, owner, chatID); err != nil {
		return Reply{}, translate(err)
	}
	msg, err := l.responder.Respond(ctx, owner, chatID, message)
	if err != nil {
		l.logger.Warn("responder failed", zap.String("chat_id", chatID), zap.Error(err))
		return Reply{}, translate(err)
	}
	return Reply{ID: msg.ID, Content: msg.Content}, nil
}

func (l *Local) Watch(ctx context.Context, accessToken string, topic realtime.Topic) (realtime.Subscription, error) {
	owner, err := l.owner(accessToken)
	if err != nil {
		return nil, err
	}
	var sub realtime.Subscription
	switch kind, id := topic.Split(); kind {
	case realtime.KindChats:
		sub, err = l.chats.WatchChats(ctx, owner)
	case realtime.KindMessages:
		sub, err = l.chats.WatchMessages(ctx, owner, id)
	default:
		return nil, domain.ValidationFailure(fmt.Errorf("%w: %s", ErrUnknownTopic, topic))
	}
	if err != nil {
		return nil, translate(err)
	}
	return sub, nil
}

// owner resuelve el dueño a partir del access token.
func (l *Local) owner(accessToken string) (string, error) {
	if accessToken == "" {
		return "", domain.AuthFailure(domain.ErrUnauthenticated)
	}
	claims, err := l.auth.Tokens().ParseAccessToken(accessToken)
	if err != nil {
		if errors.Is(err, service.ErrJWTExpired) {
			return "", domain.AuthFailure(domain.ErrSessionExpired)
		}
		return "", domain.AuthFailure(domain.ErrUnauthenticated)
	}
	return claims.UserID, nil
}

func (l *Local) fromResult(res service.AuthResult) (Session, error) {
	if res.Tokens == nil {
		return Session{}, domain.AuthFailure(domain.ErrEmailUnverified)
	}
	return sessionFrom(res.User.Identity(), *res.Tokens), nil
}

func sessionFrom(user domain.Identity, pair service.TokenPair) Session {
	return Session{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	}
}
