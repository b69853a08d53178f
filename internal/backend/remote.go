package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"vartalap/internal/domain"
)

// Remote habla con la API HTTP de cmd/api. Las suscripciones usan los streams
// SSE de /chats/events y /chats/:id/messages/events.
type Remote struct {
	baseURL string
	client  *http.Client
	stream  *http.Client
	logger  *zap.Logger
}

func NewRemote(baseURL string, timeout time.Duration, logger *zap.Logger) *Remote {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		// Los streams viven lo que dure la suscripción.
		stream: &http.Client{},
		logger: logger,
	}
}

var _ Backend = (*Remote)(nil)

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type tokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type authResponse struct {
	User                 domain.Identity `json:"user"`
	Tokens               *tokenPair      `json:"tokens"`
	VerificationRequired bool            `json:"verification_required"`
}

func (a authResponse) session() Session {
	return Session{
		User:         a.User,
		AccessToken:  a.Tokens.AccessToken,
		RefreshToken: a.Tokens.RefreshToken,
		ExpiresAt:    a.Tokens.ExpiresAt,
	}
}

func (r *Remote) Ping(ctx context.Context) error {
	return r.do(ctx, http.MethodGet, "/healthz", "", nil, nil)
}

func (r *Remote) SignUp(ctx context.Context, email, password, displayName string) (SignUpResult, error) {
	var out authResponse
	body := map[string]string{"email": email, "password": password, "display_name": displayName}
	if err := r.do(ctx, http.MethodPost, "/auth/signup", "", body, &out); err != nil {
		return SignUpResult{}, err
	}
	res := SignUpResult{VerificationRequired: out.VerificationRequired}
	if out.Tokens != nil {
		s := out.session()
		res.Session = &s
	}
	return res, nil
}

func (r *Remote) VerifyEmail(ctx context.Context, email, code string) (Session, error) {
	return r.authenticate(ctx, "/auth/verify", map[string]string{"email": email, "code": code})
}

func (r *Remote) ResendVerification(ctx context.Context, email string) error {
	return r.do(ctx, http.MethodPost, "/auth/verify/resend", "", map[string]string{"email": email}, nil)
}

func (r *Remote) SignIn(ctx context.Context, email, password string) (Session, error) {
	return r.authenticate(ctx, "/auth/login", map[string]string{"email": email, "password": password})
}

func (r *Remote) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	return r.authenticate(ctx, "/auth/refresh", map[string]string{"refresh_token": refreshToken})
}

func (r *Remote) SignOut(ctx context.Context, refreshToken string) error {
	return r.do(ctx, http.MethodPost, "/auth/logout", "", map[string]string{"refresh_token": refreshToken}, nil)
}

func (r *Remote) Me(ctx context.Context, accessToken string) (domain.Identity, error) {
	var out struct {
		User domain.Identity `json:"user"`
	}
	err := r.do(ctx, http.MethodGet, "/me", accessToken, nil, &out)
	return out.User, err
}

func (r *Remote) ListChats(ctx context.Context, accessToken string) ([]domain.Chat, error) {
	var out struct {
		Chats []domain.Chat `json:"chats"`
	}
	err := r.do(ctx, http.MethodGet, "/chats", accessToken, nil, &out)
	return out.Chats, err
}

func (r *Remote) CreateChat(ctx context.Context, accessToken string, title *string) (domain.Chat, error) {
	var out struct {
		Chat domain.Chat `json:"chat"`
	}
	body := map[string]*string{"title": title}
	err := r.do(ctx, http.MethodPost, "/chats", accessToken, body, &out)
	return out.Chat, err
}

func (r *Remote) ListMessages(ctx context.Context, accessToken, chatID string) ([]domain.Message, error) {
	var out struct {
		Messages []domain.Message `json:"messages"`
	}
	err := r.do(ctx, http.MethodGet, "/chats/"+url.PathEscape(chatID)+"/messages", accessToken, nil, &out)
	return out.Messages, err
}

func (r *Remote) InsertUserMessage(ctx context.Context, accessToken, chatID, content string) (domain.Message, error) {
	var out struct {
		Message domain.Message `json:"message"`
	}
	body := map[string]string{"content": content}
	err := r.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(chatID)+"/messages", accessToken, body, &out)
	return out.Message, err
}

func (r *Remote) DispatchToResponder(ctx context.Context, accessToken, chatID, message string) (Reply, error) {
	var out Reply
	body := map[string]string{"chat_id": chatID, "message": message}
	err := r.do(ctx, http.MethodPost, "/actions/send-message", accessToken, body, &out)
	return out, err
}

func (r *Remote) authenticate(ctx context.Context, path string, body any) (Session, error) {
	var out authResponse
	if err := r.do(ctx, http.MethodPost, path, "", body, &out); err != nil {
		return Session{}, err
	}
	if out.Tokens == nil {
		return Session{}, domain.AuthFailure(domain.ErrEmailUnverified)
	}
	return out.session(), nil
}

// do envía un request JSON y decodifica la respuesta en out, si no es nil.
func (r *Remote) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return domain.NewFailure(domain.KindUnknown, "", fmt.Errorf("marshal request: %w", err))
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return domain.NewFailure(domain.KindUnknown, "", fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return domain.ConnectivityFailure(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ConnectivityFailure(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode >= 400 {
		r.logger.Debug("api error status",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return statusFailure(resp.StatusCode, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return domain.NewFailure(domain.KindUnknown, "", fmt.Errorf("unmarshal response: %w", err))
	}
	return nil
}

// statusFailure traduce un status de error y su cuerpo a una Failure. Los
// códigos conocidos recuperan el sentinel de domain.
func statusFailure(status int, body []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	cause := domain.ErrorForCode(apiErr.Code)
	if cause == nil {
		msg := apiErr.Error
		if msg == "" {
			msg = http.StatusText(status)
		}
		cause = fmt.Errorf("%s (status %d)", msg, status)
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return domain.AuthFailure(cause)
	case status == http.StatusTooManyRequests:
		return domain.NewFailure(domain.KindAuth, errRateLimited.Error(), cause)
	case status == http.StatusBadRequest:
		return domain.ValidationFailure(cause)
	case status == http.StatusNotFound, status == http.StatusConflict:
		return domain.StoreFailure(cause)
	case errors.Is(cause, domain.ErrResponderFailed):
		return domain.NewFailure(domain.KindUnknown, domain.ErrResponderFailed.Error(), cause)
	case status >= 500:
		return domain.ConnectivityFailure(cause)
	}
	return domain.NewFailure(domain.KindUnknown, "", cause)
}
