// Package backendtest ofrece un backend en memoria con inyección de fallas
// para los tests del cliente de sesión y de los componentes de chat.
package backendtest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"vartalap/internal/backend"
	"vartalap/internal/domain"
	"vartalap/internal/email"
	"vartalap/internal/llm"
	"vartalap/internal/realtime"
	"vartalap/internal/service"
	"vartalap/internal/testutil"
)

// Op nombra una operación del backend para inyectar fallas o bloquearla.
type Op string

const (
	OpPing         Op = "ping"
	OpSignUp       Op = "sign_up"
	OpSignIn       Op = "sign_in"
	OpRefresh      Op = "refresh"
	OpSignOut      Op = "sign_out"
	OpListChats    Op = "list_chats"
	OpCreateChat   Op = "create_chat"
	OpListMessages Op = "list_messages"
	OpInsertUser   Op = "insert_user_message"
	OpDispatch     Op = "dispatch"
	OpWatch        Op = "watch"
)

// Fake es un backend.Local real sobre testutil.Store con ganchos por operación.
type Fake struct {
	*backend.Local

	Store    *testutil.Store
	LLM      *llm.MockClient
	Notifier *realtime.MemoryNotifier
	Codes    *CodeSink

	mu     sync.Mutex
	errs   map[Op]error
	gates  map[Op]chan struct{}
	calls  map[Op]int
	active map[Op]int
}

type Options struct {
	AccessTTL            time.Duration
	RequireVerifiedEmail bool
	MaxMessageLength     int
}

func New(opts Options) *Fake {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	logger := zap.NewNop()
	store := testutil.NewStore()
	notifier := realtime.NewMemoryNotifier()
	codes := &CodeSink{}
	mock := &llm.MockClient{Response: "assistant reply"}

	jwtSvc := service.NewJWTService("test-secret", opts.AccessTTL, time.Hour, nil)
	auth := service.NewAuthService(logger, store.Users(), jwtSvc, codes, service.AuthOptions{
		RequireVerifiedEmail: opts.RequireVerifiedEmail,
	})
	chats := service.NewChatService(logger, store.Chats(), store.Messages(), notifier, opts.MaxMessageLength)
	responder := service.NewResponderService(logger, chats, mock, nil)

	return &Fake{
		Local:    backend.NewLocal(logger, auth, chats, responder, nil),
		Store:    store,
		LLM:      mock,
		Notifier: notifier,
		Codes:    codes,
		errs:     make(map[Op]error),
		gates:    make(map[Op]chan struct{}),
		calls:    make(map[Op]int),
		active:   make(map[Op]int),
	}
}

var _ backend.Backend = (*Fake)(nil)

// Fail hace que op devuelva err hasta que se llame Fail(op, nil).
func (f *Fake) Fail(op Op, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

// Block detiene las llamadas a op hasta que se invoque la función devuelta.
func (f *Fake) Block(op Op) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[op] = gate
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gates[op] == gate {
				delete(f.gates, op)
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Calls cuenta las llamadas a op, incluidas las que fallaron.
func (f *Fake) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Waiting indica cuántas llamadas a op están bloqueadas en este momento.
func (f *Fake) Waiting(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[op]
}

func (f *Fake) before(ctx context.Context, op Op) error {
	f.mu.Lock()
	f.calls[op]++
	gate := f.gates[op]
	f.mu.Unlock()

	if gate != nil {
		f.mu.Lock()
		f.active[op]++
		f.mu.Unlock()
		select {
		case <-gate:
		case <-ctx.Done():
		}
		f.mu.Lock()
		f.active[op]--
		f.mu.Unlock()
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs[op]
}

func (f *Fake) Ping(ctx context.Context) error {
	if err := f.before(ctx, OpPing); err != nil {
		return err
	}
	return f.Local.Ping(ctx)
}

func (f *Fake) SignUp(ctx context.Context, emailAddr, password, displayName string) (backend.SignUpResult, error) {
	if err := f.before(ctx, OpSignUp); err != nil {
		return backend.SignUpResult{}, err
	}
	return f.Local.SignUp(ctx, emailAddr, password, displayName)
}

func (f *Fake) SignIn(ctx context.Context, emailAddr, password string) (backend.Session, error) {
	if err := f.before(ctx, OpSignIn); err != nil {
		return backend.Session{}, err
	}
	return f.Local.SignIn(ctx, emailAddr, password)
}

func (f *Fake) Refresh(ctx context.Context, refreshToken string) (backend.Session, error) {
	if err := f.before(ctx, OpRefresh); err != nil {
		return backend.Session{}, err
	}
	return f.Local.Refresh(ctx, refreshToken)
}

func (f *Fake) SignOut(ctx context.Context, refreshToken string) error {
	if err := f.before(ctx, OpSignOut); err != nil {
		return err
	}
	return f.Local.SignOut(ctx, refreshToken)
}

func (f *Fake) ListChats(ctx context.Context, accessToken string) ([]domain.Chat, error) {
	if err := f.before(ctx, OpListChats); err != nil {
		return nil, err
	}
	return f.Local.ListChats(ctx, accessToken)
}

func (f *Fake) CreateChat(ctx context.Context, accessToken string, title *string) (domain.Chat, error) {
	if err := f.before(ctx, OpCreateChat); err != nil {
		return domain.Chat{}, err
	}
	return f.Local.CreateChat(ctx, accessToken, title)
}

func (f *Fake) ListMessages(ctx context.Context, accessToken, chatID string) ([]domain.Message, error) {
	if err := f.before(ctx, OpListMessages); err != nil {
		return nil, err
	}
	return f.Local.ListMessages(ctx, accessToken, chatID)
}

func (f *Fake) InsertUserMessage(ctx context.Context, accessToken, chatID, content string) (domain.Message, error) {
	if err := f.before(ctx, OpInsertUser); err != nil {
		return domain.Message{}, err
	}
	return f.Local.InsertUserMessage(ctx, accessToken, chatID, content)
}

func (f *Fake) DispatchToResponder(ctx context.Context, accessToken, chatID, message string) (backend.Reply, error) {
	if err := f.before(ctx, OpDispatch); err != nil {
		return backend.Reply{}, err
	}
	return f.Local.DispatchToResponder(ctx, accessToken, chatID, message)
}

func (f *Fake) Watch(ctx context.Context, accessToken string, topic realtime.Topic) (realtime.Subscription, error) {
	if err := f.before(ctx, OpWatch); err != nil {
		return nil, err
	}
	return f.Local.Watch(ctx, accessToken, topic)
}

// CodeSink guarda el último código de verificación enviado por email.
type CodeSink struct {
	mu   sync.Mutex
	last map[string]string
}

func (s *CodeSink) SendVerification(_ context.Context, v email.Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		s.last = make(map[string]string)
	}
	s.last[v.To] = v.Code
	return nil
}

// Code devuelve el último código enviado a to.
func (s *CodeSink) Code(to string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[to]
}
