// Package session es el punto único de acceso a la identidad y al almacén.
// Client mantiene el estado de autenticación, renueva los tokens y ofrece las
// primitivas Query, Mutate y Subscribe al resto del cliente.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"vartalap/internal/backend"
	"vartalap/internal/domain"
)

const (
	defaultRefreshMargin   = time.Minute
	defaultMinRefreshDelay = 5 * time.Second
	refreshRetryDelay      = 15 * time.Second
)

type Options struct {
	Cache Cache
	// RefreshMargin adelanta la renovación respecto del vencimiento del access token.
	RefreshMargin time.Duration
	// MinRefreshDelay es la espera mínima entre renovaciones.
	MinRefreshDelay time.Duration
}

// Client es el contexto de sesión del proceso. Se crea con New, se arranca
// con Init y se cierra con Close; SignOut vuelve al estado sin autenticar.
type Client struct {
	logger   *zap.Logger
	be       backend.Backend
	cache    Cache
	margin   time.Duration
	minDelay time.Duration
	now      func() time.Time

	mu        sync.RWMutex
	state     domain.AuthState
	sess      *backend.Session
	listeners map[int]func(domain.AuthState)
	nextID    int

	refreshMu   sync.Mutex
	stopRefresh context.CancelFunc
	refreshDone chan struct{}
}

func New(logger *zap.Logger, be backend.Backend, opts Options) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Cache == nil {
		opts.Cache = noCache{}
	}
	if opts.RefreshMargin <= 0 {
		opts.RefreshMargin = defaultRefreshMargin
	}
	if opts.MinRefreshDelay <= 0 {
		opts.MinRefreshDelay = defaultMinRefreshDelay
	}
	return &Client{
		logger:    logger,
		be:        be,
		cache:     opts.Cache,
		margin:    opts.RefreshMargin,
		minDelay:  opts.MinRefreshDelay,
		now:       time.Now,
		state:     domain.AuthState{Status: domain.AuthLoading},
		listeners: make(map[int]func(domain.AuthState)),
	}
}

// Init comprueba la conexión y retoma la sesión guardada, si existe. Termina
// siempre en authenticated o unauthenticated; el error de conexión queda
// también en AuthState.
func (c *Client) Init(ctx context.Context) error {
	c.setState(domain.AuthState{Status: domain.AuthLoading})

	if err := c.be.Ping(ctx); err != nil {
		err = domain.AsFailure(err, domain.KindConnectivity)
		c.logger.Warn("backend unreachable", zap.Error(err))
		c.setState(domain.AuthState{Status: domain.AuthUnauthenticated, Err: err})
		return err
	}

	cached, err := c.cache.Load()
	if err != nil {
		c.logger.Warn("session cache unreadable", zap.Error(err))
	}
	if cached == nil {
		c.setState(domain.AuthState{Status: domain.AuthUnauthenticated})
		return nil
	}

	sess, err := c.be.Refresh(ctx, cached.RefreshToken)
	if err != nil {
		if domain.IsAuthFailure(err) {
			c.logger.Info("cached session no longer valid", zap.String("user_id", cached.User.ID))
			c.clearCache()
			c.setState(domain.AuthState{Status: domain.AuthUnauthenticated})
			return nil
		}
		c.setState(domain.AuthState{Status: domain.AuthUnauthenticated, Err: err})
		return err
	}
	if sess.User.ID == "" {
		sess.User = cached.User
	}
	c.establish(sess)
	return nil
}

// AuthState devuelve el estado actual.
func (c *Client) AuthState() domain.AuthState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// OnAuthChange registra fn para cada cambio de estado y la llama de inmediato
// con el estado actual. La función devuelta cancela el registro.
func (c *Client) OnAuthChange(fn func(domain.AuthState)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	state := c.state
	c.mu.Unlock()

	fn(state)
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// CurrentUser devuelve la identidad autenticada, si la hay.
func (c *Client) CurrentUser() (domain.Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sess == nil {
		return domain.Identity{}, false
	}
	return c.sess.User, true
}

func (c *Client) SignIn(ctx context.Context, email, password string) error {
	sess, err := c.be.SignIn(ctx, email, password)
	if err != nil {
		return domain.AsFailure(err, domain.KindUnknown)
	}
	c.establish(sess)
	return nil
}

// SignUp registra la cuenta. Si el servidor exige verificar el email devuelve
// verificationRequired y la sesión queda sin autenticar.
func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (verificationRequired bool, err error) {
	res, err := c.be.SignUp(ctx, email, password, displayName)
	if err != nil {
		return false, domain.AsFailure(err, domain.KindUnknown)
	}
	if res.Session == nil {
		return true, nil
	}
	c.establish(*res.Session)
	return false, nil
}

func (c *Client) VerifyEmail(ctx context.Context, email, code string) error {
	sess, err := c.be.VerifyEmail(ctx, email, code)
	if err != nil {
		return domain.AsFailure(err, domain.KindUnknown)
	}
	c.establish(sess)
	return nil
}

func (c *Client) ResendVerification(ctx context.Context, email string) error {
	return domain.AsFailure(c.be.ResendVerification(ctx, email), domain.KindUnknown)
}

// SignOut revoca el refresh token, borra la sesión guardada y pasa a
// unauthenticated. La revocación remota es best effort.
func (c *Client) SignOut(ctx context.Context) error {
	c.stopRefresher(false)

	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()

	c.clearCache()
	c.setState(domain.AuthState{Status: domain.AuthUnauthenticated})

	if sess == nil {
		return nil
	}
	if err := c.be.SignOut(ctx, sess.RefreshToken); err != nil {
		c.logger.Warn("remote sign out failed", zap.Error(err))
	}
	return nil
}

// Close detiene la renovación de tokens sin tocar la sesión guardada.
func (c *Client) Close() {
	c.stopRefresher(true)
}

// Refresh renueva el access token ahora. Si el servidor rechaza el refresh
// token la sesión expira.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.RLock()
	sess := c.sess
	c.mu.RUnlock()
	if sess == nil {
		return domain.AuthFailure(domain.ErrUnauthenticated)
	}

	next, err := c.be.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		if domain.IsAuthFailure(err) {
			c.expire(sess)
			return domain.AuthFailure(domain.ErrSessionExpired)
		}
		return err
	}
	if next.User.ID == "" {
		next.User = sess.User
	}

	c.mu.Lock()
	if c.sess != sess {
		// Otra renovación o un SignOut ganó la carrera.
		c.mu.Unlock()
		return nil
	}
	c.sess = &next
	c.mu.Unlock()
	c.saveCache(next)
	return nil
}

// accessToken devuelve el token vigente o una AuthFailure.
func (c *Client) accessToken() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sess == nil {
		return "", domain.AuthFailure(domain.ErrUnauthenticated)
	}
	return c.sess.AccessToken, nil
}

func (c *Client) establish(sess backend.Session) {
	c.stopRefresher(false)

	c.mu.Lock()
	c.sess = &sess
	c.mu.Unlock()

	c.saveCache(sess)
	c.logger.Info("session established", zap.String("user_id", sess.User.ID))
	c.setState(domain.AuthState{Status: domain.AuthAuthenticated})
	c.startRefresher()
}

// expire descarta sess si sigue siendo la sesión vigente.
func (c *Client) expire(sess *backend.Session) {
	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		return
	}
	c.sess = nil
	c.mu.Unlock()

	c.logger.Info("session expired", zap.String("user_id", sess.User.ID))
	c.clearCache()
	c.setState(domain.AuthState{
		Status: domain.AuthUnauthenticated,
		Err:    domain.AuthFailure(domain.ErrSessionExpired),
	})
}

func (c *Client) setState(state domain.AuthState) {
	c.mu.Lock()
	c.state = state
	listeners := make([]func(domain.AuthState), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

func (c *Client) saveCache(sess backend.Session) {
	err := c.cache.Save(Cached{User: sess.User, RefreshToken: sess.RefreshToken, SavedAt: c.now().UTC()})
	if err != nil {
		c.logger.Warn("could not save session", zap.Error(err))
	}
}

func (c *Client) clearCache() {
	if err := c.cache.Clear(); err != nil {
		c.logger.Warn("could not clear session", zap.Error(err))
	}
}

func isSessionExpired(err error) bool {
	return domain.IsAuthFailure(err) && errors.Is(err, domain.ErrSessionExpired)
}
