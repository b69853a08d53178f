package session

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"vartalap/internal/backend"
	"vartalap/internal/domain"
	"vartalap/internal/realtime"
)

// Op es una operación sobre el almacén en nombre del usuario autenticado.
type Op[T any] func(ctx context.Context, api backend.DataAPI, accessToken string) (T, error)

// Query ejecuta una lectura. Si el access token venció se renueva una vez y
// se reintenta.
func Query[T any](ctx context.Context, c *Client, op Op[T]) (T, error) {
	return run(ctx, c, op)
}

// Mutate ejecuta una escritura. El reintento tras renovar el token es seguro
// porque un 401 se responde antes de escribir.
func Mutate[T any](ctx context.Context, c *Client, op Op[T]) (T, error) {
	return run(ctx, c, op)
}

func run[T any](ctx context.Context, c *Client, op Op[T]) (T, error) {
	var zero T
	token, err := c.accessToken()
	if err != nil {
		return zero, err
	}
	out, err := op(ctx, c.be, token)
	if err == nil || !isSessionExpired(err) {
		return out, err
	}

	if err := c.Refresh(ctx); err != nil {
		return zero, err
	}
	if token, err = c.accessToken(); err != nil {
		return zero, err
	}
	return op(ctx, c.be, token)
}

// Handle libera una suscripción. Close es idempotente; después de Close no
// se entregan más actualizaciones.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
}

func (h *Handle) Close() error {
	h.once.Do(func() {
		h.closed.Store(true)
		h.cancel()
	})
	return nil
}

// Closed indica si Close ya fue llamado.
func (h *Handle) Closed() bool {
	return h.closed.Load()
}

// Done se cierra cuando la goroutine de entrega termina.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait bloquea hasta que la suscripción termina por Close, ctx o falla.
func (h *Handle) Wait() {
	<-h.done
}

// Subscribe escucha topic y entrega a onUpdate el resultado de op: una vez al
// activarse la suscripción y de nuevo ante cada cambio. Las entregas son
// secuenciales. Si la suscripción se cae onUpdate recibe una
// SubscriptionFailure y no hay más entregas.
func Subscribe[T any](ctx context.Context, c *Client, topic realtime.Topic, op Op[T], onUpdate func(T, error)) (*Handle, error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub, err := Mutate(subCtx, c, func(ctx context.Context, _ backend.DataAPI, token string) (realtime.Subscription, error) {
		return c.be.Watch(ctx, token, topic)
	})
	if err != nil {
		cancel()
		return nil, err
	}

	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer sub.Close()

		deliver := func(v T, err error) {
			if subCtx.Err() != nil || h.closed.Load() {
				return
			}
			onUpdate(v, err)
		}
		fetch := func() {
			v, err := Query(subCtx, c, op)
			deliver(v, err)
		}

		fetch()
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-sub.C():
				if !ok {
					if subCtx.Err() != nil {
						return
					}
					err := sub.Err()
					if err == nil {
						err = domain.ErrSubscriptionDropped
					}
					c.logger.Warn("subscription dropped", zap.String("topic", string(topic)), zap.Error(err))
					if !domain.IsSubscriptionFailure(err) {
						err = domain.SubscriptionFailure(err)
					}
					var zero T
					deliver(zero, err)
					return
				}
				fetch()
			}
		}
	}()
	return h, nil
}
