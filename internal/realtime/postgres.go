package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PgNotifier usa LISTEN/NOTIFY de Postgres. Los triggers de la base notifican
// cada inserción, así que también ve escrituras hechas fuera de este proceso.
type PgNotifier struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPgNotifier(pool *pgxpool.Pool, logger *zap.Logger) *PgNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PgNotifier{pool: pool, logger: logger}
}

func (n *PgNotifier) Publish(ctx context.Context, topic Topic) error {
	_, err := n.pool.Exec(ctx, `SELECT pg_notify($1, '')`, string(topic))
	return err
}

// Subscribe reserva una conexión del pool mientras la suscripción viva.
func (n *PgNotifier) Subscribe(ctx context.Context, topic Topic) (Subscription, error) {
	conn, err := n.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen conn: %w", err)
	}
	channel := pgx.Identifier{string(topic)}.Sanitize()
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", topic, err)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	sub := NewSignal(cancel)

	go func() {
		defer releaseListener(pgListenConn{conn})
		for {
			_, err := conn.Conn().WaitForNotification(listenCtx)
			if err != nil {
				if listenCtx.Err() != nil {
					sub.Finish(ctx.Err())
					return
				}
				n.logger.Warn("listen connection lost", zap.String("topic", string(topic)), zap.Error(err))
				sub.Finish(err)
				return
			}
			sub.Notify()
		}
	}()

	return sub, nil
}

// listenConn es la conexión reservada por una suscripción.
type listenConn interface {
	closed() bool
	unlisten(ctx context.Context) error
	release()
	discard(ctx context.Context)
}

type pgListenConn struct{ conn *pgxpool.Conn }

func (c pgListenConn) closed() bool { return c.conn.Conn().IsClosed() }

func (c pgListenConn) unlisten(ctx context.Context) error {
	_, err := c.conn.Exec(ctx, "UNLISTEN *")
	return err
}

func (c pgListenConn) release() { c.conn.Release() }

func (c pgListenConn) discard(ctx context.Context) {
	_ = c.conn.Hijack().Close(ctx)
}

// releaseListener devuelve la conexión limpia al pool. Si UNLISTEN falla por
// cualquier motivo la conexión se cierra: puede seguir escuchando.
func releaseListener(c listenConn) {
	if c.closed() {
		c.release()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.unlisten(ctx); err != nil {
		c.discard(ctx)
		return
	}
	c.release()
}
