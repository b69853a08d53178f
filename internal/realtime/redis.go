package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisPubSubClient es el subconjunto de *redis.Client que usa el notifier.
type redisPubSubClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisNotifier distribuye señales por Redis Pub/Sub entre varias instancias de API.
type RedisNotifier struct {
	client redisPubSubClient
	prefix string
	logger *zap.Logger
}

func NewRedisNotifier(client *redis.Client, logger *zap.Logger) *RedisNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisNotifier{client: client, prefix: "rt:", logger: logger}
}

func (n *RedisNotifier) channel(topic Topic) string {
	return n.prefix + string(topic)
}

func (n *RedisNotifier) Publish(ctx context.Context, topic Topic) error {
	return n.client.Publish(ctx, n.channel(topic), "").Err()
}

func (n *RedisNotifier) Subscribe(ctx context.Context, topic Topic) (Subscription, error) {
	ps := n.client.Subscribe(ctx, n.channel(topic))
	// Receive confirma la suscripción antes de devolverla.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := NewSignal(cancel)
	msgs := ps.Channel()

	go func() {
		defer ps.Close()
		for {
			select {
			case <-subCtx.Done():
				sub.Finish(ctx.Err())
				return
			case _, ok := <-msgs:
				if !ok {
					n.logger.Warn("redis pubsub channel closed", zap.String("topic", string(topic)))
					sub.Finish(ErrClosed)
					return
				}
				sub.Notify()
			}
		}
	}()

	return sub, nil
}
