package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"vartalap/internal/domain"
)

// startRefresher renueva el access token antes de que venza mientras haya
// sesión. Un error de conectividad se reintenta; uno de auth expira la sesión.
func (c *Client) startRefresher() {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.stopRefresh = cancel
	c.refreshDone = done

	go func() {
		defer close(done)
		timer := time.NewTimer(c.nextRefreshDelay())
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}

			err := c.Refresh(ctx)
			switch {
			case ctx.Err() != nil:
				return
			case err == nil:
				timer.Reset(c.nextRefreshDelay())
			case domain.IsAuthFailure(err):
				return
			default:
				c.logger.Warn("token refresh failed, retrying", zap.Error(err))
				timer.Reset(max(refreshRetryDelay, c.minDelay))
			}
		}
	}()
}

// stopRefresher cancela la renovación en curso. Solo Close espera a que la
// goroutine termine: un listener de OnAuthChange puede llamar SignOut desde
// la propia goroutine de renovación.
func (c *Client) stopRefresher(wait bool) {
	c.refreshMu.Lock()
	cancel, done := c.stopRefresh, c.refreshDone
	c.stopRefresh, c.refreshDone = nil, nil
	c.refreshMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if wait {
		<-done
	}
}

func (c *Client) nextRefreshDelay() time.Duration {
	c.mu.RLock()
	sess := c.sess
	c.mu.RUnlock()
	if sess == nil || sess.ExpiresAt.IsZero() {
		return c.minDelay
	}
	return max(sess.ExpiresAt.Sub(c.now())-c.margin, c.minDelay)
}
