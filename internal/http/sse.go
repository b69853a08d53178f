package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vartalap/internal/realtime"
)

// Eventos SSE. "ready" confirma que la suscripción ya escucha, de modo que
// una consulta posterior no pierde cambios.
const (
	eventReady  = "ready"
	eventChange = "change"
	eventPing   = "ping"
	eventError  = "error"
)

// streamChanges reenvía las señales de sub como eventos SSE hasta que el
// cliente se desconecta o la suscripción termina.
func streamChanges(c *gin.Context, logger *zap.Logger, sub realtime.Subscription, ping time.Duration) {
	defer sub.Close()

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(200)

	send := func(event, data string) {
		c.SSEvent(event, data)
		c.Writer.Flush()
	}
	send(eventReady, "")

	ticker := time.NewTicker(ping)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.C():
			if !ok {
				if err := sub.Err(); err != nil && ctx.Err() == nil {
					logger.Warn("change stream ended", zap.Error(err), zap.String("path", c.FullPath()))
					send(eventError, "subscription dropped")
				}
				return
			}
			send(eventChange, "")
		case <-ticker.C:
			send(eventPing, "")
		}
	}
}
