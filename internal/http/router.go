package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vartalap/internal/service"
)

// HealthFunc comprueba las dependencias del servicio (base de datos, broker).
type HealthFunc func(ctx context.Context) error

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	jwtSvc *service.JWTService,
	authH *AuthHandler,
	chatH *ChatHandler,
	actionH *ActionHandler,
	health HealthFunc,
) *gin.Engine {
	r := gin.New()
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.GET("/healthz", healthHandler(health))

	auth := r.Group("/auth")
	auth.POST("/signup", authH.SignUp)
	auth.POST("/verify", authH.Verify)
	auth.POST("/verify/resend", authH.ResendVerification)
	auth.POST("/login", authH.Login)
	auth.POST("/refresh", authH.Refresh)
	auth.POST("/logout", authH.Logout)

	protected := r.Group("/", JWTAuthMiddleware(jwtSvc))
	protected.GET("/me", authH.Me)
	protected.GET("/chats", chatH.ListChats)
	protected.POST("/chats", chatH.CreateChat)
	protected.GET("/chats/events", chatH.ChatEvents)
	protected.GET("/chats/:id/messages", chatH.ListMessages)
	protected.POST("/chats/:id/messages", chatH.PostMessage)
	protected.GET("/chats/:id/messages/events", chatH.MessageEvents)
	protected.POST("/actions/send-message", actionH.SendMessage)

	return r
}

func healthHandler(health HealthFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := health(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// zapLoggerMiddleware registra cada request con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fija Content-Type: application/json; los streams
// SSE lo sobrescriben.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
