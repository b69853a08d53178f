package email

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Verification es el correo que confirma la dirección de un usuario nuevo.
type Verification struct {
	To          string
	DisplayName string
	Code        string
	ExpiresAt   time.Time
}

// Sender entrega correos de verificación.
type Sender interface {
	SendVerification(ctx context.Context, v Verification) error
}

// LogSender escribe el código en el log. Se usa cuando no hay SMTP configurado.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) SendVerification(_ context.Context, v Verification) error {
	s.logger.Info("verification code issued (smtp disabled)",
		zap.String("email", v.To),
		zap.String("code", v.Code),
		zap.Time("expires_at", v.ExpiresAt),
	)
	return nil
}
