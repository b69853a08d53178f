// Package responder reenvía el pedido de respuesta a un endpoint externo
// (una función serverless) que escribe el mensaje del asistente directamente
// en la base.
package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"vartalap/internal/domain"
)

const actionName = "sendMessage"

// HTTPDispatcher llama al endpoint con el formato de una acción: nombre,
// input y variables de sesión con el usuario que origina el pedido.
type HTTPDispatcher struct {
	url    string
	secret string
	client *http.Client
	logger *zap.Logger
}

func NewHTTPDispatcher(url, secret string, logger *zap.Logger) *HTTPDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPDispatcher{
		url:    strings.TrimSpace(url),
		secret: secret,
		client: &http.Client{Timeout: 90 * time.Second},
		logger: logger,
	}
}

type actionRequest struct {
	Action struct {
		Name string `json:"name"`
	} `json:"action"`
	Input            actionInput       `json:"input"`
	SessionVariables map[string]string `json:"session_variables"`
}

type actionInput struct {
	ChatID  string `json:"chat_id"`
	Message string `json:"message"`
}

type actionResponse struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Message string `json:"message,omitempty"`
}

func (d *HTTPDispatcher) Respond(ctx context.Context, ownerID, chatID, message string) (domain.Message, error) {
	if d.url == "" {
		return domain.Message{}, fmt.Errorf("%w: responder url not configured", domain.ErrResponderFailed)
	}
	var body actionRequest
	body.Action.Name = actionName
	body.Input = actionInput{ChatID: chatID, Message: message}
	body.SessionVariables = map[string]string{"x-user-id": ownerID}

	payload, err := json.Marshal(body)
	if err != nil {
		return domain.Message{}, fmt.Errorf("marshal action: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return domain.Message{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.secret != "" {
		req.Header.Set("X-Responder-Secret", d.secret)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", domain.ErrResponderFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: read response: %v", domain.ErrResponderFailed, err)
	}
	var out actionResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode >= 400 {
		d.logger.Warn("responder error status",
			zap.Int("status", resp.StatusCode),
			zap.String("chat_id", chatID),
			zap.String("message", out.Message),
		)
		return domain.Message{}, fmt.Errorf("%w: status=%d", domain.ErrResponderFailed, resp.StatusCode)
	}
	if out.ID == "" {
		return domain.Message{}, fmt.Errorf("%w: empty response", domain.ErrResponderFailed)
	}

	return domain.Message{
		ID:      out.ID,
		ChatID:  chatID,
		Role:    domain.RoleAssistant,
		Content: out.Content,
	}, nil
}
