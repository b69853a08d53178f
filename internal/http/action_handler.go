package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vartalap/internal/service"
)

// ActionHandler expone la acción que dispara la respuesta del asistente.
type ActionHandler struct {
	logger    *zap.Logger
	chats     *service.ChatService
	responder service.Responder
}

func NewActionHandler(logger *zap.Logger, chats *service.ChatService, responder service.Responder) *ActionHandler {
	return &ActionHandler{logger: logger, chats: chats, responder: responder}
}

// SendMessage maneja POST /actions/send-message. Devuelve {id, content} del
// mensaje del asistente; los clientes lo ven llegar por su suscripción.
func (h *ActionHandler) SendMessage(c *gin.Context) {
	var req struct {
		ChatID  string `json:"chat_id" binding:"required"`
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "send message", err)
		return
	}

	ctx := c.Request.Context()
	owner := ownerID(c)
	if err := h.chats.EnsureOwned(ctx, owner, req.ChatID); err != nil {
		writeError(c, h.logger, err, "could not send message")
		return
	}

	reply, err := h.responder.Respond(ctx, owner, req.ChatID, req.Message)
	if err != nil {
		h.logger.Warn("responder failed", zap.String("chat_id", req.ChatID), zap.Error(err))
		writeError(c, h.logger, err, "could not send message")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": reply.ID, "content": reply.Content})
}
