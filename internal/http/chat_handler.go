package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vartalap/internal/service"
)

// ChatHandler expone chats y mensajes del usuario autenticado.
type ChatHandler struct {
	logger *zap.Logger
	chats  *service.ChatService
	ping   time.Duration
}

func NewChatHandler(logger *zap.Logger, chats *service.ChatService) *ChatHandler {
	return &ChatHandler{logger: logger, chats: chats, ping: 25 * time.Second}
}

// ListChats maneja GET /chats.
func (h *ChatHandler) ListChats(c *gin.Context) {
	chats, err := h.chats.ListChats(c.Request.Context(), ownerID(c))
	if err != nil {
		writeError(c, h.logger, err, "could not list chats")
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// CreateChat maneja POST /chats.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req struct {
		Title *string `json:"title"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, h.logger, "create chat", err)
			return
		}
	}

	chat, err := h.chats.CreateChat(c.Request.Context(), ownerID(c), req.Title)
	if err != nil {
		writeError(c, h.logger, err, "could not create chat")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"chat": chat})
}

// ListMessages maneja GET /chats/:id/messages.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	messages, err := h.chats.ListMessages(c.Request.Context(), ownerID(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err, "could not list messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// PostMessage maneja POST /chats/:id/messages. Solo persiste el mensaje del
// usuario; la respuesta del asistente se pide aparte.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "post message", err)
		return
	}

	msg, err := h.chats.InsertUserMessage(c.Request.Context(), ownerID(c), c.Param("id"), req.Content)
	if err != nil {
		writeError(c, h.logger, err, "could not post message")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// ChatEvents maneja GET /chats/events.
func (h *ChatHandler) ChatEvents(c *gin.Context) {
	sub, err := h.chats.WatchChats(c.Request.Context(), ownerID(c))
	if err != nil {
		writeError(c, h.logger, err, "could not watch chats")
		return
	}
	streamChanges(c, h.logger, sub, h.ping)
}

// MessageEvents maneja GET /chats/:id/messages/events.
func (h *ChatHandler) MessageEvents(c *gin.Context) {
	sub, err := h.chats.WatchMessages(c.Request.Context(), ownerID(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err, "could not watch messages")
		return
	}
	streamChanges(c, h.logger, sub, h.ping)
}
