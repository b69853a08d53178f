package domain

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultMaxMessageLength es el límite de runas por mensaje cuando no se configura otro.
const DefaultMaxMessageLength = 4000

// Role identifica al autor de un mensaje dentro de un chat.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message es un turno dentro de un chat. Nunca se edita ni se borra.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Before ordena por created_at y desempata por id.
func (m Message) Before(other Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

// SortMessages aplica el orden total de mensajes de un chat sin alterar el slice recibido.
func SortMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	copy(out, messages)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Before(out[j])
	})
	return out
}

// NormalizeContent recorta espacios; un contenido vacío tras el recorte no es válido.
func NormalizeContent(content string) string {
	return strings.TrimSpace(content)
}

// ValidateContent normaliza el texto y lo rechaza si queda vacío o supera maxLen runas.
// Un maxLen <= 0 usa DefaultMaxMessageLength.
func ValidateContent(content string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	text := NormalizeContent(content)
	if text == "" {
		return "", ValidationFailure(ErrEmptyMessage)
	}
	if utf8.RuneCountInString(text) > maxLen {
		return "", ValidationFailure(ErrMessageTooLong)
	}
	return text, nil
}
