package service

import (
	"strings"

	"vartalap/internal/domain"
	"vartalap/internal/llm"
)

const (
	defaultContextWindow = 10
	defaultSystemPrompt  = "You are a helpful assistant in a chat application. Answer the user's last message clearly and concisely."
)

// ContextBuilder arma la conversación que recibe el LLM a partir del historial
// del chat.
type ContextBuilder struct {
	systemPrompt string
	window       int
}

func NewContextBuilder(systemPrompt string, window int) *ContextBuilder {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}
	if window <= 0 {
		window = defaultContextWindow
	}
	return &ContextBuilder{systemPrompt: systemPrompt, window: window}
}

// Build conserva los últimos mensajes en orden y garantiza que pending sea el
// último turno del usuario, aunque todavía no figure en el historial.
func (b *ContextBuilder) Build(history []domain.Message, pending string) []llm.Turn {
	ordered := domain.SortMessages(history)
	if len(ordered) > b.window {
		ordered = ordered[len(ordered)-b.window:]
	}

	turns := make([]llm.Turn, 0, len(ordered)+2)
	turns = append(turns, llm.Turn{Role: llm.RoleSystem, Content: b.systemPrompt})
	for _, m := range ordered {
		role := llm.RoleUser
		if m.Role == domain.RoleAssistant {
			role = llm.RoleAssistant
		}
		turns = append(turns, llm.Turn{Role: role, Content: m.Content})
	}

	pending = strings.TrimSpace(pending)
	if pending == "" {
		return turns
	}
	last := turns[len(turns)-1]
	if last.Role != llm.RoleUser || last.Content != pending {
		turns = append(turns, llm.Turn{Role: llm.RoleUser, Content: pending})
	}
	return turns
}
