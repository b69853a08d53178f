// Package chat reune los componentes del cliente de chat: el directorio de
// chats, el stream de mensajes del chat activo, el pipeline de envío y el
// reconciliador que deriva el estado visible. Workspace los compone.
package chat

import (
	"context"
	"sort"

	"vartalap/internal/backend"
	"vartalap/internal/domain"
)

func listChatsOp(ctx context.Context, api backend.DataAPI, token string) ([]domain.Chat, error) {
	chats, err := api.ListChats(ctx, token)
	if err != nil {
		return nil, err
	}
	return sortChats(chats), nil
}

func listMessagesOp(chatID string) func(context.Context, backend.DataAPI, string) ([]domain.Message, error) {
	return func(ctx context.Context, api backend.DataAPI, token string) ([]domain.Message, error) {
		return api.ListMessages(ctx, token, chatID)
	}
}

// sortChats ordena del más nuevo al más viejo; a igual fecha desempata por id.
func sortChats(chats []domain.Chat) []domain.Chat {
	out := make([]domain.Chat, len(chats))
	copy(out, chats)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
