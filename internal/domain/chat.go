package domain

import (
	"fmt"
	"time"
)

const (
	chatIDDisplayLen = 8
	// DefaultTitleLayout genera títulos del estilo "Chat 2024-05-01 14:03:22".
	DefaultTitleLayout = "2006-01-02 15:04:05"
)

// Chat es un contenedor de conversación con un único dueño.
type Chat struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"-"`
	Title     *string   `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayTitle devuelve el título o, si falta, un recorte del identificador.
func (c Chat) DisplayTitle() string {
	if c.Title != nil && *c.Title != "" {
		return *c.Title
	}
	id := c.ID
	if len(id) > chatIDDisplayLen {
		id = id[:chatIDDisplayLen]
	}
	return "Chat " + id
}

// DefaultChatTitle construye el título por defecto a partir de un instante.
func DefaultChatTitle(now time.Time) string {
	return fmt.Sprintf("Chat %s", now.Local().Format(DefaultTitleLayout))
}
