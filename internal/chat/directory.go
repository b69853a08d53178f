package chat

import (
	"context"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"

	"vartalap/internal/backend"
	"vartalap/internal/domain"
	"vartalap/internal/realtime"
	"vartalap/internal/session"
)

// Directory lista y crea los chats del usuario autenticado.
type Directory struct {
	logger *zap.Logger
	sess   *session.Client
	now    func() time.Time
}

func NewDirectory(logger *zap.Logger, sess *session.Client) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{logger: logger, sess: sess, now: time.Now}
}

// ListChats devuelve una secuencia perezosa: cada iteración consulta el
// almacén, así que puede recorrerse de nuevo para obtener datos frescos. Un
// error se entrega una sola vez y corta la secuencia.
func (d *Directory) ListChats(ctx context.Context) iter.Seq2[domain.Chat, error] {
	return func(yield func(domain.Chat, error) bool) {
		chats, err := session.Query(ctx, d.sess, listChatsOp)
		if err != nil {
			yield(domain.Chat{}, err)
			return
		}
		for _, c := range chats {
			if !yield(c, nil) {
				return
			}
		}
	}
}

// CreateChat crea un chat con title o con un título por defecto derivado de
// la hora. El id devuelto puede activarse de inmediato.
func (d *Directory) CreateChat(ctx context.Context, title *string) (string, error) {
	name := ""
	if title != nil {
		name = strings.TrimSpace(*title)
	}
	if name == "" {
		name = domain.DefaultChatTitle(d.now())
	}

	chat, err := session.Mutate(ctx, d.sess, func(ctx context.Context, api backend.DataAPI, token string) (domain.Chat, error) {
		return api.CreateChat(ctx, token, &name)
	})
	if err != nil {
		d.logger.Warn("create chat failed", zap.Error(err))
		return "", err
	}
	d.logger.Debug("chat created", zap.String("chat_id", chat.ID))
	return chat.ID, nil
}

// Watch entrega la lista completa al activarse y ante cada alta de chat.
func (d *Directory) Watch(ctx context.Context, onUpdate func([]domain.Chat, error)) (*session.Handle, error) {
	user, ok := d.sess.CurrentUser()
	if !ok {
		return nil, domain.AuthFailure(domain.ErrUnauthenticated)
	}
	return session.Subscribe(ctx, d.sess, realtime.UserChatsTopic(user.ID), listChatsOp, onUpdate)
}
