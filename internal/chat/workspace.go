package chat

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"vartalap/internal/domain"
	"vartalap/internal/session"
)

// ChatList es el estado del directorio.
type ChatList struct {
	Chats   []domain.Chat
	Loading bool
	Err     error
}

// Snapshot es todo lo que la interfaz necesita para dibujarse.
type Snapshot struct {
	Chats ChatList
	View  View
}

type WorkspaceOptions struct {
	MaxMessageLength int
	// OnChange se invoca tras cada cambio de estado, desde cualquier goroutine.
	OnChange func(Snapshot)
}

// Workspace compone el directorio, el stream del chat activo, el pipeline y
// el reconciliador para una sesión autenticada.
type Workspace struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	dir      *Directory
	stream   *Stream
	pipeline *Pipeline
	rec      *Reconciler
	onChange func(Snapshot)

	mu          sync.Mutex
	chats       ChatList
	chatsHandle *session.Handle
	selectGen   uint64
	selectMu    sync.Mutex

	sends sync.WaitGroup
}

// NewWorkspace crea el workspace. ctx acota la vida de las suscripciones y
// de los envíos en curso.
func NewWorkspace(ctx context.Context, logger *zap.Logger, sess *session.Client, opts WorkspaceOptions) *Workspace {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	w := &Workspace{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		dir:      NewDirectory(logger, sess),
		pipeline: NewPipeline(logger, sess, opts.MaxMessageLength),
		rec:      NewReconciler(),
		onChange: opts.OnChange,
		chats:    ChatList{Loading: true},
	}
	w.stream = NewStream(logger, sess, func(st StreamState) {
		w.rec.ApplyStream(st)
		w.notify()
	})
	return w
}

// Start abre la suscripción a la lista de chats.
func (w *Workspace) Start() error {
	h, err := w.dir.Watch(w.ctx, func(chats []domain.Chat, err error) {
		w.mu.Lock()
		if err != nil {
			w.chats.Err = err
		} else {
			w.chats = ChatList{Chats: chats}
		}
		w.chats.Loading = false
		w.mu.Unlock()
		w.notify()
	})
	if err != nil {
		w.mu.Lock()
		w.chats = ChatList{Err: err}
		w.mu.Unlock()
		w.notify()
		return err
	}
	w.mu.Lock()
	w.chatsHandle = h
	w.mu.Unlock()
	return nil
}

// ReloadChats vuelve a consultar la lista completa de chats.
func (w *Workspace) ReloadChats() error {
	var chats []domain.Chat
	for c, err := range w.dir.ListChats(w.ctx) {
		if err != nil {
			w.mu.Lock()
			w.chats.Err = err
			w.mu.Unlock()
			w.notify()
			return err
		}
		chats = append(chats, c)
	}
	w.mu.Lock()
	w.chats = ChatList{Chats: chats}
	w.mu.Unlock()
	w.notify()
	return nil
}

// Select activa chatID; con "" no hay chat activo.
func (w *Workspace) Select(chatID string) error {
	return w.PrepareSelect(chatID)()
}

// PrepareSelect registra el pedido de activar chatID y devuelve la función
// que lo aplica. Los pedidos se ordenan al registrarse: si al ejecutarse ya
// hay uno más reciente, no hace nada.
func (w *Workspace) PrepareSelect(chatID string) func() error {
	w.mu.Lock()
	w.selectGen++
	gen := w.selectGen
	w.mu.Unlock()

	return func() error {
		w.selectMu.Lock()
		defer w.selectMu.Unlock()
		w.mu.Lock()
		stale := gen != w.selectGen
		w.mu.Unlock()
		if stale {
			return nil
		}
		w.rec.Select(chatID)
		w.notify()
		return w.stream.Watch(w.ctx, chatID)
	}
}

// NewChat crea un chat, lo activa y recarga la lista.
func (w *Workspace) NewChat(title *string) (string, error) {
	id, err := w.dir.CreateChat(w.ctx, title)
	if err != nil {
		return "", err
	}
	if err := w.Select(id); err != nil {
		return id, err
	}
	if err := w.ReloadChats(); err != nil {
		w.logger.Warn("reload chats after create failed", zap.Error(err))
	}
	return id, nil
}

func (w *Workspace) SetInput(text string) {
	w.rec.SetInput(text)
	w.notify()
}

// Submit envía el borrador del chat activo. El borrador se limpia antes de
// volver y el envío sigue en segundo plano; un rechazo previo al almacén se
// devuelve y queda como aviso.
func (w *Workspace) Submit() error {
	view := w.rec.View()
	attempt, err := w.pipeline.Begin(view.ActiveChat, view.Input)
	if err != nil {
		w.rec.Rejected(view.ActiveChat, err)
		w.notify()
		return err
	}
	w.rec.Sent(attempt.ChatID())
	w.rec.ApplySend(attempt.Pending())
	w.notify()

	w.sends.Add(1)
	go func() {
		defer w.sends.Done()
		attempt.Run(w.ctx, func(st SendState) {
			w.rec.ApplySend(st)
			w.notify()
		})
	}()
	return nil
}

func (w *Workspace) DismissNotice() {
	w.rec.DismissNotice()
	w.notify()
}

func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	chats := w.chats
	chats.Chats = append([]domain.Chat(nil), w.chats.Chats...)
	w.mu.Unlock()
	return Snapshot{Chats: chats, View: w.rec.View()}
}

// WaitSends espera a que terminen los envíos en curso.
func (w *Workspace) WaitSends() {
	w.sends.Wait()
}

// Close libera las suscripciones y cancela los envíos pendientes.
func (w *Workspace) Close() {
	w.mu.Lock()
	h := w.chatsHandle
	w.chatsHandle = nil
	w.mu.Unlock()
	if h != nil {
		h.Close()
	}
	w.stream.Close()
	w.cancel()
	w.sends.Wait()
}

func (w *Workspace) notify() {
	if w.onChange != nil {
		w.onChange(w.Snapshot())
	}
}
