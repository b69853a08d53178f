package chat

import (
	"sync"

	"vartalap/internal/domain"
)

// View es lo que la interfaz muestra para el chat activo. El contenido de
// los mensajes viene siempre del stream.
type View struct {
	ActiveChat string
	Input      string
	Sending    bool
	Typing     bool
	Stream     StreamState
	// ScrollSeq cambia cada vez que llega un snapshot nuevo del chat activo.
	ScrollSeq uint64
	// Notice es la última falla a mostrar para el chat activo, si la hay.
	Notice error
}

// Reconciler combina borradores, estados de envío y el stream del chat
// activo. No guarda contenido propio de mensajes.
type Reconciler struct {
	mu        sync.Mutex
	active    string
	drafts    map[string]string
	sends     map[string]SendState
	attempts  map[string]uint64
	notices   map[string]error
	stream    StreamState
	lastSeq   uint64
	scrollSeq uint64
}

func NewReconciler() *Reconciler {
	return &Reconciler{
		drafts:   make(map[string]string),
		sends:    make(map[string]SendState),
		attempts: make(map[string]uint64),
		notices:  make(map[string]error),
		stream:   StreamState{Status: StreamInactive},
	}
}

// Select cambia el chat activo. El stream anterior deja de mostrarse hasta
// que llegue el estado del nuevo chat.
func (r *Reconciler) Select(chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == chatID {
		return
	}
	r.active = chatID
	r.lastSeq = 0
	if chatID == "" {
		r.stream = StreamState{Status: StreamInactive}
	} else {
		r.stream = StreamState{ChatID: chatID, Status: StreamLoading}
	}
}

func (r *Reconciler) SetInput(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drafts[r.active] = text
}

// Sent limpia el borrador de chatID en cuanto el envío arranca.
func (r *Reconciler) Sent(chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.drafts, chatID)
	delete(r.notices, chatID)
}

// Rejected registra un envío rechazado antes de tocar el almacén.
func (r *Reconciler) Rejected(chatID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices[chatID] = err
}

// ApplySend incorpora una transición del pipeline. Los estados de un intento
// anterior al último visto en ese chat se descartan. Un fallo total devuelve
// el texto al borrador si el usuario no escribió otro mientras tanto.
func (r *Reconciler) ApplySend(st SendState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if chatID, seq := origin(st); chatID != "" {
		if seq < r.attempts[chatID] {
			return
		}
		r.attempts[chatID] = seq
	}
	switch s := st.(type) {
	case Persisting:
		r.sends[s.ChatID] = s
	case Dispatching:
		r.sends[s.ChatID] = s
	case SettledOK:
		r.sends[s.ChatID] = s
	case SettledPartial:
		r.sends[s.ChatID] = s
		r.notices[s.ChatID] = s.Err
	case SettledFailed:
		r.sends[s.ChatID] = s
		r.notices[s.ChatID] = s.Err
		if r.drafts[s.ChatID] == "" {
			r.drafts[s.ChatID] = s.Input
		}
	}
}

// ApplyStream incorpora un estado del stream. Los estados de otro chat se
// ignoran.
func (r *Reconciler) ApplyStream(st StreamState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st.ChatID != r.active {
		return
	}
	r.stream = st
	if st.Status == StreamReady && st.Seq != r.lastSeq {
		r.lastSeq = st.Seq
		r.scrollSeq++
	}
}

// DismissNotice borra el aviso del chat activo.
func (r *Reconciler) DismissNotice() {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.notices, r.active)
}

func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.sends[r.active]
	_, typing := st.(Dispatching)
	stream := r.stream
	stream.Messages = append([]domain.Message(nil), r.stream.Messages...)
	return View{
		ActiveChat: r.active,
		Input:      r.drafts[r.active],
		Sending:    st != nil && InFlight(st),
		Typing:     typing,
		Stream:     stream,
		ScrollSeq:  r.scrollSeq,
		Notice:     r.notices[r.active],
	}
}
