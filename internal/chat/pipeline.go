package chat

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"vartalap/internal/backend"
	"vartalap/internal/domain"
	"vartalap/internal/session"
)

// SendState es el estado de un intento de envío. Las variantes son Idle,
// Persisting, Dispatching, SettledOK, SettledPartial y SettledFailed. Seq
// identifica el intento: crece con cada Begin del pipeline.
type SendState interface {
	isSendState()
}

type Idle struct{}

// Persisting: se está guardando el mensaje del usuario.
type Persisting struct {
	ChatID string
	Seq    uint64
	Text   string
}

// Dispatching: el mensaje quedó guardado y se espera al responder.
type Dispatching struct {
	ChatID  string
	Seq     uint64
	Message domain.Message
}

type SettledOK struct {
	ChatID  string
	Seq     uint64
	Message domain.Message
	Reply   backend.Reply
}

// SettledPartial: el mensaje del usuario quedó guardado pero el responder
// falló. Err es una PartialSendFailure.
type SettledPartial struct {
	ChatID  string
	Seq     uint64
	Message domain.Message
	Err     error
}

// SettledFailed: no se guardó nada. Input es el texto original para
// devolverlo al campo de entrada.
type SettledFailed struct {
	ChatID string
	Seq    uint64
	Input  string
	Err    error
}

func (Idle) isSendState()           {}
func (Persisting) isSendState()     {}
func (Dispatching) isSendState()    {}
func (SettledOK) isSendState()      {}
func (SettledPartial) isSendState() {}
func (SettledFailed) isSendState()  {}

// InFlight indica si st corresponde a un envío sin terminar.
func InFlight(st SendState) bool {
	switch st.(type) {
	case Persisting, Dispatching:
		return true
	default:
		return false
	}
}

// origin devuelve el chat y el intento de st; Idle no tiene origen.
func origin(st SendState) (chatID string, seq uint64) {
	switch s := st.(type) {
	case Persisting:
		return s.ChatID, s.Seq
	case Dispatching:
		return s.ChatID, s.Seq
	case SettledOK:
		return s.ChatID, s.Seq
	case SettledPartial:
		return s.ChatID, s.Seq
	case SettledFailed:
		return s.ChatID, s.Seq
	default:
		return "", 0
	}
}

// Pipeline ejecuta el envío en dos fases: guardar el mensaje del usuario y
// después invocar al responder. Admite un solo envío en curso por chat; un
// segundo intento se rechaza.
type Pipeline struct {
	logger *zap.Logger
	sess   *session.Client
	maxLen int

	mu       sync.Mutex
	inFlight map[string]struct{}
	seq      uint64
}

func NewPipeline(logger *zap.Logger, sess *session.Client, maxLen int) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		logger:   logger,
		sess:     sess,
		maxLen:   maxLen,
		inFlight: make(map[string]struct{}),
	}
}

// Attempt es un envío aceptado por Begin. El chat queda reservado hasta que
// se llame a Run o a Cancel; uno de los dos es obligatorio.
type Attempt struct {
	p      *Pipeline
	chatID string
	seq    uint64
	input  string
	text   string
	once   sync.Once
}

func (a *Attempt) ChatID() string { return a.chatID }

func (a *Attempt) Seq() uint64 { return a.seq }

// Pending es el estado con el que arranca el intento.
func (a *Attempt) Pending() Persisting {
	return Persisting{ChatID: a.chatID, Seq: a.seq, Text: a.text}
}

// Text es el contenido normalizado que se enviará.
func (a *Attempt) Text() string { return a.text }

// Begin valida el envío sin tocar el almacén y reserva el chat. Los rechazos
// son ValidationFailure: texto vacío o demasiado largo, sin chat activo o con
// otro envío en curso.
func (p *Pipeline) Begin(chatID, input string) (*Attempt, error) {
	text, err := domain.ValidateContent(input, p.maxLen)
	if err != nil {
		return nil, err
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, domain.ValidationFailure(domain.ErrNoActiveChat)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inFlight[chatID]; busy {
		return nil, domain.ValidationFailure(domain.ErrSendInFlight)
	}
	p.inFlight[chatID] = struct{}{}
	p.seq++
	return &Attempt{p: p, chatID: chatID, seq: p.seq, input: input, text: text}, nil
}

// InFlight indica si hay un envío en curso para chatID.
func (p *Pipeline) InFlight(chatID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, busy := p.inFlight[chatID]
	return busy
}

// Send es Begin seguido de Run.
func (p *Pipeline) Send(ctx context.Context, chatID, input string, observe func(SendState)) (SendState, error) {
	a, err := p.Begin(chatID, input)
	if err != nil {
		return nil, err
	}
	return a.Run(ctx, observe), nil
}

// Run ejecuta las dos fases y devuelve el estado final. observe recibe cada
// transición. La falla del responder no deshace el mensaje ya guardado. Run
// solo puede ejecutarse una vez; llamadas posteriores devuelven Idle.
func (a *Attempt) Run(ctx context.Context, observe func(SendState)) SendState {
	var final SendState = Idle{}
	a.once.Do(func() {
		final = a.run(ctx, observe)
		// El chat se libera antes de publicar el estado final para que un
		// nuevo envío sea posible en cuanto se observa; Seq separa los intentos.
		a.p.release(a.chatID)
		if observe != nil {
			observe(final)
		}
	})
	return final
}

// Cancel libera el chat sin tocar el almacén. No hace nada si el intento ya
// se ejecutó.
func (a *Attempt) Cancel() {
	a.once.Do(func() {
		a.p.release(a.chatID)
	})
}

// run ejecuta las fases y devuelve el estado final sin publicarlo.
func (a *Attempt) run(ctx context.Context, observe func(SendState)) SendState {
	emit := func(st SendState) {
		if observe != nil {
			observe(st)
		}
	}
	logger := a.p.logger.With(zap.String("chat_id", a.chatID))

	emit(a.Pending())
	msg, err := session.Mutate(ctx, a.p.sess, func(ctx context.Context, api backend.DataAPI, token string) (domain.Message, error) {
		return api.InsertUserMessage(ctx, token, a.chatID, a.text)
	})
	if err != nil {
		logger.Warn("persist user message failed", zap.Error(err))
		return SettledFailed{ChatID: a.chatID, Seq: a.seq, Input: a.input, Err: domain.AsFailure(err, domain.KindUnknown)}
	}

	emit(Dispatching{ChatID: a.chatID, Seq: a.seq, Message: msg})
	reply, err := session.Mutate(ctx, a.p.sess, func(ctx context.Context, api backend.DataAPI, token string) (backend.Reply, error) {
		return api.DispatchToResponder(ctx, token, a.chatID, a.text)
	})
	if err != nil {
		logger.Warn("responder dispatch failed", zap.String("message_id", msg.ID), zap.Error(err))
		return SettledPartial{ChatID: a.chatID, Seq: a.seq, Message: msg, Err: domain.PartialSendFailure(err)}
	}
	return SettledOK{ChatID: a.chatID, Seq: a.seq, Message: msg, Reply: reply}
}

func (p *Pipeline) release(chatID string) {
	p.mu.Lock()
	delete(p.inFlight, chatID)
	p.mu.Unlock()
}
