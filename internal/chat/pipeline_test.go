package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vartalap/internal/backend/backendtest"
	"vartalap/internal/domain"
)

// phases guarda el tipo de cada estado observado.
type phases struct {
	mu  sync.Mutex
	all []SendState
}

func (p *phases) observe(st SendState) {
	p.mu.Lock()
	p.all = append(p.all, st)
	p.mu.Unlock()
}

func (p *phases) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.all))
	for i, st := range p.all {
		switch st.(type) {
		case Persisting:
			out[i] = "persisting"
		case Dispatching:
			out[i] = "dispatching"
		case SettledOK:
			out[i] = "ok"
		case SettledPartial:
			out[i] = "partial"
		case SettledFailed:
			out[i] = "failed"
		default:
			out[i] = "idle"
		}
	}
	return out
}

func newPipelineEnv(t *testing.T) (*Pipeline, *backendtest.Fake, string) {
	t.Helper()
	fake := newFake()
	c := signIn(t, fake, "ana@example.com")
	return NewPipeline(zap.NewNop(), c, 50), fake, createChat(t, c)
}

func TestSendPersistsThenDispatches(t *testing.T) {
	p, fake, chatID := newPipelineEnv(t)
	var obs phases

	final, err := p.Send(context.Background(), chatID, "  Hello  ", obs.observe)
	require.NoError(t, err)
	assert.Equal(t, []string{"persisting", "dispatching", "ok"}, obs.names())

	ok, isOK := final.(SettledOK)
	require.True(t, isOK, "final state %T", final)
	assert.Equal(t, "Hello", ok.Message.Content)
	assert.Equal(t, domain.RoleUser, ok.Message.Role)
	assert.Equal(t, "assistant reply", ok.Reply.Content)

	assert.Equal(t, 2, fake.Store.MessageCount(chatID))
	calls := fake.LLM.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Hello", calls[0][len(calls[0])-1].Content)
	assert.False(t, p.InFlight(chatID))
}

func TestBeginRejectsBeforeAnyStoreCall(t *testing.T) {
	p, fake, chatID := newPipelineEnv(t)

	tests := []struct {
		name   string
		chatID string
		input  string
		is     error
	}{
		{"empty", chatID, "", domain.ErrEmptyMessage},
		{"whitespace", chatID, " \n\t ", domain.ErrEmptyMessage},
		{"too long", chatID, strings.Repeat("x", 51), domain.ErrMessageTooLong},
		{"no active chat", "", "Hello", domain.ErrNoActiveChat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Begin(tt.chatID, tt.input)
			require.True(t, domain.IsValidationFailure(err), "got %v", err)
			require.ErrorIs(t, err, tt.is)
		})
	}
	assert.Equal(t, 0, fake.Calls(backendtest.OpInsertUser))
	assert.Equal(t, 0, fake.Store.MessageCount(chatID))
	assert.False(t, p.InFlight(chatID))
}

func TestOneSendInFlightPerChat(t *testing.T) {
	p, fake, chatID := newPipelineEnv(t)
	release := fake.Block(backendtest.OpInsertUser)

	first, err := p.Begin(chatID, "first")
	require.NoError(t, err)
	done := make(chan SendState, 1)
	go func() { done <- first.Run(context.Background(), nil) }()

	_, err = p.Begin(chatID, "second")
	require.ErrorIs(t, err, domain.ErrSendInFlight)
	assert.True(t, p.InFlight(chatID))

	release()
	final := <-done
	_, ok := final.(SettledOK)
	require.True(t, ok, "final state %T", final)
	assert.Equal(t, 1, fake.Calls(backendtest.OpInsertUser))

	again, err := p.Begin(chatID, "second")
	require.NoError(t, err)
	again.Run(context.Background(), nil)
	assert.Equal(t, 4, fake.Store.MessageCount(chatID))
}

func TestSendsToDifferentChatsDoNotBlockEachOther(t *testing.T) {
	p, _, chatID := newPipelineEnv(t)

	a, err := p.Begin(chatID, "Hello")
	require.NoError(t, err)
	t.Cleanup(a.Cancel)
	b, err := p.Begin("other-chat", "Hello")
	require.NoError(t, err)
	t.Cleanup(b.Cancel)
	assert.True(t, p.InFlight(chatID))
	assert.True(t, p.InFlight("other-chat"))
	assert.Equal(t, chatID, a.ChatID())
	assert.Equal(t, "Hello", a.Text())
	assert.Greater(t, b.Seq(), a.Seq())
}

func TestCancelReleasesChatWithoutStoreCalls(t *testing.T) {
	p, fake, chatID := newPipelineEnv(t)

	a, err := p.Begin(chatID, "Hello")
	require.NoError(t, err)
	a.Cancel()
	assert.False(t, p.InFlight(chatID))
	assert.Equal(t, Idle{}, a.Run(context.Background(), nil))
	assert.Equal(t, 0, fake.Calls(backendtest.OpInsertUser))

	again, err := p.Begin(chatID, "Hello")
	require.NoError(t, err)
	again.Run(context.Background(), nil)
	again.Cancel()
	assert.False(t, p.InFlight(chatID))
	assert.Equal(t, 2, fake.Store.MessageCount(chatID))
}

func TestStatesCarryAttemptSeq(t *testing.T) {
	p, _, chatID := newPipelineEnv(t)

	a, err := p.Begin(chatID, "Hello")
	require.NoError(t, err)
	var seen []uint64
	a.Run(context.Background(), func(st SendState) {
		_, seq := origin(st)
		seen = append(seen, seq)
	})
	assert.Equal(t, []uint64{a.Seq(), a.Seq(), a.Seq()}, seen)
	assert.Equal(t, Persisting{ChatID: chatID, Seq: a.Seq(), Text: "Hello"}, a.Pending())
}

func TestPersistFailureRestoresInput(t *testing.T) {
	p, fake, chatID := newPipelineEnv(t)
	fake.Fail(backendtest.OpInsertUser, domain.StoreFailure(domain.ErrStoreRejected))
	var obs phases

	final, err := p.Send(context.Background(), chatID, "Hello ", obs.observe)
	require.NoError(t, err)
	assert.Equal(t, []string{"persisting", "failed"}, obs.names())

	failed, ok := final.(SettledFailed)
	require.True(t, ok, "final state %T", final)
	assert.Equal(t, "Hello ", failed.Input)
	assert.True(t, domain.IsStoreFailure(failed.Err))
	assert.Equal(t, 0, fake.Store.MessageCount(chatID))
	assert.Equal(t, 0, fake.Calls(backendtest.OpDispatch))
	assert.False(t, p.InFlight(chatID))
}

func TestDispatchFailureIsPartial(t *testing.T) {
	p, fake, chatID := newPipelineEnv(t)
	fake.LLM.Err = errors.New("model overloaded")
	var obs phases

	final, err := p.Send(context.Background(), chatID, "Hello", obs.observe)
	require.NoError(t, err)
	assert.Equal(t, []string{"persisting", "dispatching", "partial"}, obs.names())

	partial, ok := final.(SettledPartial)
	require.True(t, ok, "final state %T", final)
	assert.True(t, domain.IsPartialSendFailure(partial.Err))
	assert.ErrorIs(t, partial.Err, domain.ErrResponderFailed)
	assert.Equal(t, "Hello", partial.Message.Content)
	assert.Equal(t, 1, fake.Store.MessageCount(chatID))
}

func TestRetryAfterFailureCreatesNewMessage(t *testing.T) {
	p, fake, chatID := newPipelineEnv(t)
	fake.Fail(backendtest.OpDispatch, domain.ConnectivityFailure(domain.ErrNetwork))

	first, err := p.Send(context.Background(), chatID, "Hello", nil)
	require.NoError(t, err)
	second, err := p.Send(context.Background(), chatID, "Hello", nil)
	require.NoError(t, err)

	a := first.(SettledPartial).Message
	b := second.(SettledPartial).Message
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, fake.Store.MessageCount(chatID))
}

func TestRunExecutesOnce(t *testing.T) {
	p, fake, chatID := newPipelineEnv(t)
	a, err := p.Begin(chatID, "Hello")
	require.NoError(t, err)

	_, ok := a.Run(context.Background(), nil).(SettledOK)
	require.True(t, ok)
	_, idle := a.Run(context.Background(), nil).(Idle)
	assert.True(t, idle)
	assert.Equal(t, 1, fake.Calls(backendtest.OpInsertUser))
}

func TestInFlightStates(t *testing.T) {
	assert.True(t, InFlight(Persisting{}))
	assert.True(t, InFlight(Dispatching{}))
	assert.False(t, InFlight(Idle{}))
	assert.False(t, InFlight(SettledOK{}))
	assert.False(t, InFlight(SettledPartial{}))
	assert.False(t, InFlight(SettledFailed{}))
	assert.False(t, InFlight(nil))
}
