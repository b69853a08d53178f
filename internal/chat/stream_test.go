package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vartalap/internal/backend"
	"vartalap/internal/backend/backendtest"
	"vartalap/internal/domain"
	"vartalap/internal/realtime"
	"vartalap/internal/session"
)

func createChat(t *testing.T, c *session.Client) string {
	t.Helper()
	id, err := NewDirectory(zap.NewNop(), c).CreateChat(context.Background(), nil)
	require.NoError(t, err)
	return id
}

func insertMessage(t *testing.T, c *session.Client, chatID, content string) domain.Message {
	t.Helper()
	msg, err := session.Mutate(context.Background(), c, func(ctx context.Context, api backend.DataAPI, token string) (domain.Message, error) {
		return api.InsertUserMessage(ctx, token, chatID, content)
	})
	require.NoError(t, err)
	return msg
}

func newTestStream(t *testing.T, c *session.Client) (*Stream, *streamRecorder) {
	t.Helper()
	rec := &streamRecorder{}
	s := NewStream(zap.NewNop(), c, rec.record)
	t.Cleanup(s.Close)
	return s, rec
}

func waitReady(t *testing.T, s *Stream, chatID string, n int) StreamState {
	t.Helper()
	var st StreamState
	require.Eventually(t, func() bool {
		st = s.State()
		return st.ChatID == chatID && st.Status == StreamReady && len(st.Messages) == n
	}, waitFor, tick)
	return st
}

func TestStreamInactiveWithoutChat(t *testing.T) {
	fake := newFake()
	s, rec := newTestStream(t, signIn(t, fake, "ana@example.com"))

	require.NoError(t, s.Watch(context.Background(), ""))
	assert.Equal(t, StreamInactive, s.State().Status)
	assert.Equal(t, 0, fake.Calls(backendtest.OpWatch))
	require.NotEmpty(t, rec.all())
	assert.Equal(t, StreamInactive, rec.all()[0].Status)
}

func TestStreamLoadsThenDeliversOrderedSnapshots(t *testing.T) {
	fake := newFake()
	c := signIn(t, fake, "ana@example.com")
	chatID := createChat(t, c)
	insertMessage(t, c, chatID, "one")

	release := fake.Block(backendtest.OpListMessages)
	s, _ := newTestStream(t, c)
	require.NoError(t, s.Watch(context.Background(), chatID))
	assert.Equal(t, StreamLoading, s.State().Status)
	release()

	waitReady(t, s, chatID, 1)
	insertMessage(t, c, chatID, "two")
	insertMessage(t, c, chatID, "three")
	st := waitReady(t, s, chatID, 3)

	assert.Equal(t, []string{"one", "two", "three"}, contents(st.Messages))
	for i := 1; i < len(st.Messages); i++ {
		assert.False(t, st.Messages[i].CreatedAt.Before(st.Messages[i-1].CreatedAt))
	}
}

func TestStreamCreatedChatIsImmediatelyWatchable(t *testing.T) {
	fake := newFake()
	c := signIn(t, fake, "ana@example.com")
	s, _ := newTestStream(t, c)

	chatID := createChat(t, c)
	require.NoError(t, s.Watch(context.Background(), chatID))
	st := waitReady(t, s, chatID, 0)
	assert.NoError(t, st.Err)
}

func TestStreamSwitchNeverShowsPreviousChat(t *testing.T) {
	fake := newFake()
	c := signIn(t, fake, "ana@example.com")
	x := createChat(t, c)
	y := createChat(t, c)
	insertMessage(t, c, x, "from x")
	insertMessage(t, c, y, "from y")

	s, rec := newTestStream(t, c)
	release := fake.Block(backendtest.OpListMessages)
	require.NoError(t, s.Watch(context.Background(), x))
	require.Eventually(t, func() bool { return fake.Waiting(backendtest.OpListMessages) == 1 }, waitFor, tick)

	require.NoError(t, s.Watch(context.Background(), y))
	release()

	st := waitReady(t, s, y, 1)
	assert.Equal(t, []string{"from y"}, contents(st.Messages))
	require.Eventually(t, func() bool {
		return fake.Notifier.Subscribers(realtime.ChatMessagesTopic(x)) == 0
	}, waitFor, tick)

	for _, st := range rec.all() {
		for _, m := range st.Messages {
			assert.Equal(t, st.ChatID, m.ChatID, "message of %s shown under %s", m.ChatID, st.ChatID)
		}
	}
}

func TestStreamDropsDeliveryFromPreviousGeneration(t *testing.T) {
	fake := newFake()
	c := signIn(t, fake, "ana@example.com")
	x := createChat(t, c)
	y := createChat(t, c)

	s, _ := newTestStream(t, c)
	require.NoError(t, s.Watch(context.Background(), x))
	s.mu.Lock()
	oldGen := s.gen
	s.mu.Unlock()
	require.NoError(t, s.Watch(context.Background(), y))
	waitReady(t, s, y, 0)

	stale := []domain.Message{{ID: "m1", ChatID: x, Role: domain.RoleUser, Content: "late"}}
	s.deliver(oldGen, x, stale, nil)

	st := s.State()
	assert.Equal(t, y, st.ChatID)
	assert.Empty(t, st.Messages)
}

func TestStreamDropDegradesToErrorAndRecovers(t *testing.T) {
	fake := newFake()
	c := signIn(t, fake, "ana@example.com")
	chatID := createChat(t, c)
	insertMessage(t, c, chatID, "hello")

	s, _ := newTestStream(t, c)
	require.NoError(t, s.Watch(context.Background(), chatID))
	waitReady(t, s, chatID, 1)

	fake.Notifier.CloseTopic(realtime.ChatMessagesTopic(chatID), errors.New("broker restarted"))
	require.Eventually(t, func() bool { return s.State().Status == StreamError }, waitFor, tick)
	st := s.State()
	assert.True(t, domain.IsSubscriptionFailure(st.Err))
	assert.Equal(t, []string{"hello"}, contents(st.Messages))

	require.NoError(t, s.Watch(context.Background(), ""))
	require.NoError(t, s.Watch(context.Background(), chatID))
	waitReady(t, s, chatID, 1)
}

func TestStreamWatchFailureIsScopedToChat(t *testing.T) {
	fake := newFake()
	owner := signIn(t, fake, "ana@example.com")
	chatID := createChat(t, owner)

	s, _ := newTestStream(t, signIn(t, fake, "bob@example.com"))
	err := s.Watch(context.Background(), chatID)
	require.ErrorIs(t, err, domain.ErrChatNotFound)

	st := s.State()
	assert.Equal(t, StreamError, st.Status)
	assert.Equal(t, chatID, st.ChatID)
	assert.True(t, domain.IsStoreFailure(st.Err))
}
