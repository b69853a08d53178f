package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"vartalap/internal/backend/backendtest"
	"vartalap/internal/domain"
	"vartalap/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

func newFake() *backendtest.Fake {
	return backendtest.New(backendtest.Options{MaxMessageLength: 50})
}

// signIn registra un usuario nuevo en fake y devuelve su sesión.
func signIn(t *testing.T, fake *backendtest.Fake, email string) *session.Client {
	t.Helper()
	c := session.New(zap.NewNop(), fake, session.Options{})
	t.Cleanup(c.Close)
	require.NoError(t, c.Init(context.Background()))
	verify, err := c.SignUp(context.Background(), email, "long-enough", "")
	require.NoError(t, err)
	require.False(t, verify)
	return c
}

func strPtr(s string) *string { return &s }

// streamRecorder guarda todos los estados emitidos por un Stream.
type streamRecorder struct {
	mu     sync.Mutex
	states []StreamState
}

func (r *streamRecorder) record(st StreamState) {
	r.mu.Lock()
	r.states = append(r.states, st)
	r.mu.Unlock()
}

func (r *streamRecorder) all() []StreamState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StreamState(nil), r.states...)
}

func contents(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}
