package llm

import (
	"context"
	"sync"
)

// MockClient permite tests sin llamar a un LLM real. Guarda cada conversación recibida.
type MockClient struct {
	Response string
	Err      error

	mu    sync.Mutex
	calls [][]Turn
}

func (m *MockClient) Complete(_ context.Context, turns []Turn) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]Turn(nil), turns...))
	m.mu.Unlock()
	return m.Response, m.Err
}

// Calls devuelve una copia de las conversaciones recibidas.
func (m *MockClient) Calls() [][]Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]Turn(nil), m.calls...)
}
