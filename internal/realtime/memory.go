package realtime

import (
	"context"
	"sync"
)

// MemoryNotifier es un broker en proceso, útil con una sola instancia de API.
type MemoryNotifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[Topic]map[int]*Signal
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{subs: make(map[Topic]map[int]*Signal)}
}

func (n *MemoryNotifier) Publish(_ context.Context, topic Topic) error {
	n.mu.Lock()
	targets := make([]*Signal, 0, len(n.subs[topic]))
	for _, s := range n.subs[topic] {
		targets = append(targets, s)
	}
	n.mu.Unlock()

	for _, s := range targets {
		s.Notify()
	}
	return nil
}

func (n *MemoryNotifier) Subscribe(ctx context.Context, topic Topic) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	sub := NewSignal(func() {
		n.mu.Lock()
		delete(n.subs[topic], id)
		if len(n.subs[topic]) == 0 {
			delete(n.subs, topic)
		}
		n.mu.Unlock()
	})
	if n.subs[topic] == nil {
		n.subs[topic] = make(map[int]*Signal)
	}
	n.subs[topic][id] = sub

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				sub.Finish(ctx.Err())
			case <-sub.done:
			}
		}()
	}
	return sub, nil
}

// Subscribers devuelve cuántas suscripciones vivas hay para topic.
func (n *MemoryNotifier) Subscribers(topic Topic) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs[topic])
}

// CloseTopic termina todas las suscripciones de topic con err.
func (n *MemoryNotifier) CloseTopic(topic Topic, err error) {
	n.mu.Lock()
	targets := make([]*Signal, 0, len(n.subs[topic]))
	for _, s := range n.subs[topic] {
		targets = append(targets, s)
	}
	n.mu.Unlock()

	for _, s := range targets {
		s.Finish(err)
	}
}
