package events

import "sync"

const subscriberBuffer = 64

// Hub fans operator lines out to subscribers. Publish never blocks and never
// fails: a subscriber that cannot keep up loses lines, the engine does not
// wait for it.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan string]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan string]struct{})}
}

// Publish delivers line to every current subscriber, dropping it for any
// subscriber whose buffer is full.
func (h *Hub) Publish(line string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

// Subscribe registers a new listener. The returned cancel func must be called
// exactly once when the listener goes away.
func (h *Hub) Subscribe() (<-chan string, func()) {
	ch := make(chan string, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

// SubscriberCount reports how many listeners are attached.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
