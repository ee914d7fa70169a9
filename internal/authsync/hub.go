package authsync

import (
	"sync"

	"github.com/dgellow/bid-front/internal/log"
)

const subscriberBuffer = 8

// Hub fans events out to the subscribers of one key, typically a device id.
// Delivery is at most once: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	ch   chan Event
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers a receiver for key. cancel unregisters it and closes
// the channel; calling it more than once is fine.
func (h *Hub) Subscribe(key string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	set, ok := h.subs[key]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[key] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[key]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, key)
			}
		}
		h.mu.Unlock()
		sub.close()
	}
	return sub.ch, cancel
}

// Publish delivers ev to every subscriber of key without blocking and
// returns how many received it.
func (h *Hub) Publish(key string, ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subs[key] {
		select {
		case sub.ch <- ev:
			delivered++
		default:
			log.LogDebugWithFields("authsync", "Dropping event for slow subscriber", map[string]any{
				"type": string(ev.Type),
			})
		}
	}
	return delivered
}

// Subscribers returns the number of live subscribers for key.
func (h *Hub) Subscribers(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key])
}

// Close ends every subscription. Later Subscribe calls get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for key, set := range h.subs {
		for sub := range set {
			sub.close()
		}
		delete(h.subs, key)
	}
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}
