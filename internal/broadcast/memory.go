package broadcast

import (
	"context"
	"sync"
)

// MemoryHub is an in-process Broadcaster for single-node deployments and
// tests. Fan-out is at-most-once: a subscriber whose buffer is full simply
// misses the event, same as any other transport hiccup.
type MemoryHub struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySub]struct{}
	closed bool
}

// NewMemoryHub creates an empty in-process hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[string]map[*memorySub]struct{})}
}

type memorySub struct {
	hub   *MemoryHub
	topic string
	ch    chan Event
	once  sync.Once
}

func (s *memorySub) Events() <-chan Event { return s.ch }

func (s *memorySub) Close() error {
	s.once.Do(func() {
		s.hub.mu.Lock()
		if set, ok := s.hub.subs[s.topic]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.hub.subs, s.topic)
			}
		}
		s.hub.mu.Unlock()
		close(s.ch)
	})
	return nil
}

// Publish delivers to current subscribers of the topic. Slow subscribers are
// skipped rather than blocking the publisher.
func (h *MemoryHub) Publish(ctx context.Context, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil
	}
	for sub := range h.subs[ev.Topic] {
		select {
		case sub.ch <- ev:
		default:
			// subscriber not keeping up, drop
		}
	}
	return nil
}

// Subscribe registers a new subscriber for the topic.
func (h *MemoryHub) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	sub := &memorySub{hub: h, topic: topic, ch: make(chan Event, 64)}
	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[*memorySub]struct{})
	}
	h.subs[topic][sub] = struct{}{}
	h.mu.Unlock()
	return sub, nil
}

// Close detaches all subscribers.
func (h *MemoryHub) Close() error {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]map[*memorySub]struct{})
	h.closed = true
	h.mu.Unlock()

	for _, set := range subs {
		for sub := range set {
			sub.once.Do(func() { close(sub.ch) })
		}
	}
	return nil
}
