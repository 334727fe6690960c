// Package stream fans published values out to live subscribers grouped by
// topic. The API uses it to push audit events of a workspace to SSE clients.
package stream

import (
	"context"
	"sync"

	"customervoice.app/internal/obs"
)

const defaultBuffer = 16

// Hub delivers values to every subscriber of a topic. Publishing never
// blocks: a subscriber whose buffer is full misses the value.
type Hub[T any] struct {
	name   string
	buffer int

	mu   sync.RWMutex
	subs map[string]map[int]chan T
	next int
}

// New creates a hub. name labels drop metrics; buffer <= 0 uses the default.
func New[T any](name string, buffer int) *Hub[T] {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub[T]{
		name:   name,
		buffer: buffer,
		subs:   make(map[string]map[int]chan T),
	}
}

// Subscribe registers a subscriber of topic. The channel is closed when ctx
// ends.
func (h *Hub[T]) Subscribe(ctx context.Context, topic string) <-chan T {
	ch := make(chan T, h.buffer)

	h.mu.Lock()
	id := h.next
	h.next++
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[int]chan T)
	}
	h.subs[topic][id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[topic], id)
		if len(h.subs[topic]) == 0 {
			delete(h.subs, topic)
		}
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Publish hands v to the subscribers of topic and returns how many took it.
func (h *Hub[T]) Publish(topic string, v T) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, ch := range h.subs[topic] {
		select {
		case ch <- v:
			delivered++
		default:
			obs.ObserveStreamDrop(h.name)
		}
	}
	return delivered
}

// Subscribers reports the number of live subscribers of topic.
func (h *Hub[T]) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}
