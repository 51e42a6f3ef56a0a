package broadcast

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

const subscriberBuffer = 64

// Hub is an in-process channel transport for single-node deployments.
// Slow subscribers drop messages instead of blocking publishers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*subscription]struct{}
}

type subscription struct {
	ch   chan []byte
	done chan struct{}
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscription]struct{})}
}

func (h *Hub) Publish(_ context.Context, channel string, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[channel] {
		select {
		case sub.ch <- payload:
		default:
			log.Warn().Str("channel", channel).Msg("broadcast.Hub: subscriber full, dropping message")
		}
	}
	return nil
}

// Subscribe registers a subscriber on channel. The returned channel is
// closed by the cleanup func or when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	sub := &subscription{ch: make(chan []byte, subscriberBuffer), done: make(chan struct{})}

	h.mu.Lock()
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[*subscription]struct{})
	}
	h.subs[channel][sub] = struct{}{}
	h.mu.Unlock()

	cleanup := func() {
		sub.once.Do(func() {
			h.mu.Lock()
			delete(h.subs[channel], sub)
			if len(h.subs[channel]) == 0 {
				delete(h.subs, channel)
			}
			h.mu.Unlock()
			close(sub.ch)
			close(sub.done)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cleanup()
		case <-sub.done:
		}
	}()

	return sub.ch, cleanup, nil
}

// Subscribers returns the number of live subscribers on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}
