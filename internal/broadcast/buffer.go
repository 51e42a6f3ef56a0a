package broadcast

import (
	"context"
	"sync"
)

type pending struct {
	sessionID string
	event     string
	payload   any
}

// Buffer holds events until Flush, so subscribers never see events for
// writes that are later rolled back.
type Buffer struct {
	next Broadcaster

	mu     sync.Mutex
	events []pending
}

func NewBuffer(next Broadcaster) *Buffer {
	return &Buffer{next: next}
}

func (b *Buffer) Publish(_ context.Context, sessionID, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, pending{sessionID: sessionID, event: event, payload: payload})
}

// Flush sends the held events in order and empties the buffer.
func (b *Buffer) Flush(ctx context.Context) {
	b.mu.Lock()
	events := b.events
	b.events = nil
	b.mu.Unlock()

	for _, e := range events {
		b.next.Publish(ctx, e.sessionID, e.event, e.payload)
	}
}

// Discard drops the held events.
func (b *Buffer) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

// Len returns the number of held events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
