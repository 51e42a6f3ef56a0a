// Package broadcast delivers collaboration events to the subscribers of a
// session channel. Delivery is best effort: a failed publish is logged and
// never fails the run that produced it.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Event names published on a session channel.
const (
	EventRunStarted     = "run_started"
	EventMessageCreated = "message_created"
	EventAgentTurn      = "agent_turn"
	EventRunCompleted   = "run_completed"
	EventRunError       = "run_error"
)

const defaultTimeout = 2 * time.Second

// Event is the wire envelope sent to subscribers.
type Event struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Broadcaster publishes a named event to the channel of sessionID.
type Broadcaster interface {
	Publish(ctx context.Context, sessionID, event string, payload any)
}

// Publisher is the raw channel transport, satisfied by redis.PubSub and Hub.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Subscriber is the read side of a channel transport.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// ChannelPrefix starts every session channel name on any transport.
const ChannelPrefix = "chat_"

// Channel returns the channel name for a session.
func Channel(sessionID string) string {
	return ChannelPrefix + sessionID
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, any) {}

// PubSub encodes events as JSON and hands them to a Publisher.
type PubSub struct {
	pub     Publisher
	timeout time.Duration
}

// NewPubSub wraps pub. Each publish is bounded by timeout.
func NewPubSub(pub Publisher, timeout time.Duration) *PubSub {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &PubSub{pub: pub, timeout: timeout}
}

func (b *PubSub) Publish(ctx context.Context, sessionID, event string, payload any) {
	if err := b.publish(ctx, sessionID, event, payload); err != nil {
		log.Warn().Err(err).
			Str("session_id", sessionID).
			Str("event", event).
			Msg("broadcast: publish failed")
	}
}

func (b *PubSub) publish(ctx context.Context, sessionID, event string, payload any) error {
	data, err := json.Marshal(Event{Event: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("broadcast.PubSub.Publish: marshal: %w", err)
	}

	// Terminal events are sent after the caller's context may be done.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()

	if err = b.pub.Publish(ctx, Channel(sessionID), data); err != nil {
		return fmt.Errorf("broadcast.PubSub.Publish: %w", err)
	}
	return nil
}
