// Package realtime wraps named real-time topics: ephemeral broadcast
// pub/sub, persisted-change subscriptions and presence tracking.
//
// Broadcast messages are unordered, lossy, low-latency hints and never
// authoritative; the persisted change feed is the durable source of truth.
package realtime

import (
	"context"
	"encoding/json"

	"mealio_backend/internal/realtime/feed"
)

// BroadcastFunc handles one broadcast payload for a subscribed event name.
type BroadcastFunc func(payload json.RawMessage)

// Channel is an open handle on a named topic. A handle is exclusively
// owned by the component that opened it.
type Channel interface {
	Topic() string

	// Publish broadcasts an event to other participants of the topic.
	// It is fire-and-forget: transient transport failures are logged and
	// swallowed, never returned.
	Publish(ctx context.Context, event string, payload any) error

	// OnBroadcast registers fn for broadcast events with the given name.
	OnBroadcast(event string, fn BroadcastFunc)

	// OnPersistedChange registers fn for persisted-change events on the
	// given table and operation.
	OnPersistedChange(table string, op feed.Op, filter feed.Filter, fn feed.ChangeFunc)

	// Close tears the handle down and releases every registered callback.
	// It is idempotent.
	Close() error
}

// Transport opens channels on named topics.
type Transport interface {
	Open(ctx context.Context, topic string) (Channel, error)
}

// envelope is the wire format of one broadcast message.
type envelope struct {
	Event   string          `json:"event"`
	Sender  string          `json:"sender"` // handle token, used to skip self-delivery
	Payload json.RawMessage `json:"payload"`
}
