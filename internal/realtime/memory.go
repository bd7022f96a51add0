package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"mealio_backend/internal/realtime/feed"
)

// MemoryTransport is an in-process Transport. It serves single-node
// development runs without Redis and the test suite. Delivery is
// synchronous and, like the Redis transport, skips the publishing handle.
type MemoryTransport struct {
	mu     sync.RWMutex
	topics map[string]map[*memoryChannel]struct{}
	feed   feed.Feed
}

func NewMemoryTransport(changeFeed feed.Feed) *MemoryTransport {
	return &MemoryTransport{
		topics: make(map[string]map[*memoryChannel]struct{}),
		feed:   changeFeed,
	}
}

func (t *MemoryTransport) Open(_ context.Context, topic string) (Channel, error) {
	ch := &memoryChannel{
		transport: t,
		topic:     topic,
		token:     uuid.New().String(),
		handlers:  make(map[string][]BroadcastFunc),
	}

	t.mu.Lock()
	if t.topics[topic] == nil {
		t.topics[topic] = make(map[*memoryChannel]struct{})
	}
	t.topics[topic][ch] = struct{}{}
	t.mu.Unlock()

	return ch, nil
}

func (t *MemoryTransport) broadcast(topic string, env envelope) {
	t.mu.RLock()
	channels := make([]*memoryChannel, 0, len(t.topics[topic]))
	for ch := range t.topics[topic] {
		channels = append(channels, ch)
	}
	t.mu.RUnlock()

	for _, ch := range channels {
		if ch.token == env.Sender {
			continue
		}
		ch.deliver(env)
	}
}

func (t *MemoryTransport) remove(ch *memoryChannel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if set, ok := t.topics[ch.topic]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(t.topics, ch.topic)
		}
	}
}

type memoryChannel struct {
	transport *MemoryTransport
	topic     string
	token     string

	mu        sync.RWMutex
	closed    bool
	handlers  map[string][]BroadcastFunc
	feedUnsub []func()
}

func (c *memoryChannel) Topic() string {
	return c.topic
}

func (c *memoryChannel) Publish(_ context.Context, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast payload: %w", err)
	}
	c.transport.broadcast(c.topic, envelope{Event: event, Sender: c.token, Payload: raw})
	return nil
}

func (c *memoryChannel) OnBroadcast(event string, fn BroadcastFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.handlers[event] = append(c.handlers[event], fn)
}

func (c *memoryChannel) OnPersistedChange(table string, op feed.Op, filter feed.Filter, fn feed.ChangeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	unsub := c.transport.feed.Subscribe(table, op, filter, fn)
	c.feedUnsub = append(c.feedUnsub, unsub)
}

func (c *memoryChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.handlers = make(map[string][]BroadcastFunc)
	unsubs := c.feedUnsub
	c.feedUnsub = nil
	c.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	c.transport.remove(c)
	return nil
}

func (c *memoryChannel) deliver(env envelope) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	fns := append([]BroadcastFunc(nil), c.handlers[env.Event]...)
	c.mu.RUnlock()

	for _, fn := range fns {
		fn(env.Payload)
	}
}
