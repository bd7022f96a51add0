package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mealio_backend/internal/logger"
	"mealio_backend/internal/realtime/feed"
)

// RedisTransport carries broadcasts over one Redis pub/sub channel per
// topic and persisted-change subscriptions over the shared change feed.
type RedisTransport struct {
	rdb  *redis.Client
	feed feed.Feed
}

func NewRedisTransport(rdb *redis.Client, changeFeed feed.Feed) *RedisTransport {
	return &RedisTransport{rdb: rdb, feed: changeFeed}
}

func (t *RedisTransport) Open(ctx context.Context, topic string) (Channel, error) {
	pubsub := t.rdb.Subscribe(ctx, redisChannelName(topic))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}

	ch := &redisChannel{
		rdb:      t.rdb,
		feed:     t.feed,
		topic:    topic,
		token:    uuid.New().String(),
		pubsub:   pubsub,
		handlers: make(map[string][]BroadcastFunc),
	}
	go ch.listen()
	return ch, nil
}

func redisChannelName(topic string) string {
	return "topic:" + topic
}

type redisChannel struct {
	rdb    *redis.Client
	feed   feed.Feed
	topic  string
	token  string
	pubsub *redis.PubSub

	mu        sync.RWMutex
	closed    bool
	handlers  map[string][]BroadcastFunc
	feedUnsub []func()
}

func (c *redisChannel) Topic() string {
	return c.topic
}

func (c *redisChannel) Publish(ctx context.Context, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast payload: %w", err)
	}

	data, err := json.Marshal(envelope{Event: event, Sender: c.token, Payload: raw})
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast envelope: %w", err)
	}

	// Transient transport failures are not the caller's problem: the
	// broadcast path is a lossy hint, the persisted feed catches up later.
	if err := c.rdb.Publish(ctx, redisChannelName(c.topic), data).Err(); err != nil {
		logger.Warn("broadcast publish failed", "topic", c.topic, "event", event, "error", err)
	}
	return nil
}

func (c *redisChannel) OnBroadcast(event string, fn BroadcastFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.handlers[event] = append(c.handlers[event], fn)
}

func (c *redisChannel) OnPersistedChange(table string, op feed.Op, filter feed.Filter, fn feed.ChangeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	unsub := c.feed.Subscribe(table, op, filter, fn)
	c.feedUnsub = append(c.feedUnsub, unsub)
}

func (c *redisChannel) Close() error {
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
	return c.pubsub.Close()
}

func (c *redisChannel) listen() {
	for msg := range c.pubsub.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			logger.Error("failed to parse broadcast envelope", "topic", c.topic, "error", err)
			continue
		}
		if env.Sender == c.token {
			continue
		}
		c.deliver(env)
	}
}

func (c *redisChannel) deliver(env envelope) {
	c.mu.RLock()
	fns := append([]BroadcastFunc(nil), c.handlers[env.Event]...)
	c.mu.RUnlock()

	for _, fn := range fns {
		fn(env.Payload)
	}
}
