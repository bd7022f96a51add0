package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"mealio_backend/internal/logger"
)

// Presence broadcast event names.
const (
	EventPresenceJoin  = "presence_join"
	EventPresenceLeave = "presence_leave"
)

// PresenceEntry is one live participant on a topic. Entries are ephemeral:
// never persisted, destroyed on leave or when the handle closes.
type PresenceEntry struct {
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// GroupRoster resolves group membership; backed by the group repository.
type GroupRoster interface {
	MemberIDs(groupID string) ([]string, error)
}

// Tracker maintains the live participant set per topic. It learns about
// remote participants from presence broadcasts on watched channels, so the
// roster is eventually consistent: a peer that vanishes without a leave
// event is only dropped once its transport connection dies.
type Tracker struct {
	mu     sync.RWMutex
	topics map[string]map[string]PresenceEntry
	groups GroupRoster
}

func NewTracker(groups GroupRoster) *Tracker {
	return &Tracker{
		topics: make(map[string]map[string]PresenceEntry),
		groups: groups,
	}
}

// Watch wires the tracker to presence broadcasts on an open channel.
// Call it once per channel, before Join.
func (t *Tracker) Watch(ch Channel) {
	topic := ch.Topic()

	ch.OnBroadcast(EventPresenceJoin, func(payload json.RawMessage) {
		var entry PresenceEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			logger.Error("failed to parse presence join", "topic", topic, "error", err)
			return
		}
		t.add(topic, entry)
	})

	ch.OnBroadcast(EventPresenceLeave, func(payload json.RawMessage) {
		var entry PresenceEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			logger.Error("failed to parse presence leave", "topic", topic, "error", err)
			return
		}
		t.remove(topic, entry.UserID)
	})
}

// Join announces userID on the channel's topic. Joining a topic the user
// is already on is a no-op.
func (t *Tracker) Join(ctx context.Context, ch Channel, userID string) error {
	entry := PresenceEntry{UserID: userID, JoinedAt: time.Now().UTC()}
	if !t.add(ch.Topic(), entry) {
		return nil
	}
	return ch.Publish(ctx, EventPresenceJoin, entry)
}

// Leave withdraws userID from the channel's topic.
func (t *Tracker) Leave(ctx context.Context, ch Channel, userID string) error {
	if !t.removeLocal(ch.Topic(), userID) {
		return nil
	}
	return ch.Publish(ctx, EventPresenceLeave, PresenceEntry{UserID: userID})
}

// ListOnline returns the ids of everyone currently on the topic.
func (t *Tracker) ListOnline(topic string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := t.topics[topic]
	online := make([]string, 0, len(entries))
	for userID := range entries {
		online = append(online, userID)
	}
	return online
}

// ListOnlineInGroup intersects the topic's participants with the group's
// membership roster.
func (t *Tracker) ListOnlineInGroup(topic, groupID string) ([]string, error) {
	members, err := t.groups.MemberIDs(groupID)
	if err != nil {
		return nil, err
	}

	memberSet := make(map[string]struct{}, len(members))
	for _, id := range members {
		memberSet[id] = struct{}{}
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	var online []string
	for userID := range t.topics[topic] {
		if _, ok := memberSet[userID]; ok {
			online = append(online, userID)
		}
	}
	return online, nil
}

// DropTopic clears the roster for a topic, e.g. when its channel closes.
func (t *Tracker) DropTopic(topic string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.topics, topic)
}

// add returns false when the user was already present.
func (t *Tracker) add(topic string, entry PresenceEntry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.topics[topic] == nil {
		t.topics[topic] = make(map[string]PresenceEntry)
	}
	if _, exists := t.topics[topic][entry.UserID]; exists {
		return false
	}
	t.topics[topic][entry.UserID] = entry
	return true
}

func (t *Tracker) remove(topic, userID string) {
	t.removeLocal(topic, userID)
}

func (t *Tracker) removeLocal(topic, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries, ok := t.topics[topic]
	if !ok {
		return false
	}
	if _, exists := entries[userID]; !exists {
		return false
	}
	delete(entries, userID)
	if len(entries) == 0 {
		delete(t.topics, topic)
	}
	return true
}
