package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mealio_backend/internal/logger"
	chat "mealio_backend/internal/models/chat"
	"mealio_backend/internal/realtime"
	"mealio_backend/internal/realtime/feed"
)

// State of a timeline: Loading until Open has finished, Ready afterwards
// (including the degraded case where the history fetch failed).
type State int

const (
	StateLoading State = iota
	StateReady
)

// DefaultTolerance bounds the sentAt drift under which two entries without
// a shared server id are considered the same human-authored message.
const DefaultTolerance = 2 * time.Second

// HistoryFunc fetches the persisted timeline of a conversation once.
type HistoryFunc func(ctx context.Context, conversationID string) ([]Message, error)

// Persister writes a message durably, assigning its server id.
type Persister interface {
	Persist(m *Message) error
}

// ErrNotReady is returned by Send before Open has completed.
var ErrNotReady = errors.New("timeline is not ready")

type entry struct {
	msg Message
	seq int
}

// Timeline is the reconciled view of one open conversation. State is
// discarded when the view closes; the persisted feed remains the durable
// source of truth.
type Timeline struct {
	conversationID string
	selfID         string
	selfName       string

	ch        realtime.Channel
	history   HistoryFunc
	persister Persister
	tolerance time.Duration
	onChange  func(Message)

	mu      sync.Mutex
	state   State
	loadErr error
	entries []*entry
	seq     int
}

// Option configures a Timeline.
type Option func(*Timeline)

// WithTolerance overrides the dedupe time tolerance.
func WithTolerance(d time.Duration) Option {
	return func(t *Timeline) { t.tolerance = d }
}

// WithOnChange registers a callback fired whenever an entry is appended or
// promoted. It runs with the timeline lock released.
func WithOnChange(fn func(Message)) Option {
	return func(t *Timeline) { t.onChange = fn }
}

func NewTimeline(conversationID, selfID, selfName string, ch realtime.Channel, history HistoryFunc, persister Persister, opts ...Option) *Timeline {
	t := &Timeline{
		conversationID: conversationID,
		selfID:         selfID,
		selfName:       selfName,
		ch:             ch,
		history:        history,
		persister:      persister,
		tolerance:      DefaultTolerance,
		state:          StateLoading,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Open fetches history and subscribes to both live sources. If the history
// fetch fails the conversation opens empty in degraded mode: LoadErr is
// set and broadcast messages still display.
func (t *Timeline) Open(ctx context.Context) error {
	t.subscribe()

	err := t.loadHistory(ctx)

	t.mu.Lock()
	t.state = StateReady
	t.loadErr = err
	t.mu.Unlock()
	return err
}

func (t *Timeline) subscribe() {
	t.ch.OnBroadcast(BroadcastEventMessage, func(payload json.RawMessage) {
		var p BroadcastPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			logger.Error("failed to parse message broadcast", "conversation_id", t.conversationID, "error", err)
			return
		}
		t.insert(FromBroadcast(t.conversationID, p))
	})

	filter := func(ev feed.Event) bool {
		var rec struct {
			ConversationID string `json:"conversation_id"`
		}
		if err := json.Unmarshal(ev.Record, &rec); err != nil {
			return false
		}
		return rec.ConversationID == t.conversationID
	}
	t.ch.OnPersistedChange(chat.FeedTable, feed.OpInsert, filter, func(ev feed.Event) {
		var rec chat.MessageRecord
		if err := json.Unmarshal(ev.Record, &rec); err != nil {
			logger.Error("failed to parse message record", "conversation_id", t.conversationID, "error", err)
			return
		}
		t.insert(FromRecord(rec))
	})
}

func (t *Timeline) loadHistory(ctx context.Context) error {
	msgs, err := t.history(ctx, t.conversationID)
	if err != nil {
		logger.CtxWithError(ctx, "conversation history fetch failed", err, "conversation_id", t.conversationID)
		return err
	}
	for _, m := range msgs {
		m.Source = SourcePersisted
		t.insert(m)
	}
	return nil
}

// Refresh re-runs the history fetch, backfilling any gap left by a dropped
// feed subscription. Existing entries dedupe as usual.
func (t *Timeline) Refresh(ctx context.Context) error {
	err := t.loadHistory(ctx)

	t.mu.Lock()
	t.loadErr = err
	t.mu.Unlock()
	return err
}

// Send appends an optimistic entry, broadcasts it to online participants
// and persists it. On persistence failure the entry stays visible, marked
// unsent, and the error is returned for the UI layer.
func (t *Timeline) Send(ctx context.Context, content string) (Message, error) {
	t.mu.Lock()
	if t.state != StateReady {
		t.mu.Unlock()
		return Message{}, ErrNotReady
	}
	t.mu.Unlock()

	m := Message{
		LocalID:        uuid.New().String(),
		ConversationID: t.conversationID,
		SenderID:       t.selfID,
		SenderName:     t.selfName,
		Content:        content,
		SentAt:         time.Now().UTC(),
		Source:         SourceOptimistic,
	}
	t.insert(m)

	// Lossy low-latency hint for everyone already online.
	_ = t.ch.Publish(ctx, BroadcastEventMessage, BroadcastPayload{
		Message:   m.Content,
		UserID:    m.SenderID,
		UserName:  m.SenderName,
		Timestamp: m.SentAt,
	})

	if err := t.persister.Persist(&m); err != nil {
		t.markUnsent(m.LocalID, true)
		m.Unsent = true
		return m, err
	}

	// Record the server id so the feed echo dedupes by id.
	t.confirm(m.LocalID, m.ID)
	return m, nil
}

// Retry re-attempts persistence of an unsent entry.
func (t *Timeline) Retry(ctx context.Context, localID string) (Message, error) {
	t.mu.Lock()
	var found *entry
	for _, e := range t.entries {
		if e.msg.LocalID == localID {
			found = e
			break
		}
	}
	if found == nil || !found.msg.Unsent {
		t.mu.Unlock()
		return Message{}, errors.New("no unsent message with that id")
	}
	m := found.msg
	t.mu.Unlock()

	_ = t.ch.Publish(ctx, BroadcastEventMessage, BroadcastPayload{
		Message:   m.Content,
		UserID:    m.SenderID,
		UserName:  m.SenderName,
		Timestamp: m.SentAt,
	})

	if err := t.persister.Persist(&m); err != nil {
		return m, err
	}

	t.markUnsent(localID, false)
	t.confirm(localID, m.ID)
	m.Unsent = false
	return m, nil
}

// AppendOptimistic inserts a locally-authored draft without sending it.
func (t *Timeline) AppendOptimistic(m Message) Message {
	if m.LocalID == "" {
		m.LocalID = uuid.New().String()
	}
	m.ConversationID = t.conversationID
	m.Source = SourceOptimistic
	t.insert(m)
	return m
}

// Messages returns the reconciled timeline ordered by sentAt ascending,
// ties broken by insertion sequence.
func (t *Timeline) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Message, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.msg
	}
	return out
}

func (t *Timeline) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// LoadErr reports the degraded-mode error from the last history fetch.
func (t *Timeline) LoadErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadErr
}

// Close tears down the underlying channel, releasing the broadcast and
// feed subscriptions. Idempotent.
func (t *Timeline) Close() error {
	return t.ch.Close()
}

// insert runs the dedupe check and either promotes an existing entry in
// place or appends a new one in sentAt order. Internal faults here must
// never reach the caller.
func (t *Timeline) insert(m Message) {
	t.mu.Lock()

	// Self-authored persisted events are promotions of the optimistic
	// entry, never new entries; the dedupe scan runs for every source so
	// that case falls out naturally.
	if e := t.match(m); e != nil {
		changed := t.promote(e, m)
		var snapshot Message
		if changed {
			snapshot = e.msg
		}
		t.mu.Unlock()
		if changed && t.onChange != nil {
			t.onChange(snapshot)
		}
		return
	}

	t.seq++
	e := &entry{msg: m, seq: t.seq}

	// First index whose sentAt is strictly later; equal timestamps keep
	// insertion order.
	idx := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].msg.SentAt.After(m.SentAt)
	})
	t.entries = append(t.entries, nil)
	copy(t.entries[idx+1:], t.entries[idx:])
	t.entries[idx] = e

	t.mu.Unlock()
	if t.onChange != nil {
		t.onChange(m)
	}
}

// match finds an existing entry representing the same logical message.
// The server id wins when both sides have one; otherwise sender, content
// and a bounded sentAt drift identify the message.
func (t *Timeline) match(m Message) *entry {
	for _, e := range t.entries {
		if m.ID != "" && e.msg.ID != "" {
			if m.ID == e.msg.ID {
				return e
			}
			continue
		}
		if e.msg.SenderID != m.SenderID || e.msg.Content != m.Content {
			continue
		}
		drift := e.msg.SentAt.Sub(m.SentAt)
		if drift < 0 {
			drift = -drift
		}
		if drift <= t.tolerance {
			return e
		}
	}
	return nil
}

// promote replaces a lower-fidelity entry in place. Position is preserved:
// the original sentAt keeps ordering stable while id, sender name and
// source are upgraded.
func (t *Timeline) promote(e *entry, m Message) bool {
	if m.Source <= e.msg.Source {
		// Already have an equal or better representation; at most adopt
		// the server id an optimistic confirm may still be missing.
		if e.msg.ID == "" && m.ID != "" {
			e.msg.ID = m.ID
			return true
		}
		return false
	}

	if m.ID != "" {
		e.msg.ID = m.ID
	}
	if m.SenderName != "" {
		e.msg.SenderName = m.SenderName
	}
	e.msg.Source = m.Source
	e.msg.Unsent = false
	return true
}

func (t *Timeline) markUnsent(localID string, unsent bool) {
	t.mu.Lock()
	var snapshot Message
	var changed bool
	for _, e := range t.entries {
		if e.msg.LocalID == localID {
			e.msg.Unsent = unsent
			snapshot = e.msg
			changed = true
			break
		}
	}
	t.mu.Unlock()
	if changed && t.onChange != nil {
		t.onChange(snapshot)
	}
}

func (t *Timeline) confirm(localID, id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.msg.LocalID == localID {
			if e.msg.ID == "" {
				e.msg.ID = id
			}
			return
		}
	}
}
