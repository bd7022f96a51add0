package reconcile_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chat "mealio_backend/internal/models/chat"
	"mealio_backend/internal/realtime"
	"mealio_backend/internal/realtime/feed"
	"mealio_backend/internal/reconcile"
)

// fakePersister assigns sequential ids, or fails on demand.
type fakePersister struct {
	mu     sync.Mutex
	fail   bool
	nextID int
	saved  []reconcile.Message
}

func (p *fakePersister) Persist(m *reconcile.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("storage unavailable")
	}
	p.nextID++
	m.ID = "srv-" + strconv.Itoa(p.nextID)
	p.saved = append(p.saved, *m)
	return nil
}

func (p *fakePersister) setFail(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = fail
}

func staticHistory(msgs []reconcile.Message) reconcile.HistoryFunc {
	return func(_ context.Context, _ string) ([]reconcile.Message, error) {
		return msgs, nil
	}
}

func openTimeline(t *testing.T, history reconcile.HistoryFunc, persister reconcile.Persister) (*reconcile.Timeline, *feed.MemoryFeed, *realtime.MemoryTransport) {
	t.Helper()

	memFeed := feed.NewMemoryFeed()
	transport := realtime.NewMemoryTransport(memFeed)
	ch, err := transport.Open(context.Background(), "conversation:c1")
	require.NoError(t, err)

	tl := reconcile.NewTimeline("c1", "alice", "Alice", ch, history, persister)
	return tl, memFeed, transport
}

func TestTimeline_OpenLoadsHistory(t *testing.T) {
	t.Parallel()

	history := staticHistory([]reconcile.Message{
		{ID: "m1", ConversationID: "c1", SenderID: "bob", Content: "hi", SentAt: time.Unix(100, 0)},
		{ID: "m2", ConversationID: "c1", SenderID: "alice", Content: "hello", SentAt: time.Unix(200, 0)},
	})
	tl, _, _ := openTimeline(t, history, &fakePersister{})
	defer tl.Close()

	require.NoError(t, tl.Open(context.Background()))
	assert.Equal(t, reconcile.StateReady, tl.State())

	msgs := tl.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m2", msgs[1].ID)
	assert.Equal(t, reconcile.SourcePersisted, msgs[0].Source)
}

func TestTimeline_DegradedOpen(t *testing.T) {
	t.Parallel()

	loadErr := errors.New("history unavailable")
	history := func(_ context.Context, _ string) ([]reconcile.Message, error) {
		return nil, loadErr
	}
	tl, memFeed, _ := openTimeline(t, history, &fakePersister{})
	defer tl.Close()

	err := tl.Open(context.Background())
	require.ErrorIs(t, err, loadErr)

	// Degraded, not dead: the view is ready and live events still land.
	assert.Equal(t, reconcile.StateReady, tl.State())
	assert.ErrorIs(t, tl.LoadErr(), loadErr)

	memFeed.Notify(nil, chat.FeedTable, feed.OpInsert, chat.MessageRecord{
		ID:             "m9",
		ConversationID: "c1",
		SenderID:       "bob",
		Content:        "still here",
		CreatedAt:      time.Unix(300, 0),
	})
	msgs := tl.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "m9", msgs[0].ID)
}

func TestTimeline_SendBeforeOpen(t *testing.T) {
	t.Parallel()

	tl, _, _ := openTimeline(t, staticHistory(nil), &fakePersister{})
	defer tl.Close()

	_, err := tl.Send(context.Background(), "too early")
	assert.ErrorIs(t, err, reconcile.ErrNotReady)
}

func TestTimeline_SendConfirmsOptimisticEntry(t *testing.T) {
	t.Parallel()

	persister := &fakePersister{}
	tl, _, _ := openTimeline(t, staticHistory(nil), persister)
	defer tl.Close()
	require.NoError(t, tl.Open(context.Background()))

	sent, err := tl.Send(context.Background(), "hello there")
	require.NoError(t, err)
	assert.NotEmpty(t, sent.ID)
	assert.NotEmpty(t, sent.LocalID)

	msgs := tl.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, sent.ID, msgs[0].ID)
	assert.Equal(t, sent.LocalID, msgs[0].LocalID)
	assert.False(t, msgs[0].Unsent)
}

func TestTimeline_PersistedEchoPromotesInPlace(t *testing.T) {
	t.Parallel()

	persister := &fakePersister{}
	tl, memFeed, _ := openTimeline(t, staticHistory(nil), persister)
	defer tl.Close()
	require.NoError(t, tl.Open(context.Background()))

	sent, err := tl.Send(context.Background(), "promoted")
	require.NoError(t, err)

	// The write arrives back over the change feed, as it would from the
	// database trigger path. Same id: promote, never duplicate.
	memFeed.Notify(nil, chat.FeedTable, feed.OpInsert, chat.MessageRecord{
		ID:             sent.ID,
		ConversationID: "c1",
		SenderID:       "alice",
		SenderName:     "Alice",
		Content:        "promoted",
		CreatedAt:      sent.SentAt.Add(500 * time.Millisecond),
	})

	msgs := tl.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, reconcile.SourcePersisted, msgs[0].Source)
	assert.Equal(t, sent.LocalID, msgs[0].LocalID, "local handle survives promotion")
	assert.Equal(t, sent.SentAt, msgs[0].SentAt, "position is preserved")
}

func TestTimeline_BroadcastThenPersistedDedupesWithoutID(t *testing.T) {
	t.Parallel()

	tl, memFeed, transport := openTimeline(t, staticHistory(nil), &fakePersister{})
	defer tl.Close()
	require.NoError(t, tl.Open(context.Background()))

	sentAt := time.Now().UTC()

	// A peer's broadcast lands first, id-less.
	peer, err := transport.Open(context.Background(), "conversation:c1")
	require.NoError(t, err)
	defer peer.Close()
	require.NoError(t, peer.Publish(context.Background(), reconcile.BroadcastEventMessage, reconcile.BroadcastPayload{
		Message:   "race me",
		UserID:    "bob",
		UserName:  "Bob",
		Timestamp: sentAt,
	}))

	msgs := tl.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, reconcile.SourceBroadcast, msgs[0].Source)

	// The persisted echo differs by clock drift under the tolerance.
	memFeed.Notify(nil, chat.FeedTable, feed.OpInsert, chat.MessageRecord{
		ID:             "m42",
		ConversationID: "c1",
		SenderID:       "bob",
		SenderName:     "Bob",
		Content:        "race me",
		CreatedAt:      sentAt.Add(900 * time.Millisecond),
	})

	msgs = tl.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "m42", msgs[0].ID)
	assert.Equal(t, reconcile.SourcePersisted, msgs[0].Source)
}

func TestTimeline_DriftBeyondToleranceIsSeparate(t *testing.T) {
	t.Parallel()

	tl, memFeed, _ := openTimeline(t, staticHistory(nil), &fakePersister{})
	defer tl.Close()
	require.NoError(t, tl.Open(context.Background()))

	sentAt := time.Unix(1000, 0)
	memFeed.Notify(nil, chat.FeedTable, feed.OpInsert, chat.MessageRecord{
		ID: "a", ConversationID: "c1", SenderID: "bob", Content: "again", CreatedAt: sentAt,
	})
	memFeed.Notify(nil, chat.FeedTable, feed.OpInsert, chat.MessageRecord{
		ID: "b", ConversationID: "c1", SenderID: "bob", Content: "again", CreatedAt: sentAt.Add(10 * time.Second),
	})

	assert.Len(t, tl.Messages(), 2, "same words later are a new message")
}

func TestTimeline_LowerFidelityNeverDowngrades(t *testing.T) {
	t.Parallel()

	history := staticHistory([]reconcile.Message{
		{ID: "m1", ConversationID: "c1", SenderID: "bob", SenderName: "Bob", Content: "settled", SentAt: time.Unix(100, 0)},
	})
	tl, _, transport := openTimeline(t, history, &fakePersister{})
	defer tl.Close()
	require.NoError(t, tl.Open(context.Background()))

	// A late broadcast for the already-persisted message changes nothing.
	peer, err := transport.Open(context.Background(), "conversation:c1")
	require.NoError(t, err)
	defer peer.Close()
	require.NoError(t, peer.Publish(context.Background(), reconcile.BroadcastEventMessage, reconcile.BroadcastPayload{
		Message:   "settled",
		UserID:    "bob",
		UserName:  "Bob",
		Timestamp: time.Unix(100, 0),
	}))

	msgs := tl.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, reconcile.SourcePersisted, msgs[0].Source)
	assert.Equal(t, "m1", msgs[0].ID)
}

func TestTimeline_OrderingBySentAtWithStableTies(t *testing.T) {
	t.Parallel()

	tl, memFeed, _ := openTimeline(t, staticHistory(nil), &fakePersister{})
	defer tl.Close()
	require.NoError(t, tl.Open(context.Background()))

	at := time.Unix(500, 0)
	for _, rec := range []chat.MessageRecord{
		{ID: "late", ConversationID: "c1", SenderID: "bob", Content: "z", CreatedAt: at.Add(5 * time.Second)},
		{ID: "tie1", ConversationID: "c1", SenderID: "bob", Content: "a", CreatedAt: at},
		{ID: "tie2", ConversationID: "c1", SenderID: "bob", Content: "b", CreatedAt: at},
	} {
		memFeed.Notify(nil, chat.FeedTable, feed.OpInsert, rec)
	}

	msgs := tl.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "tie1", msgs[0].ID)
	assert.Equal(t, "tie2", msgs[1].ID, "equal timestamps keep arrival order")
	assert.Equal(t, "late", msgs[2].ID)
}

func TestTimeline_UnsentAndRetry(t *testing.T) {
	t.Parallel()

	persister := &fakePersister{fail: true}
	tl, _, _ := openTimeline(t, staticHistory(nil), persister)
	defer tl.Close()
	require.NoError(t, tl.Open(context.Background()))

	sent, err := tl.Send(context.Background(), "flaky network")
	require.Error(t, err)
	assert.True(t, sent.Unsent)

	msgs := tl.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Unsent, "failed send stays visible")

	// Retry against a recovered store.
	persister.setFail(false)
	retried, err := tl.Retry(context.Background(), sent.LocalID)
	require.NoError(t, err)
	assert.False(t, retried.Unsent)
	assert.NotEmpty(t, retried.ID)

	msgs = tl.Messages()
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Unsent)

	_, err = tl.Retry(context.Background(), sent.LocalID)
	assert.Error(t, err, "a delivered message cannot be retried")
}

func TestTimeline_OtherConversationFilteredOut(t *testing.T) {
	t.Parallel()

	tl, memFeed, _ := openTimeline(t, staticHistory(nil), &fakePersister{})
	defer tl.Close()
	require.NoError(t, tl.Open(context.Background()))

	memFeed.Notify(nil, chat.FeedTable, feed.OpInsert, chat.MessageRecord{
		ID: "foreign", ConversationID: "c2", SenderID: "bob", Content: "wrong room", CreatedAt: time.Now(),
	})

	assert.Empty(t, tl.Messages())
}

func TestTimeline_RefreshBackfillsGap(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var rows []reconcile.Message
	history := func(_ context.Context, _ string) ([]reconcile.Message, error) {
		mu.Lock()
		defer mu.Unlock()
		return append([]reconcile.Message(nil), rows...), nil
	}

	tl, _, _ := openTimeline(t, history, &fakePersister{})
	defer tl.Close()
	require.NoError(t, tl.Open(context.Background()))
	assert.Empty(t, tl.Messages())

	// A row written while the feed subscription was down.
	mu.Lock()
	rows = append(rows, reconcile.Message{
		ID: "missed", ConversationID: "c1", SenderID: "bob", Content: "gap", SentAt: time.Unix(700, 0),
	})
	mu.Unlock()

	require.NoError(t, tl.Refresh(context.Background()))
	msgs := tl.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "missed", msgs[0].ID)

	// Refreshing again dedupes against what is already there.
	require.NoError(t, tl.Refresh(context.Background()))
	assert.Len(t, tl.Messages(), 1)
}

func TestTimeline_OnChangeFires(t *testing.T) {
	t.Parallel()

	memFeed := feed.NewMemoryFeed()
	transport := realtime.NewMemoryTransport(memFeed)
	ch, err := transport.Open(context.Background(), "conversation:c1")
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []reconcile.Message
	tl := reconcile.NewTimeline("c1", "alice", "Alice", ch, staticHistory(nil), &fakePersister{},
		reconcile.WithOnChange(func(m reconcile.Message) {
			mu.Lock()
			seen = append(seen, m)
			mu.Unlock()
		}),
	)
	defer tl.Close()
	require.NoError(t, tl.Open(context.Background()))

	_, err = tl.Send(context.Background(), "observe me")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, "observe me", seen[0].Content)
}
