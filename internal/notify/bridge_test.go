package notify_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealio_backend/internal/models"
	"mealio_backend/internal/notify"
	"mealio_backend/internal/realtime/feed"
	"mealio_backend/internal/repositories"
)

type fakeHub struct {
	mu     sync.Mutex
	pushes map[string][]any
}

func newFakeHub() *fakeHub {
	return &fakeHub{pushes: make(map[string][]any)}
}

func (h *fakeHub) PushToUser(userID string, payload any) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pushes[userID] = append(h.pushes[userID], payload)
	return true
}

func (h *fakeHub) count(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pushes[userID])
}

// syncTrackingStore reports created=true only for unseen ids.
type syncTrackingStore struct {
	fakeNotificationStore
	mu   sync.Mutex
	seen map[string]bool
}

func (s *syncTrackingStore) SyncFromFeed(record models.NotificationRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if record.ID == "" || s.seen[record.ID] {
		return false, nil
	}
	s.seen[record.ID] = true
	return true, nil
}

func TestFeedBridge_PushesNewRecords(t *testing.T) {
	t.Parallel()

	memFeed := feed.NewMemoryFeed()
	hub := newFakeHub()
	store := &syncTrackingStore{}
	bridge := notify.NewFeedBridge(memFeed, store, hub)
	bridge.Start()
	defer bridge.Stop()

	record := models.NotificationRecord{
		ID:     "remote-1",
		UserID: "u1",
		Type:   models.NotificationTypeOrderStatus,
		Title:  "From another node",
	}
	require.NoError(t, memFeed.Notify(nil, repositories.NotificationsTable, feed.OpInsert, record))

	assert.Equal(t, 1, hub.count("u1"))
}

func TestFeedBridge_DropsEchoes(t *testing.T) {
	t.Parallel()

	memFeed := feed.NewMemoryFeed()
	hub := newFakeHub()
	store := &syncTrackingStore{}
	bridge := notify.NewFeedBridge(memFeed, store, hub)
	bridge.Start()
	defer bridge.Stop()

	record := models.NotificationRecord{ID: "dup-1", UserID: "u1", Type: models.NotificationTypeOrderStatus, Title: "x"}
	memFeed.Notify(nil, repositories.NotificationsTable, feed.OpInsert, record)
	memFeed.Notify(nil, repositories.NotificationsTable, feed.OpInsert, record)

	assert.Equal(t, 1, hub.count("u1"), "the duplicate is silent")
}

func TestFeedBridge_StopUnsubscribes(t *testing.T) {
	t.Parallel()

	memFeed := feed.NewMemoryFeed()
	hub := newFakeHub()
	bridge := notify.NewFeedBridge(memFeed, &syncTrackingStore{}, hub)
	bridge.Start()
	bridge.Stop()

	memFeed.Notify(nil, repositories.NotificationsTable, feed.OpInsert, models.NotificationRecord{
		ID: "late-1", UserID: "u1", Type: models.NotificationTypeOrderStatus, Title: "x",
	})

	assert.Zero(t, hub.count("u1"))
}
