package realtime_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealio_backend/internal/realtime"
	"mealio_backend/internal/realtime/feed"
)

type ping struct {
	N int `json:"n"`
}

func TestMemoryTransport_PublisherDoesNotHearItself(t *testing.T) {
	t.Parallel()

	transport := realtime.NewMemoryTransport(feed.NewMemoryFeed())
	chA := openChannel(t, transport, "topic")
	chB := openChannel(t, transport, "topic")
	defer chA.Close()
	defer chB.Close()

	var gotA, gotB []ping
	chA.OnBroadcast("ping", func(payload json.RawMessage) {
		var p ping
		require.NoError(t, json.Unmarshal(payload, &p))
		gotA = append(gotA, p)
	})
	chB.OnBroadcast("ping", func(payload json.RawMessage) {
		var p ping
		require.NoError(t, json.Unmarshal(payload, &p))
		gotB = append(gotB, p)
	})

	require.NoError(t, chA.Publish(context.Background(), "ping", ping{N: 1}))

	assert.Empty(t, gotA, "the sender's own handle stays silent")
	require.Len(t, gotB, 1)
	assert.Equal(t, 1, gotB[0].N)
}

func TestMemoryTransport_TopicsAreIsolated(t *testing.T) {
	t.Parallel()

	transport := realtime.NewMemoryTransport(feed.NewMemoryFeed())
	chA := openChannel(t, transport, "topic-a")
	chB := openChannel(t, transport, "topic-b")
	defer chA.Close()
	defer chB.Close()

	var got int
	chB.OnBroadcast("ping", func(json.RawMessage) { got++ })

	require.NoError(t, chA.Publish(context.Background(), "ping", ping{N: 1}))
	assert.Zero(t, got)
}

func TestChannel_CloseReleasesSubscriptions(t *testing.T) {
	t.Parallel()

	memFeed := feed.NewMemoryFeed()
	transport := realtime.NewMemoryTransport(memFeed)
	chA := openChannel(t, transport, "topic")
	chB := openChannel(t, transport, "topic")
	defer chB.Close()

	var broadcasts, changes int
	chA.OnBroadcast("ping", func(json.RawMessage) { broadcasts++ })
	chA.OnPersistedChange("rows", feed.OpInsert, nil, func(feed.Event) { changes++ })

	require.NoError(t, chA.Close())
	require.NoError(t, chA.Close(), "close is idempotent")

	require.NoError(t, chB.Publish(context.Background(), "ping", ping{N: 1}))
	memFeed.Notify(nil, "rows", feed.OpInsert, map[string]string{"id": "r1"})

	assert.Zero(t, broadcasts, "no broadcast delivery after close")
	assert.Zero(t, changes, "no feed delivery after close")
}

func TestChannel_PersistedChangeFilter(t *testing.T) {
	t.Parallel()

	memFeed := feed.NewMemoryFeed()
	transport := realtime.NewMemoryTransport(memFeed)
	ch := openChannel(t, transport, "topic")
	defer ch.Close()

	var got []string
	filter := func(ev feed.Event) bool {
		var rec struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(ev.Record, &rec); err != nil {
			return false
		}
		return rec.Kind == "wanted"
	}
	ch.OnPersistedChange("rows", feed.OpInsert, filter, func(ev feed.Event) {
		var rec struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(ev.Record, &rec))
		got = append(got, rec.ID)
	})

	memFeed.Notify(nil, "rows", feed.OpInsert, map[string]string{"id": "r1", "kind": "wanted"})
	memFeed.Notify(nil, "rows", feed.OpInsert, map[string]string{"id": "r2", "kind": "other"})
	memFeed.Notify(nil, "rows", feed.OpUpdate, map[string]string{"id": "r3", "kind": "wanted"})
	memFeed.Notify(nil, "other_table", feed.OpInsert, map[string]string{"id": "r4", "kind": "wanted"})

	assert.Equal(t, []string{"r1"}, got)
}
