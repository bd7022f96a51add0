package feed_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealio_backend/internal/realtime/feed"
)

func TestMemoryFeed_SubscribeAndNotify(t *testing.T) {
	t.Parallel()

	f := feed.NewMemoryFeed()

	var got []feed.Event
	f.Subscribe("rows", feed.OpInsert, nil, func(ev feed.Event) {
		got = append(got, ev)
	})

	require.NoError(t, f.Notify(nil, "rows", feed.OpInsert, map[string]string{"id": "r1"}))
	require.NoError(t, f.Notify(nil, "rows", feed.OpDelete, map[string]string{"id": "r2"}))
	require.NoError(t, f.Notify(nil, "other", feed.OpInsert, map[string]string{"id": "r3"}))

	require.Len(t, got, 1)
	assert.Equal(t, "rows", got[0].Table)
	assert.Equal(t, feed.OpInsert, got[0].Op)
	assert.JSONEq(t, `{"id":"r1"}`, string(got[0].Record))
	assert.False(t, got[0].OccurredAt.IsZero())
}

func TestMemoryFeed_OpAllMatchesEveryMutation(t *testing.T) {
	t.Parallel()

	f := feed.NewMemoryFeed()

	var ops []feed.Op
	f.Subscribe("rows", feed.OpAll, nil, func(ev feed.Event) {
		ops = append(ops, ev.Op)
	})

	f.Notify(nil, "rows", feed.OpInsert, map[string]string{})
	f.Notify(nil, "rows", feed.OpUpdate, map[string]string{})
	f.Notify(nil, "rows", feed.OpDelete, map[string]string{})

	assert.Equal(t, []feed.Op{feed.OpInsert, feed.OpUpdate, feed.OpDelete}, ops)
}

func TestMemoryFeed_UnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	f := feed.NewMemoryFeed()

	var count int
	unsub := f.Subscribe("rows", feed.OpInsert, nil, func(feed.Event) { count++ })

	f.Notify(nil, "rows", feed.OpInsert, map[string]string{})
	unsub()
	unsub() // safe to call twice
	f.Notify(nil, "rows", feed.OpInsert, map[string]string{})

	assert.Equal(t, 1, count)
}

func TestMemoryFeed_PanickingHandlerIsContained(t *testing.T) {
	t.Parallel()

	f := feed.NewMemoryFeed()

	f.Subscribe("rows", feed.OpInsert, nil, func(feed.Event) {
		panic("bad subscriber")
	})
	var survived bool
	f.Subscribe("rows", feed.OpInsert, nil, func(feed.Event) { survived = true })

	require.NotPanics(t, func() {
		f.Notify(nil, "rows", feed.OpInsert, map[string]string{})
	})
	assert.True(t, survived, "other subscribers still run")
}
