package notification

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/store"
	"github.com/trezcool/maktaba/storage/slot/memory"
)

func newFeed(t *testing.T) (*Feed, store.Slot) {
	sl := memory.New(0)
	s := NewStore(sl, store.NewLocalBus(), core.NewTestConfig(), nil)
	t.Cleanup(s.Close)
	return NewFeed(s), sl
}

func TestFeed_seed(t *testing.T) {
	feed, _ := newFeed(t)
	items := feed.All()
	require.Len(t, items, 3)
	assert.Equal(t, "Welcome to B-Tech Hub!", items[0].Title)
	assert.Equal(t, 0, feed.UnreadCount())
}

func TestFeed_Produce(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = time.Now }()

	feed, _ := newFeed(t)
	n, res := feed.Produce(context.Background(), New{Title: " New Book Added! 📚 ", Description: `"SICP" is now available in the library.`, Type: TypeNewBook})
	require.True(t, res.Success)

	assert.NotEmpty(t, n.ID)
	assert.Equal(t, "New Book Added! 📚", n.Title)
	assert.False(t, n.Read)
	assert.Equal(t, now, n.Timestamp)
	assert.Equal(t, n, feed.All()[0])
	assert.Equal(t, 1, feed.UnreadCount())

	n, _ = feed.Produce(context.Background(), New{Title: "hi", Description: "there"})
	assert.Equal(t, TypeGeneral, n.Type)
}

func TestFeed_bound(t *testing.T) {
	feed, _ := newFeed(t)
	ctx := context.Background()

	var lastID string
	for i := 0; i < 2*MaxNotifications; i++ {
		n, res := feed.Produce(ctx, New{Title: fmt.Sprintf("n%d", i), Description: "d"})
		require.True(t, res.Success)
		lastID = n.ID
		assert.LessOrEqual(t, len(feed.All()), MaxNotifications)
	}
	items := feed.All()
	assert.Len(t, items, MaxNotifications)
	assert.Equal(t, lastID, items[0].ID)
	assert.Equal(t, fmt.Sprintf("n%d", MaxNotifications), items[MaxNotifications-1].Title)
}

func TestFeed_MarkAllReadAndClear(t *testing.T) {
	feed, sl := newFeed(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		feed.Produce(ctx, New{Title: "t", Description: "d"})
	}
	require.Equal(t, 3, feed.UnreadCount())

	require.True(t, feed.MarkAllRead(ctx).Success)
	assert.Equal(t, 0, feed.UnreadCount())
	assert.Len(t, feed.All(), 6)

	require.True(t, feed.Clear(ctx).Success)
	assert.Empty(t, feed.All())
	data, found, err := sl.Get(ctx, "maktaba-notifications")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "[]", string(data))
}
