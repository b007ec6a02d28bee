package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maktaba/core/store"
)

func TestLocalBus(t *testing.T) {
	bus := store.NewLocalBus()

	var books, all []string
	cancelBooks := bus.Subscribe("books", func(sig store.Signal) { books = append(books, sig.Origin) })
	cancelAll := bus.Subscribe(store.AnyKey, func(sig store.Signal) { all = append(all, sig.Key) })

	bus.Publish(store.Signal{Key: "books", Origin: "a"})
	bus.Publish(store.Signal{Key: "users", Origin: "b"})
	assert.Equal(t, []string{"a"}, books)
	assert.Equal(t, []string{"books", "users"}, all)

	cancelBooks()
	cancelBooks() // idempotent
	bus.Publish(store.Signal{Key: "books", Origin: "c"})
	assert.Equal(t, []string{"a"}, books)
	assert.Equal(t, []string{"books", "users", "books"}, all)

	cancelAll()
	bus.Publish(store.Signal{Key: "books"})
	assert.Len(t, all, 3)
}

func TestLocalBus_handlerMaySubscribe(t *testing.T) {
	bus := store.NewLocalBus()
	var got int
	bus.Subscribe("k", func(store.Signal) {
		bus.Subscribe("k", func(store.Signal) { got++ })
	})
	bus.Publish(store.Signal{Key: "k"})
	bus.Publish(store.Signal{Key: "k"})
	assert.Equal(t, 1, got)
}

type fakeWatcher struct {
	keys []string
}

func (w fakeWatcher) Watch(ctx context.Context, fn func(string)) error {
	for _, k := range w.keys {
		fn(k)
	}
	<-ctx.Done()
	return nil
}

func TestRelay(t *testing.T) {
	bus := store.NewLocalBus()
	var (
		mu   sync.Mutex
		sigs []store.Signal
	)
	bus.Subscribe(store.AnyKey, func(sig store.Signal) {
		mu.Lock()
		sigs = append(sigs, sig)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Relay(ctx, fakeWatcher{keys: []string{"books", "users"}}, bus) }()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sigs) == 2
	}, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, "books", sigs[0].Key)
	assert.Equal(t, store.RemoteOrigin, sigs[0].Origin)
	assert.False(t, sigs[0].At.IsZero())
}
