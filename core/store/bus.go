package store

import (
	"context"
	"sync"
	"time"
)

// AnyKey subscribes to every slot.
const AnyKey = "*"

// Signal announces that a slot changed.
type Signal struct {
	Key    string    `json:"key"`
	Origin string    `json:"origin,omitempty"`
	At     time.Time `json:"at"`
}

// Bus carries change signals between stores and to outside observers.
type Bus interface {
	Publish(sig Signal)
	// Subscribe registers fn for signals on key (or AnyKey) and returns its cancel function.
	Subscribe(key string, fn func(Signal)) (cancel func())
}

// LocalBus is an in-process Bus. Handlers run synchronously in the publisher's goroutine,
// in subscription order.
type LocalBus struct {
	mu   sync.RWMutex
	next int
	subs map[string][]subscription
}

type subscription struct {
	id int
	fn func(Signal)
}

var _ Bus = (*LocalBus)(nil)

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string][]subscription)}
}

func (b *LocalBus) Publish(sig Signal) {
	if sig.At.IsZero() {
		sig.At = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := make([]func(Signal), 0, len(b.subs[sig.Key])+len(b.subs[AnyKey]))
	for _, s := range b.subs[sig.Key] {
		handlers = append(handlers, s.fn)
	}
	if sig.Key != AnyKey {
		for _, s := range b.subs[AnyKey] {
			handlers = append(handlers, s.fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(sig)
	}
}

func (b *LocalBus) Subscribe(key string, fn func(Signal)) func() {
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[key] = append(b.subs[key], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[key]
			for i, s := range subs {
				if s.id == id {
					b.subs[key] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(b.subs[key]) == 0 {
				delete(b.subs, key)
			}
		})
	}
}

// RemoteOrigin marks signals relayed from a slot Watcher.
const RemoteOrigin = "remote"

// Relay publishes a signal on bus for every external slot change reported by w.
// It blocks until ctx is done.
func Relay(ctx context.Context, w Watcher, bus Bus) error {
	return w.Watch(ctx, func(key string) {
		bus.Publish(Signal{Key: key, Origin: RemoteOrigin})
	})
}
