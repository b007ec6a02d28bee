// Package notification implements the bounded notification feed.
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/store"
)

// MaxNotifications is the feed size; older notifications are evicted.
const MaxNotifications = 10

const SlotName = "notifications"

type Type string

const (
	TypeWelcome  Type = "welcome"
	TypeNewBook  Type = "new_book"
	TypeSecurity Type = "security"
	TypeGeneral  Type = "general"
)

var Types = []Type{TypeWelcome, TypeNewBook, TypeSecurity, TypeGeneral}

type Notification struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Read        bool      `json:"read"`
	Timestamp   time.Time `json:"timestamp"`
	Type        Type      `json:"type"`
}

func (n Notification) RecordID() string { return n.ID }

// New contains information needed to produce a Notification.
type New struct {
	Title       string `json:"title" validate:"required,notblank,max=120"`
	Description string `json:"description" validate:"required,notblank,max=500"`
	Type        Type   `json:"type" validate:"omitempty,oneof=welcome new_book security general"`
}

var nowFunc = time.Now // mockable

func seed(now time.Time) []Notification {
	day := 24 * time.Hour
	return []Notification{
		{
			ID:          "1",
			Title:       "Welcome to B-Tech Hub!",
			Description: "Explore our vast collection of academic and non-academic books.",
			Read:        true,
			Timestamp:   now.Add(-5 * day).UTC(),
			Type:        TypeWelcome,
		},
		{
			ID:          "2",
			Title:       "Security Alert",
			Description: "A new device has logged into your account. If this wasn't you, please secure your account.",
			Read:        true,
			Timestamp:   now.Add(-5 * day).UTC(),
			Type:        TypeSecurity,
		},
		{
			ID:          "3",
			Title:       "New Book Added!",
			Description: `"Introduction to Algorithms" is now available in the library.`,
			Read:        true,
			Timestamp:   now.Add(-6 * day).UTC(),
			Type:        TypeNewBook,
		},
	}
}

// NewStore returns the feed's collection store.
func NewStore(slot store.Slot, bus store.Bus, conf *core.Config, logger core.Logger) *store.Store[Notification] {
	return store.New(slot, bus, store.Options[Notification]{
		Key:     store.Key(conf.Storage.Namespace, SlotName),
		Seed:    seed(nowFunc()),
		Bound:   MaxNotifications,
		Policy:  store.Evict,
		Prepend: true,
		Logger:  logger,
	})
}

// Feed produces and consumes notifications.
type Feed struct {
	store *store.Store[Notification]
}

func NewFeed(s *store.Store[Notification]) *Feed {
	return &Feed{store: s}
}

// Produce prepends a fresh unread notification, evicting the oldest beyond MaxNotifications.
func (f *Feed) Produce(ctx context.Context, nn New) (Notification, store.Result) {
	if nn.Type == "" {
		nn.Type = TypeGeneral
	}
	n := Notification{
		ID:          uuid.NewString(),
		Title:       core.CleanString(nn.Title),
		Description: core.CleanString(nn.Description),
		Timestamp:   nowFunc().UTC(),
		Type:        nn.Type,
	}
	return n, f.store.Insert(ctx, n)
}

// MarkAllRead marks every notification as read in a single write.
func (f *Feed) MarkAllRead(ctx context.Context) store.Result {
	return f.store.Replace(ctx, func(items []Notification) []Notification {
		for i := range items {
			items[i].Read = true
		}
		return items
	})
}

// Clear empties the feed.
func (f *Feed) Clear(ctx context.Context) store.Result {
	return f.store.Replace(ctx, func([]Notification) []Notification { return nil })
}

func (f *Feed) All() []Notification {
	return f.store.All()
}

func (f *Feed) UnreadCount() int {
	var n int
	for _, item := range f.store.All() {
		if !item.Read {
			n++
		}
	}
	return n
}

func (f *Feed) Subscribe(fn func([]Notification)) (cancel func()) {
	return f.store.Subscribe(fn)
}
