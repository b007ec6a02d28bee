// Package chat implements the shared chat room. Only the latest MaxMessages are kept.
package chat

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/store"
)

const (
	MaxMessages = 50
	SlotName    = "chat-messages"
)

var ErrNoAuthor = errors.New("messages need an author")

type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (m Message) RecordID() string { return m.ID }

type NewMessage struct {
	Text string `json:"text" validate:"required,notblank,max=1000"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.Text = core.CleanString(nm.Text)
	return validate.Struct(nm)
}

func NewStore(slot store.Slot, bus store.Bus, conf *core.Config, logger core.Logger) *store.Store[Message] {
	return store.New(slot, bus, store.Options[Message]{
		Key:    store.Key(conf.Storage.Namespace, SlotName),
		Bound:  MaxMessages,
		Policy: store.Evict,
		Logger: logger,
	})
}

type Room struct {
	store *store.Store[Message]
}

func NewRoom(s *store.Store[Message]) *Room {
	return &Room{store: s}
}

// Send appends a message from author, dropping the oldest beyond MaxMessages.
func (r *Room) Send(ctx context.Context, nm NewMessage, author core.Author) (Message, store.Result) {
	if author.ID == "" {
		return Message{}, store.Failed(ErrNoAuthor, ErrNoAuthor.Error())
	}
	msg := Message{
		ID:        uuid.NewString(),
		Text:      nm.Text,
		UserID:    author.ID,
		UserName:  author.Name,
		AvatarURL: author.AvatarURL,
		Timestamp: time.Now().UTC(),
	}
	return msg, r.store.Insert(ctx, msg)
}

// Messages returns the history, oldest first.
func (r *Room) Messages() []Message {
	return r.store.All()
}

// Since returns the messages sent after t.
func (r *Room) Since(t time.Time) []Message {
	msgs := r.store.All()
	for i, m := range msgs {
		if m.Timestamp.After(t) {
			return msgs[i:]
		}
	}
	return []Message{}
}

func (r *Room) Subscribe(fn func([]Message)) (cancel func()) {
	return r.store.Subscribe(fn)
}
