// Package remark keeps the remarks readers leave on books.
package remark

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/store"
)

const SlotName = "remarks"

var (
	ErrNoCurrentUser = errors.New("log in to leave a remark")
	ErrUnknownBook   = errors.New("book not found")
)

type Remark struct {
	ID              string    `json:"id"`
	BookID          string    `json:"book_id"`
	Text            string    `json:"text"`
	AuthorID        string    `json:"author_id"`
	AuthorName      string    `json:"author_name"`
	AuthorAvatarURL string    `json:"author_avatar_url"`
	Timestamp       time.Time `json:"timestamp"`
}

func (r Remark) RecordID() string { return r.ID }

type NewRemark struct {
	Text string `json:"text" validate:"required,notblank,max=2000"`
}

func (nr *NewRemark) Validate(validate *validator.Validate) error {
	nr.Text = core.CleanString(nr.Text)
	return validate.Struct(nr)
}

// BookFinder tells whether a book exists.
type BookFinder func(id string) bool

func NewStore(slot store.Slot, bus store.Bus, conf *core.Config, logger core.Logger) *store.Store[Remark] {
	return store.New(slot, bus, store.Options[Remark]{
		Key:    store.Key(conf.Storage.Namespace, SlotName),
		Logger: logger,
	})
}

type Service struct {
	store    *store.Store[Remark]
	hasBook  BookFinder
	fallback string
}

func NewService(s *store.Store[Remark], hasBook BookFinder, defaultAvatarURL string) *Service {
	return &Service{store: s, hasBook: hasBook, fallback: defaultAvatarURL}
}

// Add appends a remark by author on the book. A remark requires a current user.
func (svc *Service) Add(ctx context.Context, bookID string, nr NewRemark, author *core.Author) (Remark, store.Result) {
	if author == nil || author.ID == "" {
		return Remark{}, store.Failed(ErrNoCurrentUser, ErrNoCurrentUser.Error())
	}
	if svc.hasBook != nil && !svc.hasBook(bookID) {
		return Remark{}, store.Failed(ErrUnknownBook, ErrUnknownBook.Error())
	}
	avatar := author.AvatarURL
	if avatar == "" {
		avatar = svc.fallback
	}
	r := Remark{
		ID:              uuid.NewString(),
		BookID:          bookID,
		Text:            nr.Text,
		AuthorID:        author.ID,
		AuthorName:      author.Name,
		AuthorAvatarURL: avatar,
		Timestamp:       time.Now().UTC(),
	}
	return r, svc.store.Insert(ctx, r)
}

// ForBook returns the remarks on a book, oldest first.
func (svc *Service) ForBook(bookID string) []Remark {
	all := svc.store.All()
	out := make([]Remark, 0)
	for _, r := range all {
		if r.BookID == bookID {
			out = append(out, r)
		}
	}
	return out
}

// Delete removes a remark. Only its author or an admin may do so.
func (svc *Service) Delete(ctx context.Context, id string, by core.Author, isAdmin bool) (store.Result, bool) {
	r, ok := svc.store.Get(id)
	if !ok {
		return store.Result{Success: true}, true
	}
	if !isAdmin && r.AuthorID != by.ID {
		return store.Result{}, false
	}
	return svc.store.Delete(ctx, id), true
}

// DeleteForBook drops every remark on a deleted book.
func (svc *Service) DeleteForBook(ctx context.Context, bookID string) store.Result {
	ids := make([]string, 0)
	for _, r := range svc.ForBook(bookID) {
		ids = append(ids, r.ID)
	}
	if len(ids) == 0 {
		return store.Result{Success: true}
	}
	return svc.store.DeleteMany(ctx, ids...)
}
