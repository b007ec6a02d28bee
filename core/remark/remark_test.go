package remark

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/store"
	"github.com/trezcool/maktaba/storage/slot/memory"
)

const defaultAvatar = "https://placehold.co/100x100.png"

func newService(t *testing.T) *Service {
	t.Helper()
	s := NewStore(memory.New(0), store.NewLocalBus(), core.NewTestConfig(), nil)
	books := map[string]bool{"1": true, "2": true}
	return NewService(s, func(id string) bool { return books[id] }, defaultAvatar)
}

func TestService_Add(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	nandhu := &core.Author{ID: "1", Name: "Nandhu"}

	r, res := svc.Add(ctx, "1", NewRemark{Text: "Great chapter on recursion."}, nandhu)
	require.True(t, res.Success)
	assert.Equal(t, defaultAvatar, r.AuthorAvatarURL)
	assert.Equal(t, "Nandhu", r.AuthorName)

	_, res = svc.Add(ctx, "1", NewRemark{Text: "anonymous"}, nil)
	assert.False(t, res.Success)
	assert.Equal(t, ErrNoCurrentUser, res.Cause())

	_, res = svc.Add(ctx, "404", NewRemark{Text: "lost"}, nandhu)
	assert.False(t, res.Success)
	assert.Equal(t, ErrUnknownBook, res.Cause())

	_, res = svc.Add(ctx, "2", NewRemark{Text: "other book"}, nandhu)
	require.True(t, res.Success)

	assert.Equal(t, []Remark{r}, svc.ForBook("1"))
	assert.Len(t, svc.ForBook("2"), 1)
	assert.Empty(t, svc.ForBook("3"))
}

func TestService_Delete(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	author := core.Author{ID: "1", Name: "Nandhu"}
	other := core.Author{ID: "2", Name: "Sunny"}

	r, _ := svc.Add(ctx, "1", NewRemark{Text: "mine"}, &author)

	_, allowed := svc.Delete(ctx, r.ID, other, false)
	assert.False(t, allowed)
	assert.Len(t, svc.ForBook("1"), 1)

	res, allowed := svc.Delete(ctx, r.ID, other, true)
	assert.True(t, allowed)
	assert.True(t, res.Success)
	assert.Empty(t, svc.ForBook("1"))

	_, _ = svc.Add(ctx, "2", NewRemark{Text: "a"}, &author)
	_, _ = svc.Add(ctx, "2", NewRemark{Text: "b"}, &other)
	require.True(t, svc.DeleteForBook(ctx, "2").Success)
	assert.Empty(t, svc.ForBook("2"))
}
