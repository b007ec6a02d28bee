// Package slottest holds the conformance tests every slot backend must pass.
package slottest

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maktaba/core/store"
)

// Run exercises a backend. newSlot must return an empty backend; quotaSlot one limited to 64 bytes.
func Run(t *testing.T, newSlot, quotaSlot func(t *testing.T) store.Slot) {
	ctx := context.Background()

	t.Run("absent slot", func(t *testing.T) {
		s := newSlot(t)
		data, found, err := s.Get(ctx, "lol")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, data)
	})

	t.Run("set then get", func(t *testing.T) {
		s := newSlot(t)
		require.NoError(t, s.Set(ctx, "books", []byte(`[{"id":"1"}]`)))
		data, found, err := s.Get(ctx, "books")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, `[{"id":"1"}]`, string(data))

		require.NoError(t, s.Set(ctx, "books", []byte(`[]`)))
		data, _, err = s.Get(ctx, "books")
		require.NoError(t, err)
		assert.Equal(t, `[]`, string(data))
	})

	t.Run("remove", func(t *testing.T) {
		s := newSlot(t)
		require.NoError(t, s.Set(ctx, "books", []byte(`[]`)))
		require.NoError(t, s.Remove(ctx, "books"))
		_, found, err := s.Get(ctx, "books")
		require.NoError(t, err)
		assert.False(t, found)

		// removing an absent slot is fine
		require.NoError(t, s.Remove(ctx, "books"))
	})

	t.Run("keys", func(t *testing.T) {
		s := newSlot(t)
		require.NoError(t, s.Set(ctx, "maktaba-books", []byte(`[1,2,3]`)))
		require.NoError(t, s.Set(ctx, "maktaba-users", []byte(`[]`)))
		keys, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"maktaba-books": 7, "maktaba-users": 2}, keys)
	})

	t.Run("quota", func(t *testing.T) {
		s := quotaSlot(t)
		require.NoError(t, s.Set(ctx, "books", []byte(`[]`)))

		err := s.Set(ctx, "books", []byte("["+strings.Repeat(`"x",`, 20)+`"x"]`))
		require.Error(t, err)
		assert.Equal(t, store.ErrQuotaExceeded, errors.Cause(err))

		// the previous content survives
		data, _, err := s.Get(ctx, "books")
		require.NoError(t, err)
		assert.Equal(t, `[]`, string(data))
	})
}
