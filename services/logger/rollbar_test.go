package logsvc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/session"
	"github.com/trezcool/maktaba/core/user"
)

func newObservedLogger(t *testing.T) (*RollbarLogger, *observer.ObservedLogs) {
	t.Helper()
	obsCore, logs := observer.New(zap.DebugLevel)
	l := NewRollbarLogger(zap.New(obsCore), core.NewTestConfig())
	l.Enable(false)
	return l, logs
}

func TestRollbarLogger_Fields(t *testing.T) {
	l, logs := newObservedLogger(t)

	usr := user.User{ID: "7", Name: "Sunny", Email: "sunny@example.com"}
	l.Error("saving book", errors.New("disk full"), usr, map[string]interface{}{"book": "42"})

	entries := logs.All()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "saving book", e.Message)
	ctx := e.ContextMap()
	assert.Equal(t, "7", ctx["user_id"])
	assert.Equal(t, "disk full", ctx["error"])
	assert.Equal(t, map[string]interface{}{"book": "42"}, ctx["extras"])
}

func TestRollbarLogger_SessionIdentity(t *testing.T) {
	l, logs := newObservedLogger(t)

	l.Warn("guard", session.Identity{ID: "s1", UserID: "u1", Name: "N", Email: "n@x.test"})
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "u1", ctx["user_id"])
	assert.Equal(t, "s1", ctx["session_id"])
}

func TestRollbarLogger_Levels(t *testing.T) {
	l, logs := newObservedLogger(t)

	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")

	var levels []string
	for _, e := range logs.All() {
		levels = append(levels, e.Level.String())
	}
	assert.Equal(t, []string{"debug", "info", "warn", "error"}, levels)
}
