package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/store"
	"github.com/trezcool/maktaba/storage/slot/slottest"
)

// open connects to the database named by TEST_DATABASE_HOST; tests are skipped without one.
func open(t *testing.T, quota int64) store.Slot {
	host := os.Getenv("TEST_DATABASE_HOST")
	if host == "" {
		t.Skip("TEST_DATABASE_HOST not set")
	}
	conf := core.NewTestConfig()
	conf.Database.Engine = "postgres"
	conf.Database.Host = host
	conf.Database.Port = "5432"
	conf.Database.Name = "maktaba_test"
	conf.Database.User = "postgres"
	conf.Database.Password = os.Getenv("TEST_DATABASE_PASSWORD")
	conf.Database.DisableTLS = true

	s, err := Open(conf, quota, nil)
	require.NoError(t, err)
	_, err = s.db.Exec(`TRUNCATE slots`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(context.Background(), `TRUNCATE slots`)
		_ = s.Close()
	})
	return s
}

func TestSlot(t *testing.T) {
	slottest.Run(t,
		func(t *testing.T) store.Slot { return open(t, 0) },
		func(t *testing.T) store.Slot { return open(t, 64) },
	)
}
