// Package postgres keeps slots in a PostgreSQL table and relays changes made by other
// processes through LISTEN/NOTIFY.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/trezcool/goose"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/store"
	"github.com/trezcool/maktaba/fs"
)

const channel = "slot_changes"

type Slot struct {
	db     *sqlx.DB
	dsn    string
	origin string
	quota  int64
	logger core.Logger
}

var (
	_ store.Slot    = (*Slot)(nil)
	_ store.Watcher = (*Slot)(nil)
)

func dsn(dbName string, admin bool, conf *core.Config) string {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.Database.Engine,
		User:     user,
		Host:     conf.DatabaseAddress(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// OpenDB connects to the configured database and waits for it to be ready.
func OpenDB(conf *core.Config) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn(conf.Database.Name, false, conf))
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = ping(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Open connects to the configured database, creating and migrating it if needed.
func Open(conf *core.Config, quota int64, logger core.Logger) (*Slot, error) {
	if err := CreateIfNotExist(conf); err != nil {
		return nil, errors.Wrap(err, "creating database")
	}
	db, err := OpenDB(conf)
	if err != nil {
		return nil, err
	}
	if err = Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Slot{
		db:     db,
		dsn:    dsn(conf.Database.Name, false, conf),
		origin: uuid.NewString(),
		quota:  quota,
		logger: logger,
	}, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sql.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

// CreateIfNotExist creates the app database, connecting as the admin user.
func CreateIfNotExist(conf *core.Config) error {
	db, err := sqlx.Open("postgres", dsn("postgres", true, conf))
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = ping(db.DB); err != nil {
		return errors.Wrap(err, "pinging database")
	}

	var exists bool
	if err = db.Get(&exists, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, conf.Database.Name); err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !exists {
		if _, err = db.Exec(fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(conf.Database.Name))); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// Migrate applies all pending embedded migrations.
func Migrate(db *sql.DB) error {
	if err := goose.RunFS("up", db, appfs.FS, "migrations"); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}

// DB exposes the underlying connection pool, e.g. for admin migrations.
func (s *Slot) DB() *sql.DB { return s.db.DB }

func (s *Slot) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.GetContext(ctx, &data, `SELECT data FROM slots WHERE key = $1`, key)
	switch {
	case err == sql.ErrNoRows:
		return nil, false, nil
	case err != nil:
		return nil, false, errors.Wrap(err, "selecting slot")
	}
	if data == nil {
		data = []byte{}
	}
	return data, true, nil
}

func (s *Slot) Set(ctx context.Context, key string, data []byte) error {
	if err := store.CheckQuota(s.quota, len(data)); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO slots (key, data, updated_at) VALUES ($1, $2, NOW())
			ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
			key, data,
		)
		return errors.Wrap(err, "upserting slot")
	})
}

func (s *Slot) Remove(ctx context.Context, key string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM slots WHERE key = $1`, key)
		return errors.Wrap(err, "deleting slot")
	})
}

// inTx runs fn in a transaction tagged with this process' origin, which the notify trigger
// copies into its payload.
func (s *Slot) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if _, err = tx.ExecContext(ctx, `SELECT set_config('maktaba.origin', $1, true)`, s.origin); err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "tagging transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (s *Slot) Keys(ctx context.Context) (map[string]int64, error) {
	rows := []struct {
		Key  string `db:"key"`
		Size int64  `db:"size"`
	}{}
	if err := s.db.SelectContext(ctx, &rows, `SELECT key, octet_length(data) AS size FROM slots`); err != nil {
		return nil, errors.Wrap(err, "listing slots")
	}
	keys := make(map[string]int64, len(rows))
	for _, r := range rows {
		keys[r.Key] = r.Size
	}
	return keys, nil
}

func (s *Slot) Close() error { return s.db.Close() }

type notification struct {
	Key    string `json:"key"`
	Origin string `json:"origin"`
}

// Watch listens for slot change notifications sent by other processes.
func (s *Slot) Watch(ctx context.Context, fn func(key string)) error {
	listener := pq.NewListener(s.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			s.logger.Warn("slot listener event", err)
		}
	})
	defer func() { _ = listener.Close() }()

	if err := listener.Listen(channel); err != nil {
		return errors.Wrap(err, "listening to slot changes")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			if n == nil { // connection re-established
				continue
			}
			var payload notification
			if err := json.Unmarshal([]byte(n.Extra), &payload); err != nil {
				s.logger.Warn("decoding slot notification", err)
				continue
			}
			if payload.Origin != s.origin {
				fn(payload.Key)
			}
		case <-time.After(90 * time.Second):
			go func() { _ = listener.Ping() }()
		}
	}
}
