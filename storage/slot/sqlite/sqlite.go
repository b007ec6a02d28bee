// Package sqlite keeps slots as rows of a single SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS slots (
	key        TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

type Slot struct {
	db    *sqlx.DB
	quota int64
}

var _ store.Slot = (*Slot)(nil)

// Open opens (creating if needed) the SQLite database at path. Use ":memory:" for tests.
func Open(path string, quota int64) (*Slot, error) {
	dsn := "file:" + path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite")
	}
	// a single writer avoids SQLITE_BUSY under WAL
	db.SetMaxOpenConns(1)

	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "creating slots table")
	}
	return &Slot{db: db, quota: quota}, nil
}

func (s *Slot) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.GetContext(ctx, &data, `SELECT data FROM slots WHERE key = ?`, key)
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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slots (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key, data, time.Now().UTC(),
	)
	return errors.Wrap(err, "upserting slot")
}

func (s *Slot) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE key = ?`, key)
	return errors.Wrap(err, "deleting slot")
}

func (s *Slot) Keys(ctx context.Context) (map[string]int64, error) {
	rows := []struct {
		Key  string `db:"key"`
		Size int64  `db:"size"`
	}{}
	if err := s.db.SelectContext(ctx, &rows, `SELECT key, length(data) AS size FROM slots`); err != nil {
		return nil, errors.Wrap(err, "listing slots")
	}
	keys := make(map[string]int64, len(rows))
	for _, r := range rows {
		keys[r.Key] = r.Size
	}
	return keys, nil
}

func (s *Slot) Close() error { return s.db.Close() }
