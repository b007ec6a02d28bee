// Package jsonfile stores every slot as `<key>.json` in a directory.
//
// Writes are atomic (temp file + rename) and serialized across processes with a
// per-slot file lock. Watch reports slots rewritten by other processes.
package jsonfile

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/store"
)

const (
	ext           = ".json"
	lockRetry     = 20 * time.Millisecond
	debounceDelay = 50 * time.Millisecond
)

type Slot struct {
	dir    string
	quota  int64
	logger core.Logger

	mu      sync.Mutex
	digests map[string][sha256.Size]byte // last content written or read by this process
}

var (
	_ store.Slot    = (*Slot)(nil)
	_ store.Watcher = (*Slot)(nil)
)

// New returns a slot backend rooted at dir, creating it if needed.
func New(dir string, quota int64, logger core.Logger) (*Slot, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating slots dir")
	}
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Slot{
		dir:     dir,
		quota:   quota,
		logger:  logger,
		digests: make(map[string][sha256.Size]byte),
	}, nil
}

func (s *Slot) path(key string) string     { return filepath.Join(s.dir, key+ext) }
func (s *Slot) lockPath(key string) string { return filepath.Join(s.dir, "."+key+".lock") }

func (s *Slot) Get(ctx context.Context, key string) ([]byte, bool, error) {
	fl := flock.New(s.lockPath(key))
	locked, err := fl.TryRLockContext(ctx, lockRetry)
	if err != nil {
		return nil, false, errors.Wrap(err, "acquiring read lock")
	}
	if !locked {
		return nil, false, errors.Wrap(ctx.Err(), "acquiring read lock")
	}
	defer func() { _ = fl.Unlock() }()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "reading slot file")
	}
	s.remember(key, data)
	return data, true, nil
}

func (s *Slot) Set(ctx context.Context, key string, data []byte) error {
	if err := store.CheckQuota(s.quota, len(data)); err != nil {
		return err
	}

	fl := flock.New(s.lockPath(key))
	locked, err := fl.TryLockContext(ctx, lockRetry)
	if err != nil {
		return errors.Wrap(err, "acquiring write lock")
	}
	if !locked {
		return errors.Wrap(ctx.Err(), "acquiring write lock")
	}
	defer func() { _ = fl.Unlock() }()

	tmp, err := os.CreateTemp(s.dir, "."+key+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "writing temp file")
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "syncing temp file")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temp file")
	}

	s.remember(key, data)
	if err = os.Rename(tmp.Name(), s.path(key)); err != nil {
		s.forget(key)
		return errors.Wrap(err, "renaming temp file")
	}
	return nil
}

func (s *Slot) Remove(ctx context.Context, key string) error {
	fl := flock.New(s.lockPath(key))
	locked, err := fl.TryLockContext(ctx, lockRetry)
	if err != nil {
		return errors.Wrap(err, "acquiring write lock")
	}
	if !locked {
		return errors.Wrap(ctx.Err(), "acquiring write lock")
	}
	defer func() { _ = fl.Unlock() }()

	s.remember(key, nil)
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing slot file")
	}
	return nil
}

func (s *Slot) Keys(context.Context) (map[string]int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, "reading slots dir")
	}
	keys := make(map[string]int64)
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ext {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		keys[strings.TrimSuffix(name, ext)] = info.Size()
	}
	return keys, nil
}

func (s *Slot) Close() error { return nil }

// Watch reports slot files whose content differs from what this process last wrote or read.
func (s *Slot) Watch(ctx context.Context, fn func(key string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating watcher")
	}
	defer func() { _ = watcher.Close() }()

	if err = watcher.Add(s.dir); err != nil {
		return errors.Wrap(err, "watching slots dir")
	}

	ticker := time.NewTicker(debounceDelay)
	defer ticker.Stop()
	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(event.Name)
			if strings.HasPrefix(name, ".") || filepath.Ext(name) != ext {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending[strings.TrimSuffix(name, ext)] = struct{}{}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("slot watcher error", err)

		case <-ticker.C:
			for key := range pending {
				delete(pending, key)
				if s.changedExternally(key) {
					fn(key)
				}
			}
		}
	}
}

func (s *Slot) changedExternally(key string) bool {
	data, err := os.ReadFile(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return false
	}

	digest := sha256.Sum256(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.digests[key]; ok && last == digest {
		return false
	}
	s.digests[key] = digest
	return true
}

func (s *Slot) remember(key string, data []byte) {
	s.mu.Lock()
	s.digests[key] = sha256.Sum256(data)
	s.mu.Unlock()
}

func (s *Slot) forget(key string) {
	s.mu.Lock()
	delete(s.digests, key)
	s.mu.Unlock()
}
