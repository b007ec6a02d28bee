// Package memory is a process-local slot backend.
package memory

import (
	"context"
	"sync"

	"github.com/trezcool/maktaba/core/store"
)

type Slot struct {
	mu    sync.RWMutex
	data  map[string][]byte
	quota int64
}

var _ store.Slot = (*Slot)(nil)

// New returns an empty in-memory slot backend. A quota of 0 means unlimited.
func New(quota int64) *Slot {
	return &Slot{data: make(map[string][]byte), quota: quota}
}

func (s *Slot) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (s *Slot) Set(_ context.Context, key string, data []byte) error {
	if err := store.CheckQuota(s.quota, len(data)); err != nil {
		return err
	}
	s.mu.Lock()
	s.data[key] = append([]byte(nil), data...)
	s.mu.Unlock()
	return nil
}

func (s *Slot) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

func (s *Slot) Keys(context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make(map[string]int64, len(s.data))
	for k, v := range s.data {
		keys[k] = int64(len(v))
	}
	return keys, nil
}

func (s *Slot) Close() error { return nil }
