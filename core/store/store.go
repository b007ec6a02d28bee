// Package store implements a generic reactive collection kept in a persistent slot.
//
// A Store hydrates its in-memory cache from the slot (seeding it on first use), applies
// mutations to the cache and the slot together and announces every change on a Bus.
// Stores sharing a slot key react to each other's signals by re-hydrating from the slot.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
)

// Record is an entity with an id unique within its collection.
type Record interface {
	RecordID() string
}

// Policy decides what happens when an insert would exceed the bound.
type Policy int

const (
	// Reject refuses inserts once the number of non-seed records reaches the bound.
	Reject Policy = iota
	// Evict drops the oldest records so the whole collection stays within the bound.
	Evict
)

type Options[T Record] struct {
	Key     string
	Seed    []T
	Bound   int // 0 means unbounded
	Policy  Policy
	Prepend bool // newest first
	// Sanitize is applied to every record before it is persisted.
	Sanitize func(T) T
	Logger   core.Logger
}

type Store[T Record] struct {
	opts    Options[T]
	slot    Slot
	bus     Bus
	origin  string
	seedIDs map[string]struct{}

	mu     sync.RWMutex
	items  []T
	raw    []byte
	loaded bool

	obsMu     sync.Mutex
	observers map[int]func([]T)
	nextObs   int

	cancelSub func()
}

// New builds a Store over slot and subscribes it to bus for changes made by other stores.
// The slot is not read until the first Load or mutation.
func New[T Record](slot Slot, bus Bus, opts Options[T]) *Store[T] {
	if opts.Logger == nil {
		opts.Logger = core.NopLogger{}
	}
	if opts.Sanitize != nil {
		for i := range opts.Seed {
			opts.Seed[i] = opts.Sanitize(opts.Seed[i])
		}
	}

	s := &Store[T]{
		opts:      opts,
		slot:      slot,
		bus:       bus,
		origin:    uuid.NewString(),
		seedIDs:   make(map[string]struct{}, len(opts.Seed)),
		observers: make(map[int]func([]T)),
	}
	for _, r := range opts.Seed {
		s.seedIDs[r.RecordID()] = struct{}{}
	}
	if bus != nil {
		s.cancelSub = bus.Subscribe(opts.Key, s.onSignal)
	}
	return s
}

func (s *Store[T]) Key() string    { return s.opts.Key }
func (s *Store[T]) Origin() string { return s.origin }

// Close detaches the store from its bus.
func (s *Store[T]) Close() {
	if s.cancelSub != nil {
		s.cancelSub()
	}
}

// Load hydrates the cache from the slot and returns the collection.
// An absent slot is seeded; an unreadable or malformed one is reported and replaced by the seed.
func (s *Store[T]) Load(ctx context.Context) []T {
	s.mu.Lock()
	changed := s.load(ctx)
	items := clone(s.items)
	s.mu.Unlock()

	if changed {
		s.notify(items)
	}
	return items
}

// All returns the cached collection, hydrating it first if needed.
func (s *Store[T]) All() []T {
	s.mu.RLock()
	if s.loaded {
		items := clone(s.items)
		s.mu.RUnlock()
		return items
	}
	s.mu.RUnlock()
	return s.Load(context.Background())
}

func (s *Store[T]) Get(id string) (T, bool) {
	for _, r := range s.All() {
		if r.RecordID() == id {
			return r, true
		}
	}
	var zero T
	return zero, false
}

// Raw returns the cached serialization of the collection.
func (s *Store[T]) Raw() []byte {
	s.All()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.raw...)
}

// IsSeed reports whether id belongs to a seed record.
func (s *Store[T]) IsSeed(id string) bool {
	_, ok := s.seedIDs[id]
	return ok
}

// Insert adds rec to the collection, honouring the bound and policy.
func (s *Store[T]) Insert(ctx context.Context, rec T) Result {
	return s.InsertUnique(ctx, rec, nil)
}

// InsertUnique is Insert with an extra check of rec against every stored record, run under
// the write lock. The first error returned by clash fails the insert with its message.
func (s *Store[T]) InsertUnique(ctx context.Context, rec T, clash func(stored T) error) Result {
	return s.mutate(ctx, func(items []T) ([]T, bool, Result) {
		if clash != nil {
			for _, r := range items {
				if err := clash(r); err != nil {
					return nil, false, fail(err, err.Error())
				}
			}
		}
		if indexOf(items, rec.RecordID()) >= 0 {
			return nil, false, fail(ErrDuplicate, MsgDuplicate)
		}
		bound := s.opts.Bound
		if bound > 0 && s.opts.Policy == Reject && s.countNonSeed(items)+1 > bound {
			return nil, false, fail(ErrCapReached, MsgCapReached)
		}

		var out []T
		if s.opts.Prepend {
			out = make([]T, 0, len(items)+1)
			out = append(append(out, rec), items...)
		} else {
			out = append(items, rec)
		}
		if bound > 0 && s.opts.Policy == Evict && len(out) > bound {
			if s.opts.Prepend {
				out = out[:bound]
			} else {
				out = out[len(out)-bound:]
			}
		}
		return out, true, ok()
	})
}

// Delete removes the record with id. An absent id is a successful no-op.
func (s *Store[T]) Delete(ctx context.Context, id string) Result {
	return s.mutate(ctx, func(items []T) ([]T, bool, Result) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, false, ok()
		}
		return append(items[:i], items[i+1:]...), true, ok()
	})
}

// DeleteMany removes every record whose id is in ids in a single write.
func (s *Store[T]) DeleteMany(ctx context.Context, ids ...string) Result {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	return s.mutate(ctx, func(items []T) ([]T, bool, Result) {
		out := items[:0]
		for _, r := range items {
			if _, ok := drop[r.RecordID()]; !ok {
				out = append(out, r)
			}
		}
		return out, len(out) != len(items), ok()
	})
}

// Update merges fields into the JSON form of the record with id; other fields keep their value.
// An absent id is a successful no-op. The id itself cannot change.
func (s *Store[T]) Update(ctx context.Context, id string, fields map[string]interface{}) Result {
	return s.mutate(ctx, func(items []T) ([]T, bool, Result) {
		i := indexOf(items, id)
		if i < 0 || len(fields) == 0 {
			return nil, false, ok()
		}
		merged, err := merge(items[i], fields)
		if err != nil {
			return nil, false, fail(errors.Wrap(err, "merging fields"), MsgInvalid)
		}
		if merged.RecordID() != id {
			return nil, false, fail(errors.Wrap(ErrInvalid, "id is immutable"), MsgInvalid)
		}
		items[i] = merged
		return items, true, ok()
	})
}

// Modify applies fn to the record with id. An absent id is a successful no-op.
func (s *Store[T]) Modify(ctx context.Context, id string, fn func(*T)) Result {
	return s.mutate(ctx, func(items []T) ([]T, bool, Result) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, false, ok()
		}
		rec := items[i]
		fn(&rec)
		if rec.RecordID() != id {
			return nil, false, fail(errors.Wrap(ErrInvalid, "id is immutable"), MsgInvalid)
		}
		items[i] = rec
		return items, true, ok()
	})
}

// Replace rewrites the whole collection with the result of fn in a single write.
func (s *Store[T]) Replace(ctx context.Context, fn func([]T) []T) Result {
	return s.mutate(ctx, func(items []T) ([]T, bool, Result) {
		out := fn(items)
		if out == nil {
			out = []T{}
		}
		return out, true, ok()
	})
}

// Subscribe registers fn to receive the collection after every local or remote change.
func (s *Store[T]) Subscribe(fn func([]T)) (cancel func()) {
	s.obsMu.Lock()
	s.nextObs++
	id := s.nextObs
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Store[T]) mutate(ctx context.Context, fn func([]T) ([]T, bool, Result)) Result {
	s.mu.Lock()
	if !s.loaded {
		s.load(ctx)
	}

	next, changed, res := fn(clone(s.items))
	if !res.Success || !changed {
		s.mu.Unlock()
		return res
	}
	if next == nil {
		next = []T{}
	}
	if s.opts.Sanitize != nil {
		for i := range next {
			next[i] = s.opts.Sanitize(next[i])
		}
	}

	raw, err := json.Marshal(next)
	if err != nil {
		s.mu.Unlock()
		s.report("encoding collection", err)
		return fail(err, MsgUnexpected)
	}
	if err := s.slot.Set(ctx, s.opts.Key, raw); err != nil {
		// roll the cache back to whatever the slot holds
		s.load(ctx)
		s.mu.Unlock()

		if errors.Cause(err) == ErrQuotaExceeded {
			s.report("slot quota exceeded", err)
			return fail(err, MsgStorageFull)
		}
		s.report("writing slot", err)
		return fail(err, MsgUnexpected)
	}
	s.items, s.raw, s.loaded = next, raw, true
	items := clone(next)
	s.mu.Unlock()

	s.notify(items)
	if s.bus != nil {
		s.bus.Publish(Signal{Key: s.opts.Key, Origin: s.origin})
	}
	return res
}

// load must be called with mu held. It reports whether the cached serialization changed.
func (s *Store[T]) load(ctx context.Context) bool {
	prev := s.raw
	raw, found, err := s.slot.Get(ctx, s.opts.Key)
	switch {
	case err != nil:
		s.report("reading slot", err)
		if !s.loaded {
			s.useSeed(nil)
		}
	case !found:
		s.seed(ctx)
	default:
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil || items == nil {
			if err == nil {
				err = errors.New("collection is not an array")
			}
			s.report("malformed slot, reseeding", err)
			s.seed(ctx)
		} else {
			s.items, s.raw, s.loaded = items, raw, true
		}
	}
	return !bytes.Equal(prev, s.raw)
}

// seed writes the seed collection to the slot, falling back to memory only when that fails.
func (s *Store[T]) seed(ctx context.Context) {
	raw, err := json.Marshal(s.seedItems())
	if err != nil {
		s.report("encoding seed", err)
		s.useSeed(nil)
		return
	}
	if err := s.slot.Set(ctx, s.opts.Key, raw); err != nil {
		s.report("writing seed", err)
	}
	s.useSeed(raw)
}

func (s *Store[T]) useSeed(raw []byte) {
	s.items = s.seedItems()
	if raw == nil {
		raw, _ = json.Marshal(s.items)
	}
	s.raw, s.loaded = raw, true
}

func (s *Store[T]) seedItems() []T {
	items := clone(s.opts.Seed)
	if items == nil {
		items = []T{}
	}
	return items
}

func (s *Store[T]) onSignal(sig Signal) {
	if sig.Origin == s.origin {
		return
	}
	s.mu.Lock()
	changed := s.load(context.Background())
	items := clone(s.items)
	s.mu.Unlock()

	if changed {
		s.notify(items)
	}
}

func (s *Store[T]) notify(items []T) {
	s.obsMu.Lock()
	fns := make([]func([]T), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(clone(items))
	}
}

func (s *Store[T]) countNonSeed(items []T) int {
	var n int
	for _, r := range items {
		if !s.IsSeed(r.RecordID()) {
			n++
		}
	}
	return n
}

func (s *Store[T]) report(msg string, err error) {
	s.opts.Logger.Error(fmt.Sprintf("store[%s]: %s: %v", s.opts.Key, msg, err), err)
}

func indexOf[T Record](items []T, id string) int {
	for i, r := range items {
		if r.RecordID() == id {
			return i
		}
	}
	return -1
}

// clone never returns nil, so empty collections encode as [].
func clone[T any](items []T) []T {
	return append(make([]T, 0, len(items)), items...)
}

func merge[T any](rec T, fields map[string]interface{}) (T, error) {
	var out T
	raw, err := json.Marshal(rec)
	if err != nil {
		return out, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return out, err
	}
	for k, v := range fields {
		m[k] = v
	}
	if raw, err = json.Marshal(m); err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}
