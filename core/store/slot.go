package store

import (
	"context"
	"fmt"

	"github.com/docker/go-units"
	"github.com/pkg/errors"
)

// ErrQuotaExceeded is returned by a Slot when a write would exceed its size quota.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Slot is a persistent named byte blob holding one serialized collection.
type Slot interface {
	// Get returns the slot's bytes; found is false when the slot is absent.
	Get(ctx context.Context, key string) (data []byte, found bool, err error)
	Set(ctx context.Context, key string, data []byte) error
	// Remove deletes the slot. Removing an absent slot is not an error.
	Remove(ctx context.Context, key string) error
	// Keys lists the slots present, with their sizes in bytes.
	Keys(ctx context.Context) (map[string]int64, error)
	Close() error
}

// Watcher is implemented by slot backends that can observe writes made by other processes.
// Watch blocks until ctx is done, calling fn with the key of every externally changed slot.
type Watcher interface {
	Watch(ctx context.Context, fn func(key string)) error
}

// Key returns the namespaced name of a slot.
func Key(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "-" + name
}

// ParseQuota parses a human readable size ("5MB", "512KiB"). Empty means unlimited (0).
func ParseQuota(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing quota %q", s)
	}
	return n, nil
}

// CheckQuota returns ErrQuotaExceeded when size is over a non-zero quota.
func CheckQuota(quota int64, size int) error {
	if quota > 0 && int64(size) > quota {
		return errors.Wrap(ErrQuotaExceeded, fmt.Sprintf("%s > %s", units.BytesSize(float64(size)), units.BytesSize(float64(quota))))
	}
	return nil
}
