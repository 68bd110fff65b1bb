// Package storage defines the keyed record store that holds every battle.
//
// A battle is partitioned into several keys (meta, public, one private key per
// player, per-turn choices and resolutions) so that independent writers never
// overwrite each other. Backends live in the memory, postgres and redisstore
// subpackages and all satisfy Store.
package storage

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("record not found")

// ErrConditionFailed is returned when a guard or compare-and-swap predicate
// rejects the current value.
var ErrConditionFailed = errors.New("record condition failed")

// Write is one key assignment inside an atomic Update. A nil Value deletes the key.
type Write struct {
	Key   string
	Value []byte
}

// Guard is evaluated against the current value of Key inside the same atomic
// section as the writes it protects. Current is nil when the key is absent.
// Returning a non-nil error aborts the update with that error.
type Guard struct {
	Key   string
	Check func(current []byte) error
}

// MutateFunc computes the next value of a key from its current value.
// Current is nil when the key is absent. Returning an error aborts the swap.
type MutateFunc func(current []byte) ([]byte, error)

// Entry is a stored key with its value.
type Entry struct {
	Key   string
	Value []byte
}

// Change is delivered to subscribers after a committed write. A nil Value
// means the key was deleted.
type Change struct {
	Key   string
	Value []byte
}

// Store is the battle record contract: point reads and writes, atomic
// multi-key writes, single-key conditional updates, prefix listing and
// change subscriptions.
type Store interface {
	// Get returns the value at key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes value at key unconditionally.
	Put(ctx context.Context, key string, value []byte) error

	// Update applies every write atomically. When guard is non-nil its Check
	// runs against the current value of guard.Key in the same atomic section;
	// a Check error aborts the update and is returned unchanged.
	Update(ctx context.Context, guard *Guard, writes ...Write) error

	// CompareAndSwap atomically replaces the value at key with fn(current).
	// An error from fn aborts the swap and is returned unchanged.
	// Postcondition: returns the value that was stored.
	CompareAndSwap(ctx context.Context, key string, fn MutateFunc) ([]byte, error)

	// List returns every entry whose key starts with prefix and ends with
	// suffix, ordered by key. An empty suffix matches any key.
	List(ctx context.Context, prefix, suffix string) ([]Entry, error)

	// Subscribe delivers committed changes to keys under prefix until ctx is
	// cancelled, after which the channel is closed.
	Subscribe(ctx context.Context, prefix string) (<-chan Change, error)
}

// Match reports whether key falls under prefix and ends with suffix.
func Match(key, prefix, suffix string) bool {
	return strings.HasPrefix(key, prefix) && strings.HasSuffix(key, suffix) &&
		len(key) >= len(prefix)+len(suffix)
}
