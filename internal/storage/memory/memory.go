// Package memory provides an in-process storage.Store used for standalone
// servers and tests.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/pokeduel/internal/storage"
)

// subscriberBuffer bounds each subscriber channel; a subscriber that falls
// this far behind misses changes.
const subscriberBuffer = 256

type subscriber struct {
	prefix string
	ch     chan storage.Change
}

// Store is a mutex-guarded map implementing storage.Store.
//
// Invariant: every mutation and its subscriber notifications happen under mu,
// so subscribers observe changes in commit order.
type Store struct {
	mu     sync.Mutex
	data   map[string][]byte
	subs   map[*subscriber]struct{}
	logger *zap.Logger
}

// New returns an empty Store.
//
// Precondition: logger must be non-nil.
func New(logger *zap.Logger) *Store {
	return &Store{
		data:   make(map[string][]byte),
		subs:   make(map[*subscriber]struct{}),
		logger: logger,
	}
}

// Get implements storage.Store.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return bytes.Clone(v), nil
}

// Put implements storage.Store.
func (s *Store) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(storage.Write{Key: key, Value: value})
	return nil
}

// Update implements storage.Store.
func (s *Store) Update(_ context.Context, guard *storage.Guard, writes ...storage.Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if guard != nil {
		if err := guard.Check(s.current(guard.Key)); err != nil {
			return err
		}
	}
	for _, w := range writes {
		s.apply(w)
	}
	return nil
}

// CompareAndSwap implements storage.Store.
func (s *Store) CompareAndSwap(_ context.Context, key string, fn storage.MutateFunc) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.current(key))
	if err != nil {
		return nil, err
	}
	s.apply(storage.Write{Key: key, Value: next})
	return bytes.Clone(next), nil
}

// List implements storage.Store.
func (s *Store) List(_ context.Context, prefix, suffix string) ([]storage.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Entry
	for k, v := range s.data {
		if storage.Match(k, prefix, suffix) {
			out = append(out, storage.Entry{Key: k, Value: bytes.Clone(v)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Subscribe implements storage.Store.
func (s *Store) Subscribe(ctx context.Context, prefix string) (<-chan storage.Change, error) {
	sub := &subscriber{prefix: prefix, ch: make(chan storage.Change, subscriberBuffer)}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, sub)
		close(sub.ch)
		s.mu.Unlock()
	}()
	return sub.ch, nil
}

func (s *Store) current(key string) []byte {
	v, ok := s.data[key]
	if !ok {
		return nil
	}
	return bytes.Clone(v)
}

// apply must be called with mu held.
func (s *Store) apply(w storage.Write) {
	if w.Value == nil {
		delete(s.data, w.Key)
	} else {
		s.data[w.Key] = bytes.Clone(w.Value)
	}
	for sub := range s.subs {
		if !storage.Match(w.Key, sub.prefix, "") {
			continue
		}
		select {
		case sub.ch <- storage.Change{Key: w.Key, Value: bytes.Clone(w.Value)}:
		default:
			s.logger.Warn("memory store: dropping change for slow subscriber",
				zap.String("key", w.Key),
				zap.String("prefix", sub.prefix),
			)
		}
	}
}
