// Package redisstore implements storage.Store on Redis. Guards and
// compare-and-swap use WATCH/MULTI/EXEC optimistic transactions; change
// notifications are published on a pub/sub channel.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cory-johannsen/pokeduel/internal/storage"
)

// ChangeChannel carries the key of every committed write.
const ChangeChannel = "battle_records:changes"

// maxTxRetries bounds WATCH retries when another client touches the guarded key.
const maxTxRetries = 16

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// Store implements storage.Store over a Redis client.
type Store struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// New wraps an already-connected client.
//
// Precondition: rdb and logger must be non-nil.
func New(rdb *redis.Client, logger *zap.Logger) *Store {
	return &Store{rdb: rdb, logger: logger}
}

// Get implements storage.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", key, err)
	}
	return v, nil
}

// Put implements storage.Store.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		queueWrite(ctx, p, storage.Write{Key: key, Value: value})
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing %q: %w", key, err)
	}
	return nil
}

// Update implements storage.Store.
func (s *Store) Update(ctx context.Context, guard *storage.Guard, writes ...storage.Write) error {
	if guard == nil {
		_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for _, w := range writes {
				queueWrite(ctx, p, w)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("writing batch: %w", err)
		}
		return nil
	}
	return s.watch(ctx, guard.Key, func(tx *redis.Tx, cur []byte) error {
		if err := guard.Check(cur); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for _, w := range writes {
				queueWrite(ctx, p, w)
			}
			return nil
		})
		return err
	})
}

// CompareAndSwap implements storage.Store.
func (s *Store) CompareAndSwap(ctx context.Context, key string, fn storage.MutateFunc) ([]byte, error) {
	var stored []byte
	err := s.watch(ctx, key, func(tx *redis.Tx, cur []byte) error {
		next, err := fn(cur)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			queueWrite(ctx, p, storage.Write{Key: key, Value: next})
			return nil
		})
		stored = next
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// List implements storage.Store.
func (s *Store) List(ctx context.Context, prefix, suffix string) ([]storage.Entry, error) {
	pattern := globEscaper.Replace(prefix) + "*" + globEscaper.Replace(suffix)
	var keys []string
	iter := s.rdb.Scan(ctx, 0, pattern, 256).Iterator()
	for iter.Next(ctx) {
		if storage.Match(iter.Val(), prefix, suffix) {
			keys = append(keys, iter.Val())
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning %q: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading %d keys: %w", len(keys), err)
	}
	out := make([]storage.Entry, 0, len(keys))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// Deleted between SCAN and MGET.
			continue
		}
		out = append(out, storage.Entry{Key: keys[i], Value: []byte(str)})
	}
	return out, nil
}

// Subscribe implements storage.Store.
func (s *Store) Subscribe(ctx context.Context, prefix string) (<-chan storage.Change, error) {
	ps := s.rdb.Subscribe(ctx, ChangeChannel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", ChangeChannel, err)
	}

	out := make(chan storage.Change, 64)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if !storage.Match(msg.Payload, prefix, "") {
					continue
				}
				value, err := s.Get(ctx, msg.Payload)
				if err != nil && !errors.Is(err, storage.ErrNotFound) {
					s.logger.Warn("redis store: reading changed key",
						zap.String("key", msg.Payload),
						zap.Error(err),
					)
					continue
				}
				select {
				case out <- storage.Change{Key: msg.Payload, Value: value}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// watch runs fn inside WATCH key, retrying when the key changes before EXEC.
func (s *Store) watch(ctx context.Context, key string, fn func(tx *redis.Tx, cur []byte) error) error {
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			cur = nil
		} else if err != nil {
			return err
		}
		return fn(tx, cur)
	}
	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("redis store: watched key changed, retrying",
				zap.String("key", key),
				zap.Int("attempt", i+1),
			)
			continue
		}
		return err
	}
	return fmt.Errorf("updating %q: %w", key, storage.ErrConditionFailed)
}

func queueWrite(ctx context.Context, p redis.Pipeliner, w storage.Write) {
	if w.Value == nil {
		p.Del(ctx, w.Key)
	} else {
		p.Set(ctx, w.Key, w.Value, 0)
	}
	p.Publish(ctx, ChangeChannel, w.Key)
}
