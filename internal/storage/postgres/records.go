package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/cory-johannsen/pokeduel/internal/storage"
)

// NotifyChannel is the LISTEN/NOTIFY channel carrying changed record keys.
const NotifyChannel = "battle_records"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// RecordStore implements storage.Store over the battle_records table. Values
// are JSONB documents and subscriptions ride on LISTEN/NOTIFY. Guarded updates
// and compare-and-swaps serialize on a transaction-scoped advisory lock taken
// on the key, which also covers keys that have no row yet.
type RecordStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewRecordStore creates a RecordStore backed by the given pool.
//
// Precondition: db must be a valid, open connection pool with the
// battle_records migration applied.
func NewRecordStore(db *pgxpool.Pool, logger *zap.Logger) *RecordStore {
	return &RecordStore{db: db, logger: logger}
}

// Get implements storage.Store.
func (s *RecordStore) Get(ctx context.Context, key string) ([]byte, error) {
	return getValue(ctx, s.db, key, false)
}

// Put implements storage.Store.
func (s *RecordStore) Put(ctx context.Context, key string, value []byte) error {
	return s.Update(ctx, nil, storage.Write{Key: key, Value: value})
}

// Update implements storage.Store.
func (s *RecordStore) Update(ctx context.Context, guard *storage.Guard, writes ...storage.Write) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if guard != nil {
			if err := lockKey(ctx, tx, guard.Key); err != nil {
				return err
			}
			cur, err := getValue(ctx, tx, guard.Key, true)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			if err := guard.Check(cur); err != nil {
				return err
			}
		}
		for _, w := range writes {
			if err := writeValue(ctx, tx, w); err != nil {
				return err
			}
		}
		return nil
	})
}

// CompareAndSwap implements storage.Store.
func (s *RecordStore) CompareAndSwap(ctx context.Context, key string, fn storage.MutateFunc) ([]byte, error) {
	var stored []byte
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := lockKey(ctx, tx, key); err != nil {
			return err
		}
		cur, err := getValue(ctx, tx, key, true)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		stored = next
		return writeValue(ctx, tx, storage.Write{Key: key, Value: next})
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// List implements storage.Store.
func (s *RecordStore) List(ctx context.Context, prefix, suffix string) ([]storage.Entry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT key, value FROM battle_records
		 WHERE key LIKE $1 AND key LIKE $2
		 ORDER BY key COLLATE "C"`,
		likeEscaper.Replace(prefix)+"%", "%"+likeEscaper.Replace(suffix),
	)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var out []storage.Entry
	for rows.Next() {
		var e storage.Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		if storage.Match(e.Key, prefix, suffix) {
			out = append(out, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return out, nil
}

// Subscribe implements storage.Store. A dedicated pool connection LISTENs for
// the lifetime of ctx.
func (s *RecordStore) Subscribe(ctx context.Context, prefix string) (<-chan storage.Change, error) {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listening on %s: %w", NotifyChannel, err)
	}

	out := make(chan storage.Change, 64)
	go func() {
		defer close(out)
		defer conn.Release()
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("postgres store: notification wait failed", zap.Error(err))
				}
				return
			}
			if !storage.Match(n.Payload, prefix, "") {
				continue
			}
			value, err := s.Get(ctx, n.Payload)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				s.logger.Warn("postgres store: reading changed record",
					zap.String("key", n.Payload),
					zap.Error(err),
				)
				continue
			}
			select {
			case out <- storage.Change{Key: n.Payload, Value: value}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// lockKey blocks until no other transaction holds key. FOR UPDATE alone locks
// nothing when the row is absent, so two creators would both see it missing.
// The lock is released at commit or rollback.
func lockKey(ctx context.Context, tx pgx.Tx, key string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("locking record %q: %w", key, err)
	}
	return nil
}

func getValue(ctx context.Context, q querier, key string, forUpdate bool) ([]byte, error) {
	sql := `SELECT value FROM battle_records WHERE key = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var value []byte
	if err := q.QueryRow(ctx, sql, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("reading record %q: %w", key, err)
	}
	return value, nil
}

func writeValue(ctx context.Context, tx pgx.Tx, w storage.Write) error {
	if w.Value == nil {
		if _, err := tx.Exec(ctx, `DELETE FROM battle_records WHERE key = $1`, w.Key); err != nil {
			return fmt.Errorf("deleting record %q: %w", w.Key, err)
		}
	} else {
		_, err := tx.Exec(ctx,
			`INSERT INTO battle_records (key, value, updated_at)
			 VALUES ($1, $2::jsonb, NOW())
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
			w.Key, string(w.Value),
		)
		if err != nil {
			return fmt.Errorf("writing record %q: %w", w.Key, err)
		}
	}
	// Delivered to listeners only when the transaction commits.
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, w.Key); err != nil {
		return fmt.Errorf("notifying %q: %w", w.Key, err)
	}
	return nil
}
