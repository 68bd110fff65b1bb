// Package storagetest holds the behavioural contract every storage.Store
// backend must satisfy. Backend tests call Run with a constructor.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/pokeduel/internal/storage"
)

// Run executes the contract against stores built by newStore. Each subtest
// receives a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "battles/x/meta")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("PutGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, "battles/a/meta", []byte(`{"v":1}`)))
		got, err := s.Get(ctx, "battles/a/meta")
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":1}`, string(got))
	})

	t.Run("UpdateAtomicWithGuard", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, "battles/a/meta", []byte(`{"phase":"choosing"}`)))

		rejected := errors.New("rejected")
		err := s.Update(ctx, &storage.Guard{
			Key:   "battles/a/meta",
			Check: func([]byte) error { return rejected },
		}, storage.Write{Key: "battles/a/public", Value: []byte(`{"x":1}`)})
		assert.ErrorIs(t, err, rejected)
		_, err = s.Get(ctx, "battles/a/public")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		err = s.Update(ctx, &storage.Guard{
			Key:   "battles/a/meta",
			Check: func(cur []byte) error { return nil },
		},
			storage.Write{Key: "battles/a/public", Value: []byte(`{"x":2}`)},
			storage.Write{Key: "battles/a/meta", Value: []byte(`{"phase":"ended"}`)},
		)
		require.NoError(t, err)
		got, err := s.Get(ctx, "battles/a/public")
		require.NoError(t, err)
		assert.JSONEq(t, `{"x":2}`, string(got))
	})

	t.Run("GuardedCreateSingleWinner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		taken := errors.New("taken")

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.Update(ctx, &storage.Guard{
					Key: "battles/new/meta",
					Check: func(cur []byte) error {
						if cur != nil {
							return taken
						}
						return nil
					},
				},
					storage.Write{Key: "battles/new/meta", Value: []byte(strconv.Itoa(i))},
					storage.Write{Key: "battles/new/public/" + strconv.Itoa(i), Value: []byte(`{}`)},
				)
				if err == nil {
					wins.Add(1)
					return
				}
				assert.ErrorIs(t, err, taken)
			}(i)
		}
		wg.Wait()
		require.Equal(t, int32(1), wins.Load())

		publics, err := s.List(ctx, "battles/new/public/", "")
		require.NoError(t, err)
		require.Len(t, publics, 1)
		winner, err := s.Get(ctx, "battles/new/meta")
		require.NoError(t, err)
		assert.Equal(t, "battles/new/public/"+string(winner), publics[0].Key)
	})

	t.Run("UpdateDelete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, "k/1", []byte(`1`)))
		require.NoError(t, s.Update(ctx, nil, storage.Write{Key: "k/1"}))
		_, err := s.Get(ctx, "k/1")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("CompareAndSwapSingleWinner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, "battles/a/meta", []byte(`"choosing"`)))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.CompareAndSwap(ctx, "battles/a/meta", func(cur []byte) ([]byte, error) {
					if string(cur) != `"choosing"` {
						return nil, storage.ErrConditionFailed
					}
					return []byte(`"resolving"`), nil
				})
				if err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("ListPrefixSuffix", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			id := strconv.Itoa(i)
			require.NoError(t, s.Put(ctx, "battles/"+id+"/meta", []byte(id)))
			require.NoError(t, s.Put(ctx, "battles/"+id+"/public", []byte(id)))
		}
		got, err := s.List(ctx, "battles/", "/meta")
		require.NoError(t, err)
		require.Len(t, got, 3)
		for i, e := range got {
			assert.Equal(t, fmt.Sprintf("battles/%d/meta", i), e.Key)
		}
	})

	t.Run("SubscribeReceivesPrefixedChanges", func(t *testing.T) {
		s := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		ch, err := s.Subscribe(ctx, "battles/a/")
		require.NoError(t, err)

		// Some backends attach the listener asynchronously.
		require.Eventually(t, func() bool {
			_ = s.Put(context.Background(), "battles/b/meta", []byte(`0`))
			_ = s.Put(context.Background(), "battles/a/meta", []byte(`1`))
			select {
			case c := <-ch:
				return c.Key == "battles/a/meta"
			case <-time.After(100 * time.Millisecond):
				return false
			}
		}, 10*time.Second, 50*time.Millisecond)
	})
}
