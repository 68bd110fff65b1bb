package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/pokeduel/internal/storage"
	"github.com/cory-johannsen/pokeduel/internal/storage/memory"
	"github.com/cory-johannsen/pokeduel/internal/storage/storagetest"
)

func TestStore_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return memory.New(zap.NewNop())
	})
}

func TestStore_SubscriptionClosedOnCancel(t *testing.T) {
	s := memory.New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := s.Subscribe(ctx, "battles/")
	require.NoError(t, err)
	cancel()
	for range ch {
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := memory.New(zap.NewNop())
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", []byte("abc")))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	v[0] = 'z'
	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

// Property: List returns exactly the keys matching prefix and suffix.
func TestPropertyList_MatchesFilter(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := memory.New(zap.NewNop())
		ctx := context.Background()
		keys := rapid.SliceOfDistinct(rapid.StringMatching(`[ab]/[0-9]/(meta|public)`), rapid.ID[string]).Draw(rt, "keys")
		for _, k := range keys {
			require.NoError(rt, s.Put(ctx, k, []byte("1")))
		}
		got, err := s.List(ctx, "a/", "/meta")
		require.NoError(rt, err)
		want := 0
		for _, k := range keys {
			if storage.Match(k, "a/", "/meta") {
				want++
			}
		}
		assert.Len(rt, got, want)
	})
}
