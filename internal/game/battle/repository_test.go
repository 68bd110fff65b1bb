package battle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/pokeduel/internal/game/battle"
	"github.com/cory-johannsen/pokeduel/internal/storage/memory"
)

var created = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func seedBattle(t *testing.T, repo *battle.Repository, id string) battle.Meta {
	t.Helper()
	meta := battle.Meta{
		BattleID:   id,
		Players:    battle.Players{P1: battle.Player{UID: "red"}, P2: battle.Player{UID: "blue"}},
		Phase:      battle.PhaseChoosing,
		Turn:       1,
		Version:    1,
		DeadlineAt: created.Add(time.Minute),
		CreatedAt:  created,
	}
	privs := [2]battle.PrivateState{roster("red"), roster("blue")}
	pub := battle.Project(privs, battle.Field{}, "")
	writes, err := battle.Writes(
		battle.KV{Key: battle.PublicKey(id), Value: pub},
		battle.KV{Key: battle.InitialPublicKey(id), Value: pub},
		battle.KV{Key: battle.PrivateKey(id, "red"), Value: privs[0]},
		battle.KV{Key: battle.PrivateKey(id, "blue"), Value: privs[1]},
		battle.KV{Key: battle.TurnHeaderKey(id, 1), Value: battle.TurnHeader{Turn: 1, Version: 1, DeadlineAt: meta.DeadlineAt}},
		battle.KV{Key: battle.MetaKey(id), Value: meta},
	)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), id, writes...))
	return meta
}

func newRepo() *battle.Repository {
	return battle.NewRepository(memory.New(zap.NewNop()))
}

func TestRepository_CreateAndSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	want := seedBattle(t, repo, "b1")

	snap, err := repo.Snapshot(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, want.Version, snap.Meta.Version)
	assert.Equal(t, "red", snap.Privates[battle.P1].UID)
	assert.Equal(t, "blue", snap.Privates[battle.P2].UID)
	assert.Equal(t, "garchomp", snap.Public.P2.Active.Species)

	initial, err := repo.InitialPublic(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, snap.Public, initial)
}

func TestRepository_CreateRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	seedBattle(t, repo, "b1")

	w, err := battle.JSONWrite(battle.PublicKey("b1"), battle.PublicState{LastResultSummary: "overwritten"})
	require.NoError(t, err)
	err = repo.Create(ctx, "b1", w)
	assert.ErrorIs(t, err, battle.ErrBattleExists)

	pub, err := repo.Public(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, pub.LastResultSummary, "nothing written")
}

func TestRepository_MissingBattle(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	_, err := repo.Meta(ctx, "ghost")
	assert.ErrorIs(t, err, battle.ErrBattleNotFound)
	_, err = repo.Snapshot(ctx, "ghost")
	assert.ErrorIs(t, err, battle.ErrBattleNotFound)
	_, err = repo.SwapMeta(ctx, "ghost", func(*battle.Meta) error { return nil })
	assert.ErrorIs(t, err, battle.ErrBattleNotFound)
}

func TestRepository_CommitGuard(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	seedBattle(t, repo, "b1")

	w, err := battle.JSONWrite(battle.ChoiceKey("b1", 1, "red"), battle.Choice{UID: "red", Action: battle.Action{Type: battle.ActionMove, MoveID: "earthquake"}, ClientVersion: 1})
	require.NoError(t, err)

	stale := errors.New("stale")
	err = repo.Commit(ctx, "b1", func(m battle.Meta) error {
		if m.Version != 2 {
			return stale
		}
		return nil
	}, w)
	assert.ErrorIs(t, err, stale)
	choices, err := repo.Choices(ctx, "b1", 1)
	require.NoError(t, err)
	assert.Empty(t, choices)

	require.NoError(t, repo.Commit(ctx, "b1", func(m battle.Meta) error { return nil }, w))
	choices, err = repo.Choices(ctx, "b1", 1)
	require.NoError(t, err)
	require.Contains(t, choices, "red")
	assert.Equal(t, "earthquake", choices["red"].Action.MoveID)
}

func TestRepository_SwapMeta(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	seedBattle(t, repo, "b1")

	got, err := repo.SwapMeta(ctx, "b1", func(m *battle.Meta) error {
		m.Phase = battle.PhaseResolving
		m.ResolvingBy = "op-1"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, battle.PhaseResolving, got.Phase)

	_, err = repo.SwapMeta(ctx, "b1", func(m *battle.Meta) error {
		if m.Phase != battle.PhaseChoosing {
			return battle.ErrConcurrencyConflict
		}
		return nil
	})
	assert.ErrorIs(t, err, battle.ErrConcurrencyConflict)

	m, err := repo.Meta(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "op-1", m.ResolvingBy)
}

func TestRepository_TurnsAndMetas(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	seedBattle(t, repo, "b1")
	seedBattle(t, repo, "b2")

	writes, err := battle.Writes(
		battle.KV{Key: battle.ChoiceKey("b1", 1, "red"), Value: battle.Choice{UID: "red", ClientVersion: 1}},
		battle.KV{Key: battle.ResolutionKey("b1", 1), Value: battle.Resolution{By: "op-1", Logs: []string{"|turn|1"}}},
		battle.KV{Key: battle.TurnHeaderKey("b1", 2), Value: battle.TurnHeader{Turn: 2, Version: 2}},
		battle.KV{Key: battle.ReplacementKey("b1", 10, "blue"), Value: battle.Replacement{UID: "blue", SwitchIndex: 1}},
	)
	require.NoError(t, err)
	require.NoError(t, repo.Commit(ctx, "b1", nil, writes...))

	turns, err := repo.Turns(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{turns[0].Turn, turns[1].Turn, turns[2].Turn}, "numeric order")
	require.NotNil(t, turns[0].Resolution)
	assert.Equal(t, "op-1", turns[0].Resolution.By)
	assert.Contains(t, turns[0].Choices, "red")
	assert.Equal(t, 2, turns[1].Header.Version)
	assert.Equal(t, 1, turns[2].Replacements["blue"].SwitchIndex)

	metas, err := repo.Metas(ctx)
	require.NoError(t, err)
	ids := []string{}
	for _, m := range metas {
		ids = append(ids, m.BattleID)
	}
	assert.ElementsMatch(t, []string{"b1", "b2"}, ids)
}
