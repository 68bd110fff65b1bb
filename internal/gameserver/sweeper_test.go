package gameserver_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/pokeduel/internal/game/battle"
	"github.com/cory-johannsen/pokeduel/internal/gameserver"
)

func (h *harness) sweeper(logger *zap.Logger) *gameserver.Sweeper {
	return gameserver.NewSweeper(h.repo, h.resolver, time.Minute, 4, logger).WithNow(h.clock.Now)
}

func TestSweep_OnlyOneSubmitterWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.newBattle(t)
	require.NoError(t, h.handler.SubmitChoice(ctx, id, 1, ashUID, move("tackle"), 1))
	h.clock.Advance(turnLen + time.Second)

	res, err := h.sweeper(zap.NewNop()).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, gameserver.SweepResult{Scanned: 1, Expired: 1, Forfeited: 1}, res)

	meta := h.meta(t, id)
	assert.Equal(t, battle.PhaseEnded, meta.Phase)
	assert.Equal(t, ashUID, meta.WinnerUID)
	assert.Equal(t, battle.EndedTimeout, meta.EndedReason)
	assert.Equal(t, 2, meta.Version)
}

func TestSweep_ConcurrentSweepsForfeitOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.newBattle(t)
	require.NoError(t, h.handler.SubmitChoice(ctx, id, 1, ashUID, move("tackle"), 1))
	h.clock.Advance(turnLen + time.Second)

	const sweepers = 2
	results := make([]gameserver.SweepResult, sweepers)
	var wg sync.WaitGroup
	for i := range sweepers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.sweeper(zap.NewNop()).Sweep(ctx)
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	total := 0
	for _, r := range results {
		total += r.Forfeited
	}
	assert.Equal(t, 1, total, "exactly one sweep ends the battle")

	meta := h.meta(t, id)
	assert.Equal(t, battle.PhaseEnded, meta.Phase)
	assert.Equal(t, ashUID, meta.WinnerUID)
	assert.Equal(t, 2, meta.Version, "version moved exactly once")
}

func TestSweep_NeitherChoseEndsWithoutWinner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.newBattle(t)
	h.clock.Advance(turnLen)

	_, err := h.sweeper(zap.NewNop()).Sweep(ctx)
	require.NoError(t, err)

	meta := h.meta(t, id)
	assert.Equal(t, battle.PhaseEnded, meta.Phase)
	assert.Empty(t, meta.WinnerUID)
	assert.Equal(t, battle.EndedTimeout, meta.EndedReason)
}

func TestSweep_LeavesLiveBattlesAlone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.newBattle(t)
	h.clock.Advance(turnLen - time.Second)

	res, err := h.sweeper(zap.NewNop()).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, gameserver.SweepResult{Scanned: 1}, res)
	assert.Equal(t, battle.PhaseChoosing, h.meta(t, id).Phase)
}

func TestSweep_IgnoresEndedBattles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.newBattle(t)
	h.editMeta(t, id, func(m *battle.Meta) {
		m.Phase = battle.PhaseEnded
		m.EndedReason = battle.EndedKnockout
		m.WinnerUID = garyUID
	})
	h.clock.Advance(time.Hour)

	res, err := h.sweeper(zap.NewNop()).Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Expired)
	assert.Equal(t, garyUID, h.meta(t, id).WinnerUID)
}

func TestSweep_ResumesLostTrigger(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.newBattle(t)
	h.putChoice(t, id, 1, 1, ashUID, move("tackle"))
	h.putChoice(t, id, 1, 1, garyUID, move("growl"))
	h.clock.Advance(turnLen)

	res, err := h.sweeper(zap.NewNop()).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Resumed)
	assert.Zero(t, res.Forfeited)

	meta := h.meta(t, id)
	assert.Equal(t, battle.PhaseChoosing, meta.Phase)
	assert.Equal(t, 2, meta.Version)
	assert.Equal(t, 2, meta.Turn)
}

func TestSweep_ReplacementTimeout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.newBattle(t)
	faintGaryLead(t, h, id)
	h.clock.Advance(turnLen)

	_, err := h.sweeper(zap.NewNop()).Sweep(ctx)
	require.NoError(t, err)

	meta := h.meta(t, id)
	assert.Equal(t, battle.PhaseEnded, meta.Phase)
	assert.Equal(t, ashUID, meta.WinnerUID, "the player who owed nothing wins")
	assert.Empty(t, meta.NeedsReplacement)
}

// abandonHold leaves id in resolving under an operation that never finishes.
func (h *harness) abandonHold(t *testing.T, id string) {
	t.Helper()
	h.editMeta(t, id, func(m *battle.Meta) { m.Hold("dead-op", h.clock.Now()) })
}

func TestSweep_ReclaimsAbandonedResolution(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.newBattle(t)
	h.putChoice(t, id, 1, 1, ashUID, move("tackle"))
	h.putChoice(t, id, 1, 1, garyUID, move("growl"))
	h.abandonHold(t, id)

	ok, err := h.resolver.TryResolve(ctx, id, 1)
	require.NoError(t, err)
	assert.False(t, ok, "held battles do not resolve")

	h.clock.Advance(gameserver.DefaultStaleAfter)
	res, err := h.sweeper(zap.NewNop()).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, gameserver.SweepResult{Scanned: 1, Resumed: 1, Reclaimed: 1}, res)

	meta := h.meta(t, id)
	assert.Equal(t, battle.PhaseChoosing, meta.Phase)
	assert.Equal(t, 2, meta.Version)
	assert.Equal(t, 2, meta.Turn)
	assert.Empty(t, meta.ResolvingBy)
	assert.Empty(t, meta.ResolvingFrom)
}

func TestSweep_ReclaimReopensIntake(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.newBattle(t)
	h.putChoice(t, id, 1, 1, ashUID, move("tackle"))
	h.abandonHold(t, id)
	h.clock.Advance(10 * time.Second)

	res, err := h.sweeper(zap.NewNop()).WithStaleAfter(10 * time.Second).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, gameserver.SweepResult{Scanned: 1, Reclaimed: 1}, res)
	assert.Equal(t, battle.PhaseChoosing, h.meta(t, id).Phase, "deadline not reached, nothing forfeited")

	require.NoError(t, h.handler.SubmitChoice(ctx, id, 1, garyUID, move("growl"), 1))
	meta := h.meta(t, id)
	assert.Equal(t, 2, meta.Version)
	assert.Equal(t, 2, meta.Turn)
}

func TestSweep_ReclaimedReplacementTimesOut(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.newBattle(t)
	faintGaryLead(t, h, id)
	h.abandonHold(t, id)
	h.clock.Advance(gameserver.DefaultStaleAfter)

	res, err := h.sweeper(zap.NewNop()).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Reclaimed)
	assert.Equal(t, 1, res.Forfeited)

	meta := h.meta(t, id)
	assert.Equal(t, battle.PhaseEnded, meta.Phase)
	assert.Equal(t, ashUID, meta.WinnerUID)
}

func TestSweep_LeavesFreshHoldAlone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.newBattle(t)
	h.clock.Advance(time.Minute)
	h.abandonHold(t, id)
	h.clock.Advance(gameserver.DefaultStaleAfter - time.Second)

	res, err := h.sweeper(zap.NewNop()).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, gameserver.SweepResult{Scanned: 1}, res)

	meta := h.meta(t, id)
	assert.Equal(t, battle.PhaseResolving, meta.Phase)
	assert.Equal(t, "dead-op", meta.ResolvingBy)
}

func TestSweep_LogsTimeout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.newBattle(t)
	h.clock.Advance(turnLen)

	core, logs := observer.New(zap.InfoLevel)
	_, err := h.sweeper(zap.New(core)).Sweep(ctx)
	require.NoError(t, err)

	entries := logs.FilterMessage("battle timed out").All()
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ContextMap()["battle_id"])
}

func TestSweeper_StartEndsOverdueBattles(t *testing.T) {
	h := newHarness(t)
	id := h.newBattle(t)
	h.clock.Advance(turnLen)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gameserver.NewSweeper(h.repo, h.resolver, 10*time.Millisecond, 1, zap.NewNop()).WithNow(h.clock.Now).Start(ctx)

	require.Eventually(t, func() bool {
		m, err := h.repo.Meta(context.Background(), id)
		return err == nil && m.Phase == battle.PhaseEnded
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewSweeper_PanicsOnZeroInterval(t *testing.T) {
	h := newHarness(t)
	assert.Panics(t, func() {
		gameserver.NewSweeper(h.repo, h.resolver, 0, 1, zap.NewNop())
	})
}
