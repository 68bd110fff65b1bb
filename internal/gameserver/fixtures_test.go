package gameserver_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/pokeduel/content"
	"github.com/cory-johannsen/pokeduel/internal/game/battle"
	"github.com/cory-johannsen/pokeduel/internal/game/refdata"
	"github.com/cory-johannsen/pokeduel/internal/game/resolver"
	"github.com/cory-johannsen/pokeduel/internal/gameserver"
	"github.com/cory-johannsen/pokeduel/internal/storage"
	"github.com/cory-johannsen/pokeduel/internal/storage/memory"
)

const (
	ashUID  = "uid-ash"
	garyUID = "uid-gary"
	turnLen = 30 * time.Second
)

var (
	epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ash   = battle.Player{UID: ashUID, Name: "Ash"}
	gary  = battle.Player{UID: garyUID, Name: "Gary"}
)

// clock is a settable time source safe for concurrent use.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	store    storage.Store
	repo     *battle.Repository
	refs     *refdata.Registry
	resolver *resolver.Resolver
	handler  *gameserver.BattleHandler
	clock    *clock
}

func loadContent(t *testing.T) *refdata.Registry {
	t.Helper()
	reg, err := refdata.LoadFS(content.RefData, content.RefDataDir)
	require.NoError(t, err)
	return reg
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()
	store := memory.New(logger)
	repo := battle.NewRepository(store)
	refs := loadContent(t)
	clk := &clock{now: epoch}

	var ops, battles atomic.Int64
	res := resolver.NewResolver(repo, resolver.NewEngine(refs, nil, logger), logger,
		resolver.WithClock(clk.Now),
		resolver.WithIDs(func() string { return fmt.Sprintf("op-%d", ops.Add(1)) }),
		resolver.WithTurnDuration(turnLen),
	)
	handler := gameserver.NewBattleHandler(repo, refs, res, logger,
		gameserver.WithHandlerClock(clk.Now),
		gameserver.WithBattleIDs(func() string { return fmt.Sprintf("battle-%d", battles.Add(1)) }),
		gameserver.WithSeeds(func() uint32 { return 42 }),
		gameserver.WithChoiceWindow(turnLen),
	)
	return &harness{store: store, repo: repo, refs: refs, resolver: res, handler: handler, clock: clk}
}

func pikachuTeam() []gameserver.TeamMember {
	return []gameserver.TeamMember{
		{Species: "pikachu", Moves: []string{"tackle", "thunderbolt", "protect"}},
		{Species: "snorlax", Moves: []string{"body_slam", "tackle"}},
	}
}

func snorlaxTeam() []gameserver.TeamMember {
	return []gameserver.TeamMember{
		{Species: "snorlax", Moves: []string{"tackle", "growl"}},
		{Species: "pikachu", Moves: []string{"tackle"}},
	}
}

// newBattle creates a battle between Ash and Gary and returns its id.
func (h *harness) newBattle(t *testing.T) string {
	t.Helper()
	id, err := h.handler.CreateBattle(context.Background(), ash, gary, pikachuTeam(), snorlaxTeam())
	require.NoError(t, err)
	return id
}

func (h *harness) meta(t *testing.T, id string) battle.Meta {
	t.Helper()
	m, err := h.repo.Meta(context.Background(), id)
	require.NoError(t, err)
	return m
}

// editPrivate rewrites uid's private partition in place.
func (h *harness) editPrivate(t *testing.T, id, uid string, fn func(*battle.PrivateState)) {
	t.Helper()
	ctx := context.Background()
	p, err := h.repo.Private(ctx, id, uid)
	require.NoError(t, err)
	fn(&p)
	b, err := json.Marshal(p)
	require.NoError(t, err)
	require.NoError(t, h.store.Put(ctx, battle.PrivateKey(id, uid), b))
}

// editMeta rewrites the stored meta in place.
func (h *harness) editMeta(t *testing.T, id string, fn func(*battle.Meta)) {
	t.Helper()
	_, err := h.repo.SwapMeta(context.Background(), id, func(m *battle.Meta) error {
		fn(m)
		return nil
	})
	require.NoError(t, err)
}

// putChoice stores a choice directly, bypassing intake and its trigger.
func (h *harness) putChoice(t *testing.T, id string, turn, version int, uid string, a battle.Action) {
	t.Helper()
	w, err := battle.JSONWrite(battle.ChoiceKey(id, turn, uid), battle.Choice{UID: uid, Action: a, ClientVersion: version})
	require.NoError(t, err)
	require.NoError(t, h.store.Update(context.Background(), nil, w))
}

func move(id string) battle.Action {
	return battle.Action{Type: battle.ActionMove, MoveID: id}
}

func switchTo(idx int) battle.Action {
	return battle.Action{Type: battle.ActionSwitch, SwitchIndex: idx}
}
