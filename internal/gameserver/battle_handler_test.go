package gameserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/pokeduel/internal/game/battle"
	"github.com/cory-johannsen/pokeduel/internal/gameserver"
)

func TestCreateBattle_WritesInitialRecord(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.newBattle(t)
	assert.Equal(t, "battle-1", id)

	meta := h.meta(t, id)
	assert.Equal(t, battle.PhaseChoosing, meta.Phase)
	assert.Equal(t, 1, meta.Turn)
	assert.Equal(t, 1, meta.Version)
	assert.Equal(t, epoch.Add(turnLen), meta.DeadlineAt.UTC())
	assert.Equal(t, uint32(42), meta.RNG.Seed)
	assert.Equal(t, uint32(0), meta.RNG.Cursor)
	assert.Equal(t, ash, meta.Players.P1)
	assert.Equal(t, gary, meta.Players.P2)

	priv, err := h.repo.Private(ctx, id, ashUID)
	require.NoError(t, err)
	require.Len(t, priv.Team, 2)
	pika := priv.Team[0]
	assert.Equal(t, "pikachu", pika.Species)
	assert.Equal(t, gameserver.DefaultLevel, pika.Level)
	assert.Equal(t, 142, pika.MaxHP)
	assert.Equal(t, 142, pika.CurrentHP)
	assert.Equal(t, 142, pika.Stats.Spe)
	assert.Equal(t, "static", pika.Ability, "first species ability is the default")
	assert.Equal(t, []string{"electric"}, pika.Types)
	slot, ok := pika.Move("tackle")
	require.True(t, ok)
	assert.Equal(t, 35, slot.PP)
	assert.Equal(t, 35, slot.MaxPP)

	pub, err := h.repo.Public(ctx, id)
	require.NoError(t, err)
	initial, err := h.repo.InitialPublic(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, pub, initial)

	turns, err := h.repo.Turns(ctx, id)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.NotNil(t, turns[0].Header)
	assert.Equal(t, battle.TurnHeader{Turn: 1, Version: 1, DeadlineAt: meta.DeadlineAt}, *turns[0].Header)
}

func TestCreateBattle_PublicStateHidesRosterDetails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.newBattle(t)

	raw, err := h.store.Get(ctx, battle.PublicKey(id))
	require.NoError(t, err)
	body := string(raw)
	assert.NotContains(t, body, "thunderbolt", "unrevealed moves stay private")
	assert.NotContains(t, body, "body_slam")
	assert.NotContains(t, body, `"stats"`)
}

func TestCreateBattle_RejectsBadRosters(t *testing.T) {
	seven := make([]gameserver.TeamMember, 7)
	for i := range seven {
		seven[i] = gameserver.TeamMember{Species: "pikachu", Moves: []string{"tackle"}}
	}
	cases := []struct {
		name string
		team []gameserver.TeamMember
	}{
		{"empty", nil},
		{"too many", seven},
		{"unknown species", []gameserver.TeamMember{{Species: "missingno", Moves: []string{"tackle"}}}},
		{"unknown move", []gameserver.TeamMember{{Species: "pikachu", Moves: []string{"splash_dance"}}}},
		{"duplicate move", []gameserver.TeamMember{{Species: "pikachu", Moves: []string{"tackle", "tackle"}}}},
		{"no moves", []gameserver.TeamMember{{Species: "pikachu"}}},
		{"five moves", []gameserver.TeamMember{{Species: "pikachu", Moves: []string{"tackle", "growl", "protect", "thunderbolt", "surf"}}}},
		{"level too high", []gameserver.TeamMember{{Species: "pikachu", Level: 101, Moves: []string{"tackle"}}}},
		{"struggle", []gameserver.TeamMember{{Species: "pikachu", Moves: []string{"struggle"}}}},
		{"unknown item", []gameserver.TeamMember{{Species: "pikachu", Moves: []string{"tackle"}, Item: "master_ball"}}},
		{"unknown ability", []gameserver.TeamMember{{Species: "pikachu", Moves: []string{"tackle"}, Ability: "wonder_guard"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.handler.CreateBattle(context.Background(), ash, gary, pikachuTeam(), tc.team)
			require.Error(t, err)
			assert.True(t, battle.IsKind(err, battle.KindInvalidTeam), "got %v", err)

			metas, err := h.repo.Metas(context.Background())
			require.NoError(t, err)
			assert.Empty(t, metas, "nothing is written on failure")
		})
	}
}

func TestCreateBattle_RejectsBadPlayers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.handler.CreateBattle(ctx, ash, ash, pikachuTeam(), snorlaxTeam())
	assert.True(t, battle.IsKind(err, battle.KindInvalidArgument))

	_, err = h.handler.CreateBattle(ctx, ash, battle.Player{}, pikachuTeam(), snorlaxTeam())
	assert.True(t, battle.IsKind(err, battle.KindInvalidArgument))
}

func TestCreateBattle_DuplicateIDFails(t *testing.T) {
	h := newHarness(t)
	handler := gameserver.NewBattleHandler(h.repo, h.refs, h.resolver, zap.NewNop(),
		gameserver.WithBattleIDs(func() string { return "fixed" }),
	)
	ctx := context.Background()
	_, err := handler.CreateBattle(ctx, ash, gary, pikachuTeam(), snorlaxTeam())
	require.NoError(t, err)
	_, err = handler.CreateBattle(ctx, ash, gary, pikachuTeam(), snorlaxTeam())
	assert.ErrorIs(t, err, battle.ErrBattleExists)
}

func TestSubmitChoice_FirstChoiceWaits(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.newBattle(t)

	require.NoError(t, h.handler.SubmitChoice(ctx, id, 1, ashUID, move("tackle"), 1))

	meta := h.meta(t, id)
	assert.Equal(t, battle.PhaseChoosing, meta.Phase)
	assert.Equal(t, 1, meta.Version)

	choices, err := h.repo.Choices(ctx, id, 1)
	require.NoError(t, err)
	require.Contains(t, choices, ashUID)
	c := choices[ashUID]
	assert.Equal(t, battle.TargetFoe, c.Action.Target, "target defaults to the foe")
	assert.Equal(t, 1, c.ClientVersion)
	assert.Equal(t, epoch, c.SubmittedAt.UTC())
}

func TestSubmitChoice_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.newBattle(t)

	require.NoError(t, h.handler.SubmitChoice(ctx, id, 1, ashUID, move("tackle"), 1))
	require.NoError(t, h.handler.SubmitChoice(ctx, id, 1, ashUID, move("protect"), 1))

	choices, err := h.repo.Choices(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, "protect", choices[ashUID].Action.MoveID)
}

func TestSubmitChoice_SecondChoiceResolvesTurn(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.newBattle(t)

	require.NoError(t, h.handler.SubmitChoice(ctx, id, 1, ashUID, move("tackle"), 1))
	require.NoError(t, h.handler.SubmitChoice(ctx, id, 1, garyUID, move("growl"), 1))

	meta := h.meta(t, id)
	assert.Equal(t, battle.PhaseChoosing, meta.Phase)
	assert.Equal(t, 2, meta.Version)
	assert.Equal(t, 2, meta.Turn)

	pub, err := h.repo.Public(ctx, id)
	require.NoError(t, err)
	assert.Less(t, pub.P2.Active.HP.Cur, pub.P2.Active.HP.Max, "tackle landed")
	assert.Equal(t, -1, pub.P1.Active.Boosts.Atk, "growl landed")

	err = h.handler.SubmitChoice(ctx, id, 1, ashUID, move("tackle"), 1)
	assert.True(t, battle.IsKind(err, battle.KindStaleVersion), "turn 1 is closed")
}

func TestSubmitChoice_Validation(t *testing.T) {
	cases := []struct {
		name    string
		setup   func(t *testing.T, h *harness, id string)
		uid     string
		turn    int
		version int
		action  battle.Action
		kind    battle.ErrorKind
	}{
		{name: "stale version", uid: ashUID, turn: 1, version: 0, action: move("tackle"), kind: battle.KindStaleVersion},
		{name: "future version", uid: ashUID, turn: 1, version: 2, action: move("tackle"), kind: battle.KindStaleVersion},
		{name: "wrong turn", uid: ashUID, turn: 2, version: 1, action: move("tackle"), kind: battle.KindStaleVersion},
		{name: "not a participant", uid: "uid-brock", turn: 1, version: 1, action: move("tackle"), kind: battle.KindNotParticipant},
		{name: "unknown move", uid: ashUID, turn: 1, version: 1, action: move("surf"), kind: battle.KindIllegalAction},
		{name: "struggle with usable moves", uid: ashUID, turn: 1, version: 1, action: move("struggle"), kind: battle.KindIllegalAction},
		{name: "bad target", uid: ashUID, turn: 1, version: 1, action: battle.Action{Type: battle.ActionMove, MoveID: "tackle", Target: "ally"}, kind: battle.KindIllegalAction},
		{name: "unknown action type", uid: ashUID, turn: 1, version: 1, action: battle.Action{Type: "run"}, kind: battle.KindIllegalAction},
		{name: "switch to active", uid: ashUID, turn: 1, version: 1, action: switchTo(0), kind: battle.KindIllegalAction},
		{name: "switch out of range", uid: ashUID, turn: 1, version: 1, action: switchTo(2), kind: battle.KindIllegalAction},
		{name: "negative switch", uid: ashUID, turn: 1, version: 1, action: switchTo(-1), kind: battle.KindIllegalAction},
		{
			name: "switch to fainted",
			setup: func(t *testing.T, h *harness, id string) {
				h.editPrivate(t, id, ashUID, func(p *battle.PrivateState) { p.Team[1].CurrentHP = 0 })
			},
			uid: ashUID, turn: 1, version: 1, action: switchTo(1), kind: battle.KindIllegalAction,
		},
		{
			name: "no pp",
			setup: func(t *testing.T, h *harness, id string) {
				h.editPrivate(t, id, ashUID, func(p *battle.PrivateState) { p.Team[0].Moves[0].PP = 0 })
			},
			uid: ashUID, turn: 1, version: 1, action: move("tackle"), kind: battle.KindIllegalAction,
		},
		{
			name: "disabled",
			setup: func(t *testing.T, h *harness, id string) {
				h.editPrivate(t, id, ashUID, func(p *battle.PrivateState) {
					p.Team[0].Volatile.Disable = &battle.Lock{MoveID: "tackle", Turns: 3}
				})
			},
			uid: ashUID, turn: 1, version: 1, action: move("tackle"), kind: battle.KindIllegalAction,
		},
		{
			name: "choice locked",
			setup: func(t *testing.T, h *harness, id string) {
				h.editPrivate(t, id, ashUID, func(p *battle.PrivateState) { p.ChoiceLock = "tackle" })
			},
			uid: ashUID, turn: 1, version: 1, action: move("thunderbolt"), kind: battle.KindIllegalAction,
		},
		{
			name: "encored",
			setup: func(t *testing.T, h *harness, id string) {
				h.editPrivate(t, id, ashUID, func(p *battle.PrivateState) {
					p.Team[0].Volatile.Encore = &battle.Lock{MoveID: "protect", Turns: 3}
				})
			},
			uid: ashUID, turn: 1, version: 1, action: move("tackle"), kind: battle.KindIllegalAction,
		},
		{
			name: "taunted status move",
			setup: func(t *testing.T, h *harness, id string) {
				h.editPrivate(t, id, ashUID, func(p *battle.PrivateState) { p.Team[0].Volatile.Taunt = 3 })
			},
			uid: ashUID, turn: 1, version: 1, action: move("protect"), kind: battle.KindIllegalAction,
		},
		{
			name: "wrong phase",
			setup: func(t *testing.T, h *harness, id string) {
				h.editMeta(t, id, func(m *battle.Meta) { m.Phase = battle.PhaseReplacement })
			},
			uid: ashUID, turn: 1, version: 1, action: move("tackle"), kind: battle.KindWrongPhase,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			id := h.newBattle(t)
			if tc.setup != nil {
				tc.setup(t, h, id)
			}

			err := h.handler.SubmitChoice(ctx, id, tc.turn, tc.uid, tc.action, tc.version)
			require.Error(t, err)
			assert.True(t, battle.IsKind(err, tc.kind), "want %s, got %v", tc.kind, err)

			choices, err := h.repo.Choices(ctx, id, 1)
			require.NoError(t, err)
			assert.Empty(t, choices, "no mutation on rejection")
		})
	}
}

func TestSubmitChoice_StruggleWhenNothingUsable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.newBattle(t)
	h.editPrivate(t, id, ashUID, func(p *battle.PrivateState) {
		for i := range p.Team[0].Moves {
			p.Team[0].Moves[i].PP = 0
		}
	})
	require.NoError(t, h.handler.SubmitChoice(ctx, id, 1, ashUID, move("struggle"), 1))
}

func TestSubmitChoice_UnknownBattle(t *testing.T) {
	h := newHarness(t)
	err := h.handler.SubmitChoice(context.Background(), "nope", 1, ashUID, move("tackle"), 1)
	assert.ErrorIs(t, err, battle.ErrBattleNotFound)
}

// faintGaryLead puts the battle into replacement with Gary's lead fainted.
func faintGaryLead(t *testing.T, h *harness, id string) {
	t.Helper()
	h.editPrivate(t, id, garyUID, func(p *battle.PrivateState) { p.Team[0].CurrentHP = 0 })
	h.editMeta(t, id, func(m *battle.Meta) {
		m.Phase = battle.PhaseReplacement
		m.NeedsReplacement = []string{garyUID}
	})
}

func TestSubmitReplacement_CompletesReplacement(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.newBattle(t)
	faintGaryLead(t, h, id)

	require.NoError(t, h.handler.SubmitReplacement(ctx, id, 1, garyUID, 1, 1))

	meta := h.meta(t, id)
	assert.Equal(t, battle.PhaseChoosing, meta.Phase)
	assert.Equal(t, 2, meta.Version)
	assert.Equal(t, 2, meta.Turn)
	assert.Empty(t, meta.NeedsReplacement)

	priv, err := h.repo.Private(ctx, id, garyUID)
	require.NoError(t, err)
	assert.Equal(t, 1, priv.Active)
	assert.False(t, priv.ActiveMon().Fainted())
}

func TestSubmitReplacement_Validation(t *testing.T) {
	cases := []struct {
		name    string
		uid     string
		index   int
		version int
		kind    battle.ErrorKind
	}{
		{"owes nothing", ashUID, 1, 1, battle.KindIllegalAction},
		{"fainted target", garyUID, 0, 1, battle.KindIllegalAction},
		{"out of range", garyUID, 5, 1, battle.KindIllegalAction},
		{"stale version", garyUID, 1, 0, battle.KindStaleVersion},
		{"stranger", "uid-brock", 1, 1, battle.KindNotParticipant},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			id := h.newBattle(t)
			faintGaryLead(t, h, id)

			err := h.handler.SubmitReplacement(ctx, id, 1, tc.uid, tc.index, tc.version)
			assert.True(t, battle.IsKind(err, tc.kind), "want %s, got %v", tc.kind, err)
			assert.Equal(t, battle.PhaseReplacement, h.meta(t, id).Phase)
		})
	}
}

func TestSubmitReplacement_WrongPhase(t *testing.T) {
	h := newHarness(t)
	id := h.newBattle(t)
	err := h.handler.SubmitReplacement(context.Background(), id, 1, ashUID, 1, 1)
	assert.True(t, battle.IsKind(err, battle.KindWrongPhase))
}

func TestGetBattleView_OnlyOwnPrivate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.newBattle(t)

	view, err := h.handler.GetBattleView(ctx, id, garyUID)
	require.NoError(t, err)
	assert.Equal(t, garyUID, view.Private.UID)
	assert.Equal(t, "snorlax", view.Private.Team[0].Species)
	assert.Equal(t, 1, view.Meta.Version)

	body, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "thunderbolt", "Ash's unrevealed moves never reach Gary")

	_, err = h.handler.GetBattleView(ctx, id, "uid-brock")
	assert.True(t, battle.IsKind(err, battle.KindNotParticipant))
}

func TestExportReplay(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.newBattle(t)
	require.NoError(t, h.handler.SubmitChoice(ctx, id, 1, ashUID, move("tackle"), 1))
	require.NoError(t, h.handler.SubmitChoice(ctx, id, 1, garyUID, move("growl"), 1))

	replay, err := h.handler.ExportReplay(ctx, id, ashUID)
	require.NoError(t, err)
	assert.Equal(t, id, replay.BattleID)
	assert.Equal(t, 2, replay.Version)
	assert.Equal(t, 2, replay.Turn)

	initial, err := h.repo.InitialPublic(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, initial, replay.InitialPublic)

	require.Len(t, replay.Turns, 1)
	step := replay.Turns[0].Resolution
	require.NotNil(t, step)
	assert.Equal(t, "op-1", step.By)
	assert.True(t, strings.HasPrefix(step.StateHash, "sha256:"))
	assert.Contains(t, step.Logs, "|turn|1")
	assert.Nil(t, replay.Turns[0].Replacement)

	_, err = h.handler.ExportReplay(ctx, id, "uid-brock")
	assert.True(t, battle.IsKind(err, battle.KindNotParticipant))
}

func TestWatch_FiltersOpponentRecords(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h := newHarness(t)
	id := h.newBattle(t)

	updates, err := h.handler.Watch(ctx, id, ashUID)
	require.NoError(t, err)

	first := <-updates
	assert.Equal(t, battle.MetaKey(id), first.Key, "current meta arrives first")

	require.NoError(t, h.handler.SubmitChoice(ctx, id, 1, garyUID, move("growl"), 1))
	require.NoError(t, h.handler.SubmitChoice(ctx, id, 1, ashUID, move("tackle"), 1))

	var keys []string
	for u := range updates {
		keys = append(keys, u.Key)
		if u.Key == battle.MetaKey(id) {
			var m battle.Meta
			require.NoError(t, json.Unmarshal(u.Value, &m))
			if m.Version == 2 {
				break
			}
		}
	}
	require.NoError(t, ctx.Err(), "resolution was observed before the timeout")

	assert.Contains(t, keys, battle.PrivateKey(id, ashUID))
	assert.Contains(t, keys, battle.ChoiceKey(id, 1, ashUID))
	assert.Contains(t, keys, battle.ResolutionKey(id, 1))
	assert.NotContains(t, keys, battle.PrivateKey(id, garyUID))
	assert.NotContains(t, keys, battle.ChoiceKey(id, 1, garyUID))
}

func TestWatch_RejectsStrangers(t *testing.T) {
	h := newHarness(t)
	id := h.newBattle(t)
	_, err := h.handler.Watch(context.Background(), id, "uid-brock")
	assert.True(t, battle.IsKind(err, battle.KindNotParticipant))

	_, err = h.handler.Watch(context.Background(), "missing", ashUID)
	assert.True(t, errors.Is(err, battle.ErrBattleNotFound))
}
