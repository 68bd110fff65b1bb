package battle_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/pokeduel/internal/game/battle"
)

func roster(uid string) battle.PrivateState {
	return battle.PrivateState{
		UID: uid,
		Team: []battle.Pokemon{
			{
				Species: "garchomp", Level: 50, Types: []string{"dragon", "ground"},
				Stats:   battle.Stats{HP: 183, Atk: 182, Def: 147, SpA: 132, SpD: 137, Spe: 154},
				Ability: "rough_skin", Item: "choice_scarf",
				CurrentHP: 120, MaxHP: 183,
				Moves:         []battle.MoveSlot{{ID: "earthquake", PP: 9, MaxPP: 10}, {ID: "dragon_claw", PP: 15, MaxPP: 15}},
				RevealedMoves: []string{"earthquake"},
				Volatile:      battle.Volatile{SubstituteHP: 40, Encore: &battle.Lock{MoveID: "earthquake", Turns: 2}},
			},
			{
				Species: "ferrothorn", Level: 50, Types: []string{"grass", "steel"},
				Ability: "iron_barbs", Item: "leftovers",
				CurrentHP: 0, MaxHP: 149,
				Moves: []battle.MoveSlot{{ID: "spikes", PP: 20, MaxPP: 20}},
			},
		},
	}
}

func TestProject_HidesUnrevealedDetails(t *testing.T) {
	pub := battle.Project([2]battle.PrivateState{roster("a"), roster("b")}, battle.Field{}, "turn 1")

	act := pub.P1.Active
	assert.Equal(t, "garchomp", act.Species)
	assert.Equal(t, battle.HP{Cur: 120, Max: 183}, act.HP)
	assert.Empty(t, act.RevealedItem)
	assert.Empty(t, act.RevealedAbility)
	assert.Equal(t, []string{"earthquake"}, act.RevealedMoves)
	assert.True(t, act.Volatiles.Substitute)
	assert.Equal(t, "earthquake", act.Volatiles.Encore)
	assert.Equal(t, "turn 1", pub.LastResultSummary)

	require.Len(t, pub.P1.Bench, 2)
	assert.True(t, pub.P1.Bench[1].Fainted)

	b, err := json.Marshal(pub)
	require.NoError(t, err)
	for _, secret := range []string{"choice_scarf", "rough_skin", "dragon_claw", "leftovers", "iron_barbs", "spikes", `"stats"`, `"pp"`} {
		assert.NotContains(t, string(b), secret)
	}
}

func TestProject_ShowsRevealedItemAndAbility(t *testing.T) {
	p := roster("a")
	p.Team[0].ItemRevealed = true
	p.Team[0].AbilityRevealed = true
	pub := battle.Project([2]battle.PrivateState{p, roster("b")}, battle.Field{}, "")
	assert.Equal(t, "choice_scarf", pub.P1.Active.RevealedItem)
	assert.Equal(t, "rough_skin", pub.P1.Active.RevealedAbility)
	assert.Empty(t, pub.P2.Active.RevealedItem)
}

func TestProject_SharesNoSlices(t *testing.T) {
	p := roster("a")
	pub := battle.Project([2]battle.PrivateState{p, roster("b")}, battle.Field{}, "")
	p.Team[0].RevealedMoves[0] = "mutated"
	p.Team[0].Types[0] = "mutated"
	assert.Equal(t, "earthquake", pub.P1.Active.RevealedMoves[0])
	assert.Equal(t, "dragon", pub.P1.Active.Types[0])
}

func TestPrivateState_CloneIsDeep(t *testing.T) {
	p := roster("a")
	c := p.Clone()
	c.Team[0].Moves[0].PP = 0
	c.Team[0].Volatile.Encore.Turns = 0
	c.Team[0].RevealedMoves = append(c.Team[0].RevealedMoves, "dragon_claw")
	assert.Equal(t, 9, p.Team[0].Moves[0].PP)
	assert.Equal(t, 2, p.Team[0].Volatile.Encore.Turns)
	assert.Len(t, p.Team[0].RevealedMoves, 1)
}

func TestStateHash_StableAndSensitive(t *testing.T) {
	privs := [2]battle.PrivateState{roster("a"), roster("b")}
	pub := battle.Project(privs, battle.Field{}, "")

	h1, err := battle.StateHash(pub, privs)
	require.NoError(t, err)
	h2, err := battle.StateHash(pub, [2]battle.PrivateState{roster("a"), roster("b")})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, h1)

	privs[1].Team[0].CurrentHP--
	h3, err := battle.StateHash(pub, privs)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestDiffStates(t *testing.T) {
	before := battle.Project([2]battle.PrivateState{roster("a"), roster("b")}, battle.Field{}, "")
	p := roster("b")
	p.Team[0].CurrentHP = 80
	after := battle.Project([2]battle.PrivateState{roster("a"), p}, battle.Field{Weather: battle.Weather{Kind: battle.WeatherSand, Turns: 5}}, "")

	diffs, err := battle.DiffStates(before, after)
	require.NoError(t, err)
	paths := make([]string, len(diffs))
	for i, d := range diffs {
		paths[i] = d.Path
	}
	assert.Equal(t, []string{"field.weather.kind", "field.weather.turns", "p2.active.hp.cur"}, paths)
	assert.Equal(t, "120", diffs[2].Before)
	assert.Equal(t, "80", diffs[2].After)
	assert.Empty(t, diffs[0].Before, "absent before")

	none, err := battle.DiffStates(before, before)
	require.NoError(t, err)
	assert.Empty(t, none)
}
