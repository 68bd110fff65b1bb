package resolver_test

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/cory-johannsen/pokeduel/internal/game/battle"
	"github.com/cory-johannsen/pokeduel/internal/game/refdata"
	"github.com/cory-johannsen/pokeduel/internal/game/resolver"
)

// constSource returns the same float for every draw.
type constSource float64

func (c constSource) Float64() float64 { return float64(c) }
func (c constSource) Intn(n int) int   { return int(float64(c) * float64(n)) }

const (
	p1UID = "uid-ash"
	p2UID = "uid-gary"
)

func testRegistry() *refdata.Registry {
	reg := refdata.NewRegistry()
	reg.Add(refdata.Catalog{
		Moves: []refdata.Move{
			{ID: "tackle", Name: "Tackle", Type: "normal", Category: refdata.Physical, Power: 40, Accuracy: 100, PP: 35, MakesContact: true},
			{ID: "quick_attack", Name: "Quick Attack", Type: "normal", Category: refdata.Physical, Power: 40, Accuracy: 100, Priority: 1, PP: 30},
			{ID: "pursuit", Name: "Pursuit", Type: "dark", Category: refdata.Physical, Power: 40, Accuracy: 100, PP: 20, PunishesSwitch: true},
			{ID: "bullet_seed", Name: "Bullet Seed", Type: "grass", Category: refdata.Physical, Power: 25, Accuracy: 100, PP: 30, Hits: &refdata.HitRange{Min: 2, Max: 5}},
			{ID: "hyper_beam", Name: "Hyper Beam", Type: "normal", Category: refdata.Special, Power: 150, Accuracy: 100, PP: 5, Recharge: true},
			{ID: "protect", Name: "Protect", Type: "normal", Category: refdata.Status, Priority: 4, PP: 10, Volatile: refdata.VolatileProtect},
			{ID: "growl", Name: "Growl", Type: "normal", Category: refdata.Status, Accuracy: 100, PP: 40,
				StatChanges: []refdata.StatChange{{Stat: "atk", Stages: -1, Target: battle.TargetFoe}}},
			{ID: "toxic", Name: "Toxic", Type: "poison", Category: refdata.Status, Accuracy: 100, PP: 10,
				Ailment: &refdata.Ailment{Status: "psn", Chance: 100}},
			{ID: "stealth_rock", Name: "Stealth Rock", Type: "rock", Category: refdata.Status, PP: 20,
				Field: &refdata.FieldEffect{Effect: refdata.FieldStealthRock}},
			{ID: "body_slam", Name: "Body Slam", Type: "normal", Category: refdata.Physical, Power: 85, Accuracy: 100, PP: 15, MakesContact: true,
				Ailment: &refdata.Ailment{Status: "par", Chance: 30},
				StatChanges: []refdata.StatChange{{Stat: "def", Stages: -1, Target: battle.TargetFoe}}},
			{ID: "drain_punch", Name: "Drain Punch", Type: "normal", Category: refdata.Physical, Power: 75, Accuracy: 100, PP: 10, Drain: 0.5},
			{ID: "take_down", Name: "Take Down", Type: "normal", Category: refdata.Physical, Power: 90, Accuracy: 100, PP: 20, Recoil: 0.25},
			{ID: "substitute", Name: "Substitute", Type: "normal", Category: refdata.Status, PP: 10, Volatile: refdata.VolatileSubstitute},
		},
		Abilities: []refdata.Ability{
			{ID: "skill_link", Name: "Skill Link", ForceMaxHits: true},
			{ID: "intimidate", Name: "Intimidate", EntryFoeStat: &refdata.StatBoost{Stat: "atk", Stages: -1}},
			{ID: "rough_skin", Name: "Rough Skin", ContactDamage: true},
			{ID: "static", Name: "Static", ContactAilment: &refdata.Ailment{Status: "par", Chance: 30}},
			{ID: "moxie", Name: "Moxie", OnKOBoost: &refdata.StatBoost{Stat: "atk", Stages: 1}},
		},
		Items: []refdata.Item{
			{ID: "choice_scarf", Name: "Choice Scarf", ChoiceLock: true, StatMultipliers: map[string]float64{"spe": 1.5}},
			{ID: "quick_claw", Name: "Quick Claw", QuickChance: 20, QuickTieBonus: 0.5},
		},
	})
	return reg
}

func newEngine(t *testing.T) *resolver.Engine {
	t.Helper()
	return resolver.NewEngine(testRegistry(), nil, zap.NewNop())
}

// mon builds a level 50 normal-type Pokémon with 100 in every stat.
func mon(species string, hp, spe int, moves ...string) battle.Pokemon {
	p := battle.Pokemon{
		Species:   species,
		Level:     50,
		Types:     []string{"normal"},
		Stats:     battle.Stats{HP: hp, Atk: 100, Def: 100, SpA: 100, SpD: 100, Spe: spe},
		CurrentHP: hp,
		MaxHP:     hp,
	}
	for _, id := range moves {
		p.Moves = append(p.Moves, battle.MoveSlot{ID: id, PP: 10, MaxPP: 10})
	}
	return p
}

func team(uid string, members ...battle.Pokemon) battle.PrivateState {
	return battle.PrivateState{UID: uid, Team: members}
}

func snapshot(p1, p2 battle.PrivateState) battle.Snapshot {
	privs := [2]battle.PrivateState{p1, p2}
	meta := battle.Meta{
		BattleID: "b-1",
		Players: battle.Players{
			P1: battle.Player{UID: p1UID, Name: "Ash"},
			P2: battle.Player{UID: p2UID, Name: "Gary"},
		},
		Phase:   battle.PhaseChoosing,
		Turn:    1,
		Version: 1,
	}
	return battle.Snapshot{Meta: meta, Public: battle.Project(privs, battle.Field{}, ""), Privates: privs}
}

func move(id string) battle.Action {
	return battle.Action{Type: battle.ActionMove, MoveID: id, Target: battle.TargetFoe}
}

func switchTo(idx int) battle.Action {
	return battle.Action{Type: battle.ActionSwitch, SwitchIndex: idx}
}

// logIndex returns the index of the first log line with prefix, or -1.
func logIndex(logs []string, prefix string) int {
	for i, l := range logs {
		if strings.HasPrefix(l, prefix) {
			return i
		}
	}
	return -1
}
