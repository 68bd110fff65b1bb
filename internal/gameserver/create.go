package gameserver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/pokeduel/internal/game/battle"
	"github.com/cory-johannsen/pokeduel/internal/game/calc"
	"github.com/cory-johannsen/pokeduel/internal/game/dice"
	"github.com/cory-johannsen/pokeduel/internal/game/refdata"
)

// DefaultLevel is used for team members submitted without a level.
const DefaultLevel = 50

// TeamMember is one roster slot as submitted by a player.
type TeamMember struct {
	Species string   `json:"species"`
	Level   int      `json:"level,omitempty"`
	Moves   []string `json:"moves"`
	// Ability defaults to the species' first listed ability.
	Ability string `json:"ability,omitempty"`
	Item    string `json:"item,omitempty"`
}

// CreateBattle validates both rosters and writes the initial battle record:
// meta, public state, the initial public snapshot, both private partitions
// and the first turn header, in one atomic update.
//
// Precondition: p1 and p2 are distinct non-empty uids; each team has 1 to 6 members.
// Postcondition: returns the new battle id; the battle is in choosing at turn 1, version 1.
func (h *BattleHandler) CreateBattle(ctx context.Context, p1, p2 battle.Player, teamA, teamB []TeamMember) (string, error) {
	if p1.UID == "" || p2.UID == "" {
		return "", battle.Invalid(battle.KindInvalidArgument, "both player uids are required")
	}
	if p1.UID == p2.UID {
		return "", battle.Invalid(battle.KindInvalidArgument, "a player cannot battle themselves")
	}
	rosterA, err := h.buildRoster(teamA)
	if err != nil {
		return "", fmt.Errorf("team A: %w", err)
	}
	rosterB, err := h.buildRoster(teamB)
	if err != nil {
		return "", fmt.Errorf("team B: %w", err)
	}

	id := h.newID()
	now := h.now().UTC()
	privates := [2]battle.PrivateState{
		{UID: p1.UID, Team: rosterA},
		{UID: p2.UID, Team: rosterB},
	}
	public := battle.Project(privates, battle.Field{}, "")
	meta := battle.Meta{
		BattleID:   id,
		Players:    battle.Players{P1: p1, P2: p2},
		Phase:      battle.PhaseChoosing,
		Turn:       1,
		Version:    1,
		DeadlineAt: now.Add(h.turnDuration),
		RNG:        dice.State{Seed: h.newSeed()},
		CreatedAt:  now,
	}

	writes, err := battle.Writes(
		battle.KV{Key: battle.PublicKey(id), Value: public},
		battle.KV{Key: battle.InitialPublicKey(id), Value: public},
		battle.KV{Key: battle.PrivateKey(id, p1.UID), Value: privates[battle.P1]},
		battle.KV{Key: battle.PrivateKey(id, p2.UID), Value: privates[battle.P2]},
		battle.KV{Key: battle.TurnHeaderKey(id, 1), Value: battle.TurnHeader{Turn: 1, Version: 1, DeadlineAt: meta.DeadlineAt}},
		battle.KV{Key: battle.MetaKey(id), Value: meta},
	)
	if err != nil {
		return "", err
	}
	if err := h.repo.Create(ctx, id, writes...); err != nil {
		return "", fmt.Errorf("creating battle: %w", err)
	}

	h.logger.Info("battle created",
		zap.String("battle_id", id),
		zap.String("p1", p1.UID),
		zap.String("p2", p2.UID),
		zap.Int("team_a", len(rosterA)),
		zap.Int("team_b", len(rosterB)),
	)
	return id, nil
}

func (h *BattleHandler) buildRoster(team []TeamMember) ([]battle.Pokemon, error) {
	if len(team) < battle.MinTeamSize || len(team) > battle.MaxTeamSize {
		return nil, battle.Invalid(battle.KindInvalidTeam, "team must have %d-%d members, got %d",
			battle.MinTeamSize, battle.MaxTeamSize, len(team))
	}
	out := make([]battle.Pokemon, 0, len(team))
	for i, m := range team {
		mon, err := h.buildPokemon(m)
		if err != nil {
			var ref *battle.ReferenceDataError
			if errors.As(err, &ref) {
				return nil, battle.Invalid(battle.KindInvalidTeam, "slot %d: %v", i, err)
			}
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		out = append(out, mon)
	}
	return out, nil
}

func (h *BattleHandler) buildPokemon(m TeamMember) (battle.Pokemon, error) {
	sp, err := h.refs.Species(m.Species)
	if err != nil {
		return battle.Pokemon{}, err
	}
	level := m.Level
	if level == 0 {
		level = DefaultLevel
	}
	if level < 1 || level > 100 {
		return battle.Pokemon{}, battle.Invalid(battle.KindInvalidTeam, "%s: level %d out of range", sp.ID, level)
	}
	if len(m.Moves) < 1 || len(m.Moves) > battle.MaxMoves {
		return battle.Pokemon{}, battle.Invalid(battle.KindInvalidTeam, "%s: must know 1-%d moves, got %d",
			sp.ID, battle.MaxMoves, len(m.Moves))
	}

	mon := battle.Pokemon{
		Species: sp.ID,
		Level:   level,
		Types:   append([]string(nil), sp.Types...),
		Stats: battle.Stats{
			HP:  calc.ComputeStat(sp.BaseStats.HP, level, true),
			Atk: calc.ComputeStat(sp.BaseStats.Atk, level, false),
			Def: calc.ComputeStat(sp.BaseStats.Def, level, false),
			SpA: calc.ComputeStat(sp.BaseStats.SpA, level, false),
			SpD: calc.ComputeStat(sp.BaseStats.SpD, level, false),
			Spe: calc.ComputeStat(sp.BaseStats.Spe, level, false),
		},
	}
	mon.MaxHP = mon.Stats.HP
	mon.CurrentHP = mon.MaxHP

	seen := make(map[string]bool, len(m.Moves))
	for _, id := range m.Moves {
		if seen[id] {
			return battle.Pokemon{}, battle.Invalid(battle.KindInvalidTeam, "%s: duplicate move %q", sp.ID, id)
		}
		seen[id] = true
		if id == refdata.StruggleID {
			return battle.Pokemon{}, battle.Invalid(battle.KindInvalidTeam, "%s: struggle cannot be taught", sp.ID)
		}
		mv, err := h.refs.Move(id)
		if err != nil {
			return battle.Pokemon{}, err
		}
		mon.Moves = append(mon.Moves, battle.MoveSlot{ID: mv.ID, PP: mv.PP, MaxPP: mv.PP})
	}

	mon.Ability = m.Ability
	if mon.Ability == "" && len(sp.Abilities) > 0 {
		mon.Ability = sp.Abilities[0]
	}
	if mon.Ability != "" {
		if _, err := h.refs.Ability(mon.Ability); err != nil {
			return battle.Pokemon{}, err
		}
	}
	if m.Item != "" {
		if _, err := h.refs.Item(m.Item); err != nil {
			return battle.Pokemon{}, err
		}
		mon.Item = m.Item
	}
	return mon, nil
}
