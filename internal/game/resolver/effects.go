package resolver

import (
	"github.com/cory-johannsen/pokeduel/internal/game/battle"
	"github.com/cory-johannsen/pokeduel/internal/game/calc"
	"github.com/cory-johannsen/pokeduel/internal/game/refdata"
)

// Volatile durations.
const (
	TauntTurns      = 3
	EncoreTurns     = 3
	DisableTurns    = 4
	PerishTurns     = 3
	MaxToxicSpikes  = 2
	DefaultFieldLen = 5
)

// immuneTo lists the types that cannot receive each status.
var immuneTo = map[battle.Status][]string{
	battle.StatusBurn:      {calc.Fire},
	battle.StatusParalysis: {calc.Electric},
	battle.StatusPoison:    {calc.Poison, calc.Steel},
	battle.StatusFreeze:    {calc.Ice},
}

// inflict gives s's active status st. fromFoe subjects it to safeguard.
// Returns whether the status was applied.
func (ts *turnState) inflict(s battle.Side, st battle.Status, fromFoe bool) bool {
	mon := ts.active(s)
	if mon.Fainted() || mon.Status != battle.StatusNone {
		return false
	}
	for _, t := range immuneTo[st] {
		if calc.HasType(mon.Types, t) {
			return false
		}
	}
	if fromFoe && ts.field.Side(s).Safeguard > 0 {
		ts.logf("|-activate|%s|move: Safeguard", ts.ident(s))
		return false
	}
	mon.Status = st
	mon.StatusTurns = 0
	if st == battle.StatusSleep {
		mon.StatusTurns = SleepTurns
	}
	ts.logf("|-status|%s|%s", ts.ident(s), st)
	return true
}

func (ts *turnState) applyAilment(s, foe battle.Side, m *refdata.Move) {
	if m.Ailment == nil {
		return
	}
	target := ts.active(foe)
	if target.Fainted() {
		return
	}
	if m.Category == refdata.Status && target.Volatile.SubstituteHP > 0 {
		ts.logf("|-fail|%s", ts.ident(s))
		return
	}
	if !calc.ChancePercent(ts.rng, m.Ailment.Chance) {
		return
	}
	if !ts.inflict(foe, battle.Status(m.Ailment.Status), true) && m.Category == refdata.Status {
		ts.logf("|-fail|%s", ts.ident(s))
	}
}

// applyStatChanges applies the move's stage changes. shielded skips the ones
// aimed at the foe.
func (ts *turnState) applyStatChanges(s, foe battle.Side, m *refdata.Move, shielded bool) {
	for _, sc := range m.StatChanges {
		target, fromFoe := s, false
		if sc.Target == battle.TargetFoe {
			if shielded {
				continue
			}
			target, fromFoe = foe, true
		}
		if ts.active(target).Fainted() {
			continue
		}
		if sc.Chance > 0 && !calc.ChancePercent(ts.rng, sc.Chance) {
			continue
		}
		ts.boost(target, battle.Stat(sc.Stat), sc.Stages, fromFoe)
	}
}

// boost changes a stage of s's active. Drops caused by the foe are blocked by
// mist and stat-protecting abilities, and answered by drop-punishing ones.
func (ts *turnState) boost(s battle.Side, stat battle.Stat, stages int, fromFoe bool) {
	mon := ts.active(s)
	if stages == 0 || mon.Fainted() || !battle.ValidStat(stat) {
		return
	}
	ab := ts.ability(mon)
	if fromFoe && stages < 0 {
		if ts.field.Side(s).Mist > 0 {
			ts.logf("|-activate|%s|move: Mist", ts.ident(s))
			return
		}
		if ab != nil && ab.BlocksStatDrops {
			mon.AbilityRevealed = true
			ts.logf("|-fail|%s|unboost|[from] ability: %s", ts.ident(s), ab.Name)
			return
		}
	}
	cur := mon.StatModifiers.Get(stat)
	next := calc.ClampStage(cur + stages)
	if next == cur {
		ts.logf("|-fail|%s|%s", ts.ident(s), stat)
		return
	}
	mon.StatModifiers.Set(stat, next)
	if next > cur {
		ts.logf("|-boost|%s|%s|%d", ts.ident(s), stat, next-cur)
	} else {
		ts.logf("|-unboost|%s|%s|%d", ts.ident(s), stat, cur-next)
	}
	if fromFoe && stages < 0 && ab != nil && ab.OnStatDropped != nil {
		mon.AbilityRevealed = true
		ts.boost(s, battle.Stat(ab.OnStatDropped.Stat), ab.OnStatDropped.Stages, false)
	}
}

func (ts *turnState) applyVolatile(s, foe battle.Side, m *refdata.Move) {
	user, target := ts.active(s), ts.active(foe)
	switch m.Volatile {
	case "":
	case refdata.VolatileProtect:
		ts.protected[s] = true
		if calc.ProtectSucceeds(ts.rng, user.Volatile.ProtectChain) {
			user.Volatile.Protect = true
			user.Volatile.ProtectChain++
			ts.logf("|-singleturn|%s|Protect", ts.ident(s))
		} else {
			user.Volatile.ProtectChain = 0
			ts.logf("|-fail|%s", ts.ident(s))
		}
	case refdata.VolatileSubstitute:
		cost := calc.Fraction(user.MaxHP, calc.SubstituteFraction)
		if user.Volatile.SubstituteHP > 0 || user.CurrentHP <= cost {
			ts.logf("|-fail|%s", ts.ident(s))
			return
		}
		user.CurrentHP -= cost
		user.Volatile.SubstituteHP = cost
		ts.logf("|-start|%s|Substitute", ts.ident(s))
		ts.logf("|-damage|%s|%s", ts.ident(s), hpText(user))
	case refdata.VolatileTaunt:
		if target.Volatile.Taunt > 0 {
			ts.logf("|-fail|%s", ts.ident(s))
			return
		}
		target.Volatile.Taunt = TauntTurns
		ts.logf("|-start|%s|move: Taunt", ts.ident(foe))
	case refdata.VolatileEncore:
		if target.Volatile.LastMove == "" || target.Volatile.Encore != nil {
			ts.logf("|-fail|%s", ts.ident(s))
			return
		}
		target.Volatile.Encore = &battle.Lock{MoveID: target.Volatile.LastMove, Turns: EncoreTurns}
		ts.logf("|-start|%s|Encore", ts.ident(foe))
	case refdata.VolatileDisable:
		slot, ok := target.Move(target.Volatile.LastMove)
		if !ok || target.Volatile.Disable != nil {
			ts.logf("|-fail|%s", ts.ident(s))
			return
		}
		slot.Disabled = true
		target.Volatile.Disable = &battle.Lock{MoveID: slot.ID, Turns: DisableTurns}
		ts.logf("|-start|%s|Disable|%s", ts.ident(foe), slot.ID)
	case refdata.VolatilePerishSong:
		started := false
		for _, side := range battle.Sides {
			mon := ts.active(side)
			if mon.Fainted() || mon.Volatile.PerishSong > 0 {
				continue
			}
			mon.Volatile.PerishSong = PerishTurns
			started = true
		}
		if !started {
			ts.logf("|-fail|%s", ts.ident(s))
			return
		}
		ts.logf("|-fieldactivate|move: Perish Song")
	}
}

func (ts *turnState) applyHeal(s battle.Side, m *refdata.Move) {
	if m.Heal <= 0 {
		return
	}
	user := ts.active(s)
	if ts.heal(s, calc.Fraction(user.MaxHP, m.Heal), "") == 0 {
		ts.logf("|-fail|%s", ts.ident(s))
	}
}

func (ts *turnState) applyField(s battle.Side, m *refdata.Move) {
	f := m.Field
	if f == nil {
		return
	}
	turns := f.Turns
	if turns <= 0 {
		turns = DefaultFieldLen
	}
	own, foe := ts.field.Side(s), ts.field.Side(s.Opponent())
	set := func(counter *int, name string) {
		if *counter > 0 {
			ts.logf("|-fail|%s", ts.ident(s))
			return
		}
		*counter = turns
		ts.logf("|-sidestart|%s|%s", s, name)
	}
	switch f.Effect {
	case refdata.FieldReflect:
		set(&own.Reflect, "Reflect")
	case refdata.FieldLightScreen:
		set(&own.LightScreen, "Light Screen")
	case refdata.FieldSafeguard:
		set(&own.Safeguard, "Safeguard")
	case refdata.FieldMist:
		set(&own.Mist, "Mist")
	case refdata.FieldTailwind:
		set(&own.Tailwind, "Tailwind")
	case refdata.FieldTrickRoom:
		if ts.field.TrickRoom > 0 {
			ts.field.TrickRoom = 0
			ts.logf("|-fieldend|move: Trick Room")
			return
		}
		ts.field.TrickRoom = turns
		ts.logf("|-fieldstart|move: Trick Room")
	case refdata.FieldWeather:
		if !ts.setWeather(f.Weather, turns) {
			ts.logf("|-fail|%s", ts.ident(s))
		}
	case refdata.FieldStealthRock:
		if foe.Hazards.StealthRock {
			ts.logf("|-fail|%s", ts.ident(s))
			return
		}
		foe.Hazards.StealthRock = true
		ts.logf("|-sidestart|%s|Stealth Rock", s.Opponent())
	case refdata.FieldSpikes:
		if foe.Hazards.Spikes >= calc.MaxSpikesLayers {
			ts.logf("|-fail|%s", ts.ident(s))
			return
		}
		foe.Hazards.Spikes++
		ts.logf("|-sidestart|%s|Spikes", s.Opponent())
	case refdata.FieldToxicSpikes:
		if foe.Hazards.ToxicSpikes >= MaxToxicSpikes {
			ts.logf("|-fail|%s", ts.ident(s))
			return
		}
		foe.Hazards.ToxicSpikes++
		ts.logf("|-sidestart|%s|Toxic Spikes", s.Opponent())
	case refdata.FieldStickyWeb:
		if foe.Hazards.StickyWeb {
			ts.logf("|-fail|%s", ts.ident(s))
			return
		}
		foe.Hazards.StickyWeb = true
		ts.logf("|-sidestart|%s|Sticky Web", s.Opponent())
	}
}

func (ts *turnState) setWeather(kind string, turns int) bool {
	if kind == "" || ts.field.Weather.Kind == kind {
		return false
	}
	ts.field.Weather = battle.Weather{Kind: kind, Turns: turns}
	ts.logf("|-weather|%s", kind)
	return true
}
