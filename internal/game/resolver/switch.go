package resolver

import (
	"github.com/cory-johannsen/pokeduel/internal/game/battle"
	"github.com/cory-johannsen/pokeduel/internal/game/calc"
	"github.com/cory-johannsen/pokeduel/internal/scripting"
)

// switchOut clears everything that does not survive leaving the field.
func (ts *turnState) switchOut(s battle.Side) {
	mon := ts.active(s)
	if mon.Volatile.Disable != nil {
		if slot, ok := mon.Move(mon.Volatile.Disable.MoveID); ok {
			slot.Disabled = false
		}
	}
	mon.Volatile = battle.Volatile{}
	mon.StatModifiers = battle.Boosts{}
	ts.privs[s].ChoiceLock = ""
}

// switchIn makes idx the active and applies entry hazards, then entry
// abilities and scripted hooks.
//
// Precondition: canSwitchTo(s, idx).
func (ts *turnState) switchIn(s battle.Side, idx int) {
	if ts.active(s).Fainted() {
		ts.switchOut(s)
	}
	ts.privs[s].Active = idx
	ts.fainted[s] = false
	mon := ts.active(s)
	ts.logf("|switch|%s|%s", ts.ident(s), hpText(mon))

	ts.applyHazards(s)
	if mon.Fainted() {
		return
	}
	ts.entryAbility(s)
}

func (ts *turnState) applyHazards(s battle.Side) {
	mon := ts.active(s)
	hz := &ts.field.Side(s).Hazards
	grounded := !calc.HasType(mon.Types, calc.Flying)

	if hz.StealthRock {
		ts.damage(s, calc.StealthRockDamage(mon.MaxHP, mon.Types), "Stealth Rock")
	}
	if hz.Spikes > 0 && grounded {
		ts.damage(s, calc.SpikesDamage(mon.MaxHP, hz.Spikes), "Spikes")
	}
	if hz.ToxicSpikes > 0 && grounded && !mon.Fainted() {
		if calc.HasType(mon.Types, calc.Poison) {
			hz.ToxicSpikes = 0
			ts.logf("|-sideend|%s|Toxic Spikes", s)
		} else {
			ts.inflict(s, battle.StatusPoison, true)
		}
	}
	if hz.StickyWeb && grounded && !mon.Fainted() {
		ts.logf("|-activate|%s|move: Sticky Web", ts.ident(s))
		ts.boost(s, battle.StatSpe, -1, true)
	}
}

func (ts *turnState) entryAbility(s battle.Side) {
	mon := ts.active(s)
	ab := ts.ability(mon)
	if ab == nil {
		return
	}
	foe := s.Opponent()
	if ab.EntryFoeStat != nil && !ts.active(foe).Fainted() {
		mon.AbilityRevealed = true
		ts.logf("|-ability|%s|%s", ts.ident(s), ab.Name)
		ts.boost(foe, battle.Stat(ab.EntryFoeStat.Stat), ab.EntryFoeStat.Stages, true)
	}
	if ab.EntryHook != "" && ts.e.hooks != nil {
		info := scripting.EntryInfo{
			Side:    s.String(),
			Species: mon.Species,
			HP:      mon.CurrentHP,
			MaxHP:   mon.MaxHP,
			Weather: ts.field.Weather.Kind,
		}
		if ts.e.hooks.CallEntryHook(ab.EntryHook, info, hookHost{ts}) {
			mon.AbilityRevealed = true
		}
	}
}

// hookHost routes script requests into the turn being resolved.
type hookHost struct{ ts *turnState }

func (h hookHost) SetWeather(kind string, turns int) {
	switch kind {
	case battle.WeatherSun, battle.WeatherRain, battle.WeatherSand, battle.WeatherHail:
		h.ts.setWeather(kind, turns)
	}
}

func (h hookHost) Boost(side, stat string, stages int) {
	for _, s := range battle.Sides {
		if s.String() == side {
			h.ts.boost(s, battle.Stat(stat), stages, false)
		}
	}
}

func (h hookHost) Log(msg string) {
	h.ts.logf("|-message|%s", msg)
}
