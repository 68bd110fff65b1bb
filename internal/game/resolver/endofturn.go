package resolver

import (
	"fmt"

	"github.com/cory-johannsen/pokeduel/internal/game/battle"
	"github.com/cory-johannsen/pokeduel/internal/game/calc"
)

// WeatherChip is the fraction of max HP sand and hail deal at end of turn.
const WeatherChip = 1.0 / 16

// weatherImmune lists the types unaffected by each damaging weather.
var weatherImmune = map[string][]string{
	battle.WeatherSand: {calc.Rock, calc.Ground, calc.Steel},
	battle.WeatherHail: {calc.Ice},
}

// endOfTurn runs residual effects for p1 then p2, then ticks field counters.
func (ts *turnState) endOfTurn() {
	for _, s := range battle.Sides {
		ts.residual(s)
	}
	for _, s := range battle.Sides {
		ts.tickVolatiles(s)
	}
	ts.tickField()
}

func (ts *turnState) residual(s battle.Side) {
	mon := ts.active(s)
	if mon.Fainted() {
		return
	}
	if immune, ok := weatherImmune[ts.field.Weather.Kind]; ok {
		hit := true
		for _, t := range immune {
			if calc.HasType(mon.Types, t) {
				hit = false
			}
		}
		if hit {
			ts.damage(s, calc.Fraction(mon.MaxHP, WeatherChip), ts.field.Weather.Kind)
		}
	}
	switch mon.Status {
	case battle.StatusPoison:
		ts.damage(s, calc.Fraction(mon.MaxHP, calc.PoisonFraction), "psn")
	case battle.StatusBurn:
		ts.damage(s, calc.Fraction(mon.MaxHP, calc.BurnFraction), "brn")
	}
	if it := ts.item(mon); it != nil && it.ResidualHeal > 0 && !mon.Fainted() {
		if ts.heal(s, calc.Fraction(mon.MaxHP, it.ResidualHeal), "item: "+it.Name) > 0 {
			mon.ItemRevealed = true
		}
	}
	if mon.Volatile.PerishSong > 0 && !mon.Fainted() {
		mon.Volatile.PerishSong--
		ts.logf("|-start|%s|perish%d", ts.ident(s), mon.Volatile.PerishSong)
		if mon.Volatile.PerishSong == 0 {
			mon.CurrentHP = 0
			ts.checkFaint(s)
		}
	}
}

func (ts *turnState) tickVolatiles(s battle.Side) {
	mon := ts.active(s)
	v := &mon.Volatile
	v.Protect = false
	if !ts.protected[s] {
		v.ProtectChain = 0
	}
	if v.Recharge && !ts.recharged[s] {
		v.Recharge = false
	}
	if mon.Fainted() {
		return
	}
	if v.Taunt > 0 {
		v.Taunt--
		if v.Taunt == 0 {
			ts.logf("|-end|%s|move: Taunt", ts.ident(s))
		}
	}
	if v.Encore != nil {
		v.Encore.Turns--
		if v.Encore.Turns <= 0 {
			v.Encore = nil
			ts.logf("|-end|%s|Encore", ts.ident(s))
		}
	}
	if v.Disable != nil {
		v.Disable.Turns--
		if v.Disable.Turns <= 0 {
			if slot, ok := mon.Move(v.Disable.MoveID); ok {
				slot.Disabled = false
			}
			v.Disable = nil
			ts.logf("|-end|%s|Disable", ts.ident(s))
		}
	}
}

func (ts *turnState) tickField() {
	f := &ts.field
	if f.Weather.Kind != "" {
		f.Weather.Turns--
		if f.Weather.Turns <= 0 {
			ts.logf("|-weather|none")
			f.Weather = battle.Weather{}
		}
	}
	if f.TrickRoom > 0 {
		f.TrickRoom--
		if f.TrickRoom == 0 {
			ts.logf("|-fieldend|move: Trick Room")
		}
	}
	for _, s := range battle.Sides {
		sf := f.Side(s)
		tick := func(counter *int, name string) {
			if *counter > 0 {
				*counter--
				if *counter == 0 {
					ts.logf("|-sideend|%s|%s", s, name)
				}
			}
		}
		tick(&sf.Reflect, "Reflect")
		tick(&sf.LightScreen, "Light Screen")
		tick(&sf.Safeguard, "Safeguard")
		tick(&sf.Mist, "Mist")
		tick(&sf.Tailwind, "Tailwind")
	}
}

// outcome decides the phase after a resolution. Both sides out of healthy
// Pokémon is a draw; one side out loses; any fainted active otherwise forces
// a replacement.
func outcome(res *Result, meta battle.Meta) {
	var healthy, fainted [2]bool
	for _, s := range battle.Sides {
		p := &res.Privates[s]
		healthy[s] = !p.AllFainted()
		fainted[s] = p.ActiveMon().Fainted()
	}
	switch {
	case !healthy[battle.P1] && !healthy[battle.P2]:
		res.Phase = battle.PhaseEnded
		res.EndedReason = battle.EndedDoubleKO
	case !healthy[battle.P1]:
		res.Phase = battle.PhaseEnded
		res.EndedReason = battle.EndedKnockout
		res.WinnerUID = meta.Players.P2.UID
	case !healthy[battle.P2]:
		res.Phase = battle.PhaseEnded
		res.EndedReason = battle.EndedKnockout
		res.WinnerUID = meta.Players.P1.UID
	case fainted[battle.P1] || fainted[battle.P2]:
		res.Phase = battle.PhaseReplacement
		for _, s := range battle.Sides {
			if fainted[s] {
				res.NeedsReplacement = append(res.NeedsReplacement, meta.Players.Get(s).UID)
			}
		}
	default:
		res.Phase = battle.PhaseChoosing
	}
}

func summarize(res *Result, meta battle.Meta) string {
	switch res.Phase {
	case battle.PhaseEnded:
		if res.WinnerUID == "" {
			return "Both sides fell. The battle is a draw."
		}
		side, _ := meta.SideOf(res.WinnerUID)
		return fmt.Sprintf("%s wins.", meta.Players.Get(side).Name)
	case battle.PhaseReplacement:
		return "Waiting for a replacement."
	}
	var hp [2]string
	for _, s := range battle.Sides {
		mon := res.Privates[s].ActiveMon()
		hp[s] = fmt.Sprintf("%s %d%%", mon.Species, mon.CurrentHP*100/max(mon.MaxHP, 1))
	}
	return fmt.Sprintf("Turn %d: %s vs %s.", meta.Turn, hp[0], hp[1])
}
