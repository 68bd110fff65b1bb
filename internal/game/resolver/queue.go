package resolver

import (
	"sort"

	"github.com/cory-johannsen/pokeduel/internal/game/battle"
	"github.com/cory-johannsen/pokeduel/internal/game/calc"
	"github.com/cory-johannsen/pokeduel/internal/game/refdata"
)

// queued is one side's action annotated with its ordering keys.
type queued struct {
	side     battle.Side
	action   battle.Action
	move     *refdata.Move
	moveErr  error
	priority int
	speed    int
	bonus    float64
	roll     float64
	// punish doubles power against a switching target.
	punish bool
}

// buildQueue annotates both actions and sorts them. Draws happen in a fixed
// order (p1 quick rolls, p1 tie roll, p2 quick rolls, p2 tie roll) so the
// queue is reproducible from the rng state.
func (ts *turnState) buildQueue() []queued {
	q := make([]queued, 0, 2)
	for _, s := range battle.Sides {
		q = append(q, ts.annotate(s, ts.choices[s]))
	}
	for i := range q {
		foe := q[1-i].side
		if q[i].move != nil && q[i].move.PunishesSwitch && ts.choices[foe].Type == battle.ActionSwitch {
			q[i].priority = calc.InterceptPriority(q[i].priority)
			q[i].punish = true
		}
	}
	sortQueue(q, ts.field.TrickRoom > 0)
	return q
}

func (ts *turnState) annotate(s battle.Side, a battle.Action) queued {
	mon := ts.active(s)
	q := queued{side: s, action: a, speed: ts.speed(s)}

	if a.Type == battle.ActionSwitch {
		q.priority = calc.Priority(calc.PriorityInput{Switch: true})
		q.roll = ts.rng.Float64()
		return q
	}

	q.move, q.moveErr = ts.e.refs.Move(a.MoveID)
	if q.moveErr == nil {
		in := calc.PriorityInput{
			Base:       q.move.Priority,
			StatusMove: q.move.Category == refdata.Status,
			MoveType:   q.move.Type,
			Drain:      q.move.Drain > 0,
			FullHP:     mon.CurrentHP == mon.MaxHP,
		}
		ab := ts.ability(mon)
		if ab != nil {
			in.Boost = ab.PriorityBoost
		}
		q.priority = calc.Priority(in)

		if q.move.Damaging() {
			if ab != nil && ab.QuickChance > 0 && calc.ChancePercent(ts.rng, ab.QuickChance) {
				q.priority++
				mon.AbilityRevealed = true
				ts.logf("|-activate|%s|ability: %s", ts.ident(s), ab.Name)
			}
			if it := ts.item(mon); it != nil && it.QuickChance > 0 && calc.ChancePercent(ts.rng, it.QuickChance) {
				q.priority++
				q.bonus += it.QuickTieBonus
				mon.ItemRevealed = true
				ts.logf("|-activate|%s|item: %s", ts.ident(s), it.Name)
			}
		}
	}
	q.roll = ts.rng.Float64()
	return q
}

// speed is the turn-order speed of s's active.
func (ts *turnState) speed(s battle.Side) int {
	mon := ts.active(s)
	in := calc.SpeedInput{
		Base:      mon.Stats.Spe,
		Stage:     mon.StatModifiers.Spe,
		Paralyzed: mon.Status == battle.StatusParalysis,
		Tailwind:  ts.field.Side(s).Tailwind > 0,
	}
	if ab := ts.ability(mon); ab != nil && ab.WeatherSpeed != "" && ab.WeatherSpeed == ts.field.Weather.Kind {
		in.WeatherBoost = true
	}
	if it := ts.item(mon); it != nil {
		in.ItemMultiplier = it.Multiplier(string(battle.StatSpe))
	}
	return calc.EffectiveSpeed(in)
}

// sortQueue orders by priority desc, speed desc (asc under trick room),
// tie-break bonus desc, roll desc, then p1 before p2.
func sortQueue(q []queued, trickRoom bool) {
	sort.SliceStable(q, func(i, j int) bool {
		a, b := q[i], q[j]
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		if a.speed != b.speed {
			if trickRoom {
				return a.speed < b.speed
			}
			return a.speed > b.speed
		}
		if a.bonus != b.bonus {
			return a.bonus > b.bonus
		}
		if a.roll != b.roll {
			return a.roll > b.roll
		}
		return a.side < b.side
	})
}
