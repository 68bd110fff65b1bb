package resolver

import (
	"errors"

	"go.uber.org/zap"

	"github.com/cory-johannsen/pokeduel/internal/game/battle"
	"github.com/cory-johannsen/pokeduel/internal/game/calc"
	"github.com/cory-johannsen/pokeduel/internal/game/refdata"
)

// Status timing.
const (
	SleepTurns   = 3
	ThawChance   = 0.2
	FullParalyze = 0.25
)

func (ts *turnState) execute(q queued) {
	if ts.active(q.side).Fainted() {
		return
	}
	if q.action.Type == battle.ActionSwitch {
		if !ts.canSwitchTo(q.side, q.action.SwitchIndex) {
			ts.logf("|cant|%s|switch", ts.ident(q.side))
			return
		}
		ts.switchOut(q.side)
		ts.switchIn(q.side, q.action.SwitchIndex)
		ts.switched[q.side] = true
		return
	}
	if q.moveErr != nil {
		var rde *battle.ReferenceDataError
		if errors.As(q.moveErr, &rde) {
			ts.e.logger.Warn("resolver: skipping action with missing reference data",
				zap.String("side", q.side.String()),
				zap.Error(q.moveErr),
			)
		}
		ts.logf("|cant|%s|nodata|%s", ts.ident(q.side), q.action.MoveID)
		return
	}
	ts.useMove(q)
}

// usable re-validates a move against the user's current locks. It returns
// the failure reason, or "" when usable.
func (ts *turnState) usable(s battle.Side, m *refdata.Move) string {
	mon := ts.active(s)
	if m.ID == refdata.StruggleID {
		if len(UsableMoves(&ts.privs[s], ts.e.refs)) > 0 {
			return "struggle"
		}
		return ""
	}
	slot, ok := mon.Move(m.ID)
	switch {
	case !ok:
		return "unknown move"
	case slot.PP <= 0:
		return "nopp"
	case slot.Disabled || (mon.Volatile.Disable != nil && mon.Volatile.Disable.MoveID == m.ID):
		return "disabled"
	case mon.Volatile.Encore != nil && mon.Volatile.Encore.MoveID != m.ID:
		return "encore"
	case ts.privs[s].ChoiceLock != "" && ts.privs[s].ChoiceLock != m.ID:
		return "choicelock"
	case mon.Volatile.Taunt > 0 && m.Category == refdata.Status:
		return "taunt"
	}
	return ""
}

// canAct resolves recharge, sleep, freeze and paralysis. Returns false when
// the user loses its turn.
func (ts *turnState) canAct(s battle.Side) bool {
	mon := ts.active(s)
	if mon.Volatile.Recharge {
		ts.logf("|cant|%s|recharge", ts.ident(s))
		return false
	}
	switch mon.Status {
	case battle.StatusSleep:
		if mon.StatusTurns > 0 {
			mon.StatusTurns--
		}
		if mon.StatusTurns > 0 {
			ts.logf("|cant|%s|slp", ts.ident(s))
			return false
		}
		mon.Status = battle.StatusNone
		ts.logf("|-curestatus|%s|slp", ts.ident(s))
	case battle.StatusFreeze:
		if !calc.Chance(ts.rng, ThawChance) {
			ts.logf("|cant|%s|frz", ts.ident(s))
			return false
		}
		mon.Status = battle.StatusNone
		ts.logf("|-curestatus|%s|frz", ts.ident(s))
	case battle.StatusParalysis:
		if calc.Chance(ts.rng, FullParalyze) {
			ts.logf("|cant|%s|par", ts.ident(s))
			return false
		}
	}
	return true
}

func targetsFoe(m *refdata.Move) bool {
	if m.Damaging() || m.Ailment != nil {
		return true
	}
	for _, sc := range m.StatChanges {
		if sc.Target == battle.TargetFoe {
			return true
		}
	}
	switch m.Volatile {
	case refdata.VolatileTaunt, refdata.VolatileEncore, refdata.VolatileDisable:
		return true
	}
	return false
}

func (ts *turnState) useMove(q queued) {
	s, foe := q.side, q.side.Opponent()
	m := q.move
	if reason := ts.usable(s, m); reason != "" {
		ts.logf("|cant|%s|%s|%s", ts.ident(s), reason, m.ID)
		return
	}
	if !ts.canAct(s) {
		return
	}

	user := ts.active(s)
	if slot, ok := user.Move(m.ID); ok {
		slot.PP--
	}
	user.Reveal(m.ID)
	user.Volatile.LastMove = m.ID
	if it := ts.item(user); it != nil && it.ChoiceLock && m.ID != refdata.StruggleID {
		ts.privs[s].ChoiceLock = m.ID
	}
	ts.logf("|move|%s|%s", ts.ident(s), m.Name)

	if targetsFoe(m) {
		target := ts.active(foe)
		if target.Fainted() {
			ts.logf("|-notarget|%s", ts.ident(s))
			return
		}
		if target.Volatile.Protect && !m.BypassProtect {
			ts.logf("|-activate|%s|move: Protect", ts.ident(foe))
			return
		}
		if !calc.Hits(ts.rng, m.Accuracy, user.StatModifiers.Accuracy, target.StatModifiers.Evasion) {
			ts.logf("|-miss|%s|%s", ts.ident(s), ts.ident(foe))
			if m.MissRecoil > 0 {
				ts.damage(s, calc.Fraction(user.MaxHP, m.MissRecoil), "crash")
			}
			return
		}
	}

	landed, absorbed := true, false
	if m.Damaging() {
		landed, absorbed = ts.attack(q)
	}
	if !landed {
		return
	}
	if !absorbed {
		ts.applyAilment(s, foe, m)
	}
	ts.applyStatChanges(s, foe, m, absorbed)
	ts.applyVolatile(s, foe, m)
	ts.applyHeal(s, m)
	ts.applyField(s, m)
	if m.Recharge && !ts.active(s).Fainted() {
		ts.active(s).Volatile.Recharge = true
		ts.recharged[s] = true
	}
}

// attack runs every hit of a damaging move. landed is false when the target
// was immune; absorbed is true when every hit struck a substitute. Either way
// the move's effects on the target are skipped.
func (ts *turnState) attack(q queued) (landed, absorbed bool) {
	s, foe := q.side, q.side.Opponent()
	m := q.move
	user, target := ts.active(s), ts.active(foe)

	forceMax := false
	if ab := ts.ability(user); ab != nil && ab.ForceMaxHits {
		forceMax = true
	}
	hits := 1
	if m.Hits != nil {
		hits = calc.HitCount(ts.rng, m.Hits.Min, m.Hits.Max, forceMax)
	}

	total, count, shielded := 0, 0, 0
	for i := 0; i < hits; i++ {
		if target.Fainted() || user.Fainted() {
			break
		}
		in := ts.damageInput(q)
		in.Critical = calc.RollCritical(ts.rng, m.HighCrit)
		res := calc.Damage(in, ts.rng)
		if res.Effectiveness == 0 {
			ts.logf("|-immune|%s", ts.ident(foe))
			return false, false
		}
		if i == 0 {
			switch {
			case res.Effectiveness > 1:
				ts.logf("|-supereffective|%s", ts.ident(foe))
			case res.Effectiveness < 1:
				ts.logf("|-resisted|%s", ts.ident(foe))
			}
		}
		if res.Critical {
			ts.logf("|-crit|%s", ts.ident(foe))
		}
		dealt, toSub := ts.strike(foe, res.Damage)
		total += dealt
		count++
		if toSub {
			shielded++
		} else if m.MakesContact {
			ts.contact(s, foe)
		}
	}
	if m.Hits != nil && m.Hits.Max > 1 {
		ts.logf("|-hitcount|%s|%d", ts.ident(foe), count)
	}

	if m.Drain > 0 && total > 0 {
		ts.heal(s, calc.Fraction(total, m.Drain), "drain")
	}
	if m.Recoil > 0 && total > 0 {
		ts.damage(s, calc.Fraction(total, m.Recoil), "recoil")
	}
	if target.Fainted() && !user.Fainted() {
		if ab := ts.ability(user); ab != nil && ab.OnKOBoost != nil {
			user.AbilityRevealed = true
			ts.boost(s, battle.Stat(ab.OnKOBoost.Stat), ab.OnKOBoost.Stages, false)
		}
	}
	return true, count > 0 && shielded == count
}

// strike applies one hit's damage, letting a substitute absorb it first.
// toSub reports that the substitute took the hit.
func (ts *turnState) strike(foe battle.Side, dmg int) (dealt int, toSub bool) {
	target := ts.active(foe)
	if target.Volatile.SubstituteHP > 0 {
		dealt = min(dmg, target.Volatile.SubstituteHP)
		target.Volatile.SubstituteHP -= dealt
		ts.logf("|-activate|%s|Substitute|[damage]", ts.ident(foe))
		if target.Volatile.SubstituteHP == 0 {
			ts.logf("|-end|%s|Substitute", ts.ident(foe))
		}
		return dealt, true
	}
	return ts.damage(foe, dmg, ""), false
}

func (ts *turnState) damageInput(q queued) calc.DamageInput {
	s, foe := q.side, q.side.Opponent()
	m := q.move
	user, target := ts.active(s), ts.active(foe)
	atkStat, defStat := battle.StatAtk, battle.StatDef
	if m.Category == refdata.Special {
		atkStat, defStat = battle.StatSpA, battle.StatSpD
	}
	attack := float64(calc.ApplyStage(user.Stats.Get(atkStat), user.StatModifiers.Get(atkStat)))
	if it := ts.item(user); it != nil {
		attack *= it.Multiplier(string(atkStat))
	}
	defense := float64(calc.ApplyStage(target.Stats.Get(defStat), target.StatModifiers.Get(defStat)))
	if it := ts.item(target); it != nil {
		defense *= it.Multiplier(string(defStat))
	}

	power := m.Power
	if q.punish {
		power *= 2
	}
	sf := ts.field.Side(foe)
	screened := (m.Category == refdata.Physical && sf.Reflect > 0) ||
		(m.Category == refdata.Special && sf.LightScreen > 0)

	mod := 1.0
	if user.Status == battle.StatusBurn && m.Category == refdata.Physical {
		mod *= 0.5
	}
	mod *= weatherModifier(ts.field.Weather.Kind, m.Type)

	return calc.DamageInput{
		Level:         user.Level,
		Power:         power,
		Attack:        int(attack),
		Defense:       int(defense),
		STAB:          m.Type != "" && calc.HasType(user.Types, m.Type),
		Effectiveness: calc.Effectiveness(m.Type, target.Types),
		Screened:      screened,
		Modifier:      mod,
	}
}

func weatherModifier(weather, moveType string) float64 {
	switch {
	case weather == battle.WeatherRain && moveType == calc.Water,
		weather == battle.WeatherSun && moveType == calc.Fire:
		return 1.5
	case weather == battle.WeatherRain && moveType == calc.Fire,
		weather == battle.WeatherSun && moveType == calc.Water:
		return 0.5
	}
	return 1
}

// contact triggers the defender's contact ability and item against the attacker.
func (ts *turnState) contact(s, foe battle.Side) {
	user, target := ts.active(s), ts.active(foe)
	if ab := ts.ability(target); ab != nil {
		if ab.ContactDamage {
			target.AbilityRevealed = true
			ts.damage(s, calc.Fraction(user.MaxHP, calc.ContactFraction), "ability: "+ab.Name)
		}
		if ab.ContactAilment != nil && !user.Fainted() && calc.ChancePercent(ts.rng, ab.ContactAilment.Chance) {
			if ts.inflict(s, battle.Status(ab.ContactAilment.Status), true) {
				target.AbilityRevealed = true
			}
		}
	}
	if it := ts.item(target); it != nil && it.ContactDamage > 0 && !user.Fainted() {
		target.ItemRevealed = true
		ts.damage(s, calc.Fraction(user.MaxHP, it.ContactDamage), "item: "+it.Name)
	}
}

// UsableMoves lists the active's moves that pass PP, disable, encore, choice
// lock and taunt checks. With a nil refs the taunt check is skipped.
func UsableMoves(p *battle.PrivateState, refs Provider) []string {
	mon := p.ActiveMon()
	var out []string
	for _, slot := range mon.Moves {
		if slot.PP <= 0 || slot.Disabled {
			continue
		}
		if mon.Volatile.Disable != nil && mon.Volatile.Disable.MoveID == slot.ID {
			continue
		}
		if mon.Volatile.Encore != nil && mon.Volatile.Encore.MoveID != slot.ID {
			continue
		}
		if p.ChoiceLock != "" && p.ChoiceLock != slot.ID {
			continue
		}
		if mon.Volatile.Taunt > 0 && refs != nil {
			if m, err := refs.Move(slot.ID); err == nil && m.Category == refdata.Status {
				continue
			}
		}
		out = append(out, slot.ID)
	}
	return out
}
