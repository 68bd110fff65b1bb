package calc

import (
	"math"

	"github.com/cory-johannsen/pokeduel/internal/game/dice"
)

// Damage roll constants.
const (
	STABMultiplier     = 1.5
	CriticalMultiplier = 1.5
	ScreenMultiplier   = 0.5
	minRandomFactor    = 0.85
	randomFactorSpan   = 0.15
)

// Critical chances for normal and high-critical moves.
const (
	CriticalChance     = 1.0 / 24
	HighCriticalChance = 1.0 / 8
)

// DamageInput is everything the damage formula needs for one hit. Attack and
// Defense are the already stage-adjusted stats of the relevant split.
type DamageInput struct {
	Level         int
	Power         int
	Attack        int
	Defense       int
	STAB          bool
	Effectiveness float64
	Critical      bool
	// Screened is true when the defender's side has the screen matching the
	// move's category. Ignored on critical hits.
	Screened bool
	// Modifier is the product of any other multipliers (items, abilities,
	// burn). Zero is treated as 1.
	Modifier float64
}

// DamageResult is the outcome of one damage calculation.
type DamageResult struct {
	Damage        int
	Critical      bool
	Effectiveness float64
}

// BaseDamage is floor(floor((2L/5+2)*power*A/D)/50)+2.
//
// Precondition: defense > 0 (values below 1 are treated as 1).
func BaseDamage(level, power, attack, defense int) int {
	if defense < 1 {
		defense = 1
	}
	inner := math.Floor((2*float64(level)/5 + 2) * float64(power) * float64(attack) / float64(defense))
	return int(math.Floor(inner/50)) + 2
}

// Damage computes one hit. It consumes exactly one draw from src for the
// random factor in [0.85, 1.00].
//
// Postcondition: Damage is 0 when Effectiveness is 0 or Power is 0, and at
// least 1 otherwise.
func Damage(in DamageInput, src dice.Source) DamageResult {
	roll := src.Float64()
	res := DamageResult{Critical: in.Critical, Effectiveness: in.Effectiveness}
	if in.Effectiveness == 0 || in.Power <= 0 {
		return res
	}

	mod := minRandomFactor + randomFactorSpan*roll
	if in.STAB {
		mod *= STABMultiplier
	}
	mod *= in.Effectiveness
	if in.Critical {
		mod *= CriticalMultiplier
	} else if in.Screened {
		mod *= ScreenMultiplier
	}
	if in.Modifier != 0 {
		mod *= in.Modifier
	}

	dmg := int(math.Floor(float64(BaseDamage(in.Level, in.Power, in.Attack, in.Defense)) * mod))
	if dmg < 1 {
		dmg = 1
	}
	res.Damage = dmg
	return res
}

// DamageRange returns inclusive bounds on what Damage can produce for in,
// evaluated at the extremes of the random factor.
func DamageRange(in DamageInput) (lo, hi int) {
	lo = Damage(in, fixedFloat(0)).Damage
	hi = Damage(in, fixedFloat(1)).Damage
	return lo, hi
}

// RollCritical draws once and reports whether the hit is critical.
func RollCritical(src dice.Source, high bool) bool {
	p := CriticalChance
	if high {
		p = HighCriticalChance
	}
	return src.Float64() < p
}

// Chance draws once and reports whether an event of probability p fires.
func Chance(src dice.Source, p float64) bool {
	return src.Float64() < p
}

// ChancePercent draws once for a percentage chance. Percent >= 100 always
// fires without consuming a draw; percent <= 0 never fires.
func ChancePercent(src dice.Source, percent int) bool {
	if percent >= 100 {
		return true
	}
	if percent <= 0 {
		return false
	}
	return src.Float64()*100 < float64(percent)
}

// fixedFloat is a Source returning a constant, used to evaluate the bounds
// of the damage roll.
type fixedFloat float64

func (f fixedFloat) Intn(int) int { return 0 }
func (f fixedFloat) Float64() float64 { return float64(f) }
