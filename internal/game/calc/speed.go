package calc

import "math"

// SpeedInput carries the modifiers that feed turn-order speed.
type SpeedInput struct {
	Base      int
	Stage     int
	Paralyzed bool
	// Tailwind is true while the side's tailwind is up.
	Tailwind bool
	// WeatherBoost is true when an ability doubles speed in the current weather.
	WeatherBoost bool
	// ItemMultiplier scales speed for held items; zero is treated as 1.
	ItemMultiplier float64
}

// EffectiveSpeed applies stage, item, paralysis (x0.5), tailwind (x2) and
// weather ability (x2) modifiers.
//
// Postcondition: result >= 1.
func EffectiveSpeed(in SpeedInput) int {
	s := float64(in.Base) * StageMultiplier(in.Stage)
	if in.ItemMultiplier != 0 {
		s *= in.ItemMultiplier
	}
	if in.Paralyzed {
		s *= 0.5
	}
	if in.Tailwind {
		s *= 2
	}
	if in.WeatherBoost {
		s *= 2
	}
	v := int(math.Floor(s))
	if v < 1 {
		return 1
	}
	return v
}

// Residual fractions of max HP.
const (
	PoisonFraction     = 1.0 / 8
	BurnFraction       = 1.0 / 16
	SubstituteFraction = 1.0 / 4
	ContactFraction    = 1.0 / 8
	StealthRockBase    = 1.0 / 8
)

// spikesFractions is indexed by layer count.
var spikesFractions = [...]float64{0, 1.0 / 8, 1.0 / 6, 1.0 / 4}

// MaxSpikesLayers is the layer cap for spikes.
const MaxSpikesLayers = 3

// SpikesDamage returns entry damage for the given spikes layers.
func SpikesDamage(maxHP, layers int) int {
	if layers <= 0 {
		return 0
	}
	if layers > MaxSpikesLayers {
		layers = MaxSpikesLayers
	}
	return Fraction(maxHP, spikesFractions[layers])
}

// StealthRockDamage returns entry damage scaled by rock effectiveness
// against types.
func StealthRockDamage(maxHP int, types []string) int {
	return Fraction(maxHP, StealthRockBase*Effectiveness(Rock, types))
}
