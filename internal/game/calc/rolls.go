package calc

import (
	"math"

	"github.com/cory-johannsen/pokeduel/internal/game/dice"
)

// Multi-hit thresholds: 2 hits 3/8, 3 hits 3/8, 4 hits 1/8, 5 hits 1/8.
var multiHitThresholds = [...]float64{3.0 / 8, 6.0 / 8, 7.0 / 8}

// HitCount returns how many times a move with hit range [min, max] strikes.
// A fixed count (min == max) draws nothing. The 2-5 range uses the weighted
// table; other ranges are uniform. forceMax yields max without a draw.
//
// Postcondition: min <= result <= max, and result >= 1.
func HitCount(src dice.Source, min, max int, forceMax bool) int {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	if min == max {
		return min
	}
	if forceMax {
		return max
	}
	if min == 2 && max == 5 {
		r := src.Float64()
		for i, th := range multiHitThresholds {
			if r < th {
				return 2 + i
			}
		}
		return 5
	}
	return min + src.Intn(max-min+1)
}

// ProtectSucceeds rolls a protect attempt after chain consecutive successes:
// probability 1/3^chain. The first use always succeeds without a draw.
func ProtectSucceeds(src dice.Source, chain int) bool {
	if chain <= 0 {
		return true
	}
	return src.Float64() < 1/math.Pow(3, float64(chain))
}

// Hits reports whether a move with accuracy percent lands given the
// attacker's accuracy stage and the defender's evasion stage. Accuracy 0
// means the move never misses and consumes no draw.
func Hits(src dice.Source, accuracy, accStage, evaStage int) bool {
	if accuracy <= 0 {
		return true
	}
	p := float64(accuracy) / 100 * AccuracyMultiplier(accStage-evaStage)
	if p >= 1 {
		return true
	}
	return src.Float64() < p
}

// Fraction returns floor(total*frac), at least 1 when frac > 0 and total > 0.
func Fraction(total int, frac float64) int {
	if frac <= 0 || total <= 0 {
		return 0
	}
	v := int(math.Floor(float64(total) * frac))
	if v < 1 {
		return 1
	}
	return v
}
