package calc

import "math"

// Stage bounds for every stat, accuracy and evasion modifier.
const (
	MinStage = -6
	MaxStage = 6
)

// ClampStage bounds s to [MinStage, MaxStage].
func ClampStage(s int) int {
	if s < MinStage {
		return MinStage
	}
	if s > MaxStage {
		return MaxStage
	}
	return s
}

// StageMultiplier is the multiplier for a battle stat stage:
// (2+s)/2 for s >= 0 and 2/(2-s) for s < 0.
func StageMultiplier(stage int) float64 {
	stage = ClampStage(stage)
	if stage >= 0 {
		return float64(2+stage) / 2
	}
	return 2 / float64(2-stage)
}

// AccuracyMultiplier is the multiplier for a combined accuracy-minus-evasion
// stage: (3+s)/3 for s >= 0 and 3/(3-s) for s < 0.
func AccuracyMultiplier(stage int) float64 {
	stage = ClampStage(stage)
	if stage >= 0 {
		return float64(3+stage) / 3
	}
	return 3 / float64(3-stage)
}

// ApplyStage scales stat by its stage and floors, never returning below 1.
func ApplyStage(stat, stage int) int {
	v := int(math.Floor(float64(stat) * StageMultiplier(stage)))
	if v < 1 {
		return 1
	}
	return v
}

// ComputeStat derives a level-scaled stat from a base stat with fixed
// 31 IVs and 252 EVs. HP adds level+10; other stats add 5.
func ComputeStat(base, level int, isHP bool) int {
	scaled := (2*base + 31 + 63) * level / 100
	if isHP {
		return scaled + level + 10
	}
	return scaled + 5
}
