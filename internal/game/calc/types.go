// Package calc holds the pure battle arithmetic: type effectiveness, stat
// stages, damage, critical and multi-hit rolls, effective speed and the
// residual fractions used by hazards and status. Nothing here reads
// reference data or battle state; randomness arrives through dice.Source.
package calc

// Type identifiers used by the type chart and reference data.
const (
	Normal   = "normal"
	Fire     = "fire"
	Water    = "water"
	Electric = "electric"
	Grass    = "grass"
	Ice      = "ice"
	Fighting = "fighting"
	Poison   = "poison"
	Ground   = "ground"
	Flying   = "flying"
	Psychic  = "psychic"
	Bug      = "bug"
	Rock     = "rock"
	Ghost    = "ghost"
	Dragon   = "dragon"
	Dark     = "dark"
	Steel    = "steel"
	Fairy    = "fairy"
)

// typeChart maps attacking type to defending type to multiplier. Absent
// pairs are neutral.
var typeChart = map[string]map[string]float64{
	Normal:   {Rock: 0.5, Ghost: 0, Steel: 0.5},
	Fire:     {Fire: 0.5, Water: 0.5, Grass: 2, Ice: 2, Bug: 2, Rock: 0.5, Dragon: 0.5, Steel: 2},
	Water:    {Fire: 2, Water: 0.5, Grass: 0.5, Ground: 2, Rock: 2, Dragon: 0.5},
	Electric: {Water: 2, Electric: 0.5, Grass: 0.5, Ground: 0, Flying: 2, Dragon: 0.5},
	Grass:    {Fire: 0.5, Water: 2, Grass: 0.5, Poison: 0.5, Ground: 2, Flying: 0.5, Bug: 0.5, Rock: 2, Dragon: 0.5, Steel: 0.5},
	Ice:      {Fire: 0.5, Water: 0.5, Grass: 2, Ice: 0.5, Ground: 2, Flying: 2, Dragon: 2, Steel: 0.5},
	Fighting: {Normal: 2, Ice: 2, Rock: 2, Dark: 2, Steel: 2, Poison: 0.5, Flying: 0.5, Psychic: 0.5, Bug: 0.5, Ghost: 0, Fairy: 0.5},
	Poison:   {Grass: 2, Poison: 0.5, Ground: 0.5, Rock: 0.5, Ghost: 0.5, Steel: 0, Fairy: 2},
	Ground:   {Fire: 2, Electric: 2, Grass: 0.5, Poison: 2, Flying: 0, Bug: 0.5, Rock: 2, Steel: 2},
	Flying:   {Electric: 0.5, Grass: 2, Fighting: 2, Bug: 2, Rock: 0.5, Steel: 0.5},
	Psychic:  {Fighting: 2, Poison: 2, Psychic: 0.5, Steel: 0.5, Dark: 0},
	Bug:      {Fire: 0.5, Grass: 2, Fighting: 0.5, Poison: 0.5, Flying: 0.5, Psychic: 2, Ghost: 0.5, Dark: 2, Steel: 0.5, Fairy: 0.5},
	Rock:     {Fire: 2, Ice: 2, Fighting: 0.5, Ground: 0.5, Flying: 2, Bug: 2, Steel: 0.5},
	Ghost:    {Normal: 0, Psychic: 2, Ghost: 2, Dark: 0.5},
	Dragon:   {Dragon: 2, Steel: 0.5, Fairy: 0},
	Dark:     {Fighting: 0.5, Psychic: 2, Ghost: 2, Dark: 0.5, Fairy: 0.5},
	Steel:    {Fire: 0.5, Water: 0.5, Electric: 0.5, Ice: 2, Rock: 2, Fairy: 2, Steel: 0.5},
	Fairy:    {Fire: 0.5, Fighting: 2, Poison: 0.5, Dragon: 2, Dark: 2, Steel: 0.5},
}

// KnownType reports whether t is a type in the chart.
func KnownType(t string) bool {
	_, ok := typeChart[t]
	return ok
}

// Effectiveness returns the product of the chart multipliers of attacking
// against every defending type. A typeless attack (empty string) is neutral.
//
// Postcondition: result is one of 0, 0.25, 0.5, 1, 2, 4 for up to two
// defending types.
func Effectiveness(attacking string, defending []string) float64 {
	if attacking == "" {
		return 1
	}
	mult := 1.0
	row := typeChart[attacking]
	for _, d := range defending {
		if m, ok := row[d]; ok {
			mult *= m
		}
	}
	return mult
}

// HasType reports whether types contains t.
func HasType(types []string, t string) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}
