// Package refdata is the read-only reference data provider: species stat
// blocks, move effect descriptors, abilities and items, loaded from YAML.
package refdata

import (
	"github.com/cory-johannsen/pokeduel/internal/game/calc"
)

// BaseStats is a species' base stat block.
type BaseStats struct {
	HP  int `yaml:"hp"`
	Atk int `yaml:"atk"`
	Def int `yaml:"def"`
	SpA int `yaml:"spa"`
	SpD int `yaml:"spd"`
	Spe int `yaml:"spe"`
}

// Species is an immutable species entry.
type Species struct {
	ID        string    `yaml:"id"`
	Name      string    `yaml:"name"`
	Types     []string  `yaml:"types"`
	BaseStats BaseStats `yaml:"base_stats"`
	Abilities []string  `yaml:"abilities"`
}

// Category is a move's damage split.
type Category string

const (
	Physical Category = "physical"
	Special  Category = "special"
	Status   Category = "status"
)

// Ailment is a status inflicted with a percent chance.
type Ailment struct {
	Status string `yaml:"status"`
	Chance int    `yaml:"chance"`
}

// StatChange adjusts a stat stage of the user or the target.
type StatChange struct {
	Stat   string `yaml:"stat"`
	Stages int    `yaml:"stages"`
	// Target is "self" or "foe".
	Target string `yaml:"target"`
	// Chance is a percentage; 0 means always.
	Chance int `yaml:"chance"`
}

// HitRange bounds how many times a move strikes.
type HitRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Field effect names.
const (
	FieldReflect     = "reflect"
	FieldLightScreen = "light_screen"
	FieldSafeguard   = "safeguard"
	FieldMist        = "mist"
	FieldTailwind    = "tailwind"
	FieldTrickRoom   = "trick_room"
	FieldWeather     = "weather"
	FieldStealthRock = "stealth_rock"
	FieldSpikes      = "spikes"
	FieldToxicSpikes = "toxic_spikes"
	FieldStickyWeb   = "sticky_web"
)

// FieldEffect sets a side or global field condition.
type FieldEffect struct {
	Effect  string `yaml:"effect"`
	Weather string `yaml:"weather"`
	Turns   int    `yaml:"turns"`
}

// Volatile effect names.
const (
	VolatileProtect    = "protect"
	VolatileSubstitute = "substitute"
	VolatileTaunt      = "taunt"
	VolatileEncore     = "encore"
	VolatileDisable    = "disable"
	VolatilePerishSong = "perish_song"
)

// Move is a data-driven move descriptor. Every effect is interpreted by the
// resolver's generic appliers; no move has bespoke code.
type Move struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"`
	Category Category `yaml:"category"`
	Power    int      `yaml:"power"`
	// Accuracy is a percentage; 0 never misses.
	Accuracy      int  `yaml:"accuracy"`
	Priority      int  `yaml:"priority"`
	PP            int  `yaml:"pp"`
	HighCrit      bool `yaml:"high_crit"`
	MakesContact  bool `yaml:"makes_contact"`
	BypassProtect bool `yaml:"bypass_protect"`
	// Drain and Recoil are fractions of damage dealt.
	Drain  float64 `yaml:"drain"`
	Recoil float64 `yaml:"recoil"`
	// MissRecoil is a fraction of the user's max HP lost on a miss.
	MissRecoil float64 `yaml:"miss_recoil"`
	// Heal is a fraction of the user's max HP restored.
	Heal           float64      `yaml:"heal"`
	Ailment        *Ailment     `yaml:"ailment"`
	StatChanges    []StatChange `yaml:"stat_changes"`
	Hits           *HitRange    `yaml:"hits"`
	Recharge       bool         `yaml:"recharge"`
	PunishesSwitch bool         `yaml:"punishes_switch"`
	Volatile       string       `yaml:"volatile"`
	Field          *FieldEffect `yaml:"field"`
}

// Damaging reports whether the move deals direct damage.
func (m *Move) Damaging() bool {
	return m.Category != Status && m.Power > 0
}

// StatBoost is a fixed stage change triggered by an ability.
type StatBoost struct {
	Stat   string `yaml:"stat"`
	Stages int    `yaml:"stages"`
}

// Ability is an immutable ability descriptor.
type Ability struct {
	ID            string             `yaml:"id"`
	Name          string             `yaml:"name"`
	PriorityBoost calc.PriorityBoost `yaml:"priority_boost"`
	// QuickChance is the percent chance a damaging move gains +1 priority.
	QuickChance int `yaml:"quick_chance"`
	// WeatherSpeed doubles speed while this weather is active.
	WeatherSpeed string `yaml:"weather_speed"`
	// ContactDamage hurts attackers making contact for 1/8 of their max HP.
	ContactDamage   bool       `yaml:"contact_damage"`
	ContactAilment  *Ailment   `yaml:"contact_ailment"`
	OnKOBoost       *StatBoost `yaml:"on_ko_boost"`
	EntryFoeStat    *StatBoost `yaml:"entry_foe_stat"`
	BlocksStatDrops bool       `yaml:"blocks_stat_drops"`
	OnStatDropped   *StatBoost `yaml:"on_stat_dropped"`
	ForceMaxHits    bool       `yaml:"force_max_hits"`
	// EntryHook names a Lua function called when the holder switches in.
	EntryHook string `yaml:"entry_hook"`
}

// Item is an immutable held-item descriptor.
type Item struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	// QuickChance is the percent chance a damaging move gains +1 priority.
	QuickChance   int     `yaml:"quick_chance"`
	QuickTieBonus float64 `yaml:"quick_tie_bonus"`
	// ContactDamage is the fraction of max HP an attacker making contact loses.
	ContactDamage   float64            `yaml:"contact_damage"`
	ChoiceLock      bool               `yaml:"choice_lock"`
	StatMultipliers map[string]float64 `yaml:"stat_multipliers"`
	// ResidualHeal is the fraction of max HP restored at end of turn.
	ResidualHeal float64 `yaml:"residual_heal"`
}

// Multiplier returns the item's multiplier for stat, or 1.
func (i *Item) Multiplier(stat string) float64 {
	if i == nil {
		return 1
	}
	if m, ok := i.StatMultipliers[stat]; ok && m > 0 {
		return m
	}
	return 1
}

// StruggleID is the move used when nothing else is usable. It is always
// present in a Registry.
const StruggleID = "struggle"

var struggle = Move{
	ID:           StruggleID,
	Name:         "Struggle",
	Category:     Physical,
	Power:        50,
	PP:           1,
	MakesContact: true,
	Recoil:       0.25,
}
