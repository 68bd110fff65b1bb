package battle

import (
	"time"

	"github.com/cory-johannsen/pokeduel/internal/game/dice"
)

// MaxTeamSize and MinTeamSize bound a roster.
const (
	MinTeamSize = 1
	MaxTeamSize = 6
	MaxMoves    = 4
)

// Side identifies a player slot.
type Side int

const (
	P1 Side = iota
	P2
)

// Sides lists both slots in resolution order.
var Sides = [2]Side{P1, P2}

// Opponent returns the other slot.
func (s Side) Opponent() Side { return 1 - s }

func (s Side) String() string {
	if s == P1 {
		return "p1"
	}
	return "p2"
}

// Player is a participant.
type Player struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

// Players holds both participants.
type Players struct {
	P1 Player `json:"p1"`
	P2 Player `json:"p2"`
}

// Get returns the player in slot s.
func (p Players) Get(s Side) Player {
	if s == P1 {
		return p.P1
	}
	return p.P2
}

// Meta is the concurrency-guarded header of a battle.
//
// Invariant: Version increases by exactly one per committed resolution.
type Meta struct {
	BattleID         string      `json:"battleId"`
	Players          Players     `json:"players"`
	Phase            Phase       `json:"phase"`
	Turn             int         `json:"turn"`
	Version          int         `json:"version"`
	DeadlineAt       time.Time   `json:"deadlineAt"`
	WinnerUID        string      `json:"winnerUid,omitempty"`
	EndedReason      EndedReason `json:"endedReason,omitempty"`
	NeedsReplacement []string    `json:"needsReplacement,omitempty"`
	RNG              dice.State  `json:"rng"`
	ResolvingBy      string      `json:"resolvingBy,omitempty"`
	// ResolvingFrom and ResolvingAt record where and when the holder of
	// ResolvingBy took the battle, so an abandoned hold can be handed back.
	ResolvingFrom    Phase       `json:"resolvingFrom,omitempty"`
	ResolvingAt      time.Time   `json:"resolvingAt"`
	CreatedAt        time.Time   `json:"createdAt"`
}

// SideOf returns the slot of uid.
func (m Meta) SideOf(uid string) (Side, bool) {
	switch uid {
	case m.Players.P1.UID:
		return P1, true
	case m.Players.P2.UID:
		return P2, true
	}
	return 0, false
}

// NeedsReplacementFrom reports whether uid must submit a replacement.
func (m Meta) NeedsReplacementFrom(uid string) bool {
	for _, u := range m.NeedsReplacement {
		if u == uid {
			return true
		}
	}
	return false
}

// Hold marks m as being resolved by opID, taken from its current phase at at.
func (m *Meta) Hold(opID string, at time.Time) {
	m.ResolvingFrom = m.Phase
	m.Phase = PhaseResolving
	m.ResolvingBy = opID
	m.ResolvingAt = at
}

// ClearHold drops the resolving markers without touching the phase.
func (m *Meta) ClearHold() {
	m.ResolvingBy = ""
	m.ResolvingFrom = ""
	m.ResolvingAt = time.Time{}
}

// HeldSince returns when the current hold was taken. Holds written before
// ResolvingAt existed fall back to the turn deadline.
func (m Meta) HeldSince() time.Time {
	if !m.ResolvingAt.IsZero() {
		return m.ResolvingAt
	}
	return m.DeadlineAt
}

// StaleHold reports whether m has been resolving for at least after.
func (m Meta) StaleHold(now time.Time, after time.Duration) bool {
	if m.Phase != PhaseResolving {
		return false
	}
	since := m.HeldSince()
	return !since.IsZero() && !now.Before(since.Add(after))
}

// Status is a major status ailment. At most one applies at a time.
type Status string

const (
	StatusNone      Status = ""
	StatusBurn      Status = "brn"
	StatusParalysis Status = "par"
	StatusPoison    Status = "psn"
	StatusSleep     Status = "slp"
	StatusFreeze    Status = "frz"
)

// Stat names a modifiable stat, including accuracy and evasion.
type Stat string

const (
	StatAtk      Stat = "atk"
	StatDef      Stat = "def"
	StatSpA      Stat = "spa"
	StatSpD      Stat = "spd"
	StatSpe      Stat = "spe"
	StatAccuracy Stat = "accuracy"
	StatEvasion  Stat = "evasion"
)

// Stats is a computed stat block.
type Stats struct {
	HP  int `json:"hp"`
	Atk int `json:"atk"`
	Def int `json:"def"`
	SpA int `json:"spa"`
	SpD int `json:"spd"`
	Spe int `json:"spe"`
}

// Get returns the stat named s; accuracy and evasion have no base value.
func (s Stats) Get(stat Stat) int {
	switch stat {
	case StatAtk:
		return s.Atk
	case StatDef:
		return s.Def
	case StatSpA:
		return s.SpA
	case StatSpD:
		return s.SpD
	case StatSpe:
		return s.Spe
	}
	return 0
}

// Boosts holds stage modifiers, each in [-6, +6].
type Boosts struct {
	Atk      int `json:"atk"`
	Def      int `json:"def"`
	SpA      int `json:"spa"`
	SpD      int `json:"spd"`
	Spe      int `json:"spe"`
	Accuracy int `json:"accuracy"`
	Evasion  int `json:"evasion"`
}

func (b *Boosts) ptr(s Stat) *int {
	switch s {
	case StatAtk:
		return &b.Atk
	case StatDef:
		return &b.Def
	case StatSpA:
		return &b.SpA
	case StatSpD:
		return &b.SpD
	case StatSpe:
		return &b.Spe
	case StatAccuracy:
		return &b.Accuracy
	case StatEvasion:
		return &b.Evasion
	}
	return nil
}

// Get returns the stage for s.
func (b Boosts) Get(s Stat) int {
	if p := b.ptr(s); p != nil {
		return *p
	}
	return 0
}

// Set stores stage v for s. Callers clamp.
func (b *Boosts) Set(s Stat, v int) {
	if p := b.ptr(s); p != nil {
		*p = v
	}
}

// ValidStat reports whether s names a modifiable stat.
func ValidStat(s Stat) bool {
	var b Boosts
	return b.ptr(s) != nil
}

// MoveSlot is one known move with its remaining PP.
type MoveSlot struct {
	ID       string `json:"id"`
	PP       int    `json:"pp"`
	MaxPP    int    `json:"maxPp"`
	Disabled bool   `json:"disabled,omitempty"`
}

// Lock pins a move for a number of turns (encore, disable).
type Lock struct {
	MoveID string `json:"moveId"`
	Turns  int    `json:"turns"`
}

// Volatile holds conditions cleared on switch-out.
type Volatile struct {
	Protect      bool   `json:"protect,omitempty"`
	ProtectChain int    `json:"protectChain,omitempty"`
	Taunt        int    `json:"taunt,omitempty"`
	Encore       *Lock  `json:"encore,omitempty"`
	Disable      *Lock  `json:"disable,omitempty"`
	PerishSong   int    `json:"perishSong,omitempty"`
	SubstituteHP int    `json:"substituteHp,omitempty"`
	Recharge     bool   `json:"recharge,omitempty"`
	LastMove     string `json:"lastMove,omitempty"`
}

// Pokemon is one roster member with its full battle state.
//
// Invariant: 0 <= CurrentHP <= MaxHP.
type Pokemon struct {
	Species         string     `json:"species"`
	Level           int        `json:"level"`
	Types           []string   `json:"types"`
	Stats           Stats      `json:"stats"`
	Ability         string     `json:"ability,omitempty"`
	Item            string     `json:"item,omitempty"`
	CurrentHP       int        `json:"currentHp"`
	MaxHP           int        `json:"maxHp"`
	Moves           []MoveSlot `json:"moves"`
	StatModifiers   Boosts     `json:"statModifiers"`
	Status          Status     `json:"status,omitempty"`
	StatusTurns     int        `json:"statusTurns,omitempty"`
	Volatile        Volatile   `json:"volatile"`
	ItemRevealed    bool       `json:"itemRevealed,omitempty"`
	AbilityRevealed bool       `json:"abilityRevealed,omitempty"`
	RevealedMoves   []string   `json:"revealedMoves,omitempty"`
}

// Fainted reports whether the Pokémon is out of HP.
func (p *Pokemon) Fainted() bool { return p.CurrentHP <= 0 }

// Move returns the slot for id.
func (p *Pokemon) Move(id string) (*MoveSlot, bool) {
	for i := range p.Moves {
		if p.Moves[i].ID == id {
			return &p.Moves[i], true
		}
	}
	return nil, false
}

// Reveal records that id has been used in view of the opponent.
func (p *Pokemon) Reveal(id string) {
	for _, m := range p.RevealedMoves {
		if m == id {
			return
		}
	}
	p.RevealedMoves = append(p.RevealedMoves, id)
}

// PrivateState is one player's exclusive partition.
type PrivateState struct {
	UID        string    `json:"uid"`
	Team       []Pokemon `json:"team"`
	Active     int       `json:"active"`
	ChoiceLock string    `json:"choiceLock,omitempty"`
}

// ActiveMon returns the active Pokémon.
func (p *PrivateState) ActiveMon() *Pokemon {
	return &p.Team[p.Active]
}

// HasHealthyBench reports whether a non-active, non-fainted member remains.
func (p *PrivateState) HasHealthyBench() bool {
	for i := range p.Team {
		if i != p.Active && !p.Team[i].Fainted() {
			return true
		}
	}
	return false
}

// AllFainted reports whether every member has fainted.
func (p *PrivateState) AllFainted() bool {
	for i := range p.Team {
		if !p.Team[i].Fainted() {
			return false
		}
	}
	return true
}

// HP is a current/max pair.
type HP struct {
	Cur int `json:"cur"`
	Max int `json:"max"`
}

// PublicVolatiles are the volatile conditions visible to both players.
type PublicVolatiles struct {
	Protect    bool   `json:"protect,omitempty"`
	Substitute bool   `json:"substitute,omitempty"`
	Taunt      int    `json:"taunt,omitempty"`
	Encore     string `json:"encore,omitempty"`
	PerishSong int    `json:"perishSong,omitempty"`
	Recharge   bool   `json:"recharge,omitempty"`
}

// ActivePublic is what both players see of an active Pokémon.
type ActivePublic struct {
	Species         string          `json:"species"`
	Level           int             `json:"level"`
	Types           []string        `json:"types"`
	HP              HP              `json:"hp"`
	Status          Status          `json:"status,omitempty"`
	Boosts          Boosts          `json:"boosts"`
	ItemRevealed    bool            `json:"itemRevealed"`
	AbilityRevealed bool            `json:"abilityRevealed"`
	RevealedItem    string          `json:"revealedItem,omitempty"`
	RevealedAbility string          `json:"revealedAbility,omitempty"`
	RevealedMoves   []string        `json:"revealedMoves,omitempty"`
	Volatiles       PublicVolatiles `json:"volatiles"`
}

// BenchPublic is what both players see of a benched Pokémon.
type BenchPublic struct {
	Species       string   `json:"species"`
	Fainted       bool     `json:"fainted"`
	RevealedMoves []string `json:"revealedMoves,omitempty"`
}

// SidePublic is one side's visible state.
type SidePublic struct {
	UID    string        `json:"uid"`
	Active ActivePublic  `json:"active"`
	Bench  []BenchPublic `json:"bench"`
}

// Hazards are entry hazards laid on a side.
type Hazards struct {
	StealthRock bool `json:"stealthRock,omitempty"`
	Spikes      int  `json:"spikes,omitempty"`
	ToxicSpikes int  `json:"toxicSpikes,omitempty"`
	StickyWeb   bool `json:"stickyWeb,omitempty"`
}

// SideField holds per-side field conditions; counters are turns remaining.
type SideField struct {
	Hazards     Hazards `json:"hazards"`
	Reflect     int     `json:"reflect,omitempty"`
	LightScreen int     `json:"lightScreen,omitempty"`
	Safeguard   int     `json:"safeguard,omitempty"`
	Mist        int     `json:"mist,omitempty"`
	Tailwind    int     `json:"tailwind,omitempty"`
}

// Weather kinds.
const (
	WeatherNone = ""
	WeatherSun  = "sun"
	WeatherRain = "rain"
	WeatherSand = "sand"
	WeatherHail = "hail"
)

// Weather is the active weather and its remaining turns.
type Weather struct {
	Kind  string `json:"kind,omitempty"`
	Turns int    `json:"turns,omitempty"`
}

// Field is the shared battlefield.
type Field struct {
	Weather   Weather   `json:"weather"`
	TrickRoom int       `json:"trickRoom,omitempty"`
	P1        SideField `json:"p1"`
	P2        SideField `json:"p2"`
}

// Side returns the per-side field for s.
func (f *Field) Side(s Side) *SideField {
	if s == P1 {
		return &f.P1
	}
	return &f.P2
}

// PublicState is visible to both players.
type PublicState struct {
	P1                SidePublic `json:"p1"`
	P2                SidePublic `json:"p2"`
	Field             Field      `json:"field"`
	LastResultSummary string     `json:"lastResultSummary,omitempty"`
}

// Side returns the visible state of slot s.
func (p *PublicState) Side(s Side) *SidePublic {
	if s == P1 {
		return &p.P1
	}
	return &p.P2
}

// ActionType distinguishes move and switch choices.
type ActionType string

const (
	ActionMove   ActionType = "move"
	ActionSwitch ActionType = "switch"
)

// Target values for a move action.
const (
	TargetFoe  = "foe"
	TargetSelf = "self"
)

// Action is one player's per-turn choice.
type Action struct {
	Type        ActionType `json:"type"`
	MoveID      string     `json:"moveId,omitempty"`
	SwitchIndex int        `json:"switchIndex"`
	Target      string     `json:"target,omitempty"`
}

// Choice is a recorded action.
type Choice struct {
	UID           string    `json:"uid"`
	Action        Action    `json:"action"`
	ClientVersion int       `json:"clientVersion"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// Replacement is a forced switch after a faint.
type Replacement struct {
	UID           string    `json:"uid"`
	SwitchIndex   int       `json:"switchIndex"`
	ClientVersion int       `json:"clientVersion"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// Diff is one changed JSON path of the battle state.
type Diff struct {
	Path   string `json:"path"`
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

// Resolution is the audit record of one committed resolution.
type Resolution struct {
	By             string     `json:"by"`
	CommittedAt    time.Time  `json:"committedAt"`
	RNGSeedUsed    dice.State `json:"rngSeedUsed"`
	Diffs          []Diff     `json:"diffs"`
	Logs           []string   `json:"logs"`
	StateHashAfter string     `json:"stateHashAfter"`
}

// TurnHeader opens a turn record.
type TurnHeader struct {
	Turn       int       `json:"turn"`
	Version    int       `json:"version"`
	DeadlineAt time.Time `json:"deadlineAt"`
}

// TurnRecord is the assembled record of one turn.
type TurnRecord struct {
	Turn                  int                    `json:"turn"`
	Header                *TurnHeader            `json:"header,omitempty"`
	Choices               map[string]Choice      `json:"choices,omitempty"`
	Replacements          map[string]Replacement `json:"replacements,omitempty"`
	Resolution            *Resolution            `json:"resolution,omitempty"`
	ReplacementResolution *Resolution            `json:"replacementResolution,omitempty"`
}

// Snapshot is the authoritative state a resolver works on.
type Snapshot struct {
	Meta     Meta            `json:"meta"`
	Public   PublicState     `json:"public"`
	Privates [2]PrivateState `json:"privates"`
}
