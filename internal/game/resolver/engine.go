// Package resolver is the turn resolution state machine. Engine is the pure
// core that turns a snapshot plus both choices into the next state; Resolver
// wraps it with the compare-and-swap guard and the atomic commit.
package resolver

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/pokeduel/internal/game/battle"
	"github.com/cory-johannsen/pokeduel/internal/game/dice"
	"github.com/cory-johannsen/pokeduel/internal/game/refdata"
	"github.com/cory-johannsen/pokeduel/internal/scripting"
)

// Provider is the read-only reference data the engine consults.
type Provider interface {
	Move(id string) (*refdata.Move, error)
	Ability(id string) (*refdata.Ability, error)
	Item(id string) (*refdata.Item, error)
}

// Hooks runs scripted entry abilities.
type Hooks interface {
	CallEntryHook(hook string, info scripting.EntryInfo, host scripting.Host) bool
}

// Engine evaluates turns. It holds no per-battle state.
type Engine struct {
	refs   Provider
	hooks  Hooks
	logger *zap.Logger
}

// NewEngine creates an Engine.
//
// Precondition: refs and logger must be non-nil; hooks may be nil.
func NewEngine(refs Provider, hooks Hooks, logger *zap.Logger) *Engine {
	return &Engine{refs: refs, hooks: hooks, logger: logger}
}

// Result is the state produced by one resolution.
type Result struct {
	Privates         [2]battle.PrivateState
	Field            battle.Field
	Logs             []string
	Phase            battle.Phase
	WinnerUID        string
	EndedReason      battle.EndedReason
	NeedsReplacement []string
	Summary          string
}

// Resolve runs one full turn: queue, execution, end of turn, faint outcome.
// snap is not modified.
//
// Precondition: both actives in snap are healthy.
// Postcondition: identical inputs and an identically seeded rng give an
// identical Result; every HP is within [0, max].
func (e *Engine) Resolve(snap battle.Snapshot, choices [2]battle.Action, rng dice.Source) Result {
	ts := e.newTurn(snap, rng)
	ts.choices = choices
	ts.logf("|turn|%d", snap.Meta.Turn)

	for _, q := range ts.buildQueue() {
		ts.execute(q)
	}
	ts.endOfTurn()
	return ts.finish(snap.Meta)
}

// ResolveReplacements switches in the forced replacements, p1 first, and
// applies entry effects. switches maps a side to its chosen team index; a
// missing or unusable index falls back to the first healthy bench member.
func (e *Engine) ResolveReplacements(snap battle.Snapshot, switches map[battle.Side]int, rng dice.Source) Result {
	ts := e.newTurn(snap, rng)
	for _, s := range battle.Sides {
		if !ts.active(s).Fainted() {
			continue
		}
		idx, ok := switches[s]
		if !ok || !ts.canSwitchTo(s, idx) {
			idx = ts.firstHealthyBench(s)
			if idx < 0 {
				continue
			}
		}
		ts.switchIn(s, idx)
	}
	return ts.finish(snap.Meta)
}

// turnState is the mutable working copy of one resolution.
type turnState struct {
	e        *Engine
	meta     battle.Meta
	privs    [2]battle.PrivateState
	field    battle.Field
	rng      dice.Source
	logs     []string
	choices  [2]battle.Action
	switched [2]bool
	// protected records a protect-family move used this turn.
	protected [2]bool
	// recharged records a recharge requirement set this turn.
	recharged [2]bool
	fainted   [2]bool
}

func (e *Engine) newTurn(snap battle.Snapshot, rng dice.Source) *turnState {
	ts := &turnState{e: e, meta: snap.Meta, field: snap.Public.Field, rng: rng}
	for _, s := range battle.Sides {
		ts.privs[s] = snap.Privates[s].Clone()
	}
	return ts
}

func (ts *turnState) logf(format string, args ...any) {
	ts.logs = append(ts.logs, fmt.Sprintf(format, args...))
}

func (ts *turnState) active(s battle.Side) *battle.Pokemon {
	return ts.privs[s].ActiveMon()
}

func (ts *turnState) ability(mon *battle.Pokemon) *refdata.Ability {
	if mon.Ability == "" {
		return nil
	}
	a, err := ts.e.refs.Ability(mon.Ability)
	if err != nil {
		ts.e.logger.Warn("resolver: ability ignored", zap.Error(err))
		return nil
	}
	return a
}

func (ts *turnState) item(mon *battle.Pokemon) *refdata.Item {
	if mon.Item == "" {
		return nil
	}
	it, err := ts.e.refs.Item(mon.Item)
	if err != nil {
		ts.e.logger.Warn("resolver: item ignored", zap.Error(err))
		return nil
	}
	return it
}

func (ts *turnState) ident(s battle.Side) string {
	return s.String() + "|" + ts.active(s).Species
}

func hpText(mon *battle.Pokemon) string {
	return fmt.Sprintf("%d/%d", mon.CurrentHP, mon.MaxHP)
}

// damage removes up to amount HP from s's active and logs the faint once.
// Returns the HP actually removed.
func (ts *turnState) damage(s battle.Side, amount int, from string) int {
	mon := ts.active(s)
	if amount <= 0 || mon.Fainted() {
		return 0
	}
	if amount > mon.CurrentHP {
		amount = mon.CurrentHP
	}
	mon.CurrentHP -= amount
	if from == "" {
		ts.logf("|-damage|%s|%s", ts.ident(s), hpText(mon))
	} else {
		ts.logf("|-damage|%s|%s|[from] %s", ts.ident(s), hpText(mon), from)
	}
	ts.checkFaint(s)
	return amount
}

func (ts *turnState) checkFaint(s battle.Side) {
	mon := ts.active(s)
	if mon.Fainted() && !ts.fainted[s] {
		ts.fainted[s] = true
		ts.logf("|faint|%s", ts.ident(s))
	}
}

// heal restores up to amount HP and returns the HP actually restored.
func (ts *turnState) heal(s battle.Side, amount int, from string) int {
	mon := ts.active(s)
	if amount <= 0 || mon.Fainted() || mon.CurrentHP >= mon.MaxHP {
		return 0
	}
	if mon.CurrentHP+amount > mon.MaxHP {
		amount = mon.MaxHP - mon.CurrentHP
	}
	mon.CurrentHP += amount
	if from == "" {
		ts.logf("|-heal|%s|%s", ts.ident(s), hpText(mon))
	} else {
		ts.logf("|-heal|%s|%s|[from] %s", ts.ident(s), hpText(mon), from)
	}
	return amount
}

func (ts *turnState) canSwitchTo(s battle.Side, idx int) bool {
	p := &ts.privs[s]
	return idx >= 0 && idx < len(p.Team) && idx != p.Active && !p.Team[idx].Fainted()
}

func (ts *turnState) firstHealthyBench(s battle.Side) int {
	for i := range ts.privs[s].Team {
		if ts.canSwitchTo(s, i) {
			return i
		}
	}
	return -1
}

// finish applies the faint outcome.
func (ts *turnState) finish(meta battle.Meta) Result {
	res := Result{Privates: ts.privs, Field: ts.field, Logs: ts.logs}
	outcome(&res, meta)
	if res.Logs == nil {
		res.Logs = []string{}
	}
	res.Summary = summarize(&res, meta)
	return res
}
