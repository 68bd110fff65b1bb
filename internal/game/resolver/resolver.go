package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cory-johannsen/pokeduel/internal/game/battle"
	"github.com/cory-johannsen/pokeduel/internal/game/dice"
)

// DefaultTurnDuration is the choice deadline of each turn.
const DefaultTurnDuration = 45 * time.Second

// Resolver drives the guarded resolving transition of stored battles.
// Many Resolvers may run against one store; the meta compare-and-swap picks
// the single winner per battle version.
type Resolver struct {
	repo         *battle.Repository
	engine       *Engine
	logger       *zap.Logger
	now          func() time.Time
	newID        func() string
	turnDuration time.Duration
	group        singleflight.Group
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock overrides the commit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithIDs overrides the resolver operation id source.
func WithIDs(newID func() string) Option {
	return func(r *Resolver) { r.newID = newID }
}

// WithTurnDuration sets the deadline granted to each new turn.
func WithTurnDuration(d time.Duration) Option {
	return func(r *Resolver) { r.turnDuration = d }
}

// NewResolver creates a Resolver.
//
// Precondition: repo, engine and logger must be non-nil.
func NewResolver(repo *battle.Repository, engine *Engine, logger *zap.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		repo:         repo,
		engine:       engine,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
		turnDuration: DefaultTurnDuration,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// TryResolve resolves the current turn of battleID when both choices for
// version are present. Duplicate local calls for the same version share one
// attempt.
//
// Postcondition: returns true only when this call committed the resolution.
// A lost race or a turn that is not ready returns (false, nil).
func (r *Resolver) TryResolve(ctx context.Context, battleID string, version int) (bool, error) {
	v, err, _ := r.group.Do(fmt.Sprintf("%s@%d", battleID, version), func() (any, error) {
		return r.resolveTurn(ctx, battleID, version)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// TryResolveReplacement applies the forced switches of battleID once every
// side listed in needsReplacement has submitted for version.
//
// Postcondition: as TryResolve.
func (r *Resolver) TryResolveReplacement(ctx context.Context, battleID string, version int) (bool, error) {
	v, err, _ := r.group.Do(fmt.Sprintf("%s@%d/replacement", battleID, version), func() (any, error) {
		return r.resolveReplacement(ctx, battleID, version)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (r *Resolver) resolveTurn(ctx context.Context, battleID string, version int) (bool, error) {
	meta, err := r.repo.Meta(ctx, battleID)
	if err != nil {
		return false, err
	}
	if meta.Phase != battle.PhaseChoosing || meta.Version != version {
		return false, nil
	}
	choices, err := r.repo.Choices(ctx, battleID, meta.Turn)
	if err != nil {
		return false, err
	}
	if _, ok := choiceActions(meta, choices); !ok {
		return false, nil
	}

	opID, won, err := r.acquire(ctx, battleID, version, battle.PhaseChoosing)
	if !won || err != nil {
		return false, err
	}
	start := r.now()

	snap, err := r.repo.Snapshot(ctx, battleID)
	if err != nil {
		return false, r.release(ctx, battleID, opID, battle.PhaseChoosing, err)
	}
	choices, err = r.repo.Choices(ctx, battleID, snap.Meta.Turn)
	if err != nil {
		return false, r.release(ctx, battleID, opID, battle.PhaseChoosing, err)
	}
	actions, ok := choiceActions(snap.Meta, choices)
	if !ok {
		return false, r.release(ctx, battleID, opID, battle.PhaseChoosing,
			fmt.Errorf("battle %s: choices vanished after acquiring turn %d", battleID, snap.Meta.Turn))
	}

	rng := dice.NewSeeded(snap.Meta.RNG)
	res := r.engine.Resolve(snap, actions, dice.NewLogged(rng, r.logger))
	key := battle.ResolutionKey(battleID, snap.Meta.Turn)
	return r.commit(ctx, snap, res, rng.State(), opID, key, battle.PhaseChoosing, start)
}

func (r *Resolver) resolveReplacement(ctx context.Context, battleID string, version int) (bool, error) {
	meta, err := r.repo.Meta(ctx, battleID)
	if err != nil {
		return false, err
	}
	if meta.Phase != battle.PhaseReplacement || meta.Version != version {
		return false, nil
	}
	reps, err := r.repo.Replacements(ctx, battleID, meta.Turn)
	if err != nil {
		return false, err
	}
	if _, ok := replacementSwitches(meta, reps); !ok {
		return false, nil
	}

	opID, won, err := r.acquire(ctx, battleID, version, battle.PhaseReplacement)
	if !won || err != nil {
		return false, err
	}
	start := r.now()

	snap, err := r.repo.Snapshot(ctx, battleID)
	if err != nil {
		return false, r.release(ctx, battleID, opID, battle.PhaseReplacement, err)
	}
	reps, err = r.repo.Replacements(ctx, battleID, snap.Meta.Turn)
	if err != nil {
		return false, r.release(ctx, battleID, opID, battle.PhaseReplacement, err)
	}
	switches, ok := replacementSwitches(snap.Meta, reps)
	if !ok {
		return false, r.release(ctx, battleID, opID, battle.PhaseReplacement,
			fmt.Errorf("battle %s: replacements vanished after acquiring turn %d", battleID, snap.Meta.Turn))
	}

	rng := dice.NewSeeded(snap.Meta.RNG)
	res := r.engine.ResolveReplacements(snap, switches, dice.NewLogged(rng, r.logger))
	key := battle.ReplacementResolutionKey(battleID, snap.Meta.Turn)
	return r.commit(ctx, snap, res, rng.State(), opID, key, battle.PhaseReplacement, start)
}

// choiceActions orders the stored choices by side.
//
// Postcondition: ok is true only when both participants have a choice.
func choiceActions(meta battle.Meta, choices map[string]battle.Choice) (actions [2]battle.Action, ok bool) {
	for _, s := range battle.Sides {
		c, found := choices[meta.Players.Get(s).UID]
		if !found {
			return actions, false
		}
		actions[s] = c.Action
	}
	return actions, true
}

// replacementSwitches collects the forced switches submitted against the
// current version. A replacement left over from an earlier replacement round
// of the same turn carries an older version and is ignored.
func replacementSwitches(meta battle.Meta, reps map[string]battle.Replacement) (map[battle.Side]int, bool) {
	if len(meta.NeedsReplacement) == 0 {
		return nil, false
	}
	out := make(map[battle.Side]int, len(meta.NeedsReplacement))
	for _, uid := range meta.NeedsReplacement {
		rp, found := reps[uid]
		if !found || rp.ClientVersion != meta.Version {
			return nil, false
		}
		s, known := meta.SideOf(uid)
		if !known {
			return nil, false
		}
		out[s] = rp.SwitchIndex
	}
	return out, true
}

// acquire flips meta from phase to resolving at version.
//
// Postcondition: won is false with a nil error when another invocation got there first.
func (r *Resolver) acquire(ctx context.Context, battleID string, version int, from battle.Phase) (string, bool, error) {
	opID := r.newID()
	_, err := r.repo.SwapMeta(ctx, battleID, func(m *battle.Meta) error {
		if m.Phase != from || m.Version != version {
			return battle.ErrConcurrencyConflict
		}
		m.Hold(opID, r.now())
		return nil
	})
	if errors.Is(err, battle.ErrConcurrencyConflict) {
		r.logger.Debug("resolver: lost resolving guard",
			zap.String("battle_id", battleID),
			zap.Int("version", version),
		)
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("acquiring %s@%d: %w", battleID, version, err)
	}
	return opID, true, nil
}

// release hands a battle this invocation holds back to phase after a failure
// and returns cause.
func (r *Resolver) release(ctx context.Context, battleID, opID string, phase battle.Phase, cause error) error {
	_, err := r.repo.SwapMeta(ctx, battleID, func(m *battle.Meta) error {
		if m.Phase != battle.PhaseResolving || m.ResolvingBy != opID {
			return battle.ErrConcurrencyConflict
		}
		m.Phase = phase
		m.ClearHold()
		return nil
	})
	if err != nil {
		r.logger.Warn("resolver: release failed",
			zap.String("battle_id", battleID),
			zap.String("resolving_by", opID),
			zap.Error(err),
		)
	}
	return cause
}

// commit writes the resolved state, the resolution record and the advanced
// meta in one guarded update.
func (r *Resolver) commit(
	ctx context.Context,
	snap battle.Snapshot,
	res Result,
	rngAfter dice.State,
	opID, resolutionKey string,
	from battle.Phase,
	start time.Time,
) (bool, error) {
	meta := snap.Meta
	battleID := meta.BattleID

	public := battle.Project(res.Privates, res.Field, res.Summary)
	hash, err := battle.StateHash(public, res.Privates)
	if err != nil {
		return false, r.release(ctx, battleID, opID, from, err)
	}
	diffs, err := battle.DiffStates(snap.Public, public)
	if err != nil {
		return false, r.release(ctx, battleID, opID, from, err)
	}

	now := r.now()
	next := meta
	next.Phase = res.Phase
	next.Version = meta.Version + 1
	next.ClearHold()
	next.RNG = rngAfter
	next.NeedsReplacement = res.NeedsReplacement
	next.WinnerUID = res.WinnerUID
	next.EndedReason = res.EndedReason
	if res.Phase != battle.PhaseEnded {
		next.DeadlineAt = now.Add(r.turnDuration)
	}
	if res.Phase == battle.PhaseChoosing {
		next.Turn = meta.Turn + 1
	}

	pairs := []battle.KV{
		{Key: battle.PublicKey(battleID), Value: public},
		{Key: battle.PrivateKey(battleID, meta.Players.P1.UID), Value: res.Privates[battle.P1]},
		{Key: battle.PrivateKey(battleID, meta.Players.P2.UID), Value: res.Privates[battle.P2]},
		{Key: resolutionKey, Value: battle.Resolution{
			By:             opID,
			CommittedAt:    now,
			RNGSeedUsed:    meta.RNG,
			Diffs:          diffs,
			Logs:           res.Logs,
			StateHashAfter: hash,
		}},
		{Key: battle.MetaKey(battleID), Value: next},
	}
	if next.Turn != meta.Turn {
		pairs = append(pairs, battle.KV{
			Key:   battle.TurnHeaderKey(battleID, next.Turn),
			Value: battle.TurnHeader{Turn: next.Turn, Version: next.Version, DeadlineAt: next.DeadlineAt},
		})
	}
	writes, err := battle.Writes(pairs...)
	if err != nil {
		return false, r.release(ctx, battleID, opID, from, err)
	}

	err = r.repo.Commit(ctx, battleID, func(m battle.Meta) error {
		if m.Phase != battle.PhaseResolving || m.ResolvingBy != opID || m.Version != meta.Version {
			return battle.ErrConcurrencyConflict
		}
		return nil
	}, writes...)
	if errors.Is(err, battle.ErrConcurrencyConflict) {
		r.logger.Debug("resolver: commit guard rejected",
			zap.String("battle_id", battleID),
			zap.Int("version", meta.Version),
		)
		return false, nil
	}
	if err != nil {
		return false, r.release(ctx, battleID, opID, from, fmt.Errorf("committing %s@%d: %w", battleID, meta.Version, err))
	}

	r.logger.Info("battle resolved",
		zap.String("battle_id", battleID),
		zap.Int("version", next.Version),
		zap.Int("turn", meta.Turn),
		zap.String("phase", string(next.Phase)),
		zap.String("resolving_by", opID),
		zap.Duration("duration", r.now().Sub(start)),
	)
	return true, nil
}
