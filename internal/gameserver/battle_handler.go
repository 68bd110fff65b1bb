package gameserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/pokeduel/internal/game/battle"
	"github.com/cory-johannsen/pokeduel/internal/game/dice"
	"github.com/cory-johannsen/pokeduel/internal/game/refdata"
	"github.com/cory-johannsen/pokeduel/internal/game/resolver"
)

// TurnResolver resolves a battle once every required submission is present.
// *resolver.Resolver satisfies it.
type TurnResolver interface {
	TryResolve(ctx context.Context, battleID string, version int) (bool, error)
	TryResolveReplacement(ctx context.Context, battleID string, version int) (bool, error)
}

// Catalog is the reference data the handler consults when building rosters
// and checking action legality.
type Catalog interface {
	resolver.Provider
	Species(id string) (*refdata.Species, error)
}

// BattleHandler creates battles and records player submissions.
type BattleHandler struct {
	repo         *battle.Repository
	refs         Catalog
	resolver     TurnResolver
	logger       *zap.Logger
	now          func() time.Time
	newID        func() string
	newSeed      func() uint32
	turnDuration time.Duration
}

// HandlerOption customises a BattleHandler.
type HandlerOption func(*BattleHandler)

// WithHandlerClock overrides the time source.
func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *BattleHandler) { h.now = now }
}

// WithBattleIDs overrides battle id generation.
func WithBattleIDs(newID func() string) HandlerOption {
	return func(h *BattleHandler) { h.newID = newID }
}

// WithSeeds overrides the RNG seed source for new battles.
func WithSeeds(newSeed func() uint32) HandlerOption {
	return func(h *BattleHandler) { h.newSeed = newSeed }
}

// WithChoiceWindow sets the deadline granted to the first turn.
func WithChoiceWindow(d time.Duration) HandlerOption {
	return func(h *BattleHandler) { h.turnDuration = d }
}

// NewBattleHandler creates a BattleHandler.
//
// Precondition: repo, refs, turnResolver and logger must be non-nil.
func NewBattleHandler(repo *battle.Repository, refs Catalog, turnResolver TurnResolver, logger *zap.Logger, opts ...HandlerOption) *BattleHandler {
	h := &BattleHandler{
		repo:         repo,
		refs:         refs,
		resolver:     turnResolver,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
		newSeed:      dice.NewSeed,
		turnDuration: resolver.DefaultTurnDuration,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SubmitChoice records uid's action for the current turn and triggers
// resolution once both players have chosen.
//
// Precondition: phase is choosing, clientVersion and turn match the stored
// meta, uid is a participant and action is legal for uid's active Pokémon.
// Postcondition: on a ValidationError nothing was written. A later choice
// from the same uid replaces an earlier one until resolution starts.
func (h *BattleHandler) SubmitChoice(ctx context.Context, battleID string, turn int, uid string, action battle.Action, clientVersion int) error {
	meta, err := h.repo.Meta(ctx, battleID)
	if err != nil {
		return err
	}
	if _, ok := meta.SideOf(uid); !ok {
		return battle.Invalid(battle.KindNotParticipant, "%s is not in battle %s", uid, battleID)
	}
	if meta.Phase != battle.PhaseChoosing {
		return battle.Invalid(battle.KindWrongPhase, "battle is %s, not choosing", meta.Phase)
	}
	if err := checkVersion(meta, turn, clientVersion); err != nil {
		return err
	}

	priv, err := h.repo.Private(ctx, battleID, uid)
	if err != nil {
		return err
	}
	action, err = legalAction(&priv, action, h.refs)
	if err != nil {
		return err
	}

	w, err := battle.JSONWrite(battle.ChoiceKey(battleID, turn, uid), battle.Choice{
		UID:           uid,
		Action:        action,
		ClientVersion: clientVersion,
		SubmittedAt:   h.now().UTC(),
	})
	if err != nil {
		return err
	}
	err = h.repo.Commit(ctx, battleID, func(m battle.Meta) error {
		if m.Phase != battle.PhaseChoosing {
			return battle.Invalid(battle.KindWrongPhase, "battle is %s, not choosing", m.Phase)
		}
		if m.Version != clientVersion {
			return battle.Invalid(battle.KindStaleVersion, "version %d is stale, current is %d", clientVersion, m.Version)
		}
		return nil
	}, w)
	if err != nil {
		return err
	}
	h.logger.Debug("choice recorded",
		zap.String("battle_id", battleID),
		zap.String("uid", uid),
		zap.Int("turn", turn),
		zap.String("action", string(action.Type)),
	)

	choices, err := h.repo.Choices(ctx, battleID, turn)
	if err != nil {
		return fmt.Errorf("reading choices: %w", err)
	}
	if !bothPresent(meta, choices) {
		return nil
	}
	h.trigger(ctx, battleID, clientVersion, h.resolver.TryResolve)
	return nil
}

// SubmitReplacement records uid's forced switch after a faint and triggers
// the replacement once every owed switch is in.
//
// Precondition: phase is replacement and uid is listed in needsReplacement;
// switchIndex names a healthy benched Pokémon.
func (h *BattleHandler) SubmitReplacement(ctx context.Context, battleID string, turn int, uid string, switchIndex int, clientVersion int) error {
	meta, err := h.repo.Meta(ctx, battleID)
	if err != nil {
		return err
	}
	if _, ok := meta.SideOf(uid); !ok {
		return battle.Invalid(battle.KindNotParticipant, "%s is not in battle %s", uid, battleID)
	}
	if meta.Phase != battle.PhaseReplacement {
		return battle.Invalid(battle.KindWrongPhase, "battle is %s, not replacement", meta.Phase)
	}
	if err := checkVersion(meta, turn, clientVersion); err != nil {
		return err
	}
	if !meta.NeedsReplacementFrom(uid) {
		return battle.Invalid(battle.KindIllegalAction, "%s owes no replacement", uid)
	}

	priv, err := h.repo.Private(ctx, battleID, uid)
	if err != nil {
		return err
	}
	if err := legalSwitch(&priv, switchIndex); err != nil {
		return err
	}

	w, err := battle.JSONWrite(battle.ReplacementKey(battleID, turn, uid), battle.Replacement{
		UID:           uid,
		SwitchIndex:   switchIndex,
		ClientVersion: clientVersion,
		SubmittedAt:   h.now().UTC(),
	})
	if err != nil {
		return err
	}
	err = h.repo.Commit(ctx, battleID, func(m battle.Meta) error {
		if m.Phase != battle.PhaseReplacement {
			return battle.Invalid(battle.KindWrongPhase, "battle is %s, not replacement", m.Phase)
		}
		if m.Version != clientVersion {
			return battle.Invalid(battle.KindStaleVersion, "version %d is stale, current is %d", clientVersion, m.Version)
		}
		return nil
	}, w)
	if err != nil {
		return err
	}

	reps, err := h.repo.Replacements(ctx, battleID, turn)
	if err != nil {
		return fmt.Errorf("reading replacements: %w", err)
	}
	for _, owed := range meta.NeedsReplacement {
		rp, ok := reps[owed]
		if !ok || rp.ClientVersion != meta.Version {
			return nil
		}
	}
	h.trigger(ctx, battleID, clientVersion, h.resolver.TryResolveReplacement)
	return nil
}

// trigger runs a resolution attempt. The submission is already durable, so a
// failed attempt is logged and left to the watcher or the sweeper.
func (h *BattleHandler) trigger(ctx context.Context, battleID string, version int, try func(context.Context, string, int) (bool, error)) {
	ok, err := try(ctx, battleID, version)
	if err != nil {
		h.logger.Warn("resolution attempt failed",
			zap.String("battle_id", battleID),
			zap.Int("version", version),
			zap.Error(err),
		)
		return
	}
	if !ok {
		h.logger.Debug("resolution already handled",
			zap.String("battle_id", battleID),
			zap.Int("version", version),
		)
	}
}

func checkVersion(meta battle.Meta, turn, clientVersion int) error {
	if clientVersion != meta.Version {
		return battle.Invalid(battle.KindStaleVersion, "version %d is stale, current is %d", clientVersion, meta.Version)
	}
	if turn != meta.Turn {
		return battle.Invalid(battle.KindStaleVersion, "turn %d is not the current turn %d", turn, meta.Turn)
	}
	return nil
}

func bothPresent(meta battle.Meta, choices map[string]battle.Choice) bool {
	for _, s := range battle.Sides {
		c, ok := choices[meta.Players.Get(s).UID]
		if !ok || c.ClientVersion != meta.Version {
			return false
		}
	}
	return true
}

// legalAction checks action against the submitter's roster and returns it
// with defaults filled in.
func legalAction(p *battle.PrivateState, action battle.Action, refs resolver.Provider) (battle.Action, error) {
	switch action.Type {
	case battle.ActionMove:
		if action.Target == "" {
			action.Target = battle.TargetFoe
		}
		if action.Target != battle.TargetFoe && action.Target != battle.TargetSelf {
			return action, battle.Invalid(battle.KindIllegalAction, "unknown target %q", action.Target)
		}
		return action, legalMove(p, action.MoveID, refs)
	case battle.ActionSwitch:
		return action, legalSwitch(p, action.SwitchIndex)
	}
	return action, battle.Invalid(battle.KindIllegalAction, "unknown action type %q", action.Type)
}

func legalMove(p *battle.PrivateState, moveID string, refs resolver.Provider) error {
	mon := p.ActiveMon()
	usable := resolver.UsableMoves(p, refs)
	if moveID == refdata.StruggleID {
		if len(usable) > 0 {
			return battle.Invalid(battle.KindIllegalAction, "struggle is only allowed when no move is usable")
		}
		return nil
	}
	slot, ok := mon.Move(moveID)
	if !ok {
		return battle.Invalid(battle.KindIllegalAction, "%s does not know %q", mon.Species, moveID)
	}
	switch {
	case slot.PP <= 0:
		return battle.Invalid(battle.KindIllegalAction, "%q has no PP left", moveID)
	case slot.Disabled || (mon.Volatile.Disable != nil && mon.Volatile.Disable.MoveID == moveID):
		return battle.Invalid(battle.KindIllegalAction, "%q is disabled", moveID)
	case p.ChoiceLock != "" && p.ChoiceLock != moveID:
		return battle.Invalid(battle.KindIllegalAction, "locked into %q", p.ChoiceLock)
	case mon.Volatile.Encore != nil && mon.Volatile.Encore.MoveID != moveID:
		return battle.Invalid(battle.KindIllegalAction, "encored into %q", mon.Volatile.Encore.MoveID)
	}
	for _, id := range usable {
		if id == moveID {
			return nil
		}
	}
	return battle.Invalid(battle.KindIllegalAction, "%q cannot be used while taunted", moveID)
}

func legalSwitch(p *battle.PrivateState, idx int) error {
	if idx < 0 || idx >= len(p.Team) {
		return battle.Invalid(battle.KindIllegalAction, "switch index %d out of range", idx)
	}
	if idx == p.Active {
		return battle.Invalid(battle.KindIllegalAction, "%s is already active", p.Team[idx].Species)
	}
	if p.Team[idx].Fainted() {
		return battle.Invalid(battle.KindIllegalAction, "%s has fainted", p.Team[idx].Species)
	}
	return nil
}

// View is one player's read of a battle: the shared state plus only their
// own private partition.
type View struct {
	Meta    battle.Meta         `json:"meta"`
	Public  battle.PublicState  `json:"public"`
	Private battle.PrivateState `json:"private"`
}

// GetBattleView returns uid's view of a battle.
//
// Postcondition: the opponent's private partition is never read.
func (h *BattleHandler) GetBattleView(ctx context.Context, battleID, uid string) (View, error) {
	meta, err := h.repo.Meta(ctx, battleID)
	if err != nil {
		return View{}, err
	}
	if _, ok := meta.SideOf(uid); !ok {
		return View{}, battle.Invalid(battle.KindNotParticipant, "%s is not in battle %s", uid, battleID)
	}
	pub, err := h.repo.Public(ctx, battleID)
	if err != nil {
		return View{}, err
	}
	priv, err := h.repo.Private(ctx, battleID, uid)
	if err != nil {
		return View{}, err
	}
	return View{Meta: meta, Public: pub, Private: priv}, nil
}

// ReplayStep is one committed resolution as it appears in a replay.
type ReplayStep struct {
	By          string    `json:"by"`
	CommittedAt time.Time `json:"committedAt"`
	Logs        []string  `json:"logs"`
	StateHash   string    `json:"stateHash"`
}

// ReplayTurn pairs a turn's resolution with the replacement that followed it.
type ReplayTurn struct {
	Turn        int         `json:"turn"`
	Resolution  *ReplayStep `json:"resolution,omitempty"`
	Replacement *ReplayStep `json:"replacement,omitempty"`
}

// Replay is the exportable history of a battle. It carries the public
// starting position and the logs, never a private partition.
type Replay struct {
	BattleID      string             `json:"battleId"`
	Players       battle.Players     `json:"players"`
	CreatedAt     time.Time          `json:"createdAt"`
	InitialPublic battle.PublicState `json:"initialPublic"`
	Turns         []ReplayTurn       `json:"turns"`
	Phase         battle.Phase       `json:"phase"`
	Turn          int                `json:"turn"`
	Version       int                `json:"version"`
	WinnerUID     string             `json:"winnerUid,omitempty"`
	EndedReason   battle.EndedReason `json:"endedReason,omitempty"`
}

// ExportReplay assembles the battle history for a participant.
func (h *BattleHandler) ExportReplay(ctx context.Context, battleID, uid string) (Replay, error) {
	meta, err := h.repo.Meta(ctx, battleID)
	if err != nil {
		return Replay{}, err
	}
	if _, ok := meta.SideOf(uid); !ok {
		return Replay{}, battle.Invalid(battle.KindNotParticipant, "%s is not in battle %s", uid, battleID)
	}
	initial, err := h.repo.InitialPublic(ctx, battleID)
	if err != nil {
		return Replay{}, err
	}
	records, err := h.repo.Turns(ctx, battleID)
	if err != nil {
		return Replay{}, err
	}

	out := Replay{
		BattleID:      meta.BattleID,
		Players:       meta.Players,
		CreatedAt:     meta.CreatedAt,
		InitialPublic: initial,
		Turns:         []ReplayTurn{},
		Phase:         meta.Phase,
		Turn:          meta.Turn,
		Version:       meta.Version,
		WinnerUID:     meta.WinnerUID,
		EndedReason:   meta.EndedReason,
	}
	for _, rec := range records {
		if rec.Resolution == nil && rec.ReplacementResolution == nil {
			continue
		}
		out.Turns = append(out.Turns, ReplayTurn{
			Turn:        rec.Turn,
			Resolution:  replayStep(rec.Resolution),
			Replacement: replayStep(rec.ReplacementResolution),
		})
	}
	return out, nil
}

func replayStep(r *battle.Resolution) *ReplayStep {
	if r == nil {
		return nil
	}
	return &ReplayStep{By: r.By, CommittedAt: r.CommittedAt, Logs: r.Logs, StateHash: r.StateHashAfter}
}

// isNotFound reports whether err means the battle does not exist.
func isNotFound(err error) bool {
	return errors.Is(err, battle.ErrBattleNotFound)
}
