package gameserver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/pokeduel/internal/game/battle"
)

// DefaultStaleAfter is how long a battle may stay resolving before the
// sweeper treats the hold as abandoned.
const DefaultStaleAfter = 2 * time.Minute

// Sweeper ends battles whose choice deadline has passed and hands back
// battles whose resolver vanished mid-turn.
//
// Invariant: every forfeit or reclaim is a compare-and-swap on meta predicated
// on the scanned phase and version, so a battle that resolved or was swept
// after the scan is left untouched.
type Sweeper struct {
	repo        *battle.Repository
	resolver    TurnResolver
	interval    time.Duration
	concurrency int
	staleAfter  time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Scanned   int
	Expired   int
	Forfeited int
	Resumed   int
	Reclaimed int
}

// NewSweeper creates a Sweeper that scans every interval with at most
// concurrency battles handled at once.
//
// Precondition: interval > 0 and concurrency >= 1; repo, turnResolver and logger non-nil.
func NewSweeper(repo *battle.Repository, turnResolver TurnResolver, interval time.Duration, concurrency int, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		panic("gameserver.NewSweeper: interval must be > 0")
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Sweeper{
		repo:        repo,
		resolver:    turnResolver,
		interval:    interval,
		concurrency: concurrency,
		staleAfter:  DefaultStaleAfter,
		logger:      logger,
		now:         time.Now,
	}
}

// WithNow overrides the sweeper's clock and returns s.
func (s *Sweeper) WithNow(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// WithStaleAfter sets how long a resolving hold may last before it is
// reclaimed and returns s. Non-positive values keep the default.
func (s *Sweeper) WithStaleAfter(d time.Duration) *Sweeper {
	if d > 0 {
		s.staleAfter = d
	}
	return s
}

// Start runs sweeps until ctx is cancelled.
//
// Postcondition: one sweep runs per interval; sweeps never overlap.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
					s.logger.Warn("sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

// Sweep scans every battle once and expires the overdue ones.
//
// Postcondition: a failure on one battle is logged and does not stop the others.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	metas, err := s.repo.Metas(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("scanning battles: %w", err)
	}
	now := s.now()
	var expired, forfeited, resumed, reclaimed atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, m := range metas {
		stale := m.StaleHold(now, s.staleAfter)
		if !stale && !overdue(m, now) {
			continue
		}
		if !stale {
			expired.Add(1)
		}
		g.Go(func() error {
			var (
				outcome sweepOutcome
				err     error
			)
			if stale {
				var back bool
				back, outcome, err = s.reclaim(gctx, m, now)
				if back {
					reclaimed.Add(1)
				}
			} else {
				outcome, err = s.expire(gctx, m)
			}
			switch {
			case errors.Is(err, battle.ErrConcurrencyConflict):
				s.logger.Debug("battle changed since scan",
					zap.String("battle_id", m.BattleID),
					zap.Int("version", m.Version),
				)
			case err != nil:
				s.logger.Warn("expiring battle",
					zap.String("battle_id", m.BattleID),
					zap.Error(err),
				)
			case outcome == outcomeForfeit:
				forfeited.Add(1)
			case outcome == outcomeResumed:
				resumed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := SweepResult{
		Scanned:   len(metas),
		Expired:   int(expired.Load()),
		Forfeited: int(forfeited.Load()),
		Resumed:   int(resumed.Load()),
		Reclaimed: int(reclaimed.Load()),
	}
	if res.Expired > 0 || res.Reclaimed > 0 {
		s.logger.Info("sweep complete",
			zap.Int("scanned", res.Scanned),
			zap.Int("expired", res.Expired),
			zap.Int("forfeited", res.Forfeited),
			zap.Int("resumed", res.Resumed),
			zap.Int("reclaimed", res.Reclaimed),
		)
	}
	return res, nil
}

func overdue(m battle.Meta, now time.Time) bool {
	if m.Phase != battle.PhaseChoosing && m.Phase != battle.PhaseReplacement {
		return false
	}
	return !m.DeadlineAt.IsZero() && !now.Before(m.DeadlineAt)
}

type sweepOutcome int

const (
	outcomeNone sweepOutcome = iota
	outcomeForfeit
	outcomeResumed
)

// expire ends scanned with a timeout, or resumes it when every submission is
// already present and only the trigger was lost.
func (s *Sweeper) expire(ctx context.Context, scanned battle.Meta) (sweepOutcome, error) {
	done, err := s.submitted(ctx, scanned)
	if err != nil {
		return outcomeNone, err
	}

	if done[battle.P1] && done[battle.P2] {
		try := s.resolver.TryResolve
		if scanned.Phase == battle.PhaseReplacement {
			try = s.resolver.TryResolveReplacement
		}
		ok, err := try(ctx, scanned.BattleID, scanned.Version)
		if err != nil || !ok {
			return outcomeNone, err
		}
		return outcomeResumed, nil
	}

	var winner string
	for _, side := range battle.Sides {
		if done[side] {
			winner = scanned.Players.Get(side).UID
		}
	}
	next, err := s.repo.SwapMeta(ctx, scanned.BattleID, func(m *battle.Meta) error {
		if m.Phase != scanned.Phase || m.Version != scanned.Version {
			return battle.ErrConcurrencyConflict
		}
		m.Phase = battle.PhaseEnded
		m.WinnerUID = winner
		m.EndedReason = battle.EndedTimeout
		m.NeedsReplacement = nil
		m.Version++
		return nil
	})
	if err != nil {
		return outcomeNone, err
	}
	s.logger.Info("battle timed out",
		zap.String("battle_id", next.BattleID),
		zap.String("winner_uid", next.WinnerUID),
		zap.Int("turn", next.Turn),
		zap.Int("version", next.Version),
	)
	return outcomeForfeit, nil
}

// reclaim hands a battle whose resolving hold went stale back to the phase it
// was taken from. The battle is then resumed or forfeited as expire would,
// unless its deadline is still ahead and a submission is missing.
//
// Precondition: scanned.Phase is resolving.
// Postcondition: back is true when the hold was released by this call. A
// resolver still holding the old operation id can no longer commit.
func (s *Sweeper) reclaim(ctx context.Context, scanned battle.Meta, now time.Time) (back bool, outcome sweepOutcome, err error) {
	from := scanned.ResolvingFrom
	if from == "" {
		from = battle.PhaseChoosing
		if len(scanned.NeedsReplacement) > 0 {
			from = battle.PhaseReplacement
		}
	}
	released, err := s.repo.SwapMeta(ctx, scanned.BattleID, func(m *battle.Meta) error {
		if m.Phase != battle.PhaseResolving || m.ResolvingBy != scanned.ResolvingBy || m.Version != scanned.Version {
			return battle.ErrConcurrencyConflict
		}
		m.Phase = from
		m.ClearHold()
		return nil
	})
	if err != nil {
		return false, outcomeNone, err
	}
	s.logger.Warn("reclaimed abandoned resolution",
		zap.String("battle_id", released.BattleID),
		zap.String("resolving_by", scanned.ResolvingBy),
		zap.String("phase", string(released.Phase)),
		zap.Int("version", released.Version),
	)

	if !overdue(released, now) {
		done, err := s.submitted(ctx, released)
		if err != nil || !done[battle.P1] || !done[battle.P2] {
			return true, outcomeNone, err
		}
	}
	outcome, err = s.expire(ctx, released)
	return true, outcome, err
}

// submitted reports, per side, whether that player has done everything the
// current phase asks of them. A player who owes no replacement is done.
func (s *Sweeper) submitted(ctx context.Context, m battle.Meta) ([2]bool, error) {
	var done [2]bool
	switch m.Phase {
	case battle.PhaseChoosing:
		choices, err := s.repo.Choices(ctx, m.BattleID, m.Turn)
		if err != nil {
			return done, err
		}
		for _, side := range battle.Sides {
			c, ok := choices[m.Players.Get(side).UID]
			done[side] = ok && c.ClientVersion == m.Version
		}
	case battle.PhaseReplacement:
		reps, err := s.repo.Replacements(ctx, m.BattleID, m.Turn)
		if err != nil {
			return done, err
		}
		for _, side := range battle.Sides {
			uid := m.Players.Get(side).UID
			if !m.NeedsReplacementFrom(uid) {
				done[side] = true
				continue
			}
			rp, ok := reps[uid]
			done[side] = ok && rp.ClientVersion == m.Version
		}
	}
	return done, nil
}
