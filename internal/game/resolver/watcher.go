package resolver

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/pokeduel/internal/game/battle"
	"github.com/cory-johannsen/pokeduel/internal/storage"
)

// Watcher triggers resolution from store change events, so a choice written
// by any process gets resolved even when its writer crashed before calling
// TryResolve.
type Watcher struct {
	store    storage.Store
	repo     *battle.Repository
	resolver *Resolver
	logger   *zap.Logger
}

// NewWatcher creates a Watcher.
//
// Precondition: all arguments must be non-nil.
func NewWatcher(repo *battle.Repository, resolver *Resolver, logger *zap.Logger) *Watcher {
	return &Watcher{store: repo.Store(), repo: repo, resolver: resolver, logger: logger}
}

// Run consumes changes until ctx is cancelled.
//
// Postcondition: returns nil on cancellation, or the subscription error.
func (w *Watcher) Run(ctx context.Context) error {
	changes, err := w.store.Subscribe(ctx, battle.RootPrefix)
	if err != nil {
		return err
	}
	w.logger.Info("resolution watcher started")
	for ch := range changes {
		w.handle(ctx, ch)
	}
	w.logger.Info("resolution watcher stopped")
	return nil
}

func (w *Watcher) handle(ctx context.Context, ch storage.Change) {
	if ch.Value == nil {
		return
	}
	battleID, rest, ok := battle.ParseBattleKey(ch.Key)
	if !ok {
		return
	}
	_, sub, ok := battle.ParseTurnKey(battleID, ch.Key)
	if !ok {
		return
	}
	var try func(context.Context, string, int) (bool, error)
	switch {
	case strings.HasPrefix(sub, "choices/"):
		try = w.resolver.TryResolve
	case strings.HasPrefix(sub, "replacements/"):
		try = w.resolver.TryResolveReplacement
	default:
		return
	}
	meta, err := w.repo.Meta(ctx, battleID)
	if err != nil {
		w.logger.Warn("watcher: reading meta", zap.String("key", ch.Key), zap.Error(err))
		return
	}
	if _, err := try(ctx, battleID, meta.Version); err != nil && ctx.Err() == nil {
		w.logger.Warn("watcher: resolution failed",
			zap.String("battle_id", battleID),
			zap.String("trigger", rest),
			zap.Error(err),
		)
	}
}
