package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cory-johannsen/pokeduel/content"
	"github.com/cory-johannsen/pokeduel/internal/auth"
	"github.com/cory-johannsen/pokeduel/internal/config"
	"github.com/cory-johannsen/pokeduel/internal/game/battle"
	"github.com/cory-johannsen/pokeduel/internal/game/refdata"
	"github.com/cory-johannsen/pokeduel/internal/game/resolver"
	"github.com/cory-johannsen/pokeduel/internal/gameserver"
	"github.com/cory-johannsen/pokeduel/internal/scripting"
	"github.com/cory-johannsen/pokeduel/internal/storage"
	"github.com/cory-johannsen/pokeduel/internal/storage/memory"
	"github.com/cory-johannsen/pokeduel/internal/storage/postgres"
	"github.com/cory-johannsen/pokeduel/internal/storage/redisstore"
)

// backend bundles the record store with the account directory living beside it.
type backend struct {
	store    storage.Store
	accounts auth.Accounts
	// health checks the backing service; nil for the memory backend.
	health func(ctx context.Context) error
}

// provideBackend connects the configured store backend.
//
// Postcondition: the returned cleanup releases every connection opened here.
func provideBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (backend, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return backend{}, nil, fmt.Errorf("connecting to database: %w", err)
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		return backend{
			store:    postgres.NewRecordStore(pool.DB(), logger),
			accounts: postgres.NewAccountRepository(pool.DB()),
			health: func(ctx context.Context) error {
				return pool.Health(ctx, 5*time.Second)
			},
		}, pool.Close, nil
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return backend{}, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
		cleanup := func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("closing redis client", zap.Error(err))
			}
		}
		// Accounts stay in memory; redis holds only battle records.
		logger.Warn("redis backend keeps accounts in memory; they are lost on restart")
		return backend{
			store:    redisstore.New(rdb, logger),
			accounts: auth.NewMemoryAccounts(),
			health: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			},
		}, cleanup, nil
	default:
		logger.Warn("using in-memory store; battles are lost on restart")
		return backend{store: memory.New(logger), accounts: auth.NewMemoryAccounts()}, func() {}, nil
	}
}

func provideStore(b backend) storage.Store { return b.store }

func provideAccounts(b backend) auth.Accounts { return b.accounts }

// provideRefData loads the species, move, ability and item catalogs, from
// disk when battle.refdata_dir is set and from the embedded defaults otherwise.
func provideRefData(cfg config.Config, logger *zap.Logger) (*refdata.Registry, error) {
	var (
		reg *refdata.Registry
		err error
	)
	if dir := cfg.Battle.RefDataDir; dir != "" {
		reg, err = refdata.LoadDirectory(dir)
	} else {
		reg, err = refdata.LoadFS(content.RefData, content.RefDataDir)
	}
	if err != nil {
		return nil, fmt.Errorf("loading reference data: %w", err)
	}
	logger.Info("reference data loaded", zap.String("dir", cfg.Battle.RefDataDir))
	return reg, nil
}

func provideScripts(cfg config.Config, logger *zap.Logger) (*scripting.Manager, func(), error) {
	mgr := scripting.NewManager(logger)
	var err error
	if dir := cfg.Battle.ScriptsDir; dir != "" {
		err = mgr.LoadDir(dir, cfg.Battle.ScriptInstructionLimit)
	} else {
		err = mgr.LoadFS(content.Scripts, content.ScriptsDir, cfg.Battle.ScriptInstructionLimit)
	}
	if err != nil {
		mgr.Close()
		return nil, nil, fmt.Errorf("loading ability scripts: %w", err)
	}
	return mgr, mgr.Close, nil
}

func provideEngine(refs *refdata.Registry, scripts *scripting.Manager, logger *zap.Logger) *resolver.Engine {
	return resolver.NewEngine(refs, scripts, logger)
}

func provideResolver(repo *battle.Repository, engine *resolver.Engine, cfg config.Config, logger *zap.Logger) *resolver.Resolver {
	return resolver.NewResolver(repo, engine, logger, resolver.WithTurnDuration(cfg.Battle.TurnDuration))
}

func provideHandler(repo *battle.Repository, refs *refdata.Registry, res *resolver.Resolver, cfg config.Config, logger *zap.Logger) *gameserver.BattleHandler {
	return gameserver.NewBattleHandler(repo, refs, res, logger, gameserver.WithChoiceWindow(cfg.Battle.TurnDuration))
}

func provideSweeper(repo *battle.Repository, res *resolver.Resolver, cfg config.Config, logger *zap.Logger) *gameserver.Sweeper {
	return gameserver.NewSweeper(repo, res, cfg.Battle.SweepInterval, cfg.Battle.SweepConcurrency, logger).
		WithStaleAfter(cfg.Battle.StaleHoldAfter)
}

func provideTokens(cfg config.Config) *auth.TokenIssuer {
	return auth.NewTokenIssuer(cfg.Auth.SigningKey, cfg.Auth.TokenTTL)
}
