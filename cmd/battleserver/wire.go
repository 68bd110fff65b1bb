//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/cory-johannsen/pokeduel/internal/config"
	"github.com/cory-johannsen/pokeduel/internal/game/battle"
	"github.com/cory-johannsen/pokeduel/internal/game/resolver"
	"github.com/cory-johannsen/pokeduel/internal/gameserver"
)

func initializeApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, func(), error) {
	wire.Build(
		provideBackend,
		provideStore,
		provideAccounts,
		provideRefData,
		provideScripts,
		provideEngine,
		provideResolver,
		provideHandler,
		provideSweeper,
		provideTokens,
		battle.NewRepository,
		resolver.NewWatcher,
		gameserver.NewBattleService,
		gameserver.NewGRPCServer,
		newApp,
	)
	return nil, nil, nil
}
