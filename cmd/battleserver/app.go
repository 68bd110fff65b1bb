package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/cory-johannsen/pokeduel/internal/config"
	"github.com/cory-johannsen/pokeduel/internal/game/resolver"
	"github.com/cory-johannsen/pokeduel/internal/gameserver"
	"github.com/cory-johannsen/pokeduel/internal/server"
)

const healthInterval = 30 * time.Second

// app holds the wired long-running components of the battle server.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	backend backend
	grpc    *grpc.Server
	sweeper *gameserver.Sweeper
	watcher *resolver.Watcher
}

func newApp(cfg config.Config, logger *zap.Logger, b backend, srv *grpc.Server, sweeper *gameserver.Sweeper, watcher *resolver.Watcher) *app {
	return &app{cfg: cfg, logger: logger, backend: b, grpc: srv, sweeper: sweeper, watcher: watcher}
}

// lifecycle registers every service in start order.
func (a *app) lifecycle() *server.Lifecycle {
	lc := server.NewLifecycle(a.logger)

	lc.Add("grpc", &server.FuncService{
		StartFn: func(context.Context) error {
			lis, err := net.Listen("tcp", a.cfg.Server.Addr())
			if err != nil {
				return fmt.Errorf("listening on %s: %w", a.cfg.Server.Addr(), err)
			}
			a.logger.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
			return a.grpc.Serve(lis)
		},
		StopFn: a.grpc.GracefulStop,
	})

	lc.Add("sweeper", &server.FuncService{
		StartFn: func(ctx context.Context) error {
			a.sweeper.Start(ctx)
			<-ctx.Done()
			return nil
		},
	})

	if a.cfg.Battle.WatchTriggers {
		lc.Add("watcher", &server.FuncService{StartFn: a.watcher.Run})
	}

	if a.backend.health != nil {
		lc.Add(a.cfg.Store.Backend, &server.FuncService{StartFn: a.watchHealth})
	}
	return lc
}

// watchHealth checks the store backend periodically until ctx is cancelled.
func (a *app) watchHealth(ctx context.Context) error {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.backend.health(ctx); err != nil {
				a.logger.Warn("store health check failed",
					zap.String("backend", a.cfg.Store.Backend),
					zap.Error(err),
				)
			}
		}
	}
}
