// Package main provides the battle server binary: the gRPC battle service,
// the timeout sweeper and the store-driven resolution watcher.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cory-johannsen/pokeduel/internal/config"
	"github.com/cory-johannsen/pokeduel/internal/observability"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	envFile := flag.String("env", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	// A missing dotenv file is not an error; the environment may already be set.
	_ = godotenv.Load(*envFile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "battleserver")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting battle server",
		zap.String("grpc_addr", cfg.Server.Addr()),
		zap.String("store", cfg.Store.Backend),
		zap.Duration("turn_duration", cfg.Battle.TurnDuration),
	)

	ctx := context.Background()
	a, cleanup, err := initializeApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("initializing battle server", zap.Error(err))
	}
	defer cleanup()

	logger.Info("battle server initialized", zap.Duration("startup", time.Since(start)))

	if err := a.lifecycle().Run(ctx); err != nil {
		logger.Error("server error", zap.Error(err))
	}
}
