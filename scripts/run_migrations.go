package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/safar/stockorder/internal/config"
	"github.com/safar/stockorder/internal/database"
	"github.com/safar/stockorder/internal/observability"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run scripts/run_migrations.go [up|down]")
	}
	direction := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Service)
	if err != nil {
		log.Fatalf("Create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	for _, warning := range cfg.Warnings {
		logger.Warn(warning)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("connect to database", zap.Error(err))
	}
	defer db.Close()

	applied, err := database.Migrate(ctx, db, "migrations", direction)
	for _, name := range applied {
		logger.Info("migration applied", zap.String("file", name), zap.String("direction", direction))
	}
	if err != nil {
		logger.Fatal("run migrations", zap.Error(err))
	}

	logger.Info("migrations complete", zap.Int("count", len(applied)), zap.String("direction", direction))
}
