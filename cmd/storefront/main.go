package main

import (
	"context"
	"log/slog"
	"os"

	"seafood-storefront/internal/app"
	"seafood-storefront/internal/config"
	"seafood-storefront/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.New(os.Stdout, cfg.LogLevel)

	application, err := app.New(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to initialize agent", "error", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("agent run failed", "error", err)
		os.Exit(1)
	}
}
