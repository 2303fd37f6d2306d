package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"seafood-storefront/internal/config"
	"seafood-storefront/internal/database"
	"seafood-storefront/internal/kvstore"
)

type openedStore struct {
	store  kvstore.Store
	health func(ctx context.Context) error
	close  func()
}

func openStore(ctx context.Context, cfg *config.Config) (*openedStore, error) {
	opened, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.StoreEncryptionKey != "" {
		sealed, err := kvstore.NewSealed(ctx, opened.store, cfg.StoreEncryptionKey)
		if err != nil {
			opened.close()
			return nil, fmt.Errorf("seal session store: %w", err)
		}
		opened.store = sealed
		slog.Info("session store values are sealed")
	}
	return opened, nil
}

func openBackend(ctx context.Context, cfg *config.Config) (*openedStore, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return &openedStore{store: kvstore.NewMemory(), close: func() {}}, nil

	case config.DriverFile:
		if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o700); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		store, err := kvstore.NewFile(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		return &openedStore{store: store, close: func() {}}, nil

	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o700); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		store, err := kvstore.NewSQLite(ctx, cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return &openedStore{store: store, close: func() { _ = store.Close() }}, nil

	case config.DriverPostgres:
		slog.Info("connecting to PostgreSQL")
		db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ensure database schema: %w", err)
		}
		slog.Info("database ready")
		return &openedStore{
			store:  kvstore.NewPostgres(db.Pool, cfg.StoreNamespace),
			health: db.Health,
			close:  db.Close,
		}, nil

	case config.DriverRedis:
		store, err := kvstore.NewRedis(ctx, kvstore.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.StoreNamespace + ":",
		})
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		return &openedStore{store: store, close: func() { _ = store.Close() }}, nil
	}

	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
