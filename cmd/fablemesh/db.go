package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"fablemesh/internal/config"
	"fablemesh/internal/embedding"
	"fablemesh/internal/store"
	"fablemesh/internal/store/postgres"
	"fablemesh/internal/store/sqlite"
)

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	var (
		db  store.Store
		err error
	)
	if strings.HasPrefix(cfg.Database.DSN, "sqlite://") {
		db, err = sqlite.New(ctx, cfg.Database.DSN)
	} else {
		db, err = postgres.New(ctx, cfg.Database.DSN)
	}
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return db, nil
}

func newEmbedder(cfg *config.Config) (embedding.Provider, error) {
	switch cfg.Embedding.Provider {
	case "ollama":
		return embedding.NewOllamaProvider(cfg.Embedding.Model, cfg.Embedding.BaseURL)
	case "hash":
		return &embedding.HashProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

func newLogger(cfg *config.Config) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	log := logrus.New()
	log.SetLevel(level)
	return log, nil
}
