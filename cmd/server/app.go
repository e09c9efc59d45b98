package main

import (
	"context"
	"fmt"

	"github.com/soaringjerry/whenwhy/internal/api"
	"github.com/soaringjerry/whenwhy/internal/config"
	"github.com/soaringjerry/whenwhy/internal/db"
	"github.com/soaringjerry/whenwhy/internal/logger"
	"github.com/soaringjerry/whenwhy/internal/openai"
	"github.com/soaringjerry/whenwhy/internal/services"
)

// appContext is bound to every command's Run method.
type appContext struct {
	cfg *config.Config
	log *logger.Logger
}

func (a *appContext) openStore(ctx context.Context) (services.SessionStore, error) {
	switch a.cfg.Storage.Driver {
	case "memory":
		a.log.Warn("using in-memory storage; data is lost on restart")
		return api.NewMemoryStore(), nil
	case "sqlite":
		sqlDB, err := db.Open(a.cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		applied, err := db.RunMigrations(ctx, sqlDB, a.cfg.Storage.MigrationsDir)
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		if len(applied) > 0 {
			a.log.Info("migrations applied", "files", applied)
		}
		st, err := db.NewSQLiteStore(sqlDB)
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		a.log.Info("sqlite storage ready", "path", a.cfg.Storage.Path)
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", a.cfg.Storage.Driver)
	}
}

func (a *appContext) suggestionProvider() services.SuggestionProvider {
	ai := a.cfg.AI
	if ai.Provider == "fixed" {
		return services.NewFixedProvider(services.FallbackSuggestions...)
	}
	if ai.APIKey == "" {
		a.log.Warn("ai.api_key is empty; participants will see the fallback suggestions")
	}
	return openai.New(ai.APIKey,
		openai.WithBaseURL(ai.BaseURL),
		openai.WithModel(ai.Model),
		openai.WithTimeout(ai.Timeout),
	)
}
