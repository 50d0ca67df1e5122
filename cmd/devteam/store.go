package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/devteam/config"
	"github.com/dshills/devteam/store"
	"github.com/dshills/devteam/team"
)

// openStore returns the configured step store and a function releasing it.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.Store[team.State], func() error, error) {
	noop := func() error { return nil }
	switch cfg.Driver {
	case config.DriverMemory, "":
		logger.Debug("using in-memory store; runs cannot be resumed by a later process")
		return store.NewMemStore[team.State](), noop, nil
	case config.DriverSQLite:
		s, err := store.NewSQLiteStore[team.State](cfg.Path)
		if err != nil {
			return nil, noop, err
		}
		logger.Debug("using sqlite store", zap.String("path", s.Path()))
		return s, s.Close, nil
	case config.DriverMySQL:
		s, err := store.NewMySQLStore[team.State](ctx, cfg.DSN)
		if err != nil {
			return nil, noop, err
		}
		logger.Debug("using mysql store", zap.Int("open_connections", s.Stats().OpenConnections))
		return s, s.Close, nil
	case config.DriverRedis:
		s, err := store.NewRedisStore[team.State](ctx, store.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.RedisTTL,
		})
		if err != nil {
			return nil, noop, err
		}
		logger.Debug("using redis store", zap.String("addr", cfg.RedisAddr))
		return s, s.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
