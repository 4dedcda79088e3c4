package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/manifest-sync/internal/config"
)

// New creates the Store selected by cfg, traced when WithTracer is given.
// It does not call Initialize.
func New(ctx context.Context, cfg *config.StorageConfig, opts ...Option) (Store, error) {
	tracer := newOptions(opts).tracer

	switch cfg.Type {
	case config.StorageTypeFile, "":
		path := config.DefaultStorageFilePath
		if cfg.File != nil && cfg.File.Path != "" {
			path = cfg.File.Path
		}
		slog.Info("Using file version store", "path", path)
		return NewTracingStore(NewFileStore(path, opts...), tracer), nil
	case config.StorageTypeDatabase:
		if cfg.Database == nil {
			return nil, fmt.Errorf("database configuration is required")
		}
		connString, err := cfg.Database.GetConnectionString()
		if err != nil {
			return nil, fmt.Errorf("failed to build database connection string: %w", err)
		}
		pool, err := newPool(ctx, connString, cfg.Database)
		if err != nil {
			return nil, err
		}
		slog.Info("Using database version store",
			"host", cfg.Database.Host,
			"database", cfg.Database.Database)
		return NewTracingStore(NewPostgresStore(pool, connString, opts...), tracer, dbSystemPostgres), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func newPool(ctx context.Context, connString string, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database configuration: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = cfg.MaxOpenConns
	}
	if lifetime := time.Duration(cfg.ConnMaxLifetime); lifetime > 0 {
		poolCfg.MaxConnLifetime = lifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	return pool, nil
}
