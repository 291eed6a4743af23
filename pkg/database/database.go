// Package database provides the Postgres/pgvector storage layer for
// the retrieval service: connection management, vector schema
// bootstrap, and the owner-scoped embedding store.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"

	"github.com/chatmimic/retrieval/pkg/observability"
)

// Config holds database connection configuration
type Config struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// Connect opens the database and waits for it to become reachable.
// The exponential backoff here covers startup ordering only; request
// paths never retry.
func Connect(ctx context.Context, cfg Config, logger observability.Logger) (*sqlx.DB, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}

	db, err := sqlx.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	operation := func() error {
		if err := db.PingContext(connectCtx); err != nil {
			logger.Warn("Database not reachable yet", map[string]interface{}{
				"error": err.Error(),
			})
			return err
		}
		return nil
	}

	policy := backoff.WithContext(backoff.NewExponentialBackOff(), connectCtx)
	if err := backoff.Retry(operation, policy); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database unreachable after %s: %w", connectTimeout, err)
	}

	logger.Info("Database connection established", map[string]interface{}{
		"driver":         driver,
		"max_open_conns": cfg.MaxOpenConns,
	})

	return db, nil
}
