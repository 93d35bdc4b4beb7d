package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"socialchat-backend/pkg/config"
	"socialchat-backend/pkg/logger"
)

// PoolConfig contains connection pool limits
type PoolConfig struct {
	MaxConns          int32
	MinConns          int32
	ConnMaxLifetime   time.Duration
	ConnMaxIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// DefaultPoolConfig returns the pool limits used when none are configured
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxConns:          25,
		MinConns:          5,
		ConnMaxLifetime:   time.Hour,
		ConnMaxIdleTime:   5 * time.Minute,
		HealthCheckPeriod: 30 * time.Second,
	}
}

// DB wraps the pgxpool.Pool used by the cockroach repositories
type DB struct {
	Pool *pgxpool.Pool
}

// ConnString builds a postgres URL for CockroachDB from config
func ConnString(cfg *config.DatabaseConfig) string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
		cfg.SSLMode,
	)
}

// NewDB creates a connection pool and verifies it with a ping
func NewDB(ctx context.Context, cfg *config.DatabaseConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(ConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	limits := DefaultPoolConfig()
	if cfg.MaxConns > 0 {
		limits.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		limits.MinConns = int32(cfg.MinConns)
	}

	poolConfig.MaxConns = limits.MaxConns
	poolConfig.MinConns = limits.MinConns
	poolConfig.MaxConnLifetime = limits.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = limits.ConnMaxIdleTime
	poolConfig.HealthCheckPeriod = limits.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Ping checks the pool for the health endpoint
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close closes the database connection pool
func (db *DB) Close() {
	db.Pool.Close()
	logger.Log.Info("Database connection pool closed")
}
