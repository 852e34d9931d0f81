package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new PostgreSQL connection pool sized to poolSize.
func New(ctx context.Context, databaseURL string, poolSize int) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if poolSize > 0 {
		config.MaxConns = int32(poolSize)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	db.Pool.Close()
}

// Ping verifies the pool can still reach PostgreSQL, for use by
// server.HealthChecker.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// PoolStat is a point-in-time snapshot of the connection pool, used by
// internal/metrics to populate the db pool capacity/in-use/available/waiting
// gauges.
type PoolStat struct {
	Capacity  int
	InUse     int
	Available int
	Waiting   int
}

// Stat returns the current pool statistics.
func (db *DB) Stat() PoolStat {
	s := db.Pool.Stat()
	return PoolStat{
		Capacity:  int(s.MaxConns()),
		InUse:     int(s.AcquiredConns()),
		Available: int(s.IdleConns()),
		Waiting:   int(s.EmptyAcquireCount()),
	}
}
