// Package postgres stores resolved anchors in PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig sizes the connection pool behind the anchor store. Zero fields
// keep pgxpool's own value.
type PoolConfig struct {
	URL string

	// MaxConns bounds concurrent anchor writes from the watcher and the
	// lookup worker plus reads from the HTTP API.
	MaxConns int32
	MinConns int32

	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultPoolConfig suits a single vbk-watch process.
func DefaultPoolConfig(url string) PoolConfig {
	return PoolConfig{
		URL:             url,
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: time.Minute,
	}
}

func (c PoolConfig) applyTo(pc *pgxpool.Config) {
	if c.MaxConns > 0 {
		pc.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 {
		pc.MinConns = c.MinConns
	}
	if c.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = c.MaxConnLifetime
	}
	if c.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = c.MaxConnIdleTime
	}
}

// OpenPool connects to the anchor store and pings it once. The caller closes
// the pool.
func OpenPool(ctx context.Context, cfg PoolConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse anchor store url: %w", err)
	}
	cfg.applyTo(pc)

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open anchor store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("anchor store unreachable at %s:%d: %w", pc.ConnConfig.Host, pc.ConnConfig.Port, err)
	}

	logger.Info("anchor store connected",
		"component", "anchor-store",
		"host", pc.ConnConfig.Host,
		"database", pc.ConnConfig.Database,
		"maxConns", pc.MaxConns)
	return pool, nil
}
