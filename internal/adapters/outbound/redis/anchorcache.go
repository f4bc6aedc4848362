// Package redis provides a Redis implementation of the AnchorCache port.
//
// Anchors are stored as JSON under prefix:anchor:<vbkHash> with a configurable
// TTL for automatic expiration.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/archon-research/vbk-watch/internal/domain/entity"
	"github.com/archon-research/vbk-watch/internal/ports/outbound"
)

// Compile-time check that AnchorCache implements outbound.AnchorCache
var _ outbound.AnchorCache = (*AnchorCache)(nil)

// Config holds Redis cache configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// TTL is how long cached anchors live before expiring
	TTL time.Duration
	// KeyPrefix is prepended to all cache keys
	KeyPrefix string
}

// ConfigDefaults returns sensible defaults for Redis cache configuration.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		Password:  "",
		DB:        0,
		TTL:       24 * time.Hour,
		KeyPrefix: "vbk",
	}
}

// AnchorCache is a Redis implementation of the outbound.AnchorCache port.
type AnchorCache struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

// NewAnchorCache creates a new Redis anchor cache.
func NewAnchorCache(cfg Config, logger *slog.Logger) (*AnchorCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	defaults := ConfigDefaults()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaults.KeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "redis-cache")

	return &AnchorCache{
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger,
	}, nil
}

// Ping checks the Redis connection.
func (c *AnchorCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *AnchorCache) Close() error {
	return c.client.Close()
}

// key generates a cache key in the format prefix:anchor:vbkHash
func (c *AnchorCache) key(vbkHash string) string {
	return fmt.Sprintf("%s:anchor:%s", c.keyPrefix, vbkHash)
}

// SetAnchor caches an anchor.
func (c *AnchorCache) SetAnchor(ctx context.Context, anchor *entity.Anchor) error {
	if anchor == nil {
		return errors.New("anchor is nil")
	}
	data, err := json.Marshal(anchor)
	if err != nil {
		return fmt.Errorf("failed to marshal anchor: %w", err)
	}
	if err := c.client.Set(ctx, c.key(anchor.VbkHash), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache anchor: %w", err)
	}
	return nil
}

// GetAnchor retrieves a cached anchor. Returns nil, nil on a miss.
func (c *AnchorCache) GetAnchor(ctx context.Context, vbkHash string) (*entity.Anchor, error) {
	data, err := c.client.Get(ctx, c.key(vbkHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get anchor: %w", err)
	}

	var anchor entity.Anchor
	if err := json.Unmarshal(data, &anchor); err != nil {
		// A corrupt entry is treated as a miss and dropped.
		c.logger.Warn("discarding undecodable cache entry", "vbkHash", vbkHash, "error", err)
		if delErr := c.client.Del(ctx, c.key(vbkHash)).Err(); delErr != nil {
			c.logger.Warn("failed to delete undecodable cache entry", "vbkHash", vbkHash, "error", delErr)
		}
		return nil, nil
	}
	return &anchor, nil
}

// DeleteAnchor removes a cached anchor.
func (c *AnchorCache) DeleteAnchor(ctx context.Context, vbkHash string) error {
	if err := c.client.Del(ctx, c.key(vbkHash)).Err(); err != nil {
		return fmt.Errorf("failed to delete anchor: %w", err)
	}
	return nil
}
