package outbound

import (
	"context"

	"github.com/archon-research/vbk-watch/internal/domain/entity"
)

// AnchorCache caches anchor lookups keyed by VeriBlock block hash.
type AnchorCache interface {
	// GetAnchor returns the cached anchor.
	// Returns nil, nil if the hash is not in cache.
	GetAnchor(ctx context.Context, vbkHash string) (*entity.Anchor, error)

	// SetAnchor stores an anchor.
	SetAnchor(ctx context.Context, anchor *entity.Anchor) error

	// DeleteAnchor removes a cached anchor.
	DeleteAnchor(ctx context.Context, vbkHash string) error

	// Close closes the cache connection.
	Close() error
}
