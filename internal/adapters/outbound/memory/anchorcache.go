// anchorcache.go provides an in-memory implementation of AnchorCache.
//
// All operations are thread-safe. Data is lost on process restart.
// For production use, use the Redis adapter.
package memory

import (
	"context"
	"sync"

	"github.com/archon-research/vbk-watch/internal/domain/entity"
	"github.com/archon-research/vbk-watch/internal/ports/outbound"
)

// Compile-time check that AnchorCache implements outbound.AnchorCache
var _ outbound.AnchorCache = (*AnchorCache)(nil)

// AnchorCache is an in-memory implementation of the AnchorCache port.
type AnchorCache struct {
	mu      sync.RWMutex
	anchors map[string]entity.Anchor
	closed  bool
}

// NewAnchorCache creates a new in-memory anchor cache.
func NewAnchorCache() *AnchorCache {
	return &AnchorCache{
		anchors: make(map[string]entity.Anchor),
	}
}

// GetAnchor returns a copy of the cached anchor, or nil if absent.
func (c *AnchorCache) GetAnchor(ctx context.Context, vbkHash string) (*entity.Anchor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	anchor, ok := c.anchors[vbkHash]
	if !ok {
		return nil, nil
	}
	return &anchor, nil
}

// SetAnchor stores a copy of the anchor.
func (c *AnchorCache) SetAnchor(ctx context.Context, anchor *entity.Anchor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchors[anchor.VbkHash] = *anchor
	return nil
}

// DeleteAnchor removes a cached anchor.
func (c *AnchorCache) DeleteAnchor(ctx context.Context, vbkHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.anchors, vbkHash)
	return nil
}

// Close marks the cache as closed.
func (c *AnchorCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Len returns the number of cached anchors.
func (c *AnchorCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.anchors)
}
