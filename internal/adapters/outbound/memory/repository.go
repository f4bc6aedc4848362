// Package memory provides in-memory implementations of the outbound ports.
// Useful for testing and development.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/archon-research/vbk-watch/internal/domain/entity"
	"github.com/archon-research/vbk-watch/internal/ports/outbound"
)

// Compile-time check that AnchorRepository implements outbound.AnchorRepository
var _ outbound.AnchorRepository = (*AnchorRepository)(nil)

// AnchorRepository is an in-memory implementation of the AnchorRepository port.
type AnchorRepository struct {
	mu      sync.RWMutex
	anchors map[string]entity.Anchor
}

// NewAnchorRepository creates a new in-memory repository.
func NewAnchorRepository() *AnchorRepository {
	return &AnchorRepository{
		anchors: make(map[string]entity.Anchor),
	}
}

// SaveAnchor inserts or replaces the anchor for its VeriBlock hash.
func (r *AnchorRepository) SaveAnchor(ctx context.Context, anchor *entity.Anchor) error {
	if anchor == nil {
		return errors.New("anchor is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.anchors[anchor.VbkHash] = *anchor
	return nil
}

// GetAnchor returns the stored anchor, or nil if none exists.
func (r *AnchorRepository) GetAnchor(ctx context.Context, vbkHash string) (*entity.Anchor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	anchor, ok := r.anchors[vbkHash]
	if !ok {
		return nil, nil
	}
	return &anchor, nil
}

// ListRecent returns up to limit anchors, newest first.
func (r *AnchorRepository) ListRecent(ctx context.Context, limit int) ([]entity.Anchor, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	r.mu.RLock()
	all := make([]entity.Anchor, 0, len(r.anchors))
	for _, a := range r.anchors {
		all = append(all, a)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].ObservedAt.Equal(all[j].ObservedAt) {
			return all[i].VbkHash < all[j].VbkHash
		}
		return all[i].ObservedAt.After(all[j].ObservedAt)
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
