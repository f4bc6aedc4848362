package outbound

import (
	"context"

	"github.com/archon-research/vbk-watch/internal/domain/entity"
)

// AnchorRepository persists observed anchors.
type AnchorRepository interface {
	// SaveAnchor inserts or refreshes the anchor for its VeriBlock hash.
	SaveAnchor(ctx context.Context, anchor *entity.Anchor) error

	// GetAnchor returns the stored anchor, or nil, nil if none exists.
	GetAnchor(ctx context.Context, vbkHash string) (*entity.Anchor, error)

	// ListRecent returns up to limit anchors ordered by ObservedAt, newest first.
	ListRecent(ctx context.Context, limit int) ([]entity.Anchor, error)
}
