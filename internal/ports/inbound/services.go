// Package inbound contains the primary/inbound ports.
// These interfaces define the use cases that the application exposes.
package inbound

import (
	"context"
	"errors"

	"github.com/archon-research/vbk-watch/internal/domain/entity"
)

var (
	// ErrInvalidHash is returned when a lookup is requested for a malformed hash.
	ErrInvalidHash = errors.New("invalid VeriBlock hash")

	// ErrAnchorNotFound is returned when NodeCore reports no Bitcoin block for a hash.
	ErrAnchorNotFound = errors.New("no bitcoin block known at VeriBlock block")

	// ErrHistoryUnavailable is returned by ListRecentAnchors when no repository is configured.
	ErrHistoryUnavailable = errors.New("anchor history is not configured")
)

// AnchorService exposes anchor lookups to inbound adapters (HTTP, CLI).
type AnchorService interface {
	// LookupAnchor returns the last Bitcoin block known at the given VeriBlock block.
	LookupAnchor(ctx context.Context, vbkHash string) (*entity.Anchor, error)

	// ListRecentAnchors returns up to limit recorded anchors, newest first.
	ListRecentAnchors(ctx context.Context, limit int) ([]entity.Anchor, error)

	// Ping checks that NodeCore is reachable.
	Ping(ctx context.Context) error
}

// HealthChecker defines the interface for services that can report readiness and liveness.
//
// Implementations:
//   - WatcherService: ready after the first tip is processed, healthy while tips keep arriving
type HealthChecker interface {
	// IsReady returns true when the service is ready to handle traffic.
	IsReady() bool

	// IsHealthy returns true when the service is operating normally.
	IsHealthy() bool
}
