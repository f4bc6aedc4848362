package outbound

import (
	"context"
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// EventTypeAnchor is published after an anchor lookup completes.
	EventTypeAnchor EventType = "anchor"
)

// AnchorEvent is published when a new anchor has been observed and stored.
type AnchorEvent struct {
	// VbkHash is the VeriBlock block the lookup was made at.
	VbkHash string `json:"vbkHash"`

	// VbkHeight is the VeriBlock height, when known (0 for ad-hoc lookups).
	VbkHeight int64 `json:"vbkHeight,omitempty"`

	// BtcHash is the last Bitcoin block known at VbkHash.
	BtcHash string `json:"btcHash"`

	// BtcHeight is the height of BtcHash.
	BtcHeight int `json:"btcHeight"`

	// ObservedAt is when the lookup was made.
	ObservedAt time.Time `json:"observedAt"`
}

func (e AnchorEvent) EventType() EventType { return EventTypeAnchor }

// EventSink publishes anchor events to downstream consumers.
type EventSink interface {
	// Publish sends an event. Implementations may retry internally.
	Publish(ctx context.Context, event AnchorEvent) error

	// Close releases resources held by the sink.
	Close() error
}
