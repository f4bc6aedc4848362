package outbound

import (
	"context"
	"time"
)

// MetricsRecorder provides an interface for recording application metrics
// without depending on a specific telemetry implementation.
type MetricsRecorder interface {
	// RecordLookup records one anchor lookup. status is "ok", "cached" or "error".
	RecordLookup(ctx context.Context, status string, duration time.Duration)

	// RecordTip records the VeriBlock tip height seen by the watcher.
	RecordTip(ctx context.Context, height int64)
}
