package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/archon-research/vbk-watch/internal/ports/outbound"
)

// ErrWaitTimeout is returned by WaitUntil when the predicate never held.
var ErrWaitTimeout = errors.New("waitUntil failed")

// SyncWaiterConfig holds the polling intervals used while waiting on NodeCore.
type SyncWaiterConfig struct {
	// ConnectionRetryInterval is the delay between getinfo attempts in CheckConnection.
	ConnectionRetryInterval time.Duration

	// SyncPollInterval is the delay between getstateinfo polls in CheckSyncStatus.
	// Download speed is computed per interval.
	SyncPollInterval time.Duration

	// SyncThreshold is the number of blocks behind (or ahead) at which the node
	// still counts as synchronizing.
	SyncThreshold int

	// BlockPollInterval is the delay between getinfo polls in WaitUntilBlock.
	BlockPollInterval time.Duration

	// Logger is the structured logger.
	Logger *slog.Logger
}

// SyncWaiterConfigDefaults returns default configuration.
func SyncWaiterConfigDefaults() SyncWaiterConfig {
	return SyncWaiterConfig{
		ConnectionRetryInterval: 10 * time.Second,
		SyncPollInterval:        5 * time.Second,
		SyncThreshold:           5,
		BlockPollInterval:       30 * time.Second,
		Logger:                  slog.Default(),
	}
}

// SyncWaiter blocks until NodeCore reaches a given state.
type SyncWaiter struct {
	config SyncWaiterConfig
	client outbound.NodeCoreClient
	logger *slog.Logger
}

// NewSyncWaiter creates a SyncWaiter.
func NewSyncWaiter(config SyncWaiterConfig, client outbound.NodeCoreClient) (*SyncWaiter, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}

	defaults := SyncWaiterConfigDefaults()
	if config.ConnectionRetryInterval == 0 {
		config.ConnectionRetryInterval = defaults.ConnectionRetryInterval
	}
	if config.SyncPollInterval == 0 {
		config.SyncPollInterval = defaults.SyncPollInterval
	}
	if config.SyncThreshold == 0 {
		config.SyncThreshold = defaults.SyncThreshold
	}
	if config.BlockPollInterval == 0 {
		config.BlockPollInterval = defaults.BlockPollInterval
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &SyncWaiter{
		config: config,
		client: client,
		logger: config.Logger.With("component", "sync-waiter"),
	}, nil
}

// CheckConnection polls getinfo until NodeCore answers.
func (w *SyncWaiter) CheckConnection(ctx context.Context) error {
	for {
		_, err := w.client.GetInfo(ctx)
		if err == nil {
			return nil
		}
		w.logger.Warn("NodeCore not available yet, trying again",
			"retryIn", w.config.ConnectionRetryInterval,
			"error", err)
		if err := sleep(ctx, w.config.ConnectionRetryInterval); err != nil {
			return err
		}
	}
}

// CheckSyncStatus polls getstateinfo until the local chain is within
// SyncThreshold blocks of the network.
func (w *SyncWaiter) CheckSyncStatus(ctx context.Context) error {
	var tracker syncTracker
	interval := w.config.SyncPollInterval

	for {
		state, err := w.client.GetStateInfo(ctx)
		if err != nil {
			w.logger.Warn("NodeCore not available, trying again", "retryIn", interval, "error", err)
			if err := sleep(ctx, interval); err != nil {
				return err
			}
			continue
		}

		behind := state.BlocksBehind()
		if abs(behind) < w.config.SyncThreshold {
			w.logger.Info("NodeCore is synchronized.. continuing.")
			return nil
		}

		attrs := []any{
			"blocksLeft", behind,
			"localHeight", state.LocalBlockchainHeight,
			"networkHeight", state.NetworkHeight,
		}
		if summary, ok := tracker.observe(behind, interval); ok {
			attrs = append(attrs,
				"downloadSpeed", fmt.Sprintf("%.2fBk/s", summary.speed),
				"remainingTime", summary.remaining)
		}
		w.logger.Warn("Waiting for NodeCore to synchronize", attrs...)

		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
}

// WaitUntilBlock polls getinfo until the tip is at least height.
func (w *SyncWaiter) WaitUntilBlock(ctx context.Context, height int) error {
	for {
		info, err := w.client.GetInfo(ctx)
		if err != nil {
			return fmt.Errorf("failed to get tip: %w", err)
		}
		tip := info.LastBlock.Number
		w.logger.Info("Current Tip", "tip", tip, "target", height)
		if tip >= height {
			return nil
		}
		if err := sleep(ctx, w.config.BlockPollInterval); err != nil {
			return err
		}
	}
}

// WaitOptions bounds WaitUntil. Zero Attempts means unlimited.
type WaitOptions struct {
	Attempts int
	Timeout  time.Duration
	Delay    time.Duration
}

// DefaultWaitOptions returns unlimited attempts, a 60s timeout and a 1s delay.
func DefaultWaitOptions() WaitOptions {
	return WaitOptions{Timeout: 60 * time.Second, Delay: time.Second}
}

// WaitUntil evaluates predicate until it returns true, the attempts run out or
// the timeout passes. A predicate error counts as false.
func WaitUntil(ctx context.Context, opts WaitOptions, predicate func(ctx context.Context) (bool, error)) error {
	defaults := DefaultWaitOptions()
	if opts.Timeout == 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.Delay == 0 {
		opts.Delay = defaults.Delay
	}
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = math.MaxInt
	}

	deadline := time.Now().Add(opts.Timeout)
	attempt := 0
	for attempt < attempts && time.Now().Before(deadline) {
		attempt++
		if ok, err := predicate(ctx); err == nil && ok {
			return nil
		}
		if err := sleep(ctx, opts.Delay); err != nil {
			return err
		}
	}

	if attempt >= attempts {
		return fmt.Errorf("%w! Predicate not true after %d attempts", ErrWaitTimeout, attempt)
	}
	return fmt.Errorf("%w! Predicate not true after %d ms", ErrWaitTimeout, opts.Timeout.Milliseconds())
}

// syncSummary is the download rate derived from two consecutive samples.
type syncSummary struct {
	speed     float64
	remaining string
}

// syncTracker smooths the sync speed across polls.
type syncTracker struct {
	previousBehind int
	previousSpeed  float64
}

// observe records a sample and returns a summary once a previous sample exists.
func (t *syncTracker) observe(behind int, interval time.Duration) (syncSummary, bool) {
	defer func() { t.previousBehind = behind }()
	if t.previousBehind <= 0 {
		return syncSummary{}, false
	}

	speed := float64(t.previousBehind-behind) / interval.Seconds()
	if t.previousSpeed > 0 {
		speed = (speed + t.previousSpeed) / 2.0
	}
	t.previousSpeed = speed

	return syncSummary{speed: speed, remaining: formatRemaining(float64(behind) / speed)}, true
}

// formatRemaining renders seconds as "Xm Ys" from a minute up, otherwise "Ns".
// A stalled or negative rate renders as "unknown".
func formatRemaining(seconds float64) string {
	if math.IsInf(seconds, 0) || math.IsNaN(seconds) || seconds < 0 {
		return "unknown"
	}
	s := int(math.Round(seconds))
	if s >= 60 {
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	}
	return fmt.Sprintf("%ds", s)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
