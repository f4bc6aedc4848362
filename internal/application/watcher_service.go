package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/archon-research/vbk-watch/internal/domain/entity"
	"github.com/archon-research/vbk-watch/internal/pkg/partition"
	"github.com/archon-research/vbk-watch/internal/ports/inbound"
	"github.com/archon-research/vbk-watch/internal/ports/outbound"
)

var _ inbound.HealthChecker = (*WatcherService)(nil)

// WatcherConfig holds configuration for the WatcherService.
type WatcherConfig struct {
	// PollInterval is the delay between getlastblock polls.
	PollInterval time.Duration

	// HealthTimeout is how long a successful poll keeps the service healthy.
	HealthTimeout time.Duration

	// SearchLength bounds how far back getblocks searches for the tip hash.
	SearchLength int

	// ArchiveBucket is the bucket raw blocks are written to. Empty disables archiving.
	ArchiveBucket string

	// Metrics is optional.
	Metrics outbound.MetricsRecorder

	// Logger is the structured logger.
	Logger *slog.Logger
}

// WatcherConfigDefaults returns default configuration.
func WatcherConfigDefaults() WatcherConfig {
	return WatcherConfig{
		PollInterval:  10 * time.Second,
		HealthTimeout: 5 * time.Minute,
		SearchLength:  10,
		Logger:        slog.Default(),
	}
}

// WatcherService follows the VeriBlock tip and records the Bitcoin anchor of
// every new tip block.
type WatcherService struct {
	config WatcherConfig

	client  outbound.NodeCoreClient
	anchors *AnchorService
	archive outbound.BlockArchive

	mu         sync.RWMutex
	lastHash   string
	lastHeight int64
	lastPollAt time.Time
	ready      bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewWatcherService creates a new WatcherService. archive may be nil.
func NewWatcherService(
	config WatcherConfig,
	client outbound.NodeCoreClient,
	anchors *AnchorService,
	archive outbound.BlockArchive,
) (*WatcherService, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if anchors == nil {
		return nil, fmt.Errorf("anchors is required")
	}
	if archive != nil && config.ArchiveBucket == "" {
		return nil, fmt.Errorf("archive bucket is required when an archive is configured")
	}

	defaults := WatcherConfigDefaults()
	if config.PollInterval == 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.HealthTimeout == 0 {
		config.HealthTimeout = defaults.HealthTimeout
	}
	if config.SearchLength == 0 {
		config.SearchLength = defaults.SearchLength
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &WatcherService{
		config:  config,
		client:  client,
		anchors: anchors,
		archive: archive,
		logger:  config.Logger.With("component", "watcher-service"),
	}, nil
}

// Start begins polling NodeCore for new tips.
func (w *WatcherService) Start(ctx context.Context) error {
	if w.cancel != nil {
		return errors.New("watcher already started")
	}
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.run()

	w.logger.Info("watcher service started", "pollInterval", w.config.PollInterval)
	return nil
}

// Stop stops polling and waits for the loop to exit.
func (w *WatcherService) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	return nil
}

// IsReady reports whether at least one tip has been processed.
func (w *WatcherService) IsReady() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ready
}

// IsHealthy reports whether NodeCore answered a poll within HealthTimeout.
func (w *WatcherService) IsHealthy() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ready && time.Since(w.lastPollAt) < w.config.HealthTimeout
}

// Tip returns the last processed tip.
func (w *WatcherService) Tip() (hash string, height int64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastHash, w.lastHeight
}

func (w *WatcherService) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.poll(w.ctx); err != nil && w.ctx.Err() == nil {
			w.logger.Warn("failed to process tip", "error", err)
		}
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll fetches the tip and processes it if it changed.
func (w *WatcherService) poll(ctx context.Context) error {
	container, err := w.client.GetLastBlock(ctx)
	if err != nil {
		return fmt.Errorf("getlastblock failed: %w", err)
	}
	hash, err := container.Hash()
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.lastPollAt = time.Now()
	unchanged := w.ready && hash == w.lastHash
	w.mu.Unlock()
	if unchanged {
		return nil
	}

	return w.processTip(ctx, hash)
}

// processTip archives the tip block and resolves its anchor.
func (w *WatcherService) processTip(ctx context.Context, hash string) error {
	reply, err := w.client.GetBlocksByHash(ctx, w.config.SearchLength, []string{hash})
	if err != nil {
		return fmt.Errorf("getblocks failed for %s: %w", hash, err)
	}
	if len(reply.Blocks) == 0 {
		return fmt.Errorf("tip block %s not returned by getblocks", hash)
	}
	block := reply.Blocks[0]
	height := int64(block.Number)

	if w.archive != nil {
		if err := w.archiveBlock(ctx, &block); err != nil {
			w.logger.Warn("failed to archive block", "height", height, "hash", hash, "error", err)
		}
	}

	anchor, err := w.anchors.lookup(ctx, hash, height)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.lastHash = hash
	w.lastHeight = height
	w.ready = true
	w.mu.Unlock()

	if w.config.Metrics != nil {
		w.config.Metrics.RecordTip(ctx, height)
	}

	w.logger.Info("new tip",
		"height", height,
		"hash", hash,
		"btcHash", anchor.BtcHash,
		"btcHeight", anchor.BtcHeight)
	return nil
}

// archiveBlock writes the block JSON under its partition key unless it already exists.
func (w *WatcherService) archiveBlock(ctx context.Context, block *entity.Block) error {
	key := partition.BlockKey(int64(block.Number), block.Hash)

	exists, err := w.archive.FileExists(ctx, w.config.ArchiveBucket, key)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", key, err)
	}
	if exists {
		return nil
	}

	data, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("failed to marshal block: %w", err)
	}
	return w.archive.WriteFile(ctx, w.config.ArchiveBucket, key, bytes.NewReader(data), true)
}
