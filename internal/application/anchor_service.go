// Package application contains the use cases built on top of the outbound ports.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/archon-research/vbk-watch/internal/domain/entity"
	"github.com/archon-research/vbk-watch/internal/pkg/hexutil"
	"github.com/archon-research/vbk-watch/internal/ports/inbound"
	"github.com/archon-research/vbk-watch/internal/ports/outbound"
)

var _ inbound.AnchorService = (*AnchorService)(nil)

var (
	ErrInvalidHash    = inbound.ErrInvalidHash
	ErrAnchorNotFound = inbound.ErrAnchorNotFound
)

// Lookup statuses reported to the MetricsRecorder.
const (
	LookupStatusOK     = "ok"
	LookupStatusCached = "cached"
	LookupStatusError  = "error"
)

// AnchorServiceConfig holds configuration for the AnchorService.
type AnchorServiceConfig struct {
	// VerifyHeaders checks that the returned Bitcoin header hashes to the reported hash.
	VerifyHeaders bool

	// Metrics is optional.
	Metrics outbound.MetricsRecorder

	// Now is the clock used for ObservedAt.
	Now func() time.Time

	// Logger is the structured logger.
	Logger *slog.Logger
}

// AnchorServiceConfigDefaults returns default configuration.
func AnchorServiceConfigDefaults() AnchorServiceConfig {
	return AnchorServiceConfig{
		Now:    time.Now,
		Logger: slog.Default(),
	}
}

// AnchorService looks up the last Bitcoin block NodeCore knew about at a VeriBlock
// block and records the result. The cache, repository and sink are optional.
type AnchorService struct {
	config AnchorServiceConfig

	client outbound.NodeCoreClient
	cache  outbound.AnchorCache
	repo   outbound.AnchorRepository
	sink   outbound.EventSink

	logger *slog.Logger
}

// NewAnchorService creates a new AnchorService.
func NewAnchorService(
	config AnchorServiceConfig,
	client outbound.NodeCoreClient,
	cache outbound.AnchorCache,
	repo outbound.AnchorRepository,
	sink outbound.EventSink,
) (*AnchorService, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}

	defaults := AnchorServiceConfigDefaults()
	if config.Now == nil {
		config.Now = defaults.Now
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &AnchorService{
		config: config,
		client: client,
		cache:  cache,
		repo:   repo,
		sink:   sink,
		logger: config.Logger.With("component", "anchor-service"),
	}, nil
}

// LogLastBitcoinBlock looks up the last Bitcoin block known at the container's
// block and logs it. Errors from the lookup are returned as-is.
func (s *AnchorService) LogLastBitcoinBlock(ctx context.Context, container *entity.BlockHeaderContainer) error {
	hash, err := container.Hash()
	if err != nil {
		return err
	}

	btc, err := s.client.GetLastBitcoinBlockAtVeriBlockBlock(ctx, hash)
	if err != nil {
		return err
	}

	s.logger.Info("Last BTC block at last VBK block: "+btc.String(), "vbkHash", hash)
	return nil
}

// LookupAnchor returns the anchor for vbkHash, from cache when possible. The hash
// may be lower-case, 0x-prefixed or padded; it is canonicalised before use.
func (s *AnchorService) LookupAnchor(ctx context.Context, vbkHash string) (*entity.Anchor, error) {
	hash, err := hexutil.CanonicalVbkHash(vbkHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	return s.lookup(ctx, hash, 0)
}

// ListRecentAnchors returns up to limit stored anchors, newest first.
func (s *AnchorService) ListRecentAnchors(ctx context.Context, limit int) ([]entity.Anchor, error) {
	if s.repo == nil {
		return nil, inbound.ErrHistoryUnavailable
	}
	return s.repo.ListRecent(ctx, limit)
}

// Ping checks that NodeCore answers getinfo.
func (s *AnchorService) Ping(ctx context.Context) error {
	if _, err := s.client.GetInfo(ctx); err != nil {
		return fmt.Errorf("nodecore unreachable: %w", err)
	}
	return nil
}

// lookup resolves an anchor and records it. vbkHeight is 0 when unknown.
func (s *AnchorService) lookup(ctx context.Context, vbkHash string, vbkHeight int64) (*entity.Anchor, error) {
	start := time.Now()

	if s.cache != nil {
		cached, err := s.cache.GetAnchor(ctx, vbkHash)
		if err != nil {
			s.logger.Warn("anchor cache read failed", "vbkHash", vbkHash, "error", err)
		} else if cached != nil {
			s.recordLookup(ctx, LookupStatusCached, start)
			return cached, nil
		}
	}

	btc, err := s.client.GetLastBitcoinBlockAtVeriBlockBlock(ctx, vbkHash)
	if errors.Is(err, outbound.ErrNoResult) {
		s.recordLookup(ctx, LookupStatusError, start)
		return nil, fmt.Errorf("%w %s: %w", ErrAnchorNotFound, vbkHash, err)
	}
	if err != nil {
		s.recordLookup(ctx, LookupStatusError, start)
		return nil, fmt.Errorf("lookup of %s failed: %w", vbkHash, err)
	}
	if btc == nil {
		s.recordLookup(ctx, LookupStatusError, start)
		return nil, fmt.Errorf("%w %s", ErrAnchorNotFound, vbkHash)
	}
	if s.config.VerifyHeaders {
		if err := btc.VerifyHash(); err != nil {
			s.recordLookup(ctx, LookupStatusError, start)
			return nil, fmt.Errorf("bitcoin block %s failed verification: %w", btc.Hash, err)
		}
	}

	anchor, err := entity.NewAnchor(vbkHash, btc, s.config.Now())
	if err != nil {
		s.recordLookup(ctx, LookupStatusError, start)
		return nil, err
	}

	s.store(ctx, anchor, vbkHeight)
	s.recordLookup(ctx, LookupStatusOK, start)

	s.logger.Debug("anchor resolved",
		"vbkHash", vbkHash,
		"btcHash", anchor.BtcHash,
		"btcHeight", anchor.BtcHeight,
		"duration", time.Since(start))
	return anchor, nil
}

// store writes the anchor to the cache, repository and event sink. Failures are
// logged; the lookup itself already succeeded.
func (s *AnchorService) store(ctx context.Context, anchor *entity.Anchor, vbkHeight int64) {
	if s.cache != nil {
		if err := s.cache.SetAnchor(ctx, anchor); err != nil {
			s.logger.Warn("failed to cache anchor", "vbkHash", anchor.VbkHash, "error", err)
		}
	}
	if s.repo != nil {
		if err := s.repo.SaveAnchor(ctx, anchor); err != nil {
			s.logger.Error("failed to save anchor", "vbkHash", anchor.VbkHash, "error", err)
		}
	}
	if s.sink != nil {
		event := outbound.AnchorEvent{
			VbkHash:    anchor.VbkHash,
			VbkHeight:  vbkHeight,
			BtcHash:    anchor.BtcHash,
			BtcHeight:  anchor.BtcHeight,
			ObservedAt: anchor.ObservedAt,
		}
		if err := s.sink.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish anchor event", "vbkHash", anchor.VbkHash, "error", err)
		}
	}
}

func (s *AnchorService) recordLookup(ctx context.Context, status string, start time.Time) {
	if s.config.Metrics != nil {
		s.config.Metrics.RecordLookup(ctx, status, time.Since(start))
	}
}
