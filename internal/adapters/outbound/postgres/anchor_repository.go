// anchor_repository.go provides a PostgreSQL implementation of AnchorRepository.
//
// Anchors live in the vbk_anchors table created by db/migrations. Saves are
// upserts keyed by VeriBlock hash, so re-observing a block refreshes its row.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/vbk-watch/internal/domain/entity"
	"github.com/archon-research/vbk-watch/internal/ports/outbound"
)

// Compile-time check that AnchorRepository implements outbound.AnchorRepository
var _ outbound.AnchorRepository = (*AnchorRepository)(nil)

const (
	upsertAnchorSQL = `
		INSERT INTO vbk_anchors (vbk_hash, btc_hash, btc_height, btc_header, observed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (vbk_hash) DO UPDATE SET
			btc_hash    = EXCLUDED.btc_hash,
			btc_height  = EXCLUDED.btc_height,
			btc_header  = EXCLUDED.btc_header,
			observed_at = EXCLUDED.observed_at`

	selectAnchorSQL = `
		SELECT vbk_hash, btc_hash, btc_height, btc_header, observed_at
		FROM vbk_anchors
		WHERE vbk_hash = $1`

	listRecentAnchorsSQL = `
		SELECT vbk_hash, btc_hash, btc_height, btc_header, observed_at
		FROM vbk_anchors
		ORDER BY observed_at DESC, vbk_hash ASC
		LIMIT $1`
)

// AnchorRepository is a PostgreSQL implementation of the outbound.AnchorRepository port.
type AnchorRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewAnchorRepository creates a new PostgreSQL anchor repository.
func NewAnchorRepository(pool *pgxpool.Pool, logger *slog.Logger) (*AnchorRepository, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnchorRepository{pool: pool, logger: logger.With("component", "anchor-repository")}, nil
}

// SaveAnchor upserts an anchor.
func (r *AnchorRepository) SaveAnchor(ctx context.Context, anchor *entity.Anchor) error {
	if err := validateAnchor(anchor); err != nil {
		return err
	}

	_, err := r.pool.Exec(ctx, upsertAnchorSQL,
		anchor.VbkHash,
		anchor.BtcHash,
		anchor.BtcHeight,
		anchor.BtcHeader,
		anchor.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save anchor %s: %w", anchor.VbkHash, err)
	}
	return nil
}

// GetAnchor returns the stored anchor, or nil if none exists.
func (r *AnchorRepository) GetAnchor(ctx context.Context, vbkHash string) (*entity.Anchor, error) {
	row := r.pool.QueryRow(ctx, selectAnchorSQL, vbkHash)
	anchor, err := scanAnchor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get anchor %s: %w", vbkHash, err)
	}
	return anchor, nil
}

// ListRecent returns up to limit anchors, newest first.
func (r *AnchorRepository) ListRecent(ctx context.Context, limit int) ([]entity.Anchor, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}

	rows, err := r.pool.Query(ctx, listRecentAnchorsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list anchors: %w", err)
	}
	defer rows.Close()

	var anchors []entity.Anchor
	for rows.Next() {
		anchor, err := scanAnchor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan anchor: %w", err)
		}
		anchors = append(anchors, *anchor)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate anchors: %w", err)
	}
	return anchors, nil
}

func scanAnchor(row pgx.Row) (*entity.Anchor, error) {
	var a entity.Anchor
	if err := row.Scan(&a.VbkHash, &a.BtcHash, &a.BtcHeight, &a.BtcHeader, &a.ObservedAt); err != nil {
		return nil, err
	}
	a.ObservedAt = a.ObservedAt.UTC()
	return &a, nil
}

func validateAnchor(anchor *entity.Anchor) error {
	switch {
	case anchor == nil:
		return errors.New("anchor is nil")
	case anchor.VbkHash == "":
		return errors.New("anchor vbk hash is required")
	case anchor.BtcHash == "":
		return errors.New("anchor btc hash is required")
	case anchor.ObservedAt.IsZero():
		return errors.New("anchor observed time is required")
	}
	return nil
}
