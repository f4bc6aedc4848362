package outbound

import (
	"context"

	"github.com/archon-research/vbk-watch/internal/domain/entity"
)

// FaucetClient requests test coins for an address.
type FaucetClient interface {
	GetCoins(ctx context.Context, address string) (*entity.FaucetResponse, error)
}
