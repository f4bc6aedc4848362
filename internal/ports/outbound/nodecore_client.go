// Package outbound defines the outbound port interfaces.
package outbound

import (
	"context"
	"errors"

	"github.com/archon-research/vbk-watch/internal/domain/entity"
)

// ErrNoResult is matched by client errors for replies that carry no data, such
// as a null result for a block the node does not know.
var ErrNoResult = errors.New("no result")

// NodeCoreClient is the NodeCore HTTP JSON-RPC API.
// Implementations return the node's own error (RPC error, transport error) to the caller;
// they do not translate a failed lookup into an empty result.
type NodeCoreClient interface {
	// GetInfo returns general node information including the current tip.
	GetInfo(ctx context.Context) (*entity.VbkInfo, error)

	// GetStateInfo returns the node's sync, network and wallet state.
	GetStateInfo(ctx context.Context) (*entity.StateInfo, error)

	// GetLastBlock returns the header of the node's current best VeriBlock block.
	GetLastBlock(ctx context.Context) (*entity.BlockHeaderContainer, error)

	// GetLastBitcoinBlockAtVeriBlockBlock returns the last Bitcoin block the node knew
	// about when the given VeriBlock block was current.
	GetLastBitcoinBlockAtVeriBlockBlock(ctx context.Context, vbkHash string) (*entity.BtcBlockData, error)

	// GetNewAddress asks the wallet for count new addresses.
	GetNewAddress(ctx context.Context, count int) (*entity.GetNewAddressReply, error)

	// GetBlocksByHeight fetches blocks at the given heights.
	GetBlocksByHeight(ctx context.Context, searchLength int, heights []int) (*entity.GetBlocksReply, error)

	// GetBlocksByHash fetches blocks by hash.
	GetBlocksByHash(ctx context.Context, searchLength int, hashes []string) (*entity.GetBlocksReply, error)

	// GetTransaction looks up a single transaction by id.
	GetTransaction(ctx context.Context, txID string) (*entity.GetTransactionsReply, error)

	// SendCoins sends amounts from sourceAddress.
	SendCoins(ctx context.Context, sourceAddress string, amounts []entity.Output) (*entity.SendCoinsReply, error)

	// GetPendingTransactions lists transactions in the node's mempool.
	GetPendingTransactions(ctx context.Context) (*entity.GetPendingTransactionsReply, error)
}
