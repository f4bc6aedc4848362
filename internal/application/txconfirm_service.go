package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/archon-research/vbk-watch/internal/domain/entity"
	"github.com/archon-research/vbk-watch/internal/ports/outbound"
)

// TxConfirmSendConfig holds configuration for the send/confirm scenario.
type TxConfirmSendConfig struct {
	// TxCount is the number of transactions to send.
	TxCount int

	// Amount is the VBK amount of each transaction.
	Amount float64

	// SendInterval is the delay between two sends.
	SendInterval time.Duration

	// ConfirmationPollInterval is the delay between checks of the faucet transaction.
	ConfirmationPollInterval time.Duration

	// MinConfirmations is how many confirmations the faucet transaction needs.
	MinConfirmations int

	// ScanDepth is the number of blocks scanned from the starting tip.
	ScanDepth int

	// ScanConcurrency bounds parallel getblocks calls.
	ScanConcurrency int

	// OnSent is called after each successful send. Optional.
	OnSent func(sent, total int)

	// Logger is the structured logger.
	Logger *slog.Logger
}

// TxConfirmSendConfigDefaults returns default configuration.
func TxConfirmSendConfigDefaults() TxConfirmSendConfig {
	return TxConfirmSendConfig{
		TxCount:                  30,
		Amount:                   0.1,
		SendInterval:             2 * time.Second,
		ConfirmationPollInterval: 30 * time.Second,
		MinConfirmations:         1,
		ScanDepth:                6,
		ScanConcurrency:          3,
		Logger:                   slog.Default(),
	}
}

// TxConfirmSendReport is the outcome of one run.
type TxConfirmSendReport struct {
	Source      string
	Destination string
	FundingTxID string
	StartingTip int

	// Sent lists every created transaction in send order.
	Sent []string
	// Confirmed lists sent transactions found in the scanned blocks.
	Confirmed []string
	// Missing lists sent transactions not found in the scanned blocks.
	Missing []string
	// Stuck lists sent transactions still in the mempool.
	Stuck []string
}

// TxConfirmSendRunner funds a fresh address, sends a burst of transactions and
// reports which ones were mined within ScanDepth blocks.
type TxConfirmSendRunner struct {
	config TxConfirmSendConfig

	client outbound.NodeCoreClient
	faucet outbound.FaucetClient
	waiter *SyncWaiter

	logger *slog.Logger
}

// NewTxConfirmSendRunner creates a TxConfirmSendRunner.
func NewTxConfirmSendRunner(
	config TxConfirmSendConfig,
	client outbound.NodeCoreClient,
	faucet outbound.FaucetClient,
	waiter *SyncWaiter,
) (*TxConfirmSendRunner, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if faucet == nil {
		return nil, fmt.Errorf("faucet is required")
	}
	if waiter == nil {
		return nil, fmt.Errorf("waiter is required")
	}

	defaults := TxConfirmSendConfigDefaults()
	if config.TxCount == 0 {
		config.TxCount = defaults.TxCount
	}
	if config.Amount == 0 {
		config.Amount = defaults.Amount
	}
	if config.SendInterval == 0 {
		config.SendInterval = defaults.SendInterval
	}
	if config.ConfirmationPollInterval == 0 {
		config.ConfirmationPollInterval = defaults.ConfirmationPollInterval
	}
	if config.MinConfirmations == 0 {
		config.MinConfirmations = defaults.MinConfirmations
	}
	if config.ScanDepth == 0 {
		config.ScanDepth = defaults.ScanDepth
	}
	if config.ScanConcurrency == 0 {
		config.ScanConcurrency = defaults.ScanConcurrency
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &TxConfirmSendRunner{
		config: config,
		client: client,
		faucet: faucet,
		waiter: waiter,
		logger: config.Logger.With("component", "tx-confirm-send"),
	}, nil
}

// Run executes the scenario end to end.
func (r *TxConfirmSendRunner) Run(ctx context.Context) (*TxConfirmSendReport, error) {
	if err := r.waiter.CheckConnection(ctx); err != nil {
		return nil, err
	}
	if err := r.waiter.CheckSyncStatus(ctx); err != nil {
		return nil, err
	}

	report := &TxConfirmSendReport{}

	r.logger.Info("Generating a new address to use for receiving coins")
	source, err := r.newAddress(ctx)
	if err != nil {
		return nil, err
	}
	report.Source = source

	r.logger.Info("Requesting coins from faucet", "address", source)
	funding, err := r.faucet.GetCoins(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("faucet request failed: %w", err)
	}
	if len(funding.TxIDs) == 0 {
		return nil, errors.New("faucet returned no transaction ids")
	}
	report.FundingTxID = funding.TxIDs[0]

	if err := r.waitForConfirmation(ctx, report.FundingTxID); err != nil {
		return nil, err
	}

	r.logger.Info("Generating a second address to use for the send/receive test")
	dest, err := r.newAddress(ctx)
	if err != nil {
		return nil, err
	}
	report.Destination = dest

	info, err := r.client.GetInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get tip: %w", err)
	}
	report.StartingTip = info.LastBlock.Number
	r.logger.Info("Current Tip", "tip", report.StartingTip)

	report.Sent, err = r.sendAll(ctx, source, dest)
	if err != nil {
		return nil, err
	}

	target := report.StartingTip + r.config.ScanDepth
	r.logger.Info("Wait until block", "height", target)
	if err := r.waiter.WaitUntilBlock(ctx, target); err != nil {
		return nil, err
	}

	r.logger.Info("Proceeding to look up transactions")
	blockTxIDs, err := r.scanBlocks(ctx, report.StartingTip)
	if err != nil {
		return nil, err
	}
	report.Confirmed, report.Missing = partitionIDs(report.Sent, blockTxIDs)

	pending, err := r.client.GetPendingTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending transactions: %w", err)
	}
	pendingIDs := make([]string, 0, len(pending.Transactions))
	for _, tx := range pending.Transactions {
		pendingIDs = append(pendingIDs, tx.TxID)
	}
	report.Stuck, _ = partitionIDs(report.Sent, pendingIDs)

	r.logReport(report)
	return report, nil
}

func (r *TxConfirmSendRunner) newAddress(ctx context.Context) (string, error) {
	reply, err := r.client.GetNewAddress(ctx, 1)
	if err != nil {
		return "", fmt.Errorf("failed to get a new address from wallet: %w", err)
	}
	if !reply.Success {
		if res := reply.FirstError(); res != nil {
			return "", fmt.Errorf("failed to get a new address from wallet: %s", res)
		}
		return "", errors.New("failed to get a new address from wallet")
	}
	r.logger.Debug("getnewaddress reply", "address", reply.Address)
	return reply.Address, nil
}

// waitForConfirmation polls the transaction until it has MinConfirmations.
func (r *TxConfirmSendRunner) waitForConfirmation(ctx context.Context, txID string) error {
	for {
		r.logger.Info("Checking that our transaction has enough confirmations",
			"txId", txID,
			"required", r.config.MinConfirmations)

		reply, err := r.client.GetTransaction(ctx, txID)
		switch {
		case err != nil:
			r.logger.Warn("gettransactions failed", "txId", txID, "error", err)
		case len(reply.Transactions) == 0:
			r.logger.Debug("transaction not found yet", "txId", txID)
		case reply.Transactions[0].Confirmations >= r.config.MinConfirmations:
			return nil
		}

		if err := sleep(ctx, r.config.ConfirmationPollInterval); err != nil {
			return err
		}
	}
}

// sendAll sends TxCount transactions of Amount from source to dest.
func (r *TxConfirmSendRunner) sendAll(ctx context.Context, source, dest string) ([]string, error) {
	amount := entity.ToAtomic(r.config.Amount)
	txIDs := make([]string, 0, r.config.TxCount)

	for len(txIDs) < r.config.TxCount {
		reply, err := r.client.SendCoins(ctx, source, []entity.Output{{Address: dest, Amount: amount}})
		if err != nil {
			return txIDs, fmt.Errorf("failed to send coins: %w", err)
		}
		if !reply.Success || len(reply.TxIDs) == 0 {
			if res := reply.FirstError(); res != nil {
				return txIDs, fmt.Errorf("failed to send coins: %s", res)
			}
			return txIDs, errors.New("failed to send coins")
		}
		txIDs = append(txIDs, reply.TxIDs[0])
		r.logger.Debug("sendcoins reply", "txId", reply.TxIDs[0])

		if r.config.OnSent != nil {
			r.config.OnSent(len(txIDs), r.config.TxCount)
		}
		if len(txIDs) < r.config.TxCount {
			if err := sleep(ctx, r.config.SendInterval); err != nil {
				return txIDs, err
			}
		}
	}

	r.logger.Debug("created transactions", "txIds", txIDs)
	return txIDs, nil
}

// scanBlocks collects the regular transaction ids of ScanDepth blocks starting
// at startHeight. Blocks that cannot be fetched are logged and skipped.
func (r *TxConfirmSendRunner) scanBlocks(ctx context.Context, startHeight int) ([]string, error) {
	perBlock := make([][]string, r.config.ScanDepth)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.ScanConcurrency)

	for i := 0; i < r.config.ScanDepth; i++ {
		height := startHeight + i
		g.Go(func() error {
			r.logger.Info("checking block", "startingBlock", startHeight, "height", height)
			reply, err := r.client.GetBlocksByHeight(gctx, 1, []int{height})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.logger.Warn("failed to fetch block", "height", height, "error", err)
				return nil
			}
			if len(reply.Blocks) == 0 {
				r.logger.Warn("block not returned", "height", height)
				return nil
			}
			ids := reply.Blocks[0].RegularTxIDs()
			r.logger.Info("regular transactions found", "height", height, "count", len(ids))
			perBlock[i] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var all []string
	for _, ids := range perBlock {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				all = append(all, id)
			}
		}
	}
	return all, nil
}

func (r *TxConfirmSendRunner) logReport(report *TxConfirmSendReport) {
	r.logger.Info("Confirmed Transactions", "count", len(report.Confirmed))
	for _, tx := range report.Confirmed {
		r.logger.Info("confirmed", "txId", tx)
	}
	r.logger.Info("Missing Transactions", "count", len(report.Missing))
	for _, tx := range report.Missing {
		r.logger.Info("missing", "txId", tx)
	}
	r.logger.Info("Stuck Transactions", "count", len(report.Stuck))
	for _, tx := range report.Stuck {
		r.logger.Info("stuck", "txId", tx)
	}
}

// partitionIDs splits ids into those present in set and those absent, keeping
// the order of ids and dropping duplicates.
func partitionIDs(ids, set []string) (present, absent []string) {
	in := make(map[string]bool, len(set))
	for _, id := range set {
		in[id] = true
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if in[id] {
			present = append(present, id)
		} else {
			absent = append(absent, id)
		}
	}
	return present, absent
}
