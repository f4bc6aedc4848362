package nodecore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/archon-research/vbk-watch/internal/domain/entity"
	"github.com/archon-research/vbk-watch/internal/pkg/retry"
	"github.com/archon-research/vbk-watch/internal/ports/outbound"
)

// Compile-time check that Client implements outbound.NodeCoreClient
var _ outbound.NodeCoreClient = (*Client)(nil)

// DefaultURL is the NodeCore HTTP API endpoint of a local node.
const DefaultURL = "http://localhost:10600/api"

// ClientConfig holds configuration for the NodeCore HTTP RPC client.
type ClientConfig struct {
	// URL is the NodeCore HTTP JSON-RPC endpoint.
	URL string

	// Username and Password enable HTTP basic auth when Username is set.
	Username string
	Password string

	// Timeout is the maximum time to wait for a single HTTP request.
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts for transient failures.
	// Zero applies the default; a negative value disables retries.
	MaxRetries int

	// InitialBackoff is the initial delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum delay between retries.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each retry.
	BackoffFactor float64

	// Telemetry is optional.
	Telemetry *Telemetry

	// Logger is the structured logger.
	Logger *slog.Logger
}

// ClientConfigDefaults returns a config with default values.
func ClientConfigDefaults() ClientConfig {
	return ClientConfig{
		URL:            DefaultURL,
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
	}
}

// Client implements NodeCoreClient over NodeCore's HTTP JSON-RPC API.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	nextID     atomic.Int64
}

// NewClient creates a new NodeCore RPC client.
func NewClient(config ClientConfig) (*Client, error) {
	defaults := ClientConfigDefaults()
	if config.URL == "" {
		config.URL = defaults.URL
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	} else if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = defaults.BackoffFactor
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: config.Logger.With("component", "nodecore-client"),
	}, nil
}

// GetInfo fetches general node information.
func (c *Client) GetInfo(ctx context.Context) (*entity.VbkInfo, error) {
	var info entity.VbkInfo
	if err := c.call(ctx, "getinfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetStateInfo fetches the node's sync and network state.
func (c *Client) GetStateInfo(ctx context.Context) (*entity.StateInfo, error) {
	var state entity.StateInfo
	if err := c.call(ctx, "getstateinfo", nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// GetLastBlock fetches the header of the current best block.
func (c *Client) GetLastBlock(ctx context.Context) (*entity.BlockHeaderContainer, error) {
	var block entity.BlockHeaderContainer
	if err := c.call(ctx, "getlastblock", nil, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

// GetLastBitcoinBlockAtVeriBlockBlock fetches the last Bitcoin block known at vbkHash.
func (c *Client) GetLastBitcoinBlockAtVeriBlockBlock(ctx context.Context, vbkHash string) (*entity.BtcBlockData, error) {
	params := map[string]string{"vbkBlockHash": vbkHash}

	var btc entity.BtcBlockData
	if err := c.call(ctx, "getlastbitcoinblockatveriblockblock", params, &btc); err != nil {
		return nil, err
	}
	return &btc, nil
}

// GetNewAddress asks the wallet for count new addresses.
func (c *Client) GetNewAddress(ctx context.Context, count int) (*entity.GetNewAddressReply, error) {
	params := map[string]int{"count": count}

	var reply entity.GetNewAddressReply
	if err := c.call(ctx, "getnewaddress", params, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// GetBlocksByHeight fetches blocks at the given heights.
func (c *Client) GetBlocksByHeight(ctx context.Context, searchLength int, heights []int) (*entity.GetBlocksReply, error) {
	filters := make([]any, len(heights))
	for i, h := range heights {
		filters[i] = heightFilter{Index: h}
	}
	return c.getBlocks(ctx, getBlocksParams{SearchLength: searchLength, Filters: filters})
}

// GetBlocksByHash fetches blocks by hash.
func (c *Client) GetBlocksByHash(ctx context.Context, searchLength int, hashes []string) (*entity.GetBlocksReply, error) {
	filters := make([]any, len(hashes))
	for i, h := range hashes {
		filters[i] = hashFilter{Hash: h}
	}
	return c.getBlocks(ctx, getBlocksParams{SearchLength: searchLength, Filters: filters})
}

func (c *Client) getBlocks(ctx context.Context, params getBlocksParams) (*entity.GetBlocksReply, error) {
	var reply entity.GetBlocksReply
	if err := c.call(ctx, "getblocks", params, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// GetTransaction looks up one transaction by id.
func (c *Client) GetTransaction(ctx context.Context, txID string) (*entity.GetTransactionsReply, error) {
	params := getTransactionsParams{SearchLength: 0, IDs: []string{txID}}

	var reply entity.GetTransactionsReply
	if err := c.call(ctx, "gettransactions", params, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// SendCoins sends the given atomic amounts from sourceAddress.
func (c *Client) SendCoins(ctx context.Context, sourceAddress string, amounts []entity.Output) (*entity.SendCoinsReply, error) {
	params := sendCoinsParams{SourceAddress: sourceAddress, Amounts: amounts}

	var reply entity.SendCoinsReply
	if err := c.call(ctx, "sendcoins", params, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// GetPendingTransactions lists transactions in the node's mempool.
func (c *Client) GetPendingTransactions(ctx context.Context) (*entity.GetPendingTransactionsReply, error) {
	var reply entity.GetPendingTransactionsReply
	if err := c.call(ctx, "getpendingtransactions", nil, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// call performs one RPC method with retry and decodes the result into target.
func (c *Client) call(ctx context.Context, method string, params any, target any) (err error) {
	if params == nil {
		params = emptyParams
	}
	req := jsonRPCRequest{
		JSONRPC: jsonRPCVersion,
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	if c.config.Telemetry != nil {
		spanCtx, s := c.config.Telemetry.StartSpan(ctx, method)
		ctx = spanCtx
		defer func() {
			c.config.Telemetry.EndSpan(s, err)
			c.config.Telemetry.RecordRequest(ctx, method, time.Since(start), err)
		}()
	}

	cfg := retry.Config{
		MaxRetries:     c.config.MaxRetries,
		InitialBackoff: c.config.InitialBackoff,
		MaxBackoff:     c.config.MaxBackoff,
		BackoffFactor:  c.config.BackoffFactor,
		Jitter:         true,
	}
	onRetry := func(attempt int, err error, backoff time.Duration) {
		c.logger.Warn("retrying NodeCore request",
			"method", method,
			"attempt", attempt,
			"backoff", backoff,
			"error", err)
		if c.config.Telemetry != nil {
			c.config.Telemetry.RecordRetry(ctx, method, attempt)
		}
	}

	resp, err := retry.Do(ctx, cfg, nil, onRetry, func() (*jsonRPCResponse, error) {
		return c.doRequest(ctx, req.ID, body)
	})
	if err != nil {
		return err
	}

	return resp.decode(target)
}

// doRequest performs a single HTTP round trip. Failures that a retry cannot fix
// are wrapped with retry.Permanent.
func (c *Client) doRequest(ctx context.Context, id int64, body []byte) (*jsonRPCResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to perform request to the API: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.Username != "" {
		httpReq.SetBasicAuth(c.config.Username, c.config.Password)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to perform request to the API: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var rpcResp jsonRPCResponse
	parseErr := json.Unmarshal(respBody, &rpcResp)

	if httpResp.StatusCode != http.StatusOK {
		// Some NodeCore builds report RPC errors with a non-200 status.
		if parseErr == nil && rpcResp.Error != nil && !rpcResp.hasResult() {
			return nil, retry.Permanent(rpcResp.Error)
		}
		statusErr := fmt.Errorf("failed to perform request to the API: HTTP %d: %s", httpResp.StatusCode, string(respBody))
		if isRetryableStatus(httpResp.StatusCode) {
			return nil, statusErr
		}
		return nil, retry.Permanent(statusErr)
	}

	if parseErr != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to perform request to the API: %w", parseErr))
	}
	if rpcResp.ID != nil && *rpcResp.ID != id {
		return nil, retry.Permanent(fmt.Errorf("response id mismatch: sent %d, got %d", id, *rpcResp.ID))
	}
	return &rpcResp, nil
}

// isRetryableStatus reports whether an HTTP status code is worth retrying.
func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// IsRPCError reports whether err carries an error returned by NodeCore itself.
func IsRPCError(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr)
}
