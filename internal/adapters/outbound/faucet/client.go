// Package faucet requests VeriBlock testnet coins from the public faucet service.
package faucet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/archon-research/vbk-watch/internal/adapters/outbound/nodecore"
	"github.com/archon-research/vbk-watch/internal/domain/entity"
	"github.com/archon-research/vbk-watch/internal/pkg/httpclient"
	"github.com/archon-research/vbk-watch/internal/ports/outbound"
)

var _ outbound.FaucetClient = (*Client)(nil)

// DefaultURL is the public testnet faucet endpoint.
const DefaultURL = "http://95.217.67.120/alt-integration/api/v1.0/faucet"

// ErrNoResult is returned when the faucet reply carries neither a result nor an error.
var ErrNoResult = errors.New("faucet response has neither result nor error")

// Config holds configuration for the faucet client.
type Config struct {
	// URL is the faucet endpoint; the address is passed as a query parameter.
	URL string

	// HTTP configures timeouts, retries and rate limiting.
	HTTP httpclient.Config

	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		URL:  DefaultURL,
		HTTP: httpclient.DefaultConfig(),
	}
}

// Client talks to the faucet over HTTP.
type Client struct {
	url    string
	http   *httpclient.Client
	logger *slog.Logger
}

// envelope is the faucet reply, which reuses the NodeCore RPC envelope.
type envelope struct {
	Result json.RawMessage    `json:"result,omitempty"`
	Error  *nodecore.RPCError `json:"error,omitempty"`
}

// NewClient creates a faucet client. Zero-valued fields take their defaults.
func NewClient(config Config) (*Client, error) {
	defaults := ConfigDefaults()
	if config.URL == "" {
		config.URL = defaults.URL
	}
	if _, err := url.Parse(config.URL); err != nil {
		return nil, fmt.Errorf("invalid faucet URL: %w", err)
	}
	if config.HTTP == (httpclient.Config{}) {
		config.HTTP = defaults.HTTP
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	logger := config.Logger.With("component", "faucet-client")

	return &Client{
		url:    config.URL,
		http:   httpclient.NewClient(config.HTTP, logger, parseError),
		logger: logger,
	}, nil
}

// GetCoins asks the faucet to send coins to address.
func (c *Client) GetCoins(ctx context.Context, address string) (*entity.FaucetResponse, error) {
	if address == "" {
		return nil, errors.New("address is required")
	}

	var env envelope
	err := c.http.DoRequest(ctx, httpclient.RequestConfig{
		URL:   c.url,
		Query: url.Values{"address": {address}},
	}, &env)
	if err != nil {
		return nil, fmt.Errorf("failed to perform request to the API: %w", err)
	}

	if len(env.Result) == 0 || string(env.Result) == "null" {
		if env.Error != nil {
			return nil, env.Error
		}
		return nil, ErrNoResult
	}

	var resp entity.FaucetResponse
	if err := json.Unmarshal(env.Result, &resp); err != nil {
		return nil, fmt.Errorf("failed to perform request to the API: %w", err)
	}

	c.logger.Debug("faucet responded", "address", address, "success", resp.Success, "txIds", len(resp.TxIDs))
	return &resp, nil
}

// parseError turns an error-only envelope on a 4xx reply into an RPCError.
func parseError(statusCode int, body []byte) error {
	if statusCode < 400 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		return nil
	}
	return env.Error
}
