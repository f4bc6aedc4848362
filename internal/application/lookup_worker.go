package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/archon-research/vbk-watch/internal/pkg/hexutil"
	"github.com/archon-research/vbk-watch/internal/ports/outbound"
)

// errMalformedRequest marks queue messages that can never be processed.
var errMalformedRequest = errors.New("malformed lookup request")

// LookupRequest is the body of a queued anchor lookup. A bare hash string is also accepted.
type LookupRequest struct {
	VbkHash   string `json:"vbkHash"`
	VbkHeight int64  `json:"vbkHeight,omitempty"`
}

// LookupWorkerConfig holds configuration for the LookupWorker.
type LookupWorkerConfig struct {
	// Workers is the number of concurrent lookups.
	Workers int

	// BatchSize is how many messages to fetch at once (max 10).
	BatchSize int

	// ErrorBackoff is the pause after a failed receive.
	ErrorBackoff time.Duration

	// Logger is the structured logger.
	Logger *slog.Logger
}

// LookupWorkerConfigDefaults returns default configuration.
func LookupWorkerConfigDefaults() LookupWorkerConfig {
	return LookupWorkerConfig{
		Workers:      2,
		BatchSize:    10,
		ErrorBackoff: 5 * time.Second,
		Logger:       slog.Default(),
	}
}

// LookupWorker resolves anchors for VBK hashes read from a request queue.
// Messages are deleted once resolved; malformed ones are deleted and logged.
// Failed lookups stay on the queue and are redelivered.
type LookupWorker struct {
	config  LookupWorkerConfig
	source  outbound.LookupRequestSource
	anchors *AnchorService
	logger  *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewLookupWorker creates a new LookupWorker.
func NewLookupWorker(config LookupWorkerConfig, source outbound.LookupRequestSource, anchors *AnchorService) (*LookupWorker, error) {
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if anchors == nil {
		return nil, fmt.Errorf("anchors is required")
	}

	defaults := LookupWorkerConfigDefaults()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.ErrorBackoff <= 0 {
		config.ErrorBackoff = defaults.ErrorBackoff
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &LookupWorker{
		config:  config,
		source:  source,
		anchors: anchors,
		logger:  config.Logger.With("component", "lookup-worker"),
		stopCh:  make(chan struct{}),
	}, nil
}

// Run receives and processes requests until ctx is cancelled or Stop is called.
func (w *LookupWorker) Run(ctx context.Context) error {
	w.logger.Info("lookup worker started", "workers", w.config.Workers, "batchSize", w.config.BatchSize)

	msgCh := make(chan outbound.QueueMessage, w.config.Workers*2)
	for i := range w.config.Workers {
		w.wg.Add(1)
		go w.worker(ctx, i, msgCh)
	}
	defer func() {
		close(msgCh)
		w.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		default:
		}

		messages, err := w.source.ReceiveMessages(ctx, w.config.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("failed to receive lookup requests", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.stopCh:
				return nil
			case <-time.After(w.config.ErrorBackoff):
			}
			continue
		}

		for _, msg := range messages {
			select {
			case msgCh <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Stop signals Run to return after the current receive.
func (w *LookupWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *LookupWorker) worker(ctx context.Context, id int, msgCh <-chan outbound.QueueMessage) {
	defer w.wg.Done()
	logger := w.logger.With("worker", id)

	for msg := range msgCh {
		err := w.process(ctx, msg)
		switch {
		case errors.Is(err, errMalformedRequest):
			logger.Error("dropping lookup request", "messageID", msg.MessageID, "error", err)
		case err != nil:
			logger.Warn("lookup request failed", "messageID", msg.MessageID, "error", err)
			continue
		}

		if err := w.source.DeleteMessage(ctx, msg.ReceiptHandle); err != nil {
			logger.Error("failed to delete message", "messageID", msg.MessageID, "error", err)
		}
	}
}

func (w *LookupWorker) process(ctx context.Context, msg outbound.QueueMessage) error {
	req, err := ParseLookupRequest(msg.Body)
	if err != nil {
		return err
	}

	anchor, err := w.anchors.lookup(ctx, req.VbkHash, req.VbkHeight)
	if err != nil {
		return err
	}
	w.logger.Info("anchor resolved from queue",
		"vbkHash", anchor.VbkHash,
		"btcHash", anchor.BtcHash,
		"btcHeight", anchor.BtcHeight)
	return nil
}

// ParseLookupRequest decodes a queue message body. SNS notification envelopes
// are unwrapped first.
func ParseLookupRequest(body string) (LookupRequest, error) {
	body = strings.TrimSpace(body)

	var envelope struct {
		Message string `json:"Message"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err == nil && envelope.Message != "" {
		body = strings.TrimSpace(envelope.Message)
	}

	var req LookupRequest
	if strings.HasPrefix(body, "{") {
		if err := json.Unmarshal([]byte(body), &req); err != nil {
			return LookupRequest{}, fmt.Errorf("%w: %v", errMalformedRequest, err)
		}
	} else {
		req.VbkHash = strings.Trim(body, `"`)
	}

	hash, err := hexutil.CanonicalVbkHash(req.VbkHash)
	if err != nil {
		return LookupRequest{}, fmt.Errorf("%w: %v", errMalformedRequest, err)
	}
	req.VbkHash = hash
	if req.VbkHeight < 0 {
		return LookupRequest{}, fmt.Errorf("%w: negative height %d", errMalformedRequest, req.VbkHeight)
	}
	return req, nil
}
