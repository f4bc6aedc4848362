// Package sns implements the EventSink interface using AWS SNS.
//
// Anchor events are serialized as JSON and published to a single topic.
// Message attributes allow subscribers to filter without decoding the body:
//   - eventType: always "anchor"
//   - vbkHeight: the VeriBlock height as a number (omitted for ad-hoc lookups)
//   - btcHeight: the Bitcoin height as a number
//
// For testing, use the memory.EventSink adapter instead.
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/archon-research/vbk-watch/internal/pkg/retry"
	"github.com/archon-research/vbk-watch/internal/ports/outbound"
)

// Compile-time check that EventSink implements outbound.EventSink
var _ outbound.EventSink = (*EventSink)(nil)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("event sink is closed")

// SNSPublisher defines the subset of SNS client methods used by EventSink.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Config holds configuration for the SNS event sink.
type Config struct {
	// TopicARN is the topic anchor events are published to.
	TopicARN string

	// MaxRetries is the maximum number of retry attempts for transient failures.
	// Negative disables retries.
	MaxRetries int

	// InitialBackoff is the initial delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum delay between retries.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each retry.
	BackoffFactor float64

	// Logger is the structured logger for the sink.
	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		Logger:         slog.Default(),
	}
}

// EventSink publishes anchor events to AWS SNS.
type EventSink struct {
	client    SNSPublisher
	config    Config
	logger    *slog.Logger
	closeOnce sync.Once
	closed    bool
	mu        sync.RWMutex
}

// NewEventSink creates a new SNS event sink.
func NewEventSink(client SNSPublisher, config Config) (*EventSink, error) {
	if client == nil {
		return nil, errors.New("sns client is required")
	}
	if config.TopicARN == "" {
		return nil, errors.New("topic ARN is required")
	}

	defaults := ConfigDefaults()
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.MaxRetries < 0 {
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
		config.Logger = defaults.Logger
	}

	return &EventSink{
		client: client,
		config: config,
		logger: config.Logger.With("component", "sns-eventsink"),
	}, nil
}

// Publish publishes an anchor event to SNS.
func (s *EventSink) Publish(ctx context.Context, event outbound.AnchorEvent) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	messageBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn:          aws.String(s.config.TopicARN),
		Message:           aws.String(string(messageBytes)),
		MessageAttributes: messageAttributes(event),
	}

	retryCfg := retry.Config{
		MaxRetries:     s.config.MaxRetries,
		InitialBackoff: s.config.InitialBackoff,
		MaxBackoff:     s.config.MaxBackoff,
		BackoffFactor:  s.config.BackoffFactor,
	}
	onRetry := func(attempt int, err error, backoff time.Duration) {
		s.logger.Warn("publish failed, retrying",
			"attempt", attempt,
			"maxRetries", s.config.MaxRetries,
			"backoff", backoff,
			"error", err,
			"vbkHash", event.VbkHash,
		)
	}

	err = retry.DoVoid(ctx, retryCfg, isRetryableError, onRetry, func() error {
		_, err := s.client.Publish(ctx, input)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}

	s.logger.Debug("published anchor event", "vbkHash", event.VbkHash, "btcHash", event.BtcHash)
	return nil
}

func messageAttributes(event outbound.AnchorEvent) map[string]types.MessageAttributeValue {
	attributes := map[string]types.MessageAttributeValue{
		"eventType": {
			DataType:    aws.String("String"),
			StringValue: aws.String(string(event.EventType())),
		},
		"btcHeight": {
			DataType:    aws.String("Number"),
			StringValue: aws.String(strconv.Itoa(event.BtcHeight)),
		},
	}
	if event.VbkHeight > 0 {
		attributes["vbkHeight"] = types.MessageAttributeValue{
			DataType:    aws.String("Number"),
			StringValue: aws.String(strconv.FormatInt(event.VbkHeight, 10)),
		}
	}
	return attributes
}

// isRetryableError determines if an error should trigger a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var throttleErr *types.ThrottledException
	if errors.As(err, &throttleErr) {
		return true
	}
	var internalErr *types.InternalErrorException
	if errors.As(err, &internalErr) {
		return true
	}
	var kmsThrottleErr *types.KMSThrottlingException
	if errors.As(err, &kmsThrottleErr) {
		return true
	}

	// Client-side faults never succeed on retry.
	var notFound *types.NotFoundException
	if errors.As(err, &notFound) {
		return false
	}
	var invalidParam *types.InvalidParameterException
	if errors.As(err, &invalidParam) {
		return false
	}
	var authErr *types.AuthorizationErrorException
	if errors.As(err, &authErr) {
		return false
	}

	// Default to retrying on unknown errors (network issues, etc.)
	return true
}

// Close marks the sink as closed and prevents further publishing.
func (s *EventSink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.logger.Info("SNS event sink closed")
	})
	return nil
}
