// Package sqs reads anchor lookup requests from an AWS SQS queue.
package sqs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/archon-research/vbk-watch/internal/ports/outbound"
)

// maxBatch is the SQS limit for a single ReceiveMessage call.
const maxBatch = 10

// sqsAPI is the subset of the SQS client used by Consumer.
type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

var _ outbound.LookupRequestSource = (*Consumer)(nil)

// Config holds SQS consumer configuration.
type Config struct {
	// QueueURL is the lookup request queue.
	QueueURL string

	// WaitTimeSeconds is the long polling wait. Max is 20 seconds.
	WaitTimeSeconds int32

	// VisibilityTimeout hides received messages from other consumers while a
	// lookup is in flight. Zero keeps the queue's setting.
	VisibilityTimeout int32

	// Logger is the structured logger.
	Logger *slog.Logger
}

// ConfigDefaults returns default SQS consumer configuration.
func ConfigDefaults() Config {
	return Config{
		WaitTimeSeconds: 20,
		Logger:          slog.Default(),
	}
}

// Consumer receives lookup requests from SQS.
type Consumer struct {
	client sqsAPI
	config Config
	logger *slog.Logger
}

// NewConsumer creates a consumer from an AWS config.
func NewConsumer(cfg aws.Config, config Config, optFns ...func(*sqs.Options)) (*Consumer, error) {
	return newConsumer(sqs.NewFromConfig(cfg, optFns...), config)
}

func newConsumer(client sqsAPI, config Config) (*Consumer, error) {
	if client == nil {
		return nil, fmt.Errorf("sqs client is required")
	}
	if config.QueueURL == "" {
		return nil, fmt.Errorf("queue URL is required")
	}

	defaults := ConfigDefaults()
	if config.WaitTimeSeconds == 0 {
		config.WaitTimeSeconds = defaults.WaitTimeSeconds
	}
	if config.WaitTimeSeconds > 20 {
		config.WaitTimeSeconds = 20
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Consumer{
		client: client,
		config: config,
		logger: config.Logger.With("component", "sqs-consumer"),
	}, nil
}

// ReceiveMessages fetches up to maxMessages (clamped to 1..10) from the queue.
func (c *Consumer) ReceiveMessages(ctx context.Context, maxMessages int) ([]outbound.QueueMessage, error) {
	maxMessages = max(1, min(maxMessages, maxBatch))

	input := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.config.QueueURL),
		MaxNumberOfMessages: int32(maxMessages),
		WaitTimeSeconds:     c.config.WaitTimeSeconds,
	}
	if c.config.VisibilityTimeout > 0 {
		input.VisibilityTimeout = c.config.VisibilityTimeout
	}

	result, err := c.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}

	messages := make([]outbound.QueueMessage, 0, len(result.Messages))
	for _, msg := range result.Messages {
		if msg.MessageId == nil || msg.ReceiptHandle == nil || msg.Body == nil {
			continue
		}
		messages = append(messages, outbound.QueueMessage{
			MessageID:     *msg.MessageId,
			ReceiptHandle: *msg.ReceiptHandle,
			Body:          *msg.Body,
		})
	}

	if len(messages) > 0 {
		c.logger.Debug("received lookup requests", "count", len(messages))
	}
	return messages, nil
}

// DeleteMessage removes a processed message from the queue.
func (c *Consumer) DeleteMessage(ctx context.Context, receiptHandle string) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.config.QueueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// Close is a no-op.
func (c *Consumer) Close() error {
	return nil
}
