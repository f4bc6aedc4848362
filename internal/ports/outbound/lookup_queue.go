package outbound

import "context"

// QueueMessage is a message received from a lookup request queue.
type QueueMessage struct {
	// MessageID is the unique ID of the message.
	MessageID string

	// ReceiptHandle is needed to delete the message after processing.
	ReceiptHandle string

	// Body is the raw message body.
	Body string
}

// LookupRequestSource delivers anchor lookup requests from a queue.
type LookupRequestSource interface {
	// ReceiveMessages fetches up to maxMessages from the queue.
	// Returns an empty slice if no messages are available.
	ReceiveMessages(ctx context.Context, maxMessages int) ([]QueueMessage, error)

	// DeleteMessage removes a processed message from the queue.
	DeleteMessage(ctx context.Context, receiptHandle string) error

	// Close closes the source and releases resources.
	Close() error
}
