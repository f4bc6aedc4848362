package sns

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/archon-research/vbk-watch/internal/ports/outbound"
)

// mockSNSClient implements SNSPublisher for testing.
type mockSNSClient struct {
	mu          sync.Mutex
	publishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	calls       []*sns.PublishInput
}

func (m *mockSNSClient) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.mu.Lock()
	m.calls = append(m.calls, params)
	m.mu.Unlock()
	if m.publishFunc != nil {
		return m.publishFunc(ctx, params, optFns...)
	}
	return &sns.PublishOutput{
		MessageId: aws.String("test-message-id"),
	}, nil
}

func (m *mockSNSClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

const testTopicARN = "arn:aws:sns:us-east-1:123456789:vbk-anchors"

func testEvent() outbound.AnchorEvent {
	return outbound.AnchorEvent{
		VbkHash:    "0000000000000000000000000000000000000000000000AB",
		VbkHeight:  1500000,
		BtcHash:    "00000000000000000002a7c4c1e48d76c5a37902165a270156b7a8d72728a054",
		BtcHeight:  800000,
		ObservedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func fastConfig() Config {
	return Config{
		TopicARN:       testTopicARN,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}
}

func TestNewEventSink_Validation(t *testing.T) {
	if _, err := NewEventSink(nil, Config{TopicARN: testTopicARN}); err == nil || err.Error() != "sns client is required" {
		t.Errorf("unexpected error for nil client: %v", err)
	}
	if _, err := NewEventSink(&mockSNSClient{}, Config{}); err == nil || err.Error() != "topic ARN is required" {
		t.Errorf("unexpected error for missing topic: %v", err)
	}
}

func TestNewEventSink_AppliesDefaults(t *testing.T) {
	sink, err := NewEventSink(&mockSNSClient{}, Config{TopicARN: testTopicARN})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sink.config.MaxRetries != 3 {
		t.Errorf("expected MaxRetries=3, got %d", sink.config.MaxRetries)
	}
	if sink.config.InitialBackoff != 100*time.Millisecond {
		t.Errorf("expected InitialBackoff=100ms, got %v", sink.config.InitialBackoff)
	}
	if sink.config.MaxBackoff != 5*time.Second {
		t.Errorf("expected MaxBackoff=5s, got %v", sink.config.MaxBackoff)
	}
	if sink.config.BackoffFactor != 2.0 {
		t.Errorf("expected BackoffFactor=2.0, got %v", sink.config.BackoffFactor)
	}
}

func TestPublish_Success(t *testing.T) {
	client := &mockSNSClient{}
	sink, err := NewEventSink(client, fastConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event := testEvent()
	if err := sink.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if client.callCount() != 1 {
		t.Fatalf("expected 1 call, got %d", client.callCount())
	}
	input := client.calls[0]
	if aws.ToString(input.TopicArn) != testTopicARN {
		t.Errorf("unexpected topic %s", aws.ToString(input.TopicArn))
	}

	var decoded outbound.AnchorEvent
	if err := json.Unmarshal([]byte(aws.ToString(input.Message)), &decoded); err != nil {
		t.Fatalf("message is not valid JSON: %v", err)
	}
	if decoded.VbkHash != event.VbkHash || decoded.BtcHeight != event.BtcHeight {
		t.Errorf("unexpected message %+v", decoded)
	}

	attrs := input.MessageAttributes
	tests := []struct {
		name     string
		dataType string
		value    string
	}{
		{"eventType", "String", "anchor"},
		{"vbkHeight", "Number", "1500000"},
		{"btcHeight", "Number", "800000"},
	}
	for _, tt := range tests {
		attr, ok := attrs[tt.name]
		if !ok {
			t.Errorf("missing attribute %s", tt.name)
			continue
		}
		if aws.ToString(attr.DataType) != tt.dataType || aws.ToString(attr.StringValue) != tt.value {
			t.Errorf("attribute %s = %s/%s, want %s/%s", tt.name,
				aws.ToString(attr.DataType), aws.ToString(attr.StringValue), tt.dataType, tt.value)
		}
	}
}

func TestPublish_OmitsVbkHeightForAdHocLookups(t *testing.T) {
	client := &mockSNSClient{}
	sink, _ := NewEventSink(client, fastConfig())

	event := testEvent()
	event.VbkHeight = 0
	if err := sink.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if _, ok := client.calls[0].MessageAttributes["vbkHeight"]; ok {
		t.Error("vbkHeight attribute must be omitted when unknown")
	}
}

func TestPublish_RetriesTransientErrors(t *testing.T) {
	attempts := 0
	client := &mockSNSClient{
		publishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			attempts++
			if attempts < 3 {
				return nil, &types.ThrottledException{Message: aws.String("slow down")}
			}
			return &sns.PublishOutput{MessageId: aws.String("id")}, nil
		},
	}
	sink, _ := NewEventSink(client, fastConfig())

	if err := sink.Publish(context.Background(), testEvent()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestPublish_GivesUpAfterMaxRetries(t *testing.T) {
	client := &mockSNSClient{
		publishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, &types.InternalErrorException{Message: aws.String("boom")}
		},
	}
	sink, _ := NewEventSink(client, fastConfig())

	err := sink.Publish(context.Background(), testEvent())
	if err == nil {
		t.Fatal("expected error")
	}
	var internalErr *types.InternalErrorException
	if !errors.As(err, &internalErr) {
		t.Errorf("expected wrapped InternalErrorException, got %v", err)
	}
	if client.callCount() != 3 {
		t.Errorf("expected 3 calls, got %d", client.callCount())
	}
}

func TestPublish_NonRetryableError(t *testing.T) {
	client := &mockSNSClient{
		publishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, &types.NotFoundException{Message: aws.String("no topic")}
		},
	}
	sink, _ := NewEventSink(client, fastConfig())

	if err := sink.Publish(context.Background(), testEvent()); err == nil {
		t.Fatal("expected error")
	}
	if client.callCount() != 1 {
		t.Errorf("expected 1 call, got %d", client.callCount())
	}
}

func TestPublish_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &mockSNSClient{
		publishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			cancel()
			return nil, errors.New("connection reset")
		},
	}
	sink, _ := NewEventSink(client, fastConfig())

	err := sink.Publish(ctx, testEvent())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestPublish_AfterClose(t *testing.T) {
	client := &mockSNSClient{}
	sink, _ := NewEventSink(client, fastConfig())

	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if err := sink.Publish(context.Background(), testEvent()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if client.callCount() != 0 {
		t.Errorf("expected no calls after close, got %d", client.callCount())
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"throttled", &types.ThrottledException{}, true},
		{"internal", &types.InternalErrorException{}, true},
		{"kms throttled", &types.KMSThrottlingException{}, true},
		{"not found", &types.NotFoundException{}, false},
		{"invalid parameter", &types.InvalidParameterException{}, false},
		{"authorization", &types.AuthorizationErrorException{}, false},
		{"network", errors.New("connection reset by peer"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
