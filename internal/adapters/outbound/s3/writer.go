// Package s3 archives raw VeriBlock block replies in AWS S3.
package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/archon-research/vbk-watch/internal/ports/outbound"
)

// s3WriterAPI defines the subset of S3 operations needed by the Writer.
type s3WriterAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Compile-time check that Writer implements outbound.BlockArchive
var _ outbound.BlockArchive = (*Writer)(nil)

// Writer implements the BlockArchive interface using the AWS SDK.
type Writer struct {
	client s3WriterAPI
	logger *slog.Logger
}

// NewWriter creates a new S3 Writer with optional S3 client options.
func NewWriter(cfg aws.Config, logger *slog.Logger, optFns ...func(*s3.Options)) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		client: s3.NewFromConfig(cfg, optFns...),
		logger: logger.With("component", "s3-writer"),
	}
}

// NewWriterWithHTTPClient creates a new S3 Writer with a custom HTTP client.
func NewWriterWithHTTPClient(cfg aws.Config, httpClient *http.Client, logger *slog.Logger) *Writer {
	return NewWriter(cfg, logger, func(o *s3.Options) {
		o.HTTPClient = httpClient
	})
}

// prepareBody handles optional gzip compression for the upload body.
func prepareBody(content io.Reader, compressGzip bool) (io.Reader, *string, error) {
	if !compressGzip {
		return content, nil, nil
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read content: %w", err)
	}

	var buf bytes.Buffer
	gzWriter := gzip.NewWriter(&buf)
	if _, err := gzWriter.Write(data); err != nil {
		return nil, nil, fmt.Errorf("failed to compress content: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}

	return bytes.NewReader(buf.Bytes()), aws.String("gzip"), nil
}

// WriteFile writes content to the specified key in the bucket, replacing any existing object.
func (w *Writer) WriteFile(ctx context.Context, bucket, key string, content io.Reader, compressGzip bool) error {
	body, contentEncoding, err := prepareBody(content, compressGzip)
	if err != nil {
		return err
	}

	_, err = w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(bucket),
		Key:             aws.String(key),
		Body:            body,
		ContentType:     aws.String("application/json"),
		ContentEncoding: contentEncoding,
	})
	if err != nil {
		return fmt.Errorf("failed to write to S3: %w", err)
	}

	w.logger.Debug("wrote file to S3", "bucket", bucket, "key", key, "compressed", compressGzip)
	return nil
}

// WriteFileIfNotExists writes content only if no object exists at key.
// It returns false without error when the object already exists.
func (w *Writer) WriteFileIfNotExists(ctx context.Context, bucket, key string, content io.Reader, compressGzip bool) (bool, error) {
	body, contentEncoding, err := prepareBody(content, compressGzip)
	if err != nil {
		return false, err
	}

	_, err = w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(bucket),
		Key:             aws.String(key),
		Body:            body,
		ContentType:     aws.String("application/json"),
		ContentEncoding: contentEncoding,
		IfNoneMatch:     aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to write to S3: %w", err)
	}

	w.logger.Debug("wrote file to S3 (new)", "bucket", bucket, "key", key, "compressed", compressGzip)
	return true, nil
}

// FileExists checks if a file already exists at the given key.
func (w *Writer) FileExists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := w.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check if file exists: %w", err)
	}
	return true, nil
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode() == "PreconditionFailed" || apiErr.ErrorCode() == "412"
}
