package s3

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/archon-research/vbk-watch/internal/ports/outbound"
)

// archiveReadAPI is the part of the S3 client the block archive reader calls.
type archiveReadAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

var _ outbound.BlockArchiveReader = (*Reader)(nil)

// Reader serves the archived getblockfromhash replies written by the watcher.
// The archive inspect commands use it to list partitions and print blocks.
type Reader struct {
	client archiveReadAPI
	logger *slog.Logger
}

// NewReader returns a block archive reader backed by S3.
func NewReader(cfg aws.Config, logger *slog.Logger, optFns ...func(*s3.Options)) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		client: s3.NewFromConfig(cfg, optFns...),
		logger: logger.With("component", "block-archive-reader"),
	}
}

// ListFiles returns the archived blocks under prefix, usually one partition
// such as "blocks/1000-1999/". Partition markers and half-described objects
// are left out.
func (r *Reader) ListFiles(ctx context.Context, bucket, prefix string) ([]outbound.ArchivedObject, error) {
	var blocks []outbound.ArchivedObject

	pages := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list archived blocks under %s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			if block, ok := archivedBlock(obj); ok {
				blocks = append(blocks, block)
			}
		}
	}

	r.logger.Debug("archive partition listed", "bucket", bucket, "prefix", prefix, "blocks", len(blocks))
	return blocks, nil
}

// archivedBlock converts a listed object, reporting false for partition
// markers and for entries missing key, size or modification time.
func archivedBlock(obj types.Object) (outbound.ArchivedObject, bool) {
	if obj.Key == nil || obj.Size == nil || obj.LastModified == nil {
		return outbound.ArchivedObject{}, false
	}
	if strings.HasSuffix(*obj.Key, "/") {
		return outbound.ArchivedObject{}, false
	}
	return outbound.ArchivedObject{
		Key:          *obj.Key,
		Size:         *obj.Size,
		LastModified: *obj.LastModified,
	}, true
}

// StreamFile opens one archived block reply. The watcher stores replies with
// Content-Encoding gzip; keys ending in .gz are also inflated.
func (r *Reader) StreamFile(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch archived block %s/%s: %w", bucket, key, err)
	}

	if !gzipped(key, aws.ToString(obj.ContentEncoding)) {
		return obj.Body, nil
	}
	zr, err := gzip.NewReader(obj.Body)
	if err != nil {
		obj.Body.Close()
		return nil, fmt.Errorf("archived block %s is not valid gzip: %w", key, err)
	}
	return &inflatedBlock{Reader: zr, body: obj.Body}, nil
}

func gzipped(key, contentEncoding string) bool {
	return strings.EqualFold(contentEncoding, "gzip") || strings.HasSuffix(key, ".gz")
}

// inflatedBlock closes both the gzip stream and the S3 body.
type inflatedBlock struct {
	*gzip.Reader
	body io.ReadCloser
}

func (b *inflatedBlock) Close() error {
	zErr := b.Reader.Close()
	if err := b.body.Close(); err != nil {
		return err
	}
	return zErr
}
