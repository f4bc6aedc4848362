package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/archon-research/vbk-watch/internal/pkg/partition"
)

type mockS3API struct {
	listObjectsV2Func func(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	getObjectFunc     func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

func (m *mockS3API) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if m.listObjectsV2Func != nil {
		return m.listObjectsV2Func(ctx, params, optFns...)
	}
	return &s3.ListObjectsV2Output{}, nil
}

func (m *mockS3API) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getObjectFunc != nil {
		return m.getObjectFunc(ctx, params, optFns...)
	}
	return &s3.GetObjectOutput{}, nil
}

func TestNewReader_NilLogger(t *testing.T) {
	reader := NewReader(aws.Config{Region: "us-east-1"}, nil)
	if reader.client == nil {
		t.Error("expected non-nil client")
	}
	if reader.logger == nil {
		t.Error("expected default logger when nil is passed")
	}
}

func TestListFiles(t *testing.T) {
	ctx := context.Background()
	testTime := time.Date(2026, 1, 18, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		mockOutput *s3.ListObjectsV2Output
		wantCount  int
	}{
		{
			name: "list files successfully",
			mockOutput: &s3.ListObjectsV2Output{
				Contents: []types.Object{
					{Key: aws.String("blocks/0-999/1_AA.json"), Size: aws.Int64(100), LastModified: &testTime},
					{Key: aws.String("blocks/0-999/2_BB.json"), Size: aws.Int64(200), LastModified: &testTime},
				},
			},
			wantCount: 2,
		},
		{
			name: "skip directory entries",
			mockOutput: &s3.ListObjectsV2Output{
				Contents: []types.Object{
					{Key: aws.String("blocks/0-999/"), Size: aws.Int64(0), LastModified: &testTime},
					{Key: aws.String("blocks/0-999/1_AA.json"), Size: aws.Int64(100), LastModified: &testTime},
				},
			},
			wantCount: 1,
		},
		{
			name: "skip incomplete objects",
			mockOutput: &s3.ListObjectsV2Output{
				Contents: []types.Object{
					{Key: nil, Size: aws.Int64(100), LastModified: &testTime},
					{Key: aws.String("blocks/0-999/1_AA.json"), Size: nil, LastModified: &testTime},
					{Key: aws.String("blocks/0-999/2_BB.json"), Size: aws.Int64(100), LastModified: &testTime},
				},
			},
			wantCount: 1,
		},
		{
			name:       "empty bucket",
			mockOutput: &s3.ListObjectsV2Output{},
			wantCount:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockS3API{
				listObjectsV2Func: func(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
					return tt.mockOutput, nil
				},
			}
			reader := &Reader{client: mock, logger: slog.Default()}

			files, err := reader.ListFiles(ctx, "vbk-blocks", "blocks/0-999/")
			if err != nil {
				t.Fatalf("ListFiles() error = %v", err)
			}
			if len(files) != tt.wantCount {
				t.Errorf("ListFiles() got %d files, want %d", len(files), tt.wantCount)
			}
		})
	}
}

func TestStreamFile(t *testing.T) {
	ctx := context.Background()
	content := `{"hash":"AA","number":1}`

	gzipped := func() []byte {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		gz.Write([]byte(content))
		gz.Close()
		return buf.Bytes()
	}()

	tests := []struct {
		name            string
		key             string
		body            []byte
		contentEncoding *string
	}{
		{"plain object", "blocks/0-999/1_AA.json", []byte(content), nil},
		{"gzip content encoding", "blocks/0-999/1_AA.json", gzipped, aws.String("gzip")},
		{"gz suffix", "blocks/0-999/1_AA.json.gz", gzipped, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockS3API{
				getObjectFunc: func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
					return &s3.GetObjectOutput{
						Body:            io.NopCloser(bytes.NewReader(tt.body)),
						ContentEncoding: tt.contentEncoding,
					}, nil
				},
			}
			reader := &Reader{client: mock, logger: slog.Default()}

			rc, err := reader.StreamFile(ctx, "vbk-blocks", tt.key)
			if err != nil {
				t.Fatalf("StreamFile() error = %v", err)
			}
			defer rc.Close()

			got, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("failed to read content: %v", err)
			}
			if string(got) != content {
				t.Errorf("StreamFile() content = %q, want %q", got, content)
			}
		})
	}
}

func TestStreamFile_CorruptGzip(t *testing.T) {
	mock := &mockS3API{
		getObjectFunc: func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			return &s3.GetObjectOutput{
				Body:            io.NopCloser(strings.NewReader("not gzip")),
				ContentEncoding: aws.String("gzip"),
			}, nil
		},
	}
	reader := &Reader{client: mock, logger: slog.Default()}

	if _, err := reader.StreamFile(context.Background(), "b", "k.json"); err == nil {
		t.Error("expected error for corrupt gzip body")
	}
}

func TestWriterReaderRoundTrip(t *testing.T) {
	fake := newFakeS3()
	writer := &Writer{client: fake, logger: slog.Default()}
	reader := &Reader{client: fake, logger: slog.Default()}
	ctx := context.Background()

	for _, h := range []int64{999, 1000, 1001} {
		key := partition.BlockKey(h, "AA")
		if err := writer.WriteFile(ctx, "vbk-blocks", key, strings.NewReader(`{"number":1}`), true); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	files, err := reader.ListFiles(ctx, "vbk-blocks", "blocks/1000-1999/")
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files in partition, got %d", len(files))
	}

	rc, err := reader.StreamFile(ctx, "vbk-blocks", files[0].Key)
	if err != nil {
		t.Fatalf("StreamFile failed: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != `{"number":1}` {
		t.Errorf("unexpected content %q", got)
	}
}

func TestGzipped(t *testing.T) {
	tests := []struct {
		key      string
		encoding string
		want     bool
	}{
		{"blocks/0-999/1_AA.json", "gzip", true},
		{"blocks/0-999/1_AA.json", "GZIP", true},
		{"blocks/0-999/1_AA.json.gz", "", true},
		{"blocks/0-999/1_AA.json", "", false},
		{"blocks/0-999/1_AA.json", "identity", false},
	}
	for _, tt := range tests {
		if got := gzipped(tt.key, tt.encoding); got != tt.want {
			t.Errorf("gzipped(%q, %q) = %v, want %v", tt.key, tt.encoding, got, tt.want)
		}
	}
}

func TestStreamFile_GetObjectError(t *testing.T) {
	mock := &mockS3API{
		getObjectFunc: func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			return nil, io.ErrUnexpectedEOF
		},
	}
	reader := &Reader{client: mock, logger: slog.Default()}

	_, err := reader.StreamFile(context.Background(), "vbk-blocks", "blocks/0-999/1_AA.json")
	if err == nil || !strings.Contains(err.Error(), "vbk-blocks/blocks/0-999/1_AA.json") {
		t.Errorf("expected error naming the archived block, got %v", err)
	}
}
