package s3

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type fakeObject struct {
	body            []byte
	contentEncoding *string
	modified        time.Time
}

// fakeS3 is an in-memory bucket store implementing both s3WriterAPI and archiveReadAPI.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	puts    []*s3.PutObjectInput

	headErr error
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject)}
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, params)
	if f.putErr != nil {
		return nil, f.putErr
	}

	key := aws.ToString(params.Bucket) + "/" + aws.ToString(params.Key)
	if aws.ToString(params.IfNoneMatch) == "*" {
		if _, ok := f.objects[key]; ok {
			return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
		}
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[key] = fakeObject{body: data, contentEncoding: params.ContentEncoding, modified: time.Now()}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return nil, f.headErr
	}
	obj, ok := f.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(obj.body)))}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:            io.NopCloser(bytes.NewReader(obj.body)),
		ContentEncoding: obj.contentEncoding,
	}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucketPrefix := aws.ToString(params.Bucket) + "/"

	var keys []string
	for k := range f.objects {
		if !strings.HasPrefix(k, bucketPrefix) {
			continue
		}
		key := strings.TrimPrefix(k, bucketPrefix)
		if strings.HasPrefix(key, aws.ToString(params.Prefix)) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{}
	for _, key := range keys {
		obj := f.objects[bucketPrefix+key]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(int64(len(obj.body))),
			LastModified: aws.Time(obj.modified),
		})
	}
	return out, nil
}
