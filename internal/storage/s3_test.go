package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 implements the handful of S3 calls S3Store makes against an
// in-memory bucket. Anything else panics via the nil embedded interface.
type fakeS3 struct {
	s3iface.S3API

	mu           sync.Mutex
	bucket       string
	objects      map[string][]byte
	contentTypes map[string]string
	listErr      error
	putErr       error
	puts         int
}

func newFakeS3(bucket string) *fakeS3 {
	return &fakeS3{
		bucket:       bucket,
		objects:      map[string][]byte{},
		contentTypes: map[string]string{},
	}
}

func (f *fakeS3) checkBucket(b *string) error {
	if aws.StringValue(b) != f.bucket {
		return awserr.New(s3.ErrCodeNoSuchBucket, "no such bucket", nil)
	}
	return nil
}

func (f *fakeS3) sortedKeys(prefix string) []string {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeS3) ListObjectsV2WithContext(ctx aws.Context, in *s3.ListObjectsV2Input, opts ...request.Option) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	out := &s3.ListObjectsV2Output{}
	for _, k := range f.sortedKeys(aws.StringValue(in.Prefix)) {
		if in.MaxKeys != nil && int64(len(out.Contents)) >= *in.MaxKeys {
			break
		}
		out.Contents = append(out.Contents, &s3.Object{Key: aws.String(k)})
	}
	out.KeyCount = aws.Int64(int64(len(out.Contents)))
	return out, nil
}

// ListObjectsV2PagesWithContext hands out one key per page to exercise
// pagination.
func (f *fakeS3) ListObjectsV2PagesWithContext(ctx aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, opts ...request.Option) error {
	f.mu.Lock()
	if err := f.checkBucket(in.Bucket); err != nil {
		f.mu.Unlock()
		return err
	}
	keys := f.sortedKeys(aws.StringValue(in.Prefix))
	f.mu.Unlock()

	if len(keys) == 0 {
		fn(&s3.ListObjectsV2Output{}, true)
		return nil
	}
	for i, k := range keys {
		page := &s3.ListObjectsV2Output{Contents: []*s3.Object{{Key: aws.String(k)}}}
		if !fn(page, i == len(keys)-1) {
			break
		}
	}
	return nil
}

func (f *fakeS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	data, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObjectWithContext(ctx aws.Context, in *s3.HeadObjectInput, opts ...request.Option) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.StringValue(in.Key)]; !ok {
		return nil, awserr.New("NotFound", "not found", nil)
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts++
	f.objects[aws.StringValue(in.Key)] = data
	f.contentTypes[aws.StringValue(in.Key)] = aws.StringValue(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func TestS3StoreExistsAndList(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3("tickets")
	fake.objects["root/staged/staged_b.csv"] = []byte("b")
	fake.objects["root/staged/staged_a.csv"] = []byte("a")
	fake.objects["root/staged/"] = nil
	fake.objects["root/new.csv"] = []byte("n")
	store := NewS3Store(fake, "tickets", "/root/")

	ok, err := store.Exists(ctx, "staged/")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "quarantine/")
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := store.List(ctx, "staged/")
	require.NoError(t, err)
	assert.Equal(t, []string{"staged/staged_a.csv", "staged/staged_b.csv"}, keys)

	assert.Equal(t, "s3://tickets/root/new.csv", store.URL("new.csv"))
}

func TestS3StoreMissingBucketIsAbsent(t *testing.T) {
	store := NewS3Store(newFakeS3("tickets"), "elsewhere", "")
	ok, err := store.Exists(context.Background(), "staged/")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestS3StoreListError(t *testing.T) {
	fake := newFakeS3("tickets")
	fake.listErr = awserr.New("AccessDenied", "denied", nil)
	store := NewS3Store(fake, "tickets", "")

	_, err := store.Exists(context.Background(), "staged/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing s3://tickets/staged/")
}

func TestS3StoreGet(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3("tickets")
	fake.objects["new.csv"] = []byte("Key\nA\n")
	store := NewS3Store(fake, "tickets", "")

	data, err := store.Get(ctx, "new.csv")
	require.NoError(t, err)
	assert.Equal(t, "Key\nA\n", string(data))

	_, err = store.Get(ctx, "missing.csv")
	assert.Equal(t, ErrNotFound, err)
}

func TestS3StorePutNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3("tickets")
	store := NewS3Store(fake, "tickets", "")

	require.NoError(t, store.Put(ctx, "staged/a.csv", []byte("first"), "text/csv"))
	assert.Equal(t, "text/csv", fake.contentTypes["staged/a.csv"])

	err := store.Put(ctx, "staged/a.csv", []byte("second"), "text/csv")
	assert.True(t, errors.Is(err, ErrExists))
	assert.Equal(t, "first", string(fake.objects["staged/a.csv"]))
	assert.Equal(t, 1, fake.puts)
}

func TestS3StorePutError(t *testing.T) {
	fake := newFakeS3("tickets")
	fake.putErr = awserr.New("SlowDown", "try later", nil)
	store := NewS3Store(fake, "tickets", "")

	err := store.Put(context.Background(), "staged/a.csv", []byte("x"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "putting S3 object s3://tickets/staged/a.csv")
}
