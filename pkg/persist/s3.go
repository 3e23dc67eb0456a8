package persist

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the slice of the S3 client the backend uses. *s3.Client
// satisfies it.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Backend stores keys as objects in an S3 bucket.
//
//	cfg, _ := config.LoadDefaultConfig(context.Background())
//	backend := persist.NewS3Backend(s3.NewFromConfig(cfg), "my-bucket")
type S3Backend struct {
	client S3API
	bucket string
	prefix string

	mu     sync.Mutex
	closed bool
}

// S3Option configures S3Backend behavior.
type S3Option func(*s3Config)

type s3Config struct {
	prefix string
}

// WithS3Prefix sets the object key prefix. Default: "tether/state/".
func WithS3Prefix(prefix string) S3Option {
	return func(c *s3Config) {
		c.prefix = prefix
	}
}

// NewS3Backend creates an S3-backed store.
func NewS3Backend(client S3API, bucket string, opts ...S3Option) *S3Backend {
	cfg := &s3Config{
		prefix: "tether/state/",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &S3Backend{
		client: client,
		bucket: bucket,
		prefix: cfg.prefix,
	}
}

func (b *S3Backend) key(key string) string {
	return b.prefix + key
}

func (b *S3Backend) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Read returns the object contents for key, or ErrNotFound.
func (b *S3Backend) Read(ctx context.Context, key string) ([]byte, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

// Write stores data as the object for key.
func (b *S3Backend) Write(ctx context.Context, key string, data []byte) error {
	if b.isClosed() {
		return ErrClosed
	}

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.key(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	return err
}

// Delete removes the object for key.
func (b *S3Backend) Delete(ctx context.Context, key string) error {
	if b.isClosed() {
		return ErrClosed
	}

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(key)),
	})
	return err
}

// Keys lists stored keys under the prefix.
func (b *S3Backend) Keys(ctx context.Context) ([]string, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}

	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.prefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			keys = append(keys, strings.TrimPrefix(*obj.Key, b.prefix))
		}
	}
	return keys, nil
}

// Close marks the backend closed. The client is left open for its
// other users.
func (b *S3Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
