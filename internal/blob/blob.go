package blob

import (
	"context"
	"io"
	"time"
)

// Object describes a stored blob.
type Object struct {
	Key  string
	Size int64
}

// Client defines the interface for object storage operations. Keys are
// always scoped by an explicit bucket so the pipeline's source, MMRK,
// watermarked, output and tmp stores can live side by side.
type Client interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader, contentType string) error
	List(ctx context.Context, bucket, prefix string) ([]Object, error)
	ServerSideCopy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error
	DeletePrefix(ctx context.Context, bucket, prefix string) error
	SignedGetURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
	SignedPutURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}
