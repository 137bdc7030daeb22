// Package mock provides an in-memory blob Client for unit tests.
package mock

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/forensiq/forensiq/internal/blob"
)

// Client is a thread-safe in-memory implementation of blob.Client.
// Objects are keyed "bucket/key"; signed URLs are deterministic fakes.
type Client struct {
	mu      sync.Mutex
	objects map[string][]byte

	// CopyErrors maps "bucket/key" copy destinations to an error, for
	// partial-failure tests.
	CopyErrors map[string]error
	// FailUploads makes every Upload fail.
	FailUploads error

	Copies  int
	Deletes []string
}

func NewClient() *Client {
	return &Client{objects: map[string][]byte{}}
}

func path(bucket, key string) string { return bucket + "/" + key }

// Put seeds an object directly, for test setup.
func (c *Client) Put(bucket, key string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[path(bucket, key)] = body
}

// Get returns a stored object and whether it exists.
func (c *Client) Get(bucket, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.objects[path(bucket, key)]
	return b, ok
}

func (c *Client) Upload(_ context.Context, bucket, key string, body io.Reader, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailUploads != nil {
		return c.FailUploads
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	c.objects[path(bucket, key)] = b
	return nil
}

func (c *Client) List(_ context.Context, bucket, prefix string) ([]blob.Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	full := path(bucket, prefix)
	var out []blob.Object
	for k, v := range c.objects {
		if strings.HasPrefix(k, full) {
			out = append(out, blob.Object{Key: strings.TrimPrefix(k, bucket+"/"), Size: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (c *Client) ServerSideCopy(_ context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	dst := path(dstBucket, dstKey)
	if err, ok := c.CopyErrors[dst]; ok {
		return err
	}
	src, ok := c.objects[path(srcBucket, srcKey)]
	if !ok {
		return fmt.Errorf("source object %s/%s not found", srcBucket, srcKey)
	}
	c.objects[dst] = append([]byte(nil), src...)
	c.Copies++
	return nil
}

func (c *Client) DeletePrefix(_ context.Context, bucket, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	full := path(bucket, prefix)
	for k := range c.objects {
		if strings.HasPrefix(k, full) {
			delete(c.objects, k)
		}
	}
	c.Deletes = append(c.Deletes, full)
	return nil
}

func (c *Client) SignedGetURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return fmt.Sprintf("https://blob.test/%s/%s?sig=get", bucket, key), nil
}

func (c *Client) SignedPutURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return fmt.Sprintf("https://blob.test/%s/%s?sig=put", bucket, key), nil
}
