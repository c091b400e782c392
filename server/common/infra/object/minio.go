package object

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func NewClient(endpoint, accessKey, secretKey string, useSSL bool) (*minio.Client, error) {
	return minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
}

func EnsureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}

// ObjectKey joins prefix and key without doubling or leading slashes.
func ObjectKey(prefix, key string) string {
	cleaned := strings.TrimPrefix(strings.TrimSpace(key), "/")
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return cleaned
	}
	if strings.HasPrefix(cleaned, prefix+"/") {
		return cleaned
	}
	return prefix + "/" + cleaned
}

// Bucket binds a client to one bucket and key prefix.
type Bucket struct {
	client *minio.Client
	name   string
	prefix string
}

func NewBucket(client *minio.Client, name, prefix string) *Bucket {
	return &Bucket{client: client, name: name, prefix: prefix}
}

func (b *Bucket) key(key string) string {
	return ObjectKey(b.prefix, key)
}

func (b *Bucket) PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := b.client.PresignedPutObject(ctx, b.name, b.key(key), ttl)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (b *Bucket) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := b.client.PresignedGetObject(ctx, b.name, b.key(key), ttl, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (b *Bucket) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return b.client.GetObject(ctx, b.name, b.key(key), minio.GetObjectOptions{})
}

func (b *Bucket) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := b.client.PutObject(ctx, b.name, b.key(key), r, size, minio.PutObjectOptions{ContentType: contentType})
	return err
}
