package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint string
	Access   string
	Secret   string
	Bucket   string
	// Region skips the bucket-location lookup when set.
	Region string
	UseSSL bool
}

// Object describes an uploaded image.
type Object struct {
	Key  string
	ETag string
	Size int64
}

// Client stores exported images in one S3-compatible bucket.
type Client struct {
	minio  *minio.Client
	bucket string
	region string
}

func NewClient(cfg Config) (*Client, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Access, cfg.Secret, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Client{minio: mc, bucket: bucket, region: cfg.Region}, nil
}

func (c *Client) Bucket() string {
	return c.bucket
}

// EnsureBucket creates the bucket unless it exists. A concurrent creator
// winning the race is not an error.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minio.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}
	if exists {
		return nil
	}

	err = c.minio.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: c.region})
	if err == nil {
		return nil
	}
	if resp := minio.ToErrorResponse(err); resp.Code == "BucketAlreadyOwnedByYou" {
		return nil
	}
	return fmt.Errorf("create bucket %s: %w", c.bucket, err)
}

// PutImage uploads one image. meta becomes x-amz-meta-* headers.
func (c *Client) PutImage(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) (Object, error) {
	info, err := c.minio.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: meta,
	})
	if err != nil {
		return Object{}, fmt.Errorf("put %s: %w", key, err)
	}
	return Object{Key: info.Key, ETag: info.ETag, Size: info.Size}, nil
}

// Presign returns a time-limited GET URL for key.
func (c *Client) Presign(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := c.minio.PresignedGetObject(ctx, c.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}
