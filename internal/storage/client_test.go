package storage

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientRequiresBucket(t *testing.T) {
	_, err := NewClient(Config{Endpoint: "localhost:9000", Access: "a", Secret: "b", Bucket: "  "})
	assert.Error(t, err)
}

func TestNewClientKeepsBucket(t *testing.T) {
	c, err := NewClient(Config{Endpoint: "localhost:9000", Access: "a", Secret: "b", Bucket: "pixelpress-exports"})
	require.NoError(t, err)
	assert.Equal(t, "pixelpress-exports", c.Bucket())
}

func TestPresignIsOfflineWithRegion(t *testing.T) {
	c, err := NewClient(Config{
		Endpoint: "localhost:9000",
		Access:   "minioadmin",
		Secret:   "minioadmin",
		Bucket:   "pixelpress-exports",
		Region:   "us-east-1",
	})
	require.NoError(t, err)

	raw, err := c.Presign(context.Background(), "exports/compressed_cat.png", 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/pixelpress-exports/exports/compressed_cat.png", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}
