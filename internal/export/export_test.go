package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/dunamismax/pixelpress/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBucket struct {
	objects      map[string][]byte
	contentTypes map[string]string
	meta         map[string]map[string]string
	failOn       string
}

func newMemoryBucket() *memoryBucket {
	return &memoryBucket{
		objects:      map[string][]byte{},
		contentTypes: map[string]string{},
		meta:         map[string]map[string]string{},
	}
}

func (b *memoryBucket) Bucket() string { return "exports-bucket" }

func (b *memoryBucket) PutImage(_ context.Context, key string, data []byte, contentType string, meta map[string]string) (storage.Object, error) {
	if key == b.failOn {
		return storage.Object{}, errors.New("bucket unavailable")
	}
	b.objects[key] = data
	b.contentTypes[key] = contentType
	b.meta[key] = meta
	return storage.Object{Key: key, Size: int64(len(data))}, nil
}

func (b *memoryBucket) Presign(_ context.Context, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://signed.example/%s?ttl=%d", key, int(expiry.Seconds())), nil
}

func records() []domain.ImageRecord {
	original := domain.ImageRecord{ID: "1", Name: "photos/cat.png", ContentType: "image/png", Original: []byte("original"), OriginalSize: 8}
	compressed := domain.ImageRecord{ID: "2", Name: "dog.png", ContentType: "image/png", Original: []byte("original"), OriginalSize: 8}.
		WithResult([]byte("small"), domain.FormatJPEG, 10, 10)
	return []domain.ImageRecord{original, compressed}
}

func TestDirExporterWritesDownloadBytes(t *testing.T) {
	dir := t.TempDir()
	exp, err := NewDirExporter(dir)
	require.NoError(t, err)

	written, err := ExportAll(context.Background(), exp, records())
	require.NoError(t, err)
	require.Len(t, written, 2)

	assert.Equal(t, "compressed_cat.png", written[0].Name)
	data, err := os.ReadFile(filepath.Join(dir, "compressed_cat.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), data, "falls back to original bytes")

	data, err = os.ReadFile(filepath.Join(dir, "compressed_dog.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("small"), data)
	assert.Equal(t, 5, written[1].Bytes)
}

func TestObjectStoreExporter(t *testing.T) {
	bucket := newMemoryBucket()
	exp, err := NewObjectStoreExporter(bucket, "/batch-1/", 0)
	require.NoError(t, err)

	written, err := ExportAll(context.Background(), exp, records())
	require.NoError(t, err)

	assert.Equal(t, []byte("small"), bucket.objects["batch-1/compressed_dog.png"])
	assert.Equal(t, "image/jpeg", bucket.contentTypes["batch-1/compressed_dog.png"])
	assert.Equal(t, "image/png", bucket.contentTypes["batch-1/compressed_cat.png"])
	assert.Equal(t, "s3://exports-bucket/batch-1/compressed_cat.png", written[0].Location)
	assert.Empty(t, written[0].URL)

	assert.Equal(t, map[string]string{"original-name": "dog.png", "original-size": "8", "format": domain.FormatJPEG},
		bucket.meta["batch-1/compressed_dog.png"])
	assert.NotContains(t, bucket.meta["batch-1/compressed_cat.png"], "format")
}

func TestObjectStoreExporterPresignsLinks(t *testing.T) {
	exp, err := NewObjectStoreExporter(newMemoryBucket(), "", time.Hour)
	require.NoError(t, err)

	written, err := ExportAll(context.Background(), exp, records()[1:])
	require.NoError(t, err)
	require.Len(t, written, 1)
	assert.Equal(t, "https://signed.example/exports/compressed_dog.png?ttl=3600", written[0].URL)
}

func TestExportAllStopsAtFirstError(t *testing.T) {
	bucket := newMemoryBucket()
	bucket.failOn = "exports/compressed_cat.png"
	exp, err := NewObjectStoreExporter(bucket, "", 0)
	require.NoError(t, err)

	written, err := ExportAll(context.Background(), exp, records())
	require.Error(t, err)
	assert.Empty(t, written)
	assert.Empty(t, bucket.objects)
}

func TestNewObjectStoreExporterRequiresStorage(t *testing.T) {
	_, err := NewObjectStoreExporter(nil, "", 0)
	assert.Error(t, err)
}
