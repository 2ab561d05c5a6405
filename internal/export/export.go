package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/dunamismax/pixelpress/internal/storage"
)

const (
	DefaultDir    = "./.pixelpress-output"
	DefaultPrefix = "exports"
)

// Written describes one exported file.
type Written struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
	Bytes    int    `json:"bytes"`
	URL      string `json:"url,omitempty"`
}

// Exporter writes a record's download bytes under its download name.
type Exporter interface {
	Export(ctx context.Context, rec domain.ImageRecord) (Written, error)
}

// ExportAll exports records in order and stops at the first error.
func ExportAll(ctx context.Context, exp Exporter, records []domain.ImageRecord) ([]Written, error) {
	written := make([]Written, 0, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		w, err := exp.Export(ctx, rec)
		if err != nil {
			return written, fmt.Errorf("export %s: %w", rec.Name, err)
		}
		written = append(written, w)
	}
	return written, nil
}

type DirExporter struct {
	dir string
}

func NewDirExporter(dir string) (*DirExporter, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &DirExporter{dir: dir}, nil
}

func (e *DirExporter) Export(_ context.Context, rec domain.ImageRecord) (Written, error) {
	name := rec.DownloadName()
	target := filepath.Join(e.dir, name)
	data := rec.DownloadBytes()

	if err := os.WriteFile(target, data, 0o644); err != nil {
		return Written{}, fmt.Errorf("write %s: %w", target, err)
	}
	return Written{ID: rec.ID, Name: name, Location: target, Bytes: len(data)}, nil
}

// ObjectWriter is the part of the storage client the exporter needs.
type ObjectWriter interface {
	Bucket() string
	PutImage(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) (storage.Object, error)
	Presign(ctx context.Context, key string, expiry time.Duration) (string, error)
}

type ObjectStoreExporter struct {
	storage ObjectWriter
	prefix  string
	expiry  time.Duration
}

// NewObjectStoreExporter uploads under prefix. A positive linkExpiry adds a
// presigned download URL to every Written.
func NewObjectStoreExporter(storage ObjectWriter, prefix string, linkExpiry time.Duration) (*ObjectStoreExporter, error) {
	if storage == nil {
		return nil, errors.New("storage client is required")
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &ObjectStoreExporter{storage: storage, prefix: prefix, expiry: linkExpiry}, nil
}

func (e *ObjectStoreExporter) Export(ctx context.Context, rec domain.ImageRecord) (Written, error) {
	name := rec.DownloadName()
	key := path.Join(e.prefix, name)
	data := rec.DownloadBytes()

	meta := map[string]string{
		"original-name": rec.Name,
		"original-size": strconv.FormatInt(rec.OriginalSize, 10),
	}
	if rec.HasCompressed() {
		meta["format"] = rec.Format
	}

	obj, err := e.storage.PutImage(ctx, key, data, rec.CurrentContentType(), meta)
	if err != nil {
		return Written{}, err
	}

	w := Written{
		ID:       rec.ID,
		Name:     name,
		Location: fmt.Sprintf("s3://%s/%s", e.storage.Bucket(), obj.Key),
		Bytes:    len(data),
	}
	if e.expiry > 0 {
		if w.URL, err = e.storage.Presign(ctx, obj.Key, e.expiry); err != nil {
			return Written{}, err
		}
	}
	return w, nil
}
