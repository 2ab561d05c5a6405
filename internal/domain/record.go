package domain

import "path/filepath"

const DownloadPrefix = "compressed_"

// Upload is one file handed over by the intake boundary.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// ImageRecord is the unit of work tracked through intake, transform and
// display. Records are values: every change produces a new record.
type ImageRecord struct {
	ID           string
	Name         string
	ContentType  string
	Original     []byte
	OriginalSize int64

	// Preview resolves to Compressed when present, otherwise to Original.
	Preview string

	Compressed []byte
	// CompressedSize is nil until a transform succeeded.
	CompressedSize *int64
	Format         string
	Width          int
	Height         int

	Progress int
}

func (r ImageRecord) HasCompressed() bool {
	return r.CompressedSize != nil
}

// CurrentBytes returns the bytes the preview must show.
func (r ImageRecord) CurrentBytes() []byte {
	if r.HasCompressed() {
		return r.Compressed
	}
	return r.Original
}

func (r ImageRecord) CurrentContentType() string {
	if r.HasCompressed() {
		return ContentTypeForFormat(r.Format)
	}
	return r.ContentType
}

func (r ImageRecord) DownloadName() string {
	return DownloadPrefix + filepath.Base(r.Name)
}

func (r ImageRecord) DownloadBytes() []byte {
	return r.CurrentBytes()
}

// WithResult returns a copy of r carrying a transform result. The preview
// handle is cleared so the store mints one for the new bytes.
func (r ImageRecord) WithResult(data []byte, format string, width, height int) ImageRecord {
	size := int64(len(data))
	r.Compressed = data
	r.CompressedSize = &size
	r.Format = format
	r.Width = width
	r.Height = height
	r.Preview = ""
	r.Progress = 100
	return r
}

func (r ImageRecord) WithProgress(progress int) ImageRecord {
	r.Progress = min(max(progress, 0), 100)
	return r
}
