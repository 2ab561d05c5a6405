package domain

import "time"

// Usage summarises one batch run.
type Usage struct {
	Records         int       `json:"records"`
	Succeeded       int       `json:"succeeded"`
	Failed          int       `json:"failed"`
	PixelsProcessed int64     `json:"pixels_processed"`
	OriginalBytes   int64     `json:"original_bytes"`
	CompressedBytes int64     `json:"compressed_bytes"`
	BytesSaved      int64     `json:"bytes_saved"`
	ComputeTimeMS   int64     `json:"compute_time_ms"`
	CompletedAt     time.Time `json:"completed_at"`
}
