//go:build !govips || !cgo

package pipeline

// Shutdown is a no-op without libvips.
func Shutdown() {}

// WebPSupported reports whether this build can encode webp.
func WebPSupported() bool {
	return false
}

func newTransformer(cfg runtimeConfig) (Transformer, error) {
	return stdlibTransformer{resampler: cfg.resampler, workers: cfg.workers, maxPixels: cfg.maxPixels}, nil
}
