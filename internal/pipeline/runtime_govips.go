//go:build govips && cgo

package pipeline

import (
	"errors"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
)

var errVipsStopped = errors.New("libvips has been shut down")

// libvips may be started once per process; the first engine's settings win.
var vipsRuntime struct {
	sync.Mutex
	started bool
	stopped bool
}

func startVips(cfg runtimeConfig) error {
	vipsRuntime.Lock()
	defer vipsRuntime.Unlock()

	if vipsRuntime.stopped {
		return errVipsStopped
	}
	if vipsRuntime.started {
		return nil
	}
	vips.LoggingSettings(nil, vips.LogLevelWarning)
	vips.Startup(&vips.Config{
		ConcurrencyLevel: cfg.workers,
		MaxCacheFiles:    0,
		MaxCacheMem:      cfg.cacheMB << 20,
		MaxCacheSize:     100,
	})
	vipsRuntime.started = true
	return nil
}

// Shutdown stops libvips. Engines built afterwards fail.
func Shutdown() {
	vipsRuntime.Lock()
	defer vipsRuntime.Unlock()
	if !vipsRuntime.started {
		return
	}
	vips.Shutdown()
	vipsRuntime.started = false
	vipsRuntime.stopped = true
}

func WebPSupported() bool {
	return true
}

func newTransformer(cfg runtimeConfig) (Transformer, error) {
	if err := startVips(cfg); err != nil {
		return nil, err
	}
	return govipsTransformer{kernel: kernelFor(cfg.resampler.Name()), maxPixels: cfg.maxPixels}, nil
}

func kernelFor(resampler string) vips.Kernel {
	switch resampler {
	case ResamplerNearest:
		return vips.KernelNearest
	case ResamplerCatmullRom:
		return vips.KernelCubic
	case ResamplerLanczos3:
		return vips.KernelLanczos3
	default:
		return vips.KernelLinear
	}
}
