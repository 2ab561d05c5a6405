package batch

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	runsTotal            *prometheus.CounterVec
	runDuration          *prometheus.HistogramVec
	transformsTotal      *prometheus.CounterVec
	activeTransforms     prometheus.Gauge
	originalBytesTotal   prometheus.Counter
	compressedBytesTotal prometheus.Counter
	pixelsProcessedTotal prometheus.Counter
	bytesSavedTotal      prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelpress_batch_runs_total",
			Help: "Total batch runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelpress_batch_duration_seconds",
			Help:    "Wall time of each batch run from fan-out to install.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		transformsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelpress_transforms_total",
			Help: "Total per-record transforms by output format and outcome.",
		}, []string{"format", "outcome"}),
		activeTransforms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelpress_active_transforms",
			Help: "Transforms currently in flight.",
		}),
		originalBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelpress_original_bytes_total",
			Help: "Total source bytes of successfully transformed records.",
		}),
		compressedBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelpress_compressed_bytes_total",
			Help: "Total output bytes of successfully transformed records.",
		}),
		pixelsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelpress_pixels_processed_total",
			Help: "Total output pixels across successful transforms.",
		}),
		bytesSavedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelpress_bytes_saved_total",
			Help: "Total bytes saved across successful batches.",
		}),
	}

	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	reg.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.transformsTotal,
		m.activeTransforms,
		m.originalBytesTotal,
		m.compressedBytesTotal,
		m.pixelsProcessedTotal,
		m.bytesSavedTotal,
	)
	return m
}
