package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dunamismax/pixelpress/internal/batch"
	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/dunamismax/pixelpress/internal/export"
	"github.com/dunamismax/pixelpress/internal/images"
	"github.com/dunamismax/pixelpress/internal/pipeline"
	"github.com/dunamismax/pixelpress/internal/preset"
	"github.com/dunamismax/pixelpress/internal/queue"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultMaxUploadBytes = 64 << 20

type batchRunner interface {
	RunStored(ctx context.Context, params domain.Params) (batch.Report, error)
	Processing() bool
}

type compressQueue interface {
	EnqueueCompress(ctx context.Context, payload queue.CompressPayload) (*asynq.TaskInfo, error)
	Queue() string
}

type Deps struct {
	Records  *images.Store
	Params   *pipeline.ParamSet
	Presets  *preset.Store
	Batch    batchRunner
	Exporter export.Exporter
	// Queue enables POST /v1/compress/async when set.
	Queue compressQueue

	RateLimiter           RateLimiter
	RateLimitUserIDHeader string
	MaxUploadBytes        int64
	Registry              *prometheus.Registry
}

type Server struct {
	logger                zerolog.Logger
	records               *images.Store
	params                *pipeline.ParamSet
	presets               *preset.Store
	batch                 batchRunner
	exporter              export.Exporter
	queue                 compressQueue
	rateLimiter           RateLimiter
	rateLimitUserIDHeader string
	maxUploadBytes        int64
	metrics               *metrics
	tracer                trace.Tracer
	router                chi.Router
}

func NewServer(logger zerolog.Logger, deps Deps) (*Server, error) {
	switch {
	case deps.Records == nil:
		return nil, errors.New("image store is required")
	case deps.Params == nil:
		return nil, errors.New("parameter set is required")
	case deps.Presets == nil:
		return nil, errors.New("preset store is required")
	case deps.Batch == nil:
		return nil, errors.New("batch runner is required")
	}

	header := deps.RateLimitUserIDHeader
	if header == "" {
		header = "X-User-ID"
	}
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}

	s := &Server{
		logger:                logger.With().Str("component", "api").Logger(),
		records:               deps.Records,
		params:                deps.Params,
		presets:               deps.Presets,
		batch:                 deps.Batch,
		exporter:              deps.Exporter,
		queue:                 deps.Queue,
		rateLimiter:           deps.RateLimiter,
		rateLimitUserIDHeader: header,
		maxUploadBytes:        maxUpload,
		metrics:               newMetrics(deps.Registry),
		tracer:                otel.Tracer("pixelpress/api"),
	}
	s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.withHTTPMetrics)
	r.Use(s.withTracing)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", s.metrics.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		limited := r.With(s.limit(unitCost))
		weighted := r.With(s.limit(s.batchCost))

		r.Get("/images", s.handleListImages)
		limited.Post("/images", s.handleAddImages)
		limited.Delete("/images", s.handleClearImages)
		limited.Post("/images/export", s.handleExport)
		limited.Delete("/images/{id}", s.handleRemoveImage)
		r.Get("/images/{id}/download", s.handleDownload)

		weighted.Post("/compress", s.handleCompress)
		weighted.Post("/compress/async", s.handleEnqueueCompress)

		r.Get("/params", s.handleGetParams)
		limited.Put("/params", s.handlePutParams)

		r.Get("/presets", s.handleListPresets)
		limited.Post("/presets", s.handleSavePreset)
		limited.Post("/presets/{name}/apply", s.handleApplyPreset)

		r.Get("/previews/{handle}", s.handlePreview)
	})

	s.router = r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"processing": s.batch.Processing(),
		"webp":       pipeline.WebPSupported(),
	})
}

// rejectWhileProcessing answers 409 for collection mutations during a batch,
// whose install would otherwise discard them.
func (s *Server) rejectWhileProcessing(w http.ResponseWriter) bool {
	if !s.batch.Processing() {
		return false
	}
	writeJSON(w, http.StatusConflict, map[string]string{"error": batch.ErrBatchInProgress.Error()})
	return true
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if decoder.More() {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
