package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/pixelpress/internal/batch"
	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/dunamismax/pixelpress/internal/queue"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Runner executes one batch over the records held when it starts.
// *batch.Orchestrator satisfies it.
type Runner interface {
	RunStored(ctx context.Context, params domain.Params) (batch.Report, error)
}

type Config struct {
	Queue       string
	Concurrency int
	Registerer  prometheus.Registerer
}

type Server struct {
	logger  zerolog.Logger
	server  *asynq.Server
	runner  Runner
	metrics *metrics
	tracer  trace.Tracer
}

func NewServer(logger zerolog.Logger, redisOpt asynq.RedisConnOpt, cfg Config, runner Runner) (*Server, error) {
	if runner == nil {
		return nil, errors.New("batch runner is required")
	}
	if cfg.Queue == "" {
		cfg.Queue = "default"
	}

	logger = logger.With().Str("component", "worker").Str("queue", cfg.Queue).Logger()
	s := &Server{
		logger:  logger,
		runner:  runner,
		metrics: newMetrics(cfg.Registerer),
		tracer:  otel.Tracer("pixelpress/worker"),
	}
	if redisOpt != nil {
		s.server = asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: max(1, cfg.Concurrency),
			Queues:      map[string]int{cfg.Queue: 1},
			LogLevel:    asynq.WarnLevel,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				if errors.Is(err, batch.ErrBatchInProgress) {
					return 2 * time.Second
				}
				return asynq.DefaultRetryDelayFunc(n, err, task)
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Warn().Err(err).Str("type", task.Type()).Int("retry", retried).Int("max_retry", maxRetry).Msg("task failed")
			}),
		})
	}
	return s, nil
}

func (s *Server) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeCompressBatch, s.handleCompress)
	return mux
}

// Start begins consuming in the background.
func (s *Server) Start() error {
	if s.server == nil {
		return errors.New("worker has no redis connection")
	}
	return s.server.Start(s.mux())
}

func (s *Server) Shutdown() {
	if s.server != nil {
		s.server.Shutdown()
	}
}

func (s *Server) handleCompress(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := "failed"
	defer func() {
		s.metrics.taskDuration.WithLabelValues(outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.tasksTotal.WithLabelValues(outcome).Inc()
	}()

	payload, err := queue.ParseCompressPayload(task)
	if err != nil {
		outcome = "rejected"
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.compress", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("request.id", payload.RequestID),
		attribute.String("params.format", payload.Params.Format),
	)
	defer span.End()

	s.logger.Info().Str("request_id", payload.RequestID).Msg("running queued batch")

	report, err := s.runner.RunStored(ctx, payload.Params)
	var failure *batch.Failure
	switch {
	case err == nil:
		outcome = "succeeded"
		span.SetStatus(codes.Ok, "compressed")
		s.logger.Info().
			Str("request_id", payload.RequestID).
			Int("records", report.Usage.Records).
			Int("succeeded", report.Usage.Succeeded).
			Int64("bytes_saved", report.Usage.BytesSaved).
			Msg("queued batch finished")
		return nil
	case errors.Is(err, batch.ErrBatchInProgress):
		outcome = "busy"
		return err
	case errors.As(err, &failure), errors.Is(err, domain.ErrInvalidParams):
		// Per-item failures are final; retrying the same bytes cannot help.
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch failed")
		return fmt.Errorf("run batch: %w: %w", err, asynq.SkipRetry)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch error")
		return fmt.Errorf("run batch: %w", err)
	}
}
