package batch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/dunamismax/pixelpress/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	EventCompleted = "batch.completed"
	EventFailed    = "batch.failed"
)

type Transformer interface {
	Transform(ctx context.Context, input []byte, params domain.Params) (pipeline.Result, error)
}

// Installer receives the post-batch collection.
type Installer interface {
	ReplaceAll(records []domain.ImageRecord)
}

type ProgressSink interface {
	SetProgress(id string, progress int) error
}

// Source supplies the records RunStored processes.
type Source interface {
	List() []domain.ImageRecord
}

type Notifier interface {
	Notify(ctx context.Context, event string, payload any) error
}

// Outcome is the result of one record's transform. Record holds the updated
// record on success and the untouched input on failure.
type Outcome struct {
	ID     string
	Name   string
	Index  int
	Record domain.ImageRecord
	Err    error
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

type Report struct {
	Outcomes []Outcome
	Usage    domain.Usage
}

type Options struct {
	Policy     Policy
	Progress   ProgressSink
	Source     Source
	Notifier   Notifier
	Registerer prometheus.Registerer
}

// Orchestrator fans a batch of records out to the transformer and installs
// the results. Only one batch runs at a time.
type Orchestrator struct {
	logger      zerolog.Logger
	transformer Transformer
	installer   Installer
	progress    ProgressSink
	source      Source
	notifier    Notifier
	policy      Policy
	metrics     *metrics
	tracer      trace.Tracer
	processing  atomic.Bool
}

func NewOrchestrator(logger zerolog.Logger, transformer Transformer, installer Installer, opts Options) (*Orchestrator, error) {
	if transformer == nil {
		return nil, fmt.Errorf("transformer is required")
	}
	if installer == nil {
		return nil, fmt.Errorf("installer is required")
	}

	policy := opts.Policy
	if policy == "" {
		policy = PolicyAllOrNothing
	}
	if _, err := ParsePolicy(string(policy)); err != nil {
		return nil, err
	}

	return &Orchestrator{
		logger:      logger.With().Str("component", "batch").Logger(),
		transformer: transformer,
		installer:   installer,
		progress:    opts.Progress,
		source:      opts.Source,
		notifier:    opts.Notifier,
		policy:      policy,
		metrics:     newMetrics(opts.Registerer),
		tracer:      otel.Tracer("pixelpress/batch"),
	}, nil
}

// Processing reports whether a batch is in flight.
func (o *Orchestrator) Processing() bool {
	return o.processing.Load()
}

func (o *Orchestrator) Policy() Policy {
	return o.policy
}

// Run transforms every record concurrently with params and installs the
// results according to the policy. Outcomes keep the input order. When any
// transform fails the returned error is a *Failure.
func (o *Orchestrator) Run(ctx context.Context, records []domain.ImageRecord, params domain.Params) (Report, error) {
	params, err := o.claim(params)
	if err != nil {
		return Report{}, err
	}
	defer o.processing.Store(false)

	return o.run(ctx, records, params)
}

// RunStored is Run over the records currently held by the Source. The
// snapshot is taken after the processing flag is claimed, so intake that is
// rejected while processing cannot slip in between snapshot and install.
func (o *Orchestrator) RunStored(ctx context.Context, params domain.Params) (Report, error) {
	if o.source == nil {
		return Report{}, ErrNoSource
	}
	params, err := o.claim(params)
	if err != nil {
		return Report{}, err
	}
	defer o.processing.Store(false)

	return o.run(ctx, o.source.List(), params)
}

func (o *Orchestrator) claim(params domain.Params) (domain.Params, error) {
	params = params.Normalize()
	if err := params.Validate(); err != nil {
		return params, err
	}
	if !o.processing.CompareAndSwap(false, true) {
		return params, ErrBatchInProgress
	}
	return params, nil
}

func (o *Orchestrator) run(ctx context.Context, records []domain.ImageRecord, params domain.Params) (Report, error) {
	startedAt := time.Now()
	outcome := "failed"

	ctx, span := o.tracer.Start(ctx, "batch.run")
	span.SetAttributes(
		attribute.Int("batch.size", len(records)),
		attribute.String("batch.policy", string(o.policy)),
		attribute.String("image.format", params.Format),
		attribute.Int("image.max_width", params.MaxWidth),
	)
	defer span.End()
	defer func() {
		o.metrics.runDuration.WithLabelValues(outcome).Observe(time.Since(startedAt).Seconds())
		o.metrics.runsTotal.WithLabelValues(outcome).Inc()
	}()

	log := o.logger.With().Int("batch_size", len(records)).Str("format", params.Format).Logger()
	if len(records) == 0 {
		outcome = "empty"
		log.Debug().Msg("nothing to process")
		return Report{Usage: domain.Usage{CompletedAt: time.Now().UTC()}}, nil
	}
	log.Info().Int("max_width", params.MaxWidth).Int("quality", params.Quality).Msg("batch started")

	outcomes := o.fanOut(ctx, records, params)

	var failed []Outcome
	for _, out := range outcomes {
		if !out.OK() {
			failed = append(failed, out)
		}
	}

	report := Report{
		Outcomes: outcomes,
		Usage:    usageFor(outcomes, time.Since(startedAt)),
	}

	installed := 0
	if len(failed) == 0 || o.policy == PolicyPartial {
		next := make([]domain.ImageRecord, len(outcomes))
		for i, out := range outcomes {
			next[i] = out.Record
		}
		o.installer.ReplaceAll(next)
		installed = report.Usage.Succeeded
	} else {
		o.rollbackProgress(records, outcomes)
	}

	if len(failed) > 0 {
		failure := &Failure{Total: len(records), Failed: failed, Installed: installed}
		span.RecordError(failure)
		span.SetStatus(codes.Error, "batch failed")
		log.Warn().
			Err(failure).
			Int("failed", len(failed)).
			Int("installed", installed).
			Str("policy", string(o.policy)).
			Msg("batch failed")
		o.notify(ctx, EventFailed, failedPayload(report, failure))
		return report, failure
	}

	outcome = "succeeded"
	o.metrics.bytesSavedTotal.Add(float64(report.Usage.BytesSaved))
	o.metrics.pixelsProcessedTotal.Add(float64(report.Usage.PixelsProcessed))
	span.SetStatus(codes.Ok, "processed")
	log.Info().
		Int64("original_bytes", report.Usage.OriginalBytes).
		Int64("compressed_bytes", report.Usage.CompressedBytes).
		Int64("compute_time_ms", report.Usage.ComputeTimeMS).
		Msg("batch completed")
	o.notify(ctx, EventCompleted, completedPayload(report))
	return report, nil
}

func (o *Orchestrator) fanOut(ctx context.Context, records []domain.ImageRecord, params domain.Params) []Outcome {
	outcomes := make([]Outcome, len(records))

	var wg conc.WaitGroup
	for i, rec := range records {
		wg.Go(func() {
			outcomes[i] = o.transformOne(ctx, i, rec, params)
		})
	}
	wg.Wait()

	return outcomes
}

func (o *Orchestrator) transformOne(ctx context.Context, index int, rec domain.ImageRecord, params domain.Params) Outcome {
	out := Outcome{ID: rec.ID, Name: rec.Name, Index: index, Record: rec}
	if err := ctx.Err(); err != nil {
		out.Err = err
		o.metrics.transformsTotal.WithLabelValues(params.Format, "cancelled").Inc()
		return out
	}

	o.metrics.activeTransforms.Inc()
	var (
		res pipeline.Result
		err error
	)
	if recovered := panics.Try(func() {
		res, err = o.transformer.Transform(ctx, rec.Original, params)
	}); recovered != nil {
		err = fmt.Errorf("%w: %v", ErrTransformPanic, recovered.Value)
		o.logger.Error().
			Str("record_id", rec.ID).
			Str("stack", string(recovered.Stack)).
			Msg("transform panicked")
	}
	o.metrics.activeTransforms.Dec()
	if err != nil {
		out.Err = err
		o.metrics.transformsTotal.WithLabelValues(params.Format, "failed").Inc()
		o.logger.Debug().Err(err).Str("record_id", rec.ID).Str("name", rec.Name).Msg("transform failed")
		return out
	}

	o.metrics.transformsTotal.WithLabelValues(res.Format, "succeeded").Inc()
	o.metrics.originalBytesTotal.Add(float64(rec.OriginalSize))
	o.metrics.compressedBytesTotal.Add(float64(len(res.Data)))

	out.Record = rec.WithResult(res.Data, res.Format, res.Width, res.Height)
	if o.progress != nil {
		if err := o.progress.SetProgress(rec.ID, 100); err != nil {
			o.logger.Debug().Err(err).Str("record_id", rec.ID).Msg("progress update skipped")
		}
	}
	return out
}

// rollbackProgress restores the progress reported for records whose results
// were not installed.
func (o *Orchestrator) rollbackProgress(records []domain.ImageRecord, outcomes []Outcome) {
	if o.progress == nil {
		return
	}
	for i, out := range outcomes {
		if !out.OK() {
			continue
		}
		if err := o.progress.SetProgress(out.ID, records[i].Progress); err != nil {
			o.logger.Debug().Err(err).Str("record_id", out.ID).Msg("progress rollback skipped")
		}
	}
}

func (o *Orchestrator) notify(ctx context.Context, event string, payload map[string]any) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(ctx, event, payload); err != nil {
		o.logger.Warn().Err(err).Str("event", event).Msg("notification delivery failed")
	}
}

func usageFor(outcomes []Outcome, elapsed time.Duration) domain.Usage {
	usage := domain.Usage{Records: len(outcomes)}
	for _, out := range outcomes {
		if !out.OK() {
			usage.Failed++
			continue
		}
		usage.Succeeded++
		usage.PixelsProcessed += int64(out.Record.Width * out.Record.Height)
		usage.OriginalBytes += out.Record.OriginalSize
		usage.CompressedBytes += *out.Record.CompressedSize
	}

	usage.BytesSaved = max(usage.OriginalBytes-usage.CompressedBytes, 0)
	usage.ComputeTimeMS = max(elapsed.Milliseconds(), 1)
	usage.CompletedAt = time.Now().UTC()
	return usage
}

func completedPayload(report Report) map[string]any {
	return map[string]any{
		"status":       "succeeded",
		"records":      report.Usage.Records,
		"usage":        report.Usage,
		"completed_at": report.Usage.CompletedAt,
	}
}

func failedPayload(report Report, failure *Failure) map[string]any {
	errs := make([]map[string]any, 0, len(failure.Failed))
	for _, out := range failure.Failed {
		errs = append(errs, map[string]any{
			"id":    out.ID,
			"name":  out.Name,
			"index": out.Index,
			"error": out.Err.Error(),
		})
	}
	return map[string]any{
		"status":    "failed",
		"records":   report.Usage.Records,
		"failed":    len(failure.Failed),
		"installed": failure.Installed,
		"errors":    errs,
		"failed_at": report.Usage.CompletedAt,
	}
}
