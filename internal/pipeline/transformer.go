package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrDecode            = errors.New("decode failed")
	ErrEncode            = errors.New("encode failed")
	ErrUnsupportedFormat = errors.New("unsupported output format")
	ErrSurfaceTooLarge   = errors.New("image surface exceeds pixel budget")
)

// DefaultMaxPixels bounds both the decoded source and the scaled surface,
// roughly 400 MB of RGBA.
const DefaultMaxPixels int64 = 100_000_000

type ErrorKind string

const (
	KindDecode ErrorKind = "decode"
	KindEncode ErrorKind = "encode"
)

// TransformError is returned for any decode or encode failure. Callers match
// it with errors.Is(err, ErrDecode) / errors.Is(err, ErrEncode).
type TransformError struct {
	Kind   ErrorKind
	Format string
	Err    error
}

func (e *TransformError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("%s %s: %v", e.Kind, e.Format, e.Err)
	}
	return fmt.Sprintf("%s source image: %v", e.Kind, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

func (e *TransformError) Is(target error) bool {
	switch target {
	case ErrDecode:
		return e.Kind == KindDecode
	case ErrEncode:
		return e.Kind == KindEncode
	default:
		return false
	}
}

func decodeError(err error) error {
	return &TransformError{Kind: KindDecode, Err: err}
}

func encodeError(format string, err error) error {
	return &TransformError{Kind: KindEncode, Format: format, Err: err}
}

func IsDecodeError(err error) bool { return errors.Is(err, ErrDecode) }

func IsEncodeError(err error) bool { return errors.Is(err, ErrEncode) }

// Result is one encoded output. len(Data) is the compressed size.
type Result struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

type Transformer interface {
	Transform(ctx context.Context, input []byte, params domain.Params) (Result, error)
}

// Engine is the decode, scale, filter, encode function applied per record.
// It is safe for concurrent use.
type Engine struct {
	logger      zerolog.Logger
	transformer Transformer
	tracer      trace.Tracer
}

type Option func(*engineOptions)

type engineOptions struct {
	resampler   string
	workers     int
	cacheMB     int
	maxPixels   int64
	transformer Transformer
}

// runtimeConfig is what the build-selected backend is constructed from.
type runtimeConfig struct {
	resampler Resampler
	// workers bounds per-image parallelism; 0 means GOMAXPROCS.
	workers int
	// cacheMB sizes the libvips operation cache. The stdlib backend has none.
	cacheMB int
	// maxPixels caps width*height of any surface a transform allocates.
	maxPixels int64
}

// WithResampler selects the scaling kernel by name, see ParseResampler.
func WithResampler(name string) Option {
	return func(o *engineOptions) { o.resampler = name }
}

// WithWorkers bounds the goroutines or libvips threads one transform uses.
func WithWorkers(n int) Option {
	return func(o *engineOptions) { o.workers = n }
}

// WithCacheMB sizes the libvips operation cache.
func WithCacheMB(mb int) Option {
	return func(o *engineOptions) { o.cacheMB = mb }
}

// WithMaxPixels caps the pixel count of source and output surfaces.
// Zero or less keeps DefaultMaxPixels.
func WithMaxPixels(n int64) Option {
	return func(o *engineOptions) { o.maxPixels = n }
}

// WithTransformer replaces the build-selected transformer.
func WithTransformer(t Transformer) Option {
	return func(o *engineOptions) { o.transformer = t }
}

func NewEngine(logger zerolog.Logger, opts ...Option) (*Engine, error) {
	o := engineOptions{resampler: ResamplerBiLinear, cacheMB: 128}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxPixels <= 0 {
		o.maxPixels = DefaultMaxPixels
	}

	transformer := o.transformer
	if transformer == nil {
		resampler, err := ParseResampler(o.resampler)
		if err != nil {
			return nil, err
		}
		transformer, err = newTransformer(runtimeConfig{
			resampler: resampler,
			workers:   max(o.workers, 0),
			cacheMB:   max(o.cacheMB, 0),
			maxPixels: o.maxPixels,
		})
		if err != nil {
			return nil, fmt.Errorf("build transformer: %w", err)
		}
	}

	return &Engine{
		logger:      logger.With().Str("component", "pipeline").Logger(),
		transformer: transformer,
		tracer:      otel.Tracer("pixelpress/pipeline"),
	}, nil
}

// Transform normalises and validates params, then runs the transformer.
func (e *Engine) Transform(ctx context.Context, input []byte, params domain.Params) (Result, error) {
	params = params.Normalize()
	if err := params.Validate(); err != nil {
		return Result{}, err
	}

	ctx, span := e.tracer.Start(ctx, "pipeline.transform")
	span.SetAttributes(
		attribute.String("image.format", params.Format),
		attribute.Int("image.max_width", params.MaxWidth),
		attribute.Int("image.quality", params.Quality),
		attribute.String("image.filter", params.ActiveFilter()),
		attribute.Int("image.input_bytes", len(input)),
	)
	defer span.End()

	res, err := e.transformer.Transform(ctx, input, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transform failed")
		return Result{}, err
	}

	span.SetAttributes(attribute.Int("image.output_bytes", len(res.Data)))
	e.logger.Debug().
		Str("format", res.Format).
		Int("width", res.Width).
		Int("height", res.Height).
		Int("input_bytes", len(input)).
		Int("output_bytes", len(res.Data)).
		Msg("transformed image")
	return res, nil
}

// targetSize returns (maxWidth, round(h0*maxWidth/w0)); enlargement is
// intentional. The area is checked in float64 before any int conversion so
// huge widths cannot overflow.
func targetSize(w0, h0, maxWidth int, maxPixels int64) (int, int, error) {
	if w0 <= 0 || h0 <= 0 {
		return 0, 0, errors.New("source image has invalid dimensions")
	}
	if maxWidth <= 0 {
		return 0, 0, errors.New("scale requires width > 0")
	}

	scale := float64(maxWidth) / float64(w0)
	height := math.Max(math.Round(float64(h0)*scale), 1)
	if float64(maxWidth)*height > float64(maxPixels) {
		return 0, 0, fmt.Errorf("%w: %dx%.0f is over %d pixels", ErrSurfaceTooLarge, maxWidth, height, maxPixels)
	}
	return maxWidth, int(height), nil
}

// checkSource rejects decoded inputs larger than the pixel budget.
func checkSource(w, h int, maxPixels int64) error {
	if float64(w)*float64(h) > float64(maxPixels) {
		return fmt.Errorf("%w: source %dx%d is over %d pixels", ErrSurfaceTooLarge, w, h, maxPixels)
	}
	return nil
}
