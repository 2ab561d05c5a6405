//go:build govips && cgo

package pipeline

import (
	"context"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dunamismax/pixelpress/internal/domain"
)

type govipsTransformer struct {
	kernel    vips.Kernel
	maxPixels int64
}

func (t govipsTransformer) Transform(ctx context.Context, input []byte, params domain.Params) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return Result{}, decodeError(err)
	}
	defer img.Close()

	// libvips loads lazily; the header dimensions are known without pixels.
	if err := checkSource(img.Width(), img.Height(), t.maxPixels); err != nil {
		return Result{}, decodeError(err)
	}
	w, h, err := targetSize(img.Width(), img.Height(), params.MaxWidth, t.maxPixels)
	if err != nil {
		return Result{}, encodeError(params.Format, err)
	}

	if err := t.resize(img, w, h); err != nil {
		return Result{}, decodeError(err)
	}

	if err := applyGovipsFilter(img, params.ActiveFilter()); err != nil {
		return Result{}, encodeError(params.Format, err)
	}

	data, err := exportGovipsImage(img, params.Format, params.Quality)
	if err != nil {
		return Result{}, encodeError(params.Format, err)
	}

	return Result{
		Data:   data,
		Format: params.Format,
		Width:  img.Width(),
		Height: img.Height(),
	}, nil
}

func (t govipsTransformer) resize(img *vips.ImageRef, w, h int) error {
	hscale := float64(w) / float64(img.Width())
	vscale := float64(h) / float64(img.Height())

	if err := img.ResizeWithVScale(hscale, vscale, t.kernel); err != nil {
		return fmt.Errorf("resize image: %w", err)
	}
	return nil
}

func applyGovipsFilter(img *vips.ImageRef, filter string) error {
	if filter == "" || filter == domain.FilterNone {
		return nil
	}

	if err := img.ToColorSpace(vips.InterpretationSRGB); err != nil {
		return fmt.Errorf("convert to srgb: %w", err)
	}

	switch filter {
	case domain.FilterGrayscale:
		return img.Recomb(withAlphaBand(img.HasAlpha(), [][]float64{
			{0.2126, 0.7152, 0.0722},
			{0.2126, 0.7152, 0.0722},
			{0.2126, 0.7152, 0.0722},
		}))
	case domain.FilterSepia:
		return img.Recomb(withAlphaBand(img.HasAlpha(), [][]float64{
			{0.393, 0.769, 0.189},
			{0.349, 0.686, 0.168},
			{0.272, 0.534, 0.131},
		}))
	case domain.FilterInvert:
		if img.HasAlpha() {
			return img.Linear([]float64{-1, -1, -1, 1}, []float64{255, 255, 255, 0})
		}
		return img.Linear([]float64{-1, -1, -1}, []float64{255, 255, 255})
	default:
		return fmt.Errorf("unknown filter %q", filter)
	}
}

// withAlphaBand extends a 3x3 colour matrix so the alpha band passes through.
func withAlphaBand(hasAlpha bool, m [][]float64) [][]float64 {
	if !hasAlpha {
		return m
	}
	out := make([][]float64, 0, 4)
	for _, row := range m {
		out = append(out, append(append([]float64{}, row...), 0))
	}
	return append(out, []float64{0, 0, 0, 1})
}

func exportGovipsImage(img *vips.ImageRef, format string, quality int) ([]byte, error) {
	switch format {
	case domain.FormatJPEG:
		params := vips.NewJpegExportParams()
		if quality > 0 && quality <= 100 {
			params.Quality = quality
		}
		data, _, err := img.ExportJpeg(params)
		return data, err
	case domain.FormatPNG:
		data, _, err := img.ExportPng(vips.NewPngExportParams())
		return data, err
	case domain.FormatWebP:
		params := vips.NewWebpExportParams()
		if quality > 0 && quality <= 100 {
			params.Quality = quality
		}
		data, _, err := img.ExportWebp(params)
		return data, err
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
