package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"github.com/dunamismax/pixelpress/internal/domain"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var errWebPNeedsGovips = errors.New("webp export requires the govips build tag")

type stdlibTransformer struct {
	resampler Resampler
	workers   int
	maxPixels int64
}

func (t stdlibTransformer) Transform(ctx context.Context, input []byte, params domain.Params) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	// The header is enough to refuse oversized sources before Decode
	// allocates their pixels.
	header, _, err := image.DecodeConfig(bytes.NewReader(input))
	if err != nil {
		return Result{}, decodeError(err)
	}
	if err := checkSource(header.Width, header.Height, t.maxPixels); err != nil {
		return Result{}, decodeError(err)
	}

	src, _, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return Result{}, decodeError(err)
	}

	srcBounds := src.Bounds()
	if srcBounds.Dx() == 0 || srcBounds.Dy() == 0 {
		return Result{}, decodeError(errors.New("source image has invalid dimensions"))
	}
	w, h, err := targetSize(srcBounds.Dx(), srcBounds.Dy(), params.MaxWidth, t.maxPixels)
	if err != nil {
		return Result{}, encodeError(params.Format, err)
	}

	out := scaleTo(src, w, h, t.resampler)

	if err := applyFilter(out, params.ActiveFilter(), t.workers); err != nil {
		return Result{}, encodeError(params.Format, err)
	}

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	data, err := encodeImage(out, params.Format, params.Quality)
	if err != nil {
		return Result{}, encodeError(params.Format, err)
	}

	bounds := out.Bounds()
	return Result{
		Data:   data,
		Format: params.Format,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

func scaleTo(src image.Image, w, h int, resampler Resampler) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	resampler.Scale(dst, src)
	return dst
}

func encodeImage(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case domain.FormatJPEG:
		if quality <= 0 || quality > 100 {
			quality = 80
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
	case domain.FormatPNG:
		// Lossless; quality is accepted and ignored.
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, err
		}
	case domain.FormatWebP:
		return nil, errWebPNeedsGovips
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	return buf.Bytes(), nil
}
