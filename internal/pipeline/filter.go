package pipeline

import (
	"fmt"
	"image"

	"github.com/dunamismax/pixelpress/internal/domain"
)

// applyFilter rewrites img in place on up to workers goroutines. img holds
// alpha-premultiplied pixels, so every channel result is clamped to the
// pixel's alpha.
func applyFilter(img *image.RGBA, filter string, workers int) error {
	var fn func(r, g, b, a float64) (float64, float64, float64)

	switch filter {
	case "", domain.FilterNone:
		return nil
	case domain.FilterGrayscale:
		fn = grayscale
	case domain.FilterSepia:
		fn = sepia
	case domain.FilterInvert:
		fn = invert
	default:
		return fmt.Errorf("unknown filter %q", filter)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	parallelRows(workers, h, func(y int) {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		row := img.Pix[off : off+w*4]
		for i := 0; i < len(row); i += 4 {
			a := float64(row[i+3])
			r, g, bl := fn(float64(row[i]), float64(row[i+1]), float64(row[i+2]), a)
			row[i] = clampTo(r, a)
			row[i+1] = clampTo(g, a)
			row[i+2] = clampTo(bl, a)
		}
	})
	return nil
}

// Rec. 709 luma, the grayscale(100%) matrix.
func grayscale(r, g, b, _ float64) (float64, float64, float64) {
	y := 0.2126*r + 0.7152*g + 0.0722*b
	return y, y, y
}

func sepia(r, g, b, _ float64) (float64, float64, float64) {
	return 0.393*r + 0.769*g + 0.189*b,
		0.349*r + 0.686*g + 0.168*b,
		0.272*r + 0.534*g + 0.131*b
}

func invert(r, g, b, a float64) (float64, float64, float64) {
	return a - r, a - g, a - b
}

func clampTo(v, limit float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > limit {
		v = limit
	}
	return uint8(v + 0.5)
}
