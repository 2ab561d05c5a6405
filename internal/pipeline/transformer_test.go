package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()

	engine, err := NewEngine(zerolog.Nop(), opts...)
	require.NoError(t, err)
	return engine
}

func pngParams(maxWidth int) domain.Params {
	return domain.Params{Quality: 80, Format: domain.FormatPNG, MaxWidth: maxWidth, Filter: domain.FilterNone}
}

func TestTransformScalesToMaxWidth(t *testing.T) {
	engine := newTestEngine(t)

	res, err := engine.Transform(context.Background(), buildTestPNG(t, 240, 120), domain.Params{
		Quality:  75,
		Format:   domain.FormatJPEG,
		MaxWidth: 80,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.FormatJPEG, res.Format)
	assert.Equal(t, 80, res.Width)
	assert.Equal(t, 40, res.Height)
	verifyImageSize(t, res.Data, 80, 40)
}

func TestTransformEnlargesWhenMaxWidthExceedsSource(t *testing.T) {
	engine := newTestEngine(t)

	res, err := engine.Transform(context.Background(), buildTestPNG(t, 100, 50), pngParams(300))
	require.NoError(t, err)

	verifyImageSize(t, res.Data, 300, 150)
}

func TestTransformRoundsHeight(t *testing.T) {
	engine := newTestEngine(t)

	// 2 * 4/3 = 2.67 rounds to 3.
	res, err := engine.Transform(context.Background(), buildTestPNG(t, 3, 2), pngParams(4))
	require.NoError(t, err)

	verifyImageSize(t, res.Data, 4, 3)
}

func TestTransformFilterNoneIsIdentity(t *testing.T) {
	engine := newTestEngine(t)
	src := buildTestPNG(t, 64, 48)

	plain, err := engine.Transform(context.Background(), src, pngParams(32))
	require.NoError(t, err)

	params := pngParams(32)
	params.ApplyFilter = true
	params.Filter = domain.FilterNone
	filtered, err := engine.Transform(context.Background(), src, params)
	require.NoError(t, err)

	assert.Equal(t, plain.Data, filtered.Data)
}

func TestTransformSelectedFilterIgnoredWhenDisabled(t *testing.T) {
	engine := newTestEngine(t)
	src := buildTestPNG(t, 16, 16)

	plain, err := engine.Transform(context.Background(), src, pngParams(16))
	require.NoError(t, err)

	params := pngParams(16)
	params.Filter = domain.FilterInvert
	disabled, err := engine.Transform(context.Background(), src, params)
	require.NoError(t, err)

	assert.Equal(t, plain.Data, disabled.Data)
}

func TestTransformFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		src    color.RGBA
		check  func(t *testing.T, c color.RGBA)
	}{
		{
			name:   "grayscale equalises channels",
			filter: domain.FilterGrayscale,
			src:    color.RGBA{R: 200, G: 40, B: 90, A: 255},
			check: func(t *testing.T, c color.RGBA) {
				assert.Equal(t, c.R, c.G)
				assert.Equal(t, c.G, c.B)
			},
		},
		{
			name:   "invert white is black",
			filter: domain.FilterInvert,
			src:    color.RGBA{R: 255, G: 255, B: 255, A: 255},
			check: func(t *testing.T, c color.RGBA) {
				assert.Equal(t, color.RGBA{A: 255}, c)
			},
		},
		{
			name:   "sepia white keeps warm tone",
			filter: domain.FilterSepia,
			src:    color.RGBA{R: 255, G: 255, B: 255, A: 255},
			check: func(t *testing.T, c color.RGBA) {
				assert.Equal(t, uint8(255), c.R)
				assert.Equal(t, uint8(255), c.G)
				assert.Equal(t, uint8(239), c.B)
			},
		},
	}

	engine := newTestEngine(t, WithResampler(ResamplerNearest))
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := pngParams(8)
			params.ApplyFilter = true
			params.Filter = tc.filter

			res, err := engine.Transform(context.Background(), buildSolidPNG(t, 8, 8, tc.src), params)
			require.NoError(t, err)

			img, err := png.Decode(bytes.NewReader(res.Data))
			require.NoError(t, err)
			tc.check(t, color.RGBAModel.Convert(img.At(4, 4)).(color.RGBA))
		})
	}
}

func TestTransformPNGIgnoresQuality(t *testing.T) {
	engine := newTestEngine(t)
	src := buildTestPNG(t, 40, 20)

	low := pngParams(20)
	low.Quality = 1
	high := pngParams(20)
	high.Quality = 100

	a, err := engine.Transform(context.Background(), src, low)
	require.NoError(t, err)
	b, err := engine.Transform(context.Background(), src, high)
	require.NoError(t, err)

	assert.Equal(t, a.Data, b.Data)
}

func TestTransformDecodeError(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.Transform(context.Background(), []byte("definitely not an image"), pngParams(10))
	require.Error(t, err)

	assert.True(t, IsDecodeError(err))
	assert.False(t, IsEncodeError(err))

	var terr *TransformError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, KindDecode, terr.Kind)
}

func TestTransformRejectsInvalidParams(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.Transform(context.Background(), buildTestPNG(t, 4, 4), domain.Params{
		Quality:  50,
		Format:   "bmp",
		MaxWidth: 10,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidParams)
}

func TestTransformRejectsOversizedOutput(t *testing.T) {
	engine := newTestEngine(t)

	for _, tc := range []struct {
		name     string
		src      []byte
		maxWidth int
	}{
		{name: "gigapixel width", src: buildTestPNG(t, 2, 1), maxWidth: 1 << 30},
		{name: "square enlargement", src: buildTestPNG(t, 4, 4), maxWidth: 60000},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Transform(context.Background(), tc.src, pngParams(tc.maxWidth))
			require.Error(t, err)

			assert.True(t, IsEncodeError(err))
			assert.ErrorIs(t, err, ErrSurfaceTooLarge)
		})
	}
}

func TestTransformRejectsOversizedSource(t *testing.T) {
	engine := newTestEngine(t, WithMaxPixels(100))

	_, err := engine.Transform(context.Background(), buildTestPNG(t, 20, 10), pngParams(5))
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
	assert.ErrorIs(t, err, ErrSurfaceTooLarge)

	res, err := engine.Transform(context.Background(), buildTestPNG(t, 10, 10), pngParams(10))
	require.NoError(t, err)
	assert.Equal(t, 10, res.Width)
}

func TestTargetSize(t *testing.T) {
	tests := []struct {
		name          string
		w0, h0, width int
		budget        int64
		wantW, wantH  int
		wantErr       error
	}{
		{name: "downscale", w0: 240, h0: 120, width: 80, budget: DefaultMaxPixels, wantW: 80, wantH: 40},
		{name: "height at least one", w0: 1000, h0: 1, width: 10, budget: DefaultMaxPixels, wantW: 10, wantH: 1},
		{name: "exactly at budget", w0: 10, h0: 10, width: 20, budget: 400, wantW: 20, wantH: 20},
		{name: "one pixel over budget", w0: 10, h0: 10, width: 21, budget: 400, wantErr: ErrSurfaceTooLarge},
		{name: "overflowing width", w0: 1, h0: 1 << 20, width: 1 << 30, budget: DefaultMaxPixels, wantErr: ErrSurfaceTooLarge},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, h, err := targetSize(tc.w0, tc.h0, tc.width, tc.budget)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantW, w)
			assert.Equal(t, tc.wantH, h)
		})
	}
}

func TestTransformHonoursCancelledContext(t *testing.T) {
	engine := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Transform(ctx, buildTestPNG(t, 4, 4), pngParams(4))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResamplersProduceTargetSize(t *testing.T) {
	src := buildTestPNG(t, 90, 60)

	for _, name := range []string{ResamplerBiLinear, ResamplerCatmullRom, ResamplerApprox, ResamplerNearest, ResamplerLanczos3} {
		t.Run(name, func(t *testing.T) {
			engine := newTestEngine(t, WithResampler(name))

			res, err := engine.Transform(context.Background(), src, pngParams(45))
			require.NoError(t, err)
			verifyImageSize(t, res.Data, 45, 30)
		})
	}
}

func TestUnknownResampler(t *testing.T) {
	_, err := NewEngine(zerolog.Nop(), WithResampler("magic"))
	assert.Error(t, err)
}

func TestParamSetApplyPreset(t *testing.T) {
	set := NewParamSet(domain.DefaultParams())

	got, err := set.ApplyPreset(domain.Preset{Name: "web", Quality: 70, Format: "webp", MaxWidth: 1280, ApplyFilter: false})
	require.NoError(t, err)

	assert.Equal(t, 70, got.Quality)
	assert.Equal(t, domain.FormatWebP, got.Format)
	assert.Equal(t, 1280, got.MaxWidth)
	assert.False(t, got.ApplyFilter)
	assert.Equal(t, got, set.Get())
}

func TestParamSetRejectsInvalid(t *testing.T) {
	set := NewParamSet(domain.DefaultParams())

	err := set.Set(domain.Params{Quality: 500, Format: domain.FormatPNG, MaxWidth: 10})
	require.ErrorIs(t, err, domain.ErrInvalidParams)
	assert.Equal(t, domain.DefaultParams(), set.Get())

	_, err = set.ApplyPreset(domain.Preset{Name: "bad", Quality: 70, Format: "tiff", MaxWidth: 10})
	require.ErrorIs(t, err, domain.ErrInvalidParams)
	assert.Equal(t, domain.DefaultParams(), set.Get())
}

func TestParamSetRejectsZeroValues(t *testing.T) {
	set := NewParamSet(domain.DefaultParams())

	err := set.Set(domain.Params{Quality: 0, Format: domain.FormatPNG, MaxWidth: 0})
	require.ErrorIs(t, err, domain.ErrInvalidParams)

	_, err = set.ApplyPreset(domain.Preset{Name: "zero", Quality: 0, Format: domain.FormatPNG, MaxWidth: 64})
	require.ErrorIs(t, err, domain.ErrInvalidParams)

	assert.Equal(t, domain.DefaultParams(), set.Get())
}

func buildTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func buildSolidPNG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func verifyImageSize(t *testing.T, data []byte, wantW, wantH int) {
	t.Helper()

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, wantW, cfg.Width, "width")
	assert.Equal(t, wantH, cfg.Height, "height")
}
