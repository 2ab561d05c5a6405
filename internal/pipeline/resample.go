package pipeline

import (
	"fmt"
	"image"
	"strings"

	"github.com/nfnt/resize"
	xdraw "golang.org/x/image/draw"
)

const (
	ResamplerBiLinear   = "bilinear"
	ResamplerCatmullRom = "catmullrom"
	ResamplerApprox     = "approx"
	ResamplerNearest    = "nearest"
	ResamplerLanczos3   = "lanczos3"
)

// Resampler draws src scaled to fill dst.
type Resampler interface {
	Name() string
	Scale(dst *image.RGBA, src image.Image)
}

func ParseResampler(name string) (Resampler, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ResamplerBiLinear:
		return kernelResampler{name: ResamplerBiLinear, interp: xdraw.BiLinear}, nil
	case ResamplerCatmullRom:
		return kernelResampler{name: ResamplerCatmullRom, interp: xdraw.CatmullRom}, nil
	case ResamplerApprox:
		return kernelResampler{name: ResamplerApprox, interp: xdraw.ApproxBiLinear}, nil
	case ResamplerNearest:
		return kernelResampler{name: ResamplerNearest, interp: xdraw.NearestNeighbor}, nil
	case ResamplerLanczos3:
		return lanczosResampler{}, nil
	default:
		return nil, fmt.Errorf("unknown resampler %q", name)
	}
}

type kernelResampler struct {
	name   string
	interp xdraw.Interpolator
}

func (k kernelResampler) Name() string { return k.name }

func (k kernelResampler) Scale(dst *image.RGBA, src image.Image) {
	k.interp.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
}

type lanczosResampler struct{}

func (lanczosResampler) Name() string { return ResamplerLanczos3 }

func (lanczosResampler) Scale(dst *image.RGBA, src image.Image) {
	b := dst.Bounds()
	scaled := resize.Resize(uint(b.Dx()), uint(b.Dy()), src, resize.Lanczos3)
	xdraw.Draw(dst, b, scaled, scaled.Bounds().Min, xdraw.Src)
}
