package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatWebP = "webp"

	FilterNone      = "none"
	FilterGrayscale = "grayscale"
	FilterSepia     = "sepia"
	FilterInvert    = "invert"
)

var (
	ErrInvalidParams = errors.New("invalid transform params")
	ErrInvalidPreset = errors.New("invalid preset")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Params is the full parameter set handed to every transform call.
type Params struct {
	Quality     int    `json:"quality" default:"80" validate:"min=1,max=100"`
	Format      string `json:"format" default:"jpeg" validate:"oneof=jpeg png webp"`
	MaxWidth    int    `json:"maxWidth" default:"1920" validate:"gt=0"`
	ApplyFilter bool   `json:"applyFilter"`
	Filter      string `json:"filter" default:"none" validate:"oneof=none grayscale sepia invert"`
}

// DefaultParams returns quality 80, jpeg, 1920px wide, no filter.
func DefaultParams() Params {
	var p Params
	_ = defaults.Set(&p)
	return p
}

// Normalize lower-cases enum fields, maps "jpg" to "jpeg" and treats an
// unset filter as FilterNone. Numeric fields are left for Validate to judge;
// defaults only come from DefaultParams.
func (p Params) Normalize() Params {
	p.Format = NormalizeFormat(p.Format)
	p.Filter = strings.ToLower(strings.TrimSpace(p.Filter))
	if p.Filter == "" {
		p.Filter = FilterNone
	}
	return p
}

func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return validationError(ErrInvalidParams, err)
	}
	return nil
}

// ActiveFilter returns the filter that the engine must apply, FilterNone when
// filtering is switched off.
func (p Params) ActiveFilter() string {
	if !p.ApplyFilter || p.Filter == "" {
		return FilterNone
	}
	return p.Filter
}

// WithPreset copies the preset's four fields over p. The selected filter is
// not part of a preset and is kept.
func (p Params) WithPreset(preset Preset) Params {
	p.Quality = preset.Quality
	p.Format = NormalizeFormat(preset.Format)
	p.MaxWidth = preset.MaxWidth
	p.ApplyFilter = preset.ApplyFilter
	return p
}

func NormalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "jpg" {
		return FormatJPEG
	}
	return format
}

func ContentTypeForFormat(format string) string {
	switch NormalizeFormat(format) {
	case FormatJPEG:
		return "image/jpeg"
	case FormatWebP:
		return "image/webp"
	case FormatPNG:
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

func validationError(sentinel, err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", sentinel, err)
	}

	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s=%v violates %s", lowerFirst(fe.Field()), fe.Value(), rule))
	}
	return fmt.Errorf("%w: %s", sentinel, strings.Join(parts, "; "))
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
