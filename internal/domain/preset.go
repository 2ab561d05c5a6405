package domain

import "strings"

// Preset is a named, persisted bundle of transform parameters. The JSON shape
// is the persisted wire format and must not change.
type Preset struct {
	Name        string `json:"name" validate:"required"`
	Quality     int    `json:"quality" validate:"min=1,max=100"`
	Format      string `json:"format" validate:"oneof=jpeg png webp"`
	MaxWidth    int    `json:"maxWidth" validate:"gt=0"`
	ApplyFilter bool   `json:"applyFilter"`
}

// PresetFromParams captures the four persisted fields of p under name.
func PresetFromParams(name string, p Params) Preset {
	return Preset{
		Name:        strings.TrimSpace(name),
		Quality:     p.Quality,
		Format:      NormalizeFormat(p.Format),
		MaxWidth:    p.MaxWidth,
		ApplyFilter: p.ApplyFilter,
	}
}

func (p Preset) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	p.Format = NormalizeFormat(p.Format)
	if err := validate.Struct(p); err != nil {
		return validationError(ErrInvalidPreset, err)
	}
	return nil
}
