// Package label describes printable label templates and resolves them against
// product or free-text sources into label instances.
package label

import (
	"encoding/json"
	"fmt"
	"strings"

	"labelkit/backend/internal/domain"
)

type Layout string

const (
	LayoutSingle Layout = "single"
	LayoutGrid   Layout = "grid"
)

type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

type Style struct {
	FontSize        float64   `json:"fontSize"`
	FontFamily      string    `json:"fontFamily"`
	BackgroundColor string    `json:"backgroundColor"`
	TextColor       string    `json:"textColor"`
	ShowBorder      bool      `json:"showBorder"`
	PaddingMm       float64   `json:"paddingMm"`
	Alignment       Alignment `json:"alignment"`
}

// DefaultStyle matches the settings a new template starts with in the designer.
func DefaultStyle() Style {
	return Style{
		FontSize:        8,
		FontFamily:      "Helvetica",
		BackgroundColor: "#FFFFFF",
		TextColor:       "#000000",
		ShowBorder:      true,
		PaddingMm:       1,
		Alignment:       AlignCenter,
	}
}

// Template is immutable once built by NewTemplate; callers receive copies.
type Template struct {
	ID       string
	Name     string
	WidthMm  float64
	HeightMm float64
	Layout   Layout
	Style    Style
	fields   []string
}

type Size struct {
	WidthMm  float64 `json:"widthMm"`
	HeightMm float64 `json:"heightMm"`
}

// Definition is the JSON shape templates are exchanged and stored in.
type Definition struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Size     Size     `json:"size"`
	Fields   []string `json:"fields"`
	Layout   string   `json:"layout"`
	Settings *Style   `json:"settings,omitempty"`
}

func NewTemplate(def Definition) (Template, error) {
	id := strings.TrimSpace(def.ID)
	if id == "" {
		return Template{}, domain.NewConfigurationError("template id is required")
	}
	name := strings.TrimSpace(def.Name)
	if name == "" {
		name = id
	}
	if def.Size.WidthMm <= 0 || def.Size.HeightMm <= 0 {
		return Template{}, domain.NewConfigurationError("template %q size must be positive, got %gx%g mm", id, def.Size.WidthMm, def.Size.HeightMm)
	}

	layout := Layout(strings.ToLower(strings.TrimSpace(def.Layout)))
	switch layout {
	case "":
		layout = LayoutSingle
	case LayoutSingle, LayoutGrid:
	default:
		return Template{}, domain.NewConfigurationError("template %q has unknown layout %q", id, def.Layout)
	}

	style := DefaultStyle()
	if def.Settings != nil {
		style = mergeStyle(style, *def.Settings)
	}
	switch style.Alignment {
	case AlignLeft, AlignCenter, AlignRight:
	default:
		return Template{}, domain.NewConfigurationError("template %q has unknown alignment %q", id, style.Alignment)
	}
	if style.PaddingMm < 0 || style.FontSize < 0 {
		return Template{}, domain.NewConfigurationError("template %q padding and font size must not be negative", id)
	}

	fields := make([]string, 0, len(def.Fields))
	for _, field := range def.Fields {
		field = strings.ToLower(strings.TrimSpace(field))
		if field != "" {
			fields = append(fields, field)
		}
	}

	return Template{
		ID:       id,
		Name:     name,
		WidthMm:  def.Size.WidthMm,
		HeightMm: def.Size.HeightMm,
		Layout:   layout,
		Style:    style,
		fields:   fields,
	}, nil
}

func mergeStyle(base Style, override Style) Style {
	if override.FontSize > 0 {
		base.FontSize = override.FontSize
	}
	if override.FontFamily != "" {
		base.FontFamily = override.FontFamily
	}
	if override.BackgroundColor != "" {
		base.BackgroundColor = override.BackgroundColor
	}
	if override.TextColor != "" {
		base.TextColor = override.TextColor
	}
	if override.PaddingMm != 0 {
		base.PaddingMm = override.PaddingMm
	}
	if override.Alignment != "" {
		base.Alignment = Alignment(strings.ToLower(string(override.Alignment)))
	}
	base.ShowBorder = override.ShowBorder
	return base
}

// Fields returns the ordered field names; the slice is a copy.
func (t Template) Fields() []string {
	out := make([]string, len(t.fields))
	copy(out, t.fields)
	return out
}

func (t Template) Definition() Definition {
	style := t.Style
	return Definition{
		ID:       t.ID,
		Name:     t.Name,
		Size:     Size{WidthMm: t.WidthMm, HeightMm: t.HeightMm},
		Fields:   t.Fields(),
		Layout:   string(t.Layout),
		Settings: &style,
	}
}

func (t Template) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Definition())
}

func (t *Template) UnmarshalJSON(data []byte) error {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	parsed, err := NewTemplate(def)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Template) String() string {
	return fmt.Sprintf("%s (%gx%g mm, %s)", t.ID, t.WidthMm, t.HeightMm, t.Layout)
}
