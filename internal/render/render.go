// Package render is the port between the label engine and whatever draws the
// actual bars and modules. Callers only ever pass validated, checksum-complete
// payloads.
package render

import (
	"context"
	"encoding/base64"

	"labelkit/backend/internal/barcode"
)

type SizeHints struct {
	WidthPx  int
	HeightPx int
}

type Image struct {
	ContentType string
	Data        []byte
	WidthPx     int
	HeightPx    int
}

func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURI is what the label designer drops straight into an <img> tag.
func (i Image) DataURI() string {
	return "data:" + i.ContentType + ";base64," + i.Base64()
}

type Renderer interface {
	Render(ctx context.Context, payload string, sym barcode.Symbology, hints SizeHints) (Image, error)
}

// RendererFunc adapts a plain function to Renderer.
type RendererFunc func(ctx context.Context, payload string, sym barcode.Symbology, hints SizeHints) (Image, error)

func (f RendererFunc) Render(ctx context.Context, payload string, sym barcode.Symbology, hints SizeHints) (Image, error) {
	return f(ctx, payload, sym, hints)
}

// HintsFor picks a raster size for a label cell at the given print density.
func HintsFor(sym barcode.Symbology, widthMm float64, heightMm float64, dpi int) SizeHints {
	if dpi <= 0 {
		dpi = 203
	}
	toPx := func(mm float64) int { return int(mm / 25.4 * float64(dpi)) }
	w, h := toPx(widthMm), toPx(heightMm*0.5)
	if sym == barcode.QR {
		side := min(toPx(widthMm), toPx(heightMm))
		return SizeHints{WidthPx: side, HeightPx: side}
	}
	return SizeHints{WidthPx: w, HeightPx: h}
}
