package render

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	bc "github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/boombuler/barcode/code39"
	"github.com/boombuler/barcode/ean"
	"github.com/boombuler/barcode/qr"

	"labelkit/backend/internal/barcode"
)

const (
	defaultLinearWidth  = 300
	defaultLinearHeight = 100
	defaultQRSide       = 200
)

// BarcodeRenderer draws symbols with github.com/boombuler/barcode and encodes
// them as PNG.
type BarcodeRenderer struct {
	QRLevel qr.ErrorCorrectionLevel
}

func NewBarcodeRenderer() *BarcodeRenderer {
	return &BarcodeRenderer{QRLevel: qr.M}
}

func (r *BarcodeRenderer) Render(ctx context.Context, payload string, sym barcode.Symbology, hints SizeHints) (Image, error) {
	if err := ctx.Err(); err != nil {
		return Image{}, err
	}

	symbol, err := r.encode(payload, sym)
	if err != nil {
		return Image{}, fmt.Errorf("draw %s %q: %w", sym, payload, err)
	}

	width, height := fitHints(symbol, sym, hints)
	scaled, err := bc.Scale(symbol, width, height)
	if err != nil {
		return Image{}, fmt.Errorf("scale %s to %dx%d: %w", sym, width, height, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return Image{}, fmt.Errorf("encode png: %w", err)
	}

	bounds := scaled.Bounds()
	return Image{
		ContentType: "image/png",
		Data:        buf.Bytes(),
		WidthPx:     bounds.Dx(),
		HeightPx:    bounds.Dy(),
	}, nil
}

func (r *BarcodeRenderer) encode(payload string, sym barcode.Symbology) (bc.Barcode, error) {
	switch sym {
	case barcode.Code128:
		return code128.Encode(payload)
	case barcode.Code39:
		// No mod-43 check character; scanners in the field are configured without it.
		return code39.Encode(payload, false, false)
	case barcode.EAN13:
		return ean.Encode(payload)
	case barcode.UPC:
		// UPC-A is EAN-13 with a leading zero; the check digit is unchanged.
		return ean.Encode("0" + payload)
	case barcode.QR:
		return qr.Encode(payload, r.QRLevel, qr.Auto)
	default:
		return nil, fmt.Errorf("unsupported symbology %q", sym)
	}
}

// fitHints never asks the scaler for fewer pixels than the symbol has modules.
func fitHints(symbol bc.Barcode, sym barcode.Symbology, hints SizeHints) (int, int) {
	bounds := symbol.Bounds()
	if sym == barcode.QR {
		side := hints.WidthPx
		if hints.HeightPx > 0 && (side <= 0 || hints.HeightPx < side) {
			side = hints.HeightPx
		}
		if side <= 0 {
			side = defaultQRSide
		}
		side = max(side, bounds.Dx())
		return side, side
	}

	width, height := hints.WidthPx, hints.HeightPx
	if width <= 0 {
		width = defaultLinearWidth
	}
	if height <= 0 {
		height = defaultLinearHeight
	}
	return max(width, bounds.Dx()), max(height, bounds.Dy())
}
