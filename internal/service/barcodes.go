package service

import (
	"context"
	"strings"

	"labelkit/backend/internal/barcode"
	"labelkit/backend/internal/domain"
	"labelkit/backend/internal/render"
)

type BarcodeValidation struct {
	Symbology barcode.Symbology `json:"symbology"`
	barcode.ValidationResult
}

func (s *Service) symbology(raw string) (barcode.Symbology, error) {
	if strings.TrimSpace(raw) == "" {
		return s.defaults.Symbology, nil
	}
	return barcode.ParseSymbology(raw)
}

// ValidateBarcode never reports bad text as an error; only an unknown
// symbology is.
func (s *Service) ValidateBarcode(_ context.Context, req domain.BarcodeRequest) (BarcodeValidation, error) {
	sym, err := s.symbology(req.Symbology)
	if err != nil {
		return BarcodeValidation{}, err
	}
	return BarcodeValidation{Symbology: sym, ValidationResult: barcode.Validate(req.Text, sym)}, nil
}

func (s *Service) EncodeBarcode(_ context.Context, req domain.BarcodeRequest) (barcode.Encoded, error) {
	sym, err := s.symbology(req.Symbology)
	if err != nil {
		return barcode.Encoded{}, err
	}
	return barcode.ValidateAndEncode(req.Text, sym)
}

func (s *Service) PreviewBarcode(ctx context.Context, req domain.BarcodePreviewRequest) (domain.BarcodePreviewResponse, error) {
	sym, err := s.symbology(req.Symbology)
	if err != nil {
		return domain.BarcodePreviewResponse{}, err
	}
	enc, err := barcode.ValidateAndEncode(req.Text, sym)
	if err != nil {
		return domain.BarcodePreviewResponse{}, err
	}

	img, err := s.renderer.Render(ctx, enc.Payload, enc.Symbology, render.SizeHints{
		WidthPx:  clampPx(req.WidthPx),
		HeightPx: clampPx(req.HeightPx),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.BarcodePreviewResponse{}, ctxErr
		}
		return domain.BarcodePreviewResponse{}, &domain.EncodingError{Symbology: sym.String(), Message: "render failed", Err: err}
	}

	return domain.BarcodePreviewResponse{
		Payload:     enc.Payload,
		DisplayText: enc.DisplayText,
		ContentType: img.ContentType,
		ImageBase64: img.Base64(),
	}, nil
}

// clampPx keeps client-supplied preview sizes inside a sane range; zero
// lets the renderer pick its default.
func clampPx(v int) int {
	switch {
	case v <= 0:
		return 0
	case v > 2000:
		return 2000
	default:
		return v
	}
}
