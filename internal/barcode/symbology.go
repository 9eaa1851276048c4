// Package barcode validates raw text against a barcode symbology and builds
// checksum-complete payloads for the numeric ones.
package barcode

import (
	"strings"

	"labelkit/backend/internal/domain"
)

type Symbology string

const (
	Code128 Symbology = "code128"
	Code39  Symbology = "code39"
	EAN13   Symbology = "ean13"
	UPC     Symbology = "upc"
	QR      Symbology = "qr"
)

var symbologyAliases = map[string]Symbology{
	"code128":  Code128,
	"code-128": Code128,
	"code39":   Code39,
	"code-39":  Code39,
	"ean13":    EAN13,
	"ean-13":   EAN13,
	"upc":      UPC,
	"upca":     UPC,
	"upc-a":    UPC,
	"qr":       QR,
	"qrcode":   QR,
}

// ParseSymbology accepts the canonical names and the spellings label designers
// usually type (EAN-13, UPC-A, QRCODE). An empty value is not defaulted here.
func ParseSymbology(raw string) (Symbology, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "_", "-")
	if sym, ok := symbologyAliases[key]; ok {
		return sym, nil
	}
	return "", domain.NewConfigurationError("unknown symbology %q", raw)
}

func (s Symbology) String() string {
	return string(s)
}

// Numeric reports whether the symbology carries a weighted-modulo check digit.
func (s Symbology) Numeric() bool {
	return s == EAN13 || s == UPC
}

func Symbologies() []Symbology {
	return []Symbology{Code128, Code39, EAN13, UPC, QR}
}
