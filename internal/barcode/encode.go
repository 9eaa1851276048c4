package barcode

import (
	"fmt"
	"strings"

	"labelkit/backend/internal/domain"
)

type Encoded struct {
	Symbology   Symbology `json:"symbology"`
	Payload     string    `json:"payload"`
	DisplayText string    `json:"displayText"`
}

var (
	ean13Weights = [2]int{1, 3}
	upcWeights   = [2]int{3, 1}
)

// Encode turns validated text into the payload handed to a renderer. EAN-13
// and UPC-A get their check digit appended; full-length input must already
// carry the correct one. Other symbologies pass through unchanged.
func Encode(text string, sym Symbology) (Encoded, error) {
	switch sym {
	case EAN13:
		return encodeNumeric(text, sym, 12, ean13Weights)
	case UPC:
		return encodeNumeric(text, sym, 11, upcWeights)
	case Code128, Code39, QR:
		return Encoded{Symbology: sym, Payload: text, DisplayText: text}, nil
	default:
		return Encoded{}, domain.NewConfigurationError("unknown symbology %q", string(sym))
	}
}

// ValidateAndEncode runs Validate then Encode, returning the validation
// failure as a *domain.ValidationError.
func ValidateAndEncode(text string, sym Symbology) (Encoded, error) {
	result := Validate(text, sym)
	if err := result.Err(sym); err != nil {
		return Encoded{}, err
	}
	return Encode(result.NormalizedText, sym)
}

func encodeNumeric(text string, sym Symbology, baseLen int, weights [2]int) (Encoded, error) {
	if !isDigits(text) {
		return Encoded{}, &domain.EncodingError{Symbology: sym.String(), Message: fmt.Sprintf("%q is not numeric", text)}
	}
	if len(text) > baseLen+1 {
		return Encoded{}, &domain.EncodingError{Symbology: sym.String(), Message: fmt.Sprintf("%q is longer than %d digits", text, baseLen+1)}
	}

	if len(text) == baseLen+1 {
		want := CheckDigit(text[:baseLen], weights)
		if text[baseLen] != want {
			return Encoded{}, &domain.EncodingError{
				Symbology: sym.String(),
				Message:   fmt.Sprintf("check digit %c does not match computed %c", text[baseLen], want),
			}
		}
		return Encoded{Symbology: sym, Payload: text, DisplayText: text}, nil
	}

	base := strings.Repeat("0", baseLen-len(text)) + text
	payload := base + string(CheckDigit(base, weights))
	return Encoded{Symbology: sym, Payload: payload, DisplayText: payload}, nil
}

// CheckDigit computes (10 - Σ d[i]*w[i%2] mod 10) mod 10 over an all-digit base.
func CheckDigit(base string, weights [2]int) byte {
	sum := 0
	for i := 0; i < len(base); i++ {
		sum += int(base[i]-'0') * weights[i%2]
	}
	return byte('0' + (10-sum%10)%10)
}

// EAN13CheckDigit and UPCCheckDigit expose the two weightings used by Encode.
func EAN13CheckDigit(base string) byte { return CheckDigit(base, ean13Weights) }

func UPCCheckDigit(base string) byte { return CheckDigit(base, upcWeights) }
