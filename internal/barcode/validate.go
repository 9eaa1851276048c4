package barcode

import (
	"fmt"
	"regexp"

	"labelkit/backend/internal/domain"
)

var code39Pattern = regexp.MustCompile(`^[A-Z0-9\-. $/+%]+$`)

type ValidationResult struct {
	Valid          bool   `json:"isValid"`
	NormalizedText string `json:"normalizedText"`
	Message        string `json:"message,omitempty"`
}

// Err returns nil for a valid result and a *domain.ValidationError otherwise.
func (r ValidationResult) Err(sym Symbology) error {
	if r.Valid {
		return nil
	}
	return &domain.ValidationError{Symbology: sym.String(), Message: r.Message}
}

// Validate checks text against the grammar and length rules of sym. It never
// fails: violations come back as Valid=false with a reason in Message.
func Validate(text string, sym Symbology) ValidationResult {
	if text == "" {
		return invalid("text must not be empty")
	}

	switch sym {
	case Code128, QR:
		return valid(text)
	case Code39:
		if !code39Pattern.MatchString(text) {
			return invalid("Code 39 accepts only A-Z, 0-9, space and - . $ / + %")
		}
		return valid(text)
	case EAN13:
		return validateDigits(text, "EAN-13", 12, 13)
	case UPC:
		return validateDigits(text, "UPC-A", 11, 12)
	default:
		return invalid(fmt.Sprintf("unknown symbology %q", string(sym)))
	}
}

func validateDigits(text string, name string, baseLen int, fullLen int) ValidationResult {
	if !isDigits(text) {
		return invalid(fmt.Sprintf("%s must contain digits only", name))
	}
	if len(text) != baseLen && len(text) != fullLen {
		return invalid(fmt.Sprintf("%s must be %d or %d digits, got %d", name, baseLen, fullLen, len(text)))
	}
	return valid(text)
}

func isDigits(text string) bool {
	if text == "" {
		return false
	}
	for i := 0; i < len(text); i++ {
		if text[i] < '0' || text[i] > '9' {
			return false
		}
	}
	return true
}

func valid(text string) ValidationResult {
	return ValidationResult{Valid: true, NormalizedText: text}
}

func invalid(message string) ValidationResult {
	return ValidationResult{Valid: false, Message: message}
}
