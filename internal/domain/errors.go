package domain

import (
	"context"
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindConfiguration   ErrorKind = "configuration"
	KindEncoding        ErrorKind = "encoding"
	KindEmptyJob        ErrorKind = "empty_job"
	KindNotFound        ErrorKind = "not_found"
	KindInvalidInstance ErrorKind = "invalid_instance"
	KindCancelled       ErrorKind = "cancelled"
	KindUnknown         ErrorKind = "unknown"
)

// ValidationError reports text that breaks a symbology's charset or length rule.
type ValidationError struct {
	Symbology string
	Message   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s barcode: %s", e.Symbology, e.Message)
}

// ConfigurationError aborts a whole job: unknown template, unknown symbology or
// page geometry that cannot hold a label.
type ConfigurationError struct {
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// EncodingError marks a single item whose payload could not be encoded or rendered.
type EncodingError struct {
	Symbology string
	Message   string
	Err       error
}

func (e *EncodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("encode %s: %s: %v", e.Symbology, e.Message, e.Err)
	}
	return fmt.Sprintf("encode %s: %s", e.Symbology, e.Message)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// InvalidInstanceError marks a label instance the assembler cannot place.
type InvalidInstanceError struct {
	Message string
}

func (e *InvalidInstanceError) Error() string {
	return "invalid label instance: " + e.Message
}

// NotFoundError marks an item whose data source could not be resolved.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("source %q not found", e.Ref)
}

var ErrEmptyJob = errors.New("print job has no labels to lay out")

func KindOf(err error) ErrorKind {
	var (
		validationErr *ValidationError
		configErr     *ConfigurationError
		encodingErr   *EncodingError
		invalidErr    *InvalidInstanceError
		notFoundErr   *NotFoundError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &configErr):
		return KindConfiguration
	case errors.As(err, &encodingErr):
		return KindEncoding
	case errors.As(err, &invalidErr):
		return KindInvalidInstance
	case errors.As(err, &notFoundErr):
		return KindNotFound
	case errors.Is(err, ErrEmptyJob):
		return KindEmptyJob
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindUnknown
	}
}

// IsFatal reports whether err aborts a whole print job rather than one item.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindConfiguration, KindEmptyJob:
		return true
	default:
		return false
	}
}
