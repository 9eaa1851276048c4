package label

import (
	"fmt"

	"labelkit/backend/internal/barcode"
)

// Instance is one template resolved against one source. It is built by
// Compose and read by the assembler; nothing mutates it afterwards.
type Instance struct {
	TemplateID  string            `json:"templateId"`
	Fields      map[string]string `json:"resolvedFields"`
	FieldOrder  []string          `json:"fieldOrder"`
	Barcode     barcode.Encoded   `json:"barcodePayload"`
	RepeatCount int               `json:"repeatCount"`
	Warnings    []string          `json:"warnings,omitempty"`
}

// Lines returns the resolved field values in template order, skipping blanks.
func (i Instance) Lines() []string {
	lines := make([]string, 0, len(i.FieldOrder))
	for _, field := range i.FieldOrder {
		if field == "barcode" {
			continue
		}
		if value := i.Fields[field]; value != "" {
			lines = append(lines, value)
		}
	}
	return lines
}

type composeOptions struct {
	repeatCount int
	currency    string
}

type ComposeOption func(*composeOptions)

// WithRepeatCount sets how many copies of the label the job prints. Values
// below one fall back to one.
func WithRepeatCount(n int) ComposeOption {
	return func(o *composeOptions) {
		if n >= 1 {
			o.repeatCount = n
		}
	}
}

func WithCurrency(symbol string) ComposeOption {
	return func(o *composeOptions) {
		o.currency = symbol
	}
}

// Compose resolves every template field through the source. Fields the source
// cannot answer resolve to "" and leave a warning; composing never fails.
func Compose(tpl Template, src Source, enc barcode.Encoded, opts ...ComposeOption) Instance {
	options := composeOptions{repeatCount: 1}
	for _, opt := range opts {
		opt(&options)
	}
	format := formatPrice(options.currency)

	order := tpl.Fields()
	fields := make(map[string]string, len(order))
	var warnings []string
	for _, field := range order {
		value, ok := src.resolve(field, enc, format)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("field %q is not available for %s", field, sourceKind(src)))
		}
		fields[field] = value
	}

	return Instance{
		TemplateID:  tpl.ID,
		Fields:      fields,
		FieldOrder:  order,
		Barcode:     enc,
		RepeatCount: options.repeatCount,
		Warnings:    warnings,
	}
}

func sourceKind(src Source) string {
	switch src.(type) {
	case ProductSource:
		return "product"
	case CustomText:
		return "custom text"
	default:
		return "source"
	}
}
