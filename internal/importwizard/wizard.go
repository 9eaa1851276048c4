// Package importwizard models the product import flow
// upload → preview → edit → confirm → success as a closed set of states and
// a pure transition function. Extraction of rows from the uploaded file
// happens elsewhere; the wizard only sees the resulting drafts.
package importwizard

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"labelkit/backend/internal/domain"
)

type Step string

const (
	StepUpload  Step = "upload"
	StepPreview Step = "preview"
	StepEdit    Step = "edit"
	StepConfirm Step = "confirm"
	StepSuccess Step = "success"
	StepFailed  Step = "failed"
)

var (
	ErrInvalidTransition = errors.New("invalid import transition")
	ErrInvalidDraft      = errors.New("invalid product draft")
)

type State interface {
	Step() Step
	state()
}

type Upload struct{}

type Preview struct {
	FileName string
	Drafts   []domain.ProductDraft
}

type Edit struct {
	FileName string
	Drafts   []domain.ProductDraft
	Index    int
}

type Confirm struct {
	FileName string
	Drafts   []domain.ProductDraft
}

type Success struct {
	FileName string
	Created  int
}

type Failed struct {
	FileName string
	Drafts   []domain.ProductDraft
	Reason   string
}

func (Upload) Step() Step  { return StepUpload }
func (Preview) Step() Step { return StepPreview }
func (Edit) Step() Step    { return StepEdit }
func (Confirm) Step() Step { return StepConfirm }
func (Success) Step() Step { return StepSuccess }
func (Failed) Step() Step  { return StepFailed }

func (Upload) state()  {}
func (Preview) state() {}
func (Edit) state()    {}
func (Confirm) state() {}
func (Success) state() {}
func (Failed) state()  {}

type Event interface {
	Name() string
	event()
}

type FileUploaded struct {
	FileName string
	Drafts   []domain.ProductDraft
}

type EditRequested struct{ Index int }

type DraftSaved struct {
	Draft domain.ProductDraft
}

type RowRemoved struct{ Index int }

type BackRequested struct{}

type ConfirmRequested struct{}

type Committed struct{ Created int }

type CommitFailed struct{ Reason string }

type Reset struct{}

func (FileUploaded) Name() string     { return "upload" }
func (EditRequested) Name() string    { return "edit" }
func (DraftSaved) Name() string       { return "save" }
func (RowRemoved) Name() string       { return "remove" }
func (BackRequested) Name() string    { return "back" }
func (ConfirmRequested) Name() string { return "confirm" }
func (Committed) Name() string        { return "committed" }
func (CommitFailed) Name() string     { return "commit_failed" }
func (Reset) Name() string            { return "reset" }

func (FileUploaded) event()     {}
func (EditRequested) event()    {}
func (DraftSaved) event()       {}
func (RowRemoved) event()       {}
func (BackRequested) event()    {}
func (ConfirmRequested) event() {}
func (Committed) event()        {}
func (CommitFailed) event()     {}
func (Reset) event()            {}

// Transition returns the next state. It never mutates s: draft slices are
// copied before any edit. An event that does not apply to s returns s
// unchanged together with ErrInvalidTransition.
func Transition(s State, e Event) (State, error) {
	if _, ok := e.(Reset); ok {
		return Upload{}, nil
	}

	switch cur := s.(type) {
	case Upload:
		if ev, ok := e.(FileUploaded); ok {
			drafts := normalizeAll(ev.Drafts)
			if len(drafts) == 0 {
				return s, fmt.Errorf("%w: %s contained no rows", ErrInvalidDraft, displayName(ev.FileName))
			}
			return Preview{FileName: strings.TrimSpace(ev.FileName), Drafts: drafts}, nil
		}

	case Preview:
		switch ev := e.(type) {
		case EditRequested:
			if ev.Index < 0 || ev.Index >= len(cur.Drafts) {
				return s, fmt.Errorf("%w: row %d out of range", ErrInvalidDraft, ev.Index)
			}
			return Edit{FileName: cur.FileName, Drafts: slices.Clone(cur.Drafts), Index: ev.Index}, nil
		case RowRemoved:
			if ev.Index < 0 || ev.Index >= len(cur.Drafts) {
				return s, fmt.Errorf("%w: row %d out of range", ErrInvalidDraft, ev.Index)
			}
			drafts := slices.Delete(slices.Clone(cur.Drafts), ev.Index, ev.Index+1)
			if len(drafts) == 0 {
				return Upload{}, nil
			}
			return Preview{FileName: cur.FileName, Drafts: drafts}, nil
		case ConfirmRequested:
			for i, d := range cur.Drafts {
				if err := ValidateDraft(d); err != nil {
					return s, fmt.Errorf("row %d: %w", i, err)
				}
			}
			if sku, dup := duplicateSKU(cur.Drafts); dup {
				return s, fmt.Errorf("%w: sku %q appears more than once", ErrInvalidDraft, sku)
			}
			return Confirm{FileName: cur.FileName, Drafts: slices.Clone(cur.Drafts)}, nil
		case BackRequested:
			return Upload{}, nil
		}

	case Edit:
		switch ev := e.(type) {
		case DraftSaved:
			draft := normalize(ev.Draft)
			if err := ValidateDraft(draft); err != nil {
				return s, err
			}
			drafts := slices.Clone(cur.Drafts)
			drafts[cur.Index] = draft
			return Preview{FileName: cur.FileName, Drafts: drafts}, nil
		case BackRequested:
			return Preview{FileName: cur.FileName, Drafts: slices.Clone(cur.Drafts)}, nil
		}

	case Confirm:
		switch ev := e.(type) {
		case Committed:
			return Success{FileName: cur.FileName, Created: ev.Created}, nil
		case CommitFailed:
			return Failed{FileName: cur.FileName, Drafts: slices.Clone(cur.Drafts), Reason: ev.Reason}, nil
		case BackRequested:
			return Preview{FileName: cur.FileName, Drafts: slices.Clone(cur.Drafts)}, nil
		}

	case Failed:
		if _, ok := e.(BackRequested); ok {
			return Preview{FileName: cur.FileName, Drafts: slices.Clone(cur.Drafts)}, nil
		}
	}

	return s, fmt.Errorf("%w: %q from %s", ErrInvalidTransition, e.Name(), s.Step())
}

// ValidateDraft checks the fields a label needs. Pricing rules are not
// checked here.
func ValidateDraft(d domain.ProductDraft) error {
	switch {
	case strings.TrimSpace(d.SKU) == "":
		return fmt.Errorf("%w: sku is required", ErrInvalidDraft)
	case strings.TrimSpace(d.Name) == "":
		return fmt.Errorf("%w: name is required for sku %q", ErrInvalidDraft, d.SKU)
	case d.PriceCents < 0:
		return fmt.Errorf("%w: price for sku %q is negative", ErrInvalidDraft, d.SKU)
	case d.Stock < 0:
		return fmt.Errorf("%w: stock for sku %q is negative", ErrInvalidDraft, d.SKU)
	}
	return nil
}

// Drafts returns the rows a state carries, if any.
func Drafts(s State) []domain.ProductDraft {
	switch cur := s.(type) {
	case Preview:
		return cur.Drafts
	case Edit:
		return cur.Drafts
	case Confirm:
		return cur.Drafts
	case Failed:
		return cur.Drafts
	default:
		return nil
	}
}

func FileName(s State) string {
	switch cur := s.(type) {
	case Preview:
		return cur.FileName
	case Edit:
		return cur.FileName
	case Confirm:
		return cur.FileName
	case Success:
		return cur.FileName
	case Failed:
		return cur.FileName
	default:
		return ""
	}
}

func normalizeAll(drafts []domain.ProductDraft) []domain.ProductDraft {
	out := make([]domain.ProductDraft, 0, len(drafts))
	for _, d := range drafts {
		d = normalize(d)
		if d.SKU == "" && d.Name == "" && d.Barcode == "" {
			continue
		}
		out = append(out, d)
	}
	return out
}

func normalize(d domain.ProductDraft) domain.ProductDraft {
	d.SKU = strings.ToUpper(strings.TrimSpace(d.SKU))
	d.Name = strings.TrimSpace(d.Name)
	d.Barcode = strings.TrimSpace(d.Barcode)
	d.Category = strings.TrimSpace(d.Category)
	d.Brand = strings.TrimSpace(d.Brand)
	return d
}

func duplicateSKU(drafts []domain.ProductDraft) (string, bool) {
	seen := make(map[string]struct{}, len(drafts))
	for _, d := range drafts {
		if _, ok := seen[d.SKU]; ok {
			return d.SKU, true
		}
		seen[d.SKU] = struct{}{}
	}
	return "", false
}

func displayName(fileName string) string {
	if strings.TrimSpace(fileName) == "" {
		return "upload"
	}
	return fileName
}
