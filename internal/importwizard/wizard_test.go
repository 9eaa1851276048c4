package importwizard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelkit/backend/internal/domain"
)

func rows() []domain.ProductDraft {
	return []domain.ProductDraft{
		{SKU: " cof-001 ", Name: "Coffee Beans", PriceCents: 1299, Stock: 4},
		{SKU: "TEA-002", Name: "Green Tea", Barcode: "400638133393", PriceCents: 450},
		{},
	}
}

func step(t *testing.T, s State, e Event) State {
	t.Helper()
	next, err := Transition(s, e)
	require.NoError(t, err)
	return next
}

func TestHappyPath(t *testing.T) {
	var s State = Upload{}

	s = step(t, s, FileUploaded{FileName: "supplier.pdf", Drafts: rows()})
	preview, ok := s.(Preview)
	require.True(t, ok)
	assert.Len(t, preview.Drafts, 2, "blank rows are dropped")
	assert.Equal(t, "COF-001", preview.Drafts[0].SKU)

	s = step(t, s, EditRequested{Index: 1})
	assert.Equal(t, StepEdit, s.Step())

	s = step(t, s, DraftSaved{Draft: domain.ProductDraft{SKU: "TEA-002", Name: "Sencha", PriceCents: 500}})
	assert.Equal(t, "Sencha", Drafts(s)[1].Name)

	s = step(t, s, ConfirmRequested{})
	assert.Equal(t, StepConfirm, s.Step())

	s = step(t, s, Committed{Created: 2})
	assert.Equal(t, Success{FileName: "supplier.pdf", Created: 2}, s)
	assert.Equal(t, "supplier.pdf", FileName(s))
}

func TestTransitionIsPure(t *testing.T) {
	start := Preview{FileName: "a.pdf", Drafts: []domain.ProductDraft{{SKU: "A", Name: "Alpha"}, {SKU: "B", Name: "Beta"}}}

	edit := step(t, start, EditRequested{Index: 0})
	step(t, edit, DraftSaved{Draft: domain.ProductDraft{SKU: "A", Name: "Changed"}})
	step(t, start, RowRemoved{Index: 0})

	assert.Equal(t, "Alpha", start.Drafts[0].Name)
	assert.Len(t, start.Drafts, 2)
}

func TestInvalidTransitionsKeepState(t *testing.T) {
	tests := []struct {
		name  string
		state State
		event Event
	}{
		{"confirm from upload", Upload{}, ConfirmRequested{}},
		{"commit from preview", Preview{Drafts: []domain.ProductDraft{{SKU: "A", Name: "A"}}}, Committed{Created: 1}},
		{"upload twice", Preview{Drafts: []domain.ProductDraft{{SKU: "A", Name: "A"}}}, FileUploaded{Drafts: rows()}},
		{"edit from success", Success{Created: 1}, EditRequested{}},
		{"back from success", Success{}, BackRequested{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := Transition(tt.state, tt.event)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, tt.state, next)
		})
	}
}

func TestUploadWithoutRowsIsRejected(t *testing.T) {
	next, err := Transition(Upload{}, FileUploaded{FileName: "empty.pdf", Drafts: []domain.ProductDraft{{}}})
	assert.ErrorIs(t, err, ErrInvalidDraft)
	assert.Equal(t, Upload{}, next)
}

func TestConfirmValidatesEveryRow(t *testing.T) {
	s := Preview{Drafts: []domain.ProductDraft{{SKU: "A", Name: "Alpha"}, {SKU: "B"}}}
	_, err := Transition(s, ConfirmRequested{})
	assert.ErrorIs(t, err, ErrInvalidDraft)
	assert.Contains(t, err.Error(), "row 1")

	dup := Preview{Drafts: []domain.ProductDraft{{SKU: "A", Name: "Alpha"}, {SKU: "A", Name: "Again"}}}
	_, err = Transition(dup, ConfirmRequested{})
	assert.ErrorIs(t, err, ErrInvalidDraft)
}

func TestEditRejectsInvalidDraftAndStaysInEdit(t *testing.T) {
	s := Edit{Drafts: []domain.ProductDraft{{SKU: "A", Name: "Alpha"}}, Index: 0}
	next, err := Transition(s, DraftSaved{Draft: domain.ProductDraft{SKU: "A", Name: "Alpha", PriceCents: -1}})
	assert.ErrorIs(t, err, ErrInvalidDraft)
	assert.Equal(t, StepEdit, next.Step())
}

func TestRemovingLastRowReturnsToUpload(t *testing.T) {
	s := Preview{Drafts: []domain.ProductDraft{{SKU: "A", Name: "Alpha"}}}
	assert.Equal(t, Upload{}, step(t, s, RowRemoved{Index: 0}))

	_, err := Transition(s, RowRemoved{Index: 3})
	assert.ErrorIs(t, err, ErrInvalidDraft)
}

func TestFailedCommitCanGoBackToPreview(t *testing.T) {
	s := Confirm{FileName: "x.pdf", Drafts: []domain.ProductDraft{{SKU: "A", Name: "Alpha"}}}
	failed := step(t, s, CommitFailed{Reason: "sku A already exists"})
	assert.Equal(t, StepFailed, failed.Step())
	assert.Equal(t, "sku A already exists", failed.(Failed).Reason)

	back := step(t, failed, BackRequested{})
	assert.Equal(t, StepPreview, back.Step())
	assert.Len(t, Drafts(back), 1)
}

func TestResetFromAnywhere(t *testing.T) {
	for _, s := range []State{Upload{}, Preview{}, Edit{}, Confirm{}, Success{}, Failed{}} {
		assert.Equal(t, Upload{}, step(t, s, Reset{}))
	}
}

func TestEventFromRequest(t *testing.T) {
	draft := domain.ProductDraft{SKU: "A", Name: "Alpha"}
	ev, err := EventFromRequest(domain.ImportEventRequest{Type: "SAVE", Draft: &draft})
	require.NoError(t, err)
	assert.Equal(t, DraftSaved{Draft: draft}, ev)

	_, err = EventFromRequest(domain.ImportEventRequest{Type: "save"})
	assert.True(t, errors.Is(err, ErrInvalidDraft))

	_, err = EventFromRequest(domain.ImportEventRequest{Type: "committed"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
