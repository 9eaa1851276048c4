package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"labelkit/backend/internal/domain"
	"labelkit/backend/internal/label"
	"labelkit/backend/internal/layout"
	"labelkit/backend/internal/logging"
	"labelkit/backend/internal/pipeline"
	"labelkit/backend/internal/store"
	"labelkit/backend/internal/xid"
)

type PrintJobResult struct {
	ID           string             `json:"id"`
	TemplateID   string             `json:"templateId"`
	Stage        pipeline.Stage     `json:"stage"`
	PageWidthMm  float64            `json:"pageWidthMm"`
	PageHeightMm float64            `json:"pageHeightMm"`
	Pages        []layout.PrintPage `json:"pages"`
	Instances    []label.Instance   `json:"instances"`
	Previews     []pipeline.Preview `json:"previews"`
	Report       domain.JobReport   `json:"report"`
}

type PrintDocument struct {
	ID          string
	ContentType string
	Data        []byte
	Report      domain.JobReport
}

// RunPrintJob resolves the requested sources, runs the pipeline and records
// the job report. Per-item problems only show up in the report; the error is
// reserved for bad requests and fatal configuration. A fatal error still comes
// with the failed job's id and report.
func (s *Service) RunPrintJob(ctx context.Context, req domain.PrintJobRequest) (PrintJobResult, error) {
	result, _, err := s.runPrintJob(ctx, req)
	return result, err
}

// RenderDocument runs the job and writes it through the configured document
// writer (PDF in production).
func (s *Service) RenderDocument(ctx context.Context, req domain.PrintJobRequest) (PrintDocument, error) {
	result, outcome, err := s.runPrintJob(ctx, req)
	if err != nil {
		return PrintDocument{ID: result.ID, Report: result.Report}, err
	}

	title := fmt.Sprintf("%s %s", outcome.Template.Name, result.ID)
	var buf bytes.Buffer
	if err := s.writer.Write(&buf, outcome.Document(title)); err != nil {
		return PrintDocument{}, fmt.Errorf("write document %s: %w", result.ID, err)
	}

	return PrintDocument{
		ID:          result.ID,
		ContentType: s.writer.ContentType(),
		Data:        buf.Bytes(),
		Report:      result.Report,
	}, nil
}

func (s *Service) runPrintJob(ctx context.Context, req domain.PrintJobRequest) (PrintJobResult, pipeline.Outcome, error) {
	pipeReq, err := s.buildRequest(ctx, req)
	if err != nil {
		return PrintJobResult{}, pipeline.Outcome{}, err
	}

	jobID := xid.New("job")
	logger := logging.WithFields(ctx, "job_id", jobID)

	outcome, err := s.engine.Run(ctx, pipeReq)
	if err != nil {
		if !domain.IsFatal(err) {
			return PrintJobResult{}, outcome, err
		}
		s.recordJob(ctx, jobID, pipeReq.TemplateID, 0, outcome.Report)
		return PrintJobResult{
			ID:         jobID,
			TemplateID: pipeReq.TemplateID,
			Stage:      pipeline.StageFailed,
			Report:     outcome.Report,
		}, outcome, err
	}

	s.recordJob(ctx, jobID, outcome.Template.ID, len(outcome.Pages), outcome.Report)
	if outcome.Report.Failed > 0 || outcome.Report.Skipped > 0 {
		logger.Warn("print job partially degraded",
			"failed", outcome.Report.Failed,
			"skipped", outcome.Report.Skipped,
		)
	}

	return PrintJobResult{
		ID:           jobID,
		TemplateID:   outcome.Template.ID,
		Stage:        outcome.Stage,
		PageWidthMm:  outcome.PageWidthMm,
		PageHeightMm: outcome.PageHeightMm,
		Pages:        outcome.Pages,
		Instances:    outcome.Instances,
		Previews:     outcome.Previews,
		Report:       outcome.Report,
	}, outcome, nil
}

func (s *Service) buildRequest(ctx context.Context, req domain.PrintJobRequest) (pipeline.Request, error) {
	templateID := strings.TrimSpace(req.TemplateID)
	if templateID == "" {
		return pipeline.Request{}, fmt.Errorf("templateId is required: %w", store.ErrInvalidInput)
	}
	if req.Quantity < 0 {
		return pipeline.Request{}, fmt.Errorf("quantity must not be negative: %w", store.ErrInvalidInput)
	}
	customText := strings.TrimSpace(req.CustomText)
	if customText != "" && len(req.Products) > 0 {
		return pipeline.Request{}, fmt.Errorf("send either products or customText, not both: %w", store.ErrInvalidInput)
	}

	sym, err := s.symbology(req.Symbology)
	if err != nil {
		return pipeline.Request{}, err
	}

	quantity := max(req.Quantity, 1)
	if err := s.checkLabelCount(req, customText != "", quantity); err != nil {
		return pipeline.Request{}, err
	}

	var entries []pipeline.Entry
	if customText != "" {
		entries = []pipeline.Entry{{Source: label.CustomText{Text: customText}, RepeatCount: quantity}}
	} else {
		entries, err = s.productEntries(ctx, req.Products, quantity)
		if err != nil {
			return pipeline.Request{}, err
		}
	}

	page := domain.PageSpec{
		WidthMm:  s.defaults.PageWidthMm,
		HeightMm: s.defaults.PageHeightMm,
		MarginMm: s.defaults.MarginMm,
	}
	if req.Page != nil {
		if req.Page.WidthMm > 0 {
			page.WidthMm = req.Page.WidthMm
		}
		if req.Page.HeightMm > 0 {
			page.HeightMm = req.Page.HeightMm
		}
		if req.Page.MarginMm >= 0 {
			page.MarginMm = req.Page.MarginMm
		}
	}

	return pipeline.Request{
		TemplateID:   templateID,
		Symbology:    sym,
		Entries:      entries,
		PageWidthMm:  page.WidthMm,
		PageHeightMm: page.HeightMm,
		MarginMm:     page.MarginMm,
		Currency:     s.defaults.Currency,
	}, nil
}

// checkLabelCount bounds the number of placed labels before any entry is
// resolved or expanded.
func (s *Service) checkLabelCount(req domain.PrintJobRequest, custom bool, quantity int) error {
	limit := s.defaults.MaxLabels
	tooMany := func(total int) error {
		return fmt.Errorf("print job asks for %d labels, the limit is %d: %w", total, limit, store.ErrInvalidInput)
	}
	if quantity > limit {
		return tooMany(quantity)
	}
	if custom {
		return nil
	}

	total := 0
	for _, ref := range req.Products {
		repeat := quantity
		if ref.Quantity > 0 {
			repeat = ref.Quantity
		}
		if repeat > limit {
			return tooMany(repeat)
		}
		total += repeat
		if total > limit {
			return tooMany(total)
		}
	}
	return nil
}

// productEntries keeps request order. SKUs the repository does not know
// become entries carrying a NotFoundError so they are reported as skipped.
func (s *Service) productEntries(ctx context.Context, refs []domain.ProductRef, quantity int) ([]pipeline.Entry, error) {
	skus := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.Quantity < 0 {
			return nil, fmt.Errorf("quantity for sku %q must not be negative: %w", ref.SKU, store.ErrInvalidInput)
		}
		skus = append(skus, normalizeSKU(ref.SKU))
	}

	products, err := s.repo.GetProductsBySKUs(ctx, skus)
	if err != nil {
		return nil, err
	}

	entries := make([]pipeline.Entry, len(refs))
	for i, ref := range refs {
		repeat := quantity
		if ref.Quantity > 0 {
			repeat = ref.Quantity
		}
		product, ok := products[skus[i]]
		if !ok {
			entries[i] = pipeline.Entry{RepeatCount: repeat, Err: &domain.NotFoundError{Ref: ref.SKU}}
			continue
		}
		entries[i] = pipeline.Entry{Source: label.FromProduct(product), RepeatCount: repeat}
	}
	return entries, nil
}

func normalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

func (s *Service) recordJob(ctx context.Context, id string, templateID string, pages int, report domain.JobReport) {
	err := s.repo.CreatePrintJob(ctx, domain.PrintJobRecord{
		ID:          id,
		TemplateID:  templateID,
		RequestedBy: actorName(ctx),
		Pages:       pages,
		Report:      report,
		CreatedAt:   s.now(),
	})
	if err != nil {
		logging.FromContext(ctx).Warn("failed to record print job", "job_id", id, "error", err)
	}
}

// ListPrintJobReports returns the reports recorded on date (YYYY-MM-DD, UTC),
// or over the last 24 hours when date is empty.
func (s *Service) ListPrintJobReports(ctx context.Context, date string, limit int) ([]domain.PrintJobRecord, error) {
	if limit < 1 {
		limit = 50
	}

	var from, to time.Time
	if strings.TrimSpace(date) == "" {
		to = s.now().Add(time.Nanosecond)
		from = to.Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("date must be YYYY-MM-DD: %w", store.ErrInvalidInput)
		}
		from = parsed.UTC()
		to = from.Add(24 * time.Hour)
	}

	return s.repo.ListPrintJobs(ctx, from, to, limit)
}
