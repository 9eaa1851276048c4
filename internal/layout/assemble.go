// Package layout packs label instances onto physical pages.
package layout

import (
	"context"
	"fmt"
	"math"

	"labelkit/backend/internal/domain"
	"labelkit/backend/internal/label"
)

// TemplateLookup resolves a template id. Implementations return an error
// wrapping store.ErrNotFound (or any error) when the id is unknown.
type TemplateLookup interface {
	GetTemplate(ctx context.Context, id string) (label.Template, error)
}

// Item is one entry of a print job. A non-nil Err marks an instance that
// failed before assembly; it is reported and never placed.
type Item struct {
	Instance label.Instance
	Err      error
}

type PrintJob struct {
	TemplateID   string
	Items        []Item
	PageWidthMm  float64
	PageHeightMm float64
	MarginMm     float64
}

type Cell struct {
	X                   float64 `json:"x"`
	Y                   float64 `json:"y"`
	WidthMm             float64 `json:"widthMm"`
	HeightMm            float64 `json:"heightMm"`
	SourceInstanceIndex int     `json:"sourceInstanceIndex"`
}

type PrintPage struct {
	PageIndex int    `json:"pageIndex"`
	Cells     []Cell `json:"cells"`
}

type Result struct {
	Template label.Template
	Pages    []PrintPage
	Report   domain.JobReport
}

type Assembler struct {
	templates TemplateLookup
}

func NewAssembler(templates TemplateLookup) *Assembler {
	return &Assembler{templates: templates}
}

// Assemble lays out job onto pages. Only a missing template, unusable page
// geometry and an empty placement list are returned as errors; every other
// problem is a per-item entry in the report. On domain.ErrEmptyJob the
// returned Result still carries the report.
func (a *Assembler) Assemble(ctx context.Context, job PrintJob) (Result, error) {
	tpl, err := a.templates.GetTemplate(ctx, job.TemplateID)
	if err != nil {
		if domain.KindOf(err) == domain.KindConfiguration {
			return Result{}, err
		}
		cfgErr := domain.NewConfigurationError("template %q: %v", job.TemplateID, err)
		cfgErr.Err = err
		return Result{}, cfgErr
	}

	report := domain.JobReport{Errors: []domain.ItemError{}}
	placements := make([]int, 0, len(job.Items))
	for idx, item := range job.Items {
		if err := checkItem(tpl, item); err != nil {
			report.Record(idx, err)
			continue
		}
		report.Succeeded++
		for n := 0; n < item.Instance.RepeatCount; n++ {
			placements = append(placements, idx)
		}
	}
	if len(placements) == 0 {
		return Result{Template: tpl, Report: report}, domain.ErrEmptyJob
	}

	grid, err := newGrid(tpl, job)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Template: tpl,
		Pages:    grid.paginate(placements),
		Report:   report,
	}, nil
}

func checkItem(tpl label.Template, item Item) error {
	if item.Err != nil {
		return item.Err
	}
	if item.Instance.RepeatCount < 1 {
		return &domain.InvalidInstanceError{Message: fmt.Sprintf("repeat count %d is below 1", item.Instance.RepeatCount)}
	}
	if item.Instance.TemplateID != tpl.ID {
		return &domain.InvalidInstanceError{Message: fmt.Sprintf("composed for template %q, job uses %q", item.Instance.TemplateID, tpl.ID)}
	}
	return nil
}

type grid struct {
	margin   float64
	cellW    float64
	cellH    float64
	cols     int
	capacity int
}

func newGrid(tpl label.Template, job PrintJob) (grid, error) {
	if job.PageWidthMm <= 0 || job.PageHeightMm <= 0 || job.MarginMm < 0 {
		return grid{}, domain.NewConfigurationError("page %gx%g mm with margin %g mm is not a valid page", job.PageWidthMm, job.PageHeightMm, job.MarginMm)
	}
	usableW := job.PageWidthMm - 2*job.MarginMm
	usableH := job.PageHeightMm - 2*job.MarginMm
	if usableW <= 0 || usableH <= 0 {
		return grid{}, domain.NewConfigurationError("margin %g mm leaves no usable area on a %gx%g mm page", job.MarginMm, job.PageWidthMm, job.PageHeightMm)
	}

	g := grid{margin: job.MarginMm, cellW: tpl.WidthMm, cellH: tpl.HeightMm, cols: 1, capacity: 1}
	if tpl.Layout == label.LayoutGrid {
		cols := int(math.Floor(usableW / tpl.WidthMm))
		rows := int(math.Floor(usableH / tpl.HeightMm))
		g.cols = max(1, cols)
		g.capacity = max(1, cols*rows)
	}
	return g, nil
}

// paginate places row-major, capacity cells per page; the last page may be short.
func (g grid) paginate(placements []int) []PrintPage {
	pageCount := (len(placements) + g.capacity - 1) / g.capacity
	pages := make([]PrintPage, 0, pageCount)
	for start := 0; start < len(placements); start += g.capacity {
		end := min(start+g.capacity, len(placements))
		page := PrintPage{PageIndex: len(pages), Cells: make([]Cell, 0, end-start)}
		for slot, idx := range placements[start:end] {
			row, col := slot/g.cols, slot%g.cols
			page.Cells = append(page.Cells, Cell{
				X:                   g.margin + float64(col)*g.cellW,
				Y:                   g.margin + float64(row)*g.cellH,
				WidthMm:             g.cellW,
				HeightMm:            g.cellH,
				SourceInstanceIndex: idx,
			})
		}
		pages = append(pages, page)
	}
	return pages
}
