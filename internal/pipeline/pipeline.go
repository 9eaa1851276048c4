// Package pipeline runs a print job through validation, encoding, composition
// and assembly. Per-item work fans out over a bounded errgroup and every
// result lands in an index-addressed slot, so output order never depends on
// the worker count.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"labelkit/backend/internal/barcode"
	"labelkit/backend/internal/document"
	"labelkit/backend/internal/domain"
	"labelkit/backend/internal/label"
	"labelkit/backend/internal/layout"
	"labelkit/backend/internal/logging"
	"labelkit/backend/internal/render"
)

type Stage string

const (
	StageValidating Stage = "validating"
	StageEncoding   Stage = "encoding"
	StageComposing  Stage = "composing"
	StageAssembling Stage = "assembling"
	StageReady      Stage = "ready"
	StageFailed     Stage = "failed"
)

const (
	defaultRenderTimeout = 2 * time.Second
	defaultDPI           = 203
)

// Entry is one requested label. Err marks an entry that could not be
// resolved upstream (an unknown SKU, say); it is reported, never rendered.
type Entry struct {
	Source      label.Source
	RepeatCount int
	Err         error
}

type Request struct {
	TemplateID   string
	Symbology    barcode.Symbology
	Entries      []Entry
	PageWidthMm  float64
	PageHeightMm float64
	MarginMm     float64
	Currency     string
}

type Preview struct {
	InstanceIndex int    `json:"instanceIndex"`
	Payload       string `json:"payload"`
	DisplayText   string `json:"displayText"`
	ContentType   string `json:"contentType"`
	ImageBase64   string `json:"imageBase64"`
}

// Outcome is the immutable result of one run. Instances and Symbols are
// indexed like Request.Entries; slots of failed entries hold zero values.
type Outcome struct {
	Stage        Stage
	Template     label.Template
	Instances    []label.Instance
	Symbols      []render.Image
	Pages        []layout.PrintPage
	Previews     []Preview
	Report       domain.JobReport
	PageWidthMm  float64
	PageHeightMm float64
}

func (o Outcome) Document(title string) document.Document {
	return document.Build(title, o.Template, o.Pages, o.Instances, o.Symbols, o.PageWidthMm, o.PageHeightMm)
}

type Options struct {
	Workers       int
	RenderTimeout time.Duration
	DPI           int
}

type Pipeline struct {
	templates     layout.TemplateLookup
	renderer      render.Renderer
	workers       int
	renderTimeout time.Duration
	dpi           int
}

func New(templates layout.TemplateLookup, renderer render.Renderer, opts Options) *Pipeline {
	p := &Pipeline{
		templates:     templates,
		renderer:      renderer,
		workers:       opts.Workers,
		renderTimeout: opts.RenderTimeout,
		dpi:           opts.DPI,
	}
	if p.workers <= 0 {
		p.workers = runtime.GOMAXPROCS(0)
	}
	if p.renderTimeout <= 0 {
		p.renderTimeout = defaultRenderTimeout
	}
	if p.dpi <= 0 {
		p.dpi = defaultDPI
	}
	return p
}

// Run returns a Ready outcome, or a Failed outcome with a configuration or
// empty-job error. A cancelled context yields ctx.Err() and no outcome.
func (p *Pipeline) Run(ctx context.Context, req Request) (Outcome, error) {
	logger := logging.WithFields(ctx, "template_id", req.TemplateID, "symbology", req.Symbology)

	sym, err := barcode.ParseSymbology(string(req.Symbology))
	if err != nil {
		return Outcome{Stage: StageFailed}, err
	}
	tpl, err := p.templates.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, ctxErr
		}
		if domain.KindOf(err) != domain.KindConfiguration {
			cfgErr := domain.NewConfigurationError("template %q: %v", req.TemplateID, err)
			cfgErr.Err = err
			err = cfgErr
		}
		return Outcome{Stage: StageFailed}, err
	}

	st := &runState{
		req:       req,
		sym:       sym,
		tpl:       tpl,
		errs:      make([]error, len(req.Entries)),
		texts:     make([]string, len(req.Entries)),
		encoded:   make([]barcode.Encoded, len(req.Entries)),
		instances: make([]label.Instance, len(req.Entries)),
		symbols:   make([]render.Image, len(req.Entries)),
	}
	for i, entry := range req.Entries {
		st.errs[i] = entry.Err
	}

	stages := []struct {
		stage Stage
		fn    func(ctx context.Context, i int) error
	}{
		{StageValidating, st.validate},
		{StageEncoding, st.encode},
		{StageComposing, func(ctx context.Context, i int) error { return p.compose(ctx, st, i) }},
	}
	for _, s := range stages {
		logger.Debug("pipeline stage", "stage", s.stage, "entries", len(req.Entries))
		if err := p.fanOut(ctx, len(req.Entries), s.fn); err != nil {
			logger.Info("print job cancelled", "stage", s.stage, "error", err)
			return Outcome{}, err
		}
	}

	logger.Debug("pipeline stage", "stage", StageAssembling)
	items := make([]layout.Item, len(req.Entries))
	for i := range items {
		items[i] = layout.Item{Instance: st.instances[i], Err: st.errs[i]}
	}
	res, err := layout.NewAssembler(fixedTemplate{tpl}).Assemble(ctx, layout.PrintJob{
		TemplateID:   tpl.ID,
		Items:        items,
		PageWidthMm:  req.PageWidthMm,
		PageHeightMm: req.PageHeightMm,
		MarginMm:     req.MarginMm,
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Info("print job cancelled", "stage", StageAssembling, "error", ctxErr)
		return Outcome{}, ctxErr
	}
	if err != nil {
		logger.Warn("print job failed", "kind", domain.KindOf(err), "error", err)
		return Outcome{Stage: StageFailed, Template: tpl, Report: res.Report}, err
	}

	out := Outcome{
		Stage:        StageReady,
		Template:     tpl,
		Instances:    st.instances,
		Symbols:      st.symbols,
		Pages:        res.Pages,
		Previews:     previews(st),
		Report:       res.Report,
		PageWidthMm:  req.PageWidthMm,
		PageHeightMm: req.PageHeightMm,
	}
	logger.Info("print job ready",
		"pages", len(out.Pages),
		"succeeded", out.Report.Succeeded,
		"failed", out.Report.Failed,
		"skipped", out.Report.Skipped,
	)
	return out, nil
}

// fanOut runs fn for every index with at most p.workers in flight. fn only
// returns an error for cancellation; item failures are stored by index.
func (p *Pipeline) fanOut(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range n {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error { return fn(gctx, i) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

type runState struct {
	req       Request
	sym       barcode.Symbology
	tpl       label.Template
	errs      []error
	texts     []string
	encoded   []barcode.Encoded
	instances []label.Instance
	symbols   []render.Image
}

func (r *runState) validate(ctx context.Context, i int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.errs[i] != nil {
		return nil
	}
	source := r.req.Entries[i].Source
	if source == nil {
		r.errs[i] = &domain.InvalidInstanceError{Message: "entry has no label source"}
		return nil
	}
	result := barcode.Validate(source.BarcodeText(), r.sym)
	if !result.Valid {
		r.errs[i] = result.Err(r.sym)
		return nil
	}
	r.texts[i] = result.NormalizedText
	return nil
}

func (r *runState) encode(ctx context.Context, i int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.errs[i] != nil {
		return nil
	}
	enc, err := barcode.Encode(r.texts[i], r.sym)
	if err != nil {
		r.errs[i] = err
		return nil
	}
	r.encoded[i] = enc
	return nil
}

func (p *Pipeline) compose(ctx context.Context, r *runState, i int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.errs[i] != nil {
		return nil
	}

	enc := r.encoded[i]
	hints := render.HintsFor(r.sym, r.tpl.WidthMm, r.tpl.HeightMm, p.dpi)
	img, err := p.render(ctx, enc, hints)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		msg := "render failed"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("render timed out after %s", p.renderTimeout)
		}
		r.errs[i] = &domain.EncodingError{Symbology: string(enc.Symbology), Message: msg, Err: err}
		return nil
	}

	r.instances[i] = label.Compose(r.tpl, r.req.Entries[i].Source, enc,
		label.WithRepeatCount(r.req.Entries[i].RepeatCount),
		label.WithCurrency(r.req.Currency),
	)
	r.symbols[i] = img
	return nil
}

type renderResult struct {
	img render.Image
	err error
}

// render bounds a single Render call by renderTimeout even when the renderer
// never looks at its context.
func (p *Pipeline) render(ctx context.Context, enc barcode.Encoded, hints render.SizeHints) (render.Image, error) {
	renderCtx, cancel := context.WithTimeout(ctx, p.renderTimeout)
	defer cancel()

	done := make(chan renderResult, 1)
	go func() {
		img, err := p.renderer.Render(renderCtx, enc.Payload, enc.Symbology, hints)
		done <- renderResult{img: img, err: err}
	}()

	select {
	case res := <-done:
		return res.img, res.err
	case <-renderCtx.Done():
		return render.Image{}, renderCtx.Err()
	}
}

func previews(r *runState) []Preview {
	out := make([]Preview, 0, len(r.instances))
	for i, img := range r.symbols {
		if r.errs[i] != nil || len(img.Data) == 0 {
			continue
		}
		out = append(out, Preview{
			InstanceIndex: i,
			Payload:       r.encoded[i].Payload,
			DisplayText:   r.encoded[i].DisplayText,
			ContentType:   img.ContentType,
			ImageBase64:   img.Base64(),
		})
	}
	return out
}

// fixedTemplate hands the already resolved template to the assembler so a
// run looks it up exactly once.
type fixedTemplate struct {
	tpl label.Template
}

func (f fixedTemplate) GetTemplate(_ context.Context, id string) (label.Template, error) {
	if id != f.tpl.ID {
		return label.Template{}, domain.NewConfigurationError("template %q is not part of this job", id)
	}
	return f.tpl, nil
}
