package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"labelkit/backend/internal/barcode"
	"labelkit/backend/internal/document"
	"labelkit/backend/internal/domain"
	"labelkit/backend/internal/label"
	"labelkit/backend/internal/logging"
	"labelkit/backend/internal/pipeline"
	"labelkit/backend/internal/render"
	"labelkit/backend/internal/store"
)

var ErrForbidden = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Defaults fill in whatever a print job request leaves out.
type Defaults struct {
	PageWidthMm  float64
	PageHeightMm float64
	MarginMm     float64
	Currency     string
	Symbology    barcode.Symbology
	MaxLabels    int
}

const defaultMaxLabels = 10000

type Service struct {
	repo     store.Repository
	engine   *pipeline.Pipeline
	renderer render.Renderer
	writer   document.Writer
	defaults Defaults

	importsMu sync.Mutex
	imports   map[string]*importSession
	now       func() time.Time
}

func New(repo store.Repository, engine *pipeline.Pipeline, renderer render.Renderer, writer document.Writer, defaults Defaults) *Service {
	if defaults.PageWidthMm <= 0 || defaults.PageHeightMm <= 0 {
		defaults.PageWidthMm, defaults.PageHeightMm = 210, 297
	}
	if defaults.MarginMm < 0 {
		defaults.MarginMm = 0
	}
	if defaults.Symbology == "" {
		defaults.Symbology = barcode.Code128
	}
	if defaults.MaxLabels <= 0 {
		defaults.MaxLabels = defaultMaxLabels
	}

	return &Service{
		repo:     repo,
		engine:   engine,
		renderer: renderer,
		writer:   writer,
		defaults: defaults,
		imports:  make(map[string]*importSession),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	return "system"
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		SKU:        strings.ToUpper(strings.TrimSpace(req.SKU)),
		Name:       strings.TrimSpace(req.Name),
		Barcode:    strings.TrimSpace(req.Barcode),
		Category:   strings.TrimSpace(req.Category),
		Brand:      strings.TrimSpace(req.Brand),
		PriceCents: req.PriceCents,
		Stock:      req.Stock,
		Active:     true,
	}
	if product.SKU == "" || product.Name == "" || product.PriceCents < 0 || product.Stock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	logging.FromContext(ctx).Info("product created", "sku", created.SKU, "actor", actorName(ctx))
	return *created, nil
}

func (s *Service) ListTemplates(ctx context.Context) ([]label.Template, error) {
	return s.repo.ListTemplates(ctx)
}

func (s *Service) GetTemplate(ctx context.Context, id string) (label.Template, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return label.Template{}, store.ErrInvalidInput
	}
	return s.repo.GetTemplate(ctx, id)
}

// SaveTemplate validates def through label.NewTemplate and stores it,
// replacing any template with the same id.
func (s *Service) SaveTemplate(ctx context.Context, def label.Definition) (label.Template, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return label.Template{}, err
	}

	tpl, err := label.NewTemplate(def)
	if err != nil {
		return label.Template{}, err
	}
	saved, err := s.repo.SaveTemplate(ctx, tpl)
	if err != nil {
		return label.Template{}, err
	}
	logging.FromContext(ctx).Info("label template saved",
		slog.String("template_id", saved.ID),
		slog.String("layout", string(saved.Layout)),
		slog.String("actor", actorName(ctx)),
	)
	return saved, nil
}
