package store

import (
	"context"
	"errors"
	"time"

	"labelkit/backend/internal/domain"
	"labelkit/backend/internal/label"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	CreateProducts(ctx context.Context, products []domain.Product) (int, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error)
	ListTemplates(ctx context.Context) ([]label.Template, error)
	GetTemplate(ctx context.Context, id string) (label.Template, error)
	SaveTemplate(ctx context.Context, tpl label.Template) (label.Template, error)
	CreatePrintJob(ctx context.Context, record domain.PrintJobRecord) error
	ListPrintJobs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.PrintJobRecord, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
