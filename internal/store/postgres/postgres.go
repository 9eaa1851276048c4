package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"labelkit/backend/internal/domain"
	"labelkit/backend/internal/label"
	"labelkit/backend/internal/store"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate creates missing tables. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `sku, name, barcode, category, brand, price_cents, stock, active`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.SKU, &p.Name, &p.Barcode, &p.Category, &p.Brand, &p.PriceCents, &p.Stock, &p.Active)
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func validProduct(p domain.Product) bool {
	return p.SKU != "" && p.Name != "" && p.PriceCents >= 0 && p.Stock >= 0
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertProduct(ctx context.Context, db execer, product domain.Product) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO products (sku, name, barcode, category, brand, price_cents, stock, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,true,now(),now())
	`, product.SKU, product.Name, product.Barcode, product.Category, product.Brand, product.PriceCents, product.Stock)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sku %s: %w", product.SKU, store.ErrConflict)
		}
		return err
	}
	return nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if !validProduct(product) {
		return nil, store.ErrInvalidInput
	}
	if err := insertProduct(ctx, s.db, product); err != nil {
		return nil, err
	}
	product.Active = true
	created := product
	return &created, nil
}

// CreateProducts inserts all products in one transaction.
func (s *Store) CreateProducts(ctx context.Context, products []domain.Product) (int, error) {
	for _, p := range products {
		if !validProduct(p) {
			return 0, fmt.Errorf("sku %q: %w", p.SKU, store.ErrInvalidInput)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, p := range products {
		if err := insertProduct(ctx, tx, p); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(products), nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	product, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE sku = $1
	`, sku))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(skus))
	if len(skus) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true AND sku = ANY($1)
	`, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.SKU] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func decodeTemplate(raw []byte) (label.Template, error) {
	var tpl label.Template
	if err := json.Unmarshal(raw, &tpl); err != nil {
		return label.Template{}, fmt.Errorf("decode template: %w", err)
	}
	return tpl, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]label.Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT definition
		FROM label_templates
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := make([]label.Template, 0, 16)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		tpl, err := decodeTemplate(raw)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return templates, nil
}

func (s *Store) GetTemplate(ctx context.Context, id string) (label.Template, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT definition
		FROM label_templates
		WHERE id = $1
	`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return label.Template{}, fmt.Errorf("template %q: %w", id, store.ErrNotFound)
		}
		return label.Template{}, err
	}
	return decodeTemplate(raw)
}

func (s *Store) SaveTemplate(ctx context.Context, tpl label.Template) (label.Template, error) {
	if strings.TrimSpace(tpl.ID) == "" {
		return label.Template{}, store.ErrInvalidInput
	}
	raw, err := json.Marshal(tpl)
	if err != nil {
		return label.Template{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO label_templates (id, definition, created_at, updated_at)
		VALUES ($1,$2,now(),now())
		ON CONFLICT (id)
		DO UPDATE SET definition = EXCLUDED.definition, updated_at = now()
	`, tpl.ID, raw)
	if err != nil {
		return label.Template{}, err
	}
	return tpl, nil
}

func (s *Store) CreatePrintJob(ctx context.Context, record domain.PrintJobRecord) error {
	if record.ID == "" {
		return store.ErrInvalidInput
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	report, err := json.Marshal(record.Report)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO print_jobs (id, template_id, requested_by, pages, report, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, record.ID, record.TemplateID, record.RequestedBy, record.Pages, report, record.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListPrintJobs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.PrintJobRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, template_id, requested_by, pages, report, created_at
		FROM print_jobs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.PrintJobRecord, 0, limit)
	for rows.Next() {
		var (
			record domain.PrintJobRecord
			report []byte
		)
		if err := rows.Scan(&record.ID, &record.TemplateID, &record.RequestedBy, &record.Pages, &report, &record.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(report, &record.Report); err != nil {
			return nil, fmt.Errorf("decode report for %s: %w", record.ID, err)
		}
		record.CreatedAt = record.CreatedAt.UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleOperator
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
