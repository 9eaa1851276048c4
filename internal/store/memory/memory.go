package memory

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"labelkit/backend/internal/domain"
	"labelkit/backend/internal/label"
	"labelkit/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	templates       map[string]label.Template
	printJobs       []domain.PrintJobRecord
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		templates:       make(map[string]label.Template),
		printJobs:       make([]domain.PrintJobRecord, 0, 64),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD, falling back to fixed dev
// defaults with a warning. Postgres deployments never use these.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	operatorPwd := envOr("SEED_OPERATOR_PASSWORD", "operator123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_OPERATOR_PASSWORD") == "" {
		slog.Warn("memory store is using default dev credentials", "override", "SEED_ADMIN_PASSWORD, SEED_OPERATOR_PASSWORD")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"operator", operatorPwd, domain.RoleOperator},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			panic(fmt.Sprintf("hash seed password for %s: %v", u.username, err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func seedTemplates() []label.Definition {
	return []label.Definition{
		{
			ID:     "shelf-50x30",
			Name:   "Shelf label 50x30",
			Size:   label.Size{WidthMm: 50, HeightMm: 30},
			Fields: []string{"name", "price", "barcode"},
			Layout: "grid",
		},
		{
			ID:     "price-tag-60x40",
			Name:   "Price tag 60x40",
			Size:   label.Size{WidthMm: 60, HeightMm: 40},
			Fields: []string{"name", "brand", "price", "barcode"},
			Layout: "single",
			Settings: &label.Style{
				FontSize:  10,
				Alignment: label.AlignLeft,
			},
		},
		{
			ID:     "bin-qr-40x40",
			Name:   "Bin QR 40x40",
			Size:   label.Size{WidthMm: 40, HeightMm: 40},
			Fields: []string{"sku", "name", "stock"},
			Layout: "grid",
			Settings: &label.Style{
				FontSize:   7,
				FontFamily: "Courier",
				ShowBorder: false,
			},
		},
	}
}

func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	products := []domain.Product{
		{SKU: "SKU-COFFEE-01", Name: "Coffee Beans 250g", Barcode: "4006381333931", Category: "beverage", Brand: "Roastery", PriceCents: 1299, Stock: 40, Active: true},
		{SKU: "SKU-TEA-01", Name: "Green Tea 20 bags", Barcode: "5012345678900", Category: "beverage", PriceCents: 450, Stock: 75, Active: true},
		{SKU: "SKU-MILK-01", Name: "UHT Milk 1L", Barcode: "036000291452", Category: "dairy", Brand: "Dairyland", PriceCents: 189, Stock: 120, Active: true},
		{SKU: "SKU-BREAD-01", Name: "Sourdough Loaf", Category: "bakery", PriceCents: 520, Stock: 18, Active: true},
		{SKU: "SKU-SOAP-01", Name: "Hand Soap", Barcode: "8901030865275", Category: "household", Brand: "Clean Co", PriceCents: 349, Stock: 64, Active: true},
		{SKU: "SKU-CHIPS-01", Name: "Cassava Chips", Category: "snack", PriceCents: 280, Stock: 90, Active: true},
	}
	for _, p := range products {
		s.products[p.SKU] = p
	}

	for _, def := range seedTemplates() {
		tpl, err := label.NewTemplate(def)
		if err != nil {
			panic(fmt.Sprintf("seed template %s: %v", def.ID, err))
		}
		s.templates[tpl.ID] = tpl
	}
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmp.Compare(a.Name, b.Name)
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return products, nil
}

func validProduct(p domain.Product) bool {
	return p.SKU != "" && p.Name != "" && p.PriceCents >= 0 && p.Stock >= 0
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validProduct(product) {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.products[product.SKU]; exists {
		return nil, fmt.Errorf("sku %s: %w", product.SKU, store.ErrConflict)
	}

	product.Active = true
	s.products[product.SKU] = product
	created := product
	return &created, nil
}

// CreateProducts inserts all products or none.
func (s *Store) CreateProducts(_ context.Context, products []domain.Product) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(products))
	for _, p := range products {
		if !validProduct(p) {
			return 0, fmt.Errorf("sku %q: %w", p.SKU, store.ErrInvalidInput)
		}
		if _, exists := s.products[p.SKU]; exists {
			return 0, fmt.Errorf("sku %s: %w", p.SKU, store.ErrConflict)
		}
		if _, dup := seen[p.SKU]; dup {
			return 0, fmt.Errorf("sku %s repeated: %w", p.SKU, store.ErrConflict)
		}
		seen[p.SKU] = struct{}{}
	}
	for _, p := range products {
		p.Active = true
		s.products[p.SKU] = p
	}
	return len(products), nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[sku]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

// GetProductsBySKUs omits unknown and inactive SKUs from the result.
func (s *Store) GetProductsBySKUs(_ context.Context, skus []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(skus))
	for _, sku := range skus {
		if p, ok := s.products[sku]; ok && p.Active {
			result[sku] = p
		}
	}
	return result, nil
}

func (s *Store) ListTemplates(_ context.Context) ([]label.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	templates := make([]label.Template, 0, len(s.templates))
	for _, tpl := range s.templates {
		templates = append(templates, tpl)
	}
	slices.SortFunc(templates, func(a, b label.Template) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return templates, nil
}

func (s *Store) GetTemplate(_ context.Context, id string) (label.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tpl, ok := s.templates[id]
	if !ok {
		return label.Template{}, fmt.Errorf("template %q: %w", id, store.ErrNotFound)
	}
	return tpl, nil
}

// SaveTemplate inserts or replaces the template with the same id.
func (s *Store) SaveTemplate(_ context.Context, tpl label.Template) (label.Template, error) {
	if strings.TrimSpace(tpl.ID) == "" {
		return label.Template{}, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[tpl.ID] = tpl
	return tpl, nil
}

func (s *Store) CreatePrintJob(_ context.Context, record domain.PrintJobRecord) error {
	if record.ID == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	record.Report.Errors = slices.Clone(record.Report.Errors)
	s.printJobs = append(s.printJobs, record)
	return nil
}

// ListPrintJobs returns records created in [from, to), newest first.
func (s *Store) ListPrintJobs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.PrintJobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	out := make([]domain.PrintJobRecord, 0, min(limit, len(s.printJobs)))
	for i := len(s.printJobs) - 1; i >= 0 && len(out) < limit; i-- {
		record := s.printJobs[i]
		if record.CreatedAt.Before(from) || !record.CreatedAt.Before(to) {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleOperator
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmp.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
