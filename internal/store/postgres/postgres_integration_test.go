package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"labelkit/backend/internal/domain"
	"labelkit/backend/internal/label"
	"labelkit/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("LABELKIT_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set LABELKIT_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestTemplateRoundTripAndProductBatch(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	stamp := time.Now().UnixNano()

	tplID := fmt.Sprintf("tpl-it-%d", stamp)
	skuA := fmt.Sprintf("SKU-IT-A-%d", stamp)
	skuB := fmt.Sprintf("SKU-IT-B-%d", stamp)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM label_templates WHERE id = $1`, tplID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE sku = ANY($1)`, []string{skuA, skuB})
	})

	tpl, err := label.NewTemplate(label.Definition{
		ID:     tplID,
		Name:   "Integration",
		Size:   label.Size{WidthMm: 40, HeightMm: 25},
		Fields: []string{"name", "price", "barcode"},
		Layout: "grid",
	})
	if err != nil {
		t.Fatalf("new template: %v", err)
	}
	if _, err := s.SaveTemplate(ctx, tpl); err != nil {
		t.Fatalf("save template: %v", err)
	}
	loaded, err := s.GetTemplate(ctx, tplID)
	if err != nil {
		t.Fatalf("get template: %v", err)
	}
	if loaded.WidthMm != 40 || loaded.Layout != label.LayoutGrid || len(loaded.Fields()) != 3 {
		t.Fatalf("template did not round-trip: %+v", loaded)
	}

	_, err = s.CreateProducts(ctx, []domain.Product{
		{SKU: skuA, Name: "A", PriceCents: 100},
		{SKU: skuA, Name: "A again", PriceCents: 100},
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on repeated sku, got %v", err)
	}
	if _, err := s.GetProductBySKU(ctx, skuA); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("batch insert was not rolled back: %v", err)
	}

	n, err := s.CreateProducts(ctx, []domain.Product{
		{SKU: skuA, Name: "A", Barcode: "4006381333931", PriceCents: 100},
		{SKU: skuB, Name: "B", PriceCents: 250, Stock: 3},
	})
	if err != nil || n != 2 {
		t.Fatalf("create products: n=%d err=%v", n, err)
	}
	found, err := s.GetProductsBySKUs(ctx, []string{skuA, skuB, "SKU-MISSING"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(found) != 2 || found[skuA].Barcode != "4006381333931" {
		t.Fatalf("unexpected lookup %#v", found)
	}
}

func TestPrintJobReportsPersistCounts(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	id := fmt.Sprintf("job-it-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM print_jobs WHERE id = $1`, id)
	})

	now := time.Now().UTC()
	record := domain.PrintJobRecord{
		ID:         id,
		TemplateID: "shelf-50x30",
		Pages:      2,
		Report: domain.JobReport{
			Succeeded: 3,
			Failed:    1,
			Errors:    []domain.ItemError{{InstanceIndex: 2, Kind: domain.KindEncoding, Message: "check digit mismatch"}},
		},
		CreatedAt: now,
	}
	if err := s.CreatePrintJob(ctx, record); err != nil {
		t.Fatalf("create print job: %v", err)
	}

	jobs, err := s.ListPrintJobs(ctx, now.Add(-time.Minute), now.Add(time.Minute), 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, job := range jobs {
		if job.ID == id {
			if job.Report.Failed != 1 || job.Report.Errors[0].Kind != domain.KindEncoding {
				t.Fatalf("report did not round-trip: %+v", job.Report)
			}
			return
		}
	}
	t.Fatalf("job %s not listed", id)
}
