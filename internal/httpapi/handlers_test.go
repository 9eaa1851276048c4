package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"labelkit/backend/internal/document"
	"labelkit/backend/internal/domain"
	"labelkit/backend/internal/pipeline"
	"labelkit/backend/internal/render"
	"labelkit/backend/internal/service"
	"labelkit/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	renderer := render.NewBarcodeRenderer()
	engine := pipeline.New(repo, renderer, pipeline.Options{Workers: 4, RenderTimeout: 5 * time.Second})
	svc := service.New(repo, engine, renderer, document.NewPDFWriter(), service.Defaults{
		PageWidthMm:  210,
		PageHeightMm: 297,
		MarginMm:     10,
	})
	auth := NewAuthManager(testSecret, time.Hour, repo)

	return New(svc, auth, "*")
}

func login(t *testing.T, api *API, username, password string) string {
	t.Helper()

	payload, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s: expected 200, got %d (%s)", username, rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.AccessToken
}

func loginAsAdmin(t *testing.T, api *API) string {
	return login(t, api, "admin", "admin123")
}

func loginAsOperator(t *testing.T, api *API) string {
	return login(t, api, "operator", "operator123")
}

func do(t *testing.T, api *API, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := do(t, api, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	decode(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin(t *testing.T) {
	api := newTestAPI(t)

	if token := loginAsAdmin(t, api); token == "" {
		t.Fatalf("expected an access token")
	}

	rec := do(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "wrongpassword"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t)

	rec := do(t, api, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = do(t, api, http.MethodGet, "/api/v1/products", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}

	rec = do(t, api, http.MethodGet, "/api/v1/products", loginAsOperator(t, api), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for operator, got %d", rec.Code)
	}
}

func TestOperatorCannotUseAdminRoutes(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsOperator(t, api)

	for _, tc := range []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodPost, "/api/v1/products", domain.ProductCreateRequest{SKU: "X-1", Name: "X"}},
		{http.MethodPost, "/api/v1/label-templates", map[string]any{"id": "x", "size": map[string]float64{"widthMm": 10, "heightMm": 10}}},
		{http.MethodPost, "/api/v1/imports", nil},
		{http.MethodGet, "/api/v1/print-jobs/reports", nil},
		{http.MethodGet, "/api/v1/users/operators", nil},
	} {
		rec := do(t, api, tc.method, tc.path, token, tc.body)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s %s: expected 403, got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestBarcodeEndpoints(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsOperator(t, api)

	rec := do(t, api, http.MethodPost, "/api/v1/barcodes/validate", token, domain.BarcodeRequest{Text: "ABC", Symbology: "ean13"})
	if rec.Code != http.StatusOK {
		t.Fatalf("validate: expected 200, got %d", rec.Code)
	}
	var validation map[string]any
	decode(t, rec, &validation)
	if validation["isValid"] != false || validation["symbology"] != "ean13" {
		t.Fatalf("unexpected validation body %v", validation)
	}

	rec = do(t, api, http.MethodPost, "/api/v1/barcodes/encode", token, domain.BarcodeRequest{Text: "400638133393", Symbology: "EAN-13"})
	if rec.Code != http.StatusOK {
		t.Fatalf("encode: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var enc map[string]any
	decode(t, rec, &enc)
	if enc["payload"] != "4006381333931" {
		t.Fatalf("unexpected payload %v", enc["payload"])
	}

	rec = do(t, api, http.MethodPost, "/api/v1/barcodes/encode", token, domain.BarcodeRequest{Text: "4006381333932", Symbology: "ean13"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("encode with wrong check digit: expected 422, got %d", rec.Code)
	}

	rec = do(t, api, http.MethodPost, "/api/v1/barcodes/encode", token, domain.BarcodeRequest{Text: "1", Symbology: "aztec"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown symbology: expected 400, got %d", rec.Code)
	}

	rec = do(t, api, http.MethodPost, "/api/v1/barcodes/preview", token, domain.BarcodePreviewRequest{Text: "BIN-A-01", Symbology: "qr"})
	if rec.Code != http.StatusOK {
		t.Fatalf("preview: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var preview domain.BarcodePreviewResponse
	decode(t, rec, &preview)
	if preview.ContentType != "image/png" || preview.ImageBase64 == "" {
		t.Fatalf("unexpected preview %+v", preview)
	}
}

func TestLabelTemplateEndpoints(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAsAdmin(t, api)

	rec := do(t, api, http.MethodPost, "/api/v1/label-templates", admin, map[string]any{
		"id":     "jar-30x20",
		"name":   "Jar lid",
		"size":   map[string]float64{"widthMm": 30, "heightMm": 20},
		"fields": []string{"name", "price"},
		"layout": "grid",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create template: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = do(t, api, http.MethodGet, "/api/v1/label-templates/jar-30x20", loginAsOperator(t, api), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get template: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"widthMm":30`) {
		t.Fatalf("expected template size in body, got %s", rec.Body.String())
	}

	rec = do(t, api, http.MethodGet, "/api/v1/label-templates/missing", admin, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing template: expected 404, got %d", rec.Code)
	}

	rec = do(t, api, http.MethodPost, "/api/v1/label-templates", admin, map[string]any{
		"id":     "bad",
		"size":   map[string]float64{"widthMm": 30, "heightMm": 20},
		"layout": "spiral",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad layout: expected 400, got %d", rec.Code)
	}
}

func TestPrintJobEndpointReportsPartialSuccess(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsOperator(t, api)

	rec := do(t, api, http.MethodPost, "/api/v1/print-jobs", token, domain.PrintJobRequest{
		TemplateID: "shelf-50x30",
		Symbology:  "ean13",
		Products: []domain.ProductRef{
			{SKU: "SKU-COFFEE-01"},
			{SKU: "SKU-BREAD-01"},
			{SKU: "SKU-UNKNOWN"},
		},
		Quantity: 2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var result service.PrintJobResult
	decode(t, rec, &result)
	if result.Report.Succeeded != 1 || result.Report.Failed != 1 || result.Report.Skipped != 1 {
		t.Fatalf("unexpected report %+v", result.Report)
	}
	if len(result.Pages) != 1 || len(result.Pages[0].Cells) != 2 {
		t.Fatalf("expected 2 cells on one page, got %+v", result.Pages)
	}
	if len(result.Previews) != 1 || result.Previews[0].Payload != "4006381333931" {
		t.Fatalf("unexpected previews %+v", result.Previews)
	}
}

func TestPrintJobEndpointFatalErrors(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsOperator(t, api)

	rec := do(t, api, http.MethodPost, "/api/v1/print-jobs", token, domain.PrintJobRequest{TemplateID: "missing", CustomText: "A"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown template: expected 404, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = do(t, api, http.MethodPost, "/api/v1/print-jobs", token, domain.PrintJobRequest{
		TemplateID: "shelf-50x30",
		Products:   []domain.ProductRef{{SKU: "SKU-NOPE"}},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty job: expected 422, got %d", rec.Code)
	}
	var body struct {
		Kind   string           `json:"kind"`
		Report domain.JobReport `json:"report"`
	}
	decode(t, rec, &body)
	if body.Kind != string(domain.KindEmptyJob) || body.Report.Skipped != 1 {
		t.Fatalf("expected empty_job with the skipped count, got %+v", body)
	}
	if rec.Header().Get("X-Labels-Skipped") != "1" {
		t.Fatalf("expected X-Labels-Skipped header, got %q", rec.Header().Get("X-Labels-Skipped"))
	}

	rec = do(t, api, http.MethodPost, "/api/v1/print-jobs", token, map[string]any{"templateId": "shelf-50x30", "unknown": true})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: expected 400, got %d", rec.Code)
	}
}

func TestPrintDocumentEndpointReturnsPDF(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsOperator(t, api)

	rec := do(t, api, http.MethodPost, "/api/v1/print-jobs/document", token, domain.PrintJobRequest{
		TemplateID: "price-tag-60x40",
		Products:   []domain.ProductRef{{SKU: "SKU-TEA-01", Quantity: 2}, {SKU: "SKU-GONE"}},
		Page:       &domain.PageSpec{WidthMm: 80, HeightMm: 60, MarginMm: 5},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", got)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Fatalf("body is not a PDF")
	}
	if rec.Header().Get("X-Labels-Succeeded") != "1" || rec.Header().Get("X-Labels-Skipped") != "1" {
		t.Fatalf("unexpected report headers %v", rec.Header())
	}
	if !strings.HasPrefix(rec.Header().Get("X-Print-Job-ID"), "job-") {
		t.Fatalf("expected a job id header, got %q", rec.Header().Get("X-Print-Job-ID"))
	}
}

func TestPrintDocumentEndpointFatalErrorKeepsReport(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsOperator(t, api)

	rec := do(t, api, http.MethodPost, "/api/v1/print-jobs/document", token, domain.PrintJobRequest{
		TemplateID: "shelf-50x30",
		Products:   []domain.ProductRef{{SKU: "SKU-GONE"}},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (%s)", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Labels-Skipped") != "1" {
		t.Fatalf("expected X-Labels-Skipped 1, got %q", rec.Header().Get("X-Labels-Skipped"))
	}
	if !strings.HasPrefix(rec.Header().Get("X-Print-Job-ID"), "job-") {
		t.Fatalf("expected a job id header, got %q", rec.Header().Get("X-Print-Job-ID"))
	}
	var body struct {
		Report domain.JobReport `json:"report"`
	}
	decode(t, rec, &body)
	if body.Report.Skipped != 1 {
		t.Fatalf("expected the skipped count in the body, got %+v", body.Report)
	}
}

func TestPrintJobEndpointRejectsOversizedJobs(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsOperator(t, api)

	for _, path := range []string{"/api/v1/print-jobs", "/api/v1/print-jobs/document"} {
		rec := do(t, api, http.MethodPost, path, token, domain.PrintJobRequest{
			TemplateID: "shelf-50x30",
			CustomText: "X",
			Quantity:   2000000000,
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d (%s)", path, rec.Code, rec.Body.String())
		}
	}
}

func TestPrintJobReportsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAsAdmin(t, api)

	rec := do(t, api, http.MethodPost, "/api/v1/print-jobs", admin, domain.PrintJobRequest{TemplateID: "bin-qr-40x40", CustomText: "BIN-7", Symbology: "qr"})
	if rec.Code != http.StatusOK {
		t.Fatalf("print job: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = do(t, api, http.MethodGet, "/api/v1/print-jobs/reports?limit=5", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reports: expected 200, got %d", rec.Code)
	}
	var body struct {
		Jobs []domain.PrintJobRecord `json:"jobs"`
	}
	decode(t, rec, &body)
	if len(body.Jobs) != 1 || body.Jobs[0].TemplateID != "bin-qr-40x40" || body.Jobs[0].RequestedBy != "admin" {
		t.Fatalf("unexpected jobs %+v", body.Jobs)
	}

	rec = do(t, api, http.MethodGet, "/api/v1/print-jobs/reports?date=yesterday", admin, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date: expected 400, got %d", rec.Code)
	}
}

func TestImportEndpoints(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAsAdmin(t, api)

	rec := do(t, api, http.MethodPost, "/api/v1/imports", admin, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start import: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var session domain.ImportSessionResponse
	decode(t, rec, &session)

	events := "/api/v1/imports/" + session.ID + "/events"
	rec = do(t, api, http.MethodPost, events, admin, domain.ImportEventRequest{Type: "confirm"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("confirm from upload: expected 409, got %d", rec.Code)
	}

	for _, ev := range []domain.ImportEventRequest{
		{Type: "upload", FileName: "supplier.csv", Drafts: []domain.ProductDraft{{SKU: "new-01", Name: "Fresh", PriceCents: 99}}},
		{Type: "confirm"},
		{Type: "commit"},
	} {
		rec = do(t, api, http.MethodPost, events, admin, ev)
		if rec.Code != http.StatusOK {
			t.Fatalf("event %s: expected 200, got %d (%s)", ev.Type, rec.Code, rec.Body.String())
		}
	}
	decode(t, rec, &session)
	if session.Step != "success" || session.Created != 1 {
		t.Fatalf("expected success with 1 created, got %+v", session)
	}

	rec = do(t, api, http.MethodGet, "/api/v1/imports/"+session.ID, admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get import: expected 200, got %d", rec.Code)
	}
	rec = do(t, api, http.MethodGet, "/api/v1/imports/imp-missing", admin, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing import: expected 404, got %d", rec.Code)
	}
}

func TestOperatorAccountEndpoints(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAsAdmin(t, api)

	rec := do(t, api, http.MethodPost, "/api/v1/users/operators", admin, domain.OperatorCreateRequest{Username: "nightshift", Password: "night-shift-1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create operator: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "night-shift-1") || strings.Contains(rec.Body.String(), "$2") {
		t.Fatalf("response must not expose the password: %s", rec.Body.String())
	}

	rec = do(t, api, http.MethodPost, "/api/v1/users/operators", admin, domain.OperatorCreateRequest{Username: "nightshift", Password: "night-shift-1"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate operator: expected 409, got %d", rec.Code)
	}

	if token := login(t, api, "nightshift", "night-shift-1"); token == "" {
		t.Fatalf("expected new operator to log in")
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	api := newTestAPI(t)

	rec := do(t, api, http.MethodGet, "/api/v1/nowhere", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	rec = do(t, api, http.MethodDelete, "/healthz", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
