package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"labelkit/backend/internal/domain"
	"labelkit/backend/internal/importwizard"
	"labelkit/backend/internal/label"
	"labelkit/backend/internal/logging"
	"labelkit/backend/internal/service"
	"labelkit/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

// Allow records an attempt for key and reports whether it fits in the window.
func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := slices.DeleteFunc(slices.Clone(l.entries[key]), func(ts time.Time) bool {
		return !ts.After(cutoff)
	})
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(a.securityHeaders)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMethodNotAllowed(w)
	})

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Post("/barcodes/validate", a.requireAuth(a.handleValidateBarcode, domain.RoleOperator, domain.RoleAdmin))
		r.Post("/barcodes/encode", a.requireAuth(a.handleEncodeBarcode, domain.RoleOperator, domain.RoleAdmin))
		r.Post("/barcodes/preview", a.requireAuth(a.handlePreviewBarcode, domain.RoleOperator, domain.RoleAdmin))

		r.Get("/label-templates", a.requireAuth(a.handleListTemplates, domain.RoleOperator, domain.RoleAdmin))
		r.Post("/label-templates", a.requireAuth(a.handleSaveTemplate, domain.RoleAdmin))
		r.Get("/label-templates/{id}", a.requireAuth(a.handleGetTemplate, domain.RoleOperator, domain.RoleAdmin))

		r.Get("/products", a.requireAuth(a.handleListProducts, domain.RoleOperator, domain.RoleAdmin))
		r.Post("/products", a.requireAuth(a.handleCreateProduct, domain.RoleAdmin))

		r.Post("/print-jobs", a.requireAuth(a.handlePrintJob, domain.RoleOperator, domain.RoleAdmin))
		r.Post("/print-jobs/document", a.requireAuth(a.handlePrintDocument, domain.RoleOperator, domain.RoleAdmin))
		r.Get("/print-jobs/reports", a.requireAuth(a.handlePrintJobReports, domain.RoleAdmin))

		r.Post("/imports", a.requireAuth(a.handleStartImport, domain.RoleAdmin))
		r.Get("/imports/{id}", a.requireAuth(a.handleGetImport, domain.RoleAdmin))
		r.Post("/imports/{id}/events", a.requireAuth(a.handleImportEvent, domain.RoleAdmin))

		r.Get("/users/operators", a.requireAuth(a.handleListOperators, domain.RoleAdmin))
		r.Post("/users/operators", a.requireAuth(a.handleCreateOperator, domain.RoleAdmin))
	})

	return r
}

// requireAuth is the only place a bearer token is read. The parsed actor
// travels in the request context from here on.
func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !slices.Contains(roles, actor.Role) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrInactiveAccount) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		a.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleValidateBarcode(w http.ResponseWriter, r *http.Request) {
	var req domain.BarcodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := a.service.ValidateBarcode(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleEncodeBarcode(w http.ResponseWriter, r *http.Request) {
	var req domain.BarcodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	enc, err := a.service.EncodeBarcode(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, enc)
}

func (a *API) handlePreviewBarcode(w http.ResponseWriter, r *http.Request) {
	var req domain.BarcodePreviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	preview, err := a.service.PreviewBarcode(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (a *API) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := a.service.ListTemplates(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

func (a *API) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := a.service.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"template": tpl})
}

func (a *API) handleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	var def label.Definition
	if err := decodeJSON(r, &def); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tpl, err := a.service.SaveTemplate(r.Context(), def)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"template": tpl})
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handlePrintJob(w http.ResponseWriter, r *http.Request) {
	var req domain.PrintJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := a.service.RunPrintJob(r.Context(), req)
	if err != nil {
		a.failJob(w, r, err, result.ID, result.Report)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handlePrintDocument(w http.ResponseWriter, r *http.Request) {
	var req domain.PrintJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	doc, err := a.service.RenderDocument(r.Context(), req)
	if err != nil {
		a.failJob(w, r, err, doc.ID, doc.Report)
		return
	}

	h := w.Header()
	h.Set("Content-Type", doc.ContentType)
	h.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, doc.ID))
	setReportHeaders(h, doc.ID, doc.Report)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Data)
}

func setReportHeaders(h http.Header, jobID string, report domain.JobReport) {
	if jobID != "" {
		h.Set("X-Print-Job-ID", jobID)
	}
	h.Set("X-Labels-Succeeded", strconv.Itoa(report.Succeeded))
	h.Set("X-Labels-Failed", strconv.Itoa(report.Failed))
	h.Set("X-Labels-Skipped", strconv.Itoa(report.Skipped))
}

func (a *API) handlePrintJobReports(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parsePositiveLimit(query.Get("limit"), 50, 500)
	records, err := a.service.ListPrintJobReports(r.Context(), query.Get("date"), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": records})
}

func (a *API) handleStartImport(w http.ResponseWriter, r *http.Request) {
	session, err := a.service.StartImport(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (a *API) handleGetImport(w http.ResponseWriter, r *http.Request) {
	session, err := a.service.GetImport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *API) handleImportEvent(w http.ResponseWriter, r *http.Request) {
	var req domain.ImportEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	session, err := a.service.ApplyImportEvent(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *API) handleListOperators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"operators": a.auth.ListOperators(r.Context())})
}

func (a *API) handleCreateOperator(w http.ResponseWriter, r *http.Request) {
	var req domain.OperatorCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := a.auth.CreateOperator(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"operator": user})
}

// statusFor maps service and engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound), errors.Is(err, service.ErrImportNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict), errors.Is(err, importwizard.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalidInput), errors.Is(err, importwizard.ErrInvalidDraft):
		return http.StatusBadRequest
	}

	switch domain.KindOf(err) {
	case domain.KindConfiguration:
		return http.StatusBadRequest
	case domain.KindValidation, domain.KindEncoding, domain.KindEmptyJob:
		return http.StatusUnprocessableEntity
	case domain.KindCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		logging.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, err)
}

// failJob answers a fatal print job error with the report collected so far.
func (a *API) failJob(w http.ResponseWriter, r *http.Request, err error, jobID string, report domain.JobReport) {
	status := statusFor(err)
	if status >= 500 {
		a.fail(w, r, err)
		return
	}
	setReportHeaders(w.Header(), jobID, report)
	writeJSON(w, status, map[string]any{
		"error":  err.Error(),
		"kind":   domain.KindOf(err),
		"report": report,
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError hides the detail of 5xx errors from clients.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
