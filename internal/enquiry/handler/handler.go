// Package handler exposes the public enquiry endpoints and the signed cache-invalidation webhook.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	companydomain "enquiry-socket/internal/company/domain"
	companyservice "enquiry-socket/internal/company/service"
	"enquiry-socket/internal/enquiry/domain"
	"enquiry-socket/internal/enquiry/pipeline"
	"enquiry-socket/internal/enquiry/validate"
	"enquiry-socket/internal/security"
)

// maxBodyBytes caps enquiry and webhook bodies.
const maxBodyBytes = 1 << 20

// CompanyResolver finds a company by its public key.
type CompanyResolver interface {
	Resolve(ctx context.Context, publicKey string) (*companydomain.Company, error)
}

// SchemaCache serves and invalidates cached schemas.
type SchemaCache interface {
	Get(ctx context.Context, company *companydomain.Company) (*domain.Schema, error)
	Invalidate(ctx context.Context, companyID string) (bool, error)
}

// Handler serves /{company}/enquiry and /{company}/webhook/clear-enquiry.
type Handler struct {
	companies CompanyResolver
	schemas   SchemaCache
	queue     pipeline.Queue
	masterKey string
	logger    *slog.Logger
}

// NewHandler returns a Handler. masterKey, when set, also signs valid webhooks for every company.
func NewHandler(companies CompanyResolver, schemas SchemaCache, queue pipeline.Queue, masterKey string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		companies: companies,
		schemas:   schemas,
		queue:     queue,
		masterKey: masterKey,
		logger:    logger,
	}
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/{company}", func(r chi.Router) {
		r.Use(h.companyCtx)
		r.Get("/enquiry", h.GetOptions)
		r.Post("/enquiry", h.Submit)
		r.Post("/webhook/clear-enquiry", h.ClearOptions)
	})
}

type companyKey struct{}

// companyCtx resolves the {company} URL parameter and stores the company in the request context.
func (h *Handler) companyCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		company, err := h.companies.Resolve(r.Context(), chi.URLParam(r, "company"))
		if err != nil {
			if errors.Is(err, companyservice.ErrCompanyNotFound) {
				writeStatus(w, http.StatusNotFound, "company not found")
				return
			}
			h.logger.ErrorContext(r.Context(), "enquiry: company lookup failed", "error", err)
			writeStatus(w, http.StatusInternalServerError, "internal error")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), companyKey{}, company)))
	})
}

func companyFrom(ctx context.Context) *companydomain.Company {
	c, _ := ctx.Value(companyKey{}).(*companydomain.Company)
	return c
}

type optionsResponse struct {
	Count   int                      `json:"count"`
	Visible []domain.FieldDefinition `json:"visible"`
}

// GetOptions returns the company's current enquiry form schema.
func (h *Handler) GetOptions(w http.ResponseWriter, r *http.Request) {
	company := companyFrom(r.Context())
	schema, err := h.schemas.Get(r.Context(), company)
	if err != nil {
		h.upstreamError(w, r, company, err)
		return
	}
	writeJSON(w, http.StatusOK, optionsResponse{Count: schema.Count, Visible: schema.Visible})
}

// Submit validates an enquiry against the current schema and queues it for delivery. The response
// does not wait for captcha verification or the upstream post.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	company := companyFrom(r.Context())
	var raw map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&raw); err != nil || raw == nil {
		writeStatus(w, http.StatusBadRequest, "invalid request body")
		return
	}

	schema, err := h.schemas.Get(r.Context(), company)
	if err != nil {
		h.upstreamError(w, r, company, err)
		return
	}

	sub := domain.Submission{
		Raw: raw,
		Meta: domain.RequestMeta{
			UserAgent: r.UserAgent(),
			IPAddress: ForwardedIP(r),
			Referrer:  r.Referer(),
			Origin:    r.Header.Get("Origin"),
		},
	}
	validated, errs := validate.Validate(sub, schema)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "invalid attribute data", "details": errs})
		return
	}

	job := pipeline.NewJob(company.ID, company.PublicKey, validated)
	handle, err := h.queue.Enqueue(r.Context(), job)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "enquiry: enqueue failed", "company_id", company.ID, "error", err)
		writeStatus(w, http.StatusServiceUnavailable, "enquiry queue unavailable")
		return
	}
	h.logger.InfoContext(r.Context(), "enquiry: queued", "company_id", company.ID, "job_id", handle.ID, "lane", handle.Lane)
	writeStatus(w, http.StatusCreated, "enquiry submitted to TutorCruncher")
}

// ClearOptions drops the company's cached schema when the body is signed with the company's
// private key or the master key.
func (h *Handler) ClearOptions(w http.ResponseWriter, r *http.Request) {
	company := companyFrom(r.Context())
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !security.VerifyWebhook(body, r.Header.Get(security.SignatureHeader), company.PrivateKey, h.masterKey) {
		writeStatus(w, http.StatusUnauthorized, "invalid signature")
		return
	}
	existed, err := h.schemas.Invalidate(r.Context(), company.ID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "enquiry: invalidation failed", "company_id", company.ID, "error", err)
		writeStatus(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data_existed": existed})
}

func (h *Handler) upstreamError(w http.ResponseWriter, r *http.Request, company *companydomain.Company, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	h.logger.WarnContext(r.Context(), "enquiry: schema unavailable", "company_id", company.ID, "error", err)
	writeStatus(w, http.StatusBadGateway, "upstream unavailable")
}

// ForwardedIP returns the client IP reported by the reverse proxy: the first X-Forwarded-For entry,
// else X-Real-IP, else "". An empty first entry falls through to X-Real-IP.
func ForwardedIP(r *http.Request) string {
	first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	if s := strings.TrimSpace(first); s != "" {
		return s
	}
	return strings.TrimSpace(r.Header.Get("X-Real-IP"))
}

func writeStatus(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
