package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	companydomain "enquiry-socket/internal/company/domain"
	companyservice "enquiry-socket/internal/company/service"
	"enquiry-socket/internal/enquiry/domain"
	enquiryhandler "enquiry-socket/internal/enquiry/handler"
	"enquiry-socket/internal/enquiry/pipeline"
	healthhandler "enquiry-socket/internal/health/handler"
)

type stubCompanies struct{}

func (stubCompanies) Resolve(_ context.Context, publicKey string) (*companydomain.Company, error) {
	if publicKey == "thepublickey" {
		return &companydomain.Company{ID: "c1", PublicKey: publicKey, PrivateKey: "theprivatekey"}, nil
	}
	return nil, companyservice.ErrCompanyNotFound
}

type stubSchemas struct{}

func (stubSchemas) Get(context.Context, *companydomain.Company) (*domain.Schema, error) {
	return &domain.Schema{CompanyID: "c1", Visible: []domain.FieldDefinition{}}, nil
}

func (stubSchemas) Invalidate(context.Context, string) (bool, error) { return false, nil }

type stubQueue struct{}

func (stubQueue) Enqueue(context.Context, pipeline.Job) (pipeline.JobHandle, error) {
	return pipeline.JobHandle{}, nil
}

type errPinger struct{}

func (errPinger) PingContext(context.Context) error { return errors.New("connection refused") }

func newTestRouter(t *testing.T, health http.Handler, logs *bytes.Buffer) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(logs, nil))
	h := enquiryhandler.NewHandler(stubCompanies{}, stubSchemas{}, stubQueue{}, "", logger)
	return NewRouter(Deps{Enquiry: h, Health: health, Logger: logger})
}

func TestNewRouter_DefaultHealth(t *testing.T) {
	var logs bytes.Buffer
	router := newTestRouter(t, nil, &logs)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Empty(t, logs.String(), "healthz should not be logged")
}

func TestNewRouter_HealthHandler(t *testing.T) {
	var logs bytes.Buffer
	router := newTestRouter(t, healthhandler.NewServer(errPinger{}), &logs)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewRouter_EnquiryRoutes(t *testing.T) {
	var logs bytes.Buffer
	router := newTestRouter(t, nil, &logs)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/thepublickey/enquiry", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing/enquiry", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestLog(t *testing.T) {
	var logs bytes.Buffer
	router := newTestRouter(t, nil, &logs)

	req := httptest.NewRequest(http.MethodGet, "/thepublickey/enquiry", nil)
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	router.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &line))
	assert.Equal(t, "http request", line["msg"])
	assert.Equal(t, "GET", line["method"])
	assert.Equal(t, "/thepublickey/enquiry", line["path"])
	assert.Equal(t, "/{company}/enquiry", line["route"])
	assert.EqualValues(t, 200, line["status"])
	assert.Equal(t, "1.2.3.4", line["client_ip"])
	assert.NotEmpty(t, line["request_id"])
}

func TestCORS(t *testing.T) {
	var logs bytes.Buffer
	router := newTestRouter(t, nil, &logs)

	req := httptest.NewRequest(http.MethodOptions, "/thepublickey/enquiry", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/thepublickey/enquiry", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
