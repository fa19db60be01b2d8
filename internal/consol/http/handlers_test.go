package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/consol"
	"github.com/odyssey-erp/odyssey-gl/internal/consol/fx"
)

type stubService struct {
	lastReq consol.Request
	run     consol.Run
	err     error
}

func (s *stubService) Consolidate(ctx context.Context, req consol.Request) (consol.Run, error) {
	s.lastReq = req
	return s.run, s.err
}

func (s *stubService) LatestRun(ctx context.Context, req consol.Request) (consol.Run, error) {
	s.lastReq = req
	return s.run, s.err
}

func newRouter(svc *stubService) http.Handler {
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)
	return r
}

func TestConsolidateParsesQuery(t *testing.T) {
	svc := &stubService{run: consol.Run{ParentCompanyID: 3, ReportingCurrency: "USD"}}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/consolidations?company_id=3&as_of=2024-06-30&currency=usd", nil)
	newRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(3), svc.lastReq.ParentCompanyID)
	require.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), svc.lastReq.AsOf)
	require.Equal(t, "usd", svc.lastReq.ReportingCurrency)
	var body consol.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(3), body.ParentCompanyID)
}

func TestConsolidateMissingRateIsNotFound(t *testing.T) {
	svc := &stubService{err: &fx.RateNotFoundError{Base: "EUR", Quote: "USD", Type: fx.RateTypeConsolidation}}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/consolidations?company_id=1&as_of=2024-06-30&currency=USD", nil)
	newRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), string(shared.KindLookup))
}

func TestConsolidateRejectsBadDate(t *testing.T) {
	svc := &stubService{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/consolidations?company_id=1&as_of=30-06-2024", nil)
	newRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLatestRunAsCSV(t *testing.T) {
	svc := &stubService{run: consol.Run{ParentCompanyID: 1, AsOf: time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), ReportingCurrency: "USD"}}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/consolidations/latest?company_id=1&as_of=2024-06-30&currency=USD&format=csv", nil)
	newRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
	require.Contains(t, rec.Body.String(), "# Report: Consolidated Trial Balance")
}
