package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-gl/internal/consol"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// ConsolidationService computes and reads consolidation runs.
type ConsolidationService interface {
	Consolidate(ctx context.Context, req consol.Request) (consol.Run, error)
	LatestRun(ctx context.Context, req consol.Request) (consol.Run, error)
}

// Handler wires consolidation endpoints.
type Handler struct {
	logger    *slog.Logger
	service   ConsolidationService
	rateLimit func(http.Handler) http.Handler
	now       func() time.Time
}

// NewHandler constructs the consolidation handler.
func NewHandler(logger *slog.Logger, service ConsolidationService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	limiter := httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		if actor := shared.ActorFromContext(r.Context()); actor != 0 {
			return "actor:" + strconv.FormatInt(actor, 10), nil
		}
		return httprate.KeyByIP(r)
	}))
	return &Handler{logger: logger, service: service, rateLimit: limiter, now: time.Now}
}

// MountRoutes registers consolidation endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(gr chi.Router) {
		gr.Use(h.rateLimit)
		gr.Get("/consolidations", h.handleConsolidate)
		gr.Get("/consolidations/latest", h.handleLatest)
	})
}

func (h *Handler) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	run, err := h.service.Consolidate(r.Context(), req)
	if err != nil {
		h.logger.Warn("consolidate", slog.Int64("parent_company_id", req.ParentCompanyID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.respond(w, r, run)
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	run, err := h.service.LatestRun(r.Context(), req)
	if err != nil {
		h.logger.Warn("latest consolidation run", slog.Int64("parent_company_id", req.ParentCompanyID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.respond(w, r, run)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, run consol.Run) {
	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", "attachment; filename=\"consolidation-"+run.AsOf.Format("20060102")+".csv\"")
		if err := writeRunCSV(w, run); err != nil {
			h.logger.Error("write consolidation csv", slog.Any("error", err))
		}
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) parseRequest(r *http.Request) (consol.Request, error) {
	companyID, err := httpx.QueryInt64(r, "company_id")
	if err != nil {
		return consol.Request{}, err
	}
	asOf, err := httpx.QueryDate(r, "as_of", h.now().UTC())
	if err != nil {
		return consol.Request{}, err
	}
	req := consol.Request{AsOf: asOf, ReportingCurrency: r.URL.Query().Get("currency")}
	if companyID != nil {
		req.ParentCompanyID = *companyID
	}
	return req, nil
}
