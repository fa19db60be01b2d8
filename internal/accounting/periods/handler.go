package periods

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-gl/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// Handler exposes the fiscal calendar over JSON. Reopen is served by the ops CLI only.
type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
}

// NewHandler builds the periods handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers period endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/periods", h.List)
	r.Post("/periods", h.Create)
	r.Get("/periods/lookup", h.Lookup)
	r.Get("/periods/{id}", h.Get)
	r.Post("/periods/{id}/close", h.Close)
}

type createRequest struct {
	CompanyID    int64  `json:"company_id" validate:"required,gt=0"`
	SubsidiaryID *int64 `json:"subsidiary_id" validate:"omitempty,gt=0"`
	FiscalYear   int    `json:"fiscal_year" validate:"required,gte=1900,lte=9999"`
	Code         string `json:"code" validate:"required,max=32"`
	Name         string `json:"name" validate:"max=120"`
	StartDate    string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate      string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Adjusting    bool   `json:"adjusting"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.QueryInt64(r, "company_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	subsidiaryID, err := httpx.QueryInt64(r, "subsidiary_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	year, err := httpx.QueryInt64(r, "fiscal_year")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter := ListFilter{SubsidiaryID: subsidiaryID}
	if companyID != nil {
		filter.CompanyID = *companyID
	}
	if year != nil {
		filter.FiscalYear = int(*year)
	}
	periods, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list periods", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"periods": periods})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	start, err := httpx.ParseDate("start_date", req.StartDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	end, err := httpx.ParseDate("end_date", req.EndDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := h.service.CreatePeriod(r.Context(), CreateInput{
		CompanyID:    req.CompanyID,
		SubsidiaryID: req.SubsidiaryID,
		FiscalYear:   req.FiscalYear,
		Code:         req.Code,
		Name:         req.Name,
		StartDate:    start,
		EndDate:      end,
		Adjusting:    req.Adjusting,
		ActorID:      internalShared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, "create period", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, period)
}

func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.QueryInt64(r, "company_id")
	if err != nil || companyID == nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company_id required")
		return
	}
	subsidiaryID, err := httpx.QueryInt64(r, "subsidiary_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := httpx.QueryDate(r, "date", time.Now().UTC())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := h.service.PeriodFor(r.Context(), *companyID, subsidiaryID, date)
	if err != nil {
		h.fail(w, "lookup period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := h.service.Close(r.Context(), id, internalShared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "close period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
