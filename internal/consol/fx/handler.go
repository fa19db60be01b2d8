package fx

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// Handler exposes rate lookups and administration.
type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
}

// NewHandler builds the fx handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger, validator: validator.New()}
}

// MountRoutes registers fx endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/fx/rate", h.Resolve)
	r.Get("/fx/rates", h.History)
	r.Post("/fx/rates", h.AddRate)
	r.Get("/fx/currencies", h.Currencies)
	r.Post("/fx/currencies", h.AddCurrency)
}

type rateRequest struct {
	Base          string `json:"base" validate:"required,len=3"`
	Quote         string `json:"quote" validate:"required,len=3"`
	Type          string `json:"type" validate:"required,oneof=SPOT AVERAGE CLOSING CONSOLIDATION"`
	EffectiveDate string `json:"effective_date" validate:"required,datetime=2006-01-02"`
	Rate          string `json:"rate" validate:"required,numeric"`
}

type currencyRequest struct {
	Code      string `json:"code" validate:"required,len=3"`
	Name      string `json:"name" validate:"max=80"`
	Precision *int32 `json:"precision" validate:"omitempty,gte=0,lte=8"`
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := httpx.QueryDate(r, "date", time.Now().UTC())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	t := RateType(strings.ToUpper(q.Get("type")))
	if t == "" {
		t = RateTypeSpot
	}
	rate, err := h.service.Rate(r.Context(), q.Get("base"), q.Get("quote"), t, date)
	if err != nil {
		h.logger.Debug("resolve rate", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"base":    strings.ToUpper(q.Get("base")),
		"quote":   strings.ToUpper(q.Get("quote")),
		"type":    t,
		"date":    shared.Day(date).Format(httpx.DateLayout),
		"rate":    rate,
		"version": h.service.Version(),
	})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := h.service.History(r.Context(), q.Get("base"), q.Get("quote"), RateType(strings.ToUpper(q.Get("type"))))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if rows == nil {
		rows = []Rate{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rates": rows})
}

func (h *Handler) AddRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := httpx.ParseDate("effective_date", req.EffectiveDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	value, err := decimal.NewFromString(req.Rate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "rate must be a decimal")
		return
	}
	rate, err := h.service.AddRate(r.Context(), RateInput{
		Base:          req.Base,
		Quote:         req.Quote,
		Type:          RateType(req.Type),
		EffectiveDate: date,
		Rate:          value,
		ActorID:       internalShared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Warn("add rate", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rate)
}

func (h *Handler) Currencies(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"currencies": h.service.Currencies(r.Context())})
}

func (h *Handler) AddCurrency(w http.ResponseWriter, r *http.Request) {
	var req currencyRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.AddCurrency(r.Context(), CurrencyInput{
		Code:      req.Code,
		Name:      req.Name,
		Precision: req.Precision,
		ActorID:   internalShared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Warn("add currency", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}
