package accounts

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-gl/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// Handler exposes the chart of accounts over JSON.
type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
	now       func() time.Time
}

// NewHandler builds the accounts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New(), now: time.Now}
}

// MountRoutes registers account endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.List)
	r.Post("/accounts", h.Create)
	r.Get("/accounts/{id}", h.Get)
	r.Get("/accounts/{id}/ancestors", h.Ancestors)
	r.Get("/accounts/{id}/rollup", h.Rollup)
	r.Put("/accounts/{id}/parent", h.Reparent)
	r.Put("/accounts/{id}/postable", h.SetPostable)
	r.Post("/accounts/{id}/deactivate", h.Deactivate)
}

type createRequest struct {
	CompanyID    int64  `json:"company_id" validate:"required,gt=0"`
	SubsidiaryID *int64 `json:"subsidiary_id" validate:"omitempty,gt=0"`
	Code         string `json:"code" validate:"required,max=32"`
	Name         string `json:"name" validate:"required,max=200"`
	Type         string `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	Subtype      string `json:"subtype" validate:"max=64"`
	ParentID     *int64 `json:"parent_id" validate:"omitempty,gt=0"`
	Postable     bool   `json:"postable"`
}

type reparentRequest struct {
	ParentID *int64 `json:"parent_id" validate:"omitempty,gt=0"`
}

type postableRequest struct {
	Postable bool `json:"postable"`
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
	filter := ListFilter{SubsidiaryID: subsidiaryID, ActiveOnly: r.URL.Query().Get("active") == "true"}
	if companyID != nil {
		filter.CompanyID = *companyID
	}
	accounts, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list accounts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.CreateAccount(r.Context(), CreateInput{
		CompanyID:    req.CompanyID,
		SubsidiaryID: req.SubsidiaryID,
		Code:         req.Code,
		Name:         req.Name,
		Type:         AccountType(req.Type),
		Subtype:      req.Subtype,
		ParentID:     req.ParentID,
		Postable:     req.Postable,
		ActorID:      internalShared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, "create account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.Resolve(r.Context(), id)
	if err != nil {
		h.fail(w, "get account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) Ancestors(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	chain, err := h.service.Ancestors(r.Context(), id)
	if err != nil {
		h.fail(w, "account ancestors", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ancestors": chain})
}

func (h *Handler) Rollup(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	asOf, err := httpx.QueryDate(r, "as_of", h.now().UTC().Truncate(24*time.Hour))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.Resolve(r.Context(), id)
	if err != nil {
		h.fail(w, "rollup account", err)
		return
	}
	balance, err := h.service.RollupBalance(r.Context(), id, asOf)
	if err != nil {
		h.fail(w, "rollup account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"account_id": id,
		"as_of":      asOf.Format(httpx.DateLayout),
		"debit":      balance.Debit,
		"credit":     balance.Credit,
		"net":        balance.Net(),
		"natural":    balance.Natural(account.Type),
	})
}

func (h *Handler) Reparent(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reparentRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.Reparent(r.Context(), id, req.ParentID, internalShared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "reparent account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) SetPostable(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req postableRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.SetPostable(r.Context(), id, req.Postable, internalShared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "set postable", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.Deactivate(r.Context(), id, internalShared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "deactivate account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
