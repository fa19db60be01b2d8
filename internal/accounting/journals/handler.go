package journals

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/odyssey-gl/internal/shared"
)

const idempotencyModule = "journals"

// IdempotencyGuard records Idempotency-Key headers of draft submissions.
type IdempotencyGuard interface {
	Reserve(ctx context.Context, key, module string) (int64, error)
	Complete(ctx context.Context, key string, resultID int64) error
	Release(ctx context.Context, key string) error
}

// Handler serves the journal JSON API.
type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
	idem      IdempotencyGuard
}

// NewHandler builds the journals handler. idem may be nil.
func NewHandler(logger *slog.Logger, service *Service, idem IdempotencyGuard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New(), idem: idem}
}

type lineRequest struct {
	AccountID    int64           `json:"account_id" validate:"required,gt=0"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	DepartmentID *int64          `json:"department_id" validate:"omitempty,gt=0"`
	LocationID   *int64          `json:"location_id" validate:"omitempty,gt=0"`
	ClassID      *int64          `json:"class_id" validate:"omitempty,gt=0"`
	Memo         string          `json:"memo" validate:"max=240"`
}

type draftRequest struct {
	CompanyID    int64         `json:"company_id" validate:"required,gt=0"`
	SubsidiaryID *int64        `json:"subsidiary_id" validate:"omitempty,gt=0"`
	PeriodID     *int64        `json:"period_id" validate:"omitempty,gt=0"`
	EntryDate    string        `json:"entry_date" validate:"required,datetime=2006-01-02"`
	Currency     string        `json:"currency" validate:"required,len=3"`
	Memo         string        `json:"memo" validate:"max=500"`
	SourceModule string        `json:"source_module" validate:"max=64"`
	SourceRef    string        `json:"source_ref" validate:"max=128"`
	Lines        []lineRequest `json:"lines" validate:"dive"`
}

type updateRequest struct {
	EntryDate *string       `json:"entry_date" validate:"omitempty,datetime=2006-01-02"`
	PeriodID  *int64        `json:"period_id" validate:"omitempty,gt=0"`
	Memo      *string       `json:"memo" validate:"omitempty,max=500"`
	Lines     []lineRequest `json:"lines" validate:"omitempty,dive"`
}

type appendRequest struct {
	Lines []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type reverseRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Memo string `json:"memo" validate:"max=500"`
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
	periodID, err := httpx.QueryInt64(r, "period_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, err := httpx.QueryInt64(r, "limit")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	offset, err := httpx.QueryInt64(r, "offset")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter := ListFilter{
		SubsidiaryID: subsidiaryID,
		Status:       JournalStatus(strings.ToUpper(r.URL.Query().Get("status"))),
	}
	if companyID != nil {
		filter.CompanyID = *companyID
	}
	if periodID != nil {
		filter.PeriodID = *periodID
	}
	if limit != nil {
		filter.Limit = int(*limit)
	}
	if offset != nil {
		filter.Offset = int(*offset)
	}
	entries, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list journals", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// Create submits a draft. A repeated Idempotency-Key returns the draft the first request
// created, or 409 while that request is still running.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := httpx.ParseDate("entry_date", req.EntryDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	guarded := key != "" && h.idem != nil
	if guarded {
		prior, err := h.idem.Reserve(r.Context(), key, idempotencyModule)
		switch {
		case err == nil:
		case errors.Is(err, internalShared.ErrIdempotencyConflict) && prior > 0:
			entry, err := h.service.Get(r.Context(), prior)
			if err != nil {
				h.fail(w, "replay journal draft", err)
				return
			}
			httpx.JSON(w, http.StatusOK, entry)
			return
		case errors.Is(err, internalShared.ErrIdempotencyConflict), errors.Is(err, internalShared.ErrIdempotencyInFlight):
			httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
			return
		default:
			h.fail(w, "idempotency check", err)
			return
		}
	}
	entry, err := h.service.SubmitDraft(r.Context(), DraftInput{
		CompanyID:    req.CompanyID,
		SubsidiaryID: req.SubsidiaryID,
		PeriodID:     req.PeriodID,
		EntryDate:    date,
		Currency:     req.Currency,
		Memo:         req.Memo,
		SourceModule: req.SourceModule,
		SourceRef:    req.SourceRef,
		ActorID:      internalShared.ActorFromContext(r.Context()),
		Lines:        toLineInputs(req.Lines),
	})
	if err != nil {
		if guarded {
			if relErr := h.idem.Release(r.Context(), key); relErr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", relErr))
			}
		}
		h.fail(w, "submit journal draft", err)
		return
	}
	if guarded {
		if err := h.idem.Complete(r.Context(), key, entry.ID); err != nil {
			h.logger.Warn("complete idempotency key", slog.Int64("entry_id", entry.ID), slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := UpdateInput{PeriodID: req.PeriodID, Memo: req.Memo, ActorID: internalShared.ActorFromContext(r.Context())}
	if req.EntryDate != nil {
		date, err := httpx.ParseDate("entry_date", *req.EntryDate)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		in.EntryDate = &date
	}
	if req.Lines != nil {
		in.Lines = toLineInputs(req.Lines)
	}
	entry, err := h.service.UpdateDraft(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update journal draft", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) AppendLines(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req appendRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.AppendLines(r.Context(), id, toLineInputs(req.Lines), internalShared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "append journal lines", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Post(r.Context(), id, internalShared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "post journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Discard(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Discard(r.Context(), id, internalShared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "discard journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reverseRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := ReverseInput{EntryID: id, ActorID: internalShared.ActorFromContext(r.Context()), Memo: req.Memo}
	if req.Date != "" {
		var date time.Time
		if date, err = httpx.ParseDate("date", req.Date); err != nil {
			httpx.RespondError(w, err)
			return
		}
		in.TargetDate = &date
	}
	entry, err := h.service.Reverse(r.Context(), in)
	if err != nil {
		h.fail(w, "reverse journal", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func toLineInputs(lines []lineRequest) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, l := range lines {
		out = append(out, LineInput{
			AccountID:  l.AccountID,
			Debit:      l.Debit,
			Credit:     l.Credit,
			Dimensions: Dimensions{DepartmentID: l.DepartmentID, LocationID: l.LocationID, ClassID: l.ClassID},
			Memo:       l.Memo,
		})
	}
	return out
}
