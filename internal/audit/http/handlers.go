package audithttp

import (
	"context"
	"iter"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-gl/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-gl/internal/shared"
)

const maxRecords = 1000

// HistoryService yields audit history for an entity.
type HistoryService interface {
	History(ctx context.Context, entity, entityID string) iter.Seq2[shared.AuditLog, error]
}

// Handler serves audit history over JSON.
type Handler struct {
	logger  *slog.Logger
	service HistoryService
}

// NewHandler builds the audit handler.
func NewHandler(logger *slog.Logger, service HistoryService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

type recordResponse struct {
	ID       string         `json:"id"`
	ActorID  int64          `json:"actor_id,omitempty"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Before   any            `json:"before,omitempty"`
	After    any            `json:"after,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Not Implemented", "audit history unavailable")
		return
	}
	entity := chi.URLParam(r, "entity")
	entityID := chi.URLParam(r, "id")
	limit := maxRecords
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecords)
	}

	records := make([]recordResponse, 0)
	for rec, err := range h.service.History(r.Context(), entity, entityID) {
		if err != nil {
			h.logger.Error("audit history", slog.String("entity", entity), slog.String("entity_id", entityID), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		resp := recordResponse{
			ID:       rec.ID,
			ActorID:  rec.ActorID,
			Action:   rec.Action,
			Entity:   rec.Entity,
			EntityID: rec.EntityID,
			Meta:     rec.Meta,
			At:       rec.At.UTC(),
		}
		if len(rec.Before) > 0 {
			resp.Before = rec.Before
		}
		if len(rec.After) > 0 {
			resp.After = rec.After
		}
		records = append(records, resp)
		if len(records) >= limit {
			break
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"records": records})
}
