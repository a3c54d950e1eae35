package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/creatorhub/backend/internal/middleware"
	"github.com/creatorhub/backend/internal/models"
)

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

type balanceResponse struct {
	Available float64 `json:"available"`
	Pending   float64 `json:"pending"`
	Reserve   float64 `json:"reserve"`
	Total     float64 `json:"total"`
	Currency  string  `json:"currency"`
}

type entryResponse struct {
	ID          uuid.UUID          `json:"id"`
	Type        models.EntryType   `json:"type"`
	ItemID      string             `json:"itemId,omitempty"`
	Description string             `json:"description,omitempty"`
	Amount      float64            `json:"amount"`
	Status      models.EntryStatus `json:"status"`
	CreatedAt   time.Time          `json:"createdAt"`
	ReleaseDate time.Time          `json:"releaseDate"`
	IsReleased  bool               `json:"isReleased"`
	ReleaseIn   string             `json:"releaseIn"`
}

type entryPageResponse struct {
	Entries []entryResponse `json:"entries"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	Limit   int             `json:"limit"`
	HasMore bool            `json:"hasMore"`
}

type timelineResponse struct {
	Items        []entryResponse `json:"items"`
	TotalPending float64         `json:"totalPending"`
	Currency     string          `json:"currency"`
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func toEntryResponse(v EntryView) entryResponse {
	return entryResponse{
		ID:          v.ID,
		Type:        v.Type,
		ItemID:      v.ItemID,
		Description: v.Description,
		Amount:      money(v.Amount),
		Status:      v.Status,
		CreatedAt:   v.CreatedAt,
		ReleaseDate: v.ReleaseDate,
		IsReleased:  v.IsReleased,
		ReleaseIn:   v.ReleaseIn,
	}
}

// GET /earnings/summary
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := middleware.CreatorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	b, err := h.svc.ComputeBalance(r.Context(), creatorID)
	if err != nil {
		h.log.Error("compute balance", "error", err, "creator_id", creatorID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	b = b.Rounded()
	writeJSON(w, http.StatusOK, balanceResponse{
		Available: b.Available.InexactFloat64(),
		Pending:   b.Pending.InexactFloat64(),
		Reserve:   b.Reserve.InexactFloat64(),
		Total:     b.Total.InexactFloat64(),
		Currency:  b.Currency,
	})
}

// GET /earnings/ledger?page&limit&type&status
func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := middleware.CreatorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	page, limit, err := pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	filter := EntryFilter{Type: models.EntryType(q.Get("type")), Status: models.EntryStatus(q.Get("status"))}
	res, err := h.svc.ListEntries(r.Context(), creatorID, filter, page, limit)
	if err != nil {
		if errors.Is(err, ErrInvalidEntryType) || errors.Is(err, ErrInvalidStatus) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("list ledger", "error", err, "creator_id", creatorID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	out := entryPageResponse{
		Entries: make([]entryResponse, 0, len(res.Entries)),
		Total:   res.Total,
		Page:    res.Page,
		Limit:   res.Limit,
		HasMore: res.HasMore,
	}
	for _, e := range res.Entries {
		out.Entries = append(out.Entries, toEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /earnings/timeline
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := middleware.CreatorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	tl, err := h.svc.ReleaseTimeline(r.Context(), creatorID)
	if err != nil {
		h.log.Error("release timeline", "error", err, "creator_id", creatorID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	out := timelineResponse{
		Items:        make([]entryResponse, 0, len(tl.Items)),
		TotalPending: money(tl.TotalPending),
		Currency:     tl.Currency,
	}
	for _, e := range tl.Items {
		out.Items = append(out.Items, toEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

type recordEntryRequest struct {
	CreatorID   uuid.UUID        `json:"creatorId"`
	Type        models.EntryType `json:"type"`
	Amount      decimal.Decimal  `json:"amount"`
	ItemID      string           `json:"itemId"`
	Description string           `json:"description"`
}

// POST /internal/ledger/entries (commerce webhook)
func (h *Handler) RecordEntry(w http.ResponseWriter, r *http.Request) {
	var req recordEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.CreatorID == uuid.Nil {
		http.Error(w, `{"error":"creatorId is required"}`, http.StatusBadRequest)
		return
	}
	e, err := h.svc.AppendEntry(r.Context(), req.CreatorID, EntryInput{
		Type:        req.Type,
		Amount:      req.Amount,
		ItemID:      req.ItemID,
		Description: req.Description,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidEntryType) || errors.Is(err, ErrInvalidAmount) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("append entry", "error", err, "creator_id", req.CreatorID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	h.log.Info("ledger entry recorded", "entry_id", e.ID, "creator_id", e.CreatorID, "type", e.Type, "release_date", e.ReleaseDate)
	writeJSON(w, http.StatusCreated, toEntryResponse(EntryView{LedgerEntry: e, IsReleased: e.IsReleasedAt(e.CreatedAt), ReleaseIn: e.ReleaseIn(e.CreatedAt)}))
}

// POST /internal/ledger/entries/{id}/status (payment rail webhook)
func (h *Handler) UpdateEntryStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid entry id"}`, http.StatusBadRequest)
		return
	}
	var req struct {
		Status models.EntryStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	e, err := h.svc.SetEntryStatus(r.Context(), id, req.Status)
	switch {
	case errors.Is(err, ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, ErrEntryNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		h.log.Error("set entry status", "error", err, "entry_id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": e.ID, "status": e.Status})
}

func pageParams(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	var page, limit int
	var err error
	if v := q.Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("invalid page %q", v)
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("invalid limit %q", v)
		}
	}
	return page, limit, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
