package kyc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/creatorhub/backend/internal/middleware"
	"github.com/creatorhub/backend/internal/models"
)

type Handler struct {
	gate Gate
	log  *slog.Logger
}

func NewHandler(gate Gate, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{gate: gate, log: log}
}

type statusResponse struct {
	Status    models.KycStatus `json:"status"`
	Message   string           `json:"message"`
	UpdatedAt *time.Time       `json:"updatedAt"`
}

func toStatusResponse(st models.KycState) statusResponse {
	out := statusResponse{Status: st.Status, Message: st.Status.Message()}
	if !st.UpdatedAt.IsZero() {
		t := st.UpdatedAt
		out.UpdatedAt = &t
	}
	return out
}

// GET /kyc/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := middleware.CreatorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	st, err := h.gate.GetStatus(r.Context(), creatorID)
	if err != nil {
		h.log.Error("kyc status", "error", err, "creator_id", creatorID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(st))
}

type startResponse struct {
	URL       string           `json:"url"`
	Status    models.KycStatus `json:"status"`
	ExpiresAt *time.Time       `json:"expiresAt,omitempty"`
}

// POST /kyc/start
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := middleware.CreatorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	handle, err := h.gate.StartVerification(r.Context(), creatorID)
	if err != nil {
		h.log.Error("start verification", "error", err, "creator_id", creatorID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	out := startResponse{URL: handle.URL, Status: handle.Status}
	if !handle.ExpiresAt.IsZero() {
		t := handle.ExpiresAt
		out.ExpiresAt = &t
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /internal/kyc/decision (verification provider webhook)
func (h *Handler) Decision(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CreatorID uuid.UUID        `json:"creatorId"`
		Status    models.KycStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.CreatorID == uuid.Nil {
		http.Error(w, `{"error":"creatorId is required"}`, http.StatusBadRequest)
		return
	}
	st, err := h.gate.RecordDecision(r.Context(), req.CreatorID, req.Status)
	if err != nil {
		if errors.Is(err, ErrInvalidVerdict) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		h.log.Error("record kyc decision", "error", err, "creator_id", req.CreatorID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(st))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
