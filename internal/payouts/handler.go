package payouts

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/creatorhub/backend/internal/fees"
	"github.com/creatorhub/backend/internal/middleware"
	"github.com/creatorhub/backend/internal/models"
)

const maxBodyBytes = 64 << 10

type Handler struct {
	svc       Service
	validator *Validator
	log       *slog.Logger
}

func NewHandler(svc Service, validator *Validator, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, validator: validator, log: log}
}

type payoutResponse struct {
	ID            uuid.UUID           `json:"id"`
	Mode          models.PayoutMode   `json:"mode"`
	Amount        float64             `json:"amount"`
	Fees          float64             `json:"fees"`
	Net           float64             `json:"net"`
	Currency      string              `json:"currency"`
	Destination   models.Destination  `json:"destination"`
	Status        models.PayoutStatus `json:"status"`
	ETA           string              `json:"eta"`
	FailureReason string              `json:"failureReason,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	ProcessedAt   *time.Time          `json:"processedAt,omitempty"`
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func toPayoutResponse(p *models.PayoutRequest) payoutResponse {
	return payoutResponse{
		ID:            p.ID,
		Mode:          p.Mode,
		Amount:        money(p.Amount),
		Fees:          money(p.Fees),
		Net:           money(p.Net),
		Currency:      p.Currency,
		Destination:   p.Destination,
		Status:        p.Status,
		ETA:           p.ETA,
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt,
		ProcessedAt:   p.ProcessedAt,
	}
}

func toPayoutResponses(list []*models.PayoutRequest) []payoutResponse {
	out := make([]payoutResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toPayoutResponse(p))
	}
	return out
}

type createPayoutRequest struct {
	Mode        models.PayoutMode  `json:"mode"`
	Amount      decimal.Decimal    `json:"amount"`
	Destination models.Destination `json:"destination"`
}

// POST /payouts
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := middleware.CreatorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, ErrInvalidRequest)
		return
	}
	if err := h.validator.Validate(schemaCreatePayout, body); err != nil {
		h.writeError(w, err)
		return
	}
	var req createPayoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, ErrInvalidRequest)
		return
	}
	p, err := h.svc.CreateRequest(r.Context(), creatorID, CreateInput{
		Mode:        req.Mode,
		Amount:      req.Amount,
		Destination: req.Destination,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPayoutResponse(p))
}

type payoutPageResponse struct {
	Payouts []payoutResponse `json:"payouts"`
	Total   int              `json:"total"`
	Page    int              `json:"page"`
	Limit   int              `json:"limit"`
	HasMore bool             `json:"hasMore"`
}

// GET /payouts?page&limit&status
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := middleware.CreatorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	page, limit, err := pageParams(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := models.PayoutStatus(r.URL.Query().Get("status"))
	res, err := h.svc.ListRequests(r.Context(), creatorID, status, page, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payoutPageResponse{
		Payouts: toPayoutResponses(res.Payouts),
		Total:   res.Total,
		Page:    res.Page,
		Limit:   res.Limit,
		HasMore: res.HasMore,
	})
}

// GET /payouts/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := middleware.CreatorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, ErrNotFound)
		return
	}
	p, err := h.svc.GetRequest(r.Context(), creatorID, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutResponse(p))
}

type historyResponse struct {
	TotalPaidOut float64          `json:"totalPaidOut"`
	Currency     string           `json:"currency"`
	Payouts      []payoutResponse `json:"payouts"`
}

// GET /payouts/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := middleware.CreatorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	hist, err := h.svc.History(r.Context(), creatorID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{
		TotalPaidOut: money(hist.TotalPaidOut),
		Currency:     hist.Currency,
		Payouts:      toPayoutResponses(hist.Recent),
	})
}

type quoteResponse struct {
	Mode   models.PayoutMode `json:"mode"`
	Amount float64           `json:"amount"`
	Fees   float64           `json:"fees"`
	Net    float64           `json:"net"`
	ETA    string            `json:"eta"`
}

// GET /payouts/quote?mode&amount
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := models.PayoutMode(q.Get("mode"))
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil || amount.IsNegative() {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "amount must be a non-negative number", Code: CodeInvalidRequest})
		return
	}
	quote, err := fees.Compute(amount, mode)
	if err != nil {
		h.writeError(w, ErrInvalidMode)
		return
	}
	quote = quote.Rounded()
	writeJSON(w, http.StatusOK, quoteResponse{
		Mode:   mode,
		Amount: money(amount),
		Fees:   money(quote.Fees),
		Net:    money(quote.Net),
		ETA:    quote.ETA,
	})
}

type statusUpdateRequest struct {
	Status        models.PayoutStatus `json:"status"`
	FailureReason string              `json:"failureReason"`
}

// POST /internal/payouts/{id}/status (payment rail webhook)
func (h *Handler) ApplyStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, ErrNotFound)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, ErrInvalidRequest)
		return
	}
	if err := h.validator.Validate(schemaStatusUpdate, body); err != nil {
		h.writeError(w, err)
		return
	}
	var req statusUpdateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, ErrInvalidRequest)
		return
	}
	p, err := h.svc.ApplyStatus(r.Context(), id, req.Status, req.FailureReason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutResponse(p))
}

func pageParams(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	var page, limit int
	var err error
	if v := q.Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil || page < 1 {
			return 0, 0, fmt.Errorf("%w: page must be a positive integer", ErrInvalidRequest)
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 {
			return 0, 0, fmt.Errorf("%w: limit must be a positive integer", ErrInvalidRequest)
		}
	}
	return page, limit, nil
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code, status := Classify(err)
	if status == http.StatusInternalServerError {
		h.log.Error("payout request failed", "error", err)
		writeJSON(w, status, errorBody{Error: "internal error", Code: code})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
