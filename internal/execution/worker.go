package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/shopspring/decimal"

	"github.com/creatorhub/backend/internal/models"
)

type DispatchPayoutArgs struct {
	PayoutID uuid.UUID `json:"payout_id"`
}

func (DispatchPayoutArgs) Kind() string { return "dispatch_payout" }

// PayoutSource loads the request being handed to the rail.
type PayoutSource interface {
	GetPayout(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error)
}

// DispatchPayoutWorker submits newly created payout requests to the payment
// rail. It never changes request status; the rail reports back through the
// status webhook.
type DispatchPayoutWorker struct {
	river.WorkerDefaults[DispatchPayoutArgs]
	payouts    PayoutSource
	railURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewDispatchPayoutWorker(src PayoutSource, railURL string, log *slog.Logger) *DispatchPayoutWorker {
	if log == nil {
		log = slog.Default()
	}
	return &DispatchPayoutWorker{
		payouts:    src,
		railURL:    railURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

type railRequest struct {
	PayoutID    uuid.UUID          `json:"payoutId"`
	CreatorID   uuid.UUID          `json:"creatorId"`
	Mode        models.PayoutMode  `json:"mode"`
	Amount      decimal.Decimal    `json:"amount"`
	Net         decimal.Decimal    `json:"net"`
	Currency    string             `json:"currency"`
	Destination models.Destination `json:"destination"`
}

func (w *DispatchPayoutWorker) Work(ctx context.Context, job *river.Job[DispatchPayoutArgs]) error {
	p, err := w.payouts.GetPayout(ctx, job.Args.PayoutID)
	if err != nil {
		return fmt.Errorf("load payout %s: %w", job.Args.PayoutID, err)
	}
	if p.Status != models.PayoutPending {
		// Already picked up by the rail on an earlier attempt.
		return nil
	}
	if w.railURL == "" {
		w.log.Warn("payout rail not configured, leaving request pending", "payout_id", p.ID)
		return nil
	}

	body, err := json.Marshal(railRequest{
		PayoutID:    p.ID,
		CreatorID:   p.CreatorID,
		Mode:        p.Mode,
		Amount:      p.Amount,
		Net:         p.Net,
		Currency:    p.Currency,
		Destination: p.Destination,
	})
	if err != nil {
		return river.JobCancel(fmt.Errorf("encode rail request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.railURL, bytes.NewReader(body))
	if err != nil {
		return river.JobCancel(fmt.Errorf("build rail request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", p.ID.String())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("network error calling payout rail: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		w.log.Info("payout dispatched", "payout_id", p.ID, "attempt", job.Attempt)
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		w.log.Error("payout rail rejected request", "payout_id", p.ID, "status", resp.StatusCode)
		return river.JobCancel(fmt.Errorf("payout rail rejected request: %d", resp.StatusCode))
	default:
		return fmt.Errorf("payout rail returned status %d", resp.StatusCode)
	}
}
