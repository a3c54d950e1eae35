package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/creatorhub/backend/internal/models"
	"github.com/creatorhub/backend/internal/payouts"
)

var (
	// ErrNetwork means the request may not have reached the server. Retrying
	// with the same idempotency key is safe.
	ErrNetwork = errors.New("network error")
	ErrServer  = errors.New("server error")
)

// Backend is the server side the workflow talks to.
type Backend interface {
	Balance(ctx context.Context) (models.Balance, error)
	KycStatus(ctx context.Context) (models.KycStatus, error)
	CreatePayout(ctx context.Context, in payouts.CreateInput, idempotencyKey string) (*models.PayoutRequest, error)
}

// Client calls the REST boundary as one creator.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, httpClient: hc}
}

var _ Backend = (*Client)(nil)

func (c *Client) Balance(ctx context.Context) (models.Balance, error) {
	var out struct {
		Available decimal.Decimal `json:"available"`
		Pending   decimal.Decimal `json:"pending"`
		Reserve   decimal.Decimal `json:"reserve"`
		Total     decimal.Decimal `json:"total"`
		Currency  string          `json:"currency"`
	}
	if err := c.do(ctx, http.MethodGet, "/earnings/summary", nil, nil, &out); err != nil {
		return models.Balance{}, err
	}
	return models.Balance{
		Available: out.Available,
		Pending:   out.Pending,
		Reserve:   out.Reserve,
		Total:     out.Total,
		Currency:  out.Currency,
	}, nil
}

func (c *Client) KycStatus(ctx context.Context) (models.KycStatus, error) {
	var out struct {
		Status models.KycStatus `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/kyc/status", nil, nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

type payoutBody struct {
	Mode        models.PayoutMode  `json:"mode"`
	Amount      decimal.Decimal    `json:"amount"`
	Destination models.Destination `json:"destination"`
}

func (c *Client) CreatePayout(ctx context.Context, in payouts.CreateInput, idempotencyKey string) (*models.PayoutRequest, error) {
	body := payoutBody{Mode: in.Mode, Amount: in.Amount, Destination: in.Destination}
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}
	var out struct {
		ID            uuid.UUID           `json:"id"`
		Mode          models.PayoutMode   `json:"mode"`
		Amount        decimal.Decimal     `json:"amount"`
		Fees          decimal.Decimal     `json:"fees"`
		Net           decimal.Decimal     `json:"net"`
		Currency      string              `json:"currency"`
		Destination   models.Destination  `json:"destination"`
		Status        models.PayoutStatus `json:"status"`
		ETA           string              `json:"eta"`
		FailureReason string              `json:"failureReason"`
		CreatedAt     time.Time           `json:"createdAt"`
		ProcessedAt   *time.Time          `json:"processedAt"`
	}
	if err := c.do(ctx, http.MethodPost, "/payouts", body, headers, &out); err != nil {
		return nil, err
	}
	return &models.PayoutRequest{
		ID:            out.ID,
		Mode:          out.Mode,
		Amount:        out.Amount,
		Fees:          out.Fees,
		Net:           out.Net,
		Currency:      out.Currency,
		Destination:   out.Destination,
		Status:        out.Status,
		ETA:           out.ETA,
		FailureReason: out.FailureReason,
		CreatedAt:     out.CreatedAt,
		ProcessedAt:   out.ProcessedAt,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, headers map[string]string, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: unreadable response: %v", ErrServer, err)
		}
		return nil
	}
	return responseError(resp.StatusCode, raw)
}

// responseError maps an error body back onto the payout taxonomy, keeping
// the server's message.
func responseError(status int, raw []byte) error {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	_ = json.Unmarshal(raw, &body)
	if err := payouts.FromCode(body.Code, body.Error); err != nil {
		return err
	}
	msg := body.Error
	if msg == "" {
		msg = http.StatusText(status)
	}
	if status == http.StatusForbidden && body.Code == "" {
		return fmt.Errorf("%w: %s", payouts.ErrKycRequired, msg)
	}
	return fmt.Errorf("%w: %d %s", ErrServer, status, msg)
}
