package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/creatorhub/backend/internal/models"
	"github.com/creatorhub/backend/internal/payouts"
)

func TestClient_ReadsBalanceAndKyc(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/earnings/summary":
			_, _ = io.WriteString(w, `{"available":90.45,"pending":12.5,"reserve":10.05,"total":113,"currency":"EUR"}`)
		case "/kyc/status":
			_, _ = io.WriteString(w, `{"status":"pending","message":"Your verification is being reviewed"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "tok", nil)
	bal, err := c.Balance(context.Background())
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if !bal.Available.Equal(d("90.45")) || bal.Currency != "EUR" {
		t.Errorf("balance: %+v", bal)
	}
	st, err := c.KycStatus(context.Background())
	if err != nil || st != models.KycPending {
		t.Errorf("kyc: %s, %v", st, err)
	}
}

func TestClient_CreatePayout(t *testing.T) {
	var gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"6f1c2e1a-8f5b-4c6e-9a51-7a0d2b1c3d4e","mode":"standard","amount":50,"fees":1,"net":49,
			"currency":"EUR","destination":{"type":"iban","iban":"FR7630006000011234567890189"},
			"status":"pending","eta":"3-5 business days","createdAt":"2026-03-02T12:00:00Z"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", nil)
	p, err := c.CreatePayout(context.Background(), payouts.CreateInput{
		Mode:        models.PayoutStandard,
		Amount:      d("50.00"),
		Destination: models.Destination{Type: models.DestinationIBAN, IBAN: "FR7630006000011234567890189"},
	}, "key-1")
	if err != nil {
		t.Fatalf("CreatePayout: %v", err)
	}
	if gotKey != "key-1" || gotBody["mode"] != "standard" || gotBody["amount"] != "50" {
		t.Errorf("request: key=%q body=%v", gotKey, gotBody)
	}
	if !p.Net.Equal(d("49")) || p.Status != models.PayoutPending || p.ETA != "3-5 business days" {
		t.Errorf("payout: %+v", p)
	}
}

func TestClient_MapsErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"amount", 400, `{"error":"amount is below the minimum payout: minimum payout is 10.00 EUR","code":"amount_too_low"}`, payouts.ErrAmountTooLow},
		{"balance", 400, `{"error":"insufficient available balance","code":"insufficient_balance"}`, payouts.ErrInsufficientBalance},
		{"kyc", 403, `{"error":"identity verification required","code":"kyc_required"}`, payouts.ErrKycRequired},
		{"kyc without code", 403, `{"error":"KYC required"}`, payouts.ErrKycRequired},
		{"destination", 400, `{"error":"invalid payout destination: IBAN is not valid","code":"invalid_destination"}`, payouts.ErrInvalidDestination},
		{"conflict", 409, `{"error":"balance changed","code":"concurrency_conflict"}`, payouts.ErrConcurrencyConflict},
		{"server", 500, `{"error":"internal error","code":"internal"}`, ErrServer},
		{"gateway", 502, `<html>bad gateway</html>`, ErrServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "tok", nil).CreatePayout(context.Background(), payouts.CreateInput{}, "")
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClient_MessageIsKept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"amount is below the minimum payout: minimum payout is 10.00 EUR","code":"amount_too_low"}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "tok", nil).CreatePayout(context.Background(), payouts.CreateInput{}, "")
	if err == nil || !strings.Contains(err.Error(), "minimum payout is 10.00 EUR") {
		t.Fatalf("server message lost: %v", err)
	}
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "tok", nil).Balance(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("got %v, want ErrNetwork", err)
	}
}
