package main

import (
	"net/http"

	"github.com/creatorhub/backend/internal/kyc"
	"github.com/creatorhub/backend/internal/ledger"
	"github.com/creatorhub/backend/internal/middleware"
	"github.com/creatorhub/backend/internal/payouts"
)

// RegisterWebhookRoutes adds the /internal/ callbacks used by the commerce
// platform, the payout rail and the verification provider. All of them share
// the webhook secret.
func RegisterWebhookRoutes(
	mux *http.ServeMux,
	secret string,
	lh *ledger.Handler,
	ph *payouts.Handler,
	kh *kyc.Handler,
) {
	hook := middleware.WebhookAuth(secret)

	// POST /internal/ledger/entries: earnings, fees, refunds and adjustments
	mux.Handle("POST /internal/ledger/entries", hook(http.HandlerFunc(lh.RecordEntry)))
	mux.Handle("POST /internal/ledger/entries/{id}/status", hook(http.HandlerFunc(lh.UpdateEntryStatus)))

	// POST /internal/payouts/{id}/status: rail outcome
	mux.Handle("POST /internal/payouts/{id}/status", hook(http.HandlerFunc(ph.ApplyStatus)))

	mux.Handle("POST /internal/kyc/decision", hook(http.HandlerFunc(kh.Decision)))
}
