package router

import (
	"net/http"

	"github.com/creatorhub/backend/internal/kyc"
	"github.com/creatorhub/backend/internal/ledger"
	"github.com/creatorhub/backend/internal/payouts"
)

type Handlers struct {
	Ledger  *ledger.Handler
	Payouts *payouts.Handler
	Kyc     *kyc.Handler
}

type Middleware func(http.Handler) http.Handler

// New returns a mux serving the creator-facing API. Every route except the
// health check and the fee quote runs behind auth; POST /payouts also runs
// behind idempotent.
func New(h Handlers, auth, idempotent Middleware) *http.ServeMux {
	mux := http.NewServeMux()
	creator := func(fn http.HandlerFunc) http.Handler { return auth(fn) }

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle("GET /earnings/summary", creator(h.Ledger.Summary))
	mux.Handle("GET /earnings/ledger", creator(h.Ledger.ListLedger))
	mux.Handle("GET /earnings/timeline", creator(h.Ledger.Timeline))

	mux.Handle("POST /payouts", auth(idempotent(http.HandlerFunc(h.Payouts.Create))))
	mux.Handle("GET /payouts", creator(h.Payouts.List))
	mux.Handle("GET /payouts/history", creator(h.Payouts.History))
	mux.HandleFunc("GET /payouts/quote", h.Payouts.Quote)
	mux.Handle("GET /payouts/{id}", creator(h.Payouts.Get))

	mux.Handle("GET /kyc/status", creator(h.Kyc.Status))
	mux.Handle("POST /kyc/start", creator(h.Kyc.Start))

	return mux
}
