package ledger

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/creatorhub/backend/internal/middleware"
	"github.com/creatorhub/backend/internal/models"
)

func newTestHandler(t *testing.T) (*Handler, Service, *clock) {
	t.Helper()
	svc, _, clk := newTestService(t)
	return NewHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil))), svc, clk
}

func asCreator(req *http.Request, creator uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithCreator(req.Context(), creator))
}

func TestSummary_RoundsAtBoundary(t *testing.T) {
	h, svc, clk := newTestHandler(t)
	creator := uuid.New()
	mustAppend(t, svc, creator, models.EntryPPV, "0.05")
	mustAppend(t, svc, creator, models.EntryPPV, "10.00")
	clk.Advance(48 * time.Hour)
	mustAppend(t, svc, creator, models.EntryTip, "3.10")

	rec := httptest.NewRecorder()
	h.Summary(rec, asCreator(httptest.NewRequest(http.MethodGet, "/earnings/summary", nil), creator))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got balanceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// released 10.05: reserve 1.005 rounds to 1.01, available 9.04.
	if got.Reserve != 1.01 || got.Available != 9.04 || got.Pending != 3.10 || got.Total != 13.15 {
		t.Errorf("got %+v", got)
	}
	if got.Currency != "EUR" {
		t.Errorf("currency: got %q", got.Currency)
	}
}

func TestSummary_Unauthorized(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.Summary(rec, httptest.NewRequest(http.MethodGet, "/earnings/summary", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestListLedger_Payload(t *testing.T) {
	h, svc, _ := newTestHandler(t)
	creator := uuid.New()
	for i := 0; i < 3; i++ {
		mustAppend(t, svc, creator, models.EntryMarketplace, "12.345")
	}

	req := asCreator(httptest.NewRequest(http.MethodGet, "/earnings/ledger?page=1&limit=2&type=marketplace", nil), creator)
	rec := httptest.NewRecorder()
	h.ListLedger(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got entryPageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Total != 3 || got.Page != 1 || got.Limit != 2 || !got.HasMore || len(got.Entries) != 2 {
		t.Fatalf("paging: %+v", got)
	}
	if got.Entries[0].Amount != 12.35 || got.Entries[0].ReleaseIn != "2 days" || got.Entries[0].IsReleased {
		t.Errorf("entry: %+v", got.Entries[0])
	}
}

func TestListLedger_BadParams(t *testing.T) {
	h, _, _ := newTestHandler(t)
	creator := uuid.New()
	for _, q := range []string{"?page=abc", "?limit=x", "?type=bonus", "?status=gone"} {
		rec := httptest.NewRecorder()
		h.ListLedger(rec, asCreator(httptest.NewRequest(http.MethodGet, "/earnings/ledger"+q, nil), creator))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestRecordEntry_Webhook(t *testing.T) {
	h, svc, _ := newTestHandler(t)
	creator := uuid.New()
	body := `{"creatorId":"` + creator.String() + `","type":"ppv","amount":19.99,"itemId":"post_1","description":"PPV unlock"}`

	rec := httptest.NewRecorder()
	h.RecordEntry(rec, httptest.NewRequest(http.MethodPost, "/internal/ledger/entries", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	page, _ := svc.ListEntries(t.Context(), creator, EntryFilter{}, 1, 10)
	if page.Total != 1 || page.Entries[0].ItemID != "post_1" {
		t.Fatalf("entry not stored: %+v", page)
	}

	rec = httptest.NewRecorder()
	h.RecordEntry(rec, httptest.NewRequest(http.MethodPost, "/internal/ledger/entries",
		strings.NewReader(`{"creatorId":"`+creator.String()+`","type":"ppv","amount":-1}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative amount: expected 400, got %d", rec.Code)
	}
}

func TestUpdateEntryStatus_Webhook(t *testing.T) {
	h, svc, _ := newTestHandler(t)
	e := mustAppend(t, svc, uuid.New(), models.EntryTip, "5")

	mux := http.NewServeMux()
	mux.HandleFunc("POST /internal/ledger/entries/{id}/status", h.UpdateEntryStatus)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/ledger/entries/"+e.ID.String()+"/status",
		strings.NewReader(`{"status":"failed"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/ledger/entries/"+uuid.NewString()+"/status",
		strings.NewReader(`{"status":"failed"}`)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown entry: expected 404, got %d", rec.Code)
	}
}
