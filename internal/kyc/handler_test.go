package kyc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/creatorhub/backend/internal/middleware"
)

func TestHandler_StatusAndStart(t *testing.T) {
	g, _, _ := newTestGate()
	h := NewHandler(g, nil)
	creator := uuid.New()
	ctx := middleware.WithCreator(t.Context(), creator)

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/kyc/status", nil).WithContext(ctx))
	var st statusResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &st)
	if rec.Code != http.StatusOK || st.Status != "not_started" ||
		st.Message != "Please complete KYC verification to unlock all features" {
		t.Fatalf("initial status: %d %+v", rec.Code, st)
	}

	rec = httptest.NewRecorder()
	h.Start(rec, httptest.NewRequest(http.MethodPost, "/kyc/start", nil).WithContext(ctx))
	var started startResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &started)
	if rec.Code != http.StatusOK || started.URL == "" || started.Status != "pending" {
		t.Fatalf("start: %d %+v", rec.Code, started)
	}

	rec = httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/kyc/status", nil).WithContext(ctx))
	_ = json.Unmarshal(rec.Body.Bytes(), &st)
	if st.Status != "pending" || st.Message != "Your verification is being reviewed" || st.UpdatedAt == nil {
		t.Fatalf("after start: %+v", st)
	}
}

func TestHandler_Decision(t *testing.T) {
	g, _, _ := newTestGate()
	h := NewHandler(g, nil)
	creator := uuid.New()

	rec := httptest.NewRecorder()
	body := `{"creatorId":"` + creator.String() + `","status":"verified"}`
	h.Decision(rec, httptest.NewRequest(http.MethodPost, "/internal/kyc/decision", strings.NewReader(body)))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Your account is verified") {
		t.Fatalf("decision: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	body = `{"creatorId":"` + creator.String() + `","status":"maybe"}`
	h.Decision(rec, httptest.NewRequest(http.MethodPost, "/internal/kyc/decision", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad verdict: expected 400, got %d", rec.Code)
	}
}
