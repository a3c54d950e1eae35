package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/creatorhub/backend/internal/models"
	"github.com/creatorhub/backend/internal/payouts"
)

// ---------------------------------------------------------------------------
// Backend mock
// ---------------------------------------------------------------------------

type call struct {
	in  payouts.CreateInput
	key string
}

type fakeBackend struct {
	mu        sync.Mutex
	available string
	kyc       models.KycStatus
	// errs are returned by successive CreatePayout calls; nil entries succeed.
	errs  []error
	calls []call
	// gate, when set, blocks CreatePayout until closed.
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeBackend) Balance(context.Context) (models.Balance, error) {
	return models.Balance{Available: decimal.RequireFromString(f.available), Currency: "EUR"}, nil
}

func (f *fakeBackend) KycStatus(context.Context) (models.KycStatus, error) {
	return f.kyc, nil
}

func (f *fakeBackend) CreatePayout(_ context.Context, in payouts.CreateInput, key string) (*models.PayoutRequest, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{in: in, key: key})
	n := len(f.calls)
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if n <= len(f.errs) && f.errs[n-1] != nil {
		return nil, f.errs[n-1]
	}
	return &models.PayoutRequest{ID: uuid.New(), Mode: in.Mode, Amount: in.Amount, Destination: in.Destination, Status: models.PayoutPending}, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func openWorkflow(t *testing.T, b *fakeBackend) *Workflow {
	t.Helper()
	w := New(b, d("10.00"))
	if err := w.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return w
}

// fillTo walks a standard IBAN payout of amount up to the confirm step.
func fillTo(t *testing.T, w *Workflow, amount string) {
	t.Helper()
	steps := []func() error{
		func() error { return w.SelectMode(models.PayoutStandard) },
		w.Next,
		func() error {
			return w.SetDestination(models.Destination{IBAN: "fr76 3000 6000 0112 3456 7890 189"})
		},
		w.Next,
		func() error { return w.SetAmount(d(amount)) },
		w.Next,
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
}

// ---------------------------------------------------------------------------
// Navigation
// ---------------------------------------------------------------------------

func TestWorkflow_HappyPath(t *testing.T) {
	b := &fakeBackend{available: "100.00", kyc: models.KycVerified}
	w := openWorkflow(t, b)
	if s := w.Snapshot(); !s.Open || s.Step != StepSelectMode || !s.Available.Equal(d("100.00")) {
		t.Fatalf("after open: %+v", s)
	}

	fillTo(t, w, "50.00")
	s := w.Snapshot()
	if s.Step != StepConfirm || s.Preview == nil || !s.Preview.Fees.Equal(d("1.00")) || !s.Preview.Net.Equal(d("49.00")) {
		t.Fatalf("confirm step: %+v", s)
	}

	p, err := w.Confirm(context.Background())
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if p.Destination.IBAN != "FR7630006000011234567890189" {
		t.Errorf("submitted iban: %q", p.Destination.IBAN)
	}
	if len(b.calls) != 1 || b.calls[0].key == "" {
		t.Fatalf("calls: %+v", b.calls)
	}
	if s := w.Snapshot(); s.Open || s.Mode != "" || !s.Amount.IsZero() || s.Step != 0 {
		t.Errorf("state not reset: %+v", s)
	}
	if err := w.Next(); !errors.Is(err, ErrClosed) {
		t.Errorf("closed workflow: got %v", err)
	}
}

func TestWorkflow_StepGuards(t *testing.T) {
	w := openWorkflow(t, &fakeBackend{available: "100.00", kyc: models.KycVerified})

	if err := w.Next(); !errors.Is(err, ErrModeRequired) {
		t.Fatalf("no mode: got %v", err)
	}
	if f := w.Snapshot().Failure; f == nil || f.Field != FieldMode {
		t.Errorf("failure: %+v", f)
	}
	if err := w.SetAmount(d("20")); !errors.Is(err, ErrWrongStep) {
		t.Errorf("amount on step 1: got %v", err)
	}
	_ = w.SelectMode(models.PayoutExpress)
	_ = w.Next()

	_ = w.SetDestination(models.Destination{IBAN: "INVALID"})
	if s := w.Snapshot(); s.CanNext {
		t.Error("invalid IBAN should disable Next")
	}
	if err := w.Next(); !errors.Is(err, payouts.ErrInvalidDestination) {
		t.Fatalf("bad iban: got %v", err)
	}
	if f := w.Snapshot().Failure; f == nil || f.Field != FieldDestination {
		t.Errorf("failure: %+v", f)
	}
	_ = w.SetDestination(models.Destination{IBAN: "FR7630006000011234567890189"})
	if err := w.Next(); err != nil {
		t.Fatalf("valid iban: %v", err)
	}

	for _, tt := range []struct {
		amount string
		want   error
	}{
		{"9.99", payouts.ErrAmountTooLow},
		{"100.01", payouts.ErrInsufficientBalance},
		{"9.995", payouts.ErrAmountTooLow},
		{"20.005", payouts.ErrAmountPrecision},
	} {
		_ = w.SetAmount(d(tt.amount))
		if err := w.Next(); !errors.Is(err, tt.want) {
			t.Errorf("amount %s: got %v, want %v", tt.amount, err, tt.want)
		}
		if f := w.Snapshot().Failure; f == nil || f.Field != FieldAmount {
			t.Errorf("amount %s failure: %+v", tt.amount, f)
		}
	}
	_ = w.SetAmount(d("100.00"))
	if err := w.Next(); err != nil {
		t.Fatalf("exact balance: %v", err)
	}
}

func TestWorkflow_BackKeepsData(t *testing.T) {
	w := openWorkflow(t, &fakeBackend{available: "100.00", kyc: models.KycVerified})
	fillTo(t, w, "42.00")

	for i := 0; i < 3; i++ {
		if err := w.Back(); err != nil {
			t.Fatalf("Back: %v", err)
		}
	}
	s := w.Snapshot()
	if s.Step != StepSelectMode || s.Mode != models.PayoutStandard || !s.Amount.Equal(d("42.00")) ||
		s.Destination.IBAN != "FR7630006000011234567890189" {
		t.Fatalf("after back: %+v", s)
	}
	// Back on the first step stays put.
	if err := w.Back(); err != nil || w.Snapshot().Step != StepSelectMode {
		t.Errorf("back on first step: %v", err)
	}

	// Switching mode recomputes the preview and keeps the rest.
	_ = w.SelectMode(models.PayoutExpress)
	s = w.Snapshot()
	if !s.Amount.Equal(d("42.00")) || s.Preview == nil || !s.Preview.Fees.Equal(d("2.00")) || s.Preview.ETA != "24 hours" {
		t.Errorf("after mode switch: %+v", s.Preview)
	}
	_ = w.SelectMode(models.PayoutCrypto)
	_ = w.SelectMode(models.PayoutStandard)
	if s := w.Snapshot(); s.Destination.IBAN != "FR7630006000011234567890189" {
		t.Errorf("iban lost across mode switches: %+v", s.Destination)
	}
}

// ---------------------------------------------------------------------------
// KYC
// ---------------------------------------------------------------------------

func TestWorkflow_KycWarningsAndBlock(t *testing.T) {
	b := &fakeBackend{available: "100.00", kyc: models.KycNotStarted}
	w := openWorkflow(t, b)

	_ = w.SelectMode(models.PayoutStandard)
	if s := w.Snapshot(); s.Warning != warnUnverified {
		t.Errorf("standard warning: %q", s.Warning)
	}
	_ = w.SelectMode(models.PayoutCrypto)
	if s := w.Snapshot(); s.Warning != warnCryptoKyc {
		t.Errorf("crypto warning: %q", s.Warning)
	}
	_ = w.Next()
	_ = w.SetDestination(models.Destination{CryptoAddress: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", CryptoNetwork: "ETH"})
	_ = w.Next()
	_ = w.SetAmount(d("20.00"))
	_ = w.Next()

	_, err := w.Confirm(context.Background())
	if !errors.Is(err, payouts.ErrKycRequired) {
		t.Fatalf("got %v, want ErrKycRequired", err)
	}
	if len(b.calls) != 0 {
		t.Error("blocked request must not reach the backend")
	}
	s := w.Snapshot()
	if !s.Open || s.Step != StepConfirm || s.Failure == nil || s.Failure.Field != FieldMode {
		t.Errorf("after block: %+v", s)
	}
}

func TestWorkflow_VerifiedCryptoHasNoWarning(t *testing.T) {
	w := openWorkflow(t, &fakeBackend{available: "100.00", kyc: models.KycVerified})
	_ = w.SelectMode(models.PayoutCrypto)
	if s := w.Snapshot(); s.Warning != "" {
		t.Errorf("warning: %q", s.Warning)
	}
}

// ---------------------------------------------------------------------------
// Submission failures
// ---------------------------------------------------------------------------

func TestWorkflow_FailureKeepsDataAndKey(t *testing.T) {
	b := &fakeBackend{
		available: "100.00",
		kyc:       models.KycVerified,
		errs:      []error{fmt.Errorf("%w: connection reset", ErrNetwork)},
	}
	w := openWorkflow(t, b)
	fillTo(t, w, "50.00")

	if _, err := w.Confirm(context.Background()); !errors.Is(err, ErrNetwork) {
		t.Fatalf("first confirm: got %v", err)
	}
	s := w.Snapshot()
	if !s.Open || s.Step != StepConfirm || !s.Amount.Equal(d("50.00")) {
		t.Fatalf("data lost: %+v", s)
	}
	if s.Failure == nil || s.Failure.Field != FieldNone || !s.Failure.Retryable {
		t.Fatalf("failure: %+v", s.Failure)
	}
	if _, err := w.Confirm(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if b.calls[0].key != b.calls[1].key {
		t.Errorf("retry should reuse the idempotency key: %q vs %q", b.calls[0].key, b.calls[1].key)
	}
}

func TestWorkflow_EditAfterFailureUsesNewKey(t *testing.T) {
	b := &fakeBackend{
		available: "100.00",
		kyc:       models.KycVerified,
		errs:      []error{payouts.FromCode(payouts.CodeConcurrencyConflict, "balance changed")},
	}
	w := openWorkflow(t, b)
	fillTo(t, w, "80.00")

	_, err := w.Confirm(context.Background())
	if !errors.Is(err, payouts.ErrConcurrencyConflict) {
		t.Fatalf("got %v", err)
	}
	f := w.Snapshot().Failure
	if f == nil || f.Field != FieldAmount || f.Retryable {
		t.Fatalf("conflict should be shown on the amount, not retried: %+v", f)
	}
	if len(b.calls) != 1 {
		t.Fatalf("no automatic retry expected, got %d calls", len(b.calls))
	}

	_ = w.Back()
	_ = w.SetAmount(d("30.00"))
	_ = w.Next()
	if _, err := w.Confirm(context.Background()); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if b.calls[0].key == b.calls[1].key {
		t.Error("changed data must use a new idempotency key")
	}
}

// ---------------------------------------------------------------------------
// Concurrency
// ---------------------------------------------------------------------------

func TestWorkflow_BusyWhileInFlight(t *testing.T) {
	b := &fakeBackend{available: "100.00", kyc: models.KycVerified, gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	w := openWorkflow(t, b)
	fillTo(t, w, "50.00")

	done := make(chan error, 1)
	go func() {
		_, err := w.Confirm(context.Background())
		done <- err
	}()
	<-b.entered

	if _, err := w.Confirm(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("second confirm: got %v, want ErrBusy", err)
	}
	if err := w.Back(); !errors.Is(err, ErrBusy) {
		t.Errorf("back while busy: got %v", err)
	}
	if s := w.Snapshot(); !s.Busy || s.CanNext {
		t.Errorf("snapshot while busy: %+v", s)
	}
	close(b.gate)
	if err := <-done; err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if len(b.calls) != 1 {
		t.Errorf("calls: got %d, want 1", len(b.calls))
	}
}

func TestWorkflow_CloseDiscardsLateResult(t *testing.T) {
	b := &fakeBackend{available: "100.00", kyc: models.KycVerified, gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	w := openWorkflow(t, b)
	fillTo(t, w, "50.00")

	done := make(chan error, 1)
	go func() {
		_, err := w.Confirm(context.Background())
		done <- err
	}()
	<-b.entered
	w.Close()
	close(b.gate)

	if err := <-done; !errors.Is(err, ErrDiscarded) {
		t.Fatalf("got %v, want ErrDiscarded", err)
	}
	if s := w.Snapshot(); s.Open || s.Failure != nil || s.Mode != "" {
		t.Errorf("late result leaked into closed workflow: %+v", s)
	}

	// A reopened workflow starts clean.
	if err := w.Open(context.Background()); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if s := w.Snapshot(); s.Step != StepSelectMode || s.Mode != "" {
		t.Errorf("reopened: %+v", s)
	}
}

func TestWorkflow_CloseBeforeConfirmSendsNothing(t *testing.T) {
	b := &fakeBackend{available: "100.00", kyc: models.KycVerified}
	w := openWorkflow(t, b)
	fillTo(t, w, "50.00")
	w.Close()
	if _, err := w.Confirm(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v, want ErrClosed", err)
	}
	if len(b.calls) != 0 {
		t.Error("closed workflow must not submit")
	}
}
