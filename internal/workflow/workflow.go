// Package workflow drives a payout request through mode, destination,
// amount and confirmation on the client side. The server stays
// authoritative; the checks here give immediate feedback.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/creatorhub/backend/internal/fees"
	"github.com/creatorhub/backend/internal/kyc"
	"github.com/creatorhub/backend/internal/models"
	"github.com/creatorhub/backend/internal/payouts"
)

type Step int

const (
	StepSelectMode Step = iota + 1
	StepEnterDestination
	StepSpecifyAmount
	StepConfirm
)

func (s Step) String() string {
	switch s {
	case StepSelectMode:
		return "select_mode"
	case StepEnterDestination:
		return "enter_destination"
	case StepSpecifyAmount:
		return "specify_amount"
	case StepConfirm:
		return "confirm"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

var (
	ErrClosed       = errors.New("workflow is closed")
	ErrBusy         = errors.New("a request is already in flight")
	ErrWrongStep    = errors.New("action not available on this step")
	ErrModeRequired = errors.New("choose a payout mode")
	// ErrDiscarded is returned to a Confirm whose workflow was closed while
	// the request was in flight. The server may still have created it.
	ErrDiscarded = errors.New("workflow closed before the request finished")
)

// Field names a form field a failure should be shown next to.
type Field string

const (
	FieldNone        Field = ""
	FieldMode        Field = "mode"
	FieldDestination Field = "destination"
	FieldAmount      Field = "amount"
)

// Failure is the last error surfaced to the user. Inline failures carry a
// Field; others are dismissible notices.
type Failure struct {
	Err       error
	Field     Field
	Message   string
	Retryable bool
}

// next holds forward transitions; Back walks them in reverse.
var next = map[Step]Step{
	StepSelectMode:       StepEnterDestination,
	StepEnterDestination: StepSpecifyAmount,
	StepSpecifyAmount:    StepConfirm,
}

var prev = map[Step]Step{
	StepEnterDestination: StepSelectMode,
	StepSpecifyAmount:    StepEnterDestination,
	StepConfirm:          StepSpecifyAmount,
}

// Workflow is safe for concurrent use. Results of a Confirm that outlives
// Close are never applied.
type Workflow struct {
	mu      sync.Mutex
	backend Backend
	minimum decimal.Decimal

	open       bool
	generation uint64
	busy       bool
	step       Step

	available decimal.Decimal
	currency  string
	kyc       models.KycStatus

	mode        models.PayoutMode
	destination models.Destination
	amount      decimal.Decimal
	amountSet   bool

	idempotencyKey string
	failure        *Failure
}

func New(backend Backend, minimum decimal.Decimal) *Workflow {
	return &Workflow{backend: backend, minimum: minimum}
}

// Open loads the available balance and KYC status and starts at
// StepSelectMode. The balance read here bounds the amount step.
func (w *Workflow) Open(ctx context.Context) error {
	w.mu.Lock()
	if w.busy {
		w.mu.Unlock()
		return ErrBusy
	}
	w.generation++
	gen := w.generation
	w.busy = true
	w.mu.Unlock()

	bal, balErr := w.backend.Balance(ctx)
	status, kycErr := w.backend.KycStatus(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.generation {
		return ErrDiscarded
	}
	w.busy = false
	if err := errors.Join(balErr, kycErr); err != nil {
		w.reset()
		w.failure = notice(err)
		return err
	}
	w.reset()
	w.open = true
	w.step = StepSelectMode
	w.available = bal.Rounded().Available
	w.currency = bal.Currency
	w.kyc = status
	return nil
}

// Close discards all local state. An in-flight Confirm keeps running but
// its result is dropped.
func (w *Workflow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.generation++
	w.busy = false
	w.reset()
}

func (w *Workflow) reset() {
	w.open = false
	w.step = 0
	w.available = decimal.Zero
	w.currency = ""
	w.kyc = ""
	w.mode = ""
	w.destination = models.Destination{}
	w.amount = decimal.Zero
	w.amountSet = false
	w.idempotencyKey = ""
	w.failure = nil
}

// guard checks the workflow is open, idle and, when step is non-zero, on step.
func (w *Workflow) guard(step Step) error {
	if !w.open {
		return ErrClosed
	}
	if w.busy {
		return ErrBusy
	}
	if step != 0 && w.step != step {
		return fmt.Errorf("%w: on %s", ErrWrongStep, w.step)
	}
	return nil
}

// SelectMode chooses the payout mode. Entered data for other steps is kept.
func (w *Workflow) SelectMode(mode models.PayoutMode) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guard(StepSelectMode); err != nil {
		return err
	}
	if !mode.Valid() {
		return w.fail(fmt.Errorf("%w: %q", payouts.ErrInvalidMode, mode))
	}
	if mode != w.mode {
		w.mode = mode
		w.idempotencyKey = ""
	}
	w.failure = nil
	return nil
}

func destinationTypeFor(mode models.PayoutMode) models.DestinationType {
	if mode == models.PayoutCrypto {
		return models.DestinationCrypto
	}
	return models.DestinationIBAN
}

// SetDestination records the destination fields for the chosen mode as
// typed. IBAN and wallet fields are kept separately so switching mode loses
// neither. They are checked on Next.
func (w *Workflow) SetDestination(d models.Destination) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guard(StepEnterDestination); err != nil {
		return err
	}
	before := w.destination
	if destinationTypeFor(w.mode) == models.DestinationCrypto {
		w.destination.CryptoAddress = d.CryptoAddress
		w.destination.CryptoNetwork = d.CryptoNetwork
	} else {
		w.destination.IBAN = d.IBAN
	}
	if w.destination != before {
		w.idempotencyKey = ""
	}
	w.failure = nil
	return nil
}

// effectiveDestination is the destination for the chosen mode.
func (w *Workflow) effectiveDestination() models.Destination {
	if destinationTypeFor(w.mode) == models.DestinationCrypto {
		return models.Destination{
			Type:          models.DestinationCrypto,
			CryptoAddress: w.destination.CryptoAddress,
			CryptoNetwork: w.destination.CryptoNetwork,
		}
	}
	return models.Destination{Type: models.DestinationIBAN, IBAN: w.destination.IBAN}
}

// keepNormalized stores the canonical form of the mode's destination fields.
func (w *Workflow) keepNormalized(d models.Destination) {
	if d.Type == models.DestinationCrypto {
		w.destination.CryptoAddress = d.CryptoAddress
		w.destination.CryptoNetwork = d.CryptoNetwork
		return
	}
	w.destination.IBAN = d.IBAN
}

// SetAmount records the gross amount. It is checked on Next.
func (w *Workflow) SetAmount(amount decimal.Decimal) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guard(StepSpecifyAmount); err != nil {
		return err
	}
	if !w.amountSet || !amount.Equal(w.amount) {
		w.amount = amount
		w.amountSet = true
		w.idempotencyKey = ""
	}
	w.failure = nil
	return nil
}

// Next advances when the current step is valid.
func (w *Workflow) Next() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guard(0); err != nil {
		return err
	}
	to, ok := next[w.step]
	if !ok {
		return fmt.Errorf("%w: confirm to submit", ErrWrongStep)
	}
	if err := w.checkStep(w.step); err != nil {
		return w.fail(err)
	}
	if w.step == StepEnterDestination {
		d, _ := payouts.NormalizeDestination(w.effectiveDestination())
		w.keepNormalized(d)
	}
	w.failure = nil
	w.step = to
	return nil
}

// checkStep reports whether step's data is valid. It does not modify state.
func (w *Workflow) checkStep(step Step) error {
	switch step {
	case StepSelectMode:
		if w.mode == "" {
			return ErrModeRequired
		}
	case StepEnterDestination:
		return payouts.ValidateDestination(w.effectiveDestination())
	case StepSpecifyAmount:
		if !w.amountSet || w.amount.LessThan(w.minimum) {
			return fmt.Errorf("%w: minimum payout amount is %s %s", payouts.ErrAmountTooLow, w.minimum.StringFixed(2), w.currency)
		}
		if w.amount.GreaterThan(w.available) {
			return fmt.Errorf("%w: amount exceeds available balance", payouts.ErrInsufficientBalance)
		}
		return payouts.CheckAmountPrecision(w.amount)
	}
	return nil
}

// Back moves one step back without clearing anything.
func (w *Workflow) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guard(0); err != nil {
		return err
	}
	if to, ok := prev[w.step]; ok {
		w.step = to
	}
	return nil
}

// Confirm submits the request. On success the workflow closes and resets;
// on failure entered data is kept and the failure is recorded for display.
// Validation failures never reach the backend.
func (w *Workflow) Confirm(ctx context.Context) (*models.PayoutRequest, error) {
	w.mu.Lock()
	if err := w.guard(StepConfirm); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	for _, s := range []Step{StepSelectMode, StepEnterDestination, StepSpecifyAmount} {
		if err := w.checkStep(s); err != nil {
			err = w.fail(err)
			w.mu.Unlock()
			return nil, err
		}
	}
	if !kyc.IsModeAllowed(w.mode, w.kyc) {
		err := w.fail(fmt.Errorf("%w: %s payouts require a verified account", payouts.ErrKycRequired, w.mode))
		w.mu.Unlock()
		return nil, err
	}
	if w.idempotencyKey == "" {
		w.idempotencyKey = uuid.NewString()
	}
	dest, _ := payouts.NormalizeDestination(w.effectiveDestination())
	in := payouts.CreateInput{Mode: w.mode, Amount: w.amount, Destination: dest}
	key := w.idempotencyKey
	gen := w.generation
	w.busy = true
	w.failure = nil
	w.mu.Unlock()

	p, err := w.backend.CreatePayout(ctx, in, key)

	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.generation {
		return nil, ErrDiscarded
	}
	w.busy = false
	if err != nil {
		return nil, w.fail(err)
	}
	w.generation++
	w.reset()
	return p, nil
}

// fail records err as the current failure and returns it.
func (w *Workflow) fail(err error) error {
	w.failure = classify(err)
	return err
}

func classify(err error) *Failure {
	f := &Failure{Err: err, Message: err.Error()}
	switch {
	case errors.Is(err, payouts.ErrAmountTooLow),
		errors.Is(err, payouts.ErrInsufficientBalance),
		errors.Is(err, payouts.ErrConcurrencyConflict):
		f.Field = FieldAmount
	case errors.Is(err, payouts.ErrInvalidDestination):
		f.Field = FieldDestination
	case errors.Is(err, payouts.ErrKycRequired),
		errors.Is(err, payouts.ErrInvalidMode),
		errors.Is(err, ErrModeRequired):
		f.Field = FieldMode
	default:
		return notice(err)
	}
	return f
}

// notice is a failure shown as a dismissible notification. Network and
// server failures can be retried by confirming again unchanged.
func notice(err error) *Failure {
	return &Failure{
		Err:       err,
		Message:   err.Error(),
		Retryable: errors.Is(err, ErrNetwork) || errors.Is(err, ErrServer),
	}
}

// DismissFailure clears the current failure.
func (w *Workflow) DismissFailure() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failure = nil
}

// Preview is the live fee breakdown for the entered mode and amount.
type Preview struct {
	Fees decimal.Decimal
	Net  decimal.Decimal
	ETA  string
}

// Snapshot is a read-only view for rendering.
type Snapshot struct {
	Open        bool
	Busy        bool
	Step        Step
	Mode        models.PayoutMode
	Destination models.Destination
	Amount      decimal.Decimal
	Available   decimal.Decimal
	Currency    string
	KycStatus   models.KycStatus
	// Warning is set when the chosen mode will need or benefit from
	// identity verification.
	Warning string
	Preview *Preview
	Failure *Failure
	CanNext bool
}

const (
	warnCryptoKyc  = "Crypto payouts require KYC verification. Complete verification before submitting."
	warnUnverified = "Your account is not verified yet. Payouts may take longer to process."
)

func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Snapshot{
		Open:        w.open,
		Busy:        w.busy,
		Step:        w.step,
		Mode:        w.mode,
		Destination: w.destination,
		Amount:      w.amount,
		Available:   w.available,
		Currency:    w.currency,
		KycStatus:   w.kyc,
		Failure:     w.failure,
	}
	if !w.open {
		return s
	}
	if w.mode != "" {
		s.Destination = w.effectiveDestination()
	}
	if w.mode != "" && w.kyc != models.KycVerified {
		if w.mode == models.PayoutCrypto {
			s.Warning = warnCryptoKyc
		} else {
			s.Warning = warnUnverified
		}
	}
	if w.mode != "" && w.amountSet && !w.amount.IsNegative() {
		if q, err := fees.Compute(w.amount, w.mode); err == nil {
			q = q.Rounded()
			s.Preview = &Preview{Fees: q.Fees, Net: q.Net, ETA: q.ETA}
		}
	}
	if !w.busy {
		if _, ok := next[w.step]; ok {
			s.CanNext = w.checkStep(w.step) == nil
		}
	}
	return s
}
