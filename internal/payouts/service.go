package payouts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/creatorhub/backend/internal/execution"
	"github.com/creatorhub/backend/internal/fees"
	"github.com/creatorhub/backend/internal/models"
)

// HistoryLimit is how many completed payouts History returns.
const HistoryLimit = 10

// Store is the persistence the payout service needs. *Repository satisfies it.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	// LockCreator takes the per-creator row lock that serialises request creation.
	LockCreator(ctx context.Context, tx pgx.Tx, creatorID uuid.UUID) error
	CommittedTotal(ctx context.Context, creatorID uuid.UUID) (decimal.Decimal, error)
	CommittedTotalTx(ctx context.Context, tx pgx.Tx, creatorID uuid.UUID) (decimal.Decimal, error)
	Insert(ctx context.Context, tx pgx.Tx, p *models.PayoutRequest) error
	List(ctx context.Context, creatorID uuid.UUID, status models.PayoutStatus, limit, offset int) ([]*models.PayoutRequest, int, error)
	Get(ctx context.Context, creatorID, id uuid.UUID) (*models.PayoutRequest, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.PayoutStatus, reason string, processedAt *time.Time) (*models.PayoutRequest, error)
	Completed(ctx context.Context, creatorID uuid.UUID, limit int) (decimal.Decimal, []*models.PayoutRequest, error)
}

// Balances is the ledger side of the balance check.
type Balances interface {
	ComputeBalance(ctx context.Context, creatorID uuid.UUID) (models.Balance, error)
	BalanceTx(ctx context.Context, tx pgx.Tx, creatorID uuid.UUID) (models.Balance, error)
}

// KycReader is the verification side of the mode check.
type KycReader interface {
	GetStatus(ctx context.Context, creatorID uuid.UUID) (models.KycState, error)
	IsModeAllowed(mode models.PayoutMode, status models.KycStatus) bool
}

// InsertDispatchTxFunc enqueues the rail hand-off within the request's
// transaction. Provided by main using river.Client.InsertTx.
type InsertDispatchTxFunc func(ctx context.Context, tx pgx.Tx, args execution.DispatchPayoutArgs) error

type CreateInput struct {
	Mode        models.PayoutMode
	Amount      decimal.Decimal
	Destination models.Destination
}

type RequestPage struct {
	Payouts []*models.PayoutRequest
	Total   int
	Page    int
	Limit   int
	HasMore bool
}

type History struct {
	TotalPaidOut decimal.Decimal
	Currency     string
	Recent       []*models.PayoutRequest
}

type Service interface {
	CreateRequest(ctx context.Context, creatorID uuid.UUID, in CreateInput) (*models.PayoutRequest, error)
	ListRequests(ctx context.Context, creatorID uuid.UUID, status models.PayoutStatus, page, limit int) (*RequestPage, error)
	GetRequest(ctx context.Context, creatorID, id uuid.UUID) (*models.PayoutRequest, error)
	// GetPayout loads a request without creator scoping, for the rail worker.
	GetPayout(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error)
	History(ctx context.Context, creatorID uuid.UUID) (*History, error)
	ApplyStatus(ctx context.Context, id uuid.UUID, to models.PayoutStatus, reason string) (*models.PayoutRequest, error)
}

type Options struct {
	Minimum  decimal.Decimal
	Currency string
	Now      func() time.Time
}

type service struct {
	store    Store
	balances Balances
	kyc      KycReader
	dispatch InsertDispatchTxFunc
	opts     Options
	log      *slog.Logger
}

// NewService returns *service so it can also serve as execution.PayoutSource.
func NewService(store Store, balances Balances, kyc KycReader, dispatch InsertDispatchTxFunc, opts Options, log *slog.Logger) *service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &service{store: store, balances: balances, kyc: kyc, dispatch: dispatch, opts: opts, log: log}
}

var (
	_ Service                = (*service)(nil)
	_ execution.PayoutSource = (*service)(nil)
)

// CreateRequest validates and materialises a payout request. Checks run in
// order on the amount as entered and the first failure wins: amount,
// balance, precision, KYC, destination. The balance is checked again under
// the creator lock before the insert.
func (s *service) CreateRequest(ctx context.Context, creatorID uuid.UUID, in CreateInput) (*models.PayoutRequest, error) {
	if !in.Mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, in.Mode)
	}
	amount := in.Amount
	if amount.LessThan(s.opts.Minimum) {
		return nil, fmt.Errorf("%w: minimum payout is %s %s", ErrAmountTooLow, s.opts.Minimum.StringFixed(2), s.opts.Currency)
	}

	bal, err := s.balances.ComputeBalance(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	committed, err := s.store.CommittedTotal(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if spendable := spendable(bal, committed); amount.GreaterThan(spendable) {
		return nil, fmt.Errorf("%w: available balance is %s %s", ErrInsufficientBalance, spendable.StringFixed(2), s.opts.Currency)
	}
	if err := CheckAmountPrecision(amount); err != nil {
		return nil, err
	}
	amount = amount.Round(2)

	st, err := s.kyc.GetStatus(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if !s.kyc.IsModeAllowed(in.Mode, st.Status) {
		return nil, fmt.Errorf("%w: %s payouts require a verified account", ErrKycRequired, in.Mode)
	}

	dest, err := NormalizeDestination(in.Destination)
	if err != nil {
		return nil, err
	}

	quote, err := fees.Compute(amount, in.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMode, err)
	}
	quote = quote.Rounded()

	p := &models.PayoutRequest{
		ID:          uuid.New(),
		CreatorID:   creatorID,
		Mode:        in.Mode,
		Amount:      amount,
		Fees:        quote.Fees,
		Net:         quote.Net,
		Currency:    s.opts.Currency,
		Destination: dest,
		Status:      models.PayoutPending,
		ETA:         quote.ETA,
		CreatedAt:   s.opts.Now().UTC(),
	}
	if err := s.materialize(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("payout request created",
		"payout_id", p.ID, "creator_id", creatorID, "mode", p.Mode,
		"amount", p.Amount.StringFixed(2), "fees", p.Fees.StringFixed(2))
	return p, nil
}

func (s *service) materialize(ctx context.Context, p *models.PayoutRequest) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.store.LockCreator(ctx, tx, p.CreatorID); err != nil {
		return err
	}
	bal, err := s.balances.BalanceTx(ctx, tx, p.CreatorID)
	if err != nil {
		return err
	}
	committed, err := s.store.CommittedTotalTx(ctx, tx, p.CreatorID)
	if err != nil {
		return err
	}
	if p.Amount.GreaterThan(spendable(bal, committed)) {
		s.log.Warn("payout lost balance race", "creator_id", p.CreatorID, "amount", p.Amount.StringFixed(2))
		return ErrConcurrencyConflict
	}
	if err := s.store.Insert(ctx, tx, p); err != nil {
		return err
	}
	if err := s.dispatch(ctx, tx, execution.DispatchPayoutArgs{PayoutID: p.ID}); err != nil {
		return fmt.Errorf("enqueue dispatch: %w", err)
	}
	return tx.Commit(ctx)
}

// spendable is the rounded available balance less payouts that still hold
// or have consumed funds.
func spendable(bal models.Balance, committed decimal.Decimal) decimal.Decimal {
	return bal.Rounded().Available.Sub(committed)
}

func (s *service) ListRequests(ctx context.Context, creatorID uuid.UUID, status models.PayoutStatus, page, limit int) (*RequestPage, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, status)
	}
	page, limit = models.NormalizePage(page, limit)
	items, total, err := s.store.List(ctx, creatorID, status, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	return &RequestPage{
		Payouts: items,
		Total:   total,
		Page:    page,
		Limit:   limit,
		HasMore: models.HasMore(page, limit, total),
	}, nil
}

func (s *service) GetRequest(ctx context.Context, creatorID, id uuid.UUID) (*models.PayoutRequest, error) {
	return s.store.Get(ctx, creatorID, id)
}

func (s *service) GetPayout(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error) {
	return s.store.GetByID(ctx, id)
}

func (s *service) History(ctx context.Context, creatorID uuid.UUID) (*History, error) {
	total, recent, err := s.store.Completed(ctx, creatorID, HistoryLimit)
	if err != nil {
		return nil, err
	}
	return &History{TotalPaidOut: total, Currency: s.opts.Currency, Recent: recent}, nil
}

// ApplyStatus records a rail-reported transition. Repeating the current
// status is a no-op so rail retries are safe.
func (s *service) ApplyStatus(ctx context.Context, id uuid.UUID, to models.PayoutStatus, reason string) (*models.PayoutRequest, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	cur, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status == to {
		return cur, nil
	}
	if !CanTransition(cur.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, to)
	}
	var processedAt *time.Time
	if to.Terminal() {
		t := s.opts.Now().UTC()
		processedAt = &t
	}
	if to != models.PayoutFailed {
		reason = ""
	}
	p, err := s.store.UpdateStatus(ctx, id, cur.Status, to, reason, processedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition)
		}
		return nil, err
	}
	s.log.Info("payout status changed", "payout_id", id, "from", cur.Status, "to", to)
	return p, nil
}
