package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/creatorhub/backend/internal/config"
	"github.com/creatorhub/backend/internal/models"
)

var (
	ErrInvalidEntryType = errors.New("invalid entry type")
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrInvalidStatus    = errors.New("invalid entry status")
	ErrEntryNotFound    = errors.New("ledger entry not found")
)

// Store is the persistence the ledger service needs. *Repository satisfies it.
type Store interface {
	Insert(ctx context.Context, e *models.LedgerEntry) error
	List(ctx context.Context, creatorID uuid.UUID, f EntryFilter, limit, offset int) ([]*models.LedgerEntry, int, error)
	SumByType(ctx context.Context, creatorID uuid.UUID, asOf time.Time) ([]TypeTotal, error)
	SumByTypeTx(ctx context.Context, tx pgx.Tx, creatorID uuid.UUID, asOf time.Time) ([]TypeTotal, error)
	ListUnreleased(ctx context.Context, creatorID uuid.UUID, asOf time.Time) ([]*models.LedgerEntry, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.EntryStatus) (*models.LedgerEntry, error)
}

// EntryInput describes one earning event reported by commerce.
type EntryInput struct {
	Type        models.EntryType
	Amount      decimal.Decimal
	ItemID      string
	Description string
}

// EntryView is an entry together with its release state at read time.
type EntryView struct {
	*models.LedgerEntry
	IsReleased bool
	ReleaseIn  string
}

type EntryPage struct {
	Entries []EntryView
	Total   int
	Page    int
	Limit   int
	HasMore bool
}

// Timeline lists held funds in release order.
type Timeline struct {
	Items        []EntryView
	TotalPending decimal.Decimal
	Currency     string
}

type Service interface {
	AppendEntry(ctx context.Context, creatorID uuid.UUID, in EntryInput) (*models.LedgerEntry, error)
	ListEntries(ctx context.Context, creatorID uuid.UUID, f EntryFilter, page, limit int) (*EntryPage, error)
	ComputeBalance(ctx context.Context, creatorID uuid.UUID) (models.Balance, error)
	// BalanceTx computes the balance inside tx, for callers that must check
	// and act on it atomically.
	BalanceTx(ctx context.Context, tx pgx.Tx, creatorID uuid.UUID) (models.Balance, error)
	ReleaseTimeline(ctx context.Context, creatorID uuid.UUID) (*Timeline, error)
	SetEntryStatus(ctx context.Context, entryID uuid.UUID, status models.EntryStatus) (*models.LedgerEntry, error)
}

type Options struct {
	Policy      config.HoldPolicy
	ReserveRate decimal.Decimal
	Currency    string
	Now         func() time.Time
}

type service struct {
	store Store
	opts  Options
}

func NewService(store Store, opts Options) Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Policy.Days == nil {
		opts.Policy = config.DefaultHoldPolicy(opts.Policy.DefaultDays)
	}
	return &service{store: store, opts: opts}
}

var _ Service = (*service)(nil)

func (s *service) AppendEntry(ctx context.Context, creatorID uuid.UUID, in EntryInput) (*models.LedgerEntry, error) {
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEntryType, in.Type)
	}
	amount := in.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	now := s.opts.Now().UTC()
	days := s.opts.Policy.DaysFor(in.Type)
	e := &models.LedgerEntry{
		ID:          uuid.New(),
		CreatorID:   creatorID,
		Type:        in.Type,
		ItemID:      in.ItemID,
		Description: in.Description,
		Amount:      amount,
		Status:      models.EntryCompleted,
		CreatedAt:   now,
		ReleaseDate: now.AddDate(0, 0, days),
	}
	if err := s.store.Insert(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *service) ListEntries(ctx context.Context, creatorID uuid.UUID, f EntryFilter, page, limit int) (*EntryPage, error) {
	if f.Type != "" && !f.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEntryType, f.Type)
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, f.Status)
	}
	page, limit = models.NormalizePage(page, limit)
	entries, total, err := s.store.List(ctx, creatorID, f, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	return &EntryPage{
		Entries: s.views(entries),
		Total:   total,
		Page:    page,
		Limit:   limit,
		HasMore: models.HasMore(page, limit, total),
	}, nil
}

func (s *service) ComputeBalance(ctx context.Context, creatorID uuid.UUID) (models.Balance, error) {
	totals, err := s.store.SumByType(ctx, creatorID, s.opts.Now())
	if err != nil {
		return models.Balance{}, err
	}
	return s.balance(totals), nil
}

func (s *service) BalanceTx(ctx context.Context, tx pgx.Tx, creatorID uuid.UUID) (models.Balance, error) {
	totals, err := s.store.SumByTypeTx(ctx, tx, creatorID, s.opts.Now())
	if err != nil {
		return models.Balance{}, err
	}
	return s.balance(totals), nil
}

func (s *service) balance(totals []TypeTotal) models.Balance {
	released, pending := decimal.Zero, decimal.Zero
	for _, t := range totals {
		if t.Type == models.EntryRefund {
			released = released.Sub(t.Released)
			pending = pending.Sub(t.Pending)
			continue
		}
		released = released.Add(t.Released)
		pending = pending.Add(t.Pending)
	}
	return models.NewBalance(released, pending, s.opts.ReserveRate, s.opts.Currency)
}

func (s *service) ReleaseTimeline(ctx context.Context, creatorID uuid.UUID) (*Timeline, error) {
	entries, err := s.store.ListUnreleased(ctx, creatorID, s.opts.Now())
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.SignedAmount())
	}
	return &Timeline{Items: s.views(entries), TotalPending: total, Currency: s.opts.Currency}, nil
}

func (s *service) SetEntryStatus(ctx context.Context, entryID uuid.UUID, status models.EntryStatus) (*models.LedgerEntry, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.store.UpdateStatus(ctx, entryID, status)
}

func (s *service) views(entries []*models.LedgerEntry) []EntryView {
	now := s.opts.Now()
	out := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryView{
			LedgerEntry: e,
			IsReleased:  e.IsReleasedAt(now),
			ReleaseIn:   e.ReleaseIn(now),
		})
	}
	return out
}
