package payouts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/creatorhub/backend/internal/db"
	"github.com/creatorhub/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const payoutColumns = `id, creator_id, mode, amount, fees, net, currency, destination, status, eta, failure_reason, created_at, processed_at`

func scanPayout(row pgx.Row) (*models.PayoutRequest, error) {
	var p models.PayoutRequest
	err := row.Scan(&p.ID, &p.CreatorID, &p.Mode, &p.Amount, &p.Fees, &p.Net, &p.Currency,
		&p.Destination, &p.Status, &p.ETA, &p.FailureReason, &p.CreatedAt, &p.ProcessedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *Repository) LockCreator(ctx context.Context, tx pgx.Tx, creatorID uuid.UUID) error {
	if err := db.EnsureCreator(ctx, tx, creatorID); err != nil {
		return err
	}
	var id uuid.UUID
	return tx.QueryRow(ctx, `SELECT id FROM creators WHERE id = $1 FOR UPDATE`, creatorID).Scan(&id)
}

// CommittedTotal sums requests that hold or have consumed funds. Failed
// requests release theirs.
func (r *Repository) CommittedTotal(ctx context.Context, creatorID uuid.UUID) (decimal.Decimal, error) {
	return committedTotal(ctx, r.pool, creatorID)
}

func (r *Repository) CommittedTotalTx(ctx context.Context, tx pgx.Tx, creatorID uuid.UUID) (decimal.Decimal, error) {
	return committedTotal(ctx, tx, creatorID)
}

func committedTotal(ctx context.Context, q queryRower, creatorID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM payout_requests
		WHERE creator_id = $1 AND status IN ('pending', 'processing', 'completed')
	`, creatorID).Scan(&total)
	return total, err
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, p *models.PayoutRequest) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payout_requests (`+payoutColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, p.ID, p.CreatorID, p.Mode, p.Amount, p.Fees, p.Net, p.Currency,
		p.Destination, p.Status, p.ETA, p.FailureReason, p.CreatedAt, p.ProcessedAt)
	return err
}

func (r *Repository) List(ctx context.Context, creatorID uuid.UUID, status models.PayoutStatus, limit, offset int) ([]*models.PayoutRequest, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM payout_requests
		WHERE creator_id = $1 AND ($2 = '' OR status = $2)
	`, creatorID, string(status)).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+payoutColumns+` FROM payout_requests
		WHERE creator_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, creatorID, string(status), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	list, err := collect(rows)
	return list, total, err
}

func (r *Repository) Get(ctx context.Context, creatorID, id uuid.UUID) (*models.PayoutRequest, error) {
	p, err := scanPayout(r.pool.QueryRow(ctx, `
		SELECT `+payoutColumns+` FROM payout_requests WHERE id = $1 AND creator_id = $2
	`, id, creatorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error) {
	p, err := scanPayout(r.pool.QueryRow(ctx, `
		SELECT `+payoutColumns+` FROM payout_requests WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// UpdateStatus moves a request from one status to another. It returns
// pgx.ErrNoRows when the request is no longer in from.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.PayoutStatus, reason string, processedAt *time.Time) (*models.PayoutRequest, error) {
	return scanPayout(r.pool.QueryRow(ctx, `
		UPDATE payout_requests
		SET status = $3, failure_reason = $4, processed_at = COALESCE($5, processed_at)
		WHERE id = $1 AND status = $2
		RETURNING `+payoutColumns, id, from, to, reason, processedAt))
}

// Completed returns the total paid out and the most recent completed requests.
func (r *Repository) Completed(ctx context.Context, creatorID uuid.UUID, limit int) (decimal.Decimal, []*models.PayoutRequest, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM payout_requests
		WHERE creator_id = $1 AND status = 'completed'
	`, creatorID).Scan(&total)
	if err != nil {
		return decimal.Zero, nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+payoutColumns+` FROM payout_requests
		WHERE creator_id = $1 AND status = 'completed'
		ORDER BY processed_at DESC NULLS LAST, created_at DESC
		LIMIT $2
	`, creatorID, limit)
	if err != nil {
		return decimal.Zero, nil, err
	}
	list, err := collect(rows)
	return total, list, err
}

func collect(rows pgx.Rows) ([]*models.PayoutRequest, error) {
	defer rows.Close()
	var list []*models.PayoutRequest
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
