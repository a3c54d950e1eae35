package ledger

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

// TypeTotal is the completed-entry sum of one entry type split at a point
// in time.
type TypeTotal struct {
	Type     models.EntryType
	Released decimal.Decimal
	Pending  decimal.Decimal
}

// EntryFilter narrows ListEntries. Zero values match everything.
type EntryFilter struct {
	Type   models.EntryType
	Status models.EntryStatus
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const entryColumns = `id, creator_id, entry_type, item_id, description, amount, status, created_at, release_date`

func scanEntry(row pgx.Row) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := row.Scan(&e.ID, &e.CreatorID, &e.Type, &e.ItemID, &e.Description, &e.Amount, &e.Status, &e.CreatedAt, &e.ReleaseDate)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Repository) Insert(ctx context.Context, e *models.LedgerEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := db.EnsureCreator(ctx, tx, e.CreatorID); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.CreatorID, e.Type, e.ItemID, e.Description, e.Amount, e.Status, e.CreatedAt, e.ReleaseDate)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) List(ctx context.Context, creatorID uuid.UUID, f EntryFilter, limit, offset int) ([]*models.LedgerEntry, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM ledger_entries
		WHERE creator_id = $1 AND ($2 = '' OR entry_type = $2) AND ($3 = '' OR status = $3)
	`, creatorID, string(f.Type), string(f.Status)).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE creator_id = $1 AND ($2 = '' OR entry_type = $2) AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4 OFFSET $5
	`, creatorID, string(f.Type), string(f.Status), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, e)
	}
	return list, total, rows.Err()
}

// SumByType aggregates completed entries released at asOf versus still held.
func (r *Repository) SumByType(ctx context.Context, creatorID uuid.UUID, asOf time.Time) ([]TypeTotal, error) {
	return sumByType(ctx, r.pool, creatorID, asOf)
}

// SumByTypeTx is SumByType inside the caller's transaction.
func (r *Repository) SumByTypeTx(ctx context.Context, tx pgx.Tx, creatorID uuid.UUID, asOf time.Time) ([]TypeTotal, error) {
	return sumByType(ctx, tx, creatorID, asOf)
}

func sumByType(ctx context.Context, q queryer, creatorID uuid.UUID, asOf time.Time) ([]TypeTotal, error) {
	rows, err := q.Query(ctx, `
		SELECT entry_type,
		       COALESCE(SUM(amount) FILTER (WHERE release_date <= $2), 0),
		       COALESCE(SUM(amount) FILTER (WHERE release_date > $2), 0)
		FROM ledger_entries
		WHERE creator_id = $1 AND status = 'completed'
		GROUP BY entry_type
	`, creatorID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TypeTotal
	for rows.Next() {
		var t TypeTotal
		if err := rows.Scan(&t.Type, &t.Released, &t.Pending); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListUnreleased returns completed entries still held at asOf, soonest
// release first.
func (r *Repository) ListUnreleased(ctx context.Context, creatorID uuid.UUID, asOf time.Time) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE creator_id = $1 AND status = 'completed' AND release_date > $2
		ORDER BY release_date ASC, id ASC
	`, creatorID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.EntryStatus) (*models.LedgerEntry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `
		UPDATE ledger_entries SET status = $2 WHERE id = $1
		RETURNING `+entryColumns, id, status))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	return e, err
}
