package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureCreator inserts the creator row on first sight. Creators are owned
// by the identity service; this row only anchors ledger, payout and KYC data.
func EnsureCreator(ctx context.Context, ex Execer, creatorID uuid.UUID) error {
	_, err := ex.Exec(ctx, `
		INSERT INTO creators (id) VALUES ($1)
		ON CONFLICT (id) DO NOTHING
	`, creatorID)
	return err
}
