package kyc

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creatorhub/backend/internal/db"
	"github.com/creatorhub/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetState returns the stored status and the open session, if any. Unknown
// creators have not started verification.
func (r *Repository) GetState(ctx context.Context, creatorID uuid.UUID) (*models.KycState, error) {
	var (
		st         models.KycState
		sessionID  *uuid.UUID
		sessionURL *string
		createdAt  *time.Time
		expiresAt  *time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT c.kyc_status, c.kyc_updated_at, s.id, s.url, s.created_at, s.expires_at
		FROM creators c
		LEFT JOIN kyc_sessions s ON s.creator_id = c.id AND s.closed_at IS NULL
		WHERE c.id = $1
	`, creatorID).Scan(&st.Status, &st.UpdatedAt, &sessionID, &sessionURL, &createdAt, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.KycState{CreatorID: creatorID, Status: models.KycNotStarted}, nil
	}
	if err != nil {
		return nil, err
	}
	st.CreatorID = creatorID
	if sessionID != nil {
		st.Session = &models.KycSession{
			ID:        *sessionID,
			CreatorID: creatorID,
			URL:       *sessionURL,
			CreatedAt: *createdAt,
			ExpiresAt: *expiresAt,
		}
	}
	return &st, nil
}

// OpenSession closes any expired open session, stores s and moves the
// creator to pending, all in one transaction.
func (r *Repository) OpenSession(ctx context.Context, s *models.KycSession) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := db.EnsureCreator(ctx, tx, s.CreatorID); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE kyc_sessions SET closed_at = $2
		WHERE creator_id = $1 AND closed_at IS NULL AND expires_at <= $2
	`, s.CreatorID, s.CreatedAt)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO kyc_sessions (id, creator_id, url, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, s.ID, s.CreatorID, s.URL, s.CreatedAt, s.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSessionOpen
		}
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE creators SET kyc_status = 'pending', kyc_updated_at = $2 WHERE id = $1
	`, s.CreatorID, s.CreatedAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RecordDecision closes the open session and stores the provider's verdict.
func (r *Repository) RecordDecision(ctx context.Context, creatorID uuid.UUID, status models.KycStatus, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := db.EnsureCreator(ctx, tx, creatorID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE kyc_sessions SET closed_at = $2 WHERE creator_id = $1 AND closed_at IS NULL
	`, creatorID, at); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE creators SET kyc_status = $2, kyc_updated_at = $3 WHERE id = $1
	`, creatorID, status, at); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CloseExpired closes sessions that expired before now and returns their
// creators from pending to not_started.
func (r *Repository) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		WITH expired AS (
			UPDATE kyc_sessions SET closed_at = $1
			WHERE closed_at IS NULL AND expires_at <= $1
			RETURNING creator_id
		)
		UPDATE creators SET kyc_status = 'not_started', kyc_updated_at = $1
		WHERE kyc_status = 'pending' AND id IN (SELECT creator_id FROM expired)
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
