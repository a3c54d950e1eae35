package kyc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/creatorhub/backend/internal/models"
)

var (
	// ErrSessionOpen means another verification session is already open.
	ErrSessionOpen    = errors.New("verification session already open")
	ErrInvalidVerdict = errors.New("invalid verification decision")
)

// Store persists verification state. *Repository satisfies it.
type Store interface {
	GetState(ctx context.Context, creatorID uuid.UUID) (*models.KycState, error)
	OpenSession(ctx context.Context, s *models.KycSession) error
	RecordDecision(ctx context.Context, creatorID uuid.UUID, status models.KycStatus, at time.Time) error
	CloseExpired(ctx context.Context, now time.Time) (int64, error)
}

// VerificationHandle points the creator at their verification session.
// URL is empty when no session is needed.
type VerificationHandle struct {
	SessionID uuid.UUID
	URL       string
	Status    models.KycStatus
	ExpiresAt time.Time
}

// Gate answers which payout modes a creator may use and drives the
// verification side effects.
type Gate interface {
	GetStatus(ctx context.Context, creatorID uuid.UUID) (models.KycState, error)
	IsModeAllowed(mode models.PayoutMode, status models.KycStatus) bool
	StartVerification(ctx context.Context, creatorID uuid.UUID) (*VerificationHandle, error)
	RecordDecision(ctx context.Context, creatorID uuid.UUID, status models.KycStatus) (models.KycState, error)
	SweepExpired(ctx context.Context) (int64, error)
}

type Options struct {
	VerifyBaseURL string
	SessionTTL    time.Duration
	Now           func() time.Time
}

type gate struct {
	store Store
	opts  Options
	log   *slog.Logger
}

func NewGate(store Store, opts Options, log *slog.Logger) Gate {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &gate{store: store, opts: opts, log: log}
}

var _ Gate = (*gate)(nil)

// GetStatus returns the effective state. A pending creator whose open
// session has expired is reported as not_started.
func (g *gate) GetStatus(ctx context.Context, creatorID uuid.UUID) (models.KycState, error) {
	st, err := g.store.GetState(ctx, creatorID)
	if err != nil {
		return models.KycState{}, err
	}
	return g.effective(*st), nil
}

func (g *gate) effective(st models.KycState) models.KycState {
	if st.Status == models.KycPending && st.Session != nil && st.Session.ExpiredAt(g.opts.Now()) {
		st.Status = models.KycNotStarted
		st.UpdatedAt = st.Session.ExpiresAt
		st.Session = nil
	}
	return st
}

// IsModeAllowed gates only the crypto rail on verification.
func (g *gate) IsModeAllowed(mode models.PayoutMode, status models.KycStatus) bool {
	return IsModeAllowed(mode, status)
}

// IsModeAllowed is the policy behind Gate.IsModeAllowed.
func IsModeAllowed(mode models.PayoutMode, status models.KycStatus) bool {
	if mode == models.PayoutCrypto {
		return status == models.KycVerified
	}
	return mode.Valid()
}

func (g *gate) StartVerification(ctx context.Context, creatorID uuid.UUID) (*VerificationHandle, error) {
	st, err := g.GetStatus(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	switch st.Status {
	case models.KycVerified:
		return &VerificationHandle{Status: st.Status}, nil
	case models.KycPending:
		return handleFor(st), nil
	}

	now := g.opts.Now().UTC()
	s := &models.KycSession{
		ID:        uuid.New(),
		CreatorID: creatorID,
		CreatedAt: now,
		ExpiresAt: now.Add(g.opts.SessionTTL),
	}
	if s.URL, err = g.sessionURL(s.ID); err != nil {
		return nil, err
	}
	if err := g.store.OpenSession(ctx, s); err != nil {
		if errors.Is(err, ErrSessionOpen) {
			// Lost a race with a concurrent start; hand back the winner's session.
			st, err := g.GetStatus(ctx, creatorID)
			if err != nil {
				return nil, err
			}
			return handleFor(st), nil
		}
		return nil, err
	}
	g.log.Info("kyc session opened", "creator_id", creatorID, "session_id", s.ID, "expires_at", s.ExpiresAt)
	return &VerificationHandle{SessionID: s.ID, URL: s.URL, Status: models.KycPending, ExpiresAt: s.ExpiresAt}, nil
}

func handleFor(st models.KycState) *VerificationHandle {
	h := &VerificationHandle{Status: st.Status}
	if st.Session != nil {
		h.SessionID = st.Session.ID
		h.URL = st.Session.URL
		h.ExpiresAt = st.Session.ExpiresAt
	}
	return h
}

func (g *gate) sessionURL(id uuid.UUID) (string, error) {
	u, err := url.Parse(g.opts.VerifyBaseURL)
	if err != nil {
		return "", fmt.Errorf("verify base url: %w", err)
	}
	q := u.Query()
	q.Set("session", id.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RecordDecision stores the verification provider's outcome. pending means
// the creator submitted and review is underway; the session no longer expires.
func (g *gate) RecordDecision(ctx context.Context, creatorID uuid.UUID, status models.KycStatus) (models.KycState, error) {
	switch status {
	case models.KycVerified, models.KycRejected, models.KycPending:
	default:
		return models.KycState{}, fmt.Errorf("%w: %q", ErrInvalidVerdict, status)
	}
	if err := g.store.RecordDecision(ctx, creatorID, status, g.opts.Now().UTC()); err != nil {
		return models.KycState{}, err
	}
	g.log.Info("kyc decision recorded", "creator_id", creatorID, "status", status)
	return g.GetStatus(ctx, creatorID)
}

func (g *gate) SweepExpired(ctx context.Context) (int64, error) {
	return g.store.CloseExpired(ctx, g.opts.Now().UTC())
}
