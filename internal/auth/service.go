package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RoleCreator is the only role allowed to act on earnings and payouts.
const RoleCreator = "creator"

var ErrInvalidToken = errors.New("invalid token")

// Service verifies bearer tokens minted by the platform's identity service.
type Service interface {
	ValidateToken(ctx context.Context, token string) (uuid.UUID, error)
	IssueToken(creatorID uuid.UUID, ttl time.Duration) (string, error)
}

type service struct {
	secret []byte
	now    func() time.Time
}

func NewService(secret string) *service {
	return &service{secret: []byte(secret), now: time.Now}
}

var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// IssueToken signs a creator token. The API never logs creators in; this is
// used by operational tooling and tests.
func (s *service) IssueToken(creatorID uuid.UUID, ttl time.Duration) (string, error) {
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   creatorID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: RoleCreator,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

// ValidateToken returns the creator identity carried by token.
func (s *service) ValidateToken(_ context.Context, token string) (uuid.UUID, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	if c.Role != RoleCreator {
		return uuid.Nil, fmt.Errorf("%w: role %q cannot access earnings", ErrInvalidToken, c.Role)
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return id, nil
}
