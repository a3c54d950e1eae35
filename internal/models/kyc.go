package models

import (
	"time"

	"github.com/google/uuid"
)

type KycStatus string

const (
	KycNotStarted KycStatus = "not_started"
	KycPending    KycStatus = "pending"
	KycVerified   KycStatus = "verified"
	KycRejected   KycStatus = "rejected"
)

func (s KycStatus) Valid() bool {
	switch s {
	case KycNotStarted, KycPending, KycVerified, KycRejected:
		return true
	}
	return false
}

// Message is the creator-facing description of the status.
func (s KycStatus) Message() string {
	switch s {
	case KycVerified:
		return "Your account is verified"
	case KycPending:
		return "Your verification is being reviewed"
	case KycRejected:
		return "Your verification was rejected. Please try again."
	default:
		return "Please complete KYC verification to unlock all features"
	}
}

// KycState is the stored verification state of one creator.
type KycState struct {
	CreatorID uuid.UUID
	Status    KycStatus
	UpdatedAt time.Time
	Session   *KycSession
}

// KycSession is an external verification session opened by StartVerification.
type KycSession struct {
	ID        uuid.UUID
	CreatorID uuid.UUID
	URL       string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ExpiredAt reports whether the session can no longer be completed.
func (s *KycSession) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
