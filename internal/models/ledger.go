package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType classifies the earning event behind a ledger entry.
type EntryType string

const (
	EntrySubscription EntryType = "subscription"
	EntryPPV          EntryType = "ppv"
	EntryTip          EntryType = "tip"
	EntryMarketplace  EntryType = "marketplace"
	EntryRefund       EntryType = "refund"
)

// EntryTypes lists every known entry type.
var EntryTypes = []EntryType{EntrySubscription, EntryPPV, EntryTip, EntryMarketplace, EntryRefund}

func (t EntryType) Valid() bool {
	for _, v := range EntryTypes {
		if t == v {
			return true
		}
	}
	return false
}

// EntryStatus is driven by the upstream payment rail. Only completed entries
// count towards balances.
type EntryStatus string

const (
	EntryCompleted  EntryStatus = "completed"
	EntryPending    EntryStatus = "pending"
	EntryProcessing EntryStatus = "processing"
	EntryFailed     EntryStatus = "failed"
)

func (s EntryStatus) Valid() bool {
	switch s {
	case EntryCompleted, EntryPending, EntryProcessing, EntryFailed:
		return true
	}
	return false
}

type LedgerEntry struct {
	ID          uuid.UUID       `json:"id"`
	CreatorID   uuid.UUID       `json:"creatorId"`
	Type        EntryType       `json:"type"`
	ItemID      string          `json:"itemId,omitempty"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Status      EntryStatus     `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	ReleaseDate time.Time       `json:"releaseDate"`
}

// IsReleasedAt reports whether the entry's funds are withdrawable at now.
// The release side is closed: an entry exactly at its release date is released.
func (e *LedgerEntry) IsReleasedAt(now time.Time) bool {
	return !now.Before(e.ReleaseDate)
}

// SignedAmount is the entry's contribution to balance math. Refunds debit.
func (e *LedgerEntry) SignedAmount() decimal.Decimal {
	if e.Type == EntryRefund {
		return e.Amount.Neg()
	}
	return e.Amount
}

// ReleaseIn renders the time left until release the way the dashboard shows it.
func (e *LedgerEntry) ReleaseIn(now time.Time) string {
	if e.IsReleasedAt(now) {
		return "Released"
	}
	left := e.ReleaseDate.Sub(now)
	if days := int(left / (24 * time.Hour)); days > 0 {
		return plural(days, "day")
	}
	return plural(int(math.Ceil(left.Hours())), "hour")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
