package models

import "github.com/shopspring/decimal"

// Balance is derived from completed ledger entries at query time; it is
// never stored.
type Balance struct {
	Available decimal.Decimal
	Pending   decimal.Decimal
	Reserve   decimal.Decimal
	Total     decimal.Decimal
	Currency  string
}

// NewBalance splits released funds into available and reserve. The parts
// always sum to released + pending.
func NewBalance(released, pending, reserveRate decimal.Decimal, currency string) Balance {
	reserve := decimal.Zero
	if released.IsPositive() {
		reserve = released.Mul(reserveRate)
	}
	return Balance{
		Available: released.Sub(reserve),
		Pending:   pending,
		Reserve:   reserve,
		Total:     released.Add(pending),
		Currency:  currency,
	}
}

// Rounded returns the balance with 2-decimal currency rounding. Only the
// reserve is rounded; available is derived from it so the sum stays exact.
func (b Balance) Rounded() Balance {
	released := b.Available.Add(b.Reserve).Round(2)
	reserve := b.Reserve.Round(2)
	pending := b.Pending.Round(2)
	return Balance{
		Available: released.Sub(reserve),
		Pending:   pending,
		Reserve:   reserve,
		Total:     released.Add(pending),
		Currency:  b.Currency,
	}
}
