// Package fees prices payouts per delivery mode. Everything here is pure:
// no I/O and no rounding until a caller asks for it.
package fees

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/creatorhub/backend/internal/models"
)

// ErrUnknownMode is returned for a mode with no fee schedule.
var ErrUnknownMode = errors.New("unknown payout mode")

// Schedule is the fee rule for one mode: Percent × amount + Fixed, raised to
// Minimum when it falls below it.
type Schedule struct {
	Percent decimal.Decimal
	Fixed   decimal.Decimal
	Minimum decimal.Decimal
	ETA     string
}

var schedules = map[models.PayoutMode]Schedule{
	models.PayoutStandard: {
		Percent: decimal.RequireFromString("0.015"),
		Minimum: decimal.RequireFromString("1.00"),
		ETA:     "3-5 business days",
	},
	models.PayoutExpress: {
		Percent: decimal.RequireFromString("0.029"),
		Minimum: decimal.RequireFromString("2.00"),
		ETA:     "24 hours",
	},
	models.PayoutCrypto: {
		Percent: decimal.RequireFromString("0.012"),
		Fixed:   decimal.RequireFromString("0.50"),
		ETA:     "1-2 hours",
	},
}

// ScheduleFor returns the fee schedule of mode.
func ScheduleFor(mode models.PayoutMode) (Schedule, error) {
	s, ok := schedules[mode]
	if !ok {
		return Schedule{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return s, nil
}

// Quote is the priced outcome of a payout.
type Quote struct {
	Fees decimal.Decimal
	Net  decimal.Decimal
	ETA  string
}

// Compute prices amount under mode. Fees never exceed the gross amount, so
// Net == amount - Fees and Net >= 0 hold for every non-negative amount. The
// cap takes precedence over the schedule floor: below the floor the whole
// amount is the fee (0.50 standard quotes fees 0.50, not 1.00). Amounts at
// or above the payout minimum never reach the cap.
func Compute(amount decimal.Decimal, mode models.PayoutMode) (Quote, error) {
	s, err := ScheduleFor(mode)
	if err != nil {
		return Quote{}, err
	}
	fee := amount.Mul(s.Percent).Add(s.Fixed)
	if fee.LessThan(s.Minimum) {
		fee = s.Minimum
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	if fee.GreaterThan(amount) {
		fee = amount
	}
	return Quote{Fees: fee, Net: amount.Sub(fee), ETA: s.ETA}, nil
}

// Rounded applies 2-decimal currency rounding to the fees and derives net
// from the rounded fees.
func (q Quote) Rounded() Quote {
	gross := q.Fees.Add(q.Net)
	fee := q.Fees.Round(2)
	return Quote{Fees: fee, Net: gross.Round(2).Sub(fee), ETA: q.ETA}
}
