package payouts

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// Client-correctable failures of CreateRequest, in validation order.
var (
	ErrInvalidMode         = errors.New("invalid payout mode")
	ErrAmountTooLow        = errors.New("amount is below the minimum payout")
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrKycRequired         = errors.New("identity verification required")
	ErrInvalidDestination  = errors.New("invalid payout destination")
)

var (
	// ErrConcurrencyConflict is a balance check lost to a concurrent request
	// or ledger change between validation and commit.
	ErrConcurrencyConflict = errors.New("balance changed while the request was being created")
	ErrInvalidTransition   = errors.New("invalid payout status transition")
	ErrNotFound            = errors.New("payout request not found")
	ErrInvalidRequest      = errors.New("malformed payout request")
)

// ErrAmountPrecision is an amount with sub-cent digits. It classifies as
// ErrInvalidRequest.
var ErrAmountPrecision = fmt.Errorf("%w: amount can have at most 2 decimal places", ErrInvalidRequest)

// CheckAmountPrecision rejects amounts that 2-decimal currency rounding
// would change.
func CheckAmountPrecision(amount decimal.Decimal) error {
	if !amount.Equal(amount.Round(2)) {
		return ErrAmountPrecision
	}
	return nil
}

// Wire codes carried next to the message in error bodies.
const (
	CodeInvalidMode         = "invalid_mode"
	CodeAmountTooLow        = "amount_too_low"
	CodeInsufficientBalance = "insufficient_balance"
	CodeKycRequired         = "kyc_required"
	CodeInvalidDestination  = "invalid_destination"
	CodeConcurrencyConflict = "concurrency_conflict"
	CodeInvalidTransition   = "invalid_transition"
	CodeNotFound            = "not_found"
	CodeInvalidRequest      = "invalid_request"
	CodeInternal            = "internal"
)

var taxonomy = []struct {
	err    error
	code   string
	status int
}{
	{ErrInvalidMode, CodeInvalidMode, http.StatusBadRequest},
	{ErrAmountTooLow, CodeAmountTooLow, http.StatusBadRequest},
	{ErrInsufficientBalance, CodeInsufficientBalance, http.StatusBadRequest},
	{ErrKycRequired, CodeKycRequired, http.StatusForbidden},
	{ErrInvalidDestination, CodeInvalidDestination, http.StatusBadRequest},
	{ErrInvalidRequest, CodeInvalidRequest, http.StatusBadRequest},
	{ErrConcurrencyConflict, CodeConcurrencyConflict, http.StatusConflict},
	{ErrInvalidTransition, CodeInvalidTransition, http.StatusConflict},
	{ErrNotFound, CodeNotFound, http.StatusNotFound},
}

// Classify returns the wire code and HTTP status for err. Unknown errors
// are internal.
func Classify(err error) (code string, status int) {
	for _, t := range taxonomy {
		if errors.Is(err, t.err) {
			return t.code, t.status
		}
	}
	return CodeInternal, http.StatusInternalServerError
}

// FromCode rebuilds a taxonomy error from a wire code, keeping the server's
// message. It returns nil for unknown codes.
func FromCode(code, msg string) error {
	for _, t := range taxonomy {
		if t.code == code {
			msg = strings.TrimPrefix(strings.TrimPrefix(msg, t.err.Error()), ": ")
			if msg == "" {
				return t.err
			}
			return fmt.Errorf("%w: %s", t.err, msg)
		}
	}
	return nil
}
