package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayoutMode selects the delivery rail and its fee schedule.
type PayoutMode string

const (
	PayoutStandard PayoutMode = "standard"
	PayoutExpress  PayoutMode = "express"
	PayoutCrypto   PayoutMode = "crypto"
)

func (m PayoutMode) Valid() bool {
	switch m {
	case PayoutStandard, PayoutExpress, PayoutCrypto:
		return true
	}
	return false
}

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

func (s PayoutStatus) Valid() bool {
	switch s {
	case PayoutPending, PayoutProcessing, PayoutCompleted, PayoutFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s PayoutStatus) Terminal() bool {
	return s == PayoutCompleted || s == PayoutFailed
}

type DestinationType string

const (
	DestinationIBAN   DestinationType = "iban"
	DestinationCrypto DestinationType = "crypto"
)

type CryptoNetwork string

const (
	NetworkETH  CryptoNetwork = "ETH"
	NetworkUSDT CryptoNetwork = "USDT"
)

// Destination is a tagged union: IBAN is set for iban destinations,
// CryptoAddress and CryptoNetwork for crypto ones.
type Destination struct {
	Type          DestinationType `json:"type"`
	IBAN          string          `json:"iban,omitempty"`
	CryptoAddress string          `json:"cryptoAddress,omitempty"`
	CryptoNetwork CryptoNetwork   `json:"cryptoNetwork,omitempty"`
}

type PayoutRequest struct {
	ID            uuid.UUID       `json:"id"`
	CreatorID     uuid.UUID       `json:"creatorId"`
	Mode          PayoutMode      `json:"mode"`
	Amount        decimal.Decimal `json:"amount"`
	Fees          decimal.Decimal `json:"fees"`
	Net           decimal.Decimal `json:"net"`
	Currency      string          `json:"currency"`
	Destination   Destination     `json:"destination"`
	Status        PayoutStatus    `json:"status"`
	ETA           string          `json:"eta"`
	FailureReason string          `json:"failureReason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	ProcessedAt   *time.Time      `json:"processedAt,omitempty"`
}
