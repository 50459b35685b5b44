package models

import (
	"time"

	"github.com/google/uuid"
)

// PayoutStatus represents payout lifecycle state
type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutSucceeded  PayoutStatus = "succeeded"
	PayoutFailed     PayoutStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions
func (s PayoutStatus) IsTerminal() bool {
	return s == PayoutSucceeded || s == PayoutFailed
}

// Payout represents a withdrawal of wallet funds to an external account
type Payout struct {
	ID                 uuid.UUID              `json:"id" db:"id"`
	WalletID           uuid.UUID              `json:"wallet_id" db:"wallet_id"`
	DriverID           uuid.UUID              `json:"driver_id" db:"driver_id"`
	Amount             int64                  `json:"amount" db:"amount"`
	Currency           string                 `json:"currency" db:"currency"`
	Status             PayoutStatus           `json:"status" db:"status"`
	DebitTransactionID uuid.UUID              `json:"debit_transaction_id" db:"debit_transaction_id"`
	ProcessorReference *string                `json:"processor_reference,omitempty" db:"processor_reference"`
	FailureCode        *string                `json:"failure_code,omitempty" db:"failure_code"`
	FailureReason      *string                `json:"failure_reason,omitempty" db:"failure_reason"`
	Metadata           map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt          time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at" db:"updated_at"`
}

// PayoutAccount holds the external destination a driver's payouts settle to
type PayoutAccount struct {
	DriverID    uuid.UUID `json:"driver_id" db:"driver_id"`
	Destination string    `json:"destination" db:"destination"`
	Currency    string    `json:"currency" db:"currency"`
	IsVerified  bool      `json:"is_verified" db:"is_verified"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// CreatePayoutRequest is the request body for requesting a payout
type CreatePayoutRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// SettlePayoutRequest carries a processor-reported outcome for a payout
type SettlePayoutRequest struct {
	Status        PayoutStatus `json:"status" binding:"required,oneof=succeeded failed"`
	FailureCode   *string      `json:"failure_code,omitempty"`
	FailureReason *string      `json:"failure_reason,omitempty"`
}
