package models

import (
	"time"

	"github.com/google/uuid"
)

// UserRole represents user role type
type UserRole string

const (
	RoleDriver UserRole = "driver"
	RoleAdmin  UserRole = "admin"
)

// TransactionKind classifies ledger entries
type TransactionKind string

const (
	KindRideEarning  TransactionKind = "ride_earning"
	KindPayoutDebit  TransactionKind = "payout_debit"
	KindPayoutRefund TransactionKind = "payout_refund"
	KindAdjustment   TransactionKind = "adjustment"
)

// TransactionStatus represents the lifecycle state of a ledger entry
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionSucceeded TransactionStatus = "succeeded"
	TransactionFailed    TransactionStatus = "failed"
)

// Wallet represents a driver's earnings wallet. Balance is held in minor
// currency units (cents). Version guards concurrent balance mutations.
type Wallet struct {
	ID        uuid.UUID `json:"id" db:"id"`
	DriverID  uuid.UUID `json:"driver_id" db:"driver_id"`
	Balance   int64     `json:"balance" db:"balance"`
	Currency  string    `json:"currency" db:"currency"`
	Version   int64     `json:"version" db:"version"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Transaction represents a single immutable ledger entry. Amount is signed:
// credits are positive, debits negative. ReversalOf links a compensating
// entry to the transaction it reverses.
type Transaction struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	WalletID    uuid.UUID         `json:"wallet_id" db:"wallet_id"`
	Amount      int64             `json:"amount" db:"amount"`
	Kind        TransactionKind   `json:"kind" db:"kind"`
	Status      TransactionStatus `json:"status" db:"status"`
	ReferenceID *uuid.UUID        `json:"reference_id,omitempty" db:"reference_id"`
	ReversalOf  *uuid.UUID        `json:"reversal_of,omitempty" db:"reversal_of"`
	Description string            `json:"description" db:"description"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" db:"updated_at"`
}

// IsCredit reports whether the entry increases the wallet balance
func (t *Transaction) IsCredit() bool {
	return t.Amount > 0
}

// RideEarningBreakdown is the commission split for a completed ride
type RideEarningBreakdown struct {
	GrossAmount int64 `json:"gross_amount"`
	Commission  int64 `json:"commission"`
	NetAmount   int64 `json:"net_amount"`
}
