package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// RideCompletedData is emitted by the rides service when a trip finishes.
// FareAmount is in minor currency units.
type RideCompletedData struct {
	RideID      uuid.UUID `json:"ride_id"`
	RiderID     uuid.UUID `json:"rider_id"`
	DriverID    uuid.UUID `json:"driver_id"`
	FareAmount  int64     `json:"fare_amount"`
	Currency    string    `json:"currency"`
	CompletedAt time.Time `json:"completed_at"`
}

// EarningRecordedData is emitted after a completed ride has been credited to
// the driver's wallet.
type EarningRecordedData struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	WalletID      uuid.UUID `json:"wallet_id"`
	DriverID      uuid.UUID `json:"driver_id"`
	RideID        uuid.UUID `json:"ride_id"`
	GrossAmount   int64     `json:"gross_amount"`
	Commission    int64     `json:"commission"`
	NetAmount     int64     `json:"net_amount"`
	Currency      string    `json:"currency"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// PayoutSettledData is emitted when a payout reaches a terminal state.
type PayoutSettledData struct {
	PayoutID           uuid.UUID `json:"payout_id"`
	WalletID           uuid.UUID `json:"wallet_id"`
	DriverID           uuid.UUID `json:"driver_id"`
	Amount             int64     `json:"amount"`
	Currency           string    `json:"currency"`
	Status             string    `json:"status"` // succeeded or failed
	ProcessorReference string    `json:"processor_reference,omitempty"`
	FailureReason      string    `json:"failure_reason,omitempty"`
	SettledAt          time.Time `json:"settled_at"`
}
